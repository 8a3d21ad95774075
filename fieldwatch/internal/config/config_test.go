package config

import (
	"context"
	"testing"
	"time"

	"github.com/hazyhaar/lasen/background"
	"github.com/hazyhaar/lasen/correction"
	"github.com/hazyhaar/lasen/dbopen"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
pages:
  - url: https://example.com/form
settings:
  instant_check: true
  default_dialect: gulf
engine:
  blur_grace: 300ms
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Browser.Stealth != "headless" || cfg.Browser.XvfbDisplay != ":99" {
		t.Errorf("browser defaults = %+v", cfg.Browser)
	}
	if cfg.Pages[0].ID != "page-1" {
		t.Errorf("page id = %q", cfg.Pages[0].ID)
	}
	if cfg.Engine.BlurGrace != 300*time.Millisecond {
		t.Errorf("blur grace = %v", cfg.Engine.BlurGrace)
	}
	s := cfg.Settings
	if !s.ProcessInputs || !s.InstantCheck || s.DefaultDialect != correction.Gulf {
		t.Errorf("settings = %+v", s)
	}
}

func TestParseBrokerRoutes(t *testing.T) {
	cfg, err := Parse([]byte(`
broker:
  routes:
    - service: lasen_correct
      strategy: http
      endpoint: https://api.example.com/api/correct
`))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Broker.Routes) != 1 || cfg.Broker.Routes[0].Strategy != background.StrategyHTTP {
		t.Fatalf("routes = %+v", cfg.Broker.Routes)
	}
}

func TestParseRejectsPageWithoutURL(t *testing.T) {
	if _, err := Parse([]byte("pages:\n  - id: x\n")); err == nil {
		t.Fatal("expected error")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))

	s, err := LoadSettings(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if s != correction.DefaultSettings() {
		t.Fatalf("empty table = %+v, want defaults", s)
	}

	want := correction.Settings{ProcessInputs: false, ProcessTextareas: true, InstantCheck: true, DefaultDialect: correction.Moroccan}
	if err := SaveSettings(ctx, db, want); err != nil {
		t.Fatal(err)
	}
	got, err := LoadSettings(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	// Seeding never overwrites saved settings.
	if err := SeedSettings(ctx, db, correction.DefaultSettings()); err != nil {
		t.Fatal(err)
	}
	if got, _ := LoadSettings(ctx, db); got != want {
		t.Fatalf("seed overwrote settings: %+v", got)
	}
}

func TestSettingsVersionMonotonic(t *testing.T) {
	ctx := context.Background()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))

	var last int64
	for i := 0; i < 5; i++ {
		if err := SaveSettings(ctx, db, correction.DefaultSettings()); err != nil {
			t.Fatal(err)
		}
		v, err := settingsVersion(ctx, db)
		if err != nil {
			t.Fatal(err)
		}
		if v <= last {
			t.Fatalf("version %d did not advance past %d", v, last)
		}
		last = v
	}
}

func TestWatchSettings(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))

	got := make(chan correction.Settings, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		WatchSettings(ctx, db, WatchOptions{Interval: 10 * time.Millisecond}, func(s correction.Settings) {
			got <- s
		})
	}()

	time.Sleep(30 * time.Millisecond)
	want := correction.DefaultSettings()
	want.InstantCheck = true
	if err := SaveSettings(ctx, db, want); err != nil {
		t.Fatal(err)
	}

	select {
	case s := <-got:
		if !s.InstantCheck {
			t.Fatalf("settings = %+v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("change never delivered")
	}
	cancel()
	<-done
}
