package fieldwatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/lasen/correction"
	"github.com/hazyhaar/lasen/dbopen"
	"github.com/hazyhaar/lasen/fieldwatch/internal/config"
)

func TestLoadConfigFileMapsEngineAndBrowser(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldwatch.yaml")
	yaml := `
browser:
  remote: ws://127.0.0.1:9222/devtools/browser/x
  stealth: headful
  all_tabs: true
pages:
  - url: https://example.com/form
engine:
  max_idle: 2
  blur_grace: 300ms
  validation_debounce: 1s
settings:
  instant_check: true
  default_dialect: gulf
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pages[0].ID != "page-1" {
		t.Errorf("page id = %q", cfg.Pages[0].ID)
	}

	bc := browserConfig(cfg, nil)
	if !bc.Headful || bc.RemoteURL == "" {
		t.Errorf("browser config = %+v", bc)
	}

	ec := engineConfig(cfg, cfg.Settings, nil)
	if ec.MaxIdle != 2 || ec.BlurGrace != 300*time.Millisecond || ec.ValidationDebounce != time.Second {
		t.Errorf("engine config = %+v", ec)
	}
	if !ec.Settings.InstantCheck || ec.Settings.DefaultDialect != correction.Gulf {
		t.Errorf("settings = %+v", ec.Settings)
	}
}

func TestInitialSettingsSeedsOnce(t *testing.T) {
	ctx := context.Background()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(config.Schema))

	cfg := DefaultConfig()
	cfg.Settings.InstantCheck = true
	got, err := initialSettings(ctx, db, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !got.InstantCheck {
		t.Fatal("seeded settings not returned")
	}

	// A later start with different file settings keeps what the user saved.
	cfg.Settings.InstantCheck = false
	got, err = initialSettings(ctx, db, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !got.InstantCheck {
		t.Error("stored settings overwritten by file settings")
	}
}

func TestNewDaemonIdle(t *testing.T) {
	d := NewDaemon(DefaultConfig(), nil)
	if d.Engine() != nil {
		t.Error("engine before Run")
	}
	// No browser yet: instrument and release are no-ops.
	d.instrument(context.Background())
	d.release()
}
