package config

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/hazyhaar/lasen/correction"
)

// WatchOptions tunes the settings watcher.
type WatchOptions struct {
	// Interval is the polling frequency. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before settings are
	// reloaded. 0 reloads immediately.
	Debounce time.Duration
	Logger   *slog.Logger
}

func (o *WatchOptions) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// WatchSettings blocks until ctx is cancelled, polling the settings table.
// When the change token moves and the debounce window passes, the settings
// are reloaded and handed to apply. A failed reload is retried on the next
// poll.
func WatchSettings(ctx context.Context, db *sql.DB, opts WatchOptions, apply func(correction.Settings)) {
	opts.defaults()
	log := opts.Logger

	version, err := settingsVersion(ctx, db)
	if err != nil {
		log.Warn("config: initial settings version check failed", "error", err)
		version = -1
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time
	pending := int64(-1)

	reload := func(ver int64) {
		s, err := LoadSettings(ctx, db)
		if err != nil {
			log.Error("config: settings reload failed", "error", err, "version", ver)
			return
		}
		version = ver
		log.Info("config: settings reloaded", "version", ver, "instant_check", s.InstantCheck)
		apply(s)
	}

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case <-ticker.C:
			cur, err := settingsVersion(ctx, db)
			if err != nil {
				log.Warn("config: settings version check failed", "error", err)
				continue
			}
			if cur == version || cur == pending {
				continue
			}
			pending = cur
			if opts.Debounce <= 0 {
				reload(pending)
				pending = -1
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(opts.Debounce)
			debounceCh = debounceTimer.C

		case <-debounceCh:
			debounceCh = nil
			if pending >= 0 {
				reload(pending)
				pending = -1
			}
		}
	}
}
