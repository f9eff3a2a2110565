package config

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// WatchCatalog reloads tenants.yaml on change and calls onUpdate with the latest catalog.
// It performs an initial load before entering the watch loop. An invalid edit is logged
// and the previous catalog stays in effect.
func WatchCatalog(ctx context.Context, path string, interval time.Duration, logger *zerolog.Logger, onUpdate func(*Catalog)) error {
	if path == "" {
		path = "configs/tenants.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "catalog_watch").Str("path", path).Logger()
	}

	cat, err := LoadCatalog(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(cat)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue // transient errors
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				lastMod = info.ModTime()
				cat, err := LoadCatalog(path)
				if err != nil {
					l.Error().Err(err).Msg("tenants config rejected")
					continue
				}
				if onUpdate != nil {
					onUpdate(cat)
				}
			}
		}
	}()

	return nil
}
