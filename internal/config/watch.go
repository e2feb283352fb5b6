package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads path whenever it changes on disk and hands the fresh
// config to onChange. Reloads that fail validation are skipped, which
// also covers the half-written states editors produce when saving.
// When path is empty and no agora.yaml exists there is nothing to
// watch, and Watch says so instead of registering a dead watcher.
//
// Watching runs for the life of the process; the daemon is the only
// intended caller.
func Watch(path string, onChange func(*Config)) error {
	if path == "" {
		path = DefaultConfigFile
	}
	v, err := newViper(path)
	if err != nil {
		return err
	}
	if v.ConfigFileUsed() == "" {
		return fmt.Errorf("no config file to watch (looked for %s)", DefaultConfigFile)
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg := fromViper(v)
		if err := cfg.Validate(); err != nil {
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}
