package config

import (
	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/storagebox/internal/logger"
)

// Watch reloads path whenever it changes on disk and hands the new
// configuration to onChange. Invalid edits are logged and skipped; the
// previous configuration stays in effect.
func Watch(path string, onChange func(*Config)) error {
	v := newViper(path)
	if _, err := readConfigFile(v); err != nil {
		return err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			logger.Warn("Ignoring invalid configuration change", "file", e.Name, logger.Err(err))
			return
		}
		logger.Info("Configuration reloaded", "file", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}
