package config

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/fd1az/chain-txqueue/internal/logger"
)

// Watcher reloads the config file on change and hands valid configs to
// the registered callback. Invalid edits are logged and ignored.
type Watcher struct {
	v   *viper.Viper
	log logger.LoggerInterface
}

// NewWatcher loads configPath and prepares it for watching. A watcher needs
// a real file; env-only setups have nothing to watch.
func NewWatcher(configPath string, log logger.LoggerInterface) (*Watcher, *Config, error) {
	if configPath == "" {
		return nil, nil, fmt.Errorf("config watcher requires a config file path")
	}

	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}

	return &Watcher{v: v, log: log}, cfg, nil
}

// Watch starts watching and calls onChange with every valid new config.
func (w *Watcher) Watch(onChange func(*Config)) {
	w.v.OnConfigChange(func(e fsnotify.Event) {
		ctx := context.Background()

		cfg, err := decode(w.v)
		if err != nil {
			w.log.Warn(ctx, "ignoring invalid config change", "file", e.Name, "error", err)
			return
		}

		w.log.Info(ctx, "config reloaded", "file", e.Name, "op", e.Op.String())
		onChange(cfg)
	})
	w.v.WatchConfig()
}
