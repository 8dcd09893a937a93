// Package storeconfig loads engine.Options-shaped settings from a YAML config file (with
// environment variable overrides) and watches it for changes, the way
// the teacher's config package drives its own logging setup.
package storeconfig

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config mirrors the subset of engine.Options and ambient settings that
// make sense to externalize: where the store lives, when it flushes,
// how it compresses and blocks its run files, and how it logs.
// engine.Open callers that don't need file-based config can skip
// this package entirely and build engine.Options directly.
type Config struct {
	Dir                 string `mapstructure:"dir"`
	FlushThresholdBytes uint64 `mapstructure:"flush_threshold_bytes"`
	TargetBlockBytes    int    `mapstructure:"target_block_bytes"`
	EnableCompression   bool   `mapstructure:"enable_compression"`
	CompressionLevel    int    `mapstructure:"compression_level"`
	LogLevel            string `mapstructure:"log_level"`
	LogOutput           string `mapstructure:"log_output"`
}

// OnChange is invoked with the newly reloaded Config whenever the
// watched file changes on disk, letting a caller such as the engine
// react to a live threshold or logging change without restarting.
type OnChange func(Config)

type watcher struct {
	v        *viper.Viper
	mu       sync.Mutex
	handlers []OnChange
}

// Load reads configName (without extension) from the given search paths
// (typically "./conf/" and "."), applies LSMSTORE_-prefixed environment
// overrides, and begins watching the file for changes. Missing config
// files are not an error: defaults are used instead.
func Load(configName string, paths ...string) (*Config, *watcher, error) {
	v := viper.New()
	v.SetConfigName(configName)
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetConfigType("yml")
	v.SetEnvPrefix("lsmstore")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("dir", "./lsmstore-data")
	v.SetDefault("flush_threshold_bytes", uint64(4<<20))
	v.SetDefault("target_block_bytes", 4096)
	v.SetDefault("enable_compression", true)
	v.SetDefault("compression_level", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_output", "stderr")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("storeconfig: failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("storeconfig: failed to decode config: %w", err)
	}

	w := &watcher{v: v}
	v.OnConfigChange(func(fsnotify.Event) {
		var updated Config
		if err := v.Unmarshal(&updated); err != nil {
			return
		}
		w.mu.Lock()
		handlers := append([]OnChange(nil), w.handlers...)
		w.mu.Unlock()
		for _, h := range handlers {
			h(updated)
		}
	})
	v.WatchConfig()

	return &cfg, w, nil
}

// OnChange registers a callback invoked after every successful reload.
func (w *watcher) OnChange(fn OnChange) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, fn)
}
