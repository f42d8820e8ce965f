// Package config loads and hot-reloads Phosphor's runtime configuration.
package config

import (
	"context"
	"errors"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds every runtime-tunable setting (§1 ambient stack).
type Config struct {
	WindowWidth  int `mapstructure:"WindowWidth"`
	WindowHeight int `mapstructure:"WindowHeight"`
	FullScreen   bool `mapstructure:"FullScreen"`
	VSync        bool `mapstructure:"VSync"`

	AudioDeviceName string `mapstructure:"AudioDeviceName"`
	AudioSampleRate int    `mapstructure:"AudioSampleRate"`
	AudioChannels   int    `mapstructure:"AudioChannels"`

	MIDIDeviceName string `mapstructure:"MIDIDeviceName"`

	OSCListenPort int    `mapstructure:"OSCListenPort"`
	WebListenAddr string `mapstructure:"WebListenAddr"`

	PresetDirectory string `mapstructure:"PresetDirectory"`
	ShaderDirectory string `mapstructure:"ShaderDirectory"`

	MaxLayers int `mapstructure:"MaxLayers"`

	LogLevel string `mapstructure:"LogLevel"`
}

// C is the global configuration instance, read by every subsystem at
// startup and after a hot-reload.
var C Config

// mu protects concurrent access to C during hot-reload.
var mu sync.RWMutex

var (
	watcherMu       sync.Mutex
	watcherActive   bool
	watcherCtx      context.Context
	watcherCancel   context.CancelFunc
	currentCallback ReloadCallback
)

// ReloadCallback is invoked with the old and new Config whenever the
// config file changes on disk.
type ReloadCallback func(old, new Config)

// Load reads configuration from file and environment, populating C.
func Load() error {
	viper.SetConfigName("phosphor")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.phosphor")

	viper.SetDefault("WindowWidth", 1920)
	viper.SetDefault("WindowHeight", 1080)
	viper.SetDefault("FullScreen", false)
	viper.SetDefault("VSync", true)

	viper.SetDefault("AudioDeviceName", "")
	viper.SetDefault("AudioSampleRate", 44100)
	viper.SetDefault("AudioChannels", 1)

	viper.SetDefault("MIDIDeviceName", "")

	viper.SetDefault("OSCListenPort", 9000)
	viper.SetDefault("WebListenAddr", ":7890")

	viper.SetDefault("PresetDirectory", "$HOME/.phosphor/presets")
	viper.SetDefault("ShaderDirectory", "./shaders")

	viper.SetDefault("MaxLayers", 8)

	viper.SetDefault("LogLevel", "info")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}

	mu.Lock()
	defer mu.Unlock()
	return viper.Unmarshal(&C)
}

// Save writes the current configuration to file.
func Save() error {
	mu.RLock()
	defer mu.RUnlock()

	viper.Set("WindowWidth", C.WindowWidth)
	viper.Set("WindowHeight", C.WindowHeight)
	viper.Set("FullScreen", C.FullScreen)
	viper.Set("VSync", C.VSync)
	viper.Set("AudioDeviceName", C.AudioDeviceName)
	viper.Set("AudioSampleRate", C.AudioSampleRate)
	viper.Set("AudioChannels", C.AudioChannels)
	viper.Set("MIDIDeviceName", C.MIDIDeviceName)
	viper.Set("OSCListenPort", C.OSCListenPort)
	viper.Set("WebListenAddr", C.WebListenAddr)
	viper.Set("PresetDirectory", C.PresetDirectory)
	viper.Set("ShaderDirectory", C.ShaderDirectory)
	viper.Set("MaxLayers", C.MaxLayers)
	viper.Set("LogLevel", C.LogLevel)

	return viper.WriteConfig()
}

// Watch starts watching the config file for changes and calls callback on
// reload. Only one underlying fsnotify watcher is ever started; a second
// call to Watch just replaces the callback, since viper itself only
// supports one OnConfigChange handler.
func Watch(callback ReloadCallback) (stop func(), err error) {
	watcherMu.Lock()
	defer watcherMu.Unlock()

	if !watcherActive {
		ctx, cancel := context.WithCancel(context.Background())
		watcherCtx = ctx
		watcherCancel = cancel
		currentCallback = callback
		watcherActive = true

		viper.WatchConfig()
		viper.OnConfigChange(func(e fsnotify.Event) {
			watcherMu.Lock()
			cb := currentCallback
			ctx := watcherCtx
			watcherMu.Unlock()

			if ctx != nil {
				select {
				case <-ctx.Done():
					return
				default:
				}
			}

			mu.Lock()
			old := C
			var newCfg Config
			if err := viper.Unmarshal(&newCfg); err == nil {
				C = newCfg
				mu.Unlock()
				if cb != nil {
					cb(old, newCfg)
				}
			} else {
				mu.Unlock()
			}
		})
	} else {
		currentCallback = callback
	}

	return func() {
		watcherMu.Lock()
		defer watcherMu.Unlock()
		if watcherCancel != nil {
			watcherCancel()
			watcherCancel = nil
			watcherCtx = nil
		}
		watcherActive = false
		currentCallback = nil
	}, nil
}

// Get returns a copy of the current config safely.
func Get() Config {
	mu.RLock()
	defer mu.RUnlock()
	return C
}

// Set replaces the current config safely.
func Set(cfg Config) {
	mu.Lock()
	C = cfg
	mu.Unlock()
}
