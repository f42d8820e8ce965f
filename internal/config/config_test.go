package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultValues(t *testing.T) {
	viper.Reset()
	require.NoError(t, Load())

	cfg := Get()
	require.Equal(t, 1920, cfg.WindowWidth)
	require.Equal(t, 1080, cfg.WindowHeight)
	require.False(t, cfg.FullScreen)
	require.True(t, cfg.VSync)
	require.Equal(t, 44100, cfg.AudioSampleRate)
	require.Equal(t, 1, cfg.AudioChannels)
	require.Equal(t, 9000, cfg.OSCListenPort)
	require.Equal(t, 8, cfg.MaxLayers)
}

func TestLoadTOMLOverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configData := `
WindowWidth = 2560
WindowHeight = 1440
AudioSampleRate = 48000
MaxLayers = 4
OSCListenPort = 9001
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "phosphor.toml"), []byte(configData), 0o644))

	viper.Reset()
	viper.SetConfigName("phosphor")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)
	viper.SetDefault("WindowWidth", 1920)
	viper.SetDefault("MaxLayers", 8)
	require.NoError(t, viper.ReadInConfig())
	require.NoError(t, viper.Unmarshal(&C))

	cfg := Get()
	require.Equal(t, 2560, cfg.WindowWidth)
	require.Equal(t, 1440, cfg.WindowHeight)
	require.Equal(t, 48000, cfg.AudioSampleRate)
	require.Equal(t, 4, cfg.MaxLayers)
	require.Equal(t, 9001, cfg.OSCListenPort)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	viper.Reset()
	viper.SetConfigName("phosphor")
	viper.SetConfigType("toml")
	viper.AddConfigPath("/nonexistent/path")

	require.NoError(t, Load(), "a missing config file is not an error")
	require.Equal(t, 1920, Get().WindowWidth)
}

func TestSaveRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()

	viper.Reset()
	viper.SetConfigName("phosphor")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)
	require.NoError(t, Load())

	cfg := Config{
		WindowWidth:     1280,
		WindowHeight:    720,
		AudioSampleRate: 48000,
		AudioChannels:   2,
		MaxLayers:       6,
		OSCListenPort:   9500,
		WebListenAddr:   ":8000",
	}
	Set(cfg)
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "phosphor.toml"), []byte(""), 0o644))
	require.NoError(t, Save())

	viper.Reset()
	viper.SetConfigName("phosphor")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)
	require.NoError(t, viper.ReadInConfig())
	var reloaded Config
	require.NoError(t, viper.Unmarshal(&reloaded))

	require.Equal(t, cfg.WindowWidth, reloaded.WindowWidth)
	require.Equal(t, cfg.AudioSampleRate, reloaded.AudioSampleRate)
	require.Equal(t, cfg.MaxLayers, reloaded.MaxLayers)
	require.Equal(t, cfg.OSCListenPort, reloaded.OSCListenPort)
}

func TestWatchFiresCallbackOnChange(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "phosphor.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("MaxLayers = 8\n"), 0o644))

	viper.Reset()
	viper.SetConfigName("phosphor")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)
	require.NoError(t, Load())

	changed := make(chan Config, 1)
	stop, err := Watch(func(old, new Config) {
		changed <- new
	})
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(configPath, []byte("MaxLayers = 3\n"), 0o644))

	select {
	case cfg := <-changed:
		require.Equal(t, 3, cfg.MaxLayers)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not observed in time")
	}
}
