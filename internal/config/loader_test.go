package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "remoteui.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_Default(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultWebPort, cfg.Server.WebPort)
	assert.Equal(t, EncodingRaw, cfg.Video.Encoding)
	assert.Equal(t, DefaultIdleTimeout, cfg.Video.IdleTimeout)
	assert.True(t, cfg.State.IsPlaying)
	assert.Equal(t, DefaultSteps, cfg.State.Steps)
	assert.Equal(t, float32(DefaultValue), cfg.State.Value)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *cfg)
}

func TestLoadConfig_ValidFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `server:
  host: 127.0.0.1
  port: 5000
  web_port: 8080
  trust_proxy: true
video:
  encoding: jpeg
  jpeg_quality: 70
  idle_timeout: 2s
state:
  is_playing: false
  prompt: a lighthouse at dusk
  steps: 4
  value: 4.5
log_level: off
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 8080, cfg.Server.WebPort)
	assert.True(t, cfg.Server.TrustProxy)
	assert.Equal(t, EncodingJPEG, cfg.Video.Encoding)
	assert.Equal(t, 70, cfg.Video.JPEGQuality)
	assert.Equal(t, 2*time.Second, cfg.Video.IdleTimeout)
	assert.False(t, cfg.State.IsPlaying)
	assert.Equal(t, "a lighthouse at dusk", cfg.State.Prompt)
	assert.Equal(t, 4, cfg.State.Steps)
	assert.Equal(t, float32(4.5), cfg.State.Value)
	assert.Equal(t, "off", cfg.LogLevel)
}

func TestLoadConfig_PartialFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `server:
  port: 6000
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 6000, cfg.Server.Port)
	assert.Equal(t, DefaultWebPort, cfg.Server.WebPort)
	assert.Equal(t, DefaultVideoConfig(), cfg.Video)
	assert.Equal(t, DefaultStateConfig(), cfg.State)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "server: [unclosed\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"negative port", func(c *Config) { c.Server.Port = -1 }, "server.port"},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"web port too large", func(c *Config) { c.Server.WebPort = 70000 }, "server.web_port"},
		{"unknown encoding", func(c *Config) { c.Video.Encoding = "h264" }, "video.encoding"},
		{"jpeg quality zero", func(c *Config) { c.Video.JPEGQuality = 0 }, "video.jpeg_quality"},
		{"idle timeout zero", func(c *Config) { c.Video.IdleTimeout = 0 }, "video.idle_timeout"},
		{"steps zero", func(c *Config) { c.State.Steps = 0 }, "state.steps"},
		{"unknown log level", func(c *Config) { c.LogLevel = "chatty" }, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := ValidateConfig(&cfg)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))

			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	t.Run("defaults are valid", func(t *testing.T) {
		t.Parallel()
		cfg := DefaultConfig()
		assert.NoError(t, ValidateConfig(&cfg))
	})
}

func TestLoadConfig_ValidationFailure(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "video:\n  encoding: gif\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "remoteui.yaml")
	cfg := DefaultConfig()
	cfg.Server.WebPort = 8080
	cfg.Server.PasswordHash = "$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA"
	cfg.Video.IdleTimeout = 750 * time.Millisecond
	cfg.State.Prompt = "a quiet harbour"

	require.NoError(t, SaveConfig(path, &cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, *loaded)
}

func TestSaveConfig_RejectsInvalid(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.State.Steps = 0
	err := SaveConfig(filepath.Join(t.TempDir(), "remoteui.yaml"), &cfg)
	assert.True(t, IsValidationError(err))
}
