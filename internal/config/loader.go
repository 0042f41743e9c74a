package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/thruflo/remoteui/internal/logging"
)

// Default values for Config.
const (
	DefaultServerPort  = 4242
	DefaultWebPort     = -1
	DefaultEncoding    = EncodingRaw
	DefaultJPEGQuality = 85
	DefaultIdleTimeout = 5 * time.Second
	DefaultSteps       = 20
	DefaultValue       = 1.0
	DefaultLogLevel    = "info"
)

// DefaultServerConfig returns a ServerConfig with sensible default values.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:    DefaultServerPort,
		WebPort: DefaultWebPort,
	}
}

// DefaultVideoConfig returns the default frame encoding settings.
func DefaultVideoConfig() VideoConfig {
	return VideoConfig{
		Encoding:    DefaultEncoding,
		JPEGQuality: DefaultJPEGQuality,
		IdleTimeout: DefaultIdleTimeout,
	}
}

// DefaultStateConfig returns the control state a fresh server starts with.
func DefaultStateConfig() StateConfig {
	return StateConfig{
		IsPlaying: true,
		Steps:     DefaultSteps,
		Value:     DefaultValue,
	}
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Server:   DefaultServerConfig(),
		Video:    DefaultVideoConfig(),
		State:    DefaultStateConfig(),
		LogLevel: DefaultLogLevel,
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// LoadConfig reads and parses the yaml file at path.
// If the file doesn't exist, returns default config.
// Applies defaults for any missing fields.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ValidateConfig checks that all config values are valid.
func ValidateConfig(cfg *Config) error {
	if err := ValidateServerConfig(&cfg.Server); err != nil {
		return err
	}

	switch cfg.Video.Encoding {
	case EncodingRaw, EncodingJPEG, EncodingPNG:
	default:
		return ValidationError{Field: "video.encoding", Message: "must be one of raw, jpeg, png"}
	}
	if cfg.Video.JPEGQuality < 1 || cfg.Video.JPEGQuality > 100 {
		return ValidationError{Field: "video.jpeg_quality", Message: "must be between 1 and 100"}
	}
	if cfg.Video.IdleTimeout <= 0 {
		return ValidationError{Field: "video.idle_timeout", Message: "must be positive"}
	}

	if cfg.State.Steps < 1 {
		return ValidationError{Field: "state.steps", Message: "must be at least 1"}
	}

	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return ValidationError{Field: "log_level", Message: err.Error()}
	}

	return nil
}

// ValidateServerConfig checks that server config values are valid.
func ValidateServerConfig(cfg *ServerConfig) error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return ValidationError{Field: "server.port", Message: "must be between 0 and 65535"}
	}
	if cfg.WebPort > 65535 {
		return ValidationError{Field: "server.web_port", Message: "must be at most 65535"}
	}
	return nil
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// SaveConfig writes cfg to path as yaml, creating parent directories.
func SaveConfig(path string, cfg *Config) error {
	if err := ValidateConfig(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	// The file may hold a password hash.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
