package config

import (
	"time"

	"github.com/thruflo/remoteui/internal/video"
)

// ServerConfig holds the network settings of the interface server.
type ServerConfig struct {
	// Host is the interface the viewer listener binds to. Empty binds all.
	Host string `yaml:"host"`
	// Port is the TCP port for native viewers. 0 picks a free port.
	Port int `yaml:"port"`
	// WebPort is the HTTP/websocket viewer port. Negative disables it.
	WebPort int `yaml:"web_port"`
	// PasswordHash protects the web endpoint when set (argon2id, see auth).
	PasswordHash string `yaml:"password_hash,omitempty"`
	// TrustProxy keys /auth rate limiting on X-Forwarded-For and X-Real-IP.
	// Only set it behind a reverse proxy that overwrites those headers.
	TrustProxy bool `yaml:"trust_proxy,omitempty"`
}

// VideoConfig controls how frames are encoded for viewers.
type VideoConfig struct {
	Encoding    string        `yaml:"encoding"`
	JPEGQuality int           `yaml:"jpeg_quality"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// StateConfig holds the initial control state.
type StateConfig struct {
	IsPlaying bool    `yaml:"is_playing"`
	Prompt    string  `yaml:"prompt"`
	Steps     int     `yaml:"steps"`
	Value     float32 `yaml:"value"`
}

// Config represents a remoteui yaml configuration file.
type Config struct {
	Server   ServerConfig `yaml:"server"`
	Video    VideoConfig  `yaml:"video"`
	State    StateConfig  `yaml:"state"`
	LogLevel string       `yaml:"log_level"`
}

// Video encodings understood by the server.
const (
	EncodingRaw  = video.EncodingRaw
	EncodingJPEG = video.EncodingJPEG
	EncodingPNG  = video.EncodingPNG
)
