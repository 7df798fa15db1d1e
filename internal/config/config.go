// Package config loads and validates the voice-core server configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config is the complete voice-core configuration (spec §6.3).
type Config struct {
	Signaling SignalingConfig `json:"signaling"`
	TLS       TLSConfig       `json:"tls"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	Resume    ResumeConfig    `json:"resume"`
	Proximity ProximityConfig `json:"proximity"`
	Group     GroupConfig     `json:"group"`
	Opus      OpusConfig      `json:"opus"`
	Broadcast BroadcastConfig `json:"broadcast"`
	WebRTC    WebRTCConfig    `json:"webrtc"`
	Logging   LoggingConfig   `json:"logging"`
}

// SignalingConfig controls the WebSocket signaling endpoint.
type SignalingConfig struct {
	Port                       int           `json:"signaling_port"`
	AllowedOrigins             []string      `json:"allowed_origins"`
	STUNServers                []string      `json:"stun_servers"`
	PendingGameJoinTimeoutSecs int           `json:"pending_game_join_timeout_seconds"`
	PendingGameJoinTimeout     time.Duration `json:"-"`
}

// TLSConfig describes how the signaling listener is secured. The core
// consumes a pre-built context; it does not procure certificates itself.
type TLSConfig struct {
	Enabled  bool   `json:"ssl_enabled"`
	CertPath string `json:"ssl_cert_path"`
	KeyPath  string `json:"ssl_key_path"`
}

// HeartbeatConfig controls the heartbeat monitor task.
type HeartbeatConfig struct {
	IntervalMs int           `json:"heartbeat_interval_ms"`
	TimeoutMs  int           `json:"heartbeat_timeout_ms"`
	Interval   time.Duration `json:"-"`
	Timeout    time.Duration `json:"-"`
}

// ResumeConfig controls resumable-session lifetime.
type ResumeConfig struct {
	WindowMs int           `json:"resume_window_ms"`
	Window   time.Duration `json:"-"`
}

// ProximityConfig controls distance-based gain for non-group and group audio.
type ProximityConfig struct {
	DefaultDistance   float64 `json:"default_proximity_distance"`
	MaxVoiceDistance  float64 `json:"max_voice_distance"`
	FadeStartRatio    float64 `json:"proximity_fade_start_ratio"`
	RolloffFactor     float64 `json:"proximity_rolloff_factor"`
	ServerSideVolume  bool    `json:"server_side_volume_enabled"`
	RadarEnabled      bool    `json:"proximity_radar_enabled"`
	RadarSpeakingOnly bool    `json:"proximity_radar_speaking_only_enabled"`
}

// GroupConfig controls default group behavior and limits.
type GroupConfig struct {
	GlobalVoice       bool    `json:"group_global_voice"`
	SpatialAudio      bool    `json:"group_spatial_audio"`
	MinVolume         float64 `json:"group_min_volume"`
	DefaultIsIsolated bool    `json:"default_group_is_isolated"`
	MaxNameLength     int     `json:"max_group_name_length"`
}

// OpusConfig controls Opus codec negotiation over the data channel.
type OpusConfig struct {
	DataChannelEnabled bool `json:"opus_data_channel_enabled"`
	SampleRate         int  `json:"opus_sample_rate"`
	Channels           int  `json:"opus_channels"`
	FrameDurationMs    int  `json:"opus_frame_duration_ms"`
	TargetBitrate      int  `json:"opus_target_bitrate"`
}

// BroadcastConfig controls the position broadcast scheduler.
type BroadcastConfig struct {
	IntervalMs int           `json:"position_broadcast_interval_ms"`
	Interval   time.Duration `json:"-"`
}

// WebRTCConfig controls the transport layer's operating mode.
type WebRTCConfig struct {
	TransportMode string `json:"webrtc_transport_mode"` // e.g. "datachannel"
	SCTPPort      int    `json:"sctp_port"`
}

// LoggingConfig mirrors the teacher's ambient logging configuration.
type LoggingConfig struct {
	Level        string `json:"level"`
	Format       string `json:"format"`
	OutputPath   string `json:"output_path"`
	ErrorPath    string `json:"error_path"`
	EnableCaller bool   `json:"enable_caller"`
	EnableStack  bool   `json:"enable_stack"`
}

// Load reads configuration from a JSON file, falling back to defaults when
// the file does not exist, then applies environment overrides and validates.
// Priority: env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", configPath, err)
		}
	}

	cfg.loadFromEnv()
	cfg.deriveDurations()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("VOICECORE_SIGNALING_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Signaling.Port = n
		}
	}
	if v := os.Getenv("VOICECORE_ALLOWED_ORIGINS"); v != "" {
		c.Signaling.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("VOICECORE_STUN_SERVERS"); v != "" {
		c.Signaling.STUNServers = strings.Split(v, ",")
	}
	if v := os.Getenv("VOICECORE_TLS_CERT"); v != "" {
		c.TLS.CertPath = v
		c.TLS.Enabled = true
	}
	if v := os.Getenv("VOICECORE_TLS_KEY"); v != "" {
		c.TLS.KeyPath = v
	}
	if v := os.Getenv("VOICECORE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("VOICECORE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// deriveDurations populates the time.Duration mirrors of the millisecond/
// second fields that are the wire-facing representation per §6.3.
func (c *Config) deriveDurations() {
	c.Signaling.PendingGameJoinTimeout = time.Duration(c.Signaling.PendingGameJoinTimeoutSecs) * time.Second
	c.Heartbeat.Interval = time.Duration(c.Heartbeat.IntervalMs) * time.Millisecond
	c.Heartbeat.Timeout = time.Duration(c.Heartbeat.TimeoutMs) * time.Millisecond
	c.Resume.Window = time.Duration(c.Resume.WindowMs) * time.Millisecond
	c.Broadcast.Interval = time.Duration(c.Broadcast.IntervalMs) * time.Millisecond
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Signaling.Port <= 0 || c.Signaling.Port > 65535 {
		return fmt.Errorf("signaling_port must be in [1, 65535]")
	}
	if len(c.Signaling.AllowedOrigins) == 0 {
		return fmt.Errorf("allowed_origins must not be empty (use [\"*\"] to allow all)")
	}
	if c.TLS.Enabled && (c.TLS.CertPath == "" || c.TLS.KeyPath == "") {
		return fmt.Errorf("ssl_enabled requires ssl_cert_path and ssl_key_path")
	}
	if c.Heartbeat.IntervalMs <= 0 || c.Heartbeat.TimeoutMs <= 0 {
		return fmt.Errorf("heartbeat_interval_ms and heartbeat_timeout_ms must be positive")
	}
	if c.Heartbeat.TimeoutMs <= c.Heartbeat.IntervalMs {
		return fmt.Errorf("heartbeat_timeout_ms must exceed heartbeat_interval_ms")
	}
	if c.Resume.WindowMs <= 0 {
		return fmt.Errorf("resume_window_ms must be positive")
	}
	if c.Proximity.DefaultDistance <= 0 || c.Proximity.MaxVoiceDistance <= 0 {
		return fmt.Errorf("proximity distances must be positive")
	}
	if c.Proximity.FadeStartRatio <= 0 || c.Proximity.FadeStartRatio > 1 {
		return fmt.Errorf("proximity_fade_start_ratio must be in (0, 1]")
	}
	if c.Proximity.RolloffFactor <= 0 {
		return fmt.Errorf("proximity_rolloff_factor must be positive")
	}
	if c.Group.MaxNameLength < 3 {
		return fmt.Errorf("max_group_name_length must be at least 3")
	}
	if c.Group.MinVolume < 0 || c.Group.MinVolume > 1 {
		return fmt.Errorf("group_min_volume must be in [0, 1]")
	}
	if c.Opus.DataChannelEnabled {
		if c.Opus.SampleRate <= 0 || c.Opus.Channels <= 0 || c.Opus.FrameDurationMs <= 0 {
			return fmt.Errorf("opus_sample_rate, opus_channels, and opus_frame_duration_ms must be positive when opus is enabled")
		}
	}
	if c.Broadcast.IntervalMs <= 0 {
		return fmt.Errorf("position_broadcast_interval_ms must be positive")
	}
	return nil
}

// GetLogLevel parses the configured logging level, defaulting to info for
// an empty or unrecognized value.
func (c *Config) GetLogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Logging.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// IsOriginAllowed reports whether origin is permitted by the allowlist.
func (c *Config) IsOriginAllowed(origin string) bool {
	for _, allowed := range c.Signaling.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
