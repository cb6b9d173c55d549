package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath         = "config.toml"
	DefaultHTTPAddr           = ":8080"
	DefaultPGHost             = "127.0.0.1"
	DefaultPGPort             = 5432
	DefaultPGUser             = "postgres"
	DefaultPGDatabase         = "zapdesk"
	DefaultPGSSLMode          = "disable"
	DefaultGatewayBaseURL     = "http://127.0.0.1:8088"
	DefaultGatewayTimeout     = 30
	DefaultCountryCode        = "55"
	DefaultAudioTargetKB      = 500
	DefaultVideoTargetMB      = 15
	DefaultFFmpegPath         = "ffmpeg"
	DefaultReconcileInterval  = "1m"
	DefaultRestartPollSeconds = 3
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Delivery DeliveryConfig `toml:"delivery"`
	Media    MediaConfig    `toml:"media"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// GatewayConfig describes the default Evolution API endpoint. Per-channel
// instance mappings can override base URL and API key individually.
type GatewayConfig struct {
	BaseURL        string `toml:"base_url"`
	WSBaseURL      string `toml:"ws_base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout returns the HTTP client timeout for gateway calls.
func (c GatewayConfig) Timeout() time.Duration {
	seconds := c.TimeoutSeconds
	if seconds <= 0 {
		seconds = DefaultGatewayTimeout
	}
	return time.Duration(seconds) * time.Second
}

// DeliveryConfig tunes outbound message delivery behavior.
type DeliveryConfig struct {
	DefaultCountryCode string `toml:"default_country_code"`
	RestartPollSeconds int    `toml:"restart_poll_seconds"`
	ReconcileInterval  string `toml:"reconcile_interval"`
}

// RestartPollDelay returns how long to wait before re-checking connection
// state after an instance restart.
func (c DeliveryConfig) RestartPollDelay() time.Duration {
	seconds := c.RestartPollSeconds
	if seconds <= 0 {
		seconds = DefaultRestartPollSeconds
	}
	return time.Duration(seconds) * time.Second
}

// MediaConfig tunes the media normalization pipeline.
type MediaConfig struct {
	AudioTargetKB int     `toml:"audio_target_kb"`
	VideoTargetMB int     `toml:"video_target_mb"`
	Quality       float64 `toml:"quality"`
	FFmpegPath    string  `toml:"ffmpeg_path"`
}

// Load reads the TOML file at path. An empty path falls back to the
// CONFIG_PATH environment variable and then to config.toml; a file that does
// not exist yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Gateway: GatewayConfig{
			BaseURL:        DefaultGatewayBaseURL,
			TimeoutSeconds: DefaultGatewayTimeout,
		},
		Delivery: DeliveryConfig{
			DefaultCountryCode: DefaultCountryCode,
			RestartPollSeconds: DefaultRestartPollSeconds,
			ReconcileInterval:  DefaultReconcileInterval,
		},
		Media: MediaConfig{
			AudioTargetKB: DefaultAudioTargetKB,
			VideoTargetMB: DefaultVideoTargetMB,
			Quality:       0.7,
			FFmpegPath:    DefaultFFmpegPath,
		},
	}

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
