package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"

	"github.com/C23038/URITOMO-Frontend/internal/model/meeting"
	"github.com/C23038/URITOMO-Frontend/internal/service/language"
)

var validate = validator.New()

// Config aggregates every setting of the client.
type Config struct {
	API      APIConfig
	Socket   SocketConfig
	Session  SessionConfig
	Server   ServerConfig
	Archive  ArchiveConfig
	LogLevel string `env:"LOG_LEVEL" envDefault:"INFO" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
}

// APIConfig describes the backend REST API.
type APIConfig struct {
	BaseURL          string        `env:"API_BASE_URL" validate:"required,url"`
	Token            string        `env:"API_TOKEN"`
	BootstrapTimeout time.Duration `env:"BOOTSTRAP_TIMEOUT" envDefault:"10s" validate:"gt=0"`
}

// SocketConfig describes the live websocket.
type SocketConfig struct {
	BaseURL            string        `env:"WS_BASE_URL" validate:"required,url"`
	Path               string        `env:"WS_PATH" envDefault:"/meeting/ws/{session}"`
	ConnectTimeout     time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	PingInterval       time.Duration `env:"PING_INTERVAL" envDefault:"30s" validate:"gte=0"`
	ReadTimeout        time.Duration `env:"READ_TIMEOUT" envDefault:"60s" validate:"gte=0"`
	WriteTimeout       time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s" validate:"gte=0"`
	ReconnectEnabled   bool          `env:"RECONNECT_ENABLED" envDefault:"true"`
	ReconnectRetries   int           `env:"RECONNECT_MAX_RETRIES" envDefault:"5" validate:"gte=1"`
	ReconnectBaseDelay time.Duration `env:"RECONNECT_BASE_DELAY" envDefault:"1s" validate:"gt=0"`
	StableAfter        time.Duration `env:"RECONNECT_STABLE_AFTER" envDefault:"30s" validate:"gt=0"`
	ChatSendType       string        `env:"CHAT_SEND_TYPE" envDefault:"chat" validate:"required"`
}

// SessionConfig describes how the meeting is joined.
type SessionConfig struct {
	Mode      meeting.Mode `env:"SESSION_MODE" envDefault:"exchange" validate:"oneof=exchange direct"`
	UserName  string       `env:"USER_NAME"`
	LangHint  string       `env:"LANG_HINT" envDefault:"auto"`
	DedupeIDs bool         `env:"DEDUPE_CHAT" envDefault:"true"`
}

// ServerConfig describes the local HTTP API.
type ServerConfig struct {
	Addr string
}

type ArchiveConfig struct {
	Path string `env:"ARCHIVE_PATH"`
}

// Enabled reports whether a transcript archive was configured.
func (c ArchiveConfig) Enabled() bool {
	return strings.TrimSpace(c.Path) != ""
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}
	cfg.Server = server

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and the language hint.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	resolver, err := language.NewResolver(c.Session.LangHint)
	if err != nil {
		return fmt.Errorf("invalid LANG_HINT: %w", err)
	}
	c.Session.LangHint = resolver.Hint()
	c.LogLevel = strings.ToUpper(c.LogLevel)
	return nil
}

// loadServerConfig resolves the local API address. LOCAL_ADDR wins over PORT.
func loadServerConfig() (ServerConfig, error) {
	if addr := strings.TrimSpace(os.Getenv("LOCAL_ADDR")); addr != "" {
		return normaliseAddr(addr, "LOCAL_ADDR")
	}
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		return ServerConfig{Addr: "127.0.0.1:8090"}, nil
	}
	return normaliseAddr(port, "PORT")
}

func normaliseAddr(value, key string) (ServerConfig, error) {
	if strings.Contains(value, " ") {
		return ServerConfig{}, fmt.Errorf("invalid %s value: %q", key, value)
	}
	if strings.Contains(value, ":") {
		// ":8090" and "127.0.0.1:8090" are used as given
		return ServerConfig{Addr: value}, nil
	}
	return ServerConfig{Addr: ":" + value}, nil
}
