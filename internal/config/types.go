// Package config loads, defaults and validates the Nexa configuration.
// Values come from built-in defaults, an optional YAML file and NEXA_*
// environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"time"
)

// ErrValidation is returned (wrapped) when the loaded configuration is invalid.
var ErrValidation = errors.New("validation error")

// Config is the root configuration shared by every nexa process.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	AI        AIConfig        `mapstructure:"ai"`
	Linking   LinkingConfig   `mapstructure:"linking"`
	Personal  PersonalConfig  `mapstructure:"personal"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"  validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// JSON reports whether log records should be emitted as JSON.
func (c LoggerConfig) JSON() bool {
	return c.Format == "json"
}

// HTTPConfig configures the backend API server.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"             validate:"required"`
	AdminToken      string        `mapstructure:"admin_token"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"min=1s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"min=1s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s"`
}

type DatabaseConfig struct {
	// DSN selects the driver: sqlite://path or postgres://...
	DSN          string `mapstructure:"dsn"            validate:"required"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"min=1"`
}

// QueueConfig configures the dispatch broker.
type QueueConfig struct {
	Driver        string        `mapstructure:"driver"         validate:"oneof=redis memory"`
	URL           string        `mapstructure:"url"            validate:"required_if=Driver redis"`
	Name          string        `mapstructure:"name"           validate:"required"`
	PopTimeout    time.Duration `mapstructure:"pop_timeout"    validate:"min=100ms"`
	MaxDeliveries int           `mapstructure:"max_deliveries" validate:"min=1,max=100"`
}

type WorkerConfig struct {
	Concurrency int  `mapstructure:"concurrency" validate:"min=1,max=256"`
	Embedded    bool `mapstructure:"embedded"`
}

// TelegramConfig configures the Bot API integration.
type TelegramConfig struct {
	BotToken      string  `mapstructure:"bot_token"`
	WebhookURL    string  `mapstructure:"webhook_url"    validate:"omitempty,url"`
	WebhookSecret string  `mapstructure:"webhook_secret"`
	SendRate      float64 `mapstructure:"send_rate"      validate:"gt=0"`
}

// AIConfig configures the reply suggestion provider and its retry policy.
type AIConfig struct {
	Provider      string        `mapstructure:"provider"       validate:"oneof=openai gemini"`
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"       validate:"omitempty,url"`
	Model         string        `mapstructure:"model"`
	Fallbacks     []string      `mapstructure:"fallbacks"`
	Attempts      int           `mapstructure:"attempts"       validate:"min=1,max=10"`
	Backoff       time.Duration `mapstructure:"backoff"        validate:"min=0"`
	Jitter        time.Duration `mapstructure:"jitter"         validate:"min=0"`
	Timeout       time.Duration `mapstructure:"timeout"        validate:"min=1s,max=10m"`
	MaxTokens     int           `mapstructure:"max_tokens"     validate:"min=1"`
	MaxCandidates int           `mapstructure:"max_candidates" validate:"min=0"`
}

// LinkingConfig configures verification code issuance and bot messages.
type LinkingConfig struct {
	CodeLength   int           `mapstructure:"code_length"  validate:"min=4,max=32"`
	CodeTTL      time.Duration `mapstructure:"code_ttl"     validate:"min=1m"`
	Instructions string        `mapstructure:"instructions" validate:"required"`
	Confirmation string        `mapstructure:"confirmation" validate:"required"`
}

// PersonalConfig configures the personal-account listener and the backend's
// client for it.
type PersonalConfig struct {
	APIID          int           `mapstructure:"api_id"`
	APIHash        string        `mapstructure:"api_hash"`
	Phone          string        `mapstructure:"phone"`
	Password       string        `mapstructure:"password"`
	SessionPath    string        `mapstructure:"session_path"`
	BackendWebhook string        `mapstructure:"backend_webhook" validate:"omitempty,url"`
	BackendSecret  string        `mapstructure:"backend_secret"`
	HTTPAddr       string        `mapstructure:"http_addr"`
	Secret         string        `mapstructure:"secret"`
	ListenerURL    string        `mapstructure:"listener_url"    validate:"omitempty,url"`
	ForwardTimeout time.Duration `mapstructure:"forward_timeout" validate:"min=1s"`
	ForwardStep    time.Duration `mapstructure:"forward_step"    validate:"min=0"`
	ForwardTries   int           `mapstructure:"forward_tries"   validate:"min=1,max=10"`
	QueueSize      int           `mapstructure:"queue_size"      validate:"min=1"`
}

// SchedulerConfig holds scheduled task settings keyed by task name.
type SchedulerConfig struct {
	RedispatchAfter time.Duration         `mapstructure:"redispatch_after" validate:"min=1s"`
	RedispatchBatch int                   `mapstructure:"redispatch_batch" validate:"min=1"`
	Tasks           map[string]TaskConfig `mapstructure:"tasks"`
}

type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}
