package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config.yaml"

type Config struct {
	Log          Log          `yaml:"log"`
	Server       Server       `yaml:"server"`
	LLM          LLM          `yaml:"llm"`
	Date         Date         `yaml:"date"`
	Booking      Booking      `yaml:"booking"`
	Profile      Profile      `yaml:"profile"`
	Catalog      Catalog      `yaml:"catalog"`
	Session      Session      `yaml:"session"`
	BookingStore BookingStore `yaml:"bookingstore"`
	MCP          MCP          `yaml:"mcp"`
}

type Server struct {
	// Address of the assistant HTTP API
	Listen string `yaml:"listen" example:":8080" validate:"required"`
}

type LLM struct {
	// OpenAI-compatible base url
	BaseURL string `yaml:"base_url" example:"https://openrouter.ai/api/v1" validate:"required"`
	// API token
	Token string `yaml:"token" example:"sk-proj-abc123456789DEF789ghi012JKL345mno678PQR901stu234VWX" validate:"required"`
	// Model name
	Model string `yaml:"model" example:"deepseek/deepseek-chat-v3-0324:free" validate:"required"`
	// Sampling temperature
	Temperature float64 `yaml:"temperature" example:"0.2" validate:"gte=0,lte=2"`
	// Register tools with the model; when false only plain text generation is used
	ToolsEnabled *bool `yaml:"tools_enabled" example:"true"`
	// Upper bound of tool call rounds per turn
	MaxToolSteps int `yaml:"max_tool_steps" example:"5" validate:"gte=1,lte=20"`
	// Request timeout
	Timeout time.Duration `yaml:"timeout" example:"30s" validate:"gt=0"`
}

type Date struct {
	// Minimum confidence of the date extraction prompt
	MinConfidence float64 `yaml:"min_confidence" example:"0.6" validate:"gte=0,lte=1"`
}

type Booking struct {
	// Base url of the booking store
	BaseURL string `yaml:"base_url" example:"http://localhost:18081/api" validate:"required,url"`
	// Per-attempt timeout
	Timeout time.Duration `yaml:"timeout" example:"5s" validate:"gte=1s"`
	// Extra attempts after the first one
	Retries *int `yaml:"retries" example:"2" validate:"omitnil,gte=0,lte=10"`
	// Delay between attempts
	RetryDelay time.Duration `yaml:"retry_delay" example:"100ms" validate:"gte=0"`
	// Consecutive failures that open the circuit
	FailureThreshold int `yaml:"failure_threshold" example:"3" validate:"gte=1"`
	// How long the circuit stays open
	OpenDuration time.Duration `yaml:"open_duration" example:"10s" validate:"gt=0"`
}

type Profile struct {
	// Base url of the profile service; retries and the breaker follow the booking settings
	BaseURL string `yaml:"base_url" example:"http://localhost:18081/api" validate:"required,url"`
}

type Catalog struct {
	// Optional CSV dataset, the embedded one is used when empty
	DatasetPath string `yaml:"dataset_path" example:"data/flights.csv"`
	// Number of generated capital-to-capital flights
	SyntheticCount *int `yaml:"synthetic_count" example:"500"`
	// First date of generated flights, defaults to the load day
	SyntheticBaseDate string `yaml:"synthetic_base_date" example:"2025-12-20" validate:"omitempty,datetime=2006-01-02"`
	// Generated flights of routes absent from the dataset kept for trip id lookups
	GeneratedCacheSize int `yaml:"generated_cache_size" example:"10000" validate:"gte=0"`
	// IANA zone used for "today" and timestamps
	Timezone string `yaml:"timezone" example:"Europe/Berlin"`
}

type Session struct {
	// Number of turns kept per session
	HistorySize int `yaml:"history_size" example:"20" validate:"gte=1"`
}

type BookingStore struct {
	// Run the in-memory booking store in-process on this address; disabled when empty
	Listen string `yaml:"listen" example:":18081"`
}

type MCP struct {
	// Expose catalog tools over MCP at /mcp
	Enabled bool `yaml:"enabled" example:"false"`
}

type Log struct {
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var result Config

	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, oops.Errorf("failed to parse YAML config: %w", err)
	}

	applyDefaults(&result)

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}

	if cfg.LLM.ToolsEnabled == nil {
		enabled := true
		cfg.LLM.ToolsEnabled = &enabled
	}
	if cfg.LLM.MaxToolSteps == 0 {
		cfg.LLM.MaxToolSteps = 5
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 30 * time.Second
	}

	if cfg.Date.MinConfidence == 0 {
		cfg.Date.MinConfidence = 0.6
	}

	if cfg.Booking.BaseURL == "" {
		cfg.Booking.BaseURL = "http://localhost:18081/api"
	}
	if cfg.Booking.Timeout == 0 {
		cfg.Booking.Timeout = 5 * time.Second
	}
	if cfg.Booking.Retries == nil {
		retries := 2
		cfg.Booking.Retries = &retries
	}
	if cfg.Booking.RetryDelay == 0 {
		cfg.Booking.RetryDelay = 100 * time.Millisecond
	}
	if cfg.Booking.FailureThreshold == 0 {
		cfg.Booking.FailureThreshold = 3
	}
	if cfg.Booking.OpenDuration == 0 {
		cfg.Booking.OpenDuration = 10 * time.Second
	}

	if cfg.Profile.BaseURL == "" {
		cfg.Profile.BaseURL = cfg.Booking.BaseURL
	}

	if cfg.Catalog.GeneratedCacheSize == 0 {
		cfg.Catalog.GeneratedCacheSize = 10000
	}
	if cfg.Catalog.SyntheticCount == nil {
		count := 500
		cfg.Catalog.SyntheticCount = &count
	}
	if cfg.Catalog.Timezone == "" {
		cfg.Catalog.Timezone = "Local"
	}

	if cfg.Session.HistorySize == 0 {
		cfg.Session.HistorySize = 20
	}
}
