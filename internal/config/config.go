package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Inbound update transports.
const (
	ModeWebhook = "webhook"
	ModePolling = "polling"
)

// Provider request body encodings.
const (
	EncodingMultipart = "multipart"
	EncodingJSON      = "json"
)

// Prompt selectors.
const (
	SelectorRandom = "random"
	SelectorBucket = "bucket"
)

// Config represents the complete application configuration
type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Provider   ProviderConfig   `yaml:"provider"`
	Generation GenerationConfig `yaml:"generation"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Delivery   DeliveryConfig   `yaml:"delivery"`
	Prompts    PromptsConfig    `yaml:"prompts"`
	Messages   MessagesConfig   `yaml:"messages"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment" env:"APP_ENV"`
}

// ServerConfig holds the webhook HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelegramConfig holds bot credentials and the inbound update transport
type TelegramConfig struct {
	BotToken    string `yaml:"bot_token" env:"BOT_TOKEN"`
	ChannelID   string `yaml:"channel_id" env:"CHANNEL_ID"`
	Mode        string `yaml:"mode" env:"TELEGRAM_MODE"`
	WebhookURL  string `yaml:"webhook_url" env:"WEBHOOK_URL"`
	APIBaseURL  string `yaml:"api_base_url" env:"TELEGRAM_API_BASE_URL"`
	PollTimeout int    `yaml:"poll_timeout"` // seconds, long polling only
	Debug       bool   `yaml:"debug" env:"TELEGRAM_DEBUG"`
}

// ProviderConfig holds the video generation provider endpoints and credentials
type ProviderConfig struct {
	APIKey            string        `yaml:"api_key" env:"GEMINI_KEY"`
	APIKeyHeader      string        `yaml:"api_key_header"`
	GenerateURL       string        `yaml:"generate_url" env:"PROVIDER_GENERATE_URL"`
	StatusURL         string        `yaml:"status_url" env:"PROVIDER_STATUS_URL"` // {id} is replaced with the job identifier
	StatusFallbackURL string        `yaml:"status_fallback_url" env:"PROVIDER_STATUS_FALLBACK_URL"`
	BodyEncoding      string        `yaml:"body_encoding"`
	SubmitTimeout     time.Duration `yaml:"submit_timeout"`
	StatusTimeout     time.Duration `yaml:"status_timeout"`
}

// GenerationConfig holds the fixed generation parameters and job bounds
type GenerationConfig struct {
	Model        string        `yaml:"model"`
	Resolution   string        `yaml:"resolution"`
	Duration     string        `yaml:"duration"`
	AspectRatio  string        `yaml:"aspect_ratio"`
	Type         string        `yaml:"type"`
	Language     string        `yaml:"language"`
	JobTimeout   time.Duration `yaml:"job_timeout" env:"JOB_TIMEOUT"`
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
}

// SchedulerConfig holds the background publishing loop settings
type SchedulerConfig struct {
	Enabled           bool          `yaml:"enabled" env:"SCHEDULER_ENABLED"`
	Interval          time.Duration `yaml:"interval" env:"SCHEDULER_INTERVAL"`
	CaptionPrefix     string        `yaml:"caption_prefix"`
	CaptionTimeFormat string        `yaml:"caption_time_format"`
}

// DeliveryConfig holds the fallback upload settings
type DeliveryConfig struct {
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	UploadTimeout   time.Duration `yaml:"upload_timeout"`
	TempDir         string        `yaml:"temp_dir"`
}

// PromptsConfig overrides the built-in prompt catalog
type PromptsConfig struct {
	Selector    string         `yaml:"selector"`
	Bucket      time.Duration  `yaml:"bucket"`
	Regions     []RegionConfig `yaml:"regions"`
	CameraHints []string       `yaml:"camera_hints"`
	Suffix      string         `yaml:"suffix"`
}

// RegionConfig is one weighted group of prompt templates
type RegionConfig struct {
	Name      string   `yaml:"name"`
	Weight    float64  `yaml:"weight"`
	Templates []string `yaml:"templates"`
}

// MessagesConfig holds the chat replies of the command surface
type MessagesConfig struct {
	Start               string `yaml:"start"`
	ChatID              string `yaml:"chat_id"` // {chat_id} is replaced with the chat id
	MakeVideoAccepted   string `yaml:"make_video_accepted"`
	MakeVideoDone       string `yaml:"make_video_done"`
	MakeVideoFailed     string `yaml:"make_video_failed"`
	ManualCaptionPrefix string `yaml:"manual_caption_prefix"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level" env:"LOG_LEVEL"`
	Format       string `yaml:"format" env:"LOG_FORMAT"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// Default returns the configuration used when no file overrides a value.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:        "skitcast",
			Version:     "0.1.0",
			Environment: "production",
		},
		Server: ServerConfig{
			Port:            10000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    20 * time.Minute, // manual generation blocks the webhook response
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Telegram: TelegramConfig{
			Mode:        ModeWebhook,
			APIBaseURL:  "https://api.telegram.org",
			PollTimeout: 60,
		},
		Provider: ProviderConfig{
			APIKeyHeader:      "x-api-key",
			GenerateURL:       "https://api.geminigen.ai/uapi/v1/video-gen/sora",
			StatusURL:         "https://api.geminigen.ai/uapi/v1/video-gen/sora/{id}",
			StatusFallbackURL: "https://api.geminigen.ai/uapi/v1/status",
			BodyEncoding:      EncodingMultipart,
			SubmitTimeout:     60 * time.Second,
			StatusTimeout:     30 * time.Second,
		},
		Generation: GenerationConfig{
			Model:        "sora-2",
			Resolution:   "small",
			Duration:     "10",
			AspectRatio:  "landscape",
			JobTimeout:   15 * time.Minute,
			PollInterval: 5 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:           true,
			Interval:          8 * time.Minute,
			CaptionPrefix:     "فاصل مضحك — ",
			CaptionTimeFormat: time.DateTime,
		},
		Delivery: DeliveryConfig{
			DownloadTimeout: 120 * time.Second,
			UploadTimeout:   180 * time.Second,
		},
		Prompts: PromptsConfig{
			Selector: SelectorRandom,
			Bucket:   time.Hour,
		},
		Messages: MessagesConfig{
			Start:               "مرحبًا! البوت يعمل وسيُنشيء فيديو مضحك كل 8 دقائق 🎬",
			ChatID:              "Chat ID: {chat_id}",
			MakeVideoAccepted:   "⏳ سيتم إنشاء فيديو الآن (يدوياً)...",
			MakeVideoDone:       "✅ تم الإنشاء والإرسال",
			MakeVideoFailed:     "❌ فشل إنشاء الفيديو. راجع السجلات.",
			ManualCaptionPrefix: "فاصل مولد يدوياً — ",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
	}
}

// Load reads the configuration file on top of Default
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// ApplyEnv overlays values set in the process environment. Unset variables
// leave the loaded value untouched. Prompts and messages are file-only.
func (c *Config) ApplyEnv() error {
	sections := []any{
		&c.App,
		&c.Server,
		&c.Telegram,
		&c.Provider,
		&c.Generation,
		&c.Scheduler,
		&c.Logging,
	}
	for _, section := range sections {
		if err := env.Parse(section); err != nil {
			return fmt.Errorf("failed to parse environment: %w", err)
		}
	}
	return nil
}

// Validate checks if the configuration is valid. Any error here is fatal at startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		return fmt.Errorf("telegram bot token is required (BOT_TOKEN)")
	}

	if strings.TrimSpace(c.Telegram.ChannelID) == "" {
		return fmt.Errorf("telegram channel id is required (CHANNEL_ID)")
	}

	if strings.TrimSpace(c.Provider.APIKey) == "" {
		return fmt.Errorf("provider api key is required (GEMINI_KEY)")
	}

	switch c.Telegram.Mode {
	case ModeWebhook:
		if strings.TrimSpace(c.Telegram.WebhookURL) == "" {
			return fmt.Errorf("webhook url is required in webhook mode (WEBHOOK_URL)")
		}
		if c.Server.Port < MinPort || c.Server.Port > MaxPort {
			return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
		}
	case ModePolling:
	default:
		return fmt.Errorf("unknown telegram mode: %q", c.Telegram.Mode)
	}

	if c.Provider.GenerateURL == "" || c.Provider.StatusURL == "" {
		return fmt.Errorf("provider generate_url and status_url are required")
	}

	if !strings.Contains(c.Provider.StatusURL, "{id}") {
		return fmt.Errorf("provider status_url must contain the {id} placeholder")
	}

	switch c.Provider.BodyEncoding {
	case EncodingMultipart, EncodingJSON:
	default:
		return fmt.Errorf("unknown provider body encoding: %q", c.Provider.BodyEncoding)
	}

	if c.Provider.SubmitTimeout <= 0 || c.Provider.StatusTimeout <= 0 {
		return fmt.Errorf("provider submit_timeout and status_timeout must be greater than 0")
	}

	if c.Generation.JobTimeout <= 0 {
		return fmt.Errorf("generation job_timeout must be greater than 0")
	}

	if c.Generation.PollInterval <= 0 {
		return fmt.Errorf("generation poll_interval must be greater than 0")
	}

	if c.Generation.PollInterval >= c.Generation.JobTimeout {
		return fmt.Errorf("generation poll_interval must be shorter than job_timeout")
	}

	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be greater than 0")
	}

	if c.Delivery.DownloadTimeout <= 0 || c.Delivery.UploadTimeout <= 0 {
		return fmt.Errorf("delivery download_timeout and upload_timeout must be greater than 0")
	}

	switch c.Prompts.Selector {
	case SelectorRandom:
	case SelectorBucket:
		if c.Prompts.Bucket <= 0 {
			return fmt.Errorf("prompts bucket must be greater than 0 for the bucket selector")
		}
	default:
		return fmt.Errorf("unknown prompt selector: %q", c.Prompts.Selector)
	}

	for _, r := range c.Prompts.Regions {
		if r.Weight <= 0 || len(r.Templates) == 0 {
			return fmt.Errorf("prompt region %q needs a positive weight and at least one template", r.Name)
		}
	}

	return nil
}
