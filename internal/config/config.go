package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Chat      ChatConfig      `yaml:"chat" mapstructure:"chat"`
	Spots     SpotsConfig     `yaml:"spots" mapstructure:"spots"`
	RateLimit RateLimitConfig `yaml:"ratelimit" mapstructure:"ratelimit"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Upload    UploadConfig    `yaml:"upload" mapstructure:"upload"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key              string `yaml:"key" mapstructure:"key"`
	ChatModel        string `yaml:"chat_model" mapstructure:"chat_model"`
	ExtractModel     string `yaml:"extract_model" mapstructure:"extract_model"`
	SpecModel        string `yaml:"spec_model" mapstructure:"spec_model"`
	ChatMaxTokens    int64  `yaml:"chat_max_tokens" mapstructure:"chat_max_tokens"`
	ExtractMaxTokens int64  `yaml:"extract_max_tokens" mapstructure:"extract_max_tokens"`
	SpecMaxTokens    int64  `yaml:"spec_max_tokens" mapstructure:"spec_max_tokens"`
}

// ChatConfig configures the conversational intake funnel.
type ChatConfig struct {
	Greeting      string `yaml:"greeting" mapstructure:"greeting"`
	MaxTranscript int    `yaml:"max_transcript" mapstructure:"max_transcript"`
}

// SpotsConfig configures the capacity counters.
type SpotsConfig struct {
	DailyTotal   int `yaml:"daily_total" mapstructure:"daily_total"`
	MonthlyTotal int `yaml:"monthly_total" mapstructure:"monthly_total"`
}

// RateLimitConfig configures the per-identity request guard.
type RateLimitConfig struct {
	WindowSecs     int    `yaml:"window_secs" mapstructure:"window_secs"`
	MaxRequests    int    `yaml:"max_requests" mapstructure:"max_requests"`
	RapidGapMillis int    `yaml:"rapid_gap_millis" mapstructure:"rapid_gap_millis"`
	RapidThreshold int    `yaml:"rapid_threshold" mapstructure:"rapid_threshold"`
	BanHours       int    `yaml:"ban_hours" mapstructure:"ban_hours"`
	RedisAddr      string `yaml:"redis_addr" mapstructure:"redis_addr"`
}

// NotionConfig holds the optional Notion lead-delivery settings.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// UploadConfig configures the MVP brief upload collaborator.
type UploadConfig struct {
	Bucket       string   `yaml:"bucket" mapstructure:"bucket"`
	MaxSizeBytes int64    `yaml:"max_size_bytes" mapstructure:"max_size_bytes"`
	AllowedExts  []string `yaml:"allowed_exts" mapstructure:"allowed_exts"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Secrets default to empty so AutomaticEnv can see the
	// INTAKE_* variables without explicit BindEnv calls.
	v.SetDefault("anthropic.key", "")
	v.SetDefault("store.database_url", "")
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.lead_db", "")
	v.SetDefault("upload.bucket", "")
	v.SetDefault("ratelimit.redis_addr", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("anthropic.chat_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.extract_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.spec_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.chat_max_tokens", 1024)
	v.SetDefault("anthropic.extract_max_tokens", 1024)
	v.SetDefault("anthropic.spec_max_tokens", 8192)
	v.SetDefault("chat.greeting", "Hey! I'm here to help scope your product idea. What's your name?")
	v.SetDefault("chat.max_transcript", 60)
	v.SetDefault("spots.daily_total", 10)
	v.SetDefault("spots.monthly_total", 5)
	v.SetDefault("ratelimit.window_secs", 60)
	v.SetDefault("ratelimit.max_requests", 20)
	v.SetDefault("ratelimit.rapid_gap_millis", 500)
	v.SetDefault("ratelimit.rapid_threshold", 10)
	v.SetDefault("ratelimit.ban_hours", 24)
	v.SetDefault("upload.max_size_bytes", 10<<20)
	v.SetDefault("upload.allowed_exts", []string{".pdf", ".doc", ".docx", ".txt", ".md", ".png", ".jpg", ".jpeg"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that required settings for a command are present.
func (c *Config) Validate(subsystem string) error {
	switch subsystem {
	case "serve":
		if c.Anthropic.Key == "" {
			return eris.New("config: anthropic.key is required (INTAKE_ANTHROPIC_KEY)")
		}
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required for the postgres driver")
		}
	case "store":
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required for the postgres driver")
		}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
