package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	AI       AIConfig       `mapstructure:"ai"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Email    EmailConfig    `mapstructure:"email"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	BaseURL      string        `mapstructure:"base_url"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// AuthConfig holds JWT configuration
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// AIConfig selects the extraction/chat provider and its credentials.
// Provider is one of: openai, claude, gemini.
type AIConfig struct {
	Provider string         `mapstructure:"provider"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	OpenAI   ProviderConfig `mapstructure:"openai"`
	Claude   ProviderConfig `mapstructure:"claude"`
	Gemini   ProviderConfig `mapstructure:"gemini"`
}

// ProviderConfig holds per-provider API credentials
type ProviderConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// StorageConfig holds document storage configuration
type StorageConfig struct {
	BaseDir       string        `mapstructure:"base_dir"`
	SigningSecret string        `mapstructure:"signing_secret"`
	URLTTL        time.Duration `mapstructure:"url_ttl"`
}

// EmailConfig holds SMTP notification configuration. An empty host
// disables outbound email (notifications are logged instead).
type EmailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	AppURL   string `mapstructure:"app_url"`
}

// WorkerConfig holds background worker configuration
type WorkerConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	BatchSize      int           `mapstructure:"batch_size"`
	Concurrency    int           `mapstructure:"concurrency"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout"`
	RecurringAt    string        `mapstructure:"recurring_at"` // HH:MM, UTC
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.base_url", "http://localhost:8080")

	viper.SetDefault("database.path", "data/invoiceai.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	viper.SetDefault("auth.token_ttl", 24*time.Hour)

	viper.SetDefault("ai.provider", "openai")
	viper.SetDefault("ai.timeout", 90*time.Second)
	viper.SetDefault("ai.openai.model", "gpt-4o")
	viper.SetDefault("ai.claude.model", "claude-sonnet-4-20250514")
	viper.SetDefault("ai.gemini.model", "gemini-2.0-flash")

	viper.SetDefault("storage.base_dir", "data/files")
	viper.SetDefault("storage.url_ttl", 15*time.Minute)

	viper.SetDefault("email.smtp_port", 587)
	viper.SetDefault("email.from", "InvoiceAI <noreply@invoiceai.app>")
	viper.SetDefault("email.app_url", "http://localhost:3000")

	viper.SetDefault("worker.poll_interval", 5*time.Second)
	viper.SetDefault("worker.batch_size", 5)
	viper.SetDefault("worker.concurrency", 3)
	viper.SetDefault("worker.process_timeout", 120*time.Second)
	viper.SetDefault("worker.recurring_at", "01:00")

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	viper.BindEnv("auth.jwt_secret", "JWT_SECRET")
	viper.BindEnv("ai.provider", "AI_PROVIDER")
	viper.BindEnv("ai.openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("ai.claude.api_key", "ANTHROPIC_API_KEY")
	viper.BindEnv("ai.gemini.api_key", "GEMINI_API_KEY")
	viper.BindEnv("storage.signing_secret", "STORAGE_SIGNING_SECRET")
	viper.BindEnv("email.smtp_host", "SMTP_HOST")
	viper.BindEnv("email.username", "SMTP_USERNAME")
	viper.BindEnv("email.password", "SMTP_PASSWORD")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Storage.SigningSecret == "" {
		return fmt.Errorf("storage.signing_secret is required")
	}

	switch c.AI.Provider {
	case "openai":
		if c.AI.OpenAI.APIKey == "" {
			return fmt.Errorf("ai.openai.api_key is required")
		}
	case "claude":
		if c.AI.Claude.APIKey == "" {
			return fmt.Errorf("ai.claude.api_key is required")
		}
	case "gemini":
		if c.AI.Gemini.APIKey == "" {
			return fmt.Errorf("ai.gemini.api_key is required")
		}
	default:
		return fmt.Errorf("unknown ai.provider: %s", c.AI.Provider)
	}

	return nil
}
