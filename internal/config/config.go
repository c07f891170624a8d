package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	OpenRouter OpenRouterConfig `mapstructure:"openrouter"`
	Gamma      GammaConfig      `mapstructure:"gamma"`
	Research   ResearchConfig   `mapstructure:"research"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite or postgres
	Path            string        `mapstructure:"path"`   // sqlite file path
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

type OpenRouterConfig struct {
	APIKey           string        `mapstructure:"api_key"`
	BaseURL          string        `mapstructure:"base_url"`
	AnalysisModel    string        `mapstructure:"analysis_model"`
	ExtractionModel  string        `mapstructure:"extraction_model"`
	MaxTokens        int           `mapstructure:"max_tokens"`
	Timeout          time.Duration `mapstructure:"timeout"`
	Retries          int           `mapstructure:"retries"`
	BackoffBase      float64       `mapstructure:"backoff_base"`
	MaxSearchResults int           `mapstructure:"max_search_results"`
}

type GammaConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ResearchConfig struct {
	Workers             int           `mapstructure:"workers"`
	MaxIterations       int           `mapstructure:"max_iterations"`
	QueriesPerIteration int           `mapstructure:"queries_per_iteration"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	ReprocessWindow     time.Duration `mapstructure:"reprocess_window"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/research.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openrouter.analysis_model", "perplexity/sonar")
	v.SetDefault("openrouter.extraction_model", "google/gemini-2.5-flash")
	v.SetDefault("openrouter.max_tokens", 8000)
	v.SetDefault("openrouter.timeout", 180*time.Second)
	v.SetDefault("openrouter.retries", 3)
	v.SetDefault("openrouter.backoff_base", 1.7)
	v.SetDefault("openrouter.max_search_results", 5)
	v.SetDefault("gamma.base_url", "https://gamma-api.polymarket.com")
	v.SetDefault("gamma.timeout", 30*time.Second)
	v.SetDefault("research.workers", 2)
	v.SetDefault("research.max_iterations", 3)
	v.SetDefault("research.queries_per_iteration", 3)
	v.SetDefault("research.poll_interval", 3*time.Second)
	v.SetDefault("research.reprocess_window", 7*24*time.Hour)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("openrouter.api_key", "OPENROUTER_API_KEY")
	v.BindEnv("openrouter.base_url", "OPENROUTER_BASE_URL")
	v.BindEnv("openrouter.analysis_model", "ANALYSIS_MODEL")
	v.BindEnv("openrouter.extraction_model", "EXTRACTION_MODEL")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.name", "DB_NAME")
	v.BindEnv("gamma.base_url", "GAMMA_BASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
