package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/auramd-consensus-server/internal/domain"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	// Set configuration file name and paths
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/auramd-consensus-server/")

	// Set environment variable prefix and enable automatic env binding
	viper.SetEnvPrefix("AURAMD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set default values
	m.setDefaults()

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal configuration into struct
	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// Database defaults
	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "auramd")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.migrations_path", "migrations")

	// Review store defaults
	viper.SetDefault("review.backend", "sqlite")
	viper.SetDefault("review.sqlite_path", "data/reviews.db")

	// Opinion source defaults
	viper.SetDefault("sources.timeout", "45s")
	viper.SetDefault("sources.openai.enabled", true)
	viper.SetDefault("sources.openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("sources.openai.model", "gpt-4")
	viper.SetDefault("sources.openai.timeout", "40s")
	viper.SetDefault("sources.openai.rate_limit", 3)
	viper.SetDefault("sources.anthropic.enabled", true)
	viper.SetDefault("sources.anthropic.base_url", "https://api.anthropic.com")
	viper.SetDefault("sources.anthropic.model", "claude-3-sonnet-20240229")
	viper.SetDefault("sources.anthropic.timeout", "40s")
	viper.SetDefault("sources.anthropic.rate_limit", 3)
	viper.SetDefault("sources.gemini.enabled", false)
	viper.SetDefault("sources.gemini.model", "gemini-1.5-pro")
	viper.SetDefault("sources.gemini.timeout", "40s")
	viper.SetDefault("sources.gemini.rate_limit", 3)

	// Consensus engine defaults
	viper.SetDefault("engine.max_differential_diagnoses", 10)
	viper.SetDefault("engine.agreement_threshold", 0.2)
	viper.SetDefault("engine.agreement_bonus", 0.1)
	viper.SetDefault("engine.single_source_penalty", 0.8)

	// Cache defaults
	viper.SetDefault("cache.enabled", false)
	viper.SetDefault("cache.redis_url", "redis://localhost:6379")
	viper.SetDefault("cache.default_ttl", "1h")
	viper.SetDefault("cache.max_retries", 3)
	viper.SetDefault("cache.pool_size", 10)
	viper.SetDefault("cache.pool_timeout", "4s")
	viper.SetDefault("cache.result_lru", 256)
	viper.SetDefault("cache.result_ttl", "10m")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetEngineConfig returns consensus engine tuning configuration
func (m *Manager) GetEngineConfig() *domain.EngineConfig {
	return &m.config.Engine
}

// GetSourcesConfig returns opinion source configuration
func (m *Manager) GetSourcesConfig() *domain.SourcesConfig {
	return &m.config.Sources
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration. Engine tunables are checked here so
// a misconfigured deployment fails at startup rather than producing skewed
// confidence scores.
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if err := config.Engine.Validate(); err != nil {
		return err
	}

	if config.Sources.Timeout <= 0 {
		return &domain.ConfigurationError{Field: "sources.timeout", Message: "must be positive"}
	}

	switch config.Review.Backend {
	case "sqlite":
	case "postgres":
		if !config.Database.Enabled {
			return &domain.ConfigurationError{Field: "review.backend", Message: "postgres backend requires database.enabled"}
		}
	default:
		return &domain.ConfigurationError{Field: "review.backend", Message: "must be sqlite or postgres"}
	}

	return nil
}
