package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the assistant.
type Config struct {
	General GeneralConfig `mapstructure:"general"`
	Server  ServerConfig  `mapstructure:"server"`
	Relay   RelayConfig   `mapstructure:"relay"`
	Storage StorageConfig `mapstructure:"storage"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Session SessionConfig `mapstructure:"session"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains web UI server settings.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// RelayConfig contains the query relay service settings. Address is where the
// relay service listens; BaseURL is where the UI client posts queries.
type RelayConfig struct {
	Address string `mapstructure:"address"`
	BaseURL string `mapstructure:"base_url"`
}

// StorageConfig contains persistence settings.
type StorageConfig struct {
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// SQLiteConfig points at the database file shared by the UI and the relay.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// LLMConfig selects and configures the language model provider.
type LLMConfig struct {
	Provider string                 `mapstructure:"provider"` // gemini or ollama
	Gemini   GeminiProviderConfig   `mapstructure:"gemini"`
	Ollama   OllamaProviderConfig   `mapstructure:"ollama"`
}

// GeminiProviderConfig configures the hosted Gemini provider.
type GeminiProviderConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// OllamaProviderConfig configures the local Ollama provider.
type OllamaProviderConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	NumCtx       int           `mapstructure:"num_ctx"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// AgentConfig bounds a single browser agent run.
type AgentConfig struct {
	MaxSteps          int           `mapstructure:"max_steps"`
	MaxActionsPerStep int           `mapstructure:"max_actions_per_step"`
	BrowserTimeout    time.Duration `mapstructure:"browser_timeout"`
	MaxChars          int           `mapstructure:"max_chars"`
}

func (a AgentConfig) Validate() error {
	if a.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be > 0")
	}
	if a.MaxActionsPerStep <= 0 {
		return fmt.Errorf("agent.max_actions_per_step must be > 0")
	}
	return nil
}

// SessionConfig configures chat session storage.
type SessionConfig struct {
	Store string        `mapstructure:"store"` // inmemory or redis
	TTL   time.Duration `mapstructure:"ttl"`
	Redis RedisConfig   `mapstructure:"redis"`
}

// RedisConfig is used when session.store is redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (s SessionConfig) Validate() error {
	switch s.Store {
	case "", "inmemory":
		return nil
	case "redis":
		if s.Redis.Addr == "" {
			return fmt.Errorf("session.redis.addr required when session.store is redis")
		}
		return nil
	default:
		return fmt.Errorf("unsupported session store: %s", s.Store)
	}
}

// LoadConfig reads configuration from the given file, or searches the usual
// locations when path is empty. Environment variables with the MEDICINEDB_
// prefix override file values.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("relay.address", ":8000")
	viper.SetDefault("relay.base_url", "http://127.0.0.1:8000")
	viper.SetDefault("storage.sqlite.path", "medicine.db")
	viper.SetDefault("llm.provider", "gemini")
	viper.SetDefault("llm.gemini.model", "gemini-2.0-flash-exp")
	viper.SetDefault("llm.gemini.temperature", 0.2)
	viper.SetDefault("llm.gemini.timeout", 60*time.Second)
	viper.SetDefault("llm.ollama.base_url", "http://localhost:11434")
	viper.SetDefault("llm.ollama.model", "llama3")
	viper.SetDefault("llm.ollama.num_ctx", 32000)
	viper.SetDefault("llm.ollama.timeout", 120*time.Second)
	viper.SetDefault("llm.ollama.probe_timeout", 2*time.Second)
	viper.SetDefault("agent.max_steps", 50)
	viper.SetDefault("agent.max_actions_per_step", 5)
	viper.SetDefault("agent.browser_timeout", 30*time.Second)
	viper.SetDefault("agent.max_chars", 20000)
	viper.SetDefault("session.store", "inmemory")
	viper.SetDefault("session.ttl", 2*time.Hour)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("MEDICINEDB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing config file is fine; defaults plus env cover everything.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.Agent.Validate(); err != nil {
		panic(err)
	}
	if err := config.Session.Validate(); err != nil {
		panic(err)
	}

	// API key can come from the conventional env var as well.
	if config.LLM.Gemini.APIKey == "" {
		config.LLM.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	return &config
}
