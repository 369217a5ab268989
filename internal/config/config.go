package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/onfert/analyst/internal/errors"
)

// ErrMissingAPIKey is returned when no provider credential is configured.
var ErrMissingAPIKey = errors.New(errors.CategoryConfiguration, "config",
	"API_KEY não configurada: defina a variável de ambiente API_KEY antes de iniciar", nil)

// Config holds all application configuration
type Config struct {
	Debug  bool         `mapstructure:"debug"`
	Server ServerConfig `mapstructure:"server"`
	ML     MLConfig     `mapstructure:"ml"`
	Live   LiveConfig   `mapstructure:"live"`
	MQTT   MQTTConfig   `mapstructure:"mqtt"`
	Sentry SentryConfig `mapstructure:"sentry"`
}

type ServerConfig struct {
	Port      string `mapstructure:"port"`
	StaticDir string `mapstructure:"static_dir"`
}

// MLConfig selects and configures the recommendation provider.
type MLConfig struct {
	Provider      string `mapstructure:"provider"` // "gemini", "vertex" or "mock"
	Model         string `mapstructure:"model"`
	APIKey        string `mapstructure:"api_key"`
	MaxImageBytes int64  `mapstructure:"max_image_bytes"`

	// Vertex AI only
	ProjectID       string `mapstructure:"project_id"`
	Location        string `mapstructure:"location"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// LiveConfig configures the live voice assistant.
type LiveConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Endpoint         string `mapstructure:"endpoint"`
	Model            string `mapstructure:"model"`
	SystemPrompt     string `mapstructure:"system_prompt"`
	InputSampleRate  int    `mapstructure:"input_sample_rate"`
	OutputSampleRate int    `mapstructure:"output_sample_rate"`
	BlockSize        int    `mapstructure:"block_size"`    // samples per transmitted frame
	BufferBlocks     int    `mapstructure:"buffer_blocks"` // capture queue depth in blocks
	DumpDir          string `mapstructure:"dump_dir"`
}

// MQTTConfig enables publishing saved analyses. An empty broker disables it.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// SentryConfig enables error reporting. An empty DSN disables it.
type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

const (
	DefaultLiveEndpoint     = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	DefaultLiveModel        = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultLiveSystemPrompt = "Você é um assistente agrícola amigável e prestativo da ON FERT. " +
		"Responda a perguntas sobre agricultura, saúde do solo e nossos produtos de forma concisa."
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.static_dir", "./static")

	v.SetDefault("ml.provider", "gemini")
	v.SetDefault("ml.model", "gemini-2.5-flash")
	v.SetDefault("ml.api_key", "")
	v.SetDefault("ml.max_image_bytes", 4*1024*1024)
	v.SetDefault("ml.project_id", "")
	v.SetDefault("ml.location", "us-central1")
	v.SetDefault("ml.credentials_file", "")

	v.SetDefault("live.enabled", true)
	v.SetDefault("live.endpoint", DefaultLiveEndpoint)
	v.SetDefault("live.model", DefaultLiveModel)
	v.SetDefault("live.system_prompt", DefaultLiveSystemPrompt)
	v.SetDefault("live.input_sample_rate", 16000)
	v.SetDefault("live.output_sample_rate", 24000)
	v.SetDefault("live.block_size", 4096)
	v.SetDefault("live.buffer_blocks", 8)
	v.SetDefault("live.dump_dir", "")

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic", "onfert/analyses")
	v.SetDefault("mqtt.client_id", "onfert-analyst")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "development")
}

// LoadConfig loads configuration from an optional JSON file, the environment
// and a .env file in the working directory. An empty configPath skips the file.
func LoadConfig(configPath string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("ONFERT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// The provider credential is conventionally exported without prefix.
	if config.ML.APIKey == "" {
		config.ML.APIKey = firstEnv("API_KEY", "GEMINI_API_KEY")
	}

	if config.Server.Port == "" {
		return nil, fmt.Errorf("server port is not set in config file")
	}
	if config.ML.MaxImageBytes <= 0 {
		return nil, fmt.Errorf("ml.max_image_bytes must be positive")
	}
	if config.Live.BlockSize <= 0 || config.Live.InputSampleRate <= 0 || config.Live.OutputSampleRate <= 0 {
		return nil, fmt.Errorf("live audio settings must be positive")
	}
	if config.Live.BufferBlocks < 2 {
		config.Live.BufferBlocks = 2
	}

	return &config, nil
}

// Validate fails fast when a feature that contacts the provider has no
// credential, so no request is ever attempted without one.
func (c *Config) Validate() error {
	if err := c.ValidateRecommender(); err != nil {
		return err
	}
	if c.Live.Enabled {
		return c.ValidateLive()
	}
	return nil
}

// ValidateRecommender checks the settings of the selected provider.
func (c *Config) ValidateRecommender() error {
	switch c.ML.Provider {
	case "gemini":
		if strings.TrimSpace(c.ML.APIKey) == "" {
			return ErrMissingAPIKey
		}
	case "vertex":
		if c.ML.ProjectID == "" || c.ML.Location == "" {
			return errors.New(errors.CategoryConfiguration, "config",
				"ml.project_id e ml.location são obrigatórios para o provedor vertex", nil)
		}
	case "mock":
	default:
		return errors.New(errors.CategoryConfiguration, "config",
			fmt.Sprintf("provedor desconhecido: %q", c.ML.Provider), nil)
	}
	return nil
}

// ValidateLive checks the live assistant credential.
func (c *Config) ValidateLive() error {
	if strings.TrimSpace(c.ML.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// GetConfigPath returns the path to the configuration file, or "" when none exists
func GetConfigPath() string {
	// First try environment variable
	if path := os.Getenv("ONFERT_CONFIG"); path != "" {
		return path
	}

	// Then try config directory
	if path := filepath.Join("config", "config.json"); fileExists(path) {
		return path
	}

	// Finally, try current directory
	if fileExists("config.json") {
		return "config.json"
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
