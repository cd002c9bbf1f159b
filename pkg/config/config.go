// Package config loads gateway configuration from a charla.yaml file and
// CHARLA_-prefixed environment variables, with a .env file picked up when
// present.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config is the full gateway configuration.
type Config struct {
	Addr     string `mapstructure:"addr"`
	DBPath   string `mapstructure:"db_path"`
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`

	MaxHistory      int           `mapstructure:"max_history"`
	TopK            int           `mapstructure:"top_k"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens"`
	MaxPromptTokens int           `mapstructure:"max_prompt_tokens"`
	CallTimeout     time.Duration `mapstructure:"call_timeout"`

	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	GeminiModel  string `mapstructure:"gemini_model"`

	ElevenLabsAPIKey string `mapstructure:"elevenlabs_api_key"`
	ElevenLabsVoice  string `mapstructure:"elevenlabs_voice"`

	// OpenAI-compatible embeddings endpoint for the vector store.
	EmbeddingsBaseURL string `mapstructure:"embeddings_base_url"`
	EmbeddingsAPIKey  string `mapstructure:"embeddings_api_key"`
	EmbeddingsModel   string `mapstructure:"embeddings_model"`
}

// Load reads configuration. A missing config file is fine; env vars and
// defaults still apply.
func Load(configPath string) (*Config, error) {
	// Best-effort .env for local development, as the deployment expects.
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("loaded .env file")
	}

	v := viper.New()
	v.SetEnvPrefix("CHARLA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", ":8000")
	v.SetDefault("db_path", "data/charla.db")
	v.SetDefault("data_dir", "data")
	v.SetDefault("log_level", "info")
	v.SetDefault("max_history", 10)
	v.SetDefault("top_k", 3)
	v.SetDefault("max_output_tokens", 800)
	v.SetDefault("max_prompt_tokens", 4096)
	v.SetDefault("call_timeout", 30*time.Second)
	v.SetDefault("gemini_model", "gemini-2.5-flash")
	v.SetDefault("embeddings_base_url", "https://api.openai.com/v1")
	v.SetDefault("embeddings_model", "text-embedding-3-small")

	// Keys without defaults must still be registered or AutomaticEnv will not
	// surface them through Unmarshal.
	for _, key := range []string{"gemini_api_key", "elevenlabs_api_key", "elevenlabs_voice", "embeddings_api_key"} {
		v.SetDefault(key, "")
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
	} else {
		v.SetConfigName("charla")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/charla")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.Wrap(err, "read config file")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	return &cfg, nil
}
