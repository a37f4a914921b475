package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	CORS         CORSConfig
	RateLimit    RateLimitConfig
	Corpus       CorpusConfig
	Retrieval    RetrievalConfig
	LLM          LLMConfig
	Conversation ConversationConfig
	Redis        RedisConfig
	Logging      LoggingConfig
	Persona      string
}

type ServerConfig struct {
	Host          string
	Port          int
	ReadTimeout   int
	WriteTimeout  int
	BodyLimit     int
	IsDevelopment bool
}

type CORSConfig struct {
	AllowOrigins string
}

type RateLimitConfig struct {
	Enabled              bool
	MaxRequestsPerMinute int
}

type CorpusConfig struct {
	Path string
}

type RetrievalConfig struct {
	TopK           int
	ContextBudget  int
	MaxChunkSize   int
	MaxQueryLength int
}

type LLMConfig struct {
	Model               string
	APIKey              string
	BaseURL             string
	Temperature         float32
	MaxTokens           int
	TimeoutSec          int
	EmbeddingModel      string
	EmbeddingTimeoutSec int
}

type ConversationConfig struct {
	Backend         string
	Path            string
	FlushTimeoutSec int
}

type RedisConfig struct {
	Enabled         bool
	Host            string
	Port            int
	Password        string
	DB              int
	EmbeddingTTLMin int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

const defaultPersona = "You are a helpful assistant for the ACT UP Oral History Project."

// Load searches the usual locations for config.yaml. A missing file is not an
// error; defaults and environment still apply.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/oral-history")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFile reads an explicit config file, which must exist.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix("ORAL_HISTORY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional names used by the deployment environment.
	_ = v.BindEnv("llm.apiKey", "ORAL_HISTORY_LLM_APIKEY", "OPENAI_API_KEY")
	_ = v.BindEnv("server.port", "ORAL_HISTORY_SERVER_PORT", "PORT")

	setDefaults(v)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Conversation.Backend {
	case "json", "sqlite", "bolt":
	default:
		return fmt.Errorf("unknown conversation backend %q", c.Conversation.Backend)
	}
	if c.LLM.TimeoutSec <= 0 || c.LLM.EmbeddingTimeoutSec <= 0 || c.Conversation.FlushTimeoutSec <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.topK must be positive, got %d", c.Retrieval.TopK)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 90)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.isDevelopment", false)

	v.SetDefault("cors.allowOrigins", "*")

	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.maxRequestsPerMinute", 30)

	v.SetDefault("corpus.path", "./data/metadata_with_embeddings.json")

	v.SetDefault("retrieval.topK", 3)
	v.SetDefault("retrieval.contextBudget", 12000)
	v.SetDefault("retrieval.maxChunkSize", 1000)
	v.SetDefault("retrieval.maxQueryLength", 4000)

	v.SetDefault("llm.model", "gpt-4-turbo-preview")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.maxTokens", 1024)
	v.SetDefault("llm.timeoutSec", 60)
	v.SetDefault("llm.embeddingModel", "text-embedding-ada-002")
	v.SetDefault("llm.embeddingTimeoutSec", 15)

	v.SetDefault("conversation.backend", "json")
	v.SetDefault("conversation.path", "./data/chat_logs.json")
	v.SetDefault("conversation.flushTimeoutSec", 5)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.embeddingTTLMin", 1440)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("persona", defaultPersona)
}
