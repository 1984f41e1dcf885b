package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Auth      AuthConfig      `mapstructure:"auth"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Models    ModelConfig     `mapstructure:"models"`
	Caching   CachingConfig   `mapstructure:"caching"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	PoolMin        int           `mapstructure:"pool_min"`
	PoolMax        int           `mapstructure:"pool_max"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	Host       string        `mapstructure:"host"`
	Port       string        `mapstructure:"port"`
	DB         int           `mapstructure:"db"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		UserInteractions string `mapstructure:"user_interactions"`
	} `mapstructure:"topics"`
}

type AuthConfig struct {
	JWTSecret    string          `mapstructure:"jwt_secret"`
	JWTAlgorithm string          `mapstructure:"jwt_algorithm"`
	JWTAudience  string          `mapstructure:"jwt_audience"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Default int           `mapstructure:"default"`
	Window  time.Duration `mapstructure:"window"`
}

type OpenAIConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Temperature    float64       `mapstructure:"temperature"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

type ModelConfig struct {
	// Directory holding the offline-trained artifacts.
	Path string `mapstructure:"path"`
	// Static spec sheet joined into the vehicle catalog.
	CarFeaturesPath string `mapstructure:"car_features_path"`
	VehicleLimit    int    `mapstructure:"vehicle_limit"`
	TopKSimilar     int    `mapstructure:"top_k_similar"`
	SVDComponents   int    `mapstructure:"svd_components"`
	EmbeddingDims   int    `mapstructure:"embedding_dims"`
	// Cosine threshold above which two popular queries count as the
	// same question.
	PopularQueryThreshold float64 `mapstructure:"popular_query_threshold"`
}

type CachingConfig struct {
	DefaultTTL           time.Duration `mapstructure:"default_ttl"`
	QueryEmbeddingTTL    time.Duration `mapstructure:"query_embedding_ttl"`
	CategoryEmbeddingTTL time.Duration `mapstructure:"category_embedding_ttl"`
}

type AssistantConfig struct {
	MaxSuggestedActions int `mapstructure:"max_suggested_actions"`
	// Hard cap on rows handed to the answer generator, regardless of
	// any LIMIT the generated SQL carries.
	MaxRows int `mapstructure:"max_rows"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	// Set defaults
	setDefaults()

	// Environment variable overrides
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvAliases()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindEnvAliases maps the flat variable names the deployment already
// exports onto the nested config keys.
func bindEnvAliases() {
	aliases := map[string]string{
		"server.host":        "HOST",
		"server.port":        "PORT",
		"database.url":       "DATABASE_URL",
		"database.pool_min":  "DB_POOL_MIN",
		"database.pool_max":  "DB_POOL_MAX",
		"redis.host":         "REDIS_HOST",
		"redis.port":         "REDIS_PORT",
		"redis.db":           "REDIS_DB",
		"auth.jwt_secret":    "JWT_SECRET",
		"auth.jwt_algorithm": "JWT_ALGORITHM",
		"auth.jwt_audience":  "JWT_AUDIENCE",
		"openai.enabled":     "AI_ENABLED",
		"openai.api_key":     "OPENAI_API_KEY",
		"openai.model":       "OPENAI_MODEL",
		"openai.max_tokens":  "OPENAI_MAX_TOKENS",
		"openai.temperature": "OPENAI_TEMPERATURE",
		"openai.timeout":     "OPENAI_TIMEOUT",
		"models.path":        "MODEL_PATH",
	}
	for key, env := range aliases {
		_ = viper.BindEnv(key, env)
	}
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.mode", "development")

	// Database defaults
	viper.SetDefault("database.pool_min", 5)
	viper.SetDefault("database.pool_max", 20)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.timeout", "5s")

	// Kafka defaults
	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topics.user_interactions", "user-interactions")

	// Auth defaults
	viper.SetDefault("auth.jwt_algorithm", "HS256")
	viper.SetDefault("auth.rate_limit.default", 10)
	viper.SetDefault("auth.rate_limit.window", "1m")

	// OpenAI defaults
	viper.SetDefault("openai.enabled", true)
	viper.SetDefault("openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("openai.model", "gpt-4o-mini")
	viper.SetDefault("openai.max_tokens", 500)
	viper.SetDefault("openai.temperature", 0.2)
	viper.SetDefault("openai.timeout", "30s")
	viper.SetDefault("openai.max_concurrency", 5)

	// Model defaults
	viper.SetDefault("models.path", "./trained_models")
	viper.SetDefault("models.car_features_path", "./data/car-features.json")
	viper.SetDefault("models.vehicle_limit", 20000)
	viper.SetDefault("models.top_k_similar", 200)
	viper.SetDefault("models.svd_components", 50)
	viper.SetDefault("models.embedding_dims", 256)
	viper.SetDefault("models.popular_query_threshold", 0.68)

	// Caching defaults
	viper.SetDefault("caching.default_ttl", "15m")
	viper.SetDefault("caching.query_embedding_ttl", "1h")
	viper.SetDefault("caching.category_embedding_ttl", "24h")

	// Assistant defaults
	viper.SetDefault("assistant.max_suggested_actions", 3)
	viper.SetDefault("assistant.max_rows", 10)

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}
