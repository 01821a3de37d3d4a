package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Lineage strategies supported by the version linker.
const (
	LineageSimilarity = "similarity"
	LineagePointer    = "pointer"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Review    ReviewConfig
	Generator GeneratorConfig
	Cache     ProposalCacheConfig
	Events    EventsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ReviewConfig tunes lineage reconstruction for forked proposals.
type ReviewConfig struct {
	LineageStrategy     string
	SimilarityThreshold float64
}

// GeneratorConfig configures the AI draft generator backends.
type GeneratorConfig struct {
	Enabled bool
	APIKey  string
	BaseURL string
	Models  []string
	Timeout time.Duration
}

// ProposalCacheConfig governs caching of proposal listings.
type ProposalCacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// EventsConfig controls lifecycle event publishing.
type EventsConfig struct {
	Enabled       bool
	NATSURL       string
	SubjectPrefix string
	Workers       int
	MaxRetries    int
	RetryDelay    time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	threshold := v.GetFloat64("LINEAGE_SIMILARITY_THRESHOLD")
	if threshold <= 0 || threshold > 1 {
		threshold = 0.4
	}
	strategy := strings.ToLower(strings.TrimSpace(v.GetString("LINEAGE_STRATEGY")))
	if strategy != LineagePointer {
		strategy = LineageSimilarity
	}
	cfg.Review = ReviewConfig{
		LineageStrategy:     strategy,
		SimilarityThreshold: threshold,
	}

	cfg.Generator = GeneratorConfig{
		Enabled: v.GetBool("ENABLE_GENERATOR"),
		APIKey:  v.GetString("GENERATOR_API_KEY"),
		BaseURL: v.GetString("GENERATOR_BASE_URL"),
		Models:  splitAndTrim(v.GetString("GENERATOR_MODELS")),
		Timeout: parseDuration(v.GetString("GENERATOR_TIMEOUT"), 60*time.Second),
	}

	cfg.Cache = ProposalCacheConfig{
		Enabled: v.GetBool("ENABLE_PROPOSAL_CACHE"),
		TTL:     parseDuration(v.GetString("PROPOSAL_CACHE_TTL"), 2*time.Minute),
	}

	cfg.Events = EventsConfig{
		Enabled:       v.GetBool("ENABLE_EVENTS"),
		NATSURL:       v.GetString("NATS_URL"),
		SubjectPrefix: v.GetString("EVENTS_SUBJECT_PREFIX"),
		Workers:       v.GetInt("EVENTS_WORKERS"),
		MaxRetries:    v.GetInt("EVENTS_MAX_RETRIES"),
		RetryDelay:    parseDuration(v.GetString("EVENTS_RETRY_DELAY"), time.Second),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "curriculum_planning")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LINEAGE_STRATEGY", LineageSimilarity)
	v.SetDefault("LINEAGE_SIMILARITY_THRESHOLD", 0.4)

	v.SetDefault("ENABLE_GENERATOR", false)
	v.SetDefault("GENERATOR_API_KEY", "")
	v.SetDefault("GENERATOR_BASE_URL", "")
	v.SetDefault("GENERATOR_MODELS", "gpt-4o-mini,gpt-4o,gpt-4.1-mini")
	v.SetDefault("GENERATOR_TIMEOUT", "60s")

	v.SetDefault("ENABLE_PROPOSAL_CACHE", false)
	v.SetDefault("PROPOSAL_CACHE_TTL", "2m")

	v.SetDefault("ENABLE_EVENTS", false)
	v.SetDefault("NATS_URL", "nats://localhost:4222")
	v.SetDefault("EVENTS_SUBJECT_PREFIX", "curriculum.proposals")
	v.SetDefault("EVENTS_WORKERS", 1)
	v.SetDefault("EVENTS_MAX_RETRIES", 3)
	v.SetDefault("EVENTS_RETRY_DELAY", "1s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
