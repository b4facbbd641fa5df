package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Import   ImportConfig
	Rewards  RewardsConfig
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ImportConfig tunes the JSON importer.
type ImportConfig struct {
	Timezone          string
	LockTTL           time.Duration
	MaxRetries        int
	ReportDir         string
	EmailReplacements []EmailReplacement
}

// EmailReplacement maps an alias email domain onto the canonical institution domain.
type EmailReplacement struct {
	From string
	To   string
}

// RewardsConfig governs the redemption overview cache.
type RewardsConfig struct {
	CacheEnabled  bool
	EventCacheTTL time.Duration
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
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
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxRetries := v.GetInt("IMPORT_MAX_RETRIES")
	if maxRetries < 0 {
		maxRetries = 0
	}
	cfg.Import = ImportConfig{
		Timezone:          v.GetString("IMPORT_TIMEZONE"),
		LockTTL:           parseDuration(v.GetString("IMPORT_LOCK_TTL"), 30*time.Minute),
		MaxRetries:        maxRetries,
		ReportDir:         v.GetString("IMPORT_REPORT_DIR"),
		EmailReplacements: parseEmailReplacements(v.GetString("INSTITUTION_EMAIL_REPLACEMENTS")),
	}

	cfg.Rewards = RewardsConfig{
		CacheEnabled:  v.GetBool("ENABLE_REWARDS_CACHE"),
		EventCacheTTL: parseDuration(v.GetString("REWARDS_EVENTS_CACHE_TTL"), 5*time.Minute),
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
	v.SetDefault("DB_NAME", "course_eval")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("IMPORT_TIMEZONE", "Europe/Berlin")
	v.SetDefault("IMPORT_LOCK_TTL", "30m")
	v.SetDefault("IMPORT_MAX_RETRIES", 3)
	v.SetDefault("IMPORT_REPORT_DIR", "")
	v.SetDefault("INSTITUTION_EMAIL_REPLACEMENTS", "")

	v.SetDefault("ENABLE_REWARDS_CACHE", false)
	v.SetDefault("REWARDS_EVENTS_CACHE_TTL", "5m")
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

// parseEmailReplacements reads "alias.example.edu=example.edu,..." pairs.
func parseEmailReplacements(raw string) []EmailReplacement {
	var replacements []EmailReplacement
	for _, pair := range splitAndTrim(raw) {
		from, to, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		from = strings.ToLower(strings.TrimSpace(from))
		to = strings.ToLower(strings.TrimSpace(to))
		if from == "" {
			continue
		}
		replacements = append(replacements, EmailReplacement{From: from, To: to})
	}
	return replacements
}
