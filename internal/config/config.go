// backend-go/internal/config/config.go
package config

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	API       APIConfig
	Fetch     FetchConfig
	Batch     BatchConfig
	Sales     SalesConfig
	Targets   TargetConfig
	Cache     CacheConfig
	LogLevel  string
	LogFormat string
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// APIConfig describes how the remote sales API is reached.
type APIConfig struct {
	BaseURL      string
	Prefix       string
	ProxyBaseURL string
	ForceProxy   bool
	Token        string
}

// FetchConfig holds the request client defaults.
type FetchConfig struct {
	CacheTTL         time.Duration
	DirectTimeout    time.Duration
	ProxyTimeout     time.Duration
	AbortRetries     int
	RateLimitRetries int
	MaxRetryAfter    time.Duration
}

// BatchConfig bounds fan-out over branches and days.
type BatchConfig struct {
	BranchBatchSize  int
	BranchBatchDelay time.Duration
	DayBatchSize     int
	DayBatchDelay    time.Duration
}

type SalesConfig struct {
	SummaryEndpoint string
	// Regions maps a region name to its branch ids.
	Regions map[string][]string
}

type TargetConfig struct {
	Store                string
	DefaultMonthly       float64
	DefaultWeekendPerDay float64
	DefaultHolidayPerDay float64
}

type CacheConfig struct {
	Enabled          bool
	RedisURL         string
	RedisHost        string
	RedisPort        string
	RedisPassword    string
	RedisDB          int
	TargetTTLSeconds int
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		v := viper.New()
		setDefaults(v)

		// Read from environment variables
		v.AutomaticEnv()

		instance = build(v)
	})

	return instance
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_MODE", "debug")
	v.SetDefault("SERVER_READ_TIMEOUT", 0)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 0)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "salesboard")
	v.SetDefault("DB_SSLMODE", "disable")

	v.SetDefault("API_BASE_URL", "")
	v.SetDefault("API_PREFIX", "/api")
	v.SetDefault("PROXY_BASE_URL", "http://127.0.0.1:8080")
	v.SetDefault("API_FORCE_PROXY", false)
	v.SetDefault("API_TOKEN", "")

	v.SetDefault("FETCH_CACHE_TTL_MS", 20000)
	v.SetDefault("FETCH_DIRECT_TIMEOUT_MS", 60000)
	v.SetDefault("FETCH_PROXY_TIMEOUT_MS", 130000)
	v.SetDefault("FETCH_ABORT_RETRIES", 1)
	v.SetDefault("FETCH_RATE_LIMIT_RETRIES", 3)
	v.SetDefault("FETCH_MAX_RETRY_AFTER_MS", 30000)

	v.SetDefault("BRANCH_BATCH_SIZE", 10)
	v.SetDefault("BRANCH_BATCH_DELAY_MS", 50)
	v.SetDefault("DAY_BATCH_SIZE", 5)
	v.SetDefault("DAY_BATCH_DELAY_MS", 100)

	v.SetDefault("SALES_SUMMARY_ENDPOINT", "sales/summary")
	v.SetDefault("REGIONS", "")

	v.SetDefault("TARGET_STORE", "memory")
	v.SetDefault("TARGET_DEFAULT_MONTHLY", 0)
	v.SetDefault("TARGET_DEFAULT_WEEKEND_PER_DAY", 0)
	v.SetDefault("TARGET_DEFAULT_HOLIDAY_PER_DAY", 0)

	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_TARGET_TTL_SECONDS", 300)
}

func build(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: v.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		API: APIConfig{
			BaseURL:      strings.TrimRight(v.GetString("API_BASE_URL"), "/"),
			Prefix:       normalizePrefix(v.GetString("API_PREFIX")),
			ProxyBaseURL: strings.TrimRight(v.GetString("PROXY_BASE_URL"), "/"),
			ForceProxy:   v.GetBool("API_FORCE_PROXY"),
			Token:        strings.TrimSpace(v.GetString("API_TOKEN")),
		},
		Fetch: FetchConfig{
			CacheTTL:         millis(v, "FETCH_CACHE_TTL_MS"),
			DirectTimeout:    millis(v, "FETCH_DIRECT_TIMEOUT_MS"),
			ProxyTimeout:     millis(v, "FETCH_PROXY_TIMEOUT_MS"),
			AbortRetries:     v.GetInt("FETCH_ABORT_RETRIES"),
			RateLimitRetries: v.GetInt("FETCH_RATE_LIMIT_RETRIES"),
			MaxRetryAfter:    millis(v, "FETCH_MAX_RETRY_AFTER_MS"),
		},
		Batch: BatchConfig{
			BranchBatchSize:  v.GetInt("BRANCH_BATCH_SIZE"),
			BranchBatchDelay: millis(v, "BRANCH_BATCH_DELAY_MS"),
			DayBatchSize:     v.GetInt("DAY_BATCH_SIZE"),
			DayBatchDelay:    millis(v, "DAY_BATCH_DELAY_MS"),
		},
		Sales: SalesConfig{
			SummaryEndpoint: strings.Trim(v.GetString("SALES_SUMMARY_ENDPOINT"), "/"),
			Regions:         ParseRegions(v.GetString("REGIONS")),
		},
		Targets: TargetConfig{
			Store:                strings.ToLower(v.GetString("TARGET_STORE")),
			DefaultMonthly:       v.GetFloat64("TARGET_DEFAULT_MONTHLY"),
			DefaultWeekendPerDay: v.GetFloat64("TARGET_DEFAULT_WEEKEND_PER_DAY"),
			DefaultHolidayPerDay: v.GetFloat64("TARGET_DEFAULT_HOLIDAY_PER_DAY"),
		},
		Cache: CacheConfig{
			Enabled:          v.GetBool("CACHE_ENABLED"),
			RedisURL:         v.GetString("REDIS_URL"),
			RedisHost:        v.GetString("REDIS_HOST"),
			RedisPort:        v.GetString("REDIS_PORT"),
			RedisPassword:    v.GetString("REDIS_PASSWORD"),
			RedisDB:          v.GetInt("REDIS_DB"),
			TargetTTLSeconds: v.GetInt("CACHE_TARGET_TTL_SECONDS"),
		},
		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
	}
}

// ParseRegions parses "HCM=101,102;HN=201" into a region -> branch ids map.
// Region names are upper-cased; blank ids are dropped.
func ParseRegions(raw string) map[string][]string {
	regions := make(map[string][]string)
	for _, entry := range strings.Split(raw, ";") {
		name, ids, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		name = strings.ToUpper(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				regions[name] = append(regions[name], id)
			}
		}
	}
	return regions
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	return "/" + prefix
}

func millis(v *viper.Viper, key string) time.Duration {
	raw := v.GetString(key)
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return time.Duration(n) * time.Millisecond
}
