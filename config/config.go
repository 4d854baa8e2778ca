package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"price_alert_backend/models"
)

type Config struct {
	Port        string `validate:"required,numeric"`
	Environment string `validate:"required"`

	DBDriver   string `validate:"oneof=postgres sqlite"`
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	JWTSecret string `validate:"required"`

	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int `validate:"gte=0"`

	MongoDBURI      string
	MongoDBDatabase string

	SMTPHost      string
	SMTPPort      int `validate:"gte=0,lte=65535"`
	SMTPUser      string
	SMTPPassword  string
	SMTPFromEmail string
	SMTPFromName  string
	AppURL        string

	Monitor MonitorConfig
	Market  MarketConfig

	TriggeredAlertRetention time.Duration `validate:"gte=1h"`
	AllowedOrigins          []string

	// EnvFileLoaded is false when no .env file was found
	EnvFileLoaded bool
}

// MonitorConfig holds the monitoring loop settings
type MonitorConfig struct {
	Interval             time.Duration `validate:"gte=100ms"`
	ErrorBackoff         float64       `validate:"gte=1"`
	StopTimeout          time.Duration `validate:"gt=0"`
	MaxConcurrentFetches int           `validate:"gte=0"`
}

// MarketConfig holds the price gateway settings
type MarketConfig struct {
	FetchTimeout     time.Duration `validate:"gt=0,lt=10s"`
	CacheTTL         time.Duration `validate:"gt=0,lte=1m"`
	BinanceBaseURL   string
	CoinGeckoBaseURL string `validate:"required,url"`
	YahooBaseURL     string `validate:"required,url"`
}

// LoadConfig loads environment variables, reading a .env file first if one exists
func LoadConfig() (*Config, error) {
	envFileErr := godotenv.Load()

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "price_alerts"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		SQLitePath: getEnv("SQLITE_PATH", "data/alerts.db"),

		JWTSecret: getEnv("JWT_SECRET", "your-secret-key"),

		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MongoDBURI:      getEnv("MONGODB_URI", ""),
		MongoDBDatabase: getEnv("MONGODB_DATABASE", "price_alerts"),

		SMTPHost:      getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:      getEnvInt("SMTP_PORT", 587),
		SMTPUser:      getEnv("SMTP_USER", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		SMTPFromEmail: getEnv("SMTP_FROM_EMAIL", ""),
		SMTPFromName:  getEnv("SMTP_FROM_NAME", "Price Alerts"),
		AppURL:        getEnv("APP_URL", "http://localhost:8080"),

		Monitor: MonitorConfig{
			Interval:             getEnvDuration("MONITOR_INTERVAL", 5*time.Second),
			ErrorBackoff:         getEnvFloat("MONITOR_ERROR_BACKOFF", 2),
			StopTimeout:          getEnvDuration("MONITOR_STOP_TIMEOUT", 5*time.Second),
			MaxConcurrentFetches: getEnvInt("MONITOR_MAX_CONCURRENT_FETCHES", 0),
		},
		Market: MarketConfig{
			FetchTimeout:     getEnvDuration("PRICE_FETCH_TIMEOUT", 5*time.Second),
			CacheTTL:         getEnvDuration("PRICE_CACHE_TTL", 5*time.Second),
			BinanceBaseURL:   getEnv("BINANCE_BASE_URL", ""),
			CoinGeckoBaseURL: getEnv("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3"),
			YahooBaseURL:     getEnv("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
		},

		TriggeredAlertRetention: getEnvDuration("TRIGGERED_ALERT_RETENTION", 30*24*time.Hour),
		AllowedOrigins:          getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:8080"}),

		EnvFileLoaded: envFileErr == nil,
	}

	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// Validate checks the loaded settings against their struct constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// RedisAddr returns the host:port pair for the redis client
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

// InitDB initializes database connection and migrates the engine's tables
func InitDB(cfg *Config, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var logLevel logger.LogLevel
	if cfg.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Warn
	}

	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "sqlite":
		log.Info("opening_sqlite_database", zap.String("path", cfg.SQLitePath))
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		log.Info("connecting_to_database",
			zap.String("host", maskHost(cfg.DBHost)),
			zap.String("port", cfg.DBPort),
			zap.String("user", cfg.DBUser),
			zap.String("dbname", cfg.DBName),
		)
		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBPort,
			cfg.DBSSLMode,
		)
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection with ping
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return db, nil
}

// Migrate runs all database migrations
func Migrate(db *gorm.DB) error {
	if err := models.MigrateUserModels(db); err != nil {
		return err
	}
	return models.MigrateAlertModels(db)
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvDuration accepts Go duration strings ("5s") or plain seconds ("5")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable
func getEnvList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
