package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-booking/internal/pkg/logger"
)

// Store drivers accepted in STORE_DRIVER.
const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Durations are parsed with time.ParseDuration.
type Config struct {
	Env         string // application environment (development, test, production)
	Port        string // HTTP port to listen on
	StoreDriver string // mysql or memory
	AutoMigrate bool   // apply schema migrations on start

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	JWTSecret    string // secret used to sign JWTs
	AccessTTLMin int    // access token time-to-live in minutes
	BcryptCost   int    // bcrypt cost for password hashing

	SeatLockTTL    time.Duration // how long a seat lock lives without renewal
	ReaperInterval time.Duration // period of the background expiry sweep
	ReaperLease    bool          // elect one sweeping instance through Redis

	StripeSecretKey     string // payment provider API key (empty disables payments)
	StripeWebhookSecret string // webhook signing secret
	PaymentCurrency     string // ISO currency code, lower case
	SeatPriceMinor      int64  // price of one seat in minor units
	PublicBaseURL       string // base for checkout success/cancel URLs

	AMQPURL            string // RabbitMQ URL (empty logs notifications instead)
	NotificationLogDir string // directory of booking.log written by the consumer
	MetricsEnabled     bool   // expose /metrics
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool { return c.Env == "production" || c.Env == "prod" }

// Load reads the configuration and exits the process when a required
// variable is missing or malformed.
func Load() Config {
	cfg, err := Parse()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	return cfg
}

// Parse reads the configuration from the environment.  All problems are
// reported together.
func Parse() (Config, error) {
	var errs []error
	must := func(key string) string {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			errs = append(errs, fmt.Errorf("missing required env var: %s", key))
		}
		return v
	}
	mustInt := func(key string) int {
		s := must(key)
		if s == "" {
			return 0
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid int for %s: %q", key, s))
		}
		return n
	}

	cfg := Config{
		Env:         envStr("APP_ENV", "development"),
		Port:        envStr("APP_PORT", "8080"),
		StoreDriver: envStr("STORE_DRIVER", StoreMySQL),
		AutoMigrate: envBool("AUTO_MIGRATE", true),

		JWTSecret:    must("JWT_SECRET"),
		AccessTTLMin: envInt("ACCESS_TOKEN_TTL_MIN", 15),
		BcryptCost:   envInt("BCRYPT_COST", 12),

		SeatLockTTL:    envDur("SEAT_LOCK_TTL", 5*time.Minute),
		ReaperInterval: envDur("REAPER_INTERVAL", time.Minute),
		ReaperLease:    envBool("REAPER_LEASE", false),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PaymentCurrency:     envStr("PAYMENT_CURRENCY", "inr"),
		SeatPriceMinor:      int64(envInt("SEAT_PRICE_MINOR", 20000)),
		PublicBaseURL:       envStr("PUBLIC_BASE_URL", "http://localhost:8080"),

		AMQPURL:            envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
		NotificationLogDir: envStr("NOTIFICATION_LOG_DIR", "logs"),
		MetricsEnabled:     envBool("METRICS_ENABLED", true),
	}

	switch cfg.StoreDriver {
	case StoreMySQL:
		readDB(&cfg, must)
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver))
	}
	if v := os.Getenv("ACCESS_TOKEN_TTL_MIN"); v != "" {
		cfg.AccessTTLMin = mustInt("ACCESS_TOKEN_TTL_MIN")
	}
	if cfg.SeatLockTTL <= 0 {
		errs = append(errs, errors.New("SEAT_LOCK_TTL must be positive"))
	}
	if cfg.ReaperInterval <= 0 {
		errs = append(errs, errors.New("REAPER_INTERVAL must be positive"))
	}
	return cfg, errors.Join(errs...)
}

// ParseDatabase reads only what operator tooling needs: the MySQL settings,
// the lock TTL and the notification consumer settings.
func ParseDatabase() (Config, error) {
	var errs []error
	must := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			errs = append(errs, fmt.Errorf("missing required env var: %s", key))
		}
		return v
	}
	cfg := Config{
		Env:                envStr("APP_ENV", "development"),
		StoreDriver:        StoreMySQL,
		SeatLockTTL:        envDur("SEAT_LOCK_TTL", 5*time.Minute),
		BcryptCost:         envInt("BCRYPT_COST", 12),
		AMQPURL:            envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
		NotificationLogDir: envStr("NOTIFICATION_LOG_DIR", "logs"),
	}
	readDB(&cfg, must)
	if cfg.SeatLockTTL <= 0 {
		errs = append(errs, errors.New("SEAT_LOCK_TTL must be positive"))
	}
	return cfg, errors.Join(errs...)
}

func readDB(cfg *Config, must func(string) string) {
	cfg.DBUser = must("DB_USER")
	cfg.DBPass = os.Getenv("DB_PASS")
	cfg.DBHost = must("DB_HOST")
	cfg.DBPort = must("DB_PORT")
	cfg.DBName = must("DB_NAME")
}
