package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	AuthCookieSecure bool
	SessionTTL       time.Duration

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Billing BillingConfig
	Payment PaymentConfig

	Bootstrap BootstrapConfig
}

// BillingConfig controls the subscription lifecycle windows.
type BillingConfig struct {
	TrialDays         int
	TrialLowWaterDays int
	InvoiceDueDays    int
	LockTTL           time.Duration
	LockWaitTimeout   time.Duration
}

// PaymentConfig carries channel specific settings.
type PaymentConfig struct {
	ProviderTimeout time.Duration

	ManualBankName      string
	ManualAccountNumber string
	ManualAccountHolder string

	DanaEndpoint   string
	DanaMerchantID string
	DanaSecret     string
}

type BootstrapConfig struct {
	SuperAdminEmail    string
	SuperAdminPassword string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	return Config{
		AppName:          getenv("APP_SERVICE", "rukun"),
		AppVersion:       getenv("APP_VERSION", "0.1.0"),
		Environment:      environment,
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		AuthCookieSecure: authCookieSecure,
		SessionTTL:       getenvDuration("SESSION_TTL", 7*24*time.Hour),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "rukun"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		Billing: BillingConfig{
			TrialDays:         getenvInt("BILLING_TRIAL_DAYS", 14),
			TrialLowWaterDays: getenvInt("BILLING_TRIAL_LOW_WATER_DAYS", 3),
			InvoiceDueDays:    getenvInt("BILLING_INVOICE_DUE_DAYS", 7),
			LockTTL:           getenvDuration("BILLING_LOCK_TTL", 30*time.Second),
			LockWaitTimeout:   getenvDuration("BILLING_LOCK_WAIT_TIMEOUT", 10*time.Second),
		},
		Payment: PaymentConfig{
			ProviderTimeout:     getenvDuration("PAYMENT_PROVIDER_TIMEOUT", 10*time.Second),
			ManualBankName:      getenv("PAYMENT_MANUAL_BANK_NAME", "BCA"),
			ManualAccountNumber: getenv("PAYMENT_MANUAL_ACCOUNT_NUMBER", ""),
			ManualAccountHolder: getenv("PAYMENT_MANUAL_ACCOUNT_HOLDER", ""),
			DanaEndpoint:        strings.TrimSpace(getenv("PAYMENT_DANA_ENDPOINT", "")),
			DanaMerchantID:      strings.TrimSpace(getenv("PAYMENT_DANA_MERCHANT_ID", "")),
			DanaSecret:          strings.TrimSpace(getenv("PAYMENT_DANA_SECRET", "")),
		},
		Bootstrap: BootstrapConfig{
			SuperAdminEmail:    strings.TrimSpace(getenv("BOOTSTRAP_SUPER_ADMIN_EMAIL", "")),
			SuperAdminPassword: getenv("BOOTSTRAP_SUPER_ADMIN_PASSWORD", ""),
		},
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPlanCatalogHolder),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
