package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"paygate/internal/logger"
	"paygate/internal/payment"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var ErrMissingEnv = errors.New("required environment variable not set")

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string
	LogLevel   string
	JWTSecret  string

	DefaultDriver string
	Drivers       map[string]payment.Settings

	CallbackRate  float64
	CallbackBurst int
}

// Public endpoints of each provider, used unless overridden.
var driverDefaults = map[string]payment.Settings{
	"bitpay": {
		APIPurchaseURL:       "https://bitpay.ir/payment/gateway-send",
		APIPaymentURL:        "https://bitpay.ir/payment/gateway-",
		APISandboxPaymentURL: "https://bitpay.ir/payment-test/gateway-",
		APIVerificationURL:   "https://bitpay.ir/payment/gateway-result-second",
	},
	"payir": {
		APIPurchaseURL:     "https://pay.ir/pg/send",
		APIPaymentURL:      "https://pay.ir/pg/",
		APIVerificationURL: "https://pay.ir/pg/verify",
	},
}

// LoadConfig reads .env and the environment, exiting when it cannot.
func LoadConfig() *Config {
	cfg, err := Load()
	if err != nil {
		logger.L().Fatal("Environment variables not loaded properly", zap.Error(err))
	}
	return cfg
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:        os.Getenv("DB_HOST"),
		DBUser:        os.Getenv("DB_USER"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBName:        os.Getenv("DB_NAME"),
		DBPort:        getenv("DB_PORT", "5432"),
		AppPort:       getenv("APP_PORT", "8080"),
		AppEnv:        getenv("APP_ENV", "development"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		DefaultDriver: getenv("PAYMENT_DEFAULT_DRIVER", "bitpay"),
		Drivers:       make(map[string]payment.Settings, len(driverDefaults)),
	}

	if cfg.DBHost == "" {
		return nil, fmt.Errorf("%w: DB_HOST", ErrMissingEnv)
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("%w: JWT_SECRET", ErrMissingEnv)
	}

	for name, defaults := range driverDefaults {
		s, err := loadDriver(name, defaults)
		if err != nil {
			return nil, err
		}
		cfg.Drivers[name] = s
	}

	if _, ok := cfg.Drivers[cfg.DefaultDriver]; !ok {
		return nil, fmt.Errorf("PAYMENT_DEFAULT_DRIVER: unknown driver %q", cfg.DefaultDriver)
	}

	var err error
	if cfg.CallbackRate, err = strconv.ParseFloat(getenv("CALLBACK_RATE", "5"), 64); err != nil {
		return nil, fmt.Errorf("CALLBACK_RATE: %w", err)
	}
	if cfg.CallbackBurst, err = strconv.Atoi(getenv("CALLBACK_BURST", "10")); err != nil {
		return nil, fmt.Errorf("CALLBACK_BURST: %w", err)
	}

	return cfg, nil
}

// loadDriver reads the <NAME>_* variables for one driver.
func loadDriver(name string, defaults payment.Settings) (payment.Settings, error) {
	prefix := envPrefix(name)

	s := payment.Settings{
		MerchantID:           os.Getenv(prefix + "API_KEY"),
		CallbackURL:          os.Getenv(prefix + "CALLBACK_URL"),
		APIPurchaseURL:       getenv(prefix+"PURCHASE_URL", defaults.APIPurchaseURL),
		APIPaymentURL:        getenv(prefix+"PAYMENT_URL", defaults.APIPaymentURL),
		APISandboxPaymentURL: getenv(prefix+"SANDBOX_PAYMENT_URL", defaults.APISandboxPaymentURL),
		APIVerificationURL:   getenv(prefix+"VERIFICATION_URL", defaults.APIVerificationURL),
		Description:          os.Getenv(prefix + "DESCRIPTION"),
	}

	if v := os.Getenv(prefix + "SANDBOX"); v != "" {
		sandbox, err := strconv.ParseBool(v)
		if err != nil {
			return s, fmt.Errorf("%sSANDBOX: %w", prefix, err)
		}
		s.Sandbox = sandbox
	}

	if v := os.Getenv(prefix + "TIMEOUT"); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return s, fmt.Errorf("%sTIMEOUT: %w", prefix, err)
		}
		s.Timeout = timeout
	}

	return s, nil
}

func envPrefix(driver string) string {
	return strings.ToUpper(driver) + "_"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
