package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"derivbot/internal/adapters/logger"
)

// Config holds all application configuration.
type Config struct {
	// Broker API
	WSURL string
	Token string

	// Session parameters
	Strategy             string
	InitialStake         decimal.Decimal
	MartingaleMultiplier decimal.Decimal
	TakeProfit           decimal.Decimal // Zero disables
	StopLoss             decimal.Decimal // Zero disables

	// Connection settings
	MaxReconnectAttempts int

	// Simulation mode
	Simulation bool
	SimBalance decimal.Decimal

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string

	cfg.Simulation = getEnvAsBool("SIMULATION", false)

	cfg.WSURL = getEnv("DERIV_WS_URL", "wss://ws.derivws.com/websockets/v3?app_id=1089")
	if cfg.WSURL == "" {
		errs = append(errs, "DERIV_WS_URL must be set")
	}

	cfg.Token = getEnv("DERIV_TOKEN", "")
	if cfg.Token == "" && !cfg.Simulation {
		errs = append(errs, "DERIV_TOKEN must be set unless SIMULATION=true")
	}

	cfg.Strategy = getEnv("STRATEGY", "trend")

	cfg.InitialStake, err = getEnvAsDecimal("INITIAL_STAKE", "10")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INITIAL_STAKE: %v", err))
	} else if !cfg.InitialStake.IsPositive() {
		errs = append(errs, "INITIAL_STAKE must be positive")
	}

	cfg.MartingaleMultiplier, err = getEnvAsDecimal("MARTINGALE_MULTIPLIER", "2")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MARTINGALE_MULTIPLIER: %v", err))
	} else if cfg.MartingaleMultiplier.LessThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, "MARTINGALE_MULTIPLIER must be greater than 1")
	}

	cfg.TakeProfit, err = getEnvAsDecimal("TAKE_PROFIT", "0")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TAKE_PROFIT: %v", err))
	} else if cfg.TakeProfit.IsNegative() {
		errs = append(errs, "TAKE_PROFIT cannot be negative (0 disables)")
	}

	cfg.StopLoss, err = getEnvAsDecimal("STOP_LOSS", "0")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LOSS: %v", err))
	} else if cfg.StopLoss.IsNegative() {
		errs = append(errs, "STOP_LOSS cannot be negative (0 disables)")
	}

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts <= 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS must be positive")
	}

	cfg.SimBalance, err = getEnvAsDecimal("SIM_BALANCE", "1000")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SIM_BALANCE: %v", err))
	} else if !cfg.SimBalance.IsPositive() {
		errs = append(errs, "SIM_BALANCE must be positive")
	}

	cfg.DBPath = getEnv("DB_PATH", "./data/derivbot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDecimal(key, defaultValue string) (decimal.Decimal, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}
