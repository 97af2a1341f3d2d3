package wallet

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Config holds the process-wide settings of the execution layer. It is built
// once at startup and treated as immutable.
type Config struct {
	// RPCURL is the HTTP(S) or WS endpoint of the node
	RPCURL string

	// ChainID is the expected chain id, 0 accepts whatever the node reports
	ChainID int64

	// PrivateKey is the hex-encoded signing key
	PrivateKey string

	// DialRetries and DialRetryDelay control the initial connection
	DialRetries    int
	DialRetryDelay time.Duration

	// GasPolicy and RetryPolicy are the defaults for every call
	GasPolicy   GasPolicy
	RetryPolicy RetryPolicy

	// ReadTimeout and WriteTimeout are the overall budgets per call
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// ReceiptPollInterval is how often confirmation is polled
	ReceiptPollInterval time.Duration

	Logger *logrus.Logger
}

// DefaultConfig returns a configuration with default policies and timeouts.
func DefaultConfig() Config {
	return Config{
		DialRetries:         3,
		DialRetryDelay:      time.Second,
		GasPolicy:           DefaultGasPolicy(),
		RetryPolicy:         DefaultRetryPolicy(),
		ReadTimeout:         DefaultReadTimeout,
		WriteTimeout:        DefaultWriteTimeout,
		ReceiptPollInterval: defaultPollInterval,
		Logger:              logrus.New(),
	}
}

// NewConfigFromEnv builds a configuration from the environment, loading a
// .env file when present.
func NewConfigFromEnv() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := DefaultConfig()
	config.RPCURL = os.Getenv("RPC_URL")
	config.PrivateKey = os.Getenv("SIGNER_PRIVATE_KEY")

	var err error
	if config.ChainID, err = envInt64("CHAIN_ID", 0); err != nil {
		return nil, err
	}
	if config.GasPolicy.BufferPercentage, err = envUint64("GAS_BUFFER_PERCENT", config.GasPolicy.BufferPercentage); err != nil {
		return nil, err
	}
	if config.GasPolicy.MinGasLimit, err = envUint64("GAS_MIN_LIMIT", config.GasPolicy.MinGasLimit); err != nil {
		return nil, err
	}
	if config.GasPolicy.MaxGasLimit, err = envUint64("GAS_MAX_LIMIT", config.GasPolicy.MaxGasLimit); err != nil {
		return nil, err
	}
	if config.GasPolicy.MaxPriorityFee, err = envGwei("MAX_PRIORITY_FEE_GWEI", config.GasPolicy.MaxPriorityFee); err != nil {
		return nil, err
	}
	if config.GasPolicy.MaxFeePerGas, err = envGwei("MAX_FEE_PER_GAS_GWEI", config.GasPolicy.MaxFeePerGas); err != nil {
		return nil, err
	}

	attempts, err := envInt64("RETRY_MAX_ATTEMPTS", int64(config.RetryPolicy.MaxAttempts))
	if err != nil {
		return nil, err
	}
	config.RetryPolicy.MaxAttempts = int(attempts)
	if config.RetryPolicy.BaseDelay, err = envDuration("RETRY_BASE_DELAY", config.RetryPolicy.BaseDelay); err != nil {
		return nil, err
	}
	if config.RetryPolicy.MaxDelay, err = envDuration("RETRY_MAX_DELAY", config.RetryPolicy.MaxDelay); err != nil {
		return nil, err
	}
	if v := os.Getenv("RETRY_BACKOFF_MULTIPLIER"); v != "" {
		multiplier, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid RETRY_BACKOFF_MULTIPLIER %q: %w", v, err)
		}
		config.RetryPolicy.BackoffMultiplier = multiplier
	}
	if config.ReadTimeout, err = envDuration("READ_TIMEOUT", config.ReadTimeout); err != nil {
		return nil, err
	}
	if config.WriteTimeout, err = envDuration("WRITE_TIMEOUT", config.WriteTimeout); err != nil {
		return nil, err
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		if parsedLevel, err := logrus.ParseLevel(level); err == nil {
			config.Logger.SetLevel(parsedLevel)
		}
	}

	config.Logger.WithFields(logrus.Fields{
		"rpc_url":            config.RPCURL,
		"chain_id":           config.ChainID,
		"private_key_exists": config.PrivateKey != "",
		"gas_buffer":         config.GasPolicy.BufferPercentage,
		"retry_attempts":     config.RetryPolicy.MaxAttempts,
	}).Debug("Wallet config initialized")

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the configuration and fills in missing defaults.
func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.PrivateKey == "" {
		return fmt.Errorf("signing key is required")
	}
	if err := c.GasPolicy.Validate(); err != nil {
		return fmt.Errorf("invalid gas policy: %w", err)
	}
	if err := c.RetryPolicy.Validate(); err != nil {
		return fmt.Errorf("invalid retry policy: %w", err)
	}
	if c.DialRetries < 0 {
		return fmt.Errorf("dial retries cannot be negative")
	}

	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ReceiptPollInterval <= 0 {
		c.ReceiptPollInterval = defaultPollInterval
	}
	return nil
}

// Helper function to get environment variable with default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt64(key string, defaultValue int64) (int64, error) {
	v := getEnvOrDefault(key, strconv.FormatInt(defaultValue, 10))
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}

func envUint64(key string, defaultValue uint64) (uint64, error) {
	v := getEnvOrDefault(key, strconv.FormatUint(defaultValue, 10))
	parsed, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}

func envDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := getEnvOrDefault(key, defaultValue.String())
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}

// envGwei reads a gwei amount such as "1.5" into wei.
func envGwei(key string, defaultValue *big.Int) (*big.Int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue, nil
	}
	gwei, err := decimal.NewFromString(v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return gwei.Shift(9).BigInt(), nil
}
