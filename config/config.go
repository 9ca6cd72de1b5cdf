// Package config loads the service configuration from environment variables
package config

import (
	"fmt"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment is the deployment environment of the service
type Environment string

const (
	EnvDevelopment Environment = "dev"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
)

func (e Environment) String() string {
	return string(e)
}

// ParseEnvironment accepts the short and long spellings of each environment
func ParseEnvironment(value string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "development":
		return EnvDevelopment, nil
	case "staging":
		return EnvStaging, nil
	case "prod", "production":
		return EnvProduction, nil
	case "test":
		return EnvTest, nil
	default:
		return EnvDevelopment, fmt.Errorf("ENV must be one of: [dev staging prod test], got: %s", value)
	}
}

// Config holds all application configuration
type Config struct {
	// Server
	Port              string
	Address           string
	Env               Environment
	LogLevel          string
	LogDir            string
	LogRetentionWeeks int   // Number of weeks to keep log files
	MaxLogFileSize    int64 // Maximum log file size in bytes
	MaxRequestBody    int64 // Maximum request body size in bytes
	MaxHeaderSize     int64 // Maximum header size in bytes
	RequireProxy      bool  // Reject direct requests that did not come through the proxy
	CORSOrigins       []string

	// Data
	CatalogPath string
	CuratedPath string
	DatabaseURL string // optional, enables the Postgres curated store and patient history
	DBMaxConns  int32
	DBMinConns  int32
	ReloadAt    string // gocron At() spec, times separated by ';'

	// Model
	ModelPath             string
	LabelsPath            string
	FingerprintBits       int
	FingerprintRadius     int
	SignificanceThreshold float64
	DefaultTopK           int

	// Batching
	MaxBatchPairs int
	BatchWindow   time.Duration
	BatchMaxSize  int

	// Cache
	CacheTTL           time.Duration
	CacheCapacity      int
	CacheSweepInterval time.Duration
	RedisURL           string

	// Checks
	PairTimeout      time.Duration
	ComputeTimeout   time.Duration
	MaxMedications   int
	CheckConcurrency int

	// Messaging
	KafkaBrokers []string
	KafkaTopic   string
}

// Load loads and validates configuration from environment variables.
// A .env file in the working directory is read first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnvWithDefault("PORT", "8000"),
		Address:           getEnvWithDefault("ADDRESS", "127.0.0.1"),
		LogLevel:          getEnvWithDefault("LOG_LEVEL", "info"),
		LogDir:            getEnvWithDefault("LOG_DIR", "logs"),
		LogRetentionWeeks: getIntEnvWithDefault("LOG_RETENTION_WEEKS", 4),         // 4 weeks default
		MaxLogFileSize:    getInt64EnvWithDefault("MAX_LOG_FILE_SIZE", 104857600), // 100MB default
		MaxRequestBody:    getInt64EnvWithDefault("MAX_REQUEST_BODY", 1048576),    // 1MB default
		MaxHeaderSize:     getInt64EnvWithDefault("MAX_HEADER_SIZE", 1048576),     // 1MB default
		RequireProxy:      getBoolEnvWithDefault("REQUIRE_PROXY", false),
		CORSOrigins:       splitList(getEnvWithDefault("CORS_ORIGINS", "*")),

		CatalogPath: getEnvWithDefault("CATALOG_PATH", "files/drugs.csv"),
		CuratedPath: getEnvWithDefault("CURATED_PATH", "files/twosides.csv"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  int32(getIntEnvWithDefault("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getIntEnvWithDefault("DB_MIN_CONNS", 1)),
		ReloadAt:    getEnvWithDefault("RELOAD_AT", "06:00;18:00"),

		ModelPath:             getEnvWithDefault("MODEL_PATH", "files/model.json"),
		LabelsPath:            os.Getenv("LABELS_PATH"),
		FingerprintBits:       getIntEnvWithDefault("FINGERPRINT_BITS", 512),
		FingerprintRadius:     getIntEnvWithDefault("FINGERPRINT_RADIUS", 2),
		SignificanceThreshold: getFloatEnvWithDefault("SIGNIFICANCE_THRESHOLD", 0.5),
		DefaultTopK:           getIntEnvWithDefault("DEFAULT_TOP_K", 5),

		MaxBatchPairs: getIntEnvWithDefault("MAX_BATCH_PAIRS", 100),
		BatchWindow:   getDurationEnvWithDefault("BATCH_WINDOW", 15*time.Millisecond),
		BatchMaxSize:  getIntEnvWithDefault("BATCH_MAX_SIZE", 32),

		CacheTTL:           getDurationEnvWithDefault("CACHE_TTL", 24*time.Hour),
		CacheCapacity:      getIntEnvWithDefault("CACHE_CAPACITY", 10000),
		CacheSweepInterval: getDurationEnvWithDefault("CACHE_SWEEP_INTERVAL", 10*time.Minute),
		RedisURL:           os.Getenv("REDIS_URL"),

		PairTimeout:      getDurationEnvWithDefault("PAIR_TIMEOUT", 5*time.Second),
		ComputeTimeout:   getDurationEnvWithDefault("COMPUTE_TIMEOUT", 30*time.Second),
		MaxMedications:   getIntEnvWithDefault("MAX_MEDICATIONS", 50),
		CheckConcurrency: getIntEnvWithDefault("CHECK_CONCURRENCY", 8),

		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnvWithDefault("KAFKA_TOPIC", "ddi.reports"),
	}

	env, err := ParseEnvironment(getEnvWithDefault("ENV", "dev"))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: invalid ENV: %w", err)
	}
	cfg.Env = env

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validateConfig validates all configuration values
func validateConfig(cfg *Config) error {
	// Validate PORT
	if err := validatePort(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}

	// Validate ADDRESS
	if err := validateAddress(cfg.Address); err != nil {
		return fmt.Errorf("invalid ADDRESS: %w", err)
	}

	// Validate LOG_LEVEL
	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	// Validate MAX_REQUEST_BODY
	if err := validateSizeLimit(cfg.MaxRequestBody, "MAX_REQUEST_BODY"); err != nil {
		return fmt.Errorf("invalid MAX_REQUEST_BODY: %w", err)
	}

	// Validate MAX_HEADER_SIZE
	if err := validateSizeLimit(cfg.MaxHeaderSize, "MAX_HEADER_SIZE"); err != nil {
		return fmt.Errorf("invalid MAX_HEADER_SIZE: %w", err)
	}

	// Validate LOG_RETENTION_WEEKS
	if err := validateLogRetentionWeeks(cfg.LogRetentionWeeks); err != nil {
		return fmt.Errorf("invalid LOG_RETENTION_WEEKS: %w", err)
	}

	// Validate MAX_LOG_FILE_SIZE
	if err := validateMaxLogFileSize(cfg.MaxLogFileSize); err != nil {
		return fmt.Errorf("invalid MAX_LOG_FILE_SIZE: %w", err)
	}

	if err := validatePaths(cfg); err != nil {
		return err
	}

	if err := validateReloadAt(cfg.ReloadAt); err != nil {
		return fmt.Errorf("invalid RELOAD_AT: %w", err)
	}

	if err := validateModel(cfg); err != nil {
		return err
	}

	if err := validateBatching(cfg); err != nil {
		return err
	}

	if err := validateCache(cfg); err != nil {
		return err
	}

	if err := validateChecks(cfg); err != nil {
		return err
	}

	if cfg.DBMaxConns < 1 || cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
		return fmt.Errorf("invalid DB_MAX_CONNS/DB_MIN_CONNS: need 0 <= min <= max and max >= 1, got %d/%d",
			cfg.DBMinConns, cfg.DBMaxConns)
	}

	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return fmt.Errorf("invalid KAFKA_TOPIC: a topic is required when KAFKA_BROKERS is set")
	}

	return nil
}

// validatePort validates the PORT environment variable
func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}

	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	// Check for privileged ports
	if portNum < 1024 {
		return fmt.Errorf("PORT %d is privileged (less than 1024), use ports 1024-65535", portNum)
	}

	return nil
}

// validateAddress validates the ADDRESS environment variable
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}

	if address == "127.0.0.1" || address == "::1" || address == "localhost" {
		return nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}

	if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified() {
		return fmt.Errorf("ADDRESS %s is a public IP, consider using private network ranges for security", address)
	}

	return nil
}

// validateLogLevel validates the LOG_LEVEL environment variable
func validateLogLevel(logLevel string) error {
	if logLevel == "" {
		return fmt.Errorf("LOG_LEVEL cannot be empty")
	}

	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	logLevel = strings.ToLower(logLevel)

	for _, level := range validLevels {
		if logLevel == level {
			return nil
		}
	}

	return fmt.Errorf("LOG_LEVEL must be one of: %v, got: %s", validLevels, logLevel)
}

// validateSizeLimit validates size limit configuration values
func validateSizeLimit(size int64, configName string) error {
	if size <= 0 {
		return fmt.Errorf("%s must be positive, got: %d", configName, size)
	}

	if size > 100*1024*1024 { // 100MB
		return fmt.Errorf("%s is too large (max 100MB), got: %d bytes", configName, size)
	}

	return nil
}

// validateLogRetentionWeeks validates the LOG_RETENTION_WEEKS environment variable
func validateLogRetentionWeeks(weeks int) error {
	if weeks <= 0 {
		return fmt.Errorf("LOG_RETENTION_WEEKS must be positive, got: %d", weeks)
	}

	if weeks > 52 { // 1 year maximum
		return fmt.Errorf("LOG_RETENTION_WEEKS is too large (max 52 weeks), got: %d", weeks)
	}

	return nil
}

// validateMaxLogFileSize validates the MAX_LOG_FILE_SIZE environment variable
func validateMaxLogFileSize(size int64) error {
	if size <= 0 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE must be positive, got: %d", size)
	}

	// Minimum 1MB, maximum 1GB
	if size < 1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too small (min 1MB), got: %d bytes", size)
	}

	if size > 1024*1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too large (max 1GB), got: %d bytes", size)
	}

	return nil
}

func validatePaths(cfg *Config) error {
	if cfg.CatalogPath == "" {
		return fmt.Errorf("invalid CATALOG_PATH: path cannot be empty")
	}
	if cfg.CuratedPath == "" {
		return fmt.Errorf("invalid CURATED_PATH: path cannot be empty")
	}
	if cfg.ModelPath == "" {
		return fmt.Errorf("invalid MODEL_PATH: path cannot be empty")
	}
	return nil
}

// validateReloadAt checks each ';'-separated entry is a HH:MM time
func validateReloadAt(spec string) error {
	_, err := ParseReloadTimes(spec)
	return err
}

// ParseReloadTimes returns the ';'-separated HH:MM entries of RELOAD_AT as
// offsets from midnight, sorted
func ParseReloadTimes(spec string) ([]time.Duration, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, fmt.Errorf("at least one reload time is required")
	}
	var offsets []time.Duration
	for _, at := range strings.Split(spec, ";") {
		t, err := time.Parse("15:04", strings.TrimSpace(at))
		if err != nil {
			return nil, fmt.Errorf("reload time %q must use HH:MM", at)
		}
		offsets = append(offsets, time.Duration(t.Hour())*time.Hour+time.Duration(t.Minute())*time.Minute)
	}
	slices.Sort(offsets)
	return offsets, nil
}

// NextReload returns the first reload time strictly after now, in now's location
func NextReload(now time.Time, offsets []time.Duration) time.Time {
	if len(offsets) == 0 {
		return time.Time{}
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for _, off := range offsets {
		if at := midnight.Add(off); at.After(now) {
			return at
		}
	}
	return midnight.AddDate(0, 0, 1).Add(offsets[0])
}

func validateModel(cfg *Config) error {
	if cfg.FingerprintBits < 64 || cfg.FingerprintBits > 8192 {
		return fmt.Errorf("invalid FINGERPRINT_BITS: must be between 64 and 8192, got: %d", cfg.FingerprintBits)
	}
	if cfg.FingerprintRadius < 1 || cfg.FingerprintRadius > 6 {
		return fmt.Errorf("invalid FINGERPRINT_RADIUS: must be between 1 and 6, got: %d", cfg.FingerprintRadius)
	}
	if cfg.SignificanceThreshold <= 0 || cfg.SignificanceThreshold >= 1 {
		return fmt.Errorf("invalid SIGNIFICANCE_THRESHOLD: must be in (0, 1), got: %g", cfg.SignificanceThreshold)
	}
	if cfg.DefaultTopK < 1 {
		return fmt.Errorf("invalid DEFAULT_TOP_K: must be positive, got: %d", cfg.DefaultTopK)
	}
	return nil
}

func validateBatching(cfg *Config) error {
	if cfg.MaxBatchPairs < 1 || cfg.MaxBatchPairs > 10000 {
		return fmt.Errorf("invalid MAX_BATCH_PAIRS: must be between 1 and 10000, got: %d", cfg.MaxBatchPairs)
	}
	// A zero window disables micro-batching
	if cfg.BatchWindow < 0 || cfg.BatchWindow > time.Second {
		return fmt.Errorf("invalid BATCH_WINDOW: must be between 0 and 1s, got: %s", cfg.BatchWindow)
	}
	if cfg.BatchMaxSize < 1 {
		return fmt.Errorf("invalid BATCH_MAX_SIZE: must be positive, got: %d", cfg.BatchMaxSize)
	}
	return nil
}

func validateCache(cfg *Config) error {
	if cfg.CacheTTL <= 0 {
		return fmt.Errorf("invalid CACHE_TTL: must be positive, got: %s", cfg.CacheTTL)
	}
	// Zero capacity leaves predicted records unbounded
	if cfg.CacheCapacity < 0 {
		return fmt.Errorf("invalid CACHE_CAPACITY: cannot be negative, got: %d", cfg.CacheCapacity)
	}
	if cfg.CacheSweepInterval < time.Second {
		return fmt.Errorf("invalid CACHE_SWEEP_INTERVAL: must be at least 1s, got: %s", cfg.CacheSweepInterval)
	}
	return nil
}

func validateChecks(cfg *Config) error {
	if cfg.PairTimeout <= 0 {
		return fmt.Errorf("invalid PAIR_TIMEOUT: must be positive, got: %s", cfg.PairTimeout)
	}
	if cfg.ComputeTimeout < cfg.PairTimeout {
		return fmt.Errorf("invalid COMPUTE_TIMEOUT: must be at least PAIR_TIMEOUT (%s), got: %s", cfg.PairTimeout, cfg.ComputeTimeout)
	}
	if cfg.MaxMedications < 2 || cfg.MaxMedications > 500 {
		return fmt.Errorf("invalid MAX_MEDICATIONS: must be between 2 and 500, got: %d", cfg.MaxMedications)
	}
	if cfg.CheckConcurrency < 1 {
		return fmt.Errorf("invalid CHECK_CONCURRENCY: must be positive, got: %d", cfg.CheckConcurrency)
	}
	return nil
}

// getEnvWithDefault gets an environment variable with a default value
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnvWithDefault gets an environment variable as int with a default value
func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64EnvWithDefault gets an environment variable as int64 with a default value
func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnvWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnvWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getDurationEnvWithDefault accepts Go durations ("15ms", "24h")
func getDurationEnvWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetEnvVars returns a list of all expected environment variables
func GetEnvVars() []string {
	return []string{
		"PORT",
		"ADDRESS",
		"ENV",
		"LOG_LEVEL",
		"LOG_DIR",
		"LOG_RETENTION_WEEKS",
		"MAX_LOG_FILE_SIZE",
		"MAX_REQUEST_BODY",
		"MAX_HEADER_SIZE",
		"REQUIRE_PROXY",
		"CORS_ORIGINS",
		"CATALOG_PATH",
		"CURATED_PATH",
		"DATABASE_URL",
		"DB_MAX_CONNS",
		"DB_MIN_CONNS",
		"RELOAD_AT",
		"MODEL_PATH",
		"LABELS_PATH",
		"FINGERPRINT_BITS",
		"FINGERPRINT_RADIUS",
		"SIGNIFICANCE_THRESHOLD",
		"DEFAULT_TOP_K",
		"MAX_BATCH_PAIRS",
		"BATCH_WINDOW",
		"BATCH_MAX_SIZE",
		"CACHE_TTL",
		"CACHE_CAPACITY",
		"CACHE_SWEEP_INTERVAL",
		"REDIS_URL",
		"PAIR_TIMEOUT",
		"COMPUTE_TIMEOUT",
		"MAX_MEDICATIONS",
		"CHECK_CONCURRENCY",
		"KAFKA_BROKERS",
		"KAFKA_TOPIC",
	}
}
