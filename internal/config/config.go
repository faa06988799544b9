package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Upstream data services.
	MICAPSURL         string
	CIMISSURL         string
	CIMISSUser        string
	CIMISSPassword    string
	SourceTimeout     time.Duration
	SourceRateLimit   float64 // requests per second across each connector
	SourceMaxAttempts int     // chart run attempts on transient source failures

	// Chart production.
	ChartWorkers  int
	UnitTablePath string
	CatalogPath   string
}

// Load reads configuration from environment variables, applying defaults
// where unset. Variables from an optional .env file (ENV_FILE) fill in
// anything the environment does not already set.
func Load() (*Config, error) {
	if err := loadDotenv(sharedcfg.EnvOrDefault("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	sourceTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("SOURCE_TIMEOUT", "10s"))
	if err != nil || sourceTimeout <= 0 {
		return nil, errors.New("invalid SOURCE_TIMEOUT")
	}

	rateLimit, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("SOURCE_RATE_LIMIT", "5"), 64)
	if err != nil || rateLimit <= 0 {
		return nil, errors.New("invalid SOURCE_RATE_LIMIT: must be a positive number")
	}

	maxAttempts, err := parsePositiveInt("SOURCE_MAX_ATTEMPTS", 3, 10)
	if err != nil {
		return nil, err
	}

	workers, err := parsePositiveInt("CHART_WORKERS", 4, 64)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "chart-requests"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "chart-payloads"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "met-diagnostics-etl"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		MICAPSURL:         sharedcfg.EnvOrDefault("MICAPS_URL", "http://localhost:8081/micaps"),
		CIMISSURL:         sharedcfg.EnvOrDefault("CIMISS_URL", "http://localhost:8082/cimiss-web/api"),
		CIMISSUser:        os.Getenv("CIMISS_USER"),
		CIMISSPassword:    os.Getenv("CIMISS_PASSWORD"),
		SourceTimeout:     sourceTimeout,
		SourceRateLimit:   rateLimit,
		SourceMaxAttempts: maxAttempts,

		ChartWorkers:  workers,
		UnitTablePath: os.Getenv("UNIT_TABLE_PATH"),
		CatalogPath:   os.Getenv("CATALOG_PATH"),
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.MICAPSURL == "" {
		return nil, errors.New("MICAPS_URL is required")
	}
	if (cfg.CIMISSUser == "") != (cfg.CIMISSPassword == "") {
		return nil, errors.New("CIMISS_USER and CIMISS_PASSWORD must be set together")
	}

	return cfg, nil
}

// CIMISSEnabled reports whether station observations can be queried.
func (c *Config) CIMISSEnabled() bool {
	return c.CIMISSURL != "" && c.CIMISSUser != ""
}

func loadDotenv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func parsePositiveInt(key string, def, maxVal int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > maxVal {
		return 0, fmt.Errorf("invalid %s: must be between 1 and %d", key, maxVal)
	}
	return n, nil
}
