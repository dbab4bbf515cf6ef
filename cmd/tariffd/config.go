package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultAddr             = "127.0.0.1:8085"
	defaultWindowDays       = 30
	defaultMinCustomers     = 25
	defaultRefreshInterval  = 30 * time.Second
	defaultInferenceTimeout = 250 * time.Millisecond
	defaultRetrainInterval  = 6 * time.Hour
	defaultTrainingSeed     = 42
)

// Config is the daemon's full configuration surface. Environment variables
// provide defaults; flags override.
type Config struct {
	DBPath      string
	CatalogPath string
	Addr        string

	// Blob storage: S3 when Endpoint is set, local directory otherwise.
	BlobDir     string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	// RedisAddr switches the training lease to Redis for multi-node setups.
	RedisAddr string

	WindowDays       int
	MinCustomers     int
	RefreshInterval  time.Duration
	InferenceTimeout time.Duration
	RetrainInterval  time.Duration
	TrainingSeed     int64

	LogLevel  string
	LogFormat string
}

// LoadConfig resolves the daemon configuration from env and flags.
func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	dbPath := envOrDefault("TARIFFWISE_DB_PATH", filepath.Join(cwd, "tariffwise.db"))
	catalogPath := envOrDefault("TARIFFWISE_CATALOG_PATH", filepath.Join(cwd, "catalog.json"))
	blobDir := envOrDefault("TARIFFWISE_BLOB_DIR", filepath.Join(cwd, "blobs"))
	addr := addrFromEnv(defaultAddr)

	windowDays, err := envInt("TARIFFWISE_WINDOW_DAYS", defaultWindowDays)
	if err != nil {
		return Config{}, err
	}
	minCustomers, err := envInt("TARIFFWISE_MIN_CUSTOMERS", defaultMinCustomers)
	if err != nil {
		return Config{}, err
	}
	refreshInterval, err := envDuration("TARIFFWISE_REFRESH_INTERVAL", defaultRefreshInterval)
	if err != nil {
		return Config{}, err
	}
	inferenceTimeout, err := envDuration("TARIFFWISE_INFERENCE_TIMEOUT", defaultInferenceTimeout)
	if err != nil {
		return Config{}, err
	}
	retrainInterval, err := envDuration("TARIFFWISE_RETRAIN_INTERVAL", defaultRetrainInterval)
	if err != nil {
		return Config{}, err
	}
	seed, err := envInt("TARIFFWISE_TRAINING_SEED", defaultTrainingSeed)
	if err != nil {
		return Config{}, err
	}

	flagSet := flag.NewFlagSet("tariffd", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagDB := flagSet.String("db", dbPath, "path to SQLite database")
	flagCatalog := flagSet.String("catalog", catalogPath, "path to plan catalog JSON")
	flagAddr := flagSet.String("addr", addr, "HTTP listen address")
	flagBlobDir := flagSet.String("blob-dir", blobDir, "local blob store root (ignored when --s3-endpoint is set)")
	flagS3Endpoint := flagSet.String("s3-endpoint", os.Getenv("TARIFFWISE_S3_ENDPOINT"), "S3-compatible endpoint for blob storage")
	flagS3Bucket := flagSet.String("s3-bucket", envOrDefault("TARIFFWISE_S3_BUCKET", "tariffwise"), "S3 bucket name")
	flagRedis := flagSet.String("redis", os.Getenv("TARIFFWISE_REDIS_ADDR"), "Redis address for the training lease (optional)")
	flagWindow := flagSet.Int("window-days", windowDays, "aggregation window in days")
	flagMinCustomers := flagSet.Int("min-customers", minCustomers, "minimum distinct customers required to train")
	flagRefresh := flagSet.Duration("refresh-interval", refreshInterval, "classifier cache refresh interval")
	flagTimeout := flagSet.Duration("inference-timeout", inferenceTimeout, "per-request inference timeout")
	flagRetrain := flagSet.Duration("retrain-interval", retrainInterval, "periodic retraining interval")
	flagSeed := flagSet.Int64("seed", int64(seed), "training random seed")
	flagLogLevel := flagSet.String("log-level", envOrDefault("TARIFFWISE_LOG_LEVEL", "info"), "log level")
	flagLogFormat := flagSet.String("log-format", envOrDefault("TARIFFWISE_LOG_FORMAT", "console"), "log format: console|json")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
			return Config{}, err
		}
		return Config{}, err
	}

	config := Config{
		DBPath:           resolvePath(*flagDB, cwd),
		CatalogPath:      resolvePath(*flagCatalog, cwd),
		Addr:             strings.TrimSpace(*flagAddr),
		BlobDir:          resolvePath(*flagBlobDir, cwd),
		S3Endpoint:       strings.TrimSpace(*flagS3Endpoint),
		S3AccessKey:      os.Getenv("TARIFFWISE_S3_ACCESS_KEY"),
		S3SecretKey:      os.Getenv("TARIFFWISE_S3_SECRET_KEY"),
		S3Bucket:         strings.TrimSpace(*flagS3Bucket),
		S3UseSSL:         os.Getenv("TARIFFWISE_S3_SSL") == "true",
		RedisAddr:        strings.TrimSpace(*flagRedis),
		WindowDays:       *flagWindow,
		MinCustomers:     *flagMinCustomers,
		RefreshInterval:  *flagRefresh,
		InferenceTimeout: *flagTimeout,
		RetrainInterval:  *flagRetrain,
		TrainingSeed:     *flagSeed,
		LogLevel:         *flagLogLevel,
		LogFormat:        *flagLogFormat,
	}

	if config.Addr == "" {
		return Config{}, errors.New("addr cannot be empty")
	}
	if config.WindowDays <= 0 {
		return Config{}, errors.New("window-days must be positive")
	}
	if config.MinCustomers <= 0 {
		return Config{}, errors.New("min-customers must be positive")
	}
	if config.S3Endpoint != "" && config.S3Bucket == "" {
		return Config{}, errors.New("s3-endpoint requires s3-bucket")
	}

	return config, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	var parsed int
	if _, err := fmt.Sscanf(value, "%d", &parsed); err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func addrFromEnv(fallback string) string {
	if value := os.Getenv("TARIFFWISE_ADDR"); value != "" {
		return value
	}
	if port := os.Getenv("TARIFFWISE_PORT"); port != "" {
		return fmt.Sprintf("127.0.0.1:%s", port)
	}
	return fallback
}

func resolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}
