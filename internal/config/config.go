package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Paths groups every file-system location the pipeline reads or writes.
type Paths struct {
	DataDir         string
	NewDataFile     string
	HistoricalFile  string
	RawFile         string
	ProcessedFile   string
	BundleFile      string
	PredictionsFile string

	ModelDir        string
	StagingDir      string
	DiscardedDir    string
	BestMetricsFile string

	SignalDir string
	LockDir   string
}

// Pipeline configures the batch training pipeline and the model it produces.
type Pipeline struct {
	Paths

	ModelBaseName string
	ModelExt      string

	Seed         uint64
	TestFraction float64
	ScaleNumeric bool

	// Hyperparameters used when Search is false.
	Solver       string
	C            float64
	MaxIter      int
	LearningRate float64
	Search       bool

	StageTimeout time.Duration
	Schedule     string
	MetricsPort  int
	SampleRatio  float64

	// Optional. Enables the Redis stage lock and promotion notifications.
	RedisURL string
}

type Config struct {
	// Server
	Port     int
	Env      string
	LogLevel string

	// CORS
	AllowedOrigins []string

	// Database URLs
	PostgresURL   string
	ClickHouseURL string
	RedisURL      string

	// Prediction service. Empty means the API serves the model in-process.
	PredictionServiceURL string
	PredictionTimeout    time.Duration
	BreakerFailures      uint32
	BreakerTimeout       time.Duration
	ModelPollInterval    time.Duration

	// Worker pool
	WorkerCount   int
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration

	// Auth
	JWTSecret      string
	AccessTokenTTL time.Duration
	DefaultUser    string
	DefaultPass    string

	// Rate limiting
	RateLimitRequests int           // per client IP per window
	RateLimitWindow   time.Duration
	AuthRateLimit     int           // per client IP per window on /auth

	Pipeline Pipeline
}

// LoadPipeline loads the pipeline configuration from environment variables.
// Every value has a default so stages can run from a bare checkout.
func LoadPipeline() Pipeline {
	dataDir := getEnv("DATA_DIR", "data")
	modelDir := getEnv("MODEL_DIR", "trained_models")

	p := Pipeline{
		Paths: Paths{
			DataDir:         dataDir,
			NewDataFile:     getEnv("NEW_DATA_FILE", filepath.Join(dataDir, "new_data", "new_data.csv")),
			HistoricalFile:  getEnv("HISTORICAL_FILE", filepath.Join(dataDir, "raw", "shots-original.csv")),
			RawFile:         getEnv("RAW_FILE", filepath.Join(dataDir, "raw", "shots.csv")),
			ProcessedFile:   getEnv("PROCESSED_FILE", filepath.Join(dataDir, "processed", "shots-processed.csv")),
			BundleFile:      getEnv("BUNDLE_FILE", filepath.Join(dataDir, "processed", "shots-train-test.json")),
			PredictionsFile: getEnv("PREDICTIONS_FILE", filepath.Join(dataDir, "predictions", "predictions.csv")),

			ModelDir:        modelDir,
			StagingDir:      getEnv("MODEL_STAGING_DIR", filepath.Join(modelDir, ".staging")),
			DiscardedDir:    getEnv("MODEL_DISCARDED_DIR", filepath.Join(modelDir, "discarded")),
			BestMetricsFile: getEnv("BEST_METRICS_FILE", filepath.Join(modelDir, "best_metrics.json")),

			SignalDir: getEnv("SIGNAL_DIR", filepath.Join(dataDir, "signals")),
			LockDir:   getEnv("LOCK_DIR", filepath.Join(dataDir, "locks")),
		},

		ModelBaseName: getEnv("MODEL_BASE_NAME", "model_lr"),
		ModelExt:      getEnv("MODEL_EXT", "json"),

		Seed:         uint64(getEnvInt("SPLIT_SEED", 66)),
		TestFraction: getEnvFloat("TEST_FRACTION", 0.2),
		ScaleNumeric: getEnvBool("SCALE_NUMERIC", false),

		Solver:       getEnv("MODEL_SOLVER", "lbfgs"),
		C:            getEnvFloat("MODEL_C", 1.0),
		MaxIter:      getEnvInt("MODEL_MAX_ITER", 1000),
		LearningRate: getEnvFloat("MODEL_LEARNING_RATE", 0.1),
		Search:       getEnvBool("MODEL_SEARCH", false),

		StageTimeout: getEnvDuration("STAGE_TIMEOUT", 30*time.Minute),
		Schedule:     getEnv("PIPELINE_SCHEDULE", "0 3 * * *"),
		MetricsPort:  getEnvInt("PIPELINE_METRICS_PORT", 9102),
		SampleRatio:  getEnvFloat("SAMPLE_RATIO", 0.1),

		RedisURL: os.Getenv("REDIS_URL"),
	}
	return p
}

// PredictorService configures the standalone model serving process.
type PredictorService struct {
	Port         int
	Env          string
	LogLevel     string
	RedisURL     string
	PollInterval time.Duration
	Pipeline     Pipeline
}

// LoadPredictorService loads the serving configuration. It shares the model
// registry settings with the pipeline.
func LoadPredictorService() PredictorService {
	return PredictorService{
		Port:         getEnvInt("PREDICTOR_PORT", 8000),
		Env:          getEnv("ENV", "development"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		RedisURL:     os.Getenv("REDIS_URL"),
		PollInterval: getEnvDuration("MODEL_POLL_INTERVAL", time.Minute),
		Pipeline:     LoadPipeline(),
	}
}

// Load loads configuration from environment variables.
// It returns an error if critical configuration is missing.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     getEnvInt("PORT", 8080),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ClickHouseURL: os.Getenv("CLICKHOUSE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),

		PredictionServiceURL: os.Getenv("PREDICTION_SERVICE_URL"),
		PredictionTimeout:    getEnvDuration("PREDICTION_TIMEOUT", 5*time.Second),
		BreakerFailures:      uint32(getEnvInt("BREAKER_FAILURES", 5)),
		BreakerTimeout:       getEnvDuration("BREAKER_TIMEOUT", 30*time.Second),
		ModelPollInterval:    getEnvDuration("MODEL_POLL_INTERVAL", time.Minute),

		WorkerCount:   getEnvInt("WORKER_COUNT", 2),
		QueueSize:     getEnvInt("QUEUE_SIZE", 10000),
		BatchSize:     getEnvInt("BATCH_SIZE", 500),
		FlushInterval: getEnvDuration("FLUSH_INTERVAL", 1*time.Second),

		AccessTokenTTL: getEnvDuration("ACCESS_TOKEN_TTL", 30*time.Minute),
		DefaultUser:    os.Getenv("DEFAULT_USERNAME"),
		DefaultPass:    os.Getenv("DEFAULT_PASSWORD"),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		AuthRateLimit:     getEnvInt("AUTH_RATE_LIMIT", 10),

		Pipeline: LoadPipeline(),
	}

	// CORS
	origins := getEnv("ALLOWED_ORIGINS", "http://localhost:3000")
	for _, o := range strings.Split(origins, ",") {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
		}
	}

	// Critical configuration - fail if missing
	var err error
	if cfg.PostgresURL, err = getEnvRequired("POSTGRES_URL"); err != nil {
		return nil, err
	}
	if cfg.JWTSecret, err = getEnvRequired("JWT_SECRET"); err != nil {
		return nil, err
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvRequired(key string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("missing required environment variable: %s", key)
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
