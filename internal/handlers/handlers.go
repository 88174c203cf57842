package handlers

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hoopsml/shotpredict/internal/logic"
	"github.com/hoopsml/shotpredict/internal/models"
)

// MaxBodySize limits the size of request bodies to 1MB
const MaxBodySize = 1048576

// AuditQueue defines the interface for the prediction audit worker pool
type AuditQueue interface {
	Enqueue(event *models.PredictionEvent) bool
	QueueDepth() int
}

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Config struct {
	AuditQueue AuditQueue // optional
	Postgres   Pinger
	ClickHouse Pinger // optional
	Redis      Pinger // optional
	Logger     *zap.Logger

	// Services
	Auth        logic.AuthService
	Predictions logic.PredictionStore
	Predictor   logic.Predictor

	// Router
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	AuthRateLimit     int
}

type Handler struct {
	audit       AuditQueue
	deps        map[string]Pinger
	logger      *zap.SugaredLogger
	validator   *validator.Validate
	auth        logic.AuthService
	predictions logic.PredictionStore
	predictor   logic.Predictor
	cfg         Config
}

func New(cfg Config) *Handler {
	deps := map[string]Pinger{}
	for name, p := range map[string]Pinger{
		"postgres":   cfg.Postgres,
		"clickhouse": cfg.ClickHouse,
		"redis":      cfg.Redis,
	} {
		if p != nil {
			deps[name] = p
		}
	}

	return &Handler{
		audit:       cfg.AuditQueue,
		deps:        deps,
		logger:      cfg.Logger.Sugar(),
		validator:   validator.New(),
		auth:        cfg.Auth,
		predictions: cfg.Predictions,
		predictor:   cfg.Predictor,
		cfg:         cfg,
	}
}
