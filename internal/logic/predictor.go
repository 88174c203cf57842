package logic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/hoopsml/shotpredict/internal/model"
	"github.com/hoopsml/shotpredict/internal/models"
	"github.com/hoopsml/shotpredict/internal/registry"
)

// =============================================================================
// LOCAL PREDICTOR
// =============================================================================

type loadedModel struct {
	artifact *model.Artifact
	path     string
	version  string
	modTime  time.Time
	loadedAt time.Time
}

// LocalPredictor serves the latest promoted artifact in-process. Predict
// reads the current model through an atomic pointer, so reloads never block
// scoring.
type LocalPredictor struct {
	dir    string
	base   string
	ext    string
	logger *zap.SugaredLogger

	current atomic.Pointer[loadedModel]
	mu      sync.Mutex // serialises reloads
}

func NewLocalPredictor(cfg registry.Config, logger *zap.Logger) *LocalPredictor {
	return &LocalPredictor{
		dir:    cfg.ModelDir,
		base:   cfg.Base,
		ext:    cfg.Ext,
		logger: logger.Sugar(),
	}
}

// Reload loads the newest promoted artifact unless it is already being
// served. It reports whether the served model changed. On error the previous
// model stays in place.
func (p *LocalPredictor) Reload() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	path, err := registry.FindLatest(p.dir, p.base, p.ext)
	if err != nil {
		modelReloads.WithLabelValues("error").Inc()
		return false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		modelReloads.WithLabelValues("error").Inc()
		return false, err
	}
	if cur := p.current.Load(); cur != nil && cur.path == path && cur.modTime.Equal(info.ModTime()) {
		modelReloads.WithLabelValues("unchanged").Inc()
		return false, nil
	}

	art, err := model.Load(path)
	if err != nil {
		modelReloads.WithLabelValues("error").Inc()
		return false, err
	}

	name := filepath.Base(path)
	next := &loadedModel{
		artifact: art,
		path:     path,
		version:  strings.TrimSuffix(name, filepath.Ext(name)),
		modTime:  info.ModTime(),
		loadedAt: time.Now().UTC(),
	}
	prev := p.current.Swap(next)
	modelReloads.WithLabelValues("loaded").Inc()

	fields := []interface{}{"model", next.version, "accuracy", art.Accuracy, "columns", len(art.Columns)}
	if prev != nil {
		fields = append(fields, "previous", prev.version)
	}
	p.logger.Infow("Loaded model", fields...)
	return true, nil
}

func (p *LocalPredictor) Predict(ctx context.Context, item *models.ScoringItem) (*models.Prediction, error) {
	m := p.current.Load()
	if m == nil {
		return nil, ErrModelNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	pred, prob, err := m.artifact.Predict(item.Features())
	inferenceSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFeatures, err)
	}

	return &models.Prediction{
		Prediction:   pred,
		Probability:  prob,
		ModelVersion: m.version,
	}, nil
}

// Info describes the served model.
func (p *LocalPredictor) Info() (*models.ModelInfo, error) {
	m := p.current.Load()
	if m == nil {
		return nil, ErrModelNotLoaded
	}
	return &models.ModelInfo{
		Name:      m.version,
		Version:   m.artifact.Version,
		Accuracy:  m.artifact.Accuracy,
		Columns:   len(m.artifact.Columns),
		TrainedAt: m.artifact.TrainedAt,
		LoadedAt:  m.loadedAt,
	}, nil
}

// =============================================================================
// REMOTE PREDICTOR
// =============================================================================

type RemoteConfig struct {
	BaseURL     string
	Timeout     time.Duration
	MaxFailures uint32        // consecutive failures before the circuit opens
	OpenTimeout time.Duration // how long the circuit stays open
}

// RemotePredictor calls the prediction service over HTTP behind a circuit
// breaker. Transport failures and 5xx responses count against the breaker;
// a rejected feature vector does not.
type RemotePredictor struct {
	url    string
	client *http.Client
	cb     *gobreaker.CircuitBreaker[*models.Prediction]
	logger *zap.SugaredLogger
}

func NewRemotePredictor(cfg RemoteConfig, logger *zap.Logger) *RemotePredictor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	sugar := logger.Sugar()

	cb := gobreaker.NewCircuitBreaker[*models.Prediction](gobreaker.Settings{
		Name:        "prediction-service",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrInvalidFeatures) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.Set(stateToFloat(to))
			sugar.Warnw("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &RemotePredictor{
		url:    strings.TrimRight(cfg.BaseURL, "/") + "/predict",
		client: &http.Client{Timeout: cfg.Timeout},
		cb:     cb,
		logger: sugar,
	}
}

func (p *RemotePredictor) Predict(ctx context.Context, item *models.ScoringItem) (*models.Prediction, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	pred, err := p.cb.Execute(func() (*models.Prediction, error) {
		return p.call(ctx, body)
	})
	inferenceSeconds.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		breakerRequests.WithLabelValues("success").Inc()
		return pred, nil
	case errors.Is(err, ErrInvalidFeatures):
		breakerRequests.WithLabelValues("rejected_input").Inc()
		return nil, err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		breakerRequests.WithLabelValues("short_circuit").Inc()
	default:
		breakerRequests.WithLabelValues("failure").Inc()
	}
	return nil, fmt.Errorf("%w: %v", ErrPredictorUnavailable, err)
}

func (p *RemotePredictor) call(ctx context.Context, body []byte) (*models.Prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var pred models.Prediction
		if err := json.Unmarshal(payload, &pred); err != nil {
			return nil, fmt.Errorf("decode prediction: %w", err)
		}
		if pred.Prediction != 0 && pred.Prediction != 1 {
			return nil, fmt.Errorf("prediction service returned %d", pred.Prediction)
		}
		return &pred, nil
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(payload, &e)
		return nil, fmt.Errorf("%w: %s", ErrInvalidFeatures, e.Error)
	default:
		return nil, fmt.Errorf("prediction service returned status %d", resp.StatusCode)
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
