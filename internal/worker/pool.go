// Package worker runs the API's background work: an audit pool that moves
// prediction events off the request path into ClickHouse in batches, and a
// watcher that keeps the served model current.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/hoopsml/shotpredict/internal/models"
)

var (
	eventsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shotpredict_audit_events_ingested_total",
		Help: "Audit events accepted into the queue",
	})

	eventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shotpredict_audit_events_processed_total",
		Help: "Audit events written to ClickHouse",
	})

	eventsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shotpredict_audit_events_failed_total",
		Help: "Audit events lost to failed batch writes",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shotpredict_audit_queue_depth",
		Help: "Audit events waiting to be written",
	})

	batchInsertDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shotpredict_audit_batch_insert_duration_seconds",
		Help:    "Time spent writing one audit batch",
		Buckets: prometheus.DefBuckets,
	})

	eventsLoadShed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shotpredict_audit_events_load_shed_total",
		Help: "Audit events dropped because the queue was full or closed",
	})
)

// AuditTable receives one row per scored request.
const AuditTable = "shot_predictions"

// BatchConn is the part of a ClickHouse connection the pool writes through.
type BatchConn interface {
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
}

// Job is a queued event stamped with its arrival time.
type Job struct {
	Event      *models.PredictionEvent
	ReceivedAt time.Time
}

type PoolConfig struct {
	WorkerCount   int
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
	ClickHouse    BatchConn
	Logger        *zap.Logger
}

// Pool batches audit events into ClickHouse from a fixed set of workers.
type Pool struct {
	config   PoolConfig
	jobQueue chan Job
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.SugaredLogger

	mu     sync.RWMutex // guards closed against Enqueue racing Stop
	closed bool
}

func NewPool(cfg PoolConfig) *Pool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	return &Pool{
		config:   cfg,
		jobQueue: make(chan Job, cfg.QueueSize),
		logger:   cfg.Logger.Sugar(),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	go p.reportQueueDepth()

	p.logger.Infow("Audit pool running",
		"workers", p.config.WorkerCount,
		"queueSize", p.config.QueueSize,
		"batchSize", p.config.BatchSize,
	)
}

// Stop closes the queue and waits for workers to drain and flush it.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobQueue)
	p.mu.Unlock()

	p.logger.Info("Draining audit queue")
	p.wg.Wait()
	if p.cancel != nil {
		p.cancel()
	}
	p.logger.Info("Audit pool stopped")
}

// Enqueue adds an event to the queue without blocking. It returns false and
// sheds the event when the queue is full or the pool is stopped.
func (p *Pool) Enqueue(event *models.PredictionEvent) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		eventsLoadShed.Inc()
		return false
	}

	select {
	case p.jobQueue <- Job{Event: event, ReceivedAt: time.Now()}:
		eventsIngested.Inc()
		return true
	default:
		eventsLoadShed.Inc()
		return false
	}
}

func (p *Pool) QueueDepth() int {
	return len(p.jobQueue)
}

// worker drains the queue in batches until it is closed.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	batch := make([]Job, 0, p.config.BatchSize)
	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		start := time.Now()
		if err := p.processBatch(batch); err != nil {
			p.logger.Errorw("Audit batch failed",
				"worker", id,
				"batchSize", len(batch),
				"error", err,
			)
			eventsFailed.Add(float64(len(batch)))
		} else {
			p.logger.Debugw("Audit batch written", "worker", id, "batchSize", len(batch), "duration", time.Since(start))
			eventsProcessed.Add(float64(len(batch)))
		}
		batchInsertDuration.Observe(time.Since(start).Seconds())

		batch = batch[:0]
	}

	for {
		select {
		case job, ok := <-p.jobQueue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, job)
			if len(batch) >= p.config.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

// processBatch writes jobs with a single INSERT. Rows that fail to append
// are logged and skipped.
func (p *Pool) processBatch(batch []Job) error {
	if len(batch) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.config.WriteTimeout)
	defer cancel()

	chBatch, err := p.config.ClickHouse.PrepareBatch(ctx, `
		INSERT INTO `+AuditTable+` (
			event_id, timestamp, received_at, prediction_id, username, model_version,
			outcome, prediction, probability,
			shot_distance, x_location, y_location, period,
			latency_ms, raw_json
		)
	`)
	if err != nil {
		return err
	}

	appended := 0
	for _, job := range batch {
		e := job.Event
		err := chBatch.Append(
			e.EventID,
			e.Timestamp,
			job.ReceivedAt,
			e.PredictionID,
			e.Username,
			e.ModelVersion,
			e.Outcome,
			e.Prediction,
			e.Probability,
			e.ShotDistance,
			e.XLocation,
			e.YLocation,
			e.Period,
			e.LatencyMs,
			e.RawJSON,
		)
		if err != nil {
			p.logger.Warnw("Failed to append audit event to batch", "error", err, "event_id", e.EventID)
			continue
		}
		appended++
	}
	if appended == 0 {
		_ = chBatch.Abort()
		return fmt.Errorf("no events of %d could be appended", len(batch))
	}

	if err := chBatch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func (p *Pool) reportQueueDepth() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			queueDepth.Set(float64(len(p.jobQueue)))
		case <-p.ctx.Done():
			return
		}
	}
}

// Execer runs DDL against ClickHouse.
type Execer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// EnsureAuditTable creates the audit table if it is missing.
func EnsureAuditTable(ctx context.Context, conn Execer) error {
	err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+AuditTable+` (
			event_id      UUID,
			timestamp     DateTime64(3),
			received_at   DateTime64(3),
			prediction_id Int64,
			username      LowCardinality(String),
			model_version LowCardinality(String),
			outcome       LowCardinality(String),
			prediction    UInt8,
			probability   Float32,
			shot_distance Float32,
			x_location    Float32,
			y_location    Float32,
			period        UInt8,
			latency_ms    Float32,
			raw_json      String
		)
		ENGINE = MergeTree
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (timestamp, event_id)
	`)
	if err != nil {
		return fmt.Errorf("create %s: %w", AuditTable, err)
	}
	return nil
}
