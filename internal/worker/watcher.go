package worker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hoopsml/shotpredict/internal/registry"
)

// Reloader swaps in the newest promoted model when it changes.
type Reloader interface {
	Reload() (bool, error)
}

// Subscriber is the subset of the Redis client the watcher listens with.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// WatcherConfig configures a ModelWatcher.
type WatcherConfig struct {
	Reloader     Reloader
	PollInterval time.Duration
	Redis        Subscriber // optional
	Channel      string
	Logger       *zap.Logger
}

// ModelWatcher keeps a predictor on the latest promoted model. It reloads on
// promotion announcements when Redis is configured, and on a poll ticker
// regardless, so a missed message only delays the swap.
type ModelWatcher struct {
	cfg    WatcherConfig
	logger *zap.SugaredLogger
	wake   chan struct{}
	done   chan struct{}
}

func NewModelWatcher(cfg WatcherConfig) *ModelWatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	return &ModelWatcher{
		cfg:    cfg,
		logger: cfg.Logger.Sugar(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Notify requests a reload. Requests arriving while one is pending coalesce.
func (w *ModelWatcher) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Done is closed when Run returns.
func (w *ModelWatcher) Done() <-chan struct{} { return w.done }

// Run loads the current model and then watches for changes until ctx ends.
func (w *ModelWatcher) Run(ctx context.Context) {
	defer close(w.done)

	w.reload("startup")

	if w.cfg.Redis != nil && w.cfg.Channel != "" {
		go w.listen(ctx)
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reload("poll")
		case <-w.wake:
			w.reload("notification")
		}
	}
}

func (w *ModelWatcher) listen(ctx context.Context) {
	sub := w.cfg.Redis.Subscribe(ctx, w.cfg.Channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() == nil {
			w.logger.Warnw("Model channel subscription failed, relying on polling", "channel", w.cfg.Channel, "error", err)
		}
		return
	}
	w.logger.Infow("Subscribed to model promotions", "channel", w.cfg.Channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.logger.Debugw("Model promotion announced", "payload", msg.Payload)
			w.Notify()
		}
	}
}

func (w *ModelWatcher) reload(trigger string) {
	changed, err := w.cfg.Reloader.Reload()
	switch {
	case errors.Is(err, registry.ErrNoModel):
		w.logger.Warnw("No promoted model yet", "trigger", trigger)
	case err != nil:
		w.logger.Errorw("Model reload failed", "trigger", trigger, "error", err)
	case changed:
		w.logger.Infow("Model reloaded", "trigger", trigger)
	}
}
