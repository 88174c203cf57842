package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lock names. Each guards one single-writer artifact.
const (
	LockRawDataset    = "raw-dataset"
	LockModelRegistry = "model-registry"
)

// ErrLocked is returned when another run holds the lock.
var ErrLocked = errors.New("lock held by another run")

// Locker serializes writers of a named artifact across processes.
type Locker interface {
	Acquire(ctx context.Context, name string) (release func() error, err error)
}

// FileLocker takes an advisory flock on <dir>/<name>.lock. The kernel drops
// the lock when its holder exits, so a crashed run never blocks the next one.
// The lock file itself is left in place.
type FileLocker struct {
	dir  string
	wait time.Duration
}

// NewFileLocker returns a locker that waits up to wait for a held lock
// before giving up with ErrLocked. A zero wait fails at once.
func NewFileLocker(dir string, wait time.Duration) *FileLocker {
	return &FileLocker{dir: dir, wait: wait}
}

func (l *FileLocker) Acquire(ctx context.Context, name string) (func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	fl := flock.New(filepath.Join(l.dir, name+".lock"))

	var (
		ok  bool
		err error
	)
	if l.wait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, l.wait)
		ok, err = fl.TryLockContext(waitCtx, 100*time.Millisecond)
		cancel()
		if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			ok, err = false, nil
		}
	} else {
		ok, err = fl.TryLock()
	}
	if err != nil {
		_ = fl.Close()
		return nil, fmt.Errorf("lock %s: %w", name, err)
	}
	if !ok {
		_ = fl.Close()
		return nil, fmt.Errorf("%w: %s", ErrLocked, name)
	}
	return fl.Unlock, nil
}

// RedisLockClient is the subset of the Redis client RedisLocker needs.
type RedisLockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Deletes the key only if it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// RedisLocker takes locks with SET NX and a TTL so a crashed holder cannot
// block other runs forever. It works across hosts sharing one Redis.
type RedisLocker struct {
	client RedisLockClient
	prefix string
	ttl    time.Duration
}

func NewRedisLocker(client RedisLockClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, prefix: "shotpredict:lock:", ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, name string) (func() error, error) {
	key := l.prefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, name)
	}

	return func() error {
		// The stage context may already be done; release on a fresh one.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return l.client.Eval(ctx, releaseScript, []string{key}, token).Err()
	}, nil
}
