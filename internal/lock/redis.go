package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Options tunes how a Redis lock is acquired.
type Options struct {
	Prefix     string
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Prefix:     "artsale:lock:",
		Expiry:     10 * time.Second,
		Tries:      32,
		RetryDelay: 50 * time.Millisecond,
	}
}

// Redis is a distributed keyed lock backed by redsync, for deployments
// running more than one instance against the same store.
type Redis struct {
	rs     *redsync.Redsync
	opts   Options
	logger *zap.Logger
}

// NewRedis builds a Redis lock over an existing go-redis client.
func NewRedis(client goredislib.UniversalClient, opts Options, logger *zap.Logger) *Redis {
	def := DefaultOptions()
	if opts.Expiry <= 0 {
		opts.Expiry = def.Expiry
	}
	if opts.Tries <= 0 {
		opts.Tries = def.Tries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = def.RetryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Redis{
		rs:     redsync.New(goredis.NewPool(client)),
		opts:   opts,
		logger: logger,
	}
}

// WithLock runs fn while holding the distributed lock for key.
func (r *Redis) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	name := r.opts.Prefix + key
	mutex := r.rs.NewMutex(
		name,
		redsync.WithExpiry(r.opts.Expiry),
		redsync.WithTries(r.opts.Tries),
		redsync.WithRetryDelay(r.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		r.logger.Warn("failed to acquire lock", zap.String("key", name), zap.Error(err))
		return fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}

	stopExtending := r.keepAlive(ctx, mutex, name)
	defer func() {
		stopExtending()
		// release even if ctx was cancelled while fn ran
		if ok, err := mutex.UnlockContext(context.WithoutCancel(ctx)); !ok || err != nil {
			r.logger.Error("failed to release lock", zap.String("key", name), zap.Bool("ok", ok), zap.Error(err))
		}
	}()

	return fn(ctx)
}

// keepAlive extends mutex every half expiry until the returned func is
// called, so work outlasting Expiry keeps the lock.
func (r *Redis) keepAlive(ctx context.Context, mutex *redsync.Mutex, name string) func() {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.opts.Expiry / 2)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := mutex.ExtendContext(ctx)
				if ctx.Err() != nil {
					return
				}
				if !ok || err != nil {
					r.logger.Warn("failed to extend lock", zap.String("key", name), zap.Bool("ok", ok), zap.Error(err))
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
