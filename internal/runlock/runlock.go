// Package runlock keeps at most one incremental run per store in flight.
package runlock

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordersync/internal/cache"
	"github.com/Additional-Code/ordersync/internal/config"
)

// Locker hands out non-blocking per-store locks. When ok is false the lock is held
// elsewhere and release is nil. release is safe to call more than once.
type Locker interface {
	TryAcquire(ctx context.Context, store int) (release func(), ok bool, err error)
}

// Module provides the configured Locker.
var Module = fx.Provide(New)

// New selects the lock backend from configuration.
func New(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Locker, error) {
	switch cfg.Lock.Driver {
	case "", "local":
		return NewLocal(), nil
	case "redis":
		client := cache.NewRedisClient(cfg.Cache.Redis)
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("ping redis lock backend: %w", err)
				}
				logger.Info("redis run lock connected", zap.String("addr", cfg.Cache.Redis.Addr))
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return client.Close()
			},
		})
		return NewRedis(client, cfg.Lock.TTL, logger), nil
	default:
		return nil, fmt.Errorf("unsupported lock driver: %s", cfg.Lock.Driver)
	}
}

// Local guards stores within one process.
type Local struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

// NewLocal returns an empty in-process lock table.
func NewLocal() *Local {
	return &Local{locks: make(map[int]*sync.Mutex)}
}

// TryAcquire implements Locker.
func (l *Local) TryAcquire(_ context.Context, store int) (func(), bool, error) {
	l.mu.Lock()
	m, ok := l.locks[store]
	if !ok {
		m = &sync.Mutex{}
		l.locks[store] = m
	}
	l.mu.Unlock()

	if !m.TryLock() {
		return nil, false, nil
	}

	var once sync.Once
	return func() { once.Do(m.Unlock) }, true, nil
}

const (
	releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
	extendScript  = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("pexpire", KEYS[1], ARGV[2]) else return 0 end`
)

type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *goredis.Cmd
}

// Redis extends the local guard across instances with SET NX PX and a random token.
// The TTL bounds how long a crashed holder can block a store. While a run holds the
// lock its key is extended every third of the TTL.
type Redis struct {
	local  *Local
	client redisClient
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// NewRedis wraps a redis client.
func NewRedis(client redisClient, ttl time.Duration, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Redis{
		local:  NewLocal(),
		client: client,
		ttl:    ttl,
		prefix: "ordersync:runlock:",
		logger: logger,
	}
}

// TryAcquire implements Locker.
func (r *Redis) TryAcquire(ctx context.Context, store int) (func(), bool, error) {
	releaseLocal, ok, _ := r.local.TryAcquire(ctx, store)
	if !ok {
		return nil, false, nil
	}

	key := r.prefix + strconv.Itoa(store)
	token := uuid.NewString()
	acquired, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		releaseLocal()
		return nil, false, fmt.Errorf("acquire run lock for store %d: %w", store, err)
	}
	if !acquired {
		releaseLocal()
		return nil, false, nil
	}

	stop := make(chan struct{})
	go r.keepAlive(key, token, store, stop)

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			// the caller's context may already be cancelled when the run ends
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
				r.logger.Warn("release run lock", zap.Int("store", store), zap.Error(err))
			}
			releaseLocal()
		})
	}
	return release, true, nil
}

func (r *Redis) keepAlive(key, token string, store int, stop <-chan struct{}) {
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n, err := r.client.Eval(ctx, extendScript, []string{key}, token, r.ttl.Milliseconds()).Int64()
			cancel()
			switch {
			case err != nil:
				r.logger.Warn("extend run lock", zap.Int("store", store), zap.Error(err))
			case n == 0:
				r.logger.Error("run lock lost while the run was still in progress", zap.Int("store", store))
				return
			}
		}
	}
}
