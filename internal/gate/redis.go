package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisConfig struct {
	Key string
	// TTL bounds how long a crashed holder can block other instances.
	TTL          time.Duration
	PollInterval time.Duration
}

// RedisGate shares one gate across every instance pointed at the same key.
type RedisGate struct {
	client       redis.UniversalClient
	key          string
	ttl          time.Duration
	pollInterval time.Duration
	releaseTO    time.Duration
}

func NewRedisGate(client redis.UniversalClient, cfg RedisConfig) *RedisGate {
	if cfg.Key == "" {
		cfg.Key = "contact-distributor:upload-gate"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	return &RedisGate{
		client:       client,
		key:          cfg.Key,
		ttl:          cfg.TTL,
		pollInterval: cfg.PollInterval,
		releaseTO:    5 * time.Second,
	}
}

func (g *RedisGate) TryAcquire(ctx context.Context) (Release, error) {
	token := uuid.NewString()
	acquired, err := g.client.SetNX(ctx, g.key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire redis gate: %w", err)
	}
	if !acquired {
		return nil, inProgress(errHeld)
	}
	return g.release(token), nil
}

func (g *RedisGate) Acquire(ctx context.Context) (Release, error) {
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		release, err := g.TryAcquire(ctx)
		if err == nil {
			return release, nil
		}
		if !errors.Is(err, errHeld) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, inProgress(fmt.Errorf("wait for gate: %w", ctxErr))
			}
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, inProgress(fmt.Errorf("wait for gate: %w", ctx.Err()))
		case <-ticker.C:
		}
	}
}

func (g *RedisGate) release(token string) Release {
	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's ctx may already be done once the commit finished
			ctx, cancel := context.WithTimeout(context.Background(), g.releaseTO)
			defer cancel()
			_ = releaseScript.Run(ctx, g.client, []string{g.key}, token).Err()
		})
	}
}
