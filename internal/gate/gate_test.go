package gate

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iago/contact-distributor/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func runGateContract(t *testing.T, newGate func(t *testing.T) Gate) {
	t.Run("try acquire rejects while held", func(t *testing.T) {
		g := newGate(t)
		ctx := context.Background()

		release, err := g.TryAcquire(ctx)
		require.NoError(t, err)

		_, err = g.TryAcquire(ctx)
		assert.ErrorIs(t, err, domain.ErrUploadInProgress)

		release()
		release()

		again, err := g.TryAcquire(ctx)
		require.NoError(t, err)
		again()
	})

	t.Run("acquire waits for release", func(t *testing.T) {
		g := newGate(t)
		release, err := g.TryAcquire(context.Background())
		require.NoError(t, err)

		go func() {
			time.Sleep(50 * time.Millisecond)
			release()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		waited, err := g.Acquire(ctx)
		require.NoError(t, err)
		waited()
	})

	t.Run("acquire gives up when ctx is done", func(t *testing.T) {
		g := newGate(t)
		release, err := g.TryAcquire(context.Background())
		require.NoError(t, err)
		defer release()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err = g.Acquire(ctx)
		assert.ErrorIs(t, err, domain.ErrUploadInProgress)
	})

	t.Run("mutual exclusion", func(t *testing.T) {
		g := newGate(t)
		var (
			holders atomic.Int32
			maxSeen atomic.Int32
			wg      sync.WaitGroup
		)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release, err := g.Acquire(ctx)
				if !assert.NoError(t, err) {
					return
				}
				current := holders.Add(1)
				for {
					seen := maxSeen.Load()
					if current <= seen || maxSeen.CompareAndSwap(seen, current) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				holders.Add(-1)
				release()
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), maxSeen.Load())
	})
}

func TestLocalGate(t *testing.T) {
	runGateContract(t, func(t *testing.T) Gate {
		return NewLocalGate()
	})
}

func TestRedisGate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	var counter atomic.Int32
	runGateContract(t, func(t *testing.T) Gate {
		key := fmt.Sprintf("test:gate:%d", counter.Add(1))
		return NewRedisGate(client, RedisConfig{Key: key, TTL: 10 * time.Second, PollInterval: 5 * time.Millisecond})
	})

	t.Run("expired holder does not release a newer holder", func(t *testing.T) {
		g := NewRedisGate(client, RedisConfig{Key: "test:gate:ttl", TTL: 100 * time.Millisecond})
		stale, err := g.TryAcquire(ctx)
		require.NoError(t, err)

		time.Sleep(200 * time.Millisecond)
		current, err := g.TryAcquire(ctx)
		require.NoError(t, err)

		stale()
		_, err = g.TryAcquire(ctx)
		assert.ErrorIs(t, err, domain.ErrUploadInProgress)
		current()
	})
}
