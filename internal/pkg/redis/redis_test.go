package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.MasterAddr = mr.Addr()
	cfg.LockRetries = 3
	cfg.LockRetryDelay = 10 * time.Millisecond

	client, err := New(cfg, logger.NewNop())
	require.NoError(t, err)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"missing master addr", func(c *Config) { c.MasterAddr = "" }, true},
		{"sentinel without name", func(c *Config) {
			c.Mode = ModeSentinel
			c.SentinelAddrs = []string{"localhost:26379"}
		}, true},
		{"cluster without addrs", func(c *Config) { c.Mode = ModeCluster }, true},
		{"unknown mode", func(c *Config) { c.Mode = "ring" }, true},
		{"bad db", func(c *Config) { c.DB = 16 }, true},
		{"zero pool", func(c *Config) { c.PoolSize = 0 }, true},
		{"zero lock ttl", func(c *Config) { c.LockTTL = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_PingFails(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	addr := mr.Addr()
	mr.Close()

	cfg := DefaultConfig()
	cfg.MasterAddr = addr
	cfg.DialTimeout = 200 * time.Millisecond
	cfg.MaxRetries = 0

	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestLockUnlock(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	token, err := client.Lock(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, mr.Exists("k1"))

	_, err = client.Lock(ctx, "k1", time.Minute)
	assert.True(t, IsLockTimeout(err))

	// a foreign token cannot release the lock
	err = client.Unlock(ctx, "k1", "not-the-token")
	assert.ErrorIs(t, err, ErrLockNotHeld)
	assert.True(t, mr.Exists("k1"))

	require.NoError(t, client.Unlock(ctx, "k1", token))
	assert.False(t, mr.Exists("k1"))
}

func TestLock_Expires(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	_, err := client.Lock(ctx, "k2", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, err = client.Lock(ctx, "k2", time.Second)
	assert.NoError(t, err)
}

func TestTryLock_GivesUp(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	_, err := client.Lock(ctx, "busy", time.Minute)
	require.NoError(t, err)

	_, err = client.TryLock(ctx, "busy", time.Minute, 2, 5*time.Millisecond)
	assert.True(t, IsLockTimeout(err))
}

func TestTryLock_ContextCanceled(t *testing.T) {
	client, _ := setupTestClient(t)

	_, err := client.Lock(context.Background(), "busy", time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.TryLock(ctx, "busy", time.Minute, 5, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithLocks_ReleasesAfterRun(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	var ran bool
	err := client.WithLocks(ctx, []string{"b", "a", "a", ""}, func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists("metax:lock:a"))
		assert.True(t, mr.Exists("metax:lock:b"))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("metax:lock:a"))
	assert.False(t, mr.Exists("metax:lock:b"))
}

func TestWithLocks_ReleasesOnError(t *testing.T) {
	client, mr := setupTestClient(t)
	boom := errors.New("boom")

	err := client.WithLocks(context.Background(), []string{"x"}, func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("metax:lock:x"))
}

func TestWithLocks_Serializes(t *testing.T) {
	client, _ := setupTestClient(t)
	client.config.LockRetries = 200
	client.config.LockRetryDelay = 2 * time.Millisecond

	var (
		inside  int32
		overlap int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := client.WithLocks(context.Background(), []string{"pid"}, func(ctx context.Context) error {
				if atomic.AddInt32(&inside, 1) > 1 {
					atomic.StoreInt32(&overlap, 1)
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), overlap)
}

func TestPublish(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, "metax.records")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	n, err := client.Publish(ctx, "metax.records", `{"type":"created"}`)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"created"}`, msg.Payload)
}
