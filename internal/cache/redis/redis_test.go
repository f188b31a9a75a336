package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

func setupTestRedis(t *testing.T) *Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForLog("Ready to accept connections").WithStartupTimeout(60*time.Second),
				wait.ForListeningPort("6379/tcp"),
			),
		},
		Started: true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	c, err := New(ctx, ClientConfig{URL: fmt.Sprintf("redis://%s:%s/0", host, port.Port())})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = c.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})
	return c
}

func TestClientConfig_Options(t *testing.T) {
	opts, err := ClientConfig{URL: "rediss://:pw@cache.local:6380/2", PoolSize: 7}.options()
	require.NoError(t, err)
	assert.Equal(t, "cache.local:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.NotNil(t, opts.TLSConfig)

	opts, err = ClientConfig{Addr: "localhost:6379", DB: 1}.options()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Nil(t, opts.TLSConfig)

	_, err = ClientConfig{URL: "http://nope"}.options()
	assert.Error(t, err)
}

func TestClient_Key(t *testing.T) {
	c := &Client{prefix: DefaultKeyPrefix}
	assert.Equal(t, "qxwatch:lock:archive", c.key("lock", "archive"))
	assert.Equal(t, "qxwatch:stream:qx_events", c.key(domain.StreamEvents))
}

func TestRedis_QueryCache(t *testing.T) {
	c := setupTestRedis(t)
	ctx := context.Background()
	qc := NewQueryCache(c, time.Minute)

	var got map[string]int
	hit, err := qc.Get(ctx, "events:p0", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, qc.Set(ctx, "events:p0", map[string]int{"total": 3}))
	hit, err = qc.Get(ctx, "events:p0", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 3, got["total"])

	require.NoError(t, qc.Invalidate(ctx))
	got = nil
	hit, err = qc.Get(ctx, "events:p0", &got)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, got)
}

func TestRedis_SettingsStore(t *testing.T) {
	c := setupTestRedis(t)
	ctx := context.Background()
	s := NewSettingsStore(c)

	_, err := s.Load(ctx, "whaleThresholds")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Save(ctx, "whaleThresholds", []byte(`[{"token":"CFB","amount":5}]`)))
	data, err := s.Load(ctx, "whaleThresholds")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"token":"CFB","amount":5}]`, string(data))
}

func TestRedis_LockManager(t *testing.T) {
	c := setupTestRedis(t)
	ctx := context.Background()
	lm := NewLockManager(c)

	unlock, err := lm.Acquire(ctx, "archive", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "archive", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()

	unlock2, err := lm.Acquire(ctx, "archive", time.Minute)
	require.NoError(t, err)
	unlock2()
}

func TestRedis_RateLimiter(t *testing.T) {
	c := setupTestRedis(t)
	ctx := context.Background()
	rl := NewRateLimiter(c, 2, time.Minute)

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "webhook:1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "webhook:1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "webhook:5.6.7.8", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, rl.Wait(ctx, "wait"))
	require.NoError(t, rl.Wait(ctx, "wait"))
	short, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rl.Wait(short, "wait"), context.DeadlineExceeded)

	fast := NewRateLimiter(c, 1, 300*time.Millisecond)
	require.NoError(t, fast.Wait(ctx, "slide"))
	start := time.Now()
	require.NoError(t, fast.Wait(ctx, "slide"))
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestRedis_SignalBus(t *testing.T) {
	c := setupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewSignalBus(c, 100)

	subCtx, stop := context.WithCancel(ctx)
	msgs, err := bus.Subscribe(subCtx, domain.ChannelEvents)
	require.NoError(t, err)
	all, err := bus.Subscribe(ctx, "ch:*")
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, domain.ChannelEvents, []byte(`{"id":"1"}`)))

	for _, ch := range []<-chan []byte{msgs, all} {
		select {
		case m := <-ch:
			assert.JSONEq(t, `{"id":"1"}`, string(m))
		case <-time.After(5 * time.Second):
			t.Fatal("no message received")
		}
	}

	stop()
	select {
	case _, ok := <-msgs:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("subscription not closed")
	}

	empty, err := bus.StreamRead(ctx, "stream:none", "0", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.StreamAppend(ctx, "stream:test", []byte(fmt.Sprint(i))))
	}
	first, err := bus.StreamRead(ctx, "stream:test", "0", 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "0", string(first[0].Payload))

	rest, err := bus.StreamRead(ctx, "stream:test", first[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "2", string(rest[0].Payload))
}
