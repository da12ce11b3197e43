package leader

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestNewRedisLock_Validation(t *testing.T) {
	_, rdb := newRedis(t)

	_, err := NewRedisLock(rdb, "", time.Second)
	assert.Error(t, err)

	l, err := NewRedisLock(rdb, "workman:leader", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultLockExpiry, l.expiry)
}

func TestRedisLock_Exclusive(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()

	a, err := NewRedisLock(rdb, "workman:leader", 5*time.Second)
	require.NoError(t, err)
	b, err := NewRedisLock(rdb, "workman:leader", 5*time.Second)
	require.NoError(t, err)

	ok, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// Лидер подтверждает блокировку
	ok, err = a.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, a.Release(ctx))

	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_Expiry(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()

	a, err := NewRedisLock(rdb, "workman:leader", 2*time.Second)
	require.NoError(t, err)
	b, err := NewRedisLock(rdb, "workman:leader", 2*time.Second)
	require.NoError(t, err)

	ok, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Лидер не продлевал блокировку: ключ истёк
	mr.FastForward(3 * time.Second)

	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_Owner(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()

	l, err := NewRedisLock(rdb, "workman:leader", 5*time.Second)
	require.NoError(t, err)
	l.WithOwner("node-a")

	ok, err := l.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	value, err := mr.Get("workman:leader")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(value, "node-a:"), value)

	require.NoError(t, l.Release(ctx))
	assert.False(t, mr.Exists("workman:leader"))
}

func TestRedisLock_ReleaseWithoutLock(t *testing.T) {
	_, rdb := newRedis(t)

	l, err := NewRedisLock(rdb, "workman:leader", time.Second)
	require.NoError(t, err)
	assert.NoError(t, l.Release(context.Background()))
}

// fakeLock — управляемая блокировка для Run.
type fakeLock struct {
	mu       sync.Mutex
	results  []bool
	err      error
	released bool
}

func (l *fakeLock) TryAcquire(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if len(l.results) == 0 {
		return true, nil
	}
	ok := l.results[0]
	l.results = l.results[1:]
	return ok, nil
}

func (l *fakeLock) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = true
	return nil
}

func TestRun_TicksOnlyAsLeader(t *testing.T) {
	lock := &fakeLock{results: []bool{false, false, true}}
	ctx, cancel := context.WithCancel(context.Background())

	var ticks atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, RunConfig{Lock: lock, Interval: 5 * time.Millisecond}, func(context.Context) error {
			if ticks.Add(1) == 2 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	assert.Equal(t, int32(2), ticks.Load())
	lock.mu.Lock()
	assert.True(t, lock.released)
	lock.mu.Unlock()
}

func TestRun_LockErrorSkipsTick(t *testing.T) {
	lock := &fakeLock{err: errors.New("redis down")}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	var ticks atomic.Int32
	err := Run(ctx, RunConfig{Lock: lock, Interval: 5 * time.Millisecond}, func(context.Context) error {
		ticks.Add(1)
		return nil
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, ticks.Load())
	assert.False(t, lock.released)
}

func TestRun_LocalAlwaysLeads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var ticks atomic.Int32
	err := Run(ctx, RunConfig{Lock: Local{}, Interval: time.Millisecond}, func(context.Context) error {
		if ticks.Add(1) == 3 {
			cancel()
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(3), ticks.Load())
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{5, 30 * time.Second},
		{100, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(time.Second, tt.failures, 30*time.Second), "failures=%d", tt.failures)
	}
}

// TestRun_TickErrorBacksOff: ошибка tick не останавливает Run, а
// следующий tick откладывается.
func TestRun_TickErrorBacksOff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu    sync.Mutex
		times []time.Time
	)
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, RunConfig{Lock: Local{}, Interval: 10 * time.Millisecond, MaxBackoff: time.Second}, func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			times = append(times, time.Now())
			switch len(times) {
			case 1, 2:
				return errors.New("queue down")
			case 3:
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, times, 3)
	assert.GreaterOrEqual(t, times[1].Sub(times[0]), 20*time.Millisecond)
	assert.GreaterOrEqual(t, times[2].Sub(times[1]), 40*time.Millisecond)
}

// fakeSession — сессия advisory lock без PostgreSQL.
type fakeSession struct {
	pingErr   error
	unlockErr error
	released  bool
	closed    bool
}

func (s *fakeSession) Ping(context.Context) error          { return s.pingErr }
func (s *fakeSession) Unlock(context.Context, int64) error { return s.unlockErr }
func (s *fakeSession) Release()                            { s.released = true }

func (s *fakeSession) Close(context.Context) error {
	s.closed = true
	return nil
}

func TestPgLock_PingFailureClosesSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sess := &fakeSession{pingErr: context.Canceled}
	l := &PgLock{key: DefaultPgLockKey, conn: sess}

	ok, err := l.TryAcquire(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, sess.closed, "session holding the lock is closed")
	assert.False(t, sess.released, "session is not returned to the pool")
	assert.Nil(t, l.conn)
}

func TestPgLock_HeldSessionAlive(t *testing.T) {
	sess := &fakeSession{}
	l := &PgLock{key: DefaultPgLockKey, conn: sess}

	ok, err := l.TryAcquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, sess.closed)
}

func TestPgLock_Release(t *testing.T) {
	sess := &fakeSession{}
	l := &PgLock{key: DefaultPgLockKey, conn: sess}

	require.NoError(t, l.Release(context.Background()))
	assert.True(t, sess.released)
	assert.False(t, sess.closed)
	assert.Nil(t, l.conn)

	assert.NoError(t, l.Release(context.Background()))
}

func TestPgLock_ReleaseUnlockFailureClosesSession(t *testing.T) {
	sess := &fakeSession{unlockErr: context.DeadlineExceeded}
	l := &PgLock{key: DefaultPgLockKey, conn: sess}

	err := l.Release(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, sess.closed)
	assert.False(t, sess.released)
	assert.Nil(t, l.conn)
}
