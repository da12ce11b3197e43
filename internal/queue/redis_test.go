package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Workman/internal/domain"
)

func newTestRedis(t *testing.T, clock *fakeClock) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := RedisConfig{Prefix: "test"}
	if clock != nil {
		cfg.Now = clock.Now
	}
	return NewRedis(client, cfg), mr
}

func TestRedis_EnqueueAndDispatch(t *testing.T) {
	ctx := context.Background()
	q, mr := newTestRedis(t, nil)
	rec := &recorder{}
	q.RegisterWorker("Cleanup", rec)

	payload := payloadOf(t, `{"account_id":"a1","big":9007199254740993,"nested":{"list":[1,"x",null,true]}}`)
	handle, err := q.Enqueue(ctx, "Cleanup", payload)
	require.NoError(t, err)
	assert.NotEmpty(t, handle)

	items, err := mr.List("test:ready:Cleanup")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	ran, err := q.Dispatch(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
	require.Equal(t, 1, rec.count())

	job := rec.jobs[0]
	assert.Equal(t, handle, job.ID)
	assert.Equal(t, "Cleanup", job.WorkerName)
	// Payload проходит через Redis без потерь
	assert.Equal(t, mustJSON(t, payload), mustJSON(t, job.Payload))
	assert.Equal(t, payload, job.Payload)

	ran, err = q.Dispatch(ctx)
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestRedis_DelayedJob(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	q, mr := newTestRedis(t, clock)
	rec := &recorder{}
	q.RegisterWorker("Notify", rec)

	_, err := q.EnqueueDelayed(ctx, "Notify", domain.Payload{"msg": "hi"}, 60*time.Second)
	require.NoError(t, err)

	members, err := mr.ZMembers("test:delayed:Notify")
	require.NoError(t, err)
	assert.Len(t, members, 1)

	ran, err := q.Dispatch(ctx)
	require.NoError(t, err)
	assert.False(t, ran, "job must not run before delay elapsed")

	clock.Advance(61 * time.Second)

	ran, err = q.Dispatch(ctx)
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = q.Dispatch(ctx)
	require.NoError(t, err)
	assert.False(t, ran)

	require.Equal(t, 1, rec.count())
	assert.Equal(t, "hi", rec.jobs[0].Payload.String("msg"))
}

func TestRedis_RoundRobin(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestRedis(t, nil)
	a, b := &recorder{}, &recorder{}
	q.RegisterWorker("A", a)
	q.RegisterWorker("B", b)

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, "A", nil)
		require.NoError(t, err)
	}
	_, err := q.Enqueue(ctx, "B", nil)
	require.NoError(t, err)

	// Два вызова: по одному заданию каждому worker
	for i := 0; i < 2; i++ {
		ran, err := q.Dispatch(ctx)
		require.NoError(t, err)
		require.True(t, ran)
	}
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestRedis_UnregisteredWorkerIgnored(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestRedis(t, nil)

	_, err := q.Enqueue(ctx, "Orphan", nil)
	require.NoError(t, err)

	ran, err := q.Dispatch(ctx)
	require.NoError(t, err)
	assert.False(t, ran)

	pending, err := q.Pending(ctx, "Orphan")
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestRedis_WorkerFailure(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestRedis(t, nil)
	q.RegisterWorker("X", &recorder{err: assert.AnError})

	_, err := q.Enqueue(ctx, "X", nil)
	require.NoError(t, err)

	ran, err := q.Dispatch(ctx)
	assert.True(t, ran)
	assert.True(t, IsJobError(err))
	assert.ErrorIs(t, err, ErrWorkerFailed)

	pending, err := q.Pending(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestRedis_MalformedMessageDropped(t *testing.T) {
	ctx := context.Background()
	q, mr := newTestRedis(t, nil)
	rec := &recorder{}
	q.RegisterWorker("X", rec)

	_, err := mr.Lpush("test:ready:X", "not json")
	require.NoError(t, err)

	ran, err := q.Dispatch(ctx)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, 0, rec.count())
	assert.False(t, mr.Exists("test:ready:X"))
}

func TestRedis_Purge(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestRedis(t, nil)

	for i := 0; i < 2; i++ {
		_, err := q.Enqueue(ctx, "SendEmail", nil)
		require.NoError(t, err)
	}
	_, err := q.EnqueueDelayed(ctx, "SendEmail", nil, time.Hour)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "Cleanup", nil)
	require.NoError(t, err)

	before, err := q.Pending(ctx, "SendEmail")
	require.NoError(t, err)

	purged, err := q.Purge(ctx, "SendEmail")
	require.NoError(t, err)
	assert.Equal(t, before, purged)
	assert.Equal(t, 3, purged)

	after, err := q.Pending(ctx, "SendEmail")
	require.NoError(t, err)
	assert.Equal(t, 0, after)

	other, err := q.Pending(ctx, "Cleanup")
	require.NoError(t, err)
	assert.Equal(t, 1, other)
}

func TestRedis_BackendError(t *testing.T) {
	ctx := context.Background()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr:        mr.Addr(),
		MaxRetries:  -1,
		DialTimeout: 50 * time.Millisecond,
	})
	defer func() { _ = client.Close() }()

	q := NewRedis(client, RedisConfig{Prefix: "test"})
	q.RegisterWorker("X", &recorder{})

	// Backend недоступен: ошибка backend, а не ошибка worker
	mr.Close()

	ran, err := q.Dispatch(ctx)
	assert.False(t, ran)
	require.Error(t, err)
	assert.False(t, IsJobError(err))
}
