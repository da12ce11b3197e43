package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Workman/internal/domain"
	"github.com/shaiso/Workman/internal/memstore"
)

// fakeClock — управляемое время.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var baseTime = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestService(pageSize int) (*Service, *memstore.ScheduledJobs, *fakeClock) {
	store := memstore.NewScheduledJobs()
	clock := newFakeClock(baseTime)
	svc := New(Config{Store: store, Now: clock.Now, PageSize: pageSize})
	return svc, store, clock
}

// fakeEnqueuer запоминает поставленные задания.
type fakeEnqueuer struct {
	mu    sync.Mutex
	calls []enqueued
	err   error
}

type enqueued struct {
	worker  string
	payload domain.Payload
}

func (e *fakeEnqueuer) EnqueueBackground(_ context.Context, workerName string, payload domain.Payload) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return "", e.err
	}
	e.calls = append(e.calls, enqueued{worker: workerName, payload: payload})
	return "handle-" + workerName, nil
}

func (e *fakeEnqueuer) workers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.calls))
	for _, c := range e.calls {
		names = append(names, c.worker)
	}
	return names
}

// racingStore проигрывает каждую гонку за claim.
type racingStore struct {
	*memstore.ScheduledJobs
}

func (s racingStore) MarkExecuted(_ context.Context, _ uuid.UUID, _ time.Time) (bool, error) {
	return false, nil
}

var errBackend = errors.New("backend down")
