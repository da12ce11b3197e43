package leader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultLockExpiry — срок жизни блокировки без продления.
const DefaultLockExpiry = 10 * time.Second

// RedisLock — блокировка лидера на redsync.
//
// Пока процесс лидер, каждый TryAcquire продлевает срок жизни ключа.
// Если продлить не удалось, лидерство потеряно и блокировка берётся заново.
type RedisLock struct {
	rs     *redsync.Redsync
	name   string
	expiry time.Duration
	owner  string

	mu    sync.Mutex
	mutex *redsync.Mutex
}

// NewRedisLock создаёт блокировку с ключом name.
func NewRedisLock(client redis.UniversalClient, name string, expiry time.Duration) (*RedisLock, error) {
	if name == "" {
		return nil, fmt.Errorf("lock name is empty")
	}
	if expiry <= 0 {
		expiry = DefaultLockExpiry
	}
	return &RedisLock{
		rs:     redsync.New(goredis.NewPool(client)),
		name:   name,
		expiry: expiry,
	}, nil
}

// WithOwner задаёт префикс значения ключа, по которому видно, какой
// узел держит блокировку ("owner:uuid").
func (l *RedisLock) WithOwner(owner string) *RedisLock {
	l.owner = owner
	return l
}

// TryAcquire берёт блокировку или продлевает её.
func (l *RedisLock) TryAcquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mutex != nil {
		ok, err := l.mutex.ExtendContext(ctx)
		if err == nil && ok {
			return true, nil
		}
		l.mutex = nil
	}

	opts := []redsync.Option{redsync.WithExpiry(l.expiry), redsync.WithTries(1)}
	if l.owner != "" {
		owner := l.owner
		opts = append(opts, redsync.WithGenValueFunc(func() (string, error) {
			return owner + ":" + uuid.NewString(), nil
		}))
	}

	mutex := l.rs.NewMutex(l.name, opts...)
	if err := mutex.TryLockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			return false, nil
		}
		return false, fmt.Errorf("try lock: %w", err)
	}

	l.mutex = mutex
	return true, nil
}

// Release отпускает блокировку.
func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mutex == nil {
		return nil
	}
	mutex := l.mutex
	l.mutex = nil

	if _, err := mutex.UnlockContext(ctx); err != nil {
		return fmt.Errorf("unlock: %w", err)
	}
	return nil
}
