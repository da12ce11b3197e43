package leader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultPgLockKey — ключ advisory lock диспетчера.
const DefaultPgLockKey int64 = 424242

// closeTimeout — время на закрытие сессии с блокировкой.
const closeTimeout = 5 * time.Second

// session — соединение, которому принадлежит advisory lock.
type session interface {
	Ping(ctx context.Context) error
	Unlock(ctx context.Context, key int64) error

	// Release возвращает соединение в пул. Только без блокировки.
	Release()

	// Close закрывает соединение; сервер снимает блокировки сессии.
	Close(ctx context.Context) error
}

// poolSession — session поверх соединения из pgxpool.
type poolSession struct {
	conn *pgxpool.Conn
}

func (s poolSession) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func (s poolSession) Unlock(ctx context.Context, key int64) error {
	_, err := s.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", key)
	return err
}

func (s poolSession) Release() {
	s.conn.Release()
}

// Close забирает соединение из пула и закрывает его.
func (s poolSession) Close(ctx context.Context) error {
	return s.conn.Hijack().Close(ctx)
}

// PgLock — блокировка через pg_try_advisory_lock.
//
// Advisory lock принадлежит сессии, поэтому PgLock держит одно
// соединение из пула, пока удерживает блокировку.
type PgLock struct {
	pool *pgxpool.Pool
	key  int64

	mu   sync.Mutex
	conn session
}

// NewPgLock создаёт блокировку с ключом key.
func NewPgLock(pool *pgxpool.Pool, key int64) *PgLock {
	if key == 0 {
		key = DefaultPgLockKey
	}
	return &PgLock{pool: pool, key: key}
}

// TryAcquire берёт блокировку или проверяет, что соединение с ней живо.
func (l *PgLock) TryAcquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		if err := l.conn.Ping(ctx); err != nil {
			// Сессия может быть жива и держать блокировку: в пул её не возвращаем
			l.discard()
			return false, fmt.Errorf("leader connection lost: %w", err)
		}
		return true, nil
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire conn: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&ok); err != nil {
		// Неизвестно, взята ли блокировка на сервере
		l.conn = poolSession{conn: conn}
		l.discard()
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return false, nil
	}

	l.conn = poolSession{conn: conn}
	return true, nil
}

// discard закрывает сессию вместо возврата в пул.
func (l *PgLock) discard() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	_ = l.conn.Close(ctx)
	l.conn = nil
}

// Release отпускает блокировку и возвращает соединение в пул.
// Если снять блокировку не удалось, соединение закрывается.
func (l *PgLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return nil
	}

	if err := l.conn.Unlock(ctx, l.key); err != nil {
		l.discard()
		return fmt.Errorf("advisory unlock: %w", err)
	}

	l.conn.Release()
	l.conn = nil
	return nil
}
