// Package distlock guards the watchdog run so only one instance sends
// reminders at a time. Redis is the preferred backend; PostgreSQL
// advisory locks serve deployments without Redis.
package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is a single-owner distributed lock. Instances are not safe for
// concurrent use; give each goroutine its own.
type Lock interface {
	// Acquire attempts to take the lock without blocking.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock up if this instance still owns it.
	Release(ctx context.Context) error
}

// New picks the backend: Redis when a client is available, Postgres
// advisory locks when a database is, otherwise a process-local mutex.
// Redis releases via TTL and Postgres via session scope on process death.
func New(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) Lock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	if db != nil {
		return NewAdvisoryLock(db, key)
	}
	return &localLock{}
}

// localLock guards single-instance deployments with no shared backend.
type localLock struct{ mu sync.Mutex }

func (l *localLock) Acquire(context.Context) (bool, error) {
	return l.mu.TryLock(), nil
}

func (l *localLock) Release(context.Context) error {
	l.mu.Unlock()
	return nil
}

// AdvisoryLock wraps pg_try_advisory_lock with a lock id derived from the
// key string.
type AdvisoryLock struct {
	db     *sql.DB
	lockID int64
}

func NewAdvisoryLock(db *sql.DB, key string) *AdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &AdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

func (l *AdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	var acquired bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired)
	return acquired, err
}

func (l *AdvisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
