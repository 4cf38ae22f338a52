// Package locks implements Postgres advisory locking for cross-replica
// coordination. A lock is held by a dedicated session pinned to one
// pool connection; losing the session releases the lock, so crashed
// workers can never leave a product locked.
package locks

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/shelfwatch/shelfwatch/internal/logging"
)

// Lock key namespaces. The namespace occupies the high 32 bits of the
// 64-bit advisory key; the entity hash occupies the low 32.
const (
	NamespaceScheduler int64 = 1
	NamespaceProduct   int64 = 2
)

// SchedulerLockID is the entity id of the singleton leader lock.
const SchedulerLockID = "MAIN_SCHEDULER"

// Key builds the advisory lock key for an entity within a namespace.
// FNV-32a keeps the key stable across releases; collisions between two
// product ids cost an occasional skipped check, nothing worse.
func Key(namespace int64, id string) int64 {
	h := fnv.New32a()
	h.Write([]byte(id))
	return namespace<<32 | int64(h.Sum32())
}

// Manager acquires and releases advisory locks over one pool. Safe for
// concurrent use.
type Manager struct {
	db     *sql.DB
	logger *slog.Logger

	mu   sync.Mutex
	held map[int64]*sql.Conn
}

// NewManager creates a lock manager.
func NewManager(db *sql.DB, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		db:     db,
		logger: logging.Component(logger, "locks"),
		held:   make(map[int64]*sql.Conn),
	}
}

// TryAcquire attempts to take the lock without blocking. It returns
// false when another session holds it. The pinned connection is kept
// open until Release.
func (m *Manager) TryAcquire(ctx context.Context, key int64) (bool, error) {
	m.mu.Lock()
	if _, ok := m.held[key]; ok {
		m.mu.Unlock()
		return false, fmt.Errorf("lock %d already held by this manager", key)
	}
	m.mu.Unlock()

	conn, err := m.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to pin connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("failed to try advisory lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}

	m.mu.Lock()
	m.held[key] = conn
	m.mu.Unlock()
	m.logger.Debug("advisory lock acquired", "key", key)
	return true, nil
}

// Release unlocks and returns the pinned connection to the pool.
// Releasing a key that is not held is a no-op.
func (m *Manager) Release(key int64) {
	m.mu.Lock()
	conn, ok := m.held[key]
	delete(m.held, key)
	m.mu.Unlock()
	if !ok {
		return
	}

	if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, key); err != nil {
		m.logger.Warn("failed to unlock advisory lock, closing session", "key", key, "error", err)
	}
	if err := conn.Close(); err != nil {
		m.logger.Warn("failed to close lock connection", "key", key, "error", err)
	}
	m.logger.Debug("advisory lock released", "key", key)
}

// ReleaseAll releases every held lock. Called on shutdown.
func (m *Manager) ReleaseAll() {
	m.mu.Lock()
	keys := make([]int64, 0, len(m.held))
	for k := range m.held {
		keys = append(keys, k)
	}
	m.mu.Unlock()
	for _, k := range keys {
		m.Release(k)
	}
}

// HeldKeys returns the currently held lock keys.
func (m *Manager) HeldKeys() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]int64, 0, len(m.held))
	for k := range m.held {
		keys = append(keys, k)
	}
	return keys
}

// WithLock runs fn while holding the product lock for id. When the lock
// is contended it returns (false, nil) without running fn; lock
// contention is a skip, not an error. The lock is released on every
// path, including fn panicking.
func (m *Manager) WithLock(ctx context.Context, namespace int64, id string, fn func(ctx context.Context) error) (bool, error) {
	key := Key(namespace, id)
	acquired, err := m.TryAcquire(ctx, key)
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}
	defer m.Release(key)
	return true, fn(ctx)
}
