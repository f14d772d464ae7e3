package pg

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linehub/billing/pkg/lock"
)

// Locker hands out session-level advisory locks through one dedicated
// connection opened next to the pool, so held locks never take pool slots
// from the work they guard. Session locks are re-entrant, so an in-process
// lock keeps two local workers from sharing a key.
//
// If the session drops, Postgres releases every lock it held; unique keys and
// conditional updates still guard the data.
type Locker struct {
	connCfg *pgx.ConnConfig
	local   *lock.Local

	mu   sync.Mutex
	conn *pgx.Conn
	gen  uint64
}

func NewLocker(pool *pgxpool.Pool) *Locker {
	return &Locker{
		connCfg: pool.Config().ConnConfig,
		local:   lock.NewLocal(),
	}
}

// TryLock attempts to take the lock for key without waiting. ok is false
// when another worker or session holds it.
func (l *Locker) TryLock(ctx context.Context, key string) (release func(), ok bool, err error) {
	releaseLocal, ok, _ := l.local.TryLock(ctx, key)
	if !ok {
		return nil, false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	conn, err := l.session(ctx)
	if err != nil {
		releaseLocal()
		return nil, false, errors.Join(ErrLockUnavailable, err)
	}

	lockID := advisoryKey(key)
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&ok); err != nil {
		l.reset()
		releaseLocal()
		return nil, false, errors.Join(ErrLockUnavailable, err)
	}
	if !ok {
		releaseLocal()
		return nil, false, nil
	}

	gen := l.gen
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			// a new session never held this lock
			if l.conn != nil && l.gen == gen {
				// the unlock must run even when the caller's context is already done
				if _, err := l.conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, lockID); err != nil {
					l.reset()
				}
			}
			releaseLocal()
		})
	}, true, nil
}

// Close ends the lock session, releasing every lock still held.
func (l *Locker) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close(ctx)
	l.conn = nil
	return err
}

// session returns the lock connection, dialing a new one when needed.
// Callers hold l.mu.
func (l *Locker) session(ctx context.Context) (*pgx.Conn, error) {
	if l.conn != nil && !l.conn.IsClosed() {
		return l.conn, nil
	}
	conn, err := pgx.ConnectConfig(ctx, l.connCfg.Copy())
	if err != nil {
		return nil, err
	}
	l.conn = conn
	l.gen++
	return conn, nil
}

// reset drops a session in an unknown state. Callers hold l.mu.
func (l *Locker) reset() {
	if l.conn == nil {
		return
	}
	_ = l.conn.Close(context.Background())
	l.conn = nil
}

func advisoryKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}
