package pgfleet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PoolStats is a diagnostic snapshot of one pool.
type PoolStats struct {
	Open int32 `json:"open"`
	Busy int32 `json:"busy"`
	Idle int32 `json:"idle"`
}

// PoolManager owns one lazily created pgxpool per registered database
// name. At most one pool exists per name; pools live until Close. All
// methods are safe for concurrent use.
type PoolManager struct {
	registry *Registry
	global   GlobalSettings
	logger   zerolog.Logger

	mu     sync.Mutex
	pools  map[string]*pgxpool.Pool
	closed bool
}

func newPoolManager(registry *Registry, global GlobalSettings, logger zerolog.Logger) *PoolManager {
	return &PoolManager{
		registry: registry,
		global:   global,
		logger:   logger,
		pools:    make(map[string]*pgxpool.Pool),
	}
}

// pool returns the pool for name, creating it on first reference with
// bounds from GlobalSettings or the profile's override.
func (m *PoolManager) pool(ctx context.Context, name string) (*pgxpool.Pool, error) {
	profile, err := m.registry.Resolve(name)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, Errorf(KindConnectFailed, "pool manager is closed")
	}
	if p, ok := m.pools[profile.Name]; ok {
		return p, nil
	}

	poolConfig, err := pgxpool.ParseConfig(profile.ConnString())
	if err != nil {
		return nil, FieldErrorf(KindConnectFailed, profile.Name, "invalid connection parameters: %v", err)
	}
	minConns, maxConns := m.bounds(profile)
	poolConfig.MinConns = int32(minConns)
	poolConfig.MaxConns = int32(maxConns)
	// Extended query protocol: parameter values never travel inside SQL text.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec

	p, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, FieldErrorf(KindConnectFailed, profile.Name, "failed to create connection pool: %v", err)
	}
	m.pools[profile.Name] = p
	m.logger.Info().
		Str("database", profile.Name).
		Str("target", profile.Target()).
		Int("pool_min", minConns).
		Int("pool_max", maxConns).
		Msg("connection pool created")
	return p, nil
}

func (m *PoolManager) bounds(profile DatabaseProfile) (int, int) {
	minConns, maxConns := m.global.PoolMin, m.global.PoolMax
	if profile.PoolMin > 0 {
		minConns = profile.PoolMin
	}
	if profile.PoolMax > 0 {
		maxConns = profile.PoolMax
	}
	return minConns, maxConns
}

// withConn leases a connection from the named pool and runs fn with it.
// The lease is released on every exit path. Acquisition waits at most the
// configured acquire timeout; an exhausted pool fails with PoolExhausted,
// an unreachable or rejecting database with ConnectFailed. Neither is
// retried here.
func (m *PoolManager) withConn(ctx context.Context, name string, fn func(ctx context.Context, conn *pgxpool.Conn) error) error {
	p, err := m.pool(ctx, name)
	if err != nil {
		return err
	}

	acquireCtx, cancel := context.WithTimeout(ctx, time.Duration(m.global.AcquireTimeoutSeconds)*time.Second)
	conn, err := p.Acquire(acquireCtx)
	cancel()
	if err != nil {
		return m.classifyAcquireError(ctx, name, p, err)
	}
	defer conn.Release()

	return fn(ctx, conn)
}

// classifyAcquireError separates a saturated pool from a database that
// cannot be reached or rejects authentication. The caller's own
// cancellation is never reported as pool exhaustion, even when the pool
// happens to be saturated at that moment.
func (m *PoolManager) classifyAcquireError(ctx context.Context, name string, p *pgxpool.Pool, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if ctx.Err() != nil {
			return WrapDatabaseError(ctx.Err())
		}
		stat := p.Stat()
		if stat.AcquiredConns() >= stat.MaxConns() {
			return FieldErrorf(KindPoolExhausted, name,
				"all %d connections are busy and the acquire wait of %ds elapsed", stat.MaxConns(), m.global.AcquireTimeoutSeconds)
		}
	}
	return FieldErrorf(KindConnectFailed, name, "failed to acquire connection: %v", err)
}

// Stats returns a snapshot of the named pool. The second return is false
// when the pool has not been initialized yet.
func (m *PoolManager) Stats(name string) (PoolStats, bool) {
	m.mu.Lock()
	p, ok := m.pools[name]
	m.mu.Unlock()
	if !ok {
		return PoolStats{}, false
	}
	stat := p.Stat()
	return PoolStats{
		Open: stat.TotalConns(),
		Busy: stat.AcquiredConns(),
		Idle: stat.IdleConns(),
	}, true
}

// Initialized reports whether the named pool has been created.
func (m *PoolManager) Initialized(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pools[name]
	return ok
}

// Close tears down every pool. Closing an already-closed manager is a
// no-op.
func (m *PoolManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for name, p := range m.pools {
		p.Close()
		m.logger.Info().Str("database", name).Msg("connection pool closed")
	}
	m.pools = map[string]*pgxpool.Pool{}
}
