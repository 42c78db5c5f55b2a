package pgfleet

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const locksSQL = `
SELECT a.pid,
       COALESCE(a.usename, ''),
       COALESCE(c.relname, ''),
       l.mode,
       l.granted,
       COALESCE(pg_blocking_pids(a.pid), '{}'),
       COALESCE(a.query, '')
FROM pg_catalog.pg_locks l
JOIN pg_catalog.pg_stat_activity a ON a.pid = l.pid
LEFT JOIN pg_catalog.pg_class c ON c.oid = l.relation
WHERE a.pid <> pg_backend_pid()
ORDER BY a.pid;
`

// InspectLocks reports lock contention in the named database: sessions
// waiting on a lock and the sessions blocking them. Uncontended locks
// are filtered out.
func (f *Fleet) InspectLocks(ctx context.Context, dbName string) (*InspectLocksOutput, error) {
	name := resolvedName(f.registry, dbName)

	entries := make([]LockEntry, 0)
	err := f.pools.withConn(ctx, name, func(ctx context.Context, conn *pgxpool.Conn) error {
		queryCtx, cancel := f.catalogContext(ctx)
		defer cancel()

		rows, err := conn.Query(queryCtx, locksSQL)
		if err != nil {
			return WrapDatabaseError(err)
		}
		defer rows.Close()

		for rows.Next() {
			var entry LockEntry
			var blockedBy []int32
			if err := rows.Scan(&entry.PID, &entry.User, &entry.Relation, &entry.Mode,
				&entry.Granted, &blockedBy, &entry.Query); err != nil {
				return WrapDatabaseError(err)
			}
			for _, pid := range blockedBy {
				entry.BlockedBy = append(entry.BlockedBy, int(pid))
			}
			entries = append(entries, entry)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	// Keep only contended entries: waiters plus the sessions they wait on.
	blocking := make(map[int]bool)
	for _, entry := range entries {
		if !entry.Granted {
			for _, pid := range entry.BlockedBy {
				blocking[pid] = true
			}
		}
	}
	locks := make([]LockEntry, 0)
	seen := make(map[int]bool)
	for _, entry := range entries {
		switch {
		case !entry.Granted:
			entry.State = "waiting"
		case blocking[entry.PID]:
			entry.State = "blocking"
		default:
			continue
		}
		if entry.State == "blocking" && seen[entry.PID] {
			continue
		}
		seen[entry.PID] = entry.State == "blocking"
		locks = append(locks, entry)
	}

	return &InspectLocksOutput{Database: name, Locks: locks}, nil
}

// KillSession terminates the backend with the given PID. Only databases
// configured with privileged mode may terminate sessions.
func (f *Fleet) KillSession(ctx context.Context, dbName string, pid int) (*KillSessionOutput, error) {
	if pid <= 0 {
		return nil, FieldErrorf(KindInvalidArguments, "pid", "pid must be a positive integer, got %d", pid)
	}

	name := resolvedName(f.registry, dbName)
	profile, err := f.registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	if !profile.Privileged() {
		return nil, FieldErrorf(KindInvalidArguments, "database_name",
			"database %q is not configured with privileged mode; kill_session is disabled", name)
	}

	out := &KillSessionOutput{Database: name, PID: pid}
	err = f.pools.withConn(ctx, name, func(ctx context.Context, conn *pgxpool.Conn) error {
		queryCtx, cancel := f.catalogContext(ctx)
		defer cancel()

		if err := conn.QueryRow(queryCtx,
			"SELECT pg_terminate_backend($1)", pid).Scan(&out.Terminated); err != nil {
			return WrapDatabaseError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.logger.Warn().
		Str("database", name).
		Int("pid", pid).
		Bool("terminated", out.Terminated).
		Msg("session terminated")

	return out, nil
}
