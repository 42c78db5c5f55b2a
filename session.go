package pgfleet

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ListDatabases reports every registered database and whether its pool
// has been initialized. No database is contacted.
func (f *Fleet) ListDatabases(ctx context.Context) (*ListDatabasesOutput, error) {
	names := f.registry.Names()
	out := &ListDatabasesOutput{
		Databases: make([]DatabaseStatus, 0, len(names)),
		Default:   f.registry.DefaultName(),
	}
	for _, name := range names {
		profile, err := f.registry.Resolve(name)
		if err != nil {
			return nil, err
		}
		out.Databases = append(out.Databases, DatabaseStatus{
			Name:        name,
			User:        profile.User,
			Target:      profile.Target(),
			Privileged:  profile.Privileged(),
			Initialized: f.pools.Initialized(name),
		})
	}
	return out, nil
}

// GetSessionInfo reports per-pool connection statistics plus the session
// user and server version for every initialized pool. Uninitialized
// pools are skipped so that diagnostics never trigger a connection.
func (f *Fleet) GetSessionInfo(ctx context.Context) (*SessionInfoOutput, error) {
	out := &SessionInfoOutput{Pools: make([]PoolSessionInfo, 0)}
	for _, name := range f.registry.Names() {
		stats, ok := f.pools.Stats(name)
		if !ok {
			continue
		}
		info := PoolSessionInfo{Database: name, Stats: stats}
		err := f.pools.withConn(ctx, name, func(ctx context.Context, conn *pgxpool.Conn) error {
			queryCtx, cancel := f.catalogContext(ctx)
			defer cancel()
			return conn.QueryRow(queryCtx,
				"SELECT current_user, current_database(), current_setting('server_version')").
				Scan(&info.ConnectedAs, &info.ConnectedTo, &info.ServerVersion)
		})
		if err != nil {
			info.Error = err.Error()
		}
		out.Pools = append(out.Pools, info)
	}
	return out, nil
}
