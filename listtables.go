package pgfleet

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const listTablesSQL = `
SELECT
    n.nspname AS schema,
    c.relname AS name,
    CASE c.relkind
        WHEN 'r' THEN 'table'
        WHEN 'v' THEN 'view'
        WHEN 'm' THEN 'materialized_view'
        WHEN 'f' THEN 'foreign_table'
        WHEN 'p' THEN 'partitioned_table'
    END AS type,
    pg_catalog.pg_get_userbyid(c.relowner) AS owner
FROM pg_catalog.pg_class c
LEFT JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind IN ('r', 'v', 'm', 'f', 'p')
  AND n.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
  AND has_table_privilege(c.oid, 'SELECT')
ORDER BY n.nspname, c.relname;
`

// ListTables returns all tables, views, materialized views, and foreign
// tables in the named database that are accessible to the session user.
func (f *Fleet) ListTables(ctx context.Context, dbName string) (*ListTablesOutput, error) {
	name := resolvedName(f.registry, dbName)
	start := time.Now()

	tables := make([]TableEntry, 0)
	err := f.pools.withConn(ctx, name, func(ctx context.Context, conn *pgxpool.Conn) error {
		queryCtx, cancel := f.catalogContext(ctx)
		defer cancel()

		rows, err := conn.Query(queryCtx, listTablesSQL)
		if err != nil {
			return WrapDatabaseError(err)
		}
		defer rows.Close()

		for rows.Next() {
			var entry TableEntry
			if err := rows.Scan(&entry.Schema, &entry.Name, &entry.Type, &entry.Owner); err != nil {
				return WrapDatabaseError(err)
			}
			tables = append(tables, entry)
		}
		if err := rows.Err(); err != nil {
			return WrapDatabaseError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.logger.Info().
		Str("database", name).
		Dur("duration", time.Since(start)).
		Int("table_count", len(tables)).
		Msg("tables listed")

	return &ListTablesOutput{Database: name, Tables: tables}, nil
}
