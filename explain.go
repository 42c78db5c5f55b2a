package pgfleet

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ExplainQueryPlan returns the execution plan for a validated read-only
// statement. The plan is estimated only; the statement is never
// executed.
func (f *Fleet) ExplainQueryPlan(ctx context.Context, dbName, sql string) (*ExplainOutput, error) {
	if err := f.checkSQLLength(sql); err != nil {
		return nil, err
	}
	if err := f.validator.CheckReadOnly(sql); err != nil {
		return nil, mapViolation(err, "sql_query")
	}

	inner := strings.TrimRight(strings.TrimSpace(sql), ";")
	name := resolvedName(f.registry, dbName)

	var planLines []string
	err := f.pools.withConn(ctx, name, func(ctx context.Context, conn *pgxpool.Conn) error {
		queryCtx, cancel := f.catalogContext(ctx)
		defer cancel()

		rows, err := conn.Query(queryCtx, "EXPLAIN (FORMAT TEXT) "+inner)
		if err != nil {
			return WrapDatabaseError(err)
		}
		defer rows.Close()

		for rows.Next() {
			var line string
			if err := rows.Scan(&line); err != nil {
				return WrapDatabaseError(err)
			}
			planLines = append(planLines, line)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return &ExplainOutput{
		Database: name,
		Plan:     strings.Join(planLines, "\n"),
	}, nil
}
