package pgfleet

import (
	"context"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

const locateTableSQL = `
SELECT 1
FROM information_schema.tables
WHERE lower(table_name) = lower($1)
  AND table_schema NOT IN ('pg_catalog', 'information_schema')
LIMIT 1`

// LocateTable scans every registered database for a table with the given
// name. Databases are scanned concurrently; a database that cannot be
// reached is reported as a failure without aborting the scan. FoundIn
// preserves registry declaration order.
func (f *Fleet) LocateTable(ctx context.Context, tableName string) (*LocateTableOutput, error) {
	bare := tableName
	if i := strings.LastIndex(bare, "."); i >= 0 {
		bare = bare[i+1:]
	}
	if err := f.validator.CheckIdentifier(bare); err != nil {
		return nil, mapViolation(err, "table_name")
	}

	names := f.registry.Names()
	found := make([]bool, len(names))
	failures := make([]*LocateFailure, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			err := f.pools.withConn(ctx, name, func(ctx context.Context, conn *pgxpool.Conn) error {
				queryCtx, cancel := f.catalogContext(ctx)
				defer cancel()

				var one int
				err := conn.QueryRow(queryCtx, locateTableSQL, bare).Scan(&one)
				if err == nil {
					found[i] = true
					return nil
				}
				if isNoRows(err) {
					return nil
				}
				return err
			})
			if err != nil {
				failures[i] = &LocateFailure{Database: name, Error: err.Error()}
			}
		}(i, name)
	}
	wg.Wait()

	out := &LocateTableOutput{Table: bare, FoundIn: make([]string, 0)}
	for i, name := range names {
		if found[i] {
			out.FoundIn = append(out.FoundIn, name)
		}
		if failures[i] != nil {
			out.Failures = append(out.Failures, *failures[i])
		}
	}

	f.logger.Info().
		Str("table", bare).
		Int("found_in", len(out.FoundIn)).
		Int("failures", len(out.Failures)).
		Msg("table located")

	return out, nil
}
