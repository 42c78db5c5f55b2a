package pgfleet

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const textColumnsSQL = `
SELECT column_name
FROM information_schema.columns
WHERE table_schema = $1
  AND table_name = $2
  AND data_type IN ('text', 'character varying', 'character')
ORDER BY ordinal_position;
`

// SearchInTable finds rows where any text column contains the search
// term, case-insensitively. Text columns are discovered from the
// catalog; the term is always bound as a parameter.
func (f *Fleet) SearchInTable(ctx context.Context, dbName, tableName, term string) (*SearchOutput, error) {
	if term == "" {
		return nil, FieldErrorf(KindInvalidArguments, "search_term", "search_term must not be empty")
	}
	schema, table, err := f.splitTable(tableName)
	if err != nil {
		return nil, err
	}

	name := resolvedName(f.registry, dbName)
	out := &SearchOutput{Database: name, Table: tableName, SearchedColumns: make([]string, 0)}
	err = f.pools.withConn(ctx, name, func(ctx context.Context, conn *pgxpool.Conn) error {
		queryCtx, cancel := f.catalogContext(ctx)
		defer cancel()

		rows, err := conn.Query(queryCtx, textColumnsSQL, schema, table)
		if err != nil {
			return WrapDatabaseError(err)
		}
		columns, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return WrapDatabaseError(err)
		}
		if len(columns) == 0 {
			return FieldErrorf(KindInvalidArguments, "table_name",
				"table %q has no searchable text columns in database %q", tableName, name)
		}
		out.SearchedColumns = columns

		predicates := make([]string, len(columns))
		for i, col := range columns {
			predicates[i] = fmt.Sprintf("%s ILIKE '%%' || $1 || '%%'", pgx.Identifier{col}.Sanitize())
		}
		searchSQL := fmt.Sprintf("SELECT * FROM %s WHERE %s LIMIT $2",
			pgx.Identifier{schema, table}.Sanitize(),
			strings.Join(predicates, " OR "))

		searchCtx, cancelSearch := context.WithTimeout(ctx, f.timeoutMgr.Default())
		defer cancelSearch()

		resultRows, err := conn.Query(searchCtx, searchSQL, term, f.config.Global.MaxRowsDisplay)
		if err != nil {
			return WrapDatabaseError(err)
		}
		collected, err := collectRows(resultRows)
		if err != nil {
			return WrapDatabaseError(err)
		}
		out.Columns = collected.Columns
		out.Rows = f.sanitizer.Rows(collected.Rows)
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.logger.Info().
		Str("database", name).
		Str("table", tableName).
		Int("column_count", len(out.SearchedColumns)).
		Int("row_count", len(out.Rows)).
		Msg("table searched")

	return out, nil
}
