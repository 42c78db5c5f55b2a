package pgfleet

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

const columnsSQL = `
SELECT
    c.column_name AS name,
    c.data_type AS type,
    CASE c.is_nullable WHEN 'YES' THEN true ELSE false END AS nullable,
    COALESCE(c.column_default, '') AS default_val,
    CASE WHEN pk.column_name IS NOT NULL THEN true ELSE false END AS is_primary_key
FROM information_schema.columns c
LEFT JOIN (
    SELECT kcu.column_name
    FROM information_schema.table_constraints tc
    JOIN information_schema.key_column_usage kcu
        ON tc.constraint_name = kcu.constraint_name
        AND tc.table_schema = kcu.table_schema
    WHERE tc.constraint_type = 'PRIMARY KEY'
        AND tc.table_schema = $1
        AND tc.table_name = $2
) pk ON pk.column_name = c.column_name
WHERE c.table_schema = $1
    AND c.table_name = $2
ORDER BY c.ordinal_position;
`

const constraintsSQL = `
SELECT
    con.conname AS name,
    CASE con.contype
        WHEN 'p' THEN 'PRIMARY KEY'
        WHEN 'f' THEN 'FOREIGN KEY'
        WHEN 'u' THEN 'UNIQUE'
        WHEN 'c' THEN 'CHECK'
        WHEN 'x' THEN 'EXCLUSION'
    END AS type,
    pg_catalog.pg_get_constraintdef(con.oid, true) AS definition
FROM pg_catalog.pg_constraint con
JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1
  AND c.relname = $2
ORDER BY con.conname;
`

const indexesSQL = `
SELECT
    pi.indexname AS name,
    pi.indexdef AS definition,
    i.indisunique AS is_unique,
    i.indisprimary AS is_primary
FROM pg_catalog.pg_indexes pi
JOIN pg_catalog.pg_class c ON c.relname = pi.indexname AND c.relnamespace = (
    SELECT oid FROM pg_catalog.pg_namespace WHERE nspname = pi.schemaname
)
JOIN pg_catalog.pg_index i ON i.indexrelid = c.oid
WHERE pi.schemaname = $1
  AND pi.tablename = $2
ORDER BY pi.indexname;
`

// splitTable validates a possibly schema-qualified table identifier and
// returns its schema (defaulting to public) and bare name.
func (f *Fleet) splitTable(tableName string) (schema, table string, err error) {
	if err := f.validator.CheckIdentifier(tableName); err != nil {
		return "", "", mapViolation(err, "table_name")
	}
	schema = "public"
	table = tableName
	if i := strings.Index(tableName, "."); i >= 0 {
		schema = tableName[:i]
		table = tableName[i+1:]
	}
	return schema, table, nil
}

// DescribeTable returns the column layout of one table, including
// nullability, defaults, and primary key membership.
func (f *Fleet) DescribeTable(ctx context.Context, dbName, tableName string) (*DescribeTableOutput, error) {
	schema, table, err := f.splitTable(tableName)
	if err != nil {
		return nil, err
	}

	name := resolvedName(f.registry, dbName)
	columns := make([]ColumnInfo, 0)
	err = f.pools.withConn(ctx, name, func(ctx context.Context, conn *pgxpool.Conn) error {
		queryCtx, cancel := f.catalogContext(ctx)
		defer cancel()

		rows, err := conn.Query(queryCtx, columnsSQL, schema, table)
		if err != nil {
			return WrapDatabaseError(err)
		}
		defer rows.Close()

		for rows.Next() {
			var col ColumnInfo
			if err := rows.Scan(&col.Name, &col.Type, &col.Nullable, &col.Default, &col.IsPrimaryKey); err != nil {
				return WrapDatabaseError(err)
			}
			columns = append(columns, col)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, FieldErrorf(KindInvalidArguments, "table_name",
			"table %q not found in database %q", tableName, name)
	}

	return &DescribeTableOutput{
		Database: name,
		Schema:   schema,
		Name:     table,
		Columns:  columns,
	}, nil
}

// ListConstraints returns every constraint on one table with its full
// definition text.
func (f *Fleet) ListConstraints(ctx context.Context, dbName, tableName string) (*ListConstraintsOutput, error) {
	schema, table, err := f.splitTable(tableName)
	if err != nil {
		return nil, err
	}

	name := resolvedName(f.registry, dbName)
	constraints := make([]ConstraintInfo, 0)
	err = f.pools.withConn(ctx, name, func(ctx context.Context, conn *pgxpool.Conn) error {
		queryCtx, cancel := f.catalogContext(ctx)
		defer cancel()

		rows, err := conn.Query(queryCtx, constraintsSQL, schema, table)
		if err != nil {
			return WrapDatabaseError(err)
		}
		defer rows.Close()

		for rows.Next() {
			var con ConstraintInfo
			if err := rows.Scan(&con.Name, &con.Type, &con.Definition); err != nil {
				return WrapDatabaseError(err)
			}
			constraints = append(constraints, con)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return &ListConstraintsOutput{
		Database:    name,
		Table:       tableName,
		Constraints: constraints,
	}, nil
}

// ListIndexes returns every index on one table with its CREATE INDEX
// definition.
func (f *Fleet) ListIndexes(ctx context.Context, dbName, tableName string) (*ListIndexesOutput, error) {
	schema, table, err := f.splitTable(tableName)
	if err != nil {
		return nil, err
	}

	name := resolvedName(f.registry, dbName)
	indexes := make([]IndexInfo, 0)
	err = f.pools.withConn(ctx, name, func(ctx context.Context, conn *pgxpool.Conn) error {
		queryCtx, cancel := f.catalogContext(ctx)
		defer cancel()

		rows, err := conn.Query(queryCtx, indexesSQL, schema, table)
		if err != nil {
			return WrapDatabaseError(err)
		}
		defer rows.Close()

		for rows.Next() {
			var idx IndexInfo
			if err := rows.Scan(&idx.Name, &idx.Definition, &idx.IsUnique, &idx.IsPrimary); err != nil {
				return WrapDatabaseError(err)
			}
			indexes = append(indexes, idx)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return &ListIndexesOutput{
		Database: name,
		Table:    tableName,
		Indexes:  indexes,
	}, nil
}
