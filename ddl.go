package pgfleet

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

const relKindSQL = `
SELECT c.oid, c.relkind
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relname = $2;
`

const functionDefSQL = `
SELECT pg_catalog.pg_get_functiondef(p.oid)
FROM pg_catalog.pg_proc p
JOIN pg_catalog.pg_namespace n ON n.oid = p.pronamespace
WHERE n.nspname = $1 AND p.proname = $2
LIMIT 1;
`

const tableColumnsDDLSQL = `
SELECT a.attname,
       pg_catalog.format_type(a.atttypid, a.atttypmod),
       a.attnotnull,
       COALESCE(pg_catalog.pg_get_expr(d.adbin, d.adrelid), '')
FROM pg_catalog.pg_attribute a
LEFT JOIN pg_catalog.pg_attrdef d ON a.attrelid = d.adrelid AND a.attnum = d.adnum
WHERE a.attrelid = $1
  AND a.attnum > 0
  AND NOT a.attisdropped
ORDER BY a.attnum;
`

const tableConstraintsDDLSQL = `
SELECT con.conname, pg_catalog.pg_get_constraintdef(con.oid, true)
FROM pg_catalog.pg_constraint con
WHERE con.conrelid = $1
ORDER BY con.conname;
`

// GetObjectDDL reconstructs the definition of a table, view,
// materialized view, index, sequence, or function. Views, indexes, and
// functions use the server's own deparser; tables are rebuilt from the
// catalog column by column.
func (f *Fleet) GetObjectDDL(ctx context.Context, dbName, objectName string) (*DDLOutput, error) {
	schema, object, err := f.splitTable(objectName)
	if err != nil {
		return nil, err
	}

	name := resolvedName(f.registry, dbName)
	out := &DDLOutput{Database: name, Object: objectName}
	err = f.pools.withConn(ctx, name, func(ctx context.Context, conn *pgxpool.Conn) error {
		queryCtx, cancel := f.catalogContext(ctx)
		defer cancel()

		var oid uint32
		var relkind string
		err := conn.QueryRow(queryCtx, relKindSQL, schema, object).Scan(&oid, &relkind)
		if isNoRows(err) {
			// Not a relation; try functions before giving up.
			var def string
			ferr := conn.QueryRow(queryCtx, functionDefSQL, schema, object).Scan(&def)
			if isNoRows(ferr) {
				return FieldErrorf(KindInvalidArguments, "object_name",
					"object %q not found in database %q", objectName, name)
			}
			if ferr != nil {
				return WrapDatabaseError(ferr)
			}
			out.ObjectType = "function"
			out.DDL = def
			return nil
		}
		if err != nil {
			return WrapDatabaseError(err)
		}

		qualified := fmt.Sprintf("%s.%s", schema, object)
		switch relkind {
		case "r", "p":
			out.ObjectType = "table"
			ddl, err := buildTableDDL(queryCtx, conn, oid, qualified)
			if err != nil {
				return WrapDatabaseError(err)
			}
			out.DDL = ddl
		case "v":
			out.ObjectType = "view"
			var def string
			if err := conn.QueryRow(queryCtx,
				"SELECT pg_catalog.pg_get_viewdef($1, true)", oid).Scan(&def); err != nil {
				return WrapDatabaseError(err)
			}
			out.DDL = fmt.Sprintf("CREATE OR REPLACE VIEW %s AS\n%s", qualified, def)
		case "m":
			out.ObjectType = "materialized_view"
			var def string
			if err := conn.QueryRow(queryCtx,
				"SELECT pg_catalog.pg_get_viewdef($1, true)", oid).Scan(&def); err != nil {
				return WrapDatabaseError(err)
			}
			out.DDL = fmt.Sprintf("CREATE MATERIALIZED VIEW %s AS\n%s", qualified, def)
		case "i":
			out.ObjectType = "index"
			var def string
			if err := conn.QueryRow(queryCtx,
				"SELECT pg_catalog.pg_get_indexdef($1)", oid).Scan(&def); err != nil {
				return WrapDatabaseError(err)
			}
			out.DDL = def
		case "S":
			out.ObjectType = "sequence"
			out.DDL = fmt.Sprintf("CREATE SEQUENCE %s;", qualified)
		default:
			return FieldErrorf(KindInvalidArguments, "object_name",
				"object %q has unsupported kind %q", objectName, relkind)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func buildTableDDL(ctx context.Context, conn *pgxpool.Conn, oid uint32, qualified string) (string, error) {
	rows, err := conn.Query(ctx, tableColumnsDDLSQL, oid)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var colName, colType, colDefault string
		var notNull bool
		if err := rows.Scan(&colName, &colType, &notNull, &colDefault); err != nil {
			return "", err
		}
		line := fmt.Sprintf("    %s %s", colName, colType)
		if notNull {
			line += " NOT NULL"
		}
		if colDefault != "" {
			line += " DEFAULT " + colDefault
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	conRows, err := conn.Query(ctx, tableConstraintsDDLSQL, oid)
	if err != nil {
		return "", err
	}
	defer conRows.Close()

	for conRows.Next() {
		var conName, conDef string
		if err := conRows.Scan(&conName, &conDef); err != nil {
			return "", err
		}
		lines = append(lines, fmt.Sprintf("    CONSTRAINT %s %s", conName, conDef))
	}
	if err := conRows.Err(); err != nil {
		return "", err
	}

	return fmt.Sprintf("CREATE TABLE %s (\n%s\n);", qualified, strings.Join(lines, ",\n")), nil
}
