package pgfleet

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RunReadOnlyQuery executes a validated read-only statement against the
// named database (default when dbName is empty). The statement is checked
// before any connection is touched; validation failures never reach the
// database.
func (f *Fleet) RunReadOnlyQuery(ctx context.Context, dbName, sql string) (*QueryOutput, error) {
	if err := f.checkSQLLength(sql); err != nil {
		return nil, err
	}
	if err := f.validator.CheckReadOnly(sql); err != nil {
		return nil, mapViolation(err, "sql_query")
	}

	name := resolvedName(f.registry, dbName)
	queryTimeout, timeoutRule := f.timeoutMgr.Resolve(sql)
	start := time.Now()

	var out *QueryOutput
	err := f.pools.withConn(ctx, name, func(ctx context.Context, conn *pgxpool.Conn) error {
		queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
		defer cancel()

		rows, err := conn.Query(queryCtx, sql)
		if err != nil {
			return WrapDatabaseError(err)
		}
		out, err = collectRows(rows)
		if err != nil {
			return WrapDatabaseError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out.Database = name
	out.DurationMS = time.Since(start).Milliseconds()
	f.capRows(out)
	out.Rows = f.sanitizer.Rows(out.Rows)
	f.trimToResultLength(out)

	logEvent := f.logger.Info().
		Str("database", name).
		Str("sql", truncateForLog(sql, 200)).
		Dur("duration", time.Since(start)).
		Int("row_count", len(out.Rows))
	if timeoutRule != "" {
		logEvent = logEvent.Str("timeout_rule", timeoutRule)
	}
	if out.Truncated {
		logEvent = logEvent.Bool("truncated", true)
	}
	logEvent.Msg("read-only query executed")

	return out, nil
}

// RunModificationQuery executes a single validated DML/DDL statement.
// Each statement runs with the database's native per-statement
// auto-commit semantics; protected tables and destructive statement
// classes are rejected before a connection is acquired.
func (f *Fleet) RunModificationQuery(ctx context.Context, dbName, sql string) (*QueryOutput, error) {
	if err := f.checkSQLLength(sql); err != nil {
		return nil, err
	}
	if isSelectLike(sql) {
		return nil, FieldErrorf(KindInvalidArguments, "sql_query", "use run_read_only_query for SELECT statements")
	}
	if err := f.validator.CheckModification(sql); err != nil {
		return nil, mapViolation(err, "sql_query")
	}

	name := resolvedName(f.registry, dbName)
	queryTimeout, timeoutRule := f.timeoutMgr.Resolve(sql)
	start := time.Now()

	var rowsAffected int64
	err := f.pools.withConn(ctx, name, func(ctx context.Context, conn *pgxpool.Conn) error {
		queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
		defer cancel()

		tag, err := conn.Exec(queryCtx, sql)
		if err != nil {
			return WrapDatabaseError(err)
		}
		rowsAffected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return nil, err
	}

	logEvent := f.logger.Info().
		Str("database", name).
		Str("sql", truncateForLog(sql, 200)).
		Dur("duration", time.Since(start)).
		Int64("rows_affected", rowsAffected)
	if timeoutRule != "" {
		logEvent = logEvent.Str("timeout_rule", timeoutRule)
	}
	logEvent.Msg("modification query executed")

	return &QueryOutput{
		Database:     name,
		RowsAffected: rowsAffected,
		DurationMS:   time.Since(start).Milliseconds(),
	}, nil
}

// RunQueryWithPagination runs a validated read-only statement and returns
// one page of its results plus total counts. Offsets and limits are bound
// as parameters, never spliced into the SQL text.
func (f *Fleet) RunQueryWithPagination(ctx context.Context, dbName, sql string, page, pageSize int) (*PageOutput, error) {
	if err := f.checkSQLLength(sql); err != nil {
		return nil, err
	}
	if page < 1 {
		return nil, FieldErrorf(KindInvalidArguments, "page", "page must be >= 1, got %d", page)
	}
	if pageSize <= 0 {
		pageSize = f.config.Global.DefaultPageSize
	}
	if err := f.validator.CheckReadOnly(sql); err != nil {
		return nil, mapViolation(err, "sql_query")
	}

	inner := strings.TrimRight(strings.TrimSpace(sql), ";")
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) AS page_count", inner)
	pageSQL := fmt.Sprintf("SELECT * FROM (%s) AS page_data OFFSET $1 LIMIT $2", inner)

	name := resolvedName(f.registry, dbName)
	queryTimeout, _ := f.timeoutMgr.Resolve(sql)
	start := time.Now()

	out := &PageOutput{Database: name, Page: page, PageSize: pageSize}
	err := f.pools.withConn(ctx, name, func(ctx context.Context, conn *pgxpool.Conn) error {
		queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
		defer cancel()

		if err := conn.QueryRow(queryCtx, countSQL).Scan(&out.TotalRows); err != nil {
			return WrapDatabaseError(err)
		}
		out.TotalPages = (out.TotalRows + int64(pageSize) - 1) / int64(pageSize)

		offset := (page - 1) * pageSize
		rows, err := conn.Query(queryCtx, pageSQL, offset, pageSize)
		if err != nil {
			return WrapDatabaseError(err)
		}
		collected, err := collectRows(rows)
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
		Str("sql", truncateForLog(sql, 200)).
		Dur("duration", time.Since(start)).
		Int("page", page).
		Int64("total_rows", out.TotalRows).
		Msg("paginated query executed")

	return out, nil
}

func (f *Fleet) checkSQLLength(sql string) error {
	if len(sql) > f.config.Query.MaxSQLLength {
		return FieldErrorf(KindInvalidArguments, "sql_query",
			"SQL query too long: %d bytes exceeds maximum of %d bytes", len(sql), f.config.Query.MaxSQLLength)
	}
	return nil
}

// capRows limits output rows to the configured display maximum.
func (f *Fleet) capRows(out *QueryOutput) {
	if maxRows := f.config.Global.MaxRowsDisplay; len(out.Rows) > maxRows {
		out.Rows = out.Rows[:maxRows]
		out.Truncated = true
	}
}

// trimToResultLength drops rows from the end until the serialized result
// fits the configured maximum length.
func (f *Fleet) trimToResultLength(out *QueryOutput) {
	maxLen := f.config.Query.MaxResultLength
	for len(out.Rows) > 0 {
		b, _ := json.Marshal(out.Rows)
		if utf8.RuneCountInString(string(b)) <= maxLen {
			return
		}
		out.Rows = out.Rows[:len(out.Rows)/2]
		out.Truncated = true
	}
}

// isSelectLike reports whether the statement's first keyword starts a
// read-only query.
func isSelectLike(sql string) bool {
	fields := strings.Fields(strings.ToUpper(sql))
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "SELECT", "WITH", "EXPLAIN", "SHOW":
		return true
	}
	return false
}

// collectRows reads all rows from pgx.Rows into a QueryOutput.
func collectRows(rows pgx.Rows) (*QueryOutput, error) {
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = fd.Name
	}

	resultRows := make([]map[string]interface{}, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = convertValue(values[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &QueryOutput{
		Columns:      columns,
		Rows:         resultRows,
		RowsAffected: rows.CommandTag().RowsAffected(),
	}, nil
}

// convertValue maps a pgx-returned value to a JSON-friendly Go type.
func convertValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float32:
		return convertFloat(float64(val))
	case float64:
		return convertFloat(val)
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		if val.NaN {
			return "NaN"
		}
		b, err := val.MarshalJSON()
		if err != nil {
			return nil
		}
		return string(b)
	case [16]byte:
		// UUID
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	case []byte:
		return base64.StdEncoding.EncodeToString(val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = convertValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = convertValue(item)
		}
		return out
	case fmt.Stringer:
		return val.String()
	default:
		return val
	}
}

func convertFloat(val float64) interface{} {
	if math.IsNaN(val) {
		return "NaN"
	}
	if math.IsInf(val, 1) {
		return "Infinity"
	}
	if math.IsInf(val, -1) {
		return "-Infinity"
	}
	return val
}

// truncateForLog shortens s for log output without splitting a rune.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...[truncated]"
}
