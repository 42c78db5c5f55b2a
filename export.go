package pgfleet

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ExportQueryToCSV runs a validated read-only statement and streams its
// results into a CSV file under the configured export directory. The
// filename must be a bare name; path traversal is rejected. Row count is
// capped by max_csv_rows.
func (f *Fleet) ExportQueryToCSV(ctx context.Context, dbName, sql, filename string) (*ExportOutput, error) {
	if err := f.checkSQLLength(sql); err != nil {
		return nil, err
	}
	if err := validateExportFilename(filename); err != nil {
		return nil, err
	}
	if f.config.Global.ExportDirectory == "" {
		return nil, FieldErrorf(KindInvalidArguments, "filename",
			"export_directory is not configured; CSV export is disabled")
	}
	if err := f.validator.CheckReadOnly(sql); err != nil {
		return nil, mapViolation(err, "sql_query")
	}

	if !strings.HasSuffix(strings.ToLower(filename), ".csv") {
		filename += ".csv"
	}
	path := filepath.Join(f.config.Global.ExportDirectory, filename)

	if err := os.MkdirAll(f.config.Global.ExportDirectory, 0o755); err != nil {
		return nil, FieldErrorf(KindInvalidArguments, "filename",
			"cannot create export directory: %v", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, FieldErrorf(KindInvalidArguments, "filename",
			"cannot create export file: %v", err)
	}
	defer file.Close()

	name := resolvedName(f.registry, dbName)
	queryTimeout, _ := f.timeoutMgr.Resolve(sql)
	maxRows := f.config.Global.MaxCSVRows
	start := time.Now()

	out := &ExportOutput{Database: name, Path: path}
	err = f.pools.withConn(ctx, name, func(ctx context.Context, conn *pgxpool.Conn) error {
		queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
		defer cancel()

		rows, err := conn.Query(queryCtx, sql)
		if err != nil {
			return WrapDatabaseError(err)
		}
		defer rows.Close()

		fieldDescs := rows.FieldDescriptions()
		header := make([]string, len(fieldDescs))
		for i, fd := range fieldDescs {
			header[i] = fd.Name
		}

		writer := csv.NewWriter(file)
		if err := writer.Write(header); err != nil {
			return FieldErrorf(KindInvalidArguments, "filename", "write failed: %v", err)
		}

		record := make([]string, len(header))
		for rows.Next() {
			if out.RowsWritten >= maxRows {
				out.Truncated = true
				break
			}
			values, err := rows.Values()
			if err != nil {
				return WrapDatabaseError(err)
			}
			for i, v := range values {
				record[i] = csvField(convertValue(v))
			}
			if err := writer.Write(record); err != nil {
				return FieldErrorf(KindInvalidArguments, "filename", "write failed: %v", err)
			}
			out.RowsWritten++
		}
		if err := rows.Err(); err != nil && !out.Truncated {
			return WrapDatabaseError(err)
		}

		writer.Flush()
		return writer.Error()
	})
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	f.logger.Info().
		Str("database", name).
		Str("path", path).
		Dur("duration", time.Since(start)).
		Int("rows_written", out.RowsWritten).
		Bool("truncated", out.Truncated).
		Msg("query exported to CSV")

	return out, nil
}

// validateExportFilename rejects anything other than a bare file name.
func validateExportFilename(filename string) error {
	if filename == "" {
		return FieldErrorf(KindInvalidArguments, "filename", "filename must not be empty")
	}
	if strings.ContainsAny(filename, "/\\") || strings.Contains(filename, "..") {
		return FieldErrorf(KindInvalidArguments, "filename",
			"filename must be a bare name without path separators, got %q", filename)
	}
	return nil
}

// csvField renders one converted value as CSV cell text. NULL becomes an
// empty cell; structured values are serialized as JSON.
func csvField(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}
