package pgfleet

import (
	"context"
	"math"
	"strings"
)

// Operations names every tool operation this server dispatches, in the
// order they are registered.
var Operations = []string{
	"list_databases",
	"locate_table",
	"get_session_info",
	"list_tables",
	"describe_table",
	"run_read_only_query",
	"run_query_with_pagination",
	"run_modification_query",
	"get_object_ddl",
	"list_constraints",
	"list_indexes",
	"search_in_table",
	"explain_query_plan",
	"inspect_locks",
	"kill_session",
	"export_query_to_csv",
}

// Dispatch decodes one tool request and routes it to the matching
// operation. Unknown operation names and malformed arguments fail before
// any database work happens.
func (f *Fleet) Dispatch(ctx context.Context, req ToolRequest) (interface{}, error) {
	args := req.Args
	switch req.Operation {
	case "list_databases":
		return f.ListDatabases(ctx)

	case "locate_table":
		table, err := requireString(args, "table_name")
		if err != nil {
			return nil, err
		}
		return f.LocateTable(ctx, table)

	case "get_session_info":
		return f.GetSessionInfo(ctx)

	case "list_tables":
		dbName, err := optionalString(args, "database_name")
		if err != nil {
			return nil, err
		}
		return f.ListTables(ctx, dbName)

	case "describe_table":
		dbName, table, err := dbAndTable(args)
		if err != nil {
			return nil, err
		}
		return f.DescribeTable(ctx, dbName, table)

	case "run_read_only_query":
		dbName, sql, err := dbAndSQL(args)
		if err != nil {
			return nil, err
		}
		return f.RunReadOnlyQuery(ctx, dbName, sql)

	case "run_query_with_pagination":
		dbName, sql, err := dbAndSQL(args)
		if err != nil {
			return nil, err
		}
		page, err := optionalInt(args, "page", 1)
		if err != nil {
			return nil, err
		}
		pageSize, err := optionalInt(args, "page_size", 0)
		if err != nil {
			return nil, err
		}
		return f.RunQueryWithPagination(ctx, dbName, sql, page, pageSize)

	case "run_modification_query":
		dbName, sql, err := dbAndSQL(args)
		if err != nil {
			return nil, err
		}
		return f.RunModificationQuery(ctx, dbName, sql)

	case "get_object_ddl":
		dbName, err := optionalString(args, "database_name")
		if err != nil {
			return nil, err
		}
		object, err := requireString(args, "object_name")
		if err != nil {
			return nil, err
		}
		return f.GetObjectDDL(ctx, dbName, object)

	case "list_constraints":
		dbName, table, err := dbAndTable(args)
		if err != nil {
			return nil, err
		}
		return f.ListConstraints(ctx, dbName, table)

	case "list_indexes":
		dbName, table, err := dbAndTable(args)
		if err != nil {
			return nil, err
		}
		return f.ListIndexes(ctx, dbName, table)

	case "search_in_table":
		dbName, table, err := dbAndTable(args)
		if err != nil {
			return nil, err
		}
		term, err := requireString(args, "search_term")
		if err != nil {
			return nil, err
		}
		return f.SearchInTable(ctx, dbName, table, term)

	case "explain_query_plan":
		dbName, sql, err := dbAndSQL(args)
		if err != nil {
			return nil, err
		}
		return f.ExplainQueryPlan(ctx, dbName, sql)

	case "inspect_locks":
		dbName, err := optionalString(args, "database_name")
		if err != nil {
			return nil, err
		}
		return f.InspectLocks(ctx, dbName)

	case "kill_session":
		dbName, err := optionalString(args, "database_name")
		if err != nil {
			return nil, err
		}
		pid, err := requireInt(args, "pid")
		if err != nil {
			return nil, err
		}
		return f.KillSession(ctx, dbName, pid)

	case "export_query_to_csv":
		dbName, sql, err := dbAndSQL(args)
		if err != nil {
			return nil, err
		}
		filename, err := requireString(args, "filename")
		if err != nil {
			return nil, err
		}
		return f.ExportQueryToCSV(ctx, dbName, sql, filename)

	default:
		return nil, Errorf(KindUnknownOperation,
			"unknown operation %q; available operations: %s",
			req.Operation, strings.Join(Operations, ", "))
	}
}

func dbAndTable(args map[string]interface{}) (dbName, table string, err error) {
	dbName, err = optionalString(args, "database_name")
	if err != nil {
		return "", "", err
	}
	table, err = requireString(args, "table_name")
	if err != nil {
		return "", "", err
	}
	return dbName, table, nil
}

func dbAndSQL(args map[string]interface{}) (dbName, sql string, err error) {
	dbName, err = optionalString(args, "database_name")
	if err != nil {
		return "", "", err
	}
	sql, err = requireString(args, "sql_query")
	if err != nil {
		return "", "", err
	}
	return dbName, sql, nil
}

func requireString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", FieldErrorf(KindInvalidArguments, key, "missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", FieldErrorf(KindInvalidArguments, key, "argument %q must be a string", key)
	}
	if strings.TrimSpace(s) == "" {
		return "", FieldErrorf(KindInvalidArguments, key, "argument %q must not be empty", key)
	}
	return s, nil
}

func optionalString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", FieldErrorf(KindInvalidArguments, key, "argument %q must be a string", key)
	}
	return s, nil
}

func requireInt(args map[string]interface{}, key string) (int, error) {
	v, ok := args[key]
	if !ok {
		return 0, FieldErrorf(KindInvalidArguments, key, "missing required argument %q", key)
	}
	return coerceInt(key, v)
}

func optionalInt(args map[string]interface{}, key string, def int) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	return coerceInt(key, v)
}

// coerceInt accepts the numeric shapes JSON decoding produces.
func coerceInt(key string, v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, FieldErrorf(KindInvalidArguments, key, "argument %q must be an integer", key)
		}
		return int(n), nil
	default:
		return 0, FieldErrorf(KindInvalidArguments, key, "argument %q must be an integer", key)
	}
}
