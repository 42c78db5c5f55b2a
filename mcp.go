package pgfleet

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterMCPTools registers every dispatch operation as an MCP tool on
// the given server. Handlers route through Dispatch so argument decoding
// and error classification stay in one place; tool-call failures are
// returned as tool results, never as protocol errors.
func RegisterMCPTools(mcpServer *server.MCPServer, fleet *Fleet) {
	for _, tool := range toolDefinitions() {
		mcpServer.AddTool(tool, fleet.loggedToolHandler(tool.Name, fleet.operationHandler(tool.Name)))
	}
}

func (f *Fleet) operationHandler(operation string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		output, err := f.Dispatch(ctx, ToolRequest{
			Operation: operation,
			Args:      req.GetArguments(),
		})
		if err != nil {
			return mcp.NewToolResultError(f.renderToolError(err)), nil
		}
		jsonBytes, err := json.Marshal(output)
		if err != nil {
			return mcp.NewToolResultError("failed to marshal tool result"), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}
}

// renderToolError formats an error for the calling agent, appending any
// configured guidance whose pattern matches a native database error.
func (f *Fleet) renderToolError(err error) string {
	msg := err.Error()
	if KindOf(err) != KindUnderlyingDatabase {
		return msg
	}
	advice, patterns := f.advisor.Advise(msg)
	if advice == "" {
		return msg
	}
	f.logger.Debug().
		Strs("patterns", patterns).
		Msg("guidance attached to error")
	return msg + "\n\nGuidance:\n" + advice
}

// loggedToolHandler wraps a tool handler to log request and response lengths.
func (f *Fleet) loggedToolHandler(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reqLen := requestLength(req)
		result, err := handler(ctx, req)
		respLen := resultLength(result)
		f.logger.Info().
			Str("tool", tool).
			Int("request_bytes", reqLen).
			Int("response_bytes", respLen).
			Msg("tool call")
		return result, err
	}
}

func toolDefinitions() []mcp.Tool {
	databaseArg := mcp.WithString("database_name",
		mcp.Description("Logical database name. Omit to use the default database."),
	)
	tableArg := mcp.WithString("table_name",
		mcp.Required(),
		mcp.Description("Table name, optionally schema-qualified (schema.table)."),
	)
	sqlArg := mcp.WithString("sql_query",
		mcp.Required(),
		mcp.Description("The SQL statement to run."),
	)

	return []mcp.Tool{
		mcp.NewTool("list_databases",
			mcp.WithDescription("List all configured databases with their connection targets and pool state. Never opens a connection."),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcp.NewTool("locate_table",
			mcp.WithDescription("Find which configured databases contain a table with the given name. Unreachable databases are reported but do not abort the scan."),
			tableArg,
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcp.NewTool("get_session_info",
			mcp.WithDescription("Report pool statistics, session user, and server version for every initialized connection pool."),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcp.NewTool("list_tables",
			mcp.WithDescription("List all tables, views, materialized views, and foreign tables accessible to the session user."),
			databaseArg,
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcp.NewTool("describe_table",
			mcp.WithDescription("Describe a table's columns: types, nullability, defaults, and primary key membership."),
			databaseArg, tableArg,
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcp.NewTool("run_read_only_query",
			mcp.WithDescription("Execute a read-only SQL query (SELECT, EXPLAIN, SHOW). Results are capped at the configured row display limit."),
			databaseArg, sqlArg,
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcp.NewTool("run_query_with_pagination",
			mcp.WithDescription("Execute a read-only SQL query and return one page of results with total row and page counts."),
			databaseArg, sqlArg,
			mcp.WithNumber("page",
				mcp.Description("1-based page number. Defaults to 1."),
			),
			mcp.WithNumber("page_size",
				mcp.Description("Rows per page. Defaults to the configured page size."),
			),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcp.NewTool("run_modification_query",
			mcp.WithDescription("Execute a DML or DDL statement. Destructive statement classes and protected tables are rejected. Returns the affected row count."),
			databaseArg, sqlArg,
		),
		mcp.NewTool("get_object_ddl",
			mcp.WithDescription("Reconstruct the DDL of a table, view, materialized view, index, sequence, or function."),
			databaseArg,
			mcp.WithString("object_name",
				mcp.Required(),
				mcp.Description("Object name, optionally schema-qualified."),
			),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcp.NewTool("list_constraints",
			mcp.WithDescription("List every constraint on a table with its full definition."),
			databaseArg, tableArg,
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcp.NewTool("list_indexes",
			mcp.WithDescription("List every index on a table with its CREATE INDEX definition."),
			databaseArg, tableArg,
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcp.NewTool("search_in_table",
			mcp.WithDescription("Search all text columns of a table for rows containing a term, case-insensitively."),
			databaseArg, tableArg,
			mcp.WithString("search_term",
				mcp.Required(),
				mcp.Description("The text to search for."),
			),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcp.NewTool("explain_query_plan",
			mcp.WithDescription("Show the estimated execution plan for a read-only query without executing it."),
			databaseArg, sqlArg,
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcp.NewTool("inspect_locks",
			mcp.WithDescription("Report lock contention: sessions waiting on locks and the sessions blocking them."),
			databaseArg,
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcp.NewTool("kill_session",
			mcp.WithDescription("Terminate a database session by PID. Requires the database to be configured with privileged mode."),
			databaseArg,
			mcp.WithNumber("pid",
				mcp.Required(),
				mcp.Description("Backend process ID to terminate."),
			),
		),
		mcp.NewTool("export_query_to_csv",
			mcp.WithDescription("Execute a read-only query and write its full result set to a CSV file in the configured export directory."),
			databaseArg, sqlArg,
			mcp.WithString("filename",
				mcp.Required(),
				mcp.Description("Bare output file name; .csv is appended when missing."),
			),
			mcp.WithReadOnlyHintAnnotation(true),
		),
	}
}

// requestLength returns the JSON-encoded byte length of the request arguments.
func requestLength(req mcp.CallToolRequest) int {
	args := req.GetArguments()
	if len(args) == 0 {
		return 0
	}
	b, err := json.Marshal(args)
	if err != nil {
		return 0
	}
	return len(b)
}

// resultLength returns the total byte length of text content in a CallToolResult.
func resultLength(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	total := 0
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			total += len(tc.Text)
		}
	}
	return total
}
