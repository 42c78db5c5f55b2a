// Package pgfleet exposes a fleet of named PostgreSQL databases to AI
// agents through the Model Context Protocol (MCP).
//
// Every database is registered under a logical name with its own lazily
// created connection pool; tools address databases by name and fall back
// to a configured default. Sixteen tools cover discovery (list_databases,
// locate_table, list_tables, describe_table, get_object_ddl,
// list_constraints, list_indexes), querying (run_read_only_query,
// run_query_with_pagination, search_in_table, explain_query_plan,
// export_query_to_csv), modification (run_modification_query), and
// session management (get_session_info, inspect_locks, kill_session).
//
// Every statement is validated before a connection is touched. Read-only
// statements must parse to a single SELECT, EXPLAIN, or SHOW via
// PostgreSQL's actual C parser (pg_query); modification statements are
// walked at the AST level to reject destructive statement classes and
// writes to protected tables. SQL injection of tool arguments is
// prevented at the protocol level: user-supplied values are always bound
// as parameters using the pgx extended query protocol, never spliced
// into SQL text.
//
// # Library Usage
//
//	fleet, err := pgfleet.New(pgfleet.Config{
//		Databases: []pgfleet.DatabaseProfile{
//			{Name: "orders_dev", Host: "localhost", Port: 5432, ServiceName: "orders", User: "app", Password: "secret"},
//		},
//		ProtectedTables: []string{"audit_trail"},
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer fleet.Close()
//
//	// Use directly
//	out, err := fleet.RunReadOnlyQuery(ctx, "orders_dev", "SELECT * FROM orders LIMIT 10")
//
//	// Or register as MCP tools
//	pgfleet.RegisterMCPTools(mcpServer, fleet)
package pgfleet
