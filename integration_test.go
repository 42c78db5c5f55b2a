//go:build integration

package pgfleet_test

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rickchristie/govner/pgflock/client"

	pgfleet "github.com/minhngo/pgfleet"
)

const (
	pgflockLockerPort = 9776
	pgflockPassword   = "pgflock"
)

func acquireTestDB(t *testing.T, suffix string) string {
	t.Helper()
	connStr, err := client.Lock(pgflockLockerPort, t.Name()+suffix, pgflockPassword)
	if err != nil {
		t.Fatalf("Failed to acquire test database: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Unlock(pgflockLockerPort, pgflockPassword, connStr)
	})
	return connStr
}

// newTestFleet builds a two-database fleet over leased test databases.
// The first database, "alpha", is the default and runs in privileged
// mode; "beta" is a plain profile.
func newTestFleet(t *testing.T, mutate func(*pgfleet.Config)) *pgfleet.Fleet {
	t.Helper()
	cfg := pgfleet.Config{
		Databases: []pgfleet.DatabaseProfile{
			{Name: "alpha", DSN: acquireTestDB(t, "_alpha"), Mode: pgfleet.ModePrivileged},
			{Name: "beta", DSN: acquireTestDB(t, "_beta")},
		},
		Global: pgfleet.GlobalSettings{DefaultDatabase: "alpha"},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f, err := pgfleet.New(cfg, testLogger())
	if err != nil {
		t.Fatalf("failed to create fleet: %v", err)
	}
	t.Cleanup(f.Close)
	return f
}

func mustModify(t *testing.T, f *pgfleet.Fleet, dbName, sql string) {
	t.Helper()
	if _, err := f.RunModificationQuery(context.Background(), dbName, sql); err != nil {
		t.Fatalf("setup statement failed: %v", err)
	}
}

func TestIntegration_ModifyAndReadBack(t *testing.T) {
	t.Parallel()
	f := newTestFleet(t, nil)
	ctx := context.Background()

	mustModify(t, f, "", "CREATE TABLE users (id serial PRIMARY KEY, name text, email text)")
	mustModify(t, f, "", "INSERT INTO users (name, email) VALUES ('Alice', 'alice@example.com'), ('Bob', 'bob@example.com')")

	out, err := f.RunReadOnlyQuery(ctx, "", "SELECT id, name, email FROM users ORDER BY id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Database != "alpha" {
		t.Fatalf("expected database alpha, got %q", out.Database)
	}
	if len(out.Columns) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(out.Columns))
	}
	if len(out.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(out.Rows))
	}
	if out.Rows[0]["name"] != "Alice" || out.Rows[1]["name"] != "Bob" {
		t.Fatalf("unexpected rows: %v", out.Rows)
	}
}

func TestIntegration_ModificationRowsAffected(t *testing.T) {
	t.Parallel()
	f := newTestFleet(t, nil)
	ctx := context.Background()

	mustModify(t, f, "", "CREATE TABLE items (id serial PRIMARY KEY, qty int)")
	mustModify(t, f, "", "INSERT INTO items (qty) VALUES (1), (2), (3)")

	out, err := f.RunModificationQuery(ctx, "", "UPDATE items SET qty = qty + 1 WHERE qty >= 2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.RowsAffected != 2 {
		t.Fatalf("expected 2 rows affected, got %d", out.RowsAffected)
	}
}

func TestIntegration_DatabasesAreIsolated(t *testing.T) {
	t.Parallel()
	f := newTestFleet(t, nil)
	ctx := context.Background()

	mustModify(t, f, "alpha", "CREATE TABLE only_in_alpha (id int)")

	// The same table must not be visible in beta.
	_, err := f.RunReadOnlyQuery(ctx, "beta", "SELECT * FROM only_in_alpha")
	if err == nil {
		t.Fatal("expected error querying alpha's table in beta")
	}
	if pgfleet.KindOf(err) != pgfleet.KindUnderlyingDatabase {
		t.Fatalf("expected KindUnderlyingDatabase, got %q", pgfleet.KindOf(err))
	}
}

func TestIntegration_Pagination(t *testing.T) {
	t.Parallel()
	f := newTestFleet(t, nil)
	ctx := context.Background()

	mustModify(t, f, "", "CREATE TABLE seq (n int)")
	mustModify(t, f, "", "INSERT INTO seq SELECT generate_series(1, 25)")

	out, err := f.RunQueryWithPagination(ctx, "", "SELECT n FROM seq ORDER BY n", 2, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.TotalRows != 25 {
		t.Fatalf("expected 25 total rows, got %d", out.TotalRows)
	}
	if out.TotalPages != 3 {
		t.Fatalf("expected 3 total pages, got %d", out.TotalPages)
	}
	if len(out.Rows) != 10 {
		t.Fatalf("expected 10 rows on page 2, got %d", len(out.Rows))
	}
	first := fmt.Sprint(out.Rows[0]["n"])
	last := fmt.Sprint(out.Rows[9]["n"])
	if first != "11" || last != "20" {
		t.Fatalf("expected rows 11..20, got %s..%s", first, last)
	}

	// Last page is short.
	out, err = f.RunQueryWithPagination(ctx, "", "SELECT n FROM seq ORDER BY n", 3, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Rows) != 5 {
		t.Fatalf("expected 5 rows on page 3, got %d", len(out.Rows))
	}

	// Beyond the last page is empty, not an error.
	out, err = f.RunQueryWithPagination(ctx, "", "SELECT n FROM seq ORDER BY n", 9, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Rows) != 0 {
		t.Fatalf("expected empty page, got %d rows", len(out.Rows))
	}
}

func TestIntegration_LocateTable(t *testing.T) {
	t.Parallel()
	f := newTestFleet(t, nil)
	ctx := context.Background()

	mustModify(t, f, "alpha", "CREATE TABLE everywhere_tbl (id int)")
	mustModify(t, f, "beta", "CREATE TABLE everywhere_tbl (id int)")
	mustModify(t, f, "beta", "CREATE TABLE beta_only_tbl (id int)")

	out, err := f.LocateTable(ctx, "everywhere_tbl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Found databases follow registry declaration order.
	if len(out.FoundIn) != 2 || out.FoundIn[0] != "alpha" || out.FoundIn[1] != "beta" {
		t.Fatalf("expected [alpha beta], got %v", out.FoundIn)
	}
	if len(out.Failures) != 0 {
		t.Fatalf("unexpected failures: %v", out.Failures)
	}

	out, err = f.LocateTable(ctx, "beta_only_tbl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.FoundIn) != 1 || out.FoundIn[0] != "beta" {
		t.Fatalf("expected [beta], got %v", out.FoundIn)
	}

	// Case-insensitive match.
	out, err = f.LocateTable(ctx, "BETA_ONLY_TBL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.FoundIn) != 1 {
		t.Fatalf("expected case-insensitive match, got %v", out.FoundIn)
	}

	// Missing tables produce an empty result, not an error.
	out, err = f.LocateTable(ctx, "no_such_table_anywhere")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.FoundIn) != 0 {
		t.Fatalf("expected no matches, got %v", out.FoundIn)
	}
}

func TestIntegration_LocateTableIsolatesFailures(t *testing.T) {
	t.Parallel()
	f := newTestFleet(t, func(cfg *pgfleet.Config) {
		cfg.Databases = append(cfg.Databases, pgfleet.DatabaseProfile{
			Name: "ghost", Host: "127.0.0.1", Port: 1, ServiceName: "nope", User: "x",
		})
		cfg.Global.AcquireTimeoutSeconds = 2
	})
	ctx := context.Background()

	mustModify(t, f, "alpha", "CREATE TABLE findme (id int)")

	out, err := f.LocateTable(ctx, "findme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.FoundIn) != 1 || out.FoundIn[0] != "alpha" {
		t.Fatalf("expected [alpha], got %v", out.FoundIn)
	}
	if len(out.Failures) != 1 || out.Failures[0].Database != "ghost" {
		t.Fatalf("expected one failure for ghost, got %v", out.Failures)
	}
}

func TestIntegration_ListAndDescribe(t *testing.T) {
	t.Parallel()
	f := newTestFleet(t, nil)
	ctx := context.Background()

	mustModify(t, f, "", `CREATE TABLE products (
		id serial PRIMARY KEY,
		sku text NOT NULL,
		price numeric(10,2) DEFAULT 0,
		UNIQUE (sku)
	)`)
	mustModify(t, f, "", "CREATE INDEX products_price_idx ON products (price)")
	mustModify(t, f, "", "CREATE VIEW cheap_products AS SELECT * FROM products WHERE price < 10")

	tables, err := f.ListTables(ctx, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sawTable, sawView bool
	for _, entry := range tables.Tables {
		switch entry.Name {
		case "products":
			sawTable = entry.Type == "table"
		case "cheap_products":
			sawView = entry.Type == "view"
		}
	}
	if !sawTable || !sawView {
		t.Fatalf("missing entries in listing: %+v", tables.Tables)
	}

	desc, err := f.DescribeTable(ctx, "", "products")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc.Schema != "public" || desc.Name != "products" {
		t.Fatalf("unexpected identity: %s.%s", desc.Schema, desc.Name)
	}
	byName := map[string]pgfleet.ColumnInfo{}
	for _, col := range desc.Columns {
		byName[col.Name] = col
	}
	if !byName["id"].IsPrimaryKey {
		t.Fatal("expected id to be primary key")
	}
	if byName["sku"].Nullable {
		t.Fatal("expected sku to be NOT NULL")
	}
	if byName["price"].Default == "" {
		t.Fatal("expected price to have a default")
	}

	// Unknown table is an argument error, not a database error.
	_, err = f.DescribeTable(ctx, "", "no_such_table")
	if pgfleet.KindOf(err) != pgfleet.KindInvalidArguments {
		t.Fatalf("expected KindInvalidArguments, got %v", err)
	}

	cons, err := f.ListConstraints(ctx, "", "products")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sawPK, sawUnique bool
	for _, c := range cons.Constraints {
		if c.Type == "PRIMARY KEY" {
			sawPK = true
		}
		if c.Type == "UNIQUE" {
			sawUnique = true
		}
	}
	if !sawPK || !sawUnique {
		t.Fatalf("missing constraints: %+v", cons.Constraints)
	}

	idx, err := f.ListIndexes(ctx, "", "products")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sawPriceIdx bool
	for _, i := range idx.Indexes {
		if i.Name == "products_price_idx" && !i.IsUnique && !i.IsPrimary {
			sawPriceIdx = true
		}
	}
	if !sawPriceIdx {
		t.Fatalf("missing products_price_idx: %+v", idx.Indexes)
	}
}

func TestIntegration_GetObjectDDL(t *testing.T) {
	t.Parallel()
	f := newTestFleet(t, nil)
	ctx := context.Background()

	mustModify(t, f, "", "CREATE TABLE widgets (id serial PRIMARY KEY, label text NOT NULL)")
	mustModify(t, f, "", "CREATE VIEW widget_labels AS SELECT label FROM widgets")

	out, err := f.GetObjectDDL(ctx, "", "widgets")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ObjectType != "table" {
		t.Fatalf("expected table, got %q", out.ObjectType)
	}
	for _, want := range []string{"CREATE TABLE public.widgets", "label text NOT NULL", "PRIMARY KEY"} {
		if !strings.Contains(out.DDL, want) {
			t.Fatalf("DDL missing %q:\n%s", want, out.DDL)
		}
	}

	out, err = f.GetObjectDDL(ctx, "", "widget_labels")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ObjectType != "view" {
		t.Fatalf("expected view, got %q", out.ObjectType)
	}
	if !strings.Contains(out.DDL, "CREATE OR REPLACE VIEW") || !strings.Contains(out.DDL, "FROM widgets") {
		t.Fatalf("unexpected view DDL:\n%s", out.DDL)
	}

	if _, err := f.GetObjectDDL(ctx, "", "missing_object"); pgfleet.KindOf(err) != pgfleet.KindInvalidArguments {
		t.Fatalf("expected KindInvalidArguments, got %v", err)
	}
}

func TestIntegration_SearchInTable(t *testing.T) {
	t.Parallel()
	f := newTestFleet(t, nil)
	ctx := context.Background()

	mustModify(t, f, "", "CREATE TABLE notes (id serial PRIMARY KEY, title text, body text, score int)")
	mustModify(t, f, "", `INSERT INTO notes (title, body, score) VALUES
		('shopping', 'buy apples and oranges', 1),
		('work', 'Review the APPLE branch', 2),
		('other', 'nothing relevant', 3)`)

	out, err := f.SearchInTable(ctx, "", "notes", "apple")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Only text columns are searched.
	for _, col := range out.SearchedColumns {
		if col == "id" || col == "score" {
			t.Fatalf("non-text column %q searched", col)
		}
	}
	if len(out.Rows) != 2 {
		t.Fatalf("expected 2 case-insensitive matches, got %d: %v", len(out.Rows), out.Rows)
	}

	// A term that looks like SQL must be treated as plain text.
	out, err = f.SearchInTable(ctx, "", "notes", "' OR 1=1 --")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Rows) != 0 {
		t.Fatalf("injection-looking term matched %d rows", len(out.Rows))
	}
}

func TestIntegration_ExplainQueryPlan(t *testing.T) {
	t.Parallel()
	f := newTestFleet(t, nil)
	ctx := context.Background()

	mustModify(t, f, "", "CREATE TABLE plans (id int)")

	out, err := f.ExplainQueryPlan(ctx, "", "SELECT * FROM plans WHERE id = 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.Plan, "Seq Scan") {
		t.Fatalf("expected a plan, got:\n%s", out.Plan)
	}
}

func TestIntegration_RowTruncation(t *testing.T) {
	t.Parallel()
	f := newTestFleet(t, func(cfg *pgfleet.Config) {
		cfg.Global.MaxRowsDisplay = 5
	})
	ctx := context.Background()

	mustModify(t, f, "", "CREATE TABLE many (n int)")
	mustModify(t, f, "", "INSERT INTO many SELECT generate_series(1, 50)")

	out, err := f.RunReadOnlyQuery(ctx, "", "SELECT n FROM many ORDER BY n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Rows) != 5 {
		t.Fatalf("expected 5 rows after truncation, got %d", len(out.Rows))
	}
	if !out.Truncated {
		t.Fatal("expected truncated flag")
	}
}

func TestIntegration_Sanitization(t *testing.T) {
	t.Parallel()
	f := newTestFleet(t, func(cfg *pgfleet.Config) {
		cfg.Sanitization = []pgfleet.SanitizationRule{
			{Pattern: `\b\d{3}-\d{2}-\d{4}\b`, Replacement: "[REDACTED]"},
		}
	})
	ctx := context.Background()

	mustModify(t, f, "", "CREATE TABLE people (id serial, ssn text)")
	mustModify(t, f, "", "INSERT INTO people (ssn) VALUES ('123-45-6789')")

	out, err := f.RunReadOnlyQuery(ctx, "", "SELECT ssn FROM people")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Rows[0]["ssn"] != "[REDACTED]" {
		t.Fatalf("expected redaction, got %v", out.Rows[0]["ssn"])
	}
}

func TestIntegration_ExportCSV(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	f := newTestFleet(t, func(cfg *pgfleet.Config) {
		cfg.Global.ExportDirectory = dir
	})
	ctx := context.Background()

	mustModify(t, f, "", "CREATE TABLE export_src (id int, name text)")
	mustModify(t, f, "", "INSERT INTO export_src VALUES (1, 'a'), (2, 'b'), (3, 'c')")

	out, err := f.ExportQueryToCSV(ctx, "", "SELECT id, name FROM export_src ORDER BY id", "dump")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.RowsWritten != 3 {
		t.Fatalf("expected 3 rows written, got %d", out.RowsWritten)
	}
	if !strings.HasSuffix(out.Path, "dump.csv") {
		t.Fatalf("expected .csv suffix appended, got %q", out.Path)
	}

	file, err := os.Open(out.Path)
	if err != nil {
		t.Fatalf("cannot open export: %v", err)
	}
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("cannot parse export: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected header + 3 rows, got %d records", len(records))
	}
	if records[0][0] != "id" || records[0][1] != "name" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][0] != "1" || records[1][1] != "a" {
		t.Fatalf("unexpected first row: %v", records[1])
	}
}

func TestIntegration_ExportCSVRowCap(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	f := newTestFleet(t, func(cfg *pgfleet.Config) {
		cfg.Global.ExportDirectory = dir
		cfg.Global.MaxCSVRows = 2
	})
	ctx := context.Background()

	mustModify(t, f, "", "CREATE TABLE capped (n int)")
	mustModify(t, f, "", "INSERT INTO capped SELECT generate_series(1, 10)")

	out, err := f.ExportQueryToCSV(ctx, "", "SELECT n FROM capped ORDER BY n", "capped.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.RowsWritten != 2 {
		t.Fatalf("expected 2 rows written, got %d", out.RowsWritten)
	}
	if !out.Truncated {
		t.Fatal("expected truncated flag")
	}
}

func TestIntegration_SessionInfo(t *testing.T) {
	t.Parallel()
	f := newTestFleet(t, nil)
	ctx := context.Background()

	// Only alpha's pool gets initialized.
	if _, err := f.RunReadOnlyQuery(ctx, "alpha", "SELECT 1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info, err := f.GetSessionInfo(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(info.Pools) != 1 {
		t.Fatalf("expected 1 initialized pool, got %d", len(info.Pools))
	}
	pool := info.Pools[0]
	if pool.Database != "alpha" {
		t.Fatalf("expected alpha, got %q", pool.Database)
	}
	if pool.ConnectedAs == "" || pool.ServerVersion == "" {
		t.Fatalf("missing session details: %+v", pool)
	}
	if pool.Stats.Busy != 0 {
		t.Fatalf("expected no busy connections after release, got %d", pool.Stats.Busy)
	}
}

func TestIntegration_PoolHandlesMoreClientsThanConnections(t *testing.T) {
	t.Parallel()
	f := newTestFleet(t, func(cfg *pgfleet.Config) {
		cfg.Global.PoolMax = 3
		cfg.Global.AcquireTimeoutSeconds = 30
	})
	ctx := context.Background()

	mustModify(t, f, "", "CREATE TABLE burst (n int)")
	mustModify(t, f, "", "INSERT INTO burst VALUES (1)")

	// Far more concurrent requests than pool connections; all must
	// eventually succeed by waiting for a free connection.
	const clients = 12
	var wg sync.WaitGroup
	errs := make([]error, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.RunReadOnlyQuery(ctx, "", "SELECT n FROM burst CROSS JOIN pg_sleep(0.05)")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("client %d failed: %v", i, err)
		}
	}

	stats, ok := f.PoolStats("alpha")
	if !ok {
		t.Fatal("expected initialized pool")
	}
	if stats.Open > 3 {
		t.Fatalf("pool exceeded max connections: %+v", stats)
	}
	if stats.Busy != 0 {
		t.Fatalf("expected all connections released, got %d busy", stats.Busy)
	}
}

// holdOnlyConnection runs a sleeping query on a pool_max=1 fleet and
// blocks until the holder has acquired the single connection. The
// returned channel yields the holder's result.
func holdOnlyConnection(t *testing.T, f *pgfleet.Fleet, seconds float64) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		_, err := f.RunReadOnlyQuery(context.Background(), "",
			fmt.Sprintf("SELECT 1 FROM pg_sleep(%g)", seconds))
		done <- err
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if stats, ok := f.PoolStats("alpha"); ok && stats.Busy == 1 {
			return done
		}
		if time.Now().After(deadline) {
			t.Fatal("holder query never acquired the connection")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestIntegration_PoolExhaustedAfterBoundedWait(t *testing.T) {
	t.Parallel()
	f := newTestFleet(t, func(cfg *pgfleet.Config) {
		cfg.Global.PoolMax = 1
		cfg.Global.AcquireTimeoutSeconds = 1
	})

	done := holdOnlyConnection(t, f, 3)

	// The only connection is busy; the bounded wait must elapse and
	// report exhaustion, not a connection failure.
	_, err := f.RunReadOnlyQuery(context.Background(), "", "SELECT 1")
	if pgfleet.KindOf(err) != pgfleet.KindPoolExhausted {
		t.Fatalf("expected KindPoolExhausted, got %v", err)
	}
	if !strings.Contains(err.Error(), "busy") {
		t.Fatalf("expected exhaustion detail, got %q", err.Error())
	}

	if err := <-done; err != nil {
		t.Fatalf("holder query failed: %v", err)
	}
}

func TestIntegration_CallerCancellationIsNotPoolExhaustion(t *testing.T) {
	t.Parallel()
	f := newTestFleet(t, func(cfg *pgfleet.Config) {
		cfg.Global.PoolMax = 1
		cfg.Global.AcquireTimeoutSeconds = 5
	})

	done := holdOnlyConnection(t, f, 2)

	// The pool is saturated, but the caller gave up first; that must
	// keep its own identity instead of being blamed on the pool.
	cancelledCtx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.RunReadOnlyQuery(cancelledCtx, "", "SELECT 1")
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if pgfleet.KindOf(err) == pgfleet.KindPoolExhausted {
		t.Fatalf("caller cancellation misreported as pool exhaustion: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("holder query failed: %v", err)
	}
}

func TestIntegration_KillSession(t *testing.T) {
	t.Parallel()
	f := newTestFleet(t, nil)
	ctx := context.Background()

	// Find our own backend PID via a throwaway query, then terminate a
	// bogus PID: the call itself must succeed in privileged mode.
	out, err := f.RunReadOnlyQuery(ctx, "alpha", "SELECT pg_backend_pid() AS pid")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(out.Rows))
	}

	killed, err := f.KillSession(ctx, "alpha", 999999999)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if killed.Terminated {
		t.Fatal("expected termination of bogus PID to report false")
	}

	// Non-privileged databases refuse.
	if _, err := f.KillSession(ctx, "beta", 1); pgfleet.KindOf(err) != pgfleet.KindInvalidArguments {
		t.Fatalf("expected KindInvalidArguments, got %v", err)
	}
}

func TestIntegration_InspectLocksQuietDatabase(t *testing.T) {
	t.Parallel()
	f := newTestFleet(t, nil)
	ctx := context.Background()

	out, err := f.InspectLocks(ctx, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A leased database has no contention; the report is empty, not an error.
	if len(out.Locks) != 0 {
		t.Logf("unexpected contention (other tests?): %+v", out.Locks)
	}
}

func TestIntegration_TimeoutRuleCancelsQuery(t *testing.T) {
	t.Parallel()
	f := newTestFleet(t, func(cfg *pgfleet.Config) {
		cfg.Query.TimeoutRules = []pgfleet.TimeoutRule{
			{Pattern: `(?i)pg_sleep`, TimeoutSeconds: 1},
		}
	})
	ctx := context.Background()

	_, err := f.RunReadOnlyQuery(ctx, "", "SELECT pg_sleep(10)")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if pgfleet.KindOf(err) != pgfleet.KindUnderlyingDatabase {
		t.Fatalf("expected KindUnderlyingDatabase, got %q", pgfleet.KindOf(err))
	}
}

func TestIntegration_DispatchRoundTrip(t *testing.T) {
	t.Parallel()
	f := newTestFleet(t, nil)
	ctx := context.Background()

	mustModify(t, f, "", "CREATE TABLE via_dispatch (id int)")
	mustModify(t, f, "", "INSERT INTO via_dispatch VALUES (7)")

	out, err := f.Dispatch(ctx, pgfleet.ToolRequest{
		Operation: "run_read_only_query",
		Args: map[string]interface{}{
			"sql_query": "SELECT id FROM via_dispatch",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, ok := out.(*pgfleet.QueryOutput)
	if !ok {
		t.Fatalf("unexpected output type %T", out)
	}
	if len(result.Rows) != 1 || fmt.Sprint(result.Rows[0]["id"]) != "7" {
		t.Fatalf("unexpected rows: %v", result.Rows)
	}
}
