package pgfleet_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgfleet "github.com/minhngo/pgfleet"
)

func validTestConfig() pgfleet.Config {
	return pgfleet.Config{
		Databases: []pgfleet.DatabaseProfile{
			{Name: "orders_dev", Host: "localhost", Port: 5432, ServiceName: "orders", User: "app"},
			{Name: "orders_prod", Host: "db.internal", Port: 5432, ServiceName: "orders", User: "app", Mode: pgfleet.ModePrivileged},
		},
		Global: pgfleet.GlobalSettings{DefaultDatabase: "orders_dev"},
	}
}

func TestConfig_ValidateOK(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfig_ValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*pgfleet.Config)
		wantMsg string
	}{
		{
			name:    "no databases",
			mutate:  func(c *pgfleet.Config) { c.Databases = nil },
			wantMsg: "no databases",
		},
		{
			name:    "unnamed database",
			mutate:  func(c *pgfleet.Config) { c.Databases[0].Name = "" },
			wantMsg: "has no name",
		},
		{
			name:    "duplicate name",
			mutate:  func(c *pgfleet.Config) { c.Databases[1].Name = "orders_dev" },
			wantMsg: "duplicate database name",
		},
		{
			name: "neither dsn nor host",
			mutate: func(c *pgfleet.Config) {
				c.Databases[0].Host = ""
				c.Databases[0].DSN = ""
			},
			wantMsg: "neither dsn nor host",
		},
		{
			name:    "missing service name",
			mutate:  func(c *pgfleet.Config) { c.Databases[0].ServiceName = "" },
			wantMsg: "no service_name",
		},
		{
			name:    "unknown mode",
			mutate:  func(c *pgfleet.Config) { c.Databases[0].Mode = "readonly" },
			wantMsg: "unknown mode",
		},
		{
			name: "inverted pool bounds",
			mutate: func(c *pgfleet.Config) {
				c.Databases[0].PoolMin = 5
				c.Databases[0].PoolMax = 2
			},
			wantMsg: "invalid pool bounds",
		},
		{
			name: "pool_min override above global pool_max",
			mutate: func(c *pgfleet.Config) {
				// pool_max stays on the global default of 10.
				c.Databases[0].PoolMin = 20
			},
			wantMsg: "invalid pool bounds",
		},
		{
			name:    "default not registered",
			mutate:  func(c *pgfleet.Config) { c.Global.DefaultDatabase = "missing" },
			wantMsg: "not a configured database",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validTestConfig()
			cfg.ApplyDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantMsg)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("expected error containing %q, got %q", tt.wantMsg, err.Error())
			}
		})
	}
}

func TestConfig_ApplyDefaultsSingleDatabase(t *testing.T) {
	t.Parallel()
	cfg := pgfleet.Config{
		Databases: []pgfleet.DatabaseProfile{
			{Name: "only", Host: "localhost", ServiceName: "app"},
		},
	}
	cfg.ApplyDefaults()
	if cfg.Global.DefaultDatabase != "only" {
		t.Fatalf("expected single database to become default, got %q", cfg.Global.DefaultDatabase)
	}
	if cfg.Global.PoolMax != 10 {
		t.Fatalf("expected default pool_max 10, got %d", cfg.Global.PoolMax)
	}
	if cfg.Query.DefaultTimeoutSeconds != 30 {
		t.Fatalf("expected default query timeout 30, got %d", cfg.Query.DefaultTimeoutSeconds)
	}
	if cfg.Global.MaxCSVRows != 100000 {
		t.Fatalf("expected default max_csv_rows 100000, got %d", cfg.Global.MaxCSVRows)
	}
}

func TestDatabaseProfile_ConnString(t *testing.T) {
	t.Parallel()

	p := pgfleet.DatabaseProfile{
		Name: "x", Host: "localhost", Port: 5433, ServiceName: "orders",
		User: "app", Password: "secret", Encoding: "UTF8",
	}
	got := p.ConnString()
	want := "host=localhost port=5433 dbname=orders user=app password=secret client_encoding=UTF8"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	p.DSN = "postgresql://u:p@h:5432/d"
	if p.ConnString() != p.DSN {
		t.Fatalf("expected DSN to win, got %q", p.ConnString())
	}
}

func TestDatabaseProfile_TargetHidesCredentials(t *testing.T) {
	t.Parallel()

	p := pgfleet.DatabaseProfile{
		Name: "x", Host: "db.internal", Port: 5432, ServiceName: "orders",
		User: "app", Password: "hunter2",
	}
	target := p.Target()
	if strings.Contains(target, "hunter2") || strings.Contains(target, "app") {
		t.Fatalf("target leaks credentials: %q", target)
	}
	if target != "db.internal:5432/orders" {
		t.Fatalf("unexpected target %q", target)
	}

	p.DSN = "postgresql://app:hunter2@h/d"
	if strings.Contains(p.Target(), "hunter2") {
		t.Fatalf("target leaks DSN credentials: %q", p.Target())
	}
}

func TestLoadServerConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"databases": [
			{"name": "orders_dev", "host": "localhost", "port": 5432, "service_name": "orders", "user": "app"}
		],
		"global_settings": {"default_database": "orders_dev"},
		"server": {"port": 8080}
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := pgfleet.LoadServerConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Databases) != 1 || cfg.Databases[0].Name != "orders_dev" {
		t.Fatalf("unexpected databases: %+v", cfg.Databases)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.Server.Port)
	}
	// Defaults should have been applied.
	if cfg.Global.PoolMax != 10 {
		t.Fatalf("expected default pool_max, got %d", cfg.Global.PoolMax)
	}
}

func TestLoadServerConfig_ExplicitMissingFile(t *testing.T) {
	_, err := pgfleet.LoadServerConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadServerConfig_EnvFallback(t *testing.T) {
	t.Setenv("PGFLEET_DSN", "postgresql://app:pw@localhost:5432/orders")
	t.Setenv("PGFLEET_CONFIG_PATH", "")

	// Run from a directory without a project config file.
	dir := t.TempDir()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(old)

	cfg, err := pgfleet.LoadServerConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Databases) != 1 || cfg.Databases[0].Name != "default" {
		t.Fatalf("unexpected databases: %+v", cfg.Databases)
	}
	if cfg.Global.DefaultDatabase != "default" {
		t.Fatalf("expected default database %q, got %q", "default", cfg.Global.DefaultDatabase)
	}
}

func TestLoadServerConfig_NoSource(t *testing.T) {
	t.Setenv("PGFLEET_DSN", "")
	t.Setenv("PGFLEET_HOST", "")
	t.Setenv("PGFLEET_CONFIG_PATH", "")

	dir := t.TempDir()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(old)

	if _, err := pgfleet.LoadServerConfig(""); err == nil {
		t.Fatal("expected error when no config source is available")
	}
}
