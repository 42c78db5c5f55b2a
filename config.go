package pgfleet

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// DatabaseProfile describes one named connection target. Profiles are
// immutable after load; pools are created from them lazily on first use.
type DatabaseProfile struct {
	Name        string `json:"name"`
	User        string `json:"user"`
	Password    string `json:"password"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	ServiceName string `json:"service_name"` // database name on the target server
	DSN         string `json:"dsn"`          // full connection string; overrides host/port/service_name
	Mode        string `json:"mode"`         // "" or "privileged"; privileged profiles may terminate sessions
	Encoding    string `json:"encoding"`     // optional client_encoding

	// Optional per-profile pool bound overrides; zero means use the
	// global_settings values.
	PoolMin int `json:"pool_min,omitempty"`
	PoolMax int `json:"pool_max,omitempty"`
}

// ModePrivileged marks a profile allowed to run session-management tools.
const ModePrivileged = "privileged"

// Privileged reports whether the profile carries the privileged-mode flag.
func (p DatabaseProfile) Privileged() bool { return p.Mode == ModePrivileged }

// ConnString builds the pgx connection string for the profile. Returns
// the DSN untouched when one is set.
func (p DatabaseProfile) ConnString() string {
	if p.DSN != "" {
		return p.DSN
	}
	s := ""
	add := func(key, val string) {
		if val == "" {
			return
		}
		if s != "" {
			s += " "
		}
		s += key + "=" + val
	}
	add("host", p.Host)
	if p.Port > 0 {
		add("port", strconv.Itoa(p.Port))
	}
	add("dbname", p.ServiceName)
	add("user", p.User)
	add("password", p.Password)
	add("client_encoding", p.Encoding)
	return s
}

// Target returns a display string for the profile's connection target,
// safe to log and show to agents (never includes credentials).
func (p DatabaseProfile) Target() string {
	if p.DSN != "" {
		return "(dsn)"
	}
	if p.Port > 0 {
		return fmt.Sprintf("%s:%d/%s", p.Host, p.Port, p.ServiceName)
	}
	return fmt.Sprintf("%s/%s", p.Host, p.ServiceName)
}

// GlobalSettings holds process-wide settings, read-only after load.
type GlobalSettings struct {
	DefaultDatabase       string `json:"default_database"`
	PoolMin               int    `json:"pool_min"`
	PoolMax               int    `json:"pool_max"`
	AcquireTimeoutSeconds int    `json:"acquire_timeout_seconds"`
	ClientLibPath         string `json:"client_lib_path"` // native client library dir; informational for PostgreSQL
	ExportDirectory       string `json:"export_directory"`
	MaxRowsDisplay        int    `json:"max_rows_display"`
	DefaultPageSize       int    `json:"default_page_size"`
	MaxCSVRows            int    `json:"max_csv_rows"`
}

// QueryConfig holds statement execution settings.
type QueryConfig struct {
	DefaultTimeoutSeconds int           `json:"default_timeout_seconds"`
	CatalogTimeoutSeconds int           `json:"catalog_timeout_seconds"` // list/describe/locate metadata queries
	MaxSQLLength          int           `json:"max_sql_length"`
	MaxResultLength       int           `json:"max_result_length"`
	TimeoutRules          []TimeoutRule `json:"timeout_rules"`
}

// TimeoutRule maps a SQL pattern to a specific timeout duration.
type TimeoutRule struct {
	Pattern        string `json:"pattern"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ErrorPromptRule maps an error message pattern to a guidance message.
type ErrorPromptRule struct {
	Pattern string `json:"pattern"`
	Message string `json:"message"`
}

// SanitizationRule defines a regex-based field redaction rule.
type SanitizationRule struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
	Description string `json:"description"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, stderr, or file path
}

// ServerSettings holds HTTP transport settings for CLI mode.
type ServerSettings struct {
	Port               int    `json:"port"`
	HealthCheckEnabled bool   `json:"health_check_enabled"`
	HealthCheckPath    string `json:"health_check_path"`
}

// Config is the engine configuration used by New().
type Config struct {
	Databases       []DatabaseProfile  `json:"databases"`
	Global          GlobalSettings     `json:"global_settings"`
	ProtectedTables []string           `json:"protected_tables"`
	Query           QueryConfig        `json:"query"`
	ErrorPrompts    []ErrorPromptRule  `json:"error_prompts"`
	Sanitization    []SanitizationRule `json:"sanitization"`
}

// ServerConfig embeds Config and adds server-only fields for CLI mode.
type ServerConfig struct {
	Config
	Server  ServerSettings `json:"server"`
	Logging LoggingConfig  `json:"logging"`
}

const (
	defaultPoolMin        = 1
	defaultPoolMax        = 10
	defaultAcquireTimeout = 10
	defaultQueryTimeout   = 30
	defaultCatalogTimeout = 10
	defaultMaxSQLLength   = 100000
	defaultMaxResult      = 100000
	defaultMaxRows        = 100
	defaultPageSize       = 50
	defaultMaxCSVRows     = 100000
)

// ApplyDefaults fills zero-valued settings with their defaults. A config
// with exactly one database gets that database as the default.
func (c *Config) ApplyDefaults() {
	if c.Global.PoolMin == 0 {
		c.Global.PoolMin = defaultPoolMin
	}
	if c.Global.PoolMax == 0 {
		c.Global.PoolMax = defaultPoolMax
	}
	if c.Global.AcquireTimeoutSeconds == 0 {
		c.Global.AcquireTimeoutSeconds = defaultAcquireTimeout
	}
	if c.Global.MaxRowsDisplay == 0 {
		c.Global.MaxRowsDisplay = defaultMaxRows
	}
	if c.Global.DefaultPageSize == 0 {
		c.Global.DefaultPageSize = defaultPageSize
	}
	if c.Global.MaxCSVRows == 0 {
		c.Global.MaxCSVRows = defaultMaxCSVRows
	}
	if c.Global.ExportDirectory == "" {
		c.Global.ExportDirectory = "."
	}
	if c.Global.DefaultDatabase == "" && len(c.Databases) == 1 {
		c.Global.DefaultDatabase = c.Databases[0].Name
	}
	if c.Query.DefaultTimeoutSeconds == 0 {
		c.Query.DefaultTimeoutSeconds = defaultQueryTimeout
	}
	if c.Query.CatalogTimeoutSeconds == 0 {
		c.Query.CatalogTimeoutSeconds = defaultCatalogTimeout
	}
	if c.Query.MaxSQLLength == 0 {
		c.Query.MaxSQLLength = defaultMaxSQLLength
	}
	if c.Query.MaxResultLength == 0 {
		c.Query.MaxResultLength = defaultMaxResult
	}
}

// Validate checks the config for startup-fatal problems, naming the
// offending entry in the returned error.
func (c *Config) Validate() error {
	if len(c.Databases) == 0 {
		return fmt.Errorf("config: no databases configured")
	}
	seen := make(map[string]struct{}, len(c.Databases))
	for i, db := range c.Databases {
		if db.Name == "" {
			return fmt.Errorf("config: databases[%d] has no name", i)
		}
		if _, dup := seen[db.Name]; dup {
			return fmt.Errorf("config: duplicate database name %q", db.Name)
		}
		seen[db.Name] = struct{}{}
		if db.DSN == "" && db.Host == "" {
			return fmt.Errorf("config: database %q has neither dsn nor host", db.Name)
		}
		if db.DSN == "" && db.ServiceName == "" {
			return fmt.Errorf("config: database %q has no service_name", db.Name)
		}
		if db.PoolMin < 0 || db.PoolMax < 0 {
			return fmt.Errorf("config: database %q has invalid pool bounds (min %d, max %d)", db.Name, db.PoolMin, db.PoolMax)
		}
		// Profile overrides merge with the global bounds, so a partial
		// override must be checked against the effective pair.
		effMin, effMax := c.Global.PoolMin, c.Global.PoolMax
		if db.PoolMin > 0 {
			effMin = db.PoolMin
		}
		if db.PoolMax > 0 {
			effMax = db.PoolMax
		}
		if effMax > 0 && effMin > effMax {
			return fmt.Errorf("config: database %q has invalid pool bounds (effective min %d > max %d)", db.Name, effMin, effMax)
		}
		if db.Mode != "" && db.Mode != ModePrivileged {
			return fmt.Errorf("config: database %q has unknown mode %q", db.Name, db.Mode)
		}
	}
	if c.Global.DefaultDatabase == "" {
		return fmt.Errorf("config: global_settings.default_database is not set")
	}
	if _, ok := seen[c.Global.DefaultDatabase]; !ok {
		return fmt.Errorf("config: default_database %q is not a configured database", c.Global.DefaultDatabase)
	}
	if c.Global.PoolMin < 0 || c.Global.PoolMax <= 0 || c.Global.PoolMin > c.Global.PoolMax {
		return fmt.Errorf("config: invalid global pool bounds (min %d, max %d)", c.Global.PoolMin, c.Global.PoolMax)
	}
	return nil
}

// Environment variables consulted by LoadServerConfig when no config file
// is found, forming a single-database fallback profile.
const (
	EnvConfigPath = "PGFLEET_CONFIG_PATH"
	envDSN        = "PGFLEET_DSN"
	envHost       = "PGFLEET_HOST"
	envPort       = "PGFLEET_PORT"
	envDBName     = "PGFLEET_DBNAME"
	envUser       = "PGFLEET_USER"
	envPassword   = "PGFLEET_PASSWORD"
)

// DefaultConfigPath is the project-local config file location.
const DefaultConfigPath = ".pgfleet/config.json"

// LoadServerConfig loads configuration in layered order: the explicit
// path argument, then the path from PGFLEET_CONFIG_PATH, then the
// project-local default file, then individual environment variables as a
// single-database fallback. Having no usable source is an error.
func LoadServerConfig(path string) (*ServerConfig, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	explicit := path != ""
	if path == "" {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err == nil {
		var cfg ServerConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return &cfg, nil
	}
	if explicit {
		// An explicitly requested file must exist.
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := configFromEnv()
	if err != nil {
		return nil, fmt.Errorf("no config file at %s and %w", path, err)
	}
	return cfg, nil
}

// configFromEnv builds a single-database ServerConfig from PGFLEET_*
// environment variables.
func configFromEnv() (*ServerConfig, error) {
	profile := DatabaseProfile{
		Name:        "default",
		DSN:         os.Getenv(envDSN),
		Host:        os.Getenv(envHost),
		ServiceName: os.Getenv(envDBName),
		User:        os.Getenv(envUser),
		Password:    os.Getenv(envPassword),
	}
	if portStr := os.Getenv(envPort); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q", envPort, portStr)
		}
		profile.Port = port
	}
	if profile.DSN == "" && profile.Host == "" {
		return nil, fmt.Errorf("environment provides neither %s nor %s", envDSN, envHost)
	}

	cfg := &ServerConfig{}
	cfg.Databases = []DatabaseProfile{profile}
	cfg.Global.DefaultDatabase = "default"
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
