package pgfleet

// ToolRequest is one incoming tool invocation: an operation name plus its
// raw argument mapping. Arguments are decoded into typed inputs at the
// dispatch boundary before any handler runs.
type ToolRequest struct {
	Operation string                 `json:"operation"`
	Args      map[string]interface{} `json:"args"`
}

// DatabaseStatus is one entry in the list_databases output.
type DatabaseStatus struct {
	Name        string `json:"name"`
	User        string `json:"user"`
	Target      string `json:"target"`
	Privileged  bool   `json:"privileged,omitempty"`
	Initialized bool   `json:"initialized"`
}

// ListDatabasesOutput is the output of list_databases.
type ListDatabasesOutput struct {
	Databases []DatabaseStatus `json:"databases"`
	Default   string           `json:"default"`
}

// LocateFailure records a database that could not be scanned during
// locate_table. Scan failures never abort the whole operation.
type LocateFailure struct {
	Database string `json:"database"`
	Error    string `json:"error"`
}

// LocateTableOutput is the output of locate_table. FoundIn follows
// registry declaration order.
type LocateTableOutput struct {
	Table    string          `json:"table"`
	FoundIn  []string        `json:"found_in"`
	Failures []LocateFailure `json:"failures,omitempty"`
}

// PoolSessionInfo is one pool's entry in the get_session_info output.
type PoolSessionInfo struct {
	Database       string    `json:"database"`
	Stats          PoolStats `json:"stats"`
	ConnectedAs    string    `json:"connected_as,omitempty"`
	ConnectedTo    string    `json:"connected_to,omitempty"`
	ServerVersion  string    `json:"server_version,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// SessionInfoOutput is the output of get_session_info. Only initialized
// pools are reported.
type SessionInfoOutput struct {
	Pools []PoolSessionInfo `json:"pools"`
}

// TableEntry represents a single table/view in the list_tables output.
type TableEntry struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
	Type   string `json:"type"` // "table", "view", "materialized_view", "foreign_table", "partitioned_table"
	Owner  string `json:"owner"`
}

// ListTablesOutput is the output of list_tables.
type ListTablesOutput struct {
	Database string       `json:"database"`
	Tables   []TableEntry `json:"tables"`
}

// ColumnInfo describes a single column.
type ColumnInfo struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Nullable     bool   `json:"nullable"`
	Default      string `json:"default,omitempty"`
	IsPrimaryKey bool   `json:"is_primary_key"`
}

// DescribeTableOutput is the output of describe_table.
type DescribeTableOutput struct {
	Database string       `json:"database"`
	Schema   string       `json:"schema"`
	Name     string       `json:"name"`
	Columns  []ColumnInfo `json:"columns"`
}

// QueryOutput is the tabular output of run_read_only_query and
// run_modification_query.
type QueryOutput struct {
	Database     string                   `json:"database"`
	Columns      []string                 `json:"columns,omitempty"`
	Rows         []map[string]interface{} `json:"rows,omitempty"`
	RowsAffected int64                    `json:"rows_affected"`
	Truncated    bool                     `json:"truncated,omitempty"`
	DurationMS   int64                    `json:"duration_ms"`
}

// PageOutput is the output of run_query_with_pagination.
type PageOutput struct {
	Database   string                   `json:"database"`
	Page       int                      `json:"page"`
	PageSize   int                      `json:"page_size"`
	TotalRows  int64                    `json:"total_rows"`
	TotalPages int64                    `json:"total_pages"`
	Columns    []string                 `json:"columns,omitempty"`
	Rows       []map[string]interface{} `json:"rows,omitempty"`
}

// DDLOutput is the output of get_object_ddl.
type DDLOutput struct {
	Database   string `json:"database"`
	Object     string `json:"object"`
	ObjectType string `json:"object_type"`
	DDL        string `json:"ddl"`
}

// ConstraintInfo describes a single constraint.
type ConstraintInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"` // PRIMARY KEY, FOREIGN KEY, UNIQUE, CHECK, EXCLUSION
	Definition string `json:"definition"`
}

// ListConstraintsOutput is the output of list_constraints.
type ListConstraintsOutput struct {
	Database    string           `json:"database"`
	Table       string           `json:"table"`
	Constraints []ConstraintInfo `json:"constraints"`
}

// IndexInfo describes a single index.
type IndexInfo struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
	IsUnique   bool   `json:"is_unique"`
	IsPrimary  bool   `json:"is_primary"`
}

// ListIndexesOutput is the output of list_indexes.
type ListIndexesOutput struct {
	Database string      `json:"database"`
	Table    string      `json:"table"`
	Indexes  []IndexInfo `json:"indexes"`
}

// SearchOutput is the output of search_in_table.
type SearchOutput struct {
	Database        string                   `json:"database"`
	Table           string                   `json:"table"`
	SearchedColumns []string                 `json:"searched_columns"`
	Columns         []string                 `json:"columns,omitempty"`
	Rows            []map[string]interface{} `json:"rows,omitempty"`
}

// ExplainOutput is the output of explain_query_plan.
type ExplainOutput struct {
	Database string `json:"database"`
	Plan     string `json:"plan"`
}

// LockEntry is one row in the inspect_locks output.
type LockEntry struct {
	PID       int    `json:"pid"`
	User      string `json:"user"`
	Relation  string `json:"relation,omitempty"`
	Mode      string `json:"mode"`
	Granted   bool   `json:"granted"`
	State     string `json:"state"` // "blocking" or "waiting"
	BlockedBy []int  `json:"blocked_by,omitempty"`
	Query     string `json:"query,omitempty"`
}

// InspectLocksOutput is the output of inspect_locks.
type InspectLocksOutput struct {
	Database string      `json:"database"`
	Locks    []LockEntry `json:"locks"`
}

// KillSessionOutput is the output of kill_session.
type KillSessionOutput struct {
	Database   string `json:"database"`
	PID        int    `json:"pid"`
	Terminated bool   `json:"terminated"`
}

// ExportOutput is the output of export_query_to_csv.
type ExportOutput struct {
	Database    string `json:"database"`
	Path        string `json:"path"`
	RowsWritten int    `json:"rows_written"`
	Truncated   bool   `json:"truncated,omitempty"`
}
