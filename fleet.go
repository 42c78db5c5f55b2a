package pgfleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/minhngo/pgfleet/internal/guidance"
	"github.com/minhngo/pgfleet/internal/safety"
	"github.com/minhngo/pgfleet/internal/sanitize"
	"github.com/minhngo/pgfleet/internal/timeout"
)

// Fleet is the core engine: a registry of named databases, their lazily
// created connection pools, and the validated tool operations over them.
// All exported methods are safe for concurrent use from multiple
// goroutines; pools are the only mutable shared state.
type Fleet struct {
	config     Config
	registry   *Registry
	pools      *PoolManager
	validator  *safety.Validator
	advisor    *guidance.Advisor
	sanitizer  *sanitize.Sanitizer
	timeoutMgr *timeout.Manager
	logger     zerolog.Logger
}

// New creates a Fleet from a validated config. No database is contacted
// here: pools are created on first use. Returns an error naming the
// offending config entry when a rule pattern does not compile.
func New(config Config, logger zerolog.Logger) (*Fleet, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	advisor, err := guidance.NewAdvisor(mapErrorPromptRules(config.ErrorPrompts))
	if err != nil {
		return nil, err
	}
	sanitizer, err := sanitize.NewSanitizer(mapSanitizationRules(config.Sanitization))
	if err != nil {
		return nil, err
	}
	timeoutRules := make([]timeout.Rule, len(config.Query.TimeoutRules))
	for i, r := range config.Query.TimeoutRules {
		if r.TimeoutSeconds <= 0 {
			return nil, fmt.Errorf("config: timeout_rule with pattern %q has timeout_seconds <= 0", r.Pattern)
		}
		timeoutRules[i] = timeout.Rule{
			Pattern: r.Pattern,
			Timeout: time.Duration(r.TimeoutSeconds) * time.Second,
		}
	}
	timeoutMgr, err := timeout.NewManager(time.Duration(config.Query.DefaultTimeoutSeconds)*time.Second, timeoutRules)
	if err != nil {
		return nil, err
	}

	registry := NewRegistry(config.Databases, config.Global.DefaultDatabase)

	return &Fleet{
		config:     config,
		registry:   registry,
		pools:      newPoolManager(registry, config.Global, logger),
		validator:  safety.NewValidator(config.ProtectedTables),
		advisor:    advisor,
		sanitizer:  sanitizer,
		timeoutMgr: timeoutMgr,
		logger:     logger,
	}, nil
}

// Close tears down every connection pool. Idempotent.
func (f *Fleet) Close() {
	f.pools.Close()
}

// Ping verifies connectivity to the named database (or the default when
// name is empty) by leasing a connection and running a trivial query.
func (f *Fleet) Ping(ctx context.Context, name string) error {
	return f.pools.withConn(ctx, resolvedName(f.registry, name), func(ctx context.Context, conn *pgxpool.Conn) error {
		return conn.Ping(ctx)
	})
}

// Registry exposes the database registry for diagnostics and tests.
func (f *Fleet) Registry() *Registry { return f.registry }

// PoolStats reports connection statistics for the named database's pool.
// The second return is false when the pool has not been initialized.
func (f *Fleet) PoolStats(name string) (PoolStats, bool) {
	return f.pools.Stats(resolvedName(f.registry, name))
}

// resolvedName maps an empty name to the registry default so pool keys
// are always concrete names.
func resolvedName(r *Registry, name string) string {
	if name == "" {
		return r.DefaultName()
	}
	return name
}

// catalogContext derives a context bounded by the catalog query timeout,
// used for metadata lookups that should stay fast regardless of the
// default query timeout.
func (f *Fleet) catalogContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(f.config.Query.CatalogTimeoutSeconds)*time.Second)
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// mapViolation converts a safety violation into the public error type.
func mapViolation(err error, sqlField string) error {
	v, ok := err.(*safety.Violation)
	if !ok {
		return err
	}
	switch v.Kind {
	case safety.KindUnsafeIdentifier:
		return FieldErrorf(KindUnsafeIdentifier, sqlField, "%s", v.Detail)
	case safety.KindForbiddenKeyword:
		return FieldErrorf(KindForbiddenKeyword, sqlField, "%s", v.Detail)
	case safety.KindProtectedTable:
		return FieldErrorf(KindProtectedTable, sqlField, "%s", v.Detail)
	case safety.KindForbiddenStatementClass:
		return FieldErrorf(KindForbiddenStatementClass, sqlField, "%s", v.Detail)
	default:
		return FieldErrorf(KindInvalidArguments, sqlField, "%s", v.Detail)
	}
}

func mapErrorPromptRules(rules []ErrorPromptRule) []guidance.Rule {
	out := make([]guidance.Rule, len(rules))
	for i, r := range rules {
		out[i] = guidance.Rule{Pattern: r.Pattern, Message: r.Message}
	}
	return out
}

func mapSanitizationRules(rules []SanitizationRule) []sanitize.Rule {
	out := make([]sanitize.Rule, len(rules))
	for i, r := range rules {
		out[i] = sanitize.Rule{Pattern: r.Pattern, Replacement: r.Replacement}
	}
	return out
}
