package pgfleet

import "strings"

// Registry resolves logical database names to connection profiles. It is
// built once at startup and read-only afterwards; declaration order is
// preserved for deterministic listings and scans.
type Registry struct {
	profiles    map[string]DatabaseProfile
	order       []string
	defaultName string
}

// NewRegistry builds a Registry from validated profiles. Name uniqueness
// and the presence of defaultName are enforced by Config.Validate before
// this is called.
func NewRegistry(profiles []DatabaseProfile, defaultName string) *Registry {
	r := &Registry{
		profiles:    make(map[string]DatabaseProfile, len(profiles)),
		order:       make([]string, 0, len(profiles)),
		defaultName: defaultName,
	}
	for _, p := range profiles {
		r.profiles[p.Name] = p
		r.order = append(r.order, p.Name)
	}
	return r
}

// Resolve returns the profile for name, or the default profile when name
// is empty. Unknown names fail with UnknownDatabase listing the
// registered names.
func (r *Registry) Resolve(name string) (DatabaseProfile, error) {
	if name == "" {
		name = r.defaultName
	}
	p, ok := r.profiles[name]
	if !ok {
		return DatabaseProfile{}, FieldErrorf(KindUnknownDatabase, "database_name",
			"database %q is not configured; available: %s", name, strings.Join(r.order, ", "))
	}
	return p, nil
}

// Names returns the registered database names in declaration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// DefaultName returns the configured default database name.
func (r *Registry) DefaultName() string { return r.defaultName }

// Len returns the number of registered databases.
func (r *Registry) Len() int { return len(r.order) }
