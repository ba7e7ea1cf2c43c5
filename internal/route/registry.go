package route

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/simp-lee/billweb/internal/domain"
	"github.com/simp-lee/billweb/internal/view"
)

// ErrAlreadyInstalled is returned by Install on every call after the first.
var ErrAlreadyInstalled = errors.New("route table already installed")

const entryContextKey = "route_entry"

// Registry is a validated, immutable navigation table.
type Registry struct {
	entries   []Entry
	byPath    map[string]int
	byName    map[string]int
	installed atomic.Bool
}

// New validates entries and builds a Registry. Every entry must pass field
// validation, paths must be unique ignoring case and a trailing slash, and
// names must be unique among entries that have one.
func New(entries []Entry) (*Registry, error) {
	r := &Registry{
		entries: make([]Entry, len(entries)),
		byPath:  make(map[string]int, len(entries)),
		byName:  make(map[string]int, len(entries)),
	}
	copy(r.entries, entries)

	v := entryValidator()
	for i, e := range r.entries {
		if err := v.Struct(e); err != nil {
			return nil, domain.NewAppError(domain.CodeValidation,
				fmt.Sprintf("invalid route at index %d (%s)", i, describeValidation(err)), err)
		}

		key := canonicalPath(e.Path)
		if j, dup := r.byPath[key]; dup {
			return nil, domain.NewAppError(domain.CodeAlreadyExists,
				fmt.Sprintf("duplicate route path %q at index %d (first declared at %d)", e.Path, i, j), nil)
		}
		r.byPath[key] = i

		if e.Name == "" {
			continue
		}
		if j, dup := r.byName[e.Name]; dup {
			return nil, domain.NewAppError(domain.CodeAlreadyExists,
				fmt.Sprintf("duplicate route name %q at index %d (first declared at %d)", e.Name, i, j), nil)
		}
		r.byName[e.Name] = i
	}

	return r, nil
}

// Entries returns a copy of the table in declaration order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Match returns the entry declared for p. Matching ignores case and a
// single trailing slash.
func (r *Registry) Match(p string) (Entry, bool) {
	i, ok := r.byPath[canonicalPath(p)]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Lookup returns the entry bound to name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Resolve returns the path of the named route.
func (r *Registry) Resolve(name string) (string, error) {
	e, ok := r.Lookup(name)
	if !ok {
		return "", domain.NewAppError(domain.CodeNotFound, fmt.Sprintf("route %q not found", name), nil)
	}
	return e.Path, nil
}

// URL resolves the named route and joins it onto basePath.
func (r *Registry) URL(name, basePath string) (string, error) {
	p, err := r.Resolve(name)
	if err != nil {
		return "", err
	}
	return JoinBase(basePath, p), nil
}

// InGroup returns the entries whose component belongs to g, in declaration
// order.
func (r *Registry) InGroup(g view.Group) []Entry {
	var out []Entry
	for _, e := range r.entries {
		if e.Component.Group == g {
			out = append(out, e)
		}
	}
	return out
}

// Install registers a GET and HEAD handler for every entry. activate is
// called once per entry to build its handler. The table can be installed
// only once; later calls return ErrAlreadyInstalled.
func (r *Registry) Install(routes gin.IRoutes, activate func(Entry) gin.HandlerFunc) error {
	if routes == nil {
		return errors.New("router is nil")
	}
	if activate == nil {
		return errors.New("activate func is nil")
	}
	if r.installed.Load() {
		return ErrAlreadyInstalled
	}

	handlers := make([]gin.HandlerFunc, len(r.entries))
	for i, e := range r.entries {
		h := activate(e)
		if h == nil {
			return fmt.Errorf("no handler for route %q", e.Path)
		}
		handlers[i] = h
	}

	if !r.installed.CompareAndSwap(false, true) {
		return ErrAlreadyInstalled
	}
	for i, e := range r.entries {
		chain := []gin.HandlerFunc{bindEntry(e), handlers[i]}
		routes.GET(e.Path, chain...)
		routes.HEAD(e.Path, chain...)
	}
	return nil
}

// Installed reports whether Install has succeeded.
func (r *Registry) Installed() bool {
	return r.installed.Load()
}

// Current returns the entry that activated the request, if any. It is
// available to middleware after c.Next() returns.
func Current(c *gin.Context) (Entry, bool) {
	v, ok := c.Get(entryContextKey)
	if !ok {
		return Entry{}, false
	}
	e, ok := v.(Entry)
	return e, ok
}

func bindEntry(e Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(entryContextKey, e)
		c.Next()
	}
}

// JoinBase prefixes p with basePath. An empty base or "/" leaves p as is.
func JoinBase(basePath, p string) string {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" || basePath == "/" {
		return p
	}
	return path.Join(basePath, p)
}

func canonicalPath(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

func describeValidation(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		parts = append(parts, strings.ToLower(fe.Field())+": "+fe.Tag())
	}
	return strings.Join(parts, ", ")
}
