package signals

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
)

// Query describes what a rule wants measured on a target.
type Query struct {
	Type models.ConditionType
	Expr string
}

// Source supplies the current observed value for a target. A metric
// query returns the metric reading, a log-keyword query returns the
// match count inside the evaluation window, a db-threshold query
// returns the scalar the statement yields.
type Source interface {
	Name() string
	Fetch(ctx context.Context, target string, query Query) (float64, error)
}

// Registry routes fetches to the source registered for a target
// scheme. Targets look like "local:host-1" or "http://svc:8080/health";
// an unprefixed target falls through to the default source.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
	def     Source
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds a source under a target scheme.
func (r *Registry) Register(scheme string, source Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[scheme] = source
}

// SetDefault sets the source used for unprefixed targets.
func (r *Registry) SetDefault(source Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.def = source
}

// Fetch resolves the source for the target and delegates to it.
func (r *Registry) Fetch(ctx context.Context, target string, query Query) (float64, error) {
	source, rest := r.resolve(target)
	if source == nil {
		return 0, fmt.Errorf("no signal source registered for target %q", target)
	}
	return source.Fetch(ctx, rest, query)
}

func (r *Registry) resolve(target string) (Source, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if scheme, rest, ok := strings.Cut(target, ":"); ok {
		if source, exists := r.sources[scheme]; exists {
			return source, strings.TrimPrefix(rest, "//")
		}
	}
	return r.def, target
}
