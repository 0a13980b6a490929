// Package tenant resolves the tenant a request acts in and carries it through
// the request context.
package tenant

import (
	"context"
	"errors"
	"strings"
	"sync"
)

const (
	// ParamName is the route and query parameter carrying a tenant id.
	ParamName = "tenantId"
	// HeaderName is the request header carrying a tenant id.
	HeaderName = "X-Tenant-Id"
)

var ErrTenantRequired = errors.New("tenant: tenant is required")

// Sources are the tenant id candidates of one request in priority order.
type Sources struct {
	Route  string
	Query  string
	Header string
	Claim  string
}

// Resolver picks the tenant from Sources. Route wins over query, query over
// header, header over the token claim.
type Resolver struct {
	// Valid filters candidates. A rejected candidate falls through to the next
	// source. Nil accepts any non-blank value.
	Valid func(string) bool
}

// Resolve returns the first acceptable candidate.
func (r Resolver) Resolve(src Sources) (string, bool) {
	for _, candidate := range []string{src.Route, src.Query, src.Header, src.Claim} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if r.Valid != nil && !r.Valid(candidate) {
			continue
		}
		return candidate, true
	}
	return "", false
}

type scopeKey struct{}

// scope caches the resolution for the lifetime of one request context.
type scope struct {
	once     sync.Once
	resolver Resolver
	src      Sources
	id       string
	ok       bool
}

func (s *scope) get() (string, bool) {
	s.once.Do(func() {
		s.id, s.ok = s.resolver.Resolve(s.src)
	})
	return s.id, s.ok
}

// Attach installs a lazily resolved tenant for ctx. The first lookup resolves
// and every later lookup on the same context returns the cached result.
func (r Resolver) Attach(ctx context.Context, src Sources) context.Context {
	return context.WithValue(ctx, scopeKey{}, &scope{resolver: r, src: src})
}

// WithSources attaches src using the default Resolver.
func WithSources(ctx context.Context, src Sources) context.Context {
	return Resolver{}.Attach(ctx, src)
}

// WithTenant pins ctx to an already known tenant.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return WithSources(ctx, Sources{Route: tenantID})
}

// FromContext returns the resolved tenant, if any.
func FromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	s, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok || s == nil {
		return "", false
	}
	return s.get()
}

// Require returns the resolved tenant or ErrTenantRequired.
func Require(ctx context.Context) (string, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return "", ErrTenantRequired
	}
	return id, nil
}
