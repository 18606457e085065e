// Package provider defines the lookup capability every address backend
// implements, and the concrete backends: a known-address SQLite store, a
// YAML dictionary indexed with bleve, and an HTTP geocoder.
package provider

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/addresolve/internal/address"
)

// Scope is the per-batch caller context (tenant, language, request). The
// resolver passes it to providers without looking inside.
type Scope struct {
	TenantID   string            `json:"tenant_id,omitempty"`
	Language   string            `json:"language,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Result is a provider-specific raw payload plus any field overrides the
// provider wants applied to the normalized record. Overrides apply to the
// first record Normalize returns.
type Result struct {
	Provider  string
	Raw       any
	Overrides map[string]string
}

// Provider is a pluggable address backend.
//
// IsEnabled may reject an item before any I/O. Prepare binds per-batch
// scope and must be cheap; it is called once per chunk or once per provider
// pass. Normalize converts a Result into canonical records and drops any
// record missing mandatory fields.
type Provider interface {
	Name() string
	IsEnabled(item string, scope Scope) bool
	Prepare(ctx context.Context, scope Scope) (Searcher, error)
	Normalize(res *Result) []address.Address
}

// Searcher performs lookups for one batch. A nil Result with a nil error
// means "no match"; errors are reserved for transport or logic failures.
type Searcher interface {
	Search(ctx context.Context, query string) (*Result, error)
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, query string) (*Result, error)

// Search calls f.
func (f SearcherFunc) Search(ctx context.Context, query string) (*Result, error) {
	return f(ctx, query)
}

// Registry is a priority-ordered provider list with unique names.
type Registry struct {
	providers []Provider
	byName    map[string]Provider
}

// NewRegistry registers providers in priority order.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{byName: make(map[string]Provider, len(providers))}
	for i, p := range providers {
		if p == nil {
			return nil, fmt.Errorf("provider %d is nil", i)
		}
		if _, dup := r.byName[p.Name()]; dup {
			return nil, fmt.Errorf("provider %q registered twice", p.Name())
		}
		r.byName[p.Name()] = p
		r.providers = append(r.providers, p)
	}
	return r, nil
}

// Providers returns the providers in priority order.
func (r *Registry) Providers() []Provider {
	return append([]Provider(nil), r.providers...)
}

// Names returns provider names in priority order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}

// Get looks a provider up by name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	return len(r.providers)
}
