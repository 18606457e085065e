// Package resolve is the batch orchestrator: it splits unit suffixes off raw
// items, dispatches lookups to providers under one of two strategies with
// bounded concurrency, and folds normalized results into a BatchResult.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/addresolve/internal/address"
	rerrors "github.com/Aman-CERP/addresolve/internal/errors"
	"github.com/Aman-CERP/addresolve/internal/provider"
	"github.com/Aman-CERP/addresolve/internal/telemetry"
	"github.com/Aman-CERP/addresolve/internal/unit"
)

// Strategy names.
const (
	// StrategyPerItem sends each item through the providers in order.
	StrategyPerItem = "per-item"
	// StrategyPerProvider sends all unresolved items to each provider in turn.
	StrategyPerProvider = "per-provider"
)

// DefaultChunkSize bounds concurrent provider calls per pass.
const DefaultChunkSize = 10

// Strategies lists the valid strategy names.
func Strategies() []string {
	return []string{StrategyPerItem, StrategyPerProvider}
}

// Splitter separates the unit suffix from a raw address.
type Splitter interface {
	Parse(raw string) unit.Parsed
}

// Options select the behaviour of one ResolveBatch call.
type Options struct {
	// Strategy is a name from Strategies; empty means the engine default.
	Strategy string
	// ExtractUnit searches by the house part and carries unit fields over.
	ExtractUnit bool
	// Scope is passed through to providers unchanged.
	Scope provider.Scope
}

// Engine resolves batches against a fixed, priority-ordered provider list.
// An Engine is safe for concurrent use.
type Engine struct {
	providers []provider.Provider
	chunkSize int
	strategy  string
	splitter  Splitter
	metrics   *telemetry.ResolveMetrics
	logger    *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithChunkSize sets the maximum number of concurrent provider calls.
func WithChunkSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// WithDefaultStrategy sets the strategy used when Options.Strategy is empty.
func WithDefaultStrategy(name string) EngineOption {
	return func(e *Engine) {
		e.strategy = name
	}
}

// WithParser replaces the default Russian unit parser.
func WithParser(s Splitter) EngineOption {
	return func(e *Engine) {
		if s != nil {
			e.splitter = s
		}
	}
}

// WithMetrics records batch and provider telemetry.
func WithMetrics(m *telemetry.ResolveMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine. Provider order is priority order.
func NewEngine(providers []provider.Provider, opts ...EngineOption) (*Engine, error) {
	reg, err := provider.NewRegistry(providers...)
	if err != nil {
		return nil, rerrors.ConfigError("invalid provider list", err)
	}

	e := &Engine{
		providers: reg.Providers(),
		chunkSize: DefaultChunkSize,
		strategy:  StrategyPerItem,
		splitter:  unit.Default(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if _, err := canonicalStrategy(e.strategy); err != nil {
		return nil, err
	}
	return e, nil
}

// Providers returns the provider names in priority order.
func (e *Engine) Providers() []string {
	names := make([]string, len(e.providers))
	for i, p := range e.providers {
		names[i] = p.Name()
	}
	return names
}

func canonicalStrategy(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "_", "-")
	for _, s := range Strategies() {
		if n == s {
			return s, nil
		}
	}
	return "", rerrors.UnknownStrategyError(name, Strategies())
}

// job is one distinct item prepared for searching.
type job struct {
	item  string
	pos   int
	query string
	unit  *address.Unit
}

// ResolveBatch resolves items and accounts for every one of them.
//
// Configuration errors (unknown strategy, blank item) are returned before
// any provider is called. Provider failures never fail the batch; they
// become per-item PROVIDER_ERROR outcomes. The only other error is ctx
// being cancelled, which is checked between chunks.
func (e *Engine) ResolveBatch(ctx context.Context, items []string, opts Options) (*BatchResult, error) {
	name := opts.Strategy
	if name == "" {
		name = e.strategy
	}
	strategy, err := canonicalStrategy(name)
	if err != nil {
		return nil, err
	}

	jobs, err := e.prepareJobs(items, opts.ExtractUnit)
	if err != nil {
		return nil, err
	}

	batchID := uuid.NewString()
	log := e.logger.With(
		slog.String("batch_id", batchID),
		slog.String("strategy", strategy))
	start := time.Now()
	log.Debug("batch_started",
		slog.Int("items", len(items)),
		slog.Int("distinct", len(jobs)),
		slog.Int("chunk_size", e.chunkSize))

	acc := newAccumulator(len(jobs))
	switch strategy {
	case StrategyPerProvider:
		err = e.runPerProvider(ctx, jobs, opts.Scope, acc)
	default:
		err = e.runPerItem(ctx, jobs, opts.Scope, acc)
	}
	if err != nil {
		log.Warn("batch_cancelled", slog.String("error", err.Error()))
		return nil, err
	}

	res := acc.result()
	counts := res.Counts()
	for _, j := range jobs {
		if res.Items[j.item].Err == ErrNotFound {
			e.metrics.RecordNotFound(j.query)
		}
	}
	e.metrics.RecordBatch(telemetry.BatchEvent{
		Strategy: strategy,
		Items:    len(jobs),
		Latency:  time.Since(start),
		Outcomes: counts,
	})
	log.Info("batch_finished",
		slog.Int("items", len(jobs)),
		slog.Int("addresses", len(res.Addresses)),
		slog.Any("outcomes", counts),
		slog.Duration("duration", time.Since(start)))
	return res, nil
}

// prepareJobs validates items, drops duplicates and splits units.
func (e *Engine) prepareJobs(items []string, extractUnit bool) ([]job, error) {
	jobs := make([]job, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		if strings.TrimSpace(item) == "" {
			return nil, rerrors.New(rerrors.ErrCodeEmptyItem, fmt.Sprintf("item %d is blank", i), nil).
				WithDetail("index", fmt.Sprint(i))
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}

		j := job{item: item, pos: len(jobs), query: item}
		if extractUnit {
			parsed := e.splitter.Parse(item)
			if parsed.Address != "" {
				j.query = parsed.Address
			}
			// a type without a name, or a name without a type, is dropped
			if parsed.UnitType != "" && parsed.UnitName != "" {
				j.unit = &address.Unit{Type: parsed.UnitType, Name: parsed.UnitName}
			}
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func chunks(jobs []job, size int) [][]job {
	var out [][]job
	for len(jobs) > 0 {
		n := size
		if n > len(jobs) {
			n = len(jobs)
		}
		out = append(out, jobs[:n])
		jobs = jobs[n:]
	}
	return out
}

// searchResult is what one goroutine hands back to the orchestrator.
type searchResult struct {
	found bool
	cand  candidate
	err   error
}

// search runs one lookup and normalizes it. A result that normalizes to
// nothing counts as no match. Panics become provider errors.
func (e *Engine) search(ctx context.Context, rank int, s provider.Searcher, j job) (out searchResult) {
	p := e.providers[rank]
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("provider_panic",
				slog.String("provider", p.Name()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			out = searchResult{err: rerrors.New(rerrors.ErrCodeProviderPanic,
				fmt.Sprintf("provider %s panicked: %v", p.Name(), r), nil)}
		}
		e.metrics.RecordProviderCall(telemetry.ProviderEvent{
			Provider: p.Name(),
			Latency:  time.Since(start),
			Hit:      out.found,
			Err:      out.err != nil,
		})
	}()

	res, err := s.Search(ctx, j.query)
	if err != nil {
		return searchResult{err: err}
	}
	if res == nil {
		return searchResult{}
	}
	addrs := p.Normalize(res)
	if len(addrs) == 0 {
		return searchResult{}
	}

	addr, skipped := address.Process(addrs[0], res.Overrides, j.unit)
	for _, skip := range skipped {
		e.logger.Warn("override_skipped",
			slog.String("provider", p.Name()),
			slog.String("error", skip.Error()))
	}
	return searchResult{found: true, cand: candidate{addr: addr, rank: rank, pos: j.pos}}
}

// prepare calls Prepare, turning panics into errors.
func (e *Engine) prepare(ctx context.Context, p provider.Provider, scope provider.Scope) (s provider.Searcher, err error) {
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, rerrors.New(rerrors.ErrCodeProviderPanic,
				fmt.Sprintf("provider %s panicked in prepare: %v", p.Name(), r), nil)
		}
	}()
	return p.Prepare(ctx, scope)
}

func providerMessage(name string, err error) string {
	return name + ": " + err.Error()
}
