package resolve

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/addresolve/internal/provider"
)

// itemOutcome is one per-item goroutine's verdict.
type itemOutcome struct {
	kind     ErrorKind
	msg      string
	cand     candidate
	provider string
}

// enabled calls IsEnabled; a panicking provider counts as disabled.
func (e *Engine) enabled(p provider.Provider, item string, scope provider.Scope) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("provider_panic",
				slog.String("provider", p.Name()),
				slog.String("method", "IsEnabled"),
				slog.Any("panic", r))
			ok = false
		}
	}()
	return p.IsEnabled(item, scope)
}

// chunkSearchers prepares each provider at most once per chunk, and only
// if some item in the chunk reaches it.
type chunkSearchers struct {
	e     *Engine
	ctx   context.Context
	scope provider.Scope

	once []sync.Once
	s    []provider.Searcher
	err  []error
}

func newChunkSearchers(ctx context.Context, e *Engine, scope provider.Scope) *chunkSearchers {
	n := len(e.providers)
	return &chunkSearchers{
		e:     e,
		ctx:   ctx,
		scope: scope,
		once:  make([]sync.Once, n),
		s:     make([]provider.Searcher, n),
		err:   make([]error, n),
	}
}

func (c *chunkSearchers) get(rank int) (provider.Searcher, error) {
	c.once[rank].Do(func() {
		c.s[rank], c.err[rank] = c.e.prepare(c.ctx, c.e.providers[rank], c.scope)
	})
	return c.s[rank], c.err[rank]
}

// runPerItem processes chunks one after another; inside a chunk every item
// walks the providers concurrently with the others.
func (e *Engine) runPerItem(ctx context.Context, jobs []job, scope provider.Scope, acc *accumulator) error {
	for _, chunk := range chunks(jobs, e.chunkSize) {
		if err := ctx.Err(); err != nil {
			return err
		}

		searchers := newChunkSearchers(ctx, e, scope)
		outcomes := make([]itemOutcome, len(chunk))

		var g errgroup.Group
		for i, j := range chunk {
			g.Go(func() error {
				outcomes[i] = e.resolveItem(ctx, j, scope, searchers)
				return nil
			})
		}
		_ = g.Wait()

		for i, j := range chunk {
			o := outcomes[i]
			if o.kind != "" {
				acc.fail(j.item, o.kind, o.msg)
				continue
			}
			acc.resolve(j.item, o.cand, o.provider)
		}
	}
	return ctx.Err()
}

// resolveItem stops at the first provider that yields an address. A
// provider error ends the item too; later providers are not consulted.
func (e *Engine) resolveItem(ctx context.Context, j job, scope provider.Scope, searchers *chunkSearchers) itemOutcome {
	var ranks []int
	for rank, p := range e.providers {
		if e.enabled(p, j.item, scope) {
			ranks = append(ranks, rank)
		}
	}
	if len(ranks) == 0 {
		return itemOutcome{kind: ErrNoProviders}
	}

	for _, rank := range ranks {
		name := e.providers[rank].Name()
		s, err := searchers.get(rank)
		if err != nil {
			return itemOutcome{kind: ErrProvider, msg: providerMessage(name, err)}
		}
		r := e.search(ctx, rank, s, j)
		if r.err != nil {
			return itemOutcome{kind: ErrProvider, msg: providerMessage(name, r.err)}
		}
		if r.found {
			return itemOutcome{cand: r.cand, provider: name}
		}
	}
	return itemOutcome{kind: ErrNotFound}
}

// runPerProvider gives each provider, in priority order, every item still
// unresolved. Provider passes are sequential; searches inside a pass are
// chunked like the per-item strategy.
func (e *Engine) runPerProvider(ctx context.Context, jobs []job, scope provider.Scope, acc *accumulator) error {
	remaining := jobs
	everEnabled := make([]bool, len(jobs))

	for rank, p := range e.providers {
		if len(remaining) == 0 {
			break
		}

		var eligible []job
		for _, j := range remaining {
			if e.enabled(p, j.item, scope) {
				eligible = append(eligible, j)
				everEnabled[j.pos] = true
			}
		}
		if len(eligible) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		s, err := e.prepare(ctx, p, scope)
		if err != nil {
			for _, j := range eligible {
				acc.fail(j.item, ErrProvider, providerMessage(p.Name(), err))
			}
		} else if err := e.providerPass(ctx, rank, s, eligible, acc); err != nil {
			return err
		}

		next := remaining[:0:0]
		for _, j := range remaining {
			if !acc.done(j.item) {
				next = append(next, j)
			}
		}
		remaining = next
	}

	for _, j := range remaining {
		if everEnabled[j.pos] {
			acc.fail(j.item, ErrNotFound, "")
		} else {
			acc.fail(j.item, ErrNoProviders, "")
		}
	}
	return ctx.Err()
}

func (e *Engine) providerPass(ctx context.Context, rank int, s provider.Searcher, eligible []job, acc *accumulator) error {
	name := e.providers[rank].Name()
	for _, chunk := range chunks(eligible, e.chunkSize) {
		if err := ctx.Err(); err != nil {
			return err
		}

		results := make([]searchResult, len(chunk))
		var g errgroup.Group
		for i, j := range chunk {
			g.Go(func() error {
				results[i] = e.search(ctx, rank, s, j)
				return nil
			})
		}
		_ = g.Wait()

		for i, j := range chunk {
			r := results[i]
			switch {
			case r.err != nil:
				acc.fail(j.item, ErrProvider, providerMessage(name, r.err))
			case r.found:
				acc.resolve(j.item, r.cand, name)
			}
		}
	}
	return nil
}
