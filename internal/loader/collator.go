// Package loader batches per-key lookups made during one GraphQL resolution
// pass into a single grouped fetch.
//
// Loads never fetch on their own. They join the pending batch, and the batch
// runs when the first caller awaits one of its results, or on Dispatch:
//
//	c := loader.New(fetchCounts)
//	a, b := c.Load("author-1"), c.Load("author-2")
//	n, err := a.Await(ctx) // one fetch with [author-1 author-2]
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	liberrors "github.com/listenupapp/library-server/internal/errors"
	"github.com/listenupapp/library-server/internal/telemetry"
)

// BatchFunc fetches values for distinct keys. Keys missing from the returned
// map resolve to the zero value.
type BatchFunc[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

// Collator coalesces Load calls into batches and caches results per key for
// its lifetime. Create one per resolution pass.
type Collator[K comparable, V any] struct {
	fetch  BatchFunc[K, V]
	name   string
	code   liberrors.Code
	logger *slog.Logger

	mu      sync.Mutex
	cache   map[K]*Deferred[V]
	pending *batch[K, V]
}

// Option configures a Collator.
type Option func(*config)

type config struct {
	name   string
	code   liberrors.Code
	logger *slog.Logger
}

// WithName labels spans and log lines.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithErrorCode sets the client code carried by BATCH_FAILED errors.
func WithErrorCode(code liberrors.Code) Option {
	return func(c *config) { c.code = code }
}

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// New creates a Collator around fetch.
func New[K comparable, V any](fetch BatchFunc[K, V], opts ...Option) *Collator[K, V] {
	cfg := config{name: "loader", code: liberrors.CodeInternalServerError}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	return &Collator[K, V]{
		fetch:  fetch,
		name:   cfg.name,
		code:   cfg.code,
		logger: cfg.logger,
		cache:  make(map[K]*Deferred[V]),
	}
}

type batch[K comparable, V any] struct {
	keys    []K
	waiters map[K]*Deferred[V]
	started bool
	done    chan struct{}
}

// Load registers interest in key and returns its deferred result. A key seen
// earlier in this Collator's life returns the same deferred.
func (c *Collator[K, V]) Load(key K) *Deferred[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d, ok := c.cache[key]; ok {
		return d
	}

	b := c.pending
	if b == nil {
		b = &batch[K, V]{waiters: make(map[K]*Deferred[V]), done: make(chan struct{})}
		c.pending = b
	}

	d := &Deferred[V]{done: b.done}
	d.dispatch = func(ctx context.Context) { c.start(ctx, b) }

	b.keys = append(b.keys, key)
	b.waiters[key] = d
	c.cache[key] = d
	return d
}

// Clear drops the cached result for key so the next Load fetches it again.
// A key still waiting in the unstarted batch is left alone; that fetch has
// not run yet.
func (c *Collator[K, V]) Clear(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b := c.pending; b != nil && b.waiters[key] != nil && b.waiters[key] == c.cache[key] {
		return
	}
	delete(c.cache, key)
}

// Dispatch starts the pending batch, if any, without waiting for it.
func (c *Collator[K, V]) Dispatch(ctx context.Context) {
	c.mu.Lock()
	b := c.pending
	c.mu.Unlock()

	if b != nil {
		c.start(ctx, b)
	}
}

// start runs b once. Later Loads go to a new batch. The fetch is detached from
// ctx cancellation so one impatient awaiter can't fail the others.
func (c *Collator[K, V]) start(ctx context.Context, b *batch[K, V]) {
	c.mu.Lock()
	if b.started {
		c.mu.Unlock()
		return
	}
	b.started = true
	if c.pending == b {
		c.pending = nil
	}
	c.mu.Unlock()

	go c.run(context.WithoutCancel(ctx), b)
}

func (c *Collator[K, V]) run(ctx context.Context, b *batch[K, V]) {
	ctx, span := telemetry.Tracer().Start(ctx, "loader.dispatch", trace.WithAttributes(
		attribute.String("loader.name", c.name),
		attribute.Int("loader.batch_size", len(b.keys)),
	))
	defer span.End()

	values, err := c.safeFetch(ctx, b.keys)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch fetch failed")
		c.logger.WarnContext(ctx, "batch fetch failed", "loader", c.name, "keys", len(b.keys), "error", err)
		err = c.wrap(err)

		c.mu.Lock()
		for _, k := range b.keys {
			if c.cache[k] == b.waiters[k] {
				delete(c.cache, k)
			}
		}
		c.mu.Unlock()
	} else {
		c.logger.DebugContext(ctx, "batch fetched", "loader", c.name, "keys", len(b.keys))
	}

	for k, d := range b.waiters {
		if err != nil {
			d.err = err
			continue
		}
		d.value = values[k]
	}
	close(b.done)
}

// safeFetch turns a panicking BatchFunc into an error so waiters are released.
func (c *Collator[K, V]) safeFetch(ctx context.Context, keys []K) (values map[K]V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batch function panicked: %v", r)
		}
	}()
	return c.fetch(ctx, keys)
}

func (c *Collator[K, V]) wrap(err error) error {
	if liberrors.KindOf(err) == liberrors.KindBatchFailed {
		return err
	}
	return liberrors.Wrap(err, liberrors.KindBatchFailed, c.code, c.name+" batch failed")
}

// Deferred is the pending result of one Load.
type Deferred[V any] struct {
	done     <-chan struct{}
	dispatch func(context.Context)
	value    V
	err      error
}

var closed = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Resolved returns a deferred that already holds value.
func Resolved[V any](value V) *Deferred[V] {
	return &Deferred[V]{done: closed, value: value}
}

// Failed returns a deferred that already holds err.
func Failed[V any](err error) *Deferred[V] {
	return &Deferred[V]{done: closed, err: err}
}

// Await returns the value, dispatching the batch first if no one has. It
// stops waiting when ctx is done; the fetch itself keeps running.
func (d *Deferred[V]) Await(ctx context.Context) (V, error) {
	select {
	case <-d.done:
		return d.value, d.err
	default:
	}

	if d.dispatch != nil {
		d.dispatch(ctx)
	}

	select {
	case <-d.done:
		return d.value, d.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// ResolveValue lets executors that work with untyped values await the result.
func (d *Deferred[V]) ResolveValue(ctx context.Context) (any, error) {
	return d.Await(ctx)
}
