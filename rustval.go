// Package rustval decodes values of a stopped Rust program from its raw
// memory, directed by type descriptors taken from debug information.
//
// An Inspector pairs a read-only type catalog with a memory reader. Decode
// never fails: unreadable memory, unknown types and unrecognized encodings
// become Opaque nodes confined to the smallest affected subtree, so the rest
// of the value still renders.
package rustval

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dbgvis/rustval/cache"
	"github.com/dbgvis/rustval/internal/decoder"
	"github.com/dbgvis/rustval/memory"
	"github.com/dbgvis/rustval/typedesc"
	"github.com/dbgvis/rustval/value"
)

const (
	// DefaultMaxDepth is the nesting bound used unless WithMaxDepth is given.
	DefaultMaxDepth = decoder.DefaultMaxDepth
	// DefaultMaxSequenceLen is the per-sequence element bound used unless
	// WithMaxSequenceLen is given.
	DefaultMaxSequenceLen = decoder.DefaultMaxSequenceLen
)

// Variable names a value in target memory.
type Variable struct {
	Name string
	Type typedesc.TypeID
	Addr uint64
}

// Inspector decodes values from one target image. It is safe for
// concurrent use when its memory reader is.
type Inspector struct {
	catalog *typedesc.Catalog
	mem     memory.Reader
	dec     *decoder.Decoder
	log     *zap.Logger

	vars   []Variable
	byName map[string]int

	concurrency int
	plans       cache.Provider
	ownsPlans   bool
}

type inspectorOptions struct {
	maxDepth       int
	maxSequenceLen uint64
	logger         *zap.Logger
	plans          cache.Provider
	concurrency    int
	vars           []Variable
}

// SetLogger sets the logger used by Inspectors created without
// WithLogger. It must be called before New.
func SetLogger(l *zap.Logger) {
	decoder.SetLogger(l)
}

// Option configures an Inspector.
type Option func(*inspectorOptions)

// WithMaxDepth bounds the nesting of fields, payloads and indirections.
// Deeper values are reported as DepthExceededError.
func WithMaxDepth(depth int) Option {
	return func(o *inspectorOptions) {
		o.maxDepth = depth
	}
}

// WithMaxSequenceLen bounds the number of elements decoded per sequence.
// Longer sequences are truncated and flagged.
func WithMaxSequenceLen(n uint64) Option {
	return func(o *inspectorOptions) {
		o.maxSequenceLen = n
	}
}

// WithLogger sets the logger used for decode diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(o *inspectorOptions) {
		o.logger = l
	}
}

// WithCacheProvider sets the cache for compiled layout plans. By default
// each Inspector owns a shared ristretto cache.
func WithCacheProvider(p cache.Provider) Option {
	return func(o *inspectorOptions) {
		o.plans = p
	}
}

// WithConcurrency bounds the goroutines used by DecodeAll.
func WithConcurrency(n int) Option {
	return func(o *inspectorOptions) {
		o.concurrency = n
	}
}

// WithVariables registers named variables for DecodeVariable and Locals.
func WithVariables(vars ...Variable) Option {
	return func(o *inspectorOptions) {
		o.vars = append(o.vars, vars...)
	}
}

// New creates an Inspector over catalog and mem.
func New(catalog *typedesc.Catalog, mem memory.Reader, options ...Option) (*Inspector, error) {
	if catalog == nil {
		return nil, errors.New("rustval: nil catalog")
	}
	if mem == nil {
		return nil, errors.New("rustval: nil memory reader")
	}
	opts := inspectorOptions{
		maxDepth:       DefaultMaxDepth,
		maxSequenceLen: DefaultMaxSequenceLen,
		concurrency:    runtime.GOMAXPROCS(0),
	}
	for _, o := range options {
		o(&opts)
	}
	if opts.maxDepth <= 0 {
		return nil, fmt.Errorf("rustval: max depth must be positive, got %d", opts.maxDepth)
	}
	if opts.logger == nil {
		opts.logger = decoder.Logger()
	}

	i := &Inspector{
		catalog:     catalog,
		mem:         mem,
		log:         opts.logger,
		byName:      make(map[string]int, len(opts.vars)),
		concurrency: max(opts.concurrency, 1),
		plans:       opts.plans,
	}
	if i.plans == nil {
		p, err := cache.NewSharedProvider(cache.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("rustval: creating plan cache: %w", err)
		}
		i.plans = p
		i.ownsPlans = true
	}
	for _, v := range opts.vars {
		if _, dup := i.byName[v.Name]; dup {
			return nil, fmt.Errorf("rustval: variable %q registered twice", v.Name)
		}
		i.byName[v.Name] = len(i.vars)
		i.vars = append(i.vars, v)
	}
	for _, w := range catalog.Warnings() {
		i.log.Warn("type catalog", zap.String("warning", w))
	}

	i.dec = decoder.New(catalog, mem, decoder.Options{
		MaxDepth:       opts.maxDepth,
		MaxSequenceLen: opts.maxSequenceLen,
		Logger:         opts.logger,
		Plans:          i.plans,
	})
	return i, nil
}

// Catalog returns the type catalog.
func (i *Inspector) Catalog() *typedesc.Catalog {
	return i.catalog
}

// Decode decodes the value of type id stored at addr. The returned tree is
// freshly built on every call.
func (i *Inspector) Decode(id typedesc.TypeID, addr uint64) *value.Value {
	return i.dec.Decode(id, addr)
}

// Variables returns the registered variables in registration order.
func (i *Inspector) Variables() []Variable {
	out := make([]Variable, len(i.vars))
	copy(out, i.vars)
	return out
}

// DecodeVariable decodes the registered variable name.
func (i *Inspector) DecodeVariable(name string) Result {
	idx, ok := i.byName[name]
	if !ok {
		return Result{Name: name, err: ErrVariableNotFound}
	}
	return i.decodeVariable(i.vars[idx])
}

func (i *Inspector) decodeVariable(v Variable) Result {
	return Result{Name: v.Name, Type: v.Type, Addr: v.Addr, value: i.Decode(v.Type, v.Addr)}
}

// Request asks DecodeAll for one value.
type Request struct {
	Name string
	Type typedesc.TypeID
	Addr uint64
}

// DecodeAll decodes independent requests concurrently. Results are in
// request order. The context is checked between requests; a decode that has
// started runs to completion.
func (i *Inspector) DecodeAll(ctx context.Context, reqs []Request) ([]Result, error) {
	results := make([]Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)
	for n, req := range reqs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[n] = i.decodeVariable(Variable(req))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Close releases the plan cache if the Inspector created it.
func (i *Inspector) Close() error {
	if i.ownsPlans {
		cache.Close(i.plans)
	}
	return nil
}
