// Package relation implements the composable read algebra at the heart
// of the module: immutable relation values coupling a dataset with the
// schema typing it, association-driven eager loading, and the structural
// variants produced by composition (Graph, Wrap, Composite, Curried,
// Loaded).
//
// Every operator derives a new relation; nothing mutates in place, so a
// relation built once is safe to share across goroutines. The only
// per-instance state is memoization of the schema-derived tuple
// transforms and of the serialized AST, each computed at most once and
// carried forward by derivations that leave their inputs untouched.
package relation

import (
	"context"
	"fmt"
	"iter"
	"reflect"
	"sync"

	"github.com/rs/zerolog"

	"github.com/relmap/relmap/pkg/ast"
	"github.com/relmap/relmap/pkg/dataset"
	"github.com/relmap/relmap/pkg/mapping"
	"github.com/relmap/relmap/pkg/schema"
	"github.com/relmap/relmap/pkg/tuple"
)

// Meta holds free-form relation metadata. It is carried into the
// relation AST, so anything stored here distinguishes mapper selection.
type Meta map[string]any

func (m Meta) clone() Meta {
	out := make(Meta, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m Meta) merge(other Meta) Meta {
	out := m.clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Resolver looks up registered relations by name. Associations resolve
// their target and through relations against it. Implemented by
// container.Container.
type Resolver interface {
	Relation(name string) (*Relation, error)
}

// PreloadFunc is a pluggable loading strategy: given the target
// relation, the association being loaded and the materialized parent
// snapshot, it produces the child rows to merge. Associations flagged
// for override dispatch here instead of the default key join.
type PreloadFunc func(ctx context.Context, target *Relation, assoc schema.Association, parent *Loaded) (*Loaded, error)

// Composable is the surface shared by every relation variant: plain
// relations, graphs, wraps and mapper pipelines all materialize the
// same way.
type Composable interface {
	Name() string
	Call(ctx context.Context) (*Loaded, error)
	Each(ctx context.Context) iter.Seq2[any, error]
	All(ctx context.Context) ([]any, error)
}

// transformCell memoizes a schema-derived transform. Cells are shared
// between a relation and its derivations until a derivation replaces
// the schema, which allocates fresh cells so nothing stale survives.
type transformCell struct {
	once sync.Once
	fn   schema.Transform
}

type astCell struct {
	once sync.Once
	node ast.Node
}

// Relation couples a dataset with the schema typing its tuples. All
// state is set at construction or by derivation; the zero value is not
// usable.
type Relation struct {
	dataset    dataset.Dataset
	schema     *schema.Schema
	alias      string
	meta       Meta
	model      any
	autoMap    bool
	autoStruct bool
	resolver   Resolver
	mappers    *mapping.Registry
	preloader  PreloadFunc

	output *transformCell
	input  *transformCell
	ast    *astCell
}

var _ Composable = (*Relation)(nil)

// Option customizes a relation at construction or derivation time.
type Option func(*Relation)

// WithResolver wires the resolver associations look up their targets
// against.
func WithResolver(r Resolver) Option {
	return func(rel *Relation) { rel.resolver = r }
}

// WithMappers wires the registry mapped materialization consults.
func WithMappers(reg *mapping.Registry) Option {
	return func(rel *Relation) { rel.mappers = reg }
}

// WithPreloader installs the loading strategy override-flagged
// associations targeting this relation dispatch to.
func WithPreloader(fn PreloadFunc) Option {
	return func(rel *Relation) { rel.preloader = fn }
}

// WithMeta merges metadata into the relation.
func WithMeta(meta Meta) Option {
	return func(rel *Relation) { rel.meta = rel.meta.merge(meta) }
}

// WithSchema replaces the relation's schema. Derivations applying this
// option recompute the memoized transforms from the new schema.
func WithSchema(sch *schema.Schema) Option {
	return func(rel *Relation) { rel.schema = sch }
}

// WithAutoMap lets materialization consult the registry for a custom
// mapper registered under this relation's AST digest.
func WithAutoMap() Option {
	return func(rel *Relation) { rel.autoMap = true }
}

// WithAutoStruct maps output tuples into synthesized struct instances
// derived from the relation's AST.
func WithAutoStruct() Option {
	return func(rel *Relation) {
		rel.autoStruct = true
		rel.model = nil
	}
}

// WithModel maps output tuples into instances of the model's type.
func WithModel(model any) Option {
	return func(rel *Relation) {
		rel.model = model
		rel.autoStruct = true
		rel.meta = rel.meta.merge(Meta{"model": modelName(model)})
	}
}

func modelName(model any) string {
	if model == nil {
		return ""
	}
	return reflect.TypeOf(model).String()
}

// New builds a relation over the dataset, typed by the schema.
func New(ds dataset.Dataset, sch *schema.Schema, opts ...Option) *Relation {
	r := &Relation{
		dataset: ds,
		schema:  sch,
		meta:    Meta{},
		output:  &transformCell{},
		input:   &transformCell{},
		ast:     &astCell{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Relation) clone() *Relation {
	out := *r
	return &out
}

// applyOptions applies derivation options to the copy. A schema swap
// drops the memoized transforms; any option invalidates the AST.
func applyOptions(r *Relation, opts []Option) {
	before := r.schema
	for _, opt := range opts {
		opt(r)
	}
	if r.schema != before {
		r.output = &transformCell{}
		r.input = &transformCell{}
	}
	r.ast = &astCell{}
}

// With derives a copy with the options applied. The dataset is carried
// over; metadata merges rather than replaces.
func (r *Relation) With(opts ...Option) *Relation {
	out := r.clone()
	applyOptions(out, opts)
	return out
}

// WithDataset rebinds the relation to another dataset, carrying every
// other property forward. The schema, and with it the memoized
// transforms, are preserved unless the options replace it.
func (r *Relation) WithDataset(ds dataset.Dataset, opts ...Option) *Relation {
	out := r.clone()
	out.dataset = ds
	if len(opts) > 0 {
		applyOptions(out, opts)
	}
	return out
}

// Name returns the alias when one is set, the schema name otherwise.
func (r *Relation) Name() string {
	if r.alias != "" {
		return r.alias
	}
	return r.schema.Name()
}

// Alias returns the alias, empty when the relation is unaliased.
func (r *Relation) Alias() string { return r.alias }

// Schema returns the schema typing this relation's tuples.
func (r *Relation) Schema() *schema.Schema { return r.schema }

// Dataset returns the dataset this relation reads from.
func (r *Relation) Dataset() dataset.Dataset { return r.dataset }

// Meta returns a copy of the relation metadata.
func (r *Relation) Meta() Meta { return r.meta.clone() }

// Model returns the model mapped output materializes into, nil when the
// relation maps to plain tuples or synthesized structs.
func (r *Relation) Model() any { return r.model }

// Mappers returns the registry this relation resolves mappers against.
func (r *Relation) Mappers() *mapping.Registry { return r.mappers }

// As derives a relation exposed under an alias. The alias keys mapper
// selection and names the relation in its AST.
func (r *Relation) As(alias string) *Relation {
	out := r.clone()
	out.alias = alias
	out.ast = &astCell{}
	return out
}

// Restrict derives a relation narrowed to tuples matching the criteria.
// Criteria address storage attribute names.
func (r *Relation) Restrict(criteria dataset.Criteria) *Relation {
	return r.WithDataset(r.dataset.Restrict(criteria))
}

// RestrictFn derives a relation narrowed by an arbitrary predicate over
// raw tuples.
func (r *Relation) RestrictFn(pred dataset.Predicate) *Relation {
	return r.WithDataset(r.dataset.RestrictFn(pred))
}

// Project derives a relation keeping only the named attributes, with
// the schema narrowed to match. The primary key snapshot survives even
// when key attributes are projected away.
func (r *Relation) Project(names ...string) (*Relation, error) {
	sch, err := r.schema.Project(names...)
	if err != nil {
		return nil, err
	}
	return r.WithDataset(r.dataset.Project(names...), WithSchema(sch)), nil
}

// Order derives a relation sorted by the named attributes.
func (r *Relation) Order(names ...string) *Relation {
	return r.WithDataset(r.dataset.Order(names...))
}

// MapTo derives a relation whose output maps into instances of the
// model's type.
func (r *Relation) MapTo(model any) *Relation {
	return r.With(WithModel(model))
}

// MapWith queues the named mappers as a pipeline over this relation's
// output. Names resolve against the registry at materialization.
func (r *Relation) MapWith(names ...string) *Composite {
	return newComposite(r, r.mappers, names...)
}

// OutputTransform returns the read-side tuple transform derived from
// the schema, computed at most once per instance.
func (r *Relation) OutputTransform() schema.Transform {
	r.output.once.Do(func() { r.output.fn = r.schema.OutputTransform() })
	return r.output.fn
}

// InputTransform returns the write-side tuple transform derived from
// the schema, computed at most once per instance.
func (r *Relation) InputTransform() schema.Transform {
	r.input.once.Do(func() { r.input.fn = r.schema.InputTransform() })
	return r.input.fn
}

// ToAST returns the relation's serialized structure:
// (relation name [attribute-nodes...] {meta}). The node is computed
// once per instance; structurally identical relations produce equal
// nodes and digests, which is what keys mapper negotiation.
func (r *Relation) ToAST() ast.Node {
	r.ast.once.Do(func() {
		attrs := make([]ast.Node, 0, r.schema.Len())
		for attr := range r.schema.Each() {
			attrs = append(attrs, attr.ReadAST())
		}
		r.ast.node = ast.New("relation", r.Name(), attrs, map[string]any(r.meta.clone()))
	})
	return r.ast.node
}

// Node resolves the named association to its target relation.
func (r *Relation) Node(name string) (*Relation, error) {
	assoc, err := r.schema.Associations().Get(name)
	if err != nil {
		return nil, err
	}
	return r.relationFor(assoc.Target())
}

func (r *Relation) relationFor(name string) (*Relation, error) {
	if r.resolver == nil {
		return nil, fmt.Errorf("relation `%s` has no resolver to look up `%s`", r.Name(), name)
	}
	return r.resolver.Relation(name)
}

// RelationOp is a multi-argument operation over a relation, suited for
// currying.
type RelationOp func(ctx context.Context, r *Relation, args []any) (*Loaded, error)

// Curry partially applies op over this relation: the result accepts
// arguments a few at a time and executes once arity arguments are
// bound.
func (r *Relation) Curry(name string, arity int, op RelationOp) *Curried {
	rel := r
	return NewCurried(name, arity, func(ctx context.Context, args []any) (*Loaded, error) {
		return op(ctx, rel, args)
	})
}

// Each yields the relation's output values lazily: each raw tuple
// pulled from the dataset passes through the output transform exactly
// once, then through the selected mapper, which may drop a tuple or
// expand it into several values. The sequence restarts from the
// beginning on every range.
func (r *Relation) Each(ctx context.Context) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		mapper, err := r.tupleMapper()
		if err != nil {
			yield(nil, err)
			return
		}
		out := r.OutputTransform()
		for raw, err := range r.dataset.Each(ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			t, err := out(raw)
			if err != nil {
				yield(nil, err)
				return
			}
			if mapper == nil {
				if !yield(t, nil) {
					return
				}
				continue
			}
			mapped, err := mapper.Call([]any{t})
			if err != nil {
				yield(nil, err)
				return
			}
			for _, v := range mapped {
				if !yield(v, nil) {
					return
				}
			}
		}
	}
}

// Call materializes the relation into a Loaded snapshot.
func (r *Relation) Call(ctx context.Context) (*Loaded, error) {
	tuples, err := r.loadTuples(ctx)
	if err != nil {
		return nil, err
	}
	values, mapped, err := r.mapTuples(tuples)
	if err != nil {
		return nil, err
	}
	return newLoaded(r.Name(), tuples, values, mapped), nil
}

// All materializes the relation and returns its output collection.
func (r *Relation) All(ctx context.Context) ([]any, error) {
	loaded, err := r.Call(ctx)
	if err != nil {
		return nil, err
	}
	return loaded.Collection(), nil
}

// loadTuples drains the dataset through the output transform.
func (r *Relation) loadTuples(ctx context.Context) ([]tuple.Tuple, error) {
	out := r.OutputTransform()
	var tuples []tuple.Tuple
	for raw, err := range r.dataset.Each(ctx) {
		if err != nil {
			return nil, err
		}
		t, err := out(raw)
		if err != nil {
			return nil, err
		}
		tuples = append(tuples, t)
	}
	return tuples, nil
}

// mapTuples applies the mapper selected for this relation. The bool
// reports whether a mapper ran; when it did, its output is the
// collection as returned, nil included, since mappers own the output
// cardinality.
func (r *Relation) mapTuples(tuples []tuple.Tuple) ([]any, bool, error) {
	mapper, err := r.tupleMapper()
	if err != nil || mapper == nil {
		return nil, false, err
	}
	values := make([]any, len(tuples))
	for i, t := range tuples {
		values[i] = t
	}
	mapped, err := mapper.Call(values)
	if err != nil {
		return nil, false, err
	}
	return mapped, true, nil
}

// tupleMapper resolves the mapper output passes through: the struct
// mapper for the model when auto-struct is on, a custom mapper
// registered under this relation's AST when auto-map is on, nil
// otherwise.
func (r *Relation) tupleMapper() (mapping.Mapper, error) {
	switch {
	case r.autoStruct:
		if r.mappers == nil {
			return nil, fmt.Errorf("relation `%s` maps to structs but has no mapper registry", r.Name())
		}
		return r.mappers.ForAST(r.ToAST(), r.model)
	case r.autoMap && r.mappers != nil:
		if m, ok := r.mappers.Lookup(r.ToAST()); ok {
			return m, nil
		}
	}
	return nil, nil
}

// MarshalZerologObject implements zerolog object marshalling.
func (r *Relation) MarshalZerologObject(e *zerolog.Event) {
	e.Str("relation", r.Name()).Int("attributes", r.schema.Len())
}
