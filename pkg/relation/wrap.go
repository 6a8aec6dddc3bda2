package relation

import (
	"context"
	"iter"

	"github.com/relmap/relmap/pkg/ast"
	"github.com/relmap/relmap/pkg/dataset"
)

// Wrap embeds association rows as nested values inside each output
// tuple: to-one associations embed a single nested tuple, to-many a
// nested slice. Unlike Combine it takes association names only, and the
// wrapped names travel in the relation AST, so a wrapped relation
// negotiates a different mapper than its flat form.
func (r *Relation) Wrap(names ...string) (*Wrap, error) {
	wrapped := make([]any, len(names))
	for i, name := range names {
		wrapped[i] = name
	}
	root := r.With(WithMeta(Meta{"wrap": wrapped}))

	nodes := make([]*graphNode, 0, len(names))
	for _, name := range names {
		node, err := root.combineNode(name, nil)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return &Wrap{root: root, nodes: nodes}, nil
}

// Wrap is a relation whose output tuples carry nested association rows.
type Wrap struct {
	root  *Relation
	nodes []*graphNode
}

var _ Composable = (*Wrap)(nil)

// Name returns the root relation's name.
func (w *Wrap) Name() string { return w.root.Name() }

// Root returns the relation the wrap loads first.
func (w *Wrap) Root() *Relation { return w.root }

// ToAST returns the root's serialized structure including the wrapped
// association names.
func (w *Wrap) ToAST() ast.Node { return w.root.ToAST() }

func (w *Wrap) withRoot(root *Relation) *Wrap {
	return &Wrap{root: root, nodes: w.nodes}
}

// Restrict narrows the wrap's root.
func (w *Wrap) Restrict(criteria dataset.Criteria) *Wrap {
	return w.withRoot(w.root.Restrict(criteria))
}

// Order sorts the wrap's root.
func (w *Wrap) Order(names ...string) *Wrap {
	return w.withRoot(w.root.Order(names...))
}

// MapTo maps the wrapped output into instances of the model's type.
func (w *Wrap) MapTo(model any) *Wrap {
	return w.withRoot(w.root.MapTo(model))
}

// MapWith queues the named mappers as a pipeline over the wrapped
// output.
func (w *Wrap) MapWith(names ...string) *Composite {
	return newComposite(w, w.root.mappers, names...)
}

// Call materializes the wrap into a Loaded snapshot.
func (w *Wrap) Call(ctx context.Context) (*Loaded, error) {
	return callMerged(ctx, w.root, w.nodes)
}

// Each yields the wrapped output values. Wraps materialize eagerly; the
// sequence reloads on every range.
func (w *Wrap) Each(ctx context.Context) iter.Seq2[any, error] {
	return eagerSeq(ctx, w)
}

// All materializes the wrap and returns its output collection.
func (w *Wrap) All(ctx context.Context) ([]any, error) {
	return collectAll(ctx, w)
}
