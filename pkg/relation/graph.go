package relation

import (
	"context"
	"iter"
	"slices"

	"golang.org/x/exp/maps"

	log "github.com/relmap/relmap/internal/logging"
	"github.com/relmap/relmap/pkg/dataset"
	"github.com/relmap/relmap/pkg/schema"
	"github.com/relmap/relmap/pkg/tuple"
)

// Nested declares a nested combine: load the named association, then
// combine Children onto its target. Children take the same argument
// shapes Combine does.
type Nested struct {
	Name     string
	Children []any
}

// Combine resolves the given associations into a Graph that eager-loads
// them alongside this relation. Arguments may be association names,
// Nested trees, sequences of either (flattened in place) and maps of
// name to children (iterated in sorted key order so graphs build
// deterministically). Everything a load will touch, associations,
// target and through relations, and the primary keys joined on,
// resolves here; a Combine that returns without error cannot fail on a
// lookup later.
func (r *Relation) Combine(args ...any) (*Graph, error) {
	nodes, err := r.combineNodes(args)
	if err != nil {
		return nil, err
	}
	log.Trace().Str("relation", r.Name()).Int("nodes", len(nodes)).Msg("combined relation graph")
	return &Graph{root: r, nodes: nodes}, nil
}

// Graph builds a composition tree from resolved associations. It is the
// lower-level form of Combine: the edges are supplied directly instead
// of looked up by name. Like Combine it triggers no I/O; loading starts
// at Call, Each or All.
func (r *Relation) Graph(assocs ...schema.Association) (*Graph, error) {
	nodes := make([]*graphNode, 0, len(assocs))
	for _, assoc := range assocs {
		loader, merge, err := r.eagerLoad(assoc, nil)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, &graphNode{assoc: assoc, loader: loader, merge: merge})
	}
	return &Graph{root: r, nodes: nodes}, nil
}

func (r *Relation) combineNodes(args []any) ([]*graphNode, error) {
	nodes := make([]*graphNode, 0, len(args))
	for _, arg := range args {
		switch v := arg.(type) {
		case string:
			node, err := r.combineNode(v, nil)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, node)
		case Nested:
			node, err := r.combineNode(v.Name, v.Children)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, node)
		case []string:
			for _, name := range v {
				node, err := r.combineNode(name, nil)
				if err != nil {
					return nil, err
				}
				nodes = append(nodes, node)
			}
		case []any:
			flat, err := r.combineNodes(v)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, flat...)
		case map[string]any:
			keys := maps.Keys(v)
			slices.Sort(keys)
			for _, name := range keys {
				node, err := r.combineNode(name, childArgs(v[name]))
				if err != nil {
					return nil, err
				}
				nodes = append(nodes, node)
			}
		default:
			return nil, NewUnsupportedCombineArgumentErr(arg)
		}
	}
	return nodes, nil
}

// childArgs normalizes the value side of a mapping argument.
func childArgs(v any) []any {
	switch c := v.(type) {
	case nil:
		return nil
	case []any:
		return c
	default:
		return []any{c}
	}
}

func (r *Relation) combineNode(name string, children []any) (*graphNode, error) {
	assoc, err := r.schema.Associations().Get(name)
	if err != nil {
		return nil, err
	}
	loader, merge, err := r.eagerLoad(assoc, children)
	if err != nil {
		return nil, err
	}
	return &graphNode{assoc: assoc, loader: loader, merge: merge}, nil
}

// graphNode is one resolved association of a combine: the curried
// loader awaiting the parent snapshot and the merge reuniting its rows
// with the parents.
type graphNode struct {
	assoc  schema.Association
	loader *Curried
	merge  mergeFunc
}

// Graph is a relation composed with eager-loaded association nodes.
// Materializing it loads the root first, then every node in
// combine-argument order, merging each node's rows into the root tuples
// under the association name.
type Graph struct {
	root  *Relation
	nodes []*graphNode
}

var _ Composable = (*Graph)(nil)

// Name returns the root relation's name.
func (g *Graph) Name() string { return g.root.Name() }

// Root returns the relation the graph loads first.
func (g *Graph) Root() *Relation { return g.root }

// Nodes returns the association names the graph eager-loads, in merge
// order.
func (g *Graph) Nodes() []string {
	names := make([]string, len(g.nodes))
	for i, node := range g.nodes {
		names[i] = node.assoc.Name()
	}
	return names
}

func (g *Graph) withRoot(root *Relation) *Graph {
	return &Graph{root: root, nodes: g.nodes}
}

// Restrict narrows the graph's root; nodes load against the narrowed
// parent rows.
func (g *Graph) Restrict(criteria dataset.Criteria) *Graph {
	return g.withRoot(g.root.Restrict(criteria))
}

// Order sorts the graph's root.
func (g *Graph) Order(names ...string) *Graph {
	return g.withRoot(g.root.Order(names...))
}

// MapTo maps the combined output into instances of the model's type.
// Nested fields see the merged association rows.
func (g *Graph) MapTo(model any) *Graph {
	return g.withRoot(g.root.MapTo(model))
}

// MapWith queues the named mappers as a pipeline over the combined
// output.
func (g *Graph) MapWith(names ...string) *Composite {
	return newComposite(g, g.root.mappers, names...)
}

// Combine extends the graph with further association nodes resolved
// against the root.
func (g *Graph) Combine(args ...any) (*Graph, error) {
	extra, err := g.root.combineNodes(args)
	if err != nil {
		return nil, err
	}
	nodes := make([]*graphNode, 0, len(g.nodes)+len(extra))
	nodes = append(nodes, g.nodes...)
	nodes = append(nodes, extra...)
	return &Graph{root: g.root, nodes: nodes}, nil
}

func (g *Graph) loadTuples(ctx context.Context) ([]tuple.Tuple, error) {
	return loadMerged(ctx, g.root, g.nodes)
}

// Call materializes the graph into a Loaded snapshot. Mapping applies
// after the merges, so mapped models observe the combined rows.
func (g *Graph) Call(ctx context.Context) (*Loaded, error) {
	return callMerged(ctx, g.root, g.nodes)
}

// Each yields the combined output values. Graphs materialize eagerly;
// the sequence reloads on every range.
func (g *Graph) Each(ctx context.Context) iter.Seq2[any, error] {
	return eagerSeq(ctx, g)
}

// All materializes the graph and returns its output collection.
func (g *Graph) All(ctx context.Context) ([]any, error) {
	return collectAll(ctx, g)
}

// loadMerged materializes the root and merges every node's rows into
// the fresh root tuples, in node order.
func loadMerged(ctx context.Context, root *Relation, nodes []*graphNode) ([]tuple.Tuple, error) {
	parents, err := root.loadTuples(ctx)
	if err != nil {
		return nil, err
	}
	snapshot := newLoaded(root.Name(), parents, nil, false)
	for _, node := range nodes {
		children, err := node.loader.Load(ctx, snapshot)
		if err != nil {
			return nil, err
		}
		node.merge(parents, children.Tuples())
	}
	return parents, nil
}

// callMerged materializes root and nodes, then applies the root's
// mapper over the merged tuples.
func callMerged(ctx context.Context, root *Relation, nodes []*graphNode) (*Loaded, error) {
	tuples, err := loadMerged(ctx, root, nodes)
	if err != nil {
		return nil, err
	}
	values, mapped, err := root.mapTuples(tuples)
	if err != nil {
		return nil, err
	}
	return newLoaded(root.Name(), tuples, values, mapped), nil
}

// eagerSeq adapts an eagerly materializing variant into a restartable
// value sequence.
func eagerSeq(ctx context.Context, c Composable) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		loaded, err := c.Call(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, v := range loaded.Collection() {
			if !yield(v, nil) {
				return
			}
		}
	}
}

// collectAll materializes a variant and returns its output collection.
func collectAll(ctx context.Context, c Composable) ([]any, error) {
	loaded, err := c.Call(ctx)
	if err != nil {
		return nil, err
	}
	return loaded.Collection(), nil
}

