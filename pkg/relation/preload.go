package relation

import (
	"context"
	"fmt"

	"github.com/relmap/relmap/pkg/dataset"
	"github.com/relmap/relmap/pkg/schema"
	"github.com/relmap/relmap/pkg/tuple"
)

// preloadFn loads the child rows for a materialized parent snapshot.
type preloadFn func(ctx context.Context, parent *Loaded) (*Loaded, error)

// loadFunc materializes an association target under a criteria
// restriction, including any nested combines resolved onto it.
type loadFunc func(ctx context.Context, criteria dataset.Criteria) ([]tuple.Tuple, error)

// mergeFunc attaches child rows onto freshly materialized parent tuples
// under the association name.
type mergeFunc func(parents, children []tuple.Tuple)

// EagerLoad returns the association's loading strategy as a curried
// operation awaiting one argument, the materialized parent *Loaded.
// Associations flagged for override dispatch to the target relation's
// preloader; everything else takes the default key join. Nested
// arguments combine further associations onto the target before it
// loads. All lookups the load will need, the target and through
// relations and the primary keys joined on, resolve here, before any
// dataset I/O can happen.
func (r *Relation) EagerLoad(assoc schema.Association, nested ...any) (*Curried, error) {
	loader, _, err := r.eagerLoad(assoc, nested)
	return loader, err
}

// eagerLoad resolves both halves of a combine node: the curried loader
// and the merge strategy reuniting its rows with the parents.
func (r *Relation) eagerLoad(assoc schema.Association, nested []any) (*Curried, mergeFunc, error) {
	target, err := r.relationFor(assoc.Target())
	if err != nil {
		return nil, nil, err
	}

	var load preloadFn
	var merge mergeFunc
	if assoc.Kind() == schema.KindManyToMany {
		load, merge, err = r.throughStrategy(assoc, target, nested)
	} else {
		load, merge, err = r.keyJoinStrategy(assoc, target, nested)
	}
	if err != nil {
		return nil, nil, err
	}

	if assoc.IsOverride() {
		if len(nested) > 0 {
			return nil, nil, NewNestedOverrideErr(assoc.Name())
		}
		if target.preloader == nil {
			return nil, nil, NewNoPreloaderErr(target.Name(), assoc.Name())
		}
		preloader := target.preloader
		load = func(ctx context.Context, parent *Loaded) (*Loaded, error) {
			return preloader(ctx, target, assoc, parent)
		}
	}

	loader := NewCurried("preload:"+assoc.Name(), 1, func(ctx context.Context, args []any) (*Loaded, error) {
		parent, err := parentArg(args)
		if err != nil {
			return nil, err
		}
		return load(ctx, parent)
	})
	return loader, merge, nil
}

func parentArg(args []any) (*Loaded, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("preload takes the parent snapshot, got %d argument(s)", len(args))
	}
	parent, ok := args[0].(*Loaded)
	if !ok {
		return nil, fmt.Errorf("preload takes the parent *Loaded, got %T", args[0])
	}
	return parent, nil
}

// keyJoinStrategy covers one-to-many, one-to-one and many-to-one: pluck
// the join keys off the parents, load the target restricted to them,
// merge child rows back by key.
func (r *Relation) keyJoinStrategy(assoc schema.Association, target *Relation, nested []any) (preloadFn, mergeFunc, error) {
	var sourcePK, targetPK string
	var err error
	if assoc.Kind() == schema.KindManyToOne {
		if targetPK, err = target.schema.PrimaryKeyName(); err != nil {
			return nil, nil, err
		}
	} else {
		if sourcePK, err = r.schema.PrimaryKeyName(); err != nil {
			return nil, nil, err
		}
	}
	parentKey, childKey := assoc.CombineKeys(sourcePK, targetPK)
	parentRead := readNameFor(r.schema, parentKey)
	childRead := readNameFor(target.schema, childKey)

	loadTarget, err := targetLoader(target, nested)
	if err != nil {
		return nil, nil, err
	}

	load := func(ctx context.Context, parent *Loaded) (*Loaded, error) {
		keys := tuple.PluckUnique(parent.Tuples(), parentRead)
		if len(keys) == 0 {
			return newLoaded(target.Name(), nil, nil, false), nil
		}
		rows, err := loadTarget(ctx, dataset.Criteria{childKey: keys})
		if err != nil {
			return nil, err
		}
		return newLoaded(target.Name(), rows, nil, false), nil
	}

	var merge mergeFunc
	if assoc.ToMany() {
		merge = mergeToMany(assoc.Name(), parentRead, childRead)
	} else {
		merge = mergeToOne(assoc.Name(), parentRead, childRead)
	}
	return load, merge, nil
}

// throughStrategy covers many-to-many: walk the through relation for
// (source, target) key pairs, load the targets by primary key, then
// stamp each child row with the source key it joins back on, the way a
// joined query would surface it.
func (r *Relation) throughStrategy(assoc schema.Association, target *Relation, nested []any) (preloadFn, mergeFunc, error) {
	through, err := r.relationFor(assoc.Through())
	if err != nil {
		return nil, nil, err
	}
	sourcePK, err := r.schema.PrimaryKeyName()
	if err != nil {
		return nil, nil, err
	}
	targetPK, err := target.schema.PrimaryKeyName()
	if err != nil {
		return nil, nil, err
	}
	sourceFK, targetFK := assoc.ThroughKeys()
	parentRead := readNameFor(r.schema, sourcePK)
	sourceFKRead := readNameFor(through.schema, sourceFK)
	targetFKRead := readNameFor(through.schema, targetFK)
	targetPKRead := readNameFor(target.schema, targetPK)

	loadTarget, err := targetLoader(target, nested)
	if err != nil {
		return nil, nil, err
	}

	load := func(ctx context.Context, parent *Loaded) (*Loaded, error) {
		keys := tuple.PluckUnique(parent.Tuples(), parentRead)
		if len(keys) == 0 {
			return newLoaded(target.Name(), nil, nil, false), nil
		}
		pairs, err := through.Restrict(dataset.Criteria{sourceFK: keys}).loadTuples(ctx)
		if err != nil {
			return nil, err
		}
		targetKeys := tuple.PluckUnique(pairs, targetFKRead)
		if len(targetKeys) == 0 {
			return newLoaded(target.Name(), nil, nil, false), nil
		}
		rows, err := loadTarget(ctx, dataset.Criteria{targetPK: targetKeys})
		if err != nil {
			return nil, err
		}
		index := tuple.IndexBy(rows, targetPKRead)
		children := make([]tuple.Tuple, 0, len(pairs))
		for _, pair := range pairs {
			row, ok := index[tuple.NormalizeKey(pair[targetFKRead])]
			if !ok {
				continue
			}
			child := row.Clone()
			child[sourceFKRead] = pair[sourceFKRead]
			children = append(children, child)
		}
		return newLoaded(target.Name(), children, nil, false), nil
	}

	return load, mergeToMany(assoc.Name(), parentRead, sourceFKRead), nil
}

// targetLoader builds the closure loading the target under a criteria
// restriction. Nested combine arguments resolve onto the target now, so
// a bad nested name fails before anything loads.
func targetLoader(target *Relation, nested []any) (loadFunc, error) {
	if len(nested) == 0 {
		return func(ctx context.Context, criteria dataset.Criteria) ([]tuple.Tuple, error) {
			return target.Restrict(criteria).loadTuples(ctx)
		}, nil
	}
	subgraph, err := target.Combine(nested...)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, criteria dataset.Criteria) ([]tuple.Tuple, error) {
		return subgraph.withRoot(subgraph.root.Restrict(criteria)).loadTuples(ctx)
	}, nil
}

// readNameFor maps a storage attribute name to the key it appears under
// in output tuples. Names the schema does not define pass through.
func readNameFor(sch *schema.Schema, name string) string {
	attr, err := sch.Attribute(name)
	if err != nil {
		return name
	}
	return attr.ReadName()
}

// mergeToMany groups children by childKey and attaches each group to
// the parents sharing that key. Parents with no children get an empty,
// non-nil group.
func mergeToMany(name, parentKey, childKey string) mergeFunc {
	return func(parents, children []tuple.Tuple) {
		grouped := tuple.GroupBy(children, childKey)
		for _, parent := range parents {
			group := grouped[tuple.NormalizeKey(parent[parentKey])]
			if group == nil {
				group = []tuple.Tuple{}
			}
			parent[name] = group
		}
	}
}

// mergeToOne indexes children by childKey and attaches the match to
// each parent, nil when absent.
func mergeToOne(name, parentKey, childKey string) mergeFunc {
	return func(parents, children []tuple.Tuple) {
		index := tuple.IndexBy(children, childKey)
		for _, parent := range parents {
			if child, ok := index[tuple.NormalizeKey(parent[parentKey])]; ok {
				parent[name] = child
			} else {
				parent[name] = nil
			}
		}
	}
}
