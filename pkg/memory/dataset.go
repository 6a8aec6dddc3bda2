package memory

import (
	"context"
	"iter"
	"slices"

	"github.com/hashicorp/go-memdb"

	"github.com/relmap/relmap/pkg/dataset"
	"github.com/relmap/relmap/pkg/tuple"
)

type stageKind uint8

const (
	stageRestrict stageKind = iota
	stageProject
	stageOrder
)

// stage is one deferred pipeline step. Stages apply in derivation
// order when the dataset materializes.
type stage struct {
	kind     stageKind
	criteria dataset.Criteria
	pred     dataset.Predicate
	names    []string
}

// excludes reports whether a restriction stage rejects the tuple.
func (s stage) excludes(t tuple.Tuple) bool {
	if s.pred != nil {
		return !s.pred(t)
	}
	return !s.criteria.Matches(t)
}

// Dataset is a lazy view over one named tuple collection. Deriving
// operations append pipeline stages without copying data; nothing is
// read until Each runs, against a fresh snapshot each time.
type Dataset struct {
	gateway *Gateway
	name    string
	stages  []stage
}

var _ dataset.Writable = (*Dataset)(nil)

// Name returns the dataset name.
func (d *Dataset) Name() string { return d.name }

func (d *Dataset) derive(s stage) *Dataset {
	stages := make([]stage, len(d.stages), len(d.stages)+1)
	copy(stages, d.stages)
	return &Dataset{gateway: d.gateway, name: d.name, stages: append(stages, s)}
}

// Restrict narrows the view to tuples matching the criteria.
func (d *Dataset) Restrict(criteria dataset.Criteria) dataset.Dataset {
	return d.derive(stage{kind: stageRestrict, criteria: criteria})
}

// RestrictFn narrows the view with an arbitrary predicate.
func (d *Dataset) RestrictFn(pred dataset.Predicate) dataset.Dataset {
	return d.derive(stage{kind: stageRestrict, pred: pred})
}

// Project keeps only the named attributes of each tuple.
func (d *Dataset) Project(names ...string) dataset.Dataset {
	return d.derive(stage{kind: stageProject, names: slices.Clone(names)})
}

// Order sorts the view by the named attributes, nils last, stable with
// respect to insertion order.
func (d *Dataset) Order(names ...string) dataset.Dataset {
	return d.derive(stage{kind: stageOrder, names: slices.Clone(names)})
}

// Each yields the view's tuples. Every call materializes the pipeline
// over a fresh snapshot, so the sequence restarts from the beginning
// and writes committed after the first pull stay invisible.
func (d *Dataset) Each(ctx context.Context) iter.Seq2[tuple.Tuple, error] {
	return func(yield func(tuple.Tuple, error) bool) {
		rows, err := d.materialize(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, t := range rows {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(t, nil) {
				return
			}
		}
	}
}

func (d *Dataset) materialize(ctx context.Context) ([]tuple.Tuple, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	txn := d.gateway.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.Get(tableTuples, indexDataset, d.name)
	if err != nil {
		return nil, err
	}

	// Leading restrictions run inside the scan; everything after the
	// first non-restriction stage sees materialized tuples, in
	// derivation order.
	stages := d.stages
	var it memdb.ResultIterator = raw
	for len(stages) > 0 && stages[0].kind == stageRestrict {
		it = memdb.NewFilterIterator(it, excludeFilter(stages[0]))
		stages = stages[1:]
	}

	var rows []tuple.Tuple
	for obj := it.Next(); obj != nil; obj = it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows = append(rows, obj.(*row).data.Clone())
	}

	for _, s := range stages {
		switch s.kind {
		case stageRestrict:
			rows = slices.DeleteFunc(rows, s.excludes)
		case stageProject:
			for i, t := range rows {
				rows[i] = t.Project(s.names...)
			}
		case stageOrder:
			sortTuples(rows, s.names)
		}
	}
	return rows, nil
}

func excludeFilter(s stage) memdb.FilterFunc {
	return func(obj interface{}) bool {
		return s.excludes(obj.(*row).data)
	}
}

func sortTuples(rows []tuple.Tuple, names []string) {
	slices.SortStableFunc(rows, func(a, b tuple.Tuple) int {
		for _, name := range names {
			if c := tuple.Compare(a[name], b[name]); c != 0 {
				return c
			}
		}
		return 0
	})
}

// Insert appends the tuple to the underlying collection. Views created
// by Restrict/Project/Order write to the same base collection.
func (d *Dataset) Insert(ctx context.Context, t tuple.Tuple) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.gateway.insert(d.name, t)
}

// Update merges changes into every base tuple matching both the view's
// restrictions and the given criteria, returning the number updated.
func (d *Dataset) Update(ctx context.Context, criteria dataset.Criteria, changes tuple.Tuple) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	txn := d.gateway.db.Txn(true)
	defer txn.Abort()

	matches, err := d.matchingRows(txn, criteria)
	if err != nil {
		return 0, err
	}
	for _, r := range matches {
		updated := &row{dataset: r.dataset, seq: r.seq, data: r.data.Merge(changes)}
		if err := txn.Insert(tableTuples, updated); err != nil {
			return 0, err
		}
	}
	txn.Commit()

	d.gateway.log.Trace().Str("dataset", d.name).Int("tuples", len(matches)).Msg("updated tuples")
	return len(matches), nil
}

// Delete removes every base tuple matching both the view's restrictions
// and the given criteria, returning the number removed.
func (d *Dataset) Delete(ctx context.Context, criteria dataset.Criteria) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	txn := d.gateway.db.Txn(true)
	defer txn.Abort()

	matches, err := d.matchingRows(txn, criteria)
	if err != nil {
		return 0, err
	}
	for _, r := range matches {
		if err := txn.Delete(tableTuples, r); err != nil {
			return 0, err
		}
	}
	txn.Commit()

	d.gateway.log.Trace().Str("dataset", d.name).Int("tuples", len(matches)).Msg("deleted tuples")
	return len(matches), nil
}

// matchingRows collects rows up front so mutations never run under an
// open iterator.
func (d *Dataset) matchingRows(txn *memdb.Txn, criteria dataset.Criteria) ([]*row, error) {
	raw, err := txn.Get(tableTuples, indexDataset, d.name)
	if err != nil {
		return nil, err
	}

	var out []*row
	for obj := raw.Next(); obj != nil; obj = raw.Next() {
		r := obj.(*row)
		if d.viewMatches(r.data) && criteria.Matches(r.data) {
			out = append(out, r)
		}
	}
	return out, nil
}

// viewMatches applies the view's restriction stages only: projection
// and ordering never change which base tuples a mutation addresses.
func (d *Dataset) viewMatches(t tuple.Tuple) bool {
	for _, s := range d.stages {
		if s.kind == stageRestrict && s.excludes(t) {
			return false
		}
	}
	return true
}
