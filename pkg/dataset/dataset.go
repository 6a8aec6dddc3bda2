// Package dataset defines the contracts between relations and storage
// adapters. A gateway hands out datasets; a dataset is a lazy tuple
// source supporting restriction, projection and ordering, evaluated
// when Each is consumed. Adapters implement these interfaces; the
// relation engine stays backend-agnostic.
package dataset

import (
	"context"
	"iter"

	"github.com/relmap/relmap/pkg/tuple"
)

// Criteria restricts tuples by attribute value: a plain value matches
// by normalized equality, a []any value matches when the tuple value
// equals any of its elements.
type Criteria map[string]any

// Matches reports whether the tuple satisfies every criterion.
func (c Criteria) Matches(t tuple.Tuple) bool {
	for name, want := range c {
		got, ok := t[name]
		if !ok {
			return false
		}
		if !criterionMatches(got, want) {
			return false
		}
	}
	return true
}

func criterionMatches(got, want any) bool {
	if in, ok := want.([]any); ok {
		for _, candidate := range in {
			if tuple.ValuesEqual(got, candidate) {
				return true
			}
		}
		return false
	}
	return tuple.ValuesEqual(got, want)
}

// Predicate is an arbitrary tuple filter for restrictions Criteria
// cannot express.
type Predicate func(tuple.Tuple) bool

// Dataset is a lazy tuple source. Restriction, projection and ordering
// return derived datasets without touching the receiver; nothing is
// read until Each is consumed. Each must be restartable: every call
// yields the full sequence again.
type Dataset interface {
	Each(ctx context.Context) iter.Seq2[tuple.Tuple, error]
	Restrict(criteria Criteria) Dataset
	RestrictFn(pred Predicate) Dataset
	Project(names ...string) Dataset
	Order(names ...string) Dataset
	Insert(ctx context.Context, t tuple.Tuple) error
}

// Writable extends Dataset with in-place mutation, implemented by
// adapters that can address stored tuples.
type Writable interface {
	Dataset
	Update(ctx context.Context, criteria Criteria, changes tuple.Tuple) (int, error)
	Delete(ctx context.Context, criteria Criteria) (int, error)
}

// Gateway hands out named datasets, lazily creating empty ones for
// names never written to.
type Gateway interface {
	Dataset(name string) Dataset
}

// All materializes every tuple of the dataset, stopping at the first
// error.
func All(ctx context.Context, ds Dataset) ([]tuple.Tuple, error) {
	var out []tuple.Tuple
	for t, err := range ds.Each(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
