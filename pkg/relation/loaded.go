package relation

import (
	"fmt"

	"github.com/relmap/relmap/pkg/tuple"
)

// Loaded is the terminal snapshot a relation materializes into: the
// output tuples in order, plus the mapped values when a mapper ran.
// Mappers own the output cardinality, so the collection may hold fewer,
// more, or zero values regardless of how many tuples loaded. Snapshots
// never reload; calling the relation again produces a new one.
type Loaded struct {
	name   string
	tuples []tuple.Tuple
	values []any
	mapped bool
}

func newLoaded(name string, tuples []tuple.Tuple, values []any, mapped bool) *Loaded {
	return &Loaded{name: name, tuples: tuples, values: values, mapped: mapped}
}

// NewLoaded builds a snapshot from already materialized tuples, mostly
// useful to custom preload strategies that synthesize rows.
func NewLoaded(name string, tuples []tuple.Tuple) *Loaded {
	return newLoaded(name, tuples, nil, false)
}

// Name returns the name of the relation that produced this snapshot.
func (l *Loaded) Name() string { return l.name }

// Len returns the number of materialized tuples. A mapper may have
// produced a collection of a different length.
func (l *Loaded) Len() int { return len(l.tuples) }

// Empty reports whether the collection holds no values.
func (l *Loaded) Empty() bool {
	if l.mapped {
		return len(l.values) == 0
	}
	return len(l.tuples) == 0
}

// Tuples returns the materialized output tuples in dataset order. The
// slice is owned by the snapshot; treat it as read-only.
func (l *Loaded) Tuples() []tuple.Tuple { return l.tuples }

// Collection returns the mapped values when a mapper ran, nil output
// included, and the output tuples otherwise.
func (l *Loaded) Collection() []any {
	if l.mapped {
		return l.values
	}
	out := make([]any, len(l.tuples))
	for i, t := range l.tuples {
		out[i] = t
	}
	return out
}

// First returns the first value of the collection, nil when empty.
func (l *Loaded) First() any {
	c := l.Collection()
	if len(c) == 0 {
		return nil
	}
	return c[0]
}

// One returns the only value of the collection, failing otherwise.
func (l *Loaded) One() (any, error) {
	c := l.Collection()
	if len(c) != 1 {
		return nil, fmt.Errorf("relation `%s` loaded %d values, expected exactly one", l.name, len(c))
	}
	return c[0], nil
}

// Pluck extracts the named attribute from every tuple, in order.
func (l *Loaded) Pluck(name string) []any {
	return tuple.Pluck(l.tuples, name)
}
