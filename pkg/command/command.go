// Package command implements the write side over relations: insert,
// update and delete commands that coerce values through the relation's
// schema before touching the dataset. Commands are bound to a relation
// at construction and reusable across calls.
package command

import (
	"context"

	log "github.com/relmap/relmap/internal/logging"
	"github.com/relmap/relmap/pkg/dataset"
	"github.com/relmap/relmap/pkg/relation"
	"github.com/relmap/relmap/pkg/tuple"
)

// Create inserts tuples through a relation. Input values coerce through
// the relation's input transform, so read names map back to storage
// names and typos in attribute keys fail loudly. Inserted rows echo
// back through the output transform: callers observe exactly what a
// subsequent read would return.
type Create struct {
	relation *relation.Relation
}

// NewCreate builds a create command over the relation.
func NewCreate(rel *relation.Relation) *Create {
	return &Create{relation: rel}
}

// Relation returns the relation the command writes through.
func (c *Create) Relation() *relation.Relation { return c.relation }

// Call inserts the given tuples in order, stopping at the first
// failure, and returns the rows as a reader would see them.
func (c *Create) Call(ctx context.Context, tuples ...tuple.Tuple) ([]tuple.Tuple, error) {
	in := c.relation.InputTransform()
	out := c.relation.OutputTransform()
	ds := c.relation.Dataset()

	inserted := make([]tuple.Tuple, 0, len(tuples))
	for _, t := range tuples {
		coerced, err := in(t)
		if err != nil {
			return nil, err
		}
		if err := ds.Insert(ctx, coerced); err != nil {
			return nil, err
		}
		echoed, err := out(coerced)
		if err != nil {
			return nil, err
		}
		inserted = append(inserted, echoed)
	}
	log.Trace().Str("relation", c.relation.Name()).Int("tuples", len(inserted)).Msg("created tuples")
	return inserted, nil
}

// Update merges changes into every stored tuple matching the criteria.
// The relation's dataset must be writable. Changes coerce through the
// input transform; criteria address storage attribute names.
type Update struct {
	relation *relation.Relation
}

// NewUpdate builds an update command over the relation.
func NewUpdate(rel *relation.Relation) *Update {
	return &Update{relation: rel}
}

// Relation returns the relation the command writes through.
func (u *Update) Relation() *relation.Relation { return u.relation }

// Call applies the changes and returns how many stored tuples matched.
func (u *Update) Call(ctx context.Context, criteria dataset.Criteria, changes tuple.Tuple) (int, error) {
	writable, ok := u.relation.Dataset().(dataset.Writable)
	if !ok {
		return 0, NewNotWritableErr(u.relation.Name(), "update")
	}
	coerced, err := u.relation.InputTransform()(changes)
	if err != nil {
		return 0, err
	}
	return writable.Update(ctx, criteria, coerced)
}

// Delete removes every stored tuple matching the criteria. The
// relation's dataset must be writable.
type Delete struct {
	relation *relation.Relation
}

// NewDelete builds a delete command over the relation.
func NewDelete(rel *relation.Relation) *Delete {
	return &Delete{relation: rel}
}

// Relation returns the relation the command writes through.
func (d *Delete) Relation() *relation.Relation { return d.relation }

// Call removes matching tuples and returns how many were deleted.
func (d *Delete) Call(ctx context.Context, criteria dataset.Criteria) (int, error) {
	writable, ok := d.relation.Dataset().(dataset.Writable)
	if !ok {
		return 0, NewNotWritableErr(d.relation.Name(), "delete")
	}
	return writable.Delete(ctx, criteria)
}
