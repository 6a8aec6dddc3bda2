package relation

import (
	"context"
	"iter"

	"github.com/relmap/relmap/pkg/mapping"
)

// Composite queues mappers over a relation variant without touching it.
// Stages resolve and apply only at materialization, in queue order, so
// a pipeline referencing an unregistered mapper fails at Call, not at
// composition.
type Composite struct {
	source  Composable
	mappers *mapping.Registry
	stages  []compositeStage
}

// compositeStage is either a registry name resolved at call time or an
// inline mapper.
type compositeStage struct {
	name   string
	mapper mapping.Mapper
}

var _ Composable = (*Composite)(nil)

func newComposite(source Composable, reg *mapping.Registry, names ...string) *Composite {
	stages := make([]compositeStage, 0, len(names))
	for _, name := range names {
		stages = append(stages, compositeStage{name: name})
	}
	return &Composite{source: source, mappers: reg, stages: stages}
}

// Name returns the source variant's name.
func (c *Composite) Name() string { return c.source.Name() }

// Source returns the variant the pipeline materializes.
func (c *Composite) Source() Composable { return c.source }

// Stages returns the queued stage names; inline mappers report as "-".
func (c *Composite) Stages() []string {
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		if s.name != "" {
			names[i] = s.name
		} else {
			names[i] = "-"
		}
	}
	return names
}

func (c *Composite) with(extra ...compositeStage) *Composite {
	stages := make([]compositeStage, 0, len(c.stages)+len(extra))
	stages = append(stages, c.stages...)
	stages = append(stages, extra...)
	return &Composite{source: c.source, mappers: c.mappers, stages: stages}
}

// MapWith queues further named mappers onto the pipeline.
func (c *Composite) MapWith(names ...string) *Composite {
	extra := make([]compositeStage, 0, len(names))
	for _, name := range names {
		extra = append(extra, compositeStage{name: name})
	}
	return c.with(extra...)
}

// Pipe queues an inline mapper onto the pipeline.
func (c *Composite) Pipe(m mapping.Mapper) *Composite {
	return c.with(compositeStage{mapper: m})
}

// Call materializes the source, then applies every queued stage in
// order over the output collection.
func (c *Composite) Call(ctx context.Context) (*Loaded, error) {
	loaded, err := c.source.Call(ctx)
	if err != nil {
		return nil, err
	}
	values := loaded.Collection()
	for _, s := range c.stages {
		mapper := s.mapper
		if mapper == nil {
			if c.mappers == nil {
				return nil, mapping.NewMapperNotFoundErr(s.name)
			}
			if mapper, err = c.mappers.Get(s.name); err != nil {
				return nil, err
			}
		}
		if values, err = mapper.Call(values); err != nil {
			return nil, err
		}
	}
	return newLoaded(c.Name(), loaded.Tuples(), values, true), nil
}

// Each yields the mapped output values. Pipelines materialize eagerly;
// the sequence reloads on every range.
func (c *Composite) Each(ctx context.Context) iter.Seq2[any, error] {
	return eagerSeq(ctx, c)
}

// All materializes the pipeline and returns its output collection.
func (c *Composite) All(ctx context.Context) ([]any, error) {
	return collectAll(ctx, c)
}
