// Package container assembles relations into an explicit registry. A
// Setup collects schema registrations, relation options and named
// mappers; Finalize validates the whole graph up front and yields an
// immutable Container resolving relations by name. There is no dynamic
// fallback: a name nobody registered fails with RelationNotFoundError,
// and an association pointing at an unregistered relation fails at
// Finalize rather than at first use.
package container

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v4"

	log "github.com/relmap/relmap/internal/logging"
	"github.com/relmap/relmap/pkg/dataset"
	"github.com/relmap/relmap/pkg/mapping"
	"github.com/relmap/relmap/pkg/relation"
	"github.com/relmap/relmap/pkg/schema"
)

// Setup accumulates registrations before the container is built.
// Methods return the receiver for chaining; Setup itself is not safe
// for concurrent use.
type Setup struct {
	gateway      dataset.Gateway
	registryOpts []mapping.RegistryOption
	relations    []registration
	mappers      []namedMapper
}

type registration struct {
	schema *schema.Schema
	opts   []relation.Option
}

type namedMapper struct {
	name   string
	mapper mapping.Mapper
}

// SetupOption customizes container assembly.
type SetupOption func(*Setup)

// WithRegistryOptions forwards options to the container's mapper
// registry, e.g. a prometheus subsystem.
func WithRegistryOptions(opts ...mapping.RegistryOption) SetupOption {
	return func(s *Setup) { s.registryOpts = append(s.registryOpts, opts...) }
}

// NewSetup starts assembling a container over the gateway.
func NewSetup(gw dataset.Gateway, opts ...SetupOption) *Setup {
	s := &Setup{gateway: gw}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a relation definition. The schema's name doubles as the
// gateway dataset name; the options apply to the relation built at
// Finalize.
func (s *Setup) Register(sch *schema.Schema, opts ...relation.Option) *Setup {
	s.relations = append(s.relations, registration{schema: sch, opts: opts})
	return s
}

// Mapper registers a named mapper for MapWith pipelines.
func (s *Setup) Mapper(name string, m mapping.Mapper) *Setup {
	s.mappers = append(s.mappers, namedMapper{name: name, mapper: m})
	return s
}

// Finalize validates the registered set and builds the container. Every
// schema finalizes, every association target and through relation must
// itself be registered, and every relation binds to its gateway dataset
// with the container as resolver. A Finalize that returns without error
// leaves no name to fail resolution later.
func (s *Setup) Finalize() (*Container, error) {
	registry, err := mapping.NewRegistry(s.registryOpts...)
	if err != nil {
		return nil, err
	}
	for _, nm := range s.mappers {
		if err := registry.Register(nm.name, nm.mapper); err != nil {
			return nil, err
		}
	}

	registered := make(map[string]struct{}, len(s.relations))
	for _, reg := range s.relations {
		name := reg.schema.Name()
		if _, dup := registered[name]; dup {
			return nil, fmt.Errorf("relation `%s` registered twice", name)
		}
		registered[name] = struct{}{}
	}

	for _, reg := range s.relations {
		for _, assoc := range reg.schema.Associations().All() {
			if _, ok := registered[assoc.Target()]; !ok {
				return nil, fmt.Errorf(
					"association `%s` of relation `%s`: %w",
					assoc.Name(), reg.schema.Name(), NewRelationNotFoundErr(assoc.Target()),
				)
			}
			if through := assoc.Through(); through != "" {
				if _, ok := registered[through]; !ok {
					return nil, fmt.Errorf(
						"association `%s` of relation `%s`: %w",
						assoc.Name(), reg.schema.Name(), NewRelationNotFoundErr(through),
					)
				}
			}
		}
	}

	c := &Container{
		gateway:   s.gateway,
		relations: xsync.NewMap[string, *relation.Relation](),
		names:     make([]string, 0, len(s.relations)),
		mappers:   registry,
	}
	for _, reg := range s.relations {
		sch := reg.schema.Finalize()
		opts := make([]relation.Option, 0, len(reg.opts)+2)
		opts = append(opts, relation.WithResolver(c), relation.WithMappers(registry))
		opts = append(opts, reg.opts...)
		rel := relation.New(s.gateway.Dataset(sch.Name()), sch, opts...)
		c.relations.Store(sch.Name(), rel)
		c.names = append(c.names, sch.Name())
	}

	log.Debug().Int("relations", len(c.names)).Int("mappers", len(s.mappers)).Msg("finalized container")
	return c, nil
}

// MustFinalize is Finalize for static configuration, panicking on
// failure.
func (s *Setup) MustFinalize() *Container {
	c, err := s.Finalize()
	if err != nil {
		panic(fmt.Sprintf("failed to finalize container: %v", err))
	}
	return c
}

// Container is the immutable relation registry handed to application
// code. It is safe for concurrent use.
type Container struct {
	gateway   dataset.Gateway
	relations *xsync.Map[string, *relation.Relation]
	names     []string
	mappers   *mapping.Registry
}

var _ relation.Resolver = (*Container)(nil)

// Relation returns the relation registered under name.
func (c *Container) Relation(name string) (*relation.Relation, error) {
	if rel, ok := c.relations.Load(name); ok {
		return rel, nil
	}
	return nil, NewRelationNotFoundErr(name)
}

// Names returns the registered relation names in registration order.
func (c *Container) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Mappers returns the container's mapper registry.
func (c *Container) Mappers() *mapping.Registry { return c.mappers }

// Gateway returns the storage gateway the container was built over.
func (c *Container) Gateway() dataset.Gateway { return c.gateway }
