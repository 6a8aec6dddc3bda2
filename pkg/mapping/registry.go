package mapping

import (
	"fmt"
	"reflect"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/relmap/relmap/pkg/ast"
)

const (
	errRegistryInitialization = "error initializing mapper registry: %w"

	prometheusNamespace = "relmap"
)

// Registry resolves mappers three ways: by registered name for
// pipelines, by exact relation AST for custom mappers, and by building
// a struct mapper from an AST on demand. Built mappers cache under
// their AST digest and model type, so structurally identical relations
// share one mapper no matter where their nodes came from. All lookups
// are safe for concurrent use.
type Registry struct {
	named  *xsync.Map[string, Mapper]
	custom *xsync.Map[uint64, Mapper]
	built  *xsync.Map[string, Mapper]

	buildsTotal prometheus.Counter
	hitsTotal   prometheus.Counter
}

// RegistryOption customizes registry construction.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	prometheusSubsystem string
}

// WithPrometheusSubsystem registers the registry's counters under the
// given subsystem against the default prometheus registerer. Counters
// stay unregistered when the subsystem is empty.
func WithPrometheusSubsystem(subsystem string) RegistryOption {
	return func(cfg *registryConfig) { cfg.prometheusSubsystem = subsystem }
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	cfg := registryConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	buildsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: prometheusNamespace,
		Subsystem: cfg.prometheusSubsystem,
		Name:      "struct_builds_total",
	})
	hitsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: prometheusNamespace,
		Subsystem: cfg.prometheusSubsystem,
		Name:      "cache_hits_total",
	})

	if cfg.prometheusSubsystem != "" {
		if err := prometheus.Register(buildsTotal); err != nil {
			return nil, fmt.Errorf(errRegistryInitialization, err)
		}
		if err := prometheus.Register(hitsTotal); err != nil {
			return nil, fmt.Errorf(errRegistryInitialization, err)
		}
	}

	return &Registry{
		named:       xsync.NewMap[string, Mapper](),
		custom:      xsync.NewMap[uint64, Mapper](),
		built:       xsync.NewMap[string, Mapper](),
		buildsTotal: buildsTotal,
		hitsTotal:   hitsTotal,
	}, nil
}

// MustNewRegistry is NewRegistry for static configuration, panicking on
// failure.
func MustNewRegistry(opts ...RegistryOption) *Registry {
	reg, err := NewRegistry(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create mapper registry: %v", err))
	}
	return reg
}

// Register binds a mapper to a name for pipeline lookups. Registering a
// name twice fails.
func (r *Registry) Register(name string, m Mapper) error {
	if _, loaded := r.named.LoadOrStore(name, m); loaded {
		return fmt.Errorf("mapper `%s` already registered", name)
	}
	return nil
}

// Get returns the mapper registered under name.
func (r *Registry) Get(name string) (Mapper, error) {
	if m, ok := r.named.Load(name); ok {
		return m, nil
	}
	return nil, NewMapperNotFoundErr(name)
}

// RegisterAST binds a custom mapper to the exact relation structure the
// node describes. Relations with auto-mapping enabled pick it up by
// digest.
func (r *Registry) RegisterAST(node ast.Node, m Mapper) {
	r.custom.Store(node.Digest(), m)
}

// Lookup returns the custom mapper registered for the node's structure.
func (r *Registry) Lookup(node ast.Node) (Mapper, bool) {
	return r.custom.Load(node.Digest())
}

// ForAST returns the struct mapper for the relation structure the node
// describes, building it at most once per (structure, model) pair. A
// nil model synthesizes the struct type from the node itself.
func (r *Registry) ForAST(node ast.Node, model any) (Mapper, error) {
	key := fmt.Sprintf("%016x/%s", node.Digest(), modelKey(model))

	var buildErr error
	mapper, loaded := r.built.LoadOrCompute(key, func() (newValue Mapper, cancel bool) {
		built, err := buildStructMapper(node, model)
		if err != nil {
			buildErr = err
			return nil, true
		}
		r.buildsTotal.Inc()
		return built, false
	})
	if buildErr != nil {
		return nil, buildErr
	}
	if loaded {
		r.hitsTotal.Inc()
	}
	return mapper, nil
}

func modelKey(model any) string {
	if model == nil {
		return "synthesized"
	}
	return reflect.TypeOf(model).String()
}

func buildStructMapper(node ast.Node, model any) (Mapper, error) {
	if model != nil {
		return NewStructMapper(model)
	}
	typ, err := StructTypeFromAST(node)
	if err != nil {
		return nil, err
	}
	return NewStructMapper(reflect.New(typ).Elem().Interface())
}
