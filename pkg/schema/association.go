package schema

import (
	"strings"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/rs/zerolog"
)

// Kind enumerates the association shapes the relation engine can
// eager-load.
type Kind uint8

const (
	KindUnspecified Kind = iota
	KindOneToMany
	KindOneToOne
	KindManyToOne
	KindManyToMany
)

// String returns the conventional name of the association kind.
func (k Kind) String() string {
	switch k {
	case KindOneToMany:
		return "one_to_many"
	case KindOneToOne:
		return "one_to_one"
	case KindManyToOne:
		return "many_to_one"
	case KindManyToMany:
		return "many_to_many"
	default:
		return "unspecified"
	}
}

// Association describes a navigable link between two relations. Built
// once at schema-definition time, read-only thereafter.
type Association struct {
	name       string
	source     string
	target     string
	kind       Kind
	foreignKey string
	through    string
	override   bool
}

// AssociationOption customizes an association at definition time.
type AssociationOption func(*Association)

// WithTarget points the association at a relation whose name differs
// from the association name.
func WithTarget(relation string) AssociationOption {
	return func(a *Association) { a.target = relation }
}

// WithForeignKey overrides the conventional foreign-key attribute name.
func WithForeignKey(name string) AssociationOption {
	return func(a *Association) { a.foreignKey = name }
}

// WithOverride marks the association as served by the target relation's
// custom preloader instead of the default key-join strategy.
func WithOverride() AssociationOption {
	return func(a *Association) { a.override = true }
}

func newAssociation(name string, kind Kind, opts ...AssociationOption) Association {
	assoc := Association{name: name, target: name, kind: kind}
	for _, opt := range opts {
		opt(&assoc)
	}
	return assoc
}

// HasMany defines a one-to-many association: the target carries a
// foreign key pointing back at the owning schema.
func HasMany(name string, opts ...AssociationOption) Association {
	return newAssociation(name, KindOneToMany, opts...)
}

// HasOne defines a one-to-one association, loaded like HasMany but
// keeping a single nested tuple.
func HasOne(name string, opts ...AssociationOption) Association {
	return newAssociation(name, KindOneToOne, opts...)
}

// BelongsTo defines a many-to-one association: the owning schema
// carries the foreign key.
func BelongsTo(name string, opts ...AssociationOption) Association {
	return newAssociation(name, KindManyToOne, opts...)
}

// ManyToMany defines an association resolved through an intermediate
// relation holding a foreign key for each side.
func ManyToMany(name string, through string, opts ...AssociationOption) Association {
	assoc := newAssociation(name, KindManyToMany, opts...)
	assoc.through = through
	return assoc
}

// Name returns the association name used by node/combine/wrap calls.
func (a Association) Name() string { return a.name }

// Source returns the name of the schema that owns the association.
func (a Association) Source() string { return a.source }

// Target returns the name of the relation the association points at.
func (a Association) Target() string { return a.target }

// Kind returns the association shape.
func (a Association) Kind() Kind { return a.kind }

// Through returns the intermediate relation of a many-to-many
// association, empty otherwise.
func (a Association) Through() string { return a.through }

// IsOverride reports whether loading dispatches to a custom preloader.
func (a Association) IsOverride() bool { return a.override }

// ToMany reports whether the association loads a collection rather
// than a single nested tuple.
func (a Association) ToMany() bool {
	return a.kind == KindOneToMany || a.kind == KindManyToMany
}

func (a Association) withSource(source string) Association {
	a.source = source
	return a
}

// ForeignKey returns the explicitly configured foreign-key attribute
// name, or the conventional default for the association kind.
func (a Association) ForeignKey() string {
	if a.foreignKey != "" {
		return a.foreignKey
	}
	if a.kind == KindManyToOne {
		return ForeignKeyFor(a.target)
	}
	return ForeignKeyFor(a.source)
}

// CombineKeys returns the (source attribute, target attribute) pair
// that joins parent tuples to child tuples. The primary-key names come
// from the respective finalized schemas; many-to-many associations join
// through an intermediate relation instead, see ThroughKeys.
func (a Association) CombineKeys(sourcePK, targetPK string) (string, string) {
	if a.kind == KindManyToOne {
		return a.ForeignKey(), targetPK
	}
	return sourcePK, a.ForeignKey()
}

// ThroughKeys returns the foreign-key pair on the intermediate relation
// of a many-to-many association: the attribute referencing the source
// and the attribute referencing the target.
func (a Association) ThroughKeys() (string, string) {
	sourceFK := a.foreignKey
	if sourceFK == "" {
		sourceFK = ForeignKeyFor(a.source)
	}
	return sourceFK, ForeignKeyFor(a.target)
}

// MarshalZerologObject implements zerolog object marshalling.
func (a Association) MarshalZerologObject(e *zerolog.Event) {
	e.Str("name", a.name).
		Str("source", a.source).
		Str("target", a.target).
		Str("kind", a.kind.String()).
		Bool("override", a.override)
}

// ForeignKeyFor derives the conventional foreign-key attribute name for
// a relation: the singularized relation name suffixed with `_id`.
func ForeignKeyFor(relation string) string {
	return singularize(relation) + "_id"
}

func singularize(name string) string {
	switch {
	case strings.HasSuffix(name, "ies"):
		return strings.TrimSuffix(name, "ies") + "y"
	case strings.HasSuffix(name, "ches"), strings.HasSuffix(name, "shes"),
		strings.HasSuffix(name, "sses"), strings.HasSuffix(name, "xes"), strings.HasSuffix(name, "zes"):
		return strings.TrimSuffix(name, "es")
	case strings.HasSuffix(name, "s") && !strings.HasSuffix(name, "ss"):
		return strings.TrimSuffix(name, "s")
	default:
		return name
	}
}

// AssociationSet is the ordered collection of associations a schema
// defines. Read-only after the owning schema is built.
type AssociationSet struct {
	source string
	items  *linkedhashmap.Map
}

func newAssociationSet(source string) *AssociationSet {
	return &AssociationSet{source: source, items: linkedhashmap.New()}
}

func (s *AssociationSet) add(assoc Association) {
	s.items.Put(assoc.name, assoc.withSource(s.source))
}

// Get returns the named association.
func (s *AssociationSet) Get(name string) (Association, error) {
	if v, ok := s.items.Get(name); ok {
		return v.(Association), nil
	}
	return Association{}, NewAssociationNotFoundErr(s.source, name)
}

// Has reports whether the named association exists.
func (s *AssociationSet) Has(name string) bool {
	_, ok := s.items.Get(name)
	return ok
}

// Len returns the number of associations.
func (s *AssociationSet) Len() int { return s.items.Size() }

// Names returns association names in definition order.
func (s *AssociationSet) Names() []string {
	keys := s.items.Keys()
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, k.(string))
	}
	return names
}

// All returns associations in definition order.
func (s *AssociationSet) All() []Association {
	out := make([]Association, 0, s.items.Size())
	it := s.items.Iterator()
	for it.Next() {
		out = append(out, it.Value().(Association))
	}
	return out
}
