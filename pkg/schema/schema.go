// Package schema implements the typed attribute model relations are
// built on: type descriptors with coercion, immutable attributes,
// ordered schemas with one-time finalization, and the associations
// that drive eager loading.
//
// Schemas are built incrementally with Define and frozen with Finalize,
// a one-time idempotent transition that resolves the primary key and
// makes the schema safe to share between relations and goroutines.
package schema

import (
	"fmt"
	"iter"
	"slices"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/rs/zerolog"

	"github.com/relmap/relmap/pkg/ast"
	"github.com/relmap/relmap/pkg/tuple"
)

// Schema is an ordered collection of uniquely named attributes plus the
// associations defined alongside them. A schema starts unfinalized;
// Finalize resolves primary-key metadata and freezes it.
type Schema struct {
	name         string
	attributes   []Attribute
	index        map[string]int
	associations *AssociationSet

	// primaryKey is nil until resolved by Finalize or snapshotted from
	// the source schema by Project.
	primaryKey []string
	finalized  bool
}

// Option customizes a schema at definition time.
type Option func(*Schema)

// WithAssociations declares the schema's associations in order.
func WithAssociations(assocs ...Association) Option {
	return func(s *Schema) {
		for _, assoc := range assocs {
			s.associations.add(assoc)
		}
	}
}

// Define builds an unfinalized schema from attributes in definition
// order. Attribute names must be unique.
func Define(name string, attrs []Attribute, opts ...Option) (*Schema, error) {
	s := &Schema{
		name:         name,
		attributes:   make([]Attribute, 0, len(attrs)),
		index:        make(map[string]int, len(attrs)),
		associations: newAssociationSet(name),
	}
	for _, attr := range attrs {
		if _, exists := s.index[attr.name]; exists {
			return nil, NewAttributeAlreadyDefinedErr(name, attr.name)
		}
		s.index[attr.name] = len(s.attributes)
		s.attributes = append(s.attributes, attr.withSource(name))
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// MustDefine is Define that panics on error, for tests and static
// schema declarations.
func MustDefine(name string, attrs []Attribute, opts ...Option) *Schema {
	s, err := Define(name, attrs, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the schema name, which doubles as the relation name.
func (s *Schema) Name() string { return s.name }

// Len returns the number of attributes.
func (s *Schema) Len() int { return len(s.attributes) }

// Finalized reports whether Finalize has run.
func (s *Schema) Finalized() bool { return s.finalized }

// Finalize resolves primary-key metadata and freezes the schema. It is
// idempotent and returns the receiver for chaining. Projections that
// already carry a primary-key snapshot keep it.
func (s *Schema) Finalize() *Schema {
	if s.finalized {
		return s
	}
	if s.primaryKey == nil {
		s.primaryKey = s.scanPrimaryKey()
	}
	s.finalized = true
	return s
}

func (s *Schema) scanPrimaryKey() []string {
	pk := make([]string, 0, 1)
	for _, attr := range s.attributes {
		if attr.IsPrimaryKey() {
			pk = append(pk, attr.name)
		}
	}
	return pk
}

// PrimaryKeyNames returns the attribute names flagged primary_key, in
// definition order. The schema must be finalized.
func (s *Schema) PrimaryKeyNames() ([]string, error) {
	if !s.finalized {
		return nil, NewSchemaNotFinalizedErr(s.name, "PrimaryKeyNames")
	}
	return slices.Clone(s.primaryKey), nil
}

// PrimaryKeyName returns the first primary-key attribute name.
func (s *Schema) PrimaryKeyName() (string, error) {
	names, err := s.PrimaryKeyNames()
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("schema `%s` defines no primary key", s.name)
	}
	return names[0], nil
}

// Attribute returns the named attribute.
func (s *Schema) Attribute(name string) (Attribute, error) {
	if i, ok := s.index[name]; ok {
		return s.attributes[i], nil
	}
	return Attribute{}, NewAttributeNotFoundErr(s.name, name)
}

// Has reports whether the schema defines the named attribute.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Project returns a new schema keeping only the named attributes, in
// the order given. Primary-key metadata resolved from this schema is
// snapshotted onto the projection, so it survives even when the key
// attributes themselves are dropped.
func (s *Schema) Project(names ...string) (*Schema, error) {
	attrs := make([]Attribute, 0, len(names))
	for _, name := range names {
		attr, err := s.Attribute(name)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}

	projected, err := Define(s.name, attrs)
	if err != nil {
		return nil, err
	}
	projected.associations = s.associations
	projected.primaryKey = s.snapshotPrimaryKey()
	projected.finalized = s.finalized
	return projected, nil
}

func (s *Schema) snapshotPrimaryKey() []string {
	if s.primaryKey != nil {
		return slices.Clone(s.primaryKey)
	}
	return s.scanPrimaryKey()
}

// All returns the attributes in definition order.
func (s *Schema) All() []Attribute {
	return slices.Clone(s.attributes)
}

// Names returns attribute names in definition order.
func (s *Schema) Names() []string {
	names := make([]string, 0, len(s.attributes))
	for _, attr := range s.attributes {
		names = append(names, attr.name)
	}
	return names
}

// Each iterates attributes in definition order.
func (s *Schema) Each() iter.Seq[Attribute] {
	return slices.Values(s.attributes)
}

// Any reports whether any attribute satisfies pred.
func (s *Schema) Any(pred func(Attribute) bool) bool {
	return slices.ContainsFunc(s.attributes, pred)
}

// Associations returns the schema's association set.
func (s *Schema) Associations() *AssociationSet {
	return s.associations
}

// ToMap returns the attributes as an ordered map keyed by name, in
// definition order.
func (s *Schema) ToMap() *linkedhashmap.Map {
	m := linkedhashmap.New()
	for _, attr := range s.attributes {
		m.Put(attr.name, attr)
	}
	return m
}

// ToAST returns the serializable schema node
// (schema name [attribute-nodes...]) in definition order.
func (s *Schema) ToAST() ast.Node {
	attrs := make([]ast.Node, 0, len(s.attributes))
	for _, attr := range s.attributes {
		attrs = append(attrs, attr.ReadAST())
	}
	return ast.New("schema", s.name, attrs)
}

// FromAST reconstructs a schema from its AST node, as exchanged during
// mapper negotiation. The result is unfinalized and carries no
// associations.
func FromAST(node ast.Node) (*Schema, error) {
	if node.Tag != "schema" || len(node.Args) != 2 {
		return nil, fmt.Errorf("malformed schema node `%s`", node)
	}
	name, ok := node.Args[0].(string)
	if !ok {
		return nil, fmt.Errorf("malformed schema node `%s`", node)
	}
	attrs, err := AttributesFromAST(node.Args[1])
	if err != nil {
		return nil, fmt.Errorf("malformed schema node `%s`: %w", node, err)
	}
	return Define(name, attrs)
}

// AttributesFromAST decodes an attribute list argument of a schema or
// relation node back into attributes.
func AttributesFromAST(arg any) ([]Attribute, error) {
	children, err := attributeNodes(arg)
	if err != nil {
		return nil, err
	}
	attrs := make([]Attribute, 0, len(children))
	for _, child := range children {
		attr, err := attributeFromAST(child)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

// attributeNodes accepts both the in-process []ast.Node shape and the
// []any shape produced by JSON decoding.
func attributeNodes(arg any) ([]ast.Node, error) {
	switch list := arg.(type) {
	case []ast.Node:
		return list, nil
	case []any:
		children := make([]ast.Node, 0, len(list))
		for _, item := range list {
			child, ok := item.(ast.Node)
			if !ok {
				return nil, fmt.Errorf("unexpected attribute list entry %T", item)
			}
			children = append(children, child)
		}
		return children, nil
	default:
		return nil, fmt.Errorf("unexpected attribute list %T", arg)
	}
}

// MarshalZerologObject implements zerolog object marshalling.
func (s *Schema) MarshalZerologObject(e *zerolog.Event) {
	e.Str("schema", s.name).
		Int("attributes", len(s.attributes)).
		Bool("finalized", s.finalized)
}

// Transform is a pure tuple-to-tuple function derived from a schema.
type Transform func(tuple.Tuple) (tuple.Tuple, error)

// OutputTransform derives the read-side transform: hidden attributes
// drop, aliased attributes rename to their read name, and values coerce
// to their declared types. Attributes absent from the input tuple stay
// absent.
func (s *Schema) OutputTransform() Transform {
	attrs := slices.Clone(s.attributes)
	return func(t tuple.Tuple) (tuple.Tuple, error) {
		out := make(tuple.Tuple, len(attrs))
		for _, attr := range attrs {
			if !attr.Readable() {
				continue
			}
			raw, ok := t[attr.name]
			if !ok {
				continue
			}
			coerced, err := attr.Coerce(raw)
			if err != nil {
				return nil, err
			}
			out[attr.ReadName()] = coerced
		}
		return out, nil
	}
}

// InputTransform derives the write-side transform: values keyed by read
// name (or storage name) coerce and map back to storage names. Keys the
// schema does not define are rejected so typos fail loudly.
func (s *Schema) InputTransform() Transform {
	attrs := slices.Clone(s.attributes)
	schemaName := s.name
	return func(t tuple.Tuple) (tuple.Tuple, error) {
		out := make(tuple.Tuple, len(t))
		seen := make(map[string]string, len(t))
		for _, attr := range attrs {
			raw, ok := t[attr.ReadName()]
			if ok {
				seen[attr.ReadName()] = attr.name
			} else if raw, ok = t[attr.name]; ok {
				seen[attr.name] = attr.name
			} else {
				continue
			}
			coerced, err := attr.Coerce(raw)
			if err != nil {
				return nil, err
			}
			out[attr.name] = coerced
		}
		for key := range t {
			if _, ok := seen[key]; !ok {
				return nil, NewAttributeNotFoundErr(schemaName, key)
			}
		}
		return out, nil
	}
}
