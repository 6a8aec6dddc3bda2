package schema

import (
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/relmap/relmap/pkg/ast"
)

// Metadata keys the engine interprets. Schemas carry any additional
// keys through untouched.
const (
	MetaPrimaryKey = "primary_key"
	MetaAlias      = "alias"
	MetaRead       = "read"
	MetaForeignKey = "foreign_key"
)

// Meta holds free-form attribute metadata.
type Meta map[string]any

func (m Meta) clone() Meta {
	out := make(Meta, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func metaEqual(a, b Meta) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || !reflect.DeepEqual(v, w) {
			return false
		}
	}
	return true
}

// Attribute pairs an attribute name with its type descriptor and
// metadata. Attributes are immutable values: every mutator returns a
// copy.
type Attribute struct {
	typ    Type
	name   string
	source string
	meta   Meta
}

// NewAttribute constructs an attribute of the given type.
func NewAttribute(name string, typ Type, opts ...AttributeOption) Attribute {
	attr := Attribute{name: name, typ: typ, meta: Meta{}}
	for _, opt := range opts {
		opt(&attr)
	}
	return attr
}

// AttributeOption customizes attribute metadata at construction time.
type AttributeOption func(*Attribute)

// PrimaryKey marks the attribute as part of the schema's primary key.
func PrimaryKey() AttributeOption {
	return func(a *Attribute) { a.meta[MetaPrimaryKey] = true }
}

// Aliased exposes the attribute under a different name in read output.
func Aliased(alias string) AttributeOption {
	return func(a *Attribute) { a.meta[MetaAlias] = alias }
}

// Hidden excludes the attribute from read output.
func Hidden() AttributeOption {
	return func(a *Attribute) { a.meta[MetaRead] = false }
}

// ForeignKey marks the attribute as referencing another relation's key.
func ForeignKey() AttributeOption {
	return func(a *Attribute) { a.meta[MetaForeignKey] = true }
}

// WithMeta merges arbitrary metadata at construction time.
func WithMeta(meta Meta) AttributeOption {
	return func(a *Attribute) {
		for k, v := range meta {
			a.meta[k] = v
		}
	}
}

// Name returns the attribute name as defined in the schema.
func (a Attribute) Name() string { return a.name }

// Type returns the attribute's type descriptor.
func (a Attribute) Type() Type { return a.typ }

// Source returns the name of the schema the attribute was defined in.
func (a Attribute) Source() string { return a.source }

// Meta returns a copy of the attribute metadata.
func (a Attribute) Meta() Meta { return a.meta.clone() }

// ReadName returns the alias when one is set, the attribute name
// otherwise. Output tuples key values by read name.
func (a Attribute) ReadName() string {
	if alias, ok := a.meta[MetaAlias].(string); ok && alias != "" {
		return alias
	}
	return a.name
}

// IsAliased reports whether the attribute is exposed under an alias.
func (a Attribute) IsAliased() bool {
	alias, ok := a.meta[MetaAlias].(string)
	return ok && alias != ""
}

// IsPrimaryKey reports whether the attribute is part of the primary key.
func (a Attribute) IsPrimaryKey() bool {
	pk, _ := a.meta[MetaPrimaryKey].(bool)
	return pk
}

// IsForeignKey reports whether the attribute references another
// relation's key.
func (a Attribute) IsForeignKey() bool {
	fk, _ := a.meta[MetaForeignKey].(bool)
	return fk
}

// Readable reports whether the attribute appears in read output. All
// attributes are readable unless the read flag was disabled.
func (a Attribute) Readable() bool {
	read, ok := a.meta[MetaRead].(bool)
	return !ok || read
}

// With returns a copy with the overrides merged into the metadata.
func (a Attribute) With(overrides Meta) Attribute {
	merged := a.meta.clone()
	for k, v := range overrides {
		merged[k] = v
	}
	a.meta = merged
	return a
}

func (a Attribute) withSource(source string) Attribute {
	a.source = source
	return a
}

// Coerce normalizes a raw value through the attribute's type.
func (a Attribute) Coerce(v any) (any, error) {
	coerced, err := a.typ.Coerce(v)
	if err != nil {
		return nil, fmt.Errorf("attribute `%s`: %w", a.name, err)
	}
	return coerced, nil
}

// Equal reports structural equality by type, name and metadata. Source
// is excluded so a projected attribute still equals its origin.
func (a Attribute) Equal(other Attribute) bool {
	return a.typ == other.typ && a.name == other.name && metaEqual(a.meta, other.meta)
}

// ReadAST returns the serializable node describing this attribute:
// (attribute name definition meta).
func (a Attribute) ReadAST() ast.Node {
	return ast.New("attribute", a.name, a.typ.Definition(), map[string]any(a.meta.clone()))
}

// MarshalZerologObject implements zerolog object marshalling.
func (a Attribute) MarshalZerologObject(e *zerolog.Event) {
	e.Str("name", a.name).Str("type", a.typ.Primitive().String()).Str("source", a.source)
}

func typeFromDefinition(node ast.Node) (Type, error) {
	if node.Tag != "definition" || len(node.Args) != 2 {
		return Type{}, fmt.Errorf("malformed definition node `%s`", node)
	}
	name, ok := node.Args[0].(string)
	if !ok {
		return Type{}, fmt.Errorf("malformed definition node `%s`", node)
	}
	primitive, ok := primitiveFromString(name)
	if !ok {
		return Type{}, fmt.Errorf("unknown primitive `%s`", name)
	}
	opts, ok := node.Args[1].(map[string]any)
	if !ok {
		return Type{}, fmt.Errorf("malformed definition node `%s`", node)
	}

	typ := Type{primitive: primitive}
	if optional, _ := opts["optional"].(bool); optional {
		typ.optional = true
	}
	return typ, nil
}

func attributeFromAST(node ast.Node) (Attribute, error) {
	if node.Tag != "attribute" || len(node.Args) != 3 {
		return Attribute{}, fmt.Errorf("malformed attribute node `%s`", node)
	}
	name, ok := node.Args[0].(string)
	if !ok {
		return Attribute{}, fmt.Errorf("malformed attribute node `%s`", node)
	}
	definition, ok := node.Args[1].(ast.Node)
	if !ok {
		return Attribute{}, fmt.Errorf("malformed attribute node `%s`", node)
	}
	typ, err := typeFromDefinition(definition)
	if err != nil {
		return Attribute{}, err
	}
	meta, ok := node.Args[2].(map[string]any)
	if !ok {
		return Attribute{}, fmt.Errorf("malformed attribute node `%s`", node)
	}
	return Attribute{typ: typ, name: name, meta: Meta(meta).clone()}, nil
}
