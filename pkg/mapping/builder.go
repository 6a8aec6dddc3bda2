package mapping

import (
	"fmt"
	"reflect"

	"github.com/relmap/relmap/pkg/ast"
	"github.com/relmap/relmap/pkg/schema"
)

// StructTypeFromAST synthesizes a struct type from a schema or relation
// node: one exported field per attribute, typed by the attribute's
// declared primitive, optional attributes as pointers. Field names
// derive from the attribute read name with a rel tag binding the tuple
// key, so the synthesized type round-trips through the struct mapper.
func StructTypeFromAST(node ast.Node) (reflect.Type, error) {
	attrs, err := attributesOf(node)
	if err != nil {
		return nil, err
	}

	fields := make([]reflect.StructField, 0, len(attrs))
	for _, attr := range attrs {
		typ := attr.Type().GoType()
		if attr.Type().IsOptional() {
			typ = reflect.PointerTo(typ)
		}
		name := exportedName(attr.ReadName())
		if name == "" {
			return nil, fmt.Errorf("attribute `%s` yields no exported field name", attr.ReadName())
		}
		fields = append(fields, reflect.StructField{
			Name: name,
			Type: typ,
			Tag:  reflect.StructTag(fmt.Sprintf(`rel:%q`, attr.ReadName())),
		})
	}
	return reflect.StructOf(fields), nil
}

// attributesOf accepts both (schema name [attrs...]) and
// (relation name [attrs...] {meta}) nodes.
func attributesOf(node ast.Node) ([]schema.Attribute, error) {
	var arg any
	switch {
	case node.Tag == "schema" && len(node.Args) == 2:
		arg = node.Args[1]
	case node.Tag == "relation" && len(node.Args) == 3:
		arg = node.Args[1]
	default:
		return nil, fmt.Errorf("cannot synthesize a struct from node `%s`", node)
	}
	attrs, err := schema.AttributesFromAST(arg)
	if err != nil {
		return nil, fmt.Errorf("cannot synthesize a struct from node `%s`: %w", node, err)
	}
	return attrs, nil
}
