package schema

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/ccoveille/go-safecast/v2"

	"github.com/relmap/relmap/pkg/ast"
)

// Primitive enumerates the storage-level value kinds a schema attribute
// can declare.
type Primitive uint8

const (
	PrimitiveAny Primitive = iota
	PrimitiveBool
	PrimitiveInt
	PrimitiveFloat
	PrimitiveString
	PrimitiveTime
	PrimitiveBytes
)

// String returns the name used in the AST definition node.
func (p Primitive) String() string {
	switch p {
	case PrimitiveBool:
		return "bool"
	case PrimitiveInt:
		return "int"
	case PrimitiveFloat:
		return "float"
	case PrimitiveString:
		return "string"
	case PrimitiveTime:
		return "time"
	case PrimitiveBytes:
		return "bytes"
	default:
		return "any"
	}
}

func primitiveFromString(name string) (Primitive, bool) {
	switch name {
	case "any":
		return PrimitiveAny, true
	case "bool":
		return PrimitiveBool, true
	case "int":
		return PrimitiveInt, true
	case "float":
		return PrimitiveFloat, true
	case "string":
		return PrimitiveString, true
	case "time":
		return PrimitiveTime, true
	case "bytes":
		return PrimitiveBytes, true
	default:
		return PrimitiveAny, false
	}
}

// Type is an immutable descriptor of one attribute's value kind. The
// zero value is the permissive Any type.
type Type struct {
	primitive Primitive
	optional  bool
}

// Canonical descriptors for the attribute DSL.
var (
	Any    = Type{primitive: PrimitiveAny}
	Bool   = Type{primitive: PrimitiveBool}
	Int    = Type{primitive: PrimitiveInt}
	Float  = Type{primitive: PrimitiveFloat}
	String = Type{primitive: PrimitiveString}
	Time   = Type{primitive: PrimitiveTime}
	Bytes  = Type{primitive: PrimitiveBytes}
)

// Optional returns a copy of the type that accepts nil values.
func (t Type) Optional() Type {
	t.optional = true
	return t
}

// IsOptional reports whether nil values pass coercion.
func (t Type) IsOptional() bool { return t.optional }

// Primitive returns the declared value kind.
func (t Type) Primitive() Primitive { return t.primitive }

// GoType returns the reflect type used when building struct types from a
// schema (auto-struct mapping).
func (t Type) GoType() reflect.Type {
	switch t.primitive {
	case PrimitiveBool:
		return reflect.TypeOf(false)
	case PrimitiveInt:
		return reflect.TypeOf(int64(0))
	case PrimitiveFloat:
		return reflect.TypeOf(float64(0))
	case PrimitiveString:
		return reflect.TypeOf("")
	case PrimitiveTime:
		return reflect.TypeOf(time.Time{})
	case PrimitiveBytes:
		return reflect.TypeOf([]byte(nil))
	default:
		return reflect.TypeOf((*any)(nil)).Elem()
	}
}

// Definition returns the AST definition node for this type.
func (t Type) Definition() ast.Node {
	return ast.New("definition", t.primitive.String(), map[string]any{
		"optional": t.optional,
	})
}

// Coerce normalizes a raw dataset value into the canonical Go
// representation for this type: integers of any width become int64,
// float32 becomes float64, RFC 3339 strings become time.Time. A nil
// value passes only when the type is optional.
func (t Type) Coerce(v any) (any, error) {
	if v == nil {
		if t.optional || t.primitive == PrimitiveAny {
			return nil, nil
		}
		return nil, NewCoercionErr(t.primitive, v)
	}

	switch t.primitive {
	case PrimitiveAny:
		return v, nil
	case PrimitiveBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case PrimitiveInt:
		return coerceInt(t, v)
	case PrimitiveFloat:
		return coerceFloat(t, v)
	case PrimitiveString:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
	case PrimitiveTime:
		switch ts := v.(type) {
		case time.Time:
			return ts, nil
		case string:
			parsed, err := time.Parse(time.RFC3339, ts)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", NewCoercionErr(t.primitive, v), err)
			}
			return parsed, nil
		}
	case PrimitiveBytes:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
	}

	return nil, NewCoercionErr(t.primitive, v)
}

func coerceInt(t Type, v any) (any, error) {
	var (
		out int64
		err error
	)

	switch n := v.(type) {
	case int:
		out, err = safecast.Convert[int64](n)
	case int8:
		out, err = safecast.Convert[int64](n)
	case int16:
		out, err = safecast.Convert[int64](n)
	case int32:
		out, err = safecast.Convert[int64](n)
	case int64:
		out = n
	case uint:
		out, err = safecast.Convert[int64](n)
	case uint8:
		out, err = safecast.Convert[int64](n)
	case uint16:
		out, err = safecast.Convert[int64](n)
	case uint32:
		out, err = safecast.Convert[int64](n)
	case uint64:
		out, err = safecast.Convert[int64](n)
	case float64:
		if n != math.Trunc(n) {
			return nil, NewCoercionErr(t.primitive, v)
		}
		out, err = safecast.Convert[int64](n)
	case float32:
		f := float64(n)
		if f != math.Trunc(f) {
			return nil, NewCoercionErr(t.primitive, v)
		}
		out, err = safecast.Convert[int64](f)
	default:
		return nil, NewCoercionErr(t.primitive, v)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", NewCoercionErr(t.primitive, v), err)
	}
	return out, nil
}

func coerceFloat(t Type, v any) (any, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return nil, NewCoercionErr(t.primitive, v)
	}
}
