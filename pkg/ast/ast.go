// Package ast implements the tagged-tuple serialization of schema and
// relation structure. The format is the contract other subsystems parse
// to reconstruct typed readers without importing this module's internal
// types: nested tagged nodes such as
//
//	(schema "users" [(attribute "id" (definition "int" {}) {}) ...])
//	(relation "users" [attribute-asts...] {meta})
//
// Nodes serialize deterministically: option maps are written with sorted
// keys, so two structurally-identical trees always produce identical
// canonical forms and digests.
package ast

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Node is one tagged tuple. Args hold strings, bools, numbers, nested
// Nodes, []Node sequences and map[string]any option maps.
type Node struct {
	Tag  string
	Args []any
}

// New constructs a node.
func New(tag string, args ...any) Node {
	return Node{Tag: tag, Args: args}
}

// String renders the canonical S-expression form.
func (n Node) String() string {
	return string(n.appendCanonical(nil))
}

// Digest returns a stable 64-bit digest of the canonical form, suitable
// as a cache key for mapper lookup.
func (n Node) Digest() uint64 {
	return xxhash.Sum64(n.appendCanonical(nil))
}

// Equal reports structural equality via the canonical form, so option
// maps compare independently of insertion order.
func (n Node) Equal(other Node) bool {
	return string(n.appendCanonical(nil)) == string(other.appendCanonical(nil))
}

func (n Node) appendCanonical(buf []byte) []byte {
	buf = append(buf, '(')
	buf = append(buf, n.Tag...)
	for _, arg := range n.Args {
		buf = append(buf, ' ')
		buf = appendValue(buf, arg)
	}
	return append(buf, ')')
}

func appendValue(buf []byte, v any) []byte {
	switch val := v.(type) {
	case nil:
		return append(buf, "nil"...)
	case Node:
		return val.appendCanonical(buf)
	case []Node:
		buf = append(buf, '[')
		for i, child := range val {
			if i > 0 {
				buf = append(buf, ' ')
			}
			buf = child.appendCanonical(buf)
		}
		return append(buf, ']')
	case []any:
		buf = append(buf, '[')
		for i, child := range val {
			if i > 0 {
				buf = append(buf, ' ')
			}
			buf = appendValue(buf, child)
		}
		return append(buf, ']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ' ')
			}
			buf = append(buf, k...)
			buf = append(buf, ':')
			buf = appendValue(buf, val[k])
		}
		return append(buf, '}')
	case string:
		return strconv.AppendQuote(buf, val)
	case bool:
		return strconv.AppendBool(buf, val)
	case int:
		return strconv.AppendInt(buf, int64(val), 10)
	case int64:
		return strconv.AppendInt(buf, val, 10)
	case uint64:
		return strconv.AppendUint(buf, val, 10)
	case float64:
		return strconv.AppendFloat(buf, val, 'g', -1, 64)
	default:
		return append(buf, fmt.Sprintf("%v", val)...)
	}
}

// MarshalJSON encodes the node as a JSON array [tag, args...], the
// cross-process representation of a tagged tuple.
func (n Node) MarshalJSON() ([]byte, error) {
	arr := make([]any, 0, len(n.Args)+1)
	arr = append(arr, n.Tag)
	for _, arg := range n.Args {
		arr = append(arr, jsonValue(arg))
	}
	return json.Marshal(arr)
}

func jsonValue(v any) any {
	switch val := v.(type) {
	case Node:
		arr := make([]any, 0, len(val.Args)+1)
		arr = append(arr, val.Tag)
		for _, arg := range val.Args {
			arr = append(arr, jsonValue(arg))
		}
		return arr
	case []Node:
		arr := make([]any, len(val))
		for i, child := range val {
			arr[i] = jsonValue(child)
		}
		return arr
	case []any:
		arr := make([]any, len(val))
		for i, child := range val {
			arr[i] = jsonValue(child)
		}
		return arr
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = jsonValue(child)
		}
		return out
	default:
		return v
	}
}

// UnmarshalNode parses the JSON array form back into a Node. Nested
// arrays whose first element is a string are treated as nodes; option
// maps decode as map[string]any.
func UnmarshalNode(data []byte) (Node, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Node{}, err
	}

	node, ok := nodeFromJSON(raw)
	if !ok {
		return Node{}, fmt.Errorf("malformed ast node: %s", string(data))
	}
	return node, nil
}

func nodeFromJSON(raw any) (Node, bool) {
	arr, ok := raw.([]any)
	if !ok || len(arr) == 0 {
		return Node{}, false
	}
	tag, ok := arr[0].(string)
	if !ok {
		return Node{}, false
	}

	node := Node{Tag: tag, Args: make([]any, 0, len(arr)-1)}
	for _, item := range arr[1:] {
		node.Args = append(node.Args, valueFromJSON(item))
	}
	return node, true
}

func valueFromJSON(raw any) any {
	switch val := raw.(type) {
	case []any:
		if child, ok := nodeFromJSON(val); ok {
			return child
		}
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = valueFromJSON(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = valueFromJSON(item)
		}
		return out
	default:
		return raw
	}
}
