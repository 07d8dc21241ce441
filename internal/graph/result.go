package graph

import (
	"bytes"
	"encoding/json"

	"github.com/vektah/gqlparser/v2/ast"
)

type nodeKind uint8

const (
	kindNull nodeKind = iota
	kindLeaf
	kindObject
	kindList
)

// node is one value in the result tree. Nodes start null and are filled in
// as fields complete; settle then applies non-null propagation.
type node struct {
	typ  *ast.Type
	kind nodeKind

	leaf   any
	keys   []string
	fields []*node
	items  []*node
}

func newNode(typ *ast.Type) *node {
	return &node{typ: typ}
}

func (n *node) setObject() { n.kind = kindObject }

func (n *node) setList(size int) {
	n.kind = kindList
	n.items = make([]*node, 0, size)
}

func (n *node) setLeaf(v any) {
	n.kind = kindLeaf
	n.leaf = v
}

func (n *node) addField(key string, child *node) {
	n.keys = append(n.keys, key)
	n.fields = append(n.fields, child)
}

// settle nulls every object or list holding a null in a non-null position
// and reports whether n itself ended up null.
func (n *node) settle() bool {
	var children []*node
	switch n.kind {
	case kindObject:
		children = n.fields
	case kindList:
		children = n.items
	default:
		return n.kind == kindNull
	}
	for _, c := range children {
		if c.settle() && c.typ != nil && c.typ.NonNull {
			n.kind = kindNull
			return true
		}
	}
	return false
}

// writeJSON encodes n with object keys in selection order.
func (n *node) writeJSON(buf *bytes.Buffer) error {
	switch n.kind {
	case kindNull:
		buf.WriteString("null")
	case kindLeaf:
		b, err := json.Marshal(n.leaf)
		if err != nil {
			return err
		}
		buf.Write(b)
	case kindList:
		buf.WriteByte('[')
		for i, it := range n.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case kindObject:
		buf.WriteByte('{')
		for i, key := range n.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(key)
			if err != nil {
				return err
			}
			buf.Write(k)
			buf.WriteByte(':')
			if err := n.fields[i].writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

// marshal settles the tree and returns its JSON.
func (n *node) marshal() (json.RawMessage, error) {
	n.settle()
	var buf bytes.Buffer
	if err := n.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
