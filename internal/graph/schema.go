// Package graph executes GraphQL documents against the library schema.
//
// Parsing and validation come from gqlparser. Execution is breadth first:
// every field of one depth is resolved before any deferred value of that
// depth is awaited, so loads issued by sibling fields share one batch.
package graph

import (
	_ "embed"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

//go:embed schema.graphql
var schemaSDL string

// SDL returns the schema source.
func SDL() string {
	return schemaSDL
}

// LoadSchema parses and validates the embedded schema.
func LoadSchema() (*ast.Schema, error) {
	return gqlparser.LoadSchema(&ast.Source{Name: "schema.graphql", Input: schemaSDL})
}

// MustLoadSchema is LoadSchema for program start.
func MustLoadSchema() *ast.Schema {
	s, err := LoadSchema()
	if err != nil {
		panic("graph: invalid schema: " + err.Error())
	}
	return s
}
