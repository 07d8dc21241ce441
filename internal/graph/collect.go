package graph

import (
	"github.com/vektah/gqlparser/v2/ast"
)

// collectedField is every selection sharing one response key.
type collectedField struct {
	key    string
	fields []*ast.Field
}

func (c *collectedField) name() string { return c.fields[0].Name }

// selectionSet merges the sub-selections of every field under the key.
func (c *collectedField) selectionSet() ast.SelectionSet {
	if len(c.fields) == 1 {
		return c.fields[0].SelectionSet
	}
	var set ast.SelectionSet
	for _, f := range c.fields {
		set = append(set, f.SelectionSet...)
	}
	return set
}

// collectFields flattens fragments and applies @skip/@include for an object
// of type def, keeping first-seen key order.
func collectFields(def *ast.Definition, set ast.SelectionSet, vars map[string]any) []*collectedField {
	var out []*collectedField
	byKey := make(map[string]*collectedField)
	visited := make(map[string]bool)

	var walk func(ast.SelectionSet)
	walk = func(set ast.SelectionSet) {
		for _, sel := range set {
			switch s := sel.(type) {
			case *ast.Field:
				if !included(s.Directives, vars) {
					continue
				}
				key := s.Alias
				if key == "" {
					key = s.Name
				}
				if c, ok := byKey[key]; ok {
					c.fields = append(c.fields, s)
					continue
				}
				c := &collectedField{key: key, fields: []*ast.Field{s}}
				byKey[key] = c
				out = append(out, c)

			case *ast.InlineFragment:
				if !included(s.Directives, vars) || !appliesTo(def, s.TypeCondition) {
					continue
				}
				walk(s.SelectionSet)

			case *ast.FragmentSpread:
				if !included(s.Directives, vars) || visited[s.Name] || s.Definition == nil {
					continue
				}
				visited[s.Name] = true
				if appliesTo(def, s.Definition.TypeCondition) {
					walk(s.Definition.SelectionSet)
				}
			}
		}
	}
	walk(set)
	return out
}

// appliesTo reports whether a fragment on condition matches def. The schema
// has no interfaces or unions, so only exact matches apply.
func appliesTo(def *ast.Definition, condition string) bool {
	return condition == "" || condition == def.Name
}

func included(dirs ast.DirectiveList, vars map[string]any) bool {
	if d := dirs.ForName("skip"); d != nil {
		if skip, _ := d.ArgumentMap(vars)["if"].(bool); skip {
			return false
		}
	}
	if d := dirs.ForName("include"); d != nil {
		if include, _ := d.ArgumentMap(vars)["if"].(bool); !include {
			return false
		}
	}
	return true
}
