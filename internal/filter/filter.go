// Package filter holds the declarative filter expressions shared by the
// access resolver, the query builder and the storage backends.
package filter

import (
	"sort"
	"strings"

	"gridwatch/internal/model"
)

// Op is a comparison operator.
type Op string

const (
	Eq       Op = "eq"       // missing fields compare as ""
	In       Op = "in"       // value is one of Values
	Gte      Op = "gte"      // lexical, missing fields never match
	Lte      Op = "lte"      // lexical, missing fields never match
	Prefix   Op = "prefix"   // starts with Value
	Contains Op = "contains" // case-insensitive substring on any of Fields
	// FirstPrefix checks only the first of Fields that is present and
	// non-empty, so older documents fall back to later fields.
	FirstPrefix Op = "firstPrefix"
	Never    Op = "never"    // matches nothing
)

// Condition is one predicate over a record. Conditions in a list are ANDed.
type Condition struct {
	Field  string
	Fields []string
	Op     Op
	Value  string
	Values []string
}

// Sort orders results by a single field. Ties are broken by id ascending.
type Sort struct {
	Field string
	Desc  bool
}

// Query is a complete storage request: predicates, order and window.
type Query struct {
	Where  []Condition
	Sort   Sort
	Offset int
	Limit  int
}

// Equal builds an Eq condition.
func Equal(field, value string) Condition { return Condition{Field: field, Op: Eq, Value: value} }

// OneOf builds an In condition.
func OneOf(field string, values ...string) Condition {
	return Condition{Field: field, Op: In, Values: values}
}

// PrefixOfFirst builds a FirstPrefix condition over fields in order.
func PrefixOfFirst(value string, fields ...string) Condition {
	return Condition{Fields: fields, Op: FirstPrefix, Value: value}
}

// Nothing builds a condition that rejects every record.
func Nothing() Condition { return Condition{Op: Never} }

// Match reports whether the record satisfies the condition.
func (c Condition) Match(r model.Record) bool {
	switch c.Op {
	case Eq:
		return r.String(c.Field) == c.Value
	case In:
		v, ok := r.Field(c.Field)
		if !ok {
			return false
		}
		for _, want := range c.Values {
			if v == want {
				return true
			}
		}
		return false
	case Gte:
		v, ok := r.Field(c.Field)
		return ok && v >= c.Value
	case Lte:
		v, ok := r.Field(c.Field)
		return ok && v <= c.Value
	case Prefix:
		v, ok := r.Field(c.Field)
		return ok && strings.HasPrefix(v, c.Value)
	case Contains:
		needle := strings.ToLower(c.Value)
		for _, f := range c.Fields {
			if v, ok := r.Field(f); ok && strings.Contains(strings.ToLower(v), needle) {
				return true
			}
		}
		return false
	case FirstPrefix:
		for _, f := range c.Fields {
			if v, ok := r.Field(f); ok && v != "" {
				return strings.HasPrefix(v, c.Value)
			}
		}
		return false
	default:
		return false
	}
}

// Match reports whether the record satisfies every condition.
func Match(r model.Record, conds []Condition) bool {
	for _, c := range conds {
		if !c.Match(r) {
			return false
		}
	}
	return true
}

// Less orders two records by s.
func Less(a, b model.Record, s Sort) bool {
	if s.Field != "" {
		av, bv := a.String(s.Field), b.String(s.Field)
		if av != bv {
			if s.Desc {
				return av > bv
			}
			return av < bv
		}
	}
	return a.ID() < b.ID()
}

// Apply evaluates q over an in-memory slice. It returns the requested window
// and the number of matching records before the window was applied.
func Apply(records []model.Record, q Query) ([]model.Record, int) {
	matched := make([]model.Record, 0, len(records))
	for _, r := range records {
		if Match(r, q.Where) {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return Less(matched[i], matched[j], q.Sort) })
	total := len(matched)
	if q.Offset >= total {
		return []model.Record{}, total
	}
	end := total
	if q.Limit > 0 && q.Offset+q.Limit < total {
		end = q.Offset + q.Limit
	}
	return matched[q.Offset:end], total
}

// Fields returns every field name referenced by conds and s, used by
// backends that must check names against an allow-list.
func Fields(conds []Condition, s Sort) []string {
	var out []string
	for _, c := range conds {
		if c.Field != "" {
			out = append(out, c.Field)
		}
		out = append(out, c.Fields...)
	}
	if s.Field != "" {
		out = append(out, s.Field)
	}
	return out
}
