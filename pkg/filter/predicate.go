package filter

import (
	"fmt"
	"sort"
	"strings"
)

// Op is a predicate operator
type Op int

const (
	OpTrue Op = iota
	OpFalse
	OpEq
	OpIn
	OpContainsAll
	OpAnd
	OpOr
)

// Predicate is a boolean expression over named record fields.
// Construct predicates with the helper functions, which keep them simplified:
// constant children are folded away and empty groups collapse.
type Predicate struct {
	Op       Op
	Field    string
	Values   []string
	Children []Predicate
}

// Record exposes fields by name
type Record interface {
	Field(name string) (string, bool)
}

// True matches everything
func True() Predicate { return Predicate{Op: OpTrue} }

// False matches nothing
func False() Predicate { return Predicate{Op: OpFalse} }

// Eq matches records whose field equals value
func Eq(field, value string) Predicate {
	return Predicate{Op: OpEq, Field: field, Values: []string{value}}
}

// In matches records whose field equals any of values. Duplicates are removed
// and values sorted; an empty list matches nothing.
func In(field string, values ...string) Predicate {
	uniq := dedup(values)
	switch len(uniq) {
	case 0:
		return False()
	case 1:
		return Eq(field, uniq[0])
	}
	return Predicate{Op: OpIn, Field: field, Values: uniq}
}

// ContainsAll matches records whose field contains every term, in order,
// ignoring case. No terms matches everything.
func ContainsAll(field string, terms ...string) Predicate {
	if len(terms) == 0 {
		return True()
	}
	lowered := make([]string, len(terms))
	for i, term := range terms {
		lowered[i] = strings.ToLower(term)
	}
	return Predicate{Op: OpContainsAll, Field: field, Values: lowered}
}

// And matches when every child matches
func And(children ...Predicate) Predicate {
	var kept []Predicate
	for _, c := range children {
		switch c.Op {
		case OpFalse:
			return False()
		case OpTrue:
			continue
		case OpAnd:
			kept = append(kept, c.Children...)
		default:
			kept = append(kept, c)
		}
	}
	switch len(kept) {
	case 0:
		return True()
	case 1:
		return kept[0]
	}
	return Predicate{Op: OpAnd, Children: kept}
}

// Or matches when any child matches
func Or(children ...Predicate) Predicate {
	var kept []Predicate
	for _, c := range children {
		switch c.Op {
		case OpTrue:
			return True()
		case OpFalse:
			continue
		case OpOr:
			kept = append(kept, c.Children...)
		default:
			kept = append(kept, c)
		}
	}
	switch len(kept) {
	case 0:
		return False()
	case 1:
		return kept[0]
	}
	return Predicate{Op: OpOr, Children: kept}
}

// Tokenize splits a free-text query into whitespace separated terms
func Tokenize(text string) []string {
	return strings.Fields(text)
}

// Match evaluates the predicate against a record. Fields the record does not
// expose never match.
func (p Predicate) Match(r Record) bool {
	switch p.Op {
	case OpTrue:
		return true
	case OpFalse:
		return false
	case OpEq, OpIn:
		v, ok := r.Field(p.Field)
		if !ok {
			return false
		}
		for _, want := range p.Values {
			if v == want {
				return true
			}
		}
		return false
	case OpContainsAll:
		v, ok := r.Field(p.Field)
		if !ok {
			return false
		}
		return containsInOrder(strings.ToLower(v), p.Values)
	case OpAnd:
		for _, c := range p.Children {
			if !c.Match(r) {
				return false
			}
		}
		return true
	case OpOr:
		for _, c := range p.Children {
			if c.Match(r) {
				return true
			}
		}
		return false
	}
	return false
}

// IsConst reports whether the predicate is True or False
func (p Predicate) IsConst() bool {
	return p.Op == OpTrue || p.Op == OpFalse
}

func (p Predicate) String() string {
	switch p.Op {
	case OpTrue:
		return "TRUE"
	case OpFalse:
		return "FALSE"
	case OpEq:
		return fmt.Sprintf("%s = %q", p.Field, p.Values[0])
	case OpIn:
		return fmt.Sprintf("%s IN (%s)", p.Field, quoteAll(p.Values))
	case OpContainsAll:
		return fmt.Sprintf("%s CONTAINS (%s)", p.Field, quoteAll(p.Values))
	case OpAnd, OpOr:
		sep := " AND "
		if p.Op == OpOr {
			sep = " OR "
		}
		parts := make([]string, len(p.Children))
		for i, c := range p.Children {
			parts[i] = c.String()
		}
		return "(" + strings.Join(parts, sep) + ")"
	}
	return "?"
}

// LikePattern renders ContainsAll terms as a SQL LIKE pattern: %t1%t2%.
// LIKE metacharacters inside terms are escaped with a backslash.
func LikePattern(terms []string) string {
	var b strings.Builder
	b.WriteString("%")
	for _, term := range terms {
		b.WriteString(escapeLike(term))
		b.WriteString("%")
	}
	return b.String()
}

// LikePrefix renders a SQL LIKE pattern matching strings that start with
// prefix.
func LikePrefix(prefix string) string {
	return escapeLike(prefix) + "%"
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func containsInOrder(s string, terms []string) bool {
	for _, term := range terms {
		idx := strings.Index(s, term)
		if idx < 0 {
			return false
		}
		s = s[idx+len(term):]
	}
	return true
}

func dedup(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func quoteAll(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return strings.Join(quoted, ", ")
}
