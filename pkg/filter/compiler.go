package filter

import (
	"context"
	"sort"

	"github.com/platinummonkey/catalog/pkg/catalog"
	"github.com/platinummonkey/catalog/pkg/taxonomy"
)

// Link fields addressed by classification predicates
const (
	FieldTaxonomyURN = "taxonomyUrn"
	FieldTaxonomyNID = "taxonomyNid"
)

// Strategy identifies the join order a plan executes with
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyClassification
	StrategyMetadata
	StrategyMixed
)

func (s Strategy) String() string {
	switch s {
	case StrategyClassification:
		return "classification"
	case StrategyMetadata:
		return "metadata"
	case StrategyMixed:
		return "mixed"
	default:
		return "none"
	}
}

// Resolver expands a classification URN into the URNs of its subtree
type Resolver interface {
	Resolve(ctx context.Context, nid, urn string) (taxonomy.URNSet, error)
}

// ClassificationGroup is the union of resolved subtrees requested for one
// taxonomy.
type ClassificationGroup struct {
	NID  string
	URNs taxonomy.URNSet
}

// Predicate matches links that fall inside the group
func (g ClassificationGroup) Predicate() Predicate {
	if len(g.URNs) == 0 {
		return False()
	}
	return And(Eq(FieldTaxonomyNID, g.NID), In(FieldTaxonomyURN, g.URNs.Sorted()...))
}

// Matches reports whether one link falls inside the group
func (g ClassificationGroup) Matches(link *catalog.ClassificationLink) bool {
	return link != nil && link.TaxonomyNID == g.NID && g.URNs.Contains(link.TaxonomyURN)
}

// Plan is the compiled form of a filter set
type Plan struct {
	// Metadata is the combined metadata and query predicate. It is only
	// meaningful when HasMetadata is set.
	Metadata       Predicate
	HasMetadata    bool
	Classification []ClassificationGroup
}

// Strategy picks the join order for the plan
func (p *Plan) Strategy() Strategy {
	switch {
	case len(p.Classification) > 0 && p.HasMetadata:
		return StrategyMixed
	case len(p.Classification) > 0:
		return StrategyClassification
	case p.HasMetadata:
		return StrategyMetadata
	}
	return StrategyNone
}

// LinkPredicate matches links belonging to any requested taxonomy group.
// A link match alone does not satisfy the plan when more than one taxonomy
// is requested; use SatisfiedBy on the links of an API version.
func (p *Plan) LinkPredicate() Predicate {
	preds := make([]Predicate, 0, len(p.Classification))
	for _, g := range p.Classification {
		preds = append(preds, g.Predicate())
	}
	return Or(preds...)
}

// SatisfiedBy reports whether the links of one API version match at least
// one URN of every requested taxonomy.
func (p *Plan) SatisfiedBy(links []*catalog.ClassificationLink) bool {
	for _, g := range p.Classification {
		matched := false
		for _, link := range links {
			if g.Matches(link) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// Compile turns a filter set into a plan. Classification filters are
// resolved through r; a URN that cannot be resolved contributes nothing to
// its group, so a group left empty matches nothing.
func Compile(ctx context.Context, filters []Filter, r Resolver) (*Plan, error) {
	plan := &Plan{Metadata: True()}

	var attrFilters []Filter
	byNID := make(map[string]taxonomy.URNSet)
	var nids []string

	for _, f := range filters {
		switch f.Kind {
		case KindMetadata, KindQuery:
			attrFilters = append(attrFilters, f)
		case KindClassification:
			set, ok := byNID[f.Key]
			if !ok {
				set = taxonomy.URNSet{}
				byNID[f.Key] = set
				nids = append(nids, f.Key)
			}
			resolved, err := r.Resolve(ctx, f.Key, f.Value)
			if err != nil {
				return nil, err
			}
			for urn := range resolved {
				set[urn] = struct{}{}
			}
		default:
			// an unknown kind cannot be honoured, so the plan matches nothing
			attrFilters = append(attrFilters, f)
		}
	}

	if len(attrFilters) > 0 {
		plan.HasMetadata = true
		plan.Metadata = CompileMetadata(attrFilters)
	}

	sort.Strings(nids)
	for _, nid := range nids {
		plan.Classification = append(plan.Classification, ClassificationGroup{NID: nid, URNs: byNID[nid]})
	}
	return plan, nil
}

// CompileMetadata compiles metadata and query filters into one predicate.
// Metadata values sharing a key are ORed, distinct keys and every query
// filter are ANDed. Keys outside the allowed attribute sets compile to False.
func CompileMetadata(filters []Filter) Predicate {
	values := make(map[string][]string)
	var keys []string
	var parts []Predicate

	for _, f := range filters {
		switch f.Kind {
		case KindMetadata:
			if !catalog.IsMetadataAttribute(f.Key) {
				return False()
			}
			if _, ok := values[f.Key]; !ok {
				keys = append(keys, f.Key)
			}
			values[f.Key] = append(values[f.Key], f.Value)
		case KindQuery:
			if !catalog.IsQueryAttribute(f.Key) {
				return False()
			}
			parts = append(parts, ContainsAll(f.Key, Tokenize(f.Value)...))
		default:
			return False()
		}
	}

	sort.Strings(keys)
	groups := make([]Predicate, 0, len(keys)+len(parts))
	for _, key := range keys {
		groups = append(groups, In(key, values[key]...))
	}
	groups = append(groups, parts...)
	return And(groups...)
}
