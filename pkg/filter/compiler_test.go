package filter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/catalog/pkg/catalog"
	"github.com/platinummonkey/catalog/pkg/taxonomy"
)

type stubResolver struct {
	sets map[string][]string
	err  error
}

func (s *stubResolver) Resolve(_ context.Context, nid, urn string) (taxonomy.URNSet, error) {
	if s.err != nil {
		return nil, s.err
	}
	return taxonomy.NewURNSet(s.sets[nid+"|"+urn]...), nil
}

func md(visibility, businessUnit string) *catalog.Metadata {
	return &catalog.Metadata{ApiID: "a", ApiVersion: "1", Name: "A", Visibility: visibility, BusinessUnit: businessUnit}
}

func link(nid, urn string) *catalog.ClassificationLink {
	return &catalog.ClassificationLink{ApiID: "a", ApiVersion: "1", TaxonomyNID: nid, TaxonomyURN: urn, TaxonomyVersion: "1"}
}

func TestCompileMetadata_SameKeyIsOr(t *testing.T) {
	p := CompileMetadata([]Filter{
		Metadata("visibility", "Public"),
		Metadata("visibility", "Private"),
	})

	assert.True(t, p.Match(md("Public", "")))
	assert.True(t, p.Match(md("Private", "")))
	assert.False(t, p.Match(md("Internal", "")))
}

func TestCompileMetadata_DistinctKeysAreAnd(t *testing.T) {
	p := CompileMetadata([]Filter{
		Metadata("visibility", "Public"),
		Metadata("businessUnit", "X"),
	})

	assert.True(t, p.Match(md("Public", "X")))
	assert.False(t, p.Match(md("Public", "Y")))
	assert.False(t, p.Match(md("Private", "X")))
}

func TestCompileMetadata_UnknownKeyFailsClosed(t *testing.T) {
	p := CompileMetadata([]Filter{
		Metadata("visibility", "Public"),
		Metadata("doesNotExist", "anything"),
	})
	assert.Equal(t, OpFalse, p.Op)
	assert.False(t, p.Match(md("Public", "")))

	q := CompileMetadata([]Filter{Query("owner", "team")})
	assert.Equal(t, OpFalse, q.Op)
}

func TestCompileMetadata_QueryAndedOnTop(t *testing.T) {
	p := CompileMetadata([]Filter{
		Metadata("visibility", "Public"),
		Query("name", "pay api"),
	})

	m := md("Public", "")
	m.Name = "Payments API"
	assert.True(t, p.Match(m))

	m.Name = "Ledger API"
	assert.False(t, p.Match(m))
}

func TestCompile_Strategy(t *testing.T) {
	r := &stubResolver{sets: map[string][]string{"lang|T1": {"T1"}}}
	ctx := context.Background()

	tests := []struct {
		name    string
		filters []Filter
		want    Strategy
	}{
		{"none", nil, StrategyNone},
		{"metadata", []Filter{Metadata("status", "live")}, StrategyMetadata},
		{"query", []Filter{Query("name", "x")}, StrategyMetadata},
		{"classification", []Filter{Classification("lang", "T1")}, StrategyClassification},
		{"mixed", []Filter{Classification("lang", "T1"), Metadata("status", "live")}, StrategyMixed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Compile(ctx, tt.filters, r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan.Strategy())
			assert.Equal(t, tt.want.String(), plan.Strategy().String())
		})
	}
}

func TestCompile_ClassificationGroups(t *testing.T) {
	r := &stubResolver{sets: map[string][]string{
		"lang|T1":   {"T1", "T1a"},
		"lang|T2":   {"T2"},
		"domain|D1": {"D1"},
	}}

	plan, err := Compile(context.Background(), []Filter{
		Classification("lang", "T1"),
		Classification("lang", "T2"),
		Classification("domain", "D1"),
	}, r)
	require.NoError(t, err)
	require.Len(t, plan.Classification, 2)
	assert.Equal(t, "domain", plan.Classification[0].NID)
	assert.Equal(t, "lang", plan.Classification[1].NID)
	assert.Equal(t, []string{"T1", "T1a", "T2"}, plan.Classification[1].URNs.Sorted())

	lp := plan.LinkPredicate()
	assert.True(t, lp.Match(link("lang", "T1a")))
	assert.True(t, lp.Match(link("domain", "D1")))
	assert.False(t, lp.Match(link("domain", "T1")), "urn must belong to the same taxonomy")

	// or within a taxonomy, and across taxonomies
	assert.True(t, plan.SatisfiedBy([]*catalog.ClassificationLink{link("lang", "T2"), link("domain", "D1")}))
	assert.False(t, plan.SatisfiedBy([]*catalog.ClassificationLink{link("lang", "T1")}))
	assert.False(t, plan.SatisfiedBy(nil))
}

func TestCompile_UnresolvedClassificationMatchesNothing(t *testing.T) {
	plan, err := Compile(context.Background(), []Filter{Classification("lang", "missing")}, &stubResolver{})
	require.NoError(t, err)
	require.Len(t, plan.Classification, 1)
	assert.Equal(t, OpFalse, plan.LinkPredicate().Op)
	assert.False(t, plan.SatisfiedBy([]*catalog.ClassificationLink{link("lang", "missing")}))
}

func TestCompile_ResolverError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Compile(context.Background(), []Filter{Classification("lang", "T1")}, &stubResolver{err: boom})
	assert.ErrorIs(t, err, boom)
}
