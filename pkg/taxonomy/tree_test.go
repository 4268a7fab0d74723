package taxonomy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/catalog/pkg/catalog"
)

func entry(urn, url, title string) *catalog.TaxonomyURNEntry {
	return &catalog.TaxonomyURNEntry{
		URN:     urn,
		URL:     url,
		Title:   title,
		NID:     "lang",
		Version: "1",
		Type:    catalog.EntryTypeClassification,
	}
}

func permutations(entries []*catalog.TaxonomyURNEntry) [][]*catalog.TaxonomyURNEntry {
	if len(entries) <= 1 {
		return [][]*catalog.TaxonomyURNEntry{entries}
	}
	var out [][]*catalog.TaxonomyURNEntry
	for i := range entries {
		rest := make([]*catalog.TaxonomyURNEntry, 0, len(entries)-1)
		rest = append(rest, entries[:i]...)
		rest = append(rest, entries[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]*catalog.TaxonomyURNEntry{entries[i]}, p...))
		}
	}
	return out
}

func TestTree_InsertRootLeaf(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Insert(entry("T0", "taxonomy://lang", "Languages")))

	roots := tree.Roots()
	require.Len(t, roots, 1)
	assert.Equal(t, "T0", roots[0].URN)
	assert.Equal(t, "taxonomy://lang", roots[0].URL)
	assert.Empty(t, roots[0].Children)
}

func TestTree_PlaceholderUpgrade(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Insert(entry("T1", "taxonomy://lang/jvm/java", "Java")))

	assert.Equal(t, 3, tree.Len())
	assert.Equal(t, []string{"taxonomy://lang", "taxonomy://lang/jvm"}, tree.Placeholders())

	require.NoError(t, tree.Insert(entry("T0", "taxonomy://lang", "Languages")))
	assert.Equal(t, 3, tree.Len())
	assert.Equal(t, []string{"taxonomy://lang/jvm"}, tree.Placeholders())

	roots := tree.Roots()
	require.Len(t, roots, 1)
	assert.Equal(t, "T0", roots[0].URN)
	assert.Equal(t, "Languages", roots[0].Title)
	require.Len(t, roots[0].Children, 1)
	jvm := roots[0].Children[0]
	assert.True(t, jvm.IsPlaceholder())
	require.Len(t, jvm.Children, 1)
	assert.Equal(t, "T1", jvm.Children[0].URN)
}

func TestTree_OrderIndependence(t *testing.T) {
	entries := []*catalog.TaxonomyURNEntry{
		entry("T0", "taxonomy://lang", "Languages"),
		entry("T1", "taxonomy://lang/java", "Java"),
		entry("T2", "taxonomy://lang/go", "Go"),
		entry("T3", "taxonomy://lang/java/spring", "Spring"),
		entry("T4", "taxonomy://domain/payments", "Payments"),
	}

	reference, rejected := Build(entries)
	require.Empty(t, rejected)
	expected := reference.Roots()

	for _, perm := range permutations(entries) {
		tree, rejected := Build(perm)
		require.Empty(t, rejected)
		assert.Equal(t, expected, tree.Roots())
	}
}

func TestTree_Idempotent(t *testing.T) {
	e := entry("T1", "taxonomy://lang/java", "Java")

	once := NewTree()
	require.NoError(t, once.Insert(e))

	twice := NewTree()
	require.NoError(t, twice.Insert(e))
	require.NoError(t, twice.Insert(e))

	assert.Equal(t, once.Roots(), twice.Roots())
	assert.Equal(t, once.Len(), twice.Len())
}

func TestTree_ReinsertUpdatesAttributes(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Insert(entry("T1", "taxonomy://lang/java", "Java")))

	updated := entry("T1", "taxonomy://Lang/Java", "Java SE")
	updated.Description = "The Java platform"
	require.NoError(t, tree.Insert(updated))

	node, ok := tree.Subtree("taxonomy://lang/java")
	require.True(t, ok)
	assert.Equal(t, "Java SE", node.Title)
	assert.Equal(t, "The Java platform", node.Description)
	assert.Equal(t, 2, tree.Len())
}

func TestTree_PrefixContainment(t *testing.T) {
	tree, rejected := Build([]*catalog.TaxonomyURNEntry{
		entry("E2", "taxonomy://a/b", "B"),
		entry("E1", "taxonomy://a", "A"),
		entry("E3", "taxonomy://ab", "AB"),
	})
	require.Empty(t, rejected)

	a, ok := tree.Subtree("taxonomy://a")
	require.True(t, ok)
	require.Len(t, a.Children, 1)
	assert.Equal(t, "E2", a.Children[0].URN)

	roots := tree.Roots()
	require.Len(t, roots, 2)
	assert.Equal(t, "taxonomy://a", roots[0].URL)
	assert.Equal(t, "taxonomy://ab", roots[1].URL)
}

func TestTree_RejectsReferenceEntries(t *testing.T) {
	tree := NewTree()
	ref := entry("R1", "taxonomy://lang/java", "Java")
	ref.Type = catalog.EntryTypeReference

	err := tree.Insert(ref)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReferenceEntry))
	assert.True(t, errors.Is(err, catalog.ErrInvalidArgument))
	assert.Equal(t, 0, tree.Len())
}

func TestTree_RejectsMalformedPath(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Insert(entry("T0", "taxonomy://lang", "Languages")))

	err := tree.Insert(entry("BAD", "taxonomy://lang//java", "Broken"))
	require.Error(t, err)

	var pathErr *PathError
	require.True(t, errors.As(err, &pathErr))
	assert.Equal(t, "empty segment", pathErr.Reason)
	assert.Equal(t, 1, tree.Len())
}

func TestTree_RejectsURNAtDifferentPath(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Insert(entry("T1", "taxonomy://lang/java", "Java")))

	err := tree.Insert(entry("T1", "taxonomy://lang/kotlin", "Kotlin"))
	require.Error(t, err)

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "taxonomy://lang/java", conflict.ExistingURL)
	assert.Equal(t, "taxonomy://lang/kotlin", conflict.URL)
	assert.True(t, errors.Is(err, catalog.ErrConflict))
	assert.False(t, tree.Contains("taxonomy://lang/kotlin"))
}

func TestTree_RejectsSecondURNAtSamePath(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Insert(entry("T1", "taxonomy://lang/java", "Java")))

	err := tree.Insert(entry("T9", "taxonomy://lang/java", "Other"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, catalog.ErrConflict))

	urlOfT1, ok := tree.LookupURN("T1")
	require.True(t, ok)
	assert.Equal(t, "taxonomy://lang/java", urlOfT1)
	_, ok = tree.LookupURN("T9")
	assert.False(t, ok)
}

func TestBuild_CollectsRejections(t *testing.T) {
	ref := entry("R1", "taxonomy://lang/ref", "Ref")
	ref.Type = catalog.EntryTypeReference

	tree, rejected := Build([]*catalog.TaxonomyURNEntry{
		entry("T1", "taxonomy://lang/java", "Java"),
		ref,
		entry("BAD", "taxonomy://", "Empty"),
		nil,
	})

	assert.Len(t, rejected, 3)
	assert.True(t, tree.Contains("taxonomy://lang/java"))
	assert.False(t, tree.Contains("taxonomy://lang/ref"))
}
