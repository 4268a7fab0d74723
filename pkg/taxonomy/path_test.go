package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegments(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected []string
	}{
		{name: "root leaf", url: "taxonomy://domain", expected: []string{"domain"}},
		{name: "nested", url: "taxonomy://domain/sub/leaf", expected: []string{"domain", "sub", "leaf"}},
		{name: "mixed case", url: "Taxonomy://Domain/SUB", expected: []string{"domain", "sub"}},
		{name: "leading and trailing slash", url: "taxonomy:///domain/sub/", expected: []string{"domain", "sub"}},
		{name: "no scheme", url: "domain/sub", expected: []string{"domain", "sub"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs, err := Segments(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, segs)
		})
	}
}

func TestSegments_Malformed(t *testing.T) {
	for _, url := range []string{"", "taxonomy://", "taxonomy:///", "taxonomy://a//b", "taxonomy://a/ /b"} {
		t.Run(url, func(t *testing.T) {
			_, err := Segments(url)
			require.Error(t, err)
			assert.True(t, IsPathError(err))
		})
	}
}

func TestCanonical(t *testing.T) {
	canonical, err := Canonical("TAXONOMY://Lang/Java/")
	require.NoError(t, err)
	assert.Equal(t, "taxonomy://lang/java", canonical)
}

func TestWithin(t *testing.T) {
	tests := []struct {
		url    string
		prefix string
		within bool
	}{
		{"taxonomy://a", "taxonomy://a", true},
		{"taxonomy://a/b", "taxonomy://a", true},
		{"taxonomy://A/b/c", "taxonomy://a/B", true},
		{"taxonomy://ab", "taxonomy://a", false},
		{"taxonomy://a", "taxonomy://a/b", false},
		{"taxonomy://b/a", "taxonomy://a", false},
		{"taxonomy://a//b", "taxonomy://a", false},
	}

	for _, tt := range tests {
		t.Run(tt.url+" in "+tt.prefix, func(t *testing.T) {
			assert.Equal(t, tt.within, Within(tt.url, tt.prefix))
		})
	}
}

func TestDepth(t *testing.T) {
	assert.Equal(t, 3, Depth("taxonomy://a/b/c"))
	assert.Equal(t, 0, Depth("taxonomy://"))
}
