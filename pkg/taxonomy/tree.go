package taxonomy

import (
	"fmt"
	"sort"

	"github.com/platinummonkey/catalog/pkg/catalog"
)

// Node is one position of a materialized taxonomy tree.
// A node with an empty URN is a placeholder for a path segment whose own
// entry has not been inserted.
type Node struct {
	URN           string            `json:"urn,omitempty"`
	Title         string            `json:"title,omitempty"`
	Description   string            `json:"description,omitempty"`
	URL           string            `json:"url"`
	ReferenceType catalog.EntryType `json:"referenceType,omitempty"`
	Children      []*Node           `json:"children,omitempty"`
}

// IsPlaceholder reports whether no entry occupies this node yet
func (n *Node) IsPlaceholder() bool {
	return n.URN == ""
}

type arenaNode struct {
	urn           string
	title         string
	description   string
	url           string
	referenceType catalog.EntryType
	parent        int
	children      []int
}

// Tree is a taxonomy forest stored as a node arena keyed by canonical URL.
// A Tree is owned by one caller and is not safe for concurrent use.
type Tree struct {
	nodes []arenaNode
	byURL map[string]int
	byURN map[string]int
	roots []int
}

// NewTree returns an empty tree
func NewTree() *Tree {
	return &Tree{
		byURL: make(map[string]int),
		byURN: make(map[string]int),
	}
}

// Build inserts every entry into a new tree. Entries that cannot be inserted
// are skipped and their errors returned; the rest of the tree is unaffected.
func Build(entries []*catalog.TaxonomyURNEntry) (*Tree, []error) {
	tree := NewTree()
	var rejected []error
	for _, entry := range entries {
		if err := tree.Insert(entry); err != nil {
			rejected = append(rejected, err)
		}
	}
	return tree, rejected
}

// Insert places one entry in the tree, creating placeholder nodes for any
// missing ancestors. Re-inserting an entry at its own path updates the node
// in place. The tree is left untouched when an error is returned.
func (t *Tree) Insert(entry *catalog.TaxonomyURNEntry) error {
	if entry == nil || entry.URN == "" {
		return fmt.Errorf("%w: taxonomy entry without urn", catalog.ErrInvalidArgument)
	}
	if entry.Type == catalog.EntryTypeReference {
		return ErrReferenceEntry
	}

	segs, err := Segments(entry.URL)
	if err != nil {
		return err
	}
	target := Join(segs)

	if idx, ok := t.byURN[entry.URN]; ok && t.nodes[idx].url != target {
		return &ConflictError{URN: entry.URN, ExistingURL: t.nodes[idx].url, URL: target}
	}
	if idx, ok := t.byURL[target]; ok && t.nodes[idx].urn != "" && t.nodes[idx].urn != entry.URN {
		return &ConflictError{URN: entry.URN, ExistingURL: target, URL: target}
	}

	parent := -1
	for depth := 1; depth <= len(segs); depth++ {
		url := Join(segs[:depth])
		idx, ok := t.byURL[url]
		if !ok {
			idx = t.add(url, parent)
		}
		parent = idx
	}

	node := &t.nodes[parent]
	node.urn = entry.URN
	node.title = entry.Title
	node.description = entry.Description
	node.referenceType = entry.Type
	t.byURN[entry.URN] = parent
	return nil
}

func (t *Tree) add(url string, parent int) int {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, arenaNode{url: url, parent: parent})
	t.byURL[url] = idx
	if parent < 0 {
		t.roots = append(t.roots, idx)
	} else {
		t.nodes[parent].children = append(t.nodes[parent].children, idx)
	}
	return idx
}

// Len returns the number of nodes, placeholders included
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Placeholders returns the canonical URLs of nodes without an entry, sorted
func (t *Tree) Placeholders() []string {
	var urls []string
	for _, n := range t.nodes {
		if n.urn == "" {
			urls = append(urls, n.url)
		}
	}
	sort.Strings(urls)
	return urls
}

// Contains reports whether a node exists at url
func (t *Tree) Contains(url string) bool {
	canonical, err := Canonical(url)
	if err != nil {
		return false
	}
	_, ok := t.byURL[canonical]
	return ok
}

// LookupURN returns the canonical URL of the node holding urn
func (t *Tree) LookupURN(urn string) (string, bool) {
	idx, ok := t.byURN[urn]
	if !ok {
		return "", false
	}
	return t.nodes[idx].url, true
}

// Roots materializes the forest. Children are ordered by URL so equal trees
// materialize identically.
func (t *Tree) Roots() []*Node {
	return t.materializeAll(t.roots)
}

// Subtree materializes the node at url and its descendants
func (t *Tree) Subtree(url string) (*Node, bool) {
	canonical, err := Canonical(url)
	if err != nil {
		return nil, false
	}
	idx, ok := t.byURL[canonical]
	if !ok {
		return nil, false
	}
	return t.materialize(idx), true
}

func (t *Tree) materializeAll(indexes []int) []*Node {
	if len(indexes) == 0 {
		return nil
	}
	nodes := make([]*Node, 0, len(indexes))
	for _, idx := range indexes {
		nodes = append(nodes, t.materialize(idx))
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].URL < nodes[j].URL
	})
	return nodes
}

func (t *Tree) materialize(idx int) *Node {
	n := t.nodes[idx]
	return &Node{
		URN:           n.urn,
		Title:         n.title,
		Description:   n.description,
		URL:           n.url,
		ReferenceType: n.referenceType,
		Children:      t.materializeAll(n.children),
	}
}
