// Package affinity projects trait dimensions onto a hierarchical
// interest taxonomy, calibrating raw label similarities through the
// tree structure.
package affinity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Validation failures that abort a batch run.
var (
	ErrCycle  = errors.New("taxonomy contains a cycle")
	ErrOrphan = errors.New("taxonomy node references an unknown parent")
)

// NodeSpec is one node as declared in the taxonomy file. An empty
// parent marks a root; a forest of multiple roots is valid.
type NodeSpec struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Parent string `json:"parent,omitempty"`
}

// Node is a materialized taxonomy node.
type Node struct {
	ID       string
	Label    string
	Parent   string   // empty for roots
	Children []string // child ids, sorted
	Depth    int      // 0 for roots
	Path     string   // "Root > ... > this node", by label
}

// Taxonomy is a validated, immutable tree (or forest) of nodes.
type Taxonomy struct {
	nodes map[string]*Node
	order []string // ids sorted by (depth, id): a valid top-down order
}

// New validates the node specs and materializes the tree. Duplicate
// ids, unknown parents and parent cycles are all fatal.
func New(specs []NodeSpec) (*Taxonomy, error) {
	nodes := make(map[string]*Node, len(specs))
	for _, s := range specs {
		if s.ID == "" {
			return nil, fmt.Errorf("taxonomy node %q: empty id", s.Label)
		}
		if _, dup := nodes[s.ID]; dup {
			return nil, fmt.Errorf("taxonomy node %s: duplicate id", s.ID)
		}
		label := s.Label
		if label == "" {
			label = s.ID
		}
		nodes[s.ID] = &Node{ID: s.ID, Label: label, Parent: s.Parent}
	}

	for _, n := range nodes {
		if n.Parent == "" {
			continue
		}
		parent, ok := nodes[n.Parent]
		if !ok {
			return nil, fmt.Errorf("node %s -> %s: %w", n.ID, n.Parent, ErrOrphan)
		}
		parent.Children = append(parent.Children, n.ID)
	}
	for _, n := range nodes {
		sort.Strings(n.Children)
	}

	// Walk each ancestor chain; a chain longer than the node count
	// can only mean a cycle.
	for _, n := range nodes {
		depth := 0
		labels := []string{n.Label}
		for cur := n; cur.Parent != ""; {
			cur = nodes[cur.Parent]
			labels = append(labels, cur.Label)
			depth++
			if depth > len(nodes) {
				return nil, fmt.Errorf("node %s: %w", n.ID, ErrCycle)
			}
		}
		n.Depth = depth
		for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
			labels[i], labels[j] = labels[j], labels[i]
		}
		n.Path = strings.Join(labels, " > ")
	}

	order := make([]string, 0, len(nodes))
	for id := range nodes {
		order = append(order, id)
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := nodes[order[i]], nodes[order[j]]
		if a.Depth != b.Depth {
			return a.Depth < b.Depth
		}
		return a.ID < b.ID
	})

	return &Taxonomy{nodes: nodes, order: order}, nil
}

// Load reads a taxonomy from a JSON file holding a list of node specs.
func Load(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy %s: %w", path, err)
	}
	var specs []NodeSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse taxonomy %s: %w", path, err)
	}
	return New(specs)
}

// Get returns the node for id, or false if unknown.
func (t *Taxonomy) Get(id string) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// TopDown returns node ids in an order where every parent precedes
// its children.
func (t *Taxonomy) TopDown() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// BottomUp returns node ids in an order where every child precedes
// its parent.
func (t *Taxonomy) BottomUp() []string {
	out := make([]string, len(t.order))
	for i, id := range t.order {
		out[len(t.order)-1-i] = id
	}
	return out
}

// IsLeaf reports whether the node has no children.
func (t *Taxonomy) IsLeaf(id string) bool {
	n, ok := t.nodes[id]
	return ok && len(n.Children) == 0
}

// Len returns the number of nodes.
func (t *Taxonomy) Len() int {
	return len(t.nodes)
}
