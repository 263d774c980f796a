package lod

import (
	"github.com/pkg/errors"
)

// TileNode is a node of one data set's quad tree. A node owns its children:
// removing a node from the tree drops the whole subtree. The parent link is
// a plain back-pointer used for lookups only, it must never be used to keep
// a node alive.
type TileNode struct {
	id       TileId
	data     *TileData
	parent   *TileNode
	children [4]*TileNode
}

// NewTileNode creates a node holding the given data.
func NewTileNode(id TileId, data *TileData) *TileNode {
	return &TileNode{id: id, data: data}
}

// TileId returns the node's identity.
func (n *TileNode) TileId() TileId {
	return n.id
}

// Data returns the node's sample grid. A node without data is pending and
// must not be rendered or refined into.
func (n *TileNode) Data() *TileData {
	return n.data
}

// Parent returns the parent node, nil for roots.
func (n *TileNode) Parent() *TileNode {
	return n.parent
}

// Child returns child i (0-3), nil if not loaded.
func (n *TileNode) Child(i int) *TileNode {
	return n.children[i]
}

// ChildCount returns the number of present children.
func (n *TileNode) ChildCount() int {
	c := 0
	for _, ch := range n.children {
		if ch != nil {
			c++
		}
	}
	return c
}

// IsLeaf reports whether the node has no children.
func (n *TileNode) IsLeaf() bool {
	return n.ChildCount() == 0
}

// TileQuadTree holds the 12 per-root-patch quad trees of one data set.
type TileQuadTree struct {
	roots [NumRootPatches]*TileNode
	count int
}

// NewTileQuadTree creates an empty tree.
func NewTileQuadTree() *TileQuadTree {
	return &TileQuadTree{}
}

// Root returns the root node of the given patch, nil if not loaded.
func (t *TileQuadTree) Root(i int) *TileNode {
	return t.roots[i]
}

// NodeCount returns the total number of nodes in all 12 trees.
func (t *TileQuadTree) NodeCount() int {
	return t.count
}

// Insert attaches the node at the position encoded in its TileId. For
// non-root nodes the parent must already be present.
func (t *TileQuadTree) Insert(n *TileNode) error {
	if n.id.Level == 0 {
		if t.roots[n.id.RootPatch] != nil {
			return errors.Errorf("root %s already present", n.id)
		}
		t.roots[n.id.RootPatch] = n
		t.count++
		return nil
	}

	parent := t.Find(n.id.Parent())
	if parent == nil {
		return errors.Errorf("parent of %s not present", n.id)
	}
	slot := n.id.PathElement(int(n.id.Level))
	if parent.children[slot] != nil {
		return errors.Errorf("node %s already present", n.id)
	}
	parent.children[slot] = n
	n.parent = parent
	t.count++
	return nil
}

// Find returns the node with the given id, nil if not present.
func (t *TileQuadTree) Find(id TileId) *TileNode {
	n := t.roots[id.RootPatch]
	for l := 1; l <= int(id.Level) && n != nil; l++ {
		n = n.children[id.PathElement(l)]
	}
	return n
}

// Remove detaches the node (and thereby its subtree) from the tree. Roots
// cannot be removed.
func (t *TileQuadTree) Remove(n *TileNode) error {
	if n.parent == nil {
		return errors.Errorf("cannot remove root node %s", n.id)
	}
	slot := n.id.PathElement(int(n.id.Level))
	if n.parent.children[slot] != n {
		return errors.Errorf("node %s is not attached to its parent", n.id)
	}
	n.parent.children[slot] = nil
	t.count -= subtreeSize(n)
	n.parent = nil
	return nil
}

func subtreeSize(n *TileNode) int {
	size := 1
	for _, ch := range n.children {
		if ch != nil {
			size += subtreeSize(ch)
		}
	}
	return size
}

// Walk visits all nodes of all trees in post-order (children before their
// parent), so eviction scans see leaves first.
func (t *TileQuadTree) Walk(visit func(n *TileNode)) {
	for _, root := range t.roots {
		if root != nil {
			walkPostOrder(root, visit)
		}
	}
}

func walkPostOrder(n *TileNode, visit func(n *TileNode)) {
	for _, ch := range n.children {
		if ch != nil {
			walkPostOrder(ch, visit)
		}
	}
	visit(n)
}
