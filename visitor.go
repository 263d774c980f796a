package lod

// MaxStackDepth bounds the traversal stack and thereby the deepest level a
// visitor can reach.
const MaxStackDepth = 32

// TileVisitor traverses one or two quad trees in lockstep, calling the
// configured callbacks. The pre callbacks return whether the traversal
// should descend into the node's children; a nil callback behaves as if it
// returned true. Children missing from the elevation tree are skipped, the
// imagery node handed to a callback is nil when the imagery tree has no
// node at that position (callers fall back to the nearest loaded ancestor).
type TileVisitor struct {
	TreeDEM *TileQuadTree
	TreeIMG *TileQuadTree

	PreTraverse   func() bool
	PostTraverse  func()
	PreVisitRoot  func(id TileId, dem, img *TileNode) bool
	PostVisitRoot func(id TileId)
	PreVisit      func(id TileId, dem, img *TileNode) bool
	PostVisit     func(id TileId)
}

// Visit runs one traversal over all root patches.
func (v *TileVisitor) Visit() {
	if v.PreTraverse != nil && !v.PreTraverse() {
		if v.PostTraverse != nil {
			v.PostTraverse()
		}
		return
	}

	for i := 0; i < NumRootPatches; i++ {
		dem := v.TreeDEM.Root(i)
		if dem == nil {
			continue
		}
		var img *TileNode
		if v.TreeIMG != nil {
			img = v.TreeIMG.Root(i)
		}

		id := RootTileId(i)
		descend := true
		if v.PreVisitRoot != nil {
			descend = v.PreVisitRoot(id, dem, img)
		}
		if descend {
			v.visitChildren(dem, img)
		}
		if v.PostVisitRoot != nil {
			v.PostVisitRoot(id)
		}
	}

	if v.PostTraverse != nil {
		v.PostTraverse()
	}
}

func (v *TileVisitor) visitChildren(dem, img *TileNode) {
	for i := 0; i < 4; i++ {
		childDEM := dem.Child(i)
		if childDEM == nil {
			continue
		}
		var childIMG *TileNode
		if img != nil {
			childIMG = img.Child(i)
		}

		id := childDEM.TileId()
		descend := true
		if v.PreVisit != nil {
			descend = v.PreVisit(id, childDEM, childIMG)
		}
		if descend {
			v.visitChildren(childDEM, childIMG)
		}
		if v.PostVisit != nil {
			v.PostVisit(id)
		}
	}
}
