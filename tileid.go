package lod

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	// NumRootPatches is the number of base patches the sphere is split into.
	// Each root patch is the root of its own quad tree.
	NumRootPatches = 12

	// MaxTreeLevel is the deepest level a TileId can encode (2 bits per
	// level in a uint64 path).
	MaxTreeLevel = 31
)

// TileId identifies a node of the spherical quad tree. It is an immutable
// value: the zero TileId is the root of patch 0. Path stores the sequence of
// child indices (0-3) from the root to this node, two bits per level, the
// index for level 1 in the lowest bits.
type TileId struct {
	RootPatch uint8
	Level     uint8
	Path      uint64
}

// NewTileId creates a TileId from a root patch, level and packed path.
func NewTileId(rootPatch, level int, path uint64) TileId {
	return TileId{RootPatch: uint8(rootPatch), Level: uint8(level), Path: path}
}

// RootTileId returns the TileId of the given root patch.
func RootTileId(rootPatch int) TileId {
	return TileId{RootPatch: uint8(rootPatch)}
}

// IsRoot reports whether the id denotes a root patch.
func (id TileId) IsRoot() bool {
	return id.Level == 0
}

// PathElement returns the child index taken at the given level (1-based).
func (id TileId) PathElement(level int) int {
	return int(id.Path >> (2 * uint(level-1)) & 0x3)
}

// Parent returns the id of the parent tile. Root tiles have no parent,
// calling Parent on one is a programming error.
func (id TileId) Parent() TileId {
	if id.Level == 0 {
		panic("lod: root tile has no parent")
	}
	mask := uint64(1)<<(2*uint(id.Level-1)) - 1
	return TileId{RootPatch: id.RootPatch, Level: id.Level - 1, Path: id.Path & mask}
}

// Child returns the id of child i (0-3).
func (id TileId) Child(i int) TileId {
	if i < 0 || i > 3 {
		panic("lod: child index out of range")
	}
	if id.Level >= MaxTreeLevel {
		panic("lod: maximum tree level exceeded")
	}
	return TileId{
		RootPatch: id.RootPatch,
		Level:     id.Level + 1,
		Path:      id.Path | uint64(i)<<(2*uint(id.Level)),
	}
}

// String renders the id as "root/level/path" with one digit per level,
// ordered from the root down, e.g. "7/3/012".
func (id TileId) String() string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(int(id.RootPatch)))
	sb.WriteByte('/')
	sb.WriteString(strconv.Itoa(int(id.Level)))
	sb.WriteByte('/')
	for l := 1; l <= int(id.Level); l++ {
		sb.WriteByte(byte('0' + id.PathElement(l)))
	}
	return sb.String()
}

// ParseTileId parses the string form produced by String.
func ParseTileId(s string) (TileId, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return TileId{}, errors.Errorf("malformed tile id %q", s)
	}
	root, err := strconv.Atoi(parts[0])
	if err != nil || root < 0 || root >= NumRootPatches {
		return TileId{}, errors.Errorf("malformed root patch in tile id %q", s)
	}
	level, err := strconv.Atoi(parts[1])
	if err != nil || level < 0 || level > MaxTreeLevel {
		return TileId{}, errors.Errorf("malformed level in tile id %q", s)
	}
	if len(parts[2]) != level {
		return TileId{}, errors.Errorf("path length does not match level in tile id %q", s)
	}
	id := RootTileId(root)
	for _, c := range parts[2] {
		if c < '0' || c > '3' {
			return TileId{}, errors.Errorf("malformed path element in tile id %q", s)
		}
		id = id.Child(int(c - '0'))
	}
	return id, nil
}

// Siblings returns the ids of all four children of this tile's parent,
// including the tile itself.
func (id TileId) Siblings() [4]TileId {
	p := id.Parent()
	var s [4]TileId
	for i := range s {
		s[i] = p.Child(i)
	}
	return s
}

var _ fmt.Stringer = TileId{}
