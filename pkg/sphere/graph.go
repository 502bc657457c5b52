package sphere

import (
	"fmt"
	"math"
	"sort"
)

// vertexPrecision quantizes float coordinates before hashing so that
// vertices computed independently by neighboring tiles collapse to the
// same key despite floating-point noise.
const vertexPrecision = 1e4

// VertexKey hashes a 3D boundary vertex to a stable integer key with
// fixed precision. Tiles sharing a physical vertex share the key.
func VertexKey(x, y, z float64) uint64 {
	qx := uint64(int64(math.Round(x*vertexPrecision))) & 0x1FFFFF
	qy := uint64(int64(math.Round(y*vertexPrecision))) & 0x1FFFFF
	qz := uint64(int64(math.Round(z*vertexPrecision))) & 0x1FFFFF
	return qx<<42 | qy<<21 | qz
}

// AdjacencyGraph is the symmetric tile-neighbor relation in CSR form:
// the neighbors of tile i are neighbors[offsets[i]:offsets[i+1]], sorted
// ascending. Built once at world generation, read-only thereafter.
type AdjacencyGraph struct {
	offsets   []int32
	neighbors []int32
}

// BuildAdjacency constructs the adjacency graph from tile boundary
// vertices: two tiles are neighbors iff they share at least one vertex
// key. Deterministic for identical input. A tile with fewer than 3
// boundary vertices is malformed mesh input and panics; this is a
// world-load precondition, never a runtime condition.
func BuildAdjacency(tiles []Tile) *AdjacencyGraph {
	byVertex := make(map[uint64][]int32)
	for i := range tiles {
		if len(tiles[i].VertexKeys) < 3 {
			panic(fmt.Sprintf("sphere: tile %d has %d boundary vertices, want >= 3", i, len(tiles[i].VertexKeys)))
		}
		for _, k := range tiles[i].VertexKeys {
			byVertex[k] = append(byVertex[k], int32(i))
		}
	}

	sets := make([]map[int32]struct{}, len(tiles))
	for i := range sets {
		sets[i] = make(map[int32]struct{})
	}
	for _, shared := range byVertex {
		for _, a := range shared {
			for _, b := range shared {
				if a != b {
					sets[a][b] = struct{}{}
				}
			}
		}
	}

	g := &AdjacencyGraph{offsets: make([]int32, len(tiles)+1)}
	for i, set := range sets {
		row := make([]int32, 0, len(set))
		for n := range set {
			row = append(row, n)
		}
		sort.Slice(row, func(a, b int) bool { return row[a] < row[b] })
		g.neighbors = append(g.neighbors, row...)
		g.offsets[i+1] = int32(len(g.neighbors))
	}
	return g
}

// TileCount returns the number of tiles the graph was built over.
func (g *AdjacencyGraph) TileCount() int {
	return len(g.offsets) - 1
}

// Neighbors returns the sorted neighbor indices of a tile. The returned
// slice aliases the graph's storage and must not be mutated.
func (g *AdjacencyGraph) Neighbors(tile int) []int32 {
	return g.neighbors[g.offsets[tile]:g.offsets[tile+1]]
}

// Adjacent reports whether b is a neighbor of a.
func (g *AdjacencyGraph) Adjacent(a, b int) bool {
	row := g.Neighbors(a)
	lo, hi := 0, len(row)
	for lo < hi {
		mid := (lo + hi) / 2
		if row[mid] < int32(b) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo < len(row) && row[lo] == int32(b)
}
