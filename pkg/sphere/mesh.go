package sphere

import (
	"fmt"
	"math"
)

// portalStride spaces portal tiles evenly through the interior of the
// mesh. Portals are the pentagonal tiles; everything else is a quad.
const portalStride = 97

// Mesh is a deterministic ring/sector tiling of the unit sphere used when
// no externally generated world is available. It carries only the tiling
// metadata the territory core needs: boundary vertex keys and special
// flags. Positions, normals, and everything visual belong to the
// rendering layer and are out of scope here.
type Mesh struct {
	Rings   int
	Sectors int
	Tiles   []Tile
}

// GenerateMesh builds a rings x sectors tile mesh. Tiles on the first and
// last ring are polar. Every portalStride-th interior tile is a portal
// (5-sided). Deterministic for identical arguments.
func GenerateMesh(rings, sectors int) *Mesh {
	if rings < 3 || sectors < 3 {
		panic(fmt.Sprintf("sphere: mesh %dx%d too small, want >= 3x3", rings, sectors))
	}
	m := &Mesh{Rings: rings, Sectors: sectors, Tiles: make([]Tile, rings*sectors)}
	for r := 0; r < rings; r++ {
		for c := 0; c < sectors; c++ {
			idx := r*sectors + c
			t := Tile{
				Index:   idx,
				IsPolar: r == 0 || r == rings-1,
				VertexKeys: []uint64{
					cornerKey(r, c, rings, sectors),
					cornerKey(r, c+1, rings, sectors),
					cornerKey(r+1, c, rings, sectors),
					cornerKey(r+1, c+1, rings, sectors),
				},
			}
			if !t.IsPolar && idx%portalStride == portalStride/2 {
				// Pentagon: an extra vertex at the tile center, shared
				// with nobody, so adjacency is unaffected.
				ct, cp := m.tileCenter(r, c)
				t.VertexKeys = append(t.VertexKeys, VertexKey(sphericalToCartesian(ct, cp)))
			}
			m.Tiles[idx] = t
		}
	}
	markSpecialTiles(m.Tiles)
	return m
}

// cornerKey returns the vertex key of mesh grid corner (r, c). Longitude
// wraps; the pole rows collapse every corner to a single vertex.
func cornerKey(r, c, rings, sectors int) uint64 {
	theta := math.Pi * float64(r) / float64(rings)
	phi := 2 * math.Pi * float64(c%sectors) / float64(sectors)
	return VertexKey(sphericalToCartesian(theta, phi))
}

func sphericalToCartesian(theta, phi float64) (x, y, z float64) {
	return math.Sin(theta) * math.Cos(phi), math.Sin(theta) * math.Sin(phi), math.Cos(theta)
}

// markSpecialTiles derives the IsPortal flag from the boundary vertex
// count (5-sided tiles are portals). Portal borders are filled in by
// MarkPortalBorders once the adjacency graph exists.
func markSpecialTiles(tiles []Tile) {
	for i := range tiles {
		tiles[i].IsPortal = len(tiles[i].VertexKeys) == 5
	}
}

// MarkPortalBorders flags every non-portal neighbor of a portal tile.
func MarkPortalBorders(tiles []Tile, graph *AdjacencyGraph) {
	for i := range tiles {
		if !tiles[i].IsPortal {
			continue
		}
		for _, n := range graph.Neighbors(i) {
			if !tiles[n].IsPortal {
				tiles[n].IsPortalBorder = true
			}
		}
	}
}

// ExcludedTiles returns the index set excluded from the initial
// background fill: portals, portal borders, and polar tiles.
func ExcludedTiles(tiles []Tile) map[int]bool {
	out := make(map[int]bool)
	for i := range tiles {
		if tiles[i].IsPortal || tiles[i].IsPortalBorder || tiles[i].IsPolar {
			out[i] = true
		}
	}
	return out
}

// tileCenter returns the angular center of grid cell (r, c).
func (m *Mesh) tileCenter(r, c int) (theta, phi float64) {
	theta = math.Pi * (float64(r) + 0.5) / float64(m.Rings)
	phi = 2 * math.Pi * (float64(c) + 0.5) / float64(m.Sectors)
	return theta, phi
}

// TileAt maps an angular position to the tile index containing it.
func (m *Mesh) TileAt(theta, phi float64) int {
	r := int(theta / math.Pi * float64(m.Rings))
	if r < 0 {
		r = 0
	}
	if r >= m.Rings {
		r = m.Rings - 1
	}
	phi = math.Mod(phi, 2*math.Pi)
	if phi < 0 {
		phi += 2 * math.Pi
	}
	c := int(phi / (2 * math.Pi) * float64(m.Sectors))
	if c >= m.Sectors {
		c = m.Sectors - 1
	}
	return r*m.Sectors + c
}
