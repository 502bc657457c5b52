package sphere

import (
	"reflect"
	"testing"
)

// quad builds a 4-vertex tile from explicit vertex keys.
func quad(index int, keys ...uint64) Tile {
	return Tile{Index: index, VertexKeys: keys}
}

func TestBuildAdjacency_SharedVertex(t *testing.T) {
	// Three tiles in a row: 0-1 share keys 2,5; 1-2 share keys 3,6.
	// 0 and 2 share nothing.
	tiles := []Tile{
		quad(0, 1, 2, 4, 5),
		quad(1, 2, 3, 5, 6),
		quad(2, 3, 7, 6, 8),
	}
	g := BuildAdjacency(tiles)

	if got := g.Neighbors(0); !reflect.DeepEqual(got, []int32{1}) {
		t.Errorf("Neighbors(0) = %v, want [1]", got)
	}
	if got := g.Neighbors(1); !reflect.DeepEqual(got, []int32{0, 2}) {
		t.Errorf("Neighbors(1) = %v, want [0 2]", got)
	}
	if g.Adjacent(0, 2) {
		t.Error("tiles 0 and 2 share no vertex, should not be adjacent")
	}
}

func TestBuildAdjacency_Symmetry(t *testing.T) {
	m := GenerateMesh(8, 12)
	g := BuildAdjacency(m.Tiles)

	for a := 0; a < g.TileCount(); a++ {
		for _, b := range g.Neighbors(a) {
			if !g.Adjacent(int(b), a) {
				t.Fatalf("adjacency not symmetric: %d -> %d but not %d -> %d", a, b, b, a)
			}
		}
	}
}

func TestBuildAdjacency_Deterministic(t *testing.T) {
	a := BuildAdjacency(GenerateMesh(8, 12).Tiles)
	b := BuildAdjacency(GenerateMesh(8, 12).Tiles)
	if !reflect.DeepEqual(a, b) {
		t.Error("identical mesh input should produce identical adjacency")
	}
}

func TestBuildAdjacency_NoSelfLoop(t *testing.T) {
	g := BuildAdjacency(GenerateMesh(6, 8).Tiles)
	for i := 0; i < g.TileCount(); i++ {
		for _, n := range g.Neighbors(i) {
			if int(n) == i {
				t.Fatalf("tile %d lists itself as a neighbor", i)
			}
		}
	}
}

func TestBuildAdjacency_MalformedTilePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("degenerate tile with 2 vertices should panic at build time")
		}
	}()
	BuildAdjacency([]Tile{quad(0, 1, 2)})
}

func TestVertexKey_FixedPrecision(t *testing.T) {
	// Coordinates differing only by float noise below the quantization
	// step must collapse to the same key.
	a := VertexKey(0.5, -0.25, 0.125)
	b := VertexKey(0.5+1e-9, -0.25-1e-9, 0.125)
	if a != b {
		t.Error("keys should be equal within quantization precision")
	}
	c := VertexKey(0.5, -0.25, 0.126)
	if a == c {
		t.Error("distinct vertices should get distinct keys")
	}
}

func TestGenerateMesh_PortalFlags(t *testing.T) {
	m := GenerateMesh(10, 20)
	g := BuildAdjacency(m.Tiles)
	MarkPortalBorders(m.Tiles, g)

	portals := 0
	for i := range m.Tiles {
		tl := &m.Tiles[i]
		if tl.IsPortal {
			portals++
			if len(tl.VertexKeys) != 5 {
				t.Errorf("portal tile %d has %d vertices, want 5", i, len(tl.VertexKeys))
			}
			if tl.IsPolar {
				t.Errorf("portal tile %d must not be polar", i)
			}
		}
	}
	if portals == 0 {
		t.Fatal("mesh should contain at least one portal tile")
	}

	// Every non-portal neighbor of a portal is flagged as border.
	for i := range m.Tiles {
		if !m.Tiles[i].IsPortal {
			continue
		}
		for _, n := range g.Neighbors(i) {
			if !m.Tiles[n].IsPortal && !m.Tiles[n].IsPortalBorder {
				t.Fatalf("tile %d neighbors portal %d but is not a portal border", n, i)
			}
		}
	}
}
