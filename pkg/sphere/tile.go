package sphere

// TicsPerTile is the per-tile multiplier for a cluster's capture capacity.
const TicsPerTile = 5

// Faction is one of the three capturing teams. FactionNone is the zero
// value and marks unclaimed territory.
type Faction int

const (
	FactionNone Faction = iota
	Rust
	Cobalt
	Viridian
)

// AllFactions returns the playable factions (excluding FactionNone).
func AllFactions() []Faction {
	return []Faction{Rust, Cobalt, Viridian}
}

// String returns the wire name of the faction ("" for FactionNone).
func (f Faction) String() string {
	switch f {
	case Rust:
		return "rust"
	case Cobalt:
		return "cobalt"
	case Viridian:
		return "viridian"
	}
	return ""
}

// ParseFaction maps a wire name back to a Faction. Unknown names map to
// FactionNone, matching the wire convention that "" means unowned.
func ParseFaction(s string) Faction {
	switch s {
	case "rust":
		return Rust
	case "cobalt":
		return Cobalt
	case "viridian":
		return Viridian
	}
	return FactionNone
}

// Tile is a single cell of the fixed spherical mesh. Identity is the index
// into the world's tile slice; everything except cluster assignment is
// immutable after world generation.
type Tile struct {
	Index          int
	VertexKeys     []uint64 // hashed boundary vertex keys, shared with neighbors
	IsPortal       bool
	IsPortalBorder bool
	IsPolar        bool
}

// Unassignable reports whether the tile is permanently excluded from
// cluster membership. Portal-border tiles stay assignable; they are only
// excluded from the initial background fill by the caller.
func (t *Tile) Unassignable() bool {
	return t.IsPortal || t.IsPolar
}
