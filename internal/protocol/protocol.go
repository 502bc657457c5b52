package protocol

import "encoding/json"

// Message types. World snapshots and per-cluster territory updates ride
// the same ordered WebSocket, so the transport guarantees each logical
// channel stays in order relative to itself.
const (
	MsgWelcome         = "welcome"
	MsgWorldSnapshot   = "world-snapshot"
	MsgTerritoryUpdate = "territory-update"
	MsgInput           = "input"
	MsgState           = "state"
)

// Tick rates. Clients simulate at render rate but throttle input
// transmission down to the server tick rate.
const (
	ServerTickHz = 20
	ClientSimHz  = 60
)

// Envelope wraps every message with its type tag.
type Envelope struct {
	T string          `json:"t"`
	P json.RawMessage `json:"p"`
}

// Welcome is sent once per connection, immediately after the upgrade.
type Welcome struct {
	PlayerID string        `json:"playerId"`
	Faction  string        `json:"faction"`
	TickRate int           `json:"tickRate"`
	World    WorldSnapshot `json:"worldSnapshot"`
}

// WorldSnapshot is the complete territory state. Applying one always
// fully replaces local state, never merges.
type WorldSnapshot struct {
	TileClusterMap      []int                 `json:"tileClusterMap"` // -1 for unassigned tiles
	Clusters            []ClusterInfo         `json:"clusters"`
	ClusterVisuals      map[int]ClusterVisual `json:"clusterVisuals"`
	PortalCenterIndices []int                 `json:"portalCenterIndices"`
	PortalTileIndices   []int                 `json:"portalTileIndices"`
	PolarTileIndices    []int                 `json:"polarTileIndices"`
}

// ClusterInfo describes one cluster inside a world snapshot.
type ClusterInfo struct {
	ID               int    `json:"id"`
	Tiles            []int  `json:"tiles"`
	IsSponsorCluster bool   `json:"isSponsorCluster"`
	SponsorID        string `json:"sponsorId,omitempty"`
}

// ClusterVisual is the render metadata for one cluster. The territory
// core never interprets it; it is carried for the rendering layer.
type ClusterVisual struct {
	Color   string `json:"color"`
	Pattern string `json:"pattern"`
}

// TerritoryUpdate is the incremental capture-state broadcast for a single
// cluster. Updates for different clusters are independent; delivery for
// the same cluster must be in order (last write wins).
type TerritoryUpdate struct {
	ClusterID int            `json:"clusterId"`
	Owner     string         `json:"owner"` // "" when unowned
	Tics      map[string]int `json:"tics"`
	Momentum  map[string]int `json:"momentum,omitempty"`
}

// KeyState is the full movement key state; each input carries the whole
// state rather than a delta, so only the latest input per transmission
// window needs to reach the server.
type KeyState struct {
	W     bool `json:"w"`
	A     bool `json:"a"`
	S     bool `json:"s"`
	D     bool `json:"d"`
	Shift bool `json:"shift"`
}

// Input is a client -> server movement input, throttled to ServerTickHz.
type Input struct {
	Keys        KeyState `json:"keys"`
	TurretAngle float64  `json:"turretAngle"`
	Seq         int      `json:"seq"`
}

// State is the authoritative actor pose: angular sphere coordinates,
// heading, speed, and the sequence number of the last processed input.
type State struct {
	T   float64 `json:"t"`
	P   float64 `json:"p"`
	H   float64 `json:"h"`
	S   float64 `json:"s"`
	Seq int     `json:"seq"`
}
