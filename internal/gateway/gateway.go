// Package gateway translates wire-format world and territory messages
// into calls against the territory core, and serializes authoritative
// state back into the same wire format. It is also the single event
// surface collaborators subscribe to: every externally observable
// territory transition flows through one typed handler instead of ad-hoc
// callback slots.
package gateway

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mtkocz/AdLands-sub002/internal/protocol"
	"github.com/mtkocz/AdLands-sub002/pkg/sphere"
)

// EventKind enumerates the observable territory transitions.
type EventKind int

const (
	EventOwnerChanged EventKind = iota
	EventSponsorClaimed
	EventSponsorRemoved
	EventWorldReplaced
)

// Event is one territory transition. OwnerChanged events fire exactly
// once per transition; repeated identical snapshots emit nothing.
type Event struct {
	Kind      EventKind
	ClusterID int
	SponsorID string
	From      sphere.Faction
	To        sphere.Faction
}

// Handler receives territory events. Called synchronously on the
// mutating goroutine; handlers must not block.
type Handler func(Event)

// Gateway binds a partition to the wire protocol.
type Gateway struct {
	partition *sphere.Partition
	visuals   map[int]protocol.ClusterVisual
	handler   Handler
}

// New creates a gateway over the given partition.
func New(p *sphere.Partition) *Gateway {
	return &Gateway{
		partition: p,
		visuals:   make(map[int]protocol.ClusterVisual),
	}
}

// Partition exposes the underlying partition for read access.
func (g *Gateway) Partition() *sphere.Partition { return g.partition }

// Visual returns the render metadata registered for a cluster.
func (g *Gateway) Visual(clusterID int) (protocol.ClusterVisual, bool) {
	v, ok := g.visuals[clusterID]
	return v, ok
}

// SetHandler registers the single event handler.
func (g *Gateway) SetHandler(h Handler) { g.handler = h }

func (g *Gateway) emit(ev Event) {
	if g.handler != nil {
		g.handler(ev)
	}
}

// ClaimSponsor carves out a sponsor cluster and records its visual.
// A claim whose every tile is special is a silent no-op, per the
// partition contract.
func (g *Gateway) ClaimSponsor(tiles []int, sponsorID string, visual protocol.ClusterVisual) (int, bool) {
	id, ok := g.partition.ClaimSponsorCluster(tiles, sponsorID)
	if !ok {
		return 0, false
	}
	g.visuals[id] = visual
	g.emit(Event{Kind: EventSponsorClaimed, ClusterID: id, SponsorID: sponsorID})
	return id, true
}

// RemoveSponsors removes a batch of sponsor clusters, dropping their
// visuals and emitting one removal event per sponsor that existed.
func (g *Gateway) RemoveSponsors(sponsorIDs []string) int {
	type removal struct {
		sponsorID string
		clusterID int
	}
	var existing []removal
	for _, sid := range sponsorIDs {
		if rec := g.partition.Sponsor(sid); rec != nil {
			existing = append(existing, removal{sponsorID: sid, clusterID: rec.ClusterID})
		}
	}
	removed := g.partition.RemoveSponsorClusters(sponsorIDs)
	for _, r := range existing {
		delete(g.visuals, r.clusterID)
		g.emit(Event{Kind: EventSponsorRemoved, ClusterID: r.clusterID, SponsorID: r.sponsorID})
	}
	return removed
}

// Contribute credits capture tics on the authoritative side and emits an
// ownership event when the cluster flips.
func (g *Gateway) Contribute(clusterID int, f sphere.Faction, amount int) bool {
	cs := g.partition.Capture(clusterID)
	if cs == nil {
		return false
	}
	change, flipped := cs.Contribute(f, amount)
	if flipped {
		g.emit(Event{
			Kind:      EventOwnerChanged,
			ClusterID: change.ClusterID,
			From:      change.From,
			To:        change.To,
		})
	}
	return flipped
}

// Scramble regenerates the background partition, preserving sponsor
// carve-outs and re-keying their visuals to the freshly allocated
// cluster ids.
func (g *Gateway) Scramble(seed int64) {
	bySponsor := make(map[string]protocol.ClusterVisual)
	for _, rec := range g.partition.Sponsors() {
		bySponsor[rec.ID] = g.visuals[rec.ClusterID]
	}
	g.partition.Scramble(seed)
	g.visuals = make(map[int]protocol.ClusterVisual, len(bySponsor))
	for _, rec := range g.partition.Sponsors() {
		g.visuals[rec.ClusterID] = bySponsor[rec.ID]
	}
	g.emit(Event{Kind: EventWorldReplaced})
}

// BuildWorldSnapshot serializes the full partition, visuals, and special
// tile sets for a `world-snapshot` message.
func (g *Gateway) BuildWorldSnapshot() protocol.WorldSnapshot {
	snap := g.partition.Snapshot()
	ws := protocol.WorldSnapshot{
		TileClusterMap: snap.TileCluster,
		Clusters:       make([]protocol.ClusterInfo, 0, len(snap.Clusters)),
		ClusterVisuals: make(map[int]protocol.ClusterVisual, len(g.visuals)),
	}
	for _, cl := range snap.Clusters {
		ws.Clusters = append(ws.Clusters, protocol.ClusterInfo{
			ID:               cl.ID,
			Tiles:            cl.Tiles,
			IsSponsorCluster: cl.SponsorID != "",
			SponsorID:        cl.SponsorID,
		})
	}
	for id, v := range g.visuals {
		ws.ClusterVisuals[id] = v
	}
	for _, t := range g.partition.Tiles() {
		if t.IsPortal {
			ws.PortalCenterIndices = append(ws.PortalCenterIndices, t.Index)
		}
		if t.IsPortal || t.IsPortalBorder {
			ws.PortalTileIndices = append(ws.PortalTileIndices, t.Index)
		}
		if t.IsPolar {
			ws.PolarTileIndices = append(ws.PolarTileIndices, t.Index)
		}
	}
	return ws
}

// ApplyWorldSnapshot wholesale-replaces local partition state with the
// server's. This is the trust boundary: local speculative edits are
// discarded. Idempotent by construction.
func (g *Gateway) ApplyWorldSnapshot(ws protocol.WorldSnapshot) error {
	if len(ws.TileClusterMap) != len(g.partition.Tiles()) {
		return fmt.Errorf("world snapshot covers %d tiles, world has %d",
			len(ws.TileClusterMap), len(g.partition.Tiles()))
	}
	snap := sphere.PartitionSnapshot{
		TileCluster: ws.TileClusterMap,
		Clusters:    make([]sphere.ClusterSnapshot, 0, len(ws.Clusters)),
	}
	for _, cl := range ws.Clusters {
		snap.Clusters = append(snap.Clusters, sphere.ClusterSnapshot{
			ID:        cl.ID,
			Tiles:     cl.Tiles,
			SponsorID: cl.SponsorID,
		})
	}
	g.partition.ApplySnapshot(snap)

	g.visuals = make(map[int]protocol.ClusterVisual, len(ws.ClusterVisuals))
	for id, v := range ws.ClusterVisuals {
		g.visuals[id] = v
	}
	g.emit(Event{Kind: EventWorldReplaced})
	return nil
}

// BuildTerritoryUpdate serializes the capture state of one cluster.
func (g *Gateway) BuildTerritoryUpdate(clusterID int) (protocol.TerritoryUpdate, bool) {
	cs := g.partition.Capture(clusterID)
	if cs == nil {
		return protocol.TerritoryUpdate{}, false
	}
	tu := protocol.TerritoryUpdate{
		ClusterID: clusterID,
		Owner:     cs.Owner().String(),
		Tics:      make(map[string]int),
		Momentum:  make(map[string]int),
	}
	for f, v := range cs.TicsSnapshot() {
		tu.Tics[f.String()] = v
	}
	for f, v := range cs.MomentumSnapshot() {
		tu.Momentum[f.String()] = v
	}
	return tu, true
}

// ApplyTerritoryUpdate overrides one cluster's capture state from a
// server broadcast. Updates for clusters the local partition does not
// know (a delta racing ahead of the next full snapshot) are tolerated
// and dropped; the next full snapshot reconciles. Emits an ownership
// event only when the owner actually changed.
func (g *Gateway) ApplyTerritoryUpdate(tu protocol.TerritoryUpdate) {
	cs := g.partition.Capture(tu.ClusterID)
	if cs == nil {
		log.Debug().Int("clusterId", tu.ClusterID).Msg("Territory update for unknown cluster dropped")
		return
	}
	tics := make(map[sphere.Faction]int, len(tu.Tics))
	for name, v := range tu.Tics {
		if f := sphere.ParseFaction(name); f != sphere.FactionNone {
			tics[f] = v
		}
	}
	change, flipped := cs.ApplyAuthoritative(sphere.ParseFaction(tu.Owner), tics)
	if len(tu.Momentum) > 0 {
		momentum := make(map[sphere.Faction]int, len(tu.Momentum))
		for name, v := range tu.Momentum {
			if f := sphere.ParseFaction(name); f != sphere.FactionNone {
				momentum[f] = v
			}
		}
		cs.SetMomentum(momentum)
	}
	if flipped {
		g.emit(Event{
			Kind:      EventOwnerChanged,
			ClusterID: change.ClusterID,
			From:      change.From,
			To:        change.To,
		})
	}
}
