package sphere

import (
	"fmt"
	"math/rand"
	"sort"
	"time"
)

// BackgroundClusterID is the permanent background cluster. It always
// exists, even when momentarily empty.
const BackgroundClusterID = 0

// Unassigned marks a tile that belongs to no cluster (portal/polar).
const Unassigned = -1

// Cluster is one ownable territory unit: a set of member tiles plus an
// optional sponsor binding.
type Cluster struct {
	ID        int
	Tiles     []int
	SponsorID string // "" for the background and other non-sponsor clusters
}

// IsSponsor reports whether the cluster is a sponsor carve-out.
func (c *Cluster) IsSponsor() bool { return c.SponsorID != "" }

// SponsorRecord is the durable record of a sponsor carve-out: which
// cluster it owns, the tiles originally claimed, and the hold timer that
// bounds how long a capturing faction keeps it.
type SponsorRecord struct {
	ID           string
	ClusterID    int
	ClaimedTiles []int
	Owner        Faction
	CapturedAt   time.Time
	HoldDuration time.Duration
}

// HoldExpired reports whether the sponsor's hold timer has lapsed at now.
// A record with no owner or no hold duration never expires.
func (r *SponsorRecord) HoldExpired(now time.Time) bool {
	if r.Owner == FactionNone || r.HoldDuration <= 0 {
		return false
	}
	return now.After(r.CapturedAt.Add(r.HoldDuration))
}

// Partition owns the authoritative tile -> cluster mapping for one world:
// the background cluster, all sponsor carve-outs, and the capture state of
// every capturable (sponsor) cluster. All state is instance-owned so
// multiple worlds can coexist and tests stay isolated.
type Partition struct {
	tiles       []Tile
	graph       *AdjacencyGraph
	tileCluster []int
	clusters    map[int]*Cluster
	sponsors    map[string]*SponsorRecord
	captures    map[int]*CaptureState
	nextID      int
}

// NewPartition creates an empty partition over the given mesh. The graph
// must have been built over the same tiles; a mismatch is a world-load
// precondition violation and panics.
func NewPartition(tiles []Tile, graph *AdjacencyGraph) *Partition {
	if graph.TileCount() != len(tiles) {
		panic(fmt.Sprintf("sphere: graph covers %d tiles, mesh has %d", graph.TileCount(), len(tiles)))
	}
	p := &Partition{
		tiles:       tiles,
		graph:       graph,
		tileCluster: make([]int, len(tiles)),
		clusters:    make(map[int]*Cluster),
		sponsors:    make(map[string]*SponsorRecord),
		captures:    make(map[int]*CaptureState),
		nextID:      BackgroundClusterID + 1,
	}
	for i := range p.tileCluster {
		p.tileCluster[i] = Unassigned
	}
	p.clusters[BackgroundClusterID] = &Cluster{ID: BackgroundClusterID}
	return p
}

// Initialize assigns every tile not in excluded to the background
// cluster. Excluded is the union of portal, portal-border, and polar
// tiles plus any tiles already held by sponsor clusters. Existing sponsor
// clusters survive; their capture states reset, since initialization is a
// rebuild from scratch.
func (p *Partition) Initialize(excluded map[int]bool) {
	bg := p.clusters[BackgroundClusterID]
	bg.Tiles = bg.Tiles[:0]
	for i := range p.tiles {
		if excluded[i] {
			continue
		}
		if cid := p.tileCluster[i]; cid != Unassigned && cid != BackgroundClusterID {
			continue
		}
		p.tileCluster[i] = BackgroundClusterID
		bg.Tiles = append(bg.Tiles, i)
	}
	for _, cs := range p.captures {
		cs.Reset()
	}
}

// ClaimSponsorCluster carves the given tiles out of their current
// clusters into a freshly allocated sponsor cluster. Portal and polar
// tiles are silently dropped from the request; if nothing claimable
// remains the whole claim is a documented no-op (claim nothing rather
// than create a degenerate cluster) and ok is false. A sponsor id that is
// already claimed is also a no-op. Tile indices out of range panic:
// that is a malformed request from world-load code, not a runtime case.
func (p *Partition) ClaimSponsorCluster(tileIndices []int, sponsorID string) (clusterID int, ok bool) {
	if _, exists := p.sponsors[sponsorID]; exists {
		return 0, false
	}

	seen := make(map[int]bool, len(tileIndices))
	claimed := make([]int, 0, len(tileIndices))
	for _, idx := range tileIndices {
		if idx < 0 || idx >= len(p.tiles) {
			panic(fmt.Sprintf("sphere: claim tile index %d out of range [0,%d)", idx, len(p.tiles)))
		}
		if seen[idx] || p.tiles[idx].Unassignable() {
			continue
		}
		seen[idx] = true
		claimed = append(claimed, idx)
	}
	if len(claimed) == 0 {
		return 0, false
	}

	id := p.nextID
	p.nextID++
	for _, idx := range claimed {
		p.detachTile(idx)
		p.tileCluster[idx] = id
	}
	cl := &Cluster{ID: id, Tiles: append([]int(nil), claimed...), SponsorID: sponsorID}
	p.clusters[id] = cl
	p.sponsors[sponsorID] = &SponsorRecord{
		ID:           sponsorID,
		ClusterID:    id,
		ClaimedTiles: append([]int(nil), claimed...),
	}
	p.captures[id] = NewCaptureState(id, len(claimed))
	return id, true
}

// detachTile removes a tile from its current cluster's member list and
// recomputes capacity if that cluster is capturable.
func (p *Partition) detachTile(idx int) {
	cid := p.tileCluster[idx]
	if cid == Unassigned {
		return
	}
	cl := p.clusters[cid]
	for i, t := range cl.Tiles {
		if t == idx {
			cl.Tiles = append(cl.Tiles[:i], cl.Tiles[i+1:]...)
			break
		}
	}
	if cs, capturable := p.captures[cid]; capturable {
		cs.setCapacityForTiles(len(cl.Tiles))
	}
	p.tileCluster[idx] = Unassigned
}

// RemoveSponsorCluster removes a single sponsor carve-out. See
// RemoveSponsorClusters for the reassignment guarantees.
func (p *Partition) RemoveSponsorCluster(sponsorID string) bool {
	return p.RemoveSponsorClusters([]string{sponsorID}) == 1
}

// RemoveSponsorClusters removes a batch of sponsor carve-outs and
// reassigns every vacated tile to a neighboring non-sponsor cluster.
// Reassignment runs two neighbor-scan passes (the second pass picks up
// tiles whose only resolved neighbors were themselves vacated in this
// batch) and then falls back to the background cluster for anything
// still unresolved, so partition totality holds unconditionally even
// when an entire connected region is orphaned at once. Returns how many
// of the named sponsors actually existed.
func (p *Partition) RemoveSponsorClusters(sponsorIDs []string) int {
	var vacated []int
	removed := 0
	for _, sid := range sponsorIDs {
		rec, ok := p.sponsors[sid]
		if !ok {
			continue
		}
		removed++
		cl := p.clusters[rec.ClusterID]
		for _, idx := range cl.Tiles {
			p.tileCluster[idx] = Unassigned
			vacated = append(vacated, idx)
		}
		delete(p.clusters, rec.ClusterID)
		delete(p.captures, rec.ClusterID)
		delete(p.sponsors, sid)
	}
	if removed == 0 {
		return 0
	}

	pending := vacated
	for pass := 0; pass < 2 && len(pending) > 0; pass++ {
		pending = p.reassignByNeighbors(pending)
	}
	for _, idx := range pending {
		p.assignTile(idx, BackgroundClusterID)
	}
	return removed
}

// reassignByNeighbors assigns each pending tile to the first neighboring
// non-sponsor cluster, returning the tiles that found none.
func (p *Partition) reassignByNeighbors(pending []int) []int {
	var unresolved []int
	for _, idx := range pending {
		target := Unassigned
		for _, n := range p.graph.Neighbors(idx) {
			cid := p.tileCluster[n]
			if cid == Unassigned {
				continue
			}
			if cl := p.clusters[cid]; cl != nil && !cl.IsSponsor() {
				target = cid
				break
			}
		}
		if target == Unassigned {
			unresolved = append(unresolved, idx)
			continue
		}
		p.assignTile(idx, target)
	}
	return unresolved
}

func (p *Partition) assignTile(idx, clusterID int) {
	p.tileCluster[idx] = clusterID
	cl := p.clusters[clusterID]
	cl.Tiles = append(cl.Tiles, idx)
}

// Scramble regenerates the background partition while preserving every
// sponsor cluster's tile set and capture progress. Sponsor clusters are
// re-inserted under freshly allocated ids in a seed-shuffled order, so
// callers that index sponsors by cluster id must re-resolve afterwards.
func (p *Partition) Scramble(seed int64) {
	type held struct {
		rec     *SponsorRecord
		tiles   []int
		capture *CaptureState
	}
	var kept []held
	for _, rec := range p.sponsors {
		cl := p.clusters[rec.ClusterID]
		kept = append(kept, held{rec: rec, tiles: cl.Tiles, capture: p.captures[rec.ClusterID]})
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].rec.ClusterID < kept[j].rec.ClusterID })
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(kept), func(i, j int) { kept[i], kept[j] = kept[j], kept[i] })

	bgTiles := make([]int, 0, len(p.tiles))
	for idx, cid := range p.tileCluster {
		if cid == Unassigned {
			continue
		}
		if cl := p.clusters[cid]; cl != nil && !cl.IsSponsor() {
			bgTiles = append(bgTiles, idx)
			p.tileCluster[idx] = BackgroundClusterID
		}
	}

	p.clusters = map[int]*Cluster{
		BackgroundClusterID: {ID: BackgroundClusterID, Tiles: bgTiles},
	}
	p.captures = make(map[int]*CaptureState, len(kept))
	p.nextID = BackgroundClusterID + 1

	for _, h := range kept {
		id := p.nextID
		p.nextID++
		p.clusters[id] = &Cluster{ID: id, Tiles: h.tiles, SponsorID: h.rec.ID}
		for _, idx := range h.tiles {
			p.tileCluster[idx] = id
		}
		h.rec.ClusterID = id
		h.capture.rebind(id)
		p.captures[id] = h.capture
	}
}

// ClusterSnapshot is the serializable form of one cluster.
type ClusterSnapshot struct {
	ID        int
	Tiles     []int
	SponsorID string
}

// PartitionSnapshot is the serializable form of the whole partition.
type PartitionSnapshot struct {
	TileCluster []int
	Clusters    []ClusterSnapshot
}

// Snapshot returns a deep copy of the partition in deterministic order.
func (p *Partition) Snapshot() PartitionSnapshot {
	snap := PartitionSnapshot{
		TileCluster: append([]int(nil), p.tileCluster...),
		Clusters:    make([]ClusterSnapshot, 0, len(p.clusters)),
	}
	for _, cl := range p.clusters {
		snap.Clusters = append(snap.Clusters, ClusterSnapshot{
			ID:        cl.ID,
			Tiles:     append([]int(nil), cl.Tiles...),
			SponsorID: cl.SponsorID,
		})
	}
	sort.Slice(snap.Clusters, func(i, j int) bool { return snap.Clusters[i].ID < snap.Clusters[j].ID })
	return snap
}

// ApplySnapshot wholesale-replaces the partition with server-provided
// state. This is the trust boundary: any local speculative edits are
// discarded. Capture states are recreated fresh for sponsor clusters
// (subsequent territory updates repopulate them). Idempotent: applying
// the same snapshot twice yields identical state.
func (p *Partition) ApplySnapshot(snap PartitionSnapshot) {
	if len(snap.TileCluster) != len(p.tiles) {
		panic(fmt.Sprintf("sphere: snapshot covers %d tiles, mesh has %d", len(snap.TileCluster), len(p.tiles)))
	}
	copy(p.tileCluster, snap.TileCluster)
	p.clusters = make(map[int]*Cluster, len(snap.Clusters))
	p.sponsors = make(map[string]*SponsorRecord)
	p.captures = make(map[int]*CaptureState)
	maxID := BackgroundClusterID
	for _, cs := range snap.Clusters {
		cl := &Cluster{
			ID:        cs.ID,
			Tiles:     append([]int(nil), cs.Tiles...),
			SponsorID: cs.SponsorID,
		}
		p.clusters[cs.ID] = cl
		if cs.ID > maxID {
			maxID = cs.ID
		}
		if cl.IsSponsor() {
			p.sponsors[cs.SponsorID] = &SponsorRecord{
				ID:           cs.SponsorID,
				ClusterID:    cs.ID,
				ClaimedTiles: append([]int(nil), cs.Tiles...),
			}
			p.captures[cs.ID] = NewCaptureState(cs.ID, len(cs.Tiles))
		}
	}
	if p.clusters[BackgroundClusterID] == nil {
		p.clusters[BackgroundClusterID] = &Cluster{ID: BackgroundClusterID}
	}
	p.nextID = maxID + 1
}

// ClusterOf returns the cluster id a tile belongs to, or Unassigned.
func (p *Partition) ClusterOf(tile int) int { return p.tileCluster[tile] }

// Cluster returns a cluster by id, or nil.
func (p *Partition) Cluster(id int) *Cluster { return p.clusters[id] }

// Clusters returns all clusters sorted by id.
func (p *Partition) Clusters() []*Cluster {
	out := make([]*Cluster, 0, len(p.clusters))
	for _, cl := range p.clusters {
		out = append(out, cl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Capture returns the capture state of a capturable cluster, or nil.
func (p *Partition) Capture(clusterID int) *CaptureState { return p.captures[clusterID] }

// Sponsor returns a sponsor record by id, or nil.
func (p *Partition) Sponsor(id string) *SponsorRecord { return p.sponsors[id] }

// Sponsors returns all sponsor records sorted by cluster id.
func (p *Partition) Sponsors() []*SponsorRecord {
	out := make([]*SponsorRecord, 0, len(p.sponsors))
	for _, rec := range p.sponsors {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClusterID < out[j].ClusterID })
	return out
}

// Tiles returns the immutable tile slice the partition was built over.
func (p *Partition) Tiles() []Tile { return p.tiles }

// Graph returns the adjacency graph the partition was built over.
func (p *Partition) Graph() *AdjacencyGraph { return p.graph }
