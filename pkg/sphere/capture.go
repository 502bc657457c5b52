package sphere

// OwnerChange describes a single ownership transition of a capturable
// cluster. It is reported exactly once per transition.
type OwnerChange struct {
	ClusterID int
	From      Faction
	To        Faction
}

// CaptureState is the tug-of-war accumulator for one capturable cluster.
// Tics only grow until a faction reaches capacity, at which point that
// faction takes ownership and the whole board clears. Momentum is a
// server-computed rate signal for visuals; it never decides ownership.
type CaptureState struct {
	clusterID int
	capacity  int
	owner     Faction
	tics      map[Faction]int
	momentum  map[Faction]int
}

// NewCaptureState creates the capture state for a cluster with the given
// member tile count. Capacity is always memberTiles * TicsPerTile.
func NewCaptureState(clusterID, memberTiles int) *CaptureState {
	return &CaptureState{
		clusterID: clusterID,
		capacity:  memberTiles * TicsPerTile,
		tics:      make(map[Faction]int),
		momentum:  make(map[Faction]int),
	}
}

// ClusterID returns the cluster this state is bound to.
func (c *CaptureState) ClusterID() int { return c.clusterID }

// Capacity returns the tic threshold for an ownership flip.
func (c *CaptureState) Capacity() int { return c.capacity }

// Owner returns the current owner, or FactionNone if unclaimed.
func (c *CaptureState) Owner() Faction { return c.owner }

// Tics returns the accumulated contribution for a faction.
func (c *CaptureState) Tics(f Faction) int { return c.tics[f] }

// Momentum returns the authoritative momentum value for a faction.
func (c *CaptureState) Momentum(f Faction) int { return c.momentum[f] }

// setCapacityForTiles recomputes capacity after a membership change.
func (c *CaptureState) setCapacityForTiles(memberTiles int) {
	c.capacity = memberTiles * TicsPerTile
}

// rebind repoints the state at a new cluster id, preserving progress.
// Used when a scramble reallocates sponsor cluster ids.
func (c *CaptureState) rebind(clusterID int) {
	c.clusterID = clusterID
}

// Contribute adds amount tics for the faction. Amounts below 1 are
// ignored; contribution never decreases. When the faction reaches
// capacity it becomes the owner and every faction's tics and momentum
// reset to zero in the same transition. Returns the ownership change and
// true iff the owner flipped.
func (c *CaptureState) Contribute(f Faction, amount int) (OwnerChange, bool) {
	if f == FactionNone || amount <= 0 {
		return OwnerChange{}, false
	}
	c.tics[f] += amount
	if c.capacity <= 0 || c.tics[f] < c.capacity {
		return OwnerChange{}, false
	}
	change := OwnerChange{ClusterID: c.clusterID, From: c.owner, To: f}
	c.owner = f
	c.clearBoard()
	return change, true
}

// ApplyAuthoritative overwrites owner and tics wholesale from a server
// broadcast. Capture progress is server-computed; clients only display
// it. Returns the ownership change and true iff the owner actually
// differs, so repeated identical snapshots report nothing.
func (c *CaptureState) ApplyAuthoritative(owner Faction, tics map[Faction]int) (OwnerChange, bool) {
	clear(c.tics)
	for f, v := range tics {
		c.tics[f] = v
	}
	if owner == c.owner {
		return OwnerChange{}, false
	}
	change := OwnerChange{ClusterID: c.clusterID, From: c.owner, To: owner}
	c.owner = owner
	return change, true
}

// SetMomentum overwrites the momentum board from the authoritative source.
func (c *CaptureState) SetMomentum(momentum map[Faction]int) {
	clear(c.momentum)
	for f, v := range momentum {
		c.momentum[f] = v
	}
}

// Reset clears owner, tics, and momentum. Called when the partition is
// rebuilt from scratch (world regeneration or full resync).
func (c *CaptureState) Reset() {
	c.owner = FactionNone
	c.clearBoard()
}

// TicsSnapshot returns a copy of the tic board.
func (c *CaptureState) TicsSnapshot() map[Faction]int {
	out := make(map[Faction]int, len(c.tics))
	for f, v := range c.tics {
		out[f] = v
	}
	return out
}

// MomentumSnapshot returns a copy of the momentum board.
func (c *CaptureState) MomentumSnapshot() map[Faction]int {
	out := make(map[Faction]int, len(c.momentum))
	for f, v := range c.momentum {
		out[f] = v
	}
	return out
}

func (c *CaptureState) clearBoard() {
	clear(c.tics)
	clear(c.momentum)
}
