// Package repository defines the persistence interfaces the service
// layer depends on. Implementations live in the postgres and redis
// subpackages; tests substitute in-memory fakes.
package repository

import (
	"context"

	"github.com/mtkocz/AdLands-sub002/internal/protocol"
	"github.com/mtkocz/AdLands-sub002/pkg/sphere"
)

// StoredSponsor pairs a sponsor record with its render metadata.
type StoredSponsor struct {
	Record sphere.SponsorRecord
	Visual protocol.ClusterVisual
}

// SponsorRepository is the durable store of sponsor carve-outs.
type SponsorRepository interface {
	// Save inserts or updates a sponsor record.
	Save(ctx context.Context, s StoredSponsor) error
	// Delete removes a sponsor record. Deleting a missing record is not
	// an error.
	Delete(ctx context.Context, sponsorID string) error
	// List returns all sponsor records, oldest claim first.
	List(ctx context.Context) ([]StoredSponsor, error)
}

// WorldStateStore is the live world state cache that lets a restarted
// server rehydrate without regenerating territory.
type WorldStateStore interface {
	SaveSnapshot(ctx context.Context, ws protocol.WorldSnapshot) error
	// LoadSnapshot returns nil, nil when no snapshot is stored.
	LoadSnapshot(ctx context.Context) (*protocol.WorldSnapshot, error)
	SaveTerritory(ctx context.Context, tu protocol.TerritoryUpdate) error
	// DeleteTerritory drops one cluster's cached capture state. Deleting
	// a missing entry is not an error.
	DeleteTerritory(ctx context.Context, clusterID int) error
	LoadTerritories(ctx context.Context) ([]protocol.TerritoryUpdate, error)
	// Clear drops the cached world (used before a full regeneration).
	Clear(ctx context.Context) error
}
