package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/mtkocz/AdLands-sub002/internal/protocol"
)

// Key layout for the live world cache.
const (
	snapshotKey  = "world:snapshot"
	territoryKey = "world:territory" // hash: clusterID -> territory update JSON
)

// SaveSnapshot stores the full world snapshot.
func (c *Client) SaveSnapshot(ctx context.Context, ws protocol.WorldSnapshot) error {
	data, err := json.Marshal(ws)
	if err != nil {
		return fmt.Errorf("marshal world snapshot: %w", err)
	}
	return c.rdb.Set(ctx, snapshotKey, data, 0).Err()
}

// LoadSnapshot retrieves the stored world snapshot, or nil if none.
func (c *Client) LoadSnapshot(ctx context.Context) (*protocol.WorldSnapshot, error) {
	data, err := c.rdb.Get(ctx, snapshotKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get world snapshot: %w", err)
	}
	var ws protocol.WorldSnapshot
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("unmarshal world snapshot: %w", err)
	}
	return &ws, nil
}

// SaveTerritory stores the capture state of one cluster. Territory
// updates are independent per cluster, so a hash field per cluster id
// gives last-write-wins without read-modify-write.
func (c *Client) SaveTerritory(ctx context.Context, tu protocol.TerritoryUpdate) error {
	data, err := json.Marshal(tu)
	if err != nil {
		return fmt.Errorf("marshal territory update: %w", err)
	}
	return c.rdb.HSet(ctx, territoryKey, strconv.Itoa(tu.ClusterID), data).Err()
}

// DeleteTerritory drops one cluster's cached capture state.
func (c *Client) DeleteTerritory(ctx context.Context, clusterID int) error {
	return c.rdb.HDel(ctx, territoryKey, strconv.Itoa(clusterID)).Err()
}

// LoadTerritories retrieves all stored per-cluster capture states.
func (c *Client) LoadTerritories(ctx context.Context) ([]protocol.TerritoryUpdate, error) {
	fields, err := c.rdb.HGetAll(ctx, territoryKey).Result()
	if err != nil {
		return nil, fmt.Errorf("get territories: %w", err)
	}
	out := make([]protocol.TerritoryUpdate, 0, len(fields))
	for _, raw := range fields {
		var tu protocol.TerritoryUpdate
		if err := json.Unmarshal([]byte(raw), &tu); err != nil {
			return nil, fmt.Errorf("unmarshal territory update: %w", err)
		}
		out = append(out, tu)
	}
	return out, nil
}

// Clear drops the cached world state ahead of a regeneration.
func (c *Client) Clear(ctx context.Context) error {
	return c.rdb.Del(ctx, snapshotKey, territoryKey).Err()
}
