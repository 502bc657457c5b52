package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mtkocz/AdLands-sub002/internal/repository"
	"github.com/mtkocz/AdLands-sub002/pkg/sphere"
)

// SponsorRepo handles sponsor record database operations.
type SponsorRepo struct {
	db *sql.DB
}

// NewSponsorRepo creates a SponsorRepo.
func NewSponsorRepo(db *sql.DB) *SponsorRepo {
	return &SponsorRepo{db: db}
}

// Save inserts or updates a sponsor record.
func (r *SponsorRepo) Save(ctx context.Context, s repository.StoredSponsor) error {
	var capturedAt sql.NullTime
	if !s.Record.CapturedAt.IsZero() {
		capturedAt = sql.NullTime{Time: s.Record.CapturedAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sponsors (id, cluster_id, tiles, owner, captured_at, hold_duration_ms, color, pattern)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   cluster_id = EXCLUDED.cluster_id,
		   tiles = EXCLUDED.tiles,
		   owner = EXCLUDED.owner,
		   captured_at = EXCLUDED.captured_at,
		   hold_duration_ms = EXCLUDED.hold_duration_ms,
		   color = EXCLUDED.color,
		   pattern = EXCLUDED.pattern`,
		s.Record.ID, s.Record.ClusterID, pq.Array(toInt64(s.Record.ClaimedTiles)),
		s.Record.Owner.String(), capturedAt, s.Record.HoldDuration.Milliseconds(),
		s.Visual.Color, s.Visual.Pattern,
	)
	if err != nil {
		return fmt.Errorf("save sponsor: %w", err)
	}
	return nil
}

// Delete removes a sponsor record. Missing records are not an error.
func (r *SponsorRepo) Delete(ctx context.Context, sponsorID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sponsors WHERE id = $1`, sponsorID); err != nil {
		return fmt.Errorf("delete sponsor: %w", err)
	}
	return nil
}

// List returns all sponsor records, oldest claim first.
func (r *SponsorRepo) List(ctx context.Context) ([]repository.StoredSponsor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, cluster_id, tiles, owner, captured_at, hold_duration_ms, color, pattern
		 FROM sponsors ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list sponsors: %w", err)
	}
	defer rows.Close()

	var out []repository.StoredSponsor
	for rows.Next() {
		var (
			s          repository.StoredSponsor
			tiles      pq.Int64Array
			owner      string
			capturedAt sql.NullTime
			holdMs     int64
		)
		if err := rows.Scan(&s.Record.ID, &s.Record.ClusterID, &tiles, &owner,
			&capturedAt, &holdMs, &s.Visual.Color, &s.Visual.Pattern); err != nil {
			return nil, fmt.Errorf("scan sponsor: %w", err)
		}
		s.Record.ClaimedTiles = make([]int, len(tiles))
		for i, t := range tiles {
			s.Record.ClaimedTiles[i] = int(t)
		}
		s.Record.Owner = sphere.ParseFaction(owner)
		if capturedAt.Valid {
			s.Record.CapturedAt = capturedAt.Time
		}
		s.Record.HoldDuration = time.Duration(holdMs) * time.Millisecond
		out = append(out, s)
	}
	return out, rows.Err()
}

func toInt64(in []int) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}
