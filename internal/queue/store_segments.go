package queue

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// ListVideoAssets returns the source clips of a run in upload order.
func (s *Store) ListVideoAssets(ctx context.Context, runID string) ([]VideoAsset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assetColumns+` FROM video_assets WHERE run_id = ? ORDER BY sort_order, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list video assets: %w", err)
	}
	defer rows.Close()

	var assets []VideoAsset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video asset: %w", err)
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

// ReplaceSegments swaps the run's segment list atomically. Indexes are
// reassigned in slice order; empty ids are generated.
func (s *Store) ReplaceSegments(ctx context.Context, runID string, segments []Segment) ([]Segment, error) {
	out := make([]Segment, len(segments))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("clear segments: %w", err)
		}
		for i, seg := range segments {
			if seg.ID == "" {
				seg.ID = uuid.NewString()
			}
			seg.RunID = runID
			seg.Index = i
			if seg.Duration <= 0 {
				seg.Duration = DefaultSegmentDuration
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO segments (`+segmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				seg.ID, seg.RunID, seg.Index, nullableString(seg.AssetID), seg.VideoRef,
				seg.StartSeconds, seg.Duration, nullableString(seg.NarrationText),
				nullableString(seg.EmotionTag), seg.ShockScore, nullableString(seg.Cue),
				nullableString(seg.AudioRef), seg.AudioDuration,
			); err != nil {
				return fmt.Errorf("insert segment %d: %w", i, err)
			}
			out[i] = seg
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replace segments: %w", err)
	}
	return out, nil
}

// ListSegments returns the run's segments in timeline order.
func (s *Store) ListSegments(ctx context.Context, runID string) ([]Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var segments []Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// ApplyScript writes narration text and cues onto existing segments in one transaction.
func (s *Store) ApplyScript(ctx context.Context, runID string, scripts []SegmentScript) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, sc := range scripts {
			res, err := tx.ExecContext(ctx,
				`UPDATE segments SET narration_text = ?, cue = ? WHERE id = ? AND run_id = ?`,
				nullableString(sc.Text), nullableString(sc.Cue), sc.SegmentID, runID,
			)
			if err != nil {
				return fmt.Errorf("update segment %s: %w", sc.SegmentID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("segment %s not found in run %s", sc.SegmentID, runID)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply script: %w", err)
	}
	return nil
}

// SetSegmentAudio caches the narration artifact produced for a segment.
func (s *Store) SetSegmentAudio(ctx context.Context, segmentID, ref string, duration float64) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE segments SET audio_ref = ?, audio_duration = ? WHERE id = ?`,
		nullableString(ref), duration, segmentID,
	); err != nil {
		return fmt.Errorf("set segment audio: %w", err)
	}
	return nil
}
