package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/datalogger/internal/ir"
)

// ErrEmptyPlanName is returned when archiving a capture without a plan name.
var ErrEmptyPlanName = errors.New("capture has no plan name")

// WriteCapture archives a finished capture and its channel table in one
// transaction. An empty ID is filled from the store's ID generator; Seq,
// PlanHash and DataDigest are always computed here.
//
// The plan is stored as msgpack and the data compressed with zstd. The
// returned capture carries the assigned ID and Seq.
func (s *Store) WriteCapture(ctx context.Context, c ir.Capture) (ir.Capture, error) {
	if c.PlanName == "" {
		return c, fmt.Errorf("write capture: %w", ErrEmptyPlanName)
	}
	if c.ID == "" {
		c.ID = s.ids.Generate()
	}

	planHash, err := ir.PlanHash(&c.Plan)
	if err != nil {
		return c, fmt.Errorf("write capture: %w", err)
	}
	c.PlanHash = planHash
	c.DataDigest = ir.DataDigest(c.Data)

	planBlob, err := marshalPlan(&c.Plan)
	if err != nil {
		return c, fmt.Errorf("write capture: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return c, fmt.Errorf("write capture: begin: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM captures`).Scan(&c.Seq); err != nil {
		return c, fmt.Errorf("write capture: next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO captures
		(id, seq, plan_name, plan_hash, plan, mode, final_state, overrun, ticks, time_base,
		 header, data, data_len, data_digest, engine_version, plan_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID,
		c.Seq,
		c.PlanName,
		c.PlanHash,
		planBlob,
		c.Mode,
		c.FinalState,
		boolToInt(c.Overrun),
		int64(c.Ticks),
		c.TimeBase,
		nullableBlob(c.Header),
		compressData(c.Data),
		len(c.Data),
		c.DataDigest,
		c.EngineVersion,
		c.PlanVersion,
	)
	if err != nil {
		return c, fmt.Errorf("write capture: %w", err)
	}

	for _, ch := range c.Channels {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO capture_channels
			(capture_id, slot, channel_id, variable, width, divider, record_length, byte_offset, samples)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			c.ID,
			ch.Slot,
			ch.ChannelID,
			ch.Variable,
			ch.Width,
			ch.Divider,
			ch.RecordLength,
			ch.Offset,
			ch.Samples,
		)
		if err != nil {
			return c, fmt.Errorf("write capture: channel %d: %w", ch.Slot, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return c, fmt.Errorf("write capture: commit: %w", err)
	}
	return c, nil
}

// DeleteCapture removes a capture and its channels. Deleting an unknown ID
// returns ErrNotFound.
func (s *Store) DeleteCapture(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM captures WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete capture: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete capture: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete capture %s: %w", id, ErrNotFound)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableBlob(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
