package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/datalogger/internal/ir"
	"github.com/roach88/datalogger/internal/queryir"
	"github.com/roach88/datalogger/internal/querysql"
)

// ErrNotFound is returned when no capture has the requested ID.
var ErrNotFound = errors.New("capture not found")

// ListCaptures returns capture summaries in archive order. A non-empty
// planName restricts the listing to that plan.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListCaptures(ctx context.Context, planName string) ([]ir.CaptureSummary, error) {
	var q queryir.Select
	if planName != "" {
		q.Filter = queryir.Equals{Field: queryir.FieldPlanName, Value: planName}
	}
	return s.QueryCaptures(ctx, q)
}

// QueryCaptures returns the summaries of captures matching q.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) QueryCaptures(ctx context.Context, q queryir.Select) ([]ir.CaptureSummary, error) {
	query, args, err := querysql.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compile capture query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query captures: %w", err)
	}
	defer rows.Close()

	out := []ir.CaptureSummary{}
	for rows.Next() {
		var c ir.CaptureSummary
		var overrun int
		if err := rows.Scan(&c.ID, &c.Seq, &c.PlanName, &c.PlanHash, &c.Mode, &c.FinalState, &overrun, &c.DataLen); err != nil {
			return nil, fmt.Errorf("scan capture: %w", err)
		}
		c.Overrun = overrun != 0
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate captures: %w", err)
	}
	return out, nil
}

// ReadCapture loads a full capture, decompressing its data and verifying
// the stored digest.
func (s *Store) ReadCapture(ctx context.Context, id string) (ir.Capture, error) {
	var (
		c        ir.Capture
		planBlob []byte
		header   []byte
		dataBlob []byte
		dataLen  int
		overrun  int
		ticks    int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, seq, plan_name, plan_hash, plan, mode, final_state, overrun, ticks, time_base,
		       header, data, data_len, data_digest, engine_version, plan_version
		FROM captures
		WHERE id = ?
	`, id).Scan(
		&c.ID,
		&c.Seq,
		&c.PlanName,
		&c.PlanHash,
		&planBlob,
		&c.Mode,
		&c.FinalState,
		&overrun,
		&ticks,
		&c.TimeBase,
		&header,
		&dataBlob,
		&dataLen,
		&c.DataDigest,
		&c.EngineVersion,
		&c.PlanVersion,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("read capture %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return c, fmt.Errorf("read capture %s: %w", id, err)
	}
	c.Overrun = overrun != 0
	c.Ticks = uint64(ticks)
	c.Header = header

	plan, err := unmarshalPlan(planBlob)
	if err != nil {
		return c, fmt.Errorf("read capture %s: %w", id, err)
	}
	c.Plan = *plan

	data, err := decompressData(dataBlob)
	if err != nil {
		return c, fmt.Errorf("read capture %s: %w", id, err)
	}
	if len(data) != dataLen {
		return c, fmt.Errorf("read capture %s: data is %d bytes, expected %d", id, len(data), dataLen)
	}
	if got := ir.DataDigest(data); got != c.DataDigest {
		return c, fmt.Errorf("read capture %s: digest mismatch", id)
	}
	c.Data = data

	channels, err := s.readChannels(ctx, id)
	if err != nil {
		return c, err
	}
	c.Channels = channels
	return c, nil
}

func (s *Store) readChannels(ctx context.Context, id string) ([]ir.CaptureChannel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT slot, channel_id, variable, width, divider, record_length, byte_offset, samples
		FROM capture_channels
		WHERE capture_id = ?
		ORDER BY slot ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	out := []ir.CaptureChannel{}
	for rows.Next() {
		var ch ir.CaptureChannel
		if err := rows.Scan(&ch.Slot, &ch.ChannelID, &ch.Variable, &ch.Width, &ch.Divider, &ch.RecordLength, &ch.Offset, &ch.Samples); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}
	return out, nil
}
