package store

import (
	"context"
	"errors"
	"testing"

	"github.com/roach88/datalogger/internal/ir"
)

func TestWriteCapture_AssignsIDAndSeq(t *testing.T) {
	s := createTestStore(t, WithIDGenerator(NewFixedGenerator("cap-1", "cap-2")))
	ctx := context.Background()

	first, err := s.WriteCapture(ctx, createTestCapture("bench", []byte{1, 2, 3, 4, 0, 5, 0, 7}))
	if err != nil {
		t.Fatalf("WriteCapture() failed: %v", err)
	}
	second, err := s.WriteCapture(ctx, createTestCapture("bench", []byte{9}))
	if err != nil {
		t.Fatalf("WriteCapture() failed: %v", err)
	}

	if first.ID != "cap-1" || second.ID != "cap-2" {
		t.Errorf("ids = %q, %q; want cap-1, cap-2", first.ID, second.ID)
	}
	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("seqs = %d, %d; want 1, 2", first.Seq, second.Seq)
	}
}

func TestWriteCapture_KeepsExplicitID(t *testing.T) {
	s := createTestStore(t, WithIDGenerator(NewFixedGenerator()))

	c := createTestCapture("bench", []byte{1})
	c.ID = "explicit"
	got, err := s.WriteCapture(context.Background(), c)
	if err != nil {
		t.Fatalf("WriteCapture() failed: %v", err)
	}
	if got.ID != "explicit" {
		t.Errorf("ID = %q, want explicit", got.ID)
	}
}

func TestWriteCapture_ComputesHashes(t *testing.T) {
	s := createTestStore(t)
	c := createTestCapture("bench", []byte{1, 2})
	c.PlanHash = "stale"
	c.DataDigest = "stale"

	got, err := s.WriteCapture(context.Background(), c)
	if err != nil {
		t.Fatalf("WriteCapture() failed: %v", err)
	}
	if want := ir.MustPlanHash(&c.Plan); got.PlanHash != want {
		t.Errorf("PlanHash = %q, want %q", got.PlanHash, want)
	}
	if want := ir.DataDigest([]byte{1, 2}); got.DataDigest != want {
		t.Errorf("DataDigest = %q, want %q", got.DataDigest, want)
	}
}

func TestWriteCapture_RejectsEmptyPlanName(t *testing.T) {
	s := createTestStore(t)
	_, err := s.WriteCapture(context.Background(), createTestCapture("", nil))
	if !errors.Is(err, ErrEmptyPlanName) {
		t.Errorf("err = %v, want ErrEmptyPlanName", err)
	}
}

func TestWriteCapture_DuplicateIDFailsAtomically(t *testing.T) {
	s := createTestStore(t, WithIDGenerator(NewFixedGenerator("dup", "dup")))
	ctx := context.Background()

	if _, err := s.WriteCapture(ctx, createTestCapture("bench", []byte{1})); err != nil {
		t.Fatalf("first WriteCapture() failed: %v", err)
	}
	if _, err := s.WriteCapture(ctx, createTestCapture("bench", []byte{2})); err == nil {
		t.Fatal("second WriteCapture() with the same id should fail")
	}

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM capture_channels").Scan(&n); err != nil {
		t.Fatalf("count channels: %v", err)
	}
	if n != 2 {
		t.Errorf("channel rows = %d, want 2 (failed write must roll back)", n)
	}
}

func TestDeleteCapture_CascadesChannels(t *testing.T) {
	s := createTestStore(t, WithIDGenerator(NewFixedGenerator("gone")))
	ctx := context.Background()

	if _, err := s.WriteCapture(ctx, createTestCapture("bench", []byte{1})); err != nil {
		t.Fatalf("WriteCapture() failed: %v", err)
	}
	if err := s.DeleteCapture(ctx, "gone"); err != nil {
		t.Fatalf("DeleteCapture() failed: %v", err)
	}

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM capture_channels").Scan(&n); err != nil {
		t.Fatalf("count channels: %v", err)
	}
	if n != 0 {
		t.Errorf("channel rows = %d after delete, want 0", n)
	}

	if err := s.DeleteCapture(ctx, "gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteCapture() err = %v, want ErrNotFound", err)
	}
}
