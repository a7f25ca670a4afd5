package store

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/datalogger/internal/ir"
)

// encoder and decoder for zstd are reusable and thread-safe
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

func compressData(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)))
}

func decompressData(blob []byte) ([]byte, error) {
	data, err := zstdDecoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress data: %w", err)
	}
	return data, nil
}

// planBlob is the archived form of a plan. Schema is bumped whenever the
// layout of ir.CapturePlan changes incompatibly.
type planBlob struct {
	Schema uint16
	Plan   ir.CapturePlan
}

const planBlobSchema uint16 = 1

func marshalPlan(p *ir.CapturePlan) ([]byte, error) {
	b, err := msgpack.Marshal(&planBlob{Schema: planBlobSchema, Plan: *p})
	if err != nil {
		return nil, fmt.Errorf("marshal plan: %w", err)
	}
	return b, nil
}

func unmarshalPlan(b []byte) (*ir.CapturePlan, error) {
	var blob planBlob
	if err := msgpack.Unmarshal(b, &blob); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	if blob.Schema != planBlobSchema {
		return nil, fmt.Errorf("unmarshal plan: schema %d, want %d", blob.Schema, planBlobSchema)
	}
	return &blob.Plan, nil
}
