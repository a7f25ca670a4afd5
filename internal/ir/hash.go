package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainPlan    = "datalogger/plan/v1"
	DomainCapture = "datalogger/capture/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PlanHash identifies a plan by content. Two plans that differ only in
// formatting or key order hash the same.
func PlanHash(p *CapturePlan) (string, error) {
	canonical, err := MarshalCanonical(p)
	if err != nil {
		return "", fmt.Errorf("PlanHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPlan, canonical), nil
}

// MustPlanHash is like PlanHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustPlanHash(p *CapturePlan) string {
	h, err := PlanHash(p)
	if err != nil {
		panic(err)
	}
	return h
}

// DataDigest identifies captured bytes.
func DataDigest(data []byte) string {
	return hashWithDomain(DomainCapture, data)
}
