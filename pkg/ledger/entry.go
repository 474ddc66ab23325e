package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// GenesisHash is the prev_hash of the first entry in a chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Record is the caller-supplied portion of an audit entry.
type Record struct {
	// Decision is the gate action ("allowed", "template", "blocked", "error").
	Decision string

	// Reason is the short human-readable explanation.
	Reason string

	// InputDigest is a truncated hash of the raw input; the ledger stores
	// digests, not raw untrusted text.
	InputDigest string

	// RiskLevel is the classification band for the request.
	RiskLevel string

	// CostCharged is the budget amount charged for this decision.
	CostCharged float64

	// Extra carries additional structured context (latency, snapshots).
	// Values must be JSON-encodable.
	Extra map[string]any
}

// Entry is one committed line of the chain.
type Entry struct {
	Index       int            `json:"-"` // position in file, implicit on disk
	Timestamp   string         `json:"timestamp"`
	Decision    string         `json:"decision"`
	Reason      string         `json:"reason"`
	InputDigest string         `json:"input_digest"`
	RiskLevel   string         `json:"risk_level"`
	CostCharged float64        `json:"cost_charged"`
	Extra       map[string]any `json:"extra"`
	PrevHash    string         `json:"prev_hash"`
	EntryHash   string         `json:"entry_hash"`
}

// canonicalBytes deterministically encodes an entry map minus its hash
// field. encoding/json emits object keys in sorted order with no extra
// whitespace, which is exactly the canonical form the chain hashes.
func canonicalBytes(m map[string]any) ([]byte, error) {
	clean := make(map[string]any, len(m))
	for k, v := range m {
		if k == "entry_hash" {
			continue
		}
		clean[k] = v
	}
	return json.Marshal(clean)
}

// hashEntry computes the chain hash over the canonical encoding.
func hashEntry(m map[string]any) (string, error) {
	canon, err := canonicalBytes(m)
	if err != nil {
		return "", fmt.Errorf("canonical encode: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// entryFromMap converts a decoded line into an Entry. Missing fields are
// left zero; hash validation is Verify's job, not the decoder's.
func entryFromMap(index int, m map[string]any) *Entry {
	e := &Entry{Index: index}
	if v, ok := m["timestamp"].(string); ok {
		e.Timestamp = v
	}
	if v, ok := m["decision"].(string); ok {
		e.Decision = v
	}
	if v, ok := m["reason"].(string); ok {
		e.Reason = v
	}
	if v, ok := m["input_digest"].(string); ok {
		e.InputDigest = v
	}
	if v, ok := m["risk_level"].(string); ok {
		e.RiskLevel = v
	}
	if v, ok := m["cost_charged"].(float64); ok {
		e.CostCharged = v
	}
	if v, ok := m["extra"].(map[string]any); ok {
		e.Extra = v
	}
	if v, ok := m["prev_hash"].(string); ok {
		e.PrevHash = v
	}
	if v, ok := m["entry_hash"].(string); ok {
		e.EntryHash = v
	}
	return e
}

// DigestInput returns the truncated SHA-256 digest stored for raw input.
func DigestInput(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}
