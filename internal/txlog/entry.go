package txlog

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"
)

// GenesisHash is the canonical well-known hash of the genesis entry.
// It serves as the trust anchor of the chain; all subsequent entry hashes
// chain from this constant rather than from a computed value.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// genesisMethod is the Method of entry 0.
const genesisMethod = "genesis"

// Entry is a single journaled call.
type Entry struct {
	Index     int             `json:"index"`
	Timestamp time.Time       `json:"timestamp"`
	Method    string          `json:"method"` // register, create_post, like_post, add_comment, genesis
	Caller    string          `json:"caller"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	DataHash  string          `json:"data_hash"` // Keccak-256 of Payload
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

// IsGenesis reports whether e is the chain's genesis entry.
func (e *Entry) IsGenesis() bool { return e.Index == 0 }

// stamp returns the current time at the precision every backend can store.
func stamp() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// newGenesis returns the canonical genesis entry stamped with now.
func newGenesis(now time.Time) *Entry {
	return &Entry{
		Index:     0,
		Timestamp: now,
		Method:    genesisMethod,
		Caller:    "social-system",
		DataHash:  GenesisHash,
		PrevHash:  GenesisHash,
		Hash:      GenesisHash, // genesis hash is the well-known constant, not computed
	}
}

// newEntry builds the successor of prev for an already-marshalled payload.
func newEntry(prev *Entry, now time.Time, method, caller string, payload []byte) *Entry {
	e := &Entry{
		Index:     prev.Index + 1,
		Timestamp: now,
		Method:    method,
		Caller:    caller,
		Payload:   payload,
		DataHash:  hashPayload(payload),
		PrevHash:  prev.Hash,
	}
	e.Hash = hashEntry(e)
	return e
}

// marshalPayload encodes a payload for storage. A nil payload is stored as
// JSON null so every entry has a hashable body.
func marshalPayload(payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return b, nil
}

// hashEntry computes a deterministic Keccak-256 hash over an entry's fields.
// This function must never be called on the genesis entry (index 0).
func hashEntry(e *Entry) string {
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s",
		e.Index, e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.Method, e.Caller, e.DataHash, e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// hashPayload returns the hex-encoded Keccak-256 digest of data.
func hashPayload(data []byte) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func errGenesis(e *Entry) error {
	return fmt.Errorf("genesis entry has wrong hash: got %q", e.Hash)
}

func errGap(prev, curr int) error {
	return fmt.Errorf("index gap: %d follows %d", curr, prev)
}

func errBroken(idx int) error {
	return fmt.Errorf("hash chain broken at index %d", idx)
}

func errPayload(idx int) error {
	return fmt.Errorf("entry %d payload does not match data hash", idx)
}

func errHash(idx int) error {
	return fmt.Errorf("entry %d has invalid hash", idx)
}
