package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/jmerrifield20/starnotary/internal/canonical"
)

// GenesisBody is the payload of the block synthesised by Init on an empty store.
const GenesisBody = "First block in the chain - Genesis block"

// Record is a single block in the ledger.
type Record struct {
	Hash              string          `json:"hash"`
	Height            int64           `json:"height"`
	Body              json.RawMessage `json:"body"`
	Time              int64           `json:"time"`
	PreviousBlockHash string          `json:"previousBlockHash,omitempty"`
}

// hashable is the part of a Record covered by its hash.
type hashable struct {
	Height            int64           `json:"height"`
	Body              json.RawMessage `json:"body"`
	Time              int64           `json:"time"`
	PreviousBlockHash string          `json:"previousBlockHash,omitempty"`
}

// Hasher computes a fixed-length digest string. Implementations must be
// deterministic and free of side effects.
type Hasher interface {
	Hash(data []byte) string
}

// SHA256Hasher hex-encodes the SHA-256 digest of its input.
type SHA256Hasher struct{}

// Hash implements Hasher.
func (SHA256Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// digest computes the hash r should carry. The Hash field itself is never
// part of the input.
func digest(h Hasher, r *Record) (string, error) {
	enc, err := canonical.Marshal(hashable{
		Height:            r.Height,
		Body:              r.Body,
		Time:              r.Time,
		PreviousBlockHash: r.PreviousBlockHash,
	})
	if err != nil {
		return "", fmt.Errorf("encode record %d: %w", r.Height, err)
	}
	return h.Hash(enc), nil
}

func encodeRecord(r *Record) ([]byte, error) {
	return canonical.JSON(r)
}

func decodeRecord(data []byte) (*Record, error) {
	var r Record
	if err := canonical.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Address extracts body.address, the owner of the record. It reports false
// for bodies that are not objects or carry no address, such as genesis.
func (r *Record) Address() (string, bool) {
	var owner struct {
		Address string `json:"address"`
	}
	if err := canonical.Unmarshal(r.Body, &owner); err != nil || owner.Address == "" {
		return "", false
	}
	return owner.Address, true
}
