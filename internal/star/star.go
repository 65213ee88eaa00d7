// Package star defines the star registration payload stored in ledger
// block bodies.
package star

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/jmerrifield20/starnotary/internal/canonical"
	"github.com/jmerrifield20/starnotary/internal/ledger"
)

// Story limits, measured on the plain text before hex encoding.
const (
	MaxStoryBytes = 500
	MaxStoryWords = 250
)

// Star describes a celestial object being registered.
type Star struct {
	RA    string `json:"ra"`
	Dec   string `json:"dec"`
	Mag   string `json:"mag,omitempty"`
	Cen   string `json:"cen,omitempty"`
	Story string `json:"story"`

	// StoryDecoded is filled on responses only and never persisted.
	StoryDecoded string `json:"storyDecoded,omitempty"`
}

// Body is the JSON body of a star registration block.
type Body struct {
	Address string `json:"address"`
	Star    Star   `json:"star"`
}

// Validate checks the plain-text star as submitted by a client. An oversized
// story is reported as ErrPayloadTooLarge even when other fields are missing.
func (s Star) Validate() error {
	if len(s.Story) > MaxStoryBytes {
		return fmt.Errorf("%w: story is %d bytes, limit %d", ErrPayloadTooLarge, len(s.Story), MaxStoryBytes)
	}
	if n := len(strings.Fields(s.Story)); n > MaxStoryWords {
		return fmt.Errorf("%w: story is %d words, limit %d", ErrPayloadTooLarge, n, MaxStoryWords)
	}

	var missing []string
	if strings.TrimSpace(s.RA) == "" {
		missing = append(missing, "ra")
	}
	if strings.TrimSpace(s.Dec) == "" {
		missing = append(missing, "dec")
	}
	if strings.TrimSpace(s.Story) == "" {
		missing = append(missing, "story")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidStar, strings.Join(missing, ", "))
	}
	for _, r := range s.Story {
		if r > unicode.MaxASCII {
			return fmt.Errorf("%w: story must be ASCII text", ErrInvalidStar)
		}
	}
	return nil
}

// NewBody validates s and returns the body to persist for address, with the
// story hex-encoded.
func NewBody(address string, s Star) (Body, error) {
	if err := s.Validate(); err != nil {
		return Body{}, err
	}
	s.Story = EncodeStory(s.Story)
	s.StoryDecoded = ""
	return Body{Address: address, Star: s}, nil
}

// EncodeStory hex-encodes the story text.
func EncodeStory(story string) string {
	return hex.EncodeToString([]byte(story))
}

// DecodeStory reverses EncodeStory.
func DecodeStory(encoded string) (string, error) {
	b, err := hex.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode story: %w", err)
	}
	return string(b), nil
}

// Block is a ledger record as returned to clients: star bodies carry the
// decoded story, every other body is passed through untouched.
type Block struct {
	Hash              string `json:"hash"`
	Height            int64  `json:"height"`
	Body              any    `json:"body"`
	Time              int64  `json:"time"`
	PreviousBlockHash string `json:"previousBlockHash,omitempty"`
}

// Decorate converts a ledger record into its response form.
func Decorate(r *ledger.Record) *Block {
	b := &Block{
		Hash:              r.Hash,
		Height:            r.Height,
		Body:              r.Body,
		Time:              r.Time,
		PreviousBlockHash: r.PreviousBlockHash,
	}

	var body Body
	if err := canonical.Unmarshal(r.Body, &body); err != nil || body.Address == "" {
		return b
	}
	if decoded, err := DecodeStory(body.Star.Story); err == nil {
		body.Star.StoryDecoded = decoded
	}
	b.Body = body
	return b
}

// DecorateAll applies Decorate to every record.
func DecorateAll(rs []*ledger.Record) []*Block {
	out := make([]*Block, 0, len(rs))
	for _, r := range rs {
		out = append(out, Decorate(r))
	}
	return out
}

var (
	ErrInvalidStar     = errors.New("invalid star")
	ErrPayloadTooLarge = errors.New("star story too large")
)
