package star_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jmerrifield20/starnotary/internal/ledger"
	"github.com/jmerrifield20/starnotary/internal/star"
)

var sample = star.Star{
	RA:    "16h 29m 1.0s",
	Dec:   "-26° 29' 24.9",
	Story: "Found star using https://www.google.com/sky/",
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		edit func(s *star.Star)
		want error
	}{
		{"valid", func(*star.Star) {}, nil},
		{"missing ra", func(s *star.Star) { s.RA = "" }, star.ErrInvalidStar},
		{"missing dec", func(s *star.Star) { s.Dec = " " }, star.ErrInvalidStar},
		{"missing story", func(s *star.Star) { s.Story = "" }, star.ErrInvalidStar},
		{"non-ascii story", func(s *star.Star) { s.Story = "étoile" }, star.ErrInvalidStar},
		{"exactly 500 bytes", func(s *star.Star) { s.Story = strings.Repeat("a", 500) }, nil},
		{"501 bytes", func(s *star.Star) { s.Story = strings.Repeat("a", 501) }, star.ErrPayloadTooLarge},
		{"251 words", func(s *star.Star) { s.Story = strings.TrimSpace(strings.Repeat("a ", 251)) }, star.ErrPayloadTooLarge},
		{"250 words", func(s *star.Star) { s.Story = strings.TrimSpace(strings.Repeat("a ", 250)) }, nil},
		{"oversized story without ra", func(s *star.Star) { s.RA = ""; s.Story = strings.Repeat("a", 600) }, star.ErrPayloadTooLarge},
		{"oversized non-ascii story", func(s *star.Star) { s.Story = strings.Repeat("é", 300) }, star.ErrPayloadTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := sample
			tc.edit(&s)
			err := s.Validate()
			if tc.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNewBody_encodesStory(t *testing.T) {
	b, err := star.NewBody("addr1", sample)
	if err != nil {
		t.Fatal(err)
	}
	if b.Star.Story != star.EncodeStory(sample.Story) {
		t.Errorf("story not hex encoded: %q", b.Star.Story)
	}

	raw, _ := json.Marshal(b)
	if strings.Contains(string(raw), "storyDecoded") {
		t.Errorf("persisted body must not carry storyDecoded: %s", raw)
	}
}

func TestDecodeStory(t *testing.T) {
	got, err := star.DecodeStory(star.EncodeStory("hello sky"))
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello sky" {
		t.Errorf("got %q", got)
	}
	if _, err := star.DecodeStory("zz"); err == nil {
		t.Error("expected error for invalid hex")
	}
}

func TestDecorate(t *testing.T) {
	b, _ := star.NewBody("addr1", sample)
	raw, _ := json.Marshal(b)
	rec := &ledger.Record{Hash: "h", Height: 1, Body: raw, Time: 10, PreviousBlockHash: "p"}

	out, err := json.Marshal(star.Decorate(rec))
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Height int64 `json:"height"`
		Body   struct {
			Address string    `json:"address"`
			Star    star.Star `json:"star"`
		} `json:"body"`
	}
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatal(err)
	}
	if got.Body.Star.StoryDecoded != sample.Story {
		t.Errorf("storyDecoded: got %q", got.Body.Star.StoryDecoded)
	}
	if got.Body.Star.Story != star.EncodeStory(sample.Story) {
		t.Errorf("story should stay hex encoded, got %q", got.Body.Star.Story)
	}
}

func TestDecorate_genesisPassThrough(t *testing.T) {
	rec := &ledger.Record{Height: 0, Body: json.RawMessage(`"First block in the chain - Genesis block"`)}
	out, err := json.Marshal(star.Decorate(rec))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `"body":"First block in the chain - Genesis block"`) {
		t.Errorf("genesis body altered: %s", out)
	}
}
