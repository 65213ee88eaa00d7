// Package canonical produces a stable JSON encoding for hashing.
//
// Marshal output depends only on the value's data, never on struct field
// order or map iteration order: object keys are sorted, numbers are kept
// verbatim and HTML characters are not escaped. The ledger uses the same
// encoding when it appends a record and when it re-verifies one.
package canonical

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var (
	// plain mirrors encoding/json; used for ordinary (non-hashed) codecs.
	plain = jsoniter.ConfigCompatibleWithStandardLibrary

	sorted = jsoniter.Config{
		SortMapKeys: true,
		UseNumber:   true,
		EscapeHTML:  false,
	}.Froze()
)

// Marshal returns the canonical encoding of v.
func Marshal(v any) ([]byte, error) {
	first, err := sorted.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: encode: %w", err)
	}

	// Round-trip through a generic tree so struct fields are ordered the
	// same way map keys are.
	var tree any
	if err := sorted.Unmarshal(first, &tree); err != nil {
		return nil, fmt.Errorf("canonical: decode: %w", err)
	}

	out, err := sorted.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("canonical: re-encode: %w", err)
	}
	return out, nil
}

// JSON encodes v the way encoding/json would.
func JSON(v any) ([]byte, error) {
	return plain.Marshal(v)
}

// Unmarshal decodes data the way encoding/json would.
func Unmarshal(data []byte, v any) error {
	return plain.Unmarshal(data, v)
}
