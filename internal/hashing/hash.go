package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ComputeHash returns the lowercase hex SHA-256 digest of the canonical
// serialization of data. Canonical means map keys sorted lexicographically at
// every nesting level, so two semantically identical values hash identically
// regardless of key insertion order.
//
// The value is round-tripped through JSON before digesting: that collapses
// typed adapter output (structs, map[string]string, map[string][]byte) into
// plain maps and slices, which encoding/json then serializes with sorted keys.
func ComputeHash(data interface{}) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("serialize comparable data: %w", err)
	}

	var normalized interface{}
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return "", fmt.Errorf("normalize comparable data: %w", err)
	}

	canonical, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("canonicalize comparable data: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
