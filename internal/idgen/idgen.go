// Package idgen generates short random keys for broker messages.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// EventPrefix prefixes message keys for published events.
const EventPrefix = "evt-"

// alphabet is URL- and S3-key-safe.
const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Length is the number of random characters after the prefix.
const Length = 16

// New returns prefix followed by Length random characters.
func New(prefix string) (string, error) {
	id, err := nanoid.Generate(alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// EventKey returns a fresh message key, or "" if the random source fails.
// An empty key lets the broker client pick the partition.
func EventKey() string {
	id, err := New(EventPrefix)
	if err != nil {
		return ""
	}
	return id
}
