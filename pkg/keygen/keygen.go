// Package keygen generates short document keys from a fixed base62 alphabet.
//
// Keys are random, not sequential, so they cannot be enumerated. Uniqueness
// is not guaranteed here; callers must check the generated key against the
// store and retry on collision.
package keygen

import (
	"crypto/rand"
	"fmt"
)

// alphabet is the base62 character set used for document keys.
const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// MinLength is the shortest key length we allow. Below this, the collision
// probability at pastebin scale stops being negligible.
const MinLength = 8

// DefaultLength is the key length used when none is configured.
const DefaultLength = 10

// Generator produces fixed-length random document keys.
type Generator struct {
	length int
}

// New creates a Generator producing keys of the given length.
// Returns an error if length is below MinLength.
func New(length int) (*Generator, error) {
	if length < MinLength {
		return nil, fmt.Errorf("key length %d below minimum %d", length, MinLength)
	}
	return &Generator{length: length}, nil
}

// Length returns the configured key length.
func (g *Generator) Length() int {
	return g.length
}

// Generate returns a new random key.
func (g *Generator) Generate() (string, error) {
	// Rejection sampling keeps the distribution uniform across the
	// 62-character alphabet.
	const max = byte(248) // largest multiple of 62 that fits in a byte

	key := make([]byte, 0, g.length)
	buf := make([]byte, g.length)
	for len(key) < g.length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("error reading random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= max {
				continue
			}
			key = append(key, alphabet[int(b)%len(alphabet)])
			if len(key) == g.length {
				break
			}
		}
	}
	return string(key), nil
}
