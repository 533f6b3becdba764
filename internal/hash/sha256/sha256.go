// Package sha256 digests raw documents for content-addressed archive paths.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Hasher implements meeting.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data. Empty input is rejected since an empty
// document never reaches the archive.
func (h *Hasher) Hash(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("hash: empty input")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
