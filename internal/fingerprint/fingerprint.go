// Package fingerprint hashes the commercially material part of an item.
//
// Only the state and the EUR normalized price take part in the digest, so two
// events with equal fingerprints differ at most in descriptive metadata.
package fingerprint

import (
	"encoding/hex"
	"strconv"

	"github.com/blitzfilter/item/internal/model"
	"github.com/zeebo/blake3"
)

// Size is the length of a fingerprint in hex characters
const Size = 64

// Fingerprint returns the lowercase hex BLAKE3-256 digest of "<state>|<eurPrice>".
// Absent values are rendered as empty segments.
func Fingerprint(state *model.ItemState, eurPrice *float32) string {
	sum := blake3.Sum256([]byte(Canonical(state, eurPrice)))
	return hex.EncodeToString(sum[:])
}

// Canonical returns the text the fingerprint is computed over
func Canonical(state *model.ItemState, eurPrice *float32) string {
	var s, p string
	if state != nil {
		s = state.String()
	}
	if eurPrice != nil {
		p = strconv.FormatFloat(float64(*eurPrice), 'f', -1, 32)
	}
	return s + "|" + p
}
