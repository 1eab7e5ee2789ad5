// Package sha256 fingerprints watched fragments.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/JakeFAU/pagewatch/internal/document"
)

// Fingerprint returns the hex SHA-256 of the fragment's canonical markup.
// Absent fragments have no fingerprint.
func Fingerprint(f document.Fragment) string {
	if f.Kind() == document.KindAbsent {
		return ""
	}
	return Sum(f.Markup())
}

// Sum hashes s and returns a hex digest.
func Sum(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
