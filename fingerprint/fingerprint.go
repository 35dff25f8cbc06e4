// Package fingerprint derives deterministic cache keys for capture requests.
// Keys are content addresses only: collision resistance against an adversary
// is not a goal.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Key returns the cache key for a capture request. Identical inputs always
// yield the same key. The URL is hashed as given: the caller is responsible
// for any casing or trailing-slash normalization, two spellings of the same
// page produce two keys.
func Key(rawurl string, timestamp float64, width, height int) string {
	s := rawurl +
		":" + strconv.FormatFloat(timestamp, 'f', -1, 64) +
		":" + strconv.Itoa(width) +
		":" + strconv.Itoa(height)
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
