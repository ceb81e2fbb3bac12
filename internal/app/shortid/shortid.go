// Package shortid issues the short identifiers links are addressed by.
package shortid

import (
	"encoding/base64"
	"math/rand/v2"
	"strconv"
)

// Generate draws a uniformly random uint32 and returns its decimal form
// encoded with the unpadded URL-safe base64 alphabet.
//
// Identifiers are not checked for uniqueness here; a collision shows up as a
// conflict when the link is inserted.
func Generate() string {
	return encode(rand.Uint32())
}

func encode(n uint32) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatUint(uint64(n), 10)))
}
