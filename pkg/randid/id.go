// Package randid generates short random identifiers.
package randid

import (
	"crypto/rand"
	"math/big"
)

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

var alphabetLen = big.NewInt(int64(len(alphabet)))

// Generate returns a random lowercase alphanumeric string of the given length.
func Generate(length int) string {
	if length <= 0 {
		return ""
	}

	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			// crypto/rand never fails on supported platforms
			panic(err)
		}
		b[i] = alphabet[n.Int64()]
	}
	return string(b)
}
