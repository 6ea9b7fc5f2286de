package helpers

import "encoding/hex"

// MustHex decodes constant, e.g. test vector, panics on malformed input.
func MustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}
