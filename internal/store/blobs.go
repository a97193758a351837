package store

import (
	"crypto/sha256"
	"encoding/hex"
)

// blobKind distinguishes the three large-field payload shapes persisted
// to the blobs table, prefixed into the digest so the same bytes
// stored as different kinds never collide.
type blobKind byte

const (
	kindMessages       blobKind = 0x01
	kindToolCalls      blobKind = 0x02
	kindVersionPrompt  blobKind = 0x03
)

// digestOf returns the hex-encoded SHA-256 digest of kind prefixed
// onto payload, the content address under which payload is stored in
// the blobs table.
func digestOf(kind blobKind, payload []byte) string {
	h := sha256.New()
	h.Write([]byte{byte(kind)})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
