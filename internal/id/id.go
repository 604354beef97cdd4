// Package id mints job identifiers.
package id

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// New returns 32 hex characters: a 48-bit millisecond timestamp followed by
// 80 random bits, so IDs sort roughly by creation time.
func New() string {
	return newAt(time.Now())
}

func newAt(t time.Time) string {
	var b [16]byte
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(t.UnixMilli()))
	copy(b[:6], ts[2:])
	// crypto/rand.Read never returns an error since Go 1.24.
	_, _ = rand.Read(b[6:])
	return hex.EncodeToString(b[:])
}
