package uniqueid

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// UniqueId returns a 24-character hex id with a microsecond timestamp
// prefix so ids sort roughly by creation time
func UniqueId() string {
	b := make([]byte, 12)
	binary.BigEndian.PutUint64(b[:8], uint64(time.Now().UnixMicro()))
	if _, err := rand.Read(b[8:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

// Timestamp extracts the creation time encoded in an id produced by
// UniqueId. Returns the zero time for malformed ids.
func Timestamp(id string) time.Time {
	b, err := hex.DecodeString(id)
	if err != nil || len(b) < 8 {
		return time.Time{}
	}
	return time.UnixMicro(int64(binary.BigEndian.Uint64(b[:8])))
}
