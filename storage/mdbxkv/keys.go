package mdbxkv

import (
	"encoding/binary"
	"time"
)

// U32Key encodes a uid (task or batch) as a big-endian 4-byte key, the
// encoding every IntegerKey-flagged, uid-addressed table uses.
func U32Key(uid uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uid)
	return b[:]
}

// ParseU32Key is the inverse of U32Key.
func ParseU32Key(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// TimeKey encodes a timestamp as big-endian nanoseconds since the Unix
// epoch in a 16-byte field (§4.1: "timestamp (big-endian i128
// nanoseconds)"). Go has no native i128; the low 8 bytes carry the actual
// nanosecond count (which does not overflow an int64 until the year
// 2262), and the high 8 bytes stay zero, preserving big-endian comparison
// order against the conceptual 128-bit field.
func TimeKey(t time.Time) []byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[8:], uint64(t.UnixNano()))
	return b[:]
}

// ParseTimeKey is the inverse of TimeKey.
func ParseTimeKey(b []byte) time.Time {
	ns := int64(binary.BigEndian.Uint64(b[8:]))
	return time.Unix(0, ns).UTC()
}
