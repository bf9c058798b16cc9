// Package bitmap implements the block-oriented delta + bit-packing codec
// used to serialize every posting list, task-uid set, and facet-group
// summary in the engine (§4.1). The in-memory representation is always a
// github.com/RoaringBitmap/roaring/v2 Bitmap; this package only concerns
// itself with the on-disk wire format.
//
// Layout: a two-byte little-endian magic header, followed by zero or more
// blocks, largest first. Each block starts with a one-byte header packing
// (level, numBits); its body is the strictly-ascending values of the block
// delta-encoded against the previous block's last value (or -1 for the
// first block) and bit-packed at numBits per delta. Blocks shrink from 256
// to 128 to 32 entries as the tail runs out, and a final raw block (level
// raw, numBits 32, little-endian uint32s) carries whatever remains. The
// raw block is omitted when no values remain; when present it is always
// the last block of the stream.
package bitmap

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/RoaringBitmap/roaring/v2"
)

const magicHeader uint16 = 36869

type level uint8

const (
	levelRaw    level = 0
	levelSmall  level = 1 // block of 32
	levelMedium level = 2 // block of 128
	levelLarge  level = 3 // block of 256
)

const (
	blockSmall  = 32
	blockMedium = 128
	blockLarge  = 256
)

func (l level) blockLen() int {
	switch l {
	case levelLarge:
		return blockLarge
	case levelMedium:
		return blockMedium
	case levelSmall:
		return blockSmall
	default:
		return 0
	}
}

func encodeHeader(lvl level, numBits uint8) byte {
	return numBits | (uint8(lvl) << 6)
}

func decodeHeader(b byte) (level, uint8) {
	return level(b >> 6), b & 0x3F
}

// Encode serializes a strictly sorted, unique slice of uint32 values.
func Encode(values []uint32) []byte {
	out := make([]byte, 0, 2+len(values)*4/3+8)
	var hdr [2]byte
	binary.LittleEndian.PutUint16(hdr[:], magicHeader)
	out = append(out, hdr[:]...)

	n := len(values)
	i := 0
	base := int64(-1)
	for _, lvl := range []level{levelLarge, levelMedium, levelSmall} {
		blockLen := lvl.blockLen()
		for n-i >= blockLen {
			out = appendBlock(out, values[i:i+blockLen], lvl, base)
			base = int64(values[i+blockLen-1])
			i += blockLen
		}
	}
	if rem := values[i:]; len(rem) > 0 {
		out = append(out, encodeHeader(levelRaw, 32))
		for _, v := range rem {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], v)
			out = append(out, b[:]...)
		}
	}
	return out
}

// EncodeBitmap serializes the sorted contents of a roaring bitmap.
func EncodeBitmap(bm *roaring.Bitmap) []byte {
	if bm == nil {
		return Encode(nil)
	}
	return Encode(bm.ToArray())
}

func appendBlock(out []byte, values []uint32, lvl level, base int64) []byte {
	deltas := make([]int64, len(values))
	prev := base
	var maxDelta int64
	for i, v := range values {
		d := int64(v) - prev - 1
		deltas[i] = d
		if d > maxDelta {
			maxDelta = d
		}
		prev = int64(v)
	}
	numBits := uint8(bits.Len64(uint64(maxDelta)))
	out = append(out, encodeHeader(lvl, numBits))
	return append(out, packBits(deltas, numBits)...)
}

func packBits(deltas []int64, numBits uint8) []byte {
	if numBits == 0 {
		return nil
	}
	totalBits := uint(numBits) * uint(len(deltas))
	out := make([]byte, (totalBits+7)/8)
	var bitPos uint
	for _, d := range deltas {
		v := uint64(d)
		for b := uint8(0); b < numBits; b++ {
			if v&(1<<b) != 0 {
				out[bitPos/8] |= 1 << (bitPos % 8)
			}
			bitPos++
		}
	}
	return out
}

func unpackBits(data []byte, count int, numBits uint8) []int64 {
	out := make([]int64, count)
	if numBits == 0 {
		return out
	}
	var bitPos uint
	for i := 0; i < count; i++ {
		var v uint64
		for b := uint8(0); b < numBits; b++ {
			byteIdx := bitPos / 8
			if int(byteIdx) < len(data) && data[byteIdx]&(1<<(bitPos%8)) != 0 {
				v |= 1 << b
			}
			bitPos++
		}
		out[i] = int64(v)
	}
	return out
}

func compressedBlockSize(numBits uint8, blockLen int) int {
	return int((uint(numBits)*uint(blockLen) + 7) / 8)
}

// KeepFunc decides whether a block, identified by its first and last
// (already delta-decoded) values, should be merged into the resulting
// bitmap. Returning false skips the (expensive) bitmap insertion for that
// block's values while decoding still walks the delta chain to keep later
// blocks' bases correct — this is what gives DecodeFiltered its
// O(matching-blocks) behavior for predicates that reject most of a
// posting list (e.g. "skip every block entirely below docid X").
type KeepFunc func(first, last uint32) bool

func keepAll(uint32, uint32) bool { return true }

// Decode deserializes the full bitmap.
func Decode(data []byte) (*roaring.Bitmap, error) {
	return DecodeFiltered(data, keepAll)
}

// DecodeFiltered deserializes only the blocks accepted by keep.
func DecodeFiltered(data []byte, keep KeepFunc) (*roaring.Bitmap, error) {
	if keep == nil {
		keep = keepAll
	}
	rest, err := checkHeader(data)
	if err != nil {
		return nil, err
	}
	bm := roaring.New()
	base := int64(-1)
	for len(rest) > 0 {
		lvl, numBits := decodeHeader(rest[0])
		rest = rest[1:]
		if lvl == levelRaw {
			if numBits != 32 {
				return nil, fmt.Errorf("bitmap: invalid raw block numBits=%d", numBits)
			}
			if len(rest)%4 != 0 {
				return nil, fmt.Errorf("bitmap: trailing raw block is not a multiple of 4 bytes")
			}
			count := len(rest) / 4
			if count == 0 {
				break
			}
			values := make([]uint32, count)
			for i := 0; i < count; i++ {
				values[i] = binary.LittleEndian.Uint32(rest[i*4:])
			}
			if keep(values[0], values[count-1]) {
				bm.AddMany(values)
			}
			break
		}

		blockLen := lvl.blockLen()
		if blockLen == 0 {
			return nil, fmt.Errorf("bitmap: invalid block level %d", lvl)
		}
		byteLen := compressedBlockSize(numBits, blockLen)
		if byteLen > len(rest) {
			return nil, fmt.Errorf("bitmap: truncated block body")
		}
		deltas := unpackBits(rest[:byteLen], blockLen, numBits)
		rest = rest[byteLen:]

		values := make([]uint32, blockLen)
		cur := base
		for i, d := range deltas {
			cur = cur + 1 + d
			values[i] = uint32(cur)
		}
		base = cur
		if keep(values[0], values[blockLen-1]) {
			bm.AddMany(values)
		}
	}
	return bm, nil
}

// DecodedLength returns the number of values encoded, without
// materializing them.
func DecodedLength(data []byte) (int, error) {
	rest, err := checkHeader(data)
	if err != nil {
		return 0, err
	}
	length := 0
	for len(rest) > 0 {
		lvl, numBits := decodeHeader(rest[0])
		rest = rest[1:]
		if lvl == levelRaw {
			if numBits != 32 {
				return 0, fmt.Errorf("bitmap: invalid raw block numBits=%d", numBits)
			}
			if len(rest)%4 != 0 {
				return 0, fmt.Errorf("bitmap: trailing raw block is not a multiple of 4 bytes")
			}
			length += len(rest) / 4
			break
		}
		blockLen := lvl.blockLen()
		if blockLen == 0 {
			return 0, fmt.Errorf("bitmap: invalid block level %d", lvl)
		}
		byteLen := compressedBlockSize(numBits, blockLen)
		if byteLen > len(rest) {
			return 0, fmt.Errorf("bitmap: truncated block body")
		}
		rest = rest[byteLen:]
		length += blockLen
	}
	return length, nil
}

func checkHeader(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("bitmap: input shorter than the two-byte magic header")
	}
	if binary.LittleEndian.Uint16(data[:2]) != magicHeader {
		return nil, fmt.Errorf("bitmap: invalid magic header")
	}
	return data[2:], nil
}
