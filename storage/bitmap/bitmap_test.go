package bitmap

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/require"
)

func TestRoundTripEmpty(t *testing.T) {
	enc := Encode(nil)
	bm, err := Decode(enc)
	require.NoError(t, err)
	require.True(t, bm.IsEmpty())

	n, err := DecodedLength(enc)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestRoundTripVariousSizes(t *testing.T) {
	sizes := []int{1, 2, 31, 32, 33, 127, 128, 129, 255, 256, 257, 1000, 12345}
	for _, n := range sizes {
		values := sequentialValues(n, 1)
		enc := Encode(values)
		bm, err := Decode(enc)
		require.NoErrorf(t, err, "size=%d", n)
		require.Equalf(t, values, bm.ToArray(), "size=%d", n)

		length, err := DecodedLength(enc)
		require.NoError(t, err)
		require.Equal(t, n, length)
	}
}

func TestRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		set := map[uint32]struct{}{}
		n := rng.Intn(2000)
		for i := 0; i < n; i++ {
			set[rng.Uint32()%200000] = struct{}{}
		}
		values := make([]uint32, 0, len(set))
		for v := range set {
			values = append(values, v)
		}
		sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

		enc := Encode(values)
		bm, err := Decode(enc)
		require.NoError(t, err)
		require.Equal(t, values, bm.ToArray())

		length, err := DecodedLength(enc)
		require.NoError(t, err)
		require.Equal(t, len(values), length)

		expected := roaring.New()
		expected.AddMany(values)
		require.True(t, expected.Equals(bm))
	}
}

func TestEncodeBitmapHelper(t *testing.T) {
	bm := roaring.New()
	bm.AddMany([]uint32{5, 10, 15, 1000})
	enc := EncodeBitmap(bm)
	decoded, err := Decode(enc)
	require.NoError(t, err)
	require.True(t, bm.Equals(decoded))
}

func TestDecodeFilteredSkipsRejectedBlocks(t *testing.T) {
	values := sequentialValues(1000, 0)
	enc := Encode(values)

	var kept [][2]uint32
	bm, err := DecodeFiltered(enc, func(first, last uint32) bool {
		keep := last >= 600
		if keep {
			kept = append(kept, [2]uint32{first, last})
		}
		return keep
	})
	require.NoError(t, err)
	require.NotEmpty(t, kept)

	for _, v := range bm.ToArray() {
		require.GreaterOrEqualf(t, v, uint32(300), "value %d should belong to a kept block", v)
	}
	// every value >=600 must be present (blocks straddling 600 are kept whole).
	for _, v := range values {
		if v >= 600 {
			require.Truef(t, bm.Contains(v), "expected %d to survive the filter", v)
		}
	}
}

func TestDecodeRejectsBadHeader(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x00})
	require.Error(t, err)

	_, err = Decode([]byte{0x01})
	require.Error(t, err)
}

func sequentialValues(n int, start uint32) []uint32 {
	values := make([]uint32, n)
	v := start
	for i := 0; i < n; i++ {
		values[i] = v
		v += uint32(1 + i%3)
	}
	return values
}
