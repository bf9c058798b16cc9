package docstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velasearch/vela/storage/mdbxkv"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	fields := map[FieldID][]byte{
		0: []byte(`"doc-1"`),
		1: []byte(`"Alice"`),
		2: []byte(`30`),
	}
	blob := Encode(fields)
	decoded, err := Decode(blob)
	require.NoError(t, err)
	require.Equal(t, fields, decoded)
}

func TestProjectStopsPastHighestWanted(t *testing.T) {
	fields := map[FieldID][]byte{
		0: []byte(`"doc-1"`),
		1: []byte(`"Alice"`),
		5: []byte(`"should not be read"`),
	}
	blob := Encode(fields)

	projected, err := Project(blob, map[FieldID]struct{}{1: {}})
	require.NoError(t, err)
	require.Equal(t, map[FieldID][]byte{1: []byte(`"Alice"`)}, projected)
}

func TestProjectEmptyWantedSet(t *testing.T) {
	blob := Encode(map[FieldID][]byte{0: []byte(`"x"`)})
	projected, err := Project(blob, map[FieldID]struct{}{})
	require.NoError(t, err)
	require.Empty(t, projected)
}

func TestDecodeRejectsTruncatedBlob(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x01, 0x00, 0x00, 0x00})
	require.Error(t, err)
}

func TestPutGetDeleteRoundTrip(t *testing.T) {
	env, err := mdbxkv.Open(t.TempDir(), mdbxkv.IndexTables, mdbxkv.IndexTablesCfg, nil)
	require.NoError(t, err)
	defer env.Close()

	fields := map[FieldID][]byte{0: []byte(`"doc-1"`), 1: []byte(`42`)}

	require.NoError(t, env.Update(func(tx *mdbxkv.RwTx) error {
		return Put(tx, 7, fields)
	}))

	require.NoError(t, env.View(func(tx *mdbxkv.Tx) error {
		got, ok, err := Get(tx, 7)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, fields, got)
		return nil
	}))

	require.NoError(t, env.Update(func(tx *mdbxkv.RwTx) error {
		return Delete(tx, 7)
	}))

	require.NoError(t, env.View(func(tx *mdbxkv.Tx) error {
		_, ok, err := Get(tx, 7)
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	}))
}

func TestExternalIDRoundTrip(t *testing.T) {
	env, err := mdbxkv.Open(t.TempDir(), mdbxkv.IndexTables, mdbxkv.IndexTablesCfg, nil)
	require.NoError(t, err)
	defer env.Close()

	require.NoError(t, env.Update(func(tx *mdbxkv.RwTx) error {
		return PutExternalID(tx, "sku-123", 9)
	}))

	require.NoError(t, env.View(func(tx *mdbxkv.Tx) error {
		id, ok, err := ResolveExternalID(tx, "sku-123")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, uint32(9), id)
		return nil
	}))
}
