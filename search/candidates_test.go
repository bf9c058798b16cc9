package search

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/require"

	"github.com/velasearch/vela/storage/mdbxkv"
)

func openTestEnv(t *testing.T) *mdbxkv.Env {
	t.Helper()
	env, err := mdbxkv.Open(t.TempDir(), mdbxkv.IndexTables, mdbxkv.IndexTablesCfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func putWordDocids(t *testing.T, env *mdbxkv.Env, word string, docs ...uint32) {
	t.Helper()
	require.NoError(t, env.Update(func(tx *mdbxkv.RwTx) error {
		bm := roaring.New()
		bm.AddMany(docs)
		return tx.PutBitmap(mdbxkv.WordDocids, []byte(word), bm)
	}))
}

func TestAllDocIDs(t *testing.T) {
	bm := allDocIDs(5)
	require.Equal(t, uint64(5), bm.GetCardinality())
	for i := uint32(0); i < 5; i++ {
		require.True(t, bm.Contains(i))
	}
	require.False(t, bm.Contains(5))
}

func TestResolveTermDocidsUnionsCandidates(t *testing.T) {
	env := openTestEnv(t)
	putWordDocids(t, env, "matrix", 1, 2)
	putWordDocids(t, env, "matrox", 3)

	graph := QueryGraph{Terms: []QueryTerm{
		{
			Original: "matrix",
			Candidates: []Candidate{
				{Word: "matrix"},
				{Word: "matrox", TypoDistance: 1},
			},
		},
	}}

	require.NoError(t, env.View(func(tx *mdbxkv.Tx) error {
		termDocs, err := resolveTermDocids(tx, graph)
		require.NoError(t, err)
		require.Len(t, termDocs, 1)
		require.Equal(t, uint64(3), termDocs[0].docids.GetCardinality())
		require.True(t, termDocs[0].docids.Contains(1))
		require.True(t, termDocs[0].docids.Contains(3))
		require.Contains(t, termDocs[0].perCandidate, "matrix")
		require.Contains(t, termDocs[0].perCandidate, "matrox")
		return nil
	}))
}

func TestResolveTermDocidsNoCandidatesIsEmpty(t *testing.T) {
	env := openTestEnv(t)
	graph := QueryGraph{Terms: []QueryTerm{{Original: "ghost"}}}

	require.NoError(t, env.View(func(tx *mdbxkv.Tx) error {
		termDocs, err := resolveTermDocids(tx, graph)
		require.NoError(t, err)
		require.True(t, termDocs[0].docids.IsEmpty())
		return nil
	}))
}
