package search

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velasearch/vela/search/geo"
	"github.com/velasearch/vela/storage/docstore"
	"github.com/velasearch/vela/storage/mdbxkv"
)

func TestGeoSortRuleNearestFirst(t *testing.T) {
	env := openTestEnv(t)
	const geoFieldID = uint16(3)

	require.NoError(t, env.Update(func(tx *mdbxkv.RwTx) error {
		// doc 1 is close to the target, doc 2 far away, doc 3 has no _geo.
		if err := docstore.Put(tx, 1, map[docstore.FieldID][]byte{geoFieldID: []byte(`{"lat":48.8566,"lng":2.3522}`)}); err != nil {
			return err
		}
		if err := docstore.Put(tx, 2, map[docstore.FieldID][]byte{geoFieldID: []byte(`{"lat":40.7128,"lng":-74.0060}`)}); err != nil {
			return err
		}
		return docstore.Put(tx, 3, map[docstore.FieldID][]byte{})
	}))

	universe := bitmapOf(1, 2, 3)
	target := geo.Point{Lat: 48.8566, Lng: 2.3522} // Paris, same as doc 1

	require.NoError(t, env.View(func(tx *mdbxkv.Tx) error {
		rule := NewGeoSortRule(geoFieldID, target, false)
		require.NoError(t, rule.StartIteration(tx, universe))

		nearest, err := rule.NextBucket()
		require.NoError(t, err)
		require.True(t, nearest.Docids.Contains(1))

		farther, err := rule.NextBucket()
		require.NoError(t, err)
		require.True(t, farther.Docids.Contains(2))

		missing, err := rule.NextBucket()
		require.NoError(t, err)
		require.True(t, missing.Docids.Contains(3))
		return nil
	}))
}
