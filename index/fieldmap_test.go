package index

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velasearch/vela/errkind"
)

func TestFieldsIDsMapInsertOrGetIsIdempotent(t *testing.T) {
	m := NewFieldsIDsMap()
	id1, err := m.InsertOrGet("title")
	require.NoError(t, err)
	id2, err := m.InsertOrGet("title")
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	id3, err := m.InsertOrGet("body")
	require.NoError(t, err)
	require.NotEqual(t, id1, id3)
	require.Equal(t, 2, m.Len())
}

func TestFieldsIDsMapCloneIsIndependent(t *testing.T) {
	m := NewFieldsIDsMap()
	_, err := m.InsertOrGet("a")
	require.NoError(t, err)

	cp := m.Clone()
	_, err = cp.InsertOrGet("b")
	require.NoError(t, err)

	require.Equal(t, 1, m.Len())
	require.Equal(t, 2, cp.Len())
}

func TestFieldsIDsMapMarshalRoundTrip(t *testing.T) {
	m := NewFieldsIDsMap()
	_, _ = m.InsertOrGet("a")
	_, _ = m.InsertOrGet("b")

	raw, err := m.MarshalBinary()
	require.NoError(t, err)

	loaded, err := UnmarshalFieldsIDsMap(raw)
	require.NoError(t, err)
	require.Equal(t, m.Len(), loaded.Len())
	id, ok := loaded.ID("a")
	require.True(t, ok)
	name, ok := loaded.Name(id)
	require.True(t, ok)
	require.Equal(t, "a", name)
}

func TestDerivePrimaryKeyExplicitWins(t *testing.T) {
	pk, err := DerivePrimaryKey("sku", []string{"id", "title"}, false)
	require.NoError(t, err)
	require.Equal(t, "sku", pk)
}

func TestDerivePrimaryKeySingleCandidate(t *testing.T) {
	pk, err := DerivePrimaryKey("", []string{"title", "productId"}, false)
	require.NoError(t, err)
	require.Equal(t, "productId", pk)
}

func TestDerivePrimaryKeyMultipleCandidatesErrors(t *testing.T) {
	_, err := DerivePrimaryKey("", []string{"productId", "orderId"}, true)
	require.Error(t, err)
	require.True(t, errkind.IsKind(err, errkind.IndexPrimaryKeyMultipleCandidatesFound))
}

func TestDerivePrimaryKeyNoCandidateNoAutoGenerate(t *testing.T) {
	_, err := DerivePrimaryKey("", []string{"title", "body"}, false)
	require.Error(t, err)
	require.True(t, errkind.IsKind(err, errkind.IndexPrimaryKeyNoCandidateFound))
}

func TestDerivePrimaryKeyNoCandidateAutoGenerates(t *testing.T) {
	pk, err := DerivePrimaryKey("", []string{"title", "body"}, true)
	require.NoError(t, err)
	require.Equal(t, "id", pk)
}
