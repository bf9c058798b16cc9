package search

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velasearch/vela/index"
	"github.com/velasearch/vela/storage/mdbxkv"
)

func openSearchTestIndex(t *testing.T) *index.Index {
	t.Helper()
	idx, err := index.Open("movies", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func seedMovies(t *testing.T, idx *index.Index) {
	t.Helper()
	settings := idx.Settings()
	settings.FilterableAttributes["genre"] = struct{}{}
	settings.SortableAttributes["year"] = struct{}{}
	require.NoError(t, idx.Env().Update(func(tx *mdbxkv.RwTx) error {
		return idx.CommitMetadata(tx, nil, nil, &settings)
	}))

	docs := []index.Document{
		{Fields: map[string]any{"id": "1", "title": "The Matrix", "genre": "scifi", "year": float64(1999)}},
		{Fields: map[string]any{"id": "2", "title": "The Matrix Reloaded", "genre": "scifi", "year": float64(2003)}},
		{Fields: map[string]any{"id": "3", "title": "The Notebook", "genre": "romance", "year": float64(2004)}},
	}
	require.NoError(t, idx.Env().Update(func(tx *mdbxkv.RwTx) error {
		_, err := idx.AddDocuments(tx, docs, "id", false, index.Replace)
		return err
	}))
}

func TestSearchFindsMatchingDocuments(t *testing.T) {
	idx := openSearchTestIndex(t)
	seedMovies(t, idx)

	resp, err := Search(idx, Request{Query: "matrix"})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 2)
}

func TestSearchFilterNarrowsResults(t *testing.T) {
	idx := openSearchTestIndex(t)
	seedMovies(t, idx)

	resp, err := Search(idx, Request{Query: "the", Filter: "genre = romance"})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	require.Equal(t, "The Notebook", resp.Hits[0].Fields["title"])
}

func TestSearchEmptyQueryMatchesEverything(t *testing.T) {
	idx := openSearchTestIndex(t)
	seedMovies(t, idx)

	resp, err := Search(idx, Request{})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 3)
}

func TestSearchPaginationOffsetLimit(t *testing.T) {
	idx := openSearchTestIndex(t)
	seedMovies(t, idx)

	first, err := Search(idx, Request{Offset: 0, Limit: 1})
	require.NoError(t, err)
	require.Len(t, first.Hits, 1)

	second, err := Search(idx, Request{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, second.Hits, 1)
	require.NotEqual(t, first.Hits[0].Fields["id"], second.Hits[0].Fields["id"])
}

func TestSearchSortBySortableAttribute(t *testing.T) {
	idx := openSearchTestIndex(t)
	seedMovies(t, idx)

	resp, err := Search(idx, Request{Sort: []string{"year:desc"}})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 3)
	require.Equal(t, float64(2004), resp.Hits[0].Fields["year"])
	require.Equal(t, float64(2003), resp.Hits[1].Fields["year"])
	require.Equal(t, float64(1999), resp.Hits[2].Fields["year"])
}

func TestSearchUnsortableFieldIsAnError(t *testing.T) {
	idx := openSearchTestIndex(t)
	seedMovies(t, idx)

	_, err := Search(idx, Request{Sort: []string{"title:asc"}})
	require.Error(t, err)
}

func TestSearchFacetDistribution(t *testing.T) {
	idx := openSearchTestIndex(t)
	seedMovies(t, idx)

	resp, err := Search(idx, Request{Facets: []string{"genre"}})
	require.NoError(t, err)
	require.Contains(t, resp.FacetDistribution, "genre")

	counts := map[string]uint64{}
	for _, vc := range resp.FacetDistribution["genre"] {
		counts[vc.Value] = vc.Count
	}
	require.Equal(t, uint64(2), counts["scifi"])
	require.Equal(t, uint64(1), counts["romance"])
}

func TestSearchShowRankingScore(t *testing.T) {
	idx := openSearchTestIndex(t)
	seedMovies(t, idx)

	resp, err := Search(idx, Request{Query: "matrix", ShowRankingScore: true})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 2)
	for _, h := range resp.Hits {
		require.GreaterOrEqual(t, h.RankingScore, 0.0)
		require.LessOrEqual(t, h.RankingScore, 1.0)
	}
}

func TestSearchHighlightWrapsMatchedWords(t *testing.T) {
	idx := openSearchTestIndex(t)
	seedMovies(t, idx)

	resp, err := Search(idx, Request{Query: "matrix", AttributesToHighlight: []string{"title"}})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 2)
	for _, h := range resp.Hits {
		require.NotNil(t, h.Formatted)
		require.Contains(t, h.Formatted["title"], "<em>")
	}
}

func TestSearchHitsPerPageTakesPrecedenceOverOffsetLimit(t *testing.T) {
	idx := openSearchTestIndex(t)
	seedMovies(t, idx)

	resp, err := Search(idx, Request{HitsPerPage: 2, Page: 2})
	require.NoError(t, err)
	require.Equal(t, 2, resp.Page)
	require.Equal(t, 2, resp.HitsPerPage)
	require.Equal(t, 3, resp.TotalHits)
	require.Equal(t, 2, resp.TotalPages)
	require.Len(t, resp.Hits, 1) // only the third document falls on page 2
}
