package search

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velasearch/vela/index"
)

func TestTokenizeQueryTracksPhraseGroups(t *testing.T) {
	toks := tokenizeQuery(`the "matrix reloaded" movie`)
	require.Len(t, toks, 4)
	require.Equal(t, "the", toks[0].word)
	require.False(t, toks[0].quoted)
	require.Equal(t, -1, toks[0].phraseRank)

	require.Equal(t, "matrix", toks[1].word)
	require.True(t, toks[1].quoted)
	require.Equal(t, 0, toks[1].phraseRank)

	require.Equal(t, "reloaded", toks[2].word)
	require.True(t, toks[2].quoted)
	require.Equal(t, 0, toks[2].phraseRank)

	require.Equal(t, "movie", toks[3].word)
	require.False(t, toks[3].quoted)
	require.Equal(t, -1, toks[3].phraseRank)
}

func TestTokenizeQuerySecondPhraseGetsNewRank(t *testing.T) {
	toks := tokenizeQuery(`"foo" bar "baz qux"`)
	require.Len(t, toks, 4)
	require.Equal(t, 0, toks[0].phraseRank)
	require.Equal(t, -1, toks[1].phraseRank)
	require.Equal(t, 1, toks[2].phraseRank)
	require.Equal(t, 1, toks[3].phraseRank)
}

func TestTypoBudgetByWordLength(t *testing.T) {
	tt := index.DefaultTypoTolerance()
	require.Equal(t, 0, typoBudget(tt, "abc"))     // < 5
	require.Equal(t, 1, typoBudget(tt, "abcde"))   // >= 5, < 9
	require.Equal(t, 2, typoBudget(tt, "abcdefghi")) // >= 9
}

func TestExpandTermFindsExactAndTypoCandidates(t *testing.T) {
	words := index.NewWordSet()
	words.Insert("matrix")
	words.Insert("matrox") // distance 1 from "matrix"
	words.Insert("unrelated")

	tt := index.DefaultTypoTolerance()
	cands := expandTerm(words, tt, "matrix", false, false)

	var exact, typo bool
	for _, c := range cands {
		if c.Word == "matrix" && c.TypoDistance == 0 {
			exact = true
		}
		if c.Word == "matrox" && c.TypoDistance == 1 {
			typo = true
		}
		require.NotEqual(t, "unrelated", c.Word)
	}
	require.True(t, exact)
	require.True(t, typo)
}

func TestExpandTermRespectsQuotedNoTypo(t *testing.T) {
	words := index.NewWordSet()
	words.Insert("matrix")
	words.Insert("matrox")

	tt := index.DefaultTypoTolerance()
	cands := expandTerm(words, tt, "matrix", true, false)
	for _, c := range cands {
		require.Equal(t, 0, c.TypoDistance)
	}
}

func TestExpandTermPrefixCompletion(t *testing.T) {
	words := index.NewWordSet()
	words.Insert("mat")
	words.Insert("matrix")
	words.Insert("matter")

	tt := index.TypoTolerance{Enabled: false}
	cands := expandTerm(words, tt, "mat", false, true)

	found := map[string]bool{}
	for _, c := range cands {
		if c.IsPrefix {
			found[c.Word] = true
		}
	}
	require.True(t, found["matrix"])
	require.True(t, found["matter"])
	require.False(t, found["mat"]) // the word itself isn't its own prefix candidate
}

func TestBuildQueryGraphSkipsStopWords(t *testing.T) {
	words := index.NewWordSet()
	words.Insert("cat")
	settings := index.DefaultSettings()
	settings.StopWords["the"] = struct{}{}

	g := BuildQueryGraph(words, settings, "the cat", false)
	require.Len(t, g.Terms, 1)
	require.Equal(t, "cat", g.Terms[0].Original)
}

func TestBuildQueryGraphExpandsSynonyms(t *testing.T) {
	words := index.NewWordSet()
	words.Insert("couch")
	settings := index.DefaultSettings()
	settings.Synonyms["sofa"] = []string{"couch"}

	g := BuildQueryGraph(words, settings, "sofa", false)
	require.Len(t, g.Terms, 1)

	found := false
	for _, c := range g.Terms[0].Candidates {
		if c.Word == "couch" {
			found = true
		}
	}
	require.True(t, found)
}

func TestBuildQueryGraphLastTermAllowsPrefix(t *testing.T) {
	words := index.NewWordSet()
	words.Insert("reloaded")
	settings := index.DefaultSettings()
	settings.TypoTolerance.Enabled = false

	g := BuildQueryGraph(words, settings, "matrix rel", true)
	require.Len(t, g.Terms, 2)

	last := g.Terms[1]
	prefixFound := false
	for _, c := range last.Candidates {
		if c.IsPrefix && c.Word == "reloaded" {
			prefixFound = true
		}
	}
	require.True(t, prefixFound)
}
