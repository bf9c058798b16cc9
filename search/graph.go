package search

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"

	"github.com/velasearch/vela/index"
)

// MatchingStrategy controls how many query terms a document must match to
// enter the candidate universe. MatchingLast admits any document matching
// at least one term, whatever its position in the query, and leaves the
// Words rule to rank fuller matches first; it does not drop terms in query
// order. MatchingAll requires every term, which can empty the result set
// rather than loosen the query.
type MatchingStrategy int

const (
	MatchingLast MatchingStrategy = iota
	MatchingAll
)

// Candidate is one way a query term can be resolved against the known
// vocabulary: the exact word itself, a typo-tolerant variant within
// Levenshtein distance 1 or 2, or a prefix completion.
type Candidate struct {
	Word         string
	TypoDistance int // 0 for an exact match or a prefix completion
	IsPrefix     bool
}

// QueryTerm is one position in the tokenized query, together with every
// vocabulary word it could resolve to. PhraseGroup groups consecutive
// terms that came from a quoted substring (§4.4 "phrase components"); a
// negative PhraseGroup means the term is unquoted.
type QueryTerm struct {
	Original    string
	Candidates  []Candidate
	PhraseGroup int
}

// QueryGraph is the term-subset expansion of a whole query: conceptually
// a graph with a Start node, an End node, and one node per (position,
// candidate) pair with edges only running forward between consecutive
// positions (§9) — represented here as the flat per-position candidate
// lists every downstream ranking rule actually needs, since no rule in
// this package ever needs to address a node outside its own position or
// the position immediately after it.
type QueryGraph struct {
	Terms []QueryTerm
}

// queryToken is one word of the raw query string together with whether it
// came from inside a quoted phrase.
type queryToken struct {
	word       string
	quoted     bool
	phraseRank int // ordinal of the quoted run this token belongs to, -1 if unquoted
}

// tokenizeQuery splits the raw query into words, tracking quoted runs so
// BuildQueryGraph can mark them as a single PhraseGroup. Unlike
// index.Tokenize, this must see quote characters, so it's a separate small
// scanner rather than a reuse of the indexing tokenizer.
func tokenizeQuery(q string) []queryToken {
	var out []queryToken
	inPhrase := false
	phraseRank := -1
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		word := strings.ToLower(cur.String())
		rank := -1
		if inPhrase {
			rank = phraseRank
		}
		out = append(out, queryToken{word: word, quoted: inPhrase, phraseRank: rank})
		cur.Reset()
	}
	for _, r := range q {
		switch {
		case r == '"':
			flush()
			if !inPhrase {
				phraseRank++
			}
			inPhrase = !inPhrase
		case unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '\''):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

// BuildQueryGraph expands q into a QueryGraph (§4.4 "Query resolution").
// words is the index's known vocabulary; settings supplies the typo
// bounds, disabled words/attributes, and synonyms. lastIsPrefix allows the
// final unquoted term to also match as a prefix completion, the usual
// "search as you type" behavior; it is the caller's responsibility to set
// this false for a query that ends on a closed phrase or whitespace.
func BuildQueryGraph(words *index.WordSet, settings index.Settings, q string, lastIsPrefix bool) QueryGraph {
	toks := tokenizeQuery(q)
	g := QueryGraph{Terms: make([]QueryTerm, 0, len(toks))}
	tt := settings.TypoTolerance

	for i, tok := range toks {
		if _, stop := settings.StopWords[tok.word]; stop && !tok.quoted {
			continue
		}
		isLast := i == len(toks)-1
		term := QueryTerm{Original: tok.word, PhraseGroup: tok.phraseRank}
		term.Candidates = expandTerm(words, tt, tok.word, tok.quoted, isLast && lastIsPrefix && !tok.quoted)

		if syns, ok := settings.Synonyms[tok.word]; ok {
			for _, s := range syns {
				term.Candidates = append(term.Candidates, Candidate{Word: s})
			}
		}
		g.Terms = append(g.Terms, term)
	}
	return g
}

// expandTerm resolves one raw word into its candidate set: itself exactly
// if known, typo-1/typo-2 variants scanned against the whole vocabulary
// (no Levenshtein automaton or FST intersection exists in this codebase's
// dependency set, so this is a linear scan bounded by the word-length
// pre-filter below — see WordSet.All), and prefix completions when asked.
func expandTerm(words *index.WordSet, tt index.TypoTolerance, word string, quoted, allowPrefix bool) []Candidate {
	var out []Candidate
	if words.Contains(word) {
		out = append(out, Candidate{Word: word})
	}

	if !quoted && tt.Enabled {
		if _, disabled := tt.DisableOnWords[word]; !disabled {
			maxDist := typoBudget(tt, word)
			if maxDist > 0 {
				for _, cand := range words.All() {
					if cand == word {
						continue
					}
					// cheap length pre-filter before paying for the real
					// Levenshtein computation on every vocabulary word.
					if abs(len(cand)-len(word)) > maxDist {
						continue
					}
					d := levenshtein.ComputeDistance(word, cand)
					if d > 0 && d <= maxDist {
						out = append(out, Candidate{Word: cand, TypoDistance: d})
					}
				}
			}
		}
	}

	if allowPrefix {
		for _, cand := range words.PrefixSearch(word) {
			if cand == word {
				continue
			}
			out = append(out, Candidate{Word: cand, IsPrefix: true})
		}
	}
	return out
}

// typoBudget returns how many edits a word of this length tolerates, per
// the configured minimum lengths (§4.4 defaults 5/9 code points): shorter
// than MinWordLenForTypo1 tolerates none, at least MinWordLenForTypo2
// tolerates two, otherwise one.
func typoBudget(tt index.TypoTolerance, word string) int {
	n := len([]rune(word))
	switch {
	case n < tt.MinWordLenForTypo1:
		return 0
	case n < tt.MinWordLenForTypo2:
		return 1
	default:
		return 2
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
