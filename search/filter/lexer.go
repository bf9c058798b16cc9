package filter

import (
	"strings"
	"unicode"

	"github.com/velasearch/vela/errkind"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokLParen
	tokRParen
	tokComma
	tokOp // =, !=, <, <=, >, >=
	tokAnd
	tokOr
	tokNot
	tokTo
	tokGeoRadius
)

type token struct {
	kind tokenKind
	text string
}

// lex splits a filter expression into tokens. Identifiers are any run of
// characters that aren't whitespace/parens/comma/operator-chars/quotes;
// double- or single-quoted strings are read verbatim so values containing
// spaces, parens, or keywords are unambiguous.
func lex(input string) ([]token, error) {
	var toks []token
	r := []rune(input)
	i := 0
	for i < len(r) {
		c := r[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ","})
			i++
		case c == '!':
			if i+1 < len(r) && r[i+1] == '=' {
				toks = append(toks, token{tokOp, "!="})
				i += 2
			} else {
				toks = append(toks, token{tokNot, "!"})
				i++
			}
		case c == '=':
			toks = append(toks, token{tokOp, "="})
			i++
		case c == '<':
			if i+1 < len(r) && r[i+1] == '=' {
				toks = append(toks, token{tokOp, "<="})
				i += 2
			} else {
				toks = append(toks, token{tokOp, "<"})
				i++
			}
		case c == '>':
			if i+1 < len(r) && r[i+1] == '=' {
				toks = append(toks, token{tokOp, ">="})
				i += 2
			} else {
				toks = append(toks, token{tokOp, ">"})
				i++
			}
		case c == '"' || c == '\'':
			quote := c
			j := i + 1
			var sb strings.Builder
			for j < len(r) && r[j] != quote {
				sb.WriteRune(r[j])
				j++
			}
			if j >= len(r) {
				return nil, errkind.New(errkind.InvalidSearchFilter, "unterminated quoted string in filter")
			}
			toks = append(toks, token{tokString, sb.String()})
			i = j + 1
		default:
			j := i
			for j < len(r) && !unicode.IsSpace(r[j]) && !isSpecial(r[j]) {
				j++
			}
			word := string(r[i:j])
			if word == "" {
				return nil, errkind.New(errkind.InvalidSearchFilter, "unexpected character %q in filter", string(c))
			}
			toks = append(toks, classifyWord(word))
			i = j
		}
	}
	toks = append(toks, token{tokEOF, ""})
	return toks, nil
}

func isSpecial(r rune) bool {
	switch r {
	case '(', ')', ',', '!', '=', '<', '>', '"', '\'':
		return true
	default:
		return false
	}
}

func classifyWord(word string) token {
	switch strings.ToUpper(word) {
	case "AND":
		return token{tokAnd, word}
	case "OR":
		return token{tokOr, word}
	case "NOT":
		return token{tokNot, word}
	case "TO":
		return token{tokTo, word}
	}
	if word == "_geoRadius" {
		return token{tokGeoRadius, word}
	}
	return token{tokIdent, word}
}
