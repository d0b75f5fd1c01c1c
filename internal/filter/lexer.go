package filter

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokEq
	tokNe
	tokLt
	tokLe
	tokGt
	tokGe
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokNumber:
		return "number"
	case tokEq:
		return "'='"
	case tokNe:
		return "'!='"
	case tokLt:
		return "'<'"
	case tokLe:
		return "'<='"
	case tokGt:
		return "'>'"
	case tokGe:
		return "'>='"
	case tokAnd:
		return "'&'"
	case tokOr:
		return "'|'"
	case tokNot:
		return "'!'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	default:
		return "unknown token"
	}
}

type token struct {
	kind tokenKind
	text string  // ident text (escapes preserved for glob detection)
	num  float64 // number value
}

// isIdentChar reports whether c can appear in a tag key or value.
// Backslash is included so escaped wildcards survive tokenizing.
func isIdentChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == ':', c == '-', c == '*', c == '\\', c == '.':
		return true
	default:
		return false
	}
}

// tokenize splits a DSL filter string into tokens. An EOF token is always
// appended.
func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '!' && i+1 < len(input) && input[i+1] == '=':
			tokens = append(tokens, token{kind: tokNe})
			i += 2
		case c == '<' && i+1 < len(input) && input[i+1] == '=':
			tokens = append(tokens, token{kind: tokLe})
			i += 2
		case c == '>' && i+1 < len(input) && input[i+1] == '=':
			tokens = append(tokens, token{kind: tokGe})
			i += 2
		case c == '=':
			tokens = append(tokens, token{kind: tokEq})
			i++
		case c == '<':
			tokens = append(tokens, token{kind: tokLt})
			i++
		case c == '>':
			tokens = append(tokens, token{kind: tokGt})
			i++
		case c == '&':
			tokens = append(tokens, token{kind: tokAnd})
			i++
		case c == '|':
			tokens = append(tokens, token{kind: tokOr})
			i++
		case c == '!':
			tokens = append(tokens, token{kind: tokNot})
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokLParen})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen})
			i++
		case c >= '0' && c <= '9' || (c == '-' && i+1 < len(input) && input[i+1] >= '0' && input[i+1] <= '9'):
			start := i
			i++
			for i < len(input) && (input[i] >= '0' && input[i] <= '9' || input[i] == '.') {
				i++
			}
			// A number followed by ident chars is really an ident
			// ("4wd_only", "2nd:floor").
			if i < len(input) && isIdentChar(input[i]) {
				for i < len(input) && isIdentChar(input[i]) {
					i++
				}
				tokens = append(tokens, token{kind: tokIdent, text: input[start:i]})
				continue
			}
			n, err := strconv.ParseFloat(input[start:i], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q", input[start:i])
			}
			tokens = append(tokens, token{kind: tokNumber, num: n})
		case isIdentChar(c):
			start := i
			for i < len(input) {
				if input[i] == '\\' && i+1 < len(input) {
					i += 2
					continue
				}
				if !isIdentChar(input[i]) {
					break
				}
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: input[start:i]})
		default:
			rest := input[i:]
			if len(rest) > 16 {
				rest = rest[:16] + "..."
			}
			return nil, fmt.Errorf("unexpected character %q at %q", strings.TrimSpace(string(c)), rest)
		}
	}
	return append(tokens, token{kind: tokEOF}), nil
}
