package token

import (
	"unicode"
)

type Type int

const (
	Ident Type = iota
	Number
	String
	LBrace
	RBrace
	LParen
	RParen
	Comma
	Colon
	Equals
	Invalid
)

func (t Type) String() string {
	switch t {
	case Ident:
		return "identifier"
	case Number:
		return "number"
	case String:
		return "string"
	case LBrace:
		return "'{'"
	case RBrace:
		return "'}'"
	case LParen:
		return "'('"
	case RParen:
		return "')'"
	case Comma:
		return "','"
	case Colon:
		return "':'"
	case Equals:
		return "'='"
	case Invalid:
		return "invalid character"
	}
	return "unknown"
}

// Token is one lexeme. String tokens keep their quotes and escapes.
type Token struct {
	Value string
	Type  Type
	Line  int
}

var punct = map[rune]Type{
	'{': LBrace,
	'}': RBrace,
	'(': LParen,
	')': RParen,
	',': Comma,
	'=': Equals,
}

func identStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == '.' || r == '$'
}

func identPart(r rune) bool {
	return identStart(r) || unicode.IsDigit(r) || r == '@' || r == '<' || r == '>' || r == '`'
}

func Tokenize(input string) []Token {
	var tokens []Token
	line := 1
	runes := []rune(input)

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if r == '\n' {
			line++
			continue
		}
		if unicode.IsSpace(r) {
			continue
		}

		// Line comment
		if r == '#' || (r == '/' && i+1 < len(runes) && runes[i+1] == '/') {
			for i+1 < len(runes) && runes[i+1] != '\n' {
				i++
			}
			continue
		}

		if typ, ok := punct[r]; ok {
			tokens = append(tokens, Token{string(r), typ, line})
			continue
		}

		if r == ':' {
			tokens = append(tokens, Token{":", Colon, line})
			continue
		}

		// String literal
		if r == '"' {
			start := i
			i++
			for i < len(runes) && runes[i] != '"' && runes[i] != '\n' {
				if runes[i] == '\\' {
					i++
				}
				i++
			}
			if i >= len(runes) || runes[i] != '"' {
				tokens = append(tokens, Token{string(runes[start:min(i, len(runes))]), Invalid, line})
				i--
				continue
			}
			tokens = append(tokens, Token{string(runes[start : i+1]), String, line})
			continue
		}

		// Number, including signed and special float spellings
		if unicode.IsDigit(r) || ((r == '-' || r == '+') && i+1 < len(runes) && (unicode.IsDigit(runes[i+1]) || runes[i+1] == 'I' || runes[i+1] == 'N')) {
			start := i
			i++
			for i < len(runes) {
				c := runes[i]
				if unicode.IsDigit(c) || unicode.IsLetter(c) || c == '.' || c == '_' ||
					((c == '-' || c == '+') && (runes[i-1] == 'e' || runes[i-1] == 'E')) {
					i++
				} else {
					break
				}
			}
			tokens = append(tokens, Token{string(runes[start:i]), Number, line})
			i--
			continue
		}

		// Identifier; "::" joins qualified names
		if identStart(r) {
			start := i
			for i < len(runes) {
				c := runes[i]
				if identPart(c) {
					i++
				} else if c == ':' && i+1 < len(runes) && runes[i+1] == ':' {
					i += 2
				} else {
					break
				}
			}
			tokens = append(tokens, Token{string(runes[start:i]), Ident, line})
			i--
			continue
		}

		tokens = append(tokens, Token{string(r), Invalid, line})
	}

	return tokens
}
