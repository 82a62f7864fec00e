// Package scanner turns source text into tokens, one at a time, on demand.
// It holds only a start/current/line cursor into the source buffer — no
// token stream is materialized up front — so the single-pass compiler can
// interleave scanning with parsing and code generation.
package scanner

import "github.com/estevaofon/noxlox/internal/token"

// Scanner reads UTF-8-compatible ASCII source text and produces tokens that
// slice directly into that text. The source buffer must outlive the
// Scanner and anything holding tokens it produced.
type Scanner struct {
	source  string
	start   int
	current int
	line    int
}

// New creates a Scanner over source, starting at line 1.
func New(source string) *Scanner {
	return &Scanner{source: source, line: 1}
}

func (s *Scanner) isAtEnd() bool { return s.current >= len(s.source) }

func (s *Scanner) advance() byte {
	c := s.source[s.current]
	s.current++
	return c
}

func (s *Scanner) peek() byte {
	if s.isAtEnd() {
		return 0
	}
	return s.source[s.current]
}

func (s *Scanner) peekNext() byte {
	if s.current+1 >= len(s.source) {
		return 0
	}
	return s.source[s.current+1]
}

func (s *Scanner) match(expected byte) bool {
	if s.isAtEnd() || s.source[s.current] != expected {
		return false
	}
	s.current++
	return true
}

func (s *Scanner) makeToken(t token.Type) token.Token {
	return token.Token{Type: t, Lexeme: s.source[s.start:s.current], Line: s.line}
}

func (s *Scanner) errorToken(message string) token.Token {
	return token.Token{Type: token.Error, Lexeme: message, Line: s.line}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func (s *Scanner) skipWhitespace() {
	for {
		switch s.peek() {
		case ' ', '\r', '\t':
			s.advance()
		case '\n':
			s.line++
			s.advance()
		case '/':
			if s.peekNext() == '/' {
				for s.peek() != '\n' && !s.isAtEnd() {
					s.advance()
				}
			} else {
				return
			}
		default:
			return
		}
	}
}

// ScanToken produces the next token. It is safe to call past EOF: every call
// after the source is exhausted returns another token.EOF.
func (s *Scanner) ScanToken() token.Token {
	s.skipWhitespace()
	s.start = s.current

	if s.isAtEnd() {
		return s.makeToken(token.EOF)
	}

	c := s.advance()
	if isAlpha(c) {
		return s.identifier()
	}
	if isDigit(c) {
		return s.number()
	}

	switch c {
	case '(':
		return s.makeToken(token.LeftParen)
	case ')':
		return s.makeToken(token.RightParen)
	case '{':
		return s.makeToken(token.LeftBrace)
	case '}':
		return s.makeToken(token.RightBrace)
	case ';':
		return s.makeToken(token.Semicolon)
	case ':':
		return s.makeToken(token.Colon)
	case ',':
		return s.makeToken(token.Comma)
	case '.':
		return s.makeToken(token.Dot)
	case '-':
		return s.makeToken(token.Minus)
	case '+':
		return s.makeToken(token.Plus)
	case '/':
		return s.makeToken(token.Slash)
	case '*':
		return s.makeToken(token.Star)
	case '%':
		return s.makeToken(token.Percent)
	case '?':
		return s.makeToken(token.Question)
	case '!':
		if s.match('=') {
			return s.makeToken(token.BangEqual)
		}
		return s.makeToken(token.Bang)
	case '=':
		if s.match('=') {
			return s.makeToken(token.EqualEqual)
		}
		return s.makeToken(token.Equal)
	case '<':
		if s.match('=') {
			return s.makeToken(token.LessEqual)
		}
		return s.makeToken(token.Less)
	case '>':
		if s.match('=') {
			return s.makeToken(token.GreaterEqual)
		}
		return s.makeToken(token.Greater)
	case '"':
		return s.string()
	}

	return s.errorToken("Unexpected character.")
}

func (s *Scanner) string() token.Token {
	for s.peek() != '"' && !s.isAtEnd() {
		if s.peek() == '\n' {
			s.line++
		}
		s.advance()
	}
	if s.isAtEnd() {
		return s.errorToken("Unterminated string.")
	}
	s.advance() // closing quote
	return s.makeToken(token.String)
}

func (s *Scanner) number() token.Token {
	for isDigit(s.peek()) {
		s.advance()
	}
	if s.peek() == '.' && isDigit(s.peekNext()) {
		s.advance()
		for isDigit(s.peek()) {
			s.advance()
		}
	}
	return s.makeToken(token.Number)
}

func (s *Scanner) identifier() token.Token {
	for isAlpha(s.peek()) || isDigit(s.peek()) {
		s.advance()
	}
	return s.makeToken(s.identifierType())
}

// identifierType recognizes a keyword by trie matching on the lexeme: the
// first character selects a branch, and each branch checks the remaining
// suffix in one shot. Anything that falls through is an Identifier.
func (s *Scanner) identifierType() token.Type {
	lexeme := s.source[s.start:s.current]
	if len(lexeme) == 0 {
		return token.Identifier
	}
	switch lexeme[0] {
	case 'a':
		return s.checkKeyword(lexeme, "and", token.And)
	case 'b':
		return s.checkKeyword(lexeme, "break", token.Break)
	case 'c':
		if len(lexeme) > 1 {
			switch lexeme[1] {
			case 'a':
				return s.checkKeyword(lexeme, "case", token.Case)
			case 'l':
				return s.checkKeyword(lexeme, "class", token.Class)
			case 'o':
				return s.checkKeyword(lexeme, "continue", token.Continue)
			}
		}
	case 'd':
		return s.checkKeyword(lexeme, "default", token.Default)
	case 'e':
		if len(lexeme) > 1 {
			switch lexeme[1] {
			case 'l':
				if lexeme == "elif" {
					return token.Elif
				}
				return s.checkKeyword(lexeme, "else", token.Else)
			}
		}
	case 'f':
		if len(lexeme) > 1 {
			switch lexeme[1] {
			case 'a':
				if lexeme == "false" {
					return token.False
				}
				return s.checkKeyword(lexeme, "fallthrough", token.Fallthrough)
			case 'o':
				return s.checkKeyword(lexeme, "for", token.For)
			case 'u':
				return s.checkKeyword(lexeme, "fun", token.Fun)
			}
		}
	case 'i':
		return s.checkKeyword(lexeme, "if", token.If)
	case 'n':
		return s.checkKeyword(lexeme, "nil", token.Nil)
	case 'o':
		return s.checkKeyword(lexeme, "or", token.Or)
	case 'p':
		return s.checkKeyword(lexeme, "print", token.Print)
	case 'r':
		return s.checkKeyword(lexeme, "return", token.Return)
	case 's':
		if lexeme == "super" {
			return token.Super
		}
		return s.checkKeyword(lexeme, "switch", token.Switch)
	case 't':
		if len(lexeme) > 1 {
			switch lexeme[1] {
			case 'h':
				if lexeme == "this" {
					return token.This
				}
				return s.checkKeyword(lexeme, "then", token.Then)
			case 'r':
				return s.checkKeyword(lexeme, "true", token.True)
			}
		}
	case 'v':
		return s.checkKeyword(lexeme, "var", token.Var)
	case 'w':
		return s.checkKeyword(lexeme, "while", token.While)
	}
	return token.Identifier
}

func (s *Scanner) checkKeyword(lexeme, keyword string, t token.Type) token.Type {
	if lexeme == keyword {
		return t
	}
	return token.Identifier
}
