package scanner

import (
	"testing"

	"github.com/estevaofon/noxlox/internal/token"
)

func scanAll(source string) []token.Token {
	s := New(source)
	var toks []token.Token
	for {
		tok := s.ScanToken()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks
		}
	}
}

func types(toks []token.Token) []token.Type {
	out := make([]token.Type, len(toks))
	for i, tok := range toks {
		out[i] = tok.Type
	}
	return out
}

func assertTypes(t *testing.T, source string, want ...token.Type) {
	t.Helper()
	want = append(want, token.EOF)
	got := types(scanAll(source))
	if len(got) != len(want) {
		t.Fatalf("scanning %q: got %v, want %v", source, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("scanning %q: token %d got %v, want %v", source, i, got[i], want[i])
		}
	}
}

func TestSingleCharTokens(t *testing.T) {
	assertTypes(t, "(){};:,.", token.LeftParen, token.RightParen, token.LeftBrace,
		token.RightBrace, token.Semicolon, token.Colon, token.Comma, token.Dot)
}

func TestTwoCharOperators(t *testing.T) {
	assertTypes(t, "!= == <= >= < > !", token.BangEqual, token.EqualEqual,
		token.LessEqual, token.GreaterEqual, token.Less, token.Greater, token.Bang)
}

func TestNumberLiterals(t *testing.T) {
	assertTypes(t, "123 4.5", token.Number, token.Number)
	toks := scanAll("123 4.5")
	if toks[0].Lexeme != "123" || toks[1].Lexeme != "4.5" {
		t.Errorf("unexpected lexemes: %q %q", toks[0].Lexeme, toks[1].Lexeme)
	}
}

func TestStringLiteral(t *testing.T) {
	toks := scanAll(`"hello world"`)
	if toks[0].Type != token.String || toks[0].Lexeme != `"hello world"` {
		t.Errorf("unexpected token: %+v", toks[0])
	}
}

func TestUnterminatedStringIsErrorToken(t *testing.T) {
	toks := scanAll(`"unterminated`)
	if toks[0].Type != token.Error {
		t.Fatalf("expected Error token, got %v", toks[0].Type)
	}
}

func TestLineCommentsAreSkipped(t *testing.T) {
	assertTypes(t, "// a whole comment line\nvar", token.Var)
}

func TestAllKeywordsRecognized(t *testing.T) {
	for lexeme, want := range token.Keywords {
		toks := scanAll(lexeme)
		if toks[0].Type != want {
			t.Errorf("keyword %q: got %v, want %v", lexeme, toks[0].Type, want)
		}
	}
}

func TestIdentifierNotKeyword(t *testing.T) {
	assertTypes(t, "forest classy", token.Identifier, token.Identifier)
}

func TestLineTrackingAcrossNewlines(t *testing.T) {
	toks := scanAll("var\nvar\nvar")
	wantLines := []int{1, 2, 3}
	for i, want := range wantLines {
		if toks[i].Line != want {
			t.Errorf("token %d: got line %d, want %d", i, toks[i].Line, want)
		}
	}
}

func TestUnexpectedCharacterIsErrorToken(t *testing.T) {
	toks := scanAll("@")
	if toks[0].Type != token.Error {
		t.Fatalf("expected Error token, got %v", toks[0].Type)
	}
}

func TestScanningPastEOFKeepsReturningEOF(t *testing.T) {
	s := New("")
	for i := 0; i < 3; i++ {
		if tok := s.ScanToken(); tok.Type != token.EOF {
			t.Fatalf("call %d: got %v, want EOF", i, tok.Type)
		}
	}
}
