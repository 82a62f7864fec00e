// Package token defines the lexical token kinds produced by the scanner and
// consumed directly by the single-pass compiler.
package token

// Type identifies the lexical category of a Token.
type Type int

const (
	// Single-character punctuation.
	LeftParen Type = iota
	RightParen
	LeftBrace
	RightBrace
	Comma
	Dot
	Minus
	Plus
	Semicolon
	Colon
	Slash
	Star
	Percent
	Question

	// One- or two-character operators.
	Bang
	BangEqual
	Equal
	EqualEqual
	Greater
	GreaterEqual
	Less
	LessEqual

	// Literals.
	Identifier
	String
	Number

	// Keywords.
	And
	Break
	Case
	Class
	Continue
	Default
	Elif
	Else
	Fallthrough
	False
	For
	Fun
	If
	Nil
	Or
	Print
	Return
	Super
	Switch
	Then
	This
	True
	Var
	While

	Error
	EOF
)

var names = map[Type]string{
	LeftParen:    "(",
	RightParen:   ")",
	LeftBrace:    "{",
	RightBrace:   "}",
	Comma:        ",",
	Dot:          ".",
	Minus:        "-",
	Plus:         "+",
	Semicolon:    ";",
	Colon:        ":",
	Slash:        "/",
	Star:         "*",
	Percent:      "%",
	Question:     "?",
	Bang:         "!",
	BangEqual:    "!=",
	Equal:        "=",
	EqualEqual:   "==",
	Greater:      ">",
	GreaterEqual: ">=",
	Less:         "<",
	LessEqual:    "<=",
	Identifier:   "identifier",
	String:       "string",
	Number:       "number",
	And:          "and",
	Break:        "break",
	Case:         "case",
	Class:        "class",
	Continue:     "continue",
	Default:      "default",
	Elif:         "elif",
	Else:         "else",
	Fallthrough:  "fallthrough",
	False:        "false",
	For:          "for",
	Fun:          "fun",
	If:           "if",
	Nil:          "nil",
	Or:           "or",
	Print:        "print",
	Return:       "return",
	Super:        "super",
	Switch:       "switch",
	Then:         "then",
	This:         "this",
	True:         "true",
	Var:          "var",
	While:        "while",
	Error:        "<error>",
	EOF:          "<eof>",
}

func (t Type) String() string {
	if n, ok := names[t]; ok {
		return n
	}
	return "<unknown>"
}

// Keywords maps reserved lexemes to their Type. Anything not present here is
// an Identifier; the scanner resolves this by trie-style matching on the
// lexeme, but the table is the single source of truth the trie is grounded
// on and is what tests check against.
var Keywords = map[string]Type{
	"and":         And,
	"break":       Break,
	"case":        Case,
	"class":       Class,
	"continue":    Continue,
	"default":     Default,
	"elif":        Elif,
	"else":        Else,
	"fallthrough": Fallthrough,
	"false":       False,
	"for":         For,
	"fun":         Fun,
	"if":          If,
	"nil":         Nil,
	"or":          Or,
	"print":       Print,
	"return":      Return,
	"super":       Super,
	"switch":      Switch,
	"then":        Then,
	"this":        This,
	"true":        True,
	"var":         Var,
	"while":       While,
}

// Token is a lexeme reference plus its line. Lexeme slices directly into the
// source buffer the Scanner was constructed with (no copy), so that buffer
// must outlive compilation — mirroring the teacher's pointer-into-source
// token design but expressed as a Go string slice instead of raw pointers.
type Token struct {
	Type   Type
	Lexeme string
	Line   int
}
