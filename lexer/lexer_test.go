package lexer

import (
	"testing"

	"github.com/quartzlang/quartz/token"
)

func collect(input string) []token.Token {
	l := New(input, 0)
	var toks []token.Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks
		}
	}
}

func assertTypes(t *testing.T, input string, want []token.Type) {
	t.Helper()
	toks := collect(input)
	if len(toks) != len(want) {
		var got []token.Type
		for _, tok := range toks {
			got = append(got, tok.Type)
		}
		t.Fatalf("%q: token count = %d (%v), want %d (%v)", input, len(toks), got, len(want), want)
	}
	for i, tok := range toks {
		if tok.Type != want[i] {
			t.Errorf("%q: token[%d].Type = %s, want %s", input, i, tok.Type, want[i])
		}
	}
}

func TestOperators(t *testing.T) {
	tests := []struct {
		input string
		want  token.Type
	}{
		{"+", token.PLUS}, {"-", token.MINUS}, {"*", token.STAR}, {"**", token.DSTAR},
		{"/", token.SLASH}, {"%", token.PERCENT}, {"==", token.EQ}, {"===", token.CASEEQ},
		{"!=", token.NOTEQ}, {"<=>", token.CMP}, {"<=", token.LTE}, {">=", token.GTE},
		{"&&", token.ANDAND}, {"||", token.OROR}, {"&.", token.SAFENAV}, {"->", token.ARROW},
		{"::", token.SCOPE}, {"..", token.DOTDOT}, {"...", token.DOTDOTDOT},
		{"+=", token.PLUSEQ}, {"||=", token.OREQ}, {"&&=", token.ANDEQ},
	}
	for _, tt := range tests {
		assertTypes(t, tt.input, []token.Type{tt.want, token.EOF})
	}
}

func TestKeywordsAndIdentifiers(t *testing.T) {
	assertTypes(t, "def", []token.Type{token.DEF, token.EOF})
	assertTypes(t, "foo", []token.Type{token.IDENT, token.EOF})
	assertTypes(t, "Foo", []token.Type{token.CONST, token.EOF})
	assertTypes(t, "foo_bar?", []token.Type{token.IDENT, token.EOF})
	assertTypes(t, "foo!", []token.Type{token.IDENT, token.EOF})
}

func TestIvarCvarGvar(t *testing.T) {
	toks := collect("@foo @@bar $baz")
	want := []struct {
		typ token.Type
		lit string
	}{
		{token.IVAR, "@foo"},
		{token.CVAR, "@@bar"},
		{token.GVAR, "$baz"},
		{token.EOF, ""},
	}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(toks), len(want))
	}
	for i, w := range want {
		if toks[i].Type != w.typ || toks[i].Literal != w.lit {
			t.Errorf("token[%d] = %+v, want {%s %q}", i, toks[i], w.typ, w.lit)
		}
	}
}

func TestNthRefLexesAsDigitGvar(t *testing.T) {
	toks := collect("$1")
	if toks[0].Type != token.GVAR || toks[0].Literal != "$1" {
		t.Fatalf("$1 lexed as %+v, want GVAR literal \"$1\"", toks[0])
	}
}

func TestNumericLiterals(t *testing.T) {
	tests := []struct {
		input string
		typ   token.Type
	}{
		{"42", token.INT},
		{"0x2a", token.INT},
		{"0b101", token.INT},
		{"0o17", token.INT},
		{"1_000", token.INT},
		{"4.2", token.FLOAT},
		{"1e10", token.FLOAT},
		{"1.5e-3", token.FLOAT},
	}
	for _, tt := range tests {
		toks := collect(tt.input)
		if toks[0].Type != tt.typ {
			t.Errorf("%q: type = %s, want %s", tt.input, toks[0].Type, tt.typ)
		}
	}
}

func TestStringEscapes(t *testing.T) {
	toks := collect(`"a\nb\tc\"d"`)
	if toks[0].Type != token.STRING {
		t.Fatalf("expected STRING, got %s", toks[0].Type)
	}
	want := "a\nb\tc\"d"
	if toks[0].Literal != want {
		t.Errorf("literal = %q, want %q", toks[0].Literal, want)
	}
}

func TestUnterminatedStringIsIllegal(t *testing.T) {
	toks := collect(`"abc`)
	if toks[0].Type != token.ILLEGAL {
		t.Fatalf("expected ILLEGAL for an unterminated string, got %s", toks[0].Type)
	}
}

func TestSymbolLiteral(t *testing.T) {
	toks := collect(":foo")
	if toks[0].Type != token.SYMBOL || toks[0].Literal != "foo" {
		t.Fatalf("got %+v, want SYMBOL \"foo\"", toks[0])
	}
}

func TestLineCommentsAreSkipped(t *testing.T) {
	assertTypes(t, "1 # a comment\n2", []token.Type{token.INT, token.NEWLINE, token.INT, token.EOF})
}

func TestNewlinesAreSignificantTokens(t *testing.T) {
	assertTypes(t, "a\nb", []token.Type{token.IDENT, token.NEWLINE, token.IDENT, token.EOF})
}

func TestLineContinuationSwallowsNewline(t *testing.T) {
	assertTypes(t, "1 + \\\n2", []token.Type{token.INT, token.PLUS, token.INT, token.EOF})
}

func TestLineNumbersAdvance(t *testing.T) {
	toks := collect("a\nb\nc")
	if toks[0].Line != 1 {
		t.Errorf("first token line = %d, want 1", toks[0].Line)
	}
	// toks[1] is the NEWLINE after a, toks[2] is b on line 2
	if toks[2].Line != 2 {
		t.Errorf("b's line = %d, want 2", toks[2].Line)
	}
}

func TestFileIndexIsCarried(t *testing.T) {
	l := New("1", 7)
	tok := l.NextToken()
	if tok.File != 7 {
		t.Errorf("File = %d, want 7", tok.File)
	}
}

func TestMethodDefSignatureTokens(t *testing.T) {
	assertTypes(t, "def foo(x, y)\nend", []token.Type{
		token.DEF, token.IDENT, token.LPAREN, token.IDENT, token.COMMA, token.IDENT,
		token.RPAREN, token.NEWLINE, token.END, token.EOF,
	})
}
