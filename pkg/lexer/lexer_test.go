package lexer

import "testing"

func tokenTypes(toks []Token) []TokenType {
	types := make([]TokenType, len(toks))
	for i, tok := range toks {
		types[i] = tok.Type
	}
	return types
}

func TestKeywords(t *testing.T) {
	cases := []struct {
		lexeme string
		want   TokenType
	}{
		{"nil", TokenNil},
		{"none", TokenNone},
		{"some", TokenSome},
		{"not", TokenNot},
		{"and", TokenAnd},
		{"or", TokenOr},
		{"class", TokenClass},
		{"super", TokenSuper},
		{"this", TokenThis},
		{"nile", TokenIdentifier},
		{"nonely", TokenIdentifier},
		{"di", TokenIdentifier},
		{"dict", TokenIdentifier}, // soft keyword: stays an identifier in the lexer
	}
	for _, c := range cases {
		l := New(c.lexeme)
		tok := l.NextToken()
		if tok.Type != c.want {
			t.Errorf("NextToken(%q).Type = %v, want %v", c.lexeme, tok.Type, c.want)
		}
	}
}

func TestNilAndNoneAreDistinctTokens(t *testing.T) {
	l := New("nil none")
	first := l.NextToken()
	second := l.NextToken()
	if first.Type == second.Type {
		t.Fatalf("nil and none must lex to distinct token types, both got %v", first.Type)
	}
}

func TestNumbersAndStrings(t *testing.T) {
	toks := New(`123 4.5 "hi"`).Tokenize()
	want := []TokenType{TokenNumber, TokenNumber, TokenString, TokenEOF}
	got := tokenTypes(toks)
	if len(got) != len(want) {
		t.Fatalf("token count = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d type = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestUnterminatedStringIsError(t *testing.T) {
	l := New(`"unterminated`)
	tok := l.NextToken()
	if tok.Type != TokenError {
		t.Fatalf("Type = %v, want TokenError", tok.Type)
	}
}

func TestLineCountingAcrossNewlines(t *testing.T) {
	l := New("var a = 1;\nvar b = 2;\n")
	var last Token
	for {
		tok := l.NextToken()
		if tok.Type == TokenEOF {
			last = tok
			break
		}
		last = tok
	}
	if last.Line != 3 {
		t.Fatalf("EOF line = %d, want 3", last.Line)
	}
}

func TestFatArrowAndColon(t *testing.T) {
	toks := New("k => v : w").Tokenize()
	got := tokenTypes(toks)
	want := []TokenType{TokenIdentifier, TokenFatArrow, TokenIdentifier, TokenColon, TokenIdentifier, TokenEOF}
	if len(got) != len(want) {
		t.Fatalf("token count = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d type = %v, want %v", i, got[i], want[i])
		}
	}
}
