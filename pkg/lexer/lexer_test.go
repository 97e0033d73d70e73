package lexer

import "testing"

func TestTokenizesKeywordsAndIdentifiers(t *testing.T) {
	l := New("var answer = 42;")

	types := []TokenType{TokenVar, TokenIdentifier, TokenEqual, TokenNumber, TokenSemicolon, TokenEOF}
	for i, want := range types {
		tok := l.Next()
		if tok.Type != want {
			t.Fatalf("token %d: expected %v, got %v (%q)", i, want, tok.Type, tok.Lexeme)
		}
	}
}

func TestTokenizesStringLiteral(t *testing.T) {
	l := New(`"hello, world"`)
	tok := l.Next()
	if tok.Type != TokenString {
		t.Fatalf("expected TokenString, got %v", tok.Type)
	}
	if tok.Lexeme != `"hello, world"` {
		t.Errorf("unexpected lexeme %q", tok.Lexeme)
	}
}

func TestUnterminatedStringIsError(t *testing.T) {
	l := New(`"oops`)
	tok := l.Next()
	if tok.Type != TokenError {
		t.Fatalf("expected TokenError, got %v", tok.Type)
	}
}

func TestTokenizesNumbers(t *testing.T) {
	tests := []string{"42", "3.14", "0.5"}
	for _, in := range tests {
		l := New(in)
		tok := l.Next()
		if tok.Type != TokenNumber || tok.Lexeme != in {
			t.Errorf("input %q: got type %v lexeme %q", in, tok.Type, tok.Lexeme)
		}
	}
}

func TestSkipsLineComments(t *testing.T) {
	l := New("// a comment\n42")
	tok := l.Next()
	if tok.Type != TokenNumber || tok.Lexeme != "42" {
		t.Fatalf("expected number 42 after comment, got %v %q", tok.Type, tok.Lexeme)
	}
}

func TestTwoCharOperators(t *testing.T) {
	tests := []struct {
		in   string
		want TokenType
	}{
		{"!=", TokenBangEqual},
		{"==", TokenEqualEqual},
		{"<=", TokenLessEqual},
		{">=", TokenGreaterEqual},
		{"!", TokenBang},
		{"<", TokenLess},
	}
	for _, tt := range tests {
		l := New(tt.in)
		tok := l.Next()
		if tok.Type != tt.want {
			t.Errorf("input %q: expected %v, got %v", tt.in, tt.want, tok.Type)
		}
	}
}

func TestTracksLineNumbers(t *testing.T) {
	l := New("1\n2\n3")
	var lines []int
	for {
		tok := l.Next()
		if tok.Type == TokenEOF {
			break
		}
		lines = append(lines, tok.Line)
	}
	want := []int{1, 2, 3}
	if len(lines) != len(want) {
		t.Fatalf("expected %d tokens, got %d", len(want), len(lines))
	}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("token %d: expected line %d, got %d", i, w, lines[i])
		}
	}
}
