package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextTokenPunctuationAndOperators(t *testing.T) {
	input := `(){}[] , . .. : ; ? + - * / % ** & | ^ ~ << >>`
	want := []TokenType{
		TokenLeftParen, TokenRightParen, TokenLeftBrace, TokenRightBrace,
		TokenLeftBracket, TokenRightBracket, TokenComma, TokenDot, TokenDotDot,
		TokenColon, TokenSemicolon, TokenQuestion, TokenPlus, TokenMinus,
		TokenStar, TokenSlash, TokenPercent, TokenStarStar, TokenAmp, TokenPipe,
		TokenCaret, TokenTilde, TokenShl, TokenShr, TokenEOF,
	}
	toks := Tokenize(input)
	assert.Equal(t, len(want), len(toks))
	for i, w := range want {
		assert.Equalf(t, w, toks[i].Type, "token %d", i)
	}
}

func TestNextTokenCompoundAssignment(t *testing.T) {
	toks := Tokenize("x += 1; y -= 2; z *= 3; w /= 4; i++; j--;")
	types := tokenTypes(toks)
	assert.Contains(t, types, TokenPlusEqual)
	assert.Contains(t, types, TokenMinusEqual)
	assert.Contains(t, types, TokenStarEqual)
	assert.Contains(t, types, TokenSlashEqual)
	assert.Contains(t, types, TokenIncrement)
	assert.Contains(t, types, TokenDecrement)
}

func TestNextTokenKeywords(t *testing.T) {
	toks := Tokenize("class static this super def if else var const true false nil for while break continue return with as trait use abstract enum import from print and or")
	for _, tok := range toks {
		if tok.Type == TokenIdentifier {
			t.Fatalf("keyword %q scanned as identifier", tok.Literal)
		}
	}
}

func TestNextTokenStringLiteralsAndEscapes(t *testing.T) {
	toks := Tokenize(`"hello\nworld" 'single' r"raw\nstring"`)
	assert.Equal(t, TokenString, toks[0].Type)
	assert.Equal(t, "hello\nworld", toks[0].Literal)
	assert.Equal(t, TokenString, toks[1].Type)
	assert.Equal(t, "single", toks[1].Literal)
	assert.Equal(t, TokenRawString, toks[2].Type)
	assert.Equal(t, `raw\nstring`, toks[2].Literal)
}

func TestNextTokenUnterminatedStringIsErrorNotAbort(t *testing.T) {
	toks := Tokenize(`"unterminated`)
	assert.Equal(t, TokenError, toks[0].Type)
	assert.Equal(t, TokenEOF, toks[len(toks)-1].Type)
}

func TestNextTokenNumbers(t *testing.T) {
	toks := Tokenize("42 3.14 0")
	assert.Equal(t, TokenNumber, toks[0].Type)
	assert.Equal(t, "42", toks[0].Literal)
	assert.Equal(t, "3.14", toks[1].Literal)
}

func TestNextTokenSkipsLineAndBlockComments(t *testing.T) {
	toks := Tokenize("1 // a comment\n2 /* block /* nested */ comment */ 3")
	nums := []string{}
	for _, tok := range toks {
		if tok.Type == TokenNumber {
			nums = append(nums, tok.Literal)
		}
	}
	assert.Equal(t, []string{"1", "2", "3"}, nums)
}

func TestNextTokenTracksLineNumbers(t *testing.T) {
	toks := Tokenize("1\n2\n3")
	assert.Equal(t, 1, toks[0].Line)
	assert.Equal(t, 2, toks[1].Line)
	assert.Equal(t, 3, toks[2].Line)
}

func TestBackTrackRewindsOneByte(t *testing.T) {
	l := New("a b")
	first := l.NextToken()
	assert.Equal(t, "a", first.Literal)
	l.BackTrack()
	again := l.NextToken()
	assert.Equal(t, first.Literal, again.Literal)
}

func tokenTypes(toks []Token) []TokenType {
	ts := make([]TokenType, len(toks))
	for i, t := range toks {
		ts[i] = t.Type
	}
	return ts
}
