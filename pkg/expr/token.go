package expr

import "fmt"

// tokenType identifies a lexical token class.
type tokenType int

const (
	tokenEOF tokenType = iota
	tokenIllegal

	tokenNumber
	tokenString // "..." string literal
	tokenQuoted // '...' quoted sheet name
	tokenIdent
	tokenCellRef // 1-3 upper-case letters followed by digits
	tokenTrue
	tokenFalse

	tokenPlus
	tokenMinus
	tokenStar
	tokenSlash
	tokenCaret
	tokenPercent
	tokenEq
	tokenNe
	tokenLt
	tokenGt
	tokenLe
	tokenGe

	tokenLParen
	tokenRParen
	tokenComma
	tokenBang
	tokenDollar
)

// token is a lexical token with its byte offset in the formula text.
type token struct {
	typ     tokenType
	literal string
	pos     int
}

func (t token) String() string {
	if t.typ == tokenEOF {
		return "end of formula"
	}
	return fmt.Sprintf("%q", t.literal)
}
