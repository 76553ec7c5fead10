package expr

// lexer tokenizes formula text. The design follows a conventional
// byte-at-a-time scanner: pos is the current character, readPos the next.
type lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
}

func newLexer(input string) *lexer {
	l := &lexer{input: input}
	l.readChar()
	return l
}

// readChar advances to the next character.
func (l *lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // NUL = EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

// peekChar returns the next character without advancing.
func (l *lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// nextToken returns the next token.
func (l *lexer) nextToken() token {
	l.skipWhitespace()

	pos := l.pos

	switch l.ch {
	case 0:
		return token{typ: tokenEOF, pos: pos}
	case '+':
		l.readChar()
		return token{typ: tokenPlus, literal: "+", pos: pos}
	case '-':
		l.readChar()
		return token{typ: tokenMinus, literal: "-", pos: pos}
	case '*':
		l.readChar()
		return token{typ: tokenStar, literal: "*", pos: pos}
	case '/':
		l.readChar()
		return token{typ: tokenSlash, literal: "/", pos: pos}
	case '^':
		l.readChar()
		return token{typ: tokenCaret, literal: "^", pos: pos}
	case '%':
		l.readChar()
		return token{typ: tokenPercent, literal: "%", pos: pos}
	case '=':
		l.readChar()
		return token{typ: tokenEq, literal: "=", pos: pos}
	case '<':
		switch l.peekChar() {
		case '=':
			l.readChar()
			l.readChar()
			return token{typ: tokenLe, literal: "<=", pos: pos}
		case '>':
			l.readChar()
			l.readChar()
			return token{typ: tokenNe, literal: "<>", pos: pos}
		default:
			l.readChar()
			return token{typ: tokenLt, literal: "<", pos: pos}
		}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			l.readChar()
			return token{typ: tokenGe, literal: ">=", pos: pos}
		}
		l.readChar()
		return token{typ: tokenGt, literal: ">", pos: pos}
	case '(':
		l.readChar()
		return token{typ: tokenLParen, literal: "(", pos: pos}
	case ')':
		l.readChar()
		return token{typ: tokenRParen, literal: ")", pos: pos}
	case ',':
		l.readChar()
		return token{typ: tokenComma, literal: ",", pos: pos}
	case '!':
		l.readChar()
		return token{typ: tokenBang, literal: "!", pos: pos}
	case '$':
		l.readChar()
		return token{typ: tokenDollar, literal: "$", pos: pos}
	case '"':
		lit, ok := l.readString('"')
		if !ok {
			return token{typ: tokenIllegal, literal: "unterminated string literal", pos: pos}
		}
		return token{typ: tokenString, literal: lit, pos: pos}
	case '\'':
		lit, ok := l.readString('\'')
		if !ok {
			return token{typ: tokenIllegal, literal: "unterminated quoted sheet name", pos: pos}
		}
		return token{typ: tokenQuoted, literal: lit, pos: pos}
	}

	switch {
	case isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())):
		return token{typ: tokenNumber, literal: l.readNumber(), pos: pos}
	case isLetter(l.ch) || l.ch == '_':
		lit := l.readIdentifier()
		return token{typ: classifyWord(lit), literal: lit, pos: pos}
	}

	lit := string(l.ch)
	l.readChar()
	return token{typ: tokenIllegal, literal: lit, pos: pos}
}

// classifyWord maps an identifier to its token type. A word matching the
// cell-reference lexical pattern is always a cell reference, even when a
// scalar of the same spelling exists; classification happens here, before
// any semantic resolution.
func classifyWord(lit string) tokenType {
	switch lit {
	case "TRUE", "true":
		return tokenTrue
	case "FALSE", "false":
		return tokenFalse
	}
	if isCellWord(lit) {
		return tokenCellRef
	}
	return tokenIdent
}

// isCellWord reports whether lit is 1-3 upper-case letters followed by
// one or more digits (the A1-style address pattern).
func isCellWord(lit string) bool {
	i := 0
	for i < len(lit) && lit[i] >= 'A' && lit[i] <= 'Z' {
		i++
	}
	if i == 0 || i > 3 || i == len(lit) {
		return false
	}
	for j := i; j < len(lit); j++ {
		if !isDigit(lit[j]) {
			return false
		}
	}
	return true
}

// readString reads a literal delimited by quote, with doubled-quote escapes.
// Returns false if the literal is unterminated.
func (l *lexer) readString(quote byte) (string, bool) {
	l.readChar() // skip opening quote

	var out []byte
	for l.ch != 0 {
		if l.ch == quote {
			if l.peekChar() == quote {
				out = append(out, quote)
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar() // skip closing quote
			return string(out), true
		}
		out = append(out, l.ch)
		l.readChar()
	}
	return "", false
}

// readIdentifier reads an unquoted identifier.
func (l *lexer) readIdentifier() string {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// readNumber reads a numeric literal (integer, decimal, or scientific).
func (l *lexer) readNumber() string {
	start := l.pos

	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return l.input[start:l.pos]
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
