package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Operator precedence, low to high. Comparison binds loosest; the postfix
// percent binds tightest of all operators.
const (
	precNone = iota
	precComparison
	precAdd
	precMul
	precUnary
	precPower
	precPostfix
)

// parser implements precedence-climbing (Pratt) parsing over the token
// stream of a single formula.
type parser struct {
	lex  *lexer
	cur  token
	peek token
}

// Parse compiles formula text into an expression tree. The text must begin
// with '='. Errors are reported as *ParseError with a character offset when
// one is determinable.
//
// A token lexically matching the A1 address pattern (1-3 upper-case letters
// followed by digits, e.g. F2) is always classified as a cell reference,
// never as a name. A scalar named F2 is therefore unreachable from formula
// text; this lexical-priority rule is deliberate and callers should avoid
// address-shaped scalar names.
func Parse(text string) (Node, error) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "=") {
		return nil, &ParseError{Pos: 0, Message: "formula must start with '='"}
	}

	p := &parser{lex: newLexer(trimmed[1:])}
	p.nextToken()
	p.nextToken()

	tree, err := p.parseExpression(precNone + 1)
	if err != nil {
		return nil, err
	}
	if p.cur.typ != tokenEOF {
		return nil, p.errorf("unexpected token %s after expression", p.cur)
	}
	return tree, nil
}

func (p *parser) nextToken() {
	p.cur = p.peek
	p.peek = p.lex.nextToken()
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Pos: p.cur.pos + 1, Message: fmt.Sprintf(format, args...)}
}

// parseExpression parses an expression whose operators all have precedence
// of at least minPrec.
func (p *parser) parseExpression(minPrec int) (Node, error) {
	left, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}

	for {
		prec := infixPrecedence(p.cur.typ)
		if prec < minPrec {
			return left, nil
		}

		switch p.cur.typ {
		case tokenPercent:
			left = &Percent{X: left}
			p.nextToken()

		case tokenCaret:
			p.nextToken()
			// Right-associative: parse the right side at the same level.
			right, err := p.parseExpression(precPower)
			if err != nil {
				return nil, err
			}
			left = &Binary{Op: "^", L: left, R: right}

		default:
			op := p.cur.literal
			p.nextToken()
			right, err := p.parseExpression(prec + 1)
			if err != nil {
				return nil, err
			}
			left = &Binary{Op: op, L: left, R: right}
		}
	}
}

// infixPrecedence returns the precedence of tok as an infix or postfix
// operator, or precNone if it is neither.
func infixPrecedence(tok tokenType) int {
	switch tok {
	case tokenEq, tokenNe, tokenLt, tokenGt, tokenLe, tokenGe:
		return precComparison
	case tokenPlus, tokenMinus:
		return precAdd
	case tokenStar, tokenSlash:
		return precMul
	case tokenCaret:
		return precPower
	case tokenPercent:
		return precPostfix
	default:
		return precNone
	}
}

// parsePrefix parses unary +/- and primary expressions.
func (p *parser) parsePrefix() (Node, error) {
	switch p.cur.typ {
	case tokenMinus, tokenPlus:
		op := p.cur.literal
		p.nextToken()
		x, err := p.parseExpression(precUnary)
		if err != nil {
			return nil, err
		}
		return &Unary{Op: op, X: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	switch p.cur.typ {
	case tokenNumber:
		v, err := strconv.ParseFloat(p.cur.literal, 64)
		if err != nil {
			return nil, p.errorf("invalid number literal %q", p.cur.literal)
		}
		p.nextToken()
		return &NumberLit{Value: v}, nil

	case tokenString:
		n := &StringLit{Value: p.cur.literal}
		p.nextToken()
		return n, nil

	case tokenTrue:
		p.nextToken()
		return &BoolLit{Value: true}, nil

	case tokenFalse:
		p.nextToken()
		return &BoolLit{Value: false}, nil

	case tokenLParen:
		p.nextToken()
		inner, err := p.parseExpression(precNone + 1)
		if err != nil {
			return nil, err
		}
		if p.cur.typ != tokenRParen {
			return nil, p.errorf("expected ')', got %s", p.cur)
		}
		p.nextToken()
		return inner, nil

	case tokenDollar:
		p.nextToken()
		if p.cur.typ != tokenIdent && p.cur.typ != tokenCellRef {
			return nil, p.errorf("expected name after '$', got %s", p.cur)
		}
		n := &NameRef{Name: p.cur.literal, Dollar: true}
		p.nextToken()
		return n, nil

	case tokenQuoted:
		// 'Sheet Name'!A1
		sheet := p.cur.literal
		p.nextToken()
		return p.parseSheetRef(sheet)

	case tokenCellRef:
		n := &CellRef{Addr: strings.ToUpper(p.cur.literal)}
		p.nextToken()
		return n, nil

	case tokenIdent:
		name := p.cur.literal
		switch p.peek.typ {
		case tokenLParen:
			p.nextToken() // onto '('
			return p.parseCall(name)
		case tokenBang:
			p.nextToken() // onto '!'
			return p.parseSheetRef(name)
		}
		p.nextToken()
		return &NameRef{Name: name}, nil

	case tokenIllegal:
		return nil, p.errorf("%s", p.cur.literal)

	default:
		return nil, p.errorf("unexpected token %s", p.cur)
	}
}

// parseSheetRef parses the '!' and address of a cross-sheet reference, with
// the sheet name already consumed. The current token must be '!'.
func (p *parser) parseSheetRef(sheet string) (Node, error) {
	if p.cur.typ != tokenBang {
		return nil, p.errorf("expected '!' after sheet name %q, got %s", sheet, p.cur)
	}
	p.nextToken()
	if p.cur.typ != tokenCellRef {
		return nil, p.errorf("expected cell address after %q!, got %s", sheet, p.cur)
	}
	n := &CellRef{Sheet: sheet, Addr: strings.ToUpper(p.cur.literal)}
	p.nextToken()
	return n, nil
}

// parseCall parses a function call argument list. The current token must be
// '(' and the function name has already been consumed.
func (p *parser) parseCall(name string) (Node, error) {
	p.nextToken() // skip '('

	call := &Call{Name: name}
	if p.cur.typ == tokenRParen {
		p.nextToken()
		return call, nil
	}

	for {
		arg, err := p.parseExpression(precNone + 1)
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)

		switch p.cur.typ {
		case tokenComma:
			p.nextToken()
		case tokenRParen:
			p.nextToken()
			return call, nil
		default:
			return nil, p.errorf("expected ',' or ')' in %s(...), got %s", name, p.cur)
		}
	}
}
