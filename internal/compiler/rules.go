package compiler

import (
	"github.com/estevaofon/noxlox/internal/token"
	"github.com/estevaofon/noxlox/internal/value"
)

// precedence orders the binding power of each infix operator, lowest first;
// parsePrecedence climbs the table from the bottom whenever it recurses.
type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precTernary               // ?:
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * / %
	precUnary                 // ! -
	precCall                  // . () invoke
	precPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

var rules map[token.Type]parseRule

func init() {
	rules = map[token.Type]parseRule{
		token.LeftParen:    {grouping, call, precCall},
		token.Dot:          {nil, dot, precCall},
		token.Minus:        {unary, binary, precTerm},
		token.Plus:         {nil, binary, precTerm},
		token.Slash:        {nil, binary, precFactor},
		token.Star:         {nil, binary, precFactor},
		token.Percent:      {nil, binary, precFactor},
		token.Bang:         {unary, nil, precNone},
		token.BangEqual:    {nil, binary, precEquality},
		token.EqualEqual:   {nil, binary, precEquality},
		token.Greater:      {nil, binary, precComparison},
		token.GreaterEqual: {nil, binary, precComparison},
		token.Less:         {nil, binary, precComparison},
		token.LessEqual:    {nil, binary, precComparison},
		token.Identifier:   {variable, nil, precNone},
		token.String:       {str, nil, precNone},
		token.Number:       {number, nil, precNone},
		token.And:          {nil, and_, precAnd},
		token.Or:           {nil, or_, precOr},
		token.False:        {literal, nil, precNone},
		token.True:         {literal, nil, precNone},
		token.Nil:          {literal, nil, precNone},
		token.This:         {this_, nil, precNone},
		token.Super:        {super_, nil, precNone},
		token.Question:     {nil, ternary, precTernary},
	}
}

func getRule(t token.Type) parseRule {
	if r, ok := rules[t]; ok {
		return r
	}
	return parseRule{}
}

func (c *Compiler) expression() { c.parsePrecedence(precAssignment) }

func (c *Compiler) parsePrecedence(prec precedence) {
	c.advance()
	prefixRule := getRule(c.previous.Type).prefix
	if prefixRule == nil {
		c.error("Expect expression.")
		return
	}

	canAssign := prec <= precAssignment
	prefixRule(c, canAssign)

	for prec <= getRule(c.current.Type).precedence {
		c.advance()
		infixRule := getRule(c.previous.Type).infix
		infixRule(c, canAssign)
	}

	if canAssign && c.match(token.Equal) {
		c.error("Invalid assignment target.")
	}
}

func number(c *Compiler, _ bool) {
	c.emitConstant(value.NumberVal(parseNumber(c.previous.Lexeme)))
}

func str(c *Compiler, _ bool) {
	lexeme := c.previous.Lexeme
	chars := lexeme[1 : len(lexeme)-1]
	c.emitConstant(value.ObjVal(c.heap.InternString(chars)))
}

func literal(c *Compiler, _ bool) {
	switch c.previous.Type {
	case token.False:
		c.emitOp(value.OpFalse)
	case token.True:
		c.emitOp(value.OpTrue)
	case token.Nil:
		c.emitOp(value.OpNil)
	}
}

func grouping(c *Compiler, _ bool) {
	c.expression()
	c.consume(token.RightParen, "Expect ')' after expression.")
}

func unary(c *Compiler, _ bool) {
	opType := c.previous.Type
	c.parsePrecedence(precUnary)
	switch opType {
	case token.Bang:
		c.emitOp(value.OpNot)
	case token.Minus:
		c.emitOp(value.OpNegate)
	}
}

func binary(c *Compiler, _ bool) {
	opType := c.previous.Type
	rule := getRule(opType)
	c.parsePrecedence(rule.precedence + 1)

	switch opType {
	case token.Plus:
		c.emitOp(value.OpAdd)
	case token.Minus:
		c.emitOp(value.OpSubtract)
	case token.Star:
		c.emitOp(value.OpMultiply)
	case token.Slash:
		c.emitOp(value.OpDivide)
	case token.Percent:
		c.emitOp(value.OpModulo)
	case token.BangEqual:
		c.emitOp(value.OpEqual)
		c.emitOp(value.OpNot)
	case token.EqualEqual:
		c.emitOp(value.OpEqual)
	case token.Greater:
		c.emitOp(value.OpGreater)
	case token.GreaterEqual:
		c.emitOp(value.OpLess)
		c.emitOp(value.OpNot)
	case token.Less:
		c.emitOp(value.OpLess)
	case token.LessEqual:
		c.emitOp(value.OpGreater)
		c.emitOp(value.OpNot)
	}
}

func and_(c *Compiler, _ bool) {
	endJump := c.emitJump(value.OpJumpIfFalse)
	c.emitOp(value.OpPop)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func or_(c *Compiler, _ bool) {
	elseJump := c.emitJump(value.OpJumpIfFalse)
	endJump := c.emitJump(value.OpJump)
	c.patchJump(elseJump)
	c.emitOp(value.OpPop)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

// ternary compiles `cond ? then : else`, right-associative: the else branch
// parses at precTernary so a chained `a ? b : c ? d : e` groups as
// `a ? b : (c ? d : e)`.
func ternary(c *Compiler, _ bool) {
	thenJump := c.emitJump(value.OpJumpIfFalse)
	c.emitOp(value.OpPop)
	c.parsePrecedence(precAssignment)

	elseJump := c.emitJump(value.OpJump)
	c.patchJump(thenJump)
	c.emitOp(value.OpPop)

	c.consume(token.Colon, "Expect ':' after ternary 'then' branch.")
	c.parsePrecedence(precTernary)
	c.patchJump(elseJump)
}

func call(c *Compiler, _ bool) {
	argCount := argumentList(c)
	c.emitOpByte(value.OpCall, byte(argCount))
}

func argumentList(c *Compiler) int {
	count := 0
	if !c.check(token.RightParen) {
		for {
			c.expression()
			if count == 255 {
				c.error("Can't have more than 255 arguments.")
			}
			count++
			if !c.match(token.Comma) {
				break
			}
		}
	}
	c.consume(token.RightParen, "Expect ')' after arguments.")
	return count
}

func dot(c *Compiler, canAssign bool) {
	c.consume(token.Identifier, "Expect property name after '.'.")
	name := c.previous.Lexeme
	constant := c.identifierConstant(name)

	switch {
	case canAssign && c.match(token.Equal):
		c.expression()
		c.emitOpByte(value.OpSetProperty, byte(constant))
	case c.match(token.LeftParen):
		argCount := argumentList(c)
		c.emitOpByte(value.OpInvoke, byte(constant))
		c.emitByte(byte(argCount))
	default:
		c.emitOpByte(value.OpGetProperty, byte(constant))
	}
}

func variable(c *Compiler, canAssign bool) {
	c.namedVariable(c.previous.Lexeme, canAssign)
}

func this_(c *Compiler, _ bool) {
	if c.cls == nil {
		c.error("Can't use 'this' outside of a class.")
		return
	}
	c.namedVariable("this", false)
}

func super_(c *Compiler, _ bool) {
	if c.cls == nil {
		c.error("Can't use 'super' outside of a class.")
	} else if !c.cls.hasSuperclass {
		c.error("Can't use 'super' in a class with no superclass.")
	}

	c.consume(token.Dot, "Expect '.' after 'super'.")
	c.consume(token.Identifier, "Expect superclass method name.")
	name := c.previous.Lexeme
	constant := c.identifierConstant(name)

	c.namedVariable("this", false)
	if c.match(token.LeftParen) {
		argCount := argumentList(c)
		c.namedVariable("super", false)
		c.emitOpByte(value.OpSuperInvoke, byte(constant))
		c.emitByte(byte(argCount))
	} else {
		c.namedVariable("super", false)
		c.emitOpByte(value.OpGetSuper, byte(constant))
	}
}
