// Package compiler is a single-pass Pratt compiler: it walks the token
// stream exactly once, emitting bytecode directly into a value.Chunk as each
// expression and statement is recognized, with no intermediate AST. Scope
// and upvalue bookkeeping borrows the teacher's resolver design, just driven
// inline from parsing rather than from a separate tree-walking pass.
package compiler

import (
	"strconv"

	"github.com/estevaofon/noxlox/internal/diag"
	"github.com/estevaofon/noxlox/internal/heap"
	"github.com/estevaofon/noxlox/internal/scanner"
	"github.com/estevaofon/noxlox/internal/token"
	"github.com/estevaofon/noxlox/internal/value"
)

// fnType distinguishes the kind of function a Compiler frame is building,
// since that changes what slot 0 means and what "return" is allowed to do.
type fnType int

const (
	typeFunction fnType = iota
	typeScript
	typeMethod
	typeInitializer
)

type local struct {
	name       string
	depth      int // -1 while declared but not yet initialized
	isCaptured bool
}

type upvalueRef struct {
	index   byte
	isLocal bool
}

type loopRec struct {
	loopStart int
	depth     int
}

type breakJump struct {
	offset int
	depth  int
}

// frame is one function's worth of compiler state, chained through
// enclosing the way the teacher's Compiler chains through its parent.
type frame struct {
	enclosing *frame
	function  *value.ObjFunction
	fnType    fnType

	locals     []local
	upvalues   []upvalueRef
	scopeDepth int

	loops       []loopRec
	loopCounter int
	breakJumps  []breakJump
}

// classCompiler tracks enclosing-class state so `this`/`super` can be
// rejected outside a class body and `super` outside an inheriting one.
type classCompiler struct {
	enclosing     *classCompiler
	hasSuperclass bool
}

// Compiler holds all single-pass compile state: the token cursor, the
// current function frame, and the current class, if any.
type Compiler struct {
	heap *heap.Heap
	scan *scanner.Scanner

	current  token.Token
	previous token.Token

	hadError  bool
	panicMode bool
	errs      *diag.CompileError

	fr  *frame
	cls *classCompiler
}

// Compile runs the single-pass compiler over source, returning the
// top-level script function on success or a collected batch of diagnostics
// on failure (spec §7: panic-mode recovery surfaces more than one error).
func Compile(source string, h *heap.Heap) (*value.ObjFunction, *diag.CompileError) {
	c := &Compiler{
		heap: h,
		scan: scanner.New(source),
		errs: &diag.CompileError{},
	}
	remove := h.AddRootMarker(c.markRoots)
	defer remove()

	c.beginFunction(typeScript, "")
	c.advance()
	for !c.match(token.EOF) {
		c.declaration()
	}
	fn, _ := c.endFunction()

	if c.errs.HasErrors() {
		return nil, c.errs
	}
	return fn, nil
}

// markRoots marks every function still under construction in the frame
// chain, so a GC triggered mid-compile (by string interning or chunk
// constant allocation) never collects a function the compiler is still
// writing into.
func (c *Compiler) markRoots(h *heap.Heap) {
	for fr := c.fr; fr != nil; fr = fr.enclosing {
		h.MarkObject(fr.function)
	}
}

// ---- frame management -----------------------------------------------------

func (c *Compiler) beginFunction(ft fnType, name string) {
	fn := c.heap.NewFunction()
	if name != "" {
		fn.Name = c.heap.InternString(name)
	}
	fr := &frame{enclosing: c.fr, function: fn, fnType: ft}

	// Slot 0 is reserved: `this` for methods/initializers, unnamed otherwise
	// (the implicit callee slot every call frame sets aside).
	reserved := ""
	if ft == typeMethod || ft == typeInitializer {
		reserved = "this"
	}
	fr.locals = append(fr.locals, local{name: reserved, depth: 0})

	c.fr = fr
}

// endFunction closes out the current frame, returning the finished function
// and its upvalue descriptors (needed by the caller to emit OP_CLOSURE).
func (c *Compiler) endFunction() (*value.ObjFunction, []upvalueRef) {
	c.emitReturn()
	fn := c.fr.function
	fn.UpvalueCount = len(c.fr.upvalues)
	upvalues := c.fr.upvalues
	c.fr = c.fr.enclosing
	return fn, upvalues
}

func (c *Compiler) currentChunk() *value.Chunk { return c.fr.function.Chunk }

// ---- token stream plumbing -------------------------------------------------

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.scan.ScanToken()
		if c.current.Type != token.Error {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) check(t token.Type) bool { return c.current.Type == t }

func (c *Compiler) match(t token.Type) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(t token.Type, message string) {
	if c.current.Type == t {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

func (c *Compiler) errorAt(tok token.Token, message string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true
	c.errs.Add(diag.CompileIssue{
		Line:    tok.Line,
		Lexeme:  tok.Lexeme,
		AtEnd:   tok.Type == token.EOF,
		Message: message,
	})
}

func (c *Compiler) errorAtCurrent(message string) { c.errorAt(c.current, message) }
func (c *Compiler) error(message string)          { c.errorAt(c.previous, message) }

func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Type != token.EOF {
		if c.previous.Type == token.Semicolon {
			return
		}
		switch c.current.Type {
		case token.Class, token.Fun, token.Var, token.For, token.If,
			token.While, token.Print, token.Return, token.Switch:
			return
		}
		c.advance()
	}
}

// ---- bytecode emission -----------------------------------------------------

func (c *Compiler) emitByte(b byte)      { c.currentChunk().WriteByte(b, c.previous.Line) }
func (c *Compiler) emitOp(op value.OpCode) { c.emitByte(byte(op)) }
func (c *Compiler) emitOpByte(op value.OpCode, b byte) {
	c.emitOp(op)
	c.emitByte(b)
}

func (c *Compiler) emitConstant(v value.Value) { c.currentChunk().WriteConstant(v, c.previous.Line) }

// emitJump writes op followed by a two-byte placeholder offset and returns
// the offset of that placeholder for a later patchJump.
func (c *Compiler) emitJump(op value.OpCode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.currentChunk().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.currentChunk().Code) - offset - 2
	if jump > 65535 {
		c.error("Too much code to jump over.")
	}
	c.currentChunk().Code[offset] = byte(jump >> 8)
	c.currentChunk().Code[offset+1] = byte(jump)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(value.OpLoop)
	offset := len(c.currentChunk().Code) - loopStart + 2
	if offset > 65535 {
		c.error("Loop body too large.")
	}
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
}

func (c *Compiler) emitReturn() {
	if c.fr.fnType == typeInitializer {
		c.emitOpByte(value.OpGetLocal, 0)
	} else {
		c.emitOp(value.OpNil)
	}
	c.emitOp(value.OpReturn)
}

// ---- constants / variable resolution --------------------------------------

// identifierConstant interns name and adds it to the current chunk's constant
// pool, returning its index. Globals, property names, and method names are
// all addressed by a single constant-pool byte operand (OpDefineGlobal,
// OpGetProperty, OpInvoke, ...), so the pool can hold at most 256 of them
// per function the way it can hold at most 256 locals.
func (c *Compiler) identifierConstant(name string) int {
	s := c.heap.InternString(name)
	idx := c.currentChunk().AddConstant(value.ObjVal(s))
	if idx > 255 {
		c.error("Too many constants in one chunk.")
		return 0
	}
	return idx
}

func (c *Compiler) resolveLocal(fr *frame, name string) int {
	for i := len(fr.locals) - 1; i >= 0; i-- {
		if fr.locals[i].name == name {
			if fr.locals[i].depth == -1 {
				c.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func (c *Compiler) addUpvalue(fr *frame, index byte, isLocal bool) int {
	for i, uv := range fr.upvalues {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	if len(fr.upvalues) == 256 {
		c.error("Too many closure variables in function.")
		return 0
	}
	fr.upvalues = append(fr.upvalues, upvalueRef{index: index, isLocal: isLocal})
	return len(fr.upvalues) - 1
}

func (c *Compiler) resolveUpvalue(fr *frame, name string) int {
	if fr.enclosing == nil {
		return -1
	}
	if local := c.resolveLocal(fr.enclosing, name); local != -1 {
		fr.enclosing.locals[local].isCaptured = true
		return c.addUpvalue(fr, byte(local), true)
	}
	if up := c.resolveUpvalue(fr.enclosing, name); up != -1 {
		return c.addUpvalue(fr, byte(up), false)
	}
	return -1
}

func (c *Compiler) namedVariable(name string, canAssign bool) {
	var getOp, setOp value.OpCode
	arg := c.resolveLocal(c.fr, name)
	if arg != -1 {
		getOp, setOp = value.OpGetLocal, value.OpSetLocal
	} else if arg = c.resolveUpvalue(c.fr, name); arg != -1 {
		getOp, setOp = value.OpGetUpvalue, value.OpSetUpvalue
	} else {
		arg = c.identifierConstant(name)
		getOp, setOp = value.OpGetGlobal, value.OpSetGlobal
	}

	if canAssign && c.match(token.Equal) {
		c.expression()
		c.emitOpByte(setOp, byte(arg))
	} else {
		c.emitOpByte(getOp, byte(arg))
	}
}

// ---- declarations -----------------------------------------------------------

func (c *Compiler) declaration() {
	switch {
	case c.match(token.Class):
		c.classDeclaration()
	case c.match(token.Fun):
		c.funDeclaration()
	case c.match(token.Var):
		c.varDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) parseVariable(errMessage string) int {
	c.consume(token.Identifier, errMessage)
	c.declareVariable()
	if c.fr.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.previous.Lexeme)
}

func (c *Compiler) declareVariable() {
	if c.fr.scopeDepth == 0 {
		return
	}
	name := c.previous.Lexeme
	for i := len(c.fr.locals) - 1; i >= 0; i-- {
		l := c.fr.locals[i]
		if l.depth != -1 && l.depth < c.fr.scopeDepth {
			break
		}
		if l.name == name {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) addLocal(name string) {
	if len(c.fr.locals) == 256 {
		c.error("Too many local variables in function.")
		return
	}
	c.fr.locals = append(c.fr.locals, local{name: name, depth: -1})
}

func (c *Compiler) markInitialized() {
	if c.fr.scopeDepth == 0 {
		return
	}
	c.fr.locals[len(c.fr.locals)-1].depth = c.fr.scopeDepth
}

func (c *Compiler) defineVariable(global int) {
	if c.fr.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpByte(value.OpDefineGlobal, byte(global))
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")
	if c.match(token.Equal) {
		c.expression()
	} else {
		c.emitOp(value.OpNil)
	}
	c.consume(token.Semicolon, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func (c *Compiler) funDeclaration() {
	c.consume(token.Identifier, "Expect function name.")
	name := c.previous.Lexeme
	c.declareVariable()
	var global int
	topLevel := c.fr.scopeDepth == 0
	if topLevel {
		global = c.identifierConstant(name)
	} else {
		c.markInitialized()
	}
	c.function(typeFunction, name)
	if topLevel {
		c.emitOpByte(value.OpDefineGlobal, byte(global))
	}
}

// function compiles a parameter list and body into a new frame, then emits
// OP_CLOSURE (with its trailing upvalue descriptors) into the enclosing
// chunk, fusing compilation and closure creation the way a single pass must.
func (c *Compiler) function(ft fnType, name string) {
	c.beginFunction(ft, name)
	c.beginScope()

	c.consume(token.LeftParen, "Expect '(' after function name.")
	if !c.check(token.RightParen) {
		for {
			c.fr.function.Arity++
			if c.fr.function.Arity > 255 {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			constant := c.parseVariable("Expect parameter name.")
			c.defineVariable(constant)
			if !c.match(token.Comma) {
				break
			}
		}
	}
	c.consume(token.RightParen, "Expect ')' after parameters.")
	c.consume(token.LeftBrace, "Expect '{' before function body.")
	c.block()

	fn, upvalues := c.endFunction()

	idx := c.currentChunk().AddConstant(value.ObjVal(fn))
	if idx > 255 {
		c.error("Too many constants in one chunk.")
		idx = 0
	}
	c.emitOpByte(value.OpClosure, byte(idx))
	for _, uv := range upvalues {
		if uv.isLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(uv.index)
	}
}

func (c *Compiler) classDeclaration() {
	c.consume(token.Identifier, "Expect class name.")
	classNameTok := c.previous
	nameConstant := c.identifierConstant(classNameTok.Lexeme)
	c.declareVariable()

	c.emitOpByte(value.OpClass, byte(nameConstant))
	c.defineVariable(nameConstant)

	cc := &classCompiler{enclosing: c.cls}
	c.cls = cc

	if c.match(token.Less) {
		c.consume(token.Identifier, "Expect superclass name.")
		c.namedVariable(c.previous.Lexeme, false)
		if c.previous.Lexeme == classNameTok.Lexeme {
			c.error("A class can't inherit from itself.")
		}

		c.beginScope()
		c.addLocal("super")
		c.markInitialized()

		c.namedVariable(classNameTok.Lexeme, false)
		c.emitOp(value.OpInherit)
		cc.hasSuperclass = true
	}

	c.namedVariable(classNameTok.Lexeme, false)
	c.consume(token.LeftBrace, "Expect '{' before class body.")
	for !c.check(token.RightBrace) && !c.check(token.EOF) {
		c.method()
	}
	c.consume(token.RightBrace, "Expect '}' after class body.")
	c.emitOp(value.OpPop)

	if cc.hasSuperclass {
		c.endScope()
	}
	c.cls = cc.enclosing
}

func (c *Compiler) method() {
	c.consume(token.Identifier, "Expect method name.")
	name := c.previous.Lexeme
	constant := c.identifierConstant(name)

	ft := typeMethod
	if name == "init" {
		ft = typeInitializer
	}
	c.function(ft, name)
	c.emitOpByte(value.OpMethod, byte(constant))
}

// ---- statements -------------------------------------------------------------

func (c *Compiler) statement() {
	switch {
	case c.match(token.Print):
		c.printStatement()
	case c.match(token.For):
		c.forStatement()
	case c.match(token.If):
		c.ifStatement()
	case c.match(token.Return):
		c.returnStatement()
	case c.match(token.While):
		c.whileStatement()
	case c.match(token.Switch):
		c.switchStatement()
	case c.match(token.Break):
		c.breakStatement()
	case c.match(token.Continue):
		c.continueStatement()
	case c.match(token.LeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after value.")
	c.emitOp(value.OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after expression.")
	c.emitOp(value.OpPop)
}

func (c *Compiler) block() {
	for !c.check(token.RightBrace) && !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.RightBrace, "Expect '}' after block.")
}

func (c *Compiler) beginScope() { c.fr.scopeDepth++ }

func (c *Compiler) endScope() {
	c.fr.scopeDepth--
	for len(c.fr.locals) > 0 && c.fr.locals[len(c.fr.locals)-1].depth > c.fr.scopeDepth {
		if c.fr.locals[len(c.fr.locals)-1].isCaptured {
			c.emitOp(value.OpCloseUpvalue)
		} else {
			c.emitOp(value.OpPop)
		}
		c.fr.locals = c.fr.locals[:len(c.fr.locals)-1]
	}
}

// ifStatement accepts both of the grammar's surface forms — `if (expr) stmt`
// and `if expr then stmt` — and their `elif` chains; both compile to the
// same jump skeleton regardless of which delimiter introduced the branch.
func (c *Compiler) ifStatement() { c.ifBody() }

func (c *Compiler) ifBody() {
	usesParen := c.match(token.LeftParen)
	c.expression()
	if usesParen {
		c.consume(token.RightParen, "Expect ')' after condition.")
	} else {
		c.consume(token.Then, "Expect 'then' after condition.")
	}

	thenJump := c.emitJump(value.OpJumpIfFalse)
	c.emitOp(value.OpPop)
	c.statement()

	elseJump := c.emitJump(value.OpJump)
	c.patchJump(thenJump)
	c.emitOp(value.OpPop)

	if c.match(token.Elif) {
		c.ifBody()
	} else if c.match(token.Else) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.currentChunk().Code)
	c.pushLoop(loopStart)

	c.consume(token.LeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(token.RightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(value.OpJumpIfFalse)
	c.emitOp(value.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(value.OpPop)
	c.closeLoop()
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(token.LeftParen, "Expect '(' after 'for'.")

	switch {
	case c.match(token.Semicolon):
		// no initializer
	case c.match(token.Var):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.currentChunk().Code)
	exitJump := -1
	if !c.match(token.Semicolon) {
		c.expression()
		c.consume(token.Semicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(value.OpJumpIfFalse)
		c.emitOp(value.OpPop)
	}

	if !c.match(token.RightParen) {
		bodyJump := c.emitJump(value.OpJump)
		incrementStart := len(c.currentChunk().Code)
		c.expression()
		c.emitOp(value.OpPop)
		c.consume(token.RightParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.pushLoop(loopStart)
	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(value.OpPop)
	}
	c.closeLoop()
	c.endScope()
}

// switchStatement desugars to a chain of duplicate-compare-and-branch
// blocks. Every case that does not end in `fallthrough` jumps to a single
// shared label positioned immediately before `default`, so the default
// clause (when present) always runs once control falls out of the case
// chain — there is no further `break`-like opt-out once a case's body has
// executed. A `fallthrough` instead jumps straight past the next case's own
// comparison into its body, so that body always runs regardless of whether
// its value matches the selector.
func (c *Compiler) switchStatement() {
	c.consume(token.LeftParen, "Expect '(' after 'switch'.")
	c.expression()
	c.consume(token.RightParen, "Expect ')' after switch expression.")
	c.consume(token.LeftBrace, "Expect '{' before switch body.")

	pendingFallthrough := -1
	var defaultJumps []int

	for c.match(token.Case) {
		c.emitOp(value.OpDup)
		c.expression()
		c.consume(token.Colon, "Expect ':' after case value.")
		c.emitOp(value.OpEqual)
		falseJump := c.emitJump(value.OpJumpIfFalse)
		c.emitOp(value.OpPop)

		if pendingFallthrough != -1 {
			c.patchJump(pendingFallthrough)
			pendingFallthrough = -1
		}

		for !c.check(token.Case) && !c.check(token.Default) &&
			!c.check(token.RightBrace) && !c.check(token.EOF) {
			c.declaration()
		}

		if c.match(token.Fallthrough) {
			pendingFallthrough = c.emitJump(value.OpJump)
		} else {
			defaultJumps = append(defaultJumps, c.emitJump(value.OpJump))
		}

		c.patchJump(falseJump)
		c.emitOp(value.OpPop)
	}

	if pendingFallthrough != -1 {
		c.patchJump(pendingFallthrough)
	}
	for _, j := range defaultJumps {
		c.patchJump(j)
	}

	if c.match(token.Default) {
		c.consume(token.Colon, "Expect ':' after 'default'.")
		for !c.check(token.RightBrace) && !c.check(token.EOF) {
			c.declaration()
		}
	}

	c.consume(token.RightBrace, "Expect '}' after switch body.")
	c.emitOp(value.OpPop)
}

func (c *Compiler) pushLoop(loopStart int) {
	c.fr.loopCounter++
	c.fr.loops = append(c.fr.loops, loopRec{loopStart: loopStart, depth: c.fr.loopCounter})
}

// closeLoop patches every break recorded against the innermost loop to land
// here, then pops that loop's tracking.
func (c *Compiler) closeLoop() {
	top := c.fr.loops[len(c.fr.loops)-1]
	kept := c.fr.breakJumps[:0]
	for _, bj := range c.fr.breakJumps {
		if bj.depth == top.depth {
			c.patchJump(bj.offset)
		} else {
			kept = append(kept, bj)
		}
	}
	c.fr.breakJumps = kept
	c.fr.loops = c.fr.loops[:len(c.fr.loops)-1]
}

func (c *Compiler) breakStatement() {
	if len(c.fr.loops) == 0 {
		c.error("Can't use 'break' outside of a loop.")
	}
	c.consume(token.Semicolon, "Expect ';' after 'break'.")
	if len(c.fr.loops) == 0 {
		return
	}
	top := c.fr.loops[len(c.fr.loops)-1]
	offset := c.emitJump(value.OpJump)
	c.fr.breakJumps = append(c.fr.breakJumps, breakJump{offset: offset, depth: top.depth})
}

func (c *Compiler) continueStatement() {
	if len(c.fr.loops) == 0 {
		c.error("Can't use 'continue' outside of a loop.")
		c.consume(token.Semicolon, "Expect ';' after 'continue'.")
		return
	}
	top := c.fr.loops[len(c.fr.loops)-1]
	c.consume(token.Semicolon, "Expect ';' after 'continue'.")
	c.emitLoop(top.loopStart)
}

func (c *Compiler) returnStatement() {
	if c.fr.fnType == typeScript {
		c.error("Can't return from top-level code.")
	}
	if c.match(token.Semicolon) {
		c.emitReturn()
		return
	}
	if c.fr.fnType == typeInitializer {
		c.error("Can't return a value from an initializer.")
	}
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after return value.")
	c.emitOp(value.OpReturn)
}

// parseNumber converts the scanned lexeme directly; the scanner only ever
// produces lexemes strconv.ParseFloat accepts.
func parseNumber(lexeme string) float64 {
	n, _ := strconv.ParseFloat(lexeme, 64)
	return n
}
