// Package compiler implements loxvm's single-pass compiler: a Pratt
// expression parser that emits bytecode directly into a pkg/chunk.Chunk as
// it recognizes each construct, with no intermediate syntax tree.
package compiler

import (
	"fmt"
	"strconv"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/lexer"
	"github.com/kristofer/loxvm/pkg/value"
)

// Heap is the subset of VM-owned allocation and GC-cooperation behavior
// the compiler needs. It is declared here, not in pkg/vm, so pkg/vm can
// depend on pkg/compiler without creating an import cycle; *vm.VM
// satisfies this interface structurally.
type Heap interface {
	// InternString returns the canonical *StringObj for chars, allocating
	// and interning a new one if this text hasn't been seen before.
	InternString(chars string) *value.StringObj

	// NewFunction allocates a fresh, GC-tracked FunctionObj.
	NewFunction() *value.FunctionObj

	// PushRoot and PopRoot protect a Value across allocations that could
	// trigger a collection while it isn't reachable from anywhere else
	// yet — used to keep the function object currently being compiled
	// alive while its nested functions are themselves being compiled and
	// may allocate.
	PushRoot(v value.Value)
	PopRoot()
}

const maxLocals = 256
const maxUpvalues = 255

type localVar struct {
	name       string
	depth      int // -1 while declared but not yet defined
	isCaptured bool
}

type upvalueRef struct {
	index   byte
	isLocal bool
}

type functionType int

const (
	funcScript functionType = iota
	funcFunction
	funcMethod
	funcInitializer
)

// compilerState is one nested function's compilation context; the chain
// of enclosing states mirrors the lexical nesting of fun declarations.
type compilerState struct {
	enclosing *compilerState
	function  *value.FunctionObj
	kind      functionType

	locals     []localVar
	upvalues   []upvalueRef
	scopeDepth int
}

type classState struct {
	enclosing     *classState
	hasSuperclass bool
}

// Compiler parses Lox source and emits bytecode. A Compiler instance
// compiles exactly one top-level script; nested function bodies share the
// same Compiler but push/pop compilerState frames.
type Compiler struct {
	heap Heap

	lex     *lexer.Lexer
	current lexer.Token
	prev    lexer.Token

	hadError  bool
	panicking bool
	errs      []error

	cs    *compilerState
	class *classState
}

// CompileError is one error recovered during parsing; the compiler keeps
// going after reporting one so it can surface multiple at once, matching
// spec.md's panic-mode recovery requirement.
type CompileError struct {
	Line    int
	Where   string
	Message string
}

func (e *CompileError) Error() string {
	if e.Where != "" {
		return fmt.Sprintf("[line %d] Error%s: %s", e.Line, e.Where, e.Message)
	}
	return fmt.Sprintf("[line %d] Error: %s", e.Line, e.Message)
}

// Compile compiles source into a top-level function object (the implicit
// "script" function spec.md's VM calls first). On failure it returns nil
// and the accumulated CompileErrors; the caller is expected to report all
// of them before exiting with status 65 (spec.md §6).
func Compile(source string, heap Heap) (*value.FunctionObj, []error) {
	c := &Compiler{heap: heap, lex: lexer.New(source)}
	c.pushCompilerState(funcScript, "")

	c.advance()
	for !c.match(lexer.TokenEOF) {
		c.declaration()
	}
	fn := c.endCompiler()

	if c.hadError {
		return nil, c.errs
	}
	return fn, nil
}

func (c *Compiler) pushCompilerState(kind functionType, name string) {
	fn := c.heap.NewFunction()
	fn.Name = nil
	if name != "" {
		fn.Name = c.heap.InternString(name)
	}
	// Protect fn as a GC root for the duration of this nested
	// compilation: it isn't reachable from any chunk's constant pool
	// yet, but nested function literals compiled beneath it may trigger
	// allocations (string interning, further nested functions).
	c.heap.PushRoot(value.Obj(fn))

	state := &compilerState{enclosing: c.cs, function: fn, kind: kind}
	// Slot 0 of every call frame is reserved: `this` for methods, the
	// called closure itself otherwise.
	reserved := localVar{name: "", depth: 0}
	if kind == funcMethod || kind == funcInitializer {
		reserved.name = "this"
	}
	state.locals = append(state.locals, reserved)
	c.cs = state
}

func (c *Compiler) endCompiler() *value.FunctionObj {
	c.emitReturn()
	fn := c.cs.function
	fn.Arity = c.currentArity()
	fn.UpvalueCount = len(c.cs.upvalues)
	c.cs = c.cs.enclosing
	c.heap.PopRoot()
	return fn
}

func (c *Compiler) currentArity() int { return c.cs.function.Arity }

func (c *Compiler) currentChunk() *chunk.Chunk {
	ch, _ := c.cs.function.Chunk.(*chunk.Chunk)
	if ch == nil {
		ch = &chunk.Chunk{}
		c.cs.function.Chunk = ch
	}
	return ch
}

// --- token stream plumbing -------------------------------------------------

func (c *Compiler) advance() {
	c.prev = c.current
	for {
		c.current = c.lex.Next()
		if c.current.Type != lexer.TokenError {
			break
		}
		c.errorAtCurrent(c.current.Message)
	}
}

func (c *Compiler) check(t lexer.TokenType) bool { return c.current.Type == t }

func (c *Compiler) match(t lexer.TokenType) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(t lexer.TokenType, msg string) {
	if c.current.Type == t {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

func (c *Compiler) errorAtCurrent(msg string) { c.errorAt(c.current, msg) }
func (c *Compiler) errorAtPrev(msg string)    { c.errorAt(c.prev, msg) }

func (c *Compiler) errorAt(tok lexer.Token, msg string) {
	if c.panicking {
		return
	}
	c.panicking = true
	c.hadError = true

	where := ""
	switch {
	case tok.Type == lexer.TokenEOF:
		where = " at end"
	case tok.Type == lexer.TokenError:
	default:
		where = fmt.Sprintf(" at '%s'", tok.Lexeme)
	}
	c.errs = append(c.errs, &CompileError{Line: tok.Line, Where: where, Message: msg})
}

// synchronize discards tokens until it finds one that looks like a
// statement boundary, so one error doesn't cascade into spurious ones.
func (c *Compiler) synchronize() {
	c.panicking = false
	for c.current.Type != lexer.TokenEOF {
		if c.prev.Type == lexer.TokenSemicolon {
			return
		}
		switch c.current.Type {
		case lexer.TokenClass, lexer.TokenFun, lexer.TokenVar, lexer.TokenFor,
			lexer.TokenIf, lexer.TokenWhile, lexer.TokenPrint, lexer.TokenReturn:
			return
		}
		c.advance()
	}
}

// --- bytecode emission ------------------------------------------------------

func (c *Compiler) emitByte(b byte)        { c.currentChunk().Write(b, c.prev.Line) }
func (c *Compiler) emitOp(op chunk.OpCode) { c.currentChunk().WriteOp(op, c.prev.Line) }
func (c *Compiler) emitOps(op1, op2 chunk.OpCode) {
	c.emitOp(op1)
	c.emitOp(op2)
}

func (c *Compiler) emitReturn() {
	if c.cs.kind == funcInitializer {
		c.emitOp(chunk.OpGetLocal)
		c.emitByte(0)
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.emitOp(chunk.OpReturn)
}

func (c *Compiler) emitConstant(v value.Value) {
	c.emitOp(chunk.OpConstant)
	c.emitByte(c.makeConstant(v))
}

func (c *Compiler) makeConstant(v value.Value) byte {
	idx := c.currentChunk().AddConstant(v)
	if idx > 255 {
		c.errorAtPrev("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) emitJump(op chunk.OpCode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.currentChunk().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	ch := c.currentChunk()
	jump := len(ch.Code) - offset - 2
	if jump > 0xffff {
		c.errorAtPrev("Too much code to jump over.")
	}
	ch.Code[offset] = byte((jump >> 8) & 0xff)
	ch.Code[offset+1] = byte(jump & 0xff)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(chunk.OpLoop)
	offset := len(c.currentChunk().Code) - loopStart + 2
	if offset > 0xffff {
		c.errorAtPrev("Loop body too large.")
	}
	c.emitByte(byte((offset >> 8) & 0xff))
	c.emitByte(byte(offset & 0xff))
}

// --- scope and variable resolution -----------------------------------------

func (c *Compiler) beginScope() { c.cs.scopeDepth++ }

func (c *Compiler) endScope() {
	c.cs.scopeDepth--
	for len(c.cs.locals) > 0 && c.cs.locals[len(c.cs.locals)-1].depth > c.cs.scopeDepth {
		last := c.cs.locals[len(c.cs.locals)-1]
		if last.isCaptured {
			c.emitOp(chunk.OpCloseUpvalue)
		} else {
			c.emitOp(chunk.OpPop)
		}
		c.cs.locals = c.cs.locals[:len(c.cs.locals)-1]
	}
}

func (c *Compiler) identifierConstant(tok lexer.Token) byte {
	return c.makeConstant(value.Obj(c.heap.InternString(tok.Lexeme)))
}

func (c *Compiler) declareVariable() {
	if c.cs.scopeDepth == 0 {
		return
	}
	name := c.prev
	for i := len(c.cs.locals) - 1; i >= 0; i-- {
		l := c.cs.locals[i]
		if l.depth != -1 && l.depth < c.cs.scopeDepth {
			break
		}
		if l.name == name.Lexeme {
			c.errorAtPrev("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name.Lexeme)
}

func (c *Compiler) addLocal(name string) {
	if len(c.cs.locals) >= maxLocals {
		c.errorAtPrev("Too many local variables in function.")
		return
	}
	c.cs.locals = append(c.cs.locals, localVar{name: name, depth: -1})
}

func (c *Compiler) markInitialized() {
	if c.cs.scopeDepth == 0 {
		return
	}
	c.cs.locals[len(c.cs.locals)-1].depth = c.cs.scopeDepth
}

func (c *Compiler) parseVariable(msg string) byte {
	c.consume(lexer.TokenIdentifier, msg)
	c.declareVariable()
	if c.cs.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.prev)
}

func (c *Compiler) defineVariable(global byte) {
	if c.cs.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOp(chunk.OpDefineGlobal)
	c.emitByte(global)
}

func resolveLocal(st *compilerState, name string) int {
	for i := len(st.locals) - 1; i >= 0; i-- {
		if st.locals[i].name == name {
			if st.locals[i].depth == -1 {
				return -2 // sentinel: "own initializer" error, reported by caller
			}
			return i
		}
	}
	return -1
}

func (c *Compiler) resolveUpvalue(st *compilerState, name string) int {
	if st.enclosing == nil {
		return -1
	}
	if local := resolveLocal(st.enclosing, name); local == -2 {
		return -2
	} else if local >= 0 {
		st.enclosing.locals[local].isCaptured = true
		return c.addUpvalue(st, byte(local), true)
	}
	if up := c.resolveUpvalue(st.enclosing, name); up >= 0 {
		return c.addUpvalue(st, byte(up), false)
	}
	return -1
}

func (c *Compiler) addUpvalue(st *compilerState, index byte, isLocal bool) int {
	for i, u := range st.upvalues {
		if u.index == index && u.isLocal == isLocal {
			return i
		}
	}
	if len(st.upvalues) >= maxUpvalues {
		c.errorAtPrev("Too many closure variables in function.")
		return 0
	}
	st.upvalues = append(st.upvalues, upvalueRef{index: index, isLocal: isLocal})
	return len(st.upvalues) - 1
}

// --- top-level driver --------------------------------------------------------

func (c *Compiler) declaration() {
	switch {
	case c.match(lexer.TokenClass):
		c.classDeclaration()
	case c.match(lexer.TokenFun):
		c.funDeclaration()
	case c.match(lexer.TokenVar):
		c.varDeclaration()
	default:
		c.statement()
	}
	if c.panicking {
		c.synchronize()
	}
}

func (c *Compiler) statement() {
	switch {
	case c.match(lexer.TokenPrint):
		c.printStatement()
	case c.match(lexer.TokenFor):
		c.forStatement()
	case c.match(lexer.TokenIf):
		c.ifStatement()
	case c.match(lexer.TokenReturn):
		c.returnStatement()
	case c.match(lexer.TokenWhile):
		c.whileStatement()
	case c.match(lexer.TokenLeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		c.declaration()
	}
	c.consume(lexer.TokenRightBrace, "Expect '}' after block.")
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after value.")
	c.emitOp(chunk.OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after expression.")
	c.emitOp(chunk.OpPop)
}

func (c *Compiler) ifStatement() {
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.statement()

	elseJump := c.emitJump(chunk.OpJump)
	c.patchJump(thenJump)
	c.emitOp(chunk.OpPop)

	if c.match(lexer.TokenElse) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.currentChunk().Code)
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(chunk.OpPop)
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'for'.")

	switch {
	case c.match(lexer.TokenSemicolon):
		// no initializer
	case c.match(lexer.TokenVar):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.currentChunk().Code)
	exitJump := -1
	if !c.match(lexer.TokenSemicolon) {
		c.expression()
		c.consume(lexer.TokenSemicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(chunk.OpJumpIfFalse)
		c.emitOp(chunk.OpPop)
	}

	if !c.match(lexer.TokenRightParen) {
		bodyJump := c.emitJump(chunk.OpJump)
		incrementStart := len(c.currentChunk().Code)
		c.expression()
		c.emitOp(chunk.OpPop)
		c.consume(lexer.TokenRightParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(chunk.OpPop)
	}
	c.endScope()
}

func (c *Compiler) returnStatement() {
	if c.cs.kind == funcScript {
		c.errorAtPrev("Can't return from top-level code.")
	}
	if c.match(lexer.TokenSemicolon) {
		c.emitReturn()
		return
	}
	if c.cs.kind == funcInitializer {
		c.errorAtPrev("Can't return a value from an initializer.")
	}
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after return value.")
	c.emitOp(chunk.OpReturn)
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")
	if c.match(lexer.TokenEqual) {
		c.expression()
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.consume(lexer.TokenSemicolon, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.function(funcFunction)
	c.defineVariable(global)
}

func (c *Compiler) function(kind functionType) {
	name := c.prev.Lexeme
	c.pushCompilerState(kind, name)
	c.beginScope()

	c.consume(lexer.TokenLeftParen, "Expect '(' after function name.")
	if !c.check(lexer.TokenRightParen) {
		for {
			c.cs.function.Arity++
			if c.cs.function.Arity > 255 {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			constant := c.parseVariable("Expect parameter name.")
			c.defineVariable(constant)
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightParen, "Expect ')' after parameters.")
	c.consume(lexer.TokenLeftBrace, "Expect '{' before function body.")
	c.block()

	upvalues := append([]upvalueRef(nil), c.cs.upvalues...)
	fn := c.endCompiler()

	c.emitOp(chunk.OpClosure)
	c.emitByte(c.makeConstant(value.Obj(fn)))
	for _, u := range upvalues {
		if u.isLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(u.index)
	}
}

func (c *Compiler) classDeclaration() {
	c.consume(lexer.TokenIdentifier, "Expect class name.")
	nameTok := c.prev
	nameConstant := c.identifierConstant(nameTok)
	c.declareVariable()

	c.emitOp(chunk.OpClass)
	c.emitByte(nameConstant)
	c.defineVariable(nameConstant)

	cls := &classState{enclosing: c.class}
	c.class = cls

	if c.match(lexer.TokenLess) {
		c.consume(lexer.TokenIdentifier, "Expect superclass name.")
		c.variable(false, c.prev)
		if c.prev.Lexeme == nameTok.Lexeme {
			c.errorAtPrev("A class can't inherit from itself.")
		}

		c.beginScope()
		c.addLocal("super")
		c.defineVariable(0)

		c.namedVariable(nameTok, false)
		c.emitOp(chunk.OpInherit)
		cls.hasSuperclass = true
	}

	c.namedVariable(nameTok, false)
	c.consume(lexer.TokenLeftBrace, "Expect '{' before class body.")
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		c.method()
	}
	c.consume(lexer.TokenRightBrace, "Expect '}' after class body.")
	c.emitOp(chunk.OpPop) // pop the class itself, left on stack by namedVariable

	if cls.hasSuperclass {
		c.endScope()
	}
	c.class = cls.enclosing
}

func (c *Compiler) method() {
	c.consume(lexer.TokenIdentifier, "Expect method name.")
	nameTok := c.prev
	constant := c.identifierConstant(nameTok)

	kind := funcMethod
	if nameTok.Lexeme == "init" {
		kind = funcInitializer
	}
	c.function(kind)
	c.emitOp(chunk.OpMethod)
	c.emitByte(constant)
}

// --- expressions (Pratt parsing) --------------------------------------------

type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // . () []
	precPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

var rules map[lexer.TokenType]parseRule

func init() {
	rules = map[lexer.TokenType]parseRule{
		lexer.TokenLeftParen:    {(*Compiler).grouping, (*Compiler).call, precCall},
		lexer.TokenDot:          {nil, (*Compiler).dot, precCall},
		lexer.TokenMinus:        {(*Compiler).unary, (*Compiler).binary, precTerm},
		lexer.TokenPlus:         {nil, (*Compiler).binary, precTerm},
		lexer.TokenSlash:        {nil, (*Compiler).binary, precFactor},
		lexer.TokenStar:         {nil, (*Compiler).binary, precFactor},
		lexer.TokenBang:         {(*Compiler).unary, nil, precNone},
		lexer.TokenBangEqual:    {nil, (*Compiler).binary, precEquality},
		lexer.TokenEqualEqual:   {nil, (*Compiler).binary, precEquality},
		lexer.TokenGreater:      {nil, (*Compiler).binary, precComparison},
		lexer.TokenGreaterEqual: {nil, (*Compiler).binary, precComparison},
		lexer.TokenLess:         {nil, (*Compiler).binary, precComparison},
		lexer.TokenLessEqual:    {nil, (*Compiler).binary, precComparison},
		lexer.TokenIdentifier:   {(*Compiler).variableExpr, nil, precNone},
		lexer.TokenString:       {(*Compiler).stringExpr, nil, precNone},
		lexer.TokenNumber:       {(*Compiler).numberExpr, nil, precNone},
		lexer.TokenAnd:          {nil, (*Compiler).and, precAnd},
		lexer.TokenOr:           {nil, (*Compiler).or, precOr},
		lexer.TokenFalse:        {(*Compiler).literal, nil, precNone},
		lexer.TokenTrue:         {(*Compiler).literal, nil, precNone},
		lexer.TokenNil:          {(*Compiler).literal, nil, precNone},
		lexer.TokenThis:         {(*Compiler).this, nil, precNone},
		lexer.TokenSuper:        {(*Compiler).super, nil, precNone},
	}
}

func getRule(t lexer.TokenType) parseRule {
	if r, ok := rules[t]; ok {
		return r
	}
	return parseRule{}
}

func (c *Compiler) expression() { c.parsePrecedence(precAssignment) }

func (c *Compiler) parsePrecedence(prec precedence) {
	c.advance()
	prefix := getRule(c.prev.Type).prefix
	if prefix == nil {
		c.errorAtPrev("Expect expression.")
		return
	}
	canAssign := prec <= precAssignment
	prefix(c, canAssign)

	for prec <= getRule(c.current.Type).precedence {
		c.advance()
		infix := getRule(c.prev.Type).infix
		infix(c, canAssign)
	}

	if canAssign && c.match(lexer.TokenEqual) {
		c.errorAtPrev("Invalid assignment target.")
	}
}

func (c *Compiler) numberExpr(_ bool) {
	n, err := strconv.ParseFloat(c.prev.Lexeme, 64)
	if err != nil {
		c.errorAtPrev("Invalid number literal.")
		return
	}
	c.emitConstant(value.Number(n))
}

func (c *Compiler) stringExpr(_ bool) {
	raw := c.prev.Lexeme
	text := raw[1 : len(raw)-1] // strip surrounding quotes
	c.emitConstant(value.Obj(c.heap.InternString(text)))
}

func (c *Compiler) literal(_ bool) {
	switch c.prev.Type {
	case lexer.TokenFalse:
		c.emitOp(chunk.OpFalse)
	case lexer.TokenTrue:
		c.emitOp(chunk.OpTrue)
	case lexer.TokenNil:
		c.emitOp(chunk.OpNil)
	}
}

func (c *Compiler) grouping(_ bool) {
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after expression.")
}

func (c *Compiler) unary(_ bool) {
	op := c.prev.Type
	c.parsePrecedence(precUnary)
	switch op {
	case lexer.TokenMinus:
		c.emitOp(chunk.OpNegate)
	case lexer.TokenBang:
		c.emitOp(chunk.OpNot)
	}
}

func (c *Compiler) binary(_ bool) {
	op := c.prev.Type
	rule := getRule(op)
	c.parsePrecedence(rule.precedence + 1)

	switch op {
	case lexer.TokenBangEqual:
		c.emitOps(chunk.OpEqual, chunk.OpNot)
	case lexer.TokenEqualEqual:
		c.emitOp(chunk.OpEqual)
	case lexer.TokenGreater:
		c.emitOp(chunk.OpGreater)
	case lexer.TokenGreaterEqual:
		c.emitOps(chunk.OpLess, chunk.OpNot)
	case lexer.TokenLess:
		c.emitOp(chunk.OpLess)
	case lexer.TokenLessEqual:
		c.emitOps(chunk.OpGreater, chunk.OpNot)
	case lexer.TokenPlus:
		c.emitOp(chunk.OpAdd)
	case lexer.TokenMinus:
		c.emitOp(chunk.OpSubtract)
	case lexer.TokenStar:
		c.emitOp(chunk.OpMultiply)
	case lexer.TokenSlash:
		c.emitOp(chunk.OpDivide)
	}
}

func (c *Compiler) and(_ bool) {
	endJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func (c *Compiler) or(_ bool) {
	elseJump := c.emitJump(chunk.OpJumpIfFalse)
	endJump := c.emitJump(chunk.OpJump)
	c.patchJump(elseJump)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func (c *Compiler) call(_ bool) {
	argCount := c.argumentList()
	c.emitOp(chunk.OpCall)
	c.emitByte(argCount)
}

func (c *Compiler) argumentList() byte {
	var count int
	if !c.check(lexer.TokenRightParen) {
		for {
			c.expression()
			if count == 255 {
				c.errorAtPrev("Can't have more than 255 arguments.")
			}
			count++
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightParen, "Expect ')' after arguments.")
	return byte(count)
}

func (c *Compiler) dot(canAssign bool) {
	c.consume(lexer.TokenIdentifier, "Expect property name after '.'.")
	nameTok := c.prev
	name := c.identifierConstant(nameTok)

	switch {
	case canAssign && c.match(lexer.TokenEqual):
		c.expression()
		c.emitOp(chunk.OpSetProperty)
		c.emitByte(name)
	case c.match(lexer.TokenLeftParen):
		argCount := c.argumentList()
		c.emitOp(chunk.OpInvoke)
		c.emitByte(name)
		c.emitByte(argCount)
	default:
		c.emitOp(chunk.OpGetProperty)
		c.emitByte(name)
	}
}

func (c *Compiler) variableExpr(canAssign bool) {
	c.namedVariableAssignable(c.prev, canAssign)
}

func (c *Compiler) variable(canAssign bool, tok lexer.Token) {
	c.namedVariableAssignable(tok, canAssign)
}

func (c *Compiler) namedVariable(tok lexer.Token, canAssign bool) {
	c.namedVariableAssignable(tok, canAssign)
}

func (c *Compiler) namedVariableAssignable(tok lexer.Token, canAssign bool) {
	var getOp, setOp chunk.OpCode
	arg := resolveLocal(c.cs, tok.Lexeme)
	switch {
	case arg == -2:
		c.errorAtPrev("Can't read local variable in its own initializer.")
		arg = 0
		getOp, setOp = chunk.OpGetLocal, chunk.OpSetLocal
	case arg != -1:
		getOp, setOp = chunk.OpGetLocal, chunk.OpSetLocal
	default:
		if up := c.resolveUpvalue(c.cs, tok.Lexeme); up >= 0 {
			arg = up
			getOp, setOp = chunk.OpGetUpvalue, chunk.OpSetUpvalue
		} else {
			arg = int(c.identifierConstant(tok))
			getOp, setOp = chunk.OpGetGlobal, chunk.OpSetGlobal
		}
	}

	if canAssign && c.match(lexer.TokenEqual) {
		c.expression()
		c.emitOp(setOp)
	} else {
		c.emitOp(getOp)
	}
	c.emitByte(byte(arg))
}

func (c *Compiler) this(_ bool) {
	if c.class == nil {
		c.errorAtPrev("Can't use 'this' outside of a class.")
		return
	}
	c.variableExpr(false)
}

func (c *Compiler) super(_ bool) {
	if c.class == nil {
		c.errorAtPrev("Can't use 'super' outside of a class.")
	} else if !c.class.hasSuperclass {
		c.errorAtPrev("Can't use 'super' in a class with no superclass.")
	}

	c.consume(lexer.TokenDot, "Expect '.' after 'super'.")
	c.consume(lexer.TokenIdentifier, "Expect superclass method name.")
	name := c.identifierConstant(c.prev)

	c.namedVariable(syntheticToken("this"), false)
	if c.match(lexer.TokenLeftParen) {
		argCount := c.argumentList()
		c.namedVariable(syntheticToken("super"), false)
		c.emitOp(chunk.OpSuperInvoke)
		c.emitByte(name)
		c.emitByte(argCount)
	} else {
		c.namedVariable(syntheticToken("super"), false)
		c.emitOp(chunk.OpGetSuper)
		c.emitByte(name)
	}
}

func syntheticToken(text string) lexer.Token {
	return lexer.Token{Type: lexer.TokenIdentifier, Lexeme: text}
}
