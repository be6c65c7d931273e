// Package irtext 解析文本形式的 SSA 函数
//
// 文本形式与 ssa.Func.String() 的输出一致：
//
//	func f(p:ptr, n:int) returns_nonnull {
//	  local x
//	entry:
//	  c:bool = eq n, 0
//	  if c goto a else b
//	a:
//	  goto c
//	...
//	}
//
// 值与块可以先使用后定义；phi 参数按前驱块命名，解析结束后按前驱边顺序重排。
package irtext

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/tangzhangming/ssaopt/internal/errors"
	"github.com/tangzhangming/ssaopt/internal/ssa"
)

// Parser 文本 SSA 语法分析器
type Parser struct {
	tokens   []Token
	current  int
	filename string
	errors   []*errors.CompileError

	fn       *funcState
	lexError bool
}

// funcState 单个函数的解析状态
type funcState struct {
	f       *ssa.Func
	cur     *ssa.Block
	blocks  map[string]*ssa.Block
	order   []*ssa.Block // 按定义顺序
	defined map[*ssa.Block]bool
	refPos  map[*ssa.Block]ssa.Pos
	values  map[string]*ssa.Value
	defs    map[*ssa.Value]bool
	usePos  map[*ssa.Value]ssa.Pos

	phiArgs     map[*ssa.Phi][]phiArg
	untypedPhis []*ssa.Phi
	zeroCond    []*ssa.Cond // `if v goto` 形式，右操作数在解析结束后按 v 的类型补零
}

type phiArg struct {
	op    ssa.Operand
	block string
	pos   ssa.Pos
}

// bailout 语句级错误恢复
type bailout struct{}

// NewParser 创建语法分析器
func NewParser(source, filename string) *Parser {
	l := NewLexer(source, filename)
	p := &Parser{
		tokens:   l.ScanTokens(),
		filename: filename,
	}
	if errs := l.Errors(); len(errs) > 0 {
		p.errors = append(p.errors, errs...)
		p.lexError = true
	}
	return p
}

// Parse 解析源文件中的全部函数
// 出错时返回的 error 由 multierr 聚合，每个元素都是 *errors.CompileError。
func Parse(filename, source string) ([]*ssa.Func, error) {
	p := NewParser(source, filename)
	funcs := p.ParseFile()
	if err := p.Err(); err != nil {
		return nil, err
	}
	return funcs, nil
}

// ParseFunc 解析只含一个函数的源文件
func ParseFunc(filename, source string) (*ssa.Func, error) {
	funcs, err := Parse(filename, source)
	if err != nil {
		return nil, err
	}
	if len(funcs) != 1 {
		return nil, fmt.Errorf("%s: expected exactly one function, found %d", filename, len(funcs))
	}
	return funcs[0], nil
}

// MustParse 解析单个函数，失败时 panic（用于测试）
func MustParse(source string) *ssa.Func {
	f, err := ParseFunc("test.ssa", source)
	if err != nil {
		panic(err)
	}
	return f
}

// Errors 返回全部诊断
func (p *Parser) Errors() []*errors.CompileError {
	return p.errors
}

// Err 将全部诊断聚合为一个 error，没有诊断时为 nil
func (p *Parser) Err() error {
	var err error
	for _, e := range p.errors {
		err = multierr.Append(err, e)
	}
	return err
}

// ParseFile 解析全部函数
func (p *Parser) ParseFile() []*ssa.Func {
	var funcs []*ssa.Func
	for {
		p.skipNewlines()
		if p.isAtEnd() {
			break
		}
		if f := p.parseFunc(); f != nil {
			funcs = append(funcs, f)
		}
	}
	return funcs
}

// ============================================================================
// 函数
// ============================================================================

func (p *Parser) parseFunc() (f *ssa.Func) {
	start := p.peek()
	ok := p.guard(func() {
		p.expectKeyword("func")
		name := p.expect(IDENT)
		f = ssa.NewFunc(name.Literal)
		f.File = p.filename
		f.Pos = start.Pos
		p.fn = &funcState{
			f:       f,
			blocks:  make(map[string]*ssa.Block),
			defined: make(map[*ssa.Block]bool),
			refPos:  make(map[*ssa.Block]ssa.Pos),
			values:  make(map[string]*ssa.Value),
			defs:    make(map[*ssa.Value]bool),
			usePos:  make(map[*ssa.Value]ssa.Pos),
			phiArgs: make(map[*ssa.Phi][]phiArg),
		}
		p.parseParams()
		if p.checkKeyword("returns_nonnull") {
			p.advance()
			f.ReturnsNonNull = true
		}
		p.expect(LBRACE)
	})
	if !ok {
		// 函数头出错：跳过整个函数体
		p.skipPast(RBRACE)
		return nil
	}

	nerr := len(p.errors)
	for {
		p.skipNewlines()
		if p.check(RBRACE) || p.isAtEnd() {
			break
		}
		p.guard(p.parseLine)
	}
	p.expectOrReport(RBRACE)
	p.finishFunc(nerr)
	fn := p.fn
	p.fn = nil
	if len(p.errors) > nerr || p.lexError {
		return nil
	}
	return fn.f
}

func (p *Parser) parseParams() {
	p.expect(LPAREN)
	for !p.check(RPAREN) {
		name := p.expect(IDENT)
		typ := ssa.TypeInt
		if p.match(COLON) {
			typ = p.parseType()
		}
		if _, dup := p.fn.values[name.Literal]; dup {
			p.errorAt(name.Pos, errors.E0107, name.Literal)
		}
		v := p.fn.f.AddParam(name.Literal, typ)
		p.fn.values[name.Literal] = v
		p.fn.defs[v] = true
		if !p.match(COMMA) {
			break
		}
	}
	p.expect(RPAREN)
}

func (p *Parser) parseType() ssa.Type {
	tok := p.expect(IDENT)
	t, ok := ssa.ParseType(tok.Literal)
	if !ok {
		p.fail(tok.Pos, errors.E0111, tok.Literal)
	}
	return t
}

// finishFunc 校验引用、补齐 phi 参数、整理块顺序，并计算回边与循环
// 函数体有错误时不计算回边与循环：边可能指向未定义的块。
func (p *Parser) finishFunc(nerr int) {
	fs := p.fn
	f := fs.f

	for _, b := range f.Blocks {
		if !fs.defined[b] {
			p.errorAt(fs.refPos[b], errors.E0108, b.Name)
		}
	}
	for id := 0; id < f.NumValues(); id++ {
		if v := f.ValueByID(ssa.ID(id)); v != nil && !fs.defs[v] {
			p.errorAt(fs.usePos[v], errors.E0106, v.Name)
		}
	}

	for _, b := range fs.order {
		for _, phi := range b.Phis {
			p.resolvePhi(b, phi)
		}
	}
	for _, phi := range fs.untypedPhis {
		phi.Dest.SetType(phiType(phi))
	}
	for _, c := range fs.zeroCond {
		c.Y = ssa.ZeroConst(c.X.Type())
	}

	f.Blocks = append(f.Blocks[:0], fs.order...)
	if len(fs.order) == 0 || len(p.errors) > nerr || p.lexError {
		return
	}
	f.Entry = fs.order[0]
	ssa.MarkDFSBackEdges(f)
	f.Loops(context.Background())
}

func (p *Parser) resolvePhi(b *ssa.Block, phi *ssa.Phi) {
	args := p.fn.phiArgs[phi]
	used := make([]bool, len(args))
	phi.Incoming = make([]ssa.Operand, len(b.Preds))
	for i, e := range b.Preds {
		found := false
		for j, a := range args {
			if !used[j] && a.block == e.Src.Name {
				phi.Incoming[i] = a.op
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			p.errorAt(phi.Pos(), errors.E0110, phi.Dest.Name, b.Name,
				fmt.Sprintf("no argument for predecessor '%s'", e.Src.Name))
		}
	}
	for j, a := range args {
		if !used[j] {
			p.errorAt(a.pos, errors.E0110, phi.Dest.Name, b.Name,
				fmt.Sprintf("'%s' is not a predecessor", a.block))
		}
	}
}

// ============================================================================
// 行
// ============================================================================

func (p *Parser) parseLine() {
	fs := p.fn
	tok := p.peek()

	if tok.Type == IDENT {
		// 块标签  name:
		if p.peekAt(1).Type == COLON && p.peekAt(2).Type == NEWLINE {
			p.advance()
			p.advance()
			p.defineBlock(tok)
			return
		}
		switch tok.Literal {
		case "local", "global":
			p.advance()
			name := p.expect(IDENT)
			if fs.f.LocalByName(name.Literal) != nil {
				p.fail(name.Pos, errors.E0107, name.Literal)
			}
			l := fs.f.AddLocal(name.Literal, name.Pos)
			l.Global = tok.Literal == "global"
			p.endLine()
			return
		}
	}

	if fs.cur == nil {
		// 第一个标签之前的语句属于隐式入口块
		p.defineBlock(Token{Type: IDENT, Literal: "entry", Pos: tok.Pos})
	}

	if tok.Type == IDENT && (p.peekAt(1).Type == ASSIGN || p.peekAt(1).Type == COLON) {
		p.parseDef()
	} else {
		p.parseStmt()
	}
	p.endLine()
}

func (p *Parser) defineBlock(tok Token) {
	fs := p.fn
	b := p.blockRef(tok)
	if fs.defined[b] {
		p.fail(tok.Pos, errors.E0109, tok.Literal)
	}
	if fs.cur != nil && fallsThrough(fs.cur) {
		ssa.AddEdge(fs.cur, b, 0)
	}
	fs.defined[b] = true
	fs.order = append(fs.order, b)
	fs.cur = b
}

// fallsThrough 没有出边也没有以 return/trap 结束的块落入下一个块
func fallsThrough(b *ssa.Block) bool {
	if len(b.Succs) > 0 {
		return false
	}
	switch b.Last().(type) {
	case *ssa.Return, *ssa.Trap:
		return false
	}
	return true
}

// parseDef 解析 name[:type] = rhs
func (p *Parser) parseDef() {
	name := p.expect(IDENT)
	typ, explicit := ssa.TypeInt, false
	if p.match(COLON) {
		typ, explicit = p.parseType(), true
	}
	p.expect(ASSIGN)

	op := p.expect(IDENT)
	v := p.defineValue(name)
	var s ssa.Stmt

	switch op.Literal {
	case "phi":
		phi := &ssa.Phi{Dest: v}
		ssa.SetPos(phi, name.Pos)
		p.parsePhiArgs(phi)
		p.fn.cur.AddPhi(phi)
		if explicit {
			v.SetType(typ)
		} else {
			p.fn.untypedPhis = append(p.fn.untypedPhis, phi)
		}
		return
	case "call":
		c := p.parseCall()
		c.Dest = v
		s = c
	default:
		o, ok := ssa.LookupOp(op.Literal)
		if !ok {
			p.fail(op.Pos, errors.E0111, op.Literal)
		}
		a := &ssa.Assign{Dest: v, Op: o}
		if p.checkKeyword("volatile") {
			p.advance()
			a.Volatile = true
		}
		a.X = p.parseOperand()
		if !o.IsUnary() {
			p.expect(COMMA)
			a.Y = p.parseOperand()
		}
		if !explicit {
			typ = inferType(a)
		}
		s = a
	}
	v.SetType(typ)
	ssa.SetPos(s, name.Pos)
	p.fn.cur.Append(s)
}

// phiType 未标注类型的 phi 取第一个已知类型的参数的类型
func phiType(phi *ssa.Phi) ssa.Type {
	for _, a := range phi.Incoming {
		if a != nil && a.Type() != ssa.TypeVoid {
			return a.Type()
		}
	}
	return ssa.TypeInt
}

// inferType 未标注类型时的结果类型
func inferType(a *ssa.Assign) ssa.Type {
	switch {
	case a.Op.IsComparison():
		return ssa.TypeBool
	case a.Op == ssa.OpAssertNonNull:
		return ssa.TypePtr
	case a.Op == ssa.OpCopy || a.Op == ssa.OpNot:
		if a.X.Type() != ssa.TypeVoid {
			return a.X.Type()
		}
	}
	return ssa.TypeInt
}

func (p *Parser) parsePhiArgs(phi *ssa.Phi) {
	for {
		start := p.expect(LBRACKET)
		op := p.parseOperand()
		p.expect(COMMA)
		blk := p.expect(IDENT)
		p.expect(RBRACKET)
		p.fn.phiArgs[phi] = append(p.fn.phiArgs[phi], phiArg{op: op, block: blk.Literal, pos: start.Pos})
		if !p.match(COMMA) {
			return
		}
	}
}

func (p *Parser) parseCall() *ssa.Call {
	callee := p.expect(IDENT)
	c := &ssa.Call{Callee: callee.Literal}
	p.expect(LPAREN)
	for !p.check(RPAREN) {
		c.Params = append(c.Params, p.parseOperand())
		if !p.match(COMMA) {
			break
		}
	}
	p.expect(RPAREN)
	if p.checkKeyword("nonnull") {
		p.advance()
		p.expect(LPAREN)
		for !p.check(RPAREN) {
			tok := p.expect(INT)
			n, _ := strconv.Atoi(tok.Literal)
			if n < 1 || n > len(c.Params) {
				p.fail(tok.Pos, errors.E0105, tok.String())
			}
			c.NonNull = append(c.NonNull, n-1)
			if !p.match(COMMA) {
				break
			}
		}
		p.expect(RPAREN)
	}
	return c
}

// ============================================================================
// 语句
// ============================================================================

func (p *Parser) parseStmt() {
	fs := p.fn
	tok := p.expect(IDENT)
	var s ssa.Stmt

	switch tok.Literal {
	case "store":
		st := &ssa.Store{}
		if p.checkKeyword("volatile") {
			p.advance()
			st.Volatile = true
		}
		st.Ptr = p.parseOperand()
		p.expect(COMMA)
		st.Val = p.parseOperand()
		s = st
	case "call":
		s = p.parseCall()
	case "if":
		s = p.parseIf()
	case "switch":
		s = p.parseSwitch()
	case "goto":
		s = p.parseGoto()
	case "return":
		r := &ssa.Return{}
		if !p.check(NEWLINE) && !p.check(RBRACE) {
			r.Val = p.parseOperand()
		}
		s = r
	case "trap":
		s = &ssa.Trap{}
	case "nop":
		s = &ssa.Nop{}
	case "label":
		s = &ssa.Label{Name: p.expect(IDENT).Literal}
	case "debug":
		s = &ssa.Debug{Var: p.expect(IDENT).Literal}
	case "asm":
		a := &ssa.Asm{}
		if p.checkKeyword("volatile") {
			p.advance()
			a.Volatile = true
		}
		a.Text = p.expect(STRING).Literal
		s = a
	default:
		p.fail(tok.Pos, errors.E0105, tok.String())
	}
	if s == nil {
		// 无条件跳转只产生边
		return
	}
	ssa.SetPos(s, tok.Pos)
	fs.cur.Append(s)
}

// parseIf 解析 if [op] x[, y] goto T else F
func (p *Parser) parseIf() ssa.Stmt {
	c := &ssa.Cond{Op: ssa.OpNe}
	explicitOp := false
	if tok := p.peek(); tok.Type == IDENT {
		if op, ok := ssa.LookupOp(tok.Literal); ok && op.IsComparison() &&
			p.peekAt(1).Type != COMMA && !(p.peekAt(1).Type == IDENT && p.peekAt(1).Literal == "goto") {
			p.advance()
			c.Op = op
			explicitOp = true
		}
	}
	c.X = p.parseOperand()
	if p.match(COMMA) {
		c.Y = p.parseOperand()
	} else if explicitOp {
		p.fail(p.peek().Pos, errors.E0104, "','", p.peek().String())
	} else {
		p.fn.zeroCond = append(p.fn.zeroCond, c)
	}
	p.expectKeyword("goto")
	t, tf := p.parseTarget()
	p.expectKeyword("else")
	f, ff := p.parseTarget()
	p.addEdge(t, ssa.EdgeTrue|tf)
	p.addEdge(f, ssa.EdgeFalse|ff)
	return c
}

// parseSwitch 解析 switch v [1: a, 2: b] default c
func (p *Parser) parseSwitch() ssa.Stmt {
	sw := &ssa.Switch{Index: p.parseOperand()}
	p.expect(LBRACKET)
	for !p.check(RBRACKET) {
		tok := p.expect(INT)
		val, _ := strconv.ParseInt(tok.Literal, 10, 64)
		p.expect(COLON)
		b, flags := p.parseTarget()
		sw.Cases = append(sw.Cases, ssa.Case{Val: val, Target: b})
		p.addEdge(b, flags)
		if !p.match(COMMA) {
			break
		}
	}
	p.expect(RBRACKET)
	p.expectKeyword("default")
	b, flags := p.parseTarget()
	sw.Default = b
	p.addEdge(b, flags)
	return sw
}

// parseGoto 解析 goto *v [a, b] 或 goto a[, b !eh]
func (p *Parser) parseGoto() ssa.Stmt {
	if p.match(STAR) {
		g := &ssa.Goto{Target: p.parseOperand()}
		p.expect(LBRACKET)
		for !p.check(RBRACKET) {
			b, flags := p.parseTarget()
			p.addEdge(b, flags)
			if !p.match(COMMA) {
				break
			}
		}
		p.expect(RBRACKET)
		return g
	}
	for {
		b, flags := p.parseTarget()
		p.addEdge(b, flags)
		if !p.match(COMMA) {
			return nil
		}
	}
}

func (p *Parser) parseTarget() (*ssa.Block, ssa.EdgeFlags) {
	b := p.blockRef(p.expect(IDENT))
	var flags ssa.EdgeFlags
	for p.match(BANG) {
		tok := p.expect(IDENT)
		switch tok.Literal {
		case "abnormal":
			flags |= ssa.EdgeAbnormal
		case "eh":
			flags |= ssa.EdgeEH
		default:
			p.fail(tok.Pos, errors.E0105, tok.String())
		}
	}
	return b, flags
}

// addEdge 添加当前块到 dest 的边，同一目标只保留一条边并合并标志
func (p *Parser) addEdge(dest *ssa.Block, flags ssa.EdgeFlags) {
	if e := ssa.FindEdge(p.fn.cur, dest); e != nil {
		e.Flags |= flags
		return
	}
	ssa.AddEdge(p.fn.cur, dest, flags)
}

// ============================================================================
// 操作数
// ============================================================================

func (p *Parser) parseOperand() ssa.Operand {
	tok := p.advance()
	switch tok.Type {
	case INT:
		n, err := strconv.ParseInt(tok.Literal, 10, 64)
		if err != nil {
			p.fail(tok.Pos, errors.E0103, tok.Literal)
		}
		return ssa.IntConst(n)
	case AMP:
		name := p.expect(IDENT)
		l := p.fn.f.LocalByName(name.Literal)
		if l == nil {
			p.fail(name.Pos, errors.E0112, name.Literal)
		}
		return &ssa.AddrOf{Local: l}
	case AMPAMP:
		return &ssa.LabelAddr{Block: p.blockRef(p.expect(IDENT))}
	case IDENT:
		switch tok.Literal {
		case "true":
			return ssa.BoolConst(true)
		case "false":
			return ssa.BoolConst(false)
		case "null":
			return ssa.NullConst()
		}
		return p.valueRef(tok)
	}
	p.fail(tok.Pos, errors.E0105, tok.String())
	return nil
}

func (p *Parser) valueRef(tok Token) *ssa.Value {
	fs := p.fn
	if v, ok := fs.values[tok.Literal]; ok {
		return v
	}
	v := fs.f.NewValue(tok.Literal, ssa.TypeVoid)
	fs.values[tok.Literal] = v
	fs.usePos[v] = tok.Pos
	return v
}

func (p *Parser) defineValue(tok Token) *ssa.Value {
	v := p.valueRef(tok)
	if p.fn.defs[v] {
		p.fail(tok.Pos, errors.E0107, tok.Literal)
	}
	p.fn.defs[v] = true
	return v
}

func (p *Parser) blockRef(tok Token) *ssa.Block {
	fs := p.fn
	if b, ok := fs.blocks[tok.Literal]; ok {
		return b
	}
	b := fs.f.NewBlock(tok.Literal)
	fs.blocks[tok.Literal] = b
	fs.refPos[b] = tok.Pos
	return b
}

// ============================================================================
// 辅助方法
// ============================================================================

// guard 执行 fn，捕获语句级的 bailout 并同步到下一行
func (p *Parser) guard(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if _, isBailout := r.(bailout); !isBailout {
				panic(r)
			}
			ok = false
			p.synchronize()
		}
	}()
	fn()
	return true
}

func (p *Parser) synchronize() {
	for !p.isAtEnd() && !p.check(NEWLINE) && !p.check(RBRACE) {
		p.advance()
	}
}

func (p *Parser) skipPast(t TokenType) {
	for !p.isAtEnd() {
		if p.advance().Type == t {
			return
		}
	}
}

func (p *Parser) endLine() {
	if p.check(RBRACE) {
		return
	}
	if !p.match(NEWLINE) {
		tok := p.peek()
		p.fail(tok.Pos, errors.E0104, NEWLINE.String(), tok.String())
	}
}

func (p *Parser) skipNewlines() {
	for p.check(NEWLINE) {
		p.advance()
	}
}

func (p *Parser) isAtEnd() bool {
	return p.peek().Type == EOF
}

func (p *Parser) peek() Token {
	return p.tokens[p.current]
}

func (p *Parser) peekAt(n int) Token {
	if p.current+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.current+n]
}

func (p *Parser) advance() Token {
	tok := p.tokens[p.current]
	if !p.isAtEnd() {
		p.current++
	}
	return tok
}

func (p *Parser) check(t TokenType) bool {
	return p.peek().Type == t
}

func (p *Parser) match(t TokenType) bool {
	if p.check(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) checkKeyword(kw string) bool {
	tok := p.peek()
	return tok.Type == IDENT && tok.Literal == kw
}

func (p *Parser) expect(t TokenType) Token {
	if p.check(t) {
		return p.advance()
	}
	tok := p.peek()
	p.fail(tok.Pos, errors.E0104, t.String(), tok.String())
	return tok
}

func (p *Parser) expectKeyword(kw string) {
	if p.checkKeyword(kw) {
		p.advance()
		return
	}
	tok := p.peek()
	p.fail(tok.Pos, errors.E0104, "'"+kw+"'", tok.String())
}

func (p *Parser) expectOrReport(t TokenType) {
	if !p.match(t) {
		tok := p.peek()
		p.errorAt(tok.Pos, errors.E0104, t.String(), tok.String())
	}
}

func (p *Parser) errorAt(pos ssa.Pos, code string, args ...interface{}) {
	p.errors = append(p.errors, errors.NewCompileError(code, p.filename, pos.Line, pos.Col, args...))
}

// fail 记录错误并放弃当前语句
func (p *Parser) fail(pos ssa.Pos, code string, args ...interface{}) {
	p.errorAt(pos, code, args...)
	panic(bailout{})
}

// Describe 以 "file:line:col: message" 的形式列出全部错误（用于测试输出）
func Describe(err error) string {
	var lines []string
	for _, e := range multierr.Errors(err) {
		lines = append(lines, e.Error())
	}
	return strings.Join(lines, "\n")
}
