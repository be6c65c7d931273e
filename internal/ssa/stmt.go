package ssa

import (
	"fmt"
	"strconv"
	"strings"
)

// Pos 源码位置
type Pos struct {
	Line int
	Col  int
}

// IsValid 位置是否有效
func (p Pos) IsValid() bool { return p.Line > 0 }

func (p Pos) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Col) }

// ============================================================================
// 运算符
// ============================================================================

// Op 赋值语句和条件语句的运算符
type Op int

const (
	OpCopy Op = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpNeg
	OpNot
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpLoad          // v = *p
	OpAssertNonNull // v = p，并断言 p 非空
)

var opNames = [...]string{
	OpCopy:          "copy",
	OpAdd:           "add",
	OpSub:           "sub",
	OpMul:           "mul",
	OpDiv:           "div",
	OpMod:           "mod",
	OpAnd:           "and",
	OpOr:            "or",
	OpXor:           "xor",
	OpShl:           "shl",
	OpShr:           "shr",
	OpNeg:           "neg",
	OpNot:           "not",
	OpEq:            "eq",
	OpNe:            "ne",
	OpLt:            "lt",
	OpLe:            "le",
	OpGt:            "gt",
	OpGe:            "ge",
	OpLoad:          "load",
	OpAssertNonNull: "assert_nonnull",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "op" + strconv.Itoa(int(op))
}

// LookupOp 按名称查找运算符
func LookupOp(name string) (Op, bool) {
	for i, n := range opNames {
		if n == name {
			return Op(i), true
		}
	}
	return 0, false
}

// IsComparison 是否为比较运算
func (op Op) IsComparison() bool { return op >= OpEq && op <= OpGe }

// IsUnary 是否为一元运算
func (op Op) IsUnary() bool {
	switch op {
	case OpCopy, OpNeg, OpNot, OpLoad, OpAssertNonNull:
		return true
	}
	return false
}

// Swap 交换比较运算的两个操作数后对应的运算符
func (op Op) Swap() Op {
	switch op {
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	}
	return op
}

// Invert 比较结果取反后对应的运算符
func (op Op) Invert() Op {
	switch op {
	case OpEq:
		return OpNe
	case OpNe:
		return OpEq
	case OpLt:
		return OpGe
	case OpLe:
		return OpGt
	case OpGt:
		return OpLe
	case OpGe:
		return OpLt
	}
	return op
}

// ============================================================================
// 语句
// ============================================================================

// Stmt 语句。语句种类是封闭的：
// Assign | Store | Call | Cond | Switch | Goto | Return | Label | Debug | Nop | Asm | Trap | Phi
type Stmt interface {
	Pos() Pos
	Block() *Block
	// Result 返回语句定义的值，没有则为 nil
	Result() *Value
	// Args 返回语句读取的操作数
	Args() []Operand
	SetArg(i int, op Operand)
	String() string
	base() *stmtBase
}

type stmtBase struct {
	pos   Pos
	block *Block
}

func (s *stmtBase) Pos() Pos { return s.pos }

func (s *stmtBase) Block() *Block { return s.block }

func (s *stmtBase) base() *stmtBase { return s }

// SetPos 设置语句的源码位置
func SetPos(s Stmt, p Pos) { s.base().pos = p }

// Assign 赋值 Dest = Op X [, Y]
type Assign struct {
	stmtBase
	Dest     *Value
	Op       Op
	X, Y     Operand // 一元运算 Y 为 nil
	Volatile bool    // 仅用于 load
}

func (s *Assign) Result() *Value { return s.Dest }

func (s *Assign) Args() []Operand {
	if s.Y == nil {
		return []Operand{s.X}
	}
	return []Operand{s.X, s.Y}
}

func (s *Assign) SetArg(i int, op Operand) {
	switch i {
	case 0:
		s.X = op
	case 1:
		s.Y = op
	default:
		panic("ssa: assign operand index out of range")
	}
}

func (s *Assign) String() string {
	var sb strings.Builder
	sb.WriteString(defString(s.Dest))
	sb.WriteString(s.Op.String())
	if s.Volatile {
		sb.WriteString(" volatile")
	}
	sb.WriteString(" ")
	sb.WriteString(s.X.String())
	if s.Y != nil {
		sb.WriteString(", ")
		sb.WriteString(s.Y.String())
	}
	return sb.String()
}

// Store 存储 *Ptr = Val
type Store struct {
	stmtBase
	Ptr, Val Operand
	Volatile bool
}

func (s *Store) Result() *Value { return nil }

func (s *Store) Args() []Operand { return []Operand{s.Ptr, s.Val} }

func (s *Store) SetArg(i int, op Operand) {
	switch i {
	case 0:
		s.Ptr = op
	case 1:
		s.Val = op
	default:
		panic("ssa: store operand index out of range")
	}
}

func (s *Store) String() string {
	if s.Volatile {
		return fmt.Sprintf("store volatile %s, %s", s.Ptr, s.Val)
	}
	return fmt.Sprintf("store %s, %s", s.Ptr, s.Val)
}

// Call 函数调用
type Call struct {
	stmtBase
	Dest    *Value // 可为 nil
	Callee  string
	Params  []Operand
	NonNull []int // 带 nonnull 属性的参数下标（从 0 开始）
}

func (s *Call) Result() *Value { return s.Dest }

func (s *Call) Args() []Operand { return s.Params }

func (s *Call) SetArg(i int, op Operand) { s.Params[i] = op }

func (s *Call) String() string {
	var sb strings.Builder
	if s.Dest != nil {
		sb.WriteString(defString(s.Dest))
	}
	sb.WriteString("call ")
	sb.WriteString(s.Callee)
	sb.WriteString("(")
	sb.WriteString(joinOperands(s.Params))
	sb.WriteString(")")
	if len(s.NonNull) > 0 {
		idx := make([]string, len(s.NonNull))
		for i, n := range s.NonNull {
			idx[i] = strconv.Itoa(n + 1)
		}
		sb.WriteString(" nonnull(")
		sb.WriteString(strings.Join(idx, ", "))
		sb.WriteString(")")
	}
	return sb.String()
}

// Cond 条件跳转 if X Op Y，真假目标由出边的 EdgeTrue/EdgeFalse 标志区分
type Cond struct {
	stmtBase
	Op   Op
	X, Y Operand
}

func (s *Cond) Result() *Value { return nil }

func (s *Cond) Args() []Operand { return []Operand{s.X, s.Y} }

func (s *Cond) SetArg(i int, op Operand) {
	switch i {
	case 0:
		s.X = op
	case 1:
		s.Y = op
	default:
		panic("ssa: cond operand index out of range")
	}
}

func (s *Cond) String() string {
	head := fmt.Sprintf("if %s %s, %s", s.Op, s.X, s.Y)
	if b := s.block; b != nil {
		var t, f *Edge
		for _, e := range b.Succs {
			if e.Flags.Has(EdgeTrue) {
				t = e
			} else if e.Flags.Has(EdgeFalse) {
				f = e
			}
		}
		if t != nil && f != nil {
			return fmt.Sprintf("%s goto %s else %s", head, t.targetString(), f.targetString())
		}
	}
	return head
}

// Case 多路分支的一个分支
type Case struct {
	Val    int64
	Target *Block
}

// Switch 多路分支
type Switch struct {
	stmtBase
	Index   Operand
	Cases   []Case
	Default *Block
}

func (s *Switch) Result() *Value { return nil }

func (s *Switch) Args() []Operand { return []Operand{s.Index} }

func (s *Switch) SetArg(i int, op Operand) {
	if i != 0 {
		panic("ssa: switch operand index out of range")
	}
	s.Index = op
}

func (s *Switch) String() string {
	cases := make([]string, len(s.Cases))
	for i, c := range s.Cases {
		cases[i] = fmt.Sprintf("%d: %s", c.Val, s.target(c.Target))
	}
	return fmt.Sprintf("switch %s [%s] default %s", s.Index, strings.Join(cases, ", "), s.target(s.Default))
}

func (s *Switch) target(b *Block) string {
	if s.block != nil {
		if e := FindEdge(s.block, b); e != nil {
			return e.targetString()
		}
	}
	return b.Name
}

// Goto 计算跳转 goto *Target，可能的目标即所在块的后继
type Goto struct {
	stmtBase
	Target Operand
}

func (s *Goto) Result() *Value { return nil }

func (s *Goto) Args() []Operand { return []Operand{s.Target} }

func (s *Goto) SetArg(i int, op Operand) {
	if i != 0 {
		panic("ssa: goto operand index out of range")
	}
	s.Target = op
}

func (s *Goto) String() string {
	var targets []string
	if s.block != nil {
		for _, e := range s.block.Succs {
			targets = append(targets, e.targetString())
		}
	}
	return fmt.Sprintf("goto *%s [%s]", s.Target, strings.Join(targets, ", "))
}

// Return 返回
type Return struct {
	stmtBase
	Val Operand // 无返回值时为 nil
}

func (s *Return) Result() *Value { return nil }

func (s *Return) Args() []Operand {
	if s.Val == nil {
		return nil
	}
	return []Operand{s.Val}
}

func (s *Return) SetArg(i int, op Operand) {
	if i != 0 || s.Val == nil {
		panic("ssa: return operand index out of range")
	}
	s.Val = op
}

func (s *Return) String() string {
	if s.Val == nil {
		return "return"
	}
	return "return " + s.Val.String()
}

// Label 标签
type Label struct {
	stmtBase
	Name string
}

func (s *Label) Result() *Value           { return nil }
func (s *Label) Args() []Operand          { return nil }
func (s *Label) SetArg(i int, op Operand) { panic("ssa: label has no operands") }
func (s *Label) String() string           { return "label " + s.Name }

// Debug 调试绑定，不影响语义
type Debug struct {
	stmtBase
	Var string
}

func (s *Debug) Result() *Value           { return nil }
func (s *Debug) Args() []Operand          { return nil }
func (s *Debug) SetArg(i int, op Operand) { panic("ssa: debug has no operands") }
func (s *Debug) String() string           { return "debug " + s.Var }

// Nop 空语句
type Nop struct {
	stmtBase
}

func (s *Nop) Result() *Value           { return nil }
func (s *Nop) Args() []Operand          { return nil }
func (s *Nop) SetArg(i int, op Operand) { panic("ssa: nop has no operands") }
func (s *Nop) String() string           { return "nop" }

// Asm 内联汇编
type Asm struct {
	stmtBase
	Text     string
	Volatile bool
}

func (s *Asm) Result() *Value           { return nil }
func (s *Asm) Args() []Operand          { return nil }
func (s *Asm) SetArg(i int, op Operand) { panic("ssa: asm has no operands") }

func (s *Asm) String() string {
	if s.Volatile {
		return "asm volatile " + strconv.Quote(s.Text)
	}
	return "asm " + strconv.Quote(s.Text)
}

// Trap 无条件陷阱
type Trap struct {
	stmtBase
}

func (s *Trap) Result() *Value           { return nil }
func (s *Trap) Args() []Operand          { return nil }
func (s *Trap) SetArg(i int, op Operand) { panic("ssa: trap has no operands") }
func (s *Trap) String() string           { return "trap" }

// Phi 合并节点，Incoming[i] 对应所在块的 Preds[i]
type Phi struct {
	stmtBase
	Dest     *Value
	Incoming []Operand
}

func (s *Phi) Result() *Value { return s.Dest }

func (s *Phi) Args() []Operand { return s.Incoming }

func (s *Phi) SetArg(i int, op Operand) { s.Incoming[i] = op }

func (s *Phi) String() string {
	var sb strings.Builder
	sb.WriteString(defString(s.Dest))
	sb.WriteString("phi ")
	for i, a := range s.Incoming {
		if i > 0 {
			sb.WriteString(", ")
		}
		pred := "?"
		if s.block != nil && i < len(s.block.Preds) {
			pred = s.block.Preds[i].Src.Name
		}
		arg := "?"
		if a != nil {
			arg = a.String()
		}
		fmt.Fprintf(&sb, "[%s, %s]", arg, pred)
	}
	return sb.String()
}

// ============================================================================
// 辅助函数
// ============================================================================

func defString(v *Value) string {
	if v.Type() == TypeInt {
		return v.Name + " = "
	}
	return fmt.Sprintf("%s:%s = ", v.Name, v.Type())
}

func joinOperands(ops []Operand) string {
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = op.String()
	}
	return strings.Join(parts, ", ")
}

// IsControl 语句是否为可被线程化的控制语句（条件、多路分支或计算跳转）
func IsControl(s Stmt) bool {
	switch s.(type) {
	case *Cond, *Switch, *Goto:
		return true
	}
	return false
}

// IsIgnorable 语句是否不影响执行（空语句、标签、调试语句）
func IsIgnorable(s Stmt) bool {
	switch s.(type) {
	case *Nop, *Label, *Debug:
		return true
	}
	return false
}

// CloneStmt 复制语句，副本不属于任何块，定义的值保持不变
func CloneStmt(s Stmt) Stmt {
	var c Stmt
	switch s := s.(type) {
	case *Assign:
		n := *s
		c = &n
	case *Store:
		n := *s
		c = &n
	case *Call:
		n := *s
		n.Params = append([]Operand(nil), s.Params...)
		n.NonNull = append([]int(nil), s.NonNull...)
		c = &n
	case *Cond:
		n := *s
		c = &n
	case *Switch:
		n := *s
		n.Cases = append([]Case(nil), s.Cases...)
		c = &n
	case *Goto:
		n := *s
		c = &n
	case *Return:
		n := *s
		c = &n
	case *Label:
		n := *s
		c = &n
	case *Debug:
		n := *s
		c = &n
	case *Nop:
		n := *s
		c = &n
	case *Asm:
		n := *s
		c = &n
	case *Trap:
		n := *s
		c = &n
	case *Phi:
		n := *s
		n.Incoming = append([]Operand(nil), s.Incoming...)
		c = &n
	default:
		panic(fmt.Sprintf("ssa: unknown statement %T", s))
	}
	c.base().block = nil
	return c
}

// Substitute 复制语句并用 fn 替换每个操作数，返回的副本用于试探性化简
func Substitute(s Stmt, fn func(Operand) Operand) Stmt {
	c := CloneStmt(s)
	for i, op := range c.Args() {
		if op == nil {
			continue
		}
		if r := fn(op); r != nil {
			c.SetArg(i, r)
		}
	}
	return c
}

// UsesValue 语句是否读取 v
func UsesValue(s Stmt, v *Value) bool {
	for _, op := range s.Args() {
		if op != nil && Equal(op, v) {
			return true
		}
	}
	return false
}

// HasSSAOperands 语句是否读取任何 SSA 值
func HasSSAOperands(s Stmt) bool {
	for _, op := range s.Args() {
		if _, ok := AsValue(op); ok {
			return true
		}
	}
	return false
}
