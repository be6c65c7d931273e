package ssa

import (
	"fmt"
	"strings"
)

// ============================================================================
// 边
// ============================================================================

// EdgeFlags 边的属性
type EdgeFlags uint8

const (
	EdgeTrue     EdgeFlags = 1 << iota // 条件为真时走的边
	EdgeFalse                          // 条件为假时走的边
	EdgeBack                           // 回边（DFS 意义下）
	EdgeAbnormal                       // 非正常控制流（setjmp、非局部跳转）
	EdgeEH                             // 异常处理边
)

// Has 是否包含全部给定标志
func (f EdgeFlags) Has(m EdgeFlags) bool { return f&m == m }

// Any 是否包含任一给定标志
func (f EdgeFlags) Any(m EdgeFlags) bool { return f&m != 0 }

func (f EdgeFlags) String() string {
	var parts []string
	names := []struct {
		flag EdgeFlags
		name string
	}{
		{EdgeTrue, "true"},
		{EdgeFalse, "false"},
		{EdgeBack, "back"},
		{EdgeAbnormal, "abnormal"},
		{EdgeEH, "eh"},
	}
	for _, n := range names {
		if f.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Edge 控制流边
type Edge struct {
	Src, Dest *Block
	Flags     EdgeFlags
}

// IsBack 是否为回边
func (e *Edge) IsBack() bool { return e.Flags.Has(EdgeBack) }

// IsAbnormal 是否为非正常边
func (e *Edge) IsAbnormal() bool { return e.Flags.Has(EdgeAbnormal) }

// IsEH 是否为异常处理边
func (e *Edge) IsEH() bool { return e.Flags.Has(EdgeEH) }

// DestIndex 返回本边在 Dest.Preds 中的下标，不存在时为 -1
func (e *Edge) DestIndex() int {
	for i, p := range e.Dest.Preds {
		if p == e {
			return i
		}
	}
	return -1
}

func (e *Edge) String() string {
	return fmt.Sprintf("%s->%s", e.Src.Name, e.Dest.Name)
}

func (e *Edge) targetString() string {
	s := e.Dest.Name
	if e.IsAbnormal() {
		s += " !abnormal"
	}
	if e.IsEH() {
		s += " !eh"
	}
	return s
}

// ============================================================================
// 基本块
// ============================================================================

// Block 基本块
type Block struct {
	ID    ID
	Name  string
	Phis  []*Phi
	Stmts []Stmt
	Preds []*Edge
	Succs []*Edge
	Loop  *Loop // 最内层所在循环，不在循环中为 nil
	Func  *Func
}

func (b *Block) String() string { return b.Name }

// AddPhi 在块头追加 phi
func (b *Block) AddPhi(p *Phi) {
	p.block = b
	if p.Dest != nil {
		p.Dest.Def = p
	}
	b.Phis = append(b.Phis, p)
}

// Append 在块尾追加语句
func (b *Block) Append(s Stmt) {
	s.base().block = b
	if v := s.Result(); v != nil {
		v.Def = s
	}
	b.Stmts = append(b.Stmts, s)
}

// InsertAt 在下标 i 处插入语句
func (b *Block) InsertAt(i int, s Stmt) {
	s.base().block = b
	if v := s.Result(); v != nil {
		v.Def = s
	}
	b.Stmts = append(b.Stmts, nil)
	copy(b.Stmts[i+1:], b.Stmts[i:])
	b.Stmts[i] = s
}

// RemoveAt 删除下标 i 处的语句
func (b *Block) RemoveAt(i int) {
	b.Stmts[i].base().block = nil
	b.Stmts = append(b.Stmts[:i], b.Stmts[i+1:]...)
}

// Truncate 删除下标 i 及之后的所有语句
func (b *Block) Truncate(i int) {
	for _, s := range b.Stmts[i:] {
		s.base().block = nil
	}
	b.Stmts = b.Stmts[:i]
}

// IndexOf 返回语句在块中的下标，不存在时为 -1
func (b *Block) IndexOf(s Stmt) int {
	for i, x := range b.Stmts {
		if x == s {
			return i
		}
	}
	return -1
}

// Last 返回最后一条语句
func (b *Block) Last() Stmt {
	if len(b.Stmts) == 0 {
		return nil
	}
	return b.Stmts[len(b.Stmts)-1]
}

// Control 返回块末的控制语句（条件、多路分支或计算跳转），没有则为 nil
func (b *Block) Control() Stmt {
	if s := b.Last(); s != nil && IsControl(s) {
		return s
	}
	return nil
}

// SingleSucc 块只有一个后继时返回该出边
func (b *Block) SingleSucc() *Edge {
	if len(b.Succs) == 1 {
		return b.Succs[0]
	}
	return nil
}

// HasAbnormalOrEHOutgoing 是否有非正常或异常处理出边
func (b *Block) HasAbnormalOrEHOutgoing() bool {
	for _, e := range b.Succs {
		if e.Flags.Any(EdgeAbnormal | EdgeEH) {
			return true
		}
	}
	return false
}

// PredIndex 返回来自 src 的前驱边下标，不存在时为 -1
func (b *Block) PredIndex(src *Block) int {
	for i, e := range b.Preds {
		if e.Src == src {
			return i
		}
	}
	return -1
}

// ============================================================================
// 函数
// ============================================================================

// Func SSA 形式的函数
type Func struct {
	Name           string
	File           string
	Pos            Pos
	Params         []*Value
	Locals         []*Local
	Blocks         []*Block
	Entry          *Block
	ReturnsNonNull bool

	nextBlock ID
	nextValue ID
	values    []*Value

	dom            *DomTree
	pdom           *DomTree
	loops          *LoopForest
	loopsNeedFixup bool
}

// NewFunc 创建空函数
func NewFunc(name string) *Func {
	return &Func{Name: name}
}

// NewBlock 创建新块并加入函数，name 为空时自动命名
func (f *Func) NewBlock(name string) *Block {
	b := &Block{ID: f.nextBlock, Func: f}
	f.nextBlock++
	if name == "" {
		name = fmt.Sprintf("bb%d", b.ID)
	}
	b.Name = name
	if f.Entry == nil {
		f.Entry = b
	}
	f.Blocks = append(f.Blocks, b)
	return b
}

// NumBlocks 返回已分配的块编号上界
func (f *Func) NumBlocks() int { return int(f.nextBlock) }

// NewValue 创建新的 SSA 值，name 为空时自动命名
func (f *Func) NewValue(name string, t Type) *Value {
	v := &Value{ID: f.nextValue, typ: t}
	f.nextValue++
	if name == "" {
		name = fmt.Sprintf("v%d", v.ID)
	}
	v.Name = name
	f.values = append(f.values, v)
	return v
}

// NumValues 返回已分配的值编号上界
func (f *Func) NumValues() int { return int(f.nextValue) }

// ValueByID 按编号查找值
func (f *Func) ValueByID(id ID) *Value {
	if int(id) < 0 || int(id) >= len(f.values) {
		return nil
	}
	return f.values[id]
}

// AddParam 添加函数参数
func (f *Func) AddParam(name string, t Type) *Value {
	v := f.NewValue(name, t)
	f.Params = append(f.Params, v)
	return v
}

// AddLocal 添加自动变量
func (f *Func) AddLocal(name string, pos Pos) *Local {
	l := &Local{Name: name, Pos: pos}
	f.Locals = append(f.Locals, l)
	return l
}

// BlockByName 按名称查找块
func (f *Func) BlockByName(name string) *Block {
	for _, b := range f.Blocks {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// ValueByName 按名称查找值
func (f *Func) ValueByName(name string) *Value {
	for _, v := range f.values {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// LocalByName 按名称查找自动变量
func (f *Func) LocalByName(name string) *Local {
	for _, l := range f.Locals {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// NumStmts 统计函数中的语句数（不含 phi）
func (f *Func) NumStmts() int {
	n := 0
	for _, b := range f.Blocks {
		n += len(b.Stmts)
	}
	return n
}

// FindEdge 查找 src 到 dest 的边
func FindEdge(src, dest *Block) *Edge {
	for _, e := range src.Succs {
		if e.Dest == dest {
			return e
		}
	}
	return nil
}

// FindTakenEdge 给定控制语句的不变量结果，返回必然走的出边
// 条件语句的 val 为布尔常量；多路分支的 val 为整数常量；计算跳转的 val 为标签地址。
// 无法确定时返回 nil。
func FindTakenEdge(b *Block, val Operand) *Edge {
	ctl := b.Control()
	if ctl == nil || val == nil {
		return nil
	}
	switch s := ctl.(type) {
	case *Cond:
		c, ok := val.(*Const)
		if !ok {
			return nil
		}
		want := EdgeFalse
		if c.Val != 0 {
			want = EdgeTrue
		}
		for _, e := range b.Succs {
			if e.Flags.Has(want) {
				return e
			}
		}
	case *Switch:
		c, ok := val.(*Const)
		if !ok {
			return nil
		}
		target := s.Default
		for _, cs := range s.Cases {
			if cs.Val == c.Val {
				target = cs.Target
				break
			}
		}
		return FindEdge(b, target)
	case *Goto:
		l, ok := val.(*LabelAddr)
		if !ok {
			return nil
		}
		return FindEdge(b, l.Block)
	}
	return nil
}
