// Package ssa 定义优化中端使用的 SSA 形式控制流图
//
// 函数由基本块组成，基本块之间通过 Edge 相连。每个 SSA 值只有一个定义语句，
// Phi 节点的参数与所在块的前驱边一一对应。
package ssa

import (
	"fmt"
	"strconv"
)

// ID 块和值的编号
type ID int32

// ============================================================================
// 类型
// ============================================================================

// Type 值类型
type Type int

const (
	TypeVoid Type = iota
	TypeInt
	TypeBool
	TypePtr
	TypeMem // 虚拟操作数（内存 SSA）
)

func (t Type) String() string {
	switch t {
	case TypeVoid:
		return "void"
	case TypeInt:
		return "int"
	case TypeBool:
		return "bool"
	case TypePtr:
		return "ptr"
	case TypeMem:
		return "mem"
	default:
		return "unknown"
	}
}

// ParseType 解析类型名
func ParseType(name string) (Type, bool) {
	switch name {
	case "void":
		return TypeVoid, true
	case "int":
		return TypeInt, true
	case "bool":
		return TypeBool, true
	case "ptr":
		return TypePtr, true
	case "mem":
		return TypeMem, true
	}
	return TypeVoid, false
}

// IsPointer 是否为指针类型
func (t Type) IsPointer() bool { return t == TypePtr }

// IsIntegral 是否为整数类（含布尔）
func (t Type) IsIntegral() bool { return t == TypeInt || t == TypeBool }

// IsVirtual 是否为虚拟操作数
func (t Type) IsVirtual() bool { return t == TypeMem }

// ============================================================================
// 操作数
// ============================================================================

// Operand 语句操作数：SSA 值、常量、局部变量地址或标签地址
type Operand interface {
	Type() Type
	String() string
	operand()
}

// Value SSA 值
type Value struct {
	ID   ID
	Name string
	Def  Stmt // 参数为 nil
	typ  Type
}

func (v *Value) Type() Type { return v.typ }

// SetType 设置值类型（仅供构建器使用）
func (v *Value) SetType(t Type) { v.typ = t }

func (v *Value) String() string { return v.Name }

func (*Value) operand() {}

// IsParam 是否为函数参数
func (v *Value) IsParam() bool { return v.Def == nil }

// Const 常量
type Const struct {
	Val int64
	typ Type
}

// IntConst 创建整数常量
func IntConst(v int64) *Const { return &Const{Val: v, typ: TypeInt} }

// BoolConst 创建布尔常量
func BoolConst(b bool) *Const {
	if b {
		return &Const{Val: 1, typ: TypeBool}
	}
	return &Const{Val: 0, typ: TypeBool}
}

// NullConst 创建空指针常量
func NullConst() *Const { return &Const{Val: 0, typ: TypePtr} }

// ZeroConst 创建给定类型的零值
func ZeroConst(t Type) *Const { return &Const{Val: 0, typ: t} }

// ConstOf 创建给定类型的常量，布尔值规范化为 0 或 1
func ConstOf(t Type, v int64) *Const {
	if t == TypeBool && v != 0 {
		v = 1
	}
	return &Const{Val: v, typ: t}
}

func (c *Const) Type() Type { return c.typ }

// IsZero 是否为零值（整数 0、false 或空指针）
func (c *Const) IsZero() bool { return c.Val == 0 }

func (c *Const) String() string {
	switch c.typ {
	case TypePtr:
		if c.Val == 0 {
			return "null"
		}
		return fmt.Sprintf("ptr(%d)", c.Val)
	case TypeBool:
		if c.Val != 0 {
			return "true"
		}
		return "false"
	default:
		return strconv.FormatInt(c.Val, 10)
	}
}

func (*Const) operand() {}

// Local 函数内的自动变量或全局变量
type Local struct {
	Name   string
	Pos    Pos
	Global bool
}

// AddrOf 变量地址，非空的不变量
type AddrOf struct {
	Local *Local
}

func (*AddrOf) Type() Type { return TypePtr }

func (a *AddrOf) String() string { return "&" + a.Local.Name }

func (*AddrOf) operand() {}

// IsAutomatic 是否为自动变量的地址
func (a *AddrOf) IsAutomatic() bool { return !a.Local.Global }

// LabelAddr 块地址，用于计算跳转
type LabelAddr struct {
	Block *Block
}

func (*LabelAddr) Type() Type { return TypePtr }

func (l *LabelAddr) String() string { return "&&" + l.Block.Name }

func (*LabelAddr) operand() {}

// ============================================================================
// 操作数查询
// ============================================================================

// IsInvariant 操作数是否为编译期不变量
func IsInvariant(op Operand) bool {
	switch op.(type) {
	case *Const, *AddrOf, *LabelAddr:
		return true
	}
	return false
}

// IsZeroConst 操作数是否为零常量
func IsZeroConst(op Operand) bool {
	c, ok := op.(*Const)
	return ok && c.IsZero()
}

// AsValue 操作数为 SSA 值时返回它
func AsValue(op Operand) (*Value, bool) {
	v, ok := op.(*Value)
	return v, ok && v != nil
}

// Equal 判断两个操作数是否相同
// SSA 值按身份比较，常量按类型和数值比较
func Equal(a, b Operand) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case *Value:
		y, ok := b.(*Value)
		return ok && x == y
	case *Const:
		y, ok := b.(*Const)
		return ok && x.typ == y.typ && x.Val == y.Val
	case *AddrOf:
		y, ok := b.(*AddrOf)
		return ok && x.Local == y.Local
	case *LabelAddr:
		y, ok := b.(*LabelAddr)
		return ok && x.Block == y.Block
	default:
		panic(fmt.Sprintf("ssa: unknown operand %T", a))
	}
}
