// fold.go - 常量折叠
//
// 折叠规则：
//  1. 两个操作数都是常量时直接求值（除以零、越界移位不折叠）
//  2. 恒等式：x-x, x^x, x*0, x&0 得零；x+0, x*1, x|x, x&x 得 x；x==x 等比较得常量
//  3. 变量地址、块地址与空指针比较不相等
//
// FoldStmt 在折叠前先用 valueize 替换操作数，结果只可能是常量、SSA 值或 nil。

package fold

import (
	"github.com/tangzhangming/ssaopt/internal/ssa"
)

// Valueizer 把操作数替换为当前已知的等价值，返回 nil 表示保持不变
type Valueizer func(ssa.Operand) ssa.Operand

// Identity 不做替换的 Valueizer
func Identity(ssa.Operand) ssa.Operand { return nil }

// FoldStmt 尝试把定义值的语句折叠为常量或已有的 SSA 值
// 只处理赋值与 phi；volatile、load、调用等返回 nil。
func FoldStmt(s ssa.Stmt, valueize Valueizer) ssa.Operand {
	if valueize == nil {
		valueize = Identity
	}
	switch s := s.(type) {
	case *ssa.Assign:
		if s.Volatile || s.Op == ssa.OpLoad {
			return nil
		}
		x := subst(s.X, valueize)
		if s.Op.IsUnary() {
			return FoldUnary(s.Op, x)
		}
		return FoldBinary(s.Op, x, subst(s.Y, valueize))
	case *ssa.Phi:
		var same ssa.Operand
		for _, a := range s.Incoming {
			if a == nil {
				return nil
			}
			a = subst(a, valueize)
			if ssa.Equal(a, s.Dest) {
				continue
			}
			if same != nil && !ssa.Equal(same, a) {
				return nil
			}
			same = a
		}
		return same
	case *ssa.Store, *ssa.Call, *ssa.Cond, *ssa.Switch, *ssa.Goto, *ssa.Return,
		*ssa.Label, *ssa.Debug, *ssa.Nop, *ssa.Asm, *ssa.Trap:
		return nil
	default:
		panic("fold: unknown statement kind")
	}
}

// FoldCond 折叠条件跳转的比较，成功时返回布尔常量
func FoldCond(op ssa.Op, x, y ssa.Operand) *ssa.Const {
	if !op.IsComparison() {
		return nil
	}
	c, _ := FoldBinary(op, x, y).(*ssa.Const)
	return c
}

func subst(op ssa.Operand, valueize Valueizer) ssa.Operand {
	if op == nil {
		return nil
	}
	if r := valueize(op); r != nil {
		return r
	}
	return op
}

// ============================================================================
// 一元运算
// ============================================================================

// FoldUnary 折叠一元运算
func FoldUnary(op ssa.Op, x ssa.Operand) ssa.Operand {
	switch op {
	case ssa.OpCopy, ssa.OpAssertNonNull:
		return x
	case ssa.OpNeg:
		if c, ok := x.(*ssa.Const); ok && c.Type() == ssa.TypeInt {
			return ssa.IntConst(-c.Val)
		}
	case ssa.OpNot:
		if c, ok := x.(*ssa.Const); ok {
			if c.Type() == ssa.TypeBool {
				return ssa.BoolConst(c.Val == 0)
			}
			return ssa.ConstOf(c.Type(), ^c.Val)
		}
	}
	return nil
}

// ============================================================================
// 二元运算
// ============================================================================

// FoldBinary 折叠二元运算
func FoldBinary(op ssa.Op, x, y ssa.Operand) ssa.Operand {
	if x == nil || y == nil {
		return nil
	}
	cx, xok := x.(*ssa.Const)
	cy, yok := y.(*ssa.Const)

	if op.IsComparison() {
		if xok && yok {
			return foldComparison(op, cx.Val, cy.Val)
		}
		return foldPointerComparison(op, x, y)
	}
	if xok && yok {
		return foldArithmetic(op, cx, cy)
	}
	return foldIdentity(op, x, y)
}

func foldArithmetic(op ssa.Op, x, y *ssa.Const) ssa.Operand {
	l, r := x.Val, y.Val
	var result int64

	switch op {
	case ssa.OpAdd:
		result = l + r
	case ssa.OpSub:
		result = l - r
	case ssa.OpMul:
		result = l * r
	case ssa.OpDiv:
		if r == 0 || (r == -1 && l == minInt64) {
			return nil // 留给路径隔离处理
		}
		result = l / r
	case ssa.OpMod:
		if r == 0 || (r == -1 && l == minInt64) {
			return nil
		}
		result = l % r
	case ssa.OpAnd:
		result = l & r
	case ssa.OpOr:
		result = l | r
	case ssa.OpXor:
		result = l ^ r
	case ssa.OpShl:
		if r < 0 || r > 63 {
			return nil
		}
		result = l << uint(r)
	case ssa.OpShr:
		if r < 0 || r > 63 {
			return nil
		}
		result = l >> uint(r)
	default:
		return nil
	}
	return ssa.ConstOf(x.Type(), result)
}

const minInt64 = -1 << 63

func foldComparison(op ssa.Op, l, r int64) ssa.Operand {
	var result bool
	switch op {
	case ssa.OpEq:
		result = l == r
	case ssa.OpNe:
		result = l != r
	case ssa.OpLt:
		result = l < r
	case ssa.OpLe:
		result = l <= r
	case ssa.OpGt:
		result = l > r
	case ssa.OpGe:
		result = l >= r
	default:
		return nil
	}
	return ssa.BoolConst(result)
}

// foldPointerComparison 处理至少一侧不是常量的比较
func foldPointerComparison(op ssa.Op, x, y ssa.Operand) ssa.Operand {
	if ssa.Equal(x, y) {
		switch op {
		case ssa.OpEq, ssa.OpLe, ssa.OpGe:
			return ssa.BoolConst(true)
		default:
			return ssa.BoolConst(false)
		}
	}
	if op != ssa.OpEq && op != ssa.OpNe {
		return nil
	}
	if (isAddress(x) && ssa.IsZeroConst(y)) || (isAddress(y) && ssa.IsZeroConst(x)) ||
		(isAddress(x) && isAddress(y)) {
		return ssa.BoolConst(op == ssa.OpNe)
	}
	return nil
}

func isAddress(op ssa.Operand) bool {
	switch op.(type) {
	case *ssa.AddrOf, *ssa.LabelAddr:
		return true
	}
	return false
}

// foldIdentity 处理恒等式
func foldIdentity(op ssa.Op, x, y ssa.Operand) ssa.Operand {
	same := ssa.Equal(x, y)
	typ := x.Type()

	switch op {
	case ssa.OpSub, ssa.OpXor:
		if same {
			return ssa.ZeroConst(typ)
		}
		if isConst(y, 0) {
			return x
		}
	case ssa.OpAdd, ssa.OpOr, ssa.OpShl, ssa.OpShr:
		if isConst(y, 0) {
			return x
		}
		if isConst(x, 0) && (op == ssa.OpAdd || op == ssa.OpOr) {
			return y
		}
		if same && op == ssa.OpOr {
			return x
		}
	case ssa.OpMul:
		if isConst(x, 0) || isConst(y, 0) {
			return ssa.ZeroConst(typ)
		}
		if isConst(y, 1) {
			return x
		}
		if isConst(x, 1) {
			return y
		}
	case ssa.OpAnd:
		if isConst(x, 0) || isConst(y, 0) {
			return ssa.ZeroConst(typ)
		}
		if same {
			return x
		}
	case ssa.OpDiv:
		if isConst(y, 1) {
			return x
		}
	case ssa.OpMod:
		if isConst(y, 1) {
			return ssa.ZeroConst(typ)
		}
	}
	return nil
}

func isConst(op ssa.Operand, v int64) bool {
	c, ok := op.(*ssa.Const)
	return ok && c.Val == v && c.Type() != ssa.TypePtr
}
