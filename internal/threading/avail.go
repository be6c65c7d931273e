package threading

import (
	"github.com/tangzhangming/ssaopt/internal/fold"
	"github.com/tangzhangming/ssaopt/internal/ssa"
)

// ============================================================================
// 路径上已知成立的条件
// ============================================================================

// availEntry 条件 "x op y" 的已知结果；marker 为真时是作用域标记
type availEntry struct {
	op     ssa.Op
	x, y   ssa.Operand
	val    bool
	marker bool
}

// AvailExprs 沿当前探索路径成立的比较条件，支持按标记撤销
type AvailExprs struct {
	entries []availEntry
}

// NewAvailExprs 创建空的条件栈
func NewAvailExprs() *AvailExprs {
	return &AvailExprs{}
}

// PushMarker 压入作用域标记
func (a *AvailExprs) PushMarker() {
	a.entries = append(a.entries, availEntry{marker: true})
}

// Unwind 撤销到最近的标记（标记同时弹出）
func (a *AvailExprs) Unwind() {
	for len(a.entries) > 0 {
		e := a.entries[len(a.entries)-1]
		a.entries = a.entries[:len(a.entries)-1]
		if e.marker {
			return
		}
	}
}

// Len 记录数（含标记）
func (a *AvailExprs) Len() int { return len(a.entries) }

// Record 记录 "x op y" 的结果为 val，同时记录其反条件
func (a *AvailExprs) Record(op ssa.Op, x, y ssa.Operand, val bool) {
	if !op.IsComparison() || x == nil || y == nil {
		return
	}
	a.entries = append(a.entries,
		availEntry{op: op, x: x, y: y, val: val},
		availEntry{op: op.Invert(), x: x, y: y, val: !val},
	)
}

// Lookup 查找 "x op y" 的已知结果，也匹配交换操作数后的形式
func (a *AvailExprs) Lookup(op ssa.Op, x, y ssa.Operand) *ssa.Const {
	if a == nil || !op.IsComparison() {
		return nil
	}
	for i := len(a.entries) - 1; i >= 0; i-- {
		e := a.entries[i]
		if e.marker {
			continue
		}
		if (e.op == op && ssa.Equal(e.x, x) && ssa.Equal(e.y, y)) ||
			(e.op == op.Swap() && ssa.Equal(e.x, y) && ssa.Equal(e.y, x)) {
			return ssa.BoolConst(e.val)
		}
	}
	return nil
}

// ============================================================================
// 化简回调
// ============================================================================

// SimplifyFunc 由具体 pass 提供的化简回调
// stmt 是操作数已替换为等价值的副本，within 是原语句。返回 nil 表示无法化简。
type SimplifyFunc func(stmt, within ssa.Stmt, avail *AvailExprs) ssa.Operand

// NoSimplify 总是失败的回调，跨过回边后使用
func NoSimplify(stmt, within ssa.Stmt, avail *AvailExprs) ssa.Operand {
	return nil
}

// FoldSimplifier 默认回调：重新折叠，再查找路径上已知的条件
func FoldSimplifier(stmt, within ssa.Stmt, avail *AvailExprs) ssa.Operand {
	switch s := stmt.(type) {
	case *ssa.Assign:
		if r := fold.FoldStmt(s, nil); r != nil {
			return r
		}
		if s.Op.IsComparison() {
			if c := avail.Lookup(s.Op, s.X, s.Y); c != nil {
				return c
			}
		}
	case *ssa.Cond:
		if c := fold.FoldCond(s.Op, s.X, s.Y); c != nil {
			return c
		}
		if c := avail.Lookup(s.Op, s.X, s.Y); c != nil {
			return c
		}
	}
	return nil
}
