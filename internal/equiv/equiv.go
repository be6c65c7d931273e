// equiv.go - 等价关系表与撤销栈
//
// Table 记录 "SSA 值 x 当前等于 v"，按值编号索引。
// Stack 记录每次修改前的旧值，Unwind 按后进先出的顺序恢复到最近的标记。
//
// Record 只解析一层间接：记录 x = y 时，若 y 已有等价值 y'，则记录 x = y'，
// 之后再修改 y 不会影响 x。

package equiv

import (
	"github.com/tangzhangming/ssaopt/internal/ssa"
)

// ============================================================================
// Table
// ============================================================================

// Table SSA 值到等价值的映射，未知为 nil
type Table struct {
	values []ssa.Operand
}

// NewTable 创建等价表，size 为预期的值个数
func NewTable(size int) *Table {
	return &Table{values: make([]ssa.Operand, size)}
}

// Value 返回 x 当前的等价值
func (t *Table) Value(x *ssa.Value) ssa.Operand {
	if int(x.ID) >= len(t.values) {
		return nil
	}
	return t.values[x.ID]
}

// SetValue 无条件设置 x 的等价值，v 为 nil 表示未知
func (t *Table) SetValue(x *ssa.Value, v ssa.Operand) {
	if int(x.ID) >= len(t.values) {
		if v == nil {
			return
		}
		grown := make([]ssa.Operand, int(x.ID)+1+len(t.values)/2)
		copy(grown, t.values)
		t.values = grown
	}
	t.values[x.ID] = v
}

// Valueize 返回操作数的等价值；不是 SSA 值或没有等价值时返回 nil
func (t *Table) Valueize(op ssa.Operand) ssa.Operand {
	if v, ok := ssa.AsValue(op); ok {
		return t.Value(v)
	}
	return nil
}

// ============================================================================
// Stack
// ============================================================================

// entry 撤销记录，slot 为 nil 时是标记
type entry struct {
	slot *ssa.Value
	prev ssa.Operand
}

// Stack 等价表的撤销栈
type Stack struct {
	tab     *Table
	entries []entry
}

// NewStack 创建绑定到 tab 的撤销栈
func NewStack(tab *Table) *Stack {
	return &Stack{tab: tab}
}

// Table 返回栈绑定的等价表
func (s *Stack) Table() *Table { return s.tab }

// Len 返回栈中记录数（含标记）
func (s *Stack) Len() int { return len(s.entries) }

// PushMarker 压入作用域标记
func (s *Stack) PushMarker() {
	s.entries = append(s.entries, entry{})
}

// Record 记录 x 等于 y，y 为 nil 表示使 x 失效
func (s *Stack) Record(x *ssa.Value, y ssa.Operand) {
	if y != nil {
		if v, ok := ssa.AsValue(y); ok {
			if tmp := s.tab.Value(v); tmp != nil {
				y = tmp
			}
		}
	}
	s.entries = append(s.entries, entry{slot: x, prev: s.tab.Value(x)})
	s.tab.SetValue(x, y)
}

// Unwind 弹出记录并恢复旧值，直到遇到标记（标记同时弹出）或栈空
func (s *Stack) Unwind() {
	for len(s.entries) > 0 {
		e := s.entries[len(s.entries)-1]
		s.entries = s.entries[:len(s.entries)-1]
		if e.slot == nil {
			return
		}
		s.tab.SetValue(e.slot, e.prev)
	}
}

// Invalidate x 的值已改变：使所有当前等于 x 的记录失效，最后使 x 自身失效
func (s *Stack) Invalidate(x *ssa.Value) {
	for i := len(s.entries) - 1; i >= 0; i-- {
		slot := s.entries[i].slot
		if slot == nil {
			continue
		}
		if cur := s.tab.Value(slot); cur != nil && ssa.Equal(cur, x) {
			s.Record(slot, nil)
		}
	}
	s.Record(x, nil)
}
