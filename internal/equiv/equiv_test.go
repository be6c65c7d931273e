package equiv

import (
	"math/rand"
	"testing"

	"github.com/tangzhangming/ssaopt/internal/ssa"
)

func newValues(n int) (*ssa.Func, []*ssa.Value) {
	f := ssa.NewFunc("f")
	vals := make([]*ssa.Value, n)
	for i := range vals {
		vals[i] = f.AddParam("", ssa.TypeInt)
	}
	return f, vals
}

// TestRecordOneHop 测试 Record 只解析一层间接
func TestRecordOneHop(t *testing.T) {
	_, v := newValues(3)
	a, b, c := v[0], v[1], v[2]
	s := NewStack(NewTable(0))

	s.Record(a, b)
	s.Record(b, c)
	if got := s.Table().Value(a); got != b {
		t.Errorf("a should still resolve to b, got %v", got)
	}
	if got := s.Table().Value(b); got != c {
		t.Errorf("b should resolve to c, got %v", got)
	}

	// b 已有等价值 c，记录 a = b 时取 c
	s.Record(a, b)
	if got := s.Table().Value(a); got != c {
		t.Errorf("a should resolve through b to c, got %v", got)
	}

	// 只取一层：c 的等价值不会被继续追踪
	s.Record(c, ssa.IntConst(7))
	s.Record(b, a)
	if got := s.Table().Value(b); got != c {
		t.Errorf("b = a should resolve one hop to c, got %v", got)
	}
}

// TestUnwindEmpty 测试空栈上的 Unwind
func TestUnwindEmpty(t *testing.T) {
	_, v := newValues(1)
	tab := NewTable(1)
	tab.SetValue(v[0], ssa.IntConst(1))
	s := NewStack(tab)

	s.Unwind()
	s.Unwind()
	if s.Len() != 0 {
		t.Errorf("stack should stay empty")
	}
	if got := tab.Value(v[0]); got == nil || got.String() != "1" {
		t.Errorf("unwinding an empty stack must not change the table, got %v", got)
	}
}

// TestUnwindToMarker 测试按标记分组撤销
func TestUnwindToMarker(t *testing.T) {
	_, v := newValues(2)
	s := NewStack(NewTable(2))

	s.Record(v[0], ssa.IntConst(1))
	s.PushMarker()
	s.Record(v[0], ssa.IntConst(2))
	s.Record(v[1], ssa.IntConst(3))
	s.Unwind()

	if got := s.Table().Value(v[0]); got.String() != "1" {
		t.Errorf("v0 should be restored to 1, got %v", got)
	}
	if got := s.Table().Value(v[1]); got != nil {
		t.Errorf("v1 should be unknown again, got %v", got)
	}
	if s.Len() != 1 {
		t.Errorf("only the record below the marker should remain, got %d", s.Len())
	}
}

// TestInvalidate 测试失效传播
func TestInvalidate(t *testing.T) {
	_, v := newValues(4)
	x, a, b, c := v[0], v[1], v[2], v[3]
	s := NewStack(NewTable(4))

	s.Record(a, x)
	s.PushMarker()
	s.Record(b, x)
	s.Record(c, ssa.IntConst(5))
	s.Record(x, ssa.IntConst(9))

	s.Invalidate(x)
	tab := s.Table()
	if tab.Value(a) != nil || tab.Value(b) != nil {
		t.Errorf("values equal to x should be invalidated across markers")
	}
	if tab.Value(x) != nil {
		t.Errorf("x itself should be invalidated")
	}
	if got := tab.Value(c); got == nil || got.String() != "5" {
		t.Errorf("unrelated value should keep its equivalence, got %v", got)
	}

	// a 的失效记录在标记之后，撤销后恢复为 x
	s.Unwind()
	if got := tab.Value(a); got != x {
		t.Errorf("a should be restored to x, got %v", got)
	}
	if tab.Value(b) != nil || tab.Value(c) != nil || tab.Value(x) != nil {
		t.Errorf("records after the marker should be undone")
	}
}

// TestTableGrows 测试按需扩容
func TestTableGrows(t *testing.T) {
	_, v := newValues(20)
	tab := NewTable(0)
	tab.SetValue(v[19], ssa.IntConst(1))
	if tab.Value(v[19]) == nil || tab.Value(v[3]) != nil {
		t.Errorf("table should grow on demand")
	}
	if tab.Valueize(ssa.IntConst(1)) != nil {
		t.Errorf("constants have no equivalence")
	}
}

// TestUndoModel 随机的 Record/PushMarker/Unwind 序列与快照模型对比
func TestUndoModel(t *testing.T) {
	const nvals = 8
	rng := rand.New(rand.NewSource(42))
	_, v := newValues(nvals)
	s := NewStack(NewTable(nvals))

	snapshot := func() []ssa.Operand {
		out := make([]ssa.Operand, nvals)
		for i, x := range v {
			out[i] = s.Table().Value(x)
		}
		return out
	}
	same := func(a, b []ssa.Operand) bool {
		for i := range a {
			if !ssa.Equal(a[i], b[i]) {
				return false
			}
		}
		return true
	}

	initial := snapshot()
	var model [][]ssa.Operand

	for step := 0; step < 5000; step++ {
		switch r := rng.Intn(10); {
		case r < 2:
			s.PushMarker()
			model = append(model, snapshot())
		case r < 4:
			s.Unwind()
			want := initial
			if len(model) > 0 {
				want = model[len(model)-1]
				model = model[:len(model)-1]
			}
			if got := snapshot(); !same(got, want) {
				t.Fatalf("step %d: unwind restored %v, want %v", step, got, want)
			}
		case r < 5:
			s.Invalidate(v[rng.Intn(nvals)])
		default:
			x := v[rng.Intn(nvals)]
			var y ssa.Operand
			switch rng.Intn(3) {
			case 0:
				y = ssa.IntConst(int64(rng.Intn(4)))
			case 1:
				y = v[rng.Intn(nvals)]
			}
			s.Record(x, y)
		}
	}

	for len(model) > 0 {
		s.Unwind()
		want := model[len(model)-1]
		model = model[:len(model)-1]
		if !same(snapshot(), want) {
			t.Fatalf("final unwind mismatch")
		}
	}
	s.Unwind()
	if !same(snapshot(), initial) || s.Len() != 0 {
		t.Errorf("full unwind should restore the initial table")
	}
}
