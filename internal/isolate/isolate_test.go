package isolate

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/tangzhangming/ssaopt/internal/errors"
	"github.com/tangzhangming/ssaopt/internal/ssa"
	"github.com/tangzhangming/ssaopt/internal/ssa/irtext"
)

func runIsolator(t *testing.T, f *ssa.Func, opts Options) (*errors.Collector, bool) {
	t.Helper()
	sink := &errors.Collector{}
	changed := New(opts, sink, zaptest.NewLogger(t)).Run(context.Background(), f)
	if err := ssa.Verify(f); err != nil {
		t.Fatalf("verify after isolation: %v\n%s", err, f)
	}
	return sink, changed
}

func equalCodes(got []string, want ...string) bool {
	return strings.Join(got, ",") == strings.Join(want, ",")
}

// TestIsolateNullPhiStore 测试 phi 空参数被解引用时只隔离该入边
func TestIsolateNullPhiStore(t *testing.T) {
	f := irtext.MustParse(`
func s2(q:ptr, c:bool) {
entry:
  if c goto A else B
A:
  goto X
B:
  goto X
X:
  p:ptr = phi [null, A], [q, B]
  store p, 5
  return
}
`)
	sink, changed := runIsolator(t, f, DefaultOptions())
	if !changed {
		t.Fatal("expected the function to change")
	}

	x := f.BlockByName("X")
	dup := f.BlockByName("A").SingleSucc().Dest
	if dup == x || !strings.HasPrefix(dup.Name, "X_") {
		t.Fatalf("A should enter a copy of X, got %s", dup.Name)
	}
	if len(dup.Succs) != 0 {
		t.Errorf("copy should have no successors")
	}
	if len(dup.Stmts) != 2 {
		t.Fatalf("copy should hold the store and a trap:\n%s", dup.Dump())
	}
	st, ok := dup.Stmts[0].(*ssa.Store)
	if !ok || !st.Volatile || !ssa.IsZeroConst(st.Val) {
		t.Errorf("store should become volatile with a zero value: %s", dup.Stmts[0])
	}
	if _, ok := dup.Stmts[1].(*ssa.Trap); !ok {
		t.Errorf("expected trap after the store, got %s", dup.Stmts[1])
	}

	if len(x.Preds) != 1 || x.Preds[0].Src.Name != "B" {
		t.Errorf("original X should only be reached from B")
	}
	if len(x.Stmts) != 2 || x.Stmts[0].(*ssa.Store).Volatile {
		t.Errorf("original X must not change:\n%s", x.Dump())
	}
	if !equalCodes(sink.Codes(), errors.W0502) {
		t.Errorf("unexpected diagnostics %v", sink.Codes())
	}
	if f.HasDominators() || f.HasPostDominators() || !f.LoopsNeedFixup() {
		t.Errorf("isolation should free dominance info and request a loop fixup")
	}
}

// TestIsolateSharesCopy 测试同一出错语句的多条入边共享一个副本
func TestIsolateSharesCopy(t *testing.T) {
	f := irtext.MustParse(`
func share(q:ptr, c:bool, d:bool) {
entry:
  if c goto A else M
M:
  if d goto B else C
A:
  goto X
B:
  goto X
C:
  goto X
X:
  p:ptr = phi [null, A], [null, B], [q, C]
  v = load p
  return v
}
`)
	before := len(f.Blocks)
	runIsolator(t, f, DefaultOptions())

	if len(f.Blocks) != before+1 {
		t.Fatalf("expected exactly one copy, have %d blocks (was %d)", len(f.Blocks), before)
	}
	dupA := f.BlockByName("A").SingleSucc().Dest
	dupB := f.BlockByName("B").SingleSucc().Dest
	if dupA != dupB || dupA.Name == "X" {
		t.Fatalf("A and B should share one copy, got %s and %s", dupA.Name, dupB.Name)
	}
	if len(dupA.Phis[0].Incoming) != 2 {
		t.Errorf("shared copy should merge both null arguments")
	}
	if x := f.BlockByName("X"); len(x.Preds) != 1 || x.Preds[0].Src.Name != "C" {
		t.Errorf("X should only be reached from C")
	}
}

// TestIsolateLocalReturnThroughPhi 测试 phi 参数为局部变量地址且在同块返回
func TestIsolateLocalReturnThroughPhi(t *testing.T) {
	f := irtext.MustParse(`
func rl(q:ptr, c:bool) {
  local x
entry:
  if c goto A else B
A:
  goto J
B:
  goto J
J:
  p:ptr = phi [&x, A], [q, B]
  return p
}
`)
	sink, _ := runIsolator(t, f, DefaultOptions())

	dup := f.BlockByName("A").SingleSucc().Dest
	if !strings.HasPrefix(dup.Name, "J_") {
		t.Fatalf("A should enter a copy of J, got %s", dup.Name)
	}
	ret, ok := dup.Last().(*ssa.Return)
	if !ok || !ssa.IsZeroConst(ret.Val) || ret.Val.Type() != ssa.TypePtr {
		t.Errorf("copy should return a null pointer: %s", dup.Dump())
	}
	if _, ok := f.BlockByName("J").Last().(*ssa.Return).Val.(*ssa.Value); !ok {
		t.Errorf("original J must still return the phi")
	}
	if !equalCodes(sink.Codes(), errors.W0504) {
		t.Errorf("unexpected diagnostics %v", sink.Codes())
	}
	if len(sink.Diagnostics[0].Labels) != 1 {
		t.Errorf("diagnostic should point at the local declaration")
	}
}

// TestIsolateDivisionByZeroPhi 测试 phi 的零参数作为除数
func TestIsolateDivisionByZeroPhi(t *testing.T) {
	const src = `
func dz(n:int, c:bool) {
entry:
  if c goto A else B
A:
  goto X
B:
  goto X
X:
  z = phi [0, A], [n, B]
  q = div 100, z
  return q
}
`
	tests := []struct {
		name     string
		division bool
		changed  bool
		codes    []string
	}{
		{"enabled", true, true, []string{errors.W0506}},
		{"disabled", false, false, nil},
	}
	for _, tt := range tests {
		f := irtext.MustParse(src)
		opts := DefaultOptions()
		opts.Division = tt.division
		sink, changed := runIsolator(t, f, opts)
		if changed != tt.changed {
			t.Errorf("%s: changed = %v, want %v", tt.name, changed, tt.changed)
		}
		if !equalCodes(sink.Codes(), tt.codes...) {
			t.Errorf("%s: unexpected diagnostics %v", tt.name, sink.Codes())
		}
		if !tt.changed {
			continue
		}
		dup := f.BlockByName("A").SingleSucc().Dest
		if len(dup.Stmts) != 1 {
			t.Errorf("%s: trap should replace the division:\n%s", tt.name, dup.Dump())
		} else if _, ok := dup.Stmts[0].(*ssa.Trap); !ok {
			t.Errorf("%s: expected a trap, got %s", tt.name, dup.Stmts[0])
		}
	}
}

// TestExplicitTruncation 测试显式出错语句之后的语句与出边全部删除
func TestExplicitTruncation(t *testing.T) {
	const tmpl = `
func t(p:ptr, n:int) {
entry:
  a = add n, 1
  %s
  store p, a
  if eq a, 0 goto L else R
L:
  return a
R:
  return n
}
`
	attr := DefaultOptions()
	attr.Attribute = true

	tests := []struct {
		name  string
		fault string
		opts  Options
		stmts int // 陷阱之前保留的语句数，-1 表示不修改
		code  string
	}{
		{"load", "v = load null", DefaultOptions(), 2, errors.W0501},
		{"store", "store null, a", DefaultOptions(), 2, errors.W0501},
		{"division", "v = div n, 0", DefaultOptions(), 1, errors.W0505},
		{"modulus", "v = mod n, 0", DefaultOptions(), 1, errors.W0505},
		{"nonnull", "call use(null) nonnull(1)", attr, 1, errors.W0507},
		{"nonnull-off", "call use(null) nonnull(1)", DefaultOptions(), -1, ""},
	}
	for _, tt := range tests {
		f := irtext.MustParse(fmt.Sprintf(tmpl, tt.fault))
		sink, changed := runIsolator(t, f, tt.opts)
		entry := f.Entry

		if tt.stmts < 0 {
			if changed || len(entry.Stmts) != 4 || len(entry.Succs) != 2 {
				t.Errorf("%s: expected no change:\n%s", tt.name, f)
			}
			continue
		}
		if len(entry.Stmts) != tt.stmts+1 {
			t.Errorf("%s: expected %d statements before the trap:\n%s", tt.name, tt.stmts, entry.Dump())
			continue
		}
		if _, ok := entry.Last().(*ssa.Trap); !ok {
			t.Errorf("%s: block should end in a trap", tt.name)
		}
		if len(entry.Succs) != 0 {
			t.Errorf("%s: trap block should have no successors", tt.name)
		}
		if tt.name == "store" {
			st := entry.Stmts[1].(*ssa.Store)
			if !st.Volatile || !ssa.IsZeroConst(st.Val) {
				t.Errorf("store should become volatile with a zero value: %s", st)
			}
		}
		if !equalCodes(sink.Codes(), tt.code) {
			t.Errorf("%s: unexpected diagnostics %v", tt.name, sink.Codes())
		}
	}
}

// TestExplicitIdempotent 测试重复运行不再修改
func TestExplicitIdempotent(t *testing.T) {
	sources := []string{`
func once(p:ptr) {
entry:
  v = load null
  store p, v
  return
}
`, `
func twice(q:ptr, c:bool) {
entry:
  if c goto A else B
A:
  goto X
B:
  goto X
X:
  p:ptr = phi [null, A], [q, B]
  store p, 5
  return
}
`}
	for _, src := range sources {
		f := irtext.MustParse(src)
		runIsolator(t, f, DefaultOptions())
		first := f.String()

		sink, changed := runIsolator(t, f, DefaultOptions())
		if changed || f.String() != first {
			t.Errorf("second run changed %s:\n%s\nwas:\n%s", f.Name, f, first)
		}
		if sink.Len() != 0 {
			t.Errorf("second run reported %v", sink.Codes())
		}
	}
}

// TestDereferenceWarnsWithoutIsolation 测试关闭隔离时仍然警告
func TestDereferenceWarnsWithoutIsolation(t *testing.T) {
	f := irtext.MustParse(`
func w(p:ptr) {
entry:
  v = load null
  return v
}
`)
	opts := DefaultOptions()
	opts.Dereference = false
	sink, changed := runIsolator(t, f, opts)
	if changed {
		t.Errorf("nothing should change:\n%s", f)
	}
	if !equalCodes(sink.Codes(), errors.W0501) {
		t.Errorf("unexpected diagnostics %v", sink.Codes())
	}

	opts.WarnNullDereference = false
	sink, _ = runIsolator(t, f, opts)
	if sink.Len() != 0 {
		t.Errorf("warning should be suppressed, got %v", sink.Codes())
	}
}

// TestReturnLocalAddr 测试返回局部变量地址
func TestReturnLocalAddr(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{"returns", `
func s3(n:int) {
  local x
entry:
  return &x
}
`, errors.W0503},
		{"may-return", `
func m(c:bool) {
  local x
entry:
  if c goto A else B
A:
  return &x
B:
  return null
}
`, errors.W0504},
		{"global", `
func g(n:int) {
  global x
entry:
  return &x
}
`, ""},
	}
	for _, tt := range tests {
		f := irtext.MustParse(tt.src)
		edges := len(f.Entry.Succs)
		sink, changed := runIsolator(t, f, DefaultOptions())

		if tt.code == "" {
			if changed || sink.Len() != 0 {
				t.Errorf("%s: address of a global must be left alone", tt.name)
			}
			continue
		}
		if !equalCodes(sink.Codes(), tt.code) {
			t.Errorf("%s: unexpected diagnostics %v", tt.name, sink.Codes())
			continue
		}
		d := sink.Diagnostics[0]
		if len(d.Labels) != 1 || d.Labels[0].Line != 3 {
			t.Errorf("%s: expected a declared-here label on line 3, got %+v", tt.name, d.Labels)
		}
		for _, b := range f.Blocks {
			if ret, ok := b.Last().(*ssa.Return); ok {
				if _, isAddr := ret.Val.(*ssa.AddrOf); isAddr {
					t.Errorf("%s: %s still returns a local address", tt.name, b.Name)
				}
			}
			if _, ok := b.Last().(*ssa.Trap); ok {
				t.Errorf("%s: no trap expected", tt.name)
			}
		}
		if len(f.Entry.Succs) != edges {
			t.Errorf("%s: edges must not change", tt.name)
		}
	}
}

// TestLockstep 测试同步遍历跳过标签与调试语句，找不到时报告内部错误
func TestLockstep(t *testing.T) {
	f := irtext.MustParse(`
func ls(p:ptr) {
entry:
  label top
  debug p
  store p, 5
  return
}
`)
	b := f.Entry
	dup, _ := ssa.DuplicateBlock(b)
	dup.RemoveAt(1)

	if j := lockstep(b, dup, b.Stmts[2]); j != 1 {
		t.Errorf("expected index 1 in the copy, got %d", j)
	}

	defer func() {
		if _, ok := errors.AsInternalError(recover()); !ok {
			t.Errorf("expected an internal compiler error")
		}
	}()
	lockstep(b, dup, &ssa.Trap{})
}

// TestEnabled 测试运行条件
func TestEnabled(t *testing.T) {
	tests := []struct {
		opts Options
		want bool
	}{
		{Options{}, false},
		{Options{WarnReturnLocalAddr: true}, false},
		{Options{WarnNullDereference: true}, true},
		{Options{Attribute: true}, true},
		{DefaultOptions(), true},
	}
	for _, tt := range tests {
		if got := New(tt.opts, nil, nil).Enabled(); got != tt.want {
			t.Errorf("Enabled(%+v) = %v, want %v", tt.opts, got, tt.want)
		}
	}
}
