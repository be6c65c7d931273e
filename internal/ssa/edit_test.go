package ssa_test

import (
	"strings"
	"testing"

	"github.com/tangzhangming/ssaopt/internal/ssa"
	"github.com/tangzhangming/ssaopt/internal/ssa/irtext"
)

const threeWay = `
func f(n:int) {
entry:
  c:bool = eq n, 0
  if c goto a else b
a:
  x = add n, 1
  goto join
b:
  goto join
join:
  m = phi [x, a], [n, b]
  return m
other:
  k = phi [1, c2]
  return k
c2:
  goto other
}
`

func TestRedirectEdge(t *testing.T) {
	f := irtext.MustParse(`
func f(n:int) {
entry:
  c:bool = eq n, 0
  if c goto a else b
a:
  goto j1
b:
  goto j1
j1:
  m = phi [1, a], [2, b]
  return m
j2:
  k = phi [3, j2pred]
  return k
j2pred:
  goto j2
}
`)
	b := f.BlockByName
	e := ssa.FindEdge(b("b"), b("j1"))
	pending := ssa.RedirectEdge(e, b("j2"))

	if len(pending) != 1 || pending[0].String() != "2" {
		t.Fatalf("expected pending [2], got %v", pending)
	}
	if len(b("j1").Preds) != 1 || len(b("j1").Phis[0].Incoming) != 1 {
		t.Errorf("j1 should have lost one predecessor and phi arg")
	}
	if e.Dest != b("j2") || e.DestIndex() != 1 {
		t.Errorf("edge should now be the second predecessor of j2")
	}

	ssa.FlushPending(e, pending)
	if got := ssa.PhiArg(b("j2").Phis[0], e); got.String() != "2" {
		t.Errorf("expected flushed arg 2, got %v", got)
	}
	if err := ssa.Verify(f); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestFlushPendingMismatch(t *testing.T) {
	f := irtext.MustParse(threeWay)
	b := f.BlockByName
	e := ssa.FindEdge(b("b"), b("join"))

	defer func() {
		if recover() == nil {
			t.Errorf("expected panic on phi count mismatch")
		}
	}()
	ssa.FlushPending(e, nil)
}

func TestRedirectSwitchEdge(t *testing.T) {
	f := irtext.MustParse(`
func f(n:int) {
entry:
  switch n [1: a, 2: b] default b
a:
  return
b:
  return
c:
  return
}
`)
	b := f.BlockByName
	ssa.RedirectEdge(ssa.FindEdge(f.Entry, b("b")), b("c"))

	sw := f.Entry.Last().(*ssa.Switch)
	if sw.Cases[1].Target != b("c") || sw.Default != b("c") {
		t.Errorf("switch targets should follow the redirected edge: %s", sw)
	}
}

func TestDuplicateBlock(t *testing.T) {
	f := irtext.MustParse(threeWay)
	a := f.BlockByName("a")

	c, vmap := ssa.DuplicateBlock(a)
	if !strings.HasPrefix(c.Name, "a_") {
		t.Errorf("copy should be named after the original, got %s", c.Name)
	}
	if len(c.Preds) != 0 || len(c.Succs) != 0 {
		t.Errorf("copy should start without edges")
	}

	x := f.ValueByName("x")
	nx, ok := vmap[x]
	if !ok || nx == x || nx.Def.Block() != c {
		t.Fatalf("x should be renamed in the copy")
	}

	ssa.CopyOutgoingEdges(a, c, vmap)
	join := f.BlockByName("join")
	e := ssa.FindEdge(c, join)
	if e == nil {
		t.Fatalf("copy should have an edge to join")
	}
	if got := ssa.PhiArg(join.Phis[0], e); got != nx {
		t.Errorf("phi arg on copied edge should be the renamed value, got %v", got)
	}
}

func TestRemoveUnreachableBlocks(t *testing.T) {
	f := irtext.MustParse(threeWay)
	if n := ssa.RemoveUnreachableBlocks(f); n != 2 {
		t.Fatalf("expected 2 unreachable blocks removed, got %d", n)
	}
	if f.BlockByName("other") != nil || f.BlockByName("c2") != nil {
		t.Errorf("unreachable blocks should be gone")
	}
	if err := ssa.Verify(f); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestFindTakenEdge(t *testing.T) {
	f := irtext.MustParse(`
func f(n:int, t:ptr) {
entry:
  c:bool = eq n, 0
  if c goto sw else ind
sw:
  switch n [1: a, 2: b] default ind
ind:
  goto *t [a, b]
a:
  return
b:
  return
}
`)
	b := f.BlockByName
	tests := []struct {
		block string
		val   ssa.Operand
		dest  string
	}{
		{"entry", ssa.BoolConst(true), "sw"},
		{"entry", ssa.BoolConst(false), "ind"},
		{"sw", ssa.IntConst(2), "b"},
		{"sw", ssa.IntConst(7), "ind"},
		{"ind", &ssa.LabelAddr{Block: b("a")}, "a"},
	}
	for _, tt := range tests {
		e := ssa.FindTakenEdge(b(tt.block), tt.val)
		if e == nil || e.Dest.Name != tt.dest {
			t.Errorf("%s with %s: expected edge to %s, got %v", tt.block, tt.val, tt.dest, e)
		}
	}
	if e := ssa.FindTakenEdge(f.Entry, f.ValueByName("c")); e != nil {
		t.Errorf("non-constant condition should not select an edge")
	}
}

func TestSubstitute(t *testing.T) {
	f := irtext.MustParse(threeWay)
	x := f.ValueByName("x").Def
	n := f.Params[0]

	c := ssa.Substitute(x, func(op ssa.Operand) ssa.Operand {
		if op == n {
			return ssa.IntConst(41)
		}
		return nil
	})
	if c.String() != "x = add 41, 1" {
		t.Errorf("unexpected substituted statement %q", c)
	}
	if x.String() != "x = add n, 1" {
		t.Errorf("original statement should be unchanged, got %q", x)
	}
	if c.Block() != nil {
		t.Errorf("substituted copy should not belong to a block")
	}
}
