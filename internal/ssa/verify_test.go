package ssa_test

import (
	"testing"

	"go.uber.org/multierr"

	"github.com/tangzhangming/ssaopt/internal/ssa"
	"github.com/tangzhangming/ssaopt/internal/ssa/irtext"
)

func TestVerifyAcceptsWellFormed(t *testing.T) {
	f := irtext.MustParse(nested)
	if err := ssa.Verify(f); err != nil {
		t.Errorf("unexpected errors: %v", err)
	}
}

func TestVerifyReportsAllProblems(t *testing.T) {
	f := irtext.MustParse(threeWay)
	join := f.BlockByName("join")
	entry := f.Entry

	// phi 少一个参数
	join.Phis[0].Incoming = join.Phis[0].Incoming[:1]
	// 条件跳转缺少假分支
	entry.Succs[1].Flags = 0

	errs := multierr.Errors(ssa.Verify(f))
	if len(errs) != 2 {
		t.Errorf("expected 2 problems, got %d: %v", len(errs), errs)
	}
}

func TestVerifyReturnWithSuccessor(t *testing.T) {
	f := irtext.MustParse(`
func f() {
entry:
  return
exit:
  return
}
`)
	ssa.AddEdge(f.Entry, f.BlockByName("exit"), 0)
	if err := ssa.Verify(f); err == nil {
		t.Errorf("return block with a normal successor should fail verification")
	}
	f.Entry.Succs[0].Flags = ssa.EdgeEH
	if err := ssa.Verify(f); err != nil {
		t.Errorf("eh successor after return is allowed: %v", err)
	}
}

func TestPrintFunc(t *testing.T) {
	f := irtext.MustParse(`
func f(p:ptr) returns_nonnull {
  local buf
entry:
  q:ptr = assert_nonnull p
  store volatile q, 0
  if eq p, null goto a else b
a:
  return &buf
b:
  return q
}
`)
	want := `func f(p:ptr) returns_nonnull {
  local buf
entry:
  q:ptr = assert_nonnull p
  store volatile q, 0
  if eq p, null goto a else b
a:
  return &buf
b:
  return q
}
`
	if got := f.String(); got != want {
		t.Errorf("unexpected output:\n%s\nwant:\n%s", got, want)
	}
}
