package threading

import (
	"context"
	"strings"
	"testing"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap/zaptest"

	"github.com/tangzhangming/ssaopt/internal/ssa"
	"github.com/tangzhangming/ssaopt/internal/ssa/irtext"
)

func testContext() context.Context { return context.Background() }

// TestApplyForwarder 测试复制并消去分支、跳过转发块
func TestApplyForwarder(t *testing.T) {
	f := irtext.MustParse(forwarder)
	x, reg := newExplorer(t, f, DefaultOptions(), nil)
	x.ThreadAcrossEdge(edge(t, f, "entry", "A"))

	if n := reg.Apply(testContext()); n != 1 {
		t.Fatalf("expected 1 applied path, got %d", n)
	}
	if err := ssa.Verify(f); err != nil {
		t.Fatalf("verify: %v", err)
	}

	var copyA *ssa.Block
	for _, e := range f.Entry.Succs {
		if e.Flags.Has(ssa.EdgeTrue) {
			copyA = e.Dest
		}
	}
	if copyA == nil || !strings.HasPrefix(copyA.Name, "A_") {
		t.Fatalf("entry should branch to a copy of A, got %v", copyA)
	}
	if copyA.Control() != nil {
		t.Errorf("copy should not keep the branch: %s", copyA.Dump())
	}
	if s := copyA.SingleSucc(); s == nil || s.Dest.Name != "C" {
		t.Errorf("copy should jump straight to C")
	}
	if len(f.BlockByName("A").Preds) != 0 {
		t.Errorf("original A should have lost its only predecessor")
	}
	if f.HasDominators() || !f.LoopsNeedFixup() {
		t.Errorf("apply should invalidate dominators and request a loop fixup")
	}
	if reg.Entries()[0].Status != StatusApplied {
		t.Errorf("expected applied status, got %s", reg.Entries()[0].Status)
	}
}

// TestThreadJumpsJoiner 测试驱动程序对汇合块的两条入边都完成线程化
func TestThreadJumpsJoiner(t *testing.T) {
	f := irtext.MustParse(joiner)
	reg, n := ThreadJumps(testContext(), f, DefaultOptions(), nil, zaptest.NewLogger(t))
	if reg.Len() != 2 || n != 2 {
		t.Fatalf("expected 2 registered and applied paths, got %d/%d", reg.Len(), n)
	}
	if err := ssa.Verify(f); err != nil {
		t.Fatalf("verify: %v", err)
	}

	tests := []struct {
		from, dest string
	}{
		{"L", "T"},
		{"R", "F"},
	}
	for _, tt := range tests {
		c := f.BlockByName(tt.from).SingleSucc().Dest
		if !strings.HasPrefix(c.Name, "J_") {
			t.Errorf("%s should enter a copy of J, got %s", tt.from, c.Name)
			continue
		}
		var trueDest string
		for _, e := range c.Succs {
			if e.Flags.Has(ssa.EdgeTrue) {
				trueDest = e.Dest.Name
			}
		}
		if trueDest != tt.dest {
			t.Errorf("copy entered from %s: true edge should go to %s, got %s", tt.from, tt.dest, trueDest)
		}
		if len(c.Phis) != 1 || len(c.Phis[0].Incoming) != 1 {
			t.Errorf("copy of J should keep its phi with one argument")
		}
	}

	if removed := ssa.RemoveUnreachableBlocks(f); removed != 2 {
		t.Errorf("J and K should be unreachable, removed %d", removed)
	}
}

// TestApplyCancelsEscapingValue 测试复制块中的值在出口之后被使用时取消
func TestApplyCancelsEscapingValue(t *testing.T) {
	f := irtext.MustParse(`
func esc(n:int) {
entry:
  if eq n, 0 goto A else B0
B0:
  goto A
A:
  t:bool = eq n, 0
  if t goto C else D
C:
  return t
D:
  return n
}
`)
	x, reg := newExplorer(t, f, DefaultOptions(), nil)
	if r := x.ThreadAcrossEdge(edge(t, f, "entry", "A")); r != Positive {
		t.Fatalf("expected positive, got %s", r)
	}
	if n := reg.Apply(testContext()); n != 0 {
		t.Fatalf("path should be cancelled, %d applied", n)
	}
	ent := reg.Entries()[0]
	if ent.Status != StatusCancelled || !strings.Contains(ent.Reason, "used in C") {
		t.Errorf("unexpected status %s (%s)", ent.Status, ent.Reason)
	}
	if edge(t, f, "entry", "A") == nil {
		t.Errorf("CFG must not change")
	}
}

// TestApplyCancelsStalePath 测试之前的修改使路径失效
func TestApplyCancelsStalePath(t *testing.T) {
	f := irtext.MustParse(forwarder)
	x, reg := newExplorer(t, f, DefaultOptions(), nil)
	x.ThreadAcrossEdge(edge(t, f, "entry", "A"))
	reg.Register(reg.Paths()[0])

	if n := reg.Apply(testContext()); n != 1 {
		t.Fatalf("expected only the first copy to apply, got %d", n)
	}
	second := reg.Entries()[1]
	if second.Status != StatusCancelled || !strings.Contains(second.Reason, "does not lead to") {
		t.Errorf("unexpected status %s (%s)", second.Status, second.Reason)
	}

	// 再次应用不会重复处理
	if n := reg.Apply(testContext()); n != 0 {
		t.Errorf("second apply should do nothing, got %d", n)
	}
}

// TestRegistryJSON 测试路径转储
func TestRegistryJSON(t *testing.T) {
	f := irtext.MustParse(forwarder)
	x, reg := newExplorer(t, f, DefaultOptions(), nil)
	x.ThreadAcrossEdge(edge(t, f, "entry", "A"))

	data, err := json.Marshal(reg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got struct {
		Func  string `json:"func"`
		Paths []struct {
			Edges []struct {
				Src, Dest, Kind string
			} `json:"edges"`
			Status string `json:"status"`
		} `json:"paths"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, data)
	}
	if got.Func != "fwd" || len(got.Paths) != 1 {
		t.Fatalf("unexpected dump %s", data)
	}
	edges := got.Paths[0].Edges
	if len(edges) != 3 || edges[0].Kind != "START" || edges[2].Src != "B" || edges[2].Kind != "NO_COPY_SRC_BLOCK" {
		t.Errorf("unexpected edges %s", data)
	}
	if got.Paths[0].Status != "pending" {
		t.Errorf("expected pending status, got %s", got.Paths[0].Status)
	}
}
