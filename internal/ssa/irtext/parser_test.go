package irtext

import (
	"testing"

	"go.uber.org/multierr"

	"github.com/tangzhangming/ssaopt/internal/errors"
	"github.com/tangzhangming/ssaopt/internal/ssa"
)

const diamond = `
func f(p:ptr, n:int) {
entry:
  c:bool = eq n, 0
  if c goto a else b
a:
  goto join
b:
  x = add n, 1
  goto join
join:
  m = phi [x, b], [0, a]      ; 参数顺序与前驱顺序无关
  return m
}
`

func TestParseDiamond(t *testing.T) {
	f, err := ParseFunc("test.ssa", diamond)
	if err != nil {
		t.Fatalf("parse error:\n%s", Describe(err))
	}

	if f.Name != "f" {
		t.Errorf("expected name f, got %s", f.Name)
	}
	if len(f.Params) != 2 || f.Params[0].Type() != ssa.TypePtr {
		t.Fatalf("unexpected params %v", f.Params)
	}
	if len(f.Blocks) != 4 || f.Entry.Name != "entry" {
		t.Fatalf("expected 4 blocks starting at entry, got %d", len(f.Blocks))
	}

	entry := f.BlockByName("entry")
	if len(entry.Succs) != 2 {
		t.Fatalf("expected 2 successors, got %d", len(entry.Succs))
	}
	if !entry.Succs[0].Flags.Has(ssa.EdgeTrue) || entry.Succs[0].Dest.Name != "a" {
		t.Errorf("expected true edge to a, got %s", entry.Succs[0])
	}
	if !entry.Succs[1].Flags.Has(ssa.EdgeFalse) || entry.Succs[1].Dest.Name != "b" {
		t.Errorf("expected false edge to b, got %s", entry.Succs[1])
	}

	join := f.BlockByName("join")
	phi := join.Phis[0]
	for i, e := range join.Preds {
		want := "0"
		if e.Src.Name == "b" {
			want = "x"
		}
		if got := phi.Incoming[i].String(); got != want {
			t.Errorf("phi arg from %s: expected %s, got %s", e.Src.Name, want, got)
		}
	}

	c := f.ValueByName("c")
	if c.Type() != ssa.TypeBool {
		t.Errorf("comparison result should be bool, got %s", c.Type())
	}
	if c.Def == nil || c.Def.Block() != entry {
		t.Errorf("c should be defined in entry")
	}

	if err := ssa.Verify(f); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestParseRoundTrip(t *testing.T) {
	sources := []string{
		diamond,
		`
func g(p:ptr) returns_nonnull {
  local buf
  global tab
entry:
  v = load volatile p
  store p, v
  r:ptr = call lookup(p, &buf) nonnull(1)
  switch v [1: one, 2: two] default two
one:
  asm volatile "nop"
  goto two
two:
  q:ptr = phi [r, entry], [&tab, one]
  return q
}
`,
		`
func h(t:ptr) {
entry:
  goto *t [x, y]
x:
  nop
  debug i
  goto y, pad !eh
y:
  trap
pad:
  return
}
`,
	}

	for _, src := range sources {
		f, err := ParseFunc("test.ssa", src)
		if err != nil {
			t.Errorf("parse error:\n%s", Describe(err))
			continue
		}
		first := f.String()

		g, err := ParseFunc("test.ssa", first)
		if err != nil {
			t.Errorf("reparse error:\n%s\n%s", Describe(err), first)
			continue
		}
		if second := g.String(); second != first {
			t.Errorf("round trip mismatch:\n%s\n---\n%s", first, second)
		}
	}
}

func TestParseImplicitEntryAndFallthrough(t *testing.T) {
	f := MustParse(`
func k(n:int) {
  x = add n, 1
body:
  y = mul x, 2
exit:
  return y
}
`)
	if f.Entry.Name != "entry" {
		t.Fatalf("expected implicit entry block, got %s", f.Entry.Name)
	}
	if e := f.Entry.SingleSucc(); e == nil || e.Dest.Name != "body" {
		t.Errorf("entry should fall through to body")
	}
	if e := f.BlockByName("body").SingleSucc(); e == nil || e.Dest.Name != "exit" {
		t.Errorf("body should fall through to exit")
	}
	if len(f.BlockByName("exit").Succs) != 0 {
		t.Errorf("return block should have no successors")
	}
}

func TestParseBareCondition(t *testing.T) {
	f := MustParse(`
func k(p:ptr) {
entry:
  if p goto a else b
a:
  return
b:
  return
}
`)
	cond, ok := f.Entry.Last().(*ssa.Cond)
	if !ok {
		t.Fatalf("expected cond, got %T", f.Entry.Last())
	}
	if cond.Op != ssa.OpNe || !ssa.IsZeroConst(cond.Y) || cond.Y.Type() != ssa.TypePtr {
		t.Errorf("expected `ne p, null`, got %s", cond)
	}
}

func TestParseSameTargetCond(t *testing.T) {
	f := MustParse(`
func k(n:int) {
entry:
  if lt n, 4 goto a else a
a:
  return
}
`)
	if len(f.Entry.Succs) != 1 {
		t.Fatalf("expected a single merged edge, got %d", len(f.Entry.Succs))
	}
	if !f.Entry.Succs[0].Flags.Has(ssa.EdgeTrue | ssa.EdgeFalse) {
		t.Errorf("merged edge should carry both flags, got %s", f.Entry.Succs[0].Flags)
	}
}

func TestParseBackEdges(t *testing.T) {
	f := MustParse(`
func loop(n:int) {
entry:
  goto head
head:
  i = phi [0, entry], [j, body]
  c:bool = lt i, n
  if c goto body else exit
body:
  j = add i, 1
  goto head
exit:
  return i
}
`)
	body := f.BlockByName("body")
	if !body.Succs[0].IsBack() {
		t.Errorf("body->head should be a back edge")
	}
	if f.Entry.Succs[0].IsBack() {
		t.Errorf("entry->head should not be a back edge")
	}
	head := f.BlockByName("head")
	if !head.IsLoopHeader() || body.LoopDepth() != 1 {
		t.Errorf("expected natural loop headed by head")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  string
	}{
		{"undefined value", "func f() {\nentry:\n  return x\n}\n", errors.E0106},
		{"redefined value", "func f() {\nentry:\n  x = copy 1\n  x = copy 2\n  return x\n}\n", errors.E0107},
		{"undefined block", "func f() {\nentry:\n  goto nowhere\n}\n", errors.E0108},
		{"undefined branch target", "func f(n:int) {\nentry:\n  if eq n, 0 goto a else nowhere\na:\n  goto entry\n}\n", errors.E0108},
		{"undefined block in loop", "func f() {\nentry:\n  goto a\na:\n  goto b\nb:\n  goto a\nc:\n  goto missing\n}\n", errors.E0108},
		{"redefined block", "func f() {\nentry:\n  goto entry\nentry:\n  return\n}\n", errors.E0109},
		{"phi mismatch", "func f() {\nentry:\n  goto a\na:\n  x = phi [1, b]\n  return x\nb:\n  return\n}\n", errors.E0110},
		{"unknown op", "func f() {\nentry:\n  x = frob 1, 2\n  return x\n}\n", errors.E0111},
		{"undeclared local", "func f() {\nentry:\n  return &buf\n}\n", errors.E0112},
		{"unexpected char", "func f() {\nentry:\n  return $\n}\n", errors.E0101},
		{"missing comma", "func f(a:int) {\nentry:\n  x = add a 1\n  return x\n}\n", errors.E0104},
	}

	for _, tt := range tests {
		_, err := Parse("test.ssa", tt.input)
		if err == nil {
			t.Errorf("%s: expected error %s, got none", tt.name, tt.code)
			continue
		}
		found := false
		for _, e := range multierr.Errors(err) {
			if ce, ok := e.(*errors.CompileError); ok && ce.Code == tt.code {
				found = true
				if ce.Line == 0 {
					t.Errorf("%s: diagnostic has no position", tt.name)
				}
			}
		}
		if !found {
			t.Errorf("%s: expected %s, got:\n%s", tt.name, tt.code, Describe(err))
		}
	}
}

func TestParseRecoversAfterError(t *testing.T) {
	_, err := Parse("test.ssa", `
func f() {
entry:
  x = frob 1
  y = frob 2
  return
}
`)
	if n := len(multierr.Errors(err)); n != 2 {
		t.Errorf("expected 2 errors after recovery, got %d:\n%s", n, Describe(err))
	}
}

func TestParseMultipleFuncs(t *testing.T) {
	funcs, err := Parse("test.ssa", "func a() {\n  return\n}\n\nfunc b() {\n  return\n}\n")
	if err != nil {
		t.Fatalf("parse error:\n%s", Describe(err))
	}
	if len(funcs) != 2 || funcs[0].Name != "a" || funcs[1].Name != "b" {
		t.Errorf("expected functions a and b, got %d", len(funcs))
	}
	if _, err := ParseFunc("test.ssa", "func a() {\n  return\n}\nfunc b() {\n  return\n}\n"); err == nil {
		t.Errorf("ParseFunc should reject multiple functions")
	}
}
