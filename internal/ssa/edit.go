package ssa

import (
	"fmt"

	"github.com/oleiade/lane"
)

// ============================================================================
// 边的增删与重定向
// ============================================================================

// AddEdge 添加 src 到 dest 的边，dest 的每个 phi 追加一个空参数
func AddEdge(src, dest *Block, flags EdgeFlags) *Edge {
	e := &Edge{Src: src, Dest: dest, Flags: flags}
	src.Succs = append(src.Succs, e)
	dest.Preds = append(dest.Preds, e)
	for _, p := range dest.Phis {
		p.Incoming = append(p.Incoming, nil)
	}
	return e
}

// RemoveEdge 删除边，同时删除 dest 中 phi 对应的参数
func RemoveEdge(e *Edge) {
	if i := e.DestIndex(); i >= 0 {
		removePred(e.Dest, i)
	}
	for i, s := range e.Src.Succs {
		if s == e {
			e.Src.Succs = append(e.Src.Succs[:i], e.Src.Succs[i+1:]...)
			break
		}
	}
}

func removePred(b *Block, i int) {
	b.Preds = append(b.Preds[:i], b.Preds[i+1:]...)
	for _, p := range b.Phis {
		p.Incoming = append(p.Incoming[:i], p.Incoming[i+1:]...)
	}
}

// RedirectEdge 将边的目标改为 dest
// 返回原目标中各 phi 在该边上的参数（按 phi 顺序）；新目标的 phi 追加空参数，由调用方填写。
// src 末尾为多路分支时同步修改其目标。
func RedirectEdge(e *Edge, dest *Block) []Operand {
	old := e.Dest
	var pending []Operand
	if i := e.DestIndex(); i >= 0 {
		for _, p := range old.Phis {
			pending = append(pending, p.Incoming[i])
		}
		removePred(old, i)
	}
	if sw, ok := e.Src.Control().(*Switch); ok {
		for i := range sw.Cases {
			if sw.Cases[i].Target == old {
				sw.Cases[i].Target = dest
			}
		}
		if sw.Default == old {
			sw.Default = dest
		}
	}
	e.Dest = dest
	dest.Preds = append(dest.Preds, e)
	for _, p := range dest.Phis {
		p.Incoming = append(p.Incoming, nil)
	}
	return pending
}

// FlushPending 把 RedirectEdge 返回的参数填入 e.Dest 的 phi，要求 phi 个数一致
func FlushPending(e *Edge, pending []Operand) {
	if len(pending) != len(e.Dest.Phis) {
		panic(fmt.Sprintf("ssa: %d pending phi args for %d phis in %s", len(pending), len(e.Dest.Phis), e.Dest.Name))
	}
	i := e.DestIndex()
	for k, p := range e.Dest.Phis {
		p.Incoming[i] = pending[k]
	}
}

// PhiArg 返回 phi 在边 e 上的参数
func PhiArg(p *Phi, e *Edge) Operand {
	i := e.DestIndex()
	if i < 0 || i >= len(p.Incoming) {
		return nil
	}
	return p.Incoming[i]
}

// ============================================================================
// 块复制
// ============================================================================

// DuplicateBlock 复制块的 phi 与语句，返回副本及旧值到新值的映射
// 副本没有任何边；块内定义、块内使用的值已替换为新值。
func DuplicateBlock(b *Block) (*Block, map[*Value]*Value) {
	f := b.Func
	c := f.NewBlock("")
	c.Name = fmt.Sprintf("%s_%d", b.Name, c.ID)
	c.Loop = b.Loop
	vmap := make(map[*Value]*Value)

	fresh := func(v *Value) *Value {
		nv := f.NewValue("", v.Type())
		nv.Name = fmt.Sprintf("%s_%d", v.Name, nv.ID)
		vmap[v] = nv
		return nv
	}

	for _, p := range b.Phis {
		np := &Phi{Dest: fresh(p.Dest)}
		np.pos = p.pos
		c.AddPhi(np)
	}
	for _, s := range b.Stmts {
		ns := CloneStmt(s)
		for i, op := range ns.Args() {
			ns.SetArg(i, MapOperand(op, vmap))
		}
		if v := s.Result(); v != nil {
			setResult(ns, fresh(v))
		}
		c.Append(ns)
	}
	return c, vmap
}

// CopyOutgoingEdges 为副本 c 添加与 orig 相同的出边（去掉回边标志），phi 参数经 vmap 映射
func CopyOutgoingEdges(orig, c *Block, vmap map[*Value]*Value) {
	for _, e := range orig.Succs {
		ne := AddEdge(c, e.Dest, e.Flags&^EdgeBack)
		i, j := e.DestIndex(), ne.DestIndex()
		for _, p := range e.Dest.Phis {
			p.Incoming[j] = MapOperand(p.Incoming[i], vmap)
		}
	}
}

// MapOperand 按映射替换 SSA 值，其他操作数原样返回
func MapOperand(op Operand, vmap map[*Value]*Value) Operand {
	if v, ok := AsValue(op); ok {
		if nv, ok := vmap[v]; ok {
			return nv
		}
	}
	return op
}

func setResult(s Stmt, v *Value) {
	switch s := s.(type) {
	case *Assign:
		s.Dest = v
	case *Call:
		s.Dest = v
	case *Phi:
		s.Dest = v
	default:
		panic(fmt.Sprintf("ssa: %T defines no value", s))
	}
}

// ============================================================================
// 不可达块清理
// ============================================================================

// ReachableBlocks 返回从入口可达的块集合
func ReachableBlocks(f *Func) []bool {
	reachable := make([]bool, f.NumBlocks())
	if f.Entry == nil {
		return reachable
	}
	stack := lane.NewStack()
	stack.Push(f.Entry)
	reachable[f.Entry.ID] = true
	for !stack.Empty() {
		b := stack.Pop().(*Block)
		for _, e := range b.Succs {
			if !reachable[e.Dest.ID] {
				reachable[e.Dest.ID] = true
				stack.Push(e.Dest)
			}
		}
	}
	return reachable
}

// RemoveUnreachableBlocks 删除从入口不可达的块，返回删除的块数
func RemoveUnreachableBlocks(f *Func) int {
	reachable := ReachableBlocks(f)
	removed := 0
	live := f.Blocks[:0]
	for _, b := range f.Blocks {
		if reachable[b.ID] {
			live = append(live, b)
			continue
		}
		for len(b.Succs) > 0 {
			RemoveEdge(b.Succs[0])
		}
		removed++
	}
	for i := len(live); i < len(f.Blocks); i++ {
		f.Blocks[i] = nil
	}
	f.Blocks = live
	if removed > 0 {
		f.InvalidateDominators()
		f.InvalidatePostDominators()
		f.SetLoopsNeedFixup()
	}
	return removed
}
