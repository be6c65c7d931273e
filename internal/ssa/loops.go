package ssa

import (
	"context"
	"sort"

	"github.com/oleiade/lane"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ============================================================================
// 回边
// ============================================================================

// MarkDFSBackEdges 重新标记回边：DFS 中指向仍在栈上的块的边
// 返回是否存在回边
func MarkDFSBackEdges(f *Func) bool {
	for _, b := range f.Blocks {
		for _, e := range b.Succs {
			e.Flags &^= EdgeBack
		}
	}
	if f.Entry == nil {
		return false
	}
	const (
		unseen = iota
		onStack
		done
	)
	state := make([]int, f.NumBlocks())
	found := false
	type frame struct {
		b    *Block
		next int
	}
	stack := lane.NewStack()
	stack.Push(&frame{b: f.Entry})
	state[f.Entry.ID] = onStack
	for !stack.Empty() {
		fr := stack.Head().(*frame)
		if fr.next < len(fr.b.Succs) {
			e := fr.b.Succs[fr.next]
			fr.next++
			switch state[e.Dest.ID] {
			case unseen:
				state[e.Dest.ID] = onStack
				stack.Push(&frame{b: e.Dest})
			case onStack:
				e.Flags |= EdgeBack
				found = true
			}
			continue
		}
		stack.Pop()
		state[fr.b.ID] = done
	}
	return found
}

// ============================================================================
// 自然循环
// ============================================================================

// Loop 自然循环
type Loop struct {
	Header  *Block
	Latches []*Block
	Blocks  []*Block
	Outer   *Loop // 外层循环，最外层为 nil
	Depth   int   // 最外层循环深度为 1
}

// Contains 块是否在循环内（含内层循环）
func (l *Loop) Contains(b *Block) bool {
	for x := b.Loop; x != nil; x = x.Outer {
		if x == l {
			return true
		}
	}
	return false
}

// LoopForest 函数的全部循环
type LoopForest struct {
	Loops []*Loop
}

// Loops 返回函数的循环结构，需要修正时重新计算
func (f *Func) Loops(ctx context.Context) *LoopForest {
	if f.loops == nil || f.loopsNeedFixup {
		f.loops = ComputeLoops(ctx, f)
		f.loopsNeedFixup = false
	}
	return f.loops
}

// SetLoopsNeedFixup 标记循环结构已过期
func (f *Func) SetLoopsNeedFixup() { f.loopsNeedFixup = true }

// LoopsNeedFixup 循环结构是否已过期
func (f *Func) LoopsNeedFixup() bool { return f.loopsNeedFixup }

// ComputeLoops 计算自然循环并设置每个块的最内层所在循环
// 头结点不支配尾结点的回边（不可归约）不形成循环。
func ComputeLoops(ctx context.Context, f *Func) *LoopForest {
	_, span := domTracer.Start(ctx, "ssa.loops", trace.WithAttributes(
		attribute.String("func", f.Name),
	))
	defer span.End()

	dom := f.Dominators(ctx)
	byHeader := make(map[*Block]*Loop)
	var loops []*Loop
	members := make(map[*Loop][]bool)

	for _, b := range f.Blocks {
		b.Loop = nil
	}
	for _, b := range f.Blocks {
		for _, e := range b.Succs {
			h := e.Dest
			if !dom.Dominates(h, b) {
				continue
			}
			l := byHeader[h]
			if l == nil {
				l = &Loop{Header: h}
				byHeader[h] = l
				loops = append(loops, l)
				members[l] = make([]bool, f.NumBlocks())
				members[l][h.ID] = true
			}
			l.Latches = append(l.Latches, b)
			in := members[l]
			work := lane.NewStack()
			if !in[b.ID] {
				in[b.ID] = true
				work.Push(b)
			}
			for !work.Empty() {
				x := work.Pop().(*Block)
				for _, p := range x.Preds {
					if !in[p.Src.ID] && dom.Reached(p.Src) {
						in[p.Src.ID] = true
						work.Push(p.Src)
					}
				}
			}
		}
	}

	for _, l := range loops {
		in := members[l]
		for _, b := range f.Blocks {
			if in[b.ID] {
				l.Blocks = append(l.Blocks, b)
			}
		}
	}

	// 由大到小处理，块的最内层循环即最后一个包含它的循环
	sort.SliceStable(loops, func(i, j int) bool {
		return len(loops[i].Blocks) > len(loops[j].Blocks)
	})
	for _, l := range loops {
		for _, b := range l.Blocks {
			if b == l.Header && b.Loop != nil && b.Loop != l {
				l.Outer = b.Loop
			}
			b.Loop = l
		}
	}
	for _, l := range loops {
		d := 0
		for x := l; x != nil; x = x.Outer {
			d++
		}
		l.Depth = d
	}

	span.AddEvent("loops_found", trace.WithAttributes(attribute.Int("count", len(loops))))
	return &LoopForest{Loops: loops}
}

// LoopDepth 块所在循环深度，不在循环中为 0
func (b *Block) LoopDepth() int {
	if b.Loop == nil {
		return 0
	}
	return b.Loop.Depth
}

// IsLoopHeader 块是否为其所在循环的头
func (b *Block) IsLoopHeader() bool {
	return b.Loop != nil && b.Loop.Header == b
}
