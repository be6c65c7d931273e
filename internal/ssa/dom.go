// dom.go - 支配树与后支配树
//
// 使用 Cooper-Harvey-Kennedy 迭代算法：
//  1. 迭代 DFS 求逆后序
//  2. 按逆后序反复用 intersect 合并前驱的直接支配者，直到不动点
//
// 后支配树在反向图上计算，所有无后继的块连到一个虚拟出口。
// 结果缓存在 Func 上，CFG 变化后由修改方调用 Invalidate*。

package ssa

import (
	"context"

	"github.com/oleiade/lane"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var domTracer = otel.Tracer("ssaopt.ssa.dominators")

// DomTree 支配树（或后支配树）
type DomTree struct {
	post     bool
	idom     []*Block // 按块 ID 索引；根与不可达块为 nil
	reached  []bool
	children [][]*Block
	pre, end []int // DFS 进入与离开序号，用于 O(1) 支配查询
	roots    []*Block
}

// Idom 返回直接（后）支配者，根或不可达块返回 nil
func (t *DomTree) Idom(b *Block) *Block {
	if int(b.ID) >= len(t.idom) {
		return nil
	}
	return t.idom[b.ID]
}

// Children 返回在树中直接被 b 支配的块
func (t *DomTree) Children(b *Block) []*Block {
	if int(b.ID) >= len(t.children) {
		return nil
	}
	return t.children[b.ID]
}

// Reached 块是否在树中（支配树：从入口可达；后支配树：可达出口）
func (t *DomTree) Reached(b *Block) bool {
	return int(b.ID) < len(t.reached) && t.reached[b.ID]
}

// Dominates a 是否（后）支配 b，每个块都支配自己
func (t *DomTree) Dominates(a, b *Block) bool {
	if !t.Reached(a) || !t.Reached(b) {
		return false
	}
	return t.pre[a.ID] <= t.pre[b.ID] && t.end[b.ID] <= t.end[a.ID]
}

// Dominators 返回函数的支配树，结果被缓存
func (f *Func) Dominators(ctx context.Context) *DomTree {
	if f.dom == nil {
		f.dom = computeDomTree(ctx, f, false)
	}
	return f.dom
}

// PostDominators 返回函数的后支配树，结果被缓存
func (f *Func) PostDominators(ctx context.Context) *DomTree {
	if f.pdom == nil {
		f.pdom = computeDomTree(ctx, f, true)
	}
	return f.pdom
}

// InvalidateDominators 丢弃缓存的支配树
func (f *Func) InvalidateDominators() { f.dom = nil }

// InvalidatePostDominators 丢弃缓存的后支配树
func (f *Func) InvalidatePostDominators() { f.pdom = nil }

// HasDominators 支配树是否已计算且有效
func (f *Func) HasDominators() bool { return f.dom != nil }

// HasPostDominators 后支配树是否已计算且有效
func (f *Func) HasPostDominators() bool { return f.pdom != nil }

// ============================================================================
// 计算
// ============================================================================

// domGraph 以整数下标表示的图，post 模式下下标 n 为虚拟出口
type domGraph struct {
	byID  []*Block
	post  bool
	n     int
	root  int
	exits []int
}

func (g *domGraph) succs(x int) []int {
	if g.post {
		if x == g.n {
			return g.exits
		}
		return blockIDs(g.byID[x].Preds, true)
	}
	return blockIDs(g.byID[x].Succs, false)
}

func (g *domGraph) preds(x int) []int {
	if g.post {
		if x == g.n {
			return nil
		}
		b := g.byID[x]
		ids := blockIDs(b.Succs, false)
		if len(b.Succs) == 0 {
			ids = append(ids, g.n)
		}
		return ids
	}
	return blockIDs(g.byID[x].Preds, true)
}

func blockIDs(edges []*Edge, src bool) []int {
	ids := make([]int, 0, len(edges))
	for _, e := range edges {
		if src {
			ids = append(ids, int(e.Src.ID))
		} else {
			ids = append(ids, int(e.Dest.ID))
		}
	}
	return ids
}

func blocksByID(f *Func) []*Block {
	byID := make([]*Block, f.NumBlocks())
	for _, b := range f.Blocks {
		byID[b.ID] = b
	}
	return byID
}

type dfsFrame struct {
	node int
	next int
}

// postorder 迭代 DFS，返回后序
func (g *domGraph) postorder() []int {
	size := g.n
	if g.post {
		size++
	}
	seen := make([]bool, size)
	var order []int
	stack := lane.NewStack()
	stack.Push(&dfsFrame{node: g.root})
	seen[g.root] = true
	for !stack.Empty() {
		fr := stack.Head().(*dfsFrame)
		succ := g.succs(fr.node)
		if fr.next < len(succ) {
			s := succ[fr.next]
			fr.next++
			if !seen[s] {
				seen[s] = true
				stack.Push(&dfsFrame{node: s})
			}
			continue
		}
		stack.Pop()
		order = append(order, fr.node)
	}
	return order
}

func computeDomTree(ctx context.Context, f *Func, post bool) *DomTree {
	name := "ssa.dominators"
	if post {
		name = "ssa.post_dominators"
	}
	_, span := domTracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("func", f.Name),
		attribute.Int("block_count", len(f.Blocks)),
	))
	defer span.End()

	n := f.NumBlocks()
	g := &domGraph{byID: blocksByID(f), post: post, n: n}
	if post {
		g.root = n
		for _, b := range f.Blocks {
			if len(b.Succs) == 0 {
				g.exits = append(g.exits, int(b.ID))
			}
		}
	} else {
		if f.Entry == nil {
			span.AddEvent("empty_graph")
			return &DomTree{post: post}
		}
		g.root = int(f.Entry.ID)
	}

	order := g.postorder()
	span.AddEvent("postorder_complete", trace.WithAttributes(
		attribute.Int("reachable_nodes", len(order)),
	))

	size := n + 1
	num := make([]int, size)
	for i := range num {
		num[i] = -1
	}
	for i, x := range order {
		num[x] = i
	}
	idom := make([]int, size)
	for i := range idom {
		idom[i] = -1
	}
	idom[g.root] = g.root

	intersect := func(a, b int) int {
		for a != b {
			for num[a] < num[b] {
				a = idom[a]
			}
			for num[b] < num[a] {
				b = idom[b]
			}
		}
		return a
	}

	iterations := 0
	for changed := true; changed; {
		changed = false
		iterations++
		for i := len(order) - 1; i >= 0; i-- {
			x := order[i]
			if x == g.root {
				continue
			}
			nd := -1
			for _, p := range g.preds(x) {
				if num[p] < 0 || idom[p] < 0 {
					continue
				}
				if nd < 0 {
					nd = p
				} else {
					nd = intersect(p, nd)
				}
			}
			if nd >= 0 && idom[x] != nd {
				idom[x] = nd
				changed = true
			}
		}
	}
	span.AddEvent("algorithm_complete", trace.WithAttributes(
		attribute.Int("iterations", iterations),
	))

	t := &DomTree{
		post:     post,
		idom:     make([]*Block, n),
		reached:  make([]bool, n),
		children: make([][]*Block, n),
		pre:      make([]int, n),
		end:      make([]int, n),
	}
	for _, b := range f.Blocks {
		x := int(b.ID)
		if num[x] < 0 {
			continue
		}
		t.reached[x] = true
		d := idom[x]
		if d == x || d == g.n && post {
			t.roots = append(t.roots, b)
			continue
		}
		pb := g.byID[d]
		t.idom[x] = pb
		t.children[d] = append(t.children[d], b)
	}
	t.number()
	return t
}

// number 在树上做 DFS，记录进入与离开序号
func (t *DomTree) number() {
	clock := 0
	stack := lane.NewStack()
	for _, r := range t.roots {
		stack.Push(&dfsFrame{node: int(r.ID)})
		t.pre[r.ID] = clock
		clock++
		for !stack.Empty() {
			fr := stack.Head().(*dfsFrame)
			kids := t.children[fr.node]
			if fr.next < len(kids) {
				k := kids[fr.next]
				fr.next++
				t.pre[k.ID] = clock
				clock++
				stack.Push(&dfsFrame{node: int(k.ID)})
				continue
			}
			stack.Pop()
			t.end[fr.node] = clock
			clock++
		}
	}
}
