// apply.go - 按登记的路径修改 CFG
//
// 路径 [e0, e1, ..., en]：e0 是入口边，ek (k>=1) 的源块 Bk 按条目类型处理：
//   COPY_SRC_BLOCK         复制 Bk，删除控制语句，只保留路径上的出边
//   COPY_SRC_JOINER_BLOCK  复制 Bk，保留全部出边
//   FSM_THREAD             同上
//   NO_COPY_SRC_BLOCK      跳过 Bk；状态机路径的最后一个条目除外，它的块被复制并消去分支
//
// e0 重定向到第一个副本，副本依次相连，最后一个副本连到 en.Dest。
// 副本 phi 的参数取原块在路径入边上的参数，经已复制块的值映射替换。
//
// 路径在登记后可能失效（之前应用的路径改动了 CFG），应用前逐条检查，失效则取消。

package threading

import (
	"context"
	"fmt"

	"github.com/oleiade/lane"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tangzhangming/ssaopt/internal/ssa"
)

var tracer = otel.Tracer("ssaopt.threading")

// step 路径上一个源块的处理方式
type step struct {
	block     *ssa.Block
	in, out   *ssa.Edge // 路径上进入、离开该块的边
	copy      bool
	keepExits bool
}

// Apply 依次应用全部待处理路径，返回成功应用的路径数
func (r *Registry) Apply(ctx context.Context) int {
	_, span := tracer.Start(ctx, "threading.apply", trace.WithAttributes(
		attribute.String("func", r.fn.Name),
		attribute.Int("paths", len(r.entries)),
	))
	defer span.End()

	applied := 0
	for _, ent := range r.entries {
		if ent.Status != StatusPending {
			continue
		}
		steps, reason := r.plan(ent.Path)
		if reason == "" {
			reason = r.checkSSA(ent.Path, steps)
		}
		if reason != "" {
			ent.Status = StatusCancelled
			ent.Reason = reason
			r.logger.Debug("cancelling jump thread",
				zap.Stringer("path", ent.Path),
				zap.String("reason", reason))
			continue
		}
		r.applyPath(ent.Path, steps)
		ent.Status = StatusApplied
		applied++
		r.logger.Debug("threaded jump", zap.Stringer("path", ent.Path))
	}

	if applied > 0 {
		r.fn.InvalidateDominators()
		r.fn.InvalidatePostDominators()
		r.fn.SetLoopsNeedFixup()
		ssa.MarkDFSBackEdges(r.fn)
	}
	span.AddEvent("applied", trace.WithAttributes(attribute.Int("count", applied)))
	return applied
}

// ============================================================================
// 检查
// ============================================================================

// plan 对照当前 CFG 检查路径，返回每个源块的处理方式；路径失效时返回原因
func (r *Registry) plan(p Path) ([]step, string) {
	if len(p) < 2 {
		return nil, "path too short"
	}

	for i, je := range p {
		e := je.Edge
		if !hasSucc(e.Src, e) {
			return nil, fmt.Sprintf("edge %s no longer exists", e)
		}
		if e.Flags.Any(ssa.EdgeAbnormal | ssa.EdgeEH) {
			return nil, fmt.Sprintf("edge %s is abnormal", e)
		}
		if i+1 < len(p) && e.Dest != p[i+1].Edge.Src {
			return nil, fmt.Sprintf("edge %s does not lead to %s", e, p[i+1].Edge.Src)
		}
	}
	if _, ok := p[0].Edge.Src.Control().(*ssa.Goto); ok {
		return nil, "entry edge leaves a computed goto"
	}

	seen := make(map[*ssa.Block]bool)
	for _, je := range p[1:] {
		if seen[je.Edge.Src] {
			return nil, fmt.Sprintf("block %s appears twice", je.Edge.Src)
		}
		seen[je.Edge.Src] = true
	}
	final := p.Last().Edge.Dest
	if seen[final] {
		return nil, fmt.Sprintf("block %s appears twice", final)
	}

	fsm := p.IsFSM()
	steps := make([]step, 0, len(p)-1)
	for k := 1; k < len(p); k++ {
		je := p[k]
		st := step{block: je.Edge.Src, in: p[k-1].Edge, out: je.Edge}
		switch je.Kind {
		case EdgeCopySrcBlock:
			st.copy = true
		case EdgeCopySrcJoinerBlock, EdgeFSMThread:
			st.copy, st.keepExits = true, true
		case EdgeNoCopySrcBlock:
			st.copy = fsm && k == len(p)-1
		default:
			return nil, fmt.Sprintf("unexpected %s entry", je.Kind)
		}

		b := st.block
		if !st.copy {
			if len(b.Phis) > 0 {
				return nil, fmt.Sprintf("bypassed block %s has phis", b)
			}
			for _, s := range b.Stmts {
				if !ssa.IsIgnorable(s) && !ssa.IsControl(s) {
					return nil, fmt.Sprintf("bypassed block %s has side effects", b)
				}
			}
		}
		if st.keepExits {
			if _, ok := b.Control().(*ssa.Goto); ok {
				return nil, fmt.Sprintf("cannot retarget computed goto in %s", b)
			}
		}
		steps = append(steps, st)
	}
	// 没有副本时入口边直接连到终点，不能与入口块的其他出边重复
	if nextCopy(steps, -1) < 0 {
		src := p[0].Edge.Src
		for _, e := range src.Succs {
			if e != p[0].Edge && e.Dest == final {
				return nil, fmt.Sprintf("%s already has an edge to %s", src, final)
			}
		}
	}

	// 保留出边的副本，路径出边最终连到原块时不能与其他出边重复
	for i, st := range steps {
		if !st.keepExits || nextCopy(steps, i) >= 0 {
			continue
		}
		for _, e := range st.block.Succs {
			if e != st.out && e.Dest == final {
				return nil, fmt.Sprintf("copy of %s would have two edges to %s", st.block, final)
			}
		}
	}
	return steps, ""
}

// checkSSA 复制块中定义的值，不能在新路径不经过原定义块就能到达的原块中使用
// 副本的出口绕过了原定义块，这些使用点不再被定义支配。
func (r *Registry) checkSSA(p Path, steps []step) string {
	defs := make(map[*ssa.Value]*ssa.Block)
	roots := []*ssa.Block{p.Last().Edge.Dest}
	for _, st := range steps {
		if !st.copy {
			continue
		}
		for _, phi := range st.block.Phis {
			defs[phi.Dest] = st.block
		}
		for _, s := range st.block.Stmts {
			if v := s.Result(); v != nil {
				defs[v] = st.block
			}
		}
		if st.keepExits {
			for _, e := range st.block.Succs {
				if e != st.out {
					roots = append(roots, e.Dest)
				}
			}
		}
	}
	if len(defs) == 0 {
		return ""
	}

	reaches := make(map[*ssa.Block][]bool)
	escapes := func(op ssa.Operand, at *ssa.Block) string {
		v, ok := ssa.AsValue(op)
		if !ok {
			return ""
		}
		def, ok := defs[v]
		if !ok || def == at {
			return ""
		}
		reach, ok := reaches[def]
		if !ok {
			reach = reachableAvoiding(r.fn, roots, def)
			reaches[def] = reach
		}
		if !reach[at.ID] {
			return ""
		}
		return fmt.Sprintf("%s defined in copied block %s is used in %s", v, def, at)
	}

	for _, b := range r.fn.Blocks {
		for _, phi := range b.Phis {
			for i, arg := range phi.Incoming {
				if msg := escapes(arg, b.Preds[i].Src); msg != "" {
					return msg
				}
			}
		}
		for _, s := range b.Stmts {
			for _, arg := range s.Args() {
				if msg := escapes(arg, b); msg != "" {
					return msg
				}
			}
		}
	}
	return ""
}

func hasSucc(b *ssa.Block, e *ssa.Edge) bool {
	for _, s := range b.Succs {
		if s == e {
			return true
		}
	}
	return false
}

// nextCopy 返回 i 之后第一个需要复制的步骤下标，没有则为 -1
func nextCopy(steps []step, i int) int {
	for j := i + 1; j < len(steps); j++ {
		if steps[j].copy {
			return j
		}
	}
	return -1
}

// reachableAvoiding 从 roots 出发、不经过 barrier 可达的块
func reachableAvoiding(f *ssa.Func, roots []*ssa.Block, barrier *ssa.Block) []bool {
	reach := make([]bool, f.NumBlocks())
	stack := lane.NewStack()
	for _, b := range roots {
		if b != barrier && !reach[b.ID] {
			reach[b.ID] = true
			stack.Push(b)
		}
	}
	for !stack.Empty() {
		b := stack.Pop().(*ssa.Block)
		for _, e := range b.Succs {
			if e.Dest != barrier && !reach[e.Dest.ID] {
				reach[e.Dest.ID] = true
				stack.Push(e.Dest)
			}
		}
	}
	return reach
}

// ============================================================================
// 修改
// ============================================================================

// applyPath 复制路径上的块并重定向入口边；调用前 plan 与 checkSSA 已通过
func (r *Registry) applyPath(p Path, steps []step) {
	acc := make(map[*ssa.Value]*ssa.Value)

	// 待连接的出口：exit 非空时重定向它，否则从 exitSrc 新建一条边
	exit := p[0].Edge
	var exitSrc *ssa.Block
	connect := func(target *ssa.Block, args []ssa.Operand) {
		if exit != nil {
			ssa.RedirectEdge(exit, target)
			ssa.FlushPending(exit, args)
			return
		}
		ssa.FlushPending(ssa.AddEdge(exitSrc, target, 0), args)
	}

	for _, st := range steps {
		if !st.copy {
			continue
		}
		args := phiArgs(st.block, st.in, acc)
		c, vmap := ssa.DuplicateBlock(st.block)
		for v, nv := range vmap {
			acc[v] = nv
		}
		for _, s := range c.Stmts {
			for i, op := range s.Args() {
				s.SetArg(i, ssa.MapOperand(op, acc))
			}
		}
		connect(c, args)

		if st.keepExits {
			ssa.CopyOutgoingEdges(st.block, c, acc)
			exit, exitSrc = c.Succs[succIndex(st.block, st.out)], nil
		} else {
			if ctl := c.Control(); ctl != nil {
				c.Truncate(c.IndexOf(ctl))
			}
			exit, exitSrc = nil, c
		}
	}

	last := p.Last().Edge
	connect(last.Dest, phiArgs(last.Dest, last, acc))
}

// phiArgs 块 b 的各 phi 在边 e 上的参数，经 acc 映射
func phiArgs(b *ssa.Block, e *ssa.Edge, acc map[*ssa.Value]*ssa.Value) []ssa.Operand {
	args := make([]ssa.Operand, len(b.Phis))
	for i, phi := range b.Phis {
		args[i] = ssa.MapOperand(ssa.PhiArg(phi, e), acc)
	}
	return args
}

func succIndex(b *ssa.Block, e *ssa.Edge) int {
	for i, s := range b.Succs {
		if s == e {
			return i
		}
	}
	panic(fmt.Sprintf("threading: %s is not a successor edge of %s", e, b))
}
