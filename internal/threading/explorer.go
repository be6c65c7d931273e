// explorer.go - 前向跳转线程化的路径探索
//
// 从一条边 e 出发，沿 e.Dest 推导临时等价关系：
//  1. 记录边条件（e 是真分支还是假分支）
//  2. phi 在 e 上的参数
//  3. 块内语句的折叠结果
//
// 之后尝试把 e.Dest 末尾的控制语句化简为不变量。成功则得到一条以
// COPY_SRC_BLOCK 结尾的路径，并继续穿过后面的空块。
//
// 结果是三态的：
//   Negative  块不可复制（语句过多、volatile asm、phi 依赖同块 phi）
//   Zero      未能确定分支，可以作为汇合块继续尝试
//   Positive  找到路径
//
// 跨过回边后，化简回调切换为 NoSimplify，并且未能化简的定义会使旧的等价关系失效。

package threading

import (
	"go.uber.org/zap"

	"github.com/tangzhangming/ssaopt/internal/equiv"
	"github.com/tangzhangming/ssaopt/internal/fold"
	"github.com/tangzhangming/ssaopt/internal/ssa"
)

// Result 单个块的探索结果
type Result int

const (
	Negative Result = -1
	Zero     Result = 0
	Positive Result = 1
)

func (r Result) String() string {
	switch r {
	case Negative:
		return "negative"
	case Positive:
		return "positive"
	default:
		return "zero"
	}
}

// ============================================================================
// 探索上下文
// ============================================================================

// ExplorationContext 一次 ThreadAcrossEdge 调用的全部可变状态
type ExplorationContext struct {
	stack        *equiv.Stack
	avail        *AvailExprs
	visited      []bool
	path         Path
	backedgeSeen bool
	stmtCount    int
	simplify     SimplifyFunc
}

func (ctx *ExplorationContext) visit(b *ssa.Block) {
	ctx.visited[b.ID] = true
}

func (ctx *ExplorationContext) seen(b *ssa.Block) bool {
	return int(b.ID) < len(ctx.visited) && ctx.visited[b.ID]
}

func (ctx *ExplorationContext) resetVisited(blocks ...*ssa.Block) {
	for i := range ctx.visited {
		ctx.visited[i] = false
	}
	for _, b := range blocks {
		ctx.visit(b)
	}
}

// push 追加路径条目，经过回边时关闭化简回调
func (ctx *ExplorationContext) push(e *ssa.Edge, kind EdgeKind) {
	ctx.path = append(ctx.path, JumpThreadEdge{Edge: e, Kind: kind})
	ctx.crossed(e)
}

func (ctx *ExplorationContext) crossed(e *ssa.Edge) {
	if e.IsBack() {
		ctx.backedgeSeen = true
	}
	if ctx.backedgeSeen {
		ctx.simplify = NoSimplify
	}
}

func (ctx *ExplorationContext) pushMarker() {
	ctx.stack.PushMarker()
	ctx.avail.PushMarker()
}

func (ctx *ExplorationContext) unwind() {
	ctx.stack.Unwind()
	ctx.avail.Unwind()
}

// ============================================================================
// 探索器
// ============================================================================

// Explorer 前向路径探索器
type Explorer struct {
	fn       *ssa.Func
	registry *Registry
	tab      *equiv.Table
	maxStmts int
	simplify SimplifyFunc
	logger   *zap.Logger
}

// NewExplorer 创建探索器，simplify 为 nil 时使用 FoldSimplifier
func NewExplorer(fn *ssa.Func, registry *Registry, opts Options, simplify SimplifyFunc, logger *zap.Logger) *Explorer {
	if simplify == nil {
		simplify = FoldSimplifier
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Explorer{
		fn:       fn,
		registry: registry,
		tab:      equiv.NewTable(fn.NumValues()),
		maxStmts: opts.MaxDuplicationStmts,
		simplify: simplify,
		logger:   logger,
	}
}

func (x *Explorer) newContext() *ExplorationContext {
	return &ExplorationContext{
		stack:    equiv.NewStack(x.tab),
		avail:    NewAvailExprs(),
		visited:  make([]bool, x.fn.NumBlocks()),
		simplify: x.simplify,
	}
}

// ThreadAcrossEdge 从边 e 出发寻找线程化路径并登记
// e.Dest 无法确定分支时，把它当作汇合块，逐个尝试它的出边。
func (x *Explorer) ThreadAcrossEdge(e *ssa.Edge) Result {
	ctx := x.newContext()
	ctx.pushMarker()
	defer ctx.unwind()

	ctx.visit(e.Src)
	ctx.visit(e.Dest)
	ctx.crossed(e)

	r := x.threadThroughNormalBlock(ctx, e)
	switch r {
	case Positive:
		x.registry.Register(ctx.path)
		return Positive
	case Negative:
		x.registry.Discard(ctx.path)
		return Negative
	}

	// 空块不作为汇合块：单出边时已按转发块尝试过，多出边时无从确定走向
	if e.Dest.HasAbnormalOrEHOutgoing() || emptyBlock(e.Dest) {
		return Zero
	}

	// e.Dest 上的等价关系保留，每个出边在自己的标记下探索
	found := false
	count := ctx.stmtCount
	for _, taken := range e.Dest.Succs {
		if taken.IsBack() {
			continue
		}
		ctx.pushMarker()
		ctx.resetVisited(e.Src, e.Dest, taken.Dest)
		ctx.stmtCount = count
		ctx.path = ctx.path[:0]
		ctx.backedgeSeen = false
		ctx.simplify = x.simplify
		ctx.path = append(ctx.path, JumpThreadEdge{Edge: e, Kind: EdgeStart})
		ctx.crossed(e)
		ctx.push(taken, EdgeCopySrcJoinerBlock)

		ok := x.threadAroundEmptyBlocks(ctx, taken)
		if !ok {
			ok = x.threadThroughNormalBlock(ctx, ctx.path.Last().Edge) == Positive
		}
		if ok {
			x.registry.Register(ctx.path)
			found = true
		} else {
			x.registry.Discard(ctx.path)
		}
		ctx.unwind()
	}
	if found {
		return Positive
	}
	return Zero
}

// threadThroughNormalBlock 经边 e 进入 e.Dest，记录等价关系并尝试确定 e.Dest 的出边
func (x *Explorer) threadThroughNormalBlock(ctx *ExplorationContext, e *ssa.Edge) Result {
	b := e.Dest
	if b.HasAbnormalOrEHOutgoing() {
		return Negative
	}

	x.recordFromEdge(ctx, e)
	if !x.recordFromPhis(ctx, e) {
		return Negative
	}
	last, ok := x.recordFromStmts(ctx, b)
	if !ok {
		return Negative
	}
	if last == nil {
		if len(b.Phis) > 0 {
			return Zero
		}
		return x.forward(ctx, e)
	}

	ctl := b.Control()
	if ctl == nil {
		return Zero
	}
	cond := x.simplifyControl(ctx, ctl)
	if cond == nil || !ssa.IsInvariant(cond) {
		return Zero
	}

	taken := ssa.FindTakenEdge(b, cond)
	if taken == nil || taken.Dest == b || ctx.seen(taken.Dest) {
		return Zero
	}

	if len(ctx.path) == 0 {
		ctx.push(e, EdgeStart)
	}
	ctx.push(taken, EdgeCopySrcBlock)
	ctx.visit(taken.Dest)
	ctx.visit(b)

	x.threadAroundEmptyBlocks(ctx, taken)
	return Positive
}

// forward 穿过纯转发块 e.Dest，不需要确定分支
// 多个出边的空块结果为 Zero。
func (x *Explorer) forward(ctx *ExplorationContext, e *ssa.Edge) Result {
	next := e.Dest.SingleSucc()
	if next == nil || next.Flags.Any(ssa.EdgeAbnormal|ssa.EdgeEH) || next.Dest == e.Dest || ctx.seen(next.Dest) {
		return Zero
	}
	if len(ctx.path) == 0 {
		ctx.push(e, EdgeStart)
	}
	ctx.push(next, EdgeNoCopySrcBlock)
	ctx.visit(next.Dest)
	if x.threadAroundEmptyBlocks(ctx, next) {
		return Positive
	}
	return x.threadThroughNormalBlock(ctx, next)
}

// emptyBlock 块中没有 phi，也没有实际语句
func emptyBlock(b *ssa.Block) bool {
	if len(b.Phis) > 0 {
		return false
	}
	for _, s := range b.Stmts {
		if !ssa.IsIgnorable(s) {
			return false
		}
	}
	return true
}

// threadAroundEmptyBlocks 穿过无需复制的块：空的转发块，或只含可确定分支的控制语句的块
// 只有确定了某个分支时返回 true；纯转发不算收益。
func (x *Explorer) threadAroundEmptyBlocks(ctx *ExplorationContext, taken *ssa.Edge) bool {
	b := taken.Dest
	if len(b.Phis) > 0 {
		return false
	}

	var first ssa.Stmt
	for _, s := range b.Stmts {
		if !ssa.IsIgnorable(s) {
			first = s
			break
		}
	}

	if first == nil {
		next := b.SingleSucc()
		if next == nil || next.Flags.Any(ssa.EdgeAbnormal|ssa.EdgeEH) || ctx.seen(next.Dest) {
			return false
		}
		ctx.push(next, EdgeNoCopySrcBlock)
		ctx.visit(next.Dest)
		return x.threadAroundEmptyBlocks(ctx, next)
	}

	if !ssa.IsControl(first) || b.HasAbnormalOrEHOutgoing() {
		return false
	}
	cond := x.simplifyControl(ctx, first)
	if cond == nil || !ssa.IsInvariant(cond) {
		return false
	}
	next := ssa.FindTakenEdge(b, cond)
	if next == nil || ctx.seen(next.Dest) {
		return false
	}
	ctx.visit(next.Dest)
	ctx.push(next, EdgeNoCopySrcBlock)
	x.threadAroundEmptyBlocks(ctx, next)
	return true
}

// ============================================================================
// 记录等价关系
// ============================================================================

// recordFromEdge 记录经过 e 隐含的条件
func (x *Explorer) recordFromEdge(ctx *ExplorationContext, e *ssa.Edge) {
	switch ctl := e.Src.Control().(type) {
	case *ssa.Cond:
		isTrue := e.Flags.Has(ssa.EdgeTrue)
		if isTrue == e.Flags.Has(ssa.EdgeFalse) {
			return // 两个分支指向同一块
		}
		ctx.avail.Record(ctl.Op, ctl.X, ctl.Y, isTrue)
		x.recordCondValue(ctx, ctl.Op, ctl.X, ctl.Y, isTrue)

	case *ssa.Switch:
		v, ok := ssa.AsValue(ctl.Index)
		if !ok || e.Dest == ctl.Default {
			return
		}
		var val int64
		n := 0
		for _, c := range ctl.Cases {
			if c.Target == e.Dest {
				val = c.Val
				n++
			}
		}
		if n == 1 {
			ctx.stack.Record(v, ssa.ConstOf(v.Type(), val))
		}
	}
}

// recordCondValue 条件 "x op y" 的结果为 val 时，推出 x 的值
func (x *Explorer) recordCondValue(ctx *ExplorationContext, op ssa.Op, lhs, rhs ssa.Operand, val bool) {
	v, ok := ssa.AsValue(lhs)
	if !ok {
		return
	}

	// 布尔值由比较得到时，同时记录那个比较的结果
	if c, isConst := rhs.(*ssa.Const); isConst && v.Type() == ssa.TypeBool && (op == ssa.OpEq || op == ssa.OpNe) {
		bval := (c.Val != 0) == (op == ssa.OpEq)
		if !val {
			bval = !bval
		}
		ctx.stack.Record(v, ssa.BoolConst(bval))
		if def, isAssign := v.Def.(*ssa.Assign); isAssign && def.Op.IsComparison() {
			ctx.avail.Record(def.Op, def.X, def.Y, bval)
		}
		return
	}

	if (op == ssa.OpEq && val) || (op == ssa.OpNe && !val) {
		if ssa.IsInvariant(rhs) || isValue(rhs) {
			ctx.stack.Record(v, rhs)
		}
	}
}

// recordFromPhis 记录 phi 在边 e 上的参数
// phi 的参数由同块另一个 phi 定义时，复制后语义会改变，返回 false。
func (x *Explorer) recordFromPhis(ctx *ExplorationContext, e *ssa.Edge) bool {
	for _, phi := range e.Dest.Phis {
		src := ssa.PhiArg(phi, e)
		dst := phi.Dest
		if src == nil {
			continue
		}
		if v, ok := ssa.AsValue(src); ok && v != dst {
			if def, isPhi := v.Def.(*ssa.Phi); isPhi && def.Block() == e.Dest {
				return false
			}
		}
		if !dst.Type().IsVirtual() {
			ctx.stmtCount++
		}
		ctx.stack.Record(dst, src)
	}
	return true
}

// recordFromStmts 逐条处理块内语句，返回最后一条实际语句
// 遇到 volatile asm 或超出复制预算时返回 ok=false。
func (x *Explorer) recordFromStmts(ctx *ExplorationContext, b *ssa.Block) (last ssa.Stmt, ok bool) {
	tab := ctx.stack.Table()
	for _, s := range b.Stmts {
		if ssa.IsIgnorable(s) {
			continue
		}
		if asm, isAsm := s.(*ssa.Asm); isAsm && asm.Volatile {
			return nil, false
		}
		ctx.stmtCount++
		if ctx.stmtCount > x.maxStmts {
			return nil, false
		}
		last = s

		dest := s.Result()
		if dest == nil {
			continue
		}

		var cached ssa.Operand
		if a, isAssign := s.(*ssa.Assign); isAssign {
			if (a.Op == ssa.OpCopy || a.Op == ssa.OpAssertNonNull) && isValue(a.X) {
				cached = a.X
			} else {
				cached = fold.FoldStmt(a, tab.Valueize)
				if !usable(cached) {
					cached = ctx.simplify(ssa.Substitute(a, tab.Valueize), a, ctx.avail)
				}
			}
		}

		if usable(cached) {
			ctx.stack.Record(dest, cached)
		} else if ctx.backedgeSeen {
			ctx.stack.Invalidate(dest)
		}
	}
	return last, true
}

// ============================================================================
// 控制语句化简
// ============================================================================

// simplifyControl 用当前等价关系化简控制语句
// 条件跳转返回布尔常量；多路分支与计算跳转返回索引或目标的不变量。无法化简时返回 nil。
func (x *Explorer) simplifyControl(ctx *ExplorationContext, ctl ssa.Stmt) ssa.Operand {
	tab := ctx.stack.Table()

	switch s := ctl.(type) {
	case *ssa.Cond:
		op0, op1 := chase(tab, s.X), chase(tab, s.Y)
		code := s.Op
		if ssa.IsInvariant(op0) && !ssa.IsInvariant(op1) {
			op0, op1 = op1, op0
			code = code.Swap()
		}
		if c := fold.FoldCond(code, op0, op1); c != nil {
			return c
		}
		dummy := &ssa.Cond{Op: code, X: op0, Y: op1}
		if r := ctx.simplify(dummy, s, ctx.avail); r != nil && ssa.IsInvariant(r) {
			return r
		}
		if code == ssa.OpNe && ssa.IsZeroConst(op1) {
			return op0
		}
		return nil

	case *ssa.Switch:
		idx := chase(tab, s.Index)
		if ssa.IsInvariant(idx) {
			return idx
		}
		clone := ssa.Substitute(s, func(ssa.Operand) ssa.Operand { return idx })
		return ctx.simplify(clone, s, ctx.avail)

	case *ssa.Goto:
		target := chase(tab, s.Target)
		if ssa.IsInvariant(target) {
			return target
		}
		clone := ssa.Substitute(s, func(ssa.Operand) ssa.Operand { return target })
		return ctx.simplify(clone, s, ctx.avail)
	}
	return nil
}

// chase 沿等价链最多追两层；链上可能有环（穿过回边时的循环不变量）
func chase(tab *equiv.Table, op ssa.Operand) ssa.Operand {
	for i := 0; i < 2; i++ {
		v, ok := ssa.AsValue(op)
		if !ok {
			break
		}
		nv := tab.Value(v)
		if nv == nil {
			break
		}
		op = nv
	}
	return op
}

func isValue(op ssa.Operand) bool {
	_, ok := ssa.AsValue(op)
	return ok
}

// usable 只有 SSA 值与不变量可以作为等价值
func usable(op ssa.Operand) bool {
	return op != nil && (isValue(op) || ssa.IsInvariant(op))
}

// ============================================================================
// 候选块
// ============================================================================

// PotentiallyThreadable 块是否值得作为线程化目标：多前驱、多后继、末尾是控制语句
func PotentiallyThreadable(b *ssa.Block) bool {
	if len(b.Preds) < 2 || len(b.Succs) < 2 {
		return false
	}
	return b.Control() != nil
}
