// fsm.go - 后向状态机线程化
//
// 状态机循环的典型形态：
//
//	loop:
//	  state = phi [0, entry], [s1, a], [s2, b]
//	  switch state ...
//
// 从控制语句的操作数出发，沿 phi 链向后寻找常量参数。找到常量 c 时，
// 从 c 所在的前驱块到控制块的路径上，控制语句必然走 c 对应的出边。
//
// 限制：
//   - 只穿过 phi 定义，最多穿过一个循环头的 phi
//   - 相邻定义块之间只能有一条路径
//   - 路径长度、路径上的语句数、每个函数登记的路径数都有上限
//   - 路径不能跨越循环

package threading

import (
	"go.uber.org/zap"

	"github.com/tangzhangming/ssaopt/internal/fold"
	"github.com/tangzhangming/ssaopt/internal/ssa"
)

// FSMThreader 后向线程化器，每个函数一个实例
type FSMThreader struct {
	fn       *ssa.Func
	registry *Registry
	opts     Options
	budget   int // 本函数还能登记的路径数
	logger   *zap.Logger

	ctl ssa.Stmt // 当前搜索的控制语句
}

// NewFSMThreader 创建后向线程化器
func NewFSMThreader(fn *ssa.Func, registry *Registry, opts Options, logger *zap.Logger) *FSMThreader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FSMThreader{
		fn:       fn,
		registry: registry,
		opts:     opts,
		budget:   opts.MaxFSMPaths,
		logger:   logger,
	}
}

// FindJumpThreadsBackwards 为块 b 的控制语句寻找后向路径，返回登记的路径数
// 调用前块的循环信息必须是最新的。
func (t *FSMThreader) FindJumpThreadsBackwards(b *ssa.Block) int {
	ctl := b.Control()
	var name *ssa.Value
	switch s := ctl.(type) {
	case *ssa.Switch:
		name, _ = ssa.AsValue(s.Index)
	case *ssa.Goto:
		name, _ = ssa.AsValue(s.Target)
	case *ssa.Cond:
		v, ok := ssa.AsValue(s.X)
		if _, isConst := s.Y.(*ssa.Const); ok && isConst && (v.Type().IsIntegral() || v.Type().IsPointer()) {
			name = v
		}
	}
	if name == nil {
		return 0
	}

	t.ctl = ctl
	before := t.registry.Len()
	path := []*ssa.Block{b}
	t.walk(name, make(map[*ssa.Block]bool), &path, false)
	return t.registry.Len() - before
}

// walk 沿 expr 的 phi 定义向后搜索；path[0] 是控制块，path 末尾是当前位置
func (t *FSMThreader) walk(expr *ssa.Value, visited map[*ssa.Block]bool, path *[]*ssa.Block, seenLoopPhi bool) {
	phi, ok := expr.Def.(*ssa.Phi)
	if !ok {
		return
	}
	varBB := phi.Block()
	if varBB == nil || visited[varBB] {
		return
	}
	visited[varBB] = true

	if varBB.IsLoopHeader() {
		if seenLoopPhi {
			return
		}
		seenLoopPhi = true
	}

	// 从 path 末尾走到 varBB：只允许唯一的路径
	nextLen := 0
	if last := (*path)[len(*path)-1]; varBB != last {
		var next []*ssa.Block
		count := 0
		for _, e := range last.Preds {
			if findThreadPath(varBB, e.Src, &next, make(map[*ssa.Block]bool)) {
				count++
			}
			if count > 1 {
				return
			}
		}
		if count == 0 {
			return
		}
		*path = append(*path, next...)
		nextLen = len(next)
	}

	for i, arg := range phi.Incoming {
		bbi := varBB.Preds[i].Src
		if arg == nil || varBB.Loop != bbi.Loop {
			continue
		}
		if v, ok := ssa.AsValue(arg); ok {
			*path = append(*path, bbi)
			t.walk(v, visited, path, seenLoopPhi)
			*path = (*path)[:len(*path)-1]
			continue
		}
		if !ssa.IsInvariant(arg) {
			continue
		}
		t.record(*path, bbi, arg)
	}

	if nextLen > 0 {
		*path = (*path)[:len(*path)-nextLen]
	}
}

// findThreadPath 从 start 前向搜索 end，找到时按 end 到 start 的顺序追加到 path
func findThreadPath(start, end *ssa.Block, path *[]*ssa.Block, visited map[*ssa.Block]bool) bool {
	if start == end {
		*path = append(*path, start)
		return true
	}
	if visited[start] {
		return false
	}
	visited[start] = true
	for _, e := range start.Succs {
		if findThreadPath(e.Dest, end, path, visited) {
			*path = append(*path, start)
			return true
		}
	}
	return false
}

// record 检查限制后登记路径 bbi -> ... -> path[0] -> 出边
func (t *FSMThreader) record(path []*ssa.Block, bbi *ssa.Block, arg ssa.Operand) {
	if len(path) < 2 {
		return
	}
	if len(path) > t.opts.MaxFSMLength {
		t.logger.Debug("FSM jump-thread path not considered: too many blocks",
			zap.Int("blocks", len(path)), zap.Int("limit", t.opts.MaxFSMLength))
		return
	}
	if t.budget <= 0 {
		t.logger.Debug("FSM jump-thread path not considered: too many paths",
			zap.Int("limit", t.opts.MaxFSMPaths))
		return
	}

	full := make([]*ssa.Block, 0, len(path)+1)
	full = append(full, path...)
	full = append(full, bbi)
	n := len(full)

	seen := make(map[*ssa.Block]bool, n)
	for _, b := range full {
		if seen[b] {
			return
		}
		seen[b] = true
	}

	loop := full[0].Loop
	insns := 0
	for _, b := range full[1 : n-1] {
		if b.Loop != loop {
			t.logger.Debug("FSM jump-thread path not considered: the path crosses loops")
			return
		}
		for _, s := range b.Stmts {
			if !ssa.IsIgnorable(s) {
				insns++
			}
		}
	}
	if insns >= t.opts.MaxFSMInsns {
		t.logger.Debug("FSM jump-thread path not considered: too many instructions",
			zap.Int("insns", insns), zap.Int("limit", t.opts.MaxFSMInsns))
		return
	}

	p := make(Path, 0, n)
	for j := 0; j < n-1; j++ {
		e := ssa.FindEdge(full[n-j-1], full[n-j-2])
		if e == nil {
			return
		}
		p = append(p, JumpThreadEdge{Edge: e, Kind: EdgeFSMThread})
	}
	taken := t.takenEdge(full[0], arg)
	if taken == nil {
		return
	}
	p = append(p, JumpThreadEdge{Edge: taken, Kind: EdgeNoCopySrcBlock})

	t.registry.Register(p)
	t.budget--
}

// takenEdge 控制操作数取 arg 时块 b 走的出边
func (t *FSMThreader) takenEdge(b *ssa.Block, arg ssa.Operand) *ssa.Edge {
	if c, ok := t.ctl.(*ssa.Cond); ok {
		val := fold.FoldCond(c.Op, arg, c.Y)
		if val == nil {
			return nil
		}
		return ssa.FindTakenEdge(b, val)
	}
	return ssa.FindTakenEdge(b, arg)
}
