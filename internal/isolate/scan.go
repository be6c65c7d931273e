// scan.go - 隐式扫描与显式扫描
//
// 隐式扫描分两步：先只读地收集候选 (块, 入边, 最早出错的语句, 动作)，再统一复制块、
// 重定向入边。同一个块中同一条出错语句只复制一次，共享该错误的入边都指向同一副本。
//
// 显式扫描按语句顺序查看每个块，第一条出错语句处插入陷阱并截断。已经跟着陷阱的
// 语句不再处理，所以重复运行不会再有修改。

package isolate

import (
	"go.uber.org/zap"

	"github.com/tangzhangming/ssaopt/internal/errors"
	"github.com/tangzhangming/ssaopt/internal/ssa"
)

// candidate 隐式扫描找到的一条待隔离入边
type candidate struct {
	block   *ssa.Block
	edge    *ssa.Edge
	stmt    ssa.Stmt
	op      ssa.Operand // 语句中为零的操作数（phi 结果）
	retZero bool        // 把返回值改为零，不插入陷阱
}

// ============================================================================
// 隐式扫描
// ============================================================================

// collect 收集候选，每条入边只保留块中最早的出错语句
func (r *run) collect() []candidate {
	var cands []candidate
	byEdge := make(map[*ssa.Edge]int)
	add := func(c candidate) {
		if i, ok := byEdge[c.edge]; ok {
			if c.block.IndexOf(c.stmt) < c.block.IndexOf(cands[i].stmt) {
				cands[i] = c
			}
			return
		}
		byEdge[c.edge] = len(cands)
		cands = append(cands, c)
	}

	for _, b := range r.fn.Blocks {
		if b.HasAbnormalOrEHOutgoing() {
			continue
		}
		for _, phi := range b.Phis {
			for i, arg := range phi.Incoming {
				e := b.Preds[i]
				if !redirectable(e) {
					continue
				}
				if addr, ok := arg.(*ssa.AddrOf); ok && addr.IsAutomatic() {
					if ret := r.localReturn(b, phi.Dest, addr.Local); ret != nil {
						add(candidate{block: b, edge: e, stmt: ret, op: phi.Dest, retZero: true})
					}
					continue
				}
				if !ssa.IsZeroConst(arg) {
					continue
				}
				if s := r.firstUndefinedUse(b, phi.Dest); s != nil {
					add(candidate{block: b, edge: e, stmt: s, op: phi.Dest})
				}
			}
		}
	}
	return cands
}

// localReturn 对每条返回 v 的语句给出警告，返回与 phi 同块的那一条
func (r *run) localReturn(b *ssa.Block, v *ssa.Value, local *ssa.Local) *ssa.Return {
	var found *ssa.Return
	for _, rb := range r.fn.Blocks {
		ret, ok := rb.Last().(*ssa.Return)
		if !ok || !ssa.Equal(ret.Val, v) {
			continue
		}
		r.warn(errors.W0504, ret, r.opts.WarnReturnLocalAddr, local)
		if rb == b {
			found = ret
		}
	}
	return found
}

// firstUndefinedUse 块中第一条在 v 为零时出错的语句
// 只看同一个块，跨块的使用需要更复杂的路径复制。
func (r *run) firstUndefinedUse(b *ssa.Block, v *ssa.Value) ssa.Stmt {
	for i, s := range b.Stmts {
		if trapped(b, i) {
			return nil
		}
		if r.undefinedUse(s, v, true) {
			return s
		}
	}
	return nil
}

// isolate 按候选复制块并重定向入边
func (r *run) isolate(cands []candidate) {
	type key struct {
		block   *ssa.Block
		stmt    ssa.Stmt
		retZero bool
	}
	dups := make(map[key]*ssa.Block)

	for _, c := range cands {
		k := key{c.block, c.stmt, c.retZero}
		if dup, ok := dups[k]; ok {
			ssa.FlushPending(c.edge, ssa.RedirectEdge(c.edge, dup))
			r.logger.Debug("reusing isolated copy",
				zap.Stringer("edge", c.edge),
				zap.String("copy", dup.Name))
			continue
		}
		dups[k] = r.isolatePath(c)
	}
	r.cfgAltered = true
}

// isolatePath 复制 c.block，把 c.edge 指向副本，并在副本中处理出错语句
func (r *run) isolatePath(c candidate) *ssa.Block {
	dup, vmap := ssa.DuplicateBlock(c.block)
	if c.retZero {
		ssa.CopyOutgoingEdges(c.block, dup, vmap)
	}
	ssa.FlushPending(c.edge, ssa.RedirectEdge(c.edge, dup))

	j := lockstep(c.block, dup, c.stmt)
	if c.retZero {
		ret := dup.Stmts[j].(*ssa.Return)
		ret.Val = ssa.ZeroConst(ret.Val.Type())
	} else {
		insertTrap(dup, j, ssa.MapOperand(c.op, vmap))
	}

	r.logger.Debug("isolated path",
		zap.Stringer("edge", c.edge),
		zap.String("copy", dup.Name),
		zap.Stringer("stmt", c.stmt),
		zap.Bool("return_zero", c.retZero))
	return dup
}

// lockstep 同步遍历原块与副本（跳过标签与调试语句），返回 target 在副本中的下标
// 找不到说明两者已不一致，属于内部错误。
func lockstep(orig, dup *ssa.Block, target ssa.Stmt) int {
	skip := func(s ssa.Stmt) bool {
		switch s.(type) {
		case *ssa.Label, *ssa.Debug:
			return true
		}
		return false
	}

	i, j := 0, 0
	for {
		for i < len(orig.Stmts) && skip(orig.Stmts[i]) {
			i++
		}
		for j < len(dup.Stmts) && skip(dup.Stmts[j]) {
			j++
		}
		if i == len(orig.Stmts) || j == len(dup.Stmts) {
			break
		}
		if orig.Stmts[i] == target {
			return j
		}
		i++
		j++
	}
	errors.ICE("isolate: %q not found while walking %s and its copy %s", target, orig, dup)
	return -1
}

// ============================================================================
// 显式扫描
// ============================================================================

func (r *run) explicit() {
	null, zero := ssa.NullConst(), ssa.IntConst(0)
	blocks := append([]*ssa.Block(nil), r.fn.Blocks...)

	for _, b := range blocks {
		if b.HasAbnormalOrEHOutgoing() {
			continue
		}
		for i := 0; i < len(b.Stmts); i++ {
			s := b.Stmts[i]
			if trapped(b, i) {
				break
			}

			var op ssa.Operand
			switch {
			case r.undefinedUse(s, null, false):
				op = null
			case r.undefinedUse(s, zero, false):
				op = zero
			}
			if op != nil {
				insertTrap(b, i, op)
				r.cfgAltered = true
				r.fn.InvalidatePostDominators()
				r.logger.Debug("inserted trap", zap.String("block", b.Name), zap.Stringer("stmt", s))
				break
			}

			if ret, ok := s.(*ssa.Return); ok {
				r.rewriteLocalReturn(b, ret)
			}
		}
	}
}

// rewriteLocalReturn 把返回的局部变量地址改为零
func (r *run) rewriteLocalReturn(b *ssa.Block, ret *ssa.Return) {
	addr, ok := ret.Val.(*ssa.AddrOf)
	if !ok || !addr.IsAutomatic() {
		return
	}
	code := errors.W0504
	if r.fn.PostDominators(r.ctx).Dominates(b, r.fn.Entry) {
		code = errors.W0503
	}
	r.warn(code, ret, r.opts.WarnReturnLocalAddr, addr.Local)
	ret.Val = ssa.ZeroConst(addr.Type())
	r.rewrote = true
	r.logger.Debug("rewrote return of local address", zap.String("block", b.Name), zap.String("local", addr.Local.Name))
}
