package ssa

import (
	"fmt"

	"go.uber.org/multierr"
)

// Verify 检查函数的结构不变量，返回聚合后的全部问题
//   - 前驱、后继边表对称
//   - phi 参数个数等于前驱个数
//   - 语句与 phi 的所属块指针正确，定义的值指回定义语句
//   - 条件跳转恰有真、假两条出边；多路分支的目标都有对应出边
//   - 边的两端都在函数中
func Verify(f *Func) error {
	var err error
	inFunc := make(map[*Block]bool, len(f.Blocks))
	for _, b := range f.Blocks {
		inFunc[b] = true
	}
	if f.Entry != nil && !inFunc[f.Entry] {
		err = multierr.Append(err, fmt.Errorf("%s: entry block %s not in function", f.Name, f.Entry.Name))
	}

	for _, b := range f.Blocks {
		for _, e := range b.Succs {
			if e.Src != b {
				err = multierr.Append(err, fmt.Errorf("%s: edge %s listed as successor of %s", f.Name, e, b.Name))
			}
			if !inFunc[e.Dest] {
				err = multierr.Append(err, fmt.Errorf("%s: edge %s leads to a block outside the function", f.Name, e))
			}
			if e.DestIndex() < 0 {
				err = multierr.Append(err, fmt.Errorf("%s: edge %s missing from predecessors of %s", f.Name, e, e.Dest.Name))
			}
		}
		for _, e := range b.Preds {
			if e.Dest != b {
				err = multierr.Append(err, fmt.Errorf("%s: edge %s listed as predecessor of %s", f.Name, e, b.Name))
			}
			found := false
			for _, s := range e.Src.Succs {
				if s == e {
					found = true
					break
				}
			}
			if !found {
				err = multierr.Append(err, fmt.Errorf("%s: edge %s missing from successors of %s", f.Name, e, e.Src.Name))
			}
		}

		for _, p := range b.Phis {
			if p.Block() != b {
				err = multierr.Append(err, fmt.Errorf("%s: phi %s has wrong block", f.Name, p.Dest))
			}
			if len(p.Incoming) != len(b.Preds) {
				err = multierr.Append(err, fmt.Errorf("%s: phi %s in %s has %d args for %d preds",
					f.Name, p.Dest, b.Name, len(p.Incoming), len(b.Preds)))
			}
			for i, a := range p.Incoming {
				if a == nil {
					err = multierr.Append(err, fmt.Errorf("%s: phi %s in %s has no arg %d", f.Name, p.Dest, b.Name, i))
				}
			}
			if p.Dest.Def != p {
				err = multierr.Append(err, fmt.Errorf("%s: value %s not defined by its phi", f.Name, p.Dest))
			}
		}

		for i, s := range b.Stmts {
			if s.Block() != b {
				err = multierr.Append(err, fmt.Errorf("%s: statement %q has wrong block", f.Name, s))
			}
			if v := s.Result(); v != nil && v.Def != s {
				err = multierr.Append(err, fmt.Errorf("%s: value %s not defined by %q", f.Name, v, s))
			}
			if i != len(b.Stmts)-1 && IsControl(s) {
				err = multierr.Append(err, fmt.Errorf("%s: control statement %q not at end of %s", f.Name, s, b.Name))
			}
		}
		err = multierr.Append(err, verifyControl(f, b))
	}
	return err
}

func verifyControl(f *Func, b *Block) error {
	switch s := b.Last().(type) {
	case *Cond:
		var t, fl int
		for _, e := range b.Succs {
			if e.Flags.Has(EdgeTrue) {
				t++
			}
			if e.Flags.Has(EdgeFalse) {
				fl++
			}
		}
		if t != 1 || fl != 1 {
			return fmt.Errorf("%s: conditional in %s needs one true and one false edge", f.Name, b.Name)
		}
	case *Switch:
		var err error
		targets := append([]*Block{s.Default}, caseTargets(s)...)
		for _, t := range targets {
			if FindEdge(b, t) == nil {
				err = multierr.Append(err, fmt.Errorf("%s: switch in %s targets %s without an edge", f.Name, b.Name, t.Name))
			}
		}
		return err
	case *Return, *Trap:
		for _, e := range b.Succs {
			if !e.Flags.Any(EdgeAbnormal | EdgeEH) {
				return fmt.Errorf("%s: block %s ends in %q but has successor %s", f.Name, b.Name, s, e.Dest.Name)
			}
		}
	}
	return nil
}

func caseTargets(s *Switch) []*Block {
	out := make([]*Block, len(s.Cases))
	for i, c := range s.Cases {
		out[i] = c.Target
	}
	return out
}
