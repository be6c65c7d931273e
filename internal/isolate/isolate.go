// Package isolate 找出必然触发未定义行为的语句，用陷阱截断到达它们的路径
//
// 两趟扫描：隐式扫描查看 phi 的空常量参数，复制所在块并只在副本中插入陷阱；
// 显式扫描处理语句直接使用空常量或零除数的情况，以及返回局部变量地址。
package isolate

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tangzhangming/ssaopt/internal/errors"
	"github.com/tangzhangming/ssaopt/internal/i18n"
	"github.com/tangzhangming/ssaopt/internal/ssa"
)

var tracer = otel.Tracer("ssaopt.isolate")

// Options 路径隔离开关
type Options struct {
	Dereference         bool // 隔离空指针解引用
	Attribute           bool // 隔离违反 nonnull / returns_nonnull 的路径
	Division            bool // 隔离除以零
	WarnNullDereference bool
	WarnReturnLocalAddr bool
}

// DefaultOptions 默认开关
func DefaultOptions() Options {
	return Options{
		Dereference:         true,
		Division:            true,
		WarnNullDereference: true,
		WarnReturnLocalAddr: true,
	}
}

// Isolator 路径隔离
type Isolator struct {
	opts   Options
	sink   errors.Sink
	logger *zap.Logger
}

// New 创建路径隔离器，sink 为 nil 时不输出诊断
func New(opts Options, sink errors.Sink, logger *zap.Logger) *Isolator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Isolator{opts: opts, sink: sink, logger: logger}
}

// Enabled 是否需要运行
func (iso *Isolator) Enabled() bool {
	o := iso.opts
	return o.Dereference || o.Attribute || o.Division || o.WarnNullDereference
}

// Run 对函数做路径隔离，返回函数是否被修改
// 结束时总是丢弃后支配树；CFG 改变时同时丢弃支配树并要求修复循环信息。
func (iso *Isolator) Run(ctx context.Context, fn *ssa.Func) bool {
	ctx, span := tracer.Start(ctx, "isolate.paths", trace.WithAttributes(
		attribute.String("func", fn.Name),
	))
	defer span.End()

	r := &run{Isolator: iso, ctx: ctx, fn: fn}
	cands := r.collect()
	if len(cands) > 0 {
		r.isolate(cands)
		fn.InvalidatePostDominators()
	}
	r.explicit()

	fn.InvalidatePostDominators()
	if r.cfgAltered {
		fn.InvalidateDominators()
		fn.SetLoopsNeedFixup()
	}
	span.AddEvent("done", trace.WithAttributes(
		attribute.Int("implicit", len(cands)),
		attribute.Bool("cfg_altered", r.cfgAltered),
	))
	return r.cfgAltered || r.rewrote
}

// run 一次 Run 调用的状态
type run struct {
	*Isolator
	ctx        context.Context
	fn         *ssa.Func
	cfgAltered bool
	rewrote    bool
}

// ============================================================================
// 检测
// ============================================================================

// undefinedUse 语句 s 在 op 为零（空指针）时是否必然触发未定义行为且应被隔离
// 解引用总会产生警告，即使解引用隔离未开启。
func (r *run) undefinedUse(s ssa.Stmt, op ssa.Operand, implicit bool) bool {
	if !op.Type().IsPointer() {
		if r.opts.Division && ssa.IsDivModBy(s, op) {
			r.warn(pick(implicit, errors.W0506, errors.W0505), s, true, nil)
			return true
		}
		return false
	}

	if ssa.InferNonNullRangeByDereference(s, op) {
		r.warn(pick(implicit, errors.W0502, errors.W0501), s, r.opts.WarnNullDereference, nil)
		return r.opts.Dereference
	}
	if ssa.InferNonNullRangeByAttribute(s, op) {
		if !r.opts.Attribute {
			return false
		}
		if _, ok := s.(*ssa.Call); ok && !implicit {
			r.warn(errors.W0507, s, true, nil)
		}
		return true
	}
	return false
}

func pick(implicit bool, potential, certain string) string {
	if implicit {
		return potential
	}
	return certain
}

// warn 输出一条诊断，local 非空时标注局部变量的声明处
func (r *run) warn(code string, s ssa.Stmt, enabled bool, local *ssa.Local) {
	if !enabled || r.sink == nil {
		return
	}
	pos := s.Pos()
	d := errors.NewCompileError(code, r.fn.File, pos.Line, pos.Col)
	ctx := map[string]interface{}{}
	if local != nil {
		ctx["local"] = local.Name
		if local.Pos.IsValid() {
			d.WithLabel(local.Pos.Line, local.Pos.Col, len(local.Name), i18n.T(i18n.MsgDeclaredHere))
		}
	}
	for _, h := range errors.GetSuggestions(code, ctx) {
		d.WithHint(h)
	}
	r.sink.Report(d)
}

// ============================================================================
// 陷阱
// ============================================================================

// insertTrap 在 b 的第 i 条语句处插入陷阱，删除其后的语句和块的所有出边
// 语句本身解引用 op 时陷阱放在它之后，解引用保留并变为 volatile；否则陷阱替换该语句。
func insertTrap(b *ssa.Block, i int, op ssa.Operand) {
	s := b.Stmts[i]
	trap := &ssa.Trap{}
	ssa.SetPos(trap, s.Pos())

	if ssa.InferNonNullRangeByDereference(s, op) {
		switch s := s.(type) {
		case *ssa.Assign:
			s.Volatile = true
		case *ssa.Store:
			s.Volatile = true
			if t := s.Val.Type(); t.IsIntegral() {
				s.Val = ssa.ZeroConst(t)
			}
		}
		b.Truncate(i + 1)
	} else {
		b.Truncate(i)
	}
	b.Append(trap)

	for len(b.Succs) > 0 {
		ssa.RemoveEdge(b.Succs[0])
	}
}

// trapped 第 i 条语句是陷阱，或紧跟着陷阱（之前已经隔离过）
func trapped(b *ssa.Block, i int) bool {
	for _, s := range b.Stmts[i:min(i+2, len(b.Stmts))] {
		if _, ok := s.(*ssa.Trap); ok {
			return true
		}
	}
	return false
}

// redirectable 边能否重定向到副本
func redirectable(e *ssa.Edge) bool {
	if e.Flags.Any(ssa.EdgeAbnormal | ssa.EdgeEH) {
		return false
	}
	_, computed := e.Src.Control().(*ssa.Goto)
	return !computed
}
