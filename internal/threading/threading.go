// Package threading 实现跳转线程化：前向路径探索、后向状态机线程化，
// 以及统一修改 CFG 的登记表。
package threading

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tangzhangming/ssaopt/internal/ssa"
)

// Options 线程化参数
type Options struct {
	MaxDuplicationStmts int // 前向线程化时可复制的语句数
	MaxFSMLength        int // 后向路径的最大块数
	MaxFSMPaths         int // 每个函数登记的后向路径上限
	MaxFSMInsns         int // 后向路径上的最大语句数
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		MaxDuplicationStmts: 15,
		MaxFSMLength:        10,
		MaxFSMPaths:         50,
		MaxFSMInsns:         100,
	}
}

// ThreadJumps 对函数做前向跳转线程化
// 对每个候选块的每条入边调用 ThreadAcrossEdge，最后统一应用。返回登记表与应用的路径数。
func ThreadJumps(ctx context.Context, fn *ssa.Func, opts Options, simplify SimplifyFunc, logger *zap.Logger) (*Registry, int) {
	ctx, span := tracer.Start(ctx, "threading.forward", trace.WithAttributes(
		attribute.String("func", fn.Name),
	))
	defer span.End()

	ssa.MarkDFSBackEdges(fn)
	reg := NewRegistry(fn, logger)
	x := NewExplorer(fn, reg, opts, simplify, logger)

	blocks := append([]*ssa.Block(nil), fn.Blocks...)
	for _, b := range blocks {
		if !PotentiallyThreadable(b) {
			continue
		}
		for _, e := range b.Preds {
			if e.Flags.Any(ssa.EdgeAbnormal | ssa.EdgeEH) {
				continue
			}
			x.ThreadAcrossEdge(e)
		}
	}
	span.AddEvent("registered", trace.WithAttributes(attribute.Int("paths", reg.Len())))

	return reg, reg.Apply(ctx)
}

// ThreadFSM 对函数做后向状态机线程化
func ThreadFSM(ctx context.Context, fn *ssa.Func, opts Options, logger *zap.Logger) (*Registry, int) {
	ctx, span := tracer.Start(ctx, "threading.fsm", trace.WithAttributes(
		attribute.String("func", fn.Name),
	))
	defer span.End()

	ssa.MarkDFSBackEdges(fn)
	fn.Loops(ctx)
	reg := NewRegistry(fn, logger)
	t := NewFSMThreader(fn, reg, opts, logger)
	for _, b := range fn.Blocks {
		t.FindJumpThreadsBackwards(b)
	}
	span.AddEvent("registered", trace.WithAttributes(attribute.Int("paths", reg.Len())))

	return reg, reg.Apply(ctx)
}
