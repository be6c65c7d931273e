// Package passes 把跳转线程化与路径隔离组织成可配置的 pass 流水线
package passes

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tangzhangming/ssaopt/internal/config"
	"github.com/tangzhangming/ssaopt/internal/errors"
	"github.com/tangzhangming/ssaopt/internal/isolate"
	"github.com/tangzhangming/ssaopt/internal/ssa"
	"github.com/tangzhangming/ssaopt/internal/threading"
)

var tracer = otel.Tracer("ssaopt.passes")

// ============================================================================
// 优化 Pass 接口
// ============================================================================

// Pass 优化 Pass 接口
type Pass interface {
	Name() string
	Run(ctx context.Context, fn *ssa.Func) (bool, error) // 返回是否有修改
}

// PathHook 线程化 pass 应用路径之后收到登记表
type PathHook func(pass string, reg *threading.Registry)

// pathReporter 会登记线程化路径的 pass
type pathReporter interface {
	setPathHook(h PathHook)
}

// ============================================================================
// Pass 管理器
// ============================================================================

// PassManager Pass 管理器
type PassManager struct {
	passes []Pass
	stats  PassStats
	verify bool
	logger *zap.Logger
}

// PassStats Pass 统计信息
type PassStats struct {
	PassesRun      int
	TotalChanges   int
	PerPassRuns    map[string]int
	PerPassChanges map[string]int
	PerPassTime    map[string]time.Duration
}

// NewPassManager 创建 Pass 管理器
func NewPassManager(logger *zap.Logger) *PassManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PassManager{
		passes: make([]Pass, 0),
		stats: PassStats{
			PerPassRuns:    make(map[string]int),
			PerPassChanges: make(map[string]int),
			PerPassTime:    make(map[string]time.Duration),
		},
		verify: true,
		logger: logger,
	}
}

// AddPass 添加 Pass
func (pm *PassManager) AddPass(p Pass) {
	pm.passes = append(pm.passes, p)
}

// Passes 返回已添加的 Pass
func (pm *PassManager) Passes() []Pass {
	return pm.passes
}

// SetVerify 设置是否在每个修改了函数的 Pass 之后校验
func (pm *PassManager) SetVerify(v bool) {
	pm.verify = v
}

// OnPaths 设置线程化路径的回调
func (pm *PassManager) OnPaths(h PathHook) {
	for _, p := range pm.passes {
		if r, ok := p.(pathReporter); ok {
			r.setPathHook(h)
		}
	}
}

// Run 对函数运行所有 Pass，返回是否有修改
// Pass 出错或校验失败时立即停止。
func (pm *PassManager) Run(ctx context.Context, fn *ssa.Func) (bool, error) {
	changed := false
	for _, p := range pm.passes {
		c, err := pm.runPass(ctx, p, fn)
		if err != nil {
			return changed, err
		}
		changed = changed || c
	}
	return changed, nil
}

// RunAll 对每个函数运行流水线，汇总所有函数的错误
func (pm *PassManager) RunAll(ctx context.Context, fns []*ssa.Func) error {
	var err error
	for _, fn := range fns {
		if _, e := pm.Run(ctx, fn); e != nil {
			err = multierr.Append(err, e)
		}
	}
	return err
}

// RunUntilFixed 运行 Pass 直到不再有改变
func (pm *PassManager) RunUntilFixed(ctx context.Context, fn *ssa.Func, maxIters int) (int, error) {
	for i := 0; i < maxIters; i++ {
		changed, err := pm.Run(ctx, fn)
		if err != nil {
			return i + 1, err
		}
		if !changed {
			return i + 1, nil
		}
	}
	return maxIters, nil
}

func (pm *PassManager) runPass(ctx context.Context, p Pass, fn *ssa.Func) (bool, error) {
	ctx, span := tracer.Start(ctx, "pass."+p.Name(), trace.WithAttributes(
		attribute.String("func", fn.Name),
	))
	defer span.End()

	start := time.Now()
	changed, err := p.Run(ctx, fn)
	elapsed := time.Since(start)

	pm.stats.PassesRun++
	pm.stats.PerPassRuns[p.Name()]++
	pm.stats.PerPassTime[p.Name()] += elapsed
	span.SetAttributes(attribute.Bool("changed", changed))

	if err != nil {
		return changed, fmt.Errorf("%s: pass %s: %w", fn.Name, p.Name(), err)
	}
	if !changed {
		return false, nil
	}
	pm.stats.TotalChanges++
	pm.stats.PerPassChanges[p.Name()]++
	pm.logger.Debug("pass changed function",
		zap.String("pass", p.Name()),
		zap.String("func", fn.Name),
		zap.Duration("elapsed", elapsed))

	if pm.verify {
		if err := ssa.Verify(fn); err != nil {
			return true, fmt.Errorf("%s: invalid CFG after %s: %w", fn.Name, p.Name(), err)
		}
	}
	return true, nil
}

// Stats 获取统计信息
func (pm *PassManager) Stats() PassStats {
	return pm.stats
}

// LogStats 在 Info 级别输出统计
func (pm *PassManager) LogStats() {
	for _, p := range pm.passes {
		name := p.Name()
		pm.logger.Info("pass statistics",
			zap.String("pass", name),
			zap.Int("runs", pm.stats.PerPassRuns[name]),
			zap.Int("changed", pm.stats.PerPassChanges[name]),
			zap.Duration("time", pm.stats.PerPassTime[name]))
	}
}

// ============================================================================
// 预置 Pipeline
// ============================================================================

// CreatePipeline 按配置中的名称创建流水线
func CreatePipeline(cfg *config.Config, sink errors.Sink, logger *zap.Logger) (*PassManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pm := NewPassManager(logger)
	pm.SetVerify(cfg.Passes.Verify)

	for _, name := range cfg.Passes.Pipeline {
		p, err := NewPass(name, cfg, sink, logger)
		if err != nil {
			return nil, err
		}
		pm.AddPass(p)
	}
	return pm, nil
}

// NewPass 按名称创建 Pass
func NewPass(name string, cfg *config.Config, sink errors.Sink, logger *zap.Logger) (Pass, error) {
	switch name {
	case config.PassThreadJumps:
		return NewThreadJumpsPass(cfg.ThreadingOptions(), logger.Named("jump-thread")), nil
	case config.PassFSMThread:
		return NewFSMThreadPass(cfg.ThreadingOptions(), logger.Named("fsm-thread")), nil
	case config.PassIsolatePaths:
		return NewIsolatePathsPass(isolate.New(cfg.IsolateOptions(), sink, logger.Named("isolate-paths"))), nil
	case config.PassCleanupCFG:
		return NewCleanupCFGPass(logger.Named("cleanup-cfg")), nil
	}
	return nil, fmt.Errorf("unknown pass %q", name)
}

// ============================================================================
// 跳转线程化 Pass
// ============================================================================

// ThreadJumpsPass 前向跳转线程化
type ThreadJumpsPass struct {
	opts   threading.Options
	logger *zap.Logger
	hook   PathHook
}

// NewThreadJumpsPass 创建前向跳转线程化 Pass
func NewThreadJumpsPass(opts threading.Options, logger *zap.Logger) *ThreadJumpsPass {
	return &ThreadJumpsPass{opts: opts, logger: logger}
}

// Name 返回 Pass 名称
func (p *ThreadJumpsPass) Name() string { return config.PassThreadJumps }

func (p *ThreadJumpsPass) setPathHook(h PathHook) { p.hook = h }

// Run 运行 Pass
func (p *ThreadJumpsPass) Run(ctx context.Context, fn *ssa.Func) (bool, error) {
	reg, n := threading.ThreadJumps(ctx, fn, p.opts, nil, p.logger)
	if p.hook != nil && reg.Len() > 0 {
		p.hook(p.Name(), reg)
	}
	return n > 0, nil
}

// FSMThreadPass 后向状态机线程化
type FSMThreadPass struct {
	opts   threading.Options
	logger *zap.Logger
	hook   PathHook
}

// NewFSMThreadPass 创建状态机线程化 Pass
func NewFSMThreadPass(opts threading.Options, logger *zap.Logger) *FSMThreadPass {
	return &FSMThreadPass{opts: opts, logger: logger}
}

// Name 返回 Pass 名称
func (p *FSMThreadPass) Name() string { return config.PassFSMThread }

func (p *FSMThreadPass) setPathHook(h PathHook) { p.hook = h }

// Run 运行 Pass
func (p *FSMThreadPass) Run(ctx context.Context, fn *ssa.Func) (bool, error) {
	reg, n := threading.ThreadFSM(ctx, fn, p.opts, p.logger)
	if p.hook != nil && reg.Len() > 0 {
		p.hook(p.Name(), reg)
	}
	return n > 0, nil
}

// ============================================================================
// 路径隔离 Pass
// ============================================================================

// IsolatePathsPass 路径隔离
type IsolatePathsPass struct {
	iso *isolate.Isolator
}

// NewIsolatePathsPass 创建路径隔离 Pass
func NewIsolatePathsPass(iso *isolate.Isolator) *IsolatePathsPass {
	return &IsolatePathsPass{iso: iso}
}

// Name 返回 Pass 名称
func (p *IsolatePathsPass) Name() string { return config.PassIsolatePaths }

// Run 运行 Pass，所有开关都关闭时不做任何事
func (p *IsolatePathsPass) Run(ctx context.Context, fn *ssa.Func) (bool, error) {
	if !p.iso.Enabled() {
		return false, nil
	}
	return p.iso.Run(ctx, fn), nil
}

// ============================================================================
// CFG 清理 Pass
// ============================================================================

// CleanupCFGPass 删除不可达块并重新计算循环结构
type CleanupCFGPass struct {
	logger *zap.Logger
}

// NewCleanupCFGPass 创建 CFG 清理 Pass
func NewCleanupCFGPass(logger *zap.Logger) *CleanupCFGPass {
	return &CleanupCFGPass{logger: logger}
}

// Name 返回 Pass 名称
func (p *CleanupCFGPass) Name() string { return config.PassCleanupCFG }

// Run 运行 Pass
func (p *CleanupCFGPass) Run(ctx context.Context, fn *ssa.Func) (bool, error) {
	removed := ssa.RemoveUnreachableBlocks(fn)
	if removed > 0 {
		p.logger.Debug("removed unreachable blocks", zap.String("func", fn.Name), zap.Int("count", removed))
	}
	if fn.LoopsNeedFixup() {
		ssa.MarkDFSBackEdges(fn)
		fn.Loops(ctx)
	}
	return removed > 0, nil
}
