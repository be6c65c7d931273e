package threading

import (
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"github.com/tangzhangming/ssaopt/internal/ssa"
)

// ============================================================================
// 线程登记表
// ============================================================================

// Status 已登记路径的处理结果
type Status int

const (
	StatusPending Status = iota
	StatusApplied
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusCancelled:
		return "cancelled"
	default:
		return "pending"
	}
}

// Entry 登记表中的一条路径
type Entry struct {
	Path   Path
	Status Status
	Reason string // 取消原因
}

// Registry 收集探索阶段找到的路径，统一在 Apply 中修改 CFG
type Registry struct {
	fn        *ssa.Func
	entries   []*Entry
	discarded int
	logger    *zap.Logger
}

// NewRegistry 创建登记表
func NewRegistry(fn *ssa.Func, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{fn: fn, logger: logger}
}

// Register 登记一条路径，路径被复制，调用方可以继续修改自己的切片
func (r *Registry) Register(p Path) {
	cp := make(Path, len(p))
	copy(cp, p)
	r.entries = append(r.entries, &Entry{Path: cp})
	r.logger.Debug("Registering jump thread: "+cp.String(), zap.String("func", r.fn.Name))
}

// Discard 放弃一条未登记的候选路径
func (r *Registry) Discard(p Path) {
	if len(p) == 0 {
		return
	}
	r.discarded++
	r.logger.Debug("discarding jump thread candidate", zap.Stringer("path", p))
}

// Paths 返回已登记的路径
func (r *Registry) Paths() []Path {
	out := make([]Path, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Path
	}
	return out
}

// Entries 返回已登记的条目及其状态
func (r *Registry) Entries() []*Entry { return r.entries }

// Len 已登记的路径数
func (r *Registry) Len() int { return len(r.entries) }

// Discarded 被放弃的候选路径数
func (r *Registry) Discarded() int { return r.discarded }

// registryJSON 转储格式
type registryJSON struct {
	Func  string      `json:"func"`
	Paths []entryJSON `json:"paths"`
}

type entryJSON struct {
	Edges  Path   `json:"edges"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// MarshalJSON 输出函数名与全部路径
func (r *Registry) MarshalJSON() ([]byte, error) {
	out := registryJSON{Func: r.fn.Name, Paths: make([]entryJSON, len(r.entries))}
	for i, e := range r.entries {
		out.Paths[i] = entryJSON{Edges: e.Path, Status: e.Status.String(), Reason: e.Reason}
	}
	return json.Marshal(out)
}
