package threading

import (
	"fmt"
	"strings"

	"github.com/segmentio/encoding/json"

	"github.com/tangzhangming/ssaopt/internal/ssa"
)

// ============================================================================
// 路径条目
// ============================================================================

// EdgeKind 路径条目的类型，决定 apply 阶段如何处理边的源块
type EdgeKind int

const (
	// EdgeStart 路径的入口边，apply 时被重定向
	EdgeStart EdgeKind = iota
	// EdgeCopySrcBlock 复制源块并消去其分支
	EdgeCopySrcBlock
	// EdgeNoCopySrcBlock 源块无需复制（空转发块或分支已知的块）
	EdgeNoCopySrcBlock
	// EdgeCopySrcJoinerBlock 源块是汇合块，复制时保留全部出边
	EdgeCopySrcJoinerBlock
	// EdgeFSMThread 后向状态机线程化的中间边
	EdgeFSMThread
)

var edgeKindNames = [...]string{
	EdgeStart:              "START",
	EdgeCopySrcBlock:       "COPY_SRC_BLOCK",
	EdgeNoCopySrcBlock:     "NO_COPY_SRC_BLOCK",
	EdgeCopySrcJoinerBlock: "COPY_SRC_JOINER_BLOCK",
	EdgeFSMThread:          "FSM_THREAD",
}

func (k EdgeKind) String() string {
	if int(k) < len(edgeKindNames) {
		return edgeKindNames[k]
	}
	return fmt.Sprintf("EdgeKind(%d)", int(k))
}

// dumpName 转储格式中的名称
func (k EdgeKind) dumpName() string {
	switch k {
	case EdgeStart:
		return "incoming edge"
	case EdgeCopySrcBlock:
		return "normal"
	case EdgeNoCopySrcBlock:
		return "nocopy"
	case EdgeCopySrcJoinerBlock:
		return "joiner"
	default:
		return "fsm"
	}
}

// JumpThreadEdge 路径上的一条边及其类型
type JumpThreadEdge struct {
	Edge *ssa.Edge
	Kind EdgeKind
}

// ============================================================================
// 路径
// ============================================================================

// Path 一条线程化路径
type Path []JumpThreadEdge

// Last 返回最后一个条目
func (p Path) Last() JumpThreadEdge {
	return p[len(p)-1]
}

// IsFSM 是否为后向状态机路径
func (p Path) IsFSM() bool {
	return len(p) > 0 && p[0].Kind == EdgeFSMThread
}

// String 按编译器转储的格式输出，例如
//
//	(entry, a) incoming edge;  (a, b) normal; (b, c) nocopy;
func (p Path) String() string {
	var sb strings.Builder
	for i, e := range p {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "(%s, %s) %s;", e.Edge.Src.Name, e.Edge.Dest.Name, e.Kind.dumpName())
		if e.Kind == EdgeStart || e.Kind == EdgeCopySrcJoinerBlock {
			sb.WriteByte(' ')
		}
	}
	return strings.TrimRight(sb.String(), " ")
}

// pathEdgeJSON 路径条目的 JSON 形式
type pathEdgeJSON struct {
	Src  string `json:"src"`
	Dest string `json:"dest"`
	Kind string `json:"kind"`
}

// MarshalJSON 输出 [{"src":..,"dest":..,"kind":..}, ...]
func (p Path) MarshalJSON() ([]byte, error) {
	out := make([]pathEdgeJSON, len(p))
	for i, e := range p {
		out[i] = pathEdgeJSON{Src: e.Edge.Src.Name, Dest: e.Edge.Dest.Name, Kind: e.Kind.String()}
	}
	return json.Marshal(out)
}

// blocks 返回路径经过的块，首元素是入口边的源块
func (p Path) blocks() []*ssa.Block {
	out := []*ssa.Block{p[0].Edge.Src}
	for _, e := range p {
		out = append(out, e.Edge.Dest)
	}
	return out
}
