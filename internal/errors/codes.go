// Package errors 提供 ssaopt 的诊断系统：诊断码、编译诊断、格式化输出与报告器
package errors

// ============================================================================
// 诊断级别
// ============================================================================

// Level 诊断级别
type Level int

const (
	LevelError   Level = iota // 错误
	LevelWarning              // 警告
	LevelNote                 // 提示
	LevelHelp                 // 帮助
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelNote:
		return "note"
	case LevelHelp:
		return "help"
	default:
		return "unknown"
	}
}

// ============================================================================
// 文本 IR 错误码 (E 开头)
// ============================================================================

const (
	// E0101-E0199: 文本 SSA 解析错误
	E0101 = "E0101" // 意外的字符
	E0102 = "E0102" // 未闭合的字符串
	E0103 = "E0103" // 无效的数字
	E0104 = "E0104" // 期望的 token
	E0105 = "E0105" // 意外的 token
	E0106 = "E0106" // 未定义的值
	E0107 = "E0107" // 值重复定义
	E0108 = "E0108" // 未定义的块
	E0109 = "E0109" // 块重复定义
	E0110 = "E0110" // phi 参数与前驱不匹配
	E0111 = "E0111" // 未知的运算符或类型
	E0112 = "E0112" // 未声明的变量
)

// ============================================================================
// 路径隔离警告码 (W 开头)
// ============================================================================

const (
	// W0501-W0599: 未定义行为
	W0501 = "W0501" // 空指针解引用
	W0502 = "W0502" // 可能的空指针解引用
	W0503 = "W0503" // 函数返回局部变量地址
	W0504 = "W0504" // 函数可能返回局部变量地址
	W0505 = "W0505" // 除以零
	W0506 = "W0506" // 可能的除以零
	W0507 = "W0507" // 空指针传给 nonnull 参数
)

// ============================================================================
// 诊断码信息
// ============================================================================

// ErrorInfo 诊断码信息
type ErrorInfo struct {
	Code      string // 诊断码
	Level     Level  // 级别
	MessageID string // i18n 消息 ID
	Category  string // 分类
	DocURL    string // 文档链接（可选）
}

var diagnosticInfos = map[string]ErrorInfo{
	// 文本 SSA
	E0101: {E0101, LevelError, "irtext.unexpected_char", "syntax", ""},
	E0102: {E0102, LevelError, "irtext.unterminated_string", "syntax", ""},
	E0103: {E0103, LevelError, "irtext.invalid_number", "syntax", ""},
	E0104: {E0104, LevelError, "irtext.expected_token", "syntax", ""},
	E0105: {E0105, LevelError, "irtext.unexpected_token", "syntax", ""},
	E0106: {E0106, LevelError, "irtext.undefined_value", "ssa", ""},
	E0107: {E0107, LevelError, "irtext.value_redefined", "ssa", ""},
	E0108: {E0108, LevelError, "irtext.undefined_block", "cfg", ""},
	E0109: {E0109, LevelError, "irtext.block_redefined", "cfg", ""},
	E0110: {E0110, LevelError, "irtext.phi_pred_mismatch", "ssa", ""},
	E0111: {E0111, LevelError, "irtext.unknown_op", "syntax", ""},
	E0112: {E0112, LevelError, "irtext.undeclared_local", "ssa", ""},

	// 未定义行为
	W0501: {W0501, LevelWarning, "isolate.null_dereference", "undefined-behavior", ""},
	W0502: {W0502, LevelWarning, "isolate.potential_null_dereference", "undefined-behavior", ""},
	W0503: {W0503, LevelWarning, "isolate.returns_local_addr", "undefined-behavior", ""},
	W0504: {W0504, LevelWarning, "isolate.may_return_local_addr", "undefined-behavior", ""},
	W0505: {W0505, LevelWarning, "isolate.division_by_zero", "undefined-behavior", ""},
	W0506: {W0506, LevelWarning, "isolate.potential_division_by_zero", "undefined-behavior", ""},
	W0507: {W0507, LevelWarning, "isolate.null_nonnull_arg", "undefined-behavior", ""},
}

// GetErrorInfo 获取诊断码信息
func GetErrorInfo(code string) (ErrorInfo, bool) {
	info, ok := diagnosticInfos[code]
	return info, ok
}

// IsWarningCode 检查是否为警告码
func IsWarningCode(code string) bool {
	info, ok := diagnosticInfos[code]
	return ok && info.Level == LevelWarning
}
