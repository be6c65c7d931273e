package i18n

var messagesZH = map[string]string{
	// ========== 文本 SSA ==========
	ErrUnexpectedChar:     "意外字符 %q",
	ErrUnterminatedString: "未闭合的字符串",
	ErrInvalidNumber:      "无效的数字: %s",
	ErrExpectedToken:      "需要 %s，实际为 %s",
	ErrUnexpectedToken:    "意外的符号: %s",
	ErrUndefinedValue:     "未定义的值 '%s'",
	ErrValueRedefined:     "值 '%s' 被重复定义",
	ErrUndefinedBlock:     "未定义的块 '%s'",
	ErrBlockRedefined:     "块 '%s' 被重复定义",
	ErrPhiPredMismatch:    "块 '%[2]s' 中的 phi '%[1]s' 与前驱不匹配: %[3]s",
	ErrUnknownOp:          "未知的运算符或类型 '%s'",
	ErrUndeclaredLocal:    "未声明的局部变量 '%s'",

	// ========== 路径隔离 ==========
	MsgNullDereference:          "空指针解引用",
	MsgPotentialNullDereference: "可能的空指针解引用",
	MsgReturnsLocalAddr:         "函数返回局部变量的地址",
	MsgMayReturnLocalAddr:       "函数可能返回局部变量的地址",
	MsgDivisionByZero:           "除以零",
	MsgPotentialDivisionByZero:  "可能的除以零",
	MsgNullNonNullArg:           "向要求非空的位置传入了空指针",
	MsgDeclaredHere:             "在此声明",

	// ========== 建议 ==========
	SuggestCheckNull:       "解引用前先检查指针是否为空",
	SuggestCheckDivisor:    "除法前检查除数是否为零",
	SuggestReturnByValue:   "返回值本身而不是它的地址",
	SuggestStaticStorage:   "如果 '%s' 的地址需要在调用结束后继续使用，请使用静态存储",
	SuggestNonNullContract: "被调用函数要求该参数非空，请先检查",

	// ========== 诊断输出 ==========
	MsgDiagnosticCount: "发现 %d 个诊断",
	MsgInternalError:   "编译器内部错误: %v",

	// ========== 配置 ==========
	ErrConfigRead:    "读取配置文件失败: %v",
	ErrConfigParse:   "解析配置文件失败: %v",
	ErrConfigWrite:   "写入配置文件失败: %v",
	ErrConfigInvalid: "配置无效: %v",
	MsgConfigWritten: "已写入 %s",
	MsgConfigExists:  "%s 已存在",

	// ========== 命令行 ==========
	MsgUsage: `用法: %s [选项] <file.ssa>...

对文本 SSA 形式的函数执行跳转线程化与路径隔离。

选项:
`,
	MsgVersion:       "%s 版本 %s",
	ErrNoInput:       "没有输入文件",
	ErrReadFailed:    "读取 %s 失败: %v",
	ErrUnknownFormat: "未知的诊断输出格式 '%s'（应为 text 或 lsp）",
	ErrUnknownPass:   "未知的 pass '%s'",
	MsgPassStats:     "%-14s 运行=%d 变更=%d 耗时=%s",

	// ========== 选项 ==========
	OptConfig:    "TOML 配置文件（默认：最近的 ssaopt.toml）",
	OptPasses:    "逗号分隔的 pass 流水线，覆盖配置文件",
	OptPrint:     "流水线结束后打印 IR",
	OptDumpPaths: "以 JSON 打印登记的跳转线程化路径",
	OptFormat:    "诊断格式：text 或 lsp",
	OptLang:      "消息语言：en 或 zh",
	OptNoColor:   "禁用彩色输出",
	OptVerbose:   "输出调试日志",
	OptInit:      "写入默认的 ssaopt.toml 后退出",
	OptVersion:   "打印版本后退出",
}
