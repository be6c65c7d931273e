package i18n

// 消息 ID
const (
	// ========== 文本 SSA ==========
	ErrUnexpectedChar     = "irtext.unexpected_char"
	ErrUnterminatedString = "irtext.unterminated_string"
	ErrInvalidNumber      = "irtext.invalid_number"
	ErrExpectedToken      = "irtext.expected_token"
	ErrUnexpectedToken    = "irtext.unexpected_token"
	ErrUndefinedValue     = "irtext.undefined_value"
	ErrValueRedefined     = "irtext.value_redefined"
	ErrUndefinedBlock     = "irtext.undefined_block"
	ErrBlockRedefined     = "irtext.block_redefined"
	ErrPhiPredMismatch    = "irtext.phi_pred_mismatch"
	ErrUnknownOp          = "irtext.unknown_op"
	ErrUndeclaredLocal    = "irtext.undeclared_local"

	// ========== 路径隔离 ==========
	MsgNullDereference          = "isolate.null_dereference"
	MsgPotentialNullDereference = "isolate.potential_null_dereference"
	MsgReturnsLocalAddr         = "isolate.returns_local_addr"
	MsgMayReturnLocalAddr       = "isolate.may_return_local_addr"
	MsgDivisionByZero           = "isolate.division_by_zero"
	MsgPotentialDivisionByZero  = "isolate.potential_division_by_zero"
	MsgNullNonNullArg           = "isolate.null_nonnull_arg"
	MsgDeclaredHere             = "isolate.declared_here"

	// ========== 建议 ==========
	SuggestCheckNull       = "suggestion.check_null"
	SuggestCheckDivisor    = "suggestion.check_divisor"
	SuggestReturnByValue   = "suggestion.return_by_value"
	SuggestStaticStorage   = "suggestion.static_storage"
	SuggestNonNullContract = "suggestion.nonnull_contract"

	// ========== 诊断输出 ==========
	MsgDiagnosticCount = "diag.count"
	MsgInternalError   = "diag.internal_error"

	// ========== 配置 ==========
	ErrConfigRead    = "config.read_failed"
	ErrConfigParse   = "config.parse_failed"
	ErrConfigWrite   = "config.write_failed"
	ErrConfigInvalid = "config.invalid"
	MsgConfigWritten = "config.written"
	MsgConfigExists  = "config.exists"

	// ========== 命令行 ==========
	MsgUsage         = "cli.usage"
	MsgVersion       = "cli.version"
	ErrNoInput       = "cli.no_input"
	ErrReadFailed    = "cli.read_failed"
	ErrUnknownFormat = "cli.unknown_format"
	ErrUnknownPass   = "cli.unknown_pass"
	MsgPassStats     = "cli.pass_stats"

	// ========== 命令行选项 ==========
	OptConfig    = "opt.config"
	OptPasses    = "opt.passes"
	OptPrint     = "opt.print"
	OptDumpPaths = "opt.dump_paths"
	OptFormat    = "opt.format"
	OptLang      = "opt.lang"
	OptNoColor   = "opt.no_color"
	OptVerbose   = "opt.verbose"
	OptInit      = "opt.init"
	OptVersion   = "opt.version"
)
