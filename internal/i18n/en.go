package i18n

var messagesEN = map[string]string{
	// ========== Textual SSA ==========
	ErrUnexpectedChar:     "unexpected character %q",
	ErrUnterminatedString: "unterminated string",
	ErrInvalidNumber:      "invalid number: %s",
	ErrExpectedToken:      "expected %s, found %s",
	ErrUnexpectedToken:    "unexpected token: %s",
	ErrUndefinedValue:     "undefined value '%s'",
	ErrValueRedefined:     "value '%s' is defined more than once",
	ErrUndefinedBlock:     "undefined block '%s'",
	ErrBlockRedefined:     "block '%s' is defined more than once",
	ErrPhiPredMismatch:    "phi '%s' in block '%s' does not match its predecessors: %s",
	ErrUnknownOp:          "unknown operator or type '%s'",
	ErrUndeclaredLocal:    "undeclared local variable '%s'",

	// ========== Path isolation ==========
	MsgNullDereference:          "null pointer dereference",
	MsgPotentialNullDereference: "potential null pointer dereference",
	MsgReturnsLocalAddr:         "function returns address of local variable",
	MsgMayReturnLocalAddr:       "function may return address of local variable",
	MsgDivisionByZero:           "division by zero",
	MsgPotentialDivisionByZero:  "potential division by zero",
	MsgNullNonNullArg:           "null pointer passed where a non-null value is required",
	MsgDeclaredHere:             "declared here",

	// ========== Suggestions ==========
	SuggestCheckNull:       "Check the pointer against null before dereferencing it",
	SuggestCheckDivisor:    "Check if divisor is zero before division",
	SuggestReturnByValue:   "Return the value itself instead of its address",
	SuggestStaticStorage:   "Give '%s' static storage if its address must outlive the call",
	SuggestNonNullContract: "The callee is declared to require a non-null argument; test the value first",

	// ========== Diagnostics ==========
	MsgDiagnosticCount: "found %d diagnostic(s)",
	MsgInternalError:   "internal compiler error: %v",

	// ========== Config ==========
	ErrConfigRead:    "failed to read config file: %v",
	ErrConfigParse:   "failed to parse config file: %v",
	ErrConfigWrite:   "failed to write config file: %v",
	ErrConfigInvalid: "invalid configuration: %v",
	MsgConfigWritten: "wrote %s",
	MsgConfigExists:  "%s already exists",

	// ========== CLI ==========
	MsgUsage: `Usage: %s [options] <file.ssa>...

Runs jump threading and path isolation over functions in textual SSA form.

Options:
`,
	MsgVersion:       "%s version %s",
	ErrNoInput:       "no input files",
	ErrReadFailed:    "failed to read %s: %v",
	ErrUnknownFormat: "unknown diagnostics format '%s' (want text or lsp)",
	ErrUnknownPass:   "unknown pass '%s'",
	MsgPassStats:     "%-14s runs=%d changed=%d time=%s",

	// ========== Options ==========
	OptConfig:    "TOML config file (default: nearest ssaopt.toml)",
	OptPasses:    "comma-separated pass pipeline, overrides the config",
	OptPrint:     "print the IR after the pipeline",
	OptDumpPaths: "print registered jump-thread paths as JSON",
	OptFormat:    "diagnostics format: text or lsp",
	OptLang:      "message language: en or zh",
	OptNoColor:   "disable coloured output",
	OptVerbose:   "debug logging",
	OptInit:      "write a default ssaopt.toml and exit",
	OptVersion:   "print the version and exit",
}
