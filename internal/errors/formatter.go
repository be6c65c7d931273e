package errors

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tangzhangming/ssaopt/internal/i18n"
)

// ============================================================================
// 错误标签
// ============================================================================

// Label 代码标签（用于标注相关位置，例如局部变量的声明处）
type Label struct {
	Line    int    // 行号（1-based）
	Column  int    // 列号（1-based）
	Length  int    // 标注长度
	Message string // 标签消息
}

// ============================================================================
// 编译错误
// ============================================================================

// CompileError 编译诊断（文本 IR 错误或路径隔离警告）
type CompileError struct {
	Code      string   // 诊断码 (W0501)
	Level     Level    // 诊断级别
	Message   string   // 主消息
	File      string   // 文件路径
	Line      int      // 行号
	Column    int      // 列号
	EndColumn int      // 结束列
	Labels    []Label  // 代码标签
	Hints     []string // 修复建议
}

// Error 实现 error 接口
func (e *CompileError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
}

// NewCompileError 按诊断码创建诊断，消息通过 i18n 翻译
func NewCompileError(code, file string, line, col int, args ...interface{}) *CompileError {
	level := LevelError
	msg := code
	if info, ok := GetErrorInfo(code); ok {
		level = info.Level
		msg = i18n.T(info.MessageID, args...)
	}
	return &CompileError{
		Code:    code,
		Level:   level,
		Message: msg,
		File:    file,
		Line:    line,
		Column:  col,
	}
}

// WithLabel 追加一个次要标签
func (e *CompileError) WithLabel(line, col, length int, msg string) *CompileError {
	e.Labels = append(e.Labels, Label{Line: line, Column: col, Length: length, Message: msg})
	return e
}

// WithHint 追加修复建议
func (e *CompileError) WithHint(hint string) *CompileError {
	e.Hints = append(e.Hints, hint)
	return e
}

// ============================================================================
// 格式化器
// ============================================================================

// Formatter 错误格式化器
type Formatter struct {
	Colors     bool // 是否使用颜色
	ShowSource bool // 是否显示源代码
	ShowHints  bool // 是否显示修复建议
	TabWidth   int  // Tab 宽度
}

// NewFormatter 创建默认格式化器
func NewFormatter() *Formatter {
	return &Formatter{
		Colors:     true,
		ShowSource: true,
		ShowHints:  true,
		TabWidth:   4,
	}
}

// FormatCompileError 格式化一条诊断
//
//	warning[W0503]: function returns address of local variable
//	 --> r.ssa:4:3
//	  |
//	4 |   return &x
//	      ^^^^^^^^^
//	3 |   local x
//	            ^ declared here
//	 = help: ...
func (f *Formatter) FormatCompileError(err *CompileError, sourceLines []string) string {
	var sb strings.Builder

	color := levelColor(err.Level)
	fmt.Fprintf(&sb, "%s%s: %s\n",
		f.colorize(err.Level.String(), color),
		f.colorize("["+err.Code+"]", color),
		err.Message)
	fmt.Fprintf(&sb, " %s %s\n",
		f.colorize("-->", ColorCyan),
		f.colorize(fmt.Sprintf("%s:%d:%d", err.File, err.Line, err.Column), ColorCyan))

	if f.ShowSource && err.Line > 0 && err.Line <= len(sourceLines) {
		f.writeSnippet(&sb, err, sourceLines)
	}
	if f.ShowHints {
		for _, hint := range err.Hints {
			fmt.Fprintf(&sb, "%s %s\n", f.colorize(" = help:", ColorCyan), hint)
		}
	}
	return sb.String()
}

// writeSnippet 输出诊断所在行及其标签所在行
// 与诊断同一行的标签不单独显示。
func (f *Formatter) writeSnippet(sb *strings.Builder, err *CompileError, lines []string) {
	width := len(strconv.Itoa(err.Line))
	for _, l := range err.Labels {
		if w := len(strconv.Itoa(l.Line)); w > width {
			width = w
		}
	}
	gutter := strings.Repeat(" ", width)
	sb.WriteString(f.colorize(gutter+" |", ColorBlue) + "\n")

	length := err.EndColumn - err.Column
	if length < 1 {
		length = 1
	}
	f.writeLine(sb, width, err.Line, lines[err.Line-1])
	f.writeMarker(sb, width, lines[err.Line-1], err.Column, length, "", ColorRed)

	for _, l := range err.Labels {
		if l.Line == err.Line || l.Line <= 0 || l.Line > len(lines) {
			continue
		}
		f.writeLine(sb, width, l.Line, lines[l.Line-1])
		if l.Message != "" {
			f.writeMarker(sb, width, lines[l.Line-1], l.Column, l.Length, l.Message, ColorYellow)
		}
	}
}

// writeLine 输出带行号的源代码行
func (f *Formatter) writeLine(sb *strings.Builder, width, n int, line string) {
	num := f.colorize(fmt.Sprintf("%*d |", width, n), ColorBlue)
	fmt.Fprintf(sb, "%s %s\n", num, strings.ReplaceAll(line, "\t", strings.Repeat(" ", f.TabWidth)))
}

// writeMarker 在 col 处输出 length 个 ^ 与可选的消息
func (f *Formatter) writeMarker(sb *strings.Builder, width int, line string, col, length int, msg string, color Color) {
	if length < 1 {
		length = 1
	}
	mark := strings.Repeat("^", length)
	if msg != "" {
		mark += " " + msg
	}
	pad := width + 3 + f.displayColumn(line, col)
	sb.WriteString(strings.Repeat(" ", pad) + f.colorize(mark, color) + "\n")
}

// displayColumn 1-based 列号在展开 Tab 之后的偏移
func (f *Formatter) displayColumn(line string, col int) int {
	n := 0
	for i := 0; i < col-1 && i < len(line); i++ {
		if line[i] == '\t' {
			n += f.TabWidth
		} else {
			n++
		}
	}
	return n
}

func levelColor(level Level) Color {
	switch level {
	case LevelError:
		return ColorRed
	case LevelWarning:
		return ColorYellow
	case LevelNote:
		return ColorCyan
	case LevelHelp:
		return ColorGreen
	default:
		return ColorWhite
	}
}

func (f *Formatter) colorize(s string, color Color) string {
	if !f.Colors {
		return s
	}
	return Colorize(s, color)
}
