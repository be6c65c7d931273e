package errors

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ============================================================================
// 诊断接收端
// ============================================================================

// Sink 诊断接收端，优化 pass 通过它输出诊断
type Sink interface {
	Report(err *CompileError)
}

// Collector 只收集诊断、不输出的接收端
type Collector struct {
	Diagnostics []*CompileError
}

// Report 实现 Sink
func (c *Collector) Report(err *CompileError) {
	c.Diagnostics = append(c.Diagnostics, err)
}

// Codes 返回已收集诊断的诊断码（按报告顺序）
func (c *Collector) Codes() []string {
	codes := make([]string, len(c.Diagnostics))
	for i, d := range c.Diagnostics {
		codes[i] = d.Code
	}
	return codes
}

// Len 已收集的诊断数
func (c *Collector) Len() int { return len(c.Diagnostics) }

// ============================================================================
// 诊断报告器
// ============================================================================

// Reporter 诊断报告器，格式化后写到输出流
type Reporter struct {
	formatter   *Formatter
	out         io.Writer
	sourceCache map[string][]string // 源代码缓存
	errors      []*CompileError
	warnings    []*CompileError
}

// NewReporter 创建写到 out 的报告器
func NewReporter(out io.Writer) *Reporter {
	return &Reporter{
		formatter:   NewFormatter(),
		out:         out,
		sourceCache: make(map[string][]string),
	}
}

// SetFormatter 设置格式化器
func (r *Reporter) SetFormatter(f *Formatter) {
	r.formatter = f
}

// LoadSource 加载源文件
func (r *Reporter) LoadSource(filename string) error {
	if _, ok := r.sourceCache[filename]; ok {
		return nil // 已加载
	}

	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	r.sourceCache[filename] = lines
	return nil
}

// SetSource 设置源代码（用于测试或内存中的源代码）
func (r *Reporter) SetSource(filename string, content string) {
	r.sourceCache[filename] = strings.Split(content, "\n")
}

// GetSourceLines 获取源代码行数组
func (r *Reporter) GetSourceLines(filename string) []string {
	return r.sourceCache[filename]
}

// ============================================================================
// 报告
// ============================================================================

// Report 实现 Sink：按级别记录并输出诊断
func (r *Reporter) Report(err *CompileError) {
	if err.Level == LevelError {
		r.ReportError(err)
		return
	}
	r.ReportWarning(err)
}

// ReportError 报告错误
func (r *Reporter) ReportError(err *CompileError) {
	err.Level = LevelError
	r.errors = append(r.errors, err)
	r.emit(err)
}

// ReportWarning 报告警告
func (r *Reporter) ReportWarning(err *CompileError) {
	if err.Level == LevelError {
		err.Level = LevelWarning
	}
	r.warnings = append(r.warnings, err)
	r.emit(err)
}

func (r *Reporter) emit(err *CompileError) {
	// 未提供源码时尝试从磁盘加载，失败则只输出位置
	_ = r.LoadSource(err.File)

	if len(err.Hints) == 0 {
		err.Hints = GetSuggestions(err.Code, map[string]interface{}{
			"file": err.File,
			"line": err.Line,
		})
	}
	fmt.Fprint(r.out, r.formatter.FormatCompileError(err, r.GetSourceLines(err.File)))
}

// ============================================================================
// 状态查询
// ============================================================================

// HasErrors 是否有错误
func (r *Reporter) HasErrors() bool {
	return len(r.errors) > 0
}

// ErrorCount 错误数量
func (r *Reporter) ErrorCount() int {
	return len(r.errors)
}

// WarningCount 警告数量
func (r *Reporter) WarningCount() int {
	return len(r.warnings)
}

// All 获取全部诊断，错误在前
func (r *Reporter) All() []*CompileError {
	all := make([]*CompileError, 0, len(r.errors)+len(r.warnings))
	all = append(all, r.errors...)
	return append(all, r.warnings...)
}

// Clear 清空错误和警告
func (r *Reporter) Clear() {
	r.errors = nil
	r.warnings = nil
}
