package errors

import (
	"bytes"
	"strings"
	"testing"

	"go.lsp.dev/protocol"

	"github.com/tangzhangming/ssaopt/internal/i18n"
)

const source = `func r() {
entry:
  local x
  return &x
}`

// TestDiagnosticMessages 测试每个诊断码都有英文和中文消息
func TestDiagnosticMessages(t *testing.T) {
	defer i18n.SetLanguage(i18n.LangEnglish)
	for code, info := range diagnosticInfos {
		if info.Code != code {
			t.Errorf("%s: table entry has code %s", code, info.Code)
		}
		if !i18n.Has(info.MessageID) {
			t.Errorf("%s: no message for %s", code, info.MessageID)
		}
		if IsWarningCode(code) != strings.HasPrefix(code, "W") {
			t.Errorf("%s: unexpected level %s", code, info.Level)
		}
	}

	i18n.SetLanguage(i18n.LangChinese)
	zh := NewCompileError(W0501, "a.ssa", 1, 1).Message
	i18n.SetLanguage(i18n.LangEnglish)
	if en := NewCompileError(W0501, "a.ssa", 1, 1).Message; en == zh || en != "null pointer dereference" {
		t.Errorf("expected different messages, got %q and %q", en, zh)
	}
}

// TestReporterOutput 测试报告器的文本格式
func TestReporterOutput(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)
	f := NewFormatter()
	f.Colors = false
	r.SetFormatter(f)
	r.SetSource("r.ssa", source)

	err := NewCompileError(W0503, "r.ssa", 4, 3).WithLabel(3, 9, 1, i18n.T(i18n.MsgDeclaredHere))
	err.EndColumn = 12
	r.Report(err)

	out := buf.String()
	for _, want := range []string{
		"warning[W0503]: function returns address of local variable",
		"--> r.ssa:4:3",
		"4 |   return &x",
		"^^^^^^^^^",
		"3 |   local x",
		"^ declared here",
		"= help: Return the value itself instead of its address",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if r.WarningCount() != 1 || r.ErrorCount() != 0 || r.HasErrors() {
		t.Errorf("unexpected counts: %d warnings, %d errors", r.WarningCount(), r.ErrorCount())
	}

	r.Report(NewCompileError(E0106, "r.ssa", 4, 11, "y"))
	all := r.All()
	if len(all) != 2 || all[0].Code != E0106 {
		t.Errorf("errors should come first in All()")
	}
	r.Clear()
	if len(r.All()) != 0 {
		t.Errorf("Clear should drop all diagnostics")
	}
}

// TestFormatterGutter 测试行号宽度与 Tab 展开
func TestFormatterGutter(t *testing.T) {
	lines := strings.Split("func g() {\nentry:\n\tlocal buf\n"+strings.Repeat("  nop\n", 6)+"  return &buf\n}", "\n")
	err := NewCompileError(W0503, "g.ssa", 10, 3).WithLabel(3, 2, 5, "declared here")
	err.EndColumn = 14

	f := NewFormatter()
	f.Colors = false
	out := f.FormatCompileError(err, lines)
	for _, want := range []string{
		"   |\n",
		"10 |   return &buf\n",
		"       ^^^^^^^^^^^\n",
		" 3 |     local buf\n",
		"         ^^^^^ declared here\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	f.ShowSource = false
	if out := f.FormatCompileError(err, lines); strings.Contains(out, "|") {
		t.Errorf("source lines should be hidden:\n%s", out)
	}
}

// TestSuggestions 测试修复建议
func TestSuggestions(t *testing.T) {
	tests := []struct {
		code string
		ctx  map[string]interface{}
		n    int
	}{
		{W0501, nil, 1},
		{W0504, nil, 1},
		{W0504, map[string]interface{}{"local": "buf"}, 2},
		{W0506, nil, 1},
		{W0507, nil, 1},
		{E0101, nil, 0},
	}
	for _, tt := range tests {
		if got := GetSuggestions(tt.code, tt.ctx); len(got) != tt.n {
			t.Errorf("%s: expected %d suggestions, got %v", tt.code, tt.n, got)
		}
	}
	if got := GetSuggestions(W0503, map[string]interface{}{"local": "buf"}); !strings.Contains(got[1], "'buf'") {
		t.Errorf("suggestion should name the local: %v", got)
	}
}

// TestToLSPDiagnostic 测试 LSP 诊断转换
func TestToLSPDiagnostic(t *testing.T) {
	err := NewCompileError(W0504, "/tmp/r.ssa", 4, 3).WithLabel(3, 9, 1, "declared here")
	d := ToLSPDiagnostic(err)

	if d.Severity != protocol.DiagnosticSeverityWarning || d.Code != W0504 || d.Source != DiagnosticSource {
		t.Errorf("unexpected diagnostic %+v", d)
	}
	if d.Range.Start.Line != 3 || d.Range.Start.Character != 2 || d.Range.End.Character != 3 {
		t.Errorf("unexpected range %+v", d.Range)
	}
	if len(d.RelatedInformation) != 1 {
		t.Fatalf("expected the label as related information")
	}
	rel := d.RelatedInformation[0]
	if rel.Location.Range.Start.Line != 2 || rel.Location.Range.Start.Character != 8 || rel.Message != "declared here" {
		t.Errorf("unexpected related information %+v", rel)
	}
	if !strings.HasPrefix(string(rel.Location.URI), "file://") {
		t.Errorf("expected a file uri, got %s", rel.Location.URI)
	}

	params := PublishParams("/tmp/r.ssa", nil)
	if params.Diagnostics == nil || len(params.Diagnostics) != 0 {
		t.Errorf("an empty file should publish an empty list")
	}
}

// TestInternalError 测试内部错误的恢复
func TestInternalError(t *testing.T) {
	defer func() {
		ie, ok := AsInternalError(recover())
		if !ok {
			t.Fatal("expected an internal error")
		}
		if ie.Message != "block X_7 lost statement 2" || !strings.HasPrefix(ie.Error(), "internal compiler error") {
			t.Errorf("unexpected error %v", ie)
		}
	}()
	ICE("block %s lost statement %d", "X_7", 2)
}

// TestColorize 测试颜色开关
func TestColorize(t *testing.T) {
	defer SetColorsEnabled(ColorsEnabled())

	SetColorsEnabled(true)
	s := Colorize("warning", ColorYellow)
	if s == "warning" || Strip(s) != "warning" {
		t.Errorf("unexpected colored string %q", s)
	}
	SetColorsEnabled(false)
	if Colorize("warning", ColorYellow) != "warning" {
		t.Errorf("colors disabled but output is colored")
	}
}
