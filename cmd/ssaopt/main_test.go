package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/segmentio/encoding/json"
	"go.lsp.dev/protocol"

	"github.com/tangzhangming/ssaopt/internal/i18n"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	t.Cleanup(func() { i18n.SetLanguage(i18n.LangEnglish) })
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// TestPreprocessArgs 测试提取 -lang 参数
func TestPreprocessArgs(t *testing.T) {
	tests := []struct {
		args []string
		lang string
		rest string
	}{
		{[]string{"-lang", "zh", "a.ssa"}, "zh", "a.ssa"},
		{[]string{"--lang=en", "-print", "a.ssa"}, "en", "-print a.ssa"},
		{[]string{"-lang=zh"}, "zh", ""},
		{[]string{"-print", "-lang"}, "", "-print -lang"},
	}
	for _, tt := range tests {
		lang, rest := preprocessArgs(tt.args)
		if lang != tt.lang || strings.Join(rest, " ") != tt.rest {
			t.Errorf("preprocessArgs(%v) = %q, %v", tt.args, lang, rest)
		}
	}
}

// TestVersion 测试 -version
func TestVersion(t *testing.T) {
	code, out, _ := runCLI(t, "-version")
	if code != exitOK || !strings.Contains(out, "ssaopt version "+Version) {
		t.Errorf("code=%d out=%q", code, out)
	}

	code, out, _ = runCLI(t, "-lang", "zh", "-version")
	if code != exitOK || !strings.Contains(out, Version) || strings.Contains(out, "version") {
		t.Errorf("expected a Chinese version line, got %q", out)
	}
}

// TestUsageErrors 测试参数错误的退出状态
func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no input", []string{"-no-color"}, "no input files"},
		{"unknown pass", []string{"-passes", "thread-jumps,dce", "testdata/joiner.ssa"}, "unknown pass 'dce'"},
		{"unknown format", []string{"-format", "xml", "testdata/joiner.ssa"}, "unknown diagnostics format 'xml'"},
		{"missing file", []string{"-no-color", "testdata/missing.ssa"}, "failed to read testdata/missing.ssa"},
		{"bad flag", []string{"-bogus"}, "-bogus"},
	}
	for _, tt := range tests {
		code, _, errOut := runCLI(t, tt.args...)
		if code != exitError {
			t.Errorf("%s: exit code %d, want %d", tt.name, code, exitError)
		}
		if !strings.Contains(errOut, tt.want) {
			t.Errorf("%s: stderr %q does not contain %q", tt.name, errOut, tt.want)
		}
	}
}

// TestTextDiagnostics 测试文本诊断与 -print 输出
func TestTextDiagnostics(t *testing.T) {
	code, out, errOut := runCLI(t, "-no-color", "-print", "testdata/nullphi.ssa")
	if code != exitOK {
		t.Fatalf("exit code %d\n%s", code, errOut)
	}
	if !strings.Contains(errOut, "W0502") || !strings.Contains(errOut, "found 1 diagnostic(s)") {
		t.Errorf("expected one W0502 warning, got:\n%s", errOut)
	}
	if !strings.Contains(out, "store volatile") || !strings.Contains(out, "trap") {
		t.Errorf("printed IR should contain the isolated path:\n%s", out)
	}
}

// TestParseErrors 测试文本 SSA 错误
func TestParseErrors(t *testing.T) {
	code, _, errOut := runCLI(t, "-no-color", "testdata/broken.ssa")
	if code != exitError {
		t.Errorf("exit code %d, want %d", code, exitError)
	}
	if !strings.Contains(errOut, "E01") {
		t.Errorf("expected textual IR errors, got:\n%s", errOut)
	}
}

// TestLSPFormat 测试以 LSP 诊断格式输出
func TestLSPFormat(t *testing.T) {
	code, out, errOut := runCLI(t, "-format", "lsp", "testdata/nullphi.ssa", "testdata/joiner.ssa")
	if code != exitOK {
		t.Fatalf("exit code %d\n%s", code, errOut)
	}

	var params []protocol.PublishDiagnosticsParams
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var p protocol.PublishDiagnosticsParams
		if err := json.Unmarshal([]byte(line), &p); err != nil {
			t.Fatalf("decode: %v\n%s", err, out)
		}
		params = append(params, p)
	}
	if len(params) != 2 {
		t.Fatalf("expected one notification per file, got %d", len(params))
	}
	if len(params[0].Diagnostics) != 1 || params[0].Diagnostics[0].Code != "W0502" {
		t.Errorf("unexpected diagnostics for nullphi.ssa: %+v", params[0].Diagnostics)
	}
	if !strings.HasSuffix(string(params[0].URI), "nullphi.ssa") {
		t.Errorf("unexpected uri %s", params[0].URI)
	}
	if len(params[1].Diagnostics) != 0 {
		t.Errorf("joiner.ssa should have no diagnostics: %+v", params[1].Diagnostics)
	}
}

// TestDumpPaths 测试输出线程化路径
func TestDumpPaths(t *testing.T) {
	code, out, errOut := runCLI(t, "-passes", "thread-jumps,cleanup-cfg", "-dump-paths", "testdata/joiner.ssa")
	if code != exitOK {
		t.Fatalf("exit code %d\n%s", code, errOut)
	}
	var dump struct {
		Func  string            `json:"func"`
		Paths []json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &dump); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if dump.Func != "j" || len(dump.Paths) != 2 {
		t.Errorf("expected 2 paths for j, got %s", out)
	}
}

// TestConfigFile 测试 -config 与配置中的流水线
func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ssaopt.toml")
	content := `
[params]
isolate_paths_dereference = false

[warnings]
null_dereference = false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	code, out, errOut := runCLI(t, "-config", path, "-no-color", "-print", "testdata/nullphi.ssa")
	if code != exitOK {
		t.Fatalf("exit code %d\n%s", code, errOut)
	}
	if strings.Contains(errOut, "W0502") || strings.Contains(out, "trap") {
		t.Errorf("dereference isolation is disabled:\n%s\n%s", out, errOut)
	}

	bad := filepath.Join(t.TempDir(), "ssaopt.toml")
	if err := os.WriteFile(bad, []byte("language = \"fr\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if code, _, errOut := runCLI(t, "-config", bad, "testdata/nullphi.ssa"); code != exitError || !strings.Contains(errOut, "language") {
		t.Errorf("expected an invalid configuration error, got %d %q", code, errOut)
	}
}

// TestInit 测试 -init 写入默认配置
func TestInit(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	code, out, _ := runCLI(t, "-init")
	if code != exitOK || !strings.Contains(out, "ssaopt.toml") {
		t.Errorf("code=%d out=%q", code, out)
	}
	if _, err := os.Stat(filepath.Join(dir, "ssaopt.toml")); err != nil {
		t.Errorf("config file not written: %v", err)
	}
	if code, _, errOut := runCLI(t, "-init"); code != exitError || !strings.Contains(errOut, "already exists") {
		t.Errorf("second -init: code=%d stderr=%q", code, errOut)
	}
}
