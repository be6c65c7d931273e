package errors

import (
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// DiagnosticSource LSP 诊断的来源名
const DiagnosticSource = "ssaopt"

// ToLSPDiagnostic 将诊断转换为 LSP 诊断
// 次要标签（如局部变量的声明处）转为 RelatedInformation。
func ToLSPDiagnostic(err *CompileError) protocol.Diagnostic {
	severity := protocol.DiagnosticSeverityError

	switch err.Level {
	case LevelWarning:
		severity = protocol.DiagnosticSeverityWarning
	case LevelNote:
		severity = protocol.DiagnosticSeverityInformation
	case LevelHelp:
		severity = protocol.DiagnosticSeverityHint
	}

	endCol := err.EndColumn
	if endCol <= err.Column {
		endCol = err.Column + 1
	}
	diag := protocol.Diagnostic{
		Range:    lspRange(err.Line, err.Column, endCol),
		Severity: severity,
		Code:     err.Code,
		Source:   DiagnosticSource,
		Message:  err.Message,
	}

	docURI := protocol.DocumentURI(uri.File(err.File))
	for _, label := range err.Labels {
		length := label.Length
		if length < 1 {
			length = 1
		}
		diag.RelatedInformation = append(diag.RelatedInformation, protocol.DiagnosticRelatedInformation{
			Location: protocol.Location{
				URI:   docURI,
				Range: lspRange(label.Line, label.Column, label.Column+length),
			},
			Message: label.Message,
		})
	}
	return diag
}

// PublishParams 将同一文件的诊断打包为 textDocument/publishDiagnostics 参数
func PublishParams(path string, diags []*CompileError) protocol.PublishDiagnosticsParams {
	out := make([]protocol.Diagnostic, 0, len(diags))
	for _, d := range diags {
		out = append(out, ToLSPDiagnostic(d))
	}
	return protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentURI(uri.File(path)),
		Diagnostics: out,
	}
}

// lspRange 行列号从 1 开始，LSP 从 0 开始
func lspRange(line, startCol, endCol int) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: zeroBased(line), Character: zeroBased(startCol)},
		End:   protocol.Position{Line: zeroBased(line), Character: zeroBased(endCol)},
	}
}

func zeroBased(n int) uint32 {
	if n <= 0 {
		return 0
	}
	return uint32(n - 1)
}
