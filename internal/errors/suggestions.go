package errors

import (
	"github.com/tangzhangming/ssaopt/internal/i18n"
)

// ============================================================================
// 修复建议生成器
// ============================================================================

// SuggestionGenerator 修复建议生成器
type SuggestionGenerator struct{}

// NewSuggestionGenerator 创建修复建议生成器
func NewSuggestionGenerator() *SuggestionGenerator {
	return &SuggestionGenerator{}
}

// GetSuggestions 根据诊断码和上下文获取修复建议
func (g *SuggestionGenerator) GetSuggestions(code string, context map[string]interface{}) []string {
	switch code {
	case W0501, W0502:
		return []string{i18n.T(i18n.SuggestCheckNull)}
	case W0503, W0504:
		return g.localAddrSuggestions(context)
	case W0505, W0506:
		return []string{i18n.T(i18n.SuggestCheckDivisor)}
	case W0507:
		return []string{i18n.T(i18n.SuggestNonNullContract)}
	}
	return nil
}

// localAddrSuggestions 返回局部变量地址的建议
func (g *SuggestionGenerator) localAddrSuggestions(context map[string]interface{}) []string {
	suggestions := []string{i18n.T(i18n.SuggestReturnByValue)}
	if name, ok := context["local"].(string); ok && name != "" {
		suggestions = append(suggestions, i18n.T(i18n.SuggestStaticStorage, name))
	}
	return suggestions
}

// ============================================================================
// 全局生成器
// ============================================================================

var defaultSuggestionGenerator = NewSuggestionGenerator()

// GetSuggestions 使用默认生成器获取修复建议
func GetSuggestions(code string, context map[string]interface{}) []string {
	return defaultSuggestionGenerator.GetSuggestions(code, context)
}
