// Package i18n 提供诊断、文本 SSA 错误与命令行输出的中英文消息
package i18n

import (
	"fmt"
	"sync"
)

// Language 语言类型
type Language string

const (
	LangEnglish Language = "en"
	LangChinese Language = "zh"
)

// 全局语言设置
var (
	currentLang Language = LangEnglish
	mu          sync.RWMutex
)

// SetLanguage 设置当前语言
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()
	currentLang = lang
}

// SetLanguageFromString 从字符串设置语言
func SetLanguageFromString(lang string) {
	switch lang {
	case "zh", "zh-cn", "zh-tw", "zh-hk", "chinese":
		SetLanguage(LangChinese)
	default:
		SetLanguage(LangEnglish)
	}
}

// GetLanguage 获取当前语言
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

// T 翻译消息（支持格式化参数）
// 当前语言缺少该消息时回退到英文，英文也没有则返回消息 ID。
func T(msgID string, args ...interface{}) string {
	msg, ok := lookup(GetLanguage(), msgID)
	if !ok {
		return msgID
	}
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}

func lookup(lang Language, msgID string) (string, bool) {
	if lang == LangChinese {
		if msg, ok := messagesZH[msgID]; ok {
			return msg, true
		}
	}
	msg, ok := messagesEN[msgID]
	return msg, ok
}

// Has 检查消息 ID 是否有英文文本
func Has(msgID string) bool {
	_, ok := messagesEN[msgID]
	return ok
}
