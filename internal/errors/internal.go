package errors

import "fmt"

// InternalError 编译器内部不变量被破坏，编译必须立即中止
type InternalError struct {
	Message string
}

func (e *InternalError) Error() string {
	return "internal compiler error: " + e.Message
}

// ICE 以 *InternalError 触发 panic
// 只有命令行入口会恢复它，用于打印信息并以状态 3 退出。
func ICE(format string, args ...interface{}) {
	panic(&InternalError{Message: fmt.Sprintf(format, args...)})
}

// AsInternalError 从 recover() 的结果中取出 *InternalError
func AsInternalError(r interface{}) (*InternalError, bool) {
	ie, ok := r.(*InternalError)
	return ie, ok
}
