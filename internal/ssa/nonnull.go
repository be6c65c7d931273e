package ssa

// ============================================================================
// 非空推断
// ============================================================================

// InferNonNullRangeByDereference 语句是否解引用 op（load 的地址或 store 的目标）
// 若是，则语句执行后 op 必然非空；op 为空常量时语句必然出错。
func InferNonNullRangeByDereference(s Stmt, op Operand) bool {
	switch s := s.(type) {
	case *Assign:
		return s.Op == OpLoad && Equal(s.X, op)
	case *Store:
		return Equal(s.Ptr, op)
	}
	return false
}

// InferNonNullRangeByAttribute 语句是否因属性要求 op 非空
// 包括传给 nonnull 参数，以及在 returns_nonnull 函数中返回 op。
func InferNonNullRangeByAttribute(s Stmt, op Operand) bool {
	switch s := s.(type) {
	case *Call:
		for _, i := range s.NonNull {
			if i >= 0 && i < len(s.Params) && Equal(s.Params[i], op) {
				return true
			}
		}
	case *Return:
		b := s.Block()
		return s.Val != nil && b != nil && b.Func != nil && b.Func.ReturnsNonNull && Equal(s.Val, op)
	}
	return false
}

// IsDivModBy 语句是否以 op 为除数做除法或取模
func IsDivModBy(s Stmt, op Operand) bool {
	a, ok := s.(*Assign)
	return ok && (a.Op == OpDiv || a.Op == OpMod) && Equal(a.Y, op)
}

// IsDereference 语句是否解引用任何指针
func IsDereference(s Stmt) bool {
	switch s := s.(type) {
	case *Assign:
		return s.Op == OpLoad
	case *Store:
		return true
	}
	return false
}
