package ssa

import (
	"fmt"
	"strings"
)

// String 以文本 SSA 形式输出函数，输出可被 irtext 重新解析
func (f *Func) String() string {
	var sb strings.Builder

	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = fmt.Sprintf("%s:%s", p.Name, p.Type())
	}
	fmt.Fprintf(&sb, "func %s(%s)", f.Name, strings.Join(params, ", "))
	if f.ReturnsNonNull {
		sb.WriteString(" returns_nonnull")
	}
	sb.WriteString(" {\n")

	for _, l := range f.Locals {
		if l.Global {
			fmt.Fprintf(&sb, "  global %s\n", l.Name)
		} else {
			fmt.Fprintf(&sb, "  local %s\n", l.Name)
		}
	}
	for _, b := range f.Blocks {
		writeBlock(&sb, b)
	}
	sb.WriteString("}\n")
	return sb.String()
}

// Dump 输出单个块的文本形式
func (b *Block) Dump() string {
	var sb strings.Builder
	writeBlock(&sb, b)
	return sb.String()
}

func writeBlock(sb *strings.Builder, b *Block) {
	fmt.Fprintf(sb, "%s:\n", b.Name)
	for _, p := range b.Phis {
		fmt.Fprintf(sb, "  %s\n", p)
	}
	for _, s := range b.Stmts {
		fmt.Fprintf(sb, "  %s\n", s)
	}
	if needsGoto(b) {
		targets := make([]string, len(b.Succs))
		for i, e := range b.Succs {
			targets[i] = e.targetString()
		}
		fmt.Fprintf(sb, "  goto %s\n", strings.Join(targets, ", "))
	}
}

// needsGoto 块的出边是否需要一条显式的无条件跳转来表示
func needsGoto(b *Block) bool {
	if len(b.Succs) == 0 {
		return false
	}
	switch b.Last().(type) {
	case *Cond, *Switch, *Goto:
		return false
	}
	return true
}
