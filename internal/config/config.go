// Package config 读取 ssaopt.toml：优化参数、诊断开关与 pass 流水线
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"

	"github.com/tangzhangming/ssaopt/internal/isolate"
	"github.com/tangzhangming/ssaopt/internal/threading"
)

// 常量定义
const (
	ConfigFileName = "ssaopt.toml" // 配置文件名
)

// pass 名称
const (
	PassThreadJumps  = "thread-jumps"
	PassFSMThread    = "fsm-thread"
	PassIsolatePaths = "isolate-paths"
	PassCleanupCFG   = "cleanup-cfg"
)

// KnownPasses 可以出现在流水线中的 pass
var KnownPasses = []string{PassThreadJumps, PassFSMThread, PassIsolatePaths, PassCleanupCFG}

// Config 配置
type Config struct {
	// Language 诊断语言（en 或 zh）
	Language string `toml:"language"`

	Params   Params   `toml:"params"`
	Warnings Warnings `toml:"warnings"`
	Passes   Passes   `toml:"passes"`
}

// Params 优化参数
type Params struct {
	IsolatePathsDereference bool `toml:"isolate_paths_dereference"`
	IsolatePathsAttribute   bool `toml:"isolate_paths_attribute"`
	IsolatePathsDivision    bool `toml:"isolate_paths_division"`

	MaxJumpThreadDuplicationStmts int `toml:"max_jump_thread_duplication_stmts"`
	MaxFSMThreadLength            int `toml:"max_fsm_thread_length"`
	MaxFSMThreadPaths             int `toml:"max_fsm_thread_paths"`
	MaxFSMThreadPathInsns         int `toml:"max_fsm_thread_path_insns"`
}

// Warnings 诊断开关
type Warnings struct {
	NullDereference bool `toml:"null_dereference"`
	ReturnLocalAddr bool `toml:"return_local_addr"`
}

// Passes 流水线
type Passes struct {
	Pipeline []string `toml:"pipeline"`
	Verify   bool     `toml:"verify"` // 每个修改了函数的 pass 之后校验 CFG
}

// Default 默认配置
func Default() *Config {
	topts := threading.DefaultOptions()
	iopts := isolate.DefaultOptions()
	return &Config{
		Language: "en",
		Params: Params{
			IsolatePathsDereference:       iopts.Dereference,
			IsolatePathsAttribute:         iopts.Attribute,
			IsolatePathsDivision:          iopts.Division,
			MaxJumpThreadDuplicationStmts: topts.MaxDuplicationStmts,
			MaxFSMThreadLength:            topts.MaxFSMLength,
			MaxFSMThreadPaths:             topts.MaxFSMPaths,
			MaxFSMThreadPathInsns:         topts.MaxFSMInsns,
		},
		Warnings: Warnings{
			NullDereference: iopts.WarnNullDereference,
			ReturnLocalAddr: iopts.WarnReturnLocalAddr,
		},
		Passes: Passes{
			Pipeline: append([]string(nil), KnownPasses...),
			Verify:   true,
		},
	}
}

// Load 从文件加载配置，未出现的字段保留默认值，未知字段视为错误
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return config, nil
}

// LoadOrDefault path 为空时从当前目录向上查找配置文件，找不到则使用默认配置
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return Default(), nil
		}
		path = FindConfigFile(wd)
		if path == "" {
			return Default(), nil
		}
	}
	return Load(path)
}

// Validate 检查配置，返回全部问题
func (c *Config) Validate() error {
	var err error

	switch c.Language {
	case "en", "zh":
	default:
		err = multierr.Append(err, fmt.Errorf("language: unsupported language %q", c.Language))
	}

	nonNegative := []struct {
		name string
		val  int
	}{
		{"max_jump_thread_duplication_stmts", c.Params.MaxJumpThreadDuplicationStmts},
		{"max_fsm_thread_paths", c.Params.MaxFSMThreadPaths},
		{"max_fsm_thread_path_insns", c.Params.MaxFSMThreadPathInsns},
	}
	for _, p := range nonNegative {
		if p.val < 0 {
			err = multierr.Append(err, fmt.Errorf("params.%s: must not be negative, got %d", p.name, p.val))
		}
	}
	if c.Params.MaxFSMThreadLength < 1 {
		err = multierr.Append(err, fmt.Errorf("params.max_fsm_thread_length: must be at least 1, got %d", c.Params.MaxFSMThreadLength))
	}

	for _, name := range c.Passes.Pipeline {
		if !IsKnownPass(name) {
			err = multierr.Append(err, fmt.Errorf("passes.pipeline: unknown pass %q", name))
		}
	}
	return err
}

// IsKnownPass 名称是否为已知 pass
func IsKnownPass(name string) bool {
	for _, p := range KnownPasses {
		if p == name {
			return true
		}
	}
	return false
}

// ThreadingOptions 跳转线程化参数
func (c *Config) ThreadingOptions() threading.Options {
	return threading.Options{
		MaxDuplicationStmts: c.Params.MaxJumpThreadDuplicationStmts,
		MaxFSMLength:        c.Params.MaxFSMThreadLength,
		MaxFSMPaths:         c.Params.MaxFSMThreadPaths,
		MaxFSMInsns:         c.Params.MaxFSMThreadPathInsns,
	}
}

// IsolateOptions 路径隔离开关
func (c *Config) IsolateOptions() isolate.Options {
	return isolate.Options{
		Dereference:         c.Params.IsolatePathsDereference,
		Attribute:           c.Params.IsolatePathsAttribute,
		Division:            c.Params.IsolatePathsDivision,
		WarnNullDereference: c.Warnings.NullDereference,
		WarnReturnLocalAddr: c.Warnings.ReturnLocalAddr,
	}
}

// Save 保存配置到文件
func (c *Config) Save(path string) error {
	// 生成带注释的配置文件内容
	content := generateConfigWithComments(c)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateDefault 在 dir 中写入默认配置文件并返回其路径，文件已存在时返回 os.ErrExist
func GenerateDefault(dir string) (string, error) {
	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("%s: %w", path, os.ErrExist)
	}
	return path, Default().Save(path)
}

// generateConfigWithComments 生成带注释的配置文件内容
func generateConfigWithComments(c *Config) string {
	var sb strings.Builder

	sb.WriteString("# 诊断语言（en 或 zh）\n")
	fmt.Fprintf(&sb, "language = %q\n\n", c.Language)

	p := c.Params
	sb.WriteString("[params]\n")
	sb.WriteString("# 隔离空指针解引用、违反 nonnull 属性、除以零的路径\n")
	fmt.Fprintf(&sb, "isolate_paths_dereference = %t\n", p.IsolatePathsDereference)
	fmt.Fprintf(&sb, "isolate_paths_attribute = %t\n", p.IsolatePathsAttribute)
	fmt.Fprintf(&sb, "isolate_paths_division = %t\n", p.IsolatePathsDivision)
	sb.WriteString("# 前向线程化时每条路径可复制的语句数\n")
	fmt.Fprintf(&sb, "max_jump_thread_duplication_stmts = %d\n", p.MaxJumpThreadDuplicationStmts)
	sb.WriteString("# 状态机线程化：路径块数、每个函数的路径数、路径上的语句数\n")
	fmt.Fprintf(&sb, "max_fsm_thread_length = %d\n", p.MaxFSMThreadLength)
	fmt.Fprintf(&sb, "max_fsm_thread_paths = %d\n", p.MaxFSMThreadPaths)
	fmt.Fprintf(&sb, "max_fsm_thread_path_insns = %d\n\n", p.MaxFSMThreadPathInsns)

	sb.WriteString("[warnings]\n")
	fmt.Fprintf(&sb, "null_dereference = %t\n", c.Warnings.NullDereference)
	fmt.Fprintf(&sb, "return_local_addr = %t\n\n", c.Warnings.ReturnLocalAddr)

	quoted := make([]string, len(c.Passes.Pipeline))
	for i, name := range c.Passes.Pipeline {
		quoted[i] = fmt.Sprintf("%q", name)
	}
	sb.WriteString("[passes]\n")
	sb.WriteString("# 按顺序运行的 pass\n")
	fmt.Fprintf(&sb, "pipeline = [%s]\n", strings.Join(quoted, ", "))
	sb.WriteString("# 每个修改了函数的 pass 之后校验 CFG\n")
	fmt.Fprintf(&sb, "verify = %t\n", c.Passes.Verify)

	return sb.String()
}

// FindConfigFile 从指定路径向上查找配置文件
// 返回配置文件的完整路径，如果找不到则返回空字符串
func FindConfigFile(startPath string) string {
	info, err := os.Stat(startPath)
	if err != nil {
		return ""
	}

	dir := startPath
	if !info.IsDir() {
		dir = filepath.Dir(startPath)
	}
	dir, err = filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
