package main

import (
	"context"
	goerrors "errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/segmentio/encoding/json"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tangzhangming/ssaopt/internal/config"
	"github.com/tangzhangming/ssaopt/internal/errors"
	"github.com/tangzhangming/ssaopt/internal/i18n"
	"github.com/tangzhangming/ssaopt/internal/passes"
	"github.com/tangzhangming/ssaopt/internal/ssa/irtext"
	"github.com/tangzhangming/ssaopt/internal/threading"
)

const (
	Version = "0.1.0"
)

// 退出状态
const (
	exitOK    = 0
	exitError = 1
	exitICE   = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// preprocessArgs 预处理参数，提取 -lang 以便在定义其他选项前设置语言
func preprocessArgs(args []string) (string, []string) {
	var lang string
	var result []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--lang" || arg == "-lang" {
			if i+1 < len(args) {
				lang = args[i+1]
				i++
				continue
			}
		} else if strings.HasPrefix(arg, "--lang=") {
			lang = strings.TrimPrefix(arg, "--lang=")
			continue
		} else if strings.HasPrefix(arg, "-lang=") {
			lang = strings.TrimPrefix(arg, "-lang=")
			continue
		}
		result = append(result, arg)
	}
	return lang, result
}

// options 命令行选项
type options struct {
	config    string
	passes    string
	print     bool
	dumpPaths bool
	format    string
	noColor   bool
	verbose   bool
	init      bool
	version   bool
}

// run 执行命令行，返回退出状态
// 内部错误只在这里恢复：打印信息后以状态 3 退出。
func run(args []string, stdout, stderr io.Writer) (code int) {
	defer func() {
		if r := recover(); r != nil {
			ie, ok := errors.AsInternalError(r)
			if !ok {
				panic(r)
			}
			fmt.Fprintln(stderr, i18n.T(i18n.MsgInternalError, ie.Message))
			code = exitICE
		}
	}()

	lang, args := preprocessArgs(args)
	if lang != "" {
		i18n.SetLanguageFromString(lang)
	}

	var opts options
	fs := flag.NewFlagSet("ssaopt", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.config, "config", "", i18n.T(i18n.OptConfig))
	fs.StringVar(&opts.passes, "passes", "", i18n.T(i18n.OptPasses))
	fs.BoolVar(&opts.print, "print", false, i18n.T(i18n.OptPrint))
	fs.BoolVar(&opts.dumpPaths, "dump-paths", false, i18n.T(i18n.OptDumpPaths))
	fs.StringVar(&opts.format, "format", "text", i18n.T(i18n.OptFormat))
	fs.BoolVar(&opts.noColor, "no-color", false, i18n.T(i18n.OptNoColor))
	fs.BoolVar(&opts.verbose, "v", false, i18n.T(i18n.OptVerbose))
	fs.BoolVar(&opts.init, "init", false, i18n.T(i18n.OptInit))
	fs.BoolVar(&opts.version, "version", false, i18n.T(i18n.OptVersion))
	fs.Usage = func() {
		fmt.Fprint(stderr, i18n.T(i18n.MsgUsage, "ssaopt"))
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "  -lang string\n    \t%s\n", i18n.T(i18n.OptLang))
	}

	if err := fs.Parse(args); err != nil {
		if goerrors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitError
	}

	if opts.version {
		fmt.Fprintln(stdout, i18n.T(i18n.MsgVersion, "ssaopt", Version))
		return exitOK
	}
	if opts.init {
		return cmdInit(stdout, stderr)
	}

	cfg, err := config.LoadOrDefault(opts.config)
	if err != nil {
		fmt.Fprintln(stderr, i18n.T(i18n.ErrConfigInvalid, err))
		return exitError
	}
	if lang == "" {
		i18n.SetLanguageFromString(cfg.Language)
	}
	if opts.passes != "" {
		cfg.Passes.Pipeline = nil
		for _, name := range strings.Split(opts.passes, ",") {
			name = strings.TrimSpace(name)
			if !config.IsKnownPass(name) {
				fmt.Fprintln(stderr, i18n.T(i18n.ErrUnknownPass, name))
				return exitError
			}
			cfg.Passes.Pipeline = append(cfg.Passes.Pipeline, name)
		}
	}
	if opts.format != "text" && opts.format != "lsp" {
		fmt.Fprintln(stderr, i18n.T(i18n.ErrUnknownFormat, opts.format))
		return exitError
	}
	if fs.NArg() == 0 {
		fs.Usage()
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, i18n.T(i18n.ErrNoInput))
		return exitError
	}
	if opts.noColor || opts.format == "lsp" {
		errors.SetColorsEnabled(false)
	}

	logger := zap.NewNop()
	if opts.verbose {
		if l, err := zap.NewDevelopment(); err == nil {
			logger = l
		}
	}
	defer logger.Sync()

	return optimize(fs.Args(), cfg, opts, logger, stdout, stderr)
}

// optimize 对每个输入文件解析并运行流水线
func optimize(files []string, cfg *config.Config, opts options, logger *zap.Logger, stdout, stderr io.Writer) int {
	reporter := errors.NewReporter(stderr)
	collector := &errors.Collector{}
	var sink errors.Sink = reporter
	if opts.format == "lsp" {
		sink = collector
	}

	pm, err := passes.CreatePipeline(cfg, sink, logger)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	if opts.dumpPaths {
		enc := json.NewEncoder(stdout)
		pm.OnPaths(func(pass string, reg *threading.Registry) {
			if err := enc.Encode(reg); err != nil {
				logger.Warn("cannot encode thread paths", zap.String("pass", pass), zap.Error(err))
			}
		})
	}

	status := exitOK
	ctx := context.Background()
	for _, path := range files {
		collector.Diagnostics = nil

		src, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintln(stderr, i18n.T(i18n.ErrReadFailed, path, err))
			status = exitError
			continue
		}
		reporter.SetSource(path, string(src))

		funcs, err := irtext.Parse(path, string(src))
		if err != nil {
			for _, e := range multierr.Errors(err) {
				var ce *errors.CompileError
				if goerrors.As(e, &ce) {
					sink.Report(ce)
				} else {
					fmt.Fprintln(stderr, e)
				}
			}
			status = exitError
		} else {
			if err := pm.RunAll(ctx, funcs); err != nil {
				fmt.Fprintln(stderr, err)
				status = exitError
			}
			if opts.print {
				for _, f := range funcs {
					fmt.Fprint(stdout, f.String())
				}
			}
		}

		if opts.format == "lsp" {
			if err := json.NewEncoder(stdout).Encode(errors.PublishParams(path, collector.Diagnostics)); err != nil {
				fmt.Fprintln(stderr, err)
				status = exitError
			}
		}
	}

	if n := len(reporter.All()); n > 0 {
		fmt.Fprintln(stderr, i18n.T(i18n.MsgDiagnosticCount, n))
	}
	if opts.verbose {
		pm.LogStats()
	}
	return status
}

// cmdInit 在当前目录写入默认配置
func cmdInit(stdout, stderr io.Writer) int {
	path, err := config.GenerateDefault(".")
	if goerrors.Is(err, os.ErrExist) {
		fmt.Fprintln(stderr, i18n.T(i18n.MsgConfigExists, path))
		return exitError
	}
	if err != nil {
		fmt.Fprintln(stderr, i18n.T(i18n.ErrConfigWrite, err))
		return exitError
	}
	fmt.Fprintln(stdout, i18n.T(i18n.MsgConfigWritten, path))
	return exitOK
}
