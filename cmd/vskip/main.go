package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/vskip/internal/app/run"
	"github.com/John-Robertt/vskip/internal/config"
	"github.com/John-Robertt/vskip/internal/domain"
	"github.com/John-Robertt/vskip/internal/infra/fsx"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "check", "upload", "skips", "fetch":
		if code := commandCmd(args[0], args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func commandCmd(command string, args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printCommandUsage(command)
			return 0
		}
	}

	ca, err := parseCommandArgs(command, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printCommandUsage(command)
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Path:       ca.Path,
		Server:     ca.Server,
		Premium:    ca.Premium,
		PremiumSet: ca.PremiumSet,
		Resolve:    ca.Resolve,
		ResolveSet: ca.ResolveSet,
	})
	if err != nil {
		rep := reportForConfigError(command, ca, err)
		emitReport(rep)
		return 1
	}

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	env, err := run.NewEnv(eff, obs)
	if err != nil {
		rep := reportForConfigError(command, ca, &config.Error{Code: config.ErrCodeInvalid, Err: err})
		emitReport(rep)
		return 1
	}
	defer env.Close()

	ctx := context.Background()
	var rep domain.Report
	switch command {
	case "check":
		rep = env.Check(ctx, ca.Input)
	case "upload":
		rep = env.Upload(ctx, ca.Input)
	case "skips":
		rep = env.Skips(ctx, ca.Input)
	case "fetch":
		rep = env.Fetch(ctx, ca.Input)
	}

	// 报告总是落盘到 <path>/cache/report.json（覆盖上一次）。
	if err := writeReportFile(eff.Path, rep); err != nil {
		fmt.Fprintf(os.Stderr, "写入 report.json 失败：%v\n", err)
		emitReport(rep)
		return 1
	}

	emitReport(rep)
	if interactive {
		emitLocations(progressW, command, eff, rep)
	}
	if rep.Status == domain.StatusOK {
		return 0
	}
	return 1
}

type commandArgs struct {
	Input string

	Path   string
	Server string

	Premium    bool
	PremiumSet bool

	Resolve    bool
	ResolveSet bool
}

func parseCommandArgs(command string, args []string) (commandArgs, error) {
	ca := commandArgs{}

	parseBool := func(flag, v string) (bool, error) {
		switch v {
		case "true":
			return true, nil
		case "false":
			return false, nil
		default:
			return false, fmt.Errorf("%s 只能是 true 或 false，实际是 %q", flag, v)
		}
	}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--path":
			if i+1 >= len(args) {
				return commandArgs{}, fmt.Errorf("--path 需要一个值")
			}
			i++
			ca.Path = args[i]
		case strings.HasPrefix(a, "--path="):
			ca.Path = strings.TrimPrefix(a, "--path=")
		case a == "--server":
			if i+1 >= len(args) {
				return commandArgs{}, fmt.Errorf("--server 需要一个值")
			}
			i++
			ca.Server = args[i]
		case strings.HasPrefix(a, "--server="):
			ca.Server = strings.TrimPrefix(a, "--server=")
		case a == "--premium":
			ca.Premium = true
			ca.PremiumSet = true
		case strings.HasPrefix(a, "--premium="):
			v, err := parseBool("--premium", strings.TrimPrefix(a, "--premium="))
			if err != nil {
				return commandArgs{}, err
			}
			ca.Premium = v
			ca.PremiumSet = true
		case a == "--resolve":
			ca.Resolve = true
			ca.ResolveSet = true
		case strings.HasPrefix(a, "--resolve="):
			v, err := parseBool("--resolve", strings.TrimPrefix(a, "--resolve="))
			if err != nil {
				return commandArgs{}, err
			}
			ca.Resolve = v
			ca.ResolveSet = true
		case strings.HasPrefix(a, "-"):
			return commandArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if ca.Input != "" {
				return commandArgs{}, fmt.Errorf("重复的输入：%q 与 %q", ca.Input, a)
			}
			ca.Input = a
		}
	}

	if strings.TrimSpace(ca.Input) == "" {
		switch command {
		case "check", "upload":
			return commandArgs{}, fmt.Errorf("缺少输入（本地文件路径或 URL）")
		default:
			return commandArgs{}, fmt.Errorf("缺少任务 ID")
		}
	}

	return ca, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  vskip <命令> <输入> [--path 库目录] [--server 地址] [--premium[=true|false]] [--resolve[=true|false]]

命令：
  check   校验输入（本地文件或 URL），输出结论
  upload  校验并上传输入，等待分析完成，输出静音区间与跳过推演
  skips   取回任务的静音区间（缓存优先），输出跳过推演
  fetch   拉取任务产物（处理后音频与波形图）到 <path>/out/<task>/

使用 "vskip <命令> --help" 查看详细说明。
`)
}

func printCommandUsage(command string) {
	var input, what string
	switch command {
	case "check":
		input, what = "<文件路径|URL>", "校验输入，输出结论（bad_url 等结论不算命令失败）"
	case "upload":
		input, what = "<文件路径|URL>", "校验并上传输入，等待分析完成，输出区间与跳过推演"
	case "skips":
		input, what = "<任务ID>", "取回任务的静音区间（缓存优先），输出跳过推演"
	case "fetch":
		input, what = "<任务ID>", "拉取任务产物到 <path>/out/<task>/（已存在不覆盖）"
	}
	fmt.Fprintf(os.Stdout, `用法：
  vskip %s %s [--path 库目录] [--server 地址] [--premium[=true|false]] [--resolve[=true|false]]

说明：
  %s

参数：
  --path      工作目录（缓存与产物根目录）；未指定则读 <cwd>/vskip.json 的 path
  --server    服务端地址（http/https 绝对 URL）；覆盖配置文件
  --premium   按付费档位请求服务端常量与上传；支持 --premium=false 覆盖配置
  --resolve   URL 输入先做“播放页 → 直链”解析；支持 --resolve=false 覆盖配置
  -h, --help  显示帮助
`, command, input, what)
}

func emitReport(rep domain.Report) {
	if isTTY(os.Stdout) {
		fmt.Fprintln(os.Stdout, summaryLine(rep))
		if rep.Status == domain.StatusFailed {
			fmt.Fprintf(os.Stderr, "%s: %s\n", rep.ErrorCode, rep.ErrorMsg)
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 Report JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rep)
	fmt.Fprintln(os.Stderr, summaryLine(rep))
}

func summaryLine(rep domain.Report) string {
	if rep.Status == domain.StatusFailed {
		return fmt.Sprintf("失败：%s", rep.ErrorCode)
	}

	parts := []string{"完成"}
	if rep.Outcome != nil {
		parts = append(parts, fmt.Sprintf("结论=%s", rep.Outcome.Kind))
	}
	if rep.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", rep.TaskID))
	}
	if len(rep.Intervals) > 0 || rep.SavedSec > 0 {
		parts = append(parts, fmt.Sprintf("intervals=%d saved=%.1fs", len(rep.Intervals), rep.SavedSec))
	}
	if len(rep.Files) > 0 {
		written, exists := 0, 0
		for _, f := range rep.Files {
			switch f.Status {
			case domain.FileStatusWritten:
				written++
			case domain.FileStatusExists:
				exists++
			}
		}
		parts = append(parts, fmt.Sprintf("written=%d exists=%d", written, exists))
	}
	return strings.Join(parts, " ")
}

func reportForConfigError(command string, ca commandArgs, err error) domain.Report {
	now := time.Now().UTC()
	code := config.Code(err)
	if code == "" {
		code = config.ErrCodeInvalid
	}
	rep := domain.Report{
		Command:    command,
		Input:      ca.Input,
		StartedAt:  now,
		FinishedAt: now,
	}
	rep.Fail(code, err.Error())
	rep.Finalize()
	return rep
}

func writeReportFile(root string, rep domain.Report) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(filepath.Join(root, "cache"), "report.json", b)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, command string, eff config.EffectiveConfig, rep domain.Report) {
	// 这几行用于降低“完成后不知道产物在哪”的摩擦，且不影响 stdout JSON 契约。
	if w == nil {
		return
	}
	fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.Path, "cache", "report.json"))
	if command == "fetch" && rep.TaskID != "" {
		fmt.Fprintf(w, "out: %s\n", filepath.Join(eff.Path, "out", rep.TaskID))
	}
}
