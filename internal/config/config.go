package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有 vskip.json。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingPath 表示无参运行但配置文件缺少 path 字段。
	ErrCodeMissingPath = "config_missing_path"
	// ErrCodeMissingServer 表示 CLI 与配置文件都未给出服务端地址。
	ErrCodeMissingServer = "config_missing_server"
)

const (
	// DefaultDebounceMS 是输入校验去抖窗口的内置默认值（毫秒）。
	DefaultDebounceMS = 400
	// DefaultPollMS 是任务轮询回退周期的内置默认值（毫秒）。
	DefaultPollMS = 1000
)

// CLIArgs 只包含 CLI 暴露的入口，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --premium=false 必须能覆盖 config.premium=true。
type CLIArgs struct {
	Path   string
	Server string

	Premium    bool
	PremiumSet bool

	Resolve    bool
	ResolveSet bool
}

// FileConfig 对应 vskip.json 的解析结构。
type FileConfig struct {
	Path       string       `json:"path"`
	Server     string       `json:"server"`
	Premium    *bool        `json:"premium"`
	Resolve    *bool        `json:"resolve"`
	DebounceMS int          `json:"debounce_ms"`
	PollMS     int          `json:"poll_ms"`
	RateLimit  float64      `json:"rate_limit"`
	Proxy      *ProxyConfig `json:"proxy"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Path   string
	Server string

	Premium bool
	// Resolve 决定 URL 输入是否先做“播放页 → 直链”解析。
	Resolve bool

	Debounce time.Duration
	Poll     time.Duration

	// RateLimit 为客户端侧限速（请求/秒）；0 表示不限速。
	RateLimit float64
	ProxyURL  string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 path", e.Code, e.Path)
	case ErrCodeMissingServer:
		return fmt.Sprintf("%s：未给出服务端地址（--server 或配置文件 server 字段）", e.Code)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 按固定规则发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 path：尝试读取 <path>/vskip.json（可选）
// 2) CLI 未提供 path：必须读取 <cwd>/vskip.json（必选），且其中必须包含 path
//
// 覆盖优先级（固定）：
// - path：CLI path > config path
// - server：CLI > config（两处都没有是错误）
// - premium / resolve：CLI > config > 默认 false
// - 其他字段：仅由 config 控制（CLI 不暴露）
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var (
		cfgPath string
		fc      FileConfig
	)

	if strings.TrimSpace(cli.Path) != "" {
		// CLI 给了 path：配置文件可选，位置固定在 <path>/vskip.json。
		absPath := absCleanFrom(cwdAbs, cli.Path)
		cfgPath = filepath.Join(absPath, "vskip.json")

		fc, _, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		return merge(absPath, cli, fc, cfgPath)
	}

	// CLI 没给 path：必须读取 <cwd>/vskip.json，且其中必须包含 path。
	cfgPath = filepath.Join(cwdAbs, "vskip.json")
	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}
	if strings.TrimSpace(fc.Path) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}

	absPath := absCleanFrom(cwdAbs, fc.Path)
	return merge(absPath, cli, fc, cfgPath)
}

func merge(absPath string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	// server：CLI > config；必须是绝对 http/https URL。
	server := strings.TrimSpace(cli.Server)
	if server == "" {
		server = strings.TrimSpace(fc.Server)
	}
	if server == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingServer, Path: cfgPath}
	}
	if u, err := url.Parse(server); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("server 必须是 http/https 绝对地址：%q", server)}
	}

	// premium：CLI > config > 默认 false
	premium := false
	if cli.PremiumSet {
		premium = cli.Premium
	} else if fc.Premium != nil {
		premium = *fc.Premium
	}

	// resolve：CLI > config > 默认 false
	resolve := false
	if cli.ResolveSet {
		resolve = cli.Resolve
	} else if fc.Resolve != nil {
		resolve = *fc.Resolve
	}

	debounce := fc.DebounceMS
	if debounce == 0 {
		debounce = DefaultDebounceMS
	}
	// 范围建议 [50, 5000]；超出截断。
	if debounce < 50 {
		debounce = 50
	}
	if debounce > 5000 {
		debounce = 5000
	}

	poll := fc.PollMS
	if poll == 0 {
		poll = DefaultPollMS
	}
	// 范围建议 [100, 10000]；超出截断。
	if poll < 100 {
		poll = 100
	}
	if poll > 10000 {
		poll = 10000
	}

	if fc.RateLimit < 0 {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("rate_limit 不能为负：%v", fc.RateLimit)}
	}

	proxyURL := ""
	if fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("proxy.url 无效：%w", err)}
		}
	}

	return EffectiveConfig{
		Path:      absPath,
		Server:    server,
		Premium:   premium,
		Resolve:   resolve,
		Debounce:  time.Duration(debounce) * time.Millisecond,
		Poll:      time.Duration(poll) * time.Millisecond,
		RateLimit: fc.RateLimit,
		ProxyURL:  proxyURL,
	}, nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
