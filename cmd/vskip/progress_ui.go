package main

import (
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/vskip/internal/app/run"
	"github.com/John-Robertt/vskip/internal/config"
	"github.com/John-Robertt/vskip/internal/domain"
	"github.com/John-Robertt/vskip/internal/validate"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - 节流：上传进度与任务状态可能高频推送，非关键事件按间隔抽样输出
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	throttle time.Duration

	lastUploadPct int
	lastTaskLine  string
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:        w,
		throttle: 500 * time.Millisecond,
	}
}

func (p *progressUI) OnStart(command string, eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	fmt.Fprintf(p.w, "[%s] vskip %s\n", now.Format("15:04:05"), command)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  path: %s\n", eff.Path)
	fmt.Fprintf(p.w, "  server: %s\n", truncate(eff.Server, 120))
	fmt.Fprintf(p.w, "  premium: %s\n", onOff(eff.Premium))
	fmt.Fprintf(p.w, "  resolve: %s\n", onOff(eff.Resolve))
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	fmt.Fprintf(p.w, "  debounce: %s  poll: %s\n", eff.Debounce, eff.Poll)

	fmt.Fprintln(p.w, "输出:")
	fmt.Fprintf(p.w, "  out: %s\n", filepath.Join(eff.Path, "out"))
	fmt.Fprintf(p.w, "  cache: %s\n", filepath.Join(eff.Path, "cache"))
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
	p.mu.Unlock()
}

func (p *progressUI) OnValidate(st validate.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if st.Loading {
		fmt.Fprintln(p.w, "校验中…")
		p.lastPrinted = time.Now()
		return
	}

	out := st.Outcome
	switch out.Kind {
	case domain.OutcomeOK:
		if out.SizeBytes > 0 {
			fmt.Fprintf(p.w, "校验: ok (%d 字节)\n", out.SizeBytes)
		} else {
			fmt.Fprintln(p.w, "校验: ok")
		}
	case domain.OutcomeBadURL:
		if out.ValidWithScheme {
			fmt.Fprintln(p.w, "校验: bad_url（补上 http:// 即可）")
		} else {
			fmt.Fprintln(p.w, "校验: bad_url")
		}
	case domain.OutcomeServerError:
		fmt.Fprintf(p.w, "校验: server_error (HTTP %d)\n", out.StatusCode)
	case domain.OutcomeNetworkError:
		fmt.Fprintf(p.w, "校验: network_error (%s)\n", truncate(out.Message, 120))
	default:
		fmt.Fprintf(p.w, "校验: %s\n", out.Kind)
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnUploadProgress(pct int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// 100% 必须输出；其余按节流间隔抽样。
	if pct < 100 && pct != p.lastUploadPct && time.Since(p.lastPrinted) < p.throttle {
		return
	}
	if pct == p.lastUploadPct {
		return
	}
	p.lastUploadPct = pct

	fmt.Fprintf(p.w, "上传: %d%%\n", pct)
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnTaskStatus(st domain.TaskStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()

	line := formatTaskStatus(st)
	// 终态必须输出；中间态去重 + 节流。
	if !st.Terminal() {
		if line == p.lastTaskLine || time.Since(p.lastPrinted) < p.throttle {
			return
		}
	}
	p.lastTaskLine = line

	fmt.Fprintln(p.w, line)
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnStageDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "validate":
		fmt.Fprintf(p.w, "校验完成: kind=%s (%s)\n", stringField(fields, "kind"), formatShortDuration(dur))
	case "upload":
		fmt.Fprintf(p.w, "上传完成: task=%s (%s)\n", stringField(fields, "task"), formatShortDuration(dur))
	case "analyze":
		fmt.Fprintf(p.w, "分析完成: state=%s (%s)\n", stringField(fields, "state"), formatShortDuration(dur))
	case "audio", "waveform":
		fmt.Fprintf(p.w, "产物 %s: status=%s bytes=%d (%s)\n",
			name, stringField(fields, "status"), intField(fields, "bytes"), formatShortDuration(dur),
		)
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func formatTaskStatus(st domain.TaskStatus) string {
	switch st.State {
	case domain.TaskCompleted:
		return "任务: completed"
	case domain.TaskError:
		msg := strings.TrimSpace(st.Error)
		if msg == "" {
			return "任务: error"
		}
		return "任务: error (" + truncate(msg, 120) + ")"
	default:
		s := "任务: " + st.State
		if st.Stage != "" {
			s += " stage=" + st.Stage
		}
		if st.Progress > 0 {
			s += fmt.Sprintf(" progress=%.0f%%", st.Progress)
		}
		return s
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func stringField(fields map[string]any, key string) string {
	if fields == nil {
		return ""
	}
	v, ok := fields[key]
	if !ok {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}
