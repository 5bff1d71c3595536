// Package validate 实现“输入流 → 校验结论”的去抖异步管线。
//
// 约束：
// - 去抖为 leading+trailing：静默期后的第一次变更立即触发；
//   窗口内的后续变更只重置计时器，窗口结束后对最终值再触发一次
// - 每次触发携带严格递增的代次（generation）；过期请求的结果
//   在落地时按代次丢弃，永远不会覆盖更新的结论
// - Loading 恰好覆盖“当前存活请求”从发出到落地的区间，不会卡死
// - 任何失败都落为一个错误结论；管线始终可被下一次输入重新触发
package validate

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/vskip/internal/domain"
)

// DefaultWindow 是去抖窗口的默认值。
const DefaultWindow = 400 * time.Millisecond

// Prober 抽象服务端的 URL 预检接口（api.Client 实现）。
// 返回原始 status/body，状态码到结论的映射是本包的职责。
type Prober interface {
	CheckUploadURL(ctx context.Context, raw string, premium bool) (status int, body []byte, err error)
}

// State 是推送给订阅者的管线快照。
type State struct {
	Outcome    domain.Outcome
	Loading    bool
	Generation uint64
}

// Options 是管线的可调参数。
type Options struct {
	// Window 为去抖窗口；<=0 取 DefaultWindow。
	Window time.Duration
	// Premium 为当前档位标记（随预检请求发送）。
	Premium bool
	// MaxFileSize 提供本地文件大小预检的上限（字节）；
	// 返回 0 表示未知，此时跳过本地大小预检。允许为 nil。
	MaxFileSize func() int64
}

// Pipeline 把变化中的输入（URL 文本或本地文件）映射为带类型的校验结论。
type Pipeline struct {
	probe  Prober
	window time.Duration

	mu          sync.Mutex
	premium     bool
	maxFileSize func() int64
	gen         uint64
	lastChange  time.Time
	timer       *time.Timer
	pending     domain.Candidate
	hasPending  bool
	cancel      context.CancelFunc
	last        State
	subs        []func(State)
	closed      bool
}

// New 构造管线。probe 不能为空。
func New(probe Prober, opts Options) *Pipeline {
	w := opts.Window
	if w <= 0 {
		w = DefaultWindow
	}
	maxSize := opts.MaxFileSize
	if maxSize == nil {
		maxSize = func() int64 { return 0 }
	}
	return &Pipeline{
		probe:       probe,
		window:      w,
		premium:     opts.Premium,
		maxFileSize: maxSize,
	}
}

// Subscribe 注册订阅者。订阅者在每次结论/Loading 变化时被调用；
// 回调在管线内部 goroutine 上执行，不得阻塞。
func (p *Pipeline) Subscribe(fn func(State)) {
	p.mu.Lock()
	p.subs = append(p.subs, fn)
	p.mu.Unlock()
}

// Last 返回最近一次推送的快照。
func (p *Pipeline) Last() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// SetPremium 更新档位标记。只影响之后发出的预检请求。
func (p *Pipeline) SetPremium(v bool) {
	p.mu.Lock()
	p.premium = v
	p.mu.Unlock()
}

// Submit 提交一次输入变更（任意 goroutine 可调用）。
func (p *Pipeline) Submit(c domain.Candidate) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	now := time.Now()
	quiet := p.timer == nil && (p.lastChange.IsZero() || now.Sub(p.lastChange) >= p.window)
	p.lastChange = now

	if quiet {
		// leading：静默期后的第一次变更，立即触发。
		p.fireLocked(c)
		p.mu.Unlock()
		return
	}

	// trailing：窗口内的变更只保留最终值并重置计时器。
	p.pending = c
	p.hasPending = true
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.window, p.flush)
	p.mu.Unlock()
}

// Close 终止管线：停掉计时器、作废在途请求。之后的 Submit 被忽略。
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.hasPending = false
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.gen++ // 作废一切在途结果
	p.mu.Unlock()
}

func (p *Pipeline) flush() {
	p.mu.Lock()
	p.timer = nil
	if p.closed || !p.hasPending {
		p.mu.Unlock()
		return
	}
	c := p.pending
	p.hasPending = false
	p.fireLocked(c)
	p.mu.Unlock()
}

// fireLocked 对候选执行一次校验触发。调用方必须持有 p.mu。
func (p *Pipeline) fireLocked(c domain.Candidate) {
	p.gen++
	gen := p.gen

	// 新触发立即作废上一个在途请求（其结果按代次丢弃，这里的
	// cancel 只是尽早释放连接）。
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}

	if c.Kind == domain.CandidateFile {
		p.resolveLocked(gen, p.checkFileLocked(c))
		return
	}

	needProbe, out := classifyURL(c.URL)
	if !needProbe {
		// 本地即可判定：不发网络请求。
		p.resolveLocked(gen, out)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	premium := p.premium
	raw := c.URL

	p.last = State{Outcome: p.last.Outcome, Loading: true, Generation: gen}
	p.notifyLocked(p.last)

	go func() {
		status, body, err := p.probe.CheckUploadURL(ctx, raw, premium)

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed || gen != p.gen {
			// 过期响应：已有更新的触发，丢弃。
			return
		}
		p.cancel = nil
		if err != nil {
			p.resolveLocked(gen, domain.Outcome{
				Kind:    domain.OutcomeNetworkError,
				Message: err.Error(),
			})
			return
		}
		p.resolveLocked(gen, mapProbeStatus(status, body))
	}()
}

func (p *Pipeline) resolveLocked(gen uint64, out domain.Outcome) {
	p.last = State{Outcome: out, Loading: false, Generation: gen}
	p.notifyLocked(p.last)
}

func (p *Pipeline) notifyLocked(s State) {
	for _, fn := range p.subs {
		fn(s)
	}
}

// checkFileLocked 对本地文件候选做无网络校验。
// 规则与服务端一致：mime 必须是 video/*；大小超限直接拒绝
//（上限未知时不做预检，交由服务端兜底）。
func (p *Pipeline) checkFileLocked(c domain.Candidate) domain.Outcome {
	if !strings.HasPrefix(c.MimeHint, "video/") {
		return domain.Outcome{Kind: domain.OutcomeNotVideo}
	}
	if max := p.maxFileSize(); max > 0 && c.SizeBytes > max {
		return domain.Outcome{Kind: domain.OutcomeTooBig, SizeBytes: c.SizeBytes}
	}
	return domain.Outcome{Kind: domain.OutcomeOK, SizeBytes: c.SizeBytes}
}

// classifyURL 实现 URL 的本地判定：
// - 直接可解析为绝对 URL：需要网络预检
// - 补 "http://" 后可解析、且 host 的每个点分段都非空：
//   bad_url{validWithScheme:true}（便宜且提示更有用，不发网络请求）
// - 其余：bad_url{validWithScheme:false}，同样不发网络请求
func classifyURL(raw string) (needProbe bool, out domain.Outcome) {
	raw = strings.TrimSpace(raw)
	if _, ok := parseAbsoluteURL(raw); ok {
		return true, domain.Outcome{}
	}
	if u, ok := parseAbsoluteURL("http://" + raw); ok && hostLabelsNonEmpty(u.Hostname()) {
		return false, domain.Outcome{Kind: domain.OutcomeBadURL, ValidWithScheme: true}
	}
	return false, domain.Outcome{Kind: domain.OutcomeBadURL, ValidWithScheme: false}
}

func parseAbsoluteURL(s string) (*url.URL, bool) {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, false
	}
	return u, true
}

func hostLabelsNonEmpty(host string) bool {
	if host == "" {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" {
			return false
		}
	}
	return true
}

// mapProbeStatus 把预检响应确定性地映射为结论。
// 未列出的状态码一律视为不透明的服务端错误（原样携带状态码）。
func mapProbeStatus(status int, body []byte) domain.Outcome {
	switch status {
	case 200:
		size, ok := parseSize(body)
		if !ok {
			// 上游未定义非数字 size 的行为：按畸形响应处理，
			// 不猜一个默认大小。
			return domain.Outcome{Kind: domain.OutcomeBadResponse}
		}
		return domain.Outcome{Kind: domain.OutcomeOK, SizeBytes: size}
	case 400:
		return domain.Outcome{Kind: domain.OutcomeBadURL, ValidWithScheme: false}
	case 504:
		return domain.Outcome{Kind: domain.OutcomeUnreachable}
	case 424:
		return domain.Outcome{Kind: domain.OutcomeRequestError}
	case 415:
		return domain.Outcome{Kind: domain.OutcomeNotVideo}
	case 422:
		return domain.Outcome{Kind: domain.OutcomeBadResponse}
	case 413:
		size, ok := parseSize(body)
		if !ok {
			return domain.Outcome{Kind: domain.OutcomeBadResponse}
		}
		return domain.Outcome{Kind: domain.OutcomeTooBig, SizeBytes: size}
	default:
		return domain.Outcome{Kind: domain.OutcomeServerError, StatusCode: status}
	}
}

func parseSize(body []byte) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
