package httpx

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout  = 20 * time.Second
	defaultRetryMax = 2

	userAgent = "vskip/1.0"
)

// Transport 把“限速 + 有界重试 + 统一 UA”固化为统一策略。
//
// 设计目标：api 层只负责“拼请求 + 解析响应”，不关心网络策略细节。
type Transport struct {
	Base http.RoundTripper

	// Limiter 为客户端侧限速器；nil 表示不限速。
	// 在每次尝试（含重试）前等待配额。
	Limiter *rate.Limiter

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	RetryMax int
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	// 上传体只能读一次，失败直接上抛。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 {
		max = 0
	}
	if !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		if t.Limiter != nil {
			if err := t.Limiter.Wait(req.Context()); err != nil {
				return nil, err
			}
		}

		r := cloneRequest(req)
		if r.Header.Get("User-Agent") == "" {
			r.Header.Set("User-Agent", userAgent)
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			// ctx 已取消：不再重试，直接返回最后错误（更可解释）。
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func cloneRequest(req *http.Request) *http.Request {
	// Clone 会复制 Header 等，避免在 RoundTripper 内部“污染”调用方的 request。
	return req.Clone(req.Context())
}

// NewAPIClient 构造与服务端交互的 HTTP client。
//
// 规则：
// - proxyURL 非空：必须走代理，且禁用 keep-alive（每请求新连接）
// - rps>0：客户端侧限速（突发额度 = ceil(rps)，至少 1）
// - 有界重试 + 总超时
func NewAPIClient(proxyURL string, rps float64) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}

	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(u)
		// proxy 模式强制每请求新连接（代理池轮换依赖该行为）。
		base.DisableKeepAlives = true
	}

	var lim *rate.Limiter
	if rps > 0 {
		burst := int(rps)
		if float64(burst) < rps {
			burst++
		}
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(rps), burst)
	}

	return &http.Client{
		Transport: &Transport{
			Base:     base,
			Limiter:  lim,
			RetryMax: defaultRetryMax,
		},
		Timeout: defaultTimeout,
	}, nil
}

// NewStreamClient 构造用于长传输（上传体、read-file 拉流）的 HTTP client：
// 与 NewAPIClient 同一套策略，但不设总超时（大文件按带宽决定耗时，
// 取消一律走 ctx）。
func NewStreamClient(proxyURL string) (*http.Client, error) {
	c, err := NewAPIClient(proxyURL, 0)
	if err != nil {
		return nil, err
	}
	c.Timeout = 0
	return c, nil
}
