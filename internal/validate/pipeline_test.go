package validate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/John-Robertt/vskip/internal/domain"
)

type proberFunc func(ctx context.Context, raw string, premium bool) (int, []byte, error)

func (f proberFunc) CheckUploadURL(ctx context.Context, raw string, premium bool) (int, []byte, error) {
	return f(ctx, raw, premium)
}

// countingProber 记录每次预检调用的 URL。
type countingProber struct {
	mu    sync.Mutex
	calls []string

	status int
	body   string
	err    error
}

func (p *countingProber) CheckUploadURL(ctx context.Context, raw string, premium bool) (int, []byte, error) {
	p.mu.Lock()
	p.calls = append(p.calls, raw)
	p.mu.Unlock()
	if p.err != nil {
		return 0, nil, p.err
	}
	return p.status, []byte(p.body), nil
}

func (p *countingProber) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// waitSettled 轮询等待管线落地到指定代次。
func waitSettled(t *testing.T, p *Pipeline, gen uint64) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s := p.Last()
		if s.Generation >= gen && !s.Loading {
			return s
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("等待落地超时：last=%+v", p.Last())
	return State{}
}

func TestClassifyURL_NoNetworkForBadURL(t *testing.T) {
	pr := &countingProber{status: 200, body: "1"}
	p := New(pr, Options{Window: 10 * time.Millisecond})
	defer p.Close()

	// 两种解析都失败：validWithScheme=false。
	p.Submit(domain.URLCandidate("://///"))
	s := waitSettled(t, p, 1)
	if s.Outcome.Kind != domain.OutcomeBadURL || s.Outcome.ValidWithScheme {
		t.Fatalf("期望 bad_url{false}，实际 %+v", s.Outcome)
	}
	if pr.callCount() != 0 {
		t.Fatalf("本地可判定时不应发网络请求，实际 %d 次", pr.callCount())
	}
}

func TestClassifyURL_SchemeFixHint(t *testing.T) {
	cases := []struct {
		raw  string
		with bool
	}{
		{"example.com/video.mp4", true},
		{"www.example.com", true},
		{"example..com", false}, // 空的点分段
		{"example.com.", false}, // 末尾空段
		{"...", false},
		{"", false},
	}
	for _, tc := range cases {
		pr := &countingProber{}
		p := New(pr, Options{Window: 10 * time.Millisecond})
		p.Submit(domain.URLCandidate(tc.raw))
		s := waitSettled(t, p, 1)
		p.Close()
		if s.Outcome.Kind != domain.OutcomeBadURL {
			t.Fatalf("%q 期望 bad_url，实际 %+v", tc.raw, s.Outcome)
		}
		if s.Outcome.ValidWithScheme != tc.with {
			t.Fatalf("%q 期望 validWithScheme=%v，实际 %+v", tc.raw, tc.with, s.Outcome)
		}
		if pr.callCount() != 0 {
			t.Fatalf("%q 不应发网络请求", tc.raw)
		}
	}
}

func TestMapProbeStatus_Deterministic(t *testing.T) {
	cases := []struct {
		status int
		body   string
		kind   domain.OutcomeKind
		size   int64
		code   int
	}{
		{200, "12345", domain.OutcomeOK, 12345, 0},
		{200, "not-a-number", domain.OutcomeBadResponse, 0, 0},
		{400, "", domain.OutcomeBadURL, 0, 0},
		{504, "", domain.OutcomeUnreachable, 0, 0},
		{424, "", domain.OutcomeRequestError, 0, 0},
		{415, "", domain.OutcomeNotVideo, 0, 0},
		{422, "", domain.OutcomeBadResponse, 0, 0},
		{413, "999", domain.OutcomeTooBig, 999, 0},
		{413, "-3", domain.OutcomeBadResponse, 0, 0},
		{500, "", domain.OutcomeServerError, 0, 500},
		{418, "", domain.OutcomeServerError, 0, 418},
	}
	for _, tc := range cases {
		out := mapProbeStatus(tc.status, []byte(tc.body))
		if out.Kind != tc.kind {
			t.Fatalf("status=%d 期望 %s，实际 %+v", tc.status, tc.kind, out)
		}
		if out.SizeBytes != tc.size {
			t.Fatalf("status=%d 期望 size=%d，实际 %+v", tc.status, tc.size, out)
		}
		if out.StatusCode != tc.code {
			t.Fatalf("status=%d 期望透出 code=%d，实际 %+v", tc.status, tc.code, out)
		}
	}
}

func TestSubmit_NetworkErrorOutcome(t *testing.T) {
	pr := &countingProber{err: errors.New("connection refused")}
	p := New(pr, Options{Window: 10 * time.Millisecond})
	defer p.Close()

	p.Submit(domain.URLCandidate("http://example.com/v.mp4"))
	s := waitSettled(t, p, 1)
	if s.Outcome.Kind != domain.OutcomeNetworkError || s.Outcome.Message == "" {
		t.Fatalf("期望 network_error（带原始描述），实际 %+v", s.Outcome)
	}
}

func TestSubmit_FileCandidateLocalChecks(t *testing.T) {
	pr := &countingProber{}
	p := New(pr, Options{
		Window:      10 * time.Millisecond,
		MaxFileSize: func() int64 { return 100 },
	})
	defer p.Close()

	p.Submit(domain.FileCandidate("/tmp/a.txt", 10, "text/plain"))
	if s := waitSettled(t, p, 1); s.Outcome.Kind != domain.OutcomeNotVideo {
		t.Fatalf("非视频 mime 期望 not_video，实际 %+v", s.Outcome)
	}

	time.Sleep(15 * time.Millisecond)
	p.Submit(domain.FileCandidate("/tmp/a.mp4", 500, "video/mp4"))
	if s := waitSettled(t, p, 2); s.Outcome.Kind != domain.OutcomeTooBig || s.Outcome.SizeBytes != 500 {
		t.Fatalf("超限期望 too_big(500)，实际 %+v", s.Outcome)
	}

	time.Sleep(15 * time.Millisecond)
	p.Submit(domain.FileCandidate("/tmp/a.mp4", 50, "video/mp4"))
	if s := waitSettled(t, p, 3); s.Outcome.Kind != domain.OutcomeOK || s.Outcome.SizeBytes != 50 {
		t.Fatalf("期望 ok(50)，实际 %+v", s.Outcome)
	}

	if pr.callCount() != 0 {
		t.Fatalf("文件候选不应发网络请求，实际 %d 次", pr.callCount())
	}
}

func TestDebounce_LeadingPlusTrailing(t *testing.T) {
	pr := &countingProber{status: 200, body: "1"}
	p := New(pr, Options{Window: 60 * time.Millisecond})
	defer p.Close()

	// 静默期后的第一次变更：立即触发（leading）。
	p.Submit(domain.URLCandidate("http://example.com/1"))
	// 窗口内的快速连续变更：只有最终值在窗口结束后触发（trailing）。
	p.Submit(domain.URLCandidate("http://example.com/2"))
	p.Submit(domain.URLCandidate("http://example.com/3"))
	p.Submit(domain.URLCandidate("http://example.com/4"))

	waitSettled(t, p, 2)
	time.Sleep(80 * time.Millisecond) // 确认没有多余触发

	pr.mu.Lock()
	calls := append([]string(nil), pr.calls...)
	pr.mu.Unlock()
	if len(calls) != 2 {
		t.Fatalf("期望恰好 2 次预检（leading+trailing），实际 %v", calls)
	}
	if calls[0] != "http://example.com/1" || calls[1] != "http://example.com/4" {
		t.Fatalf("期望触发第 1 个与最后 1 个值，实际 %v", calls)
	}
}

func TestStaleResponse_NeverOverwritesNewer(t *testing.T) {
	gate := make(chan struct{})
	pr := proberFunc(func(ctx context.Context, raw string, premium bool) (int, []byte, error) {
		if raw == "http://old.test/v" {
			<-gate // 先发出的请求后落地
			return 200, []byte("111"), nil
		}
		return 200, []byte("222"), nil
	})
	p := New(pr, Options{Window: 20 * time.Millisecond})
	defer p.Close()

	p.Submit(domain.URLCandidate("http://old.test/v"))
	time.Sleep(30 * time.Millisecond) // 静默期，使下一次变更走 leading
	p.Submit(domain.URLCandidate("http://new.test/v"))

	s := waitSettled(t, p, 2)
	if s.Outcome.Kind != domain.OutcomeOK || s.Outcome.SizeBytes != 222 {
		t.Fatalf("期望新请求的结论 ok(222)，实际 %+v", s.Outcome)
	}

	// 放行旧请求：它的结果必须被代次规则丢弃。
	close(gate)
	time.Sleep(20 * time.Millisecond)
	s = p.Last()
	if s.Outcome.SizeBytes != 222 || s.Loading {
		t.Fatalf("过期响应不应覆盖新结论：%+v", s)
	}
}

func TestLoading_CoversExactlyLiveRequest(t *testing.T) {
	pr := proberFunc(func(ctx context.Context, raw string, premium bool) (int, []byte, error) {
		time.Sleep(20 * time.Millisecond)
		return 200, []byte("7"), nil
	})
	p := New(pr, Options{Window: 10 * time.Millisecond})
	defer p.Close()

	var mu sync.Mutex
	var states []State
	p.Subscribe(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	p.Submit(domain.URLCandidate("http://example.com/v"))
	waitSettled(t, p, 1)

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 2 {
		t.Fatalf("期望 loading→settled 两次推送，实际 %v", states)
	}
	if !states[0].Loading || states[1].Loading {
		t.Fatalf("Loading 区间错误：%v", states)
	}
	if states[1].Outcome.Kind != domain.OutcomeOK {
		t.Fatalf("期望落地 ok，实际 %+v", states[1].Outcome)
	}
}

func TestSubmit_PremiumFlagForwarded(t *testing.T) {
	var got []bool
	var mu sync.Mutex
	pr := proberFunc(func(ctx context.Context, raw string, premium bool) (int, []byte, error) {
		mu.Lock()
		got = append(got, premium)
		mu.Unlock()
		return 200, []byte("1"), nil
	})
	p := New(pr, Options{Window: 10 * time.Millisecond, Premium: true})
	defer p.Close()

	p.Submit(domain.URLCandidate("http://example.com/v"))
	waitSettled(t, p, 1)

	p.SetPremium(false)
	time.Sleep(15 * time.Millisecond)
	p.Submit(domain.URLCandidate("http://example.com/w"))
	waitSettled(t, p, 2)

	mu.Lock()
	defer mu.Unlock()
	if fmt.Sprint(got) != "[true false]" {
		t.Fatalf("档位标记未随请求更新：%v", got)
	}
}
