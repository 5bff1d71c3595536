package constants

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/John-Robertt/vskip/internal/domain"
)

type fetcherFunc func(ctx context.Context, premium bool) (domain.Constants, error)

func (f fetcherFunc) FetchConstants(ctx context.Context, premium bool) (domain.Constants, error) {
	return f(ctx, premium)
}

var sample = domain.Constants{
	SilenceCutoff: domain.Range{Min: -60, Max: -20},
	SkipDuration:  domain.Range{Min: 0.5, Max: 10},
	MaxFileSize:   1 << 30,
}

// waitKnown 轮询等待缓存就绪（或确定失败）。
func waitKnown(t *testing.T, c *Cache, want bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := c.Current(); s.Known == want {
			return s
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("等待 Known=%v 超时：%+v", want, c.Current())
	return Snapshot{}
}

func TestSetPremium_FetchesOncePerTier(t *testing.T) {
	var mu sync.Mutex
	var calls []bool
	c := New(fetcherFunc(func(ctx context.Context, premium bool) (domain.Constants, error) {
		mu.Lock()
		calls = append(calls, premium)
		mu.Unlock()
		return sample, nil
	}), Options{})
	defer c.Close()

	c.SetPremium(false)
	waitKnown(t, c, true)
	// 档位不变：不得再发请求。
	c.SetPremium(false)
	c.SetPremium(false)
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	n := len(calls)
	mu.Unlock()
	if n != 1 {
		t.Fatalf("同档位重复设置不应重新获取，实际 %d 次", n)
	}

	if got := c.MaxFileSize(); got != sample.MaxFileSize {
		t.Fatalf("期望上限 %d，实际 %d", sample.MaxFileSize, got)
	}
}

func TestRefresh_ExactlyOneRetryThenUnknown(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	c := New(fetcherFunc(func(ctx context.Context, premium bool) (domain.Constants, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return domain.Constants{}, errors.New("boom")
	}), Options{})
	defer c.Close()

	c.SetPremium(true)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Err() != nil {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	n := calls
	mu.Unlock()
	if n != 2 {
		t.Fatalf("期望初次+恰好一次重试共 2 次，实际 %d 次", n)
	}
	if s := c.Current(); s.Known {
		t.Fatalf("两次都失败后应落为未知，实际 %+v", s)
	}
	if c.MaxFileSize() != 0 {
		t.Fatalf("未知状态下上限应为 0")
	}
}

func TestRefresh_StaleTierResultDiscarded(t *testing.T) {
	gate := make(chan struct{})
	c := New(fetcherFunc(func(ctx context.Context, premium bool) (domain.Constants, error) {
		if !premium {
			<-gate // 旧档位的请求后落地
			return domain.Constants{MaxFileSize: 1}, nil
		}
		return domain.Constants{MaxFileSize: 2}, nil
	}), Options{})
	defer c.Close()

	c.SetPremium(false)
	c.SetPremium(true) // 在途中切档
	waitKnown(t, c, true)

	close(gate)
	time.Sleep(20 * time.Millisecond)
	if got := c.MaxFileSize(); got != 2 {
		t.Fatalf("过期档位的结果不应覆盖当前值，实际上限 %d", got)
	}
	if s := c.Current(); !s.Premium {
		t.Fatalf("快照档位应为 premium，实际 %+v", s)
	}
}

func TestRefresh_TimeoutCountsAsFailure(t *testing.T) {
	c := New(fetcherFunc(func(ctx context.Context, premium bool) (domain.Constants, error) {
		<-ctx.Done()
		return domain.Constants{}, ctx.Err()
	}), Options{Timeout: 10 * time.Millisecond})
	defer c.Close()

	c.SetPremium(false)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Err() != nil {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if c.Err() == nil {
		t.Fatalf("超时应视为获取失败")
	}
	if s := c.Current(); s.Known {
		t.Fatalf("超时两次后应落为未知，实际 %+v", s)
	}
}

type memStore struct {
	mu sync.Mutex
	m  map[bool]domain.Constants
}

func (s *memStore) LoadConstants(premium bool) (domain.Constants, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[premium]
	return v, ok
}

func (s *memStore) SaveConstants(premium bool, c domain.Constants) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = map[bool]domain.Constants{}
	}
	s.m[premium] = c
	return nil
}

func TestRefresh_StoreFallbackAfterFailures(t *testing.T) {
	st := &memStore{m: map[bool]domain.Constants{false: sample}}
	c := New(fetcherFunc(func(ctx context.Context, premium bool) (domain.Constants, error) {
		return domain.Constants{}, errors.New("server down")
	}), Options{Store: st})
	defer c.Close()

	c.SetPremium(false)
	s := waitKnown(t, c, true)
	if s.Constants.MaxFileSize != sample.MaxFileSize {
		t.Fatalf("两次失败后应回退到持久化值，实际 %+v", s)
	}
	if c.Err() == nil {
		t.Fatalf("回退不应掩盖获取失败的原因")
	}
}

func TestSubscribe_NotifiedOnTierChange(t *testing.T) {
	var mu sync.Mutex
	var snaps []Snapshot
	c := New(fetcherFunc(func(ctx context.Context, premium bool) (domain.Constants, error) {
		return sample, nil
	}), Options{})
	defer c.Close()

	c.Subscribe(func(s Snapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	})

	c.SetPremium(false)
	waitKnown(t, c, true)

	mu.Lock()
	defer mu.Unlock()
	if len(snaps) != 2 {
		t.Fatalf("期望 未知→就绪 两次推送，实际 %v", snaps)
	}
	if snaps[0].Known || !snaps[1].Known {
		t.Fatalf("推送顺序错误：%v", snaps)
	}
}
