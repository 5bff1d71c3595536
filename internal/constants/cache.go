// Package constants 维护按档位获取的服务端常量（静音阈值范围、
// 跳过时长范围、文件大小上限）。
//
// 约束：
// - 档位变化时重新获取；档位不变时不发请求
// - 单次等待有上限（默认 5s）；失败后恰好重试一次，仍失败则落为
//   “未知”，调用方据此跳过依赖这些常量的本地预检
// - 获取携带代次；档位在途中再次变化时，旧结果按代次丢弃
package constants

import (
	"context"
	"sync"
	"time"

	"github.com/John-Robertt/vskip/internal/domain"
)

// DefaultTimeout 是单次获取的等待上限。
const DefaultTimeout = 5 * time.Second

// Fetcher 抽象服务端的常量接口（api.Client 实现）。
type Fetcher interface {
	FetchConstants(ctx context.Context, premium bool) (domain.Constants, error)
}

// Store 是常量的本地持久化（infra/cache 实现）。两次获取都失败时
// 回退到最近一次成功的值。允许为 nil。
type Store interface {
	LoadConstants(premium bool) (domain.Constants, bool)
	SaveConstants(premium bool, c domain.Constants) error
}

// Snapshot 是推送给订阅者的缓存快照。
// Known=false 表示当前档位的常量尚未就绪或获取失败。
type Snapshot struct {
	Constants domain.Constants
	Known     bool
	Premium   bool
}

// Options 是缓存的可调参数。
type Options struct {
	// Timeout 为单次获取的等待上限；<=0 取 DefaultTimeout。
	Timeout time.Duration
	// Store 为可选的本地持久化。
	Store Store
}

// Cache 是档位驱动的常量缓存。
type Cache struct {
	fetch   Fetcher
	timeout time.Duration
	store   Store

	mu      sync.Mutex
	gen     uint64
	premium bool
	hasTier bool
	cur     domain.Constants
	known   bool
	lastErr error
	cancel  context.CancelFunc
	subs    []func(Snapshot)
	closed  bool
}

// New 构造缓存。fetch 不能为空。构造后尚无档位，首次 SetPremium
// 触发首次获取。
func New(fetch Fetcher, opts Options) *Cache {
	t := opts.Timeout
	if t <= 0 {
		t = DefaultTimeout
	}
	return &Cache{fetch: fetch, timeout: t, store: opts.Store}
}

// Subscribe 注册订阅者。回调在缓存内部 goroutine 上执行，不得阻塞。
func (c *Cache) Subscribe(fn func(Snapshot)) {
	c.mu.Lock()
	c.subs = append(c.subs, fn)
	c.mu.Unlock()
}

// Current 返回当前快照。
func (c *Cache) Current() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{Constants: c.cur, Known: c.known, Premium: c.premium}
}

// Err 返回最近一次获取链（含重试）的失败原因；成功或尚未获取时为 nil。
func (c *Cache) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// MaxFileSize 返回当前档位的文件大小上限；未知时返回 0。
// 形状即 validate.Options.MaxFileSize 所需。
func (c *Cache) MaxFileSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.known {
		return 0
	}
	return c.cur.MaxFileSize
}

// SetPremium 设置档位。档位未变化时是空操作；变化（含首次设置）时
// 作废当前值与在途获取，并为新档位发起获取。
func (c *Cache) SetPremium(v bool) {
	c.mu.Lock()
	if c.closed || (c.hasTier && c.premium == v) {
		c.mu.Unlock()
		return
	}
	c.premium = v
	c.hasTier = true
	c.known = false
	c.gen++
	gen := c.gen
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.notifyLocked()
	c.mu.Unlock()

	go c.refresh(ctx, gen, v)
}

// Close 作废在途获取。之后的 SetPremium 被忽略。
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.mu.Unlock()
}

func (c *Cache) refresh(ctx context.Context, gen uint64, premium bool) {
	cs, err := c.fetchOnce(ctx, premium)
	if err != nil {
		// 恰好一次重试。
		cs, err = c.fetchOnce(ctx, premium)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gen {
		// 档位已再次变化：丢弃过期结果。
		return
	}
	c.cancel = nil

	if err != nil {
		c.lastErr = err
		// 回退到最近一次成功持久化的值；没有则保持未知。
		if c.store != nil {
			if v, ok := c.store.LoadConstants(premium); ok {
				c.cur = v
				c.known = true
				c.notifyLocked()
				return
			}
		}
		c.known = false
		c.notifyLocked()
		return
	}

	c.cur = cs
	c.known = true
	c.lastErr = nil
	if c.store != nil {
		_ = c.store.SaveConstants(premium, cs)
	}
	c.notifyLocked()
}

func (c *Cache) fetchOnce(parent context.Context, premium bool) (domain.Constants, error) {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()
	return c.fetch.FetchConstants(ctx, premium)
}

func (c *Cache) notifyLocked() {
	s := Snapshot{Constants: c.cur, Known: c.known, Premium: c.premium}
	for _, fn := range c.subs {
		fn(s)
	}
}
