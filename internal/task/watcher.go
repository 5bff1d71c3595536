// Package task 跟踪服务端分析任务直到终态，并取回跳过区间。
//
// 约束：
// - 优先 websocket 推送；建连或流中断时回退到轮询，直到终态或取消
// - completed / error 都是正常返回（调用方看 State 决定后续），
//   只有传输整体失败或 ctx 取消才返回 error
// - 区间走本地缓存优先：同一任务 ID 的区间不可变，命中即不发请求
package task

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/John-Robertt/vskip/internal/domain"
)

// DefaultPoll 是轮询回退的默认周期。
const DefaultPoll = time.Second

// Client 抽象服务端的任务接口（api.Client 实现）。
type Client interface {
	Status(ctx context.Context, taskID string) (domain.TaskStatus, error)
	Analyze(ctx context.Context, taskID string) ([][2]float64, error)
	StatusSocketURL(taskID string) string
}

// IntervalStore 是区间的本地持久化（infra/cache 实现）。允许为 nil。
type IntervalStore interface {
	LoadIntervals(taskID string) ([][2]float64, bool)
	SaveIntervals(taskID string, pairs [][2]float64) error
}

// Watcher 跟踪单个任务。
type Watcher struct {
	client Client
	store  IntervalStore
	dialer *websocket.Dialer
	poll   time.Duration

	// OnStatus 在每次收到状态时被调用（可选；进度展示用）。
	// 回调在 Wait 的调用 goroutine 上执行。
	OnStatus func(domain.TaskStatus)
}

// Options 是 Watcher 的可调参数。
type Options struct {
	// Poll 为轮询回退周期；<=0 取 DefaultPoll。
	Poll time.Duration
	// Store 为可选的区间持久化。
	Store IntervalStore
	// Dialer 为可选的 websocket 拨号器；nil 取默认。
	Dialer *websocket.Dialer
}

// NewWatcher 构造 Watcher。client 不能为空。
func NewWatcher(client Client, opts Options) *Watcher {
	p := opts.Poll
	if p <= 0 {
		p = DefaultPoll
	}
	d := opts.Dialer
	if d == nil {
		d = websocket.DefaultDialer
	}
	return &Watcher{client: client, store: opts.Store, dialer: d, poll: p}
}

// Wait 阻塞直到任务进入终态（completed 或 error）。
// websocket 失败不致命：无缝切换到轮询。
func (w *Watcher) Wait(ctx context.Context, taskID string) (domain.TaskStatus, error) {
	if st, ok, err := w.waitSocket(ctx, taskID); err != nil {
		return domain.TaskStatus{}, err
	} else if ok {
		return st, nil
	}
	return w.waitPoll(ctx, taskID)
}

// waitSocket 经 websocket 等待终态。ok=false 表示应回退到轮询
//（拨号失败或推送流在终态前断开）。
func (w *Watcher) waitSocket(ctx context.Context, taskID string) (domain.TaskStatus, bool, error) {
	conn, resp, err := w.dialer.DialContext(ctx, w.client.StatusSocketURL(taskID), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		if ctx.Err() != nil {
			return domain.TaskStatus{}, false, ctx.Err()
		}
		return domain.TaskStatus{}, false, nil
	}
	defer conn.Close()

	// ReadJSON 不接受 ctx：取消靠关闭连接解除阻塞。
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		var st domain.TaskStatus
		if err := conn.ReadJSON(&st); err != nil {
			if ctx.Err() != nil {
				return domain.TaskStatus{}, false, ctx.Err()
			}
			return domain.TaskStatus{}, false, nil
		}
		if w.OnStatus != nil {
			w.OnStatus(st)
		}
		if st.Terminal() {
			return st, true, nil
		}
	}
}

func (w *Watcher) waitPoll(ctx context.Context, taskID string) (domain.TaskStatus, error) {
	t := time.NewTicker(w.poll)
	defer t.Stop()
	for {
		st, err := w.client.Status(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return domain.TaskStatus{}, ctx.Err()
			}
			// 单次轮询失败不致命：下一个周期重试。
			select {
			case <-ctx.Done():
				return domain.TaskStatus{}, ctx.Err()
			case <-t.C:
				continue
			}
		}
		if w.OnStatus != nil {
			w.OnStatus(st)
		}
		if st.Terminal() {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return domain.TaskStatus{}, ctx.Err()
		case <-t.C:
		}
	}
}

// Intervals 取回任务的跳过区间，本地缓存优先。
func (w *Watcher) Intervals(ctx context.Context, taskID string) ([][2]float64, error) {
	if w.store != nil {
		if pairs, ok := w.store.LoadIntervals(taskID); ok {
			return pairs, nil
		}
	}
	pairs, err := w.client.Analyze(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if w.store != nil {
		// 写失败不影响本次结果（缓存只是加速）。
		_ = w.store.SaveIntervals(taskID, pairs)
	}
	return pairs, nil
}
