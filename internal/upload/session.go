package upload

import (
	"sync"

	"github.com/google/uuid"

	"github.com/John-Robertt/vskip/internal/domain"
)

// Callbacks 是会话的观察接口。所有回调在传输 goroutine 上同步执行，
// 不得阻塞。OnComplete/OnError 合计至多被调用一次。
type Callbacks struct {
	OnProgress func(pct int)
	OnComplete func(taskID string)
	OnError    func(err error)
}

// Session 是一次上传的状态机：Idle → Active → Completed|Failed。
//
// 约束：
// - 终态恰好进入一次；之后的任何进度/终态调用都被忽略
// - 进度单调不减；失败时清零（界面回到可重试的起点）
type Session struct {
	mu       sync.Mutex
	id       string
	state    string
	progress int
	taskID   string
	done     bool
	cb       Callbacks
}

// NewSession 构造会话并分配全局唯一 ID。
func NewSession(cb Callbacks) *Session {
	return &Session{id: uuid.NewString(), state: domain.SessionIdle, cb: cb}
}

// ID 返回会话标识。
func (s *Session) ID() string { return s.id }

// Snapshot 返回当前状态的只读副本。
func (s *Session) Snapshot() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Session{ID: s.id, State: s.state, Progress: s.progress, TaskID: s.taskID}
}

func (s *Session) start() {
	s.mu.Lock()
	if !s.done && s.state == domain.SessionIdle {
		s.state = domain.SessionActive
	}
	s.mu.Unlock()
}

func (s *Session) setProgress(pct int) {
	s.mu.Lock()
	if s.done || pct <= s.progress {
		s.mu.Unlock()
		return
	}
	s.progress = pct
	fn := s.cb.OnProgress
	s.mu.Unlock()
	if fn != nil {
		fn(pct)
	}
}

func (s *Session) complete(taskID string) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.state = domain.SessionCompleted
	s.progress = 100
	s.taskID = taskID
	fn := s.cb.OnComplete
	s.mu.Unlock()
	if fn != nil {
		fn(taskID)
	}
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.state = domain.SessionFailed
	s.progress = 0
	fn := s.cb.OnError
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
