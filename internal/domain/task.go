package domain

const (
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskError      = "error"
)

// TaskStatus 是服务端任务状态（/status 与 /status_ws 推送的 JSON）。
//
// 约束：
// - completed / error 是终态；in_progress 可出现任意多次
// - State 出现未知取值时按 in_progress 处理（服务端演进不应打断 watch）
type TaskStatus struct {
	State    string  `json:"state"`
	Stage    string  `json:"stage,omitempty"`
	Progress float64 `json:"progress,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// Terminal 判断该状态是否为终态。
func (s TaskStatus) Terminal() bool {
	return s.State == TaskCompleted || s.State == TaskError
}
