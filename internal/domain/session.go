package domain

const (
	SessionIdle      = "idle"
	SessionActive    = "active"
	SessionCompleted = "completed"
	SessionFailed    = "failed"
)

// Session 是一次上传会话的快照（report 用）。
//
// 约束：
// - Progress==0 当且仅当 idle；active 期间恒为 (0,100]
// - 从 active 出发有且只有一个终态（completed 或 failed）
// - failed 后 Progress 归零，允许用户直接重试
type Session struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	Progress int    `json:"progress"`
	TaskID   string `json:"task_id,omitempty"`
}
