package domain

import (
	"encoding/json"
	"time"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

const (
	ErrCodeInvalidInput   = "invalid_input"
	ErrCodeUploadFailed   = "upload_failed"
	ErrCodeTaskFailed     = "task_failed"
	ErrCodeFetchFailed    = "fetch_failed"
	ErrCodeIOFailed       = "io_failed"
	ErrCodeConfigNotFound = "config_not_found"
	ErrCodeConfigInvalid  = "config_invalid"
	ErrCodeMissingPath    = "config_missing_path"
)

const (
	FileStatusWritten = "written"
	FileStatusExists  = "exists"
	FileStatusFailed  = "failed"
)

// Report 是对外稳定输出（stdout JSON）的结构。
//
// 约束：
// - 每次命令执行产生且仅产生一个 Report
// - Status=failed 时 ErrorCode 必填；ok 时两者为空
// - 字段随命令不同可缺省，但名字与类型必须保持稳定
type Report struct {
	Command string `json:"command"`
	Server  string `json:"server"`
	Input   string `json:"input"`
	Premium bool   `json:"premium"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`

	Outcome *Outcome `json:"outcome,omitempty"`
	Session *Session `json:"session,omitempty"`
	TaskID  string   `json:"task_id,omitempty"`

	ResolvedURL string `json:"resolved_url,omitempty"`

	Intervals []SkipInterval `json:"intervals,omitempty"`
	Seeks     []SeekStep     `json:"seeks,omitempty"`
	SavedSec  float64        `json:"saved_seconds,omitempty"`

	Files []FileResult `json:"files,omitempty"`
}

// SeekStep 记录一次自动跳过：播放越过 At 时定位到 To。
type SeekStep struct {
	At float64 `json:"at"`
	To float64 `json:"to"`
}

// FileResult 记录 fetch 命令的单个产物。
type FileResult struct {
	Name      string `json:"name"`
	Dst       string `json:"dst"`
	Status    string `json:"status"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// Fail 把 report 置为失败态（幂等；后到的失败不覆盖先到的）。
func (r *Report) Fail(code, msg string) {
	if r.Status == StatusFailed {
		return
	}
	r.Status = StatusFailed
	r.ErrorCode = code
	r.ErrorMsg = msg
}

// Finalize 统一时间为 UTC 并补全缺省状态。
// 输出稳定性约束：JSON 时间必须是 RFC3339 且以 Z 结尾。
func (r *Report) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.Status == "" {
		r.Status = StatusOK
	}
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
// 当前只是透传 encoding/json 的默认行为。
func (r Report) MarshalJSON() ([]byte, error) {
	type Alias Report
	return json.Marshal(Alias(r))
}
