package domain

// OutcomeKind 是校验结论的判别标签。
// 任一输入代次（generation）上，结论有且只有一种。
type OutcomeKind string

const (
	OutcomeOK           OutcomeKind = "ok"
	OutcomeBadURL       OutcomeKind = "bad_url"
	OutcomeUnreachable  OutcomeKind = "unreachable"
	OutcomeRequestError OutcomeKind = "request_error"
	OutcomeNotVideo     OutcomeKind = "not_video"
	OutcomeBadResponse  OutcomeKind = "bad_response"
	OutcomeTooBig       OutcomeKind = "too_big"
	OutcomeServerError  OutcomeKind = "server_error"
	OutcomeNetworkError OutcomeKind = "network_error"
)

// Outcome 是一次校验的结构化结论。
//
// 约束：
// - Kind 必填；其余字段只在对应 Kind 下有意义
// - SizeBytes 仅 ok/too_big 携带（服务端确认或拒绝的字节数）
// - ValidWithScheme 仅 bad_url 携带：补上 "http://" 后是否就能通过本地解析
// - StatusCode 仅 server_error 携带（未知状态码原样透出）
// - Message 仅 network_error 携带（传输层错误的原始描述）
type Outcome struct {
	Kind OutcomeKind `json:"kind"`

	SizeBytes       int64  `json:"size_bytes,omitempty"`
	ValidWithScheme bool   `json:"valid_with_scheme,omitempty"`
	StatusCode      int    `json:"status_code,omitempty"`
	Message         string `json:"message,omitempty"`
}

// OK 表示该结论允许进入上传阶段。
func (o Outcome) OK() bool { return o.Kind == OutcomeOK }

// Class 把结论归入三类失败（本地输入 / 网络 / 服务端），用于 report 与提示文案。
// ok 返回空串。
func (o Outcome) Class() string {
	switch o.Kind {
	case OutcomeOK:
		return ""
	case OutcomeBadURL:
		return "input"
	case OutcomeNetworkError:
		return "network"
	default:
		return "server"
	}
}
