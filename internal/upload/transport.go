// Package upload 把一个校验通过的候选（本地文件或 URL）推送到服务端，
// 换取分析任务 ID，并沿途驱动会话状态机与进度上报。
package upload

import (
	"context"
	"io"

	"github.com/John-Robertt/vskip/internal/domain"
)

// Sender 抽象服务端的上传接口（api.Client 实现）。
// 两个方法都返回服务端分配的任务 ID。
type Sender interface {
	UploadFile(ctx context.Context, body io.Reader, size int64, mime string, premium bool) (string, error)
	UploadURL(ctx context.Context, raw string, premium bool) (string, error)
}

// Transport 执行上传并驱动会话。
type Transport struct {
	send    Sender
	premium bool
}

// NewTransport 构造传输器。send 不能为空。
func NewTransport(send Sender, premium bool) *Transport {
	return &Transport{send: send, premium: premium}
}

// Do 执行一次上传。body 是文件候选的内容流（URL 候选传 nil）。
// 会话经历 Active → Completed|Failed，终态恰好一次；返回任务 ID。
func (t *Transport) Do(ctx context.Context, sess *Session, c domain.Candidate, body io.Reader) (string, error) {
	sess.start()

	var taskID string
	var err error
	switch c.Kind {
	case domain.CandidateFile:
		pr := &progressReader{r: body, total: c.SizeBytes, report: sess.setProgress}
		taskID, err = t.send.UploadFile(ctx, pr, c.SizeBytes, c.MimeHint, t.premium)
	default:
		// URL 上传没有字节流可度量：上报一次不确定进度的哨兵值。
		sess.setProgress(Percent(0, 0))
		taskID, err = t.send.UploadURL(ctx, c.URL, t.premium)
	}
	if err != nil {
		sess.fail(err)
		return "", err
	}
	sess.complete(taskID)
	return taskID, nil
}
