// Package api 是服务端 HTTP 接口的瘦客户端：拼请求、读响应、
// 解析为领域类型。网络策略（重试/限速/代理）在 infra/httpx。
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/John-Robertt/vskip/internal/domain"
)

// 错误正文只取片段：服务端的错误说明通常在第一行。
const maxBodySnippet = 1 << 10

// StatusError 表示服务端返回了非预期的 HTTP 状态码。
// 上层据此生成更可操作的 error_msg。
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, body)
}

// Client 绑定一个服务端地址。
// short 用于带总超时的短请求；stream 用于上传体与 read-file 拉流。
type Client struct {
	base   *url.URL
	short  *http.Client
	stream *http.Client
}

// New 构造客户端。server 必须是绝对 URL；stream 为 nil 时复用 short。
func New(server string, short, stream *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(server))
	if err != nil {
		return nil, fmt.Errorf("解析服务端地址失败: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("服务端地址必须是绝对 URL: %q", server)
	}
	if short == nil {
		short = http.DefaultClient
	}
	if stream == nil {
		stream = short
	}
	return &Client{base: u, short: short, stream: stream}, nil
}

// FetchConstants 获取指定档位的服务端常量。
func (c *Client) FetchConstants(ctx context.Context, premium bool) (domain.Constants, error) {
	var out domain.Constants
	resp, err := c.get(ctx, c.short, "/constants", premiumQuery(premium))
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, newStatusError("constants", resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("解析常量响应失败: %w", err)
	}
	return out, nil
}

// CheckUploadURL 对候选 URL 做服务端预检。状态码到结论的映射是
// validate 的职责，这里原样透出 status/body。
func (c *Client) CheckUploadURL(ctx context.Context, raw string, premium bool) (int, []byte, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/check-upload-url", premiumQuery(premium), strings.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "text/plain")
	resp, err := c.short.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySnippet))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// UploadFile 上传文件内容，返回服务端分配的任务 ID。
// mime 为空时按不透明字节流发送。
func (c *Client) UploadFile(ctx context.Context, body io.Reader, size int64, mime string, premium bool) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/upload-file", premiumQuery(premium), body)
	if err != nil {
		return "", err
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	req.Header.Set("Content-Type", mime)
	req.ContentLength = size
	return c.doUpload(req)
}

// UploadURL 提交远端视频地址，返回服务端分配的任务 ID。
func (c *Client) UploadURL(ctx context.Context, raw string, premium bool) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/upload-file", premiumQuery(premium), strings.NewReader(raw))
	if err != nil {
		return "", err
	}
	// 与文件上传同一端点，靠媒体类型区分。
	req.Header.Set("Content-Type", "text/x-url")
	return c.doUpload(req)
}

func (c *Client) doUpload(req *http.Request) (string, error) {
	resp, err := c.stream.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", newStatusError("upload", resp)
	}
	// 任务 ID 是纯文本正文。
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySnippet))
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(string(b))
	if id == "" {
		return "", fmt.Errorf("upload: 服务端未返回任务 ID")
	}
	return id, nil
}

// Analyze 拉取任务的跳过区间列表（[start,end] 对，单位秒）。
func (c *Client) Analyze(ctx context.Context, taskID string) ([][2]float64, error) {
	resp, err := c.get(ctx, c.short, "/analyze/"+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError("analyze", resp)
	}
	var pairs [][2]float64
	if err := json.NewDecoder(resp.Body).Decode(&pairs); err != nil {
		return nil, fmt.Errorf("解析区间响应失败: %w", err)
	}
	return pairs, nil
}

// Status 拉取任务的当前状态（轮询用；推送走 StatusSocketURL）。
func (c *Client) Status(ctx context.Context, taskID string) (domain.TaskStatus, error) {
	var st domain.TaskStatus
	resp, err := c.get(ctx, c.short, "/status", url.Values{"t": {taskID}})
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return st, newStatusError("status", resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("解析状态响应失败: %w", err)
	}
	return st, nil
}

// StatusSocketURL 返回任务状态推送的 websocket 地址。
func (c *Client) StatusSocketURL(taskID string) string {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = joinPath(u.Path, "/status_ws")
	u.RawQuery = url.Values{"t": {taskID}}.Encode()
	return u.String()
}

// ReadFile 拉取处理后的音频流。调用方负责关闭返回的 body。
// 返回的 size 在服务端未声明长度时为 -1。
func (c *Client) ReadFile(ctx context.Context, taskID string) (io.ReadCloser, int64, error) {
	resp, err := c.get(ctx, c.stream, "/read-file/"+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, 0, newStatusError("read-file", resp)
	}
	return resp.Body, resp.ContentLength, nil
}

// Waveform 拉取波形图（PNG 字节）。
func (c *Client) Waveform(ctx context.Context, taskID string) ([]byte, error) {
	resp, err := c.get(ctx, c.short, "/waveform/"+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError("waveform", resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) get(ctx context.Context, hc *http.Client, path string, q url.Values) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return nil, err
	}
	return hc.Do(req)
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	u := *c.base
	u.Path = joinPath(u.Path, path)
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return http.NewRequestWithContext(ctx, method, u.String(), body)
}

func premiumQuery(premium bool) url.Values {
	if premium {
		return url.Values{"premium": {"true"}}
	}
	return url.Values{"premium": {"false"}}
}

func joinPath(base, p string) string {
	return strings.TrimSuffix(base, "/") + p
}

func newStatusError(op string, resp *http.Response) *StatusError {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySnippet))
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(b)}
}
