package domain

import "strings"

// CandidateKind 是上传候选的判别标签：本地文件或远程 URL。
type CandidateKind string

const (
	CandidateFile CandidateKind = "file"
	CandidateURL  CandidateKind = "url"
)

// Candidate 是一次上传的候选输入。
//
// 约束：
// - Kind=file：Path/SizeBytes/MimeHint 有效，URL 为空
// - Kind=url：URL 为原始输入文本（未规范化），文件字段为零值
// - 文件内容不在这里持有：上传阶段按 Path 打开并流式读取
type Candidate struct {
	Kind CandidateKind

	Path      string
	SizeBytes int64
	MimeHint  string

	URL string
}

// URLCandidate 把一段输入文本包装为 URL 候选（不做任何校验，校验是 pipeline 的职责）。
func URLCandidate(text string) Candidate {
	return Candidate{Kind: CandidateURL, URL: text}
}

// FileCandidate 构造本地文件候选。mimeHint 允许为空（表示无法判断）。
func FileCandidate(path string, sizeBytes int64, mimeHint string) Candidate {
	return Candidate{
		Kind:      CandidateFile,
		Path:      path,
		SizeBytes: sizeBytes,
		MimeHint:  strings.TrimSpace(mimeHint),
	}
}

// Display 返回用于 report/进度输出的输入标识（URL 或路径）。
func (c Candidate) Display() string {
	if c.Kind == CandidateURL {
		return c.URL
	}
	return c.Path
}
