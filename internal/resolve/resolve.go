// Package resolve 把“指向网页的 URL”解析为页面内的直链视频地址：
// 不少用户粘贴的是播放页而不是媒体文件本身。
//
// 规则（按优先级）：
// 1. URL path 本身就是视频扩展：原样返回，不抓取页面
// 2. <meta property="og:video(:url|:secure_url)"> 的 content
// 3. <video src> / <video><source src>
// 相对地址一律按页面 URL 归一成绝对地址。
package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/John-Robertt/vskip/internal/media"
)

// ErrNoMedia 表示页面里找不到可用的视频地址。
var ErrNoMedia = errors.New("页面中未找到视频地址")

// 页面超过该大小仍未解析出结果时放弃（防御超大响应）。
const maxPageBytes = 4 << 20

const defaultMemoSize = 128

// Resolver 带 LRU 记忆的页面解析器。
// 同一页面地址的解析结果在进程内复用（页面内容视为短期稳定）。
type Resolver struct {
	http *http.Client
	memo *lru.Cache[string, string]
}

// New 构造解析器。memoSize<=0 取默认容量。
func New(hc *http.Client, memoSize int) (*Resolver, error) {
	if hc == nil {
		hc = http.DefaultClient
	}
	if memoSize <= 0 {
		memoSize = defaultMemoSize
	}
	memo, err := lru.New[string, string](memoSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{http: hc, memo: memo}, nil
}

// Resolve 解析 raw 指向的视频直链。raw 必须是绝对 URL。
func (r *Resolver) Resolve(ctx context.Context, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	page, err := url.Parse(raw)
	if err != nil || page.Scheme == "" || page.Host == "" {
		return "", fmt.Errorf("不是绝对 URL: %q", raw)
	}

	// 直链不抓取。
	if media.IsVideoPath(page.Path) {
		return raw, nil
	}

	if v, ok := r.memo.Get(raw); ok {
		return v, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("抓取页面失败: HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("解析页面失败: %w", err)
	}

	found := extract(doc)
	if found == "" {
		return "", ErrNoMedia
	}
	abs, err := absolutize(page, found)
	if err != nil {
		return "", err
	}
	r.memo.Add(raw, abs)
	return abs, nil
}

func extract(doc *goquery.Document) string {
	for _, sel := range []string{
		`meta[property="og:video:secure_url"]`,
		`meta[property="og:video:url"]`,
		`meta[property="og:video"]`,
	} {
		if v := strings.TrimSpace(doc.Find(sel).First().AttrOr("content", "")); v != "" {
			return v
		}
	}
	if v := strings.TrimSpace(doc.Find("video").First().AttrOr("src", "")); v != "" {
		return v
	}
	if v := strings.TrimSpace(doc.Find("video source").First().AttrOr("src", "")); v != "" {
		return v
	}
	return ""
}

func absolutize(page *url.URL, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("页面给出的视频地址无效: %q", ref)
	}
	return page.ResolveReference(u).String(), nil
}
