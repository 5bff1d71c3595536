// Package media 提供按扩展名判定视频类型的本地规则。
// 服务端仍会按内容二次校验；这里只用于上传前的便宜预检。
package media

import (
	"path"
	"strings"
)

var extMime = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".ts":   "video/mp2t",
	".mpg":  "video/mpeg",
	".mpeg": "video/mpeg",
}

// MimeByPath 按扩展名返回视频 mime；未知扩展返回空串。
// 大小写不敏感；可传本地路径或 URL path。
func MimeByPath(p string) string {
	return extMime[strings.ToLower(path.Ext(p))]
}

// IsVideoPath 判断路径的扩展名是否是已知视频类型。
func IsVideoPath(p string) bool {
	return MimeByPath(p) != ""
}
