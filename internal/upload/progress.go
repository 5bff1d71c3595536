package upload

import (
	"io"
	"math"
)

// Percent 把已传字节数映射为整数百分比。
//
// 规则：
// - total<=0（长度未知）：返回哨兵值 1，表示“在传但进度不可知”
// - 四舍五入到最近整数；已传非零但舍入为 0 时抬到 1（用户看得见开始）
// - 上限钳到 100
func Percent(loaded, total int64) int {
	if total <= 0 {
		return 1
	}
	pct := int(math.Round(float64(loaded) / float64(total) * 100))
	if pct < 1 && loaded > 0 {
		pct = 1
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}

// progressReader 包装上传体，在读取推进时上报百分比变化。
// 同一百分比只上报一次；上报在读取 goroutine 上同步执行。
type progressReader struct {
	r      io.Reader
	total  int64
	loaded int64
	last   int
	report func(pct int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.loaded += int64(n)
		if pct := Percent(p.loaded, p.total); pct != p.last {
			p.last = pct
			p.report(pct)
		}
	}
	return n, err
}
