package domain

// Range 是服务端声明的参数合法区间（闭区间）。
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains 判断 v 是否落在区间内。
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// Constants 是服务端按账户档位（premium）声明的限制集合。
//
// 约束：
// - 字段随档位变化；档位切换后必须重新拉取
// - MaxFileSize 为 0 表示“未知”（拉取失败时的降级态）；
//   未知时本地不做大小预检，交由服务端兜底
type Constants struct {
	SilenceCutoff Range `json:"silenceCutoff"`
	SkipDuration  Range `json:"skipDuration"`
	MaxFileSize   int64 `json:"maxFileSize"`
}
