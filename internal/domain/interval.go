package domain

// SkipInterval 是一段应跳过的播放区间，闭区间 [Start, End]，单位秒。
//
// 约束：End <= Start 的区间是退化区间，任何存储结构都不得收录。
type SkipInterval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Valid 判断区间是否非退化且起点非负。
func (iv SkipInterval) Valid() bool { return iv.Start >= 0 && iv.End > iv.Start }

// Duration 返回区间时长（秒）。退化区间返回 0。
func (iv SkipInterval) Duration() float64 {
	if !iv.Valid() {
		return 0
	}
	return iv.End - iv.Start
}
