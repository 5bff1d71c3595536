// Package playback 驱动播放期的自动跳过：按固定周期采样播放时钟，
// 查询区间索引，在进入跳过区间的第一个 tick 上执行一次 seek。
package playback

import (
	"context"
	"time"

	"github.com/John-Robertt/vskip/internal/domain"
	"github.com/John-Robertt/vskip/internal/intervals"
)

// Clock 抽象外部媒体时间源（播放器/模拟器）。
//
// 约束：
// - Position/Seek 由轮询 goroutine 串行调用，不要求并发安全
// - Seek 允许异步生效：控制器靠 Fired 状态避免重复触发，不依赖立即生效
type Clock interface {
	Position() float64
	Seek(sec float64)
}

// DefaultTick 是轮询周期的默认值。
const DefaultTick = 10 * time.Millisecond

const (
	stateOutside = iota
	stateFired
)

// Controller 是 Outside/Fired 两态的跳过控制器。
//
// 状态机约束：
// - Outside 下命中区间：立即 seek 到区间终点，恰好一次，转 Fired
// - Fired 下仍命中：若命中区间的终点不超过已跳到的位置（同一区间或
//   被包含的区间），保持不动；若是伸得更远的相邻/重叠区间（链式），
//   再 seek 一次并抬高落点记录——每个链环恰好一次，至多多等一个轮询周期
// - Fired 下不再命中：转 Outside
// 由此保证：真正在区间外时绝不 seek，链式区间有界推进、不振荡。
type Controller struct {
	idx   *intervals.Index
	clock Clock
	tick  time.Duration

	state int
	// firedEnd 是 Fired 状态下已跳到的最远落点；
	// 终点不超过它的命中都视为“同一次进入”，不得再触发。
	firedEnd float64

	// OnSkip 在每次 seek 后被调用（可选；report/进度展示用）。
	OnSkip func(at, to float64)
}

// New 构造控制器。tick<=0 时取 DefaultTick。
func New(idx *intervals.Index, clock Clock, tick time.Duration) *Controller {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Controller{idx: idx, clock: clock, tick: tick, state: stateOutside}
}

// Step 执行一个轮询步：采样、查询、按状态机迁移。
// 返回本次是否执行了 seek。拆出来是为了可确定性测试（Run 只是 ticker 包装）。
func (c *Controller) Step() bool {
	pos := c.clock.Position()
	iv, hit := c.idx.Search(pos)

	switch c.state {
	case stateOutside:
		if !hit {
			return false
		}
		c.state = stateFired
		c.firedEnd = iv.End
		c.clock.Seek(iv.End)
		if c.OnSkip != nil {
			c.OnSkip(pos, iv.End)
		}
		return true
	default: // stateFired
		if !hit {
			c.state = stateOutside
			return false
		}
		if iv.End <= c.firedEnd {
			// 落点仍在同一次进入覆盖的范围内：不得重复 seek。
			return false
		}
		// 链式区间的下一环：推进一次。
		c.firedEnd = iv.End
		c.clock.Seek(iv.End)
		if c.OnSkip != nil {
			c.OnSkip(pos, iv.End)
		}
		return true
	}
}

// Run 启动轮询循环，直到 ctx 取消。必须保证退出时不再持有任何计时器，
// 避免残留 tick 作用到已经拆除的媒体源上。
func (c *Controller) Run(ctx context.Context) {
	t := time.NewTicker(c.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Step()
		}
	}
}

// Plan 推演整段播放将发生的跳过：链式/相接的区间并入一次推进
//（与控制器的闭边界规则一致：落点恰在下一区间起点上仍会继续前进），
// 返回有效 seek 序列与节省的总秒数。duration>0 时超出时长的区间被忽略。
func Plan(idx *intervals.Index, duration float64) ([]domain.SeekStep, float64) {
	ivs := idx.All()
	steps := make([]domain.SeekStep, 0, len(ivs))
	var saved float64

	for i := 0; i < len(ivs); {
		at := ivs[i].Start
		if duration > 0 && at > duration {
			break
		}
		to := ivs[i].End
		j := i + 1
		for j < len(ivs) && ivs[j].Start <= to {
			if ivs[j].End > to {
				to = ivs[j].End
			}
			j++
		}
		steps = append(steps, domain.SeekStep{At: at, To: to})
		saved += to - at
		i = j
	}
	return steps, saved
}
