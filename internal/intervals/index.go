// Package intervals 提供按起点建树、带子树最大终点增强的区间索引，
// 用于回答“播放点 p 落在哪个跳过区间内”。
//
// 约束：
// - 每个分析结果构建一次，之后只读（读侧无锁依赖该约束）
// - 不做旋转平衡：单个视频的区间量很小，O(height) 足够
// - 不做时长策略：过短区间由调用方在 Insert 前过滤
package intervals

import "github.com/John-Robertt/vskip/internal/domain"

type node struct {
	iv     domain.SkipInterval
	maxEnd float64
	left   *node
	right  *node
}

// Index 是跳过区间的点查询索引。零值可用。
type Index struct {
	root *node
	size int
}

// Len 返回已收录的区间数。
func (x *Index) Len() int { return x.size }

// Insert 收录一个区间。退化区间（end<=start）与负起点直接拒绝并返回 false：
// 它们永远不会产生一次跳过，不该进入索引。
//
// 相等起点保持插入顺序（后插入者进入右子树），使查询结果可预测。
func (x *Index) Insert(start, end float64) bool {
	iv := domain.SkipInterval{Start: start, End: end}
	if !iv.Valid() {
		return false
	}

	n := &node{iv: iv, maxEnd: end}
	if x.root == nil {
		x.root = n
		x.size++
		return true
	}

	cur := x.root
	for {
		// 下降途中顺手抬高 maxEnd：回溯更新在无父指针的迭代写法里等价于此。
		if end > cur.maxEnd {
			cur.maxEnd = end
		}
		if start < cur.iv.Start {
			if cur.left == nil {
				cur.left = n
				break
			}
			cur = cur.left
		} else {
			if cur.right == nil {
				cur.right = n
				break
			}
			cur = cur.right
		}
	}
	x.size++
	return true
}

// Search 返回覆盖 point 的区间。边界按闭区间判定：
// start<=point<=end 视为命中（恰落在 end 上仍算在内，这是链式区间
// 能在一个轮询周期内继续前进的前提）。
//
// 剪枝规则：左子树的 maxEnd < point 时，答案不可能在左边。
func (x *Index) Search(point float64) (domain.SkipInterval, bool) {
	cur := x.root
	for cur != nil {
		if cur.iv.Start <= point && point <= cur.iv.End {
			return cur.iv, true
		}
		if cur.left != nil && cur.left.maxEnd >= point {
			cur = cur.left
			continue
		}
		cur = cur.right
	}
	return domain.SkipInterval{}, false
}

// All 按起点升序（相等起点按插入顺序）返回全部区间。
// 仅用于展示/推演；点查询请走 Search。
func (x *Index) All() []domain.SkipInterval {
	out := make([]domain.SkipInterval, 0, x.size)
	var walk func(n *node)
	walk = func(n *node) {
		if n == nil {
			return
		}
		walk(n.left)
		out = append(out, n.iv)
		walk(n.right)
	}
	walk(x.root)
	return out
}

// Build 从原始 [start,end] 对构建索引，调用方给定最小时长过滤阈值
//（minDuration<=0 表示不过滤）。退化区间被静默丢弃。
func Build(pairs [][2]float64, minDuration float64) *Index {
	x := &Index{}
	for _, p := range pairs {
		if minDuration > 0 && p[1]-p[0] < minDuration {
			continue
		}
		x.Insert(p[0], p[1])
	}
	return x
}
