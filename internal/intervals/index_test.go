package intervals

import "testing"

func TestSearch_BasicAndBoundaries(t *testing.T) {
	x := &Index{}
	if !x.Insert(2, 5) {
		t.Fatalf("插入 (2,5) 不应被拒绝")
	}
	if !x.Insert(10, 12) {
		t.Fatalf("插入 (10,12) 不应被拒绝")
	}

	if iv, ok := x.Search(3); !ok || iv.Start != 2 || iv.End != 5 {
		t.Fatalf("search(3) 期望 (2,5)，实际 %v ok=%v", iv, ok)
	}
	if _, ok := x.Search(6); ok {
		t.Fatalf("search(6) 不应命中")
	}
	if iv, ok := x.Search(11); !ok || iv.Start != 10 || iv.End != 12 {
		t.Fatalf("search(11) 期望 (10,12)，实际 %v ok=%v", iv, ok)
	}
	// 上下边界均为闭：恰落在端点也算命中。
	if iv, ok := x.Search(5); !ok || iv.Start != 2 {
		t.Fatalf("search(5) 期望命中 (2,5)，实际 %v ok=%v", iv, ok)
	}
	if iv, ok := x.Search(2); !ok || iv.Start != 2 {
		t.Fatalf("search(2) 期望命中 (2,5)，实际 %v ok=%v", iv, ok)
	}
}

func TestInsert_RejectsDegenerate(t *testing.T) {
	x := &Index{}
	if x.Insert(5, 5) {
		t.Fatalf("end==start 应被拒绝")
	}
	if x.Insert(7, 3) {
		t.Fatalf("end<start 应被拒绝")
	}
	if x.Insert(-1, 2) {
		t.Fatalf("负起点应被拒绝")
	}
	if x.Len() != 0 {
		t.Fatalf("退化区间不应计数，实际 Len=%d", x.Len())
	}
	if _, ok := x.Search(5); ok {
		t.Fatalf("空索引不应命中")
	}
}

func TestSearch_MaxEndPruningAcrossSubtrees(t *testing.T) {
	// 左子树的 maxEnd 必须沿插入路径抬高，否则跨越式长区间会被错误剪掉。
	x := &Index{}
	x.Insert(10, 11)
	x.Insert(2, 30) // 左子树，但终点远超根
	x.Insert(6, 7)

	if iv, ok := x.Search(20); !ok || iv.Start != 2 || iv.End != 30 {
		t.Fatalf("search(20) 期望 (2,30)，实际 %v ok=%v", iv, ok)
	}
	if iv, ok := x.Search(6.5); !ok || iv.Start != 2 {
		// (6,7) 与 (2,30) 同时覆盖 6.5；剪枝规则决定先到左子树的 (2,30)。
		t.Fatalf("search(6.5) 期望 (2,30)，实际 %v ok=%v", iv, ok)
	}
}

func TestInsert_EqualStartKeepsOrder(t *testing.T) {
	x := &Index{}
	x.Insert(1, 4)
	x.Insert(1, 9) // 相等起点：后插入者进入右子树
	if x.Len() != 2 {
		t.Fatalf("期望 2 个区间，实际 %d", x.Len())
	}
	if iv, ok := x.Search(1); !ok || iv.End != 4 {
		t.Fatalf("相等起点时应先命中先插入者 (1,4)，实际 %v ok=%v", iv, ok)
	}
	if iv, ok := x.Search(8); !ok || iv.End != 9 {
		t.Fatalf("search(8) 期望 (1,9)，实际 %v ok=%v", iv, ok)
	}
}

func TestBuild_FiltersShortAndDegenerate(t *testing.T) {
	x := Build([][2]float64{
		{0, 0.2},  // 低于阈值
		{1, 3},    // 保留
		{5, 5},    // 退化
		{10, 10.4}, // 低于阈值
		{20, 26},  // 保留
	}, 0.5)
	if x.Len() != 2 {
		t.Fatalf("期望过滤后剩 2 个区间，实际 %d", x.Len())
	}
	if _, ok := x.Search(0.1); ok {
		t.Fatalf("被过滤的短区间不应命中")
	}
	if _, ok := x.Search(21); !ok {
		t.Fatalf("(20,26) 应命中")
	}
}
