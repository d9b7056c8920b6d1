// Package sampling 从按时间排好序的反思里挑出最多 K 条
package sampling

import "fmt"

const (
	StrategyBuckets = "buckets"
	StrategyStride  = "stride"
)

// Strategy 给定总数 n 和上限 k，返回升序且不重复的下标
type Strategy interface {
	Name() string
	Indices(n, k int) []int
}

// ByName 按名字取策略，空串返回默认的 buckets
func ByName(name string) (Strategy, error) {
	switch name {
	case "", StrategyBuckets:
		return Buckets{}, nil
	case StrategyStride:
		return Stride{}, nil
	}
	return nil, fmt.Errorf("unknown sampling strategy %q", name)
}

// Select 按策略挑选，items 需已按时间升序
func Select[T any](items []T, k int, s Strategy) []T {
	idx := s.Indices(len(items), k)
	out := make([]T, 0, len(idx))
	for _, i := range idx {
		out = append(out, items[i])
	}
	return out
}

func all(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// Buckets 最近 ⌈K/2⌉ 条加上剩余部分中最早的 ⌊K/2⌋ 条
type Buckets struct{}

func (Buckets) Name() string { return StrategyBuckets }

func (Buckets) Indices(n, k int) []int {
	if k <= 0 || n <= 0 {
		return nil
	}
	if n <= k {
		return all(n)
	}

	recent := (k + 1) / 2
	oldest := k - recent
	remaining := n - recent
	if oldest > remaining {
		oldest = remaining
	}

	idx := make([]int, 0, oldest+recent)
	for i := 0; i < oldest; i++ {
		idx = append(idx, i)
	}
	for i := n - recent; i < n; i++ {
		idx = append(idx, i)
	}
	return idx
}

// Stride 等间距取样，首尾都包含
type Stride struct{}

func (Stride) Name() string { return StrategyStride }

func (Stride) Indices(n, k int) []int {
	if k <= 0 || n <= 0 {
		return nil
	}
	if n <= k {
		return all(n)
	}
	if k == 1 {
		return []int{n - 1}
	}

	// n > k 时步长大于 1，下标严格递增
	idx := make([]int, k)
	for i := 0; i < k; i++ {
		idx[i] = i * (n - 1) / (k - 1)
	}
	return idx
}
