package algo_test

import (
	"container/heap"
	"testing"

	"git.fiblab.net/sim/saferoute/router/algo"
	"github.com/stretchr/testify/assert"
)

func TestPriorityQueue(t *testing.T) {
	pq := make(algo.PriorityQueue, 0)
	pq.Push(&algo.Item{Value: 4, Priority: 4})
	pq.Push(&algo.Item{Value: 2, Priority: 2})
	pq.Push(&algo.Item{Value: 1, Priority: 1})
	pq.Push(&algo.Item{Value: 3, Priority: 3})

	// 建堆
	heap.Init(&pq)

	// 弹出
	item := heap.Pop(&pq).(*algo.Item)
	assert.Equal(t, 1, item.Value)
	assert.Equal(t, 1.0, item.Priority)
	item = heap.Pop(&pq).(*algo.Item)
	assert.Equal(t, 2, item.Value)
	assert.Equal(t, 2.0, item.Priority)
}

func TestPriorityQueueChangePriority(t *testing.T) {
	pq := make(algo.PriorityQueue, 0)
	pq.Push(&algo.Item{Value: 4, Priority: 4})
	pq.Push(&algo.Item{Value: 2, Priority: 2})
	pq.Push(&algo.Item{Value: 1, Priority: 1})
	pq.Push(&algo.Item{Value: 3, Priority: 3})

	// 建堆
	heap.Init(&pq)

	// 修改优先级（将Value==3的优先级改为0）
	for _, item := range pq {
		if item.Value == 3 {
			item.Priority = 0
			heap.Fix(&pq, item.Index)
		}
	}

	// 弹出
	item := heap.Pop(&pq).(*algo.Item)
	assert.Equal(t, 3, item.Value)
	assert.Equal(t, 0.0, item.Priority)

	item = heap.Pop(&pq).(*algo.Item)
	assert.Equal(t, 1, item.Value)
	assert.Equal(t, 1.0, item.Priority)

	item = heap.Pop(&pq).(*algo.Item)
	assert.Equal(t, 2, item.Value)
	assert.Equal(t, 2.0, item.Priority)

	item = heap.Pop(&pq).(*algo.Item)
	assert.Equal(t, 4, item.Value)
	assert.Equal(t, 4.0, item.Priority)

	// 空堆
	assert.Equal(t, 0, pq.Len())
}

func TestPriorityQueueTieBreak(t *testing.T) {
	pq := make(algo.PriorityQueue, 0)
	heap.Init(&pq)
	// Priority相同时比较Secondary，再相同时比较Value
	for _, it := range []*algo.Item{
		{Value: 9, Priority: 5, Secondary: 3},
		{Value: 8, Priority: 5, Secondary: 1},
		{Value: 7, Priority: 5, Secondary: 2},
		{Value: 6, Priority: 5, Secondary: 1},
		{Value: 1, Priority: 6, Secondary: 0},
		{Value: 5, Priority: 5, Secondary: 2},
	} {
		heap.Push(&pq, it)
	}

	want := [][2]float64{{6, 1}, {8, 1}, {5, 2}, {7, 2}, {9, 3}, {1, 0}}
	for _, w := range want {
		item := heap.Pop(&pq).(*algo.Item)
		assert.Equal(t, int(w[0]), item.Value)
		assert.Equal(t, w[1], item.Secondary)
		assert.Equal(t, -1, item.Index)
	}
	assert.Equal(t, 0, pq.Len())
}

func TestPriorityQueueTieBreakIndependentOfOrder(t *testing.T) {
	items := func() []*algo.Item {
		return []*algo.Item{
			{Value: 3, Priority: 1, Secondary: 1},
			{Value: 2, Priority: 1, Secondary: 1},
			{Value: 4, Priority: 1, Secondary: 0},
			{Value: 1, Priority: 1, Secondary: 1},
		}
	}
	pop := func(in []*algo.Item) []int {
		pq := make(algo.PriorityQueue, 0)
		for _, it := range in {
			heap.Push(&pq, it)
		}
		out := make([]int, 0, len(in))
		for pq.Len() > 0 {
			out = append(out, heap.Pop(&pq).(*algo.Item).Value)
		}
		return out
	}

	forward := items()
	backward := items()
	for i, j := 0, len(backward)-1; i < j; i, j = i+1, j-1 {
		backward[i], backward[j] = backward[j], backward[i]
	}
	assert.Equal(t, []int{4, 1, 2, 3}, pop(forward))
	assert.Equal(t, []int{4, 1, 2, 3}, pop(backward))
}
