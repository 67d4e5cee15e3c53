package container_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/tripsim-oss/utils/container"
)

// item 测试用增量元素
type item struct {
	container.IncrementalItemBase
	id int
}

func ids(a *container.IncrementalArray[*item]) (all []int) {
	for _, x := range a.Data() {
		all = append(all, x.id)
	}
	return
}

func TestIncrementalArrayDeferredAdd(t *testing.T) {
	a := container.NewIncrementalArray[*item]()
	a.Add(&item{id: 1})
	a.Add(&item{id: 2})
	// Prepare前缓冲中的增删不可见
	assert.Equal(t, 0, a.Len())

	a.Prepare()
	assert.Equal(t, 2, a.Len())
	assert.ElementsMatch(t, []int{1, 2}, ids(a))
}

func TestIncrementalArrayRemoveKeepsIndexes(t *testing.T) {
	a := container.NewIncrementalArray[*item]()
	items := make([]*item, 0)
	for i := 1; i <= 5; i++ {
		x := &item{id: i}
		items = append(items, x)
		a.Add(x)
	}
	a.Prepare()

	// 删 > 增：末尾元素被移动填补删除位
	a.Remove(items[0])
	a.Remove(items[2])
	a.Prepare()
	assert.Equal(t, 3, a.Len())
	assert.ElementsMatch(t, []int{2, 4, 5}, ids(a))
	for i, x := range a.Data() {
		assert.Equal(t, i, x.Index())
	}

	// 增 >= 删：新元素原位替换被删除的元素
	removed := a.Data()[0]
	a.Remove(removed)
	a.Add(&item{id: 6})
	a.Add(&item{id: 7})
	a.Prepare()
	assert.Equal(t, 4, a.Len())
	assert.NotContains(t, ids(a), removed.id)
	assert.Contains(t, ids(a), 6)
	assert.Contains(t, ids(a), 7)
	for i, x := range a.Data() {
		assert.Equal(t, i, x.Index())
	}
}
