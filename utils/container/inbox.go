package container

import "sync"

// Inbox 互斥缓冲的消息收件箱
// 功能：实体间异步消息传递的缓冲区
// 说明：任意goroutine可Post投递，但仅由所属实体在自身更新阶段PopAll取走，
// 保证每个实体的内部状态只被自己的handler访问
type Inbox[T any] struct {
	mtx   sync.Mutex
	items []T
}

// Post 投递一条消息（fire-and-forget）
func (b *Inbox[T]) Post(item T) {
	b.mtx.Lock()
	b.items = append(b.items, item)
	b.mtx.Unlock()
}

// PopAll 取走当前积压的所有消息
// 返回：按投递顺序排列的消息列表
func (b *Inbox[T]) PopAll() []T {
	b.mtx.Lock()
	items := b.items
	b.items = nil
	b.mtx.Unlock()
	return items
}

// Len 获取当前积压的消息数
func (b *Inbox[T]) Len() int {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return len(b.items)
}
