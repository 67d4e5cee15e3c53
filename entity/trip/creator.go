package trip

import (
	"sync"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/tripsim-oss/entity"
	"github.com/tsinghua-fib-lab/tripsim-oss/utils/randengine"
)

// TripCreator 压测Trip批量生成器
// 功能：累积待配对的车道端点，定期随机配对生成压测Trip
// 说明：全局单例，由task在初始化时显式构造并注入（不做环境全局查找）；
// 随机配对+定期清空在没有真实出行需求模型的情况下给解析协议和
// 插入路径施加合成负载，无条件清空保证内存有界、避免跨拓扑变更
// 持有陈旧引用
type TripCreator struct {
	ctx entity.ITaskContext

	pending []entity.RoughLocationRef // 待配对端点集合，每次唤醒后无条件清空
	mtx     sync.Mutex

	generator *randengine.Engine
}

// NewCreator 创建压测Trip生成器实例
// 参数：ctx-任务上下文，seed-配对洗牌的随机种子
func NewCreator(ctx entity.ITaskContext, seed uint64) *TripCreator {
	return &TripCreator{
		ctx:       ctx,
		pending:   make([]entity.RoughLocationRef, 0),
		generator: randengine.New(seed),
	}
}

// AddEndpoint 追加一个待配对的车道端点
// 说明：累计端点数超过1时登记一次固定延时唤醒；窗口内重复调用
// 会登记冗余的唤醒，不做去重（唤醒是幂等的，多醒无害）
func (c *TripCreator) AddEndpoint(ref entity.RoughLocationRef) {
	c.mtx.Lock()
	c.pending = append(c.pending, ref)
	n := len(c.pending)
	c.mtx.Unlock()

	if n > 1 {
		c.ctx.Timer().WakeMeUpIn(c.ctx.RuntimeConfig().Trip.BatchDelay, c)
	}
}

// PendingCount 获取当前待配对端点数
func (c *TripCreator) PendingCount() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return len(c.pending)
}

// Wake 到期唤醒：随机配对并批量生成Trip
// 算法说明：
// 1. 取走并清空待配对集合（无论本次能配对多少，集合都不保留）
// 2. 随机打乱后按相邻两个配成一对
// 3. 每个完整对生成一个Trip（前者为起点、后者为终点、无listener）
// 4. 落单的尾元素直接丢弃
func (c *TripCreator) Wake(instant float64) {
	c.mtx.Lock()
	pending := c.pending
	c.pending = make([]entity.RoughLocationRef, 0)
	c.mtx.Unlock()

	c.generator.Shuffle(len(pending), func(i, j int) {
		pending[i], pending[j] = pending[j], pending[i]
	})
	for _, pair := range lo.Chunk(pending, 2) {
		if len(pair) < 2 {
			// 奇数尾巴丢弃
			continue
		}
		c.ctx.TripManager().Spawn(pair[0], pair[1], nil, instant)
	}
}
