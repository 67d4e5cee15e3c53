package lane

import (
	"github.com/tsinghua-fib-lab/tripsim-oss/entity"
	"github.com/tsinghua-fib-lab/tripsim-oss/utils/container"
)

type travelerNode = container.ListNode[*traveler, struct{}]

// traveler 车道上的旅行者
// 功能：承载一次已插入微观模拟的出行，沿计算好的途经车道序列前进
// 说明：位置（S坐标）存放在链表节点的S字段上；终局结果经TripManager
// 投递回对应Trip，投递后done置位、旅行者等待删除
type traveler struct {
	container.IncrementalItemBase

	d           entity.TravelerDescriptor
	destination entity.PreciseLocation

	lane  *Lane          // 当前所在车道
	node  *travelerNode  // 在当前车道链表中的节点
	route []int32        // 当前车道之后剩余的途经车道ID

	v    float64
	done bool // 终局结果已投递
}

// V 获取旅行者速度
func (t *traveler) V() float64 {
	return t.v
}

// s 获取旅行者在当前车道上的S坐标
func (t *traveler) s() float64 {
	return t.node.S
}
