package lane

import (
	"fmt"
	"sort"
	"sync"

	"git.fiblab.net/general/common/v2/geometry"
	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/tripsim-oss/entity"
	"github.com/tsinghua-fib-lab/tripsim-oss/utils/container"
)

// 地图数据的ID约定：路口对象的ID从该值开始
const junctionUIDStart = 3_0000_0000

// Lane 车道实体
// 功能：表示路网中的车道，包含几何信息、拓扑连接与车道上的旅行者链表
type Lane struct {
	ctx entity.ITaskContext

	id int32

	// 初始化临时变量
	initSuccessors []*mapv2.LaneConnection

	typ        mapv2.LaneType // 车道类型
	maxV       float64        // 车道限速
	parentID   int32          // 父对象（道路/路口）ID
	successors []entity.ILane // 后继车道

	lineLengths []float64        // 中心线折线点对应的长度列表
	length      float64          // 以中心线的长度为车道长度
	line        []geometry.Point // 转成Point的中心线折线

	// 车道上的旅行者链表（按S排序），增删经缓冲在prepare阶段生效
	travelers         *container.List[*traveler, struct{}]
	addBuffer         []*travelerNode
	addBufferMutex    sync.Mutex
	removeBuffer      []*travelerNode
	removeBufferMutex sync.Mutex
}

// newLane 创建并初始化一个新的Lane实例
// 参数：ctx-任务上下文，base-基础Lane数据
// 说明：连接关系在initWithManager中建立
func newLane(ctx entity.ITaskContext, base *mapv2.Lane) *Lane {
	l := &Lane{
		ctx:            ctx,
		id:             base.Id,
		initSuccessors: base.Successors,
		typ:            base.Type,
		maxV:           base.MaxSpeed,
		parentID:       base.ParentId,
		travelers: &container.List[*traveler, struct{}]{
			ID: fmt.Sprintf("lane %d travelers", base.Id),
		},
		addBuffer:    make([]*travelerNode, 0),
		removeBuffer: make([]*travelerNode, 0),
	}
	l.line = lo.Map(base.CenterLine.Nodes, func(node *geov2.XYPosition, _ int) geometry.Point {
		return geometry.NewPointFromPb(node)
	})
	l.lineLengths = geometry.GetPolylineLengths2D(l.line)
	l.length = l.lineLengths[len(l.lineLengths)-1]
	return l
}

// initWithManager 在管理器初始化后建立Lane的连接关系
func (l *Lane) initWithManager(laneManager entity.ILaneManager) {
	l.successors = lo.Map(l.initSuccessors, func(conn *mapv2.LaneConnection, _ int) entity.ILane {
		return laneManager.Get(conn.Id)
	})
	l.initSuccessors = nil
}

// prepareRemove 准备阶段第一步，生效本车道的删除缓冲
// 说明：所有车道的删除必须先于任何车道的新增生效，
// 否则跨车道转移的节点在归并时仍挂在旧链表上
func (l *Lane) prepareRemove() {
	for _, node := range l.removeBuffer {
		l.travelers.Remove(node)
	}
	l.removeBuffer = l.removeBuffer[:0]
}

// prepareAdd 准备阶段第二步，归并新增节点与因速度差失序的节点
func (l *Lane) prepareAdd() {
	unsorted := l.travelers.PopUnsorted()
	l.travelers.Merge(append(l.addBuffer, unsorted...))
	l.addBuffer = l.addBuffer[:0]
}

// addTraveler 向车道链表添加旅行者（prepare后生效）
// 说明：跨车道转移时节点在缓冲期仍挂在旧链表上，归并前由
// prepareRemove保证已摘除
func (l *Lane) addTraveler(node *travelerNode) {
	l.addBufferMutex.Lock()
	l.addBuffer = append(l.addBuffer, node)
	l.addBufferMutex.Unlock()
}

// removeTraveler 从车道链表移除旅行者（prepare后生效）
func (l *Lane) removeTraveler(node *travelerNode) {
	if node.Parent() != l.travelers {
		log.Panicf("remove traveler node %v from wrong lane %d", node, l.id)
	}
	l.removeBufferMutex.Lock()
	l.removeBuffer = append(l.removeBuffer, node)
	l.removeBufferMutex.Unlock()
}

func (l *Lane) String() string {
	return fmt.Sprintf("Lane %d", l.id)
}

// ID 获取Lane ID
func (l *Lane) ID() int32 {
	return l.id
}

// Length 获取Lane长度
func (l *Lane) Length() float64 {
	return l.length
}

// MaxV 获取车道限速
func (l *Lane) MaxV() float64 {
	return l.maxV
}

// Type 获取Lane类型
func (l *Lane) Type() mapv2.LaneType {
	return l.typ
}

// InJunction 检查Lane是否为Junction Lane
func (l *Lane) InJunction() bool {
	return l.parentID >= junctionUIDStart
}

// Successors 获取后继Lane
func (l *Lane) Successors() []entity.ILane {
	return l.successors
}

// TravelerCount 统计车道上的旅行者数
func (l *Lane) TravelerCount() int {
	return l.travelers.Len()
}

// GetPositionByS 将当前车道s坐标转换为xy坐标
// 说明：s超出范围时按端点截断
func (l *Lane) GetPositionByS(s float64) (pos geometry.Point) {
	if s < l.lineLengths[0] || s > l.lineLengths[len(l.lineLengths)-1] {
		log.Debugf("get position with s %v out of range{%v,%v}",
			s, l.lineLengths[0], l.lineLengths[len(l.lineLengths)-1])
		s = lo.Clamp(s, l.lineLengths[0], l.lineLengths[len(l.lineLengths)-1])
	}
	if i := sort.SearchFloat64s(l.lineLengths, s); i == 0 {
		pos = l.line[0]
	} else {
		sHigh, sLow := l.lineLengths[i], l.lineLengths[i-1]
		k := (s - sLow) / (sHigh - sLow)
		pos = geometry.Blend(l.line[i-1], l.line[i], k)
	}
	return
}
