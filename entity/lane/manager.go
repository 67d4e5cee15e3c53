package lane

import (
	"fmt"
	"math"
	"sort"

	"git.fiblab.net/general/common/v2/parallel"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/tripsim-oss/entity"
	"github.com/tsinghua-fib-lab/tripsim-oss/utils/container"
)

// insertRequest 旅行者插入请求
type insertRequest struct {
	source, destination entity.PreciseLocation
	d                   entity.TravelerDescriptor
	instant             float64
}

// LaneManager Lane管理器
// 功能：管理所有Lane实体与车道上的旅行者，消费插入请求、推进旅行者
// 并把终局结果投递回Trip
// 说明：插入请求与车道移除都走收件箱、在PrepareNode统一生效；
// 旅行者推进在Update阶段并行执行，跨车道的链表变更经缓冲延迟到
// 下一个准备阶段
type LaneManager struct {
	ctx entity.ITaskContext

	data  map[int32]*Lane
	lanes []*Lane // 按ID升序，保证压测端点采样可复现

	travelers *container.IncrementalArray[*traveler]
	byTrip    map[int32]*traveler

	insertRequests  container.Inbox[insertRequest]
	laneRemoved     container.Inbox[int32]
	discardRequests container.Inbox[int32]
}

// NewManager 创建Lane管理器实例
func NewManager(ctx entity.ITaskContext) *LaneManager {
	return &LaneManager{
		ctx:       ctx,
		travelers: container.NewIncrementalArray[*traveler](),
		byTrip:    make(map[int32]*traveler),
	}
}

// Init 初始化Lane管理器
// 功能：从pb数据并行构造所有Lane，再建立车道间连接
func (m *LaneManager) Init(pbs []*mapv2.Lane) {
	lanes := parallel.GoMap(pbs, func(pb *mapv2.Lane) *Lane {
		return newLane(m.ctx, pb)
	})
	m.data = lo.SliceToMap(lanes, func(l *Lane) (int32, *Lane) {
		return l.ID(), l
	})
	sort.Slice(lanes, func(i, j int) bool { return lanes[i].id < lanes[j].id })
	m.lanes = lanes
	for _, l := range m.lanes {
		l.initWithManager(m)
	}
}

// Get 根据ID获取Lane实例
func (m *LaneManager) Get(id int32) entity.ILane {
	if l, ok := m.data[id]; !ok {
		log.Panicf("no lane id %d", id)
		return nil
	} else {
		return l
	}
}

// GetOrError 根据ID获取Lane实例（带错误处理）
func (m *LaneManager) GetOrError(id int32) (entity.ILane, error) {
	if l, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in lane data", id)
	} else {
		return l, nil
	}
}

// RoadDrivingLanes 获取所有道路上（非路口）的行车道
// 说明：按ID升序返回，供压测端点采样
func (m *LaneManager) RoadDrivingLanes() []entity.ILane {
	lanes := make([]entity.ILane, 0)
	for _, l := range m.lanes {
		if !l.InJunction() && l.Type() == mapv2.LaneType_LANE_TYPE_DRIVING {
			lanes = append(lanes, l)
		}
	}
	return lanes
}

// RemoveLane 移除车道（拓扑变更，PrepareNode后生效）
// 说明：途经该车道的既有路径随之失效
func (m *LaneManager) RemoveLane(id int32) {
	m.laneRemoved.Post(id)
}

// InsertTraveler 旅行者插入请求（fire-and-forget，PrepareNode后生效）
func (m *LaneManager) InsertTraveler(
	source entity.PreciseLocation,
	d entity.TravelerDescriptor,
	destination entity.PreciseLocation,
	instant float64,
) {
	m.insertRequests.Post(insertRequest{
		source:      source,
		destination: destination,
		d:           d,
		instant:     instant,
	})
}

// DiscardTraveler 静默丢弃指定Trip的旅行者（PrepareNode后生效）
// 说明：Trip被强制终止后由Trip侧调用，不投递任何结果
func (m *LaneManager) DiscardTraveler(tripID int32) {
	m.discardRequests.Post(tripID)
}

// finishTraveler 投递旅行者的终局结果并标记删除
func (m *LaneManager) finishTraveler(t *traveler, result entity.TripResult) {
	if t.done {
		log.Panicf("traveler of trip %d finished twice", t.d.TripID)
	}
	t.done = true
	m.travelers.Remove(t)
	m.ctx.TripManager().DeliverResult(t.d.TripID, result)
}

// applyDiscards 生效旅行者丢弃请求
// 说明：对应Trip可能已经由本管理器终结（良性竞争），此时忽略
func (m *LaneManager) applyDiscards() {
	for _, tripID := range m.discardRequests.PopAll() {
		t, ok := m.byTrip[tripID]
		if !ok || t.done {
			continue
		}
		t.done = true
		if _, ok := m.data[t.lane.id]; ok {
			t.lane.removeTraveler(t.node)
		}
		m.travelers.Remove(t)
		delete(m.byTrip, tripID)
	}
}

// laneRef 构造车道上某点的粗位置引用
func laneRef(laneID int32, s float64) *entity.RoughLocationRef {
	return &entity.RoughLocationRef{
		Kind: entity.RoughLocationLane,
		ID:   laneID,
		S:    s,
	}
}

// applyLaneRemovals 生效车道移除并使受影响的旅行者终止
// 算法说明：对每个被移除的车道：
// 1. 当前就在该车道上、或下一跳是该车道的旅行者以HopDisconnected终止
// 2. 剩余路径中更靠后包含该车道的旅行者以RouteForgotten终止
// 说明：区别在于前者是脚下/眼前的连接消失，后者是远端路径失效
func (m *LaneManager) applyLaneRemovals() {
	for _, id := range m.laneRemoved.PopAll() {
		l, ok := m.data[id]
		if !ok {
			log.Warnf("remove unknown lane %d, ignored", id)
			continue
		}
		delete(m.data, id)
		if i := sort.Search(len(m.lanes), func(i int) bool {
			return m.lanes[i].id >= id
		}); i < len(m.lanes) && m.lanes[i] == l {
			m.lanes = append(m.lanes[:i], m.lanes[i+1:]...)
		}
		for _, t := range m.travelers.Data() {
			if t.done {
				continue
			}
			if t.lane.id == id || (len(t.route) > 0 && t.route[0] == id) {
				if t.lane.id != id {
					t.lane.removeTraveler(t.node)
				}
				m.finishTraveler(t, entity.TripResult{
					LocationNow: laneRef(t.lane.id, t.s()),
					Fate:        entity.FateHopDisconnected,
				})
				continue
			}
			for _, hop := range t.route[1:] {
				if hop == id {
					t.lane.removeTraveler(t.node)
					m.finishTraveler(t, entity.TripResult{
						LocationNow: laneRef(t.lane.id, t.s()),
						Fate:        entity.FateRouteForgotten,
					})
					break
				}
			}
		}
	}
}

// applyInsertRequests 生效旅行者插入请求
// 算法说明：
// 1. 起终点车道不存在或不是行车道：以LaneUnbuilt终结
// 2. 沿行车道后继做BFS搜索途经车道序列，不可达：以NoRoute终结
// 3. 否则创建旅行者、挂到起点车道链表并纳入推进数组
// 说明：失败不经旅行者实体，直接投递终局结果
func (m *LaneManager) applyInsertRequests(instant float64) {
	for _, req := range m.insertRequests.PopAll() {
		locationNow := laneRef(req.source.LaneID, req.source.S)
		source, sourceOk := m.data[req.source.LaneID]
		destination, destinationOk := m.data[req.destination.LaneID]
		if !sourceOk || !destinationOk ||
			source.Type() != mapv2.LaneType_LANE_TYPE_DRIVING ||
			destination.Type() != mapv2.LaneType_LANE_TYPE_DRIVING {
			log.Debugf(
				"insert traveler of trip %d on unbuilt lane: %v -> %v",
				req.d.TripID, req.source, req.destination,
			)
			m.ctx.TripManager().DeliverResult(req.d.TripID, entity.TripResult{
				LocationNow: locationNow,
				Fate:        entity.FateLaneUnbuilt,
			})
			continue
		}
		sourceS := lo.Clamp(req.source.S, 0, source.Length())
		destinationS := lo.Clamp(req.destination.S, 0, destination.Length())
		route, ok := m.findRoute(source, destination, sourceS, destinationS)
		if !ok {
			log.Debugf(
				"no route for trip %d: %v -> %v",
				req.d.TripID, req.source, req.destination,
			)
			m.ctx.TripManager().DeliverResult(req.d.TripID, entity.TripResult{
				LocationNow: locationNow,
				Fate:        entity.FateNoRoute,
			})
			continue
		}
		t := &traveler{
			d: req.d,
			destination: entity.PreciseLocation{
				LaneID: destination.id,
				S:      destinationS,
			},
			lane:  source,
			route: route,
			v:     req.d.V,
		}
		t.node = &travelerNode{S: sourceS, Value: t}
		source.addTraveler(t.node)
		m.travelers.Add(t)
		m.byTrip[t.d.TripID] = t
	}
}

// findRoute BFS搜索途经车道序列
// 参数：source/destination-起终点车道，sourceS/destinationS-起终点S坐标
// 返回：起点车道之后的途经车道ID序列（含终点车道）与是否可达
// 算法说明：同车道且终点不在起点后方时无需换道；否则从起点后继开始
// 沿行车道做BFS（允许绕环回到起点车道），命中终点后回溯重建路径
func (m *LaneManager) findRoute(
	source, destination *Lane,
	sourceS, destinationS float64,
) ([]int32, bool) {
	if source == destination && destinationS >= sourceS {
		return nil, true
	}
	const firstHop = int32(-1)
	prev := make(map[int32]int32)
	queue := make([]*Lane, 0)
	push := func(from *Lane, mark int32) {
		for _, succ := range from.Successors() {
			l, _ := succ.(*Lane)
			if l == nil || l.Type() != mapv2.LaneType_LANE_TYPE_DRIVING {
				continue
			}
			// 已被移除的车道不再参与搜索
			if _, ok := m.data[l.id]; !ok {
				continue
			}
			if _, seen := prev[l.id]; seen {
				continue
			}
			prev[l.id] = mark
			queue = append(queue, l)
		}
	}
	push(source, firstHop)
	found := false
	for head := 0; head < len(queue); head++ {
		cur := queue[head]
		if cur == destination {
			found = true
			break
		}
		push(cur, cur.id)
	}
	if !found {
		return nil, false
	}
	route := []int32{destination.id}
	for at := prev[destination.id]; at != firstHop; at = prev[at] {
		route = append(route, at)
	}
	for i, j := 0, len(route)-1; i < j; i, j = i+1, j-1 {
		route[i], route[j] = route[j], route[i]
	}
	return route, true
}

// updateTraveler 推进单个旅行者
// 算法说明：
// 1. 以min(自身最大速度, 车道限速)匀速前进一个步长
// 2. 越过当前车道末端则沿剩余路径换到下一跳（一个步长允许连跨多条
//    短车道），换道后S坐标按已驶过长度折算
// 3. 路径耗尽且S到达终点S：以Success终结（携带到达时刻）
// 说明：路径中途消失的情况在准备阶段已统一终结，推进中不再出现
func (m *LaneManager) updateTraveler(t *traveler, dt float64, instant float64) {
	if t.done {
		return
	}
	from := t.lane
	t.v = math.Min(t.d.MaxV, t.lane.MaxV())
	s := t.node.S + t.v*dt
	for {
		if len(t.route) == 0 && s >= t.destination.S {
			from.removeTraveler(t.node)
			m.finishTraveler(t, entity.TripResult{
				LocationNow: laneRef(t.destination.LaneID, t.destination.S),
				Fate:        entity.FateSuccess,
				Instant:     instant,
			})
			return
		}
		if s < t.lane.Length() {
			break
		}
		if len(t.route) == 0 {
			log.Panicf(
				"traveler of trip %d ran out of route before destination %v",
				t.d.TripID, t.destination,
			)
		}
		next, ok := m.data[t.route[0]]
		if !ok {
			log.Panicf(
				"traveler of trip %d hops to vanished lane %d",
				t.d.TripID, t.route[0],
			)
		}
		s -= t.lane.Length()
		t.route = t.route[1:]
		t.lane = next
	}
	t.node.S = s
	if t.lane != from {
		from.removeTraveler(t.node)
		t.lane.addTraveler(t.node)
	}
}

// TravelerCount 当前推进中的旅行者数
func (m *LaneManager) TravelerCount() int {
	return m.travelers.Len()
}

// PrepareNode 准备阶段：车道移除、丢弃/插入请求与旅行者增删
// 说明：byTrip只在本阶段维护（推进阶段并行，不能动map）
func (m *LaneManager) PrepareNode() {
	for id, t := range m.byTrip {
		if t.done {
			delete(m.byTrip, id)
		}
	}
	m.applyDiscards()
	m.applyLaneRemovals()
	m.applyInsertRequests(m.ctx.Clock().T)
	m.travelers.Prepare()
}

// Prepare 准备阶段：生效各车道的旅行者链表缓冲
// 说明：删除先于新增全量生效，保证跨车道转移的节点归并前已摘除
func (m *LaneManager) Prepare() {
	parallel.GoFor(m.lanes, func(l *Lane) { l.prepareRemove() })
	parallel.GoFor(m.lanes, func(l *Lane) { l.prepareAdd() })
}

// Update 更新阶段：并行推进所有旅行者
func (m *LaneManager) Update(dt float64, instant float64) {
	parallel.GoFor(m.travelers.Data(), func(t *traveler) {
		m.updateTraveler(t, dt, instant)
	})
}
