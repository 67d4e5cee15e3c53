package trip

import (
	"fmt"
	"sync"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/tsinghua-fib-lab/tripsim-oss/entity"
	"github.com/tsinghua-fib-lab/tripsim-oss/utils/container"
)

// GlobalRuntime 全局运行时统计
// 功能：按终局分类统计已结束的行程
type GlobalRuntime struct {
	NumCreated int32                    // 已创建的行程
	NumEnded   map[entity.TripFate]int32 // 各终局的行程数
}

// TripManager Trip管理器
// 功能：管理所有Trip实体，负责ID分配、按稳定ID的消息投递、
// 增删缓冲与并行更新
// 说明：Trip的创建/销毁都经缓冲在PrepareNode统一生效；每个Trip的
// 状态只由其自身的update处理，跨实体消息一律走收件箱
type TripManager struct {
	ctx entity.ITaskContext

	data map[int32]*Trip

	trips *container.IncrementalArray[*Trip]

	tripInserted      []*Trip // 新创建的Trip
	tripRemoved       []int32 // 已终止待删除的Trip ID
	tripInsertedMutex sync.Mutex

	nextTripID int32

	// 旁路观察者，收到所有Trip的创建与终局通知（用于结果落库），
	// 只能在启动阶段设置
	auditListener entity.ITripListener

	snapshot, runtime GlobalRuntime
	runtimeMtx        sync.Mutex
}

// NewManager 创建Trip管理器实例
func NewManager(ctx entity.ITaskContext) *TripManager {
	m := &TripManager{
		ctx:          ctx,
		data:         make(map[int32]*Trip),
		trips:        container.NewIncrementalArray[*Trip](),
		tripInserted: make([]*Trip, 0),
		tripRemoved:  make([]int32, 0),
		nextTripID:   1,
		runtime: GlobalRuntime{
			NumEnded: make(map[entity.TripFate]int32),
		},
	}
	m.snapshot = m.runtime
	return m
}

// Spawn 创建新Trip
// 功能：分配Trip ID，创建Trip并缓冲插入（PrepareNode后生效）
// 参数：roughSource/roughDestination-起终点粗引用，listener-可缺失的观察者，
// instant-创建时刻
// 返回：分配的Trip ID
// 说明：使用互斥锁保证线程安全；创建即发出起点解析请求并通知listener
func (m *TripManager) Spawn(
	roughSource, roughDestination entity.RoughLocationRef,
	listener entity.ITripListener,
	instant float64,
) int32 {
	m.tripInsertedMutex.Lock()
	id := m.nextTripID
	m.nextTripID++
	m.tripInsertedMutex.Unlock()

	t := newTrip(m.ctx, m, id, roughSource, roughDestination, listener, instant)
	if m.auditListener != nil {
		m.auditListener.TripCreated(id)
	}

	m.tripInsertedMutex.Lock()
	m.tripInserted = append(m.tripInserted, t)
	m.tripInsertedMutex.Unlock()
	m.trips.Add(t)

	m.runtimeMtx.Lock()
	m.runtime.NumCreated++
	m.runtimeMtx.Unlock()
	return id
}

// GetOrError 根据ID获取Trip实例（带错误处理）
func (m *TripManager) GetOrError(id int32) (*Trip, error) {
	if t, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in trip data", id)
	} else {
		return t, nil
	}
}

// getAnywhere 查找Trip，包含尚未进入data的新建缓冲
// 说明：解析应答可能在Spawn与下一次PrepareNode之间到达，
// 此时Trip还在插入缓冲中
func (m *TripManager) getAnywhere(id int32) *Trip {
	if t, ok := m.data[id]; ok {
		return t
	}
	m.tripInsertedMutex.Lock()
	defer m.tripInsertedMutex.Unlock()
	for _, t := range m.tripInserted {
		if t.id == id {
			return t
		}
	}
	return nil
}

// SetAuditListener 设置旁路观察者
// 说明：只能在模拟开始前调用一次
func (m *TripManager) SetAuditListener(l entity.ITripListener) {
	m.auditListener = l
}

// DeliverLocation 将位置解析应答投递给指定Trip
// 说明：Trip被强制终止后在途的解析应答会晚一步到达，此时丢弃并告警；
// 其余找不到目标的投递不可能出现
func (m *TripManager) DeliverLocation(tripID int32, ref entity.RoughLocationRef, loc *entity.PreciseLocation, instant float64) {
	t := m.getAnywhere(tripID)
	if t == nil {
		log.Warnf("deliver location %v to vanished trip %d, dropped", ref, tripID)
		return
	}
	t.inbox.Post(message{
		kind:    msgLocationResolved,
		ref:     ref,
		loc:     loc,
		instant: instant,
	})
}

// DeliverResult 将终局结果投递给指定Trip
// 说明：成功与失败都经由同一条异步结果通道；目标Trip不存在视为
// 集成bug直接panic
func (m *TripManager) DeliverResult(tripID int32, result entity.TripResult) {
	t := m.getAnywhere(tripID)
	if t == nil {
		log.Panicf("deliver result to unknown trip %d", tripID)
		return
	}
	t.inbox.Post(message{
		kind:    msgResult,
		result:  result,
		instant: m.ctx.Clock().T,
	})
}

// ForceStop 外部强制终止指定Trip
// 说明：唯一的中途取消路径，走与其它终局相同的finish流程；
// Trip已结束时忽略并告警（属于良性竞争，不视为协议错误）
func (m *TripManager) ForceStop(tripID int32) {
	t := m.getAnywhere(tripID)
	if t == nil {
		log.Warnf("force stop unknown trip %d, ignored", tripID)
		return
	}
	t.inbox.Post(message{
		kind:    msgResult,
		result:  entity.TripResult{Fate: entity.FateForceStopped},
		instant: m.ctx.Clock().T,
	})
}

// remove 将已终止的Trip缓冲删除（PrepareNode后生效）
func (m *TripManager) remove(t *Trip) {
	m.trips.Remove(t)
	m.tripInsertedMutex.Lock()
	m.tripRemoved = append(m.tripRemoved, t.id)
	m.tripInsertedMutex.Unlock()
}

// recordEnd 记录一次行程终局
func (m *TripManager) recordEnd(fate entity.TripFate) {
	m.runtimeMtx.Lock()
	m.runtime.NumEnded[fate]++
	m.runtimeMtx.Unlock()
}

// Snapshot 获取上一步的全局统计快照
func (m *TripManager) Snapshot() GlobalRuntime {
	return m.snapshot
}

// PrepareNode 准备阶段：Trip增删
// 说明：新建Trip进入data，已终止Trip从data删除，随后统一执行
// 增量数组的增删
func (m *TripManager) PrepareNode() {
	m.tripInsertedMutex.Lock()
	inserted := m.tripInserted
	removed := m.tripRemoved
	m.tripInserted = make([]*Trip, 0)
	m.tripRemoved = make([]int32, 0)
	m.tripInsertedMutex.Unlock()

	for _, t := range inserted {
		if _, ok := m.data[t.id]; ok {
			log.Panicf("Trip: same id %d between new trip and existed trip", t.id)
		}
		m.data[t.id] = t
	}
	for _, id := range removed {
		delete(m.data, id)
	}
	m.trips.Prepare()
}

// Prepare 准备阶段：snapshot更新
func (m *TripManager) Prepare() {
	m.runtimeMtx.Lock()
	m.snapshot = GlobalRuntime{
		NumCreated: m.runtime.NumCreated,
		NumEnded:   make(map[entity.TripFate]int32, len(m.runtime.NumEnded)),
	}
	for fate, n := range m.runtime.NumEnded {
		m.snapshot.NumEnded[fate] = n
	}
	m.runtimeMtx.Unlock()
}

// Update 更新阶段
// 说明：并行处理各Trip的收件箱；Trip间无共享可变状态，
// 仅通过收件箱投递交互
func (m *TripManager) Update(instant float64) {
	parallel.GoFor(m.trips.Data(), func(t *Trip) { t.update() })
}
