package trip

import (
	"github.com/tsinghua-fib-lab/tripsim-oss/entity"
	"github.com/tsinghua-fib-lab/tripsim-oss/utils/container"
)

const (
	// 插入旅行者的默认最大速度（米/秒）
	defaultTravelerMaxV = 8.0
)

// resolveState 两端点解析的汇合状态
// 说明：显式建模"双端点乱序汇合"，两个解析应答以任意顺序到达均合法
type resolveState int32

const (
	neitherResolved resolveState = iota // 两端均未解析
	sourceOnly                          // 仅起点已解析
	destinationOnly                     // 仅终点已解析
	bothResolved                        // 两端均已解析
)

// msgKind Trip收件箱消息类型
type msgKind int32

const (
	msgLocationResolved msgKind = iota // 位置解析应答
	msgResult                          // 终局结果
)

// message Trip收件箱消息
type message struct {
	kind    msgKind
	ref     entity.RoughLocationRef // 解析应答对应的粗位置引用（仅msgLocationResolved有效）
	loc     *entity.PreciseLocation // 解析出的精确位置，缺失表示不可解析（仅msgLocationResolved有效）
	result  entity.TripResult       // 终局结果（仅msgResult有效）
	instant float64                 // 消息投递时刻
}

// Trip 行程实体
// 功能：驱动一次模拟出行：异步解析起终点、向微观模拟插入旅行者、
// 接收终局结果并上报
// 说明：Trip独占自己的解析状态；与协作方只通过稳定ID异步消息交互，
// 收件箱仅由自身update阶段取走
type Trip struct {
	container.IncrementalItemBase
	ctx entity.ITaskContext
	m   *TripManager

	id               int32
	roughSource      entity.RoughLocationRef
	roughDestination entity.RoughLocationRef
	listener         entity.ITripListener // 可缺失的观察者，弱引用

	source      *entity.PreciseLocation // 仅在roughSource解析成功后设置
	destination *entity.PreciseLocation // 仅在roughDestination解析成功后设置
	state       resolveState
	inserted    bool // 是否已向微观模拟发出插入请求
	terminated  bool // 是否已终止（终止后不再有合法消息）

	inbox container.Inbox[message]
}

// newTrip 创建并初始化一个新的Trip实例
// 功能：发出起点解析请求（以自身ID为请求方），通知listener创建事件
// 说明：返回时处于等待起点解析状态；终点解析请求在起点解析成功后发出，
// 起终点引用相同时单次应答同时填充两端
func newTrip(
	ctx entity.ITaskContext,
	m *TripManager,
	id int32,
	roughSource, roughDestination entity.RoughLocationRef,
	listener entity.ITripListener,
	instant float64,
) *Trip {
	t := &Trip{
		ctx:              ctx,
		m:                m,
		id:               id,
		roughSource:      roughSource,
		roughDestination: roughDestination,
		listener:         listener,
		state:            neitherResolved,
	}
	ctx.Resolver().Resolve(id, roughSource, instant)
	if listener != nil {
		listener.TripCreated(id)
	}
	return t
}

// ID 获取Trip的唯一标识符
func (t *Trip) ID() int32 {
	return t.id
}

// update 更新阶段：处理收件箱中的消息
// 说明：收件箱仅由本方法取走，消息按投递顺序处理；终局与外部强停
// （或在途解析应答）可能在同一步竞争，终止后积压的消息丢弃并告警
func (t *Trip) update() {
	for _, msg := range t.inbox.PopAll() {
		if t.terminated {
			log.Warnf("trip %d: message after termination, dropped", t.id)
			continue
		}
		switch msg.kind {
		case msgLocationResolved:
			t.onLocationResolved(msg.ref, msg.loc, msg.instant)
		case msgResult:
			t.finish(msg.result, msg.instant)
		}
	}
}

// onLocationResolved 位置解析应答处理，Trip唯一的非终局入站迁移
// 算法说明：
// 1. 应答缺失：立即以SourceOrDestinationNotResolvable终止，
//    LocationNow恒为起点粗引用（即使失败的是终点，保持既有上报口径）
// 2. 应答匹配起点：记录source；起终点引用相同时同时记录destination，
//    否则此刻才发出终点解析请求
// 3. 应答匹配终点：记录destination
// 4. 两者都不匹配：协议错误（请求历史中不可能出现的引用），直接panic
// 5. 两端齐备后，发出一次旅行者插入请求（零初速度/加速度、无既定下一跳），
//    此后Trip休眠直到终局结果到达
func (t *Trip) onLocationResolved(ref entity.RoughLocationRef, loc *entity.PreciseLocation, instant float64) {
	if loc == nil {
		log.Debugf("trip %d: %v is not a source/destination yet", t.id, ref)
		locationNow := t.roughSource
		t.finish(entity.TripResult{
			LocationNow: &locationNow,
			Fate:        entity.FateSourceOrDestinationNotResolvable,
		}, instant)
		return
	}
	switch ref {
	case t.roughSource:
		t.source = loc
		if t.roughSource == t.roughDestination {
			t.destination = loc
		} else if t.destination == nil {
			// 终点应答先到时不再重复请求
			t.ctx.Resolver().Resolve(t.id, t.roughDestination, instant)
		}
	case t.roughDestination:
		t.destination = loc
	default:
		log.Panicf(
			"trip %d: resolved %v matches neither source %v nor destination %v",
			t.id, ref, t.roughSource, t.roughDestination,
		)
	}
	t.state = t.joinState()
	if t.state == bothResolved && !t.inserted {
		t.inserted = true
		t.ctx.LaneManager().InsertTraveler(
			*t.source,
			entity.TravelerDescriptor{
				TripID: t.id,
				V:      0,
				A:      0,
				MaxV:   defaultTravelerMaxV,
			},
			*t.destination,
			instant,
		)
	}
}

// joinState 根据已记录的端点计算汇合状态
func (t *Trip) joinState() resolveState {
	switch {
	case t.source != nil && t.destination != nil:
		return bothResolved
	case t.source != nil:
		return sourceOnly
	case t.destination != nil:
		return destinationOnly
	default:
		return neitherResolved
	}
}

// finish 终止处理，自任意状态可达
// 说明：失败终局输出一条包含完整上下文的诊断记录，并按配置触发
// 失败Trip可视化（默认关闭）；结果无条件转发给listener（如存在）；
// 随后Trip被销毁，之后到达的消息一律丢弃。本核心不做任何自动重试，
// 重试策略完全交由listener根据结果上下文决定
func (t *Trip) finish(result entity.TripResult, instant float64) {
	if result.Fate.IsFailure() {
		log.Warnf(
			"trip %d failed (%v): %v (%v) -> %v (%v)",
			t.id, result.Fate,
			t.roughSource, t.source,
			t.roughDestination, t.destination,
		)
		if t.ctx.RuntimeConfig().Trip.DebugFailedTrips {
			t.m.VisualizeFailedTrip(t.roughSource, t.roughDestination)
		}
	}
	if t.inserted && result.Fate == entity.FateForceStopped {
		// 旅行者还在微观模拟里，通知丢弃，否则其终局会投递给已销毁的Trip
		t.ctx.LaneManager().DiscardTraveler(t.id)
	}
	if t.listener != nil {
		t.listener.TripResult(t.id, result, t.roughSource, t.roughDestination)
	}
	if a := t.m.auditListener; a != nil {
		a.TripResult(t.id, result, t.roughSource, t.roughDestination)
	}
	t.terminated = true
	t.m.recordEnd(result.Fate)
	t.m.remove(t)
}
