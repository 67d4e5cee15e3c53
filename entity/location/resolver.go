package location

import (
	"git.fiblab.net/general/common/v2/geometry"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/tripsim-oss/entity"
	"github.com/tsinghua-fib-lab/tripsim-oss/utils/container"
)

// request 位置解析请求
type request struct {
	requester int32 // 请求方Trip ID
	ref       entity.RoughLocationRef
	instant   float64
}

// Resolver 位置解析器
// 功能：把粗位置引用解析为路网挂接点（行车道+S坐标）
// 说明：请求走收件箱、在Update阶段统一消费；每个请求恰好产生一次
// 应答（解析不出时应答缺失位置），经TripManager按请求方ID投递
type Resolver struct {
	ctx entity.ITaskContext

	requests container.Inbox[request]
}

// New 创建位置解析器实例
func New(ctx entity.ITaskContext) *Resolver {
	return &Resolver{ctx: ctx}
}

// Resolve 位置解析请求（fire-and-forget）
func (r *Resolver) Resolve(requester int32, ref entity.RoughLocationRef, instant float64) {
	r.requests.Post(request{
		requester: requester,
		ref:       ref,
		instant:   instant,
	})
}

// PendingCount 获取当前待处理请求数
func (r *Resolver) PendingCount() int {
	return r.requests.Len()
}

// resolve 解析一个粗位置引用
// 返回：路网挂接点，解析不出时为nil
// 算法说明：
// 1. 车道端点：车道存在、是行车道且不在路口内时，取该车道与截断后的
//    S坐标；否则视为尚无挂接点
// 2. AOI：在其行车道挂接点中取车道ID最小且仍在路网中的一个（保证
//    同一AOI的解析结果可复现）；没有可用挂接点时视为尚无挂接点
func (r *Resolver) resolve(ref entity.RoughLocationRef) *entity.PreciseLocation {
	switch ref.Kind {
	case entity.RoughLocationLane:
		l, err := r.ctx.LaneManager().GetOrError(ref.ID)
		if err != nil {
			return nil
		}
		if l.Type() != mapv2.LaneType_LANE_TYPE_DRIVING || l.InJunction() {
			return nil
		}
		return &entity.PreciseLocation{
			LaneID: l.ID(),
			S:      lo.Clamp(ref.S, 0, l.Length()),
		}
	case entity.RoughLocationAoi:
		a, err := r.ctx.AoiManager().GetOrError(ref.ID)
		if err != nil {
			return nil
		}
		laneIDs := make([]int32, 0, len(a.DrivingLanes()))
		for id := range a.DrivingLanes() {
			if _, err := r.ctx.LaneManager().GetOrError(id); err != nil {
				continue
			}
			laneIDs = append(laneIDs, id)
		}
		if len(laneIDs) == 0 {
			return nil
		}
		laneID := lo.Min(laneIDs)
		return &entity.PreciseLocation{
			LaneID: laneID,
			S:      a.DrivingS(laneID),
		}
	default:
		log.Panicf("resolve rough location of unknown kind %v", ref.Kind)
		return nil
	}
}

// ResolvePosition 坐标解析（调试用，同步）
// 说明：仅供失败Trip可视化；车道端点取其S坐标处的坐标，AOI取中心点
func (r *Resolver) ResolvePosition(ref entity.RoughLocationRef) (geometry.Point, bool) {
	switch ref.Kind {
	case entity.RoughLocationLane:
		l, err := r.ctx.LaneManager().GetOrError(ref.ID)
		if err != nil {
			return geometry.Point{}, false
		}
		return l.GetPositionByS(lo.Clamp(ref.S, 0, l.Length())), true
	case entity.RoughLocationAoi:
		a, err := r.ctx.AoiManager().GetOrError(ref.ID)
		if err != nil {
			return geometry.Point{}, false
		}
		return a.Centroid(), true
	default:
		return geometry.Point{}, false
	}
}

// Update 更新阶段：消费解析请求并投递应答
func (r *Resolver) Update() {
	for _, req := range r.requests.PopAll() {
		loc := r.resolve(req.ref)
		r.ctx.TripManager().DeliverLocation(req.requester, req.ref, loc, r.ctx.Clock().T)
	}
}
