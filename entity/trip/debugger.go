package trip

import (
	"git.fiblab.net/general/common/v2/geometry"
	"github.com/tsinghua-fib-lab/tripsim-oss/entity"
)

// FailedTripDebugger 失败Trip调试可视化
// 功能：解析失败Trip两端的坐标并以调试标记输出（起点蓝点、终点红点、
// 两点连线）
// 说明：外围调试设施，默认关闭（trip.debug_failed_trips开关）；
// 任一端坐标解析不出时放弃本次可视化
type FailedTripDebugger struct {
	roughSource         entity.RoughLocationRef
	roughDestination    entity.RoughLocationRef
	sourcePosition      *geometry.Point
	destinationPosition *geometry.Point
}

// VisualizeFailedTrip 可视化一条失败Trip
// 说明：坐标解析走调试用同步接口，不占用位置解析协议
func (m *TripManager) VisualizeFailedTrip(roughSource, roughDestination entity.RoughLocationRef) {
	d := &FailedTripDebugger{
		roughSource:      roughSource,
		roughDestination: roughDestination,
	}
	if p, ok := m.ctx.Resolver().ResolvePosition(roughSource); ok {
		d.sourcePosition = &p
	}
	if p, ok := m.ctx.Resolver().ResolvePosition(roughDestination); ok {
		d.destinationPosition = &p
	}
	d.render()
}

// render 输出调试标记
func (d *FailedTripDebugger) render() {
	if d.sourcePosition == nil || d.destinationPosition == nil {
		log.Debugf(
			"failed trip debug: unresolvable position %v (%v) -> %v (%v)",
			d.roughSource, d.sourcePosition, d.roughDestination, d.destinationPosition,
		)
		return
	}
	s, e := *d.sourcePosition, *d.destinationPosition
	log.Infof("failed trip debug: point (%.2f, %.2f) color=blue", s.X, s.Y)
	log.Infof("failed trip debug: point (%.2f, %.2f) color=red", e.X, e.Y)
	log.Infof(
		"failed trip debug: line (%.2f, %.2f) -> (%.2f, %.2f) color=red",
		s.X-0.3, s.Y-0.3, e.X+0.3, e.Y+0.3,
	)
}
