package aoi

import (
	"git.fiblab.net/general/common/v2/geometry"
	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/tripsim-oss/entity"
)

// Aoi AOI实体
// 功能：表示地图上的兴趣区域（建筑/地块），作为可解析的粗位置，
// 持有到行车路网的挂接点
type Aoi struct {
	id       int32
	centroid geometry.Point
	boundary []geometry.Point // Aoi 边界点列表。各点顺序给出，注意第一点与最后一点相同

	laneSs       map[int32]float64      // aoi连接的车道id到对应道路上位置的映射
	drivingLanes map[int32]entity.ILane // 对应的行车路网车道指针
}

// newAoi 创建并初始化一个新的AOI实例
// 功能：根据基础数据创建AOI对象，初始化边界与行车道挂接点
// 参数：base-基础AOI数据，laneManager-车道管理器
func newAoi(base *mapv2.Aoi, laneManager entity.ILaneManager) *Aoi {
	a := &Aoi{
		id: base.Id,
		boundary: lo.Map(base.Positions, func(p *geov2.XYPosition, _ int) geometry.Point {
			return geometry.NewPointFromPb(p)
		}),
		laneSs:       make(map[int32]float64),
		drivingLanes: make(map[int32]entity.ILane),
	}
	a.centroid = geometry.GetPolygonCentroid2D(a.boundary)
	var sumZ float64
	for _, point := range a.boundary {
		sumZ += point.Z
	}
	a.centroid.Z = sumZ / float64(len(a.boundary))
	for _, position := range base.DrivingPositions {
		lane := laneManager.Get(position.LaneId)
		a.drivingLanes[lane.ID()] = lane
		a.laneSs[lane.ID()] = position.S
	}
	return a
}

// ID 获取AOI的唯一标识符
func (a *Aoi) ID() int32 {
	if a == nil {
		return -1
	}
	return a.id
}

// Centroid 获取AOI的几何中心点坐标
func (a *Aoi) Centroid() geometry.Point {
	return a.centroid
}

// DrivingLanes 获取AOI连接的行车道映射
// 返回：行车道ID到车道对象的映射
func (a *Aoi) DrivingLanes() map[int32]entity.ILane {
	return a.drivingLanes
}

// DrivingS 获取指定行车道在AOI连接点的位置
// 参数：laneID-行车道ID
// 返回：车道在道路上的S坐标，如果车道不存在则panic
func (a *Aoi) DrivingS(laneID int32) float64 {
	if s, ok := a.laneSs[laneID]; !ok {
		log.Panicf("no lane %d with aoi %d", laneID, a.id)
		return 0
	} else {
		return s
	}
}
