package entity

import (
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
)

// Manager依赖倒置

// entity/lane/manager.go的依赖倒置
type ILaneManager interface {
	ITravelerInserter

	Init(pbs []*mapv2.Lane) // 初始化

	// 输入Lane ID，查找Lane，如果不存在则panic
	Get(id int32) ILane
	// 输入Lane ID，查找Lane，如果不存在则返回error
	GetOrError(id int32) (ILane, error)
	// 获取所有道路上（非路口）的行车道，用于压测端点采样
	RoadDrivingLanes() []ILane
	// 移除车道并使既有路径失效（拓扑变更）
	RemoveLane(id int32)
	// 静默丢弃指定Trip的旅行者（Trip被强制终止后清理微观模拟侧）
	DiscardTraveler(tripID int32)

	PrepareNode() // 准备阶段：旅行者链表更新
	Prepare()     // 准备阶段
	Update(dt float64, instant float64) // 更新阶段
}

// entity/aoi/manager.go的依赖倒置
type IAoiManager interface {
	Init(
		pbs []*mapv2.Aoi,
		laneManager ILaneManager,
	) // 初始化

	// 输入Aoi ID，查找Aoi，如果不存在则panic
	Get(id int32) IAoi
	// 输入Aoi ID，查找Aoi，如果不存在则返回error
	GetOrError(id int32) (IAoi, error)
}

// entity/trip/manager.go的依赖倒置
type ITripManager interface {
	// 创建新Trip，返回分配的Trip ID
	Spawn(roughSource, roughDestination RoughLocationRef, listener ITripListener, instant float64) int32
	// 将位置解析应答投递给指定Trip（按稳定ID寻址）
	DeliverLocation(tripID int32, ref RoughLocationRef, loc *PreciseLocation, instant float64)
	// 将终局结果投递给指定Trip（按稳定ID寻址）
	DeliverResult(tripID int32, result TripResult)
	// 外部强制终止指定Trip
	ForceStop(tripID int32)

	PrepareNode()          // 准备阶段：Trip增删
	Prepare()              // 准备阶段：snapshot更新
	Update(instant float64) // 更新阶段
}
