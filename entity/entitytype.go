package entity

import (
	"fmt"

	"git.fiblab.net/general/common/v2/geometry"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
)

// 粗位置引用的类型标签
// 原始数据中粗位置以无类型ID直接重解释为车道，这里改为显式的带标签引用，
// 在解析/插入时校验类型
type RoughLocationKind int32

const (
	RoughLocationLane RoughLocationKind = iota // 车道端点
	RoughLocationAoi                           // AOI（建筑/地块）
)

// String 获取粗位置类型的字符串表示
func (k RoughLocationKind) String() string {
	switch k {
	case RoughLocationLane:
		return "lane"
	case RoughLocationAoi:
		return "aoi"
	default:
		return fmt.Sprintf("unknown(%d)", int32(k))
	}
}

// RoughLocationRef 粗位置引用
// 功能：对一个"需要解析才能导航"的地点描述的不可变引用
// 说明：ID的含义由Kind决定（车道ID或AOI ID），S仅对车道端点有效，
// 指示端点在车道上的参考位置
type RoughLocationRef struct {
	Kind RoughLocationKind // 引用类型
	ID   int32             // 被引用对象的ID
	S    float64           // 车道端点参考位置（仅Kind==RoughLocationLane有效）
}

func (r RoughLocationRef) String() string {
	return fmt.Sprintf("%v:%d", r.Kind, r.ID)
}

// PreciseLocation 精确位置：路网挂接点（车道）+ 线性偏移
// 说明：只能通过解析粗位置引用产生，S >= 0
type PreciseLocation struct {
	LaneID int32   // 挂接车道ID
	S      float64 // 车道上的线性偏移
}

func (p PreciseLocation) String() string {
	return fmt.Sprintf("PreciseLocation{Lane=%d, S=%.2f}", p.LaneID, p.S)
}

// TravelerDescriptor 插入微观模拟的旅行者描述符
type TravelerDescriptor struct {
	TripID int32   // 所属Trip ID
	V      float64 // 初始速度
	A      float64 // 初始加速度
	MaxV   float64 // 最大速度
}

// TripFate Trip的终局分类（封闭集合）
type TripFate int32

const (
	FateSuccess                          TripFate = iota // 成功到达终点
	FateSourceOrDestinationNotResolvable                 // 起点或终点无法解析为路网挂接点
	FateNoRoute                                          // 起终点之间不存在路径
	FateRouteForgotten                                   // 原本有效的路径在完成前失效
	FateHopDisconnected                                  // 途中某一跳从路网中消失
	FateLaneUnbuilt                                      // 目标车道尚不存在
	FateForceStopped                                     // 外部强制终止
)

// String 获取终局的字符串表示
func (f TripFate) String() string {
	switch f {
	case FateSuccess:
		return "Success"
	case FateSourceOrDestinationNotResolvable:
		return "SourceOrDestinationNotResolvable"
	case FateNoRoute:
		return "NoRoute"
	case FateRouteForgotten:
		return "RouteForgotten"
	case FateHopDisconnected:
		return "HopDisconnected"
	case FateLaneUnbuilt:
		return "LaneUnbuilt"
	case FateForceStopped:
		return "ForceStopped"
	default:
		return fmt.Sprintf("unknown(%d)", int32(f))
	}
}

// IsFailure 判断终局是否为失败
// 说明：Success与ForceStopped不计入失败，其余均为不可恢复的终局失败
func (f TripFate) IsFailure() bool {
	return f != FateSuccess && f != FateForceStopped
}

// TripResult Trip的终局结果，每个Trip恰好产生一次
type TripResult struct {
	LocationNow *RoughLocationRef // 终止时所在位置的粗引用（可能缺失）
	Fate        TripFate          // 终局分类
	Instant     float64           // 到达时刻（仅Fate==FateSuccess有效）
}

func (r TripResult) String() string {
	return fmt.Sprintf("TripResult{Fate=%v, LocationNow=%v}", r.Fate, r.LocationNow)
}

// ITripListener Trip观察者能力
// 说明：弱引用、不拥有Trip；仅作通知通道，缺失时静默跳过，绝不阻塞
type ITripListener interface {
	TripCreated(tripID int32)                                                                   // Trip创建通知
	TripResult(tripID int32, result TripResult, roughSource, roughDestination RoughLocationRef) // Trip终局通知
}

// ILocationResolver 位置解析能力
// 说明：Resolve为fire-and-forget，每个请求最终恰好产生一次LocationResolved
// 回调（经TripManager按请求方ID投递）；解析结果缺失表示该粗位置当前没有
// 路网挂接点
type ILocationResolver interface {
	// 位置解析请求（异步）
	Resolve(requester int32, ref RoughLocationRef, instant float64)
	// 坐标解析（调试用，同步），仅供失败Trip可视化
	ResolvePosition(ref RoughLocationRef) (geometry.Point, bool)
}

// ITravelerInserter 旅行者插入能力（微观模拟的消费接口）
// 说明：fire-and-forget；终局结果稍后经TripManager异步投递回Trip
type ITravelerInserter interface {
	InsertTraveler(source PreciseLocation, d TravelerDescriptor, destination PreciseLocation, instant float64)
}

// ITripCreator 压测Trip批量生成器能力
type ITripCreator interface {
	// 追加一个待配对的车道端点
	AddEndpoint(ref RoughLocationRef)
}

// IDebugVisualizer 失败Trip可视化能力（外围，默认关闭）
type IDebugVisualizer interface {
	VisualizeFailedTrip(roughSource, roughDestination RoughLocationRef)
}

// entity/lane/lane.go的依赖倒置
type ILane interface {
	String() string

	ID() int32                               // 获取Lane ID
	Length() float64                         // 获取Lane长度
	MaxV() float64                           // 获取车道限速
	Type() mapv2.LaneType                    // 获取Lane类型
	InJunction() bool                        // 检查Lane是否为Junction Lane
	Successors() []ILane                     // 获取后继Lane
	GetPositionByS(s float64) geometry.Point // 将当前车道s坐标转换为xy坐标
}

// entity/aoi/aoi.go的依赖倒置
type IAoi interface {
	ID() int32                     // 获取Aoi ID
	Centroid() geometry.Point      // 获取Aoi中心点坐标
	DrivingLanes() map[int32]ILane // 获取Aoi连接到的行车道（Lane ID -> ILane）
	DrivingS(laneID int32) float64 // 输入行车道ID，返回对应的S坐标
}
