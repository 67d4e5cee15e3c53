package lane_test

import (
	"testing"

	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/tripsim-oss/clock"
	"github.com/tsinghua-fib-lab/tripsim-oss/entity"
	"github.com/tsinghua-fib-lab/tripsim-oss/entity/lane"
	"github.com/tsinghua-fib-lab/tripsim-oss/timer"
	"github.com/tsinghua-fib-lab/tripsim-oss/utils/config"
)

const junctionParent = 3_0000_0000

// deliveredResult 记录的终局投递
type deliveredResult struct {
	tripID int32
	result entity.TripResult
}

// fakeTripManager 只记录终局投递的Trip管理器
type fakeTripManager struct {
	entity.ITripManager

	results []deliveredResult
}

func (m *fakeTripManager) DeliverResult(tripID int32, result entity.TripResult) {
	m.results = append(m.results, deliveredResult{tripID: tripID, result: result})
}

// testCtx 测试用任务上下文
type testCtx struct {
	clock       *clock.Clock
	laneManager *lane.LaneManager
	tripManager *fakeTripManager
}

func (c *testCtx) Clock() *clock.Clock                  { return c.clock }
func (c *testCtx) Timer() *timer.Service                { return nil }
func (c *testCtx) LaneManager() entity.ILaneManager     { return c.laneManager }
func (c *testCtx) AoiManager() entity.IAoiManager       { return nil }
func (c *testCtx) TripManager() entity.ITripManager     { return c.tripManager }
func (c *testCtx) TripCreator() entity.ITripCreator     { return nil }
func (c *testCtx) Resolver() entity.ILocationResolver   { return nil }
func (c *testCtx) RuntimeConfig() *config.RuntimeConfig { return config.NewRuntimeConfig(config.Config{}) }

func newTestCtx(pbs []*mapv2.Lane) *testCtx {
	ctx := &testCtx{tripManager: &fakeTripManager{}}
	ctx.clock = clock.New(config.ControlStep{Start: 0, Total: 10000, Interval: 1})
	ctx.laneManager = lane.NewManager(ctx)
	ctx.laneManager.Init(pbs)
	return ctx
}

// step 推进一个完整的模拟步
func (c *testCtx) step() {
	c.clock.Step()
	c.laneManager.PrepareNode()
	c.laneManager.Prepare()
	c.laneManager.Update(c.clock.DT, c.clock.T)
}

// stepUntilResult 推进直到出现终局投递或步数耗尽
func (c *testCtx) stepUntilResult(maxSteps int) *deliveredResult {
	for i := 0; i < maxSteps; i++ {
		c.step()
		if len(c.tripManager.results) > 0 {
			return &c.tripManager.results[0]
		}
	}
	return nil
}

// lanePb 构造一条直线车道的pb数据
func lanePb(id, parentID int32, length, maxV float64, successors ...int32) *mapv2.Lane {
	return &mapv2.Lane{
		Id:       id,
		Type:     mapv2.LaneType_LANE_TYPE_DRIVING,
		MaxSpeed: maxV,
		ParentId: parentID,
		CenterLine: &mapv2.Polyline{Nodes: []*geov2.XYPosition{
			{X: 0, Y: 0}, {X: length, Y: 0},
		}},
		Successors: lo.Map(successors, func(sid int32, _ int) *mapv2.LaneConnection {
			return &mapv2.LaneConnection{Id: sid}
		}),
	}
}

func descriptor(tripID int32) entity.TravelerDescriptor {
	return entity.TravelerDescriptor{TripID: tripID, MaxV: 8}
}

func TestLaneBasics(t *testing.T) {
	ctx := newTestCtx([]*mapv2.Lane{
		lanePb(1, 100, 100, 20),
		lanePb(2, junctionParent, 30, 10),
	})

	l := ctx.laneManager.Get(1)
	assert.Equal(t, int32(1), l.ID())
	assert.Equal(t, 100.0, l.Length())
	assert.Equal(t, 20.0, l.MaxV())
	assert.False(t, l.InJunction())

	p := l.GetPositionByS(50)
	assert.Equal(t, 50.0, p.X)
	assert.Equal(t, 0.0, p.Y)
	// S超出范围按端点截断
	p = l.GetPositionByS(200)
	assert.Equal(t, 100.0, p.X)

	assert.True(t, ctx.laneManager.Get(2).InJunction())

	_, err := ctx.laneManager.GetOrError(3)
	assert.Error(t, err)
}

func TestRoadDrivingLanes(t *testing.T) {
	walking := lanePb(3, 100, 50, 2)
	walking.Type = mapv2.LaneType_LANE_TYPE_WALKING
	ctx := newTestCtx([]*mapv2.Lane{
		lanePb(2, junctionParent, 30, 10),
		lanePb(1, 100, 100, 20),
		walking,
	})

	lanes := ctx.laneManager.RoadDrivingLanes()
	// 只保留道路上的行车道，按ID升序
	assert.Len(t, lanes, 1)
	assert.Equal(t, int32(1), lanes[0].ID())
}

func TestTravelerReachesDestination(t *testing.T) {
	ctx := newTestCtx([]*mapv2.Lane{
		lanePb(1, 100, 100, 20, 2),
		lanePb(2, 101, 100, 20),
	})

	ctx.laneManager.InsertTraveler(
		entity.PreciseLocation{LaneID: 1, S: 0},
		descriptor(7),
		entity.PreciseLocation{LaneID: 2, S: 50},
		ctx.clock.T,
	)
	r := ctx.stepUntilResult(100)

	// 总路程150，速度受限于min(8, 20)=8
	assert.NotNil(t, r)
	assert.Equal(t, int32(7), r.tripID)
	assert.Equal(t, entity.FateSuccess, r.result.Fate)
	assert.Greater(t, r.result.Instant, 0.0)
	assert.Equal(t,
		&entity.RoughLocationRef{Kind: entity.RoughLocationLane, ID: 2, S: 50},
		r.result.LocationNow,
	)

	ctx.step()
	assert.Equal(t, 0, ctx.laneManager.TravelerCount())
}

func TestTravelerSameLaneForward(t *testing.T) {
	ctx := newTestCtx([]*mapv2.Lane{lanePb(1, 100, 100, 20)})

	ctx.laneManager.InsertTraveler(
		entity.PreciseLocation{LaneID: 1, S: 10},
		descriptor(1),
		entity.PreciseLocation{LaneID: 1, S: 60},
		ctx.clock.T,
	)
	r := ctx.stepUntilResult(20)

	assert.NotNil(t, r)
	assert.Equal(t, entity.FateSuccess, r.result.Fate)
}

func TestInsertOnUnknownLaneUnbuilt(t *testing.T) {
	ctx := newTestCtx([]*mapv2.Lane{lanePb(1, 100, 100, 20)})

	ctx.laneManager.InsertTraveler(
		entity.PreciseLocation{LaneID: 1, S: 0},
		descriptor(1),
		entity.PreciseLocation{LaneID: 99, S: 0},
		ctx.clock.T,
	)
	ctx.step()

	assert.Len(t, ctx.tripManager.results, 1)
	assert.Equal(t, entity.FateLaneUnbuilt, ctx.tripManager.results[0].result.Fate)
	assert.Equal(t, 0, ctx.laneManager.TravelerCount())
}

func TestInsertOnWalkingLaneUnbuilt(t *testing.T) {
	walking := lanePb(2, 100, 100, 20)
	walking.Type = mapv2.LaneType_LANE_TYPE_WALKING
	ctx := newTestCtx([]*mapv2.Lane{lanePb(1, 100, 100, 20), walking})

	// 起终点都必须是行车道
	ctx.laneManager.InsertTraveler(
		entity.PreciseLocation{LaneID: 2, S: 0},
		descriptor(1),
		entity.PreciseLocation{LaneID: 1, S: 0},
		ctx.clock.T,
	)
	ctx.step()

	assert.Len(t, ctx.tripManager.results, 1)
	assert.Equal(t, entity.FateLaneUnbuilt, ctx.tripManager.results[0].result.Fate)
}

func TestNoRouteBetweenDisconnectedLanes(t *testing.T) {
	ctx := newTestCtx([]*mapv2.Lane{
		lanePb(1, 100, 100, 20),
		lanePb(2, 101, 100, 20),
	})

	ctx.laneManager.InsertTraveler(
		entity.PreciseLocation{LaneID: 1, S: 0},
		descriptor(1),
		entity.PreciseLocation{LaneID: 2, S: 50},
		ctx.clock.T,
	)
	ctx.step()

	assert.Len(t, ctx.tripManager.results, 1)
	r := ctx.tripManager.results[0]
	assert.Equal(t, entity.FateNoRoute, r.result.Fate)
	assert.Equal(t,
		&entity.RoughLocationRef{Kind: entity.RoughLocationLane, ID: 1, S: 0},
		r.result.LocationNow,
	)
}

func TestNoRouteDestinationBehindOnSameLane(t *testing.T) {
	ctx := newTestCtx([]*mapv2.Lane{
		lanePb(1, 100, 100, 20, 2),
		lanePb(2, 101, 100, 20),
	})

	// 终点在同车道后方且没有可以绕回的环
	ctx.laneManager.InsertTraveler(
		entity.PreciseLocation{LaneID: 1, S: 80},
		descriptor(1),
		entity.PreciseLocation{LaneID: 1, S: 10},
		ctx.clock.T,
	)
	ctx.step()

	assert.Len(t, ctx.tripManager.results, 1)
	assert.Equal(t, entity.FateNoRoute, ctx.tripManager.results[0].result.Fate)
}

func TestRouteLoopsBackOnSameLane(t *testing.T) {
	ctx := newTestCtx([]*mapv2.Lane{
		lanePb(1, 100, 100, 20, 2),
		lanePb(2, 101, 100, 20, 1),
	})

	// 1→2→1的环允许回到同车道后方的终点
	ctx.laneManager.InsertTraveler(
		entity.PreciseLocation{LaneID: 1, S: 80},
		descriptor(1),
		entity.PreciseLocation{LaneID: 1, S: 10},
		ctx.clock.T,
	)
	r := ctx.stepUntilResult(100)

	assert.NotNil(t, r)
	assert.Equal(t, entity.FateSuccess, r.result.Fate)
}

func TestRouteForgottenOnRemovedLaterHop(t *testing.T) {
	ctx := newTestCtx([]*mapv2.Lane{
		lanePb(1, 100, 100, 20, 2),
		lanePb(2, 101, 100, 20, 3),
		lanePb(3, 102, 100, 20),
	})

	ctx.laneManager.InsertTraveler(
		entity.PreciseLocation{LaneID: 1, S: 0},
		descriptor(1),
		entity.PreciseLocation{LaneID: 3, S: 10},
		ctx.clock.T,
	)
	ctx.step()
	assert.Equal(t, 1, ctx.laneManager.TravelerCount())

	// 移除剩余路径中更靠后的一跳
	ctx.laneManager.RemoveLane(3)
	ctx.step()

	assert.Len(t, ctx.tripManager.results, 1)
	r := ctx.tripManager.results[0]
	assert.Equal(t, entity.FateRouteForgotten, r.result.Fate)
	assert.Equal(t, int32(1), r.result.LocationNow.ID)
}

func TestHopDisconnectedOnRemovedNextHop(t *testing.T) {
	ctx := newTestCtx([]*mapv2.Lane{
		lanePb(1, 100, 100, 20, 2),
		lanePb(2, 101, 100, 20),
	})

	ctx.laneManager.InsertTraveler(
		entity.PreciseLocation{LaneID: 1, S: 0},
		descriptor(1),
		entity.PreciseLocation{LaneID: 2, S: 50},
		ctx.clock.T,
	)
	ctx.step()

	// 移除眼前的下一跳
	ctx.laneManager.RemoveLane(2)
	ctx.step()

	assert.Len(t, ctx.tripManager.results, 1)
	assert.Equal(t, entity.FateHopDisconnected, ctx.tripManager.results[0].result.Fate)
}

func TestHopDisconnectedOnRemovedCurrentLane(t *testing.T) {
	ctx := newTestCtx([]*mapv2.Lane{
		lanePb(1, 100, 100, 20, 2),
		lanePb(2, 101, 100, 20),
	})

	ctx.laneManager.InsertTraveler(
		entity.PreciseLocation{LaneID: 1, S: 0},
		descriptor(1),
		entity.PreciseLocation{LaneID: 2, S: 50},
		ctx.clock.T,
	)
	ctx.step()

	// 脚下的车道消失
	ctx.laneManager.RemoveLane(1)
	ctx.step()

	assert.Len(t, ctx.tripManager.results, 1)
	assert.Equal(t, entity.FateHopDisconnected, ctx.tripManager.results[0].result.Fate)
	assert.Equal(t, 0, ctx.laneManager.TravelerCount())
}

func TestDiscardTravelerSilently(t *testing.T) {
	ctx := newTestCtx([]*mapv2.Lane{
		lanePb(1, 100, 100, 20, 2),
		lanePb(2, 101, 100, 20),
	})

	ctx.laneManager.InsertTraveler(
		entity.PreciseLocation{LaneID: 1, S: 0},
		descriptor(1),
		entity.PreciseLocation{LaneID: 2, S: 50},
		ctx.clock.T,
	)
	ctx.step()
	assert.Equal(t, 1, ctx.laneManager.TravelerCount())

	ctx.laneManager.DiscardTraveler(1)
	for i := 0; i < 50; i++ {
		ctx.step()
	}

	// 丢弃不产生任何终局投递
	assert.Empty(t, ctx.tripManager.results)
	assert.Equal(t, 0, ctx.laneManager.TravelerCount())
}

func TestTravelerSpeedLimitedByLane(t *testing.T) {
	ctx := newTestCtx([]*mapv2.Lane{lanePb(1, 100, 100, 2)})

	// 车道限速2低于自身最大速度8
	ctx.laneManager.InsertTraveler(
		entity.PreciseLocation{LaneID: 1, S: 0},
		descriptor(1),
		entity.PreciseLocation{LaneID: 1, S: 100},
		ctx.clock.T,
	)
	ctx.step()
	for i := 0; i < 48; i++ {
		ctx.step()
	}
	// 49步后最多行进98米，尚未到达
	assert.Empty(t, ctx.tripManager.results)
	r := ctx.stepUntilResult(10)
	assert.NotNil(t, r)
	assert.Equal(t, entity.FateSuccess, r.result.Fate)
}
