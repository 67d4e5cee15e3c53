package location_test

import (
	"testing"

	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/tripsim-oss/clock"
	"github.com/tsinghua-fib-lab/tripsim-oss/entity"
	"github.com/tsinghua-fib-lab/tripsim-oss/entity/aoi"
	"github.com/tsinghua-fib-lab/tripsim-oss/entity/lane"
	"github.com/tsinghua-fib-lab/tripsim-oss/entity/location"
	"github.com/tsinghua-fib-lab/tripsim-oss/timer"
	"github.com/tsinghua-fib-lab/tripsim-oss/utils/config"
)

const junctionParent = 3_0000_0000

// deliveredLocation 记录的解析应答
type deliveredLocation struct {
	tripID int32
	ref    entity.RoughLocationRef
	loc    *entity.PreciseLocation
}

// fakeTripManager 只记录解析应答投递的Trip管理器
type fakeTripManager struct {
	entity.ITripManager

	locations []deliveredLocation
}

func (m *fakeTripManager) DeliverLocation(tripID int32, ref entity.RoughLocationRef, loc *entity.PreciseLocation, instant float64) {
	m.locations = append(m.locations, deliveredLocation{tripID: tripID, ref: ref, loc: loc})
}

// testCtx 测试用任务上下文
type testCtx struct {
	clock       *clock.Clock
	laneManager *lane.LaneManager
	aoiManager  *aoi.AoiManager
	tripManager *fakeTripManager
	resolver    *location.Resolver
}

func (c *testCtx) Clock() *clock.Clock                  { return c.clock }
func (c *testCtx) Timer() *timer.Service                { return nil }
func (c *testCtx) LaneManager() entity.ILaneManager     { return c.laneManager }
func (c *testCtx) AoiManager() entity.IAoiManager       { return c.aoiManager }
func (c *testCtx) TripManager() entity.ITripManager     { return c.tripManager }
func (c *testCtx) TripCreator() entity.ITripCreator     { return nil }
func (c *testCtx) Resolver() entity.ILocationResolver   { return c.resolver }
func (c *testCtx) RuntimeConfig() *config.RuntimeConfig { return config.NewRuntimeConfig(config.Config{}) }

func lanePb(id, parentID int32, length float64, typ mapv2.LaneType) *mapv2.Lane {
	return &mapv2.Lane{
		Id:       id,
		Type:     typ,
		MaxSpeed: 20,
		ParentId: parentID,
		CenterLine: &mapv2.Polyline{Nodes: []*geov2.XYPosition{
			{X: 0, Y: 0}, {X: length, Y: 0},
		}},
	}
}

func aoiPb(id int32, drivingLaneIDs ...int32) *mapv2.Aoi {
	a := &mapv2.Aoi{
		Id: id,
		Positions: []*geov2.XYPosition{
			{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}, {X: 0, Y: 0},
		},
	}
	for _, laneID := range drivingLaneIDs {
		a.DrivingPositions = append(a.DrivingPositions, &geov2.LanePosition{
			LaneId: laneID,
			S:      25,
		})
	}
	return a
}

func newTestCtx() *testCtx {
	ctx := &testCtx{tripManager: &fakeTripManager{}}
	ctx.clock = clock.New(config.ControlStep{Start: 0, Total: 1000, Interval: 1})
	ctx.laneManager = lane.NewManager(ctx)
	ctx.laneManager.Init([]*mapv2.Lane{
		lanePb(1, 100, 100, mapv2.LaneType_LANE_TYPE_DRIVING),
		lanePb(2, 100, 100, mapv2.LaneType_LANE_TYPE_DRIVING),
		lanePb(3, junctionParent, 30, mapv2.LaneType_LANE_TYPE_DRIVING),
		lanePb(4, 100, 100, mapv2.LaneType_LANE_TYPE_WALKING),
	})
	ctx.aoiManager = aoi.NewManager(ctx)
	ctx.aoiManager.Init([]*mapv2.Aoi{
		aoiPb(10, 2, 1),
		aoiPb(11),
	}, ctx.laneManager)
	ctx.resolver = location.New(ctx)
	return ctx
}

func laneRef(id int32, s float64) entity.RoughLocationRef {
	return entity.RoughLocationRef{Kind: entity.RoughLocationLane, ID: id, S: s}
}

func aoiRef(id int32) entity.RoughLocationRef {
	return entity.RoughLocationRef{Kind: entity.RoughLocationAoi, ID: id}
}

func TestResolveLaneEndpoint(t *testing.T) {
	ctx := newTestCtx()

	ctx.resolver.Resolve(1, laneRef(1, 40), ctx.clock.T)
	ctx.resolver.Update()

	assert.Len(t, ctx.tripManager.locations, 1)
	d := ctx.tripManager.locations[0]
	assert.Equal(t, int32(1), d.tripID)
	assert.Equal(t, laneRef(1, 40), d.ref)
	assert.Equal(t, &entity.PreciseLocation{LaneID: 1, S: 40}, d.loc)
}

func TestResolveLaneEndpointClampsS(t *testing.T) {
	ctx := newTestCtx()

	ctx.resolver.Resolve(1, laneRef(1, 500), ctx.clock.T)
	ctx.resolver.Update()

	assert.Equal(t, &entity.PreciseLocation{LaneID: 1, S: 100}, ctx.tripManager.locations[0].loc)
}

func TestResolveJunctionLaneAbsent(t *testing.T) {
	ctx := newTestCtx()

	// 路口车道不能作为出行端点
	ctx.resolver.Resolve(1, laneRef(3, 0), ctx.clock.T)
	ctx.resolver.Update()

	assert.Len(t, ctx.tripManager.locations, 1)
	assert.Nil(t, ctx.tripManager.locations[0].loc)
}

func TestResolveWalkingLaneAbsent(t *testing.T) {
	ctx := newTestCtx()

	ctx.resolver.Resolve(1, laneRef(4, 0), ctx.clock.T)
	ctx.resolver.Update()

	assert.Nil(t, ctx.tripManager.locations[0].loc)
}

func TestResolveUnknownLaneAbsent(t *testing.T) {
	ctx := newTestCtx()

	ctx.resolver.Resolve(1, laneRef(99, 0), ctx.clock.T)
	ctx.resolver.Update()

	assert.Nil(t, ctx.tripManager.locations[0].loc)
}

func TestResolveAoiPicksSmallestDrivingLane(t *testing.T) {
	ctx := newTestCtx()

	ctx.resolver.Resolve(1, aoiRef(10), ctx.clock.T)
	ctx.resolver.Update()

	// 确定性选择：行车道ID最小者
	assert.Equal(t, &entity.PreciseLocation{LaneID: 1, S: 25}, ctx.tripManager.locations[0].loc)
}

func TestResolveAoiWithoutDrivingLanesAbsent(t *testing.T) {
	ctx := newTestCtx()

	ctx.resolver.Resolve(1, aoiRef(11), ctx.clock.T)
	ctx.resolver.Update()

	assert.Nil(t, ctx.tripManager.locations[0].loc)
}

func TestResolveUnknownAoiAbsent(t *testing.T) {
	ctx := newTestCtx()

	ctx.resolver.Resolve(1, aoiRef(999), ctx.clock.T)
	ctx.resolver.Update()

	assert.Nil(t, ctx.tripManager.locations[0].loc)
}

func TestResolveExactlyOnceEachRequest(t *testing.T) {
	ctx := newTestCtx()

	ctx.resolver.Resolve(1, laneRef(1, 0), ctx.clock.T)
	ctx.resolver.Resolve(2, laneRef(2, 0), ctx.clock.T)
	assert.Equal(t, 2, ctx.resolver.PendingCount())

	ctx.resolver.Update()
	assert.Len(t, ctx.tripManager.locations, 2)
	assert.Equal(t, 0, ctx.resolver.PendingCount())

	// 没有新请求时不再投递
	ctx.resolver.Update()
	assert.Len(t, ctx.tripManager.locations, 2)
}

func TestResolvePosition(t *testing.T) {
	ctx := newTestCtx()

	p, ok := ctx.resolver.ResolvePosition(laneRef(1, 40))
	assert.True(t, ok)
	assert.Equal(t, 40.0, p.X)

	p, ok = ctx.resolver.ResolvePosition(aoiRef(10))
	assert.True(t, ok)
	assert.Equal(t, 5.0, p.X)
	assert.Equal(t, 5.0, p.Y)

	_, ok = ctx.resolver.ResolvePosition(laneRef(99, 0))
	assert.False(t, ok)
}
