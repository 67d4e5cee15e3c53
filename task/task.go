package task

import (
	"context"
	"sync/atomic"

	"git.fiblab.net/sim/syncer/v3"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/tripsim-oss/clock"
	"github.com/tsinghua-fib-lab/tripsim-oss/entity"
	"github.com/tsinghua-fib-lab/tripsim-oss/entity/aoi"
	"github.com/tsinghua-fib-lab/tripsim-oss/entity/lane"
	"github.com/tsinghua-fib-lab/tripsim-oss/entity/location"
	"github.com/tsinghua-fib-lab/tripsim-oss/entity/trip"
	"github.com/tsinghua-fib-lab/tripsim-oss/timer"
	"github.com/tsinghua-fib-lab/tripsim-oss/utils/config"
	"github.com/tsinghua-fib-lab/tripsim-oss/utils/input"
	"github.com/tsinghua-fib-lab/tripsim-oss/utils/output"
	"github.com/tsinghua-fib-lab/tripsim-oss/utils/randengine"
)

// Context 模拟任务上下文
// 功能：包含一次模拟任务的所有变量和状态，替代全局变量
// 说明：管理模拟系统的所有组件，包括时钟、定时唤醒、各管理器、
// 位置解析器、批量生成器与结果落库
type Context struct {

	// 任务名
	job string
	// 关闭指令
	closed atomic.Bool

	// 时钟
	clock *clock.Clock
	// 定时唤醒服务
	timer *timer.Service

	// 辅助程序，处理分布式模式下相关调用，包括与syncer、其他服务的交互
	sidecar *syncer.Sidecar
	// sidecar close channel
	sidecarCloseCh chan struct{}
	// 缓存文件夹
	cacheDir string

	// Lane管理器
	laneManager entity.ILaneManager
	// Aoi管理器
	aoiManager entity.IAoiManager
	// Trip管理器
	tripManager *trip.TripManager
	// 压测Trip批量生成器
	tripCreator *trip.TripCreator
	// 位置解析器
	resolver *location.Resolver
	// 行程结果落库（可选）
	recorder *output.Recorder

	// 运行时配置文件
	runtimeConfig *config.RuntimeConfig

	// 用于初始化的输入
	initRes *input.Input
}

// NewContext 创建新的模拟任务上下文
// 功能：初始化模拟系统的所有组件和配置
// 参数：
//   - job: 任务名称
//   - syncerLog: syncer日志记录器
//   - cacheDir: 缓存目录
//   - c: 配置对象
//   - sidecar: 外部sidecar实例
//   - startSidecarServe: 是否启动sidecar服务
//
// 返回：初始化完成的Context实例
func NewContext(
	job string,
	syncerLog *logrus.Entry,
	cacheDir string,
	c config.Config,
	sidecar *syncer.Sidecar,
	startSidecarServe bool,
) *Context {
	ctx := &Context{
		job:            job,
		cacheDir:       cacheDir,
		sidecar:        sidecar,
		sidecarCloseCh: make(chan struct{}),
	}
	ctx.clock = clock.New(c.Control.Step)
	ctx.timer = timer.New(ctx.clock)

	// 下载所有模拟器启动所需的数据
	ctx.initRes = input.Init(c, ctx.cacheDir)

	ctx.runtimeConfig = config.NewRuntimeConfig(c)

	// 新建各类模拟对象
	ctx.laneManager = lane.NewManager(ctx)
	ctx.aoiManager = aoi.NewManager(ctx)
	ctx.tripManager = trip.NewManager(ctx)
	ctx.resolver = location.New(ctx)
	ctx.tripCreator = trip.NewCreator(ctx, c.Trip.StressSeed)

	if c.Output != nil {
		ctx.recorder = output.NewRecorder(c.Output)
		ctx.tripManager.SetAuditListener(ctx.recorder)
	}

	ctx.clock.Register(ctx.sidecar)

	// sidecar协程，用于提供gRPC服务
	if startSidecarServe {
		go func() {
			err := ctx.sidecar.Serve()
			if err != nil {
				log.Panicf("failed to serve: %v", err)
			}
			ctx.sidecarCloseCh <- struct{}{}
		}()
	}

	return ctx
}

func (ctx *Context) GetInput() *input.Input {
	return ctx.initRes
}

func (ctx *Context) Clock() *clock.Clock {
	return ctx.clock
}

func (ctx *Context) Timer() *timer.Service {
	return ctx.timer
}

func (ctx *Context) LaneManager() entity.ILaneManager {
	return ctx.laneManager
}

func (ctx *Context) AoiManager() entity.IAoiManager {
	return ctx.aoiManager
}

func (ctx *Context) TripManager() entity.ITripManager {
	return ctx.tripManager
}

func (ctx *Context) TripCreator() entity.ITripCreator {
	return ctx.tripCreator
}

func (ctx *Context) Resolver() entity.ILocationResolver {
	return ctx.resolver
}

func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

// Init 初始化所有实体与压测负载
func (ctx *Context) Init() {
	ctx.clock.Init()

	initRes := ctx.initRes
	// 数据加载
	mapData := initRes.Map

	log.Infof("Lane: %v", len(mapData.Lanes))
	log.Infof("AOI: %v", len(mapData.Aois))

	ctx.laneManager.Init(mapData.Lanes) // 先完成lane的所有初始化
	// 在建立好lanes的基础上进行AOI初始化
	ctx.aoiManager.Init(mapData.Aois, ctx.laneManager)

	// 压测端点采样
	ctx.seedStressEndpoints()
}

// seedStressEndpoints 采样压测车道端点注入批量生成器
// 说明：按车道长度加权采样车道，再在车道上均匀采样S坐标，
// 使端点在路网上近似均匀分布；采样种子可配置以保证可复现
func (ctx *Context) seedStressEndpoints() {
	n := int(ctx.runtimeConfig.Trip.StressEndpoints)
	if n <= 0 {
		return
	}
	lanes := ctx.laneManager.RoadDrivingLanes()
	if len(lanes) == 0 {
		log.Warn("no road driving lanes to seed stress endpoints")
		return
	}
	generator := randengine.New(ctx.runtimeConfig.Trip.StressSeed)
	weights := lo.Map(lanes, func(l entity.ILane, _ int) float64 { return l.Length() })
	for i := 0; i < n; i++ {
		l := lanes[generator.DiscreteDistribution(weights)]
		ctx.tripCreator.AddEndpoint(entity.RoughLocationRef{
			Kind: entity.RoughLocationLane,
			ID:   l.ID(),
			S:    generator.Float64() * l.Length(),
		})
	}
	log.Infof("seeded %d stress endpoints on %d road driving lanes", n, len(lanes))
}

func (ctx *Context) Close() {
	if ctx.closed.Load() {
		return
	}
	if ctx.recorder != nil {
		if err := ctx.recorder.Close(context.Background()); err != nil {
			log.Errorf("failed to close trip recorder: %v", err)
		}
	}
	ctx.sidecar.Close()
	// wait for graceful stop
	<-ctx.sidecarCloseCh
	ctx.closed.Store(true)
}
