package task

import (
	"context"
	"flag"
	"sync"
)

const (
	SelfName = "trip" // 本程序在模拟任务集群中的名字
)

var (
	heartBeatInterval = flag.Int("log.heartbeat_interval", 100, "心跳日志间隔步数")
)

// prepare 准备阶段，每步执行一次
// 功能：在每个模拟步骤开始时进行准备工作
// 算法说明：
// 1. 更新时钟：增加内部步数并计算当前时间
// 2. 心跳日志：定期输出系统状态信息
// 3. 节点准备：先生效Trip增删，再生效车道侧的移除/丢弃/插入请求
//    （顺序不可颠倒：车道侧会向Trip投递结果，要求Trip表已是最新）
// 4. 并行准备：并发执行各管理器其余的准备操作
func (ctx *Context) prepare() {
	ctx.clock.Step()

	if ctx.clock.InternalStep%int32(*heartBeatInterval) == 0 {
		hour, minute, second := ctx.clock.GetHourMinuteSecond()
		snapshot := ctx.tripManager.Snapshot()
		log.Infof(
			"STEP: %d(%d:%d:%.2f) created=%d ended=%v pending=%d",
			ctx.clock.InternalStep,
			hour, minute, second,
			snapshot.NumCreated, snapshot.NumEnded,
			ctx.tripCreator.PendingCount(),
		)
	}

	// PrepareNode
	ctx.tripManager.PrepareNode()
	ctx.laneManager.PrepareNode()

	// Prepare
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx.tripManager.Prepare() // trip
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx.laneManager.Prepare() // lane
	}()
	wg.Wait()
}

// update 更新阶段，每步执行一次
// 功能：在每个模拟步骤中执行主要的模拟逻辑
// 算法说明：
// 1. 投递到期唤醒：批量生成器在此配对生成Trip
// 2. 消费位置解析请求并投递应答
// 3. 并行更新：Trip处理收件箱消息，车道推进旅行者
//    （相互之间只通过收件箱交互，晚到的消息顺延到下一步处理）
// 4. 行程结果落库
func (ctx *Context) update() {
	ctx.timer.Fire()
	ctx.resolver.Update()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx.tripManager.Update(ctx.clock.T) // trip
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx.laneManager.Update(ctx.clock.DT, ctx.clock.T) // lane
	}()
	wg.Wait()

	if ctx.recorder != nil {
		ctx.recorder.Flush(context.Background())
	}
}

// Run 运行
func (ctx *Context) Run() {
	// 初始化
	ctx.Init()
	// init syncer
	ctx.sidecar.Step(false)
	for {
		ctx.prepare()
		// 通知准备阶段完成
		log.Debugf("step %d: prepare complete and call NotifyStepReady", ctx.clock.InternalStep)
		ctx.sidecar.NotifyStepReady()
		log.Debugf("step %d: NotifyStepReady complete", ctx.clock.InternalStep)
		ctx.update()
		log.Debugf("step %d: update complete", ctx.clock.InternalStep)
		close := false
		if ctx.clock.InternalStep+1 >= ctx.clock.END_STEP {
			close = ctx.sidecar.Step(true)
		} else {
			close = ctx.sidecar.Step(false)
		}
		if close || ctx.closed.Load() {
			break
		}
	}
	log.Infof("engine complete")
	ctx.Close()
}
