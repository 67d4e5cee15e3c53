// 定时唤醒服务，为实体提供以tick计的延时唤醒能力
package timer

import (
	"sync"

	"github.com/tsinghua-fib-lab/tripsim-oss/clock"
	"github.com/tsinghua-fib-lab/tripsim-oss/utils/container"
)

// Sleeper 可被定时唤醒的实体
type Sleeper interface {
	Wake(instant float64) // 唤醒回调，instant为当前仿真时刻
}

// Service 定时唤醒服务
// 功能：登记"delay个tick后唤醒target"的请求，并在每步开始时投递到期唤醒
// 说明：同一target允许登记多个唤醒（重复唤醒应由target幂等处理）；
// 队列仅由自身handler修改，外部登记经互斥锁缓冲
type Service struct {
	clock   *clock.Clock
	pending *container.PriorityQueue[Sleeper] // 优先级为到期步数
	mtx     sync.Mutex
}

// New 创建定时唤醒服务
func New(c *clock.Clock) *Service {
	return &Service{
		clock:   c,
		pending: container.NewPriorityQueue[Sleeper](),
	}
}

// WakeMeUpIn 登记一次延时唤醒
// 参数：delay-延时tick数，target-被唤醒实体
func (s *Service) WakeMeUpIn(delay int32, target Sleeper) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.pending.HeapPush(target, float64(s.clock.InternalStep+delay))
}

// Len 获取未到期唤醒数
func (s *Service) Len() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.pending.Len()
}

// Fire 投递所有到期唤醒
// 说明：每步prepare阶段由task调用一次；到期判定以当前步数为准，
// 唤醒回调在锁外执行，回调内允许再次登记唤醒
func (s *Service) Fire() {
	now := float64(s.clock.InternalStep)
	due := make([]Sleeper, 0)
	s.mtx.Lock()
	for s.pending.Len() > 0 && s.pending.FirstPriority() <= now {
		target, _ := s.pending.HeapPop()
		due = append(due, target)
	}
	s.mtx.Unlock()
	for _, target := range due {
		target.Wake(s.clock.T)
	}
}
