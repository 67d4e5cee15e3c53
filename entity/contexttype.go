package entity

import (
	"github.com/tsinghua-fib-lab/tripsim-oss/clock"
	"github.com/tsinghua-fib-lab/tripsim-oss/timer"
	"github.com/tsinghua-fib-lab/tripsim-oss/utils/config"
)

type ITaskContext interface {
	Clock() *clock.Clock
	Timer() *timer.Service
	LaneManager() ILaneManager
	AoiManager() IAoiManager
	TripManager() ITripManager
	TripCreator() ITripCreator
	Resolver() ILocationResolver
	RuntimeConfig() *config.RuntimeConfig
}
