package aoi

import (
	"fmt"

	"git.fiblab.net/general/common/v2/parallel"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/tripsim-oss/entity"
)

// Aoi管理器
type AoiManager struct {
	ctx entity.ITaskContext

	data map[int32]*Aoi
	aois []*Aoi
}

// NewManager 创建AOI管理器实例
func NewManager(ctx entity.ITaskContext) *AoiManager {
	m := &AoiManager{
		ctx:  ctx,
		data: make(map[int32]*Aoi),
		aois: make([]*Aoi, 0),
	}
	return m
}

// Init 初始化所有AOI
// 功能：根据protobuf数据初始化所有AOI对象，建立与车道的关联关系
// 参数：pbs-AOI的protobuf数据列表，laneManager-车道管理器
// 说明：使用并行处理提高初始化效率
func (m *AoiManager) Init(pbs []*mapv2.Aoi, laneManager entity.ILaneManager) {
	m.aois = parallel.GoMap(pbs, func(pb *mapv2.Aoi) *Aoi {
		return newAoi(pb, laneManager)
	})
	m.data = lo.SliceToMap(m.aois, func(a *Aoi) (int32, *Aoi) {
		return a.id, a
	})
}

// Get 根据ID获取AOI实例
// 功能：通过AOI ID查找对应的AOI对象，如果不存在则panic
func (m *AoiManager) Get(id int32) entity.IAoi {
	if aoi, ok := m.data[id]; !ok {
		log.Panicf("no id %d in aoi data", id)
		return nil
	} else {
		return aoi
	}
}

// GetOrError 根据ID获取AOI实例（带错误处理）
func (m *AoiManager) GetOrError(id int32) (entity.IAoi, error) {
	if aoi, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in aoi data", id)
	} else {
		return aoi, nil
	}
}
