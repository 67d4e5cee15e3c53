package output

import (
	"context"
	"sync"

	"git.fiblab.net/general/common/v2/mongoutil"
	"github.com/tsinghua-fib-lab/tripsim-oss/entity"
	"github.com/tsinghua-fib-lab/tripsim-oss/utils/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Recorder 行程结果记录器
// 功能：作为Trip观察者把终局结果落库到MongoDB
// 说明：结果先进内存缓冲，按步批量写出；观察者回调绝不阻塞模拟
type Recorder struct {
	client *mongo.Client
	coll   *mongo.Collection

	buffer []any
	mtx    sync.Mutex
}

// NewRecorder 创建行程结果记录器
// 参数：cfg-输出配置（MongoDB连接串与目标集合）
func NewRecorder(cfg *config.Output) *Recorder {
	client := mongoutil.NewClient(cfg.URI)
	return &Recorder{
		client: client,
		coll:   client.Database(cfg.DB).Collection(cfg.Col),
		buffer: make([]any, 0),
	}
}

// TripCreated Trip创建通知
func (r *Recorder) TripCreated(tripID int32) {
	log.Debugf("trip %d created", tripID)
}

// TripResult Trip终局通知
// 说明：只做编码与入缓冲，落库在Flush中进行
func (r *Recorder) TripResult(
	tripID int32,
	result entity.TripResult,
	roughSource, roughDestination entity.RoughLocationRef,
) {
	doc := bson.M{
		"trip_id":     tripID,
		"fate":        result.Fate.String(),
		"source":      encodeRef(roughSource),
		"destination": encodeRef(roughDestination),
	}
	if result.LocationNow != nil {
		doc["location_now"] = encodeRef(*result.LocationNow)
	}
	if result.Fate == entity.FateSuccess {
		doc["instant"] = result.Instant
	}
	r.mtx.Lock()
	r.buffer = append(r.buffer, doc)
	r.mtx.Unlock()
}

// encodeRef 编码粗位置引用
func encodeRef(ref entity.RoughLocationRef) bson.M {
	return bson.M{
		"kind": ref.Kind.String(),
		"id":   ref.ID,
		"s":    ref.S,
	}
}

// Flush 将缓冲中的结果批量写出
func (r *Recorder) Flush(ctx context.Context) error {
	r.mtx.Lock()
	docs := r.buffer
	r.buffer = make([]any, 0)
	r.mtx.Unlock()
	if len(docs) == 0 {
		return nil
	}
	if _, err := r.coll.InsertMany(ctx, docs); err != nil {
		log.Errorf("failed to insert %d trip results: %v", len(docs), err)
		return err
	}
	log.Debugf("flushed %d trip results", len(docs))
	return nil
}

// Close 写出剩余结果并断开连接
func (r *Recorder) Close(ctx context.Context) error {
	if err := r.Flush(ctx); err != nil {
		return err
	}
	return r.client.Disconnect(ctx)
}
