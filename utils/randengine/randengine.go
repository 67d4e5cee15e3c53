// 随机数引擎，包装了golang.org/x/exp/rand，补充压测端点采样所需的离散分布
package randengine

import (
	"flag"
	"log"

	"golang.org/x/exp/rand"
)

var (
	seedOffset = flag.Uint64("rand.seed_offset", 0, "seed offset") // 种子偏移量，用于整体平移随机序列
)

// Engine 随机数引擎
// 说明：基于golang.org/x/exp/rand，相同种子产生相同序列，
// 保证压测端点采样可复现
type Engine struct {
	*rand.Rand // 底层随机数生成器
}

// New 创建随机数引擎
// 参数：seed-随机数种子（实际种子为seed+种子偏移量）
// 说明：种子偏移量允许在不修改配置的情况下整体切换随机序列
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + *seedOffset))}
}

// DiscreteDistribution 按给定权重的离散分布采样一个索引
// 参数：weight-权重数组，各项非负且至少一项为正
// 返回：[0, len(weight))内的随机索引，权重越大被选中概率越高
// 算法说明：累积分布函数法，在[0, 总权重)内取随机数，
// 返回累积权重首次超过该随机数的索引
func (e *Engine) DiscreteDistribution(weight []float64) int32 {
	random := .0
	for _, w := range weight {
		random += w
	}
	random *= e.Float64()
	sum := 0.
	for i, w := range weight {
		sum += w
		if sum > random {
			return int32(i)
		}
	}
	log.Panicf("randengine: DiscreteDistribution: sum: %f random: %f", sum, random)
	return -1
}
