package config

// 批量配对唤醒延时的默认值（tick）
const DefaultBatchDelay = 50

// RuntimeConfig 运行时配置
// 功能：存储仿真运行时的配置信息
// 说明：将YAML配置转换为运行时可用的配置对象，并填充默认值
type RuntimeConfig struct {
	All  Config  // 全部配置
	C    Control // 全局控制配置
	Trip Trip    // 行程子系统配置
}

// NewRuntimeConfig 根据配置初始化运行时配置
// 说明：batch_delay未指定时取默认值
func NewRuntimeConfig(config Config) *RuntimeConfig {
	rc := &RuntimeConfig{}

	rc.All = config
	rc.C = config.Control
	rc.Trip = config.Trip
	if rc.Trip.BatchDelay <= 0 {
		rc.Trip.BatchDelay = DefaultBatchDelay
	}

	return rc
}
