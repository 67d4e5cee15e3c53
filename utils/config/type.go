package config

// InputPath 指定输入数据来源的配置（MongoDB、文件系统）
// 说明：支持MongoDB数据库和文件系统两种数据源，支持缓存机制
type InputPath struct {
	DB        string `yaml:"db"`                   // 数据库名
	Col       string `yaml:"col"`                  // 集合名
	Cache     string `yaml:"cache,omitempty"`      // 缓存文件名，为空则采用默认路径{db}.{col}.pb
	OnlyCache bool   `yaml:"only_cache,omitempty"` // 只从缓存中获取
	File      string `yaml:"file,omitempty"`       // 文件路径（优先级高于MongoDB）
}

// GetDb 获取数据库名
func (p InputPath) GetDb() string {
	return p.DB
}

// GetColl 获取集合名
func (p InputPath) GetColl() string {
	return p.Col
}

// GetCachePath 获取缓存文件路径
// 说明：如果指定了缓存路径则直接返回，否则使用默认命名规则{数据库名}.{集合名}.pb
func (p InputPath) GetCachePath() string {
	if p.Cache != "" {
		return p.Cache
	}
	return p.DB + "." + p.Col + ".pb"
}

// Input 指定模拟器所有输入数据的配置项
type Input struct {
	URI string    `yaml:"uri"` // MongoDB连接字符串
	Map InputPath `yaml:"map"` // 地图
}

// ControlStep 指定模拟器模拟时间范围和间隔的配置项
type ControlStep struct {
	Start    int32   `yaml:"start"`    // 开始步数
	Total    int32   `yaml:"total"`    // 总步数
	Interval float64 `yaml:"interval"` // 每步的时间间隔
}

// Control 模拟器控制配置
type Control struct {
	Step ControlStep `yaml:"step"`
}

// Trip 行程子系统配置
type Trip struct {
	// 批量配对唤醒延时（tick），为0则取默认值50
	BatchDelay int32 `yaml:"batch_delay,omitempty"`
	// 启动时采样的压测车道端点数，为0则不生成压测行程
	StressEndpoints int32 `yaml:"stress_endpoints,omitempty"`
	// 压测端点采样随机种子
	StressSeed uint64 `yaml:"stress_seed,omitempty"`
	// 失败Trip可视化开关（默认关闭）
	DebugFailedTrips bool `yaml:"debug_failed_trips,omitempty"`
}

// Output 指定行程结果输出的配置项（可选）
type Output struct {
	URI string `yaml:"uri"` // MongoDB连接字符串
	DB  string `yaml:"db"`  // 数据库名
	Col string `yaml:"col"` // 集合名
}

// Config YAML配置文件的根结构
type Config struct {
	Input   Input   `yaml:"input"`            // 输入
	Control Control `yaml:"control"`          // 模拟过程控制
	Trip    Trip    `yaml:"trip,omitempty"`   // 行程子系统
	Output  *Output `yaml:"output,omitempty"` // 行程结果输出
}
