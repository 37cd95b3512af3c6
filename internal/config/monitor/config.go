package monitor

import (
	"time"

	configtypes "github.com/visionclip/memfuse/pkg/types"
)

// MonitorOptions 压力监控配置选项
type MonitorOptions struct {
	// === 采样配置 ===
	SampleInterval time.Duration `json:"sample_interval"` // 采样间隔
	WindowSize     int           `json:"window_size"`     // 滑动窗口容量

	// === 压力指数配置 ===
	AmplifyAbove  float64 `json:"amplify_above"`  // 放大阈值（使用率百分比）
	AmplifyFactor float64 `json:"amplify_factor"` // 放大系数
	RecentWeight  float64 `json:"recent_weight"`  // 即时值权重
	RecentSpan    int     `json:"recent_span"`    // 最近均值的采样点数

	// === 趋势与预测配置 ===
	PredictHorizon  int     `json:"predict_horizon"`  // 预测步数
	RSquaredFloor   float64 `json:"r_squared_floor"`  // 拟合优度下限
	EscalationSlope float64 `json:"escalation_slope"` // 升级判定增量
}

// Config 压力监控配置实现
type Config struct {
	options *MonitorOptions
}

// New 创建压力监控配置实现
func New(userConfig interface{}) *Config {
	// 1. 先创建完整的默认配置
	defaultOptions := createDefaultMonitorOptions()

	// 2. 如果有用户配置，应用用户配置覆盖默认值
	if userConfig != nil {
		applyUserMonitorConfig(defaultOptions, userConfig)
	}

	return &Config{
		options: defaultOptions,
	}
}

// createDefaultMonitorOptions 创建默认监控配置
func createDefaultMonitorOptions() *MonitorOptions {
	return &MonitorOptions{
		SampleInterval:  defaultSampleInterval,
		WindowSize:      defaultWindowSize,
		AmplifyAbove:    defaultAmplifyAbove,
		AmplifyFactor:   defaultAmplifyFactor,
		RecentWeight:    defaultRecentWeight,
		RecentSpan:      defaultRecentSpan,
		PredictHorizon:  defaultPredictHorizon,
		RSquaredFloor:   defaultRSquaredFloor,
		EscalationSlope: defaultEscalationSlope,
	}
}

// applyUserMonitorConfig 应用用户监控配置覆盖默认值
func applyUserMonitorConfig(options *MonitorOptions, userConfig interface{}) {
	if monitorConfig, ok := userConfig.(*configtypes.UserMonitorConfig); ok && monitorConfig != nil {
		if monitorConfig.SampleInterval != nil {
			if d, err := time.ParseDuration(*monitorConfig.SampleInterval); err == nil && d > 0 {
				options.SampleInterval = d
			}
		}
		if monitorConfig.WindowSize != nil && *monitorConfig.WindowSize > 0 {
			options.WindowSize = *monitorConfig.WindowSize
		}
		if monitorConfig.AmplifyAbove != nil {
			options.AmplifyAbove = *monitorConfig.AmplifyAbove
		}
		if monitorConfig.PredictHorizon != nil && *monitorConfig.PredictHorizon > 0 {
			options.PredictHorizon = *monitorConfig.PredictHorizon
		}
	}
}

// GetOptions 获取完整的监控配置选项
func (c *Config) GetOptions() *MonitorOptions {
	return c.options
}
