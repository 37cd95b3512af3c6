package types

import "time"

// PressureSample 内存压力采样点
type PressureSample struct {
	Timestamp    time.Time `json:"timestamp"`
	UsagePercent float64   `json:"usage_percent"` // 系统内存使用率 0-100
}

// TrendResult 线性趋势拟合结果
type TrendResult struct {
	Slope    float64 `json:"slope"`     // 每个采样点的变化量
	RSquared float64 `json:"r_squared"` // 拟合优度 0-1
}

// PressureFeatures 从压力采样序列提取的统计特征
// 供知识库模式分类与案例匹配使用
type PressureFeatures struct {
	Mean         float64 `json:"mean"`
	Std          float64 `json:"std"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Range        float64 `json:"range"`
	Current      float64 `json:"current"`
	GrowthRate   float64 `json:"growth_rate"`   // 首尾差值相对首值的比例
	RecentGrowth float64 `json:"recent_growth"` // 最近3个点的增量
	Volatility   float64 `json:"volatility"`    // std/mean
	Trend        float64 `json:"trend"`         // 线性斜率
}
