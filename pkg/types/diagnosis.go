package types

// PatternType 内存压力模式
type PatternType string

const (
	PatternRapidIncrease   PatternType = "rapid_increase"   // 快速增长
	PatternSteadyIncrease  PatternType = "steady_increase"  // 平稳增长
	PatternSpike           PatternType = "spike"            // 瞬时峰值
	PatternFluctuation     PatternType = "fluctuation"      // 剧烈波动
	PatternPlateauHigh     PatternType = "plateau_high"     // 高位平台
	PatternImmediateHigh   PatternType = "immediate_high"   // 启动即高位
	PatternFragmentation   PatternType = "fragmentation"    // 内存碎片化
	PatternGradualIncrease PatternType = "gradual_increase" // 缓慢增长
	PatternGradualDecrease PatternType = "gradual_decrease" // 缓慢下降
	PatternStable          PatternType = "stable"           // 平稳
)

// DiagnosisCase 知识库案例：模式 → 根因 → 解决方案
type DiagnosisCase struct {
	ID        string      `json:"id"`
	Pattern   PatternType `json:"pattern"`
	Symptoms  string      `json:"symptoms"`
	RootCause string      `json:"root_cause"`
	Solution  string      `json:"solution"`
	Severity  string      `json:"severity"` // critical / high / medium / low
	Impact    []string    `json:"impact"`
	Detection string      `json:"detection"`
}

// DiagnosisReport 诊断结论
// Confidence 低于下限时 MatchedCase 为空，RootCause/Solution 为按模式合成的通用建议
type DiagnosisReport struct {
	Pattern      PatternType      `json:"pattern"`
	Features     PressureFeatures `json:"features"`
	MatchedCase  string           `json:"matched_case,omitempty"`
	Confidence   float64          `json:"confidence"`
	RootCause    string           `json:"root_cause"`
	Solution     string           `json:"solution"`
	Severity     string           `json:"severity"`
	SimilarCases []string         `json:"similar_cases,omitempty"` // 至多两个次优匹配
	Generic      bool             `json:"generic"`                 // 是否为合成通用建议
}
