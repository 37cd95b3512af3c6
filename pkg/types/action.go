package types

import "time"

// MitigationAction 熔断缓解动作的静态描述
// 启动时载入动作目录，运行期除显式重注册外不可变
type MitigationAction struct {
	Name                string        `json:"name"`
	ImpactWeight        float64       `json:"impact_weight"`         // 对系统的冲击程度 0-1
	ExpectedReductionMB float64       `json:"expected_reduction_mb"` // 预期释放内存量
	MaxExecTime         time.Duration `json:"max_exec_time"`         // 执行时间预算
	RetryBudget         int           `json:"retry_budget"`          // 重试次数上限
	EscalationTarget    string        `json:"escalation_target"`     // 升级目标动作，空表示无
}

// ImpactClass 动作冲击分级，仅用于报告
type ImpactClass string

const (
	ImpactLight  ImpactClass = "light"  // 权重 ≤ 0.4
	ImpactMedium ImpactClass = "medium" // 权重 ≤ 0.7
	ImpactHeavy  ImpactClass = "heavy"  // 权重 > 0.7
)

// ClassifyImpact 根据权重返回冲击分级
func ClassifyImpact(weight float64) ImpactClass {
	switch {
	case weight <= 0.4:
		return ImpactLight
	case weight <= 0.7:
		return ImpactMedium
	default:
		return ImpactHeavy
	}
}

// ValidationResult 单次动作执行的验证结果
type ValidationResult struct {
	Action            string        `json:"action"`
	Success           bool          `json:"success"`
	MemoryBeforeMB    float64       `json:"memory_before_mb"`
	MemoryAfterMB     float64       `json:"memory_after_mb"`
	ReductionMB       float64       `json:"reduction_mb"`
	ExpectedReduction float64       `json:"expected_reduction_mb"`
	ExecTime          time.Duration `json:"exec_time"`
	Timestamp         time.Time     `json:"timestamp"`

	// PeakUsagePercent 执行窗口内观察到的最高内存使用率
	// 捕捉动作自身造成的瞬时峰值，仅在挂接记录器时有值
	PeakUsagePercent float64 `json:"peak_usage_percent,omitempty"`
}

// Effectiveness 动作有效性：实际释放量相对预期释放量的比例
func (r *ValidationResult) Effectiveness() float64 {
	if r.ExpectedReduction == 0 {
		return 0
	}
	return r.ReductionMB / r.ExpectedReduction
}

// FailureStrategy 验证失败的处理策略
type FailureStrategy int

const (
	StrategyRetry    FailureStrategy = iota // 重试当前动作
	StrategyEscalate                        // 升级为更强力的动作
	StrategyAlert                           // 触发系统警报（终态）
	StrategyFallback                        // 依次尝试备选动作
	StrategyCombine                         // 组合执行一组动作
)

// String 实现 fmt.Stringer
func (s FailureStrategy) String() string {
	switch s {
	case StrategyRetry:
		return "RETRY"
	case StrategyEscalate:
		return "ESCALATE"
	case StrategyAlert:
		return "ALERT"
	case StrategyFallback:
		return "FALLBACK"
	case StrategyCombine:
		return "COMBINE"
	default:
		return "UNKNOWN"
	}
}

// ActionRecord 熔断动作执行历史记录
type ActionRecord struct {
	Action      string    `json:"action"`
	Level       FuseLevel `json:"level"`
	TargetLevel FuseLevel `json:"target_level,omitempty"` // 恢复记录的目标级别
	Timestamp   time.Time `json:"timestamp"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
}
