package fuse

import "time"

// 熔断器默认值
const (
	// defaultWarningThreshold 警告级别触发阈值
	// 原因：75%留出充分的缓解余地，轻量动作（清缓存、GC）
	// 在这个区间代价最低
	defaultWarningThreshold = 75.0

	// defaultCriticalThreshold 严重级别触发阈值
	defaultCriticalThreshold = 85.0

	// defaultEmergencyThreshold 紧急级别触发阈值
	// 95%之后随时可能被内核OOM杀死，必须执行强制动作
	defaultEmergencyThreshold = 95.0

	// defaultCheckInterval 熔断评估间隔
	// 评估读取的是监控器已算好的压力指数，5秒间隔在响应速度
	// 和评估开销之间取平衡
	defaultCheckInterval = 5 * time.Second

	// defaultStabilizeWindow 级别提升后的稳定窗口设为30秒
	// 原因：缓解动作生效需要时间，窗口内压力短暂回落不代表脱险，
	// 过早降级会导致级别震荡
	defaultStabilizeWindow = 30 * time.Second

	// defaultRecoveryThreshold 恢复阈值设为70
	// 低于最低触发阈值5个点，形成滞回区间
	defaultRecoveryThreshold = 70.0

	// defaultRecoveryCooldown 两次降级之间的最小间隔
	defaultRecoveryCooldown = 10 * time.Second

	// defaultStepRecovery 默认逐级降级
	// 每次只回退一个级别，降级路径上可逐步恢复被释放的资源
	defaultStepRecovery = true

	// defaultExecuteSkippedLevels 压力跨级跃升时默认不补执行被跳过级别的动作
	// 高级别的动作集合覆盖了低级别的缓解目标，补执行只会重复开销
	defaultExecuteSkippedLevels = false

	// defaultHistoryCapacity 触发历史保留条数
	defaultHistoryCapacity = 100
)
