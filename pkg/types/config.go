// Package types provides configuration type definitions.
package types

// AppConfig 应用程序根配置
// 只包含配置文件解析所需的结构，不包含任何内部字段
// 默认值和完整配置结构在 internal/config/*/defaults.go 和 internal/config/*/config.go 中定义
type AppConfig struct {
	// 应用程序基本信息
	AppName *string `json:"app_name,omitempty" yaml:"app_name,omitempty"` // 应用名称
	DataDir *string `json:"data_dir,omitempty" yaml:"data_dir,omitempty"` // 数据目录路径

	// Environment 运行环境：dev | test | prod
	// 只影响日志级别、默认端口等运维属性，不改变熔断语义
	Environment *string `json:"environment,omitempty" yaml:"environment,omitempty"`

	// 压力监控配置
	Monitor *UserMonitorConfig `json:"monitor,omitempty" yaml:"monitor,omitempty"`

	// 熔断器配置
	Fuse *UserFuseConfig `json:"fuse,omitempty" yaml:"fuse,omitempty"`

	// 缓解动作配置
	Actions *UserActionsConfig `json:"actions,omitempty" yaml:"actions,omitempty"`

	// 存储配置（审计事件与恢复状态）
	Storage *UserStorageConfig `json:"storage,omitempty" yaml:"storage,omitempty"`

	// 日志配置
	Log *UserLogConfig `json:"log,omitempty" yaml:"log,omitempty"`

	// 诊断 API 配置
	API *UserAPIConfig `json:"api,omitempty" yaml:"api,omitempty"`
}

// UserMonitorConfig 用户压力监控配置
// 对应配置文件中的 monitor 字段
type UserMonitorConfig struct {
	SampleInterval *string  `json:"sample_interval,omitempty" yaml:"sample_interval,omitempty"` // 采样间隔，如"1s"
	WindowSize     *int     `json:"window_size,omitempty" yaml:"window_size,omitempty"`         // 滑动窗口容量
	AmplifyAbove   *float64 `json:"amplify_above,omitempty" yaml:"amplify_above,omitempty"`     // 压力放大阈值
	PredictHorizon *int     `json:"predict_horizon,omitempty" yaml:"predict_horizon,omitempty"` // 预测步数
}

// UserFuseConfig 用户熔断器配置
// 对应配置文件中的 fuse 字段
type UserFuseConfig struct {
	// Thresholds 各级别的触发阈值（内存使用率百分比）
	// 键为级别名：warning | critical | emergency
	Thresholds map[string]float64 `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// CheckInterval 熔断评估间隔，如"5s"
	CheckInterval *string `json:"check_interval,omitempty" yaml:"check_interval,omitempty"`

	// StabilizeWindow 级别提升后的稳定窗口，如"30s"
	// 窗口内压力回落不会降级，防止级别震荡
	StabilizeWindow *string `json:"stabilize_window,omitempty" yaml:"stabilize_window,omitempty"`

	// RecoveryThreshold 恢复阈值：压力低于该值时开始降级
	RecoveryThreshold *float64 `json:"recovery_threshold,omitempty" yaml:"recovery_threshold,omitempty"`

	// RecoveryCooldown 两次降级之间的最小间隔，如"10s"
	RecoveryCooldown *string `json:"recovery_cooldown,omitempty" yaml:"recovery_cooldown,omitempty"`

	// StepRecovery 是否逐级降级（false 时直接回到正常级别）
	StepRecovery *bool `json:"step_recovery,omitempty" yaml:"step_recovery,omitempty"`

	// ExecuteSkippedLevels 压力跨级跃升时是否补执行被跳过级别的动作
	ExecuteSkippedLevels *bool `json:"execute_skipped_levels,omitempty" yaml:"execute_skipped_levels,omitempty"`

	// HistoryCapacity 触发历史保留条数
	HistoryCapacity *int `json:"history_capacity,omitempty" yaml:"history_capacity,omitempty"`
}

// UserActionsConfig 用户缓解动作配置
// 对应配置文件中的 actions 字段
type UserActionsConfig struct {
	// LevelActions 各级别触发的动作集合，键为级别名
	LevelActions map[string][]string `json:"level_actions,omitempty" yaml:"level_actions,omitempty"`

	// MaxRetries 单个动作的重试预算
	MaxRetries *int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`

	// RecordInterval 验证期间的内存记录间隔，如"500ms"
	RecordInterval *string `json:"record_interval,omitempty" yaml:"record_interval,omitempty"`

	// Overrides 按动作名覆盖预期释放量（MB），用于按部署环境校准
	Overrides map[string]float64 `json:"overrides,omitempty" yaml:"overrides,omitempty"`
}

// UserStorageConfig 用户存储配置
// 对应配置文件中的 storage 字段
type UserStorageConfig struct {
	// AuditBackend 审计事件后端：memory | file | badger
	AuditBackend *string `json:"audit_backend,omitempty" yaml:"audit_backend,omitempty"`

	// AuditCapacity 内存后端的环形容量
	AuditCapacity *int `json:"audit_capacity,omitempty" yaml:"audit_capacity,omitempty"`

	// AuditPath 文件/badger 后端的存储路径
	AuditPath *string `json:"audit_path,omitempty" yaml:"audit_path,omitempty"`

	// RecoveryStateDir 恢复状态快照目录
	RecoveryStateDir *string `json:"recovery_state_dir,omitempty" yaml:"recovery_state_dir,omitempty"`
}

// UserLogConfig 用户日志配置
// 对应配置文件中的 log 字段
type UserLogConfig struct {
	Level    *string `json:"level,omitempty" yaml:"level,omitempty"`         // 日志级别
	FilePath *string `json:"file_path,omitempty" yaml:"file_path,omitempty"` // 日志文件路径
}

// UserAPIConfig 用户诊断 API 配置
// 对应配置文件中的 api 字段
type UserAPIConfig struct {
	Enabled *bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"` // 是否启用 HTTP 诊断接口
	Listen  *string `json:"listen,omitempty" yaml:"listen,omitempty"`   // 监听地址，如"127.0.0.1:8941"
}
