package fuse

import (
	"time"

	configtypes "github.com/visionclip/memfuse/pkg/types"
)

// FuseOptions 熔断器配置选项
type FuseOptions struct {
	// === 触发阈值（内存使用率百分比，按级别递增） ===
	Thresholds map[configtypes.FuseLevel]float64 `json:"thresholds"`

	// === 级别迁移配置 ===
	CheckInterval        time.Duration `json:"check_interval"`         // 熔断评估间隔
	StabilizeWindow      time.Duration `json:"stabilize_window"`       // 升级后的稳定窗口
	RecoveryThreshold    float64       `json:"recovery_threshold"`     // 降级阈值
	RecoveryCooldown     time.Duration `json:"recovery_cooldown"`      // 降级最小间隔
	StepRecovery         bool          `json:"step_recovery"`          // 是否逐级降级
	ExecuteSkippedLevels bool          `json:"execute_skipped_levels"` // 跨级跃升时是否补执行

	// === 历史配置 ===
	HistoryCapacity int `json:"history_capacity"` // 触发历史保留条数
}

// Config 熔断器配置实现
type Config struct {
	options *FuseOptions
}

// New 创建熔断器配置实现
func New(userConfig interface{}) *Config {
	defaultOptions := createDefaultFuseOptions()

	if userConfig != nil {
		applyUserFuseConfig(defaultOptions, userConfig)
	}

	return &Config{
		options: defaultOptions,
	}
}

// createDefaultFuseOptions 创建默认熔断配置
func createDefaultFuseOptions() *FuseOptions {
	return &FuseOptions{
		Thresholds: map[configtypes.FuseLevel]float64{
			configtypes.FuseLevelWarning:   defaultWarningThreshold,
			configtypes.FuseLevelCritical:  defaultCriticalThreshold,
			configtypes.FuseLevelEmergency: defaultEmergencyThreshold,
		},
		CheckInterval:        defaultCheckInterval,
		StabilizeWindow:      defaultStabilizeWindow,
		RecoveryThreshold:    defaultRecoveryThreshold,
		RecoveryCooldown:     defaultRecoveryCooldown,
		StepRecovery:         defaultStepRecovery,
		ExecuteSkippedLevels: defaultExecuteSkippedLevels,
		HistoryCapacity:      defaultHistoryCapacity,
	}
}

// applyUserFuseConfig 应用用户熔断配置覆盖默认值
func applyUserFuseConfig(options *FuseOptions, userConfig interface{}) {
	fuseConfig, ok := userConfig.(*configtypes.UserFuseConfig)
	if !ok || fuseConfig == nil {
		return
	}

	// 阈值按级别名逐项覆盖，未提及的级别保持默认
	for name, value := range fuseConfig.Thresholds {
		if level, err := configtypes.ParseFuseLevel(name); err == nil && level != configtypes.FuseLevelNormal {
			options.Thresholds[level] = value
		}
	}

	if fuseConfig.CheckInterval != nil {
		if d, err := time.ParseDuration(*fuseConfig.CheckInterval); err == nil && d > 0 {
			options.CheckInterval = d
		}
	}
	if fuseConfig.StabilizeWindow != nil {
		if d, err := time.ParseDuration(*fuseConfig.StabilizeWindow); err == nil && d >= 0 {
			options.StabilizeWindow = d
		}
	}
	if fuseConfig.RecoveryThreshold != nil {
		options.RecoveryThreshold = *fuseConfig.RecoveryThreshold
	}
	if fuseConfig.RecoveryCooldown != nil {
		if d, err := time.ParseDuration(*fuseConfig.RecoveryCooldown); err == nil && d >= 0 {
			options.RecoveryCooldown = d
		}
	}
	if fuseConfig.StepRecovery != nil {
		options.StepRecovery = *fuseConfig.StepRecovery
	}
	if fuseConfig.ExecuteSkippedLevels != nil {
		options.ExecuteSkippedLevels = *fuseConfig.ExecuteSkippedLevels
	}
	if fuseConfig.HistoryCapacity != nil && *fuseConfig.HistoryCapacity > 0 {
		options.HistoryCapacity = *fuseConfig.HistoryCapacity
	}
}

// GetOptions 获取完整的熔断配置选项
func (c *Config) GetOptions() *FuseOptions {
	return c.options
}

// ThresholdFor 获取指定级别的触发阈值，正常级别返回0
func (c *Config) ThresholdFor(level configtypes.FuseLevel) float64 {
	return c.options.Thresholds[level]
}
