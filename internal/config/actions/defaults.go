package actions

import (
	"time"

	"github.com/visionclip/memfuse/pkg/types"
)

// 缓解动作默认值
const (
	// defaultMaxRetries 单个动作的重试预算
	// 原因：动作失败多数源于瞬态竞争，两次重试后仍无效
	// 说明问题不在执行层面，应交给升级链处理
	defaultMaxRetries = 2

	// defaultRecordInterval 验证期间的内存记录间隔
	defaultRecordInterval = 500 * time.Millisecond
)

// defaultCatalog 内置动作目录
//
// ExpectedReductionMB 是各动作在4GB量级进程上的经验释放量，
// 验证器以它为基准判定动作是否生效。ImpactWeight 决定调度顺序，
// EscalationTarget 构成失败升级链，终点是 kill_process。
var defaultCatalog = []types.MitigationAction{
	{
		Name:                "reduce_log_verbosity",
		ImpactWeight:        0.1,
		ExpectedReductionMB: 20,
		MaxExecTime:         2 * time.Second,
		RetryBudget:         defaultMaxRetries,
		EscalationTarget:    "clear_cache",
	},
	{
		Name:                "clear_cache",
		ImpactWeight:        0.2,
		ExpectedReductionMB: 300,
		MaxExecTime:         10 * time.Second,
		RetryBudget:         defaultMaxRetries,
		EscalationTarget:    "force_gc",
	},
	{
		Name:                "force_gc",
		ImpactWeight:        0.3,
		ExpectedReductionMB: 150,
		MaxExecTime:         5 * time.Second,
		RetryBudget:         defaultMaxRetries,
		EscalationTarget:    "release_resources",
	},
	{
		Name:                "reduce_cache_size",
		ImpactWeight:        0.35,
		ExpectedReductionMB: 200,
		MaxExecTime:         10 * time.Second,
		RetryBudget:         defaultMaxRetries,
		EscalationTarget:    "clear_cache",
	},
	{
		Name:                "degrade_quality",
		ImpactWeight:        0.4,
		ExpectedReductionMB: 150,
		MaxExecTime:         5 * time.Second,
		RetryBudget:         defaultMaxRetries,
		EscalationTarget:    "release_resources",
	},
	{
		Name:                "disable_features",
		ImpactWeight:        0.45,
		ExpectedReductionMB: 120,
		MaxExecTime:         5 * time.Second,
		RetryBudget:         defaultMaxRetries,
		EscalationTarget:    "release_resources",
	},
	{
		Name:                "pause_background",
		ImpactWeight:        0.5,
		ExpectedReductionMB: 100,
		MaxExecTime:         5 * time.Second,
		RetryBudget:         defaultMaxRetries,
		EscalationTarget:    "release_resources",
	},
	{
		Name:                "switch_to_lightweight_models",
		ImpactWeight:        0.55,
		ExpectedReductionMB: 800,
		MaxExecTime:         20 * time.Second,
		RetryBudget:         defaultMaxRetries,
		EscalationTarget:    "unload_model",
	},
	{
		Name:                "release_resources",
		ImpactWeight:        0.6,
		ExpectedReductionMB: 500,
		MaxExecTime:         15 * time.Second,
		RetryBudget:         defaultMaxRetries,
		EscalationTarget:    "unload_model",
	},
	{
		Name:                "unload_model",
		ImpactWeight:        0.8,
		ExpectedReductionMB: 2000,
		MaxExecTime:         30 * time.Second,
		RetryBudget:         defaultMaxRetries,
		EscalationTarget:    "kill_process",
	},
	{
		Name:                "activate_survival_mode",
		ImpactWeight:        0.85,
		ExpectedReductionMB: 500,
		MaxExecTime:         30 * time.Second,
		RetryBudget:         defaultMaxRetries,
		EscalationTarget:    "kill_largest_process",
	},
	{
		Name:                "kill_largest_process",
		ImpactWeight:        0.9,
		ExpectedReductionMB: 1000,
		MaxExecTime:         10 * time.Second,
		RetryBudget:         0, // 误杀不可逆，不重试
		EscalationTarget:    "kill_process",
	},
	{
		Name:                "kill_process",
		ImpactWeight:        1.0,
		ExpectedReductionMB: 1500,
		MaxExecTime:         10 * time.Second,
		RetryBudget:         0, // 终极动作不重试，失败直接告警
		EscalationTarget:    "",
	},
}

// 动作处理器参数默认值
const (
	// defaultTempFileMaxAge 清理临时文件时只删除超过该时长未改动的文件
	defaultTempFileMaxAge = 24 * time.Hour

	// defaultGCRunTimes 强制GC的执行轮数
	// 两轮可以回收第一轮中finalizer复活的对象
	defaultGCRunTimes = 2

	// defaultGCAggressive 默认执行FreeOSMemory把空闲页还给操作系统
	defaultGCAggressive = true

	// defaultSubtitleKeepSegments 字幕索引增量释放时保留的最近分段数
	defaultSubtitleKeepSegments = 5

	// 画质降级的目标档位
	defaultDegradeRenderQuality     = "low"
	defaultDegradePreviewResolution = "720p"
	defaultDegradePlaybackQuality   = "proxy"

	// defaultKillMaxMemoryPercent 只有内存占比超过该值的外部进程才会被终止
	defaultKillMaxMemoryPercent = 20.0
)

// defaultTempDirectories 临时文件清理目录
var defaultTempDirectories = []string{"tmp", "cache/render_tmp"}

// defaultTempFilePatterns 临时文件匹配模式
var defaultTempFilePatterns = []string{"*.tmp", "*.part", "*.swp"}

// defaultDisabledFeatures 内存紧张时关停的非核心功能
var defaultDisabledFeatures = []string{"auto_preview", "waveform_render", "thumbnail_refresh"}

// defaultDisableReleaseTypes 随功能关停一并释放的资源类型
var defaultDisableReleaseTypes = []types.ResourceType{types.ResourceAudioCache, types.ResourceTempBuffer}

// defaultKillExcludeProcesses 永不终止的进程名
var defaultKillExcludeProcesses = []string{"memfuse", "system"}

// defaultLevelActions 各熔断级别触发的动作集合
var defaultLevelActions = map[types.FuseLevel][]string{
	types.FuseLevelWarning:   {"reduce_log_verbosity", "clear_cache", "reduce_cache_size"},
	types.FuseLevelCritical:  {"force_gc", "pause_background", "degrade_quality", "disable_features", "release_resources"},
	types.FuseLevelEmergency: {"switch_to_lightweight_models", "unload_model", "activate_survival_mode", "kill_largest_process", "kill_process"},
}
