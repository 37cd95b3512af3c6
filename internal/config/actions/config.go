package actions

import (
	"time"

	configtypes "github.com/visionclip/memfuse/pkg/types"
)

// ActionsOptions 缓解动作配置选项
type ActionsOptions struct {
	// Catalog 动作目录，启动时载入
	Catalog []configtypes.MitigationAction `json:"catalog"`

	// LevelActions 各级别触发的动作集合
	LevelActions map[configtypes.FuseLevel][]string `json:"level_actions"`

	// RecordInterval 验证期间的内存记录间隔
	RecordInterval time.Duration `json:"record_interval"`

	// HandlerParams 内置动作处理器参数
	HandlerParams HandlerParams `json:"handler_params"`
}

// HandlerParams 内置动作处理器参数
type HandlerParams struct {
	// ClearCache 临时文件清理参数
	ClearCache ClearCacheParams `json:"clear_cache"`

	// ForceGC 强制垃圾回收参数
	ForceGC ForceGCParams `json:"force_gc"`

	// DegradeQuality 画质降级的目标档位
	DegradeQuality DegradeQualityParams `json:"degrade_quality"`

	// DisableFeatures 非核心功能关停参数
	DisableFeatures DisableFeaturesParams `json:"disable_features"`

	// KillLargestProcess 外部大户进程终止参数
	KillLargestProcess KillLargestProcessParams `json:"kill_largest_process"`

	// SubtitleKeepSegments 字幕索引增量释放保留的分段数
	SubtitleKeepSegments int `json:"subtitle_keep_segments"`
}

// ClearCacheParams 临时文件清理参数
type ClearCacheParams struct {
	Directories  []string      `json:"directories"`   // 清理目录
	FilePatterns []string      `json:"file_patterns"` // 文件匹配模式
	MaxFileAge   time.Duration `json:"max_file_age"`  // 只清理超龄文件
}

// ForceGCParams 强制垃圾回收参数
type ForceGCParams struct {
	Aggressive bool `json:"aggressive"` // 是否执行FreeOSMemory
	RunTimes   int  `json:"run_times"`  // GC执行轮数
}

// DegradeQualityParams 画质降级的目标档位
type DegradeQualityParams struct {
	RenderQuality     string `json:"render_quality"`     // 渲染质量档位
	PreviewResolution string `json:"preview_resolution"` // 预览分辨率
	PlaybackQuality   string `json:"playback_quality"`   // 回放质量档位
}

// DisableFeaturesParams 非核心功能关停参数
type DisableFeaturesParams struct {
	Features     []string                   `json:"features"`      // 关停的功能开关
	ReleaseTypes []configtypes.ResourceType `json:"release_types"` // 随功能一并释放的资源类型
}

// KillLargestProcessParams 外部大户进程终止参数
type KillLargestProcessParams struct {
	ExcludeProcesses []string `json:"exclude_processes"`  // 按进程名排除，永不终止
	MaxMemoryPercent float64  `json:"max_memory_percent"` // 只有内存占比超过该值的进程才是候选
}

// Config 缓解动作配置实现
type Config struct {
	options *ActionsOptions
}

// New 创建缓解动作配置实现
func New(userConfig interface{}) *Config {
	defaultOptions := createDefaultActionsOptions()

	if userConfig != nil {
		applyUserActionsConfig(defaultOptions, userConfig)
	}

	return &Config{
		options: defaultOptions,
	}
}

// createDefaultActionsOptions 创建默认动作配置
func createDefaultActionsOptions() *ActionsOptions {
	// 深拷贝内置目录，避免用户覆盖污染包级默认值
	catalog := make([]configtypes.MitigationAction, len(defaultCatalog))
	copy(catalog, defaultCatalog)

	levelActions := make(map[configtypes.FuseLevel][]string, len(defaultLevelActions))
	for level, names := range defaultLevelActions {
		levelActions[level] = append([]string(nil), names...)
	}

	return &ActionsOptions{
		Catalog:        catalog,
		LevelActions:   levelActions,
		RecordInterval: defaultRecordInterval,
		HandlerParams: HandlerParams{
			ClearCache: ClearCacheParams{
				Directories:  append([]string(nil), defaultTempDirectories...),
				FilePatterns: append([]string(nil), defaultTempFilePatterns...),
				MaxFileAge:   defaultTempFileMaxAge,
			},
			ForceGC: ForceGCParams{
				Aggressive: defaultGCAggressive,
				RunTimes:   defaultGCRunTimes,
			},
			DegradeQuality: DegradeQualityParams{
				RenderQuality:     defaultDegradeRenderQuality,
				PreviewResolution: defaultDegradePreviewResolution,
				PlaybackQuality:   defaultDegradePlaybackQuality,
			},
			DisableFeatures: DisableFeaturesParams{
				Features:     append([]string(nil), defaultDisabledFeatures...),
				ReleaseTypes: append([]configtypes.ResourceType(nil), defaultDisableReleaseTypes...),
			},
			KillLargestProcess: KillLargestProcessParams{
				ExcludeProcesses: append([]string(nil), defaultKillExcludeProcesses...),
				MaxMemoryPercent: defaultKillMaxMemoryPercent,
			},
			SubtitleKeepSegments: defaultSubtitleKeepSegments,
		},
	}
}

// applyUserActionsConfig 应用用户动作配置覆盖默认值
func applyUserActionsConfig(options *ActionsOptions, userConfig interface{}) {
	actionsConfig, ok := userConfig.(*configtypes.UserActionsConfig)
	if !ok || actionsConfig == nil {
		return
	}

	// 按级别覆盖动作集合，未提及的级别保持默认
	for name, actionNames := range actionsConfig.LevelActions {
		if level, err := configtypes.ParseFuseLevel(name); err == nil && level != configtypes.FuseLevelNormal {
			options.LevelActions[level] = append([]string(nil), actionNames...)
		}
	}

	if actionsConfig.MaxRetries != nil && *actionsConfig.MaxRetries >= 0 {
		for i := range options.Catalog {
			// 进程终止类动作的零重试预算不受全局覆盖影响
			if options.Catalog[i].Name == "kill_process" || options.Catalog[i].Name == "kill_largest_process" {
				continue
			}
			options.Catalog[i].RetryBudget = *actionsConfig.MaxRetries
		}
	}

	if actionsConfig.RecordInterval != nil {
		if d, err := time.ParseDuration(*actionsConfig.RecordInterval); err == nil && d > 0 {
			options.RecordInterval = d
		}
	}

	// 按动作名校准预期释放量
	for name, reduction := range actionsConfig.Overrides {
		for i := range options.Catalog {
			if options.Catalog[i].Name == name && reduction > 0 {
				options.Catalog[i].ExpectedReductionMB = reduction
			}
		}
	}
}

// GetOptions 获取完整的动作配置选项
func (c *Config) GetOptions() *ActionsOptions {
	return c.options
}

// Lookup 按名称查找动作，未找到时返回 (zero, false)
func (c *Config) Lookup(name string) (configtypes.MitigationAction, bool) {
	for _, action := range c.options.Catalog {
		if action.Name == name {
			return action, true
		}
	}
	return configtypes.MitigationAction{}, false
}
