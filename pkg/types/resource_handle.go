package types

import "time"

// ResourceType 资源类型标签，用于选择类型专属的释放/恢复策略
type ResourceType string

const (
	ResourceModelShard    ResourceType = "model-shard"    // 模型分片
	ResourceModelWeights  ResourceType = "model-weights"  // 模型权重
	ResourceRenderCache   ResourceType = "render-cache"   // 渲染缓存
	ResourceTempBuffer    ResourceType = "temp-buffer"    // 临时缓冲区
	ResourceAudioCache    ResourceType = "audio-cache"    // 音频缓存
	ResourceSubtitleIndex ResourceType = "subtitle-index" // 字幕索引
	ResourceGeneric       ResourceType = "generic"        // 未识别类型，走通用释放
)

// ResourceMetadata 资源元数据
// Pinned 资源拒绝释放；SizeMB 用于估算释放量统计
type ResourceMetadata struct {
	Type        ResourceType           `json:"type"`
	SizeMB      float64                `json:"size_mb"`
	Pinned      bool                   `json:"pinned"`
	Incremental bool                   `json:"incremental"` // subtitle-index 增量释放开关
	PersistPath string                 `json:"persist_path,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// ResourceSnapshot 资源状态快照，用于熔断后恢复
// 与其来源句柄生命周期独立，可序列化落盘
type ResourceSnapshot struct {
	ResourceID   string                 `json:"resource_id"`
	ResourceType ResourceType           `json:"resource_type"`
	Metadata     map[string]interface{} `json:"metadata"`
	Dependencies []string               `json:"dependency_ids"`
	CreatedAt    time.Time              `json:"creation_timestamp"`
}

// ReleaseStats 资源释放统计
type ReleaseStats struct {
	TotalReleased    int                  `json:"total_released"`
	ByType           map[ResourceType]int `json:"by_type"`
	EstimatedFreedMB float64              `json:"estimated_mb_freed"`
}
