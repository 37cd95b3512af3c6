// Package registry 资源注册与回收
//
// 注册表是所有可释放资源活引用的唯一持有者。资源带类型标签注册，
// 熔断时按类型选择专属释放策略，释放结果计入统计并写入审计日志。
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/visionclip/memfuse/internal/core/audit"
	"github.com/visionclip/memfuse/pkg/interfaces/governor"
	"github.com/visionclip/memfuse/pkg/types"
)

// Resource 已注册的资源条目
type Resource struct {
	ID           string
	Type         types.ResourceType
	Payload      interface{}
	Metadata     types.ResourceMetadata
	Dependencies []string
	CreatedAt    time.Time
}

// Snapshot 生成与句柄生命周期无关的资源快照
func (r *Resource) Snapshot() *types.ResourceSnapshot {
	meta := map[string]interface{}{
		"size_mb":     r.Metadata.SizeMB,
		"pinned":      r.Metadata.Pinned,
		"incremental": r.Metadata.Incremental,
	}
	if r.Metadata.PersistPath != "" {
		meta["persist_path"] = r.Metadata.PersistPath
	}
	for k, v := range r.Metadata.Extra {
		meta[k] = v
	}

	return &types.ResourceSnapshot{
		ResourceID:   r.ID,
		ResourceType: r.Type,
		Metadata:     meta,
		Dependencies: append([]string(nil), r.Dependencies...),
		CreatedAt:    r.CreatedAt,
	}
}

// ResourceRegistry 资源注册表
type ResourceRegistry struct {
	mu        sync.Mutex
	resources map[string]*Resource
	order     []string // 注册顺序，恢复快照依赖它
	stats     types.ReleaseStats

	custom map[types.ResourceType]governor.Releaser

	subtitleKeep int
	auditLog     *audit.FuseAudit
	logger       *zap.Logger
}

// NewResourceRegistry 创建资源注册表
// auditLog 可为 nil（测试场景），此时释放不写审计事件
func NewResourceRegistry(subtitleKeep int, auditLog *audit.FuseAudit, logger *zap.Logger) *ResourceRegistry {
	if subtitleKeep <= 0 {
		subtitleKeep = 5
	}
	return &ResourceRegistry{
		resources: make(map[string]*Resource),
		stats: types.ReleaseStats{
			ByType: make(map[types.ResourceType]int),
		},
		custom:       make(map[types.ResourceType]governor.Releaser),
		subtitleKeep: subtitleKeep,
		auditLog:     auditLog,
		logger:       logger,
	}
}

// Register 注册资源
// 重复注册同一 ID 直接覆盖旧条目，注册顺序保持首次注册的位置
func (r *ResourceRegistry) Register(id string, payload interface{}, metadata types.ResourceMetadata, dependencies ...string) {
	if metadata.Type == "" {
		metadata.Type = types.ResourceGeneric
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.resources[id]
	r.resources[id] = &Resource{
		ID:           id,
		Type:         metadata.Type,
		Payload:      payload,
		Metadata:     metadata,
		Dependencies: append([]string(nil), dependencies...),
		CreatedAt:    time.Now(),
	}
	if !exists {
		r.order = append(r.order, id)
	}

	if r.logger != nil {
		r.logger.Debug("资源已注册",
			zap.String("resource_id", id),
			zap.String("type", string(metadata.Type)),
			zap.Float64("size_mb", metadata.SizeMB))
	}
}

// RegisterReleaser 为资源类型注册自定义释放策略，覆盖内置策略
func (r *ResourceRegistry) RegisterReleaser(resourceType types.ResourceType, releaser governor.Releaser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom[resourceType] = releaser
}

// Get 按 ID 查询资源，不存在时返回 (nil, false)
func (r *ResourceRegistry) Get(id string) (*Resource, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.resources[id]
	return res, ok
}

// Release 释放指定资源，返回估算释放量（MB）
//
// 未注册的 ID 和 pinned 资源都视为失败且不产生任何副作用。
// 无论成败每次调用都落一条审计事件；统计只在成功时更新。
func (r *ResourceRegistry) Release(ctx context.Context, id string) (float64, error) {
	r.mu.Lock()
	res, ok := r.resources[id]
	if !ok {
		r.mu.Unlock()
		err := fmt.Errorf("资源未注册: %q", id)
		r.recordRelease(id, "", 0, err)
		return 0, err
	}
	if res.Metadata.Pinned {
		r.mu.Unlock()
		err := fmt.Errorf("资源已固定，拒绝释放: %q", id)
		r.recordRelease(id, res.Type, 0, err)
		return 0, err
	}

	releaser := r.custom[res.Type]
	r.mu.Unlock()

	freed, remove, err := r.releaseOne(ctx, res, releaser)

	if err == nil {
		r.mu.Lock()
		if remove {
			r.remove(id)
		}
		r.stats.TotalReleased++
		r.stats.ByType[res.Type]++
		r.stats.EstimatedFreedMB += freed
		r.mu.Unlock()
	}

	r.recordRelease(id, res.Type, freed, err)
	return freed, err
}

// ReleaseUnpinned 释放所有未固定的资源，按注册顺序逐个尝试
// 单个资源失败不中断后续释放，返回累计释放量与成功数
func (r *ResourceRegistry) ReleaseUnpinned(ctx context.Context) (float64, int) {
	r.mu.Lock()
	candidates := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if res, ok := r.resources[id]; ok && !res.Metadata.Pinned {
			candidates = append(candidates, id)
		}
	}
	r.mu.Unlock()

	var totalFreed float64
	released := 0
	for _, id := range candidates {
		freed, err := r.Release(ctx, id)
		if err != nil {
			continue
		}
		totalFreed += freed
		released++
	}
	return totalFreed, released
}

// ReleaseByType 释放指定类型的全部未固定资源
func (r *ResourceRegistry) ReleaseByType(ctx context.Context, resourceType types.ResourceType) (float64, int) {
	r.mu.Lock()
	candidates := make([]string, 0)
	for _, id := range r.order {
		if res, ok := r.resources[id]; ok && res.Type == resourceType && !res.Metadata.Pinned {
			candidates = append(candidates, id)
		}
	}
	r.mu.Unlock()

	var totalFreed float64
	released := 0
	for _, id := range candidates {
		freed, err := r.Release(ctx, id)
		if err != nil {
			continue
		}
		totalFreed += freed
		released++
	}
	return totalFreed, released
}

// releaseOne 执行单个资源的释放
// remove 表示释放后是否应从注册表移除（增量释放保留条目）
func (r *ResourceRegistry) releaseOne(ctx context.Context, res *Resource, custom governor.Releaser) (freed float64, remove bool, err error) {
	if custom != nil {
		freed, err = custom.Release(ctx, res.Snapshot())
		return freed, err == nil, err
	}
	return r.builtinRelease(ctx, res)
}

// remove 从注册表删除条目，调用方必须持有锁
func (r *ResourceRegistry) remove(id string) {
	delete(r.resources, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// recordRelease 为释放尝试写一条审计事件
func (r *ResourceRegistry) recordRelease(id string, resourceType types.ResourceType, freed float64, err error) {
	details := map[string]interface{}{
		"resource_id":   id,
		"resource_type": string(resourceType),
		"freed_mb":      freed,
		"success":       err == nil,
	}
	if err != nil {
		details["error"] = err.Error()
	}

	if r.auditLog != nil {
		r.auditLog.Record(types.EventResourceReleased, details)
	}
	if r.logger != nil {
		if err != nil {
			r.logger.Warn("资源释放失败",
				zap.String("resource_id", id),
				zap.Error(err))
		} else {
			r.logger.Info("资源已释放",
				zap.String("resource_id", id),
				zap.String("type", string(resourceType)),
				zap.Float64("freed_mb", freed))
		}
	}
}

// SnapshotAll 按注册顺序生成全部资源的快照，供恢复协调器使用
func (r *ResourceRegistry) SnapshotAll() []*types.ResourceSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshots := make([]*types.ResourceSnapshot, 0, len(r.order))
	for _, id := range r.order {
		if res, ok := r.resources[id]; ok {
			snapshots = append(snapshots, res.Snapshot())
		}
	}
	return snapshots
}

// Stats 返回释放统计的副本
func (r *ResourceRegistry) Stats() types.ReleaseStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	byType := make(map[types.ResourceType]int, len(r.stats.ByType))
	for k, v := range r.stats.ByType {
		byType[k] = v
	}
	return types.ReleaseStats{
		TotalReleased:    r.stats.TotalReleased,
		ByType:           byType,
		EstimatedFreedMB: r.stats.EstimatedFreedMB,
	}
}

// Len 返回当前注册的资源数
func (r *ResourceRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.resources)
}
