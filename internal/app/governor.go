package app

import (
	"context"

	"github.com/visionclip/memfuse/internal/core/audit"
	"github.com/visionclip/memfuse/internal/core/fuse"
	"github.com/visionclip/memfuse/internal/core/kb"
	"github.com/visionclip/memfuse/internal/core/monitor"
	"github.com/visionclip/memfuse/internal/core/recovery"
	"github.com/visionclip/memfuse/internal/core/registry"
	"github.com/visionclip/memfuse/pkg/interfaces/governor"
	"github.com/visionclip/memfuse/pkg/types"
)

// Governor 熔断器对外门面
//
// 宿主进程嵌入熔断器时的唯一入口：注册资源与定制策略、
// 查询状态与事件、手工触发熔断、按需诊断。
type Governor struct {
	controller  *fuse.FuseController
	monitor     *monitor.PressureMonitor
	registry    *registry.ResourceRegistry
	coordinator *recovery.RecoveryCoordinator
	audit       *audit.FuseAudit
	kb          *kb.KnowledgeBase
}

// Status 返回熔断器当前状态汇总
func (g *Governor) Status() fuse.Status {
	return g.controller.GetStatus()
}

// CurrentLevel 返回当前熔断级别
func (g *Governor) CurrentLevel() types.FuseLevel {
	return g.controller.CurrentLevel()
}

// ForceTrigger 手工触发指定级别的熔断
// testMode 只记录审计事件不执行动作
func (g *Governor) ForceTrigger(ctx context.Context, level types.FuseLevel, testMode bool) (bool, error) {
	return g.controller.ForceTrigger(ctx, level, testMode)
}

// ActionHistory 返回动作执行历史
func (g *Governor) ActionHistory() []types.ActionRecord {
	return g.controller.ActionHistory()
}

// RegisterAction 注册自定义缓解动作并挂到指定级别
func (g *Governor) RegisterAction(action types.MitigationAction, handler governor.ActionHandler, level types.FuseLevel) error {
	return g.controller.RegisterAction(action, handler, level)
}

// UnregisterAction 注销缓解动作
func (g *Governor) UnregisterAction(name string) error {
	return g.controller.UnregisterAction(name)
}

// RegisterResource 登记一个可释放资源
func (g *Governor) RegisterResource(id string, payload interface{}, metadata types.ResourceMetadata, dependencies ...string) {
	g.registry.Register(id, payload, metadata, dependencies...)
}

// ReleaseResource 手工释放单个资源，返回估算释放量（MB）
func (g *Governor) ReleaseResource(ctx context.Context, id string) (float64, error) {
	return g.registry.Release(ctx, id)
}

// RegisterReleaser 为资源类型注册定制释放策略
func (g *Governor) RegisterReleaser(resourceType types.ResourceType, releaser governor.Releaser) {
	g.registry.RegisterReleaser(resourceType, releaser)
}

// RegisterRestorer 为资源类型注册熔断后的恢复策略
func (g *Governor) RegisterRestorer(resourceType types.ResourceType, restorer governor.Restorer) {
	g.coordinator.RegisterRestorer(resourceType, restorer)
}

// Resources 返回全部注册资源的快照
func (g *Governor) Resources() []*types.ResourceSnapshot {
	return g.registry.SnapshotAll()
}

// ResourceStats 返回累计释放统计
func (g *Governor) ResourceStats() types.ReleaseStats {
	return g.registry.Stats()
}

// RecordEvent 写入一条自定义审计事件
func (g *Governor) RecordEvent(details map[string]interface{}, relatedIDs ...string) *types.FuseEvent {
	return g.audit.Record(types.EventCustom, details, relatedIDs...)
}

// QueryEvents 查询审计事件
func (g *Governor) QueryEvents(filter types.EventFilter, timeRange types.TimeRange, limit int) ([]*types.FuseEvent, error) {
	return g.audit.Query(filter, timeRange, limit)
}

// Diagnose 基于当前采样历史做一次诊断
func (g *Governor) Diagnose(runContext map[string]string) *types.DiagnosisReport {
	history := g.monitor.History()
	series := make([]float64, len(history))
	for i, sample := range history {
		series[i] = sample.UsagePercent
	}
	return g.kb.Diagnose(series, runContext)
}

// Learn 向知识库学习一个新案例
func (g *Governor) Learn(newCase types.DiagnosisCase) (types.DiagnosisCase, error) {
	return g.kb.Learn(newCase)
}

// ExportCases 导出知识库案例到JSON文件
func (g *Governor) ExportCases(path string) error {
	return g.kb.Export(path)
}

// ImportCases 从JSON文件导入知识库案例
func (g *Governor) ImportCases(path string) (int, error) {
	return g.kb.Import(path)
}
