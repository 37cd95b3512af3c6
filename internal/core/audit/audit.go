// Package audit 熔断事件审计日志
//
// 所有组件的生命周期事件都经由这里落入可插拔的存储后端：
// 有界内存环、JSONL 追加文件或 BadgerDB。事件携带记录时刻
// 的内存快照，start/end 配对事件通过 related_ids 关联，
// 供分析器推导动作耗时与熔断效率。
package audit

import (
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/visionclip/memfuse/pkg/interfaces/governor"
	"github.com/visionclip/memfuse/pkg/interfaces/storage"
	"github.com/visionclip/memfuse/pkg/types"
)

// TopicEventRecorded 事件落盘后在总线上发布，参数为 (*types.FuseEvent)
const TopicEventRecorded = "audit:event_recorded"

// traceMark 配对事件在 details 中的标记键
const traceMark = "trace"

// FuseAudit 熔断审计日志
type FuseAudit struct {
	store   storage.EventStorage
	sampler governor.Sampler
	bus     EventBus.Bus
	logger  *zap.Logger

	mu         sync.Mutex
	openTraces map[string][]string // kind → 未配对的开始事件ID栈
}

// NewFuseAudit 创建审计日志
// sampler 可为 nil，此时事件不携带内存快照
func NewFuseAudit(store storage.EventStorage, sampler governor.Sampler, bus EventBus.Bus, logger *zap.Logger) *FuseAudit {
	return &FuseAudit{
		store:      store,
		sampler:    sampler,
		bus:        bus,
		logger:     logger,
		openTraces: make(map[string][]string),
	}
}

// Record 记录一个事件，返回已存储的事件
//
// 存储失败只记日志不向上抛：审计不可用不能阻断熔断链路。
func (a *FuseAudit) Record(eventType types.FuseEventType, details map[string]interface{}, relatedIDs ...string) *types.FuseEvent {
	event := &types.FuseEvent{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		Timestamp:  time.Now(),
		Details:    details,
		RelatedIDs: append([]string(nil), relatedIDs...),
	}

	if a.sampler != nil {
		if usage, err := a.sampler.Usage(); err == nil {
			event.MemoryUsage = usage
		}
	}

	if err := a.store.StoreEvent(event); err != nil {
		if a.logger != nil {
			a.logger.Error("审计事件存储失败",
				zap.String("event_type", string(eventType)),
				zap.Error(err))
		}
		return event
	}

	if a.logger != nil {
		a.logger.Debug("audit_event",
			zap.String("event_id", event.EventID),
			zap.String("event_type", string(eventType)))
	}

	if a.bus != nil {
		a.bus.Publish(TopicEventRecorded, event)
	}

	return event
}

// StartTrace 记录配对跟踪的开始事件，返回事件ID
func (a *FuseAudit) StartTrace(eventType types.FuseEventType, kind string, details map[string]interface{}) string {
	merged := mergeDetails(details, map[string]interface{}{
		traceMark: "start",
		"kind":    kind,
	})

	event := a.Record(eventType, merged)

	a.mu.Lock()
	a.openTraces[kind] = append(a.openTraces[kind], event.EventID)
	a.mu.Unlock()

	return event.EventID
}

// EndTrace 记录配对跟踪的结束事件
// 自动关联同 kind 最近一次未配对的开始事件，并写入耗时
func (a *FuseAudit) EndTrace(eventType types.FuseEventType, kind string, details map[string]interface{}) *types.FuseEvent {
	a.mu.Lock()
	var startID string
	if stack := a.openTraces[kind]; len(stack) > 0 {
		startID = stack[len(stack)-1]
		a.openTraces[kind] = stack[:len(stack)-1]
	}
	a.mu.Unlock()

	merged := mergeDetails(details, map[string]interface{}{
		traceMark: "end",
		"kind":    kind,
	})

	if startID == "" {
		return a.Record(eventType, merged)
	}

	if start, err := a.store.GetEvent(startID); err == nil && start != nil {
		merged["elapsed_ms"] = time.Since(start.Timestamp).Milliseconds()
	}

	return a.Record(eventType, merged, startID)
}

// Get 按 ID 查询事件
func (a *FuseAudit) Get(eventID string) (*types.FuseEvent, error) {
	return a.store.GetEvent(eventID)
}

// Query 按条件查询事件，结果按时间从新到旧排序
func (a *FuseAudit) Query(filter types.EventFilter, timeRange types.TimeRange, limit int) ([]*types.FuseEvent, error) {
	return a.store.QueryEvents(filter, timeRange, limit)
}

// Close 关闭底层存储
func (a *FuseAudit) Close() error {
	return a.store.Close()
}

// mergeDetails 合并细节字段，extra 覆盖同名键
func mergeDetails(details, extra map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(details)+len(extra))
	for k, v := range details {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
