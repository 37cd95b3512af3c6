package types

import "time"

// FuseEventType 熔断事件类型
type FuseEventType string

const (
	EventFuseTriggered     FuseEventType = "fuse_triggered"      // 熔断触发
	EventFuseCompleted     FuseEventType = "fuse_completed"      // 熔断完成
	EventResourceReleased  FuseEventType = "resource_released"   // 资源释放
	EventRecoveryStarted   FuseEventType = "recovery_started"    // 恢复开始
	EventRecoveryCompleted FuseEventType = "recovery_completed"  // 恢复完成
	EventValidationResult  FuseEventType = "validation_result"   // 验证结果
	EventMemorySnapshot    FuseEventType = "memory_snapshot"     // 内存快照
	EventGCPerformed       FuseEventType = "gc_performed"        // 执行GC
	EventErrorOccurred     FuseEventType = "error_occurred"      // 发生错误
	EventSystemStateChange FuseEventType = "system_state_change" // 系统状态变化
	EventDiagnosisDone     FuseEventType = "diagnosis_completed" // 周期诊断完成
	EventCustom            FuseEventType = "custom_event"        // 自定义事件
)

// MemoryUsage 事件记录时的内存使用快照
type MemoryUsage struct {
	TotalMB     float64 `json:"total_mb"`     // 系统总内存（MB）
	UsedPercent float64 `json:"used_percent"` // 系统内存使用率（%）
	ProcessRSS  float64 `json:"process_rss"`  // 进程物理内存（MB）
}

// FuseEvent 熔断审计事件
// 一经存储即不可变；RelatedIDs 用于关联开始/完成事件对以及因果链
type FuseEvent struct {
	EventID     string                 `json:"event_id"`
	EventType   FuseEventType          `json:"event_type"`
	Timestamp   time.Time              `json:"timestamp"`
	MemoryUsage MemoryUsage            `json:"memory_usage"`
	Details     map[string]interface{} `json:"details"`
	RelatedIDs  []string               `json:"related_ids"`
}

// Clone 返回事件的深拷贝，保证存储后的事件不被调用方修改
func (e *FuseEvent) Clone() *FuseEvent {
	cp := *e
	if e.Details != nil {
		cp.Details = make(map[string]interface{}, len(e.Details))
		for k, v := range e.Details {
			cp.Details[k] = v
		}
	}
	if e.RelatedIDs != nil {
		cp.RelatedIDs = append([]string(nil), e.RelatedIDs...)
	}
	return &cp
}

// EventFilter 事件查询过滤条件
type EventFilter struct {
	EventType FuseEventType          // 事件类型，空值表示不过滤
	Details   map[string]interface{} // details 子字段精确匹配
}

// TimeRange 时间窗口，零值表示不限制
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains 判断时间点是否落在窗口内
func (r TimeRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}
