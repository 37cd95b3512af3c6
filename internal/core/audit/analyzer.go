package audit

import (
	"sort"
	"time"

	"github.com/visionclip/memfuse/pkg/interfaces/storage"
	"github.com/visionclip/memfuse/pkg/types"
)

// analyzeQueryLimit 分析单次查询的事件数上限
const analyzeQueryLimit = 5000

// TrendBucket 一段时间桶内的内存使用统计
type TrendBucket struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Samples    int       `json:"samples"`
	AvgPercent float64   `json:"avg_percent"`
	MaxPercent float64   `json:"max_percent"`
}

// ActionTiming 某类动作的执行耗时统计
type ActionTiming struct {
	Action string        `json:"action"`
	Count  int           `json:"count"`
	Total  time.Duration `json:"total"`
	Max    time.Duration `json:"max"`
	Avg    time.Duration `json:"avg"`
}

// FuseCycle 一次完整的熔断周期：触发 → 完成
type FuseCycle struct {
	TriggerID      string        `json:"trigger_id"`
	CompleteID     string        `json:"complete_id"`
	Level          string        `json:"level"`
	Duration       time.Duration `json:"duration"`
	MemoryBeforePc float64       `json:"memory_before_percent"`
	MemoryAfterPc  float64       `json:"memory_after_percent"`
	ReductionPc    float64       `json:"reduction_percent"`
}

// EfficiencyReport 熔断效率汇总
type EfficiencyReport struct {
	Cycles       []FuseCycle   `json:"cycles"`
	Triggered    int           `json:"triggered"`
	Completed    int           `json:"completed"`
	AvgDuration  time.Duration `json:"avg_duration"`
	AvgReduction float64       `json:"avg_reduction_percent"`
}

// RecoveryStatus 最近一次恢复流程的状态
type RecoveryStatus struct {
	InProgress  bool      `json:"in_progress"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
}

// Analyzer 审计事件分析器
// 只读地消费事件存储，从事件流还原趋势、耗时与熔断效率
type Analyzer struct {
	store storage.EventStorage
}

// NewAnalyzer 创建分析器
func NewAnalyzer(store storage.EventStorage) *Analyzer {
	return &Analyzer{store: store}
}

// MemoryTrend 把时间窗口内的事件内存快照聚合成 buckets 个时间桶
func (a *Analyzer) MemoryTrend(timeRange types.TimeRange, buckets int) ([]TrendBucket, error) {
	if buckets <= 0 {
		buckets = 10
	}

	events, err := a.store.QueryEvents(types.EventFilter{}, timeRange, analyzeQueryLimit)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	// 查询结果从新到旧，趋势按时间正序处理
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	start := events[0].Timestamp
	end := events[len(events)-1].Timestamp
	span := end.Sub(start)
	if span <= 0 {
		span = time.Second
	}
	width := span / time.Duration(buckets)
	if width <= 0 {
		width = time.Second
	}

	result := make([]TrendBucket, buckets)
	for i := range result {
		result[i].Start = start.Add(time.Duration(i) * width)
		result[i].End = result[i].Start.Add(width)
	}

	for _, event := range events {
		idx := int(event.Timestamp.Sub(start) / width)
		if idx >= buckets {
			idx = buckets - 1
		}
		b := &result[idx]
		b.Samples++
		b.AvgPercent += event.MemoryUsage.UsedPercent
		if event.MemoryUsage.UsedPercent > b.MaxPercent {
			b.MaxPercent = event.MemoryUsage.UsedPercent
		}
	}

	for i := range result {
		if result[i].Samples > 0 {
			result[i].AvgPercent /= float64(result[i].Samples)
		}
	}
	return result, nil
}

// ActionTimings 按动作名统计执行耗时
// 依据 validation_result 事件 details 中的 action 与 exec_time_ms 字段
func (a *Analyzer) ActionTimings(timeRange types.TimeRange) (map[string]*ActionTiming, error) {
	events, err := a.store.QueryEvents(types.EventFilter{EventType: types.EventValidationResult}, timeRange, analyzeQueryLimit)
	if err != nil {
		return nil, err
	}

	timings := make(map[string]*ActionTiming)
	for _, event := range events {
		name, ok := event.Details["action"].(string)
		if !ok || name == "" {
			continue
		}
		elapsed := detailDuration(event.Details, "exec_time_ms")

		t := timings[name]
		if t == nil {
			t = &ActionTiming{Action: name}
			timings[name] = t
		}
		t.Count++
		t.Total += elapsed
		if elapsed > t.Max {
			t.Max = elapsed
		}
	}

	for _, t := range timings {
		if t.Count > 0 {
			t.Avg = t.Total / time.Duration(t.Count)
		}
	}
	return timings, nil
}

// FuseEfficiency 配对 fuse_triggered / fuse_completed 事件，统计熔断效率
// 完成事件通过 related_ids 指向对应的触发事件
func (a *Analyzer) FuseEfficiency(timeRange types.TimeRange) (*EfficiencyReport, error) {
	triggered, err := a.store.QueryEvents(types.EventFilter{EventType: types.EventFuseTriggered}, timeRange, analyzeQueryLimit)
	if err != nil {
		return nil, err
	}
	completed, err := a.store.QueryEvents(types.EventFilter{EventType: types.EventFuseCompleted}, timeRange, analyzeQueryLimit)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*types.FuseEvent, len(triggered))
	for _, event := range triggered {
		byID[event.EventID] = event
	}

	report := &EfficiencyReport{
		Triggered: len(triggered),
		Completed: len(completed),
	}

	for _, end := range completed {
		var start *types.FuseEvent
		for _, rid := range end.RelatedIDs {
			if matched, ok := byID[rid]; ok {
				start = matched
				break
			}
		}
		if start == nil {
			continue
		}

		cycle := FuseCycle{
			TriggerID:      start.EventID,
			CompleteID:     end.EventID,
			Duration:       end.Timestamp.Sub(start.Timestamp),
			MemoryBeforePc: start.MemoryUsage.UsedPercent,
			MemoryAfterPc:  end.MemoryUsage.UsedPercent,
			ReductionPc:    start.MemoryUsage.UsedPercent - end.MemoryUsage.UsedPercent,
		}
		if level, ok := start.Details["level"].(string); ok {
			cycle.Level = level
		}
		report.Cycles = append(report.Cycles, cycle)
	}

	if n := len(report.Cycles); n > 0 {
		var totalDur time.Duration
		var totalRed float64
		for _, c := range report.Cycles {
			totalDur += c.Duration
			totalRed += c.ReductionPc
		}
		report.AvgDuration = totalDur / time.Duration(n)
		report.AvgReduction = totalRed / float64(n)
	}
	return report, nil
}

// RecoveryStatus 还原最近一次恢复流程的状态
func (a *Analyzer) RecoveryStatus() (*RecoveryStatus, error) {
	started, err := a.store.QueryEvents(types.EventFilter{EventType: types.EventRecoveryStarted}, types.TimeRange{}, 1)
	if err != nil {
		return nil, err
	}
	completed, err := a.store.QueryEvents(types.EventFilter{EventType: types.EventRecoveryCompleted}, types.TimeRange{}, 1)
	if err != nil {
		return nil, err
	}

	status := &RecoveryStatus{}
	if len(started) == 0 {
		return status, nil
	}
	status.StartedAt = started[0].Timestamp

	if len(completed) == 0 || completed[0].Timestamp.Before(status.StartedAt) {
		status.InProgress = true
		return status, nil
	}

	status.CompletedAt = completed[0].Timestamp
	status.Succeeded = detailInt(completed[0].Details, "succeeded")
	status.Failed = detailInt(completed[0].Details, "failed")
	return status, nil
}

// detailDuration 从 details 中取毫秒数值转为时长
// JSON 反序列化后数值是 float64，直接记录时可能是整型或 Duration
func detailDuration(details map[string]interface{}, key string) time.Duration {
	switch v := details[key].(type) {
	case float64:
		return time.Duration(v * float64(time.Millisecond))
	case int64:
		return time.Duration(v) * time.Millisecond
	case int:
		return time.Duration(v) * time.Millisecond
	case time.Duration:
		return v
	default:
		return 0
	}
}

// detailInt 从 details 中取整数值
func detailInt(details map[string]interface{}, key string) int {
	switch v := details[key].(type) {
	case float64:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
