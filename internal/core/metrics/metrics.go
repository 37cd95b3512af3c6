// Package metrics 熔断器的Prometheus指标
//
// 计数类指标从事件总线上的审计事件折算，探针类指标用
// GaugeFunc 直接读取各组件的当前状态。
package metrics

import (
	"github.com/asaskevich/EventBus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/visionclip/memfuse/internal/core/audit"
	"github.com/visionclip/memfuse/internal/core/fuse"
	"github.com/visionclip/memfuse/pkg/types"
)

const namespace = "memfuse"

// FuseMetrics 熔断器指标集
type FuseMetrics struct {
	logger *zap.Logger

	levelGauge        prometheus.Gauge
	fuseTriggered     *prometheus.CounterVec
	stateChanges      *prometheus.CounterVec
	actionsExecuted   *prometheus.CounterVec
	actionDuration    *prometheus.HistogramVec
	actionFreedMB     prometheus.Counter
	resourcesReleased *prometheus.CounterVec
	resourceFreedMB   prometheus.Counter
	recoveryRuns      *prometheus.CounterVec
	diagnosesDone     *prometheus.CounterVec
	eventsRecorded    *prometheus.CounterVec
}

// NewFuseMetrics 创建并注册全部计数类指标
func NewFuseMetrics(reg prometheus.Registerer, logger *zap.Logger) *FuseMetrics {
	factory := promauto.With(reg)

	return &FuseMetrics{
		logger: logger,

		levelGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fuse",
			Name:      "level",
			Help:      "Current fuse level (0=normal 1=warning 2=critical 3=emergency)",
		}),
		fuseTriggered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fuse",
			Name:      "triggered_total",
			Help:      "Total number of fuse activations",
		}, []string{"level"}),
		stateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fuse",
			Name:      "state_changes_total",
			Help:      "Total number of level transitions including recovery step-downs",
		}, []string{"from", "to"}),
		actionsExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "actions",
			Name:      "executed_total",
			Help:      "Total number of executed fuse actions",
		}, []string{"action", "result"}),
		actionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "actions",
			Name:      "duration_seconds",
			Help:      "Duration of fuse action executions",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms ~ 20s
		}, []string{"action"}),
		actionFreedMB: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "actions",
			Name:      "freed_mb_total",
			Help:      "Memory freed by validated fuse actions in MB",
		}),
		resourcesReleased: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "released_total",
			Help:      "Total number of resource release attempts",
		}, []string{"type", "result"}),
		resourceFreedMB: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "freed_mb_total",
			Help:      "Memory freed by resource releases in MB",
		}),
		recoveryRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "runs_total",
			Help:      "Total number of rollback runs",
		}, []string{"result"}),
		diagnosesDone: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kb",
			Name:      "diagnoses_total",
			Help:      "Total number of completed diagnoses",
		}, []string{"pattern"}),
		eventsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "events_total",
			Help:      "Total number of recorded audit events",
		}, []string{"type"}),
	}
}

// Probes 探针类指标的数据来源
type Probes struct {
	PressureIndex    func() float64
	UsagePercent     func() float64
	UsedMB           func() float64
	Resources        func() int
	PendingSnapshots func() int
}

// RegisterProbes 注册直接读取组件状态的GaugeFunc
func (m *FuseMetrics) RegisterProbes(reg prometheus.Registerer, probes Probes) {
	gauge := func(subsystem, name, help string, fn func() float64) {
		if fn == nil {
			return
		}
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, fn))
	}

	gauge("monitor", "pressure_index", "Current smoothed pressure index", probes.PressureIndex)
	gauge("monitor", "usage_percent", "Raw system memory usage percent", probes.UsagePercent)
	gauge("monitor", "used_mb", "System memory in use in MB", probes.UsedMB)
	if probes.Resources != nil {
		gauge("registry", "resources", "Number of registered resources", func() float64 {
			return float64(probes.Resources())
		})
	}
	if probes.PendingSnapshots != nil {
		gauge("recovery", "pending_snapshots", "Snapshots waiting for rollback", func() float64 {
			return float64(probes.PendingSnapshots())
		})
	}
}

// WatchBus 订阅事件总线，把审计事件与级别变化折算成指标
func (m *FuseMetrics) WatchBus(bus EventBus.Bus) error {
	if err := bus.Subscribe(audit.TopicEventRecorded, m.handleEvent); err != nil {
		return err
	}
	return bus.Subscribe(fuse.TopicLevelChanged, m.handleLevelChange)
}

func (m *FuseMetrics) handleLevelChange(change fuse.LevelChange) {
	m.levelGauge.Set(float64(change.To))
}

func (m *FuseMetrics) handleEvent(event *types.FuseEvent) {
	if event == nil {
		return
	}
	m.eventsRecorded.WithLabelValues(string(event.EventType)).Inc()

	switch event.EventType {
	case types.EventFuseTriggered:
		m.fuseTriggered.WithLabelValues(detailString(event.Details, "level")).Inc()
	case types.EventSystemStateChange:
		m.stateChanges.WithLabelValues(
			detailString(event.Details, "from"),
			detailString(event.Details, "to")).Inc()
	case types.EventValidationResult:
		action := detailString(event.Details, "action")
		result := "failed"
		if detailBool(event.Details, "success") {
			result = "success"
			m.actionFreedMB.Add(detailFloat(event.Details, "reduction_mb"))
		}
		m.actionsExecuted.WithLabelValues(action, result).Inc()
		m.actionDuration.WithLabelValues(action).Observe(detailFloat(event.Details, "exec_time_ms") / 1000)
	case types.EventResourceReleased:
		result := "failed"
		if detailBool(event.Details, "success") {
			result = "success"
			m.resourceFreedMB.Add(detailFloat(event.Details, "freed_mb"))
		}
		m.resourcesReleased.WithLabelValues(detailString(event.Details, "resource_type"), result).Inc()
	case types.EventRecoveryCompleted:
		result := "failed"
		if detailBool(event.Details, "success") {
			result = "success"
		}
		m.recoveryRuns.WithLabelValues(result).Inc()
	case types.EventDiagnosisDone:
		m.diagnosesDone.WithLabelValues(detailString(event.Details, "pattern")).Inc()
	}
}

func detailString(details map[string]interface{}, key string) string {
	if s, ok := details[key].(string); ok {
		return s
	}
	return "unknown"
}

func detailBool(details map[string]interface{}, key string) bool {
	b, _ := details[key].(bool)
	return b
}

func detailFloat(details map[string]interface{}, key string) float64 {
	switch v := details[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
