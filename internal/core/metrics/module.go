package metrics

import (
	"github.com/asaskevich/EventBus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/visionclip/memfuse/internal/core/monitor"
	"github.com/visionclip/memfuse/internal/core/recovery"
	"github.com/visionclip/memfuse/internal/core/registry"
)

// ModuleInput 指标模块输入依赖
type ModuleInput struct {
	fx.In

	Bus         EventBus.Bus
	Monitor     *monitor.PressureMonitor
	Registry    *registry.ResourceRegistry
	Coordinator *recovery.RecoveryCoordinator
	ZapLogger   *zap.Logger
}

// ModuleOutput 指标模块输出服务
type ModuleOutput struct {
	fx.Out

	Metrics    *FuseMetrics
	Registerer *prometheus.Registry
}

// Module 返回指标模块
// 使用独立的指标注册表，附带Go运行时与进程采集器
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(
			func(input ModuleInput) (ModuleOutput, error) {
				logger := input.ZapLogger.With(zap.String("module", "metrics"))

				reg := prometheus.NewRegistry()
				reg.MustRegister(
					collectors.NewGoCollector(),
					collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
				)

				m := NewFuseMetrics(reg, logger)
				m.RegisterProbes(reg, Probes{
					PressureIndex: input.Monitor.Index,
					UsagePercent: func() float64 {
						return input.Monitor.LatestUsage().UsedPercent
					},
					UsedMB: func() float64 {
						usage := input.Monitor.LatestUsage()
						return usage.TotalMB * usage.UsedPercent / 100
					},
					Resources: input.Registry.Len,
					PendingSnapshots: func() int {
						return len(input.Coordinator.Pending())
					},
				})
				if err := m.WatchBus(input.Bus); err != nil {
					return ModuleOutput{}, err
				}

				return ModuleOutput{Metrics: m, Registerer: reg}, nil
			},
		),
	)
}
