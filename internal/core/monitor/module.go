// Package monitor 提供内存压力监控功能
package monitor

import (
	"context"

	"github.com/asaskevich/EventBus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	monitorconfig "github.com/visionclip/memfuse/internal/config/monitor"
	"github.com/visionclip/memfuse/pkg/interfaces/governor"
)

// ModuleInput 监控模块输入依赖
type ModuleInput struct {
	fx.In

	Options   *monitorconfig.MonitorOptions
	Sampler   governor.Sampler `optional:"true"` // 未提供时使用系统采样器
	Bus       EventBus.Bus
	ZapLogger *zap.Logger
	Lifecycle fx.Lifecycle
}

// ModuleOutput 监控模块输出服务
type ModuleOutput struct {
	fx.Out

	Monitor *PressureMonitor
}

// Module 返回监控模块
func Module() fx.Option {
	return fx.Module("monitor",
		fx.Provide(
			func(input ModuleInput) (ModuleOutput, error) {
				sampler := input.Sampler
				if sampler == nil {
					sampler = NewSystemSampler()
				}

				logger := input.ZapLogger.With(zap.String("module", "monitor"))
				m := NewPressureMonitor(input.Options, sampler, nil, input.Bus, logger)

				loopCtx, cancel := context.WithCancel(context.Background())
				input.Lifecycle.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						// 启动时立即采样一次，让熔断评估不必等第一个周期
						if err := m.SampleOnce(); err != nil {
							logger.Warn("启动采样失败", zap.Error(err))
						}
						go m.Start(loopCtx)
						return nil
					},
					OnStop: func(ctx context.Context) error {
						cancel()
						return nil
					},
				})

				return ModuleOutput{Monitor: m}, nil
			},
		),
	)
}
