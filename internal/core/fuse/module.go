package fuse

import (
	"context"

	"github.com/asaskevich/EventBus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	actionsconfig "github.com/visionclip/memfuse/internal/config/actions"
	fuseconfig "github.com/visionclip/memfuse/internal/config/fuse"
	"github.com/visionclip/memfuse/internal/core/audit"
	"github.com/visionclip/memfuse/internal/core/monitor"
	"github.com/visionclip/memfuse/internal/core/recovery"
	"github.com/visionclip/memfuse/internal/core/registry"
	"github.com/visionclip/memfuse/internal/core/scheduler"
	"github.com/visionclip/memfuse/internal/core/validator"
	logiface "github.com/visionclip/memfuse/pkg/interfaces/infrastructure/log"
)

// ModuleInput 熔断模块输入依赖
type ModuleInput struct {
	fx.In

	FuseOptions   *fuseconfig.FuseOptions
	ActionOptions *actionsconfig.ActionsOptions
	Monitor       *monitor.PressureMonitor
	Validator     *validator.EffectValidator
	Coordinator   *recovery.RecoveryCoordinator
	Registry      *registry.ResourceRegistry
	Caches        *registry.CacheManager
	LevelCtrl     logiface.LevelController
	Audit         *audit.FuseAudit
	Bus           EventBus.Bus
	ZapLogger     *zap.Logger
	Lifecycle     fx.Lifecycle
}

// ModuleOutput 熔断模块输出服务
type ModuleOutput struct {
	fx.Out

	Controller  *FuseController
	Scheduler   *scheduler.ActionScheduler
	Gate        *BackgroundGate
	Degradation *DegradationState
	Handlers    *Handlers
}

// Module 返回熔断模块
func Module() fx.Option {
	return fx.Module("fuse",
		fx.Provide(
			func(input ModuleInput) (ModuleOutput, error) {
				logger := input.ZapLogger.With(zap.String("module", "fuse"))

				gate := &BackgroundGate{}
				degradation := NewDegradationState()
				handlers := NewHandlers(
					input.ActionOptions.HandlerParams,
					input.LevelCtrl,
					input.Caches,
					input.Registry,
					gate,
					degradation,
					logger,
				)
				handlers.RegisterAll(input.Validator)

				sched := scheduler.NewActionScheduler(logger)
				controller := NewFuseController(
					input.FuseOptions,
					input.ActionOptions,
					input.Monitor,
					sched,
					input.Validator,
					input.Coordinator,
					input.LevelCtrl,
					gate,
					degradation,
					nil,
					input.Audit,
					input.Bus,
					logger,
				)

				loopCtx, cancel := context.WithCancel(context.Background())
				input.Lifecycle.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						go controller.Start(loopCtx)
						return nil
					},
					OnStop: func(ctx context.Context) error {
						cancel()
						return nil
					},
				})

				return ModuleOutput{
					Controller:  controller,
					Scheduler:   sched,
					Gate:        gate,
					Degradation: degradation,
					Handlers:    handlers,
				}, nil
			},
		),
	)
}
