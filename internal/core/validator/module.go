package validator

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	actionsconfig "github.com/visionclip/memfuse/internal/config/actions"
	"github.com/visionclip/memfuse/internal/core/audit"
	"github.com/visionclip/memfuse/internal/core/monitor"
	"github.com/visionclip/memfuse/pkg/interfaces/governor"
)

// ModuleInput 验证模块输入依赖
type ModuleInput struct {
	fx.In

	Options   *actionsconfig.ActionsOptions
	Sampler   governor.Sampler `optional:"true"`
	Audit     *audit.FuseAudit
	ZapLogger *zap.Logger
}

// ModuleOutput 验证模块输出服务
type ModuleOutput struct {
	fx.Out

	Validator *EffectValidator
	Recorder  governor.MemoryRecorder
}

// Module 返回验证模块
func Module() fx.Option {
	return fx.Module("validator",
		fx.Provide(
			func(input ModuleInput) (ModuleOutput, error) {
				sampler := input.Sampler
				if sampler == nil {
					sampler = monitor.NewSystemSampler()
				}

				logger := input.ZapLogger.With(zap.String("module", "validator"))
				v := NewEffectValidator(input.Options, sampler, nil, input.Audit, logger)

				recorder := NewIntervalRecorder(sampler)
				v.SetRecorder(recorder)

				return ModuleOutput{
					Validator: v,
					Recorder:  recorder,
				}, nil
			},
		),
	)
}
