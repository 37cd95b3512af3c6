package registry

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	actionsconfig "github.com/visionclip/memfuse/internal/config/actions"
	"github.com/visionclip/memfuse/internal/core/audit"
)

// ModuleInput 注册表模块输入依赖
type ModuleInput struct {
	fx.In

	Options   *actionsconfig.ActionsOptions
	Audit     *audit.FuseAudit
	ZapLogger *zap.Logger
	Lifecycle fx.Lifecycle
}

// ModuleOutput 注册表模块输出服务
type ModuleOutput struct {
	fx.Out

	Registry *ResourceRegistry
	Caches   *CacheManager
}

// Module 返回注册表模块
func Module() fx.Option {
	return fx.Module("registry",
		fx.Provide(
			func(input ModuleInput) (ModuleOutput, error) {
				logger := input.ZapLogger.With(zap.String("module", "registry"))

				reg := NewResourceRegistry(input.Options.HandlerParams.SubtitleKeepSegments, input.Audit, logger)
				caches := NewCacheManager(0, logger)

				input.Lifecycle.Append(fx.Hook{
					OnStop: func(ctx context.Context) error {
						return caches.Close()
					},
				})

				return ModuleOutput{Registry: reg, Caches: caches}, nil
			},
		),
	)
}
