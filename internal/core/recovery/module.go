package recovery

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	storageconfig "github.com/visionclip/memfuse/internal/config/storage"
	"github.com/visionclip/memfuse/internal/core/audit"
	"github.com/visionclip/memfuse/internal/core/monitor"
	"github.com/visionclip/memfuse/internal/core/registry"
)

// ModuleInput 恢复模块输入依赖
type ModuleInput struct {
	fx.In

	Options   *storageconfig.StorageOptions
	Registry  *registry.ResourceRegistry
	Monitor   *monitor.PressureMonitor
	Audit     *audit.FuseAudit
	ZapLogger *zap.Logger
}

// ModuleOutput 恢复模块输出服务
type ModuleOutput struct {
	fx.Out

	Coordinator *RecoveryCoordinator
}

// Module 返回恢复模块
func Module() fx.Option {
	return fx.Module("recovery",
		fx.Provide(
			func(input ModuleInput) (ModuleOutput, error) {
				logger := input.ZapLogger.With(zap.String("module", "recovery"))

				coordinator := NewRecoveryCoordinator(
					input.Registry,
					input.Monitor.Index,
					input.Options.RecoveryStateDir,
					nil,
					input.Audit,
					logger,
				)
				return ModuleOutput{Coordinator: coordinator}, nil
			},
		),
	)
}
