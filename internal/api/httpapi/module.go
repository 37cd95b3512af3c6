package httpapi

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	apiconfig "github.com/visionclip/memfuse/internal/config/api"
	"github.com/visionclip/memfuse/internal/core/audit"
	"github.com/visionclip/memfuse/internal/core/fuse"
	"github.com/visionclip/memfuse/internal/core/kb"
	"github.com/visionclip/memfuse/internal/core/monitor"
	"github.com/visionclip/memfuse/internal/core/registry"
)

// ModuleInput HTTP接口模块输入依赖
type ModuleInput struct {
	fx.In

	Options       *apiconfig.APIOptions
	Controller    *fuse.FuseController
	Monitor       *monitor.PressureMonitor
	Registry      *registry.ResourceRegistry
	Audit         *audit.FuseAudit
	KnowledgeBase *kb.KnowledgeBase
	Registerer    *prometheus.Registry `optional:"true"`
	ZapLogger     *zap.Logger
	Lifecycle     fx.Lifecycle
}

// ModuleOutput HTTP接口模块输出服务
type ModuleOutput struct {
	fx.Out

	Server *Server
}

// Module 返回HTTP接口模块
// 配置禁用时不监听端口，Server 仍然创建以便测试路由
func Module() fx.Option {
	return fx.Module("httpapi",
		fx.Provide(
			func(input ModuleInput) (ModuleOutput, error) {
				logger := input.ZapLogger.With(zap.String("module", "httpapi"))

				handlers := NewHandlers(
					input.Controller,
					input.Monitor,
					input.Registry,
					input.Audit,
					input.KnowledgeBase,
					logger,
				)
				server := NewServer(input.Options, handlers, input.Registerer, logger)

				if input.Options.Enabled {
					input.Lifecycle.Append(fx.Hook{
						OnStart: func(ctx context.Context) error {
							return server.Start()
						},
						OnStop: func(ctx context.Context) error {
							return server.Stop(ctx)
						},
					})
				}

				return ModuleOutput{Server: server}, nil
			},
		),
	)
}
