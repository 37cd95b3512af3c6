// Package config 提供应用配置管理功能
package config

import (
	"go.uber.org/fx"

	actionsconfig "github.com/visionclip/memfuse/internal/config/actions"
	apiconfig "github.com/visionclip/memfuse/internal/config/api"
	fuseconfig "github.com/visionclip/memfuse/internal/config/fuse"
	monitorconfig "github.com/visionclip/memfuse/internal/config/monitor"
	storageconfig "github.com/visionclip/memfuse/internal/config/storage"
	"github.com/visionclip/memfuse/pkg/interfaces/config"
	"github.com/visionclip/memfuse/pkg/types"
)

// ConfigParams 定义配置模块的依赖参数
type ConfigParams struct {
	fx.In

	// 应用配置选项
	AppOptions config.AppOptions `optional:"true"`
}

// ConfigOutput 定义配置模块的输出结构
type ConfigOutput struct {
	fx.Out

	// 配置提供者
	Provider config.Provider
}

// Module 返回配置模块
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			ProvideConfigServices,
			// 提供具体的配置类型用于依赖注入
			func(provider config.Provider) *monitorconfig.MonitorOptions {
				return provider.GetMonitor()
			},
			func(provider config.Provider) *fuseconfig.FuseOptions {
				return provider.GetFuse()
			},
			func(provider config.Provider) *actionsconfig.ActionsOptions {
				return provider.GetActions()
			},
			func(provider config.Provider) *storageconfig.StorageOptions {
				return provider.GetStorage()
			},
			func(provider config.Provider) *apiconfig.APIOptions {
				return provider.GetAPI()
			},
		),
	)
}

// ProvideConfigServices 提供配置服务
func ProvideConfigServices(params ConfigParams) (ConfigOutput, error) {
	// 从应用配置选项获取用户配置
	var appConfig *types.AppConfig
	if params.AppOptions != nil {
		appConfig = params.AppOptions.GetAppConfig()
	}

	// 阈值、时长这类写错会让熔断失效的配置在启动时直接报错
	if err := ValidateAppConfig(appConfig); err != nil {
		return ConfigOutput{}, err
	}

	// 创建配置提供者
	provider := NewProvider(appConfig)

	return ConfigOutput{
		Provider: provider,
	}, nil
}
