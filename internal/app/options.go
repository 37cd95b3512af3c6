package app

import (
	"github.com/visionclip/memfuse/pkg/interfaces/config"
	"github.com/visionclip/memfuse/pkg/types"
)

// Option 应用程序选项函数类型
type Option func(*options)

// options 应用程序选项
// 实现config.AppOptions接口
type options struct {
	// 配置文件路径
	configFilePath string

	// 用户配置（优先级高于配置文件）
	appConfig *types.AppConfig

	// HTTP诊断接口开关（覆盖配置文件）
	enableAPI *bool
}

// 编译时校验options是否实现了config.AppOptions接口
var _ config.AppOptions = (*options)(nil)

// WithConfigFile 设置YAML配置文件路径
func WithConfigFile(configPath string) Option {
	return func(o *options) {
		o.configFilePath = configPath
	}
}

// WithConfig 直接注入应用配置，跳过配置文件
func WithConfig(appConfig *types.AppConfig) Option {
	return func(o *options) {
		o.appConfig = appConfig
	}
}

// WithAPI 启用HTTP诊断接口
func WithAPI() Option {
	return func(o *options) {
		enabled := true
		o.enableAPI = &enabled
	}
}

// WithoutAPI 禁用HTTP诊断接口
func WithoutAPI() Option {
	return func(o *options) {
		enabled := false
		o.enableAPI = &enabled
	}
}

// newOptions 创建选项
func newOptions(opts ...Option) *options {
	options := &options{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// GetAppConfig 返回应用程序配置
func (o *options) GetAppConfig() *types.AppConfig {
	return o.appConfig
}
