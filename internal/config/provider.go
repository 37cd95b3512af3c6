package config

import (
	"path/filepath"

	"github.com/visionclip/memfuse/internal/config/actions"
	"github.com/visionclip/memfuse/internal/config/api"
	"github.com/visionclip/memfuse/internal/config/fuse"
	"github.com/visionclip/memfuse/internal/config/log"
	"github.com/visionclip/memfuse/internal/config/monitor"
	"github.com/visionclip/memfuse/internal/config/storage"
	"github.com/visionclip/memfuse/pkg/interfaces/config"
	"github.com/visionclip/memfuse/pkg/types"
)

// Provider 实现配置提供者接口
type Provider struct {
	appConfig *types.AppConfig
}

// NewProvider 创建配置提供者
func NewProvider(appConfig *types.AppConfig) config.Provider {
	return &Provider{
		appConfig: appConfig,
	}
}

// GetMonitor 获取压力监控配置
func (p *Provider) GetMonitor() *monitor.MonitorOptions {
	// 直接传递用户配置给monitor.New，让它处理默认值和转换
	var userMonitorConfig *types.UserMonitorConfig
	if p.appConfig != nil && p.appConfig.Monitor != nil {
		userMonitorConfig = p.appConfig.Monitor
	}

	return monitor.New(userMonitorConfig).GetOptions()
}

// GetFuse 获取熔断器配置
func (p *Provider) GetFuse() *fuse.FuseOptions {
	var userFuseConfig *types.UserFuseConfig
	if p.appConfig != nil && p.appConfig.Fuse != nil {
		userFuseConfig = p.appConfig.Fuse
	}

	return fuse.New(userFuseConfig).GetOptions()
}

// GetActions 获取缓解动作配置
func (p *Provider) GetActions() *actions.ActionsOptions {
	var userActionsConfig *types.UserActionsConfig
	if p.appConfig != nil && p.appConfig.Actions != nil {
		userActionsConfig = p.appConfig.Actions
	}

	return actions.New(userActionsConfig).GetOptions()
}

// GetStorage 获取存储配置
func (p *Provider) GetStorage() *storage.StorageOptions {
	var userStorageConfig *types.UserStorageConfig
	if p.appConfig != nil && p.appConfig.Storage != nil {
		userStorageConfig = p.appConfig.Storage
	}

	options := storage.New(userStorageConfig).GetOptions()

	// 相对路径统一挂到数据目录下，保持部署目录整洁
	if dataDir := p.GetDataDir(); dataDir != "" {
		if !filepath.IsAbs(options.AuditPath) {
			options.AuditPath = filepath.Join(dataDir, options.AuditPath)
		}
		if !filepath.IsAbs(options.RecoveryStateDir) {
			options.RecoveryStateDir = filepath.Join(dataDir, options.RecoveryStateDir)
		}
	}

	return options
}

// GetLog 获取日志配置
func (p *Provider) GetLog() *log.LogOptions {
	var userLogConfig *types.UserLogConfig
	if p.appConfig != nil && p.appConfig.Log != nil {
		userLogConfig = p.appConfig.Log
	}

	options := log.New(userLogConfig).GetOptions()

	// 开发环境默认放宽到debug级别，便于观察采样与调度细节
	if userLogConfig == nil || userLogConfig.Level == nil {
		if p.GetEnvironment() == "dev" {
			options.Level = "debug"
		}
	}

	return options
}

// GetAPI 获取诊断 API 配置
func (p *Provider) GetAPI() *api.APIOptions {
	var userAPIConfig *types.UserAPIConfig
	if p.appConfig != nil && p.appConfig.API != nil {
		userAPIConfig = p.appConfig.API
	}

	return api.New(userAPIConfig).GetOptions()
}

// GetEnvironment 获取运行环境
func (p *Provider) GetEnvironment() string {
	if p.appConfig != nil && p.appConfig.Environment != nil {
		switch *p.appConfig.Environment {
		case "dev", "test", "prod":
			return *p.appConfig.Environment
		}
	}
	// 默认为生产环境（安全优先）
	return "prod"
}

// GetDataDir 获取数据目录
func (p *Provider) GetDataDir() string {
	if p.appConfig != nil && p.appConfig.DataDir != nil && *p.appConfig.DataDir != "" {
		return *p.appConfig.DataDir
	}
	return ""
}

// GetAppConfig 获取原始应用配置
func (p *Provider) GetAppConfig() *types.AppConfig {
	return p.appConfig
}
