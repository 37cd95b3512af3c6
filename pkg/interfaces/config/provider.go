// Package config provides configuration provider interfaces.
package config

import (
	actionsconfig "github.com/visionclip/memfuse/internal/config/actions"
	apiconfig "github.com/visionclip/memfuse/internal/config/api"
	fuseconfig "github.com/visionclip/memfuse/internal/config/fuse"
	logconfig "github.com/visionclip/memfuse/internal/config/log"
	monitorconfig "github.com/visionclip/memfuse/internal/config/monitor"
	storageconfig "github.com/visionclip/memfuse/internal/config/storage"
	"github.com/visionclip/memfuse/pkg/types"
)

// Provider 配置提供者接口
type Provider interface {
	// GetMonitor 获取压力监控配置
	GetMonitor() *monitorconfig.MonitorOptions

	// GetFuse 获取熔断器配置
	GetFuse() *fuseconfig.FuseOptions

	// GetActions 获取缓解动作配置
	GetActions() *actionsconfig.ActionsOptions

	// GetStorage 获取存储配置
	GetStorage() *storageconfig.StorageOptions

	// GetLog 获取日志配置
	GetLog() *logconfig.LogOptions

	// GetAPI 获取诊断 API 配置
	GetAPI() *apiconfig.APIOptions

	// GetEnvironment 获取运行环境
	// 返回运行环境字符串：dev | test | prod
	// 未配置时默认为 "prod"（安全优先）
	GetEnvironment() string

	// GetDataDir 获取数据目录
	GetDataDir() string

	// GetAppConfig 获取原始应用配置（用于验证等场景）
	GetAppConfig() *types.AppConfig
}
