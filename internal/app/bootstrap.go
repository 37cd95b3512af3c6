package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"

	"github.com/visionclip/memfuse/internal/api/httpapi"
	config "github.com/visionclip/memfuse/internal/config"
	"github.com/visionclip/memfuse/internal/core/audit"
	"github.com/visionclip/memfuse/internal/core/fuse"
	"github.com/visionclip/memfuse/internal/core/infrastructure/event"
	log "github.com/visionclip/memfuse/internal/core/infrastructure/log"
	"github.com/visionclip/memfuse/internal/core/kb"
	"github.com/visionclip/memfuse/internal/core/metrics"
	"github.com/visionclip/memfuse/internal/core/monitor"
	"github.com/visionclip/memfuse/internal/core/recovery"
	"github.com/visionclip/memfuse/internal/core/registry"
	"github.com/visionclip/memfuse/internal/core/validator"
	iconfig "github.com/visionclip/memfuse/pkg/interfaces/config"
	"github.com/visionclip/memfuse/pkg/interfaces/governor"
	"github.com/visionclip/memfuse/pkg/types"
)

// startupTimeout 启动阶段的最长等待时间
const startupTimeout = 30 * time.Second

// Bootstrap 应用引导程序
type Bootstrap struct {
	opts     *options
	fxApp    *fx.App
	governor *Governor
}

// NewBootstrap 创建引导程序
func NewBootstrap(opts *options) *Bootstrap {
	return &Bootstrap{
		opts:     opts,
		governor: &Governor{},
	}
}

// provideAppOptions 加载配置文件并应用覆盖项
func (b *Bootstrap) provideAppOptions() (iconfig.AppOptions, error) {
	if b.opts.appConfig == nil {
		appConfig, err := config.LoadAppConfig(b.opts.configFilePath)
		if err != nil {
			return nil, err
		}
		b.opts.appConfig = appConfig
	}

	if b.opts.enableAPI != nil {
		if b.opts.appConfig == nil {
			b.opts.appConfig = &types.AppConfig{}
		}
		if b.opts.appConfig.API == nil {
			b.opts.appConfig.API = &types.UserAPIConfig{}
		}
		b.opts.appConfig.API.Enabled = b.opts.enableAPI
	}

	return b.opts, nil
}

// SetupInfrastructureLayer 设置基础设施层模块
// 配置、日志与事件总线，不依赖任何领域模块
func (b *Bootstrap) SetupInfrastructureLayer() []fx.Option {
	return []fx.Option{
		fx.Provide(b.provideAppOptions),
		config.Module(),
		log.Module(),
		event.Module(),
	}
}

// SetupCoreLayer 设置熔断核心层模块
// 加载顺序遵循依赖关系：审计与监控最底层，熔断控制器最顶层
func (b *Bootstrap) SetupCoreLayer() []fx.Option {
	return []fx.Option{
		// 全局共享同一个系统采样器，审计快照与监控读数保持一致
		fx.Provide(func() governor.Sampler { return monitor.NewSystemSampler() }),

		audit.Module(),     // 1. 审计日志（被其余模块用来记事件）
		monitor.Module(),   // 2. 压力监控（依赖事件总线）
		registry.Module(),  // 3. 资源注册表与缓存管理
		recovery.Module(),  // 4. 恢复协调器（依赖注册表与监控）
		validator.Module(), // 5. 效果验证器
		fuse.Module(),      // 6. 熔断控制器（编排以上全部）
		kb.Module(),        // 7. 诊断知识库与周期诊断
		metrics.Module(),   // 8. Prometheus指标
	}
}

// SetupApplicationLayer 设置应用层模块
func (b *Bootstrap) SetupApplicationLayer() []fx.Option {
	return []fx.Option{
		httpapi.Module(),
	}
}

// SetupModules 按依赖顺序装配所有模块
func (b *Bootstrap) SetupModules() []fx.Option {
	var modules []fx.Option
	modules = append(modules, b.SetupInfrastructureLayer()...)
	modules = append(modules, b.SetupCoreLayer()...)
	modules = append(modules, b.SetupApplicationLayer()...)

	// 把核心组件引用填充到门面，供App.Governor()使用
	modules = append(modules, fx.Populate(
		&b.governor.controller,
		&b.governor.monitor,
		&b.governor.registry,
		&b.governor.coordinator,
		&b.governor.audit,
		&b.governor.kb,
	))

	return modules
}

// CreateFxApp 创建并配置fx应用
func (b *Bootstrap) CreateFxApp() error {
	appOptions := []fx.Option{
		fx.Options(b.SetupModules()...),
		fx.NopLogger,
	}

	b.fxApp = fx.New(appOptions...)
	return b.fxApp.Err()
}

// StartApp 启动应用程序
func (b *Bootstrap) StartApp(ctx context.Context) error {
	if err := b.fxApp.Start(ctx); err != nil {
		return fmt.Errorf("启动应用失败: %w", err)
	}
	return nil
}

// StopApp 停止应用程序
func (b *Bootstrap) StopApp(ctx context.Context) error {
	if err := b.fxApp.Stop(ctx); err != nil {
		return fmt.Errorf("停止应用失败: %w", err)
	}
	return nil
}

// BootstrapApp 执行完整的引导过程并返回应用实例
func BootstrapApp(appOptions ...Option) (App, error) {
	opts := newOptions(appOptions...)
	bootstrap := NewBootstrap(opts)

	if err := bootstrap.CreateFxApp(); err != nil {
		return nil, fmt.Errorf("创建应用失败: %w", err)
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	if err := bootstrap.StartApp(startupCtx); err != nil {
		return nil, err
	}

	return &internalApp{bootstrap: bootstrap}, nil
}
