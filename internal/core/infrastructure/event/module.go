// Package event 提供进程内事件总线
//
// 监控器在总线上发布阈值穿越与压力升级，审计日志发布
// 事件落盘通知，外部组件按主题订阅即可，无需直接依赖
// 发布方。主题常量定义在各发布方包内。
package event

import (
	"github.com/asaskevich/EventBus"
	"go.uber.org/fx"

	"github.com/visionclip/memfuse/pkg/interfaces/infrastructure/log"
)

// ModuleInput 事件模块输入依赖
type ModuleInput struct {
	fx.In

	Logger log.Logger `optional:"true"` // 日志记录器（可选）
}

// ModuleOutput 事件模块输出服务
type ModuleOutput struct {
	fx.Out

	Bus EventBus.Bus // 进程内事件总线
}

// Module 返回事件模块
func Module() fx.Option {
	return fx.Module("event",
		fx.Provide(
			func(input ModuleInput) (ModuleOutput, error) {
				bus := EventBus.New()

				if input.Logger != nil {
					input.Logger.Debug("事件总线已创建")
				}

				return ModuleOutput{Bus: bus}, nil
			},
		),
	)
}
