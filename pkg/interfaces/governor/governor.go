// Package governor 定义内存熔断治理器的核心扩展点
//
// 外部组件通过实现这些接口接入治理流程：
// 采样器决定压力数据来源，释放器/恢复器决定资源的收放方式，
// 动作处理器承载具体缓解动作，排序策略决定调度顺序。
package governor

import (
	"context"
	"time"

	"github.com/visionclip/memfuse/pkg/types"
)

// Sampler 内存压力采样器
//
// 默认实现读取系统内存占用与进程 RSS；
// 测试场景可替换为模式化的压力模拟器。
type Sampler interface {
	// Sample 返回当前系统内存使用率（0-100）
	Sample() (float64, error)

	// Usage 返回完整内存快照
	Usage() (types.MemoryUsage, error)
}

// Releaser 按资源类型定制的释放策略
type Releaser interface {
	// Release 释放资源，返回估算的释放量（MB）
	// 资源的销毁动作应在此完成；返回错误表示资源保持原状
	Release(ctx context.Context, snapshot *types.ResourceSnapshot) (float64, error)
}

// Restorer 按资源类型定制的恢复策略
type Restorer interface {
	// Restore 依据快照重建资源
	Restore(ctx context.Context, snapshot *types.ResourceSnapshot) error
}

// ActionHandler 缓解动作处理器
//
// 处理器必须幂等：同一动作可能因重试策略被连续调用多次。
type ActionHandler func(ctx context.Context) error

// ActionOrderingStrategy 动作调度排序策略
//
// 内置实现按冲击权重排序：压力未达高位时轻动作优先，
// 高位时重动作优先。可替换为自定义策略。
type ActionOrderingStrategy interface {
	// Order 返回排序后的动作副本，不修改入参
	Order(actions []types.MitigationAction, pressureIndex float64) []types.MitigationAction
}

// MemoryRecorder 验证期间的内存走势记录器
type MemoryRecorder interface {
	// Record 开始以固定间隔记录内存使用，直到 ctx 结束
	// 返回采样序列的读取函数
	Record(ctx context.Context, interval time.Duration) func() []types.PressureSample
}
