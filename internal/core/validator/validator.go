// Package validator 缓解动作效果验证
//
// 验证器在动作执行前后测量内存，判定实际释放量是否达到目录中的
// 预期值。验证失败进入策略链：重试、升级、备选、组合，最终兜底
// 是系统警报。验证路径上的任何问题都不向调用方抛错。
package validator

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	actionsconfig "github.com/visionclip/memfuse/internal/config/actions"
	"github.com/visionclip/memfuse/internal/core/audit"
	"github.com/visionclip/memfuse/pkg/interfaces/governor"
	"github.com/visionclip/memfuse/pkg/types"
)

// 验证参数
const (
	// defaultSettleDelay 动作执行后等待内存读数稳定的时间
	defaultSettleDelay = 200 * time.Millisecond

	// historyCapacity 验证结果历史的容量上限
	historyCapacity = 200
)

// EffectValidator 动作效果验证器
type EffectValidator struct {
	opts     *actionsconfig.ActionsOptions
	sampler  governor.Sampler
	clock    clock.Clock
	recorder governor.MemoryRecorder
	auditLog *audit.FuseAudit
	logger   *zap.Logger

	settleDelay time.Duration

	mu       sync.Mutex
	handlers map[string]governor.ActionHandler
	history  []types.ValidationResult
}

// NewEffectValidator 创建效果验证器
// clk 为 nil 时使用真实时钟；auditLog 可为 nil，此时验证结果不写审计事件
func NewEffectValidator(opts *actionsconfig.ActionsOptions, sampler governor.Sampler, clk clock.Clock, auditLog *audit.FuseAudit, logger *zap.Logger) *EffectValidator {
	if clk == nil {
		clk = clock.New()
	}
	return &EffectValidator{
		opts:        opts,
		sampler:     sampler,
		clock:       clk,
		auditLog:    auditLog,
		logger:      logger,
		settleDelay: defaultSettleDelay,
		handlers:    make(map[string]governor.ActionHandler),
	}
}

// SetSettleDelay 调整动作执行后的读数稳定等待时间
func (v *EffectValidator) SetSettleDelay(d time.Duration) {
	if d >= 0 {
		v.settleDelay = d
	}
}

// SetRecorder 挂接执行窗口内的内存走势记录器
// 挂接后每次验证附带峰值使用率，不挂接时验证照常进行
func (v *EffectValidator) SetRecorder(recorder governor.MemoryRecorder) {
	v.recorder = recorder
}

// RegisterHandler 注册动作处理器
func (v *EffectValidator) RegisterHandler(name string, handler governor.ActionHandler) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.handlers[name] = handler
}

// UnregisterHandler 注销动作处理器
func (v *EffectValidator) UnregisterHandler(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.handlers, name)
}

// lookup 取动作描述与处理器
func (v *EffectValidator) lookup(name string) (types.MitigationAction, governor.ActionHandler, bool) {
	v.mu.Lock()
	handler := v.handlers[name]
	v.mu.Unlock()

	for _, action := range v.opts.Catalog {
		if action.Name == name {
			return action, handler, handler != nil
		}
	}
	return types.MitigationAction{}, nil, false
}

// usedMB 当前内存占用量（MB）
func (v *EffectValidator) usedMB() float64 {
	usage, err := v.sampler.Usage()
	if err != nil {
		return 0
	}
	return usage.TotalMB * usage.UsedPercent / 100
}

// ExecuteAndValidate 执行动作并验证效果
//
// 成功的判定是双重的：释放量不低于预期，且执行时间不超预算。
// 本方法从不向上抛错，处理器的 panic 也被吸收为失败结果。
func (v *EffectValidator) ExecuteAndValidate(ctx context.Context, name string) types.ValidationResult {
	result := types.ValidationResult{
		Action:    name,
		Timestamp: v.clock.Now(),
	}

	action, handler, ok := v.lookup(name)
	if !ok {
		if v.logger != nil {
			v.logger.Warn("动作未注册，验证直接判定失败", zap.String("action", name))
		}
		v.record(result)
		return result
	}
	result.ExpectedReduction = action.ExpectedReductionMB

	result.MemoryBeforeMB = v.usedMB()

	// 记录器覆盖整个执行窗口，捕捉动作自身造成的瞬时峰值
	var readTrace func() []types.PressureSample
	if v.recorder != nil {
		recordCtx, stopRecord := context.WithCancel(ctx)
		defer stopRecord()
		readTrace = v.recorder.Record(recordCtx, v.opts.RecordInterval)
	}

	started := v.clock.Now()
	err := v.runHandler(ctx, handler)
	result.ExecTime = v.clock.Since(started)

	// 等待分配器与操作系统的内存计数稳定
	select {
	case <-v.clock.After(v.settleDelay):
	case <-ctx.Done():
	}

	result.MemoryAfterMB = v.usedMB()
	if readTrace != nil {
		for _, sample := range readTrace() {
			if sample.UsagePercent > result.PeakUsagePercent {
				result.PeakUsagePercent = sample.UsagePercent
			}
		}
	}
	result.ReductionMB = result.MemoryBeforeMB - result.MemoryAfterMB

	result.Success = err == nil &&
		result.ReductionMB >= action.ExpectedReductionMB &&
		result.ExecTime <= action.MaxExecTime

	if v.logger != nil {
		fields := []zap.Field{
			zap.String("action", name),
			zap.Bool("success", result.Success),
			zap.Float64("reduction_mb", result.ReductionMB),
			zap.Float64("expected_mb", result.ExpectedReduction),
			zap.Duration("exec_time", result.ExecTime),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		v.logger.Info("动作验证完成", fields...)
	}

	v.record(result)
	return result
}

// runHandler 执行处理器并吸收 panic
func (v *EffectValidator) runHandler(ctx context.Context, handler governor.ActionHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("动作处理器panic: %v", r)
			if v.logger != nil {
				v.logger.Error("动作处理器panic",
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
			}
		}
	}()
	return handler(ctx)
}

// ExecuteWithRecovery 执行动作，失败时走策略链直至成功或告警
func (v *EffectValidator) ExecuteWithRecovery(ctx context.Context, name string) types.ValidationResult {
	result := v.ExecuteAndValidate(ctx, name)
	if result.Success {
		return result
	}

	action, _, ok := v.lookup(name)
	if !ok {
		v.alert(name, "动作未注册")
		return result
	}
	return v.retryThenEscalate(ctx, action, result)
}

// retryThenEscalate 重试链：GC 后重跑，预算耗尽转入升级链
func (v *EffectValidator) retryThenEscalate(ctx context.Context, action types.MitigationAction, last types.ValidationResult) types.ValidationResult {
	for attempt := 1; attempt <= action.RetryBudget; attempt++ {
		if ctx.Err() != nil {
			return last
		}

		// 重试前先做一轮GC，排除垃圾堆积造成的假性失败
		runtime.GC()

		if v.logger != nil {
			v.logger.Info("动作重试",
				zap.String("action", action.Name),
				zap.Int("attempt", attempt),
				zap.Int("budget", action.RetryBudget))
		}

		last = v.ExecuteAndValidate(ctx, action.Name)
		if last.Success {
			return last
		}
	}
	return v.escalate(ctx, action, last)
}

// escalate 升级链：执行更强力的动作，升级动作失败直接告警
func (v *EffectValidator) escalate(ctx context.Context, action types.MitigationAction, last types.ValidationResult) types.ValidationResult {
	if action.EscalationTarget == "" {
		v.alert(action.Name, "重试预算耗尽且无升级目标")
		return last
	}

	if v.logger != nil {
		v.logger.Warn("动作升级",
			zap.String("from", action.Name),
			zap.String("to", action.EscalationTarget))
	}

	escalated := v.ExecuteAndValidate(ctx, action.EscalationTarget)
	if !escalated.Success {
		v.alert(action.EscalationTarget, "升级动作仍然失败")
	}
	return escalated
}

// Fallback 依次尝试备选动作，任一成功即止
func (v *EffectValidator) Fallback(ctx context.Context, names []string) types.ValidationResult {
	var last types.ValidationResult
	for _, name := range names {
		if ctx.Err() != nil {
			return last
		}
		last = v.ExecuteAndValidate(ctx, name)
		if last.Success {
			return last
		}
	}
	v.alert("fallback", "全部备选动作失败")
	return last
}

// Combine 组合执行一组动作，全部成功才算成功
func (v *EffectValidator) Combine(ctx context.Context, names []string) []types.ValidationResult {
	results := make([]types.ValidationResult, 0, len(names))
	allOK := true
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		result := v.ExecuteAndValidate(ctx, name)
		results = append(results, result)
		if !result.Success {
			allOK = false
		}
	}
	if !allOK {
		v.alert("combine", "组合动作存在失败项")
	}
	return results
}

// alert 系统警报：策略链的终态，操作员必须介入
func (v *EffectValidator) alert(action, reason string) {
	if v.logger != nil {
		v.logger.Error("内存熔断动作告警",
			zap.String("action", action),
			zap.String("reason", reason))
	}
	if v.auditLog != nil {
		v.auditLog.Record(types.EventErrorOccurred, map[string]interface{}{
			"action": action,
			"reason": reason,
			"alert":  true,
		})
	}
}

// record 把验证结果写入有界历史与审计日志
func (v *EffectValidator) record(result types.ValidationResult) {
	v.mu.Lock()
	v.history = append(v.history, result)
	if len(v.history) > historyCapacity {
		v.history = v.history[len(v.history)-historyCapacity:]
	}
	v.mu.Unlock()

	if v.auditLog != nil {
		v.auditLog.Record(types.EventValidationResult, map[string]interface{}{
			"action":        result.Action,
			"success":       result.Success,
			"reduction_mb":  result.ReductionMB,
			"expected_mb":   result.ExpectedReduction,
			"exec_time_ms":  float64(result.ExecTime) / float64(time.Millisecond),
			"effectiveness": result.Effectiveness(),
		})
	}
}

// History 返回验证结果历史的副本，新结果在后
func (v *EffectValidator) History() []types.ValidationResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]types.ValidationResult(nil), v.history...)
}
