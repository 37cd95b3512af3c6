package fuse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	actionsconfig "github.com/visionclip/memfuse/internal/config/actions"
	fuseconfig "github.com/visionclip/memfuse/internal/config/fuse"
	"github.com/visionclip/memfuse/internal/core/audit"
	"github.com/visionclip/memfuse/internal/core/monitor"
	"github.com/visionclip/memfuse/internal/core/recovery"
	"github.com/visionclip/memfuse/internal/core/scheduler"
	"github.com/visionclip/memfuse/internal/core/validator"
	"github.com/visionclip/memfuse/pkg/interfaces/governor"
	logiface "github.com/visionclip/memfuse/pkg/interfaces/infrastructure/log"
	"github.com/visionclip/memfuse/pkg/types"
)

// TopicLevelChanged 级别变化时在总线上发布，参数为 (旧级别, 新级别)
const TopicLevelChanged = "fuse:level_changed"

// LevelChange 级别迁移通知
type LevelChange struct {
	From  types.FuseLevel `json:"from"`
	To    types.FuseLevel `json:"to"`
	Index float64         `json:"index"`
}

// FuseController 熔断控制器
//
// 周期评估压力指数并驱动级别状态机：越过阈值时升级并执行
// 该级别的缓解动作，压力回落满冷却期后逐级降回。级别只会
// 因这两条路径变化，动作执行在控制器的临界区内串行。
type FuseController struct {
	opts        *fuseconfig.FuseOptions
	actionOpts  *actionsconfig.ActionsOptions
	monitor     *monitor.PressureMonitor
	sched       *scheduler.ActionScheduler
	validator   *validator.EffectValidator
	coordinator *recovery.RecoveryCoordinator
	levelCtrl   logiface.LevelController
	gate        *BackgroundGate
	degradation *DegradationState
	clock       clock.Clock
	auditLog    *audit.FuseAudit
	bus         EventBus.Bus
	logger      *zap.Logger

	// execMu 串行化动作执行与级别迁移
	execMu sync.Mutex

	mu            sync.Mutex
	level         types.FuseLevel
	lastTrigger   map[types.FuseLevel]time.Time
	executed      map[types.FuseLevel]map[string]bool
	savedLogLevel logiface.LogLevel
	hasSavedLevel bool
	belowSince    time.Time
	history       []types.ActionRecord
}

// NewFuseController 创建熔断控制器
// clk 为 nil 时使用真实时钟
func NewFuseController(
	opts *fuseconfig.FuseOptions,
	actionOpts *actionsconfig.ActionsOptions,
	m *monitor.PressureMonitor,
	sched *scheduler.ActionScheduler,
	v *validator.EffectValidator,
	coordinator *recovery.RecoveryCoordinator,
	levelCtrl logiface.LevelController,
	gate *BackgroundGate,
	degradation *DegradationState,
	clk clock.Clock,
	auditLog *audit.FuseAudit,
	bus EventBus.Bus,
	logger *zap.Logger,
) *FuseController {
	if clk == nil {
		clk = clock.New()
	}
	return &FuseController{
		opts:        opts,
		actionOpts:  actionOpts,
		monitor:     m,
		sched:       sched,
		validator:   v,
		coordinator: coordinator,
		levelCtrl:   levelCtrl,
		gate:        gate,
		degradation: degradation,
		clock:       clk,
		auditLog:    auditLog,
		bus:         bus,
		logger:      logger,
		level:       types.FuseLevelNormal,
		lastTrigger: make(map[types.FuseLevel]time.Time),
		executed:    make(map[types.FuseLevel]map[string]bool),
	}
}

// Start 启动周期评估循环，阻塞直到 ctx 结束
func (c *FuseController) Start(ctx context.Context) {
	ticker := c.clock.Ticker(c.opts.CheckInterval)
	defer ticker.Stop()

	if c.logger != nil {
		c.logger.Info("熔断控制器已启动",
			zap.Duration("check_interval", c.opts.CheckInterval))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Evaluate(ctx)
		}
	}
}

// Evaluate 执行一轮熔断评估
func (c *FuseController) Evaluate(ctx context.Context) {
	index := c.monitor.Index()

	c.mu.Lock()
	level := c.level
	c.mu.Unlock()

	// 阈值从高到低扫描，命中最高的级别
	candidate := types.FuseLevelNormal
	for _, lvl := range []types.FuseLevel{types.FuseLevelEmergency, types.FuseLevelCritical, types.FuseLevelWarning} {
		if threshold, ok := c.opts.Thresholds[lvl]; ok && index >= threshold {
			candidate = lvl
			break
		}
	}

	if candidate > level {
		c.trigger(ctx, candidate, index)
		return
	}

	c.maybeStepDown(ctx, level, index)
}

// maybeStepDown 压力回落满冷却期后降一级
func (c *FuseController) maybeStepDown(ctx context.Context, level types.FuseLevel, index float64) {
	if level == types.FuseLevelNormal {
		return
	}

	if index > c.opts.RecoveryThreshold {
		c.mu.Lock()
		c.belowSince = time.Time{}
		c.mu.Unlock()
		return
	}

	now := c.clock.Now()
	c.mu.Lock()
	if c.belowSince.IsZero() {
		c.belowSince = now
		c.mu.Unlock()
		return
	}
	elapsed := now.Sub(c.belowSince)
	c.mu.Unlock()

	if elapsed >= c.opts.RecoveryCooldown {
		c.stepDown(ctx, index)
	}
}

// trigger 升级到目标级别并执行其缓解动作
// 返回是否真正执行了升级（稳定窗口内的重复触发被抑制）
func (c *FuseController) trigger(ctx context.Context, target types.FuseLevel, index float64) bool {
	c.execMu.Lock()
	defer c.execMu.Unlock()

	now := c.clock.Now()

	c.mu.Lock()
	if last, ok := c.lastTrigger[target]; ok && now.Sub(last) < c.opts.StabilizeWindow {
		c.mu.Unlock()
		if c.logger != nil {
			c.logger.Debug("稳定窗口内的重复触发已抑制",
				zap.String("level", target.String()))
		}
		return false
	}
	c.lastTrigger[target] = now

	prev := c.level
	c.level = target
	c.belowSince = time.Time{}

	// 离开正常级别时保存当前日志级别，恢复时回填
	if !c.hasSavedLevel && c.levelCtrl != nil {
		c.savedLogLevel = c.levelCtrl.GetLevel()
		c.hasSavedLevel = true
	}

	levels := []types.FuseLevel{target}
	if c.opts.ExecuteSkippedLevels {
		levels = levels[:0]
		for lvl := prev + 1; lvl <= target; lvl++ {
			levels = append(levels, lvl)
		}
	}
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Warn("熔断触发",
			zap.String("from", prev.String()),
			zap.String("to", target.String()),
			zap.Float64("pressure_index", index))
	}

	var triggerID string
	if c.auditLog != nil {
		event := c.auditLog.Record(types.EventFuseTriggered, map[string]interface{}{
			"from":  prev.String(),
			"level": target.String(),
			"index": index,
		})
		triggerID = event.EventID
	}

	// 破坏性动作执行前捕获资源快照，供恢复流程回滚
	if c.coordinator != nil {
		c.coordinator.CaptureSnapshot()
	}

	for _, lvl := range levels {
		c.executeLevelActions(ctx, lvl, index)
	}

	if c.auditLog != nil {
		c.auditLog.Record(types.EventFuseCompleted, map[string]interface{}{
			"level": target.String(),
		}, triggerID)
	}
	if c.bus != nil {
		c.bus.Publish(TopicLevelChanged, LevelChange{From: prev, To: target, Index: index})
	}
	return true
}

// executeLevelActions 执行某级别尚未执行过的动作
//
// 自上次回到正常级别以来执行过的动作不再重复执行。单个动作
// 的失败由验证器的策略链消化，不中断同级别的其余动作。
func (c *FuseController) executeLevelActions(ctx context.Context, level types.FuseLevel, index float64) {
	names := c.actionOpts.LevelActions[level]

	c.mu.Lock()
	if c.executed[level] == nil {
		c.executed[level] = make(map[string]bool)
	}
	pending := make([]types.MitigationAction, 0, len(names))
	for _, name := range names {
		if c.executed[level][name] {
			continue
		}
		for _, action := range c.actionOpts.Catalog {
			if action.Name == name {
				pending = append(pending, action)
				break
			}
		}
	}
	c.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	selected := c.sched.SelectOptimal(pending, index, len(pending))
	for _, action := range selected {
		if ctx.Err() != nil {
			return
		}

		result := c.validator.ExecuteWithRecovery(ctx, action.Name)

		c.mu.Lock()
		c.executed[level][action.Name] = true
		c.mu.Unlock()

		record := types.ActionRecord{
			Action:    action.Name,
			Level:     level,
			Timestamp: c.clock.Now(),
			Success:   result.Success,
		}
		c.appendHistory(record)
	}
}

// stepDown 降一级，回到正常级别时执行完整的恢复流程
func (c *FuseController) stepDown(ctx context.Context, index float64) {
	c.execMu.Lock()
	defer c.execMu.Unlock()

	c.mu.Lock()
	prev := c.level
	if prev == types.FuseLevelNormal {
		c.mu.Unlock()
		return
	}

	target := types.FuseLevelNormal
	if c.opts.StepRecovery {
		target = prev.StepDown()
	}
	c.level = target
	// 降级后重新计时，连续降级需要各自满足冷却期
	c.belowSince = time.Time{}
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Info("熔断级别回落",
			zap.String("from", prev.String()),
			zap.String("to", target.String()),
			zap.Float64("pressure_index", index))
	}

	if target == types.FuseLevelNormal {
		c.restoreNormal(ctx)
	}

	if c.auditLog != nil {
		c.auditLog.Record(types.EventSystemStateChange, map[string]interface{}{
			"from":  prev.String(),
			"to":    target.String(),
			"index": index,
		})
	}
	c.appendHistory(types.ActionRecord{
		Action:      "step_down",
		Level:       prev,
		TargetLevel: target,
		Timestamp:   c.clock.Now(),
		Success:     true,
	})
	if c.bus != nil {
		c.bus.Publish(TopicLevelChanged, LevelChange{From: prev, To: target, Index: index})
	}
}

// restoreNormal 回到正常级别时恢复被缓解动作改动的状态
func (c *FuseController) restoreNormal(ctx context.Context) {
	c.mu.Lock()
	hasSaved := c.hasSavedLevel
	saved := c.savedLogLevel
	c.hasSavedLevel = false
	c.executed = make(map[types.FuseLevel]map[string]bool)
	c.mu.Unlock()

	if hasSaved && c.levelCtrl != nil {
		c.levelCtrl.SetLevel(saved)
	}
	if c.gate != nil {
		c.gate.Resume()
	}
	if c.degradation != nil {
		c.degradation.Reset()
	}

	if c.coordinator != nil {
		if len(c.coordinator.Pending()) > 0 {
			c.coordinator.Rollback(ctx)
		}
		// 全部恢复完才清掉快照，失败的子集留给下一轮
		if len(c.coordinator.Pending()) == 0 {
			c.coordinator.ClearSnapshot()
		}
	}
}

// ForceTrigger 手动触发指定级别的熔断
//
// testMode 只记录事件不执行动作，用于演练审计链路。
// 稳定窗口内的重复触发同样被抑制，此时返回 false。
func (c *FuseController) ForceTrigger(ctx context.Context, level types.FuseLevel, testMode bool) (bool, error) {
	if level <= types.FuseLevelNormal || level > types.FuseLevelEmergency {
		return false, fmt.Errorf("无效的触发级别: %v", level)
	}

	index := c.monitor.Index()

	if testMode {
		if c.auditLog != nil {
			c.auditLog.Record(types.EventCustom, map[string]interface{}{
				"forced":    true,
				"test_mode": true,
				"level":     level.String(),
				"index":     index,
			})
		}
		if c.logger != nil {
			c.logger.Info("测试模式触发，仅记录不执行",
				zap.String("level", level.String()))
		}
		return true, nil
	}

	return c.trigger(ctx, level, index), nil
}

// RegisterAction 注册自定义缓解动作并挂到指定级别
func (c *FuseController) RegisterAction(action types.MitigationAction, handler governor.ActionHandler, level types.FuseLevel) error {
	if action.Name == "" {
		return fmt.Errorf("动作名不能为空")
	}
	if level <= types.FuseLevelNormal || level > types.FuseLevelEmergency {
		return fmt.Errorf("无效的挂载级别: %v", level)
	}

	c.mu.Lock()
	replaced := false
	for i := range c.actionOpts.Catalog {
		if c.actionOpts.Catalog[i].Name == action.Name {
			c.actionOpts.Catalog[i] = action
			replaced = true
			break
		}
	}
	if !replaced {
		c.actionOpts.Catalog = append(c.actionOpts.Catalog, action)
	}

	attached := false
	for _, name := range c.actionOpts.LevelActions[level] {
		if name == action.Name {
			attached = true
			break
		}
	}
	if !attached {
		c.actionOpts.LevelActions[level] = append(c.actionOpts.LevelActions[level], action.Name)
	}
	c.mu.Unlock()

	c.validator.RegisterHandler(action.Name, handler)
	c.sched.RegisterWeight(action.Name, action.ImpactWeight)

	if c.logger != nil {
		c.logger.Info("自定义动作已注册",
			zap.String("action", action.Name),
			zap.String("level", level.String()))
	}
	return nil
}

// UnregisterAction 注销缓解动作
//
// 从目录、各级别的动作集合与处理器表中一并移除。
// 注销内置动作与注销自定义动作走同一条路径。
func (c *FuseController) UnregisterAction(name string) error {
	if name == "" {
		return fmt.Errorf("动作名不能为空")
	}

	c.mu.Lock()
	found := false
	for i := range c.actionOpts.Catalog {
		if c.actionOpts.Catalog[i].Name == name {
			c.actionOpts.Catalog = append(c.actionOpts.Catalog[:i], c.actionOpts.Catalog[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		c.mu.Unlock()
		return fmt.Errorf("动作 %q 未注册", name)
	}
	for level, names := range c.actionOpts.LevelActions {
		filtered := make([]string, 0, len(names))
		for _, n := range names {
			if n != name {
				filtered = append(filtered, n)
			}
		}
		c.actionOpts.LevelActions[level] = filtered
	}
	c.mu.Unlock()

	c.validator.UnregisterHandler(name)

	if c.logger != nil {
		c.logger.Info("动作已注销", zap.String("action", name))
	}
	return nil
}

// appendHistory 追加动作历史，超出容量时淘汰最旧记录
func (c *FuseController) appendHistory(record types.ActionRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = append(c.history, record)
	if capacity := c.opts.HistoryCapacity; capacity > 0 && len(c.history) > capacity {
		c.history = c.history[len(c.history)-capacity:]
	}
}

// CurrentLevel 返回当前熔断级别
func (c *FuseController) CurrentLevel() types.FuseLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// ActionHistory 返回动作历史的副本，新记录在后
func (c *FuseController) ActionHistory() []types.ActionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.ActionRecord(nil), c.history...)
}

// Status 熔断器当前状态
type Status struct {
	Level            types.FuseLevel    `json:"level"`
	PressureIndex    float64            `json:"pressure_index"`
	Predicted        float64            `json:"predicted_index"`
	Trend            types.TrendResult  `json:"trend"`
	Escalating       bool               `json:"escalating"`
	BackgroundPaused bool               `json:"background_paused"`
	PendingRecovery  int                `json:"pending_recovery"`
	Degradation      DegradationProfile `json:"degradation"`
}

// GetStatus 汇总当前状态，供API与CLI展示
func (c *FuseController) GetStatus() Status {
	status := Status{
		Level:         c.CurrentLevel(),
		PressureIndex: c.monitor.Index(),
		Predicted:     c.monitor.Predict(0),
		Trend:         c.monitor.Trend(0),
		Escalating:    c.monitor.IsEscalating(),
	}
	if c.gate != nil {
		status.BackgroundPaused = c.gate.Paused()
	}
	if c.coordinator != nil {
		status.PendingRecovery = len(c.coordinator.Pending())
	}
	if c.degradation != nil {
		status.Degradation = c.degradation.Profile()
	}
	return status
}
