package fuse

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	actionsconfig "github.com/visionclip/memfuse/internal/config/actions"
	fuseconfig "github.com/visionclip/memfuse/internal/config/fuse"
	monitorconfig "github.com/visionclip/memfuse/internal/config/monitor"
	"github.com/visionclip/memfuse/internal/core/audit"
	"github.com/visionclip/memfuse/internal/core/monitor"
	"github.com/visionclip/memfuse/internal/core/recovery"
	"github.com/visionclip/memfuse/internal/core/registry"
	"github.com/visionclip/memfuse/internal/core/scheduler"
	"github.com/visionclip/memfuse/internal/core/validator"
	logiface "github.com/visionclip/memfuse/pkg/interfaces/infrastructure/log"
	"github.com/visionclip/memfuse/pkg/types"
)

// swingSampler 交替返回高低使用率，让每个动作的验证都通过
type swingSampler struct {
	mu   sync.Mutex
	high bool
}

func (s *swingSampler) value() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.high = !s.high
	if s.high {
		return 90
	}
	return 50
}

func (s *swingSampler) Sample() (float64, error) { return s.value(), nil }

func (s *swingSampler) Usage() (types.MemoryUsage, error) {
	return types.MemoryUsage{TotalMB: 10000, UsedPercent: s.value(), ProcessRSS: 4000}, nil
}

// fakeLevelCtrl 记录日志级别变化的控制器
type fakeLevelCtrl struct {
	mu    sync.Mutex
	level logiface.LogLevel
}

func (f *fakeLevelCtrl) SetLevel(level logiface.LogLevel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.level = level
}

func (f *fakeLevelCtrl) GetLevel() logiface.LogLevel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level
}

// harness 控制器测试装置
type harness struct {
	controller  *FuseController
	monitor     *monitor.PressureMonitor
	store       *audit.MemoryStore
	levelCtrl   *fakeLevelCtrl
	gate        *BackgroundGate
	degradation *DegradationState
	clock       *clock.Mock
	registry    *registry.ResourceRegistry

	mu      sync.Mutex
	actions []string // 已执行动作的顺序记录
}

// executedActions 返回已执行动作的副本
func (h *harness) executedActions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.actions...)
}

// newHarness 构造完整的控制器测试装置
// 阈值压低到 70/80/90，动作处理器全部替换为记录桩，
// 控制器走模拟时钟，冷却与稳定窗口由 h.clock.Add 推进
func newHarness(t *testing.T, series []float64, mutate func(*fuseconfig.FuseOptions)) *harness {
	t.Helper()

	logger := zap.NewNop()
	store := audit.NewMemoryStore(500)
	auditLog := audit.NewFuseAudit(store, nil, nil, logger)

	m := monitor.NewPressureMonitor(monitorconfig.New(nil).GetOptions(), monitor.NewScriptedSampler(series), nil, nil, logger)

	actionOpts := actionsconfig.New(nil).GetOptions()
	v := validator.NewEffectValidator(actionOpts, &swingSampler{}, nil, auditLog, logger)
	v.SetSettleDelay(time.Millisecond)

	h := &harness{store: store, monitor: m, levelCtrl: &fakeLevelCtrl{level: logiface.InfoLevel}, gate: &BackgroundGate{}, degradation: NewDegradationState(), clock: clock.NewMock()}

	for _, action := range actionOpts.Catalog {
		name := action.Name
		v.RegisterHandler(name, func(ctx context.Context) error {
			h.mu.Lock()
			h.actions = append(h.actions, name)
			h.mu.Unlock()
			// 与真实处理器一致：收紧日志级别的效果要能被恢复流程回填
			if name == "reduce_log_verbosity" {
				h.levelCtrl.SetLevel(logiface.ErrorLevel)
			}
			return nil
		})
	}

	reg := registry.NewResourceRegistry(5, auditLog, logger)
	h.registry = reg
	coordinator := recovery.NewRecoveryCoordinator(reg, func() float64 { return 40 }, t.TempDir(), nil, auditLog, logger)

	fuseOpts := fuseconfig.New(nil).GetOptions()
	fuseOpts.Thresholds[types.FuseLevelWarning] = 70
	fuseOpts.Thresholds[types.FuseLevelCritical] = 80
	fuseOpts.Thresholds[types.FuseLevelEmergency] = 90
	if mutate != nil {
		mutate(fuseOpts)
	}

	h.controller = NewFuseController(
		fuseOpts, actionOpts, m,
		scheduler.NewActionScheduler(logger),
		v, coordinator, h.levelCtrl, h.gate, h.degradation, h.clock, auditLog, nil, logger,
	)
	return h
}

// step 采样一次并评估一轮
func (h *harness) step(t *testing.T) {
	t.Helper()
	require.NoError(t, h.monitor.SampleOnce())
	h.controller.Evaluate(context.Background())
}

// TestLevelProgression 测试压力递增下的逐级升级
func TestLevelProgression(t *testing.T) {
	h := newHarness(t, []float64{60, 75, 90, 97}, nil)

	expected := []types.FuseLevel{
		types.FuseLevelNormal,
		types.FuseLevelWarning,
		types.FuseLevelCritical,
		types.FuseLevelEmergency,
	}
	for _, want := range expected {
		h.step(t)
		assert.Equal(t, want, h.controller.CurrentLevel())
	}

	history := h.controller.ActionHistory()
	assert.NotEmpty(t, history)

	triggered, err := h.store.QueryEvents(types.EventFilter{EventType: types.EventFuseTriggered}, types.TimeRange{}, 0)
	require.NoError(t, err)
	assert.Len(t, triggered, 3, "每次升级记录一条触发事件")

	completed, err := h.store.QueryEvents(types.EventFilter{EventType: types.EventFuseCompleted}, types.TimeRange{}, 0)
	require.NoError(t, err)
	require.Len(t, completed, 3)
	assert.NotEmpty(t, completed[0].RelatedIDs, "完成事件关联触发事件")
}

// TestDirectJump 测试正常直接跃升到紧急级别
func TestDirectJump(t *testing.T) {
	t.Run("默认只执行目标级别的动作", func(t *testing.T) {
		h := newHarness(t, []float64{98}, nil)
		h.step(t)

		assert.Equal(t, types.FuseLevelEmergency, h.controller.CurrentLevel())
		emergency := []string{"switch_to_lightweight_models", "unload_model", "activate_survival_mode", "kill_largest_process", "kill_process"}
		for _, name := range h.executedActions() {
			assert.Contains(t, emergency, name, "不应执行跳过级别的动作")
		}
		assert.NotEmpty(t, h.executedActions())
	})

	t.Run("开启补执行时跳过的级别一并执行", func(t *testing.T) {
		h := newHarness(t, []float64{98}, func(opts *fuseconfig.FuseOptions) {
			opts.ExecuteSkippedLevels = true
		})
		h.step(t)

		executed := h.executedActions()
		assert.Contains(t, executed, "unload_model")
		// 压力满格时各级别全量执行，警告级动作也被补上
		assert.Contains(t, executed, "reduce_log_verbosity")
	})
}

// TestStabilizeWindow 测试稳定窗口抑制重复触发
func TestStabilizeWindow(t *testing.T) {
	h := newHarness(t, []float64{75, 75, 75}, nil)

	h.step(t)
	require.Equal(t, types.FuseLevelWarning, h.controller.CurrentLevel())

	ok, err := h.controller.ForceTrigger(context.Background(), types.FuseLevelWarning, false)
	require.NoError(t, err)
	assert.False(t, ok, "稳定窗口内的强制触发被抑制")

	t.Run("窗口期满后允许再次触发", func(t *testing.T) {
		h.clock.Add(h.controller.opts.StabilizeWindow + time.Second)

		ok, err := h.controller.ForceTrigger(context.Background(), types.FuseLevelWarning, false)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

// TestForceTrigger 测试手动触发
func TestForceTrigger(t *testing.T) {
	t.Run("测试模式只记录不执行", func(t *testing.T) {
		h := newHarness(t, []float64{50}, nil)
		h.step(t)

		ok, err := h.controller.ForceTrigger(context.Background(), types.FuseLevelCritical, true)
		require.NoError(t, err)
		assert.True(t, ok)

		assert.Equal(t, types.FuseLevelNormal, h.controller.CurrentLevel(), "测试模式不改变级别")
		assert.Empty(t, h.executedActions())

		events, err := h.store.QueryEvents(types.EventFilter{EventType: types.EventCustom}, types.TimeRange{}, 0)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, true, events[0].Details["test_mode"])
	})

	t.Run("真实触发执行动作并改变级别", func(t *testing.T) {
		h := newHarness(t, []float64{50}, nil)
		h.step(t)

		ok, err := h.controller.ForceTrigger(context.Background(), types.FuseLevelWarning, false)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, types.FuseLevelWarning, h.controller.CurrentLevel())
		assert.NotEmpty(t, h.executedActions())
	})

	t.Run("拒绝无效级别", func(t *testing.T) {
		h := newHarness(t, []float64{50}, nil)
		_, err := h.controller.ForceTrigger(context.Background(), types.FuseLevelNormal, false)
		assert.Error(t, err)
	})
}

// TestRecoveryPath 测试压力回落后的逐级恢复
func TestRecoveryPath(t *testing.T) {
	// 先升到警告级，然后压力回落
	h := newHarness(t, []float64{75, 40, 40, 40}, func(opts *fuseconfig.FuseOptions) {
		opts.RecoveryCooldown = time.Millisecond
	})

	h.step(t)
	require.Equal(t, types.FuseLevelWarning, h.controller.CurrentLevel())
	assert.Equal(t, logiface.ErrorLevel, h.levelCtrl.GetLevel(), "警告级动作收紧了日志级别")

	// 模拟降级动作的效果，回到正常级别时应被整体重置
	h.degradation.DegradeQuality("low", "720p", "proxy")

	h.step(t) // 低压计时开始
	require.Equal(t, types.FuseLevelWarning, h.controller.CurrentLevel())

	h.clock.Add(5 * time.Millisecond)
	h.step(t) // 冷却期已满，降回正常

	assert.Equal(t, types.FuseLevelNormal, h.controller.CurrentLevel())
	assert.Equal(t, logiface.InfoLevel, h.levelCtrl.GetLevel(), "回到正常级别时恢复日志级别")
	assert.False(t, h.gate.Paused())
	assert.False(t, h.degradation.Profile().Degraded(), "回到正常级别时画质档位复原")

	changes, err := h.store.QueryEvents(types.EventFilter{EventType: types.EventSystemStateChange}, types.TimeRange{}, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, changes)
}

// TestStepwiseRecovery 测试逐级降级需要各自的冷却期
func TestStepwiseRecovery(t *testing.T) {
	h := newHarness(t, []float64{85, 40, 40, 40, 40, 40}, func(opts *fuseconfig.FuseOptions) {
		opts.RecoveryCooldown = time.Millisecond
	})

	h.step(t)
	require.Equal(t, types.FuseLevelCritical, h.controller.CurrentLevel())

	h.step(t) // 计时开始
	h.clock.Add(5 * time.Millisecond)
	h.step(t)
	assert.Equal(t, types.FuseLevelWarning, h.controller.CurrentLevel(), "一次只降一级")

	h.step(t) // 重新计时
	h.clock.Add(5 * time.Millisecond)
	h.step(t)
	assert.Equal(t, types.FuseLevelNormal, h.controller.CurrentLevel())
}

// TestExecutedSetPreventsDuplicates 测试已执行集合抑制重复动作
func TestExecutedSetPreventsDuplicates(t *testing.T) {
	h := newHarness(t, []float64{75, 40, 95, 75}, func(opts *fuseconfig.FuseOptions) {
		opts.StabilizeWindow = 0
		opts.RecoveryCooldown = 0
	})

	h.step(t) // WARNING 触发
	firstRun := len(h.executedActions())
	require.NotZero(t, firstRun)

	h.step(t) // 低压采样，只开始降级计时
	h.step(t) // 95 → CRITICAL

	require.Equal(t, types.FuseLevelCritical, h.controller.CurrentLevel())

	// 回落一级再升回 CRITICAL：执行过的临界级动作不再重复
	h.controller.stepDown(context.Background(), 40)
	require.Equal(t, types.FuseLevelWarning, h.controller.CurrentLevel())

	h.step(t)
	_, err := h.controller.ForceTrigger(context.Background(), types.FuseLevelCritical, false)
	require.NoError(t, err)

	// 未回到正常级别，同一动作在整个周期内各至多执行一次
	counts := map[string]int{}
	for _, name := range h.executedActions() {
		counts[name]++
	}
	assert.LessOrEqual(t, counts["force_gc"], 1)
	assert.LessOrEqual(t, counts["pause_background"], 1)
	assert.LessOrEqual(t, counts["release_resources"], 1)
}

// TestExecutedSetClearedAtNormal 测试回到正常级别后动作可再次执行
func TestExecutedSetClearedAtNormal(t *testing.T) {
	h := newHarness(t, []float64{75, 40, 40, 95}, func(opts *fuseconfig.FuseOptions) {
		opts.StabilizeWindow = 0
		opts.RecoveryCooldown = time.Millisecond
	})

	h.step(t)
	require.Equal(t, types.FuseLevelWarning, h.controller.CurrentLevel())
	firstRun := len(h.executedActions())

	h.step(t)
	h.clock.Add(5 * time.Millisecond)
	h.step(t)
	require.Equal(t, types.FuseLevelNormal, h.controller.CurrentLevel())

	h.step(t)
	require.Equal(t, types.FuseLevelWarning, h.controller.CurrentLevel())
	assert.Greater(t, len(h.executedActions()), firstRun, "回到正常后警告级动作重新执行")
}

// TestRegisterAction 测试自定义动作注册
func TestRegisterAction(t *testing.T) {
	h := newHarness(t, []float64{50}, nil)

	called := false
	err := h.controller.RegisterAction(types.MitigationAction{
		Name:                "drop_preview_frames",
		ImpactWeight:        0.05,
		ExpectedReductionMB: 50,
		MaxExecTime:         5 * time.Second,
	}, func(ctx context.Context) error {
		called = true
		return nil
	}, types.FuseLevelWarning)
	require.NoError(t, err)

	h.step(t)
	ok, err := h.controller.ForceTrigger(context.Background(), types.FuseLevelWarning, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, called, "自定义动作随警告级触发执行")

	t.Run("拒绝空动作名", func(t *testing.T) {
		err := h.controller.RegisterAction(types.MitigationAction{}, func(ctx context.Context) error { return nil }, types.FuseLevelWarning)
		assert.Error(t, err)
	})
}

// TestUnregisterAction 测试动作注销
func TestUnregisterAction(t *testing.T) {
	h := newHarness(t, []float64{50}, nil)

	t.Run("注销后动作不再执行", func(t *testing.T) {
		require.NoError(t, h.controller.UnregisterAction("reduce_log_verbosity"))

		h.step(t)
		ok, err := h.controller.ForceTrigger(context.Background(), types.FuseLevelWarning, false)
		require.NoError(t, err)
		require.True(t, ok)

		assert.NotContains(t, h.executedActions(), "reduce_log_verbosity")
		assert.NotEmpty(t, h.executedActions(), "同级别的其余动作照常执行")
	})

	t.Run("注销未知动作报错", func(t *testing.T) {
		assert.Error(t, h.controller.UnregisterAction("no_such_action"))
		assert.Error(t, h.controller.UnregisterAction(""))
	})
}

// TestGetStatus 测试状态汇总
func TestGetStatus(t *testing.T) {
	h := newHarness(t, []float64{75}, nil)
	h.step(t)

	status := h.controller.GetStatus()
	assert.Equal(t, types.FuseLevelWarning, status.Level)
	assert.Greater(t, status.PressureIndex, 70.0)
}
