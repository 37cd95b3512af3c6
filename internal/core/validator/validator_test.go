package validator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	actionsconfig "github.com/visionclip/memfuse/internal/config/actions"
	"github.com/visionclip/memfuse/internal/core/audit"
	"github.com/visionclip/memfuse/pkg/types"
)

// queueSampler 每次读取弹出一个使用率，耗尽后停在最后一个值
// 总内存固定10000MB，usedMB = 100 × 使用率
type queueSampler struct {
	mu     sync.Mutex
	series []float64
	pos    int
}

func newQueueSampler(series ...float64) *queueSampler {
	return &queueSampler{series: series}
}

func (s *queueSampler) next() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.series) == 0 {
		return 0
	}
	value := s.series[s.pos]
	if s.pos < len(s.series)-1 {
		s.pos++
	}
	return value
}

func (s *queueSampler) Sample() (float64, error) { return s.next(), nil }

func (s *queueSampler) Usage() (types.MemoryUsage, error) {
	value := s.next()
	return types.MemoryUsage{TotalMB: 10000, UsedPercent: value, ProcessRSS: 5000}, nil
}

// newTestValidator 构造带内存审计存储的验证器
func newTestValidator(t *testing.T, sampler *queueSampler) (*EffectValidator, *audit.MemoryStore) {
	t.Helper()
	store := audit.NewMemoryStore(100)
	auditLog := audit.NewFuseAudit(store, nil, nil, zap.NewNop())
	v := NewEffectValidator(actionsconfig.New(nil).GetOptions(), sampler, nil, auditLog, zap.NewNop())
	v.settleDelay = time.Millisecond
	return v, store
}

// TestExecuteAndValidate 测试执行与验证
func TestExecuteAndValidate(t *testing.T) {
	ctx := context.Background()

	t.Run("释放量达标判定成功", func(t *testing.T) {
		// force_gc 预期释放150MB：80%→76% 释放400MB
		v, _ := newTestValidator(t, newQueueSampler(80, 76))
		v.RegisterHandler("force_gc", func(ctx context.Context) error { return nil })

		result := v.ExecuteAndValidate(ctx, "force_gc")

		assert.True(t, result.Success)
		assert.InDelta(t, 400.0, result.ReductionMB, 0.001)
		assert.InDelta(t, 150.0, result.ExpectedReduction, 0.001)
	})

	t.Run("释放量不足判定失败", func(t *testing.T) {
		// 80%→79.5% 只释放50MB，低于预期150MB
		v, _ := newTestValidator(t, newQueueSampler(80, 79.5))
		v.RegisterHandler("force_gc", func(ctx context.Context) error { return nil })

		result := v.ExecuteAndValidate(ctx, "force_gc")

		assert.False(t, result.Success)
		assert.InDelta(t, 50.0, result.ReductionMB, 0.001)
	})

	t.Run("超出时间预算判定失败", func(t *testing.T) {
		v, _ := newTestValidator(t, newQueueSampler(80, 60))
		for i := range v.opts.Catalog {
			if v.opts.Catalog[i].Name == "force_gc" {
				v.opts.Catalog[i].MaxExecTime = time.Nanosecond
			}
		}
		v.RegisterHandler("force_gc", func(ctx context.Context) error {
			time.Sleep(time.Millisecond)
			return nil
		})

		result := v.ExecuteAndValidate(ctx, "force_gc")
		assert.False(t, result.Success, "释放量足够但超时仍算失败")
	})

	t.Run("未注册动作返回失败结果而非错误", func(t *testing.T) {
		v, _ := newTestValidator(t, newQueueSampler(80))
		result := v.ExecuteAndValidate(ctx, "no_such_action")
		assert.False(t, result.Success)
	})

	t.Run("处理器panic被吸收", func(t *testing.T) {
		v, _ := newTestValidator(t, newQueueSampler(80, 80))
		v.RegisterHandler("force_gc", func(ctx context.Context) error {
			panic("boom")
		})

		assert.NotPanics(t, func() {
			result := v.ExecuteAndValidate(ctx, "force_gc")
			assert.False(t, result.Success)
		})
	})

	t.Run("稳定等待随注入时钟推进", func(t *testing.T) {
		mock := clock.NewMock()
		v := NewEffectValidator(actionsconfig.New(nil).GetOptions(), newQueueSampler(80, 76), mock, nil, zap.NewNop())
		v.SetSettleDelay(200 * time.Millisecond)
		v.RegisterHandler("force_gc", func(ctx context.Context) error { return nil })

		done := make(chan types.ValidationResult, 1)
		go func() { done <- v.ExecuteAndValidate(ctx, "force_gc") }()

		deadline := time.After(time.Second)
		for {
			select {
			case result := <-done:
				assert.True(t, result.Success)
				return
			case <-deadline:
				t.Fatal("稳定等待未随时钟推进结束")
			default:
				mock.Add(50 * time.Millisecond)
				time.Sleep(time.Millisecond)
			}
		}
	})

	t.Run("验证结果写入审计", func(t *testing.T) {
		v, store := newTestValidator(t, newQueueSampler(80, 76))
		v.RegisterHandler("force_gc", func(ctx context.Context) error { return nil })
		v.ExecuteAndValidate(ctx, "force_gc")

		events, err := store.QueryEvents(types.EventFilter{EventType: types.EventValidationResult}, types.TimeRange{}, 0)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "force_gc", events[0].Details["action"])
	})
}

// TestExecuteWithRecovery 测试失败策略链
func TestExecuteWithRecovery(t *testing.T) {
	ctx := context.Background()

	t.Run("重试耗尽后升级成功", func(t *testing.T) {
		// force_gc 三次（首次+2次重试）均无效，升级到 release_resources 释放750MB
		v, _ := newTestValidator(t, newQueueSampler(80, 79.5, 79.5, 79.5, 79.5, 79.5, 79.5, 72))

		gcCalls, releaseCalls := 0, 0
		v.RegisterHandler("force_gc", func(ctx context.Context) error {
			gcCalls++
			return nil
		})
		v.RegisterHandler("release_resources", func(ctx context.Context) error {
			releaseCalls++
			return nil
		})

		result := v.ExecuteWithRecovery(ctx, "force_gc")

		assert.True(t, result.Success)
		assert.Equal(t, "release_resources", result.Action)
		assert.Equal(t, 3, gcCalls, "首次执行加上2次重试")
		assert.Equal(t, 1, releaseCalls)
	})

	t.Run("无升级目标时触发告警", func(t *testing.T) {
		// kill_process 零重试预算且无升级目标
		v, store := newTestValidator(t, newQueueSampler(80, 80))
		v.RegisterHandler("kill_process", func(ctx context.Context) error {
			return errors.New("not permitted")
		})

		result := v.ExecuteWithRecovery(ctx, "kill_process")
		assert.False(t, result.Success)

		alerts, err := store.QueryEvents(types.EventFilter{EventType: types.EventErrorOccurred}, types.TimeRange{}, 0)
		require.NoError(t, err)
		require.NotEmpty(t, alerts)
		assert.Equal(t, true, alerts[0].Details["alert"])
	})

	t.Run("升级动作失败同样告警", func(t *testing.T) {
		v, store := newTestValidator(t, newQueueSampler(80))
		v.RegisterHandler("force_gc", func(ctx context.Context) error { return nil })
		v.RegisterHandler("release_resources", func(ctx context.Context) error { return nil })

		result := v.ExecuteWithRecovery(ctx, "force_gc")
		assert.False(t, result.Success)

		alerts, err := store.QueryEvents(types.EventFilter{EventType: types.EventErrorOccurred}, types.TimeRange{}, 0)
		require.NoError(t, err)
		assert.NotEmpty(t, alerts)
	})
}

// TestFallback 测试备选策略
func TestFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("任一备选成功即止", func(t *testing.T) {
		// clear_cache 无效，force_gc 释放400MB
		v, _ := newTestValidator(t, newQueueSampler(80, 80, 80, 76))
		v.RegisterHandler("clear_cache", func(ctx context.Context) error { return nil })

		calls := 0
		v.RegisterHandler("force_gc", func(ctx context.Context) error {
			calls++
			return nil
		})
		v.RegisterHandler("pause_background", func(ctx context.Context) error {
			t.Fatal("成功之后不应继续尝试备选")
			return nil
		})

		result := v.Fallback(ctx, []string{"clear_cache", "force_gc", "pause_background"})
		assert.True(t, result.Success)
		assert.Equal(t, 1, calls)
	})

	t.Run("全部失败触发告警", func(t *testing.T) {
		v, store := newTestValidator(t, newQueueSampler(80))
		v.RegisterHandler("clear_cache", func(ctx context.Context) error { return nil })

		result := v.Fallback(ctx, []string{"clear_cache"})
		assert.False(t, result.Success)

		alerts, err := store.QueryEvents(types.EventFilter{EventType: types.EventErrorOccurred}, types.TimeRange{}, 0)
		require.NoError(t, err)
		assert.NotEmpty(t, alerts)
	})
}

// TestCombine 测试组合策略
func TestCombine(t *testing.T) {
	ctx := context.Background()

	// force_gc 释放400MB 成功，clear_cache 无效
	v, store := newTestValidator(t, newQueueSampler(80, 76, 76, 76))
	v.RegisterHandler("force_gc", func(ctx context.Context) error { return nil })
	v.RegisterHandler("clear_cache", func(ctx context.Context) error { return nil })

	results := v.Combine(ctx, []string{"force_gc", "clear_cache"})
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)

	alerts, err := store.QueryEvents(types.EventFilter{EventType: types.EventErrorOccurred}, types.TimeRange{}, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, alerts, "组合中存在失败项应告警")
}

// TestHistory 测试验证历史
func TestHistory(t *testing.T) {
	v, _ := newTestValidator(t, newQueueSampler(80, 76, 76, 72))
	v.RegisterHandler("force_gc", func(ctx context.Context) error { return nil })

	v.ExecuteAndValidate(context.Background(), "force_gc")
	v.ExecuteAndValidate(context.Background(), "force_gc")

	history := v.History()
	require.Len(t, history, 2)
	assert.Equal(t, "force_gc", history[0].Action)
}

// TestValidationPeakUsage 测试验证附带执行窗口内的峰值使用率
func TestValidationPeakUsage(t *testing.T) {
	v, _ := newTestValidator(t, newQueueSampler(80, 76))
	v.SetSettleDelay(50 * time.Millisecond)
	v.opts.RecordInterval = 2 * time.Millisecond
	v.SetRecorder(NewIntervalRecorder(newQueueSampler(91)))
	v.RegisterHandler("force_gc", func(ctx context.Context) error { return nil })

	result := v.ExecuteAndValidate(context.Background(), "force_gc")

	assert.True(t, result.Success)
	assert.InDelta(t, 91.0, result.PeakUsagePercent, 0.001, "峰值来自执行窗口内的记录器采样")
}

// TestIntervalRecorder 测试内存走势记录器
func TestIntervalRecorder(t *testing.T) {
	recorder := NewIntervalRecorder(newQueueSampler(50, 55, 60, 65, 70))

	ctx, cancel := context.WithCancel(context.Background())
	read := recorder.Record(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return len(read()) >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	final := read()
	assert.GreaterOrEqual(t, len(final), 3)
	assert.Equal(t, 50.0, final[0].UsagePercent)
}
