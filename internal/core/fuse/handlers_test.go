package fuse

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	actionsconfig "github.com/visionclip/memfuse/internal/config/actions"
	"github.com/visionclip/memfuse/internal/core/audit"
	"github.com/visionclip/memfuse/internal/core/registry"
	"github.com/visionclip/memfuse/pkg/types"
)

// newTestHandlers 构造处理器集合与配套的注册表
func newTestHandlers(t *testing.T) (*Handlers, *registry.ResourceRegistry, *DegradationState) {
	t.Helper()
	logger := zap.NewNop()
	auditLog := audit.NewFuseAudit(audit.NewMemoryStore(100), nil, nil, logger)
	reg := registry.NewResourceRegistry(5, auditLog, logger)
	degradation := NewDegradationState()
	params := actionsconfig.New(nil).GetOptions().HandlerParams
	h := NewHandlers(params, nil, nil, reg, &BackgroundGate{}, degradation, logger)
	return h, reg, degradation
}

// TestDegradeQuality 测试画质降级动作
func TestDegradeQuality(t *testing.T) {
	h, _, degradation := newTestHandlers(t)

	require.False(t, degradation.Profile().Degraded())
	require.NoError(t, h.DegradeQuality(context.Background()))

	profile := degradation.Profile()
	assert.True(t, profile.Degraded())
	assert.Equal(t, "low", profile.RenderQuality)
	assert.Equal(t, "720p", profile.PreviewResolution)
	assert.Equal(t, "proxy", profile.PlaybackQuality)
}

// TestDisableFeatures 测试非核心功能关停
func TestDisableFeatures(t *testing.T) {
	h, reg, degradation := newTestHandlers(t)

	reg.Register("bgm-cache", nil, types.ResourceMetadata{Type: types.ResourceAudioCache, SizeMB: 64})
	reg.Register("scratch", nil, types.ResourceMetadata{Type: types.ResourceTempBuffer, SizeMB: 32})
	reg.Register("shard-0", nil, types.ResourceMetadata{Type: types.ResourceModelShard, SizeMB: 1024})

	require.NoError(t, h.DisableFeatures(context.Background()))

	assert.True(t, degradation.FeatureDisabled("auto_preview"))
	assert.True(t, degradation.FeatureDisabled("waveform_render"))

	remaining := reg.SnapshotAll()
	ids := make([]string, len(remaining))
	for i, snap := range remaining {
		ids[i] = snap.ResourceID
	}
	assert.Equal(t, []string{"shard-0"}, ids, "音频缓存与临时缓冲被释放，模型分片保留")
}

// TestSwitchToLightweightModels 测试轻量模型切换
func TestSwitchToLightweightModels(t *testing.T) {
	h, reg, degradation := newTestHandlers(t)

	reg.Register("weights-full", nil, types.ResourceMetadata{Type: types.ResourceModelWeights, SizeMB: 2048})
	reg.Register("shard-0", nil, types.ResourceMetadata{Type: types.ResourceModelShard, SizeMB: 1024})

	require.NoError(t, h.SwitchToLightweightModels(context.Background()))

	assert.True(t, degradation.Profile().LightweightModels)
	remaining := reg.SnapshotAll()
	require.Len(t, remaining, 1, "只卸全精度权重，分片保留")
	assert.Equal(t, "shard-0", remaining[0].ResourceID)
}

// TestActivateSurvivalMode 测试生存模式组合动作
func TestActivateSurvivalMode(t *testing.T) {
	h, reg, degradation := newTestHandlers(t)

	reg.Register("bgm-cache", nil, types.ResourceMetadata{Type: types.ResourceAudioCache, SizeMB: 64})

	require.NoError(t, h.ActivateSurvivalMode(context.Background()))

	profile := degradation.Profile()
	assert.True(t, profile.SurvivalMode)
	assert.NotEmpty(t, profile.DisabledFeatures, "生存模式一并关停非核心功能")
	assert.True(t, h.gate.Paused(), "生存模式暂停后台任务")
	assert.Empty(t, reg.SnapshotAll(), "功能占用的资源被释放")
}

// TestKillLargestProcess 测试外部大户进程终止
func TestKillLargestProcess(t *testing.T) {
	t.Run("排除名单与占比下限生效", func(t *testing.T) {
		h, _, _ := newTestHandlers(t)
		h.listProcesses = func() ([]processInfo, error) {
			return []processInfo{
				{PID: 101, Name: "memfuse-agent", MemPercent: 45, RSSMB: 3600},
				{PID: 102, Name: "render_worker", MemPercent: 30, RSSMB: 2400},
				{PID: 103, Name: "ffmpeg", MemPercent: 38, RSSMB: 3000},
				{PID: 104, Name: "bash", MemPercent: 5, RSSMB: 400},
			}, nil
		}
		var killed []int
		h.kill = func(pid int) error {
			killed = append(killed, pid)
			return nil
		}

		require.NoError(t, h.KillLargestProcess(context.Background()))
		assert.Equal(t, []int{103}, killed, "排除同名进程与小占用后终止最大的候选")
	})

	t.Run("自身进程永不入选", func(t *testing.T) {
		h, _, _ := newTestHandlers(t)
		h.listProcesses = func() ([]processInfo, error) {
			return []processInfo{
				{PID: os.Getpid(), Name: "handler.test", MemPercent: 90, RSSMB: 7200},
				{PID: 200, Name: "bash", MemPercent: 3, RSSMB: 240},
			}, nil
		}
		var killed []int
		h.kill = func(pid int) error {
			killed = append(killed, pid)
			return nil
		}

		require.NoError(t, h.KillLargestProcess(context.Background()))
		assert.Empty(t, killed, "没有候选时不终止任何进程")
	})

	t.Run("扫描失败返回错误", func(t *testing.T) {
		h, _, _ := newTestHandlers(t)
		h.listProcesses = func() ([]processInfo, error) {
			return nil, errors.New("proc not mounted")
		}
		assert.Error(t, h.KillLargestProcess(context.Background()))
	})
}

// TestDegradationState 测试降级状态机
func TestDegradationState(t *testing.T) {
	s := NewDegradationState()

	t.Run("空串维度保持不变", func(t *testing.T) {
		s.DegradeQuality("low", "", "")
		profile := s.Profile()
		assert.Equal(t, "low", profile.RenderQuality)
		assert.Empty(t, profile.PreviewResolution)
	})

	t.Run("重复关停幂等", func(t *testing.T) {
		s.DisableFeatures([]string{"auto_preview", "auto_preview", ""})
		assert.Equal(t, []string{"auto_preview"}, s.Profile().DisabledFeatures)
	})

	t.Run("重置后回到正常档位", func(t *testing.T) {
		s.SwitchToLightweight()
		s.EnterSurvivalMode()
		require.True(t, s.Profile().Degraded())

		s.Reset()
		assert.False(t, s.Profile().Degraded())
		assert.False(t, s.FeatureDisabled("auto_preview"))
	})
}
