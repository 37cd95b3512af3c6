package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/visionclip/memfuse/internal/core/audit"
	"github.com/visionclip/memfuse/pkg/types"
)

// newTestRegistry 构造带内存审计存储的注册表
func newTestRegistry(t *testing.T) (*ResourceRegistry, *audit.MemoryStore) {
	t.Helper()
	store := audit.NewMemoryStore(100)
	auditLog := audit.NewFuseAudit(store, nil, nil, zap.NewNop())
	return NewResourceRegistry(5, auditLog, zap.NewNop()), store
}

// releaseEvents 取出全部资源释放审计事件
func releaseEvents(t *testing.T, store *audit.MemoryStore) []*types.FuseEvent {
	t.Helper()
	events, err := store.QueryEvents(types.EventFilter{EventType: types.EventResourceReleased}, types.TimeRange{}, 0)
	require.NoError(t, err)
	return events
}

// TestRegister 测试资源注册
func TestRegister(t *testing.T) {
	t.Run("注册后可查询", func(t *testing.T) {
		reg, _ := newTestRegistry(t)
		reg.Register("buf-1", []byte("data"), types.ResourceMetadata{Type: types.ResourceTempBuffer, SizeMB: 10})

		res, ok := reg.Get("buf-1")
		require.True(t, ok)
		assert.Equal(t, types.ResourceTempBuffer, res.Type)
		assert.Equal(t, 10.0, res.Metadata.SizeMB)
	})

	t.Run("重复注册覆盖旧条目", func(t *testing.T) {
		reg, _ := newTestRegistry(t)
		reg.Register("shard-1", "old", types.ResourceMetadata{Type: types.ResourceModelShard, SizeMB: 100})
		reg.Register("shard-1", "new", types.ResourceMetadata{Type: types.ResourceModelShard, SizeMB: 200})

		assert.Equal(t, 1, reg.Len())
		res, ok := reg.Get("shard-1")
		require.True(t, ok)
		assert.Equal(t, "new", res.Payload)
		assert.Equal(t, 200.0, res.Metadata.SizeMB)
	})

	t.Run("无类型标签归入generic", func(t *testing.T) {
		reg, _ := newTestRegistry(t)
		reg.Register("x", nil, types.ResourceMetadata{SizeMB: 1})

		res, ok := reg.Get("x")
		require.True(t, ok)
		assert.Equal(t, types.ResourceGeneric, res.Type)
	})
}

// TestRelease 测试资源释放
func TestRelease(t *testing.T) {
	ctx := context.Background()

	t.Run("成功释放更新统计并写审计", func(t *testing.T) {
		reg, store := newTestRegistry(t)
		reg.Register("cache-1", nil, types.ResourceMetadata{Type: types.ResourceAudioCache, SizeMB: 64})

		freed, err := reg.Release(ctx, "cache-1")
		require.NoError(t, err)
		assert.Equal(t, 64.0, freed)
		assert.Equal(t, 0, reg.Len())

		stats := reg.Stats()
		assert.Equal(t, 1, stats.TotalReleased)
		assert.Equal(t, 1, stats.ByType[types.ResourceAudioCache])
		assert.Equal(t, 64.0, stats.EstimatedFreedMB)

		events := releaseEvents(t, store)
		require.Len(t, events, 1)
		assert.Equal(t, true, events[0].Details["success"])
	})

	t.Run("未注册ID失败且统计不变", func(t *testing.T) {
		reg, store := newTestRegistry(t)

		_, err := reg.Release(ctx, "ghost")
		require.Error(t, err)

		assert.Zero(t, reg.Stats().TotalReleased)
		events := releaseEvents(t, store)
		require.Len(t, events, 1, "失败的尝试同样要留审计痕迹")
		assert.Equal(t, false, events[0].Details["success"])
	})

	t.Run("固定资源拒绝释放且无副作用", func(t *testing.T) {
		reg, store := newTestRegistry(t)
		reg.Register("weights", nil, types.ResourceMetadata{Type: types.ResourceModelWeights, SizeMB: 2000, Pinned: true})

		_, err := reg.Release(ctx, "weights")
		require.Error(t, err)

		_, stillThere := reg.Get("weights")
		assert.True(t, stillThere)
		assert.Zero(t, reg.Stats().TotalReleased)
		require.Len(t, releaseEvents(t, store), 1)
	})

	t.Run("自定义释放器覆盖内置策略", func(t *testing.T) {
		reg, _ := newTestRegistry(t)
		reg.RegisterReleaser(types.ResourceModelShard, releaserFunc(func(ctx context.Context, snap *types.ResourceSnapshot) (float64, error) {
			return 123, nil
		}))
		reg.Register("shard", nil, types.ResourceMetadata{Type: types.ResourceModelShard, SizeMB: 500})

		freed, err := reg.Release(ctx, "shard")
		require.NoError(t, err)
		assert.Equal(t, 123.0, freed)
	})

	t.Run("释放器出错时资源保持原状", func(t *testing.T) {
		reg, _ := newTestRegistry(t)
		reg.RegisterReleaser(types.ResourceTempBuffer, releaserFunc(func(ctx context.Context, snap *types.ResourceSnapshot) (float64, error) {
			return 0, errors.New("device busy")
		}))
		reg.Register("buf", nil, types.ResourceMetadata{Type: types.ResourceTempBuffer, SizeMB: 8})

		_, err := reg.Release(ctx, "buf")
		require.Error(t, err)

		_, stillThere := reg.Get("buf")
		assert.True(t, stillThere)
		assert.Zero(t, reg.Stats().TotalReleased)
	})
}

// releaserFunc 函数式释放器适配
type releaserFunc func(ctx context.Context, snapshot *types.ResourceSnapshot) (float64, error)

func (f releaserFunc) Release(ctx context.Context, snapshot *types.ResourceSnapshot) (float64, error) {
	return f(ctx, snapshot)
}

// TestSubtitleIndexIncremental 测试字幕索引的增量释放
func TestSubtitleIndexIncremental(t *testing.T) {
	reg, _ := newTestRegistry(t)

	index, err := NewSubtitleIndex()
	require.NoError(t, err)
	for seq := 0; seq < 12; seq++ {
		index.AddSegment(seq, make([]byte, 1<<20))
	}

	reg.Register("subs", index, types.ResourceMetadata{
		Type:        types.ResourceSubtitleIndex,
		Incremental: true,
	})

	freed, err := reg.Release(context.Background(), "subs")
	require.NoError(t, err)

	assert.Equal(t, 5, index.Len(), "增量释放后保留最近5个分段")
	assert.InDelta(t, 7.0, freed, 0.01)

	_, stillThere := reg.Get("subs")
	assert.True(t, stillThere, "仍有分段的索引留在注册表中")

	// 最新分段仍可读取
	_, ok := index.Segment(11)
	assert.True(t, ok)
	_, ok = index.Segment(0)
	assert.False(t, ok, "最旧分段已被淘汰")
}

// persistableBlob 测试用可落盘载荷
type persistableBlob struct {
	data []byte
}

func (b *persistableBlob) Persist(path string) error {
	return os.WriteFile(path, b.data, 0600)
}

// TestRenderCachePersist 测试渲染缓存的释放前落盘
func TestRenderCachePersist(t *testing.T) {
	reg, _ := newTestRegistry(t)
	path := filepath.Join(t.TempDir(), "render.bin")

	reg.Register("render", &persistableBlob{data: []byte("frames")}, types.ResourceMetadata{
		Type:        types.ResourceRenderCache,
		SizeMB:      32,
		PersistPath: path,
	})

	freed, err := reg.Release(context.Background(), "render")
	require.NoError(t, err)
	assert.Equal(t, 32.0, freed)

	persisted, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("frames"), persisted)
}

// TestReleaseUnpinned 测试批量释放
func TestReleaseUnpinned(t *testing.T) {
	reg, _ := newTestRegistry(t)
	reg.Register("a", nil, types.ResourceMetadata{Type: types.ResourceTempBuffer, SizeMB: 10})
	reg.Register("b", nil, types.ResourceMetadata{Type: types.ResourceModelWeights, SizeMB: 2000, Pinned: true})
	reg.Register("c", nil, types.ResourceMetadata{Type: types.ResourceAudioCache, SizeMB: 30})

	freed, released := reg.ReleaseUnpinned(context.Background())

	assert.Equal(t, 2, released)
	assert.Equal(t, 40.0, freed)
	assert.Equal(t, 1, reg.Len(), "固定资源不受批量释放影响")
}

// TestSnapshotAll 测试快照的注册顺序
func TestSnapshotAll(t *testing.T) {
	reg, _ := newTestRegistry(t)
	reg.Register("first", nil, types.ResourceMetadata{Type: types.ResourceModelShard, SizeMB: 1}, "dep-x")
	reg.Register("second", nil, types.ResourceMetadata{Type: types.ResourceTempBuffer, SizeMB: 2})
	reg.Register("first", nil, types.ResourceMetadata{Type: types.ResourceModelShard, SizeMB: 3})

	snapshots := reg.SnapshotAll()
	require.Len(t, snapshots, 2)
	assert.Equal(t, "first", snapshots[0].ResourceID, "覆盖注册保持首次注册的位置")
	assert.Equal(t, "second", snapshots[1].ResourceID)
	assert.Equal(t, 3.0, snapshots[0].Metadata["size_mb"])
}

// TestCacheManager 测试缓存管理器
func TestCacheManager(t *testing.T) {
	t.Run("懒创建与读写", func(t *testing.T) {
		m := NewCacheManager(32, zap.NewNop())
		defer m.Close()

		cache, err := m.Cache("render")
		require.NoError(t, err)
		require.NoError(t, cache.Set("frame-1", []byte("pixels")))

		got, err := cache.Get("frame-1")
		require.NoError(t, err)
		assert.Equal(t, []byte("pixels"), got)

		again, err := m.Cache("render")
		require.NoError(t, err)
		assert.Same(t, cache, again)
	})

	t.Run("清空后条目不可见", func(t *testing.T) {
		m := NewCacheManager(32, zap.NewNop())
		defer m.Close()

		cache, err := m.Cache("audio")
		require.NoError(t, err)
		require.NoError(t, cache.Set("wave", []byte("pcm")))

		m.ClearAll()

		_, err = cache.Get("wave")
		assert.Error(t, err)
	})

	t.Run("收缩降低上限并重建", func(t *testing.T) {
		m := NewCacheManager(64, zap.NewNop())
		defer m.Close()

		_, err := m.Cache("render")
		require.NoError(t, err)

		_, err = m.Shrink(0.5)
		require.NoError(t, err)
		assert.Equal(t, 32, m.LimitMB())

		cache, err := m.Cache("render")
		require.NoError(t, err)
		require.NoError(t, cache.Set("k", []byte("v")))
	})

	t.Run("拒绝无效收缩系数", func(t *testing.T) {
		m := NewCacheManager(64, zap.NewNop())
		defer m.Close()

		_, err := m.Shrink(1.5)
		assert.Error(t, err)
	})
}
