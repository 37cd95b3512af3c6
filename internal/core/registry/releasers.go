package registry

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/visionclip/memfuse/pkg/types"
)

// Persistable 可在释放前落盘的资源载荷
// render-cache 资源在 PersistPath 非空时会先持久化再丢弃引用
type Persistable interface {
	Persist(path string) error
}

// builtinRelease 按资源类型执行内置释放策略
//
// 除 subtitle-index 的增量释放外，释放即丢弃注册表持有的引用，
// 估算释放量取元数据中的 SizeMB。
func (r *ResourceRegistry) builtinRelease(ctx context.Context, res *Resource) (freed float64, remove bool, err error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	switch res.Type {
	case types.ResourceSubtitleIndex:
		if index, ok := res.Payload.(*SubtitleIndex); ok && res.Metadata.Incremental {
			freed = index.TrimToRecent(r.subtitleKeep)
			return freed, index.Len() == 0, nil
		}

	case types.ResourceRenderCache:
		if res.Metadata.PersistPath != "" {
			persistable, ok := res.Payload.(Persistable)
			if !ok {
				return 0, false, fmt.Errorf("渲染缓存 %q 配置了持久化路径但载荷不支持落盘", res.ID)
			}
			if err := persistable.Persist(res.Metadata.PersistPath); err != nil {
				return 0, false, fmt.Errorf("渲染缓存持久化失败: %w", err)
			}
		}
	}

	// model-shard/model-weights/temp-buffer/audio-cache 和未识别类型
	// 都走通用路径：能关则关，然后丢弃引用
	if closer, ok := res.Payload.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			return 0, false, fmt.Errorf("资源关闭失败: %w", err)
		}
	}
	return res.Metadata.SizeMB, true, nil
}

// maxSubtitleSegments 字幕索引的分段容量上限
const maxSubtitleSegments = 4096

// SubtitleIndex 分段字幕索引
//
// 分段按序号进入 LRU，增量释放时淘汰最旧分段而不是整体丢弃，
// 保证正在剪辑的时间窗附近的索引始终可用。
type SubtitleIndex struct {
	mu    sync.Mutex
	cache *lru.Cache[int, []byte]
}

// NewSubtitleIndex 创建字幕索引
func NewSubtitleIndex() (*SubtitleIndex, error) {
	cache, err := lru.New[int, []byte](maxSubtitleSegments)
	if err != nil {
		return nil, err
	}
	return &SubtitleIndex{cache: cache}, nil
}

// AddSegment 写入一个分段
func (s *SubtitleIndex) AddSegment(seq int, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(seq, data)
}

// Segment 读取一个分段
func (s *SubtitleIndex) Segment(seq int) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Get(seq)
}

// Len 返回当前分段数
func (s *SubtitleIndex) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

// TrimToRecent 淘汰最旧分段直到只剩 keep 个，返回估算释放量（MB）
func (s *SubtitleIndex) TrimToRecent(keep int) float64 {
	if keep < 0 {
		keep = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var freedBytes int
	for s.cache.Len() > keep {
		_, data, ok := s.cache.RemoveOldest()
		if !ok {
			break
		}
		freedBytes += len(data)
	}
	return float64(freedBytes) / (1 << 20)
}
