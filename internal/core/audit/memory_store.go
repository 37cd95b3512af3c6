package audit

import (
	"sort"
	"sync"

	"github.com/visionclip/memfuse/pkg/interfaces/storage"
	"github.com/visionclip/memfuse/pkg/types"
)

// MemoryStore 有界内存环事件存储
//
// 容量满时淘汰最旧事件。默认后端：治理器优先保证
// 不给被守护进程增加磁盘负担。
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	events   []*types.FuseEvent
	byID     map[string]*types.FuseEvent
}

var _ storage.EventStorage = (*MemoryStore)(nil)

// NewMemoryStore 创建内存事件存储
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryStore{
		capacity: capacity,
		events:   make([]*types.FuseEvent, 0, capacity),
		byID:     make(map[string]*types.FuseEvent, capacity),
	}
}

// StoreEvent 存储一个事件
func (s *MemoryStore) StoreEvent(event *types.FuseEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := event.Clone()
	s.events = append(s.events, stored)
	s.byID[stored.EventID] = stored

	// 容量满时淘汰最旧事件
	if len(s.events) > s.capacity {
		evicted := s.events[0]
		s.events = s.events[1:]
		delete(s.byID, evicted.EventID)
	}

	return nil
}

// GetEvent 按 ID 查询事件
func (s *MemoryStore) GetEvent(eventID string) (*types.FuseEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.byID[eventID]
	if !ok {
		return nil, nil
	}
	return event.Clone(), nil
}

// QueryEvents 按条件查询事件，结果按时间从新到旧排序
func (s *MemoryStore) QueryEvents(filter types.EventFilter, timeRange types.TimeRange, limit int) ([]*types.FuseEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*types.FuseEvent
	for _, event := range s.events {
		if matchEvent(event, filter, timeRange) {
			result = append(result, event.Clone())
		}
	}

	sortNewestFirst(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Close 关闭存储后端
func (s *MemoryStore) Close() error {
	return nil
}

// Len 返回当前存储的事件数（测试与诊断用）
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// matchEvent 判断事件是否符合过滤条件
func matchEvent(event *types.FuseEvent, filter types.EventFilter, timeRange types.TimeRange) bool {
	if filter.EventType != "" && event.EventType != filter.EventType {
		return false
	}
	if !timeRange.Contains(event.Timestamp) {
		return false
	}
	for key, want := range filter.Details {
		got, ok := event.Details[key]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// sortNewestFirst 按时间从新到旧排序
func sortNewestFirst(events []*types.FuseEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
}
