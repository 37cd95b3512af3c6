package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/visionclip/memfuse/pkg/interfaces/storage"
	"github.com/visionclip/memfuse/pkg/types"
)

// FileStore 追加式 JSONL 事件存储
//
// 每行一个 JSON 事件对象，只追加不改写。打开时重放已有
// 文件重建内存索引，查询全部走索引，磁盘只承担落盘。
type FileStore struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *bufio.Writer
	index  *MemoryStore
}

var _ storage.EventStorage = (*FileStore)(nil)

// NewFileStore 创建文件事件存储
// indexCapacity 限制内存索引的容量，磁盘文件不受影响
func NewFileStore(path string, indexCapacity int) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("创建审计日志目录失败: %w", err)
	}

	index := NewMemoryStore(indexCapacity)

	// 重放已有文件重建索引；损坏的行跳过而不是整体失败
	if existing, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(existing)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var event types.FuseEvent
			if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
				continue
			}
			_ = index.StoreEvent(&event)
		}
		existing.Close()
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("打开审计日志文件失败: %w", err)
	}

	return &FileStore{
		path:   path,
		file:   file,
		writer: bufio.NewWriter(file),
		index:  index,
	}, nil
}

// StoreEvent 存储一个事件
func (s *FileStore) StoreEvent(event *types.FuseEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	if _, err := s.writer.Write(data); err != nil {
		return fmt.Errorf("写入审计日志失败: %w", err)
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("写入审计日志失败: %w", err)
	}
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("刷新审计日志失败: %w", err)
	}

	return s.index.StoreEvent(event)
}

// GetEvent 按 ID 查询事件
func (s *FileStore) GetEvent(eventID string) (*types.FuseEvent, error) {
	return s.index.GetEvent(eventID)
}

// QueryEvents 按条件查询事件
func (s *FileStore) QueryEvents(filter types.EventFilter, timeRange types.TimeRange, limit int) ([]*types.FuseEvent, error) {
	return s.index.QueryEvents(filter, timeRange, limit)
}

// Close 关闭存储后端
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writer.Flush(); err != nil {
		return err
	}
	return s.file.Close()
}
