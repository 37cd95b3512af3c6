package audit

import (
	"encoding/json"
	"fmt"
	"os"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/visionclip/memfuse/pkg/interfaces/storage"
	"github.com/visionclip/memfuse/pkg/types"
)

// BadgerDB 键前缀
// evt:<event_id> 存事件本体；ts:<unixnano>:<event_id> 是时间索引，
// 反向迭代即得到从新到旧的顺序
const (
	badgerEventPrefix = "evt:"
	badgerTimePrefix  = "ts:"
)

// BadgerStore 基于 BadgerDB 的持久化事件存储
//
// 面向需要跨重启追溯熔断历史的部署。审计事件的写入量
// 很小，缓存压到最低以免存储层自身挤占被守护进程的内存。
type BadgerStore struct {
	db     *badgerdb.DB
	logger *zap.Logger
}

var _ storage.EventStorage = (*BadgerStore)(nil)

// NewBadgerStore 创建 BadgerDB 事件存储
func NewBadgerStore(dir string, logger *zap.Logger) (*BadgerStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("创建审计存储目录失败: %w", err)
	}

	opts := badgerdb.DefaultOptions(dir)
	// 治理器的存储不能反过来成为内存压力源
	opts.BlockCacheSize = 8 << 20
	opts.IndexCacheSize = 8 << 20
	opts.NumMemtables = 2
	opts.ValueLogFileSize = 64 << 20
	opts.Logger = nil

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("打开审计存储失败: %w", err)
	}

	if logger != nil {
		logger.Info("BadgerDB审计存储已打开", zap.String("dir", dir))
	}

	return &BadgerStore{db: db, logger: logger}, nil
}

// StoreEvent 存储一个事件
func (s *BadgerStore) StoreEvent(event *types.FuseEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	eventKey := []byte(badgerEventPrefix + event.EventID)
	timeKey := []byte(fmt.Sprintf("%s%020d:%s", badgerTimePrefix, event.Timestamp.UnixNano(), event.EventID))

	return s.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Set(eventKey, data); err != nil {
			return err
		}
		return txn.Set(timeKey, []byte(event.EventID))
	})
}

// GetEvent 按 ID 查询事件
func (s *BadgerStore) GetEvent(eventID string) (*types.FuseEvent, error) {
	var event *types.FuseEvent

	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(badgerEventPrefix + eventID))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var e types.FuseEvent
			if err := json.Unmarshal(val, &e); err != nil {
				return err
			}
			event = &e
			return nil
		})
	})

	return event, err
}

// QueryEvents 按条件查询事件，结果按时间从新到旧排序
func (s *BadgerStore) QueryEvents(filter types.EventFilter, timeRange types.TimeRange, limit int) ([]*types.FuseEvent, error) {
	var result []*types.FuseEvent

	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(badgerTimePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// 反向迭代需要从前缀区间的末端起步
		seekKey := append([]byte(badgerTimePrefix), 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix([]byte(badgerTimePrefix)); it.Next() {
			var eventID string
			if err := it.Item().Value(func(val []byte) error {
				eventID = string(val)
				return nil
			}); err != nil {
				return err
			}

			item, err := txn.Get([]byte(badgerEventPrefix + eventID))
			if err != nil {
				continue
			}

			var event types.FuseEvent
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			}); err != nil {
				continue
			}

			if !matchEvent(&event, filter, timeRange) {
				continue
			}

			result = append(result, &event)
			if limit > 0 && len(result) >= limit {
				return nil
			}
		}
		return nil
	})

	return result, err
}

// Close 关闭存储后端
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
