// Package storage 定义审计事件存储的后端接口
package storage

import (
	"github.com/visionclip/memfuse/pkg/types"
)

// EventStorage 审计事件存储后端
//
// 实现包括：有界内存环（淘汰最旧事件）、JSONL 追加文件存储、
// 以及基于 BadgerDB 的持久化存储。事件一经写入不可修改。
type EventStorage interface {
	// StoreEvent 存储一个事件
	StoreEvent(event *types.FuseEvent) error

	// GetEvent 按 ID 查询事件，未找到时返回 (nil, nil)
	GetEvent(eventID string) (*types.FuseEvent, error)

	// QueryEvents 按条件查询事件，结果按时间从新到旧排序
	// limit <= 0 表示不限制数量
	QueryEvents(filter types.EventFilter, timeRange types.TimeRange, limit int) ([]*types.FuseEvent, error)

	// Close 关闭存储后端
	Close() error
}
