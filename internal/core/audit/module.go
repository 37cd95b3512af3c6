package audit

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/asaskevich/EventBus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	storageconfig "github.com/visionclip/memfuse/internal/config/storage"
	"github.com/visionclip/memfuse/pkg/interfaces/governor"
	"github.com/visionclip/memfuse/pkg/interfaces/storage"
)

// ModuleInput 审计模块输入依赖
type ModuleInput struct {
	fx.In

	Options   *storageconfig.StorageOptions
	Sampler   governor.Sampler `optional:"true"`
	Bus       EventBus.Bus
	ZapLogger *zap.Logger
	Lifecycle fx.Lifecycle
}

// ModuleOutput 审计模块输出服务
type ModuleOutput struct {
	fx.Out

	Store    storage.EventStorage
	Audit    *FuseAudit
	Analyzer *Analyzer
}

// Module 返回审计模块
func Module() fx.Option {
	return fx.Module("audit",
		fx.Provide(
			func(input ModuleInput) (ModuleOutput, error) {
				logger := input.ZapLogger.With(zap.String("module", "audit"))

				store, err := newStore(input.Options, logger)
				if err != nil {
					return ModuleOutput{}, err
				}

				audit := NewFuseAudit(store, input.Sampler, input.Bus, logger)

				input.Lifecycle.Append(fx.Hook{
					OnStop: func(ctx context.Context) error {
						return audit.Close()
					},
				})

				return ModuleOutput{
					Store:    store,
					Audit:    audit,
					Analyzer: NewAnalyzer(store),
				}, nil
			},
		),
	)
}

// newStore 按配置选择事件存储后端
func newStore(opts *storageconfig.StorageOptions, logger *zap.Logger) (storage.EventStorage, error) {
	switch opts.AuditBackend {
	case "memory":
		return NewMemoryStore(opts.AuditCapacity), nil
	case "file":
		return NewFileStore(filepath.Join(opts.AuditPath, "events.jsonl"), opts.AuditCapacity)
	case "badger":
		return NewBadgerStore(opts.AuditPath, logger)
	default:
		return nil, fmt.Errorf("未知的审计后端: %q", opts.AuditBackend)
	}
}
