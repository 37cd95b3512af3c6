package kb

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/visionclip/memfuse/internal/core/audit"
	"github.com/visionclip/memfuse/internal/core/monitor"
	"github.com/visionclip/memfuse/pkg/types"
)

// diagnosisSchedule 周期诊断的执行计划
const diagnosisSchedule = "@every 5m"

// minDiagnosisSamples 周期诊断所需的最少采样数
const minDiagnosisSamples = 10

// ModuleInput 知识库模块输入依赖
type ModuleInput struct {
	fx.In

	Monitor   *monitor.PressureMonitor
	Audit     *audit.FuseAudit
	ZapLogger *zap.Logger
	Lifecycle fx.Lifecycle
}

// ModuleOutput 知识库模块输出服务
type ModuleOutput struct {
	fx.Out

	KnowledgeBase *KnowledgeBase
}

// Module 返回知识库模块
// 除按需诊断外，还挂一个周期任务把例行诊断结论写进审计日志
func Module() fx.Option {
	return fx.Module("kb",
		fx.Provide(
			func(input ModuleInput) (ModuleOutput, error) {
				logger := input.ZapLogger.With(zap.String("module", "kb"))
				kb := NewKnowledgeBase(logger)

				scheduler := cron.New()
				_, err := scheduler.AddFunc(diagnosisSchedule, func() {
					history := input.Monitor.History()
					if len(history) < minDiagnosisSamples {
						return
					}
					series := make([]float64, len(history))
					for i, sample := range history {
						series[i] = sample.UsagePercent
					}

					report := kb.Diagnose(series, nil)
					if input.Audit != nil {
						input.Audit.Record(types.EventDiagnosisDone, map[string]interface{}{
							"pattern":      string(report.Pattern),
							"matched_case": report.MatchedCase,
							"confidence":   report.Confidence,
							"generic":      report.Generic,
							"severity":     report.Severity,
						})
					}
				})
				if err != nil {
					return ModuleOutput{}, err
				}

				input.Lifecycle.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						scheduler.Start()
						return nil
					},
					OnStop: func(ctx context.Context) error {
						scheduler.Stop()
						return nil
					},
				})

				return ModuleOutput{KnowledgeBase: kb}, nil
			},
		),
	)
}
