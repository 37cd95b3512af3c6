package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/visionclip/memfuse/internal/core/fuse"
	"github.com/visionclip/memfuse/pkg/types"
)

// statusPayload /api/v1/status 的data字段
type statusPayload struct {
	Fuse      fuse.Status        `json:"fuse"`
	Usage     types.MemoryUsage  `json:"usage"`
	Resources types.ReleaseStats `json:"resources"`
}

// statusCmd 查询熔断器状态
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "查询运行中实例的熔断状态",
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload statusPayload
		if err := apiGet("/api/v1/status", &payload); err != nil {
			return err
		}

		levelPrinter := pterm.Success
		switch payload.Fuse.Level {
		case types.FuseLevelWarning:
			levelPrinter = pterm.Warning
		case types.FuseLevelCritical, types.FuseLevelEmergency:
			levelPrinter = pterm.Error
		}
		levelPrinter.Printfln("熔断级别: %s", payload.Fuse.Level)

		data := pterm.TableData{
			{"压力指数", fmt.Sprintf("%.1f", payload.Fuse.PressureIndex)},
			{"预测指数", fmt.Sprintf("%.1f", payload.Fuse.Predicted)},
			{"压力升级中", fmt.Sprintf("%v", payload.Fuse.Escalating)},
			{"后台任务暂停", fmt.Sprintf("%v", payload.Fuse.BackgroundPaused)},
			{"待恢复快照", fmt.Sprintf("%d", payload.Fuse.PendingRecovery)},
			{"系统内存使用率", fmt.Sprintf("%.1f%%", payload.Usage.UsedPercent)},
			{"进程RSS", fmt.Sprintf("%.0f MB", payload.Usage.ProcessRSS)},
			{"累计释放资源", fmt.Sprintf("%d 个 / %.0f MB", payload.Resources.TotalReleased, payload.Resources.EstimatedFreedMB)},
		}
		return pterm.DefaultTable.WithData(data).Render()
	},
}
