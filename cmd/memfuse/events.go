package main

import (
	"fmt"
	"net/url"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/visionclip/memfuse/pkg/types"
)

var (
	eventsType  string
	eventsLimit int
)

// eventsCmd 查询审计事件
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "查询审计事件（新到旧）",
	RunE: func(cmd *cobra.Command, args []string) error {
		query := url.Values{}
		if eventsType != "" {
			query.Set("type", eventsType)
		}
		query.Set("limit", fmt.Sprintf("%d", eventsLimit))

		var events []*types.FuseEvent
		if err := apiGet("/api/v1/events?"+query.Encode(), &events); err != nil {
			return err
		}

		if len(events) == 0 {
			pterm.Info.Println("没有匹配的事件")
			return nil
		}

		data := pterm.TableData{{"时间", "类型", "内存", "摘要"}}
		for _, event := range events {
			data = append(data, []string{
				event.Timestamp.Format("01-02 15:04:05"),
				string(event.EventType),
				fmt.Sprintf("%.1f%%", event.MemoryUsage.UsedPercent),
				summarizeDetails(event.Details),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

// summarizeDetails 把详情压成单行摘要
func summarizeDetails(details map[string]interface{}) string {
	if len(details) == 0 {
		return "-"
	}

	summary := ""
	for _, key := range []string{"level", "action", "success", "reason", "pattern"} {
		if value, ok := details[key]; ok {
			if summary != "" {
				summary += " "
			}
			summary += fmt.Sprintf("%s=%v", key, value)
		}
	}
	if summary == "" {
		summary = fmt.Sprintf("%d 个字段", len(details))
	}
	return summary
}

func init() {
	eventsCmd.Flags().StringVarP(&eventsType, "type", "t", "", "事件类型过滤，如 fuse_triggered")
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 20, "返回条数上限")
}
