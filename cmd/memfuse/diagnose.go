package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/visionclip/memfuse/pkg/types"
)

// diagnoseCmd 对当前压力走势做诊断
var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "对当前压力走势做一次诊断",
	RunE: func(cmd *cobra.Command, args []string) error {
		var report types.DiagnosisReport
		if err := apiGet("/api/v1/diagnose", &report); err != nil {
			return err
		}

		pterm.DefaultSection.Println("诊断结论")

		data := pterm.TableData{
			{"压力模式", string(report.Pattern)},
			{"严重程度", report.Severity},
		}
		if report.Generic {
			data = append(data, []string{"匹配案例", "无（通用建议）"})
		} else {
			data = append(data, []string{"匹配案例", report.MatchedCase})
			data = append(data, []string{"置信度", fmt.Sprintf("%.0f%%", report.Confidence*100)})
		}
		if err := pterm.DefaultTable.WithData(data).Render(); err != nil {
			return err
		}

		pterm.Info.Printfln("根因: %s", report.RootCause)
		pterm.Success.Printfln("建议: %s", report.Solution)
		if len(report.SimilarCases) > 0 {
			pterm.Println("相似案例: ", report.SimilarCases)
		}
		return nil
	},
}
