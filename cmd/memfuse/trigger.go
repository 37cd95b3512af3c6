package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var triggerTestMode bool

// triggerCmd 手工触发熔断
var triggerCmd = &cobra.Command{
	Use:   "trigger <warning|critical|emergency>",
	Short: "手工触发指定级别的熔断",
	Long: `手工触发指定级别的熔断。

--test 只记录审计事件不执行任何动作，用于演练审计链路。`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Triggered bool   `json:"triggered"`
			Level     string `json:"level"`
			TestMode  bool   `json:"test_mode"`
		}

		err := apiPost("/api/v1/fuse/trigger", map[string]interface{}{
			"level":     args[0],
			"test_mode": triggerTestMode,
		}, &result)
		if err != nil {
			return err
		}

		if !result.Triggered {
			pterm.Warning.Println("触发被抑制（稳定窗口内）")
			return nil
		}
		if result.TestMode {
			pterm.Info.Printfln("测试模式触发 %s 级别，仅记录事件", result.Level)
		} else {
			pterm.Success.Printfln("已触发 %s 级别熔断", result.Level)
		}
		return nil
	},
}

func init() {
	triggerCmd.Flags().BoolVar(&triggerTestMode, "test", false, "测试模式：只记录不执行")
}
