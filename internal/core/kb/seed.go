package kb

import "github.com/visionclip/memfuse/pkg/types"

// seedCases 内置案例库
//
// 覆盖4GB量级本地推理进程最常见的内存问题：批量加载导致的
// OOM、长会话泄漏、缓存碎片、并发争用与配置失当。
var seedCases = []types.DiagnosisCase{
	{
		ID:        "OOM_001",
		Pattern:   types.PatternRapidIncrease,
		Symptoms:  "内存快速增长，短时间内逼近上限，伴随大批量素材导入或模型加载",
		RootCause: "一次性加载全部模型分片或视频素材，未分批处理",
		Solution:  "改为分片按需加载，导入素材时启用流式解码，必要时降低量化精度",
		Severity:  "critical",
		Impact:    []string{"进程OOM被系统杀死", "推理中断", "未保存的剪辑进度丢失"},
		Detection: "压力指数在数个采样周期内越过紧急阈值",
	},
	{
		ID:        "OOM_002",
		Pattern:   types.PatternSpike,
		Symptoms:  "内存出现瞬时峰值后回落，峰值与渲染导出或关键帧抽取同时发生",
		RootCause: "渲染管线的中间帧缓冲没有上限，高分辨率片段瞬间撑满内存",
		Solution:  "限制渲染缓冲的帧数上限，导出时按片段切分流水线",
		Severity:  "high",
		Impact:    []string{"瞬时峰值触发熔断", "导出任务被迫中断"},
		Detection: "极差超过40个百分点且波动率高",
	},
	{
		ID:        "OOM_003",
		Pattern:   types.PatternRapidIncrease,
		Symptoms:  "近期陡升，多个任务同时启动后内存直线上升",
		RootCause: "并发任务数超出内存预算，各任务独立持有完整模型副本",
		Solution:  "任务队列串行化，共享只读模型权重，限制并发度",
		Severity:  "critical",
		Impact:    []string{"多任务同时失败", "系统整体变慢"},
		Detection: "升级判定连续命中且斜率持续为正",
	},
	{
		ID:        "FRAG_001",
		Pattern:   types.PatternFluctuation,
		Symptoms:  "内存剧烈波动，频繁分配释放大块缓冲，实际可用内存逐渐减少",
		RootCause: "视频帧缓冲反复按不同尺寸分配，堆碎片化导致大块分配失败",
		Solution:  "使用固定尺寸的缓冲池复用帧缓冲，避免尺寸漂移",
		Severity:  "medium",
		Impact:    []string{"分配延迟上升", "实际可用内存低于统计值"},
		Detection: "波动率高且趋势接近平坦",
	},
	{
		ID:        "FRAG_002",
		Pattern:   types.PatternPlateauHigh,
		Symptoms:  "高位运行，释放动作后内存下降有限，碎片无法归还操作系统",
		RootCause: "长生命周期小对象散布在各内存页，整页无法回收",
		Solution:  "执行强制GC并归还空闲页，重负载对象集中到独立的分配区",
		Severity:  "medium",
		Impact:    []string{"释放动作效果打折", "熔断反复触发"},
		Detection: "验证器持续报告释放量不达预期",
	},
	{
		ID:        "LEAK_001",
		Pattern:   types.PatternSteadyIncrease,
		Symptoms:  "持续增长，长会话剪辑过程中内存只升不降",
		RootCause: "字幕索引与撤销历史无限累积，旧分段从不淘汰",
		Solution:  "为字幕索引启用增量淘汰，撤销历史设置条数上限",
		Severity:  "high",
		Impact:    []string{"长会话最终OOM", "保存耗时逐渐变长"},
		Detection: "斜率稳定为正且波动率低",
	},
	{
		ID:        "LEAK_002",
		Pattern:   types.PatternGradualIncrease,
		Symptoms:  "缓慢增长，跨多个剪辑任务内存基线逐步抬高",
		RootCause: "任务结束后渲染缓存未注销，句柄泄漏使资源无法释放",
		Solution:  "任务收尾时显式注销资源句柄，审计注册表中的滞留条目",
		Severity:  "medium",
		Impact:    []string{"重启前基线持续抬高"},
		Detection: "注册表条目数随任务数单调增加",
	},
	{
		ID:        "CONT_001",
		Pattern:   types.PatternFluctuation,
		Symptoms:  "剧烈波动，前后台任务交替执行时内存锯齿状起伏",
		RootCause: "后台索引构建与前台推理争用内存，互相触发对方的缓存淘汰",
		Solution:  "压力升高时暂停后台任务，为前台推理保留固定预算",
		Severity:  "medium",
		Impact:    []string{"前台推理延迟抖动", "缓存命中率下降"},
		Detection: "波动与后台任务调度周期相关",
	},
	{
		ID:        "CONF_001",
		Pattern:   types.PatternImmediateHigh,
		Symptoms:  "启动即高位，进程一启动内存占用就超过六成",
		RootCause: "配置的模型精度或缓存上限超出机器物理内存承受能力",
		Solution:  "按机器内存自动选择量化档位，缩小默认缓存上限",
		Severity:  "high",
		Impact:    []string{"启动后立即进入警告级", "几乎没有缓解余地"},
		Detection: "序列最小值高于60",
	},
	{
		ID:        "CONF_002",
		Pattern:   types.PatternPlateauHigh,
		Symptoms:  "高位运行，内存稳定在平台期但接近阈值，任何新任务都触发熔断",
		RootCause: "常驻缓存配置过大，挤占了任务执行所需的余量",
		Solution:  "收缩常驻缓存配置，为任务峰值预留至少两成余量",
		Severity:  "medium",
		Impact:    []string{"新任务频繁触发警告级熔断"},
		Detection: "均值高于75且波动率低",
	},
}
