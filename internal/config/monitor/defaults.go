package monitor

import "time"

// 压力监控默认值
const (
	// defaultSampleInterval 默认采样间隔设为1秒
	// 原因：1秒粒度足以捕捉推理过程的内存波动，
	// 同时采样开销（读取/proc与系统内存）可以忽略
	defaultSampleInterval = time.Second

	// defaultWindowSize 滑动窗口容量设为60个采样点
	// 原因：按默认间隔对应约1分钟历史，覆盖趋势拟合与特征提取的需要
	defaultWindowSize = 60

	// defaultAmplifyAbove 压力放大阈值设为80
	// 超过该使用率后压力指数按放大系数上调，让熔断在接近OOM前提前进入高级别
	defaultAmplifyAbove = 80.0

	// defaultAmplifyFactor 放大系数
	defaultAmplifyFactor = 1.5

	// defaultRecentWeight 即时值权重，其余权重归最近均值
	defaultRecentWeight = 0.4

	// defaultRecentSpan 参与均值计算的最近采样点数
	defaultRecentSpan = 5

	// defaultPredictHorizon 默认预测5个采样点之后的使用率
	defaultPredictHorizon = 5

	// defaultRSquaredFloor 趋势拟合优度下限
	// 拟合优度低于该值时预测结果不可信，返回当前值
	defaultRSquaredFloor = 0.5

	// defaultEscalationSlope 升级判定：斜率外推defaultPredictHorizon个点
	// 的增量超过该值视为压力正在升级
	defaultEscalationSlope = 5.0
)
