package storage

// 存储默认值
const (
	// defaultAuditBackend 默认审计后端为内存环
	// 原因：治理器的首要职责是释放内存压力，默认不引入磁盘依赖；
	// 需要跨重启追溯时切换到 file 或 badger 后端
	defaultAuditBackend = "memory"

	// defaultAuditCapacity 内存环容量
	// 每条事件约1KB，1000条的驻留成本可以忽略
	defaultAuditCapacity = 1000

	// defaultAuditPath 文件/badger 后端的存储路径
	defaultAuditPath = "data/audit"

	// defaultRecoveryStateDir 恢复状态快照目录
	defaultRecoveryStateDir = "data/recovery"
)

// 合法的审计后端名
var validBackends = map[string]bool{
	"memory": true,
	"file":   true,
	"badger": true,
}
