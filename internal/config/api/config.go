package api

import (
	"time"

	configtypes "github.com/visionclip/memfuse/pkg/types"
)

// APIOptions 诊断 API 配置选项
type APIOptions struct {
	Enabled      bool          `json:"enabled"`       // 是否启用 HTTP 诊断接口
	Listen       string        `json:"listen"`        // 监听地址
	ReadTimeout  time.Duration `json:"read_timeout"`  // 读取超时
	WriteTimeout time.Duration `json:"write_timeout"` // 写入超时
}

// Config 诊断 API 配置实现
type Config struct {
	options *APIOptions
}

// New 创建诊断 API 配置实现
func New(userConfig interface{}) *Config {
	options := &APIOptions{
		Enabled:      defaultEnabled,
		Listen:       defaultListen,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}

	if apiConfig, ok := userConfig.(*configtypes.UserAPIConfig); ok && apiConfig != nil {
		if apiConfig.Enabled != nil {
			options.Enabled = *apiConfig.Enabled
		}
		if apiConfig.Listen != nil && *apiConfig.Listen != "" {
			options.Listen = *apiConfig.Listen
		}
	}

	return &Config{options: options}
}

// GetOptions 获取完整的 API 配置选项
func (c *Config) GetOptions() *APIOptions {
	return c.options
}
