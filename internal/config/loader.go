package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/visionclip/memfuse/pkg/types"
)

// LoadAppConfig 从YAML文件加载应用配置
//
// 文件不存在不是错误，返回nil让各模块使用默认配置。
func LoadAppConfig(path string) (*types.AppConfig, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	return ParseAppConfig(data)
}

// ParseAppConfig 解析YAML配置内容
func ParseAppConfig(data []byte) (*types.AppConfig, error) {
	var appConfig types.AppConfig
	if err := yaml.Unmarshal(data, &appConfig); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return &appConfig, nil
}
