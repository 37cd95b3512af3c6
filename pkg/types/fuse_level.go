package types

import (
	"fmt"
	"strings"
)

// FuseLevel 熔断级别
// 级别只能通过显式的阈值判定上升、通过显式的恢复检查下降
type FuseLevel int

const (
	FuseLevelNormal    FuseLevel = iota // 正常状态
	FuseLevelWarning                    // 警告状态
	FuseLevelCritical                   // 临界状态
	FuseLevelEmergency                  // 紧急状态
)

// AllFuseLevels 按从低到高的顺序列出全部熔断级别
func AllFuseLevels() []FuseLevel {
	return []FuseLevel{FuseLevelNormal, FuseLevelWarning, FuseLevelCritical, FuseLevelEmergency}
}

// String 实现 fmt.Stringer
func (l FuseLevel) String() string {
	switch l {
	case FuseLevelNormal:
		return "NORMAL"
	case FuseLevelWarning:
		return "WARNING"
	case FuseLevelCritical:
		return "CRITICAL"
	case FuseLevelEmergency:
		return "EMERGENCY"
	default:
		return fmt.Sprintf("FuseLevel(%d)", int(l))
	}
}

// ParseFuseLevel 从级别名称解析熔断级别，大小写不敏感
func ParseFuseLevel(name string) (FuseLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "NORMAL":
		return FuseLevelNormal, nil
	case "WARNING":
		return FuseLevelWarning, nil
	case "CRITICAL":
		return FuseLevelCritical, nil
	case "EMERGENCY":
		return FuseLevelEmergency, nil
	default:
		return FuseLevelNormal, fmt.Errorf("无效的熔断级别名称: %q", name)
	}
}

// StepDown 返回下降一级后的级别，NORMAL 不再下降
func (l FuseLevel) StepDown() FuseLevel {
	if l <= FuseLevelNormal {
		return FuseLevelNormal
	}
	return l - 1
}

// MarshalText 实现 encoding.TextMarshaler，序列化为级别名称
func (l FuseLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (l *FuseLevel) UnmarshalText(text []byte) error {
	level, err := ParseFuseLevel(string(text))
	if err != nil {
		return err
	}
	*l = level
	return nil
}
