package fuse

import "sync"

// DegradationProfile 当前生效的降级档位
//
// 宿主进程在渲染与回放路径上查询档位，按档位缩减工作集。
// 零值表示未降级，字符串档位为空时宿主沿用自身默认值。
type DegradationProfile struct {
	RenderQuality     string   `json:"render_quality,omitempty"`
	PreviewResolution string   `json:"preview_resolution,omitempty"`
	PlaybackQuality   string   `json:"playback_quality,omitempty"`
	LightweightModels bool     `json:"lightweight_models"`
	DisabledFeatures  []string `json:"disabled_features,omitempty"`
	SurvivalMode      bool     `json:"survival_mode"`
}

// Degraded 返回档位是否偏离正常运行状态
func (p DegradationProfile) Degraded() bool {
	return p.RenderQuality != "" || p.PreviewResolution != "" || p.PlaybackQuality != "" ||
		p.LightweightModels || len(p.DisabledFeatures) > 0 || p.SurvivalMode
}

// DegradationState 降级状态机
//
// 缓解动作单向收紧档位，恢复流程整体重置。与 BackgroundGate
// 同属"处理器翻状态、宿主读状态"的协作模型：动作本身不触碰
// 宿主的渲染管线，只改变宿主下一个工作单元看到的档位。
type DegradationState struct {
	mu       sync.Mutex
	profile  DegradationProfile
	disabled map[string]bool
}

// NewDegradationState 创建处于正常档位的降级状态机
func NewDegradationState() *DegradationState {
	return &DegradationState{disabled: make(map[string]bool)}
}

// DegradeQuality 收紧画质档位，空串表示该维度保持不变
func (s *DegradationState) DegradeQuality(render, preview, playback string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if render != "" {
		s.profile.RenderQuality = render
	}
	if preview != "" {
		s.profile.PreviewResolution = preview
	}
	if playback != "" {
		s.profile.PlaybackQuality = playback
	}
}

// SwitchToLightweight 切换到轻量模型档位
func (s *DegradationState) SwitchToLightweight() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile.LightweightModels = true
}

// DisableFeatures 关停一组非核心功能，重复关停幂等
func (s *DegradationState) DisableFeatures(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		if name == "" || s.disabled[name] {
			continue
		}
		s.disabled[name] = true
		s.profile.DisabledFeatures = append(s.profile.DisabledFeatures, name)
	}
}

// EnterSurvivalMode 进入生存模式
func (s *DegradationState) EnterSurvivalMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile.SurvivalMode = true
}

// FeatureDisabled 查询某功能是否被关停
func (s *DegradationState) FeatureDisabled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled[name]
}

// Profile 返回当前档位的副本
func (s *DegradationState) Profile() DegradationProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile := s.profile
	profile.DisabledFeatures = append([]string(nil), s.profile.DisabledFeatures...)
	return profile
}

// Reset 回到正常档位
func (s *DegradationState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = DegradationProfile{}
	s.disabled = make(map[string]bool)
}
