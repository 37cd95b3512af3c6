package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/visionclip/memfuse/internal/core/audit"
	"github.com/visionclip/memfuse/internal/core/fuse"
	"github.com/visionclip/memfuse/internal/core/kb"
	"github.com/visionclip/memfuse/internal/core/monitor"
	"github.com/visionclip/memfuse/internal/core/registry"
	"github.com/visionclip/memfuse/pkg/types"
)

// defaultEventLimit 事件查询的默认条数上限
const defaultEventLimit = 100

// Response 统一的API响应格式
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func fail(c *gin.Context, status int, err error) {
	c.JSON(status, Response{Success: false, Error: err.Error()})
}

// Handlers 诊断接口处理器
type Handlers struct {
	controller *fuse.FuseController
	monitor    *monitor.PressureMonitor
	registry   *registry.ResourceRegistry
	audit      *audit.FuseAudit
	kb         *kb.KnowledgeBase
	logger     *zap.Logger
}

// NewHandlers 创建诊断接口处理器
func NewHandlers(
	controller *fuse.FuseController,
	pressureMonitor *monitor.PressureMonitor,
	resourceRegistry *registry.ResourceRegistry,
	fuseAudit *audit.FuseAudit,
	knowledgeBase *kb.KnowledgeBase,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		controller: controller,
		monitor:    pressureMonitor,
		registry:   resourceRegistry,
		audit:      fuseAudit,
		kb:         knowledgeBase,
		logger:     logger,
	}
}

// RegisterRoutes 注册诊断接口路由
func (h *Handlers) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/status", h.GetStatus)
	r.GET("/history", h.GetHistory)
	r.GET("/events", h.QueryEvents)
	r.GET("/diagnose", h.Diagnose)

	resources := r.Group("/resources")
	{
		resources.GET("", h.ListResources)
		resources.POST("/:id/release", h.ReleaseResource)
	}

	r.POST("/fuse/trigger", h.TriggerFuse)
}

// GetStatus 获取熔断器当前状态
//
// GET /api/v1/status
func (h *Handlers) GetStatus(c *gin.Context) {
	ok(c, gin.H{
		"fuse":      h.controller.GetStatus(),
		"usage":     h.monitor.LatestUsage(),
		"resources": h.registry.Stats(),
	})
}

// GetHistory 获取动作执行历史
//
// GET /api/v1/history
func (h *Handlers) GetHistory(c *gin.Context) {
	ok(c, h.controller.ActionHistory())
}

// QueryEvents 查询审计事件
//
// GET /api/v1/events?type=fuse_triggered&since=RFC3339&until=RFC3339&limit=100
func (h *Handlers) QueryEvents(c *gin.Context) {
	filter := types.EventFilter{
		EventType: types.FuseEventType(c.Query("type")),
	}

	var timeRange types.TimeRange
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}
		timeRange.Start = t
	}
	if until := c.Query("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}
		timeRange.End = t
	}

	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			fail(c, http.StatusBadRequest, errInvalidLimit)
			return
		}
		limit = parsed
	}

	events, err := h.audit.Query(filter, timeRange, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, events)
}

// Diagnose 基于当前采样历史做诊断
//
// GET /api/v1/diagnose
func (h *Handlers) Diagnose(c *gin.Context) {
	history := h.monitor.History()
	series := make([]float64, len(history))
	for i, sample := range history {
		series[i] = sample.UsagePercent
	}

	ok(c, h.kb.Diagnose(series, nil))
}

// ListResources 列出注册的资源
//
// GET /api/v1/resources
func (h *Handlers) ListResources(c *gin.Context) {
	ok(c, gin.H{
		"resources": h.registry.SnapshotAll(),
		"stats":     h.registry.Stats(),
	})
}

// ReleaseResource 手工释放单个资源
//
// POST /api/v1/resources/:id/release
func (h *Handlers) ReleaseResource(c *gin.Context) {
	id := c.Param("id")

	freed, err := h.registry.Release(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusConflict, err)
		return
	}
	ok(c, gin.H{"resource_id": id, "freed_mb": freed})
}

// triggerRequest 手工触发熔断的请求体
type triggerRequest struct {
	Level    string `json:"level" binding:"required"`
	TestMode bool   `json:"test_mode"`
}

// TriggerFuse 手工触发指定级别的熔断
//
// POST /api/v1/fuse/trigger
func (h *Handlers) TriggerFuse(c *gin.Context) {
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	level, err := types.ParseFuseLevel(req.Level)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	triggered, err := h.controller.ForceTrigger(c.Request.Context(), level, req.TestMode)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	h.logger.Info("手工触发熔断",
		zap.String("level", level.String()),
		zap.Bool("test_mode", req.TestMode),
		zap.Bool("triggered", triggered))
	ok(c, gin.H{"triggered": triggered, "level": level.String(), "test_mode": req.TestMode})
}
