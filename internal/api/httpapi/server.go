// Package httpapi 熔断器的HTTP诊断接口
//
// 只读为主的运维面：状态、事件、诊断与资源查询，外加
// 手工触发熔断与释放资源两个管理端点。Prometheus 指标
// 挂在 /metrics。
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apiconfig "github.com/visionclip/memfuse/internal/config/api"
)

// shutdownTimeout 优雅关闭的最长等待时间
const shutdownTimeout = 5 * time.Second

// Server HTTP诊断服务器
type Server struct {
	opts       *apiconfig.APIOptions
	router     *gin.Engine
	httpServer *http.Server
	handlers   *Handlers
	registerer *prometheus.Registry
	logger     *zap.Logger
}

// NewServer 创建HTTP诊断服务器并装配路由
func NewServer(opts *apiconfig.APIOptions, handlers *Handlers, reg *prometheus.Registry, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		opts:       opts,
		router:     router,
		handlers:   handlers,
		registerer: reg,
		logger:     logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes 注册全部API端点
func (s *Server) setupRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.registerer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registerer, promhttp.HandlerOpts{})))
	}

	v1 := s.router.Group("/api/v1")
	s.handlers.RegisterRoutes(v1)
}

// Router 暴露路由引擎，测试用
func (s *Server) Router() http.Handler {
	return s.router
}

// Start 启动HTTP监听
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.opts.Listen,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP服务器异常退出", zap.Error(err))
		}
	}()

	s.logger.Info("HTTP诊断接口已启动", zap.String("listen", s.opts.Listen))
	return nil
}

// Stop 优雅关闭HTTP服务器
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(stopCtx)
}
