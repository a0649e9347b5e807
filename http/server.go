// Package http 提供HTTP服务器功能
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	_ "busdelay/docs"
	"busdelay/monitoring"
	"busdelay/serving"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// Server HTTP服务器
type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxBodyBytes   int64
	AllowedOrigins []string
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8000,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxBodyBytes:   10 << 20,
		AllowedOrigins: []string{"*"},
	}
}

// Deps 服务器依赖
type Deps struct {
	Service *serving.Service
	// Recent 为 nil 时 /api/predictions/recent 返回 404
	Recent  RecentLister
	Metrics *monitoring.MetricsCollector
	Logger  *zap.Logger
}

// NewHandler 注册路由并包装中间件链
func NewHandler(config ServerConfig, deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "http"))

	api := &handlers{svc: deps.Service, recent: deps.Recent, metrics: deps.Metrics, logger: logger}
	mux := http.NewServeMux()

	// 注册所有处理器
	api.register(mux)
	mux.Handle("GET /ws/predict", newStreamHandler(api, deps.Metrics, config.MaxBodyBytes, config.AllowedOrigins))
	mux.Handle("GET /metrics", deps.Metrics.Handler())
	mux.Handle("GET /swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	return middlewareChain(config, logger, deps.Metrics)(mux)
}

// middlewareChain 创建中间件链
func middlewareChain(config ServerConfig, logger *zap.Logger, metrics *monitoring.MetricsCollector) Middleware {
	return Chain(
		LoggerMiddleware(logger, metrics),          // 1. 日志中间件（最外层，panic 后的 500 也会被记录）
		RecoveryMiddleware(logger),                 // 2. 恢复中间件（捕获panic）
		SecurityHeadersMiddleware,                  // 3. 安全头中间件
		CORSMiddleware(config.AllowedOrigins),      // 4. CORS中间件
		RequestSizeMiddleware(config.MaxBodyBytes), // 5. 请求大小限制
	)
}

// NewServer 创建HTTP服务器
func NewServer(config ServerConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      NewHandler(config, deps),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		config: config,
		logger: logger,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	return nil
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}
