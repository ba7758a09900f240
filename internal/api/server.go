package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"

	"WaxAgentKit/internal/agent"
	"WaxAgentKit/internal/auth"
	"WaxAgentKit/internal/observability/metrics"
	"WaxAgentKit/internal/ratelimit"
	"WaxAgentKit/internal/storage/mysql"
	"WaxAgentKit/internal/task"
	"WaxAgentKit/internal/tools"
	"WaxAgentKit/pkg/logger"
)

// ToolCatalog 暴露可调用的工具，*tools.Registry 满足该接口。
type ToolCatalog interface {
	Definitions() []tools.ToolDefinition
	Get(name string) (tools.Tool, bool)
}

// JobService 是异步任务的提交与查询接口，*task.Service 满足该接口。
type JobService interface {
	Submit(ctx context.Context, req task.JobRequest) (*task.Job, error)
	Get(ctx context.Context, id string) (*task.Job, error)
	List(ctx context.Context, opts ...task.ListOption) ([]*task.Job, error)
	Stats(ctx context.Context, opts ...task.ListOption) (task.JobStats, error)
}

// Assistant 是对话智能体接口，*agent.Agent 满足该接口。
type Assistant interface {
	Run(ctx context.Context, prompt string) (*agent.TurnResult, error)
	History(ctx context.Context, limit int) ([]mysql.TurnRecord, error)
}

// Dependencies 汇总 API 需要的组件，未配置的组件对应的接口返回 503。
type Dependencies struct {
	Tools       ToolCatalog
	Jobs        JobService
	Assistant   Assistant
	Auth        *auth.Service
	Limiter     *ratelimit.MapLimiter
	CORSOrigins []string
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr    string
	deps    Dependencies
	log     *slog.Logger
	handler http.Handler
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, deps Dependencies) *Server {
	s := &Server{addr: addr, deps: deps, log: logger.Named("api")}
	s.handler = s.routes()
	return s
}

// Handler 返回完整的处理链，便于测试。
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	s.handle(mux, "GET /healthz", "healthz", nil, s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	s.handle(mux, "GET /api/v1/tools", "tools_list", []string{auth.PermToolsRead}, s.handleListTools)
	s.handle(mux, "POST /api/v1/tools/{name}", "tools_call", []string{auth.PermToolsRead}, s.handleCallTool)

	s.handle(mux, "POST /api/v1/jobs", "jobs_submit", []string{auth.PermJobsWrite}, s.handleSubmitJob)
	s.handle(mux, "GET /api/v1/jobs", "jobs_list", []string{auth.PermToolsRead}, s.handleListJobs)
	s.handle(mux, "GET /api/v1/jobs/stats", "jobs_stats", []string{auth.PermToolsRead}, s.handleJobStats)
	s.handle(mux, "GET /api/v1/jobs/{id}", "jobs_detail", []string{auth.PermToolsRead}, s.handleJobDetail)

	s.handle(mux, "POST /api/v1/chat", "chat", []string{auth.PermChat}, s.handleChat)
	s.handle(mux, "GET /api/v1/history", "history", []string{auth.PermChat}, s.handleHistory)

	origins := s.deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return c.Handler(s.rateLimit(mux))
}

// handle 注册路由，并按需套上鉴权与指标中间件。
func (s *Server) handle(mux *http.ServeMux, pattern, name string, perms []string, fn http.HandlerFunc) {
	var h http.Handler = fn
	if len(perms) > 0 {
		h = s.deps.Auth.Require(name, auth.Policy{"*": perms})(h)
	}
	mux.Handle(pattern, instrument(name, h))
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("api server listening", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
