// Package api 暴露任务编排服务的 REST 接口。
package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	xerrors "AgentPay/internal/errors"
	"AgentPay/internal/observability/metrics"
	"AgentPay/internal/task"
)

// Server 负责暴露任务提交与查询接口。
type Server struct {
	addr  string
	tasks *task.Service
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, tasks *task.Service) *Server {
	return &Server{addr: addr, tasks: tasks}
}

// Router 构建路由。任务端点挂载在根路径上,
// /api/v1 作为同一组端点的版本化别名保留。
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(metrics.RequestMiddleware)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	s.mountTasks(r)
	r.Route("/api/v1", func(v1 chi.Router) { s.mountTasks(v1) })
	r.Handle("/metrics", metrics.Handler())
	return r
}

func (s *Server) mountTasks(r chi.Router) {
	r.Post("/tasks", s.handleSubmit)
	r.Get("/tasks", s.handleList)
	r.Get("/tasks/stats", s.handleStats)
	r.Get("/tasks/{task_id}", s.handleGet)
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

type submitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.CodeInitializationFailure, "任务服务未初始化")
		return
	}
	var req task.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, xerrors.CodeInvalidArgument, "请求体解析失败")
		return
	}
	created, err := s.tasks.Submit(r.Context(), req)
	if err != nil {
		switch xerrors.CodeOf(err) {
		case xerrors.CodeInvalidBudget, task.CodeTaskValidation:
			writeError(w, http.StatusBadRequest, xerrors.CodeOf(err), err.Error())
		default:
			writeError(w, http.StatusInternalServerError, xerrors.CodeOf(err), err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{TaskID: created.ID, Status: string(created.Status)})
}

// taskResponse 的 report 字段始终出现,未完成的任务给出空值。
type taskResponse struct {
	TaskID    string `json:"task_id"`
	Theme     string `json:"theme"`
	Budget    int64  `json:"budget"`
	Status    string `json:"status"`
	Report    string `json:"report"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

func toTaskResponse(t *task.Task) taskResponse {
	return taskResponse{
		TaskID:    t.ID,
		Theme:     t.Theme,
		Budget:    t.Budget,
		Status:    string(t.Status),
		Report:    t.Report,
		ErrorCode: t.FailCode,
		Error:     t.FailReason,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.CodeInitializationFailure, "任务服务未初始化")
		return
	}
	id := chi.URLParam(r, "task_id")
	t, err := s.tasks.Get(r.Context(), id)
	if err != nil {
		if stdErrors.Is(err, task.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, task.CodeTaskNotFound, "任务不存在")
			return
		}
		writeError(w, http.StatusInternalServerError, xerrors.CodeOf(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.CodeInitializationFailure, "任务服务未初始化")
		return
	}
	opts := make([]task.ListOption, 0, 4)
	query := r.URL.Query()
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			opts = append(opts, task.WithLimit(parsed))
		}
	}
	if raw := query.Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			opts = append(opts, task.WithOffset(parsed))
		}
	}
	if raw := query.Get("status"); raw != "" {
		statuses := make([]task.Status, 0, 2)
		for _, part := range strings.Split(raw, ",") {
			statuses = append(statuses, task.Status(strings.TrimSpace(part)))
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	if raw := query.Get("q"); raw != "" {
		opts = append(opts, task.WithQuery(raw))
	}
	if strings.EqualFold(query.Get("order"), "asc") {
		opts = append(opts, task.WithSortOrder(task.SortByUpdatedAsc))
	}

	tasks, err := s.tasks.List(r.Context(), opts...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, xerrors.CodeOf(err), err.Error())
		return
	}
	items := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, toTaskResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string][]taskResponse{"data": items})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.CodeInitializationFailure, "任务服务未初始化")
		return
	}
	stats, err := s.tasks.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, xerrors.CodeOf(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code xerrors.Code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    string(code),
		"message": message,
	})
}
