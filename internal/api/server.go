package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	xerrors "TravelPlanner/internal/errors"
	"TravelPlanner/internal/job"
	"TravelPlanner/internal/observability/metrics"
	"TravelPlanner/internal/pipeline"
	"TravelPlanner/internal/travel"
)

// SearchRunner 定义了同步搜索所需的流水线能力。
type SearchRunner interface {
	Run(ctx context.Context, query string, mode pipeline.Mode) (*travel.SearchResults, error)
}

// Server 负责暴露 REST 接口，供外部触发旅行搜索。
type Server struct {
	addr   string
	jobs   *job.Service
	runner SearchRunner
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, jobs *job.Service, runner SearchRunner) *Server {
	return &Server{addr: addr, jobs: jobs, runner: runner}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/search", s.instrument("search", s.handleSearch))
	mux.HandleFunc("/api/v1/searches", s.instrument("searches", s.handleSearches))
	mux.HandleFunc("/api/v1/searches/stats", s.instrument("searches_stats", s.handleSearchStats))
	mux.HandleFunc("/api/v1/searches/", s.instrument("search_detail", s.handleSearchDetail))

	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, mux),
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

// instrument 把请求耗时与状态码写入指标收集器。
func (s *Server) instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(started))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type searchRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode,omitempty"`
}

// handleSearch 同步执行整条流水线并返回搜索结果。
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.runner == nil {
		http.Error(w, "流水线未初始化", http.StatusServiceUnavailable)
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "查询文本不能为空", http.StatusBadRequest)
		return
	}
	mode, err := pipeline.ParseMode(req.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	results, err := s.runner.Run(r.Context(), req.Query, mode)
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// writeRunError 把流水线错误映射为 HTTP 状态码。
// 解析失败时响应体带上模型的原始输出。
func (s *Server) writeRunError(w http.ResponseWriter, err error) {
	var parseErr *travel.OutputParseError
	if stdErrors.As(err, &parseErr) {
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":      err.Error(),
			"raw_output": parseErr.Raw,
		})
		return
	}
	switch xerrors.CodeOf(err) {
	case xerrors.CodeInvalidArgument:
		http.Error(w, err.Error(), http.StatusBadRequest)
	case xerrors.CodeTimeout:
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	case xerrors.CodeCompletionFailure:
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleSearches 提交异步作业或列出已有作业。
func (s *Server) handleSearches(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitSearch(w, r)
	case http.MethodGet:
		s.handleListSearches(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSubmitSearch(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		http.Error(w, "作业服务未初始化", http.StatusServiceUnavailable)
		return
	}

	var req job.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	submitted, err := s.jobs.Submit(r.Context(), req)
	if err != nil {
		if xerrors.CodeOf(err) == job.CodeJobValidation {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, submitted)
}

func (s *Server) handleListSearches(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		http.Error(w, "作业服务未初始化", http.StatusServiceUnavailable)
		return
	}

	opts, err := listOptionsFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	jobs, err := s.jobs.List(r.Context(), opts...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// handleSearchDetail 返回单个作业的状态。
func (s *Server) handleSearchDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.jobs == nil {
		http.Error(w, "作业服务未初始化", http.StatusServiceUnavailable)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/searches/")
	id = strings.TrimSpace(id)
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "作业 ID 不能为空", http.StatusBadRequest)
		return
	}

	found, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		if job.IsJobError(err, job.CodeJobNotFound) {
			http.Error(w, "作业不存在", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// handleSearchStats 返回作业统计信息。
func (s *Server) handleSearchStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.jobs == nil {
		http.Error(w, "作业服务未初始化", http.StatusServiceUnavailable)
		return
	}

	opts, err := listOptionsFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	stats, err := s.jobs.Stats(r.Context(), opts...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// listOptionsFromQuery 把 URL 查询参数翻译成存储层过滤条件。
func listOptionsFromQuery(r *http.Request) ([]job.ListOption, error) {
	values := r.URL.Query()
	opts := make([]job.ListOption, 0, 4)

	if raw := values.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return nil, stdErrors.New("limit 参数不合法")
		}
		opts = append(opts, job.WithLimit(parsed))
	}
	if raw := values.Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return nil, stdErrors.New("offset 参数不合法")
		}
		opts = append(opts, job.WithOffset(parsed))
	}
	if raw := values.Get("status"); raw != "" {
		statuses := make([]job.Status, 0, 4)
		for _, part := range strings.Split(raw, ",") {
			status := job.Status(strings.TrimSpace(part))
			if !job.IsValidStatus(status) {
				return nil, stdErrors.New("status 参数不合法: " + part)
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, job.WithStatuses(statuses...))
	}
	if raw := values.Get("has_result"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, stdErrors.New("has_result 参数不合法")
		}
		opts = append(opts, job.WithResultPresence(parsed))
	}
	if raw := values.Get("order"); raw != "" {
		switch raw {
		case "asc":
			opts = append(opts, job.WithSortOrder(job.SortByUpdatedAsc))
		case "desc":
			opts = append(opts, job.WithSortOrder(job.SortByUpdatedDesc))
		default:
			return nil, stdErrors.New("order 参数不合法")
		}
	}
	if raw := values.Get("q"); raw != "" {
		opts = append(opts, job.WithQuery(raw))
	}
	return opts, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
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
