package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"WaxAgentKit/internal/agent"
	"WaxAgentKit/internal/auth"
	xerrors "WaxAgentKit/internal/errors"
	"WaxAgentKit/internal/task"
	"WaxAgentKit/internal/tools"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Tools == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "工具集未配置"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.deps.Tools.Definitions()})
}

// handleCallTool 同步执行工具。工具失败时仍返回 200 与错误信封。
func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tools == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "工具集未配置"))
		return
	}
	name := r.PathValue("name")
	tool, ok := s.deps.Tools.Get(name)
	if !ok {
		writeRaw(w, http.StatusNotFound, tools.Failure(xerrors.CodeNotFound, fmt.Sprintf("tool %q not found", name)).String())
		return
	}
	if tool.Mutating() {
		if err := s.deps.Auth.Authorize(r.Context(), auth.PermToolsExecute); err != nil {
			s.deps.Auth.Deny(w, r, err)
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidInput, err, "读取请求体失败"))
		return
	}
	input := strings.TrimSpace(string(body))
	if input == "" {
		input = "{}"
	}
	writeRaw(w, http.StatusOK, tool.Call(r.Context(), input))
}

type submitJobRequest struct {
	ID       string          `json:"id,omitempty"`
	Tool     string          `json:"tool"`
	Input    json.RawMessage `json:"input,omitempty"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未配置"))
		return
	}
	var req submitJobRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidInput, err, "请求体解析失败"))
		return
	}
	if s.deps.Tools != nil {
		if tool, ok := s.deps.Tools.Get(strings.TrimSpace(req.Tool)); ok && tool.Mutating() {
			if err := s.deps.Auth.Authorize(r.Context(), auth.PermToolsExecute); err != nil {
				s.deps.Auth.Deny(w, r, err)
				return
			}
		}
	}
	input, err := rawInput(req.Input)
	if err != nil {
		writeError(w, err)
		return
	}

	job, err := s.deps.Jobs.Submit(r.Context(), task.JobRequest{
		ID:       req.ID,
		Tool:     req.Tool,
		Input:    input,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// rawInput 接受 JSON 对象或内容为 JSON 的字符串。
func rawInput(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "{}", nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return "", xerrors.Wrap(xerrors.CodeInvalidInput, err, "input 解析失败")
		}
		return text, nil
	}
	return trimmed, nil
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未配置"))
		return
	}
	opts, err := parseListOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	jobs, err := s.deps.Jobs.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未配置"))
		return
	}
	opts, err := parseListOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := s.deps.Jobs.Stats(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未配置"))
		return
	}
	job, err := s.deps.Jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type chatRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.deps.Assistant == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "智能体未配置"))
		return
	}
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidInput, err, "请求体解析失败"))
		return
	}
	result, err := s.deps.Assistant.Run(s.chatContext(r), req.Prompt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// chatContext 在调用方缺少 tools:execute 时屏蔽会上链的工具，与 /api/v1/tools 的规则一致。
func (s *Server) chatContext(r *http.Request) context.Context {
	ctx := r.Context()
	denied := s.deps.Auth.Authorize(ctx, auth.PermToolsExecute)
	if denied == nil {
		return ctx
	}
	return agent.WithToolGuard(ctx, func(tool tools.Tool) error {
		if !tool.Mutating() {
			return nil
		}
		return xerrors.Wrap(xerrors.CodeUnauthorized, denied, fmt.Sprintf("%s requires the %s permission", tool.Name(), auth.PermToolsExecute))
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Assistant == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "智能体未配置"))
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	records, err := s.deps.Assistant.History(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": records})
}

// parseListOptions 解析 limit/offset/status/tool/q/has_result/order/since/until。
func parseListOptions(r *http.Request) ([]task.ListOption, error) {
	q := r.URL.Query()
	var opts []task.ListOption

	intParam := func(name string, apply func(int) task.ListOption) error {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			return nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return xerrors.Newf(xerrors.CodeInvalidInput, "%s must be a non-negative integer", name)
		}
		opts = append(opts, apply(n))
		return nil
	}
	if err := intParam("limit", task.WithLimit); err != nil {
		return nil, err
	}
	if err := intParam("offset", task.WithOffset); err != nil {
		return nil, err
	}

	if raw := splitList(q["status"]); len(raw) > 0 {
		statuses := make([]task.Status, 0, len(raw))
		for _, value := range raw {
			status := task.Status(strings.ToLower(value))
			if !task.IsValidStatus(status) {
				return nil, xerrors.Newf(xerrors.CodeInvalidInput, "unknown status %q", value)
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	if names := splitList(q["tool"]); len(names) > 0 {
		opts = append(opts, task.WithTools(names...))
	}
	if query := strings.TrimSpace(q.Get("q")); query != "" {
		opts = append(opts, task.WithQuery(query))
	}
	if raw := strings.TrimSpace(q.Get("has_result")); raw != "" {
		has, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, xerrors.New(xerrors.CodeInvalidInput, "has_result must be a boolean")
		}
		opts = append(opts, task.WithResultPresence(has))
	}
	switch strings.ToLower(strings.TrimSpace(q.Get("order"))) {
	case "", "desc":
	case "asc":
		opts = append(opts, task.WithSortOrder(task.SortByUpdatedAsc))
	default:
		return nil, xerrors.New(xerrors.CodeInvalidInput, "order must be asc or desc")
	}
	for name, apply := range map[string]func(time.Time) task.ListOption{
		"since": task.WithUpdatedSince,
		"until": task.WithUpdatedUntil,
	} {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		ts, err := parseTime(raw)
		if err != nil {
			return nil, xerrors.Newf(xerrors.CodeInvalidInput, "%s must be unix seconds or RFC3339", name)
		}
		opts = append(opts, apply(ts))
	}
	return opts, nil
}

func parseTime(raw string) (time.Time, error) {
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}
	return time.Parse(time.RFC3339, raw)
}

func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	writeJSON(w, xerrors.StatusOf(code), errorBody{Error: xerrors.MessageOf(err), Code: string(code)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
