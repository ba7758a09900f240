package waxkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// Chat turns may run several tool calls, so it is longer than a plain RPC.
const DefaultHTTPTimeout = 60 * time.Second

// Client wraps the HTTP interactions with the WaxAgentKit REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// ToolDefinition describes a tool in OpenAI function-calling format.
type ToolDefinition struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

// Envelope is a tool result. Raw keeps the full JSON including payload fields.
type Envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Code    string          `json:"code,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

// OK reports whether the tool succeeded.
func (e Envelope) OK() bool { return e.Status == "success" }

// Field decodes one payload field of the envelope into v.
func (e Envelope) Field(key string, v any) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(e.Raw, &fields); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	raw, ok := fields[key]
	if !ok {
		return fmt.Errorf("envelope has no field %q", key)
	}
	return json.Unmarshal(raw, v)
}

// JobSubmission queues an asynchronous tool call. Input may be any JSON value
// the tool accepts, usually a map.
type JobSubmission struct {
	ID       string         `json:"id,omitempty"`
	Tool     string         `json:"tool"`
	Input    any            `json:"input,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// JobResult is the stored envelope of a finished job.
type JobResult struct {
	Status   string          `json:"status"`
	Message  string          `json:"message"`
	Envelope json.RawMessage `json:"envelope,omitempty"`
}

// Job is the server-side state of a queued tool call.
type Job struct {
	ID         string         `json:"id"`
	Tool       string         `json:"tool"`
	Input      string         `json:"input"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Status     string         `json:"status"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"max_retries"`
	LastError  string         `json:"last_error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Result     *JobResult     `json:"result,omitempty"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

// Finished reports whether the job will not run again.
func (j Job) Finished() bool { return j.Status == "succeeded" || j.Status == "failed" }

// JobStats aggregates job counts.
type JobStats struct {
	Total           int            `json:"total"`
	Pending         int            `json:"pending"`
	Running         int            `json:"running"`
	Succeeded       int            `json:"succeeded"`
	Failed          int            `json:"failed"`
	ByTool          map[string]int `json:"by_tool,omitempty"`
	OldestUpdatedAt int64          `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64          `json:"newest_updated_at,omitempty"`
}

// ListJobsOptions filters job listings. Zero values are omitted.
type ListJobsOptions struct {
	Limit     int
	Offset    int
	Statuses  []string
	Tools     []string
	Query     string
	HasResult *bool
	Ascending bool
	Since     time.Time
	Until     time.Time
}

func (o ListJobsOptions) values() url.Values {
	v := url.Values{}
	if o.Limit > 0 {
		v.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		v.Set("offset", strconv.Itoa(o.Offset))
	}
	if len(o.Statuses) > 0 {
		v.Set("status", strings.Join(o.Statuses, ","))
	}
	if len(o.Tools) > 0 {
		v.Set("tool", strings.Join(o.Tools, ","))
	}
	if o.Query != "" {
		v.Set("q", o.Query)
	}
	if o.HasResult != nil {
		v.Set("has_result", strconv.FormatBool(*o.HasResult))
	}
	if o.Ascending {
		v.Set("order", "asc")
	}
	if !o.Since.IsZero() {
		v.Set("since", strconv.FormatInt(o.Since.Unix(), 10))
	}
	if !o.Until.IsZero() {
		v.Set("until", strconv.FormatInt(o.Until.Unix(), 10))
	}
	return v
}

// ToolCall is one tool invocation made during a chat turn.
type ToolCall struct {
	Tool   string `json:"tool"`
	Input  string `json:"input"`
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
}

// Turn is the agent's answer to one prompt.
type Turn struct {
	ID        int64      `json:"id,omitempty"`
	SessionID string     `json:"session_id"`
	Prompt    string     `json:"prompt"`
	Reply     string     `json:"reply"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Steps     int        `json:"steps"`
	Truncated bool       `json:"truncated,omitempty"`
	CreatedAt int64      `json:"created_at"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("waxkit api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("waxkit api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the WaxAgentKit API. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url: %q", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// AccessToken returns the currently stored token string.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken sets the bearer token sent with every request.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// Tools lists the tools the server exposes.
func (c *Client) Tools(ctx context.Context) ([]ToolDefinition, error) {
	var out struct {
		Tools []ToolDefinition `json:"tools"`
	}
	if err := c.get(ctx, "/api/v1/tools", nil, &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

// CallTool runs a tool synchronously. A tool failure is not an error: check
// Envelope.OK. input may be nil, a JSON string, or any value json can encode.
func (c *Client) CallTool(ctx context.Context, name string, input any) (Envelope, error) {
	var body []byte
	switch v := input.(type) {
	case nil:
		body = []byte("{}")
	case string:
		body = []byte(v)
	case json.RawMessage:
		body = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return Envelope{}, fmt.Errorf("encode input: %w", err)
		}
		body = encoded
	}

	var raw json.RawMessage
	endpoint := "/api/v1/tools/" + url.PathEscape(name)
	if err := c.send(ctx, http.MethodPost, endpoint, nil, body, &raw); err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	env.Raw = raw
	return env, nil
}

// SubmitJob queues a tool call.
func (c *Client) SubmitJob(ctx context.Context, submission JobSubmission) (Job, error) {
	var job Job
	if err := c.post(ctx, "/api/v1/jobs", submission, &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// GetJob fetches a job by identifier.
func (c *Client) GetJob(ctx context.Context, id string) (Job, error) {
	var job Job
	if err := c.get(ctx, "/api/v1/jobs/"+url.PathEscape(id), nil, &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// ListJobs returns jobs matching opts, most recently updated first unless
// opts.Ascending is set.
func (c *Client) ListJobs(ctx context.Context, opts ListJobsOptions) ([]Job, error) {
	var out struct {
		Jobs []Job `json:"jobs"`
	}
	if err := c.get(ctx, "/api/v1/jobs", opts.values(), &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// JobStats returns job counts matching opts.
func (c *Client) JobStats(ctx context.Context, opts ListJobsOptions) (JobStats, error) {
	var stats JobStats
	if err := c.get(ctx, "/api/v1/jobs/stats", opts.values(), &stats); err != nil {
		return JobStats{}, err
	}
	return stats, nil
}

// WaitForJob polls until the job finishes or ctx ends.
func (c *Client) WaitForJob(ctx context.Context, id string, interval time.Duration) (Job, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			return Job{}, err
		}
		if job.Finished() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Chat sends one prompt to the agent.
func (c *Client) Chat(ctx context.Context, prompt string) (Turn, error) {
	var turn Turn
	if err := c.post(ctx, "/api/v1/chat", map[string]string{"prompt": prompt}, &turn); err != nil {
		return Turn{}, err
	}
	return turn, nil
}

// History returns the latest chat turns, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]Turn, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Turns []Turn `json:"turns"`
	}
	if err := c.get(ctx, "/api/v1/history", query, &out); err != nil {
		return nil, err
	}
	return out.Turns, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.send(ctx, http.MethodPost, endpoint, nil, body, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	return c.send(ctx, http.MethodGet, endpoint, query, nil, out)
}

func (c *Client) send(ctx context.Context, method, endpoint string, query url.Values, body []byte, out any) error {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	if len(query) > 0 {
		rel.RawQuery = query.Encode()
	}
	u := c.baseURL.ResolveReference(rel)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeAPIError understands both {"error","code"} bodies and tool envelopes.
func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read error response: %w", err)
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if json.Unmarshal(data, &payload) == nil {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Error
		if apiErr.Message == "" {
			apiErr.Message = payload.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = string(bytes.TrimSpace(data))
	}
	return apiErr
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
