package waxkit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCallToolSendsTokenAndDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tools/wax_get_balance" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected authorization header %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"account_name":"alice"}` {
			t.Errorf("unexpected body %s", body)
		}
		_, _ = io.WriteString(w, `{"status":"success","message":"ok","balance":"1.00000000 WAX"}`)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.SetAccessToken("secret")

	env, err := client.CallTool(context.Background(), "wax_get_balance", map[string]string{"account_name": "alice"})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if !env.OK() || env.Message != "ok" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	var balance string
	if err := env.Field("balance", &balance); err != nil || balance != "1.00000000 WAX" {
		t.Fatalf("unexpected balance field: %q %v", balance, err)
	}
}

func TestCallToolNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"status":"error","message":"tool \"x\" not found","code":"NOT_FOUND"}`)
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, srv.Client())
	_, err := client.CallTool(context.Background(), "x", nil)
	if !IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
	apiErr := err.(*APIError)
	if apiErr.Code != "NOT_FOUND" || apiErr.Message != `tool "x" not found` {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestJobsAndWait(t *testing.T) {
	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/jobs":
			var sub JobSubmission
			if err := json.NewDecoder(r.Body).Decode(&sub); err != nil || sub.Tool != "wax_buy_ram" {
				t.Errorf("unexpected submission: %+v %v", sub, err)
			}
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(Job{ID: "job-1", Tool: sub.Tool, Status: "pending"})
		case r.URL.Path == "/api/v1/jobs/job-1":
			polls++
			status := "running"
			if polls >= 2 {
				status = "succeeded"
			}
			_ = json.NewEncoder(w).Encode(Job{ID: "job-1", Status: status})
		case r.URL.Path == "/api/v1/jobs":
			if got := r.URL.Query().Get("status"); got != "pending,failed" {
				t.Errorf("unexpected status filter %q", got)
			}
			if got := r.URL.Query().Get("order"); got != "asc" {
				t.Errorf("unexpected order %q", got)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"jobs": []Job{{ID: "job-1"}}})
		case r.URL.Path == "/api/v1/jobs/stats":
			_ = json.NewEncoder(w).Encode(JobStats{Total: 1, Succeeded: 1})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, srv.Client())
	ctx := context.Background()

	job, err := client.SubmitJob(ctx, JobSubmission{Tool: "wax_buy_ram", Input: map[string]any{"buy_ram_bytes": 1024}})
	if err != nil || job.ID != "job-1" {
		t.Fatalf("submit: %+v %v", job, err)
	}

	done, err := client.WaitForJob(ctx, "job-1", time.Millisecond)
	if err != nil || done.Status != "succeeded" || polls != 2 {
		t.Fatalf("wait: %+v %v polls=%d", done, err, polls)
	}

	jobs, err := client.ListJobs(ctx, ListJobsOptions{Statuses: []string{"pending", "failed"}, Ascending: true})
	if err != nil || len(jobs) != 1 {
		t.Fatalf("list: %+v %v", jobs, err)
	}

	stats, err := client.JobStats(ctx, ListJobsOptions{})
	if err != nil || stats.Total != 1 {
		t.Fatalf("stats: %+v %v", stats, err)
	}
}

func TestChatAndHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/chat":
			var req map[string]string
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(Turn{Prompt: req["prompt"], Reply: "done", Steps: 2,
				ToolCalls: []ToolCall{{Tool: "wax_get_balance", Status: "success"}}})
		case "/api/v1/history":
			if r.URL.Query().Get("limit") != "3" {
				t.Errorf("unexpected limit %q", r.URL.Query().Get("limit"))
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"turns": []Turn{{ID: 1, Reply: "done"}}})
		case "/api/v1/tools":
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "forbidden", "code": "UNAUTHORIZED"})
		}
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL+"/", srv.Client())
	ctx := context.Background()

	turn, err := client.Chat(ctx, "balance?")
	if err != nil || turn.Prompt != "balance?" || len(turn.ToolCalls) != 1 {
		t.Fatalf("chat: %+v %v", turn, err)
	}
	turns, err := client.History(ctx, 3)
	if err != nil || len(turns) != 1 {
		t.Fatalf("history: %+v %v", turns, err)
	}
	if _, err := client.Tools(ctx); err == nil {
		t.Fatalf("expected forbidden error")
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient("not a url", nil); err == nil {
		t.Fatalf("expected error for invalid url")
	}
}
