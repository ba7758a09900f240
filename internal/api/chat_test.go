package api

import (
	"context"
	"net/http"
	"testing"

	"WaxAgentKit/internal/agent"
	"WaxAgentKit/internal/auth"
	"WaxAgentKit/internal/llm"
	"WaxAgentKit/internal/tools"
)

// transferLLM 在收到用户消息时请求转账，收到工具结果后结束本轮。
type transferLLM struct{}

func (transferLLM) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if last := req.Messages[len(req.Messages)-1]; last.Role == llm.RoleTool {
		return &llm.ChatResponse{Message: llm.Message{Content: "done"}}, nil
	}
	return &llm.ChatResponse{Message: llm.Message{ToolCalls: []llm.ToolCall{{
		ID:        "call-1",
		Name:      "wax_transfer",
		Arguments: `{"to":"bob.wam","token_quantity":100,"token_symbol":"WAX"}`,
	}}}}, nil
}

func newChatServer(t *testing.T) (http.Handler, *stubTool) {
	t.Helper()
	transfer := &stubTool{name: "wax_transfer", mutating: true, output: `{"status":"success","message":"sent"}`}
	registry := tools.NewRegistry(transfer)

	authSvc, err := auth.NewService(auth.Config{
		Mode: auth.ModeToken,
		Tokens: []auth.Token{
			{Name: "chatter", Token: "chatter", Permissions: []string{auth.PermChat}},
			{Name: "pilot", Token: "pilot", Permissions: []string{auth.PermChat, auth.PermToolsExecute}},
		},
	})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	server := NewServer(":0", Dependencies{
		Tools:     registry,
		Assistant: agent.New(transferLLM{}, registry, nil),
		Auth:      authSvc,
	})
	return server.Handler(), transfer
}

func TestChatWithoutExecutePermissionCannotRunMutatingTools(t *testing.T) {
	handler, transfer := newChatServer(t)
	f := &fixture{handler: handler}

	rec := f.do(http.MethodPost, "/api/v1/chat", "chatter", `{"prompt":"send 100 WAX to bob.wam"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if len(transfer.inputs) != 0 {
		t.Fatalf("transfer ran for a chat-only token: %v", transfer.inputs)
	}

	var result agent.TurnResult
	decode(t, rec, &result)
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].Status != tools.StatusError {
		t.Fatalf("expected a refused tool call, got %+v", result.ToolCalls)
	}
	env, err := tools.DecodeEnvelope(result.ToolCalls[0].Output)
	if err != nil || env.Code != "UNAUTHORIZED" {
		t.Fatalf("unexpected envelope %q: %v", result.ToolCalls[0].Output, err)
	}
}

func TestChatWithExecutePermissionRunsMutatingTools(t *testing.T) {
	handler, transfer := newChatServer(t)
	f := &fixture{handler: handler}

	rec := f.do(http.MethodPost, "/api/v1/chat", "pilot", `{"prompt":"send 100 WAX to bob.wam"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if len(transfer.inputs) != 1 {
		t.Fatalf("transfer should run once, got %d", len(transfer.inputs))
	}
}
