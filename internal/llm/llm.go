package llm

import (
	"context"

	xerrors "WaxAgentKit/internal/errors"
)

// 消息角色，与 OpenAI chat 协议一致。
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// CodeLLMFailure 表示推理服务调用失败。
const CodeLLMFailure xerrors.Code = "LLM_FAILURE"

func init() {
	xerrors.Register(CodeLLMFailure, xerrors.Attributes{
		Message:   "llm request failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
}

// ToolCall 是模型要求执行的一次工具调用。Arguments 为原始 JSON 字符串。
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message 是对话中的一条消息。
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolDefinition 描述模型可以调用的函数。
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatRequest 是一次对话补全请求。
type ChatRequest struct {
	Messages []Message
	Tools    []ToolDefinition
}

// Usage 记录 token 消耗。
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse 是模型返回的助手消息。
type ChatResponse struct {
	Message      Message
	FinishReason string
	Usage        Usage
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
