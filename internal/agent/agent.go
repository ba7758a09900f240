package agent

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "WaxAgentKit/internal/errors"
	"WaxAgentKit/internal/knowledge"
	"WaxAgentKit/internal/llm"
	"WaxAgentKit/internal/storage/mysql"
	"WaxAgentKit/internal/tools"
	"WaxAgentKit/pkg/logger"
)

// SystemPrompt 是默认的系统提示词。
const SystemPrompt = "You are a helpful agent that can interact onchain using the Wax Agent Tool Kit. " +
	"You are empowered to interact onchain using your tools. " +
	"If there is a 5XX (internal) HTTP error code, ask the user to try again later. " +
	"If someone asks you to do something you can't do with your currently available tools, you must say so, and encourage them to implement. " +
	"Be concise and helpful with your responses. " +
	"Refrain from restating your tools' descriptions unless it is explicitly requested."

// AutonomousPrompt 是自动模式下每轮发送的指令。
const AutonomousPrompt = "Be creative and do something interesting on the blockchain. " +
	"Choose an action or set of actions and execute it that highlights your abilities."

const (
	// defaultMemoryDepth 是大模型调用时可参考的历史对话数量的默认值。
	defaultMemoryDepth = 5
	// defaultMaxSteps 限制一轮对话内模型与工具往返的次数。
	defaultMaxSteps = 8
	// DefaultAutoInterval 是自动模式两轮之间的间隔。
	DefaultAutoInterval = 10 * time.Second
)

// Toolset 是 Agent 可调用的工具集合，通常为 *tools.Registry。
type Toolset interface {
	Definitions() []tools.ToolDefinition
	Get(name string) (tools.Tool, bool)
}

// ToolGuard 在调用前检查工具，返回错误时该工具既不提供给模型也不会执行。
type ToolGuard func(tools.Tool) error

type toolGuardKey struct{}

// WithToolGuard 返回携带 guard 的上下文，只对本次 Run 生效。
func WithToolGuard(ctx context.Context, guard ToolGuard) context.Context {
	if guard == nil {
		return ctx
	}
	return context.WithValue(ctx, toolGuardKey{}, guard)
}

func toolGuardFrom(ctx context.Context) ToolGuard {
	guard, _ := ctx.Value(toolGuardKey{}).(ToolGuard)
	return guard
}

// TurnResult 汇总一轮对话的结果。
type TurnResult struct {
	ID        int64                  `json:"id,omitempty"`
	SessionID string                 `json:"session_id"`
	Prompt    string                 `json:"prompt"`
	Reply     string                 `json:"reply"`
	ToolCalls []mysql.ToolCallRecord `json:"tool_calls,omitempty"`
	Steps     int                    `json:"steps"`
	// Truncated 表示模型在步数上限内没有给出最终回复。
	Truncated bool  `json:"truncated,omitempty"`
	CreatedAt int64 `json:"created_at"`
}

// Agent 协调大模型与 WAX 工具，是系统的业务核心。
type Agent struct {
	llmClient    llm.Client
	toolset      Toolset
	history      mysql.HistoryRepository
	memoryDepth  int
	maxSteps     int
	knowledge    knowledge.Provider
	llmTimeout   time.Duration
	systemPrompt string
	sessionID    string
	log          *slog.Logger
	now          func() time.Time
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

// WithMemoryDepth 设置大模型调用时可参考的历史对话数量。
func WithMemoryDepth(depth int) Option {
	return func(a *Agent) {
		a.memoryDepth = depth
	}
}

// WithMaxSteps 设置一轮对话内的最大推理步数。
func WithMaxSteps(steps int) Option {
	return func(a *Agent) {
		a.maxSteps = steps
	}
}

// WithKnowledgeProvider 配置知识库，用于在推理前补充上下文。
func WithKnowledgeProvider(provider knowledge.Provider) Option {
	return func(a *Agent) {
		a.knowledge = provider
	}
}

// WithLLMTimeout 设置调用大模型的超时时间。
func WithLLMTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		if timeout <= 0 {
			a.llmTimeout = 0
			return
		}
		a.llmTimeout = timeout
	}
}

// WithSystemPrompt 替换默认系统提示词。
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) {
		if strings.TrimSpace(prompt) != "" {
			a.systemPrompt = prompt
		}
	}
}

// WithSessionID 指定写入历史记录的会话 ID。
func WithSessionID(id string) Option {
	return func(a *Agent) {
		if id != "" {
			a.sessionID = id
		}
	}
}

// New 创建一个 Agent。history 为 nil 时不记录也不回放历史。
func New(llmClient llm.Client, toolset Toolset, history mysql.HistoryRepository, opts ...Option) *Agent {
	ag := &Agent{
		llmClient:    llmClient,
		toolset:      toolset,
		history:      history,
		memoryDepth:  defaultMemoryDepth,
		maxSteps:     defaultMaxSteps,
		systemPrompt: SystemPrompt,
		sessionID:    uuid.NewString(),
		log:          logger.Named("agent"),
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	if ag.memoryDepth < 0 {
		ag.memoryDepth = 0
	}
	if ag.maxSteps <= 0 {
		ag.maxSteps = defaultMaxSteps
	}
	return ag
}

// SessionID 返回当前会话 ID。
func (a *Agent) SessionID() string { return a.sessionID }

// Run 执行一轮对话：调用大模型，按需执行工具，直到模型给出最终回复。
func (a *Agent) Run(ctx context.Context, prompt string) (*TurnResult, error) {
	if a.llmClient == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, xerrors.New(xerrors.CodeInvalidInput, "prompt 不能为空")
	}

	messages := []llm.Message{{Role: llm.RoleSystem, Content: a.buildSystemPrompt(prompt)}}
	messages = append(messages, a.loadHistory(ctx)...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})

	definitions := a.definitions(ctx)
	result := &TurnResult{SessionID: a.sessionID, Prompt: prompt}

	for result.Steps < a.maxSteps {
		result.Steps++
		resp, err := a.chat(ctx, llm.ChatRequest{Messages: messages, Tools: definitions})
		if err != nil {
			return nil, err
		}

		reply := resp.Message
		reply.Role = llm.RoleAssistant
		messages = append(messages, reply)
		result.Reply = reply.Content

		if len(reply.ToolCalls) == 0 {
			break
		}
		for _, call := range reply.ToolCalls {
			output, record := a.invoke(ctx, call)
			result.ToolCalls = append(result.ToolCalls, record)
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    output,
				ToolCallID: call.ID,
			})
		}
		if result.Steps == a.maxSteps {
			result.Truncated = true
		}
	}

	result.CreatedAt = a.now().Unix()
	a.saveTurn(ctx, result)
	return result, nil
}

// History 返回最近的对话记录。
func (a *Agent) History(ctx context.Context, limit int) ([]mysql.TurnRecord, error) {
	if a.history == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置对话历史仓库")
	}
	records, err := a.history.ListLatest(ctx, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询对话记录失败")
	}
	return records, nil
}

// Autonomous 每隔 interval 以 prompt 运行一轮，直到 ctx 结束后返回 nil。
// 单轮失败只记录日志，onTurn 可为空。
func (a *Agent) Autonomous(ctx context.Context, interval time.Duration, prompt string, onTurn func(*TurnResult, error)) error {
	if interval <= 0 {
		interval = DefaultAutoInterval
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = AutonomousPrompt
	}

	for {
		result, err := a.Run(ctx, prompt)
		if err != nil && ctx.Err() != nil {
			return nil
		}
		if err != nil {
			a.log.Warn("autonomous turn failed", "error", err)
		}
		if onTurn != nil {
			onTurn(result, err)
		}
		if ctx.Err() != nil {
			return nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (a *Agent) chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	llmCtx := ctx
	if a.llmTimeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, a.llmTimeout)
		defer cancel()
	}

	resp, err := a.llmClient.Chat(llmCtx, req)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "大模型推理超时")
		}
		if _, ok := xerrors.From(err); ok {
			return nil, err
		}
		return nil, xerrors.Wrap(llm.CodeLLMFailure, err, "大模型推理失败")
	}
	if resp == nil {
		return nil, xerrors.New(llm.CodeLLMFailure, "大模型返回为空")
	}
	return resp, nil
}

// invoke 执行一次工具调用，返回交给模型的信封和历史记录。
func (a *Agent) invoke(ctx context.Context, call llm.ToolCall) (string, mysql.ToolCallRecord) {
	input := strings.TrimSpace(call.Arguments)
	if input == "" {
		input = "{}"
	}
	record := mysql.ToolCallRecord{Tool: call.Name, Input: input}

	var output string
	tool, ok := a.lookup(call.Name)
	if !ok {
		output = tools.Failure(xerrors.CodeNotFound, fmt.Sprintf("tool %q is not available", call.Name)).String()
	} else if err := a.guarded(ctx, tool); err != nil {
		a.log.Warn("tool call denied", "tool", call.Name, "error", err)
		output = tools.FailureFrom(err).String()
	} else {
		output = tool.Call(ctx, input)
	}

	record.Status = tools.StatusError
	if env, err := tools.DecodeEnvelope(output); err == nil {
		record.Status = env.Status
	}
	record.Output = output
	a.log.Debug("tool call finished", "tool", call.Name, "status", record.Status)
	return output, record
}

func (a *Agent) lookup(name string) (tools.Tool, bool) {
	if a.toolset == nil {
		return nil, false
	}
	return a.toolset.Get(name)
}

// guarded 返回上下文中 guard 对 tool 的判定，没有 guard 时放行。
func (a *Agent) guarded(ctx context.Context, tool tools.Tool) error {
	if guard := toolGuardFrom(ctx); guard != nil {
		return guard(tool)
	}
	return nil
}

func (a *Agent) definitions(ctx context.Context) []llm.ToolDefinition {
	if a.toolset == nil {
		return nil
	}
	defs := a.toolset.Definitions()
	out := make([]llm.ToolDefinition, 0, len(defs))
	for _, def := range defs {
		if tool, ok := a.toolset.Get(def.Function.Name); ok && a.guarded(ctx, tool) != nil {
			continue
		}
		out = append(out, llm.ToolDefinition{
			Name:        def.Function.Name,
			Description: def.Function.Description,
			Parameters:  def.Function.Parameters,
		})
	}
	return out
}

// buildSystemPrompt 在系统提示词后附加检索到的知识。
func (a *Agent) buildSystemPrompt(prompt string) string {
	notes := a.collectKnowledge(prompt)
	if notes == "" {
		return a.systemPrompt
	}
	return a.systemPrompt + "\n\nReference notes:\n" + notes
}

// collectKnowledge 从知识库中检索相关内容以供大模型参考。
func (a *Agent) collectKnowledge(prompt string) string {
	if a.knowledge == nil {
		return ""
	}
	var notes string
	for _, snippet := range a.knowledge.Query(prompt) {
		if strings.TrimSpace(snippet.Title) == "" && strings.TrimSpace(snippet.Content) == "" {
			continue
		}
		notes = appendObservation(notes, fmt.Sprintf("- %s: %s", snippet.Title, snippet.Content))
	}
	return notes
}

// loadHistory 把最近的对话回放为 user/assistant 消息，按时间正序。
func (a *Agent) loadHistory(ctx context.Context) []llm.Message {
	if a.history == nil || a.memoryDepth <= 0 {
		return nil
	}
	records, err := a.history.ListLatest(ctx, a.memoryDepth)
	if err != nil {
		a.log.Warn("加载历史对话失败", "error", err)
		return nil
	}

	messages := make([]llm.Message, 0, len(records)*2)
	for i := len(records) - 1; i >= 0; i-- {
		record := records[i]
		if record.Prompt == "" {
			continue
		}
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: record.Prompt},
			llm.Message{Role: llm.RoleAssistant, Content: replyWithTools(record)},
		)
	}
	return messages
}

// replyWithTools 把工具调用摘要附加在历史回复后面。
func replyWithTools(record mysql.TurnRecord) string {
	reply := record.Reply
	for _, call := range record.ToolCalls {
		reply = appendObservation(reply, fmt.Sprintf("[%s %s]", call.Tool, call.Status))
	}
	return reply
}

func (a *Agent) saveTurn(ctx context.Context, result *TurnResult) {
	if a.history == nil {
		return
	}
	record := &mysql.TurnRecord{
		SessionID: result.SessionID,
		Prompt:    result.Prompt,
		Reply:     result.Reply,
		ToolCalls: result.ToolCalls,
		Steps:     result.Steps,
		CreatedAt: result.CreatedAt,
	}
	if err := a.history.Save(ctx, record); err != nil {
		// 工具可能已经上链，保存失败不影响本轮结果。
		a.log.Error("保存对话记录失败", "error", err)
		return
	}
	result.ID = record.ID
}

// appendObservation 将新的内容追加到现有字符串中。
func appendObservation(existing, next string) string {
	next = strings.TrimSpace(next)
	if next == "" {
		return existing
	}
	if strings.TrimSpace(existing) == "" {
		return next
	}
	return existing + "\n" + next
}
