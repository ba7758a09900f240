// Package llm defines the provider-neutral chat-completion contract used by
// the agent: messages, tool definitions and tool calls. Provider adapters
// live in sub-packages.
package llm
