// Package api serves the toolkit over HTTP: synchronous tool calls, queued
// tool jobs, the chat agent and its history, plus health and Prometheus
// endpoints. Every tool call answers with the tool's JSON envelope.
package api
