package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"WaxAgentKit/internal/agent"
	"WaxAgentKit/internal/storage/mysql"
	"WaxAgentKit/internal/tools"
)

type scriptedRunner struct {
	prompts []string
	err     error
}

func (r *scriptedRunner) Run(_ context.Context, prompt string) (*agent.TurnResult, error) {
	r.prompts = append(r.prompts, prompt)
	if r.err != nil {
		return nil, r.err
	}
	return &agent.TurnResult{
		Prompt: prompt,
		Reply:  "reply to " + prompt,
		ToolCalls: []mysql.ToolCallRecord{{
			Tool:   "wax_get_balance",
			Status: "success",
			Output: `{"status":"success"}`,
		}},
		Steps: 2,
	}, nil
}

func TestChooseMode(t *testing.T) {
	var out bytes.Buffer
	got, err := chooseMode(strings.NewReader("bogus\n2\n"), &out)
	if err != nil {
		t.Fatalf("choose mode: %v", err)
	}
	if got != modeAuto {
		t.Fatalf("expected auto mode, got %q", got)
	}
	if strings.Count(out.String(), "Available modes:") != 2 {
		t.Fatalf("expected menu to be shown twice, got %q", out.String())
	}

	got, err = chooseMode(strings.NewReader(" CHAT \n"), io.Discard)
	if err != nil || got != modeChat {
		t.Fatalf("expected chat mode, got %q %v", got, err)
	}

	if _, err := chooseMode(strings.NewReader(""), io.Discard); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestChatLoopStopsOnExit(t *testing.T) {
	r := &scriptedRunner{}
	var out bytes.Buffer
	err := chatLoop(context.Background(), r, strings.NewReader("hello\n\nEXIT\nignored\n"), &out)
	if err != nil {
		t.Fatalf("chat loop: %v", err)
	}
	if len(r.prompts) != 1 || r.prompts[0] != "hello" {
		t.Fatalf("unexpected prompts: %v", r.prompts)
	}
	text := out.String()
	if !strings.Contains(text, "reply to hello") || !strings.Contains(text, "[wax_get_balance]") {
		t.Fatalf("unexpected output: %q", text)
	}
}

func TestChatLoopReturnsRunError(t *testing.T) {
	r := &scriptedRunner{err: errors.New("llm down")}
	err := chatLoop(context.Background(), r, strings.NewReader("hi\n"), io.Discard)
	if err == nil || err.Error() != "llm down" {
		t.Fatalf("expected run error, got %v", err)
	}

	r = &scriptedRunner{err: context.Canceled}
	if err := chatLoop(context.Background(), r, strings.NewReader("hi\n"), io.Discard); err != nil {
		t.Fatalf("cancellation should end the loop quietly: %v", err)
	}
}

func TestPrintTurnMarksTruncation(t *testing.T) {
	var out bytes.Buffer
	printTurn(&out, &agent.TurnResult{Reply: "partial", Steps: 8, Truncated: true})
	if !strings.Contains(out.String(), "(stopped after 8 steps)") {
		t.Fatalf("expected truncation note, got %q", out.String())
	}
}

func TestRenderTools(t *testing.T) {
	var out bytes.Buffer
	defs := []tools.ToolDefinition{{
		Type: "function",
		Function: tools.FunctionSchema{
			Name:        "wax_transfer",
			Description: "Transfer tokens\nsecond line",
		},
	}}
	renderTools(&out, defs)
	text := out.String()
	if !strings.Contains(text, "wax_transfer") || !strings.Contains(text, "Transfer tokens") {
		t.Fatalf("unexpected table: %q", text)
	}
	if strings.Contains(text, "second line") {
		t.Fatalf("expected only the first description line: %q", text)
	}
}
