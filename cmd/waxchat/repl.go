package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"WaxAgentKit/internal/agent"
	"WaxAgentKit/internal/tools"
)

type mode string

const (
	modeChat mode = "chat"
	modeAuto mode = "auto"
)

const separator = "-------------------"

// runner 是对话循环依赖的最小接口，*agent.Agent 满足该接口。
type runner interface {
	Run(ctx context.Context, prompt string) (*agent.TurnResult, error)
}

// chooseMode 反复询问直到得到合法的模式。输入结束时返回 io.EOF。
func chooseMode(in io.Reader, out io.Writer) (mode, error) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintln(out, "\nAvailable modes:")
		fmt.Fprintln(out, "1. chat    - Interactive chat mode")
		fmt.Fprintln(out, "2. auto    - Autonomous action mode")
		fmt.Fprint(out, "\nChoose a mode (enter number or name): ")

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "1", "chat":
			return modeChat, nil
		case "2", "auto":
			return modeAuto, nil
		}
	}
}

// chatLoop 逐行读取提示词，直到输入 exit 或输入结束。
func chatLoop(ctx context.Context, r runner, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Starting chat mode... Type 'exit' to end.")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\nPrompt: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		prompt := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(prompt, "exit") {
			return nil
		}
		if prompt == "" {
			continue
		}

		turn, err := r.Run(ctx, prompt)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		printTurn(out, turn)
	}
}

func printTurn(out io.Writer, turn *agent.TurnResult) {
	if turn == nil {
		return
	}
	for _, call := range turn.ToolCalls {
		fmt.Fprintf(out, "[%s] %s\n", call.Tool, call.Output)
		fmt.Fprintln(out, separator)
	}
	fmt.Fprintln(out, turn.Reply)
	if turn.Truncated {
		fmt.Fprintf(out, "(stopped after %d steps)\n", turn.Steps)
	}
	fmt.Fprintln(out, separator)
}

func renderTools(out io.Writer, defs []tools.ToolDefinition) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Tool", "Description"})
	table.SetAutoWrapText(false)
	for _, def := range defs {
		description := def.Function.Description
		if i := strings.IndexByte(description, '\n'); i >= 0 {
			description = description[:i]
		}
		table.Append([]string{def.Function.Name, description})
	}
	table.Render()
}
