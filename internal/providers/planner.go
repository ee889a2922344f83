package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
)

const plannerPrompt = `You are an autonomous engineering agent working inside a sandboxed directory.
Use the provided tools to accomplish the goal. Paths are relative to the working directory.
Independent read-only calls may be issued together in one turn; they run in parallel.
When the goal is accomplished, answer without calling any tool and summarize what you did.`

// ModelPlanner asks a chat model for the next tool calls. It keeps the
// transcript across iterations and is not safe for concurrent use.
type ModelPlanner struct {
	client Client
	tools  []engine.ToolSchema
	logger *slog.Logger

	transcript []Message
	pending    []engine.ToolCall
	answer     string
}

// NewModelPlanner returns a planner advertising tools to the model.
func NewModelPlanner(client Client, tools []engine.ToolSchema, logger *slog.Logger) *ModelPlanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelPlanner{client: client, tools: tools, logger: logger}
}

// Answer returns the model's final text once it stopped calling tools.
func (p *ModelPlanner) Answer() string { return p.answer }

// Transcript returns a copy of the conversation so far.
func (p *ModelPlanner) Transcript() []Message {
	return append([]Message(nil), p.transcript...)
}

// Plan implements engine.Planner. The transcript only grows when the model
// answers, so a retried Plan sends the same conversation again.
func (p *ModelPlanner) Plan(ctx context.Context, req engine.PlanRequest) (engine.Plan, error) {
	msgs := append([]Message(nil), p.transcript...)
	if len(msgs) == 0 {
		msgs = append(msgs, Message{Role: RoleUser, Content: req.Goal})
	}
	for i, call := range p.pending {
		msg := Message{Role: RoleTool, ToolCallID: call.ID, Content: "no result"}
		if i < len(req.Previous) {
			msg.Content, msg.IsError = renderResult(req.Previous[i])
		}
		msgs = append(msgs, msg)
	}

	reply, err := p.client.Complete(ctx, Request{
		System:   systemPrompt(req),
		Messages: msgs,
		Tools:    p.tools,
	})
	if err != nil {
		return engine.Plan{}, err
	}

	for i := range reply.ToolCalls {
		if reply.ToolCalls[i].ID == "" {
			reply.ToolCalls[i].ID = fmt.Sprintf("call_%d_%d", req.Iteration, i)
		}
	}
	msgs = append(msgs, Message{Role: RoleAssistant, Content: reply.Content, ToolCalls: reply.ToolCalls})
	p.transcript = msgs
	p.pending = reply.ToolCalls

	p.logger.DebugContext(ctx, "model planned",
		"iteration", req.Iteration,
		"calls", len(reply.ToolCalls),
		"truncated", reply.Truncated,
	)

	if len(reply.ToolCalls) == 0 {
		p.answer = reply.Content
		return engine.Plan{Done: true}, nil
	}
	return engine.Plan{Calls: reply.ToolCalls}, nil
}

func systemPrompt(req engine.PlanRequest) string {
	var b strings.Builder
	b.WriteString(plannerPrompt)
	fmt.Fprintf(&b, "\n\nIteration %d, %d remaining in the budget.", req.Iteration, req.Remaining)
	switch req.Strategy {
	case engine.StrategyExploratory:
		b.WriteString("\nThe direct approach is not working. Explore the directory and gather more context before acting.")
	case engine.StrategySystematic:
		b.WriteString("\nWork systematically: take one small verified step at a time.")
	}
	if req.Simplify {
		b.WriteString("\nPrevious attempts kept failing. Choose the simplest approach that could work.")
	}
	if req.Parallelism > 0 && req.Parallelism < 4 {
		fmt.Fprintf(&b, "\nIssue at most %d tool calls per turn.", req.Parallelism)
	}
	return b.String()
}

func renderResult(r engine.ToolResult) (string, bool) {
	if r.Success {
		return r.Output, false
	}
	var b strings.Builder
	fmt.Fprintf(&b, "error: %s", r.ErrorText())
	if r.ExitCode != nil {
		fmt.Fprintf(&b, " (exit code %d)", *r.ExitCode)
	}
	if r.Output != "" {
		b.WriteString("\n")
		b.WriteString(r.Output)
	}
	return b.String(), true
}
