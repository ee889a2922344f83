// Package providers talks to chat-completion endpoints and adapts them to the
// engine's Planner and Verifier.
package providers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
)

// Role of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one provider-neutral transcript entry. Tool messages carry the
// ID of the call they answer.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []engine.ToolCall
	ToolCallID string
	IsError    bool
}

// Request is one completion round trip.
type Request struct {
	System      string
	Messages    []Message
	Tools       []engine.ToolSchema
	MaxTokens   int
	Temperature float32
}

// Reply is the assistant's answer.
type Reply struct {
	Content   string
	ToolCalls []engine.ToolCall
	Truncated bool // Stopped on the token limit
}

// Client completes a transcript.
type Client interface {
	Complete(ctx context.Context, req Request) (Reply, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (Reply, error)

func (f ClientFunc) Complete(ctx context.Context, req Request) (Reply, error) { return f(ctx, req) }

// classifyProviderError tags SDK errors so the task's retrier can tell
// transient failures from permanent ones. SDKs report the HTTP status only
// inside the message text.
func classifyProviderError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return engine.NewError(engine.KindTimeout, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return engine.NewError(engine.KindTransport, op, err)
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "context length"),
		strings.Contains(errStr, "maximum context"),
		strings.Contains(errStr, "too many tokens"),
		strings.Contains(errStr, "prompt is too long"):
		return engine.NewError(engine.KindContextOverflow, op, err)
	}

	switch {
	case strings.Contains(errStr, "authentication_error"), strings.Contains(errStr, "permission_error"),
		strings.Contains(errStr, "not_found_error"):
		return engine.NewError(engine.KindConfig, op, err)
	case strings.Contains(errStr, "invalid_request_error"):
		return engine.NewError(engine.KindInvalidArguments, op, err)
	case strings.Contains(errStr, "rate_limit_error"), strings.Contains(errStr, "overloaded_error"):
		return engine.NewError(engine.KindAPI, op, err)
	}

	switch extractHTTPStatus(errStr) {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return engine.NewError(engine.KindConfig, op, err)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return engine.NewError(engine.KindInvalidArguments, op, err)
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout, 529:
		return engine.NewError(engine.KindAPI, op, err)
	}
	return engine.NewError(engine.KindGeneric, op, err)
}

var statusPattern = regexp.MustCompile(`(?:status code|status|http)[:=]?\s*(\d{3})\b`)

// extractHTTPStatus finds the HTTP status in an SDK error message, or 0.
func extractHTTPStatus(errStr string) int {
	m := statusPattern.FindStringSubmatch(errStr)
	if m == nil {
		return 0
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return code
}
