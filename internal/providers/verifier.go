package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
)

const verifierPrompt = `You grade an agent's progress toward a goal.
Reply with only a JSON object: {"progress": <0..1>, "validation": <0..1>, "done": <true|false>}.
progress is the fraction of the goal accomplished so far. validation is your confidence that the work so far is correct.`

const maxResultChars = 2000

// ModelVerifier asks a chat model to score each iteration. When the model
// is unreachable or answers nonsense it keeps the previous progress and
// scores validation by the share of successful calls.
type ModelVerifier struct {
	client Client
	logger *slog.Logger
	last   engine.Verification
}

// NewModelVerifier returns a verifier backed by client.
func NewModelVerifier(client Client, logger *slog.Logger) *ModelVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelVerifier{client: client, logger: logger}
}

// Verify implements engine.Verifier. Only structural errors, such as bad
// credentials, are returned.
func (v *ModelVerifier) Verify(ctx context.Context, goal string, results []engine.ToolResult) (engine.Verification, error) {
	reply, err := v.client.Complete(ctx, Request{
		System:    verifierPrompt,
		Messages:  []Message{{Role: RoleUser, Content: v.describe(goal, results)}},
		MaxTokens: 200,
	})
	if err != nil {
		if engine.ClassifyError(err) == engine.RetryClassNonRetryable {
			return engine.Verification{}, err
		}
		v.logger.WarnContext(ctx, "verifier unavailable, scoring by results", "error", err)
		return v.fallback(results), nil
	}

	ver, ok := ParseVerification(reply.Content)
	if !ok {
		v.logger.WarnContext(ctx, "verifier reply not understood, scoring by results", "reply", reply.Content)
		return v.fallback(results), nil
	}
	v.last = ver
	return ver, nil
}

func (v *ModelVerifier) describe(goal string, results []engine.ToolResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\nPrevious progress: %.2f\n\nLatest tool results:\n", goal, v.last.Progress)
	if len(results) == 0 {
		b.WriteString("(none)\n")
	}
	for _, r := range results {
		status := "ok"
		if !r.Success {
			status = "failed: " + r.ErrorText()
		}
		out := r.Output
		if len(out) > maxResultChars {
			out = out[:maxResultChars] + "..."
		}
		fmt.Fprintf(&b, "- %s [%s]\n%s\n", r.Tool, status, out)
	}
	return b.String()
}

func (v *ModelVerifier) fallback(results []engine.ToolResult) engine.Verification {
	ver := engine.Verification{Progress: v.last.Progress, Validation: v.last.Validation}
	if len(results) > 0 {
		ok := 0
		for _, r := range results {
			if r.Success {
				ok++
			}
		}
		ver.Validation = float64(ok) / float64(len(results))
	}
	return ver
}

// ParseVerification reads the first JSON object in text. Scores are clamped
// to [0,1]; a reply without a progress score is rejected.
func ParseVerification(text string) (engine.Verification, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return engine.Verification{}, false
	}
	var raw struct {
		Progress   *float64 `json:"progress"`
		Validation *float64 `json:"validation"`
		Done       bool     `json:"done"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil || raw.Progress == nil {
		return engine.Verification{}, false
	}
	ver := engine.Verification{Progress: clamp(*raw.Progress), Done: raw.Done}
	if raw.Validation != nil {
		ver.Validation = clamp(*raw.Validation)
	}
	return ver, true
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
