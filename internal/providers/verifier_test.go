package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
)

func TestParseVerification(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   engine.Verification
		wantOK bool
	}{
		{
			name:   "plain object",
			text:   `{"progress": 0.5, "validation": 0.8, "done": false}`,
			want:   engine.Verification{Progress: 0.5, Validation: 0.8},
			wantOK: true,
		},
		{
			name:   "wrapped in prose and fences",
			text:   "Here you go:\n```json\n{\"progress\": 1, \"validation\": 0.95, \"done\": true}\n```",
			want:   engine.Verification{Progress: 1, Validation: 0.95, Done: true},
			wantOK: true,
		},
		{
			name:   "clamped",
			text:   `{"progress": 1.7, "validation": -2}`,
			want:   engine.Verification{Progress: 1, Validation: 0},
			wantOK: true,
		},
		{name: "no progress", text: `{"validation": 0.9}`},
		{name: "no json", text: "looks good to me"},
		{name: "broken json", text: `{"progress": }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseVerification(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestModelVerifier(t *testing.T) {
	results := []engine.ToolResult{
		{Tool: "read_file", Success: true, Output: "package main"},
		engine.FailedResult("run_command", "command exited with status 1", 0),
	}

	t.Run("model answer", func(t *testing.T) {
		client := &MockClient{CompleteFunc: func(ctx context.Context, req Request) (Reply, error) {
			return Reply{Content: `{"progress": 0.4, "validation": 0.7}`}, nil
		}}
		v := NewModelVerifier(client, nil)

		got, err := v.Verify(context.Background(), "build it", results)
		require.NoError(t, err)
		assert.Equal(t, engine.Verification{Progress: 0.4, Validation: 0.7}, got)

		prompt := client.Requests[0].Messages[0].Content
		assert.Contains(t, prompt, "Goal: build it")
		assert.Contains(t, prompt, "run_command [failed: command exited with status 1]")
	})

	t.Run("transient error falls back to result share", func(t *testing.T) {
		answers := []Reply{{Content: `{"progress": 0.6, "validation": 1}`}}
		client := &MockClient{CompleteFunc: func(ctx context.Context, req Request) (Reply, error) {
			if len(answers) == 0 {
				return Reply{}, engine.Errorf(engine.KindAPI, "test", "status 503")
			}
			r := answers[0]
			answers = answers[1:]
			return r, nil
		}}
		v := NewModelVerifier(client, nil)

		_, err := v.Verify(context.Background(), "g", results)
		require.NoError(t, err)

		got, err := v.Verify(context.Background(), "g", results)
		require.NoError(t, err)
		assert.Equal(t, 0.6, got.Progress, "progress carries over")
		assert.Equal(t, 0.5, got.Validation)
		assert.False(t, got.Done)
	})

	t.Run("unparseable reply falls back", func(t *testing.T) {
		client := &MockClient{CompleteFunc: func(ctx context.Context, req Request) (Reply, error) {
			return Reply{Content: "I think it went fine"}, nil
		}}
		got, err := NewModelVerifier(client, nil).Verify(context.Background(), "g", results[:1])
		require.NoError(t, err)
		assert.Equal(t, engine.Verification{Progress: 0, Validation: 1}, got)
	})

	t.Run("structural error is returned", func(t *testing.T) {
		client := &MockClient{CompleteFunc: func(ctx context.Context, req Request) (Reply, error) {
			return Reply{}, engine.Errorf(engine.KindConfig, "test", "status 401")
		}}
		_, err := NewModelVerifier(client, nil).Verify(context.Background(), "g", results)
		assert.Error(t, err)
	})
}
