package tools

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
	"github.com/ChamsBouzaiene/hearth/internal/sandbox"
	"github.com/ChamsBouzaiene/hearth/internal/tools/execution"
	"github.com/ChamsBouzaiene/hearth/internal/tools/filesystem"
	"github.com/ChamsBouzaiene/hearth/internal/tools/system"
	"github.com/ChamsBouzaiene/hearth/internal/tools/web"
)

// MaxConcurrency is the number of tool calls allowed in flight at once.
const MaxConcurrency = 4

// Runtime dispatches tool calls. Every call holds one of MaxConcurrency
// permits for its full duration, retries included. A Runtime is safe for
// concurrent use; the registry, jail and context are never mutated.
type Runtime struct {
	registry *Registry
	toolCtx  engine.ToolContext
	jail     *sandbox.Jail
	fs       filesystem.FileSystem
	runner   sandbox.Runner
	fetcher  *web.Fetcher
	sem      *semaphore.Weighted
	retry    engine.RetryPolicy
	ignore   []string
	logger   *slog.Logger
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithFileSystem replaces the OS filesystem.
func WithFileSystem(fs filesystem.FileSystem) Option {
	return func(r *Runtime) { r.fs = fs }
}

// WithRunner sets the process runner used by run_command.
func WithRunner(runner sandbox.Runner) Option {
	return func(r *Runtime) { r.runner = runner }
}

// WithHTTPClient sets the client used by http_fetch.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Runtime) { r.fetcher.Client = client }
}

// WithFetchTimeout overrides the http_fetch default timeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		if d > 0 {
			r.fetcher.Timeout = d
		}
	}
}

// WithRetryPolicy sets the policy applied to read-only tools. Mutating tools
// are never retried.
func WithRetryPolicy(p engine.RetryPolicy) Option {
	return func(r *Runtime) { r.retry = p }
}

// WithIgnorePatterns sets the list_directory patterns used when a call
// passes none.
func WithIgnorePatterns(patterns []string) Option {
	return func(r *Runtime) { r.ignore = append([]string(nil), patterns...) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) { r.logger = l }
}

// NewRuntime builds a runtime confined to toolCtx.WorkingDir. Without
// WithRunner, commands run on the host.
func NewRuntime(registry *Registry, toolCtx engine.ToolContext, opts ...Option) (*Runtime, error) {
	if registry == nil {
		return nil, fmt.Errorf("new runtime: nil registry")
	}
	jail, err := sandbox.NewJail(toolCtx.WorkingDir)
	if err != nil {
		return nil, fmt.Errorf("new runtime: %w", err)
	}
	toolCtx.WorkingDir = jail.Root()

	r := &Runtime{
		registry: registry,
		toolCtx:  toolCtx,
		jail:     jail,
		fs:       filesystem.NewOSFileSystem(),
		fetcher:  &web.Fetcher{Timeout: toolCtx.Timeout},
		sem:      semaphore.NewWeighted(MaxConcurrency),
		retry:    engine.DefaultRetryPolicy(),
		logger:   slog.Default(),
	}
	if toolCtx.MaxOutputSize > 0 {
		r.fetcher.MaxBody = int64(toolCtx.MaxOutputSize) + 1
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runner == nil {
		r.runner = sandbox.NewHostRunner(sandbox.Config{Mode: sandbox.ModeHost, CmdTimeout: toolCtx.Timeout})
	}
	return r, nil
}

// Registry returns the registry the runtime dispatches against.
func (r *Runtime) Registry() *Registry { return r.registry }

// Context returns the tool context in force.
func (r *Runtime) Context() engine.ToolContext { return r.toolCtx }

// Validate checks call arguments against the registered schema.
func (r *Runtime) Validate(call engine.ToolCall) error {
	return r.registry.Validate(call.Name, call.Args)
}

// output is what one attempt of a tool produced.
type output struct {
	text     string
	exitCode *int
	failure  string // Non-empty for results that ran but failed, e.g. a non-zero exit
}

// Execute runs one tool call. Unknown tools and tool failures come back as
// failed results; the error is non-nil only when ctx ends before a permit
// is acquired.
func (r *Runtime) Execute(ctx context.Context, name string, args map[string]any) (engine.ToolResult, error) {
	start := time.Now()
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return engine.FailedResult(name, fmt.Sprintf("cancelled before start: %v", err), time.Since(start)), err
	}
	defer r.sem.Release(1)

	tool, ok := r.registry.Get(name)
	if !ok {
		r.logger.WarnContext(ctx, "unknown tool", "tool", name)
		return engine.FailedResult(name, fmt.Sprintf("unknown tool: %s", name), time.Since(start)), nil
	}

	retrier := engine.NewRetrier(engine.NoRetry())
	if tool.ReadOnly() {
		retrier.Policy = r.retry
	}
	retrier.Classify = classifierFor(tool.Kind)
	retrier.OnRetry = func(attempt int, delay time.Duration, err error) {
		r.logger.DebugContext(ctx, "retrying tool", "tool", name, "attempt", attempt, "delay", delay, "error", err)
	}

	out, err := engine.RetryWithPolicy(ctx, retrier, func(ctx context.Context) (output, error) {
		return r.dispatch(ctx, tool, args)
	})

	res := engine.ToolResult{
		Tool:     name,
		Output:   capOutput(out.text, r.toolCtx.MaxOutputSize),
		Success:  err == nil && out.failure == "",
		Duration: time.Since(start),
		ExitCode: out.exitCode,
	}
	switch {
	case err != nil:
		msg := err.Error()
		res.Error = &msg
	case out.failure != "":
		msg := out.failure
		res.Error = &msg
	}

	r.logger.DebugContext(ctx, "tool finished",
		"tool", name,
		"success", res.Success,
		"duration", res.Duration,
		"output_bytes", len(res.Output),
	)
	return res, nil
}

// classifierFor decides which tool errors are worth another attempt. Only
// network fetches fail transiently; filesystem and process errors repeat.
func classifierFor(kind ToolKind) func(error) engine.RetryClass {
	if kind == KindHTTPFetch {
		return engine.ClassifyError
	}
	return func(error) engine.RetryClass { return engine.RetryClassNonRetryable }
}

func (r *Runtime) dispatch(ctx context.Context, tool Tool, args map[string]any) (output, error) {
	switch tool.Kind {
	case KindReadFile:
		text, err := filesystem.ReadFile(r.fs, r.jail, filesystem.ParseReadFileArgs(args))
		return output{text: text}, err

	case KindListDirectory:
		a := filesystem.ParseListDirectoryArgs(args)
		if _, set := args["ignore_patterns"]; !set && len(r.ignore) > 0 {
			a.IgnorePatterns = r.ignore
		}
		text, err := filesystem.ListDirectory(r.fs, r.jail, a)
		return output{text: text}, err

	case KindWriteFile:
		text, err := filesystem.WriteFile(r.fs, r.jail, filesystem.ParseWriteFileArgs(args))
		return output{text: text}, err

	case KindRunCommand:
		a := execution.ParseRunCommandArgs(args)
		res, err := execution.RunCommand(ctx, r.runner, r.jail, a, r.toolCtx.Timeout)
		if err != nil {
			return output{}, err
		}
		text := res.Output()
		if r.toolCtx.Verbose {
			text = fmt.Sprintf("$ %s\n%s", a.Command, text)
		}
		code := res.ExitCode
		return output{text: text, exitCode: &code, failure: res.Failure()}, nil

	case KindSystemInfo:
		text, err := system.SystemInfo(r.jail)
		return output{text: text}, err

	case KindHTTPFetch:
		text, err := r.fetcher.Fetch(ctx, web.ParseFetchArgs(args))
		return output{text: text}, err
	}
	return output{}, fmt.Errorf("%w: no implementation for %s", engine.ErrInvariant, tool.Kind)
}

// ExecuteBatch runs calls and returns results in call order. Each maximal run
// of consecutive read-only calls executes concurrently; a mutating or
// unknown call runs alone, after everything before it has finished.
func (r *Runtime) ExecuteBatch(ctx context.Context, calls []engine.ToolCall) ([]engine.ToolResult, error) {
	results := make([]engine.ToolResult, len(calls))
	for i := 0; i < len(calls); {
		if !r.readOnly(calls[i].Name) {
			res, err := r.Execute(ctx, calls[i].Name, calls[i].Args)
			if err != nil {
				return nil, err
			}
			results[i] = res
			i++
			continue
		}

		j := i
		for j < len(calls) && r.readOnly(calls[j].Name) {
			j++
		}
		g, gctx := errgroup.WithContext(ctx)
		for k := i; k < j; k++ {
			g.Go(func() error {
				res, err := r.Execute(gctx, calls[k].Name, calls[k].Args)
				results[k] = res
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		i = j
	}
	return results, nil
}

func (r *Runtime) readOnly(name string) bool {
	t, ok := r.registry.Get(name)
	return ok && t.ReadOnly()
}

// capOutput keeps at most max bytes, cut on a rune boundary, and appends a
// truncation marker.
func capOutput(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("\n[output truncated: %d of %d bytes shown]", cut, len(s))
}
