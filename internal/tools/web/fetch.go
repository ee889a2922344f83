// Package web implements http_fetch, a read-only HTTP GET/HEAD tool.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
	"github.com/ChamsBouzaiene/hearth/internal/tools/args"
)

const (
	userAgent        = "hearth/1.0"
	defaultMaxBody   = 1 << 20
	maxFetchTimeout  = 2 * time.Minute
	defaultFetchWait = 30 * time.Second
)

// HTTPFetchSchema describes http_fetch to the planner.
var HTTPFetchSchema = engine.ToolSchema{
	Name:        "http_fetch",
	Description: "Fetches a URL over HTTP or HTTPS with GET or HEAD. HTML responses are converted to plain text.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string", "minLength": 1, "description": "Absolute http:// or https:// URL"},
			"method": {"type": "string", "enum": ["GET", "HEAD"], "description": "Default: GET"},
			"timeout_seconds": {"type": "integer", "minimum": 1, "maximum": 120, "description": "Default: the task timeout"}
		},
		"required": ["url"]
	}`),
	ReadOnly: true,
}

// FetchArgs are the decoded arguments of http_fetch.
type FetchArgs struct {
	URL            string
	Method         string
	TimeoutSeconds int
}

// ParseFetchArgs extracts http_fetch arguments with defaults.
func ParseFetchArgs(m map[string]any) FetchArgs {
	return FetchArgs{
		URL:            args.String(m, "url", ""),
		Method:         strings.ToUpper(args.String(m, "method", http.MethodGet)),
		TimeoutSeconds: args.Int(m, "timeout_seconds", 0),
	}
}

// Fetcher performs http_fetch requests. The zero value uses
// http.DefaultClient and a 1 MiB body limit.
type Fetcher struct {
	Client  *http.Client
	MaxBody int64 // Bytes read from the response body
	Timeout time.Duration
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

func (f *Fetcher) timeout(seconds int) time.Duration {
	timeout := f.Timeout
	if seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}
	if timeout <= 0 {
		timeout = defaultFetchWait
	}
	if timeout > maxFetchTimeout {
		timeout = maxFetchTimeout
	}
	return timeout
}

// Fetch runs one request. HTTP 4xx answers are InvalidArguments errors and
// 5xx answers are API errors, so only the latter are retried.
func (f *Fetcher) Fetch(ctx context.Context, a FetchArgs) (string, error) {
	const op = "http_fetch"

	method := a.Method
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet && method != http.MethodHead {
		return "", engine.Errorf(engine.KindInvalidArguments, op, "method %q not allowed", a.Method)
	}
	u, err := url.Parse(a.URL)
	if err != nil {
		return "", engine.NewError(engine.KindInvalidArguments, op, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", engine.Errorf(engine.KindInvalidArguments, op, "unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", engine.Errorf(engine.KindInvalidArguments, op, "url %q has no host", a.URL)
	}

	timeout := f.timeout(a.TimeoutSeconds)
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, method, u.String(), nil)
	if err != nil {
		return "", engine.NewError(engine.KindInvalidArguments, op, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client().Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", engine.Errorf(engine.KindTimeout, op, "request timed out after %s", timeout)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", engine.NewError(engine.KindTransport, op, err)
	}
	defer resp.Body.Close()

	maxBody := f.MaxBody
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", engine.Errorf(engine.KindTimeout, op, "reading body timed out after %s", timeout)
		}
		return "", engine.NewError(engine.KindTransport, op, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return "", engine.Errorf(engine.KindAPI, op, "%s returned %s", u.Redacted(), resp.Status)
	case resp.StatusCode >= 400:
		return "", engine.Errorf(engine.KindInvalidArguments, op, "%s returned %s", u.Redacted(), resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP %s", resp.Status)
	if contentType != "" {
		fmt.Fprintf(&b, " (%s)", contentType)
	}
	b.WriteString("\n")
	if method == http.MethodHead || len(body) == 0 {
		return b.String(), nil
	}
	b.WriteString("\n")

	text := string(body)
	if isHTML(contentType) {
		if t, err := HTMLToText(strings.NewReader(text)); err == nil {
			text = t
		}
	}
	b.WriteString(text)
	return b.String(), nil
}

func isHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}
