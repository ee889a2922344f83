package web

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
)

const page = `<!DOCTYPE html>
<html>
<head><title>Release notes</title><style>body { color: red }</style></head>
<body>
  <h1>Version   2.0</h1>
  <p>Faster <b>builds</b> and
     fewer bugs.</p>
  <script>alert("hi")</script>
  <ul><li>one</li><li>two</li></ul>
</body>
</html>`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "just <b>text</b>")
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, strings.Repeat("x", 100))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch(t *testing.T) {
	srv := newServer(t)
	f := &Fetcher{Client: srv.Client()}

	out, err := f.Fetch(context.Background(), ParseFetchArgs(map[string]any{"url": srv.URL + "/page"}))
	require.NoError(t, err)
	assert.Equal(t, "HTTP 200 OK (text/html; charset=utf-8)\n\nRelease notes\nVersion 2.0\nFaster builds and fewer bugs.\none\ntwo", out)

	out, err = f.Fetch(context.Background(), ParseFetchArgs(map[string]any{"url": srv.URL + "/plain"}))
	require.NoError(t, err)
	assert.Equal(t, "HTTP 200 OK (text/plain)\n\njust <b>text</b>", out)

	out, err = f.Fetch(context.Background(), ParseFetchArgs(map[string]any{"url": srv.URL + "/page", "method": "head"}))
	require.NoError(t, err)
	assert.Equal(t, "HTTP 200 OK (text/html; charset=utf-8)\n", out)
}

func TestFetchBodyLimit(t *testing.T) {
	srv := newServer(t)
	f := &Fetcher{Client: srv.Client(), MaxBody: 10}

	out, err := f.Fetch(context.Background(), FetchArgs{URL: srv.URL + "/big"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "\n\n"+strings.Repeat("x", 10)))
}

func TestFetchErrors(t *testing.T) {
	srv := newServer(t)
	f := &Fetcher{Client: srv.Client()}

	tests := []struct {
		name      string
		args      FetchArgs
		wantKind  engine.ErrorKind
		retryable bool
	}{
		{"Client error", FetchArgs{URL: srv.URL + "/missing"}, engine.KindInvalidArguments, false},
		{"Server error", FetchArgs{URL: srv.URL + "/broken"}, engine.KindAPI, true},
		{"Bad method", FetchArgs{URL: srv.URL + "/page", Method: "POST"}, engine.KindInvalidArguments, false},
		{"Bad scheme", FetchArgs{URL: "file:///etc/passwd"}, engine.KindInvalidArguments, false},
		{"No host", FetchArgs{URL: "http://"}, engine.KindInvalidArguments, false},
		{"Timeout", FetchArgs{URL: srv.URL + "/slow", TimeoutSeconds: 1}, engine.KindTimeout, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), tt.args)
			var kerr *engine.Error
			require.ErrorAs(t, err, &kerr)
			assert.Equal(t, tt.wantKind, kerr.Kind)
			wantClass := engine.RetryClassNonRetryable
			if tt.retryable {
				wantClass = engine.RetryClassRetryable
			}
			assert.Equal(t, wantClass, engine.ClassifyError(err))
		})
	}
}

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"Inline elements join with spaces", "<p>a <i>b</i> c</p>", "a b c"},
		{"Blocks end lines", "<div>one</div><div>two</div>", "one\ntwo"},
		{"Scripts are dropped", "<p>x</p><script>var y = 1</script>", "x"},
		{"Empty document", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HTMLToText(strings.NewReader(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
