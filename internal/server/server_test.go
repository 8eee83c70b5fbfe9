package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/wdatoms/internal/config"
	"github.com/xkilldash9x/wdatoms/internal/service"
)

func newTestServer(t *testing.T) (*Server, *service.Components) {
	t.Helper()
	cfg := config.NewDefaultConfig()
	components, err := service.NewComponentFactory().Create(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return New(cfg.Server(), components, zaptest.NewLogger(t)), components
}

func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func createSession(t *testing.T, base string) string {
	t.Helper()
	code, body := do(t, http.MethodPost, base+"/api/v1/sessions", "")
	require.Equal(t, http.StatusCreated, code, body)
	var created map[string]string
	require.NoError(t, json.Unmarshal([]byte(body), &created))
	require.NotEmpty(t, created["id"])
	return created["id"]
}

func TestSessionAPI(t *testing.T) {
	srv, components := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	t.Cleanup(func() { _ = components.Shutdown(context.Background()) })

	id := createSession(t, ts.URL)
	base := ts.URL + "/api/v1/sessions/" + id

	code, body := do(t, http.MethodPost, base+"/load", `{"html":"<input id='q' value='x'>","url":"https://api.test/"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"status":0`)

	code, body = do(t, http.MethodPost, base+"/execute", `{"id":"r1","command":"FIND_ELEMENT","args":[{"id":"q"}]}`)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"id":"r1","status":0,"value":{"ELEMENT":":wdc:0"}}`, body)

	code, body = do(t, http.MethodPost, base+"/execute", `{"id":"r2","command":"CLEAR","args":[{"ELEMENT":":wdc:0"}]}`)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"id":"r2","status":0,"value":null}`, body)

	code, body = do(t, http.MethodPost, base+"/execute", `{"id":"r3","command":"GET_TEXT","args":[{"ELEMENT":":wdc:9"}]}`)
	require.Equal(t, http.StatusOK, code, "command failures travel in the envelope")
	assert.Contains(t, body, `"status":7`)

	code, body = do(t, http.MethodGet, ts.URL+"/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, id)

	code, _ = do(t, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = do(t, http.MethodPost, base+"/execute", `{"command":"CLEAR","args":[]}`)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = do(t, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestLoadByURL(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<h1 id="t">remote</h1>`)
	}))
	defer page.Close()

	srv, components := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	t.Cleanup(func() { _ = components.Shutdown(context.Background()) })

	base := ts.URL + "/api/v1/sessions/" + createSession(t, ts.URL)
	code, body := do(t, http.MethodPost, base+"/load", fmt.Sprintf(`{"url":%q}`, page.URL))
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"status":0`)

	_, body = do(t, http.MethodPost, base+"/execute", `{"command":"GET_CURRENT_URL","args":[]}`)
	assert.Contains(t, body, page.URL)
}

func TestBadRequests(t *testing.T) {
	srv, components := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	t.Cleanup(func() { _ = components.Shutdown(context.Background()) })
	base := ts.URL + "/api/v1/sessions/" + createSession(t, ts.URL)

	tests := []struct {
		name string
		path string
		body string
		want string
	}{
		{"malformed execute", "/execute", `{`, "malformed request"},
		{"missing command", "/execute", `{"args":[]}`, "missing command"},
		{"malformed load", "/load", `nope`, "Invalid request body"},
		{"empty load", "/load", `{}`, "url or html is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, http.MethodPost, base+tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Contains(t, body, tt.want)
		})
	}
}

func TestOperationalEndpoints(t *testing.T) {
	srv, components := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	t.Cleanup(func() { _ = components.Shutdown(context.Background()) })

	code, body := do(t, http.MethodGet, ts.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body)

	code, body = do(t, http.MethodGet, ts.URL+"/api/v1/commands", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"EXECUTE_SCRIPT"`)
	assert.Contains(t, body, `"SWITCH_TO_FRAME"`)

	id := createSession(t, ts.URL)
	do(t, http.MethodPost, ts.URL+"/api/v1/sessions/"+id+"/execute", `{"command":"ACTIVE_ELEMENT","args":[]}`)

	code, body = do(t, http.MethodGet, ts.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "wdatoms_commands_total")
	assert.Contains(t, body, "go_goroutines")
}

func TestMetricsDisabled(t *testing.T) {
	cfg := config.NewDefaultConfig()
	components, err := service.NewComponentFactory().Create(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = components.Shutdown(context.Background()) })
	sc := cfg.Server()
	sc.MetricsEnabled = false

	ts := httptest.NewServer(New(sc, components, zaptest.NewLogger(t)).Handler())
	defer ts.Close()
	code, _ := do(t, http.MethodGet, ts.URL+"/metrics", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	srv, components := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	base := "http://" + ln.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	s, err := components.Sessions.Create()
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.True(t, s.Top().Closed())

	_, err = http.Post(base+"/healthz", "text/plain", bytes.NewReader(nil))
	assert.Error(t, err)
}
