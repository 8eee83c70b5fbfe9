// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<html><body>
<form action="/search"><input id="q" name="q" value="golang"></form>
<p class="note">first</p><p class="note">second</p>
</body></html>`

// executeCommand runs a fresh command tree from an empty working directory
// so no stray config.yaml is picked up.
func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return executeCommandContext(t, context.Background(), stdin, args...)
}

func executeCommandContext(t *testing.T, ctx context.Context, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func writePage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte(page), 0o600))
	return path
}

func TestVersionFlag(t *testing.T) {
	out, err := executeCommand(t, "", "--version")
	require.NoError(t, err)
	assert.Equal(t, "wdatoms version "+Version+"\n", out)
}

func TestExec(t *testing.T) {
	file := writePage(t)

	t.Run("finds an element", func(t *testing.T) {
		out, err := executeCommand(t, "", "exec", "--file", file, "FIND_ELEMENT", `[{"id":"q"}]`)
		require.NoError(t, err)
		assert.Equal(t, `{"status":0,"value":{"ELEMENT":":wdc:0"}}`+"\n", out)
	})

	t.Run("failures are envelopes", func(t *testing.T) {
		out, err := executeCommand(t, "", "exec", "--file", file, "GET_TEXT", `[{"ELEMENT":":wdc:3"}]`)
		require.NoError(t, err)
		assert.Contains(t, out, `"status":7`)
	})

	t.Run("arguments default to none", func(t *testing.T) {
		out, err := executeCommand(t, "", "exec", "--file", file, "--base-url", "https://cli.test/", "GET_CURRENT_URL")
		require.NoError(t, err)
		assert.Equal(t, `{"status":0,"value":"https://cli.test/"}`+"\n", out)
	})

	t.Run("structured output", func(t *testing.T) {
		out, err := executeCommand(t, "", "exec", "--format", "structured", "--file", file, "FIND_ELEMENTS", `[{"class name":"note"}]`)
		require.NoError(t, err)
		assert.Contains(t, out, "\"status\": 0")
		assert.Contains(t, out, "\n  \"value\": [")
	})

	t.Run("bad arguments", func(t *testing.T) {
		_, err := executeCommand(t, "", "exec", "--file", file, "CLEAR", `{"not":"an array"}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "arguments must be a JSON array")
	})

	t.Run("missing command", func(t *testing.T) {
		_, err := executeCommand(t, "", "exec")
		assert.Error(t, err)
	})

	t.Run("url and file together", func(t *testing.T) {
		_, err := executeCommand(t, "", "exec", "--file", file, "--url", "http://x.test/", "CLEAR")
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := executeCommand(t, "", "exec", "--file", filepath.Join(t.TempDir(), "nope.html"), "CLEAR")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open document")
	})
}

func TestExecByURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	out, err := executeCommand(t, "", "exec", "--url", srv.URL, "GET_TEXT", `[]`)
	require.NoError(t, err)
	assert.Contains(t, out, `"status":13`, "GET_TEXT needs an element")

	out, err = executeCommand(t, "", "exec", "--url", srv.URL, "GET_CURRENT_URL")
	require.NoError(t, err)
	assert.Contains(t, out, srv.URL)
}

func TestRun(t *testing.T) {
	file := writePage(t)
	stdin := strings.Join([]string{
		`{"id":"1","command":"FIND_ELEMENT","args":[{"id":"q"}]}`,
		``,
		`{"id":"2","command":"CLEAR","args":[{"ELEMENT":":wdc:0"}]}`,
		`not json`,
		`{"id":"3","command":"GET_ATTRIBUTE_VALUE","args":[{"ELEMENT":":wdc:0"},"value"]}`,
		`{"id":"4","command":"LOAD","args":["<p id='n'>new</p>","https://cli.test/next"]}`,
		`{"id":"5","command":"GET_TEXT","args":[{"ELEMENT":":wdc:0"}]}`,
	}, "\n")

	out, err := executeCommand(t, stdin, "run", "--file", file)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, `{"id":"1","status":0,"value":{"ELEMENT":":wdc:0"}}`, lines[0])
	assert.Equal(t, `{"id":"2","status":0,"value":null}`, lines[1])
	assert.Contains(t, lines[2], `"status":13`)
	assert.Contains(t, lines[2], "malformed request")
	assert.Equal(t, `{"id":"3","status":0,"value":""}`, lines[3])
	assert.Equal(t, `{"id":"4","status":0,"value":null}`, lines[4])
	assert.Contains(t, lines[5], `"status":10`, "handles from the previous document are stale")
}

func TestCommandsList(t *testing.T) {
	out, err := executeCommand(t, "", "commands")
	require.NoError(t, err)
	names := strings.Fields(out)
	assert.Contains(t, names, "CLEAR")
	assert.Contains(t, names, "EXECUTE_SQL")
	assert.Contains(t, names, "NAVIGATE")
}

func TestConfiguration(t *testing.T) {
	t.Run("invalid flag value", func(t *testing.T) {
		_, err := executeCommand(t, "", "--storage", "tape", "commands")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})

	t.Run("config file", func(t *testing.T) {
		cfgPath := filepath.Join(t.TempDir(), "wdatoms.yaml")
		require.NoError(t, os.WriteFile(cfgPath, []byte("envelope:\n  format: structured\n"), 0o600))

		out, err := executeCommand(t, "", "--config", cfgPath, "exec", "GET_CURRENT_URL")
		require.NoError(t, err)
		assert.Equal(t, "{\n  \"status\": 0,\n  \"value\": \"about:blank\"\n}\n", out)
	})

	t.Run("unreadable config file", func(t *testing.T) {
		_, err := executeCommand(t, "", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "commands")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error reading config file")
	})

	t.Run("redis backend from the environment", func(t *testing.T) {
		mr := miniredis.RunT(t)
		t.Setenv("WDATOMS_STORAGE_REDIS_ADDR", mr.Addr())

		out, err := executeCommand(t, "", "--storage", "redis", "exec", "--file", writePage(t), "--base-url", "https://redis.test/", "SET_LOCAL_STORAGE_ITEM", `["k","v"]`)
		require.NoError(t, err)
		assert.Equal(t, `{"status":0,"value":null}`+"\n", out)
		assert.NotEmpty(t, mr.Keys())
	})

	t.Run("unreachable redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		t.Setenv("WDATOMS_STORAGE_REDIS_ADDR", addr)

		_, err := executeCommand(t, "", "--storage", "redis", "commands")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to initialize storage")
	})
}

func TestServeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := executeCommandContext(t, ctx, "", "serve", "--addr", "127.0.0.1:0")
	assert.NoError(t, err)
}

func TestGetConfigWithoutRoot(t *testing.T) {
	_, err := getConfig(context.Background())
	assert.ErrorContains(t, err, "configuration not initialized")
}
