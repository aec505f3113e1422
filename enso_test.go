package enso

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/enso/agent"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func echoHandler(ctx context.Context, req *agent.Request, res *agent.Response, ac *agent.Context) (any, error) {
	text, err := req.Data().Text()
	if err != nil {
		return nil, err
	}
	return res.Text("echo:" + text), nil
}

func TestNewRequiresAgents(t *testing.T) {
	_, err := New(WithLogger(discardLogger()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no agents registered")
}

func TestNewRejectsDuplicateAgent(t *testing.T) {
	_, err := New(
		WithLogger(discardLogger()),
		WithAgent(AgentConfig{ID: "agent_a", Name: "a"}, echoHandler),
		WithAgent(AgentConfig{ID: "agent_a", Name: "a2"}, echoHandler),
	)
	require.Error(t, err)
}

func TestAppServesAgents(t *testing.T) {
	app, err := New(
		WithLogger(discardLogger()),
		WithAgent(AgentConfig{ID: "agent_echo", Name: "echo"}, echoHandler),
		WithVersion("1.2.3"),
	)
	require.NoError(t, err)

	ts := httptest.NewServer(app.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/agent_echo", "text/plain", strings.NewReader("hi"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Enso/1.2.3", resp.Header.Get("Server"))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "echo:hi", string(body))
}

func TestAppManifestMerge(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "enso.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(`
name: demo
project_id: proj_demo
agents:
  - id: agent_echo
    name: echo
    description: Echoes its input.
    filename: echo.go
`), 0o644))

	app, err := New(
		WithLogger(discardLogger()),
		WithManifest(manifest),
		WithAgent(AgentConfig{ID: "agent_echo"}, echoHandler),
	)
	require.NoError(t, err)

	configs := app.registry.Configs()
	require.Len(t, configs, 1)
	assert.Equal(t, "echo", configs[0].Name)
	assert.Equal(t, "Echoes its input.", configs[0].Description)
	assert.Equal(t, "echo.go", configs[0].Filename)
	assert.Equal(t, "proj_demo", configs[0].ProjectID)
}

func TestWithWelcome(t *testing.T) {
	app, err := New(
		WithLogger(discardLogger()),
		WithAgent(AgentConfig{ID: "agent_echo", Name: "echo"}, echoHandler),
		WithWelcome(Welcome{Welcome: "Say something."}),
	)
	require.NoError(t, err)

	ts := httptest.NewServer(app.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/welcome/agent_echo")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "Say something.")
}

func TestRunShutsDownOnCancel(t *testing.T) {
	app, err := New(
		WithLogger(discardLogger()),
		WithAgent(AgentConfig{ID: "agent_echo", Name: "echo"}, echoHandler),
		WithPort(38500),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	cancel()
	require.NoError(t, <-done)
}
