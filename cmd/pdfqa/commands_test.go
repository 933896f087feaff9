package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfqa/internal/loader/pdftest"
)

const handbook = `The staff handbook covers working hours and leave.
Office hours run from nine to five on weekdays. Remote work is allowed on Fridays.

Annual leave is twenty five days per year. Unused leave may carry over until March.
`

// fakeChatAPI answers chat completions and records the request bodies it saw.
type fakeChatAPI struct {
	mu     sync.Mutex
	bodies []string
}

func (f *fakeChatAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.bodies = append(f.bodies, string(raw))
	f.mu.Unlock()

	var req struct {
		Stream bool `json:"stream"`
	}
	_ = json.Unmarshal(raw, &req)
	if req.Stream {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Twenty five ", "days."} {
			chunk, _ := json.Marshal(map[string]any{
				"id": "c1", "object": "chat.completion.chunk", "created": 1, "model": "deepseek-chat",
				"choices": []map[string]any{{"index": 0, "delta": map[string]string{"content": part}}},
			})
			_, _ = w.Write([]byte("data: " + string(chunk) + "\n\n"))
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{
		"id": "c1", "object": "chat.completion", "created": 1, "model": "deepseek-chat",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "Twenty five days."}, "finish_reason": "stop"}]
	}`))
}

func (f *fakeChatAPI) lastBody() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.bodies) == 0 {
		return ""
	}
	return f.bodies[len(f.bodies)-1]
}

// setup writes a local-only config and a document, pointing the chat model at a fake API.
func setup(t *testing.T) (cfgPath, docPath string, api *fakeChatAPI) {
	t.Helper()
	dir := t.TempDir()
	cfgPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
embedder:
  type: tfidf
chunker:
  type: recursive
  chunk_size: 120
vector_store:
  type: memory
log:
  level: error
  format: json
`), 0o644))
	docPath = filepath.Join(dir, "handbook.txt")
	require.NoError(t, os.WriteFile(docPath, []byte(handbook), 0o644))

	api = &fakeChatAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	t.Setenv("DEEPSEEK_BASE_URL", srv.URL)
	t.Setenv("DEEPSEEK_API_KEY", "sk-test")
	t.Setenv("GITEE_AI_API_KEY", "")
	return cfgPath, docPath, api
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootHelp(t *testing.T) {
	out, err := run(t, "--help")
	require.NoError(t, err)
	for _, sub := range []string{"serve", "chat", "ask"} {
		assert.Contains(t, out, sub)
	}
}

func TestAsk(t *testing.T) {
	cfgPath, docPath, api := setup(t)

	out, err := run(t, "ask", "--config", cfgPath, docPath, "How many days of annual leave?")
	require.NoError(t, err)
	assert.Equal(t, "Twenty five days.\n", out)

	body := api.lastBody()
	assert.Contains(t, body, "Annual leave is twenty five days per year.")
	assert.Contains(t, body, "How many days of annual leave?")
}

func TestAskPDF(t *testing.T) {
	cfgPath, _, api := setup(t)
	pdfPath := pdftest.Write(t, "handbook.pdf",
		"Office hours run from nine to five on weekdays.",
		"",
		"Annual leave is twenty five days per year.")

	out, err := run(t, "ask", "--config", cfgPath, pdfPath, "How many days of annual leave?")
	require.NoError(t, err)
	assert.Equal(t, "Twenty five days.\n", out)
	assert.Contains(t, api.lastBody(), "Annual leave is twenty five days per year.")
}

func TestAskStream(t *testing.T) {
	cfgPath, docPath, _ := setup(t)

	out, err := run(t, "ask", "--stream", "--config", cfgPath, docPath, "How much leave?")
	require.NoError(t, err)
	assert.Equal(t, "Twenty five days.\n", out)
}

func TestAskErrors(t *testing.T) {
	cfgPath, docPath, _ := setup(t)

	_, err := run(t, "ask", "--config", cfgPath, docPath)
	assert.Error(t, err)

	_, err = run(t, "ask", "--config", cfgPath, filepath.Join(filepath.Dir(docPath), "missing.txt"), "q")
	assert.Error(t, err)

	_, err = run(t, "ask", "--config", cfgPath, "--top-k", "9", docPath, "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "top_k")
}

func TestMissingChatKey(t *testing.T) {
	cfgPath, docPath, _ := setup(t)
	t.Setenv("DEEPSEEK_API_KEY", "")

	_, err := run(t, "ask", "--config", cfgPath, docPath, "q")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "DEEPSEEK_API_KEY"))
}

func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vector_store:\n  type: nowhere\n"), 0o644))

	_, err := run(t, "ask", "--config", path, "doc.pdf", "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown vector store")
}
