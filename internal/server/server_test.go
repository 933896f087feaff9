package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfqa/internal/errs"
	"pdfqa/internal/service"
)

type stubAsker struct {
	mu      sync.Mutex
	answer  string
	chunks  []string
	summary string
	err     error
	got     service.AskRequest

	invalid  error
	streamed bool
	released []string
}

func (s *stubAsker) AskWithOptions(_ context.Context, req service.AskRequest) (string, error) {
	s.mu.Lock()
	s.got = req
	s.mu.Unlock()
	return s.answer, s.err
}

func (s *stubAsker) AskWithOptionsStream(_ context.Context, req service.AskRequest, onChunk func(string) error) (string, error) {
	s.mu.Lock()
	s.got = req
	s.streamed = true
	s.mu.Unlock()
	for _, c := range s.chunks {
		if err := onChunk(c); err != nil {
			return "", err
		}
	}
	return strings.Join(s.chunks, ""), s.err
}

func (s *stubAsker) Summarize(_ context.Context, filePath, apiKey string) (string, error) {
	s.mu.Lock()
	s.got = service.AskRequest{FilePath: filePath, APIKey: apiKey}
	s.mu.Unlock()
	return s.summary, s.err
}

func (s *stubAsker) Validate(service.AskRequest) error { return s.invalid }

func (s *stubAsker) Release(_ context.Context, filePath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, filePath)
	return len(s.released) == 1
}

func newTestServer(t *testing.T, asker Asker) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := New(Config{Addr: ":0", UploadDir: t.TempDir(), MaxUploadBytes: 1 << 10}, asker, nil, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestChat(t *testing.T) {
	asker := &stubAsker{answer: "It is blue."}
	_, ts := newTestServer(t, asker)

	resp := postJSON(t, ts.URL+"/chat", map[string]any{
		"file_path": "/tmp/a.pdf",
		"query":     "What colour?",
		"api_key":   "k",
		"top_k":     2,
		"history":   []map[string]string{{"role": "user", "content": "hi"}},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"answer": "It is blue."}, decode(t, resp))

	assert.Equal(t, "/tmp/a.pdf", asker.got.FilePath)
	assert.Equal(t, 2, asker.got.TopK)
	require.Len(t, asker.got.History, 1)
	assert.Equal(t, "hi", asker.got.History[0].Content)
}

func TestChatErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid", errs.New(errs.CodeServiceInvalidInput, "query is required"), http.StatusBadRequest},
		{"missing file", errs.New(errs.CodeLoaderNotFound, "file not found"), http.StatusNotFound},
		{"no key", errs.New(errs.CodeServiceMissingKey, "api_key is required"), http.StatusUnauthorized},
		{"upstream", errs.New(errs.CodeLLMUpstream, "generating answer"), http.StatusBadGateway},
		{"internal", errs.New(errs.CodeStoreFailure, "boom"), http.StatusInternalServerError},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, ts := newTestServer(t, &stubAsker{err: tc.err})
			resp := postJSON(t, ts.URL+"/chat", map[string]string{"file_path": "x.pdf", "query": "q"})
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Contains(t, decode(t, resp)["error"], tc.err.Error())
		})
	}
}

func TestChatRejectsBadJSON(t *testing.T) {
	_, ts := newTestServer(t, &stubAsker{})
	resp, err := http.Post(ts.URL+"/chat", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func readEvents(t *testing.T, resp *http.Response) []StreamEvent {
	t.Helper()
	var events []StreamEvent
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func TestChatStream(t *testing.T) {
	_, ts := newTestServer(t, &stubAsker{chunks: []string{"Hel", "lo"}})
	resp := postJSON(t, ts.URL+"/chat/stream", map[string]string{"file_path": "x.pdf", "query": "q", "api_key": "k"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	assert.Equal(t, []StreamEvent{
		{Type: "token", Content: "Hel"},
		{Type: "token", Content: "lo"},
		{Type: "done"},
	}, readEvents(t, resp))
}

func TestChatStreamError(t *testing.T) {
	_, ts := newTestServer(t, &stubAsker{chunks: []string{"par"}, err: errs.New(errs.CodeLLMUpstream, "model down")})
	resp := postJSON(t, ts.URL+"/chat/stream", map[string]string{"file_path": "x.pdf", "query": "q"})

	events := readEvents(t, resp)
	require.Len(t, events, 2)
	assert.Equal(t, StreamEvent{Type: "token", Content: "par"}, events[0])
	assert.Equal(t, "error", events[1].Type)
	assert.Contains(t, events[1].Content, "model down")
}

func TestChatStreamValidatesBeforeStreaming(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"no path", errs.New(errs.CodeServiceInvalidInput, "file_path is required"), http.StatusBadRequest},
		{"no key", errs.New(errs.CodeServiceMissingKey, "api_key is required"), http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			asker := &stubAsker{invalid: tc.err}
			_, ts := newTestServer(t, asker)
			resp := postJSON(t, ts.URL+"/chat/stream", map[string]string{"file_path": "x.pdf", "query": "q"})
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			assert.Contains(t, decode(t, resp)["error"], tc.err.Error())
			assert.False(t, asker.streamed)
		})
	}
}

func TestReleaseIndex(t *testing.T) {
	asker := &stubAsker{}
	_, ts := newTestServer(t, asker)

	del := func(body string) *http.Response {
		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/index", strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	resp := del(`{"file_path": "/tmp/a.pdf"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"released": true}, decode(t, resp))

	resp = del(`{"file_path": "/tmp/a.pdf"}`)
	assert.Equal(t, map[string]any{"released": false}, decode(t, resp))
	assert.Equal(t, []string{"/tmp/a.pdf", "/tmp/a.pdf"}, asker.released)

	resp = del(`{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSummary(t *testing.T) {
	asker := &stubAsker{summary: "Short."}
	_, ts := newTestServer(t, asker)
	resp := postJSON(t, ts.URL+"/summary", map[string]string{"file_path": "a.pdf", "api_key": "k"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Short.", decode(t, resp)["summary"])
	assert.Equal(t, "k", asker.got.APIKey)
}

func upload(t *testing.T, url, name string, content []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(url+"/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestUpload(t *testing.T) {
	srv, ts := newTestServer(t, &stubAsker{})
	content := []byte("%PDF-1.4\n% test\n")

	resp := upload(t, ts.URL, "Report.PDF", content)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "Report.PDF", body["file_name"])

	path := body["file_path"].(string)
	assert.True(t, strings.HasPrefix(path, srv.cfg.UploadDir))
	assert.True(t, strings.HasSuffix(path, ".pdf"))
	saved, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, saved)
}

func TestUploadRejects(t *testing.T) {
	_, ts := newTestServer(t, &stubAsker{})

	resp := upload(t, ts.URL, "notes.txt", []byte("%PDF-1.4"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = upload(t, ts.URL, "fake.pdf", []byte("hello world"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	big := append([]byte("%PDF-"), bytes.Repeat([]byte("x"), 4<<10)...)
	resp = upload(t, ts.URL, "big.pdf", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestStaticRoutes(t *testing.T) {
	_, ts := newTestServer(t, &stubAsker{})

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	page := new(bytes.Buffer)
	_, _ = page.ReadFrom(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, page.String(), "/chat/stream")
	assert.Contains(t, page.String(), `method: "DELETE"`)

	resp, err = http.Get(ts.URL + "/api")
	require.NoError(t, err)
	assert.Equal(t, "Hello World!", decode(t, resp)["message"])
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/items/7?q=abc")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"item_id": float64(7), "q": "abc"}, decode(t, resp))
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/items/7")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"item_id": float64(7), "q": nil}, decode(t, resp))
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/items/seven")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	metrics := new(bytes.Buffer)
	_, _ = metrics.ReadFrom(resp.Body)
	resp.Body.Close()
	assert.Contains(t, metrics.String(), "pdfqa_http_requests_total")
}

func TestNewRequiresAddr(t *testing.T) {
	_, err := New(Config{}, &stubAsker{}, nil, nil)
	assert.Error(t, err)
}
