package testserver

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return New(AuthConfig{ServerKey: "key-1", AdminUser: "admin", AdminPass: "secret"})
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func adminRequest(method, target string, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.SetBasicAuth("admin", "secret")
	return req
}

func publicRequest(method, target string, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("X-Server-Key", "key-1")
	return req
}

func TestRespondError(t *testing.T) {
	w := httptest.NewRecorder()
	respondError(w, http.StatusNotFound, "session not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "session not found", body["error"])
}

func TestPrompt_RecordsSession(t *testing.T) {
	s := newTestServer(t)

	w := serve(s, publicRequest(http.MethodPost, "/api/v1/prompt", `{"prompt":"hi there","session_id":"s1"}`))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "echo: hi there", body["response"])

	sess, ok := s.Store().Session("s1")
	require.True(t, ok)
	require.Len(t, sess.Messages, 1)
	assert.Equal(t, "hi there", sess.Messages[0].Prompt)
	assert.Equal(t, int64(5), sess.TotalTokens)
}

func TestPrompt_Unauthorized(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/prompt", strings.NewReader(`{"prompt":"x"}`))
	w := serve(s, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPromptStream_Events(t *testing.T) {
	s := newTestServer(t)

	w := serve(s, publicRequest(http.MethodGet, "/api/v1/prompt/stream?prompt=a+b", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	assert.Equal(t, "event:message\ndata:echo:\n\nevent:message\ndata: a\n\nevent:message\ndata: b\n\n", w.Body.String())
}

func TestInteraction(t *testing.T) {
	s := newTestServer(t)

	w := serve(s, publicRequest(http.MethodPost, "/api/v1/interaction", `{"action":"new"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(s, publicRequest(http.MethodPost, "/api/v1/interaction", `{"action":"new","client_id":"c1"}`))
	require.Equal(t, http.StatusOK, w.Code)
	var created map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created["session_id"])

	w = serve(s, publicRequest(http.MethodPost, "/api/v1/interaction", `{"action":"status"}`))
	require.Equal(t, http.StatusOK, w.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, []any{created["session_id"]}, status["sessions"])
}

func TestUploadAndDownload(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, _ = part.Write([]byte("hello"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files/upload", &buf)
	req.Header.Set("X-Server-Key", "key-1")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := serve(s, req)
	require.Equal(t, http.StatusOK, w.Code)

	var result map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "uploads/notes.txt", result["path"])

	w = serve(s, publicRequest(http.MethodGet, "/api/v1/files/uploads/notes.txt", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", w.Body.String())
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	s.Store().PutSession(Session{ID: "abc", TotalTokens: 3}, "search")
	s.Store().PutSkill(Skill{Name: "search", Version: "1.0.0"})
	s.Store().PutTask(Task{ID: "t1", Name: "digest", CronExpression: "0 9 * * *"})

	tests := []struct {
		method string
		target string
		body   string
		want   int
	}{
		{http.MethodGet, "/api/admin/v1/health", "", http.StatusOK},
		{http.MethodGet, "/api/admin/v1/config", "", http.StatusOK},
		{http.MethodPost, "/api/admin/v1/config", `{"storage_dir":"/data"}`, http.StatusOK},
		{http.MethodPost, "/api/admin/v1/config", `[]`, http.StatusBadRequest},
		{http.MethodGet, "/api/admin/v1/human", "", http.StatusOK},
		{http.MethodPost, "/api/admin/v1/human", `{"notes":"likes tea"}`, http.StatusOK},
		{http.MethodGet, "/api/admin/v1/skills", "", http.StatusOK},
		{http.MethodGet, "/api/admin/v1/skills/search", "", http.StatusOK},
		{http.MethodGet, "/api/admin/v1/skills/missing", "", http.StatusNotFound},
		{http.MethodPost, "/api/admin/v1/channels", `{"channel":"irc","action":"status"}`, http.StatusOK},
		{http.MethodPost, "/api/admin/v1/channels", `{"channel":"irc","action":"send"}`, http.StatusBadRequest},
		{http.MethodPost, "/api/admin/v1/channels", `{"channel":"fax","action":"status"}`, http.StatusBadRequest},
		{http.MethodGet, "/api/admin/v1/sessions", "", http.StatusOK},
		{http.MethodGet, "/api/admin/v1/sessions/abc", "", http.StatusOK},
		{http.MethodGet, "/api/admin/v1/sessions/abc/history", "", http.StatusOK},
		{http.MethodGet, "/api/admin/v1/sessions/abc/stats", "", http.StatusOK},
		{http.MethodGet, "/api/admin/v1/sessions/abc/skills", "", http.StatusOK},
		{http.MethodGet, "/api/admin/v1/sessions/nope", "", http.StatusNotFound},
		{http.MethodGet, "/api/admin/v1/tasks", "", http.StatusOK},
		{http.MethodGet, "/api/admin/v1/tasks/t1", "", http.StatusOK},
		{http.MethodDelete, "/api/admin/v1/skills/search", "", http.StatusOK},
		{http.MethodDelete, "/api/admin/v1/skills/search", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			w := serve(s, adminRequest(tt.method, tt.target, tt.body))
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestRecordedRequests(t *testing.T) {
	s := newTestServer(t)

	serve(s, adminRequest(http.MethodGet, "/api/admin/v1/health?x=1", ""))

	last, ok := s.LastRequest()
	require.True(t, ok)
	assert.Equal(t, "/api/admin/v1/health", last.Path)
	assert.Equal(t, "x=1", last.RawQuery)
	assert.NotEmpty(t, last.Header.Get("Authorization"))
}

func TestServeWS_History(t *testing.T) {
	s := newTestServer(t)
	s.Store().PutSession(Session{ID: "abc", Messages: []Message{{Prompt: "p", Response: "r"}}})
	srv := httptest.NewServer(s)
	defer srv.Close()

	header := http.Header{"X-Server-Key": []string{"key-1"}}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?session_id=abc", header)
	require.NoError(t, err)
	defer conn.Close()

	var history struct {
		Type    string  `json:"type"`
		Session Session `json:"session"`
	}
	require.NoError(t, conn.ReadJSON(&history))
	assert.Equal(t, "history", history.Type)
	assert.Equal(t, "abc", history.Session.ID)
	assert.Len(t, history.Session.Messages, 1)

	require.NoError(t, conn.WriteJSON(map[string]string{"prompt": "ping"}))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "echo: ping", reply["response"])
}
