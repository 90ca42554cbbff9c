package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/maumercado/miri-go/internal/testserver"
	"github.com/maumercado/miri-go/pkg/client"
)

const (
	serverKey = "key-1"
	adminUser = "admin"
	adminPass = "secret"
	jwtSecret = "jwt-secret"
)

func newService(t *testing.T, auth testserver.AuthConfig, opts ...testserver.Option) (*testserver.Server, string) {
	t.Helper()
	stub := testserver.New(auth, opts...)
	srv := httptest.NewServer(stub)
	t.Cleanup(func() {
		stub.Close()
		srv.Close()
	})
	return stub, srv.URL
}

// isolate points the CLI at url with key and admin credentials and keeps
// config discovery inside a temp dir.
func isolate(t *testing.T, url string) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)
	t.Setenv("MIRI_SERVER_URL", url)
	t.Setenv("MIRI_SERVER_KEY", serverKey)
	t.Setenv("MIRI_SERVER_ADMINUSER", adminUser)
	t.Setenv("MIRI_SERVER_ADMINPASS", adminPass)
	t.Setenv("MIRI_LOGLEVEL", "error")
	return dir
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := run(ctx, args, strings.NewReader(stdin), &out, &errOut)
	return out.String(), errOut.String(), err
}

func defaultService(t *testing.T) *testserver.Server {
	t.Helper()
	stub, url := newService(t, testserver.AuthConfig{ServerKey: serverKey, AdminUser: adminUser, AdminPass: adminPass})
	isolate(t, url)
	return stub
}

func TestVersion(t *testing.T) {
	isolate(t, "http://unused.test")
	out, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "miri dev\n", out)
}

func TestPrompt_Text(t *testing.T) {
	stub := defaultService(t)

	out, _, err := execute(t, "", "prompt", "hello", "world")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello world\n", out)

	last, ok := stub.LastRequest()
	require.True(t, ok)
	assert.Equal(t, serverKey, last.Header.Get("X-Server-Key"))
	assert.Equal(t, "miri-cli/dev", last.Header.Get("User-Agent"))
}

func TestPrompt_JSON(t *testing.T) {
	defaultService(t)

	out, _, err := execute(t, "", "prompt", "-o", "json", "hi")
	require.NoError(t, err)

	var resp client.PromptResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "echo: hi", resp.Response)
}

func TestPrompt_WrongKey(t *testing.T) {
	defaultService(t)
	t.Setenv("MIRI_SERVER_KEY", "nope")

	_, _, err := execute(t, "", "prompt", "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrTransport)
	assert.Contains(t, err.Error(), "invalid server key")
}

func TestInvalidOutputFormat(t *testing.T) {
	defaultService(t)

	_, _, err := execute(t, "", "prompt", "-o", "xml", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestConfigFile(t *testing.T) {
	_, url := newService(t, testserver.AuthConfig{ServerKey: serverKey})
	dir := isolate(t, "http://wrong.test")
	t.Setenv("MIRI_SERVER_URL", "")

	cfg := "server:\n  url: " + url + "\n  key: " + serverKey + "\noutput: json\n"
	path := filepath.Join(dir, "miri.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	out, _, err := execute(t, "", "--config", path, "prompt", "hi")
	require.NoError(t, err)
	assert.Contains(t, out, `"response": "echo: hi"`)
}

func TestStream(t *testing.T) {
	defaultService(t)

	out, _, err := execute(t, "", "stream", "how", "are", "you")
	require.NoError(t, err)
	assert.Equal(t, "echo: how are you\n", out)

	out, _, err = execute(t, "", "stream", "-o", "json", "hi")
	require.NoError(t, err)
	var resp client.PromptResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "echo: hi", resp.Response)
}

func TestStream_OutlivesServerTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"Hello", " world", " again"} {
			_, _ = w.Write([]byte("event:message\ndata:" + chunk + "\n\n"))
			w.(http.Flusher).Flush()
			time.Sleep(40 * time.Millisecond)
		}
	}))
	t.Cleanup(srv.Close)
	isolate(t, srv.URL)
	t.Setenv("MIRI_SERVER_TIMEOUT", "50ms")

	out, _, err := execute(t, "", "stream", "greet")
	require.NoError(t, err)
	assert.Equal(t, "Hello world again\n", out)
}

func TestSession_New(t *testing.T) {
	stub := defaultService(t)

	out, _, err := execute(t, "", "session", "new", "--client-id", "cli-1")
	require.NoError(t, err)

	id := strings.TrimSpace(out)
	sess, ok := stub.Store().Session(id)
	require.True(t, ok)
	assert.Equal(t, "cli-1", sess.ClientID)
}

func TestAdmin_SessionsAndStats(t *testing.T) {
	stub := defaultService(t)
	stub.Store().PutSession(testserver.Session{ID: "s1", ClientID: "c1"}, "search")

	_, _, err := execute(t, "", "prompt", "--session", "s1", "one", "two")
	require.NoError(t, err)

	out, _, err := execute(t, "", "admin", "sessions", "list")
	require.NoError(t, err)
	assert.Equal(t, "s1\n", out)

	out, _, err = execute(t, "", "admin", "sessions", "get", "s1", "-o", "yaml")
	require.NoError(t, err)
	var sess client.Session
	require.NoError(t, yaml.Unmarshal([]byte(out), &sess))
	assert.Equal(t, "s1", sess.ID)
	assert.Equal(t, "c1", sess.ClientID)
	require.Len(t, sess.Messages, 1)
	assert.Equal(t, "echo: one two", sess.Messages[0].Response)

	out, _, err = execute(t, "", "admin", "sessions", "stats", "s1", "-o", "json")
	require.NoError(t, err)
	var stats client.SessionStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, int64(2), stats.PromptTokens)
	assert.Equal(t, int64(3), stats.OutputTokens)
	assert.Equal(t, int64(5), stats.TotalTokens)

	out, _, err = execute(t, "", "admin", "sessions", "skills", "s1")
	require.NoError(t, err)
	assert.Equal(t, "search\n", out)

	out, _, err = execute(t, "", "admin", "sessions", "history", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "> one two\necho: one two\n")
	assert.Contains(t, out, "total tokens: 5")

	last, ok := stub.LastRequest()
	require.True(t, ok)
	user, pass, ok := (&http.Request{Header: last.Header}).BasicAuth()
	require.True(t, ok)
	assert.Equal(t, adminUser, user)
	assert.Equal(t, adminPass, pass)
}

func TestAdmin_Health(t *testing.T) {
	defaultService(t)

	out, _, err := execute(t, "", "admin", "health")
	require.NoError(t, err)
	assert.Equal(t, "ok: Admin API is healthy\n", out)
}

func TestAdmin_ConfigSetAndGet(t *testing.T) {
	defaultService(t)

	require.NoError(t, os.WriteFile("agent.yaml", []byte("storage_dir: /data\nserver:\n  addr: \":9000\"\n"), 0o600))

	out, _, err := execute(t, "", "admin", "config", "set", "agent.yaml")
	require.NoError(t, err)
	assert.Equal(t, "config updated\n", out)

	out, _, err = execute(t, "", "admin", "config", "get", "-o", "json")
	require.NoError(t, err)
	var cfg client.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "/data", cfg.StorageDir)
	require.NotNil(t, cfg.Server)
	assert.Equal(t, ":9000", cfg.Server.Addr)
}

func TestAdmin_Human(t *testing.T) {
	stub := defaultService(t)

	_, _, err := execute(t, "", "admin", "human", "add", "--id", "h1", "--notes", "likes tea", "--data", "city=Lima,lang=es")
	require.NoError(t, err)

	humans := stub.Store().Humans()
	require.Len(t, humans, 1)
	assert.Equal(t, map[string]string{"city": "Lima", "lang": "es"}, humans[0].Data)

	out, _, err := execute(t, "", "admin", "human", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "city=Lima,lang=es")
	assert.Contains(t, out, "likes tea")
}

func TestAdmin_Skills(t *testing.T) {
	stub := defaultService(t)
	stub.Store().PutSkill(testserver.Skill{Name: "web search", Version: "1.0", Tags: []string{"net"}})

	out, _, err := execute(t, "", "admin", "skills", "get", "web search")
	require.NoError(t, err)
	assert.Contains(t, out, "web search")
	assert.Contains(t, out, "1.0")

	out, _, err = execute(t, "", "admin", "skills", "rm", "web search")
	require.NoError(t, err)
	assert.Equal(t, "skill removed\n", out)

	_, _, err = execute(t, "", "admin", "skills", "get", "web search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "skill not found")
}

func TestAdmin_ChannelValidation(t *testing.T) {
	stub := defaultService(t)
	before := len(stub.Requests())

	_, _, err := execute(t, "", "admin", "channels", "irc", "send")
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrConfiguration)
	assert.Len(t, stub.Requests(), before)
}

func TestAdmin_Tasks(t *testing.T) {
	stub := defaultService(t)
	stub.Store().PutTask(testserver.Task{ID: "t1", Name: "digest", CronExpression: "0 9 * * *", Active: true})

	out, _, err := execute(t, "", "admin", "tasks", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "t1")
	assert.Contains(t, out, "0 9 * * *")
	assert.Contains(t, out, "yes")

	out, _, err = execute(t, "", "admin", "tasks", "get", "t1", "-o", "json")
	require.NoError(t, err)
	var task client.Task
	require.NoError(t, json.Unmarshal([]byte(out), &task))
	assert.Equal(t, "digest", task.Name)
}

func TestFiles_UploadDownload(t *testing.T) {
	defaultService(t)
	require.NoError(t, os.WriteFile("notes.txt", []byte("remember the milk"), 0o600))

	out, _, err := execute(t, "", "files", "upload", "notes.txt", "--name", "my notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "uploads/my notes.txt\n", out)

	out, _, err = execute(t, "", "files", "download", "uploads/my notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "remember the milk", out)

	_, _, err = execute(t, "", "files", "download", "uploads/my notes.txt", "-O", "copy.txt")
	require.NoError(t, err)
	data, err := os.ReadFile("copy.txt")
	require.NoError(t, err)
	assert.Equal(t, "remember the milk", string(data))
}

func TestChat(t *testing.T) {
	stub := defaultService(t)

	out, errOut, err := execute(t, "hi\n\n/quit\nignored\n", "chat", "--session", "s1")
	require.NoError(t, err)
	assert.Equal(t, "echo: hi\n", out)
	assert.Contains(t, errOut, "session s1 (0 messages)")

	assert.Eventually(t, func() bool {
		sess, ok := stub.Store().Session("s1")
		return ok && len(sess.Messages) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChat_Stream(t *testing.T) {
	defaultService(t)

	out, _, err := execute(t, "a b\nc\n", "chat", "--stream")
	require.NoError(t, err)
	assert.Equal(t, "echo: a b\necho: c\n", out)
}

func TestAuth_JWT(t *testing.T) {
	stub, url := newService(t, testserver.AuthConfig{JWTSecret: jwtSecret})
	isolate(t, url)
	t.Setenv("MIRI_AUTH_MODE", "jwt")
	t.Setenv("MIRI_AUTH_JWTSECRET", jwtSecret)

	out, _, err := execute(t, "", "admin", "health")
	require.NoError(t, err)
	assert.Equal(t, "ok: Admin API is healthy\n", out)

	last, ok := stub.LastRequest()
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(last.Header.Get("Authorization"), "Bearer "))
}

func TestAuth_JWTRequiresSecret(t *testing.T) {
	defaultService(t)
	t.Setenv("MIRI_AUTH_MODE", "jwt")

	_, _, err := execute(t, "", "prompt", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwtsecret")
}

func TestAuth_OAuth2(t *testing.T) {
	stub, url := newService(t, testserver.AuthConfig{JWTSecret: jwtSecret})

	var tokenCalls atomic.Int32
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		claims := testserver.Claims{
			UserID: "svc",
			Role:   "user",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": signed,
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(tokenSrv.Close)

	isolate(t, url)
	t.Setenv("MIRI_AUTH_MODE", "oauth2")
	t.Setenv("MIRI_AUTH_OAUTH2_CLIENTID", "cli")
	t.Setenv("MIRI_AUTH_OAUTH2_CLIENTSECRET", "s3cret")
	t.Setenv("MIRI_AUTH_OAUTH2_TOKENURL", tokenSrv.URL)

	out, _, err := execute(t, "", "prompt", "hi")
	require.NoError(t, err)
	assert.Equal(t, "echo: hi\n", out)
	assert.Equal(t, int32(1), tokenCalls.Load())

	last, ok := stub.LastRequest()
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(last.Header.Get("Authorization"), "Bearer "))
}

func TestMetricsAddrServesObserverMetrics(t *testing.T) {
	defaultService(t)

	out, _, err := execute(t, "", "--metrics-addr", "127.0.0.1:0", "prompt", "hi")
	require.NoError(t, err)
	assert.Equal(t, "echo: hi\n", out)
}

func TestRetriesOnRateLimit(t *testing.T) {
	stub, url := newService(t,
		testserver.AuthConfig{ServerKey: serverKey, AdminUser: adminUser, AdminPass: adminPass},
		testserver.WithRateLimit(rate.Every(time.Hour), 1),
	)
	isolate(t, url)
	t.Setenv("MIRI_SERVER_RETRIES", "1")

	_, _, err := execute(t, "", "admin", "health")
	require.NoError(t, err)

	_, _, err = execute(t, "", "admin", "health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit exceeded")
	// One call, then one throttled call sent twice.
	assert.Len(t, stub.Requests(), 3)
}
