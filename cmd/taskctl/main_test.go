package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskboard/internal/auth"
	"taskboard/internal/server"
	"taskboard/internal/service"
	storage "taskboard/repository/inmemory"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestSessionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	_, err := loadSession(path)
	assert.ErrorIs(t, err, errNoSession)

	want := &Session{Server: "http://localhost:8080", UserID: "u1", Token: "tok", ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second)}
	require.NoError(t, saveSession(path, want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := loadSession(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, removeSession(path))
	require.NoError(t, removeSession(path), "removing twice is not an error")
	_, err = loadSession(path)
	assert.ErrorIs(t, err, errNoSession)
}

func TestLoadSessionRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "garbage", content: "{", wantErr: "parse session file"},
		{name: "no token", content: `{"server":"http://x"}`, wantErr: "not logged in"},
		{name: "expired", content: `{"server":"http://x","token":"t","expires_at":"2001-01-01T00:00:00Z"}`, wantErr: "session expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "session.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			_, err := loadSession(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSessionFilePathOverride(t *testing.T) {
	t.Setenv("TASKCTL_SESSION_FILE", "/tmp/custom.json")
	path, err := sessionFilePath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.json", path)
}

func newTestServer(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	l := logrus.New()
	l.SetOutput(io.Discard)
	log := logrus.NewEntry(l)

	store := storage.NewStorage()
	authn, err := auth.New(store, store, auth.Config{Secret: []byte("cli-secret"), TokenTTL: time.Hour, BcryptCost: bcrypt.MinCost}, log)
	require.NoError(t, err)
	api := server.NewTaskAPI(authn, service.NewTaskService(store, store, log), store, nil, log)
	require.NotNil(t, api)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

type cli struct {
	t           *testing.T
	server      string
	sessionPath string
}

func (c *cli) run(stdin string, args ...string) (int, string, string) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	a := &app{
		stdin:       strings.NewReader(stdin),
		stdout:      &stdout,
		stderr:      &stderr,
		sessionPath: c.sessionPath,
	}
	a.readPassword = a.promptPassword
	code := a.run(context.Background(), append([]string{"--server", c.server}, args...))
	return code, stdout.String(), stderr.String()
}

func TestCommands(t *testing.T) {
	url := newTestServer(t)
	alice := &cli{t: t, server: url, sessionPath: filepath.Join(t.TempDir(), "alice.json")}
	bob := &cli{t: t, server: url, sessionPath: filepath.Join(t.TempDir(), "bob.json")}

	code, out, errOut := alice.run("pw1\n", "signup", "-u", "alice", "-e", "alice@x.com")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "account alice created")

	code, _, errOut = bob.run("", "signup", "-u", "bob", "-e", "bob@x.com", "-p", "pw2")
	require.Equal(t, 0, code, errOut)

	code, _, errOut = alice.run("", "list")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "not logged in")

	code, _, errOut = alice.run("pw1\n", "login", "-e", "alice@x.com")
	require.Equal(t, 0, code, errOut)
	code, _, errOut = bob.run("", "login", "-e", "bob@x.com", "-p", "pw2")
	require.Equal(t, 0, code, errOut)

	code, out, errOut = alice.run("", "users")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "USERNAME")
	assert.Contains(t, out, "bob")

	code, out, errOut = alice.run("", "add", "-d", "for bob", "-a", "bob", "write", "report")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "write report")
	assert.Contains(t, out, "assigned to bob")
	taskID := strings.Fields(out)[0]

	code, out, errOut = bob.run("", "list")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, taskID)
	assert.Contains(t, out, "pending")

	code, out, errOut = bob.run("", "toggle", taskID)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "completed")

	code, out, errOut = bob.run("", "list", "--status", "pending")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "no tasks")

	code, out, errOut = alice.run("", "edit", "--title", "final report", taskID)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "final report")

	code, _, errOut = bob.run("", "rm", taskID)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "403")

	code, out, errOut = alice.run("", "rm", taskID)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "deleted")

	code, out, errOut = alice.run("", "logout")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "logged out")
	_, err := os.Stat(alice.sessionPath)
	assert.True(t, os.IsNotExist(err))
}

func TestRunUsage(t *testing.T) {
	c := &cli{t: t, server: "http://localhost:1", sessionPath: filepath.Join(t.TempDir(), "s.json")}

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantErr  string
	}{
		{name: "unknown command", args: []string{"frobnicate"}, wantCode: 2, wantErr: "unknown command"},
		{name: "add without title", args: []string{"add"}, wantCode: 1, wantErr: "usage: taskctl add"},
		{name: "edit without changes", args: []string{"edit", "t1"}, wantCode: 1, wantErr: "nothing to change"},
		{name: "login without email", args: []string{"login"}, wantCode: 1, wantErr: "--email"},
		{name: "logout without session", args: []string{"logout"}, wantCode: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := c.run("", tt.args...)
			assert.Equal(t, tt.wantCode, code)
			if tt.wantErr != "" {
				assert.Contains(t, errOut, tt.wantErr)
			}
		})
	}
}
