package main

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"taskboard/internal/server"
	inmemory "taskboard/repository/inmemory"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTaskAPI struct {
	mock.Mock
	stopped chan struct{}
}

func newMockTaskAPI() *MockTaskAPI {
	return &MockTaskAPI{stopped: make(chan struct{})}
}

// Start blocks like http.Server.ListenAndServe until Shutdown is called,
// unless the expectation returns an error straight away.
func (m *MockTaskAPI) Start() error {
	args := m.Called()
	if err := args.Error(0); err != nil {
		return err
	}
	<-m.stopped
	return nil
}

func (m *MockTaskAPI) Shutdown(ctx context.Context) error {
	args := m.Called(ctx)
	close(m.stopped)
	return args.Error(0)
}

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestServe(t *testing.T) {
	tests := []struct {
		name      string
		mockSetup func(*MockTaskAPI)
		cancel    bool
		wantErr   bool
	}{
		{
			name: "graceful shutdown on signal",
			mockSetup: func(m *MockTaskAPI) {
				m.On("Start").Return(nil)
				m.On("Shutdown", mock.Anything).Return(nil)
			},
			cancel: true,
		},
		{
			name: "start failure",
			mockSetup: func(m *MockTaskAPI) {
				m.On("Start").Return(assert.AnError)
			},
			wantErr: true,
		},
		{
			name: "shutdown failure",
			mockSetup: func(m *MockTaskAPI) {
				m.On("Start").Return(nil)
				m.On("Shutdown", mock.Anything).Return(assert.AnError)
			},
			cancel:  true,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newMockTaskAPI()
			tt.mockSetup(api)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancel {
				go func() {
					time.Sleep(10 * time.Millisecond)
					cancel()
				}()
			}

			done := make(chan error, 1)
			go func() { done <- serve(ctx, api, discardLogger()) }()

			select {
			case err := <-done:
				if tt.wantErr {
					assert.Error(t, err)
				} else {
					assert.NoError(t, err)
				}
			case <-time.After(time.Second):
				t.Fatal("serve did not return")
			}
			api.AssertExpectations(t)
		})
	}
}

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		env   string
		level logrus.Level
		json  bool
	}{
		{env: server.EnvLocal, level: logrus.DebugLevel},
		{env: server.EnvDev, level: logrus.InfoLevel},
		{env: server.EnvProd, level: logrus.WarnLevel, json: true},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			var buf bytes.Buffer
			log := setupLogger(tt.env, &buf)
			assert.Equal(t, tt.level, log.Logger.GetLevel())

			log.Warn("hello")
			if tt.json {
				assert.Contains(t, buf.String(), `"msg":"hello"`)
			} else {
				assert.Contains(t, buf.String(), "hello")
			}
		})
	}
}

func TestOpenStoreMemory(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.Storage = server.StorageMemory

	st, closeStore, err := openStore(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer closeStore()
	assert.NoError(t, st.Ping(context.Background()))
}

// memoryOpener hands out an in-memory store and records whether it was closed.
func memoryOpener(closed *bool) storeOpener {
	return func(ctx context.Context, cfg *server.Config, log *logrus.Entry) (store, func(), error) {
		return inmemory.NewStorage(), func() { *closed = true }, nil
	}
}

func TestRun(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		open   func(closed *bool) storeOpener
		want   struct {
			code   int
			closed bool
		}
	}{
		{
			name:   "clean shutdown closes store",
			secret: "run-secret",
			open:   memoryOpener,
			want: struct {
				code   int
				closed bool
			}{code: 0, closed: true},
		},
		{
			name:   "authenticator failure still closes store",
			secret: "",
			open:   memoryOpener,
			want: struct {
				code   int
				closed bool
			}{code: 1, closed: true},
		},
		{
			name:   "storage failure",
			secret: "run-secret",
			open: func(*bool) storeOpener {
				return func(context.Context, *server.Config, *logrus.Entry) (store, func(), error) {
					return nil, nil, assert.AnError
				}
			},
			want: struct {
				code   int
				closed bool
			}{code: 1, closed: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := server.DefaultConfig()
			cfg.Storage = server.StorageMemory
			cfg.Addr = "127.0.0.1"
			cfg.Port = 0
			cfg.JWTSecret = tt.secret

			// An already cancelled context makes run shut down right after start.
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			var closed bool
			code := run(ctx, cfg, discardLogger(), tt.open(&closed))
			assert.Equal(t, tt.want.code, code)
			assert.Equal(t, tt.want.closed, closed)
		})
	}
}
