package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Session is the login state kept between taskctl invocations.
type Session struct {
	Server    string    `json:"server"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

var errNoSession = stderrors.New(`not logged in, run "taskctl login" first`)

// sessionFilePath honours TASKCTL_SESSION_FILE, then the user config dir.
func sessionFilePath() (string, error) {
	if p := os.Getenv("TASKCTL_SESSION_FILE"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory: %w", err)
	}
	return filepath.Join(dir, "taskboard", "session.json"), nil
}

func loadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errNoSession
		}
		return nil, fmt.Errorf("read session file %s: %w", path, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse session file %s: %w", path, err)
	}
	if s.Token == "" || s.Server == "" {
		return nil, errNoSession
	}
	if !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt) {
		return nil, fmt.Errorf("session expired at %s, run \"taskctl login\" again", s.ExpiresAt.Format(time.RFC3339))
	}
	return &s, nil
}

// saveSession writes the file owner-only since it holds a bearer token.
func saveSession(path string, s *Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write session file %s: %w", path, err)
	}
	return nil
}

func removeSession(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file %s: %w", path, err)
	}
	return nil
}
