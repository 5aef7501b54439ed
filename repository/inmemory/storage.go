package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"taskboard/internal/domain/errors"
	"taskboard/internal/domain/models"

	"github.com/google/uuid"
)

// Storage keeps users, tasks and revoked token ids in process memory.
// It is used for local runs and tests; all methods are safe for concurrent use.
type Storage struct {
	mu      sync.RWMutex
	users   map[string]models.User
	tasks   map[string]models.Task
	revoked map[string]time.Time
	now     func() time.Time
}

func NewStorage() *Storage {
	return &Storage{
		users:   make(map[string]models.User),
		tasks:   make(map[string]models.Task),
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *Storage) Ping(ctx context.Context) error {
	return nil
}

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return errors.ErrDuplicateEmail
		}
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
	}
	s.users[user.ID] = *user
	return nil
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, exists := s.users[id]
	if !exists {
		return nil, errors.ErrUnknownUser
	}
	return &user, nil
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			return &user, nil
		}
	}
	return nil, errors.ErrUnknownUser
}

func (s *Storage) ListUsers(ctx context.Context) ([]models.UserSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.UserSummary, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, models.UserSummary{ID: u.ID, Username: u.Username})
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Username != users[j].Username {
			return users[i].Username < users[j].Username
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (s *Storage) CreateTask(ctx context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[task.CreatorID]; !ok {
		return errors.ErrUnknownUser
	}
	if _, ok := s.users[task.AssigneeID]; !ok {
		return errors.ErrInvalidAssignee
	}
	now := s.now().UTC()
	task.ID = uuid.New().String()
	task.Version = 1
	task.CreatedAt = now
	task.UpdatedAt = now
	s.tasks[task.ID] = *task
	return nil
}

func (s *Storage) GetTaskByID(ctx context.Context, id string) (*models.TaskView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, exists := s.tasks[id]
	if !exists {
		return nil, errors.ErrNotFound
	}
	view := s.viewLocked(task)
	return &view, nil
}

func (s *Storage) ListTasksForUser(ctx context.Context, userID string) ([]models.TaskView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tasks := []models.TaskView{}
	for _, t := range s.tasks {
		if t.CreatorID == userID || t.AssigneeID == userID {
			tasks = append(tasks, s.viewLocked(t))
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks, nil
}

// UpdateTask overwrites the non-nil fields of patch. A non-zero
// expectedVersion turns the write into a compare-and-swap on the stored
// version.
func (s *Storage) UpdateTask(ctx context.Context, id string, patch models.TaskPatch, expectedVersion int) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, exists := s.tasks[id]
	if !exists {
		return nil, errors.ErrNotFound
	}
	if expectedVersion != 0 && stored.Version != expectedVersion {
		return nil, errors.ErrConflict
	}
	if patch.Title != nil {
		stored.Title = *patch.Title
	}
	if patch.Description != nil {
		stored.Description = *patch.Description
	}
	if patch.Status != nil {
		stored.Status = *patch.Status
	}
	stored.Version++
	stored.UpdatedAt = s.now().UTC()
	s.tasks[id] = stored
	return &stored, nil
}

func (s *Storage) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[id]; !exists {
		return errors.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *Storage) RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, exp := range s.revoked {
		if !now.Before(exp) {
			delete(s.revoked, id)
		}
	}
	s.revoked[tokenID] = expiresAt
	return nil
}

func (s *Storage) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, revoked := s.revoked[tokenID]
	return revoked, nil
}

func (s *Storage) viewLocked(t models.Task) models.TaskView {
	return models.TaskView{
		Task:         t,
		CreatorName:  s.users[t.CreatorID].Username,
		AssigneeName: s.users[t.AssigneeID].Username,
	}
}
