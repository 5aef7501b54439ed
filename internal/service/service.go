package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"taskboard/internal/domain/errors"
	"taskboard/internal/domain/models"
	"taskboard/internal/policy"

	"github.com/sirupsen/logrus"
)

type TaskRepository interface {
	CreateTask(ctx context.Context, task *models.Task) error
	GetTaskByID(ctx context.Context, id string) (*models.TaskView, error)
	ListTasksForUser(ctx context.Context, userID string) ([]models.TaskView, error)
	UpdateTask(ctx context.Context, id string, patch models.TaskPatch, expectedVersion int) (*models.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// TaskFields is a partial update; nil fields are left as stored.
type TaskFields struct {
	Title       *string
	Description *string
	Status      *string
	// Version, when non-zero, must equal the stored version.
	Version int
}

type TaskService struct {
	tasks TaskRepository
	users UserLookup
	log   *logrus.Entry
}

func NewTaskService(tasks TaskRepository, users UserLookup, log *logrus.Entry) *TaskService {
	return &TaskService{
		tasks: tasks,
		users: users,
		log:   log.WithField("component", "tasks"),
	}
}

// List returns every task userID created or is assigned to.
func (s *TaskService) List(ctx context.Context, userID string) ([]models.TaskView, error) {
	tasks, err := s.tasks.ListTasksForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return policy.Visible(tasks, userID), nil
}

func (s *TaskService) Get(ctx context.Context, userID, taskID string) (*models.TaskView, error) {
	view, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(&view.Task, userID, policy.Read); err != nil {
		return nil, err
	}
	return view, nil
}

// Create stores a new pending task owned by userID. An empty assigneeID
// assigns the task to its creator.
func (s *TaskService) Create(ctx context.Context, userID, title, description, assigneeID string) (*models.TaskView, error) {
	const op = "service.Create"
	log := s.log.WithFields(logrus.Fields{"operation": op, "user_id": userID})

	if err := policy.Authorize(nil, userID, policy.Create); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if err := models.Validate(models.CreateTaskRequest{Title: title, Description: description}); err != nil {
		return nil, err
	}

	assigneeID = strings.TrimSpace(assigneeID)
	if assigneeID == "" {
		assigneeID = userID
	}
	if assigneeID != userID {
		if _, err := s.users.GetUserByID(ctx, assigneeID); err != nil {
			if stderrors.Is(err, errors.ErrUnknownUser) {
				return nil, errors.ErrInvalidAssignee
			}
			return nil, fmt.Errorf("%s: lookup assignee: %w", op, err)
		}
	}

	task := &models.Task{
		Title:       title,
		Description: description,
		Status:      models.StatusPending,
		CreatorID:   userID,
		AssigneeID:  assigneeID,
	}
	if err := s.tasks.CreateTask(ctx, task); err != nil {
		if stderrors.Is(err, errors.ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log.WithField("task_id", task.ID).Info("task created")
	return s.load(ctx, task.ID)
}

// Update applies title, description and status changes to a task userID
// participates in.
func (s *TaskService) Update(ctx context.Context, userID, taskID string, fields TaskFields) (*models.TaskView, error) {
	const op = "service.Update"
	log := s.log.WithFields(logrus.Fields{"operation": op, "user_id": userID, "task_id": taskID})

	view, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(&view.Task, userID, policy.Update); err != nil {
		log.Warn("update denied")
		return nil, err
	}

	var patch models.TaskPatch
	if fields.Title != nil {
		title := strings.TrimSpace(*fields.Title)
		if title == "" {
			return nil, errors.ErrInvalidTitle
		}
		patch.Title = &title
	}
	if fields.Description != nil {
		description := *fields.Description
		patch.Description = &description
	}
	if fields.Status != nil {
		if !validStatus(*fields.Status) {
			return nil, errors.ErrInvalidStatus
		}
		status := *fields.Status
		patch.Status = &status
	}
	if err := models.Validate(models.UpdateTaskRequest{Title: patch.Title, Description: patch.Description}); err != nil {
		return nil, err
	}

	// Fields left nil keep whatever the store holds at write time.
	task, err := s.tasks.UpdateTask(ctx, taskID, patch, fields.Version)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) || stderrors.Is(err, errors.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("task updated")
	return &models.TaskView{Task: *task, CreatorName: view.CreatorName, AssigneeName: view.AssigneeName}, nil
}

// Delete removes a task. Only its creator may do so.
func (s *TaskService) Delete(ctx context.Context, userID, taskID string) error {
	const op = "service.Delete"
	log := s.log.WithFields(logrus.Fields{"operation": op, "user_id": userID, "task_id": taskID})

	view, err := s.load(ctx, taskID)
	if err != nil {
		return err
	}
	if err := policy.Authorize(&view.Task, userID, policy.Delete); err != nil {
		log.Warn("delete denied")
		return err
	}
	if err := s.tasks.DeleteTask(ctx, taskID); err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info("task deleted")
	return nil
}

func (s *TaskService) load(ctx context.Context, taskID string) (*models.TaskView, error) {
	view, err := s.tasks.GetTaskByID(ctx, taskID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return nil, errors.ErrNotFound
		}
		return nil, fmt.Errorf("load task %s: %w", taskID, err)
	}
	return view, nil
}

func validStatus(status string) bool {
	return status == models.StatusPending || status == models.StatusCompleted
}
