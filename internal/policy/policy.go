// Package policy decides whether a user may act on a task.
//
// A task has two participants, its creator and its assignee (possibly the
// same user). Participants may read and update the task; only the creator
// may delete it. Creation is open to any authenticated user.
package policy

import (
	"taskboard/internal/domain/errors"
	"taskboard/internal/domain/models"
)

type Operation string

const (
	Read   Operation = "read"
	Create Operation = "create"
	Update Operation = "update"
	Delete Operation = "delete"
)

// IsParticipant reports whether userID is the creator or the assignee of task.
func IsParticipant(task *models.Task, userID string) bool {
	return userID != "" && (task.CreatorID == userID || task.AssigneeID == userID)
}

// Authorize returns nil when userID may perform op on task, errors.ErrNotFound
// for a nil task and errors.ErrForbidden otherwise. For Create the task is the
// draft being created and is always allowed.
func Authorize(task *models.Task, userID string, op Operation) error {
	if op == Create {
		if userID == "" {
			return errors.ErrForbidden
		}
		return nil
	}
	if task == nil {
		return errors.ErrNotFound
	}

	switch op {
	case Read, Update:
		if IsParticipant(task, userID) {
			return nil
		}
	case Delete:
		if userID != "" && task.CreatorID == userID {
			return nil
		}
	}
	return errors.ErrForbidden
}

// Visible filters tasks down to those userID may read.
func Visible(tasks []models.TaskView, userID string) []models.TaskView {
	out := make([]models.TaskView, 0, len(tasks))
	for i := range tasks {
		if IsParticipant(&tasks[i].Task, userID) {
			out = append(out, tasks[i])
		}
	}
	return out
}
