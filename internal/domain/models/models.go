package models

import "time"

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserSummary is the public projection of a user used by the assignee picker.
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatorID   string    `json:"creatorId"`
	AssigneeID  string    `json:"assigneeId"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TaskView is a task with the creator and assignee usernames joined in.
type TaskView struct {
	Task
	CreatorName  string `json:"creatorName"`
	AssigneeName string `json:"assigneeName"`
}

type SignupRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50,printascii"`
	Email    string `json:"email" validate:"required,max=254,email"`
	Password string `json:"password" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type CreateTaskRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=200"`
	Description string `json:"description" validate:"omitempty,max=2000"`
	AssignedTo  string `json:"assignedTo" validate:"omitempty"`
}

// UpdateTaskRequest carries a partial update. Nil fields are left untouched.
// Version, when set, must match the stored version.
type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	Status      *string `json:"status,omitempty" validate:"omitempty,oneof=pending completed"`
	Version     *int    `json:"version,omitempty" validate:"omitempty,min=1"`
}

// TaskPatch lists the task fields a store should overwrite. Nil fields keep
// whatever value is stored at write time.
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *string
}

type MessageResponse struct {
	Message string `json:"message"`
}
