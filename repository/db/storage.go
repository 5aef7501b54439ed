package db

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"taskboard/internal/domain/errors"
	"taskboard/internal/domain/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

const (
	queryTimeout     = 15 * time.Second
	pruneQueueSize   = 10
	uniqueViolation  = "23505"
	foreignKeyAbsent = "23503"
)

const taskViewColumns = `t.id, t.title, t.description, t.status, t.creator_id, t.assignee_id,
	t.version, t.created_at, t.updated_at, c.username, a.username`

const taskColumns = `id, title, description, status, creator_id, assignee_id, version, created_at, updated_at`

// taskPatchSet leaves a column alone when its parameter is NULL.
const taskPatchSet = `title = COALESCE($1, title), description = COALESCE($2, description),
	status = COALESCE($3, status), version = version + 1, updated_at = now()`

const taskViewFrom = `FROM tasks t
	JOIN users c ON c.id = t.creator_id
	JOIN users a ON a.id = t.assignee_id`

type Storage struct {
	pool *pgxpool.Pool
	log  *logrus.Entry

	qCreateUser       string
	qGetUserByID      string
	qGetUserByEmail   string
	qListUsers        string
	qCreateTask       string
	qGetTaskByID      string
	qListTasksForUser string
	qUpdateTask       string
	qUpdateTaskCAS    string
	qDeleteTask       string
	qRevokeToken      string
	qIsTokenRevoked   string

	// pruneQueue counts revocations since the last prune of expired rows.
	pruneQueue chan struct{}
}

func NewStorage(ctx context.Context, connStr string, log *logrus.Entry) (*Storage, error) {
	log = log.WithField("component", "db")

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.WithError(err).Error("failed to configure connection pool")
		return nil, fmt.Errorf("%w: %v", errors.ErrDatabaseConnection, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		log.WithError(err).Error("failed to reach database")
		return nil, fmt.Errorf("%w: %v", errors.ErrDatabaseConnection, err)
	}

	s := &Storage{
		pool:              pool,
		log:               log,
		qCreateUser:       `INSERT INTO users (id, username, email, password_hash) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		qGetUserByID:      `SELECT id, username, email, password_hash, created_at FROM users WHERE id = $1`,
		qGetUserByEmail:   `SELECT id, username, email, password_hash, created_at FROM users WHERE lower(email) = lower($1)`,
		qListUsers:        `SELECT id, username FROM users ORDER BY username, id`,
		qCreateTask:       `INSERT INTO tasks (id, title, description, status, creator_id, assignee_id) VALUES ($1, $2, $3, $4, $5, $6) RETURNING version, created_at, updated_at`,
		qGetTaskByID:      `SELECT ` + taskViewColumns + ` ` + taskViewFrom + ` WHERE t.id = $1`,
		qListTasksForUser: `SELECT ` + taskViewColumns + ` ` + taskViewFrom + ` WHERE t.creator_id = $1 OR t.assignee_id = $1 ORDER BY t.created_at, t.id`,
		qUpdateTask:       `UPDATE tasks SET ` + taskPatchSet + ` WHERE id = $4 RETURNING ` + taskColumns,
		qUpdateTaskCAS:    `UPDATE tasks SET ` + taskPatchSet + ` WHERE id = $4 AND version = $5 RETURNING ` + taskColumns,
		qDeleteTask:       `DELETE FROM tasks WHERE id = $1`,
		qRevokeToken:      `INSERT INTO revoked_tokens (token_id, expires_at) VALUES ($1, $2) ON CONFLICT (token_id) DO NOTHING`,
		qIsTokenRevoked:   `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_id = $1)`,
		pruneQueue:        make(chan struct{}, pruneQueueSize),
	}
	log.Info("database connection established")
	return s, nil
}

func (s *Storage) Close() {
	s.pool.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	err := s.pool.QueryRow(ctx, s.qCreateUser, user.ID, user.Username, user.Email, user.PasswordHash).Scan(&user.CreatedAt)
	if err != nil {
		if isPgCode(err, uniqueViolation) {
			s.log.WithField("email", user.Email).Debug("duplicate email on insert")
			return errors.ErrDuplicateEmail
		}
		s.log.WithError(err).Error("failed to create user")
		return fmt.Errorf("create user: %w", err)
	}
	s.log.WithField("user_id", user.ID).Debug("user created")
	return nil
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, s.qGetUserByID, id)
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, s.qGetUserByEmail, email)
}

func (s *Storage) getUser(ctx context.Context, query, arg string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	user := &models.User{}
	err := s.pool.QueryRow(ctx, query, arg).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrUnknownUser
		}
		s.log.WithError(err).Error("failed to load user")
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *Storage) ListUsers(ctx context.Context) ([]models.UserSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := s.pool.Query(ctx, s.qListUsers)
	if err != nil {
		s.log.WithError(err).Error("failed to list users")
		return nil, fmt.Errorf("list users: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.UserSummary, error) {
		var u models.UserSummary
		err := row.Scan(&u.ID, &u.Username)
		return u, err
	})
	if err != nil {
		s.log.WithError(err).Error("failed to read users")
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *Storage) CreateTask(ctx context.Context, task *models.Task) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	task.ID = uuid.New().String()
	err := s.pool.QueryRow(ctx, s.qCreateTask,
		task.ID, task.Title, task.Description, task.Status, task.CreatorID, task.AssigneeID,
	).Scan(&task.Version, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		if isPgCode(err, foreignKeyAbsent) {
			return errors.ErrInvalidAssignee
		}
		s.log.WithError(err).Error("failed to create task")
		return fmt.Errorf("create task: %w", err)
	}
	s.log.WithField("task_id", task.ID).Debug("task created")
	return nil
}

func (s *Storage) GetTaskByID(ctx context.Context, id string) (*models.TaskView, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.ErrNotFound
	}
	view, err := scanTaskView(s.pool.QueryRow(ctx, s.qGetTaskByID, id))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrNotFound
		}
		s.log.WithError(err).WithField("task_id", id).Error("failed to load task")
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &view, nil
}

func (s *Storage) ListTasksForUser(ctx context.Context, userID string) ([]models.TaskView, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := s.pool.Query(ctx, s.qListTasksForUser, userID)
	if err != nil {
		s.log.WithError(err).Error("failed to list tasks")
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.TaskView, error) {
		return scanTaskView(row)
	})
	if err != nil {
		s.log.WithError(err).Error("failed to read tasks")
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	s.log.WithField("count", len(tasks)).Debug("tasks listed")
	return tasks, nil
}

func (s *Storage) UpdateTask(ctx context.Context, id string, patch models.TaskPatch, expectedVersion int) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.ErrNotFound
	}

	var row pgx.Row
	if expectedVersion != 0 {
		row = s.pool.QueryRow(ctx, s.qUpdateTaskCAS, patch.Title, patch.Description, patch.Status, id, expectedVersion)
	} else {
		row = s.pool.QueryRow(ctx, s.qUpdateTask, patch.Title, patch.Description, patch.Status, id)
	}
	var task models.Task
	err := row.Scan(
		&task.ID, &task.Title, &task.Description, &task.Status, &task.CreatorID, &task.AssigneeID,
		&task.Version, &task.CreatedAt, &task.UpdatedAt,
	)
	if err == nil {
		s.log.WithField("task_id", id).Debug("task updated")
		return &task, nil
	}
	if !stderrors.Is(err, pgx.ErrNoRows) {
		s.log.WithError(err).WithField("task_id", id).Error("failed to update task")
		return nil, fmt.Errorf("update task: %w", err)
	}
	if expectedVersion == 0 {
		return nil, errors.ErrNotFound
	}
	// The row is either gone or at another version.
	if _, err := s.GetTaskByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, errors.ErrConflict
}

func (s *Storage) DeleteTask(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	ct, err := s.pool.Exec(ctx, s.qDeleteTask, id)
	if err != nil {
		s.log.WithError(err).WithField("task_id", id).Error("failed to delete task")
		return fmt.Errorf("delete task: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return errors.ErrNotFound
	}
	s.log.WithField("task_id", id).Debug("task deleted")
	return nil
}

func (s *Storage) RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if _, err := s.pool.Exec(ctx, s.qRevokeToken, tokenID, expiresAt); err != nil {
		s.log.WithError(err).Error("failed to revoke token")
		return fmt.Errorf("revoke token: %w", err)
	}
	s.enqueuePruneOrFlush(ctx)
	return nil
}

func (s *Storage) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var revoked bool
	if err := s.pool.QueryRow(ctx, s.qIsTokenRevoked, tokenID).Scan(&revoked); err != nil {
		s.log.WithError(err).Error("failed to check token revocation")
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return revoked, nil
}

// enqueuePruneOrFlush records one revocation; once pruneQueueSize
// revocations have accumulated, expired rows are deleted in one statement.
func (s *Storage) enqueuePruneOrFlush(ctx context.Context) {
	select {
	case s.pruneQueue <- struct{}{}:
		return
	default:
	}
	s.drainPruneQueue()
	affected, err := s.pruneExpiredRevocations(ctx)
	if err != nil {
		s.log.WithError(err).Warn("failed to prune expired revocations")
		return
	}
	if affected > 0 {
		s.log.WithField("count", affected).Info("pruned expired revocations")
	}
}

func (s *Storage) drainPruneQueue() {
	for {
		select {
		case <-s.pruneQueue:
		default:
			return
		}
	}
}

func (s *Storage) pruneExpiredRevocations(ctx context.Context) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	ct, err := tx.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= now()`)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func scanTaskView(row pgx.Row) (models.TaskView, error) {
	var v models.TaskView
	err := row.Scan(
		&v.ID, &v.Title, &v.Description, &v.Status, &v.CreatorID, &v.AssigneeID,
		&v.Version, &v.CreatedAt, &v.UpdatedAt, &v.CreatorName, &v.AssigneeName,
	)
	return v, err
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == code
}
