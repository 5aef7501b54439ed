package server

import (
	"context"
	"net/http"

	"taskboard/internal/auth"
	"taskboard/internal/domain/errors"
	"taskboard/internal/domain/models"
	"taskboard/internal/service"

	"github.com/gin-gonic/gin"
)

func (api *TaskAPI) storeContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), storeTimeout)
}

func (api *TaskAPI) healthz(ctx *gin.Context) {
	c, cancel := api.storeContext(ctx)
	defer cancel()

	if err := api.health.Ping(c); err != nil {
		api.log.WithError(err).Error("health check failed")
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (api *TaskAPI) signup(ctx *gin.Context) {
	var req models.SignupRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondError(ctx, api.log, errors.ErrBadRequest)
		return
	}

	c, cancel := api.storeContext(ctx)
	defer cancel()

	if _, err := api.authn.Register(c, req.Username, req.Email, req.Password); err != nil {
		respondError(ctx, api.log, err)
		return
	}
	ctx.JSON(http.StatusCreated, models.MessageResponse{Message: "user created"})
}

func (api *TaskAPI) login(ctx *gin.Context) {
	var req models.LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondError(ctx, api.log, errors.ErrBadRequest)
		return
	}

	c, cancel := api.storeContext(ctx)
	defer cancel()

	session, err := api.authn.Login(c, req.Email, req.Password)
	if err != nil {
		respondError(ctx, api.log, err)
		return
	}
	ctx.JSON(http.StatusOK, models.LoginResponse{
		Token:     session.Token,
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt,
	})
}

func (api *TaskAPI) logout(ctx *gin.Context) {
	claims, ok := ctx.Get(ctxClaimsKey)
	if !ok {
		respondError(ctx, api.log, errors.ErrMissingToken)
		return
	}

	c, cancel := api.storeContext(ctx)
	defer cancel()

	if err := api.authn.Revoke(c, claims.(*auth.Claims)); err != nil {
		respondError(ctx, api.log, err)
		return
	}
	ctx.JSON(http.StatusOK, models.MessageResponse{Message: "logged out"})
}

func (api *TaskAPI) users(ctx *gin.Context) {
	c, cancel := api.storeContext(ctx)
	defer cancel()

	users, err := api.authn.Users(c)
	if err != nil {
		respondError(ctx, api.log, err)
		return
	}
	if users == nil {
		users = []models.UserSummary{}
	}
	ctx.JSON(http.StatusOK, users)
}

func (api *TaskAPI) listTodos(ctx *gin.Context) {
	c, cancel := api.storeContext(ctx)
	defer cancel()

	tasks, err := api.tasks.List(c, ctx.GetString(ctxUserIDKey))
	if err != nil {
		respondError(ctx, api.log, err)
		return
	}
	if tasks == nil {
		tasks = []models.TaskView{}
	}
	ctx.JSON(http.StatusOK, tasks)
}

func (api *TaskAPI) getTodo(ctx *gin.Context) {
	c, cancel := api.storeContext(ctx)
	defer cancel()

	task, err := api.tasks.Get(c, ctx.GetString(ctxUserIDKey), ctx.Param("id"))
	if err != nil {
		respondError(ctx, api.log, err)
		return
	}
	ctx.JSON(http.StatusOK, task)
}

func (api *TaskAPI) createTodo(ctx *gin.Context) {
	var req models.CreateTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondError(ctx, api.log, errors.ErrBadRequest)
		return
	}

	c, cancel := api.storeContext(ctx)
	defer cancel()

	task, err := api.tasks.Create(c, ctx.GetString(ctxUserIDKey), req.Title, req.Description, req.AssignedTo)
	if err != nil {
		respondError(ctx, api.log, err)
		return
	}
	ctx.JSON(http.StatusCreated, task)
}

func (api *TaskAPI) updateTodo(ctx *gin.Context) {
	var req models.UpdateTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondError(ctx, api.log, errors.ErrBadRequest)
		return
	}
	if err := models.Validate(req); err != nil {
		respondError(ctx, api.log, err)
		return
	}

	fields := service.TaskFields{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	}
	if req.Version != nil {
		fields.Version = *req.Version
	}

	c, cancel := api.storeContext(ctx)
	defer cancel()

	task, err := api.tasks.Update(c, ctx.GetString(ctxUserIDKey), ctx.Param("id"), fields)
	if err != nil {
		respondError(ctx, api.log, err)
		return
	}
	ctx.JSON(http.StatusOK, task)
}

func (api *TaskAPI) deleteTodo(ctx *gin.Context) {
	c, cancel := api.storeContext(ctx)
	defer cancel()

	if err := api.tasks.Delete(c, ctx.GetString(ctxUserIDKey), ctx.Param("id")); err != nil {
		respondError(ctx, api.log, err)
		return
	}
	ctx.JSON(http.StatusOK, models.MessageResponse{Message: "task deleted"})
}
