package server

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"taskboard/internal/auth"
	"taskboard/internal/domain/errors"
	"taskboard/internal/domain/models"
	"taskboard/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Authenticator interface {
	Register(ctx context.Context, username, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Verify(ctx context.Context, token string) (*auth.Claims, error)
	Revoke(ctx context.Context, claims *auth.Claims) error
	Users(ctx context.Context) ([]models.UserSummary, error)
}

type TaskService interface {
	List(ctx context.Context, userID string) ([]models.TaskView, error)
	Get(ctx context.Context, userID, taskID string) (*models.TaskView, error)
	Create(ctx context.Context, userID, title, description, assigneeID string) (*models.TaskView, error)
	Update(ctx context.Context, userID, taskID string, fields service.TaskFields) (*models.TaskView, error)
	Delete(ctx context.Context, userID, taskID string) error
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second

	// storeTimeout bounds every store round trip made while serving a request.
	storeTimeout = 5 * time.Second
)

type TaskAPI struct {
	httpSrv *http.Server
	authn   Authenticator
	tasks   TaskService
	health  HealthChecker
	cfg     *Config
	log     *logrus.Entry
}

func NewTaskAPI(authn Authenticator, tasks TaskService, health HealthChecker, cfg *Config, log *logrus.Entry) *TaskAPI {
	if authn == nil || tasks == nil || health == nil || log == nil {
		return nil
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	api := &TaskAPI{
		httpSrv: &http.Server{
			Addr:              cfg.ListenAddr(),
			ReadHeaderTimeout: readHeaderTimeout,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
		},
		authn:  authn,
		tasks:  tasks,
		health: health,
		cfg:    cfg,
		log:    log.WithField("component", "http"),
	}
	api.configRoutes()
	return api
}

// Start blocks serving HTTP until Shutdown is called.
func (api *TaskAPI) Start() error {
	if api.httpSrv == nil {
		return errors.ErrInternalServer
	}
	api.log.WithField("addr", api.httpSrv.Addr).Info("http server listening")
	if err := api.httpSrv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (api *TaskAPI) Shutdown(ctx context.Context) error {
	return api.httpSrv.Shutdown(ctx)
}

// Handler exposes the router, mainly for httptest.
func (api *TaskAPI) Handler() http.Handler {
	return api.httpSrv.Handler
}

func (api *TaskAPI) configRoutes() {
	if api.cfg.Env == EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, models.MessageResponse{Message: "route not found"})
	})
	router.NoMethod(func(ctx *gin.Context) {
		ctx.JSON(http.StatusMethodNotAllowed, models.MessageResponse{Message: "method not allowed"})
	})

	router.Use(
		Recovery(api.log),
		RequestLogger(api.log),
		CORS(api.cfg.AllowedOrigins),
		GzipRequestDecompress(),
		GzipResponseCompress(),
	)

	router.GET("/healthz", api.healthz)

	apiGroup := router.Group("/api")

	authGroup := apiGroup.Group("/auth")
	{
		authGroup.POST("/signup", api.signup)
		authGroup.POST("/login", api.login)
		authGroup.POST("/logout", RequireAuth(api.authn, api.log), api.logout)
		authGroup.GET("/users", RequireAuth(api.authn, api.log), api.users)
	}

	todos := apiGroup.Group("/todos", RequireAuth(api.authn, api.log))
	{
		todos.GET("", api.listTodos)
		todos.GET("/:id", api.getTodo)
		todos.POST("", api.createTodo)
		todos.PUT("/:id", api.updateTodo)
		todos.DELETE("/:id", api.deleteTodo)
	}

	api.httpSrv.Handler = router
}
