// Package api exposes the task services over HTTP with gin.
package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-tasks/internal/activity"
	"github.com/celerix-dev/celerix-tasks/internal/analytics"
	"github.com/celerix-dev/celerix-tasks/internal/apperr"
	"github.com/celerix-dev/celerix-tasks/internal/auth"
	"github.com/celerix-dev/celerix-tasks/internal/store"
	"github.com/celerix-dev/celerix-tasks/internal/tasks"
	"github.com/celerix-dev/celerix-tasks/internal/workflow"
	"github.com/celerix-dev/celerix-tasks/pkg/schema"
)

const identityKey = "identity"

// Handler serves every route. All fields are required.
type Handler struct {
	Store     store.Store
	Auth      *auth.Service
	Workflows *workflow.Service
	Tasks     *tasks.Service
	Analytics *analytics.Service
	Activity  *activity.Recorder
	Log       *slog.Logger
}

// NewRouter builds the gin engine with middleware and routes attached.
func NewRouter(h *Handler) *gin.Engine {
	if h.Log == nil {
		h.Log = slog.Default()
	}
	registerValidators()

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.Log), cors())

	r.GET("/health", h.Health)

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)
		authGroup.GET("/profile", h.authenticate, h.Profile)
	}

	privileged := requireRole(schema.RoleAdmin, schema.RoleManager)

	wf := r.Group("/workflows", h.authenticate)
	{
		wf.POST("", privileged, h.CreateWorkflow)
		wf.GET("", h.ListWorkflows)
		wf.GET("/:id", h.GetWorkflow)
		wf.PUT("/:id", privileged, h.UpdateWorkflow)
		wf.DELETE("/:id", privileged, h.DeleteWorkflow)
	}

	t := r.Group("/tasks", h.authenticate)
	{
		t.POST("", h.CreateTask)
		t.GET("", h.ListTasks)
		t.GET("/analytics/overview", h.AnalyticsOverview)
		t.GET("/:id", h.GetTask)
		t.PUT("/:id", h.UpdateTask)
		t.PATCH("/:id/stage", h.AdvanceStage)
		t.DELETE("/:id", privileged, h.DeleteTask)
	}

	n := r.Group("/notifications", h.authenticate)
	{
		n.GET("", h.ListNotifications)
		n.PATCH("/:id/read", h.MarkNotificationRead)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Route not found"})
	})

	return r
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.LogAttrs(c.Request.Context(), level, "request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		)
	}
}

// authenticate resolves the bearer token into an Identity stored on the context.
func (h *Handler) authenticate(c *gin.Context) {
	token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	id, err := h.Auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Set(identityKey, id)
	c.Next()
}

func requireRole(roles ...schema.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identity(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "Authentication required")
			return
		}
		for _, r := range roles {
			if id.Role == r {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "Insufficient permissions")
	}
}

func identity(c *gin.Context) (schema.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return schema.Identity{}, false
	}
	id, ok := v.(schema.Identity)
	return id, ok
}

// actor is identity for handlers behind authenticate.
func actor(c *gin.Context) schema.Identity {
	id, _ := identity(c)
	return id
}

func (h *Handler) Health(c *gin.Context) {
	connected := h.Store.Ping(c.Request.Context()) == nil
	if !connected {
		h.Log.WarnContext(c.Request.Context(), "store ping failed")
	}
	c.JSON(http.StatusOK, gin.H{
		"status":            "OK",
		"message":           "celerix-tasks API is running",
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
		"databaseConnected": connected,
	})
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func okMessage(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data, "message": message})
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

// fail writes err as an error envelope. Internal errors are logged and their
// detail withheld from the client.
func (h *Handler) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.Log.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
	}
	abort(c, status, apperr.Message(err))
}
