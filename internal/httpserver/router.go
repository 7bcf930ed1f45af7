package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/taskhive/taskhive/internal/handlers"
	authmw "github.com/taskhive/taskhive/internal/middleware/auth"
)

type Deps struct {
	DB            *gorm.DB
	AuthHandler   *handlers.AuthHandler
	TaskHandler   *handlers.TaskHandler
	SearchHandler *handlers.SearchHandler
	AuthGate      *authmw.Middleware
}

func Register(e *echo.Echo, d *Deps) {
	e.HTTPErrorHandler = ErrorHandler

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	auth := e.Group("/auth")
	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/logout", d.AuthHandler.LogOut)
	auth.POST("/refresh", d.AuthHandler.Refresh)

	tasks := e.Group("/tasks", d.AuthGate.RequireLogin)
	tasks.POST("", d.TaskHandler.CreateTask)
	tasks.GET("", d.TaskHandler.ListTasks)
	tasks.GET("/stats", d.TaskHandler.Stats)
	tasks.GET("/search", d.SearchHandler.Search)
	tasks.GET("/:id", d.TaskHandler.GetTask)
	tasks.PATCH("/:id", d.TaskHandler.PatchTask)
	tasks.DELETE("/:id", d.TaskHandler.DeleteTask)
	tasks.POST("/:id/toggle", d.TaskHandler.ToggleTask)
}

// ErrorHandler renders every error as {"error": "<message>"} with the proper
// status, so clients see one envelope from validation, auth, and panics alike.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		msg = fmt.Sprintf("%v", he.Message)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, echo.Map{"error": msg})
}
