package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/taskhive/taskhive/internal/events"
	"github.com/taskhive/taskhive/internal/logging"
	authmw "github.com/taskhive/taskhive/internal/middleware/auth"
	"github.com/taskhive/taskhive/internal/models"
	"github.com/taskhive/taskhive/internal/repo"
	"github.com/taskhive/taskhive/internal/search"
)

type TaskHandler struct {
	Repo     *repo.GormRepo
	Producer *events.Producer
	Indexer  *search.Indexer
}

var (
	validStatuses = map[string]bool{
		models.StatusPending:    true,
		models.StatusInProgress: true,
		models.StatusCompleted:  true,
	}
	validPriorities = map[string]bool{
		models.PriorityLow:    true,
		models.PriorityMedium: true,
		models.PriorityHigh:   true,
		models.PriorityUrgent: true,
	}
	validSortKeys = map[string]bool{
		"createdAt": true,
		"updatedAt": true,
		"dueDate":   true,
		"title":     true,
	}
)

func principal(c echo.Context) (uuid.UUID, error) {
	userID, ok := authmw.UserID(c)
	if !ok {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "request not authenticated")
	}
	return userID, nil
}

func parseDueDate(raw string) (*time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		// Accept bare dates too, the way the dashboard submits them.
		t, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func (h *TaskHandler) CreateTask(c echo.Context) error {
	userID, err := principal(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "task_create")

	var req struct {
		Title       string  `json:"title"`
		Description *string `json:"description"`
		Priority    string  `json:"priority"`
		DueDate     *string `json:"dueDate"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Title is required")
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !validPriorities[priority] {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid priority")
	}

	task := models.Task{
		UserID:   userID,
		Title:    title,
		Status:   models.StatusPending,
		Priority: priority,
	}
	if req.Description != nil {
		if desc := strings.TrimSpace(*req.Description); desc != "" {
			task.Description = &desc
		}
	}
	if req.DueDate != nil && *req.DueDate != "" {
		due, err := parseDueDate(*req.DueDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid due date format")
		}
		task.DueDate = due
	}

	if err := h.Repo.CreateTask(ctx, &task); err != nil {
		l.Error("task_create_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}

	h.index(c, &task)
	h.publish(c, events.TaskEvents, userID.String(), echo.Map{
		"type":   "task_created",
		"taskId": task.ID,
		"userId": userID,
	})

	l.Info("task_created", "task_id", task.ID)
	return c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) ListTasks(c echo.Context) error {
	userID, err := principal(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	opts := repo.TaskListOptions{Page: 1, Limit: 10, SortBy: "createdAt", SortOrder: "desc"}

	if raw := c.QueryParam("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid pagination parameters")
		}
		opts.Page = n
	}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid pagination parameters")
		}
		opts.Limit = n
	}
	if status := c.QueryParam("status"); status != "" {
		if !validStatuses[status] {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid status")
		}
		opts.Status = status
	}
	if priority := c.QueryParam("priority"); priority != "" {
		if !validPriorities[priority] {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid priority")
		}
		opts.Priority = priority
	}
	if sortBy := c.QueryParam("sortBy"); sortBy != "" {
		if !validSortKeys[sortBy] {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid sort key")
		}
		opts.SortBy = sortBy
	}
	if sortOrder := c.QueryParam("sortOrder"); sortOrder != "" {
		if sortOrder != "asc" && sortOrder != "desc" {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid sort order")
		}
		opts.SortOrder = sortOrder
	}
	opts.Search = c.QueryParam("search")

	tasks, total, err := h.Repo.ListTasks(ctx, userID, opts)
	if err != nil {
		logging.FromContext(ctx).Error("task_list_failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}

	totalPages := (total + int64(opts.Limit) - 1) / int64(opts.Limit)
	return c.JSON(http.StatusOK, echo.Map{
		"tasks": tasks,
		"pagination": echo.Map{
			"page":       opts.Page,
			"limit":      opts.Limit,
			"total":      total,
			"totalPages": totalPages,
			"hasNext":    int64(opts.Page) < totalPages,
			"hasPrev":    opts.Page > 1,
		},
	})
}

func (h *TaskHandler) GetTask(c echo.Context) error {
	userID, err := principal(c)
	if err != nil {
		return err
	}

	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
	}

	task, err := h.Repo.GetTask(c.Request().Context(), userID, taskID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Task not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}
	return c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) PatchTask(c echo.Context) error {
	userID, err := principal(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
	}

	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Status      *string `json:"status"`
		Priority    *string `json:"priority"`
		DueDate     *string `json:"dueDate"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	fields := map[string]any{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "Title cannot be empty")
		}
		fields["title"] = title
	}
	if req.Description != nil {
		if desc := strings.TrimSpace(*req.Description); desc != "" {
			fields["description"] = desc
		} else {
			fields["description"] = nil
		}
	}
	if req.Status != nil {
		if !validStatuses[*req.Status] {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid status")
		}
		fields["status"] = *req.Status
	}
	if req.Priority != nil {
		if !validPriorities[*req.Priority] {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid priority")
		}
		fields["priority"] = *req.Priority
	}
	if req.DueDate != nil {
		if *req.DueDate == "" {
			fields["due_date"] = nil
		} else {
			due, err := parseDueDate(*req.DueDate)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "Invalid due date format")
			}
			fields["due_date"] = due
		}
	}

	if len(fields) == 0 {
		task, err := h.Repo.GetTask(ctx, userID, taskID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "Task not found")
			}
			return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
		}
		return c.JSON(http.StatusOK, task)
	}

	task, err := h.Repo.UpdateTask(ctx, userID, taskID, fields)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Task not found")
		}
		logging.FromContext(ctx).Error("task_update_failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}

	h.index(c, task)
	h.publish(c, events.TaskEvents, userID.String(), echo.Map{
		"type":   "task_updated",
		"taskId": task.ID,
		"userId": userID,
	})
	return c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(c echo.Context) error {
	userID, err := principal(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
	}

	if err := h.Repo.DeleteTask(ctx, userID, taskID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Task not found")
		}
		logging.FromContext(ctx).Error("task_delete_failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}

	if err := h.Indexer.DeleteTask(ctx, taskID.String()); err != nil {
		logging.FromContext(ctx).Error("task_index_delete_failed", "task_id", taskID, "error", err)
	}
	h.publish(c, events.TaskEvents, userID.String(), echo.Map{
		"type":   "task_deleted",
		"taskId": taskID,
		"userId": userID,
	})
	return c.JSON(http.StatusOK, echo.Map{"message": "Task deleted successfully"})
}

// ToggleTask advances the status cycle pending → in-progress → completed →
// pending.
func (h *TaskHandler) ToggleTask(c echo.Context) error {
	userID, err := principal(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
	}

	task, err := h.Repo.GetTask(ctx, userID, taskID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Task not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}

	var next string
	switch task.Status {
	case models.StatusPending:
		next = models.StatusInProgress
	case models.StatusInProgress:
		next = models.StatusCompleted
	default:
		next = models.StatusPending
	}

	task, err = h.Repo.UpdateTask(ctx, userID, taskID, map[string]any{"status": next})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Task not found")
		}
		logging.FromContext(ctx).Error("task_toggle_failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}

	h.index(c, task)
	h.publish(c, events.TaskEvents, userID.String(), echo.Map{
		"type":   "task_toggled",
		"taskId": task.ID,
		"userId": userID,
		"status": task.Status,
	})
	return c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) Stats(c echo.Context) error {
	userID, err := principal(c)
	if err != nil {
		return err
	}

	stats, err := h.Repo.GetTaskStats(c.Request().Context(), userID)
	if err != nil {
		logging.FromContext(c.Request().Context()).Error("task_stats_failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *TaskHandler) index(c echo.Context, task *models.Task) {
	ctx := c.Request().Context()
	if err := h.Indexer.IndexTask(ctx, task); err != nil {
		logging.FromContext(ctx).Error("task_index_failed", "task_id", task.ID, "error", err)
	}
}

func (h *TaskHandler) publish(c echo.Context, topic, key string, event any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Producer.PublishEvent(ctx, topic, key, event); err != nil {
		logging.FromContext(c.Request().Context()).Error("event_publish_failed", "topic", topic, "error", err)
	}
}
