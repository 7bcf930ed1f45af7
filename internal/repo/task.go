package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskhive/taskhive/internal/models"
	"github.com/taskhive/taskhive/internal/util"
)

type TaskListOptions struct {
	Page      int
	Limit     int
	Status    string
	Priority  string
	Search    string
	SortBy    string
	SortOrder string
}

var sortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"dueDate":   "due_date",
	"title":     "title",
}

func (r *GormRepo) CreateTask(ctx context.Context, t *models.Task) error {
	return r.DB.WithContext(ctx).Create(t).Error
}

func (r *GormRepo) GetTask(ctx context.Context, userID, taskID uuid.UUID) (*models.Task, error) {
	var task models.Task
	err := r.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", taskID, userID).
		First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &task, nil
}

func (r *GormRepo) ListTasks(ctx context.Context, userID uuid.UUID, opts TaskListOptions) ([]models.Task, int64, error) {
	q := r.DB.WithContext(ctx).Model(&models.Task{}).Where("user_id = ?", userID)

	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}
	if opts.Priority != "" {
		q = q.Where("priority = ?", opts.Priority)
	}
	if opts.Search != "" {
		q = q.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(opts.Search)+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column, ok := sortColumns[opts.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if opts.SortOrder == "asc" {
		direction = "ASC"
	}

	offset, limit := util.Calculate(opts.Page, opts.Limit)

	var tasks []models.Task
	err := q.Order(column + " " + direction).
		Offset(offset).
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// UpdateTask writes the given columns and reloads the row; it reports
// ErrNotFound when the task is absent or owned by someone else.
func (r *GormRepo) UpdateTask(ctx context.Context, userID, taskID uuid.UUID, fields map[string]any) (*models.Task, error) {
	result := r.DB.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND user_id = ?", taskID, userID).
		Updates(fields)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.GetTask(ctx, userID, taskID)
}

func (r *GormRepo) DeleteTask(ctx context.Context, userID, taskID uuid.UUID) error {
	result := r.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", taskID, userID).
		Delete(&models.Task{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type TaskStats struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	InProgress int64 `json:"inProgress"`
	Completed  int64 `json:"completed"`
	Urgent     int64 `json:"urgent"`
	High       int64 `json:"high"`
	Medium     int64 `json:"medium"`
	Low        int64 `json:"low"`
}

func (r *GormRepo) GetTaskStats(ctx context.Context, userID uuid.UUID) (*TaskStats, error) {
	var rows []struct {
		Status   string
		Priority string
	}
	err := r.DB.WithContext(ctx).Model(&models.Task{}).
		Select("status, priority").
		Where("user_id = ?", userID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := TaskStats{Total: int64(len(rows))}
	for _, row := range rows {
		switch row.Status {
		case models.StatusPending:
			stats.Pending++
		case models.StatusInProgress:
			stats.InProgress++
		case models.StatusCompleted:
			stats.Completed++
		}
		switch row.Priority {
		case models.PriorityUrgent:
			stats.Urgent++
		case models.PriorityHigh:
			stats.High++
		case models.PriorityMedium:
			stats.Medium++
		case models.PriorityLow:
			stats.Low++
		}
	}
	return &stats, nil
}
