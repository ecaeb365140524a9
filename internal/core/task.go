package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/automation/internal/model"
)

// TaskService gives the engine the minimal task and project access its
// triggers and actions need.
type TaskService struct {
	db DB
}

func NewTaskService(db DB) *TaskService {
	return &TaskService{db: db}
}

// TaskStatus returns the current status of a task. ok is false when the
// task does not exist in the tenant.
func (s *TaskService) TaskStatus(ctx context.Context, tenantID, taskID string) (string, bool, error) {
	var status string
	err := s.db.QueryRow(ctx,
		`SELECT status FROM tasks WHERE tenant_id = $1 AND id = $2`, tenantID, taskID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get task %s status: %w", taskID, err)
	}
	return status, true, nil
}

func (s *TaskService) ProjectExists(ctx context.Context, tenantID, projectID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM projects WHERE tenant_id = $1 AND id = $2)`, tenantID, projectID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check project %s: %w", projectID, err)
	}
	return exists, nil
}

func (s *TaskService) Create(ctx context.Context, t *model.Task) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO tasks (id, project_id, tenant_id, title, description, status, priority, assigned_to_id, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.ProjectID, t.TenantID, t.Title, t.Description, t.Status, t.Priority,
		t.AssignedToID, t.CreatedBy, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *TaskService) UpdateStatus(ctx context.Context, tenantID, taskID, status string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE tasks SET status = $1, updated_at = now() WHERE tenant_id = $2 AND id = $3`,
		status, tenantID, taskID,
	)
	if err != nil {
		return fmt.Errorf("update task %s status: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update task %s status: %w", taskID, ErrNotFound)
	}
	return nil
}

func (s *TaskService) Assign(ctx context.Context, tenantID, taskID, userID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE tasks SET assigned_to_id = $1, updated_at = now() WHERE tenant_id = $2 AND id = $3`,
		userID, tenantID, taskID,
	)
	if err != nil {
		return fmt.Errorf("assign task %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("assign task %s: %w", taskID, ErrNotFound)
	}
	return nil
}
