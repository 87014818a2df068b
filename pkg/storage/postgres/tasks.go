package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusError     = "error"
)

type Task struct {
	ID              string
	Status          string
	AIEnabled       bool
	TotalSources    int
	SuccessSources  int
	FailedSources   int
	NewArticles     int
	AnalyzedCount   int
	StartedAt       time.Time
	CompletedAt     *time.Time
	DurationSeconds float64
	ErrorMessage    string
}

type TaskLog struct {
	ID          int64
	TaskID      string
	SourceName  string
	Status      string
	ItemsFound  int
	NewArticles int
	Message     string
	CreatedAt   time.Time
}

const taskColumns = `id, status, ai_enabled, total_sources, success_sources, failed_sources,
	new_articles, analyzed_count, started_at, completed_at, duration_seconds, error_message`

type TaskRepository struct {
	db *DB
}

func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, t *Task) error {
	err := r.db.Pool().QueryRow(ctx, `
		INSERT INTO collection_tasks (id, status, ai_enabled, total_sources)
		VALUES ($1, $2, $3, $4)
		RETURNING started_at`,
		t.ID, t.Status, t.AIEnabled, t.TotalSources,
	).Scan(&t.StartedAt)
	if err != nil {
		return fmt.Errorf("create collection task: %w", err)
	}
	return nil
}

// Finish records the terminal state of a task with its final counts.
func (r *TaskRepository) Finish(ctx context.Context, t *Task) error {
	_, err := r.db.Pool().Exec(ctx, `
		UPDATE collection_tasks
		SET status = $2,
			total_sources = $3,
			success_sources = $4,
			failed_sources = $5,
			new_articles = $6,
			analyzed_count = $7,
			completed_at = $8,
			duration_seconds = $9,
			error_message = $10
		WHERE id = $1`,
		t.ID, t.Status, t.TotalSources, t.SuccessSources, t.FailedSources, t.NewArticles,
		t.AnalyzedCount, t.CompletedAt, t.DurationSeconds, t.ErrorMessage)
	if err != nil {
		return fmt.Errorf("finish collection task: %w", err)
	}
	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*Task, error) {
	row := r.db.Pool().QueryRow(ctx,
		`SELECT `+taskColumns+` FROM collection_tasks WHERE id = $1`, id)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get collection task: %w", err)
	}
	return t, nil
}

func (r *TaskRepository) ListRecent(ctx context.Context, limit int) ([]*Task, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Pool().Query(ctx,
		`SELECT `+taskColumns+` FROM collection_tasks ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list collection tasks: %w", err)
	}
	defer rows.Close()

	var result []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan collection task: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (r *TaskRepository) AddLog(ctx context.Context, l *TaskLog) error {
	err := r.db.Pool().QueryRow(ctx, `
		INSERT INTO collection_logs (task_id, source_name, status, items_found, new_articles, message)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		l.TaskID, l.SourceName, l.Status, l.ItemsFound, l.NewArticles, l.Message,
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return fmt.Errorf("add collection log: %w", err)
	}
	return nil
}

func (r *TaskRepository) ListLogs(ctx context.Context, taskID string) ([]*TaskLog, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT id, task_id, source_name, status, items_found, new_articles, message, created_at
		FROM collection_logs
		WHERE task_id = $1
		ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list collection logs: %w", err)
	}
	defer rows.Close()

	var result []*TaskLog
	for rows.Next() {
		var l TaskLog
		err := rows.Scan(&l.ID, &l.TaskID, &l.SourceName, &l.Status,
			&l.ItemsFound, &l.NewArticles, &l.Message, &l.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan collection log: %w", err)
		}
		result = append(result, &l)
	}
	return result, rows.Err()
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(
		&t.ID, &t.Status, &t.AIEnabled, &t.TotalSources, &t.SuccessSources, &t.FailedSources,
		&t.NewArticles, &t.AnalyzedCount, &t.StartedAt, &t.CompletedAt, &t.DurationSeconds, &t.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
