// Package scheduledtasks stores delayed side effects as durable rows so a
// restart cannot drop them, and runs them from the cron worker.
package scheduledtasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/pkg/config"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
)

// ScheduleInput describes one task. DedupeKey makes repeated scheduling a
// no-op.
type ScheduleInput struct {
	Kind      enums.ScheduledTaskKind
	DedupeKey string
	DueAt     time.Time
	Payload   any
}

// Scheduler is the dependency other services take to enqueue work inside
// their own transaction.
type Scheduler interface {
	Schedule(ctx context.Context, tx *gorm.DB, in ScheduleInput) error
}

// Handler runs one task. Returning an error with a validation, not-found or
// consistency code fails the task without retry.
type Handler func(ctx context.Context, task models.ScheduledTask) error

type Result struct {
	Done    int
	Retried int
	Failed  int
}

type ServiceParams struct {
	Repo   *Repository
	Config config.TasksConfig
	Logger *logger.Logger
}

type Service struct {
	repo     *Repository
	cfg      config.TasksConfig
	logg     *logger.Logger
	handlers map[enums.ScheduledTaskKind]Handler
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("scheduled task repository required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	cfg := params.Config
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Minute
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 2 * time.Minute
	}
	return &Service{
		repo:     params.Repo,
		cfg:      cfg,
		logg:     params.Logger,
		handlers: make(map[enums.ScheduledTaskKind]Handler),
	}, nil
}

func (s *Service) Schedule(ctx context.Context, tx *gorm.DB, in ScheduleInput) error {
	if !in.Kind.IsValid() {
		return fmt.Errorf("invalid task kind %q", in.Kind)
	}
	if in.DedupeKey == "" {
		return errors.New("dedupe key required")
	}
	payload, err := json.Marshal(in.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", in.Kind, err)
	}
	now := time.Now().UTC()
	due := in.DueAt.UTC()
	if in.DueAt.IsZero() {
		due = now
	}
	created, err := s.repo.InsertTx(tx, &models.ScheduledTask{
		ID:        uuid.New(),
		Kind:      in.Kind,
		DedupeKey: in.DedupeKey,
		DueAt:     due,
		Payload:   payload,
		Status:    enums.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return err
	}
	if !created {
		s.logg.Debug(s.logg.WithField(ctx, "dedupe_key", in.DedupeKey), "scheduled task already exists")
	}
	return nil
}

// Register binds a handler to a kind. Later registrations replace earlier
// ones.
func (s *Service) Register(kind enums.ScheduledTaskKind, handler Handler) {
	s.handlers[kind] = handler
}

// RunDue claims one batch of due tasks and runs them in due order.
func (s *Service) RunDue(ctx context.Context, now time.Time) (Result, error) {
	var res Result
	tasks, err := s.repo.ClaimDue(ctx, now.UTC(), s.cfg.BatchSize, s.cfg.Lease)
	if err != nil {
		return res, err
	}
	for _, task := range tasks {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		switch s.run(ctx, task, now.UTC()) {
		case outcomeDone:
			res.Done++
		case outcomeRetry:
			res.Retried++
		default:
			res.Failed++
		}
	}
	return res, nil
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeRetry
	outcomeFailed
)

func (s *Service) run(ctx context.Context, task models.ScheduledTask, now time.Time) outcome {
	taskCtx := s.logg.WithFields(ctx, map[string]any{
		"task_id":    task.ID.String(),
		"task_kind":  task.Kind,
		"dedupe_key": task.DedupeKey,
		"attempt":    task.Attempts,
	})

	handler, ok := s.handlers[task.Kind]
	if !ok {
		err := fmt.Errorf("no handler for task kind %q", task.Kind)
		s.logg.Error(taskCtx, "scheduled task has no handler", err)
		s.persist(taskCtx, s.repo.MarkFailed(ctx, task.ID, now, err))
		return outcomeFailed
	}

	err := handler(taskCtx, task)
	if err == nil {
		s.persist(taskCtx, s.repo.MarkDone(ctx, task.ID, now))
		s.logg.Debug(taskCtx, "scheduled task done")
		return outcomeDone
	}

	if permanent(err) || task.Attempts >= s.cfg.MaxAttempts {
		s.logg.Error(taskCtx, "scheduled task failed", err)
		s.persist(taskCtx, s.repo.MarkFailed(ctx, task.ID, now, err))
		return outcomeFailed
	}

	next := now.Add(s.backoff(task.Attempts))
	s.logg.Warn(s.logg.WithField(taskCtx, "retry_at", next), fmt.Sprintf("scheduled task will retry: %v", err))
	s.persist(taskCtx, s.repo.Reschedule(ctx, task.ID, next, err))
	return outcomeRetry
}

// backoff doubles per attempt and is capped at 64 times the base delay.
func (s *Service) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 7 {
		attempt = 7
	}
	return s.cfg.RetryBackoff * time.Duration(1<<(attempt-1))
}

func (s *Service) persist(ctx context.Context, err error) {
	if err != nil {
		s.logg.Error(ctx, "failed to persist scheduled task outcome", err)
	}
}

func permanent(err error) bool {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeValidation, pkgerrors.CodeNotFound, pkgerrors.CodeConsistency, pkgerrors.CodeForbidden:
		return true
	}
	return false
}

// DecodePayload unmarshals a task payload into T.
func DecodePayload[T any](task models.ScheduledTask) (T, error) {
	var out T
	if err := json.Unmarshal(task.Payload, &out); err != nil {
		return out, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("decode %s payload", task.Kind))
	}
	return out, nil
}
