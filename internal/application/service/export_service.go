package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// ExportService renders expense reports
type ExportService interface {
	ContentType() string
	// Export writes the expenses the actor oversees. Employees export their own expenses.
	Export(ctx context.Context, actorID int64, status entity.ExpenseStatus, w io.Writer) (int, error)
}

type exportServiceImpl struct {
	workflow    WorkflowService
	users       port.UserRepository
	conversions port.ConversionRepository
	exporter    port.ExpenseExporter
	logger      Logger
}

// NewExportService creates a new ExportService
func NewExportService(
	workflow WorkflowService,
	users port.UserRepository,
	conversions port.ConversionRepository,
	exporter port.ExpenseExporter,
	logger Logger,
) ExportService {
	return &exportServiceImpl{
		workflow:    workflow,
		users:       users,
		conversions: conversions,
		exporter:    exporter,
		logger:      logger,
	}
}

func (s *exportServiceImpl) ContentType() string {
	return s.exporter.ContentType()
}

// Export collects rows first so a query failure never leaves a half-written document
func (s *exportServiceImpl) Export(ctx context.Context, actorID int64, status entity.ExpenseStatus, w io.Writer) (int, error) {
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return 0, forbiddenIfMissing(err, actorID)
	}

	seq := s.workflow.QueryForApprover(ctx, actorID, status)
	if !actor.Role.CanApprove() {
		seq = s.workflow.QueryForSubmitter(ctx, actorID, status)
	}

	names := map[int64]string{actor.ID: actor.Name}
	var rows []port.ExportRow
	for e, err := range seq {
		if err != nil {
			return 0, err
		}

		name, ok := names[e.SubmitterID]
		if !ok {
			u, err := s.users.GetByID(ctx, e.SubmitterID)
			if err != nil {
				return 0, fmt.Errorf("failed to load submitter: %w", err)
			}
			name = u.Name
			names[e.SubmitterID] = name
		}

		conv, err := s.conversions.GetByExpenseID(ctx, e.ID)
		if err != nil && !errors.Is(err, entity.ErrNotFound) {
			return 0, err
		}
		rows = append(rows, port.ExportRow{Expense: e, SubmitterName: name, Conversion: conv})
	}

	if err := s.exporter.Export(ctx, w, rows); err != nil {
		s.logger.Error("Expense export failed", "actor_id", actorID, "error", err)
		return 0, err
	}
	s.logger.Info("Expenses exported", "actor_id", actorID, "rows", len(rows), "status", string(status))
	return len(rows), nil
}
