package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

const defaultMaxConversionAttempts = 5

// ConversionService converts expense amounts into the company base currency.
// Results are advisory and never influence approval.
type ConversionService interface {
	// Convert computes and stores the conversion for one expense
	Convert(ctx context.Context, expenseID int64) (*entity.ExpenseConversion, error)
	// HandleSubmitted is the expense.submitted event handler
	HandleSubmitted(ctx context.Context, evt *event.Event) error
	// HandleFinalized is the expense.finalized event handler. It retries a missing or
	// failed conversion without waiting for the backfill worker.
	HandleFinalized(ctx context.Context, evt *event.Event) error
	// Backfill retries missing or failed conversions and returns how many succeeded
	Backfill(ctx context.Context, limit int) (int, error)
}

type conversionServiceImpl struct {
	companies   port.CompanyRepository
	expenses    port.ExpenseRepository
	conversions port.ConversionRepository
	converter   port.CurrencyConverter
	maxAttempts int
	logger      Logger
}

// NewConversionService creates a new ConversionService. maxAttempts <= 0 uses the default.
func NewConversionService(
	companies port.CompanyRepository,
	expenses port.ExpenseRepository,
	conversions port.ConversionRepository,
	converter port.CurrencyConverter,
	maxAttempts int,
	logger Logger,
) ConversionService {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxConversionAttempts
	}
	return &conversionServiceImpl{
		companies:   companies,
		expenses:    expenses,
		conversions: conversions,
		converter:   converter,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Convert looks up the rate and stores the outcome. A failed lookup is recorded
// on the conversion row and returned.
func (s *conversionServiceImpl) Convert(ctx context.Context, expenseID int64) (*entity.ExpenseConversion, error) {
	e, err := s.expenses.GetByID(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	company, err := s.companies.GetByID(ctx, e.CompanyID)
	if err != nil {
		return nil, err
	}

	conv, err := s.conversions.GetByExpenseID(ctx, expenseID)
	switch {
	case errors.Is(err, entity.ErrNotFound):
		conv = &entity.ExpenseConversion{ExpenseID: expenseID}
	case err != nil:
		return nil, err
	case conv.Status == entity.ConversionStatusConverted:
		return conv, nil
	}

	conv.FromCurrency = e.Currency
	conv.ToCurrency = company.BaseCurrency
	conv.OriginalAmount = e.Amount
	conv.Attempts++

	rate, rateErr := s.converter.Rate(ctx, e.Currency, company.BaseCurrency)
	if rateErr != nil {
		conv.Status = entity.ConversionStatusFailed
		conv.LastError = rateErr.Error()
	} else {
		at := time.Now().UTC()
		conv.Status = entity.ConversionStatusConverted
		conv.Rate = rate
		conv.ConvertedAmount = e.Amount.Mul(rate).Round(2)
		conv.LastError = ""
		conv.ConvertedAt = &at
	}

	if err := s.conversions.Upsert(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to store conversion: %w", err)
	}

	if rateErr != nil {
		s.logger.Error("Currency conversion failed",
			"expense_id", expenseID,
			"from", e.Currency,
			"to", company.BaseCurrency,
			"attempts", conv.Attempts,
			"error", rateErr)
		return conv, fmt.Errorf("currency conversion for expense %d: %w", expenseID, rateErr)
	}

	s.logger.Info("Expense converted",
		"expense_id", expenseID,
		"from", e.Currency,
		"to", company.BaseCurrency,
		"rate", conv.Rate.String(),
		"converted_amount", conv.ConvertedAmount.String())
	return conv, nil
}

// HandleSubmitted converts a freshly submitted expense
func (s *conversionServiceImpl) HandleSubmitted(ctx context.Context, evt *event.Event) error {
	_, err := s.Convert(ctx, evt.ExpenseID)
	return err
}

// HandleFinalized makes sure a decided expense carries its base-currency amount
func (s *conversionServiceImpl) HandleFinalized(ctx context.Context, evt *event.Event) error {
	conv, err := s.conversions.GetByExpenseID(ctx, evt.ExpenseID)
	if err == nil && conv.Status == entity.ConversionStatusConverted {
		return nil
	}
	if err != nil && !errors.Is(err, entity.ErrNotFound) {
		return err
	}
	_, err = s.Convert(ctx, evt.ExpenseID)
	return err
}

// Backfill converts a batch of expenses that still lack a conversion
func (s *conversionServiceImpl) Backfill(ctx context.Context, limit int) (int, error) {
	ids, err := s.conversions.ListUnconverted(ctx, s.maxAttempts, limit)
	if err != nil {
		return 0, err
	}

	converted := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return converted, err
		}
		if _, err := s.Convert(ctx, id); err == nil {
			converted++
		}
	}
	return converted, nil
}
