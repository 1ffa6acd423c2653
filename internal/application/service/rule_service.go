package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// RuleService manages a company's approval rules. Every change bumps the company's
// rule-set version and drops cached rule lists.
type RuleService interface {
	Create(ctx context.Context, actorID int64, rule *entity.ApprovalRule) (*entity.ApprovalRule, error)
	Update(ctx context.Context, actorID int64, rule *entity.ApprovalRule) (*entity.ApprovalRule, error)
	Delete(ctx context.Context, actorID, ruleID int64) error
	Get(ctx context.Context, actorID, ruleID int64) (*entity.ApprovalRule, error)
	List(ctx context.Context, actorID int64) ([]*entity.ApprovalRule, error)
	// HandleRulesChanged is the rules.changed event handler. It drops the company's cached rule lists.
	HandleRulesChanged(ctx context.Context, evt *event.Event) error
}

type ruleServiceImpl struct {
	companies  port.CompanyRepository
	users      port.UserRepository
	rules      port.RuleRepository
	cache      port.RuleSource
	txManager  port.TransactionManager
	dispatcher dispatcher.Dispatcher
	authz      approval.Authorizer
	logger     Logger
}

// NewRuleService creates a new RuleService
func NewRuleService(
	companies port.CompanyRepository,
	users port.UserRepository,
	rules port.RuleRepository,
	cache port.RuleSource,
	txManager port.TransactionManager,
	d dispatcher.Dispatcher,
	logger Logger,
) RuleService {
	return &ruleServiceImpl{
		companies:  companies,
		users:      users,
		rules:      rules,
		cache:      cache,
		txManager:  txManager,
		dispatcher: d,
		authz:      approval.NewAuthorizer(),
		logger:     logger,
	}
}

// Create stores a new rule for the actor's company
func (s *ruleServiceImpl) Create(ctx context.Context, actorID int64, rule *entity.ApprovalRule) (*entity.ApprovalRule, error) {
	actor, err := s.authorizeRules(ctx, actorID)
	if err != nil {
		return nil, err
	}
	rule.ID = 0
	rule.CompanyID = actor.CompanyID
	if err := s.validate(ctx, rule); err != nil {
		return nil, err
	}

	err = s.mutate(ctx, actor.CompanyID, func(ctx context.Context) error {
		return s.rules.Create(ctx, rule)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Approval rule created", "rule_id", rule.ID, "company_id", rule.CompanyID, "actor_id", actorID)
	return rule, nil
}

// Update replaces a rule and its approver list
func (s *ruleServiceImpl) Update(ctx context.Context, actorID int64, rule *entity.ApprovalRule) (*entity.ApprovalRule, error) {
	actor, err := s.authorizeRules(ctx, actorID)
	if err != nil {
		return nil, err
	}
	existing, err := s.companyRule(ctx, actor, rule.ID)
	if err != nil {
		return nil, err
	}
	rule.CompanyID = existing.CompanyID
	rule.CreatedAt = existing.CreatedAt
	if err := s.validate(ctx, rule); err != nil {
		return nil, err
	}

	err = s.mutate(ctx, actor.CompanyID, func(ctx context.Context) error {
		return s.rules.Update(ctx, rule)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Approval rule updated", "rule_id", rule.ID, "company_id", rule.CompanyID, "actor_id", actorID)
	return rule, nil
}

// Delete removes a rule. Pending expenses it governed are re-resolved against the remaining rules.
func (s *ruleServiceImpl) Delete(ctx context.Context, actorID, ruleID int64) error {
	actor, err := s.authorizeRules(ctx, actorID)
	if err != nil {
		return err
	}
	if _, err := s.companyRule(ctx, actor, ruleID); err != nil {
		return err
	}

	err = s.mutate(ctx, actor.CompanyID, func(ctx context.Context) error {
		return s.rules.Delete(ctx, ruleID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("Approval rule deleted", "rule_id", ruleID, "company_id", actor.CompanyID, "actor_id", actorID)
	return nil
}

// Get returns one rule of the actor's company
func (s *ruleServiceImpl) Get(ctx context.Context, actorID, ruleID int64) (*entity.ApprovalRule, error) {
	actor, err := s.authorizeRules(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return s.companyRule(ctx, actor, ruleID)
}

// List returns the actor's company rules in evaluation order
func (s *ruleServiceImpl) List(ctx context.Context, actorID int64) ([]*entity.ApprovalRule, error) {
	actor, err := s.authorizeRules(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return s.rules.ListByCompany(ctx, actor.CompanyID)
}

// mutate runs fn and the version bump in one transaction, then announces the new version
func (s *ruleServiceImpl) mutate(ctx context.Context, companyID int64, fn func(ctx context.Context) error) error {
	var version int64
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return err
		}
		v, err := s.companies.BumpRuleSetVersion(ctx, companyID)
		version = v
		return err
	})
	if err != nil {
		s.logger.Error("Approval rule change failed", "company_id", companyID, "error", err)
		return err
	}

	s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeRulesChanged, companyID, 0, map[string]any{
		event.KeyVersion: version,
	}))
	return nil
}

// HandleRulesChanged drops cached rule lists. Entries are keyed by rule-set version,
// so a failed invalidation leaves stale keys that are never read again.
func (s *ruleServiceImpl) HandleRulesChanged(ctx context.Context, evt *event.Event) error {
	if err := s.cache.Invalidate(ctx, evt.CompanyID); err != nil {
		s.logger.Error("Failed to invalidate rule cache",
			"company_id", evt.CompanyID,
			"rule_set_version", evt.GetPayloadInt(event.KeyVersion),
			"error", err)
		return fmt.Errorf("failed to invalidate rules of company %d: %w", evt.CompanyID, err)
	}
	return nil
}

// validate checks rule invariants including that approvers are Managers or Admins of the company
func (s *ruleServiceImpl) validate(ctx context.Context, rule *entity.ApprovalRule) error {
	rule.Name = utils.SanitizeString(rule.Name)
	rule.Description = utils.SanitizeString(rule.Description)
	rule.Category = strings.TrimSpace(rule.Category)
	if err := rule.Validate(); err != nil {
		return err
	}

	for _, a := range rule.Approvers {
		u, err := s.users.GetByID(ctx, a.UserID)
		if errors.Is(err, entity.ErrNotFound) {
			return entity.NewValidationError("approvers", fmt.Sprintf("user %d does not exist", a.UserID))
		}
		if err != nil {
			return err
		}
		if u.CompanyID != rule.CompanyID {
			return entity.NewValidationError("approvers", fmt.Sprintf("user %d belongs to another company", a.UserID))
		}
		if !u.Role.CanApprove() {
			return entity.NewValidationError("approvers", fmt.Sprintf("user %d must be MANAGER or ADMIN", a.UserID))
		}
	}
	return nil
}

func (s *ruleServiceImpl) authorizeRules(ctx context.Context, actorID int64) (*entity.User, error) {
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return nil, forbiddenIfMissing(err, actorID)
	}
	if err := s.authz.Authorize(actor, approval.ActionManageRules, approval.Subject{CompanyID: actor.CompanyID}); err != nil {
		return nil, err
	}
	return actor, nil
}

func (s *ruleServiceImpl) companyRule(ctx context.Context, actor *entity.User, ruleID int64) (*entity.ApprovalRule, error) {
	rule, err := s.rules.GetByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if rule.CompanyID != actor.CompanyID {
		return nil, fmt.Errorf("approval rule %d: %w", ruleID, entity.ErrNotFound)
	}
	return rule, nil
}
