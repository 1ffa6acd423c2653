package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultRuleTTL = 10 * time.Minute

// RuleSource serves company rule lists from Redis, keyed by company and rule-set
// version, and falls back to the repository on a miss. A Redis outage degrades to
// reading the repository directly.
type RuleSource struct {
	client *redis.Client
	rules  port.RuleRepository
	ttl    time.Duration
	logger *zap.Logger
}

// NewRuleSource creates a Redis-backed rule source. A non-positive ttl uses the default.
func NewRuleSource(client *redis.Client, rules port.RuleRepository, ttl time.Duration, logger *zap.Logger) *RuleSource {
	if ttl <= 0 {
		ttl = defaultRuleTTL
	}
	return &RuleSource{client: client, rules: rules, ttl: ttl, logger: logger}
}

func ruleKey(companyID, version int64) string {
	return fmt.Sprintf("rules:%d:v%d", companyID, version)
}

func rulePattern(companyID int64) string {
	return fmt.Sprintf("rules:%d:*", companyID)
}

// RulesFor implements port.RuleSource
func (s *RuleSource) RulesFor(ctx context.Context, company *entity.Company) ([]*entity.ApprovalRule, error) {
	key := ruleKey(company.ID, company.RuleSetVersion)

	raw, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rules []*entity.ApprovalRule
		if jsonErr := json.Unmarshal(raw, &rules); jsonErr == nil {
			return rules, nil
		}
		s.logger.Warn("Discarding undecodable cached rules", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		s.logger.Warn("Rule cache read failed, using repository", zap.String("key", key), zap.Error(err))
	}

	rules, err := s.rules.ListByCompany(ctx, company.ID)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(rules); err == nil {
		if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
			s.logger.Warn("Rule cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return rules, nil
}

// Invalidate drops every cached version for the company
func (s *RuleSource) Invalidate(ctx context.Context, companyID int64) error {
	iter := s.client.Scan(ctx, 0, rulePattern(companyID), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan rule cache: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate rule cache: %w", err)
	}
	s.logger.Debug("Rule cache invalidated", zap.Int64("company_id", companyID), zap.Int("keys", len(keys)))
	return nil
}

// DirectRuleSource reads rules straight from the repository. Used when Redis is disabled.
type DirectRuleSource struct {
	rules port.RuleRepository
}

// NewDirectRuleSource creates an uncached rule source
func NewDirectRuleSource(rules port.RuleRepository) *DirectRuleSource {
	return &DirectRuleSource{rules: rules}
}

// RulesFor implements port.RuleSource
func (s *DirectRuleSource) RulesFor(ctx context.Context, company *entity.Company) ([]*entity.ApprovalRule, error) {
	return s.rules.ListByCompany(ctx, company.ID)
}

// Invalidate is a no-op
func (s *DirectRuleSource) Invalidate(context.Context, int64) error { return nil }

var (
	_ port.RuleSource = (*RuleSource)(nil)
	_ port.RuleSource = (*DirectRuleSource)(nil)
)
