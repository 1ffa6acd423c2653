package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/pkg/utils"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// ErrInvalidCredentials is returned by Authenticate for an unknown email or wrong password
var ErrInvalidCredentials = errors.New("invalid credentials")

// SignupInput carries the fields needed to open a company account
type SignupInput struct {
	CompanyName  string `json:"company_name"`
	BaseCurrency string `json:"base_currency"`
	AdminName    string `json:"admin_name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
}

// CreateUserInput carries the fields of a new company member
type CreateUserInput struct {
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Password  string      `json:"password"`
	Role      entity.Role `json:"role"`
	ManagerID *int64      `json:"manager_id"`
}

// UserService manages companies and their members
type UserService interface {
	// Signup creates a company together with its first Admin
	Signup(ctx context.Context, in SignupInput) (*entity.Company, *entity.User, error)
	CreateUser(ctx context.Context, actorID int64, in CreateUserInput) (*entity.User, error)
	UpdateRole(ctx context.Context, actorID, userID int64, role entity.Role) (*entity.User, error)
	// AssignManager sets or, with a nil managerID, clears the user's manager
	AssignManager(ctx context.Context, actorID, userID int64, managerID *int64) (*entity.User, error)
	GetUser(ctx context.Context, actorID, userID int64) (*entity.User, error)
	ListUsers(ctx context.Context, actorID int64) ([]*entity.User, error)
	Authenticate(ctx context.Context, email, password string) (*entity.User, error)
}

type userServiceImpl struct {
	companies port.CompanyRepository
	users     port.UserRepository
	rules     port.RuleRepository
	txManager port.TransactionManager
	authz     approval.Authorizer
	logger    Logger
	hashCost  int
}

// NewUserService creates a new UserService
func NewUserService(
	companies port.CompanyRepository,
	users port.UserRepository,
	rules port.RuleRepository,
	txManager port.TransactionManager,
	logger Logger,
) UserService {
	return &userServiceImpl{
		companies: companies,
		users:     users,
		rules:     rules,
		txManager: txManager,
		authz:     approval.NewAuthorizer(),
		logger:    logger,
		hashCost:  bcrypt.DefaultCost,
	}
}

// Signup creates a company and its Admin in one transaction
func (s *userServiceImpl) Signup(ctx context.Context, in SignupInput) (*entity.Company, *entity.User, error) {
	company := &entity.Company{
		Name:         utils.SanitizeString(in.CompanyName),
		BaseCurrency: strings.ToUpper(strings.TrimSpace(in.BaseCurrency)),
	}
	if err := company.Validate(); err != nil {
		return nil, nil, err
	}

	admin := &entity.User{
		Name:  utils.SanitizeString(in.AdminName),
		Email: utils.NormalizeEmail(in.Email),
		Role:  entity.RoleAdmin,
	}
	if err := admin.Validate(); err != nil {
		return nil, nil, err
	}
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, nil, err
	}
	admin.PasswordHash = hash

	err = s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.companies.Create(ctx, company); err != nil {
			return err
		}
		admin.CompanyID = company.ID
		return s.users.Create(ctx, admin)
	})
	if err != nil {
		s.logger.Error("Signup failed", "email", admin.Email, "error", err)
		return nil, nil, err
	}

	s.logger.Info("Company created", "company_id", company.ID, "admin_id", admin.ID)
	return company, admin, nil
}

// CreateUser adds a member to the actor's company
func (s *userServiceImpl) CreateUser(ctx context.Context, actorID int64, in CreateUserInput) (*entity.User, error) {
	actor, err := s.authorizeManagement(ctx, actorID)
	if err != nil {
		return nil, err
	}

	u := &entity.User{
		CompanyID: actor.CompanyID,
		Name:      utils.SanitizeString(in.Name),
		Email:     utils.NormalizeEmail(in.Email),
		Role:      in.Role,
		ManagerID: in.ManagerID,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if u.ManagerID != nil {
		if err := s.checkManager(ctx, u, *u.ManagerID); err != nil {
			return nil, err
		}
	}
	if u.PasswordHash, err = s.hashPassword(in.Password); err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("User created", "user_id", u.ID, "company_id", u.CompanyID, "role", string(u.Role))
	return u, nil
}

// UpdateRole changes a member's role. A user who still manages reports or is listed
// as a rule approver cannot become an Employee.
func (s *userServiceImpl) UpdateRole(ctx context.Context, actorID, userID int64, role entity.Role) (*entity.User, error) {
	if !role.IsValid() {
		return nil, entity.NewValidationError("role", "unknown role "+string(role))
	}
	actor, err := s.authorizeManagement(ctx, actorID)
	if err != nil {
		return nil, err
	}
	u, err := s.companyUser(ctx, actor, userID)
	if err != nil {
		return nil, err
	}

	if !role.CanApprove() && u.Role.CanApprove() {
		reports, err := s.users.ListReports(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		if len(reports) > 0 {
			return nil, entity.NewValidationError("role", fmt.Sprintf("user still manages %d employees", len(reports)))
		}
		rules, err := s.rules.ListByCompany(ctx, u.CompanyID)
		if err != nil {
			return nil, err
		}
		for _, r := range rules {
			if r.Lists(u.ID) {
				return nil, entity.NewValidationError("role", fmt.Sprintf("user is an approver in rule %q", r.Name))
			}
		}
	}

	u.Role = role
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("User role updated", "user_id", u.ID, "role", string(role), "actor_id", actorID)
	return u, nil
}

// AssignManager sets or clears the user's manager
func (s *userServiceImpl) AssignManager(ctx context.Context, actorID, userID int64, managerID *int64) (*entity.User, error) {
	actor, err := s.authorizeManagement(ctx, actorID)
	if err != nil {
		return nil, err
	}
	u, err := s.companyUser(ctx, actor, userID)
	if err != nil {
		return nil, err
	}
	if managerID != nil {
		if err := s.checkManager(ctx, u, *managerID); err != nil {
			return nil, err
		}
	}

	u.ManagerID = managerID
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("Manager assigned", "user_id", u.ID, "manager_id", managerID, "actor_id", actorID)
	return u, nil
}

// GetUser returns a member of the actor's company
func (s *userServiceImpl) GetUser(ctx context.Context, actorID, userID int64) (*entity.User, error) {
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return nil, forbiddenIfMissing(err, actorID)
	}
	return s.companyUser(ctx, actor, userID)
}

// ListUsers lists the actor's company. Admin only.
func (s *userServiceImpl) ListUsers(ctx context.Context, actorID int64) ([]*entity.User, error) {
	actor, err := s.authorizeManagement(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return s.users.ListByCompany(ctx, actor.CompanyID)
}

// Authenticate checks an email and password pair
func (s *userServiceImpl) Authenticate(ctx context.Context, email, password string) (*entity.User, error) {
	u, err := s.users.GetByEmail(ctx, utils.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("Authentication failed", "user_id", u.ID)
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *userServiceImpl) authorizeManagement(ctx context.Context, actorID int64) (*entity.User, error) {
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return nil, forbiddenIfMissing(err, actorID)
	}
	if err := s.authz.Authorize(actor, approval.ActionManageUsers, approval.Subject{CompanyID: actor.CompanyID}); err != nil {
		return nil, err
	}
	return actor, nil
}

// companyUser loads a user, hiding users of other companies
func (s *userServiceImpl) companyUser(ctx context.Context, actor *entity.User, userID int64) (*entity.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.CompanyID != actor.CompanyID {
		return nil, fmt.Errorf("user %d: %w", userID, entity.ErrNotFound)
	}
	return u, nil
}

func (s *userServiceImpl) checkManager(ctx context.Context, u *entity.User, managerID int64) error {
	manager, err := s.users.GetByID(ctx, managerID)
	if errors.Is(err, entity.ErrNotFound) {
		manager, err = nil, nil
	}
	if err != nil {
		return err
	}
	return entity.ValidateManager(u, manager)
}

func (s *userServiceImpl) hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", entity.NewValidationError("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func forbiddenIfMissing(err error, actorID int64) error {
	if errors.Is(err, entity.ErrNotFound) {
		return fmt.Errorf("%w: unknown user %d", approval.ErrForbidden, actorID)
	}
	return err
}
