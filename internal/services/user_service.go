package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/nis-portal/portal-api/internal/auth"
	"github.com/nis-portal/portal-api/internal/logging"
	"github.com/nis-portal/portal-api/internal/models"
	"github.com/nis-portal/portal-api/internal/observability"
	"github.com/nis-portal/portal-api/internal/store"
	"github.com/nis-portal/portal-api/internal/utils"
)

// ErrNoRoles is returned when an account cannot be created because the
// roles table is empty.
var ErrNoRoles = errors.New("no roles defined")

// UserService handles login and account administration.
type UserService struct {
	repo       store.Repository
	tokens     *auth.TokenManager
	limiter    *RateLimiter
	logger     *logging.SafeLogger
	bcryptCost int

	// dummyHash is compared against for unknown emails so both failure
	// paths cost one bcrypt comparison.
	dummyOnce sync.Once
	dummyHash []byte
}

// NewUserService creates a user service. A nil limiter disables login
// throttling.
func NewUserService(repo store.Repository, tokens *auth.TokenManager, limiter *RateLimiter, logger *logging.SafeLogger) *UserService {
	return &UserService{
		repo:       repo,
		tokens:     tokens,
		limiter:    limiter,
		logger:     logger,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// Global user service instance
var UserServiceInstance *UserService

// Login checks credentials and issues a bearer token. Attempts are throttled
// per email and client address.
func (s *UserService) Login(ctx context.Context, in models.LoginInput, clientIP string) (*models.LoginResponse, error) {
	ctx, span, cleanup := utils.TraceOperation(ctx, "user.login", map[string]interface{}{
		"client.ip": clientIP,
	})
	defer cleanup()

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return nil, models.NewValidationError("Missing required fields", missingLoginFields(email, in.Password)...)
	}

	limitKey := email + "|" + clientIP
	if s.limiter != nil {
		if allowed, retryAfter := s.limiter.Allow(ctx, limitKey); !allowed {
			observability.LoginAttempts.WithLabelValues("throttled").Inc()
			utils.AddSpanAttribute(span, "login.throttled", true)
			return nil, models.NewRateLimitedError(
				fmt.Sprintf("Too many login attempts. Try again in %d seconds", int(retryAfter.Seconds())+1))
		}
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		utils.RecordErrorInSpan(span, err, nil)
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		_ = bcrypt.CompareHashAndPassword(s.unknownUserHash(), []byte(in.Password))
		observability.LoginAttempts.WithLabelValues("invalid").Inc()
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		observability.LoginAttempts.WithLabelValues("invalid").Inc()
		s.logger.Info("login rejected", zap.Int64("user_id", user.ID))
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}

	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	if s.limiter != nil {
		s.limiter.Reset(ctx, limitKey)
	}
	observability.LoginAttempts.WithLabelValues("success").Inc()
	s.logger.Info("user logged in", zap.Int64("user_id", user.ID), zap.String("role", user.RoleName))

	return &models.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User: models.LoginUser{
			ID:        user.ID,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Email:     user.Email,
			Role:      user.RoleName,
		},
	}, nil
}

func (s *UserService) unknownUserHash() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("unknown-user"), s.bcryptCost)
	})
	return s.dummyHash
}

func missingLoginFields(email, password string) []string {
	var missing []string
	if email == "" {
		missing = append(missing, "email")
	}
	if password == "" {
		missing = append(missing, "password")
	}
	return missing
}

// Register creates a self-service account with the default role. A role in
// the input is ignored.
func (s *UserService) Register(ctx context.Context, in models.CreateUserInput) (*models.UserCreated, error) {
	in.Role = ""
	return s.create(ctx, in)
}

// Create creates an account for an administrator. An optional role, given
// by name or id, must exist.
func (s *UserService) Create(ctx context.Context, in models.CreateUserInput) (*models.UserCreated, error) {
	return s.create(ctx, in)
}

func (s *UserService) create(ctx context.Context, in models.CreateUserInput) (*models.UserCreated, error) {
	ctx, span, cleanup := utils.TraceOperation(ctx, "user.create", nil)
	defer cleanup()

	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var created models.UserCreated
	err = s.repo.InTx(ctx, func(tx store.Repository) error {
		var (
			role *models.Role
			err  error
		)
		if in.Role != "" {
			role, err = resolveRole(ctx, tx, in.Role)
		} else {
			role, err = defaultRole(ctx, tx)
		}
		if err != nil {
			return err
		}

		officeID, err := tx.DefaultOfficeID(ctx)
		if err != nil {
			return fmt.Errorf("resolve default office: %w", err)
		}

		id, err := tx.InsertUser(ctx, &models.User{
			FirstName:    in.FirstName,
			LastName:     in.LastName,
			Email:        in.Email,
			PasswordHash: string(hash),
			RoleID:       role.ID,
			OfficeID:     &officeID,
		})
		if err != nil {
			return err
		}
		created = models.UserCreated{
			ID:        id,
			FirstName: in.FirstName,
			LastName:  in.LastName,
			Email:     in.Email,
			Role:      role.Name,
		}
		return nil
	})
	if err != nil {
		utils.RecordErrorInSpan(span, err, nil)
		return nil, err
	}

	s.logger.Info("user created", zap.Int64("user_id", created.ID), zap.String("role", created.Role))
	return &created, nil
}

// defaultRole prefers External Officer and falls back to any role.
func defaultRole(ctx context.Context, tx store.ReferenceStore) (*models.Role, error) {
	role, err := tx.RoleByName(ctx, models.RoleExternalOfficer)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("resolve default role: %w", err)
	}
	roles, err := tx.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	if len(roles) == 0 {
		return nil, ErrNoRoles
	}
	return &roles[0], nil
}

// resolveRole accepts a role name or a numeric role id.
func resolveRole(ctx context.Context, tx store.ReferenceStore, raw string) (*models.Role, error) {
	raw = strings.TrimSpace(raw)
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		roles, err := tx.ListRoles(ctx)
		if err != nil {
			return nil, fmt.Errorf("list roles: %w", err)
		}
		for i := range roles {
			if roles[i].ID == id {
				return &roles[i], nil
			}
		}
		return nil, models.NewValidationError("Provided role does not exist")
	}

	role, err := tx.RoleByName(ctx, raw)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.NewValidationError("Provided role does not exist")
	}
	if err != nil {
		return nil, fmt.Errorf("resolve role: %w", err)
	}
	return role, nil
}

// List returns every account.
func (s *UserService) List(ctx context.Context) ([]models.UserSummary, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]models.UserSummary, 0, len(users))
	for i := range users {
		out = append(out, users[i].Summary())
	}
	return out, nil
}

// Update applies a partial update and returns the updated account.
func (s *UserService) Update(ctx context.Context, id int64, in models.UpdateUserInput) (*models.UserSummary, error) {
	if id <= 0 {
		return nil, models.NewValidationError("Invalid user id")
	}
	if in.Empty() {
		return nil, models.NewValidationError("No fields to update")
	}

	update := models.UserUpdate{}
	var blank []string
	if in.FirstName != nil {
		v := strings.TrimSpace(*in.FirstName)
		if v == "" {
			blank = append(blank, "first_name")
		}
		update.FirstName = &v
	}
	if in.LastName != nil {
		v := strings.TrimSpace(*in.LastName)
		if v == "" {
			blank = append(blank, "last_name")
		}
		update.LastName = &v
	}
	if in.Email != nil {
		v := strings.ToLower(strings.TrimSpace(*in.Email))
		if v == "" {
			blank = append(blank, "email")
		}
		update.Email = &v
	}
	if in.Role != nil && strings.TrimSpace(*in.Role) == "" {
		blank = append(blank, "role")
	}
	if len(blank) > 0 {
		return nil, models.NewValidationError("Fields cannot be empty", blank...)
	}
	if update.Email != nil {
		if !models.ValidEmail(*update.Email) {
			return nil, models.NewValidationError("Invalid email address")
		}
	}

	var updated *models.User
	err := s.repo.InTx(ctx, func(tx store.Repository) error {
		if in.Role != nil {
			role, err := resolveRole(ctx, tx, *in.Role)
			if err != nil {
				return err
			}
			update.RoleID = &role.ID
		}
		ok, err := tx.UpdateUser(ctx, id, update)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewNotFoundError("User not found")
		}
		updated, err = tx.GetUserByID(ctx, id)
		if err != nil {
			return fmt.Errorf("reload user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user updated", zap.Int64("user_id", id))
	summary := updated.Summary()
	return &summary, nil
}
