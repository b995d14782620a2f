package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/harlequingg/task-tracker-api/internal/models"
	"github.com/harlequingg/task-tracker-api/internal/pagination"
	"github.com/harlequingg/task-tracker-api/internal/storage"
	"github.com/harlequingg/task-tracker-api/internal/validator"
)

type UserPage struct {
	Users      []models.User   `json:"users"`
	Pagination pagination.Meta `json:"pagination"`
}

type UserService struct {
	users        storage.UserStore
	passwordCost int
}

// NewUserService uses bcrypt.DefaultCost when passwordCost is 0.
func NewUserService(users storage.UserStore, passwordCost int) *UserService {
	if passwordCost == 0 {
		passwordCost = bcrypt.DefaultCost
	}
	return &UserService{users: users, passwordCost: passwordCost}
}

// Register creates a member account. Emails are stored lower-cased.
func (s *UserService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))

	v := validator.New()
	v.CheckName(name)
	v.CheckEmail(email)
	v.CheckPassword(password)
	if err := v.Err(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.passwordCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleMember,
	}
	if err := s.users.InsertUser(ctx, u); err != nil {
		if errors.Is(err, models.ErrDuplicateEmail) {
			return nil, err
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// EnsureAdmin registers an admin account for email unless one exists. An
// existing member with that email is promoted.
func (s *UserService) EnsureAdmin(ctx context.Context, name, email, password string) (*models.User, error) {
	u, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		u, err = s.Register(ctx, name, email, password)
		if err != nil {
			return nil, err
		}
	}
	if u.Role == models.RoleAdmin {
		return u, nil
	}
	u, err = s.users.UpdateUserRole(ctx, u.ID, models.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("update user role: %w", err)
	}
	return u, nil
}

// Authenticate checks credentials. Unknown emails and wrong passwords both
// yield models.ErrInvalidCredentials.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, models.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, models.ErrInvalidCredentials
	}
	return u, nil
}

// Get loads a user by id; nil when absent.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	return s.users.GetUserByID(ctx, id)
}

func (s *UserService) List(ctx context.Context, p models.Principal, w pagination.Window) (*UserPage, error) {
	if !p.IsAdmin() {
		return nil, models.ErrForbidden
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	users, err := s.users.ListUsers(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	total, err := s.users.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	return &UserPage{
		Users:      users,
		Pagination: pagination.NewMeta(w, total),
	}, nil
}

// ChangeRole sets the role of user id. Admins may not change their own
// role, whatever the requested value.
func (s *UserService) ChangeRole(ctx context.Context, p models.Principal, id string, role models.Role) (*models.User, error) {
	if !p.IsAdmin() {
		return nil, models.ErrForbidden
	}
	if id == p.ID {
		return nil, models.ErrConflict
	}
	v := validator.New()
	v.Check(role.Valid(), "role", "must be one of admin, member")
	if err := v.Err(); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, models.ErrNotFound
	}
	u, err := s.users.UpdateUserRole(ctx, id, role)
	if err != nil {
		return nil, fmt.Errorf("update user role: %w", err)
	}
	if u == nil {
		return nil, models.ErrNotFound
	}
	return u, nil
}
