// Package accounts owns user accounts: login, profile lookup, account
// creation with conditional elevation and office-role assignment.
package accounts

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"participium/pkg/apperr"
	"participium/pkg/authz"
	"participium/pkg/identity"
	"participium/pkg/middleware"
	"participium/pkg/models"
	"participium/pkg/security"
	"participium/pkg/store"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func isValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

func isValidPassword(password string) (bool, string) {
	if len(password) < 8 {
		return false, "Password must be at least 8 characters"
	}
	if len(password) > 100 {
		return false, "Password too long"
	}
	return true, ""
}

// Store is the account persistence, implemented by store.UserStore.
type Store interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByUsername(ctx context.Context, username string) (models.User, error)
	UserByID(ctx context.Context, id int64) (models.User, error)
	AssignOffice(ctx context.Context, userID, officeID, roleID int64) error
	Offices(ctx context.Context) ([]models.Office, error)
	Roles(ctx context.Context) ([]models.Role, error)
}

type Service struct {
	store  Store
	guard  *authz.Guard
	secret []byte
	ttl    time.Duration
}

func NewService(s Store, guard *authz.Guard, secret []byte, ttl time.Duration) *Service {
	return &Service{store: s, guard: guard, secret: secret, ttl: ttl}
}

// Session is what a successful login returns.
type Session struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Login checks username and password. Unknown users and wrong passwords
// fail the same way.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, apperr.InvalidArgument("Username and Password are required")
	}
	user, err := s.store.UserByUsername(ctx, username)
	if errors.Is(err, store.ErrUserNotFound) {
		return Session{}, apperr.Unauthenticated("Invalid username or password")
	}
	if err != nil {
		return Session{}, apperr.Internal("load user", err)
	}
	if !security.CheckPasswordHash(password, user.Password) {
		return Session{}, apperr.Unauthenticated("Invalid username or password")
	}
	token, err := middleware.GenerateToken(s.secret, s.ttl, user.ID, user.Username, user.Role)
	if err != nil {
		return Session{}, apperr.Internal("generate token", err)
	}
	return Session{Token: token, User: user}, nil
}

// Me returns the account of the caller.
func (s *Service) Me(ctx context.Context, id identity.Identity) (models.User, error) {
	if !id.Authenticated {
		return models.User{}, apperr.Unauthenticated("authentication required")
	}
	user, err := s.store.UserByID(ctx, id.CallerID)
	if errors.Is(err, store.ErrUserNotFound) {
		return models.User{}, apperr.NotFound("User not found")
	}
	if err != nil {
		return models.User{}, apperr.Internal("load user", err)
	}
	return user, nil
}

type NewAccount struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Surname  string `json:"surname"`
	Role     string `json:"role"`
}

func (in *NewAccount) normalize() (identity.BroadRole, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.Surname = strings.TrimSpace(in.Surname)

	role := identity.RoleCitizen
	if in.Role != "" {
		parsed, ok := identity.ParseBroadRole(in.Role)
		if !ok {
			return "", apperr.InvalidArgument("Unknown role")
		}
		role = parsed
	}
	if role.Is(identity.RoleAdmin) {
		return "", apperr.InvalidArgument("Administrator accounts cannot be created")
	}
	return role, nil
}

func (in NewAccount) validate() error {
	if in.Username == "" || in.Email == "" || in.Password == "" || in.Name == "" || in.Surname == "" {
		return apperr.InvalidArgument("Username, Email, Password, Name and Surname are required")
	}
	if len(in.Username) < 3 {
		return apperr.InvalidArgument("Username must be at least 3 characters")
	}
	if !isValidEmail(in.Email) {
		return apperr.InvalidArgument("Invalid email format")
	}
	if ok, msg := isValidPassword(in.Password); !ok {
		return apperr.InvalidArgument(msg)
	}
	return nil
}

// Register creates an account. Citizens register themselves; staff
// accounts need an administrator; administrators are never created here.
func (s *Service) Register(ctx context.Context, caller identity.Identity, in NewAccount) (models.User, error) {
	role, err := in.normalize()
	if err != nil {
		return models.User{}, err
	}
	if err := s.guard.RequireElevationFor(caller, role); err != nil {
		return models.User{}, err
	}
	if err := in.validate(); err != nil {
		return models.User{}, err
	}

	hashed, err := security.HashPassword(in.Password)
	if err != nil {
		return models.User{}, apperr.Internal("hash password", err)
	}
	user := models.User{
		Username: in.Username,
		Email:    in.Email,
		Password: hashed,
		Name:     in.Name,
		Surname:  in.Surname,
		Role:     string(role),
	}
	if err := s.store.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			return models.User{}, apperr.Conflict("Username or email already registered")
		}
		return models.User{}, apperr.Internal("save user", err)
	}
	return user, nil
}

// AssignOffice grants a user a role inside an office.
func (s *Service) AssignOffice(ctx context.Context, caller identity.Identity, userID, officeID, roleID int64) error {
	if err := s.guard.RequireBroadRole(caller, identity.RoleAdmin); err != nil {
		return err
	}
	if officeID <= 0 || roleID <= 0 {
		return apperr.InvalidArgument("officeId and roleId are required")
	}
	err := s.store.AssignOffice(ctx, userID, officeID, roleID)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		return apperr.NotFound("User not found")
	case errors.Is(err, store.ErrOfficeNotFound):
		return apperr.NotFound("Office not found")
	case errors.Is(err, store.ErrRoleNotFound):
		return apperr.NotFound("Role not found")
	case err != nil:
		return apperr.Internal("assign office", err)
	}
	return nil
}

func (s *Service) Offices(ctx context.Context, caller identity.Identity) ([]models.Office, error) {
	if err := s.guard.RequireBroadRole(caller, identity.RoleAdmin); err != nil {
		return nil, err
	}
	offices, err := s.store.Offices(ctx)
	if err != nil {
		return nil, apperr.Internal("list offices", err)
	}
	return offices, nil
}

func (s *Service) Roles(ctx context.Context, caller identity.Identity) ([]models.Role, error) {
	if err := s.guard.RequireBroadRole(caller, identity.RoleAdmin); err != nil {
		return nil, err
	}
	roles, err := s.store.Roles(ctx)
	if err != nil {
		return nil, apperr.Internal("list roles", err)
	}
	return roles, nil
}
