package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/example/meeting-service/internal/persistence"
)

const minPasswordLength = 8

// UserRepository captures the persistence operations needed by the user service.
type UserRepository interface {
	CreateUser(ctx context.Context, credentials UserCredentials) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	// UpdateUser writes profile fields and, when passwordHash is non-nil, replaces the stored hash.
	UpdateUser(ctx context.Context, user User, passwordHash *string) (User, error)
	DeleteUser(ctx context.Context, id string) error
}

// PasswordHasher derives a storable hash from a plaintext password.
type PasswordHasher func(password string) (string, error)

// UserService manages account registration and the caller's own profile.
type UserService struct {
	users        UserRepository
	hashPassword PasswordHasher
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
	recorder     OperationRecorder
}

// NewUserService wires dependencies for the user service.
func NewUserService(users UserRepository, hasher PasswordHasher, idGenerator func() string, now func() time.Time) *UserService {
	return NewUserServiceWithLogger(users, hasher, idGenerator, now, nil)
}

// NewUserServiceWithLogger wires dependencies for the user service with a specified logger.
func NewUserServiceWithLogger(users UserRepository, hasher PasswordHasher, idGenerator func() string, now func() time.Time, logger *slog.Logger) *UserService {
	if hasher == nil {
		hasher = func(password string) (string, error) {
			return CreatePasswordHash(password, DefaultArgon2idParams)
		}
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &UserService{
		users:        users,
		hashPassword: hasher,
		idGenerator:  idGenerator,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

// WithRecorder attaches an operation recorder and returns the service for chaining.
func (s *UserService) WithRecorder(recorder OperationRecorder) *UserService {
	if s != nil {
		s.recorder = recorder
	}
	return s
}

func (s *UserService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "UserService", operation, attrs...)
}

// Register validates input and creates a new account.
func (s *UserService) Register(ctx context.Context, params RegisterParams) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user repository not configured")
		return
	}

	email := normalizeEmail(params.Email)
	name := strings.TrimSpace(params.Name)

	logger := s.loggerWith(ctx, "Register", "email", email)
	started := time.Now()
	defer func() {
		recordOperation(s.recorder, "UserService", "Register", started, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to register user", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID).InfoContext(ctx, "user registered")
	}()

	vErr := &ValidationError{}
	if email == "" {
		vErr.add("email", "email is required")
	} else if _, parseErr := mail.ParseAddress(email); parseErr != nil {
		vErr.add("email", "email is invalid")
	}
	if name == "" {
		vErr.add("name", "name is required")
	}
	validatePassword(vErr, params.Password)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var hash string
	hash, err = s.hashPassword(params.Password)
	if err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}

	now := s.now()
	user, err = s.users.CreateUser(ctx, UserCredentials{
		User: User{
			ID:        s.idGenerator(),
			Email:     email,
			Name:      name,
			Avatar:    normalizeOptionalString(params.Avatar),
			CreatedAt: now,
			UpdatedAt: now,
		},
		PasswordHash: hash,
	})
	if err != nil {
		user = User{}
		err = mapUserRepoError(err)
	}
	return
}

// Profile returns the account of the calling principal.
func (s *UserService) Profile(ctx context.Context, principal Principal) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("UserService is nil")
	}
	if s.users == nil {
		return User{}, fmt.Errorf("user repository not configured")
	}
	if principal.UserID == "" {
		return User{}, ErrUnauthenticated
	}

	user, err := s.users.GetUser(ctx, principal.UserID)
	if err != nil {
		return User{}, mapUserRepoError(err)
	}
	return user, nil
}

// UpdateProfile applies a partial update to the calling principal's account.
func (s *UserService) UpdateProfile(ctx context.Context, params UpdateProfileParams) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateProfile", "principal_id", params.Principal.UserID)
	started := time.Now()
	defer func() {
		recordOperation(s.recorder, "UserService", "UpdateProfile", started, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to update profile", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "profile updated")
	}()

	if params.Principal.UserID == "" {
		err = ErrUnauthenticated
		return
	}

	vErr := &ValidationError{}
	if params.Name != nil && strings.TrimSpace(*params.Name) == "" {
		vErr.add("name", "name must not be blank")
	}
	if params.Password != nil {
		validatePassword(vErr, *params.Password)
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var existing User
	existing, err = s.users.GetUser(ctx, params.Principal.UserID)
	if err != nil {
		err = mapUserRepoError(err)
		return
	}

	if params.Name != nil {
		existing.Name = strings.TrimSpace(*params.Name)
	}
	if params.Avatar != nil {
		existing.Avatar = normalizeOptionalString(params.Avatar)
	}
	existing.UpdatedAt = s.now()

	var hash *string
	if params.Password != nil {
		var hashed string
		hashed, err = s.hashPassword(*params.Password)
		if err != nil {
			err = fmt.Errorf("hash password: %w", err)
			return
		}
		hash = &hashed
	}

	user, err = s.users.UpdateUser(ctx, existing, hash)
	if err != nil {
		user = User{}
		err = mapUserRepoError(err)
	}
	return
}

// DeleteProfile removes the calling principal's account together with the meetings it hosts.
func (s *UserService) DeleteProfile(ctx context.Context, principal Principal) error {
	if s == nil {
		return fmt.Errorf("UserService is nil")
	}
	if s.users == nil {
		return fmt.Errorf("user repository not configured")
	}
	if principal.UserID == "" {
		return ErrUnauthenticated
	}

	logger := s.loggerWith(ctx, "DeleteProfile", "principal_id", principal.UserID)
	started := time.Now()

	err := mapUserRepoError(s.users.DeleteUser(ctx, principal.UserID))
	recordOperation(s.recorder, "UserService", "DeleteProfile", started, err)
	if err != nil {
		logger.ErrorContext(ctx, "failed to delete profile", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "profile deleted")
	return nil
}

// GetUser resolves a user id for collaborators such as MeetingService.
func (s *UserService) GetUser(ctx context.Context, id string) (User, error) {
	return s.Profile(ctx, Principal{UserID: id})
}

func validatePassword(vErr *ValidationError, password string) {
	switch {
	case password == "":
		vErr.add("password", "password is required")
	case len(password) < minPasswordLength:
		vErr.add("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func mapUserRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, persistence.ErrDuplicate):
		vErr := newValidationError("email", "email is already registered")
		return errors.Join(ErrConflict, vErr)
	}
	return err
}
