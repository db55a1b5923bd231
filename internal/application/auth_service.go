package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// CredentialStore exposes user credential lookup operations required by the auth service.
type CredentialStore interface {
	GetUserCredentialsByEmail(ctx context.Context, email string) (UserCredentials, error)
	GetUser(ctx context.Context, id string) (User, error)
}

// TokenVerifier extracts the user id from a token issued to that user.
type TokenVerifier interface {
	Verify(token string, now time.Time) (userID string, err error)
}

// TokenIssuer issues and verifies bearer tokens.
type TokenIssuer interface {
	TokenVerifier
	Issue(user User, issuedAt time.Time) (token string, expiresAt time.Time, err error)
}

// PasswordVerifier compares a stored hash with a candidate password.
type PasswordVerifier func(hashedPassword, password string) error

// AuthService coordinates login and the resolution of bearer tokens into principals.
type AuthService struct {
	credentials    CredentialStore
	tokens         TokenIssuer
	sessions       TokenVerifier
	verifyPassword PasswordVerifier
	now            func() time.Time
	logger         *slog.Logger
	recorder       OperationRecorder
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(credentials CredentialStore, tokens TokenIssuer, verify PasswordVerifier, now func() time.Time) *AuthService {
	return NewAuthServiceWithLogger(credentials, tokens, verify, now, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(credentials CredentialStore, tokens TokenIssuer, verify PasswordVerifier, now func() time.Time, logger *slog.Logger) *AuthService {
	if verify == nil {
		verify = VerifyPassword
	}
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		credentials:    credentials,
		tokens:         tokens,
		verifyPassword: verify,
		now:            now,
		logger:         defaultLogger(logger),
	}
}

// WithSessionVerifier enables AuthenticateSession using a browser session token verifier.
func (s *AuthService) WithSessionVerifier(verifier TokenVerifier) *AuthService {
	if s != nil {
		s.sessions = verifier
	}
	return s
}

// WithRecorder attaches an operation recorder and returns the service for chaining.
func (s *AuthService) WithRecorder(recorder OperationRecorder) *AuthService {
	if s != nil {
		s.recorder = recorder
	}
	return s
}

// SessionsEnabled reports whether browser session tokens are accepted.
func (s *AuthService) SessionsEnabled() bool {
	return s != nil && s.sessions != nil
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// Login validates credentials and issues a bearer token.
func (s *AuthService) Login(ctx context.Context, params LoginParams) (result LoginResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.credentials == nil {
		err = fmt.Errorf("credential store not configured")
		return
	}
	if s.tokens == nil {
		err = fmt.Errorf("token issuer not configured")
		return
	}

	email := normalizeEmail(params.Email)
	logger := s.loggerWith(ctx, "Login", "email", email)
	started := time.Now()
	defer func() {
		recordOperation(s.recorder, "AuthService", "Login", started, err)
		if err != nil {
			logger.ErrorContext(ctx, "login failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", result.User.ID).InfoContext(ctx, "login succeeded")
	}()

	if email == "" || params.Password == "" {
		err = ErrInvalidCredentials
		return
	}

	var creds UserCredentials
	creds, err = s.credentials.GetUserCredentialsByEmail(ctx, email)
	if err != nil {
		if errors.Is(mapUserRepoError(err), ErrNotFound) {
			err = ErrInvalidCredentials
		}
		return
	}

	if err = s.verifyPassword(creds.PasswordHash, params.Password); err != nil {
		err = ErrInvalidCredentials
		return
	}

	var (
		token     string
		expiresAt time.Time
	)
	token, expiresAt, err = s.tokens.Issue(creds.User, s.now())
	if err != nil {
		err = fmt.Errorf("issue token: %w", err)
		return
	}

	result = LoginResult{User: creds.User, AccessToken: token, ExpiresAt: expiresAt}
	return
}

// Authenticate verifies a bearer token and returns the principal it was issued to. The user must
// still exist.
func (s *AuthService) Authenticate(ctx context.Context, token string) (Principal, error) {
	if s == nil {
		return Principal{}, fmt.Errorf("AuthService is nil")
	}
	if s.tokens == nil {
		return Principal{}, fmt.Errorf("token issuer not configured")
	}
	return s.resolve(ctx, "Authenticate", s.tokens, token)
}

// AuthenticateSession verifies a browser session token, when session verification is enabled.
func (s *AuthService) AuthenticateSession(ctx context.Context, token string) (Principal, error) {
	if s == nil {
		return Principal{}, fmt.Errorf("AuthService is nil")
	}
	if s.sessions == nil {
		return Principal{}, ErrUnauthenticated
	}
	return s.resolve(ctx, "AuthenticateSession", s.sessions, token)
}

func (s *AuthService) resolve(ctx context.Context, operation string, verifier TokenVerifier, token string) (principal Principal, err error) {
	if s.credentials == nil {
		err = fmt.Errorf("credential store not configured")
		return
	}

	token = strings.TrimSpace(token)
	logger := s.loggerWith(ctx, operation, "token_provided", token != "")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "token rejected", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("principal_id", principal.UserID).DebugContext(ctx, "token accepted")
	}()

	if token == "" {
		err = ErrUnauthenticated
		return
	}

	var userID string
	userID, err = verifier.Verify(token, s.now())
	if err != nil || userID == "" {
		err = ErrUnauthenticated
		return
	}

	var user User
	user, err = s.credentials.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(mapUserRepoError(err), ErrNotFound) {
			err = ErrUnauthenticated
		}
		return
	}

	principal = Principal{UserID: user.ID}
	return
}
