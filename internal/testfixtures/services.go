package testfixtures

import (
	"io"
	"log/slog"
	"time"

	"github.com/example/meeting-service/internal/application"
)

// ServiceFactory constructs application services over a shared MemoryStore using deterministic
// identifiers and a stepping clock.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Store       *MemoryStore
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a factory whose clock advances one second per reading.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewSteppingClock(time.Time{}, time.Second),
		IDGenerator: NewIDGenerator("id"),
		Store:       NewMemoryStore(),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(factory)
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		if clock != nil {
			factory.Clock = clock
		}
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		if generator != nil {
			factory.IDGenerator = generator
		}
	}
}

// WithUsers seeds the factory store with accounts.
func WithUsers(users ...UserFixture) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Store.SeedUsers(users...)
	}
}

// MeetingService builds a meeting service backed by the factory store.
func (f *ServiceFactory) MeetingService() *application.MeetingService {
	return application.NewMeetingServiceWithLogger(f.Store, f.Store, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

// UserService builds a user service backed by the factory store. Passwords are hashed with
// cheap argon2id parameters.
func (f *ServiceFactory) UserService() *application.UserService {
	return application.NewUserServiceWithLogger(f.Store, application.HasherWithParams(CheapArgon2idParams), f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

// AuthService builds an auth service backed by the factory store.
func (f *ServiceFactory) AuthService(tokens application.TokenIssuer) *application.AuthService {
	return application.NewAuthServiceWithLogger(f.Store, tokens, nil, f.Clock.NowFunc(), f.Logger)
}

// CheapArgon2idParams keeps password hashing fast in tests.
var CheapArgon2idParams = application.Argon2idParams{
	Memory:      1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  8,
	KeyLength:   16,
}
