package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Additional-Code/palate/internal/config"
	"github.com/Additional-Code/palate/internal/entity"
	repo "github.com/Additional-Code/palate/internal/repository/account"
	"github.com/Additional-Code/palate/internal/schema"
	"github.com/Additional-Code/palate/pkg/errorbank"
)

// Module provides the account service to Fx.
var Module = fx.Provide(
	NewService,
	func(r *repo.Repository) Store { return r },
	func(b *schema.Bootstrapper) Bootstrapper { return b },
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/palate/service/account")

// Store is the persistence the service needs.
type Store interface {
	Create(ctx context.Context, acc *entity.Account) error
	GetByEmail(ctx context.Context, email string) (entity.Account, error)
}

// Bootstrapper ensures the users table exists.
type Bootstrapper interface {
	EnsureAccounts(ctx context.Context) error
}

// Session is the result of a successful register or login.
type Session struct {
	Token   string
	Account entity.Account
}

// Claims are carried by issued tokens.
type Claims struct {
	Email string `json:"email"`
	ID    int64  `json:"id"`
	jwt.RegisteredClaims
}

const hashCost = 10

// Service registers and authenticates storefront customers.
type Service struct {
	store  Store
	schema Bootstrapper
	secret []byte
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Store  Store
	Schema Bootstrapper
	Config config.Config
	Logger *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  p.Store,
		schema: p.Schema,
		secret: []byte(p.Config.Auth.JWTSecret),
		ttl:    p.Config.Auth.TokenTTL,
		logger: logger,
		now:    time.Now,
	}
}

// Register creates an account and signs a token for it.
func (s *Service) Register(ctx context.Context, acc entity.Account, password string) (Session, error) {
	ctx, span := serviceTracer.Start(ctx, "AccountService.Register")
	defer span.End()

	acc.Email = strings.ToLower(strings.TrimSpace(acc.Email))
	if acc.Email == "" || password == "" {
		return Session{}, errorbank.BadRequest("Email and password required")
	}

	if err := s.schema.EnsureAccounts(ctx); err != nil {
		return Session{}, errorbank.Unavailable("Server Error", errorbank.WithCause(err))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		return Session{}, errorbank.Internal("Server Error", errorbank.WithCause(err))
	}
	acc.PasswordHash = string(hash)

	if err := s.store.Create(ctx, &acc); err != nil {
		if errors.Is(err, repo.ErrEmailTaken) {
			return Session{}, errorbank.Conflict("Email already registered")
		}
		s.logger.Error("register account", zap.Error(err))
		return Session{}, errorbank.Unavailable("Server Error", errorbank.WithCause(err))
	}

	return s.session(acc)
}

// Login checks the password and signs a token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	ctx, span := serviceTracer.Start(ctx, "AccountService.Login")
	defer span.End()

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Session{}, errorbank.BadRequest("Email and password required")
	}

	if err := s.schema.EnsureAccounts(ctx); err != nil {
		return Session{}, errorbank.Unavailable("Server Error", errorbank.WithCause(err))
	}

	acc, err := s.store.GetByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return Session{}, errorbank.Unauthorized("Invalid credentials")
	}
	if err != nil {
		s.logger.Error("login lookup", zap.Error(err))
		return Session{}, errorbank.Unavailable("Server Error", errorbank.WithCause(err))
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return Session{}, errorbank.Unauthorized("Invalid credentials")
	}

	return s.session(acc)
}

// ParseToken validates a bearer token issued by this service.
func (s *Service) ParseToken(token string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, errorbank.Unauthorized("invalid token", errorbank.WithCause(err))
	}
	return claims, nil
}

// Current resolves the account behind a bearer token.
func (s *Service) Current(ctx context.Context, token string) (entity.Account, error) {
	ctx, span := serviceTracer.Start(ctx, "AccountService.Current")
	defer span.End()

	claims, err := s.ParseToken(token)
	if err != nil {
		return entity.Account{}, err
	}

	if err := s.schema.EnsureAccounts(ctx); err != nil {
		return entity.Account{}, errorbank.Unavailable("Server Error", errorbank.WithCause(err))
	}

	acc, err := s.store.GetByEmail(ctx, claims.Email)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && acc.ID != claims.ID) {
		return entity.Account{}, errorbank.Unauthorized("invalid token")
	}
	if err != nil {
		return entity.Account{}, errorbank.Unavailable("Server Error", errorbank.WithCause(err))
	}
	acc.PasswordHash = ""
	return acc, nil
}

func (s *Service) session(acc entity.Account) (Session, error) {
	now := s.now()
	claims := Claims{
		Email: acc.Email,
		ID:    acc.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, errorbank.Internal("Server Error", errorbank.WithCause(err))
	}
	acc.PasswordHash = ""
	return Session{Token: token, Account: acc}, nil
}
