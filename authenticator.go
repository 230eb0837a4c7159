package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// RegisterUserMessage carries the registration payload into the service
type RegisterUserMessage struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	// UseHashid derives the user id deterministically from the email
	UseHashid bool `json:"-"`
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type Auther struct {
	provider     IdentityProvider
	repo         RepositoryManager
	signingKey   []byte
	logger       Logger
	tokenService TokenService
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, repo RepositoryManager, opts Config) *Auther {
	tokenService := NewTokenService(
		[]byte(opts.GetSigningKey()),
		opts.GetTokenExpiration(),
		opts.GetIssuer(),
		opts.GetAudience(),
		defLogger{},
	)

	return &Auther{
		provider:     provider,
		repo:         repo,
		signingKey:   []byte(opts.GetSigningKey()),
		logger:       defLogger{},
		tokenService: tokenService,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithTokenService sets a custom token service, mostly useful in tests.
func (s *Auther) WithTokenService(ts TokenService) *Auther {
	if ts != nil {
		s.tokenService = ts
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

var _ Authenticator = (*Auther)(nil)

// Register creates a new user. The role must belong to the closed set,
// the email must be free, and the password is hashed before it ever
// touches the store. No token is issued on registration.
func (s *Auther) Register(ctx context.Context, msg RegisterUserMessage) (*User, error) {
	role, ok := ParseRole(msg.Role)
	if !ok {
		return nil, ErrInvalidRole.Clone().
			WithMetadata(map[string]any{"role": msg.Role})
	}

	user := &User{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(msg.Password)
		if err != nil {
			var richErr *errors.Error
			if errors.As(err, &richErr) {
				return richErr
			}
			return errors.Wrap(err, errors.CategoryInternal, "failed to hash password")
		}

		user.Name = msg.Name
		user.Email = msg.Email
		user.Role = role
		user.PasswordHash = hash
		if msg.UseHashid {
			if id, err := hashid.NewUUID(msg.Email); err == nil {
				user.ID = id
			}
		}

		if user, err = s.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		s.logger.Error("Register user error", "error", err, "email", msg.Email)

		var richErr *errors.Error
		if errors.As(err, &richErr) {
			return nil, richErr
		}

		return nil, errors.Wrap(err, errors.CategoryInternal, "user registration transaction failed")
	}

	return user, nil
}

// Login verifies the credentials and, on success, issues a token bound
// to the user's id and role. The returned user is safe to serialize.
func (s *Auther) Login(ctx context.Context, email, password string) (string, *User, error) {
	user, err := s.provider.VerifyIdentity(ctx, email, password)
	if err != nil {
		s.logger.Error("Login verify identity error", "error", err)
		return "", nil, err
	}

	if user == nil {
		s.logger.Error("Login identity is nil")
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.tokenService.Generate(IdentityFromUser(user))
	if err != nil {
		s.logger.Error("Login token generation error", "error", err)
		return "", nil, err
	}

	return token, user, nil
}
