package identity

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
)

// AccessGuard gates protected routes. It validates the bearer token,
// resolves the live user behind the token's subject, optionally enforces
// a required role, and attaches the user for downstream handlers.
//
// Resolving the user on every request is what makes tokens for deleted
// accounts stop working before their natural expiry.
type AccessGuard struct {
	tokens     TokenService
	provider   IdentityProvider
	authScheme string
	contextKey string
	logger     Logger
}

// NewAccessGuard creates a guard bound to a token service and a user
// provider
func NewAccessGuard(tokens TokenService, provider IdentityProvider, cfg Config) *AccessGuard {
	scheme := cfg.GetAuthScheme()
	if scheme == "" {
		scheme = "Bearer"
	}

	contextKey := cfg.GetContextKey()
	if contextKey == "" {
		contextKey = "user"
	}

	return &AccessGuard{
		tokens:     tokens,
		provider:   provider,
		authScheme: scheme,
		contextKey: contextKey,
		logger:     defLogger{},
	}
}

func (g *AccessGuard) WithLogger(logger Logger) *AccessGuard {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// ContextKey returns the locals key the guard stores the user under
func (g *AccessGuard) ContextKey() string {
	return g.contextKey
}

// Protected builds the middleware for a route. With no required role any
// authenticated user passes; with one, the resolved user's role must
// match exactly.
func (g *AccessGuard) Protected(required ...UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, err := g.extractToken(c)
		if err != nil {
			return err
		}

		claims, err := g.tokens.Validate(raw)
		if err != nil {
			// expired and malformed both map to 401; keep the specific
			// text code from the validator
			return err
		}

		user, err := g.provider.FindUserByID(c.UserContext(), claims.UserID())
		if err != nil {
			if errors.IsNotFound(err) {
				g.logger.Debug("guard rejected token for missing user", "subject", claims.UserID())
				return ErrUnauthenticated
			}
			return err
		}

		if len(required) > 0 {
			allowed := false
			for _, role := range required {
				if user.Role == role {
					allowed = true
					break
				}
			}
			if !allowed {
				return ErrForbidden
			}
		}

		c.Locals(g.contextKey, user)
		c.SetUserContext(WithContext(c.UserContext(), user))

		return c.Next()
	}
}

func (g *AccessGuard) extractToken(c *fiber.Ctx) (string, error) {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return "", ErrUnauthenticated
	}

	prefix := g.authScheme + " "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrUnauthenticated
	}

	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", ErrUnauthenticated
	}

	return token, nil
}

// UserFromFiber retrieves the guard-attached user from a fiber context
func UserFromFiber(c *fiber.Ctx, key string) (*User, bool) {
	if key == "" {
		key = "user"
	}
	user, ok := c.Locals(key).(*User)
	return user, ok
}
