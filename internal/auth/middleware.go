package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/maintenance-service/pkg/util/errorutil"
)

const actorKey = "auth_actor"

// Actor is the authenticated caller. User management itself lives in an
// external collaborator; only the verified identity crosses this boundary.
type Actor struct {
	PersonID    string
	DisplayName string
}

// Middleware validates bearer tokens and attaches the actor identity.
type Middleware struct {
	tokens *TokenManager
}

// NewMiddleware constructs middleware.
func NewMiddleware(tokens *TokenManager) *Middleware {
	return &Middleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewAuthenticationRequired("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewAuthenticationRequired("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewAuthenticationRequired("invalid token")
	}

	c.Locals(actorKey, &Actor{PersonID: claims.PersonID, DisplayName: claims.DisplayName})
	return c.Next()
}

// ActorFromContext retrieves the authenticated actor.
func ActorFromContext(c *fiber.Ctx) (*Actor, bool) {
	val := c.Locals(actorKey)
	if val == nil {
		return nil, false
	}
	actor, ok := val.(*Actor)
	return actor, ok
}
