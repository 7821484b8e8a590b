package auth

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/spec-kit/ticket-channels/internal/domain"
	apperrors "github.com/spec-kit/ticket-channels/pkg/util"
)

const actorKey = "ticket_actor"

// Actor headers. Identity and capability flags are asserted by the calling
// bot or gateway, which is trusted to have resolved them.
const (
	HeaderActorID    = "X-Actor-ID"
	HeaderActorTeam  = "X-Actor-Team"
	HeaderActorAdmin = "X-Actor-Admin"
)

// ActorMiddleware reads the caller identity from request headers.
func ActorMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := utils.CopyString(strings.TrimSpace(c.Get(HeaderActorID)))
		if id == "" {
			return c.Next()
		}
		actor := domain.Actor{
			ID:    id,
			Team:  parseFlag(c.Get(HeaderActorTeam)),
			Admin: parseFlag(c.Get(HeaderActorAdmin)),
		}
		c.Locals(actorKey, actor)
		return c.Next()
	}
}

// ActorFromContext retrieves the caller set by ActorMiddleware.
func ActorFromContext(c *fiber.Ctx) (domain.Actor, bool) {
	actor, ok := c.Locals(actorKey).(domain.Actor)
	return actor, ok
}

func parseFlag(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

// RequireActor rejects requests without an actor identity.
func RequireActor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := ActorFromContext(c); !ok {
			return apperrors.NewUnauthorized("missing " + HeaderActorID + " header")
		}
		return c.Next()
	}
}
