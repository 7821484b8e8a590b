package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/ticket-channels/pkg/util"
)

// RequireAdmin ensures the caller carries the admin flag.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := ActorFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("missing " + HeaderActorID + " header")
		}
		if !actor.Admin {
			return apperrors.NewPermissionDenied("admin capability required", nil)
		}
		return c.Next()
	}
}

// RequireTeam ensures the caller carries team or admin capability.
func RequireTeam() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := ActorFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("missing " + HeaderActorID + " header")
		}
		if !actor.HasTeamCapability() {
			return apperrors.NewPermissionDenied("team capability required", nil)
		}
		return c.Next()
	}
}
