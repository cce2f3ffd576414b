package middleware

import (
	"net/http"
	"strings"

	"funfund-ledger/internal/domain/funding"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	HeaderActorID = "X-Actor-Id"
	HeaderOrgID   = "X-Org-Id"

	actorKey = "funfund.actor"
)

// Actor requires the caller identity set by the upstream auth layer and
// stores it on the echo context. Both headers are mandatory.
func Actor() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			a := funding.Actor{
				UserID: strings.TrimSpace(c.Request().Header.Get(HeaderActorID)),
				OrgID:  strings.TrimSpace(c.Request().Header.Get(HeaderOrgID)),
			}
			if a.UserID == "" || a.OrgID == "" {
				return c.JSON(http.StatusUnauthorized, errBody("unauthenticated", "missing X-Actor-Id or X-Org-Id"))
			}
			c.Set(actorKey, a)

			req := c.Request()
			l := zerolog.Ctx(req.Context()).With().Str("actor_id", a.UserID).Str("org_id", a.OrgID).Logger()
			c.SetRequest(req.WithContext(l.WithContext(req.Context())))
			return next(c)
		}
	}
}

// ActorFrom returns the identity stored by Actor, or the zero Actor.
func ActorFrom(c echo.Context) funding.Actor {
	a, _ := c.Get(actorKey).(funding.Actor)
	return a
}
