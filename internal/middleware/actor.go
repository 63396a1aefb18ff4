package middleware

import (
	"net/http"
	"strings"

	"tarkostock/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ActorKey = "actor"

	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// Actor identifies the caller of a request. It is asserted by the upstream
// gateway; this service performs no authentication of its own.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// ActorHeaders reads the actor id and role headers into the context.
// A malformed actor id is rejected; missing headers leave an anonymous actor
// which policy.Check will refuse.
func ActorHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := Actor{Role: strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorRole)))}
		if raw := strings.TrimSpace(c.GetHeader(HeaderActorID)); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, &apierror.APIError{
					Detail: "invalid actor id",
					Kind:   apierror.KindValidation,
				})
				return
			}
			actor.ID = id
		}
		c.Set(ActorKey, actor)
		c.Next()
	}
}

// GetActor is a helper to retrieve the actor from the Gin context.
func GetActor(c *gin.Context) Actor {
	actor, _ := c.Get(ActorKey)
	a, _ := actor.(Actor)
	return a
}
