package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medgas-backend/internal/model"
)

const (
	identityKey = "medgas.identity"
	orgKey      = "medgas.organization"
)

// Identity is the caller as asserted by the gateway in front of the service.
type Identity struct {
	TeamID string
	UserID string
}

// IdentityResolver extracts the caller from a request.
type IdentityResolver interface {
	Resolve(r *http.Request) (Identity, bool)
}

// HeaderIdentity trusts identity headers set by an authenticating proxy.
type HeaderIdentity struct {
	TeamHeader string
	UserHeader string
}

func (h HeaderIdentity) Resolve(r *http.Request) (Identity, bool) {
	id := Identity{TeamID: r.Header.Get(h.TeamHeader), UserID: r.Header.Get(h.UserHeader)}
	return id, id.TeamID != "" && id.UserID != ""
}

// RequireIdentity rejects requests without a caller identity.
func RequireIdentity(res IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := res.Resolve(c.Request)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity", "kind": "unauthenticated"})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func identityOf(c *gin.Context) Identity {
	id, _ := c.Get(identityKey)
	v, _ := id.(Identity)
	return v
}

// owns lets the request through only when the entity named by the path param
// belongs to the caller's team.
func (h *Handler) owns(entity, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		org, err := h.store.OrganizationOf(c.Request.Context(), entity, c.Param(param))
		if err != nil {
			h.respondError(c, err)
			return
		}
		if org.TeamID != identityOf(c).TeamID {
			forbidden(c)
			return
		}
		c.Set(orgKey, org)
		c.Next()
	}
}

// callerOrg loads the organization of the caller's team, writing the error response when absent.
func (h *Handler) callerOrg(c *gin.Context) (*model.Organization, bool) {
	if v, ok := c.Get(orgKey); ok {
		return v.(*model.Organization), true
	}
	org, err := h.store.Hierarchy.GetOrganizationByTeam(c.Request.Context(), identityOf(c).TeamID)
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return org, true
}

// authorize checks ownership of an entity named outside the path, such as a query parameter.
func (h *Handler) authorize(c *gin.Context, entity, id string) bool {
	org, err := h.store.OrganizationOf(c.Request.Context(), entity, id)
	if err != nil {
		h.respondError(c, err)
		return false
	}
	if org.TeamID != identityOf(c).TeamID {
		forbidden(c)
		return false
	}
	return true
}

func forbidden(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a member of the owning organization", "kind": "forbidden"})
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, err)
		return false
	}
	return true
}

// optionalQuery returns nil for an absent or empty query parameter.
func optionalQuery(c *gin.Context, key string) *string {
	if v := c.Query(key); v != "" {
		return &v
	}
	return nil
}

type nameRequest struct {
	Name string `json:"name" binding:"required"`
}
