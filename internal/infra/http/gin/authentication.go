package ginserver

import (
	"log/slog"
	"strings"

	gin "github.com/gin-gonic/gin"

	"roomstay/internal/app/services/auth"
	"roomstay/internal/domain/identity"
)

const principalContextKey = "roomstay.principal"

// AuthMiddleware resolves bearer tokens and admin keys into a principal.
// Requests without credentials continue anonymously and are refused by the
// bus when the operation needs a caller; bad credentials stop here.
type AuthMiddleware struct {
	Service *auth.Service
	Logger  *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	creds := auth.Credentials{
		Bearer:   extractBearerToken(c.GetHeader("Authorization")),
		AdminKey: strings.TrimSpace(c.GetHeader("X-Admin-Key")),
	}
	if creds.Empty() || m.Service == nil {
		c.Next()
		return
	}
	p, err := m.Service.Resolve(c.Request.Context(), creds)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Debug("credentials rejected", "error", err, "client_ip", c.ClientIP())
		}
		writeError(c, m.Logger, err)
		c.Abort()
		return
	}
	setPrincipal(c, p)
	c.Next()
}

func setPrincipal(c *gin.Context, p identity.Principal) {
	c.Set(principalContextKey, p)
	c.Request = c.Request.WithContext(identity.WithPrincipal(c.Request.Context(), p))
}

// currentPrincipal returns the caller or the zero principal.
func currentPrincipal(c *gin.Context) identity.Principal {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return identity.Principal{}
	}
	p, _ := val.(identity.Principal)
	return p
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
