package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"phishbox/internal/handler"
	"phishbox/pkg/rbac"
	"phishbox/pkg/trace"
	"phishbox/pkg/util"
)

// TraceMiddleware takes the trace id from the request header, or makes a
// new one, and echoes it on the response.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := c.GetHeader(trace.HeaderName); id != "" {
			ctx = trace.WithContext(ctx, id)
		}
		ctx, id := trace.Ensure(ctx)

		c.Request = c.Request.WithContext(ctx)
		c.Header(trace.HeaderName, id)
		c.Next()
	}
}

// AuthMiddleware identifies the operator from a bearer JWT. With no secret
// configured every caller is the anonymous analyst.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSecret == "" {
			c.Set(handler.ContextOperator, "anonymous")
			c.Set(handler.ContextRole, rbac.RoleAnalyst)
			c.Next()
			return
		}

		token := util.ExtractBearer(c.GetHeader("Authorization"))
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		operator, role, err := util.ParseJWT(token, jwtSecret)
		if err != nil || !rbac.ValidRole(role) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set(handler.ContextOperator, operator)
		c.Set(handler.ContextRole, role)
		c.Next()
	}
}

// RequirePermission rejects operators whose role lacks permission.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(handler.ContextRole)
		if role == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "operator not authenticated"})
			c.Abort()
			return
		}

		if err := rbac.CheckPermission(handler.Operator(c), role, permission); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			c.Abort()
			return
		}
		c.Next()
	}
}
