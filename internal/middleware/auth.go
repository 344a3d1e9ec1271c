package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/flicky/solar-storefront/internal/model"
)

const (
	ctxUserID    = "userID"
	ctxUserRole  = "userRole"
	ctxUserEmail = "userEmail"
)

// AuthMiddleware validates an HS256 bearer token from the Authorization header.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return authenticate(secret, false)
}

// StreamAuthMiddleware also accepts ?access_token=, since browsers cannot set
// headers on EventSource. Mount it on the event stream only: query strings
// end up in access logs.
func StreamAuthMiddleware(secret string) gin.HandlerFunc {
	return authenticate(secret, true)
}

func authenticate(secret string, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c, allowQuery)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			return
		}

		sub, _ := claims["sub"].(string)
		userID, err := uuid.Parse(sub)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
			return
		}

		role, _ := claims["role"].(string)
		email, _ := claims["email"].(string)
		c.Set(ctxUserID, userID)
		c.Set(ctxUserRole, role)
		c.Set(ctxUserEmail, email)
		c.Next()
	}
}

func bearerToken(c *gin.Context, allowQuery bool) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	if allowQuery {
		return c.Query("access_token")
	}
	return ""
}

func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}
		c.Next()
	}
}

func GetUserID(c *gin.Context) uuid.UUID {
	id, _ := c.Get(ctxUserID)
	uid, _ := id.(uuid.UUID)
	return uid
}

func GetUserRole(c *gin.Context) string {
	role, _ := c.Get(ctxUserRole)
	r, _ := role.(string)
	return r
}

func GetUserEmail(c *gin.Context) string {
	return c.GetString(ctxUserEmail)
}

func IsAdmin(c *gin.Context) bool {
	return GetUserRole(c) == model.RoleAdmin
}
