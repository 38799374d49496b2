package middleware

import (
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"tradiehub-backend/internal/apperr"
	"tradiehub-backend/internal/config"
	"tradiehub-backend/internal/models"
)

const (
	UserIDKey = "user_id"
	RoleKey   = "user_role"
	ActorKey  = "actor"
)

// AuthMiddleware verifies an HS256 bearer token and stores the caller's
// identity in the context. The token carries sub, role and email_verified.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, apperr.AuthenticationRequired("missing authorization header"))
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortWithError(c, apperr.AuthenticationRequired("invalid authorization header format"))
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			abortWithError(c, apperr.AuthenticationRequired("empty token"))
			return
		}

		// Some clients URL-encode the token.
		if decoded, err := url.QueryUnescape(tokenString); err == nil {
			tokenString = decoded
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			if cfg.JWTSecret == "" {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(cfg.JWTSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			abortWithError(c, apperr.AuthenticationRequired(tokenErrorMessage(err)))
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			abortWithError(c, apperr.AuthenticationRequired("invalid token claims"))
			return
		}

		sub, _ := claims["sub"].(string)
		userID, err := uuid.Parse(sub)
		if err != nil {
			abortWithError(c, apperr.AuthenticationRequired("missing or invalid user id in token"))
			return
		}

		role := models.Role(stringClaim(claims, "role"))
		switch role {
		case models.RoleTradie, models.RoleClient, models.RoleAdmin:
		default:
			abortWithError(c, apperr.AuthenticationRequired("missing or invalid role in token"))
			return
		}

		verified, _ := claims["email_verified"].(bool)
		actor := models.Actor{UserID: userID, Role: role, EmailVerified: verified}

		c.Set(UserIDKey, userID.String())
		c.Set(RoleKey, string(role))
		c.Set(ActorKey, actor)
		c.Next()
	}
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	// Supabase style tokens keep custom claims under app_metadata.
	if meta, ok := claims["app_metadata"].(map[string]interface{}); ok {
		if v, ok := meta[key].(string); ok {
			return v
		}
	}
	return ""
}

func tokenErrorMessage(err error) string {
	switch {
	case err == nil:
		return "invalid token"
	case strings.Contains(err.Error(), "signature is invalid"):
		return "token signature is invalid"
	case strings.Contains(err.Error(), "token is expired"):
		return "token has expired"
	case strings.Contains(err.Error(), "could not JSON decode"), strings.Contains(err.Error(), "malformed"):
		return "token is malformed"
	}
	return "invalid token"
}

// CurrentActor returns the identity stored by AuthMiddleware.
func CurrentActor(c *gin.Context) (models.Actor, bool) {
	v, ok := c.Get(ActorKey)
	if !ok {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}

// RequireRole rejects callers whose role is not listed. It must run after
// AuthMiddleware.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := CurrentActor(c)
		if !ok {
			abortWithError(c, apperr.AuthenticationRequired("authentication required"))
			return
		}
		for _, role := range roles {
			if actor.Role == role {
				c.Next()
				return
			}
		}
		abortWithError(c, apperr.UnauthorizedAccess("your role cannot perform this action"))
	}
}

// RequireVerifiedEmail rejects callers whose email address is unverified.
func RequireVerifiedEmail() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := CurrentActor(c)
		if !ok {
			abortWithError(c, apperr.AuthenticationRequired("authentication required"))
			return
		}
		if !actor.EmailVerified {
			abortWithError(c, apperr.UnauthorizedAccess("verify your email address to continue"))
			return
		}
		c.Next()
	}
}

func abortWithError(c *gin.Context, err *apperr.Error) {
	c.AbortWithStatusJSON(err.HTTPStatus(), models.APIResponse{
		Success: false,
		Message: err.Message,
		Code:    string(err.Kind),
	})
}
