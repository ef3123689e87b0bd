package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/atharvakonge/papertrade/internal/apperr"
	"github.com/atharvakonge/papertrade/internal/config"
)

const userIDKey = "userID"

// Auth verifies the HS256 bearer token and stores the caller's id in the
// context. The id is the "sub" claim, or "user_id" for tokens that carry
// no subject.
func Auth(cfg config.AuthConfig) gin.HandlerFunc {
	secret := []byte(cfg.JWTSecret)
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			AbortWithError(c, apperr.New(apperr.CodeUnauthorized, "No authorization header found"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			AbortWithError(c, apperr.New(apperr.CodeUnauthorized, "Invalid authorization header format"))
			return
		}

		claims := jwt.MapClaims{}
		token, err := parser.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || !token.Valid {
			AbortWithError(c, apperr.Wrap(apperr.CodeUnauthorized, "Invalid token", err))
			return
		}

		userID := subject(claims)
		if userID == "" {
			AbortWithError(c, apperr.New(apperr.CodeUnauthorized, "Token has no subject"))
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func subject(claims jwt.MapClaims) string {
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub
	}
	switch v := claims["user_id"].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}

// UserID returns the id stored by Auth, or "" on unauthenticated routes.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
