package main

import (
	"strings"
	"time"

	"bandalloc/models"
	"bandalloc/pkg/apperr"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const tokenTTL = 24 * time.Hour

func (s *server) issueToken(user models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": user.Username,
		"role":     user.Role,
		"isAdmin":  user.IsAdmin,
		"exp":      time.Now().Add(tokenTTL).Unix(),
	})
	return token.SignedString(s.jwtSecret)
}

// authenticate validates the bearer token and copies its claims into the
// gin context.
func (s *server) authenticate(c *gin.Context) error {
	authHeader := c.GetHeader("Authorization")
	tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || tokenString == "" {
		return apperr.Unauthorized("missing or invalid Authorization header")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return apperr.Unauthorized("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return apperr.Unauthorized("invalid claims")
	}
	username, _ := claims["username"].(string)
	role, _ := claims["role"].(string)
	isAdmin, _ := claims["isAdmin"].(bool)
	c.Set("username", username)
	c.Set("role", role)
	c.Set("isAdmin", isAdmin)
	return nil
}

func (s *server) jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authenticate(c); err != nil {
			respondError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// requireAdmin guards the mutating users routes when REQUIRE_ADMIN_TOKEN is
// set; otherwise it lets every request through.
func (s *server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.cfg.Auth.RequireAdminToken {
			c.Next()
			return
		}
		if err := s.authenticate(c); err != nil {
			respondError(c, err)
			c.Abort()
			return
		}
		if !c.GetBool("isAdmin") {
			respondError(c, apperr.Forbidden("admin privileges required"))
			c.Abort()
			return
		}
		c.Next()
	}
}
