package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Service authenticates the single dashboard user and guards routes
type Service struct {
	jwtManager *JWTManager
	adminUser  string
	adminHash  string
}

// NewService creates the auth service. adminHash is the bcrypt hash of
// the admin password.
func NewService(jwtManager *JWTManager, adminUser, adminHash string) *Service {
	return &Service{
		jwtManager: jwtManager,
		adminUser:  adminUser,
		adminHash:  adminHash,
	}
}

// Login verifies credentials and issues an access token
func (s *Service) Login(username, password string) (string, error) {
	if username != s.adminUser || !VerifyPassword(s.adminHash, password) {
		return "", fmt.Errorf("invalid credentials")
	}
	return s.jwtManager.GenerateToken(username)
}

// Middleware rejects requests without a valid bearer token
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := s.jwtManager.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("username", claims.Username)
		c.Next()
	}
}
