package api

import (
	"net/http"

	"trade-journal/internal/journal"

	"github.com/gin-gonic/gin"
)

// requireSession rejects requests while nobody is signed in or the token
// has expired
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.svc.Session.IsAuthenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   true,
				"message": "not signed in",
			})
			return
		}
		c.Next()
	}
}

// requireRole admits only users holding one of roles
func (s *Server) requireRole(roles ...journal.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.svc.Session.HasRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   true,
				"message": "insufficient permissions",
			})
			return
		}
		c.Next()
	}
}
