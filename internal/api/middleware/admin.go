package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminRequired 仅允许 admin 角色访问，需先经过 AuthMiddleware。
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("role") != "admin" {
			c.JSON(http.StatusForbidden, gin.H{"message": "Admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}
