package app

import (
	"net/http"

	"device_loan_tool/session"

	"github.com/gin-gonic/gin"
)

const AdminSessionCookie = "admin_session"

// AdminRequired 管理口令通过后发的 Redis 会话，没有就 401
func AdminRequired(adminSess *session.AdminSessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ck, err := c.Request.Cookie(AdminSessionCookie)
		if err != nil || ck.Value == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		if _, err := adminSess.Get(c.Request.Context(), ck.Value); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "invalid session"})
			return
		}
		c.Next()
	}
}
