package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Ключи gin.Context, которые выставляет jwtMiddleware
const (
	ctxOperatorID = "operator_id"
	ctxOperator   = "operator"
)

// jwtMiddleware проверяет JWT токен в заголовке Authorization
func (s *Server) jwtMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{
				Success: false,
				Message: "Отсутствует токен авторизации",
			})
			return
		}

		// Проверяем формат "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{
				Success: false,
				Message: "Неверный формат токена",
			})
			return
		}

		claims, err := s.signer.Validate(parts[1])
		if err != nil {
			s.logger.Debug("🔒 Отклонен токен: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{
				Success: false,
				Message: "Недействительный токен",
			})
			return
		}

		c.Set(ctxOperatorID, claims.OperatorID)
		c.Set(ctxOperator, claims.Username)
		c.Next()
	}
}

// corsMiddleware разрешает запросы из браузерных инструментов
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
