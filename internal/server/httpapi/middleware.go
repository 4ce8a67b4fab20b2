package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/infinex-exchange/account.account/internal/common"
	"github.com/infinex-exchange/account.account/internal/server/models"
)

const authKey = "auth"

// requestID assigns every request an id, echoed in the X-Request-Id header
// and attached to all log lines for the request.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-Id", id)
		c.Set("requestID", id)
		c.Next()
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info(c.Request.Context(), "request",
			"id", c.GetString("requestID"),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// authenticate resolves the bearer token when one is present and stashes the
// caller identity. It never rejects: public endpoints run without identity,
// and requireAuth enforces it where needed. A malformed or unknown token on
// a public endpoint is still reported, so clients learn about dead tokens
// early.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}

		auth, err := s.sessions.CheckToken(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, common.ErrUnauthorized) || errors.Is(err, common.ErrInvalidFormat) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{
					Error: "UNAUTHORIZED",
					Msg:   "invalid bearer token",
				})
				return
			}
			s.fail(c, err)
			return
		}

		c.Set(authKey, auth)
		c.Next()
	}
}

// requireAuth wraps a handler that needs an authenticated caller.
func (s *Server) requireAuth(h func(*gin.Context, *models.Auth)) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(authKey)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{
				Error: "UNAUTHORIZED",
				Msg:   "authentication required",
			})
			return
		}
		h(c, v.(*models.Auth))
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
