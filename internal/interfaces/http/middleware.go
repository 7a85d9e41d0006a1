package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/jd-approval/pkg/apperrors"
	"github.com/garyjia/jd-approval/pkg/auth"
)

const principalKey = "principal"

// accessLog logs one line per request
func accessLog(logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// requireAuth validates the bearer token and stores the principal on both
// the gin context and the request context
func requireAuth(tokens TokenVerifier, logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		principal, err := tokens.Verify(strings.TrimSpace(parts[1]))
		if err != nil {
			logger.Info("Rejected token", "path", c.Request.URL.Path, "error", err)
			abortUnauthorized(c, "invalid or expired token")
			return
		}

		c.Set(principalKey, principal)
		c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
		Success: false,
		Error:   message,
		Code:    "UNAUTHORIZED",
	})
}

// principalOf returns the identity placed by requireAuth
func principalOf(c *gin.Context) auth.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(auth.Principal); ok {
			return p
		}
	}
	p, _ := auth.PrincipalFrom(c.Request.Context())
	return p
}

// respondError renders an application error with its kind's status and code
func respondError(c *gin.Context, logger Logger, msg string, err error) {
	status := apperrors.HTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	if status >= http.StatusInternalServerError {
		logger.Error(msg, "path", c.Request.URL.Path, "error", err)
	} else {
		logger.Info(msg, "path", c.Request.URL.Path, "status", status, "error", err)
	}

	c.JSON(status, Response{
		Success: false,
		Error:   message,
		Code:    apperrors.Code(err),
	})
}
