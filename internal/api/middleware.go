package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"cert-checker/internal/conf"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// AuthMiddleware checks "Authorization: Bearer <token>". The token passes when
// it equals auth.Token, matches the bcrypt auth.TokenHash, or is an unexpired
// HS256 JWT signed with auth.Token. With neither configured every request passes.
func AuthMiddleware(auth conf.AuthConfig) gin.HandlerFunc {
	if !auth.Enabled() {
		logrus.Warn("No auth token configured, API is unauthenticated")
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		token = strings.TrimSpace(token)

		if !validToken(auth, token) {
			logrus.WithField(requestIDKey, c.GetString(requestIDKey)).Warnf("Rejected token from %s", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

func validToken(auth conf.AuthConfig, token string) bool {
	if auth.Token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(auth.Token)) == 1 {
		return true
	}
	if auth.TokenHash != "" && bcrypt.CompareHashAndPassword([]byte(auth.TokenHash), []byte(token)) == nil {
		return true
	}
	if auth.Token != "" && strings.Count(token, ".") == 2 {
		parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
			return []byte(auth.Token), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		return err == nil && parsed.Valid
	}
	return false
}

// RequestID tags every request with an id, reusing the caller's X-Request-ID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// Logger writes one logrus line per request.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logrus.WithFields(logrus.Fields{
			requestIDKey: c.GetString(requestIDKey),
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"latency":    time.Since(start).Round(time.Microsecond).String(),
			"client":     c.ClientIP(),
		})
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("request failed")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Info("request")
		}
	}
}
