package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/erp/kksync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SharedSecretHeader carries the secret of event callers
const SharedSecretHeader = "X-Shared-Secret"

// SharedSecret authenticates event callers by a pre-shared secret. An empty
// secret rejects every request.
func SharedSecret(secret string, log *zap.Logger) gin.HandlerFunc {
	want := []byte(secret)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(SharedSecretHeader))
		if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
			if log != nil {
				log.Warn("Event caller rejected",
					zap.String("path", c.Request.URL.Path),
					zap.String("client_ip", c.ClientIP()),
				)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeUnauthorized, "Invalid shared secret", GetRequestID(c)))
			return
		}
		c.Next()
	}
}
