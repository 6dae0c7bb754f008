package api

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edgard/nexa/internal/database"
	"github.com/edgard/nexa/internal/errs"
)

const (
	telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
	listenerSecretHeader = "X-Nexa-Listener-Secret"
)

// requireHeader rejects requests whose header does not equal secret. An empty
// secret disables the check.
func requireHeader(header, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		if !secretEqual(c.GetHeader(header), secret) {
			abortWithError(c, errs.NewUnauthorized("unauthorized"))
			return
		}
		c.Next()
	}
}

// requireBearer checks Authorization: Bearer <token> when token is set.
func requireBearer(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || !secretEqual(strings.TrimSpace(got), token) {
			abortWithError(c, errs.NewUnauthorized("unauthorized"))
			return
		}
		c.Next()
	}
}

func validPlatform() gin.HandlerFunc {
	return func(c *gin.Context) {
		if p := c.Param("platform"); !database.ValidPlatform(p) {
			abortWithError(c, errs.NewValidation("unsupported platform "+p, nil))
			return
		}
		c.Next()
	}
}

func secretEqual(got, want string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// abortWithError writes the error response for err and stops the chain.
func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(errs.HTTPStatus(err), gin.H{"error": errs.PublicMessage(err)})
}
