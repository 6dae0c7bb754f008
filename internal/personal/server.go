package personal

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edgard/nexa/internal/logger"
)

// ReplySecretHeader authenticates backend calls to /send_reply.
const ReplySecretHeader = "X-USERBOT-SECRET"

// TextSender sends a text message through the user session.
type TextSender interface {
	SendText(ctx context.Context, chatID, text string) error
}

type sendReplyRequest struct {
	ChatID any    `json:"chat_id"`
	Text   string `json:"text"`
}

// NewRouter returns the listener HTTP surface.
func NewRouter(sender TextSender, secret string, log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.Middleware(log))
	r.POST("/send_reply", sendReplyHandler(sender, secret, log))
	return r
}

func sendReplyHandler(sender TextSender, secret string, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(ReplySecretHeader)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req sendReplyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		if req.Text == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "text required"})
			return
		}
		chatID := chatIDString(req.ChatID)
		if chatID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "chat_id required"})
			return
		}

		ctx := c.Request.Context()
		if err := sender.SendText(ctx, chatID, req.Text); err != nil {
			log.ErrorContext(ctx, "Failed to send reply via user session", "chat_id", chatID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		log.InfoContext(ctx, "Sent reply", "chat_id", chatID, "text", logger.Truncate(req.Text, 120))
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// chatIDString accepts chat ids sent as JSON strings or numbers.
func chatIDString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		if id == 0 {
			return ""
		}
		return strconv.FormatInt(int64(id), 10)
	default:
		return ""
	}
}
