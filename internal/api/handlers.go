package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edgard/nexa/internal/errs"
)

type userRequest struct {
	UserID int64 `json:"user_id" binding:"required,min=1"`
}

type sendRequest struct {
	UserID int64  `json:"user_id" binding:"required,min=1"`
	Text   string `json:"text"    binding:"required"`
}

type replyRequest struct {
	Text string `json:"text" binding:"required"`
}

func (s *Server) health(c *gin.Context) {
	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(c.Request.Context()); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) webhook(platform string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var update map[string]any
		if err := json.NewDecoder(c.Request.Body).Decode(&update); err != nil || update == nil {
			abortWithError(c, errs.NewValidation("request body must be a JSON object", err))
			return
		}

		res, err := s.deps.Ingest.Handle(c.Request.Context(), platform, update)
		if err != nil {
			abortWithError(c, err)
			return
		}

		switch {
		case res.Skipped:
			c.JSON(http.StatusOK, gin.H{"ok": true, "skipped": true})
		case res.Linked:
			c.JSON(http.StatusOK, gin.H{"ok": true, "linked": true})
		case res.Duplicate:
			c.JSON(http.StatusOK, gin.H{"ok": true, "stored_id": res.StoredID, "duplicate": true})
		default:
			c.JSON(http.StatusOK, gin.H{"ok": true, "stored_id": res.StoredID})
		}
	}
}

func (s *Server) requestLink(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errs.NewValidation("user_id required", err))
		return
	}

	issued, err := s.deps.Linking.Issue(c.Request.Context(), req.UserID, c.Param("platform"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, issued)
}

func (s *Server) send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errs.NewValidation("user_id and text required", err))
		return
	}

	if err := s.deps.Linking.SendToUser(c.Request.Context(), req.UserID, c.Param("platform"), req.Text); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) unlink(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errs.NewValidation("user_id required", err))
		return
	}

	if err := s.deps.Linking.Unlink(c.Request.Context(), req.UserID, c.Param("platform")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) listMessages(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			abortWithError(c, errs.NewValidation("limit must be an integer", err))
			return
		}
		limit = n
	}

	items, err := s.deps.Inbox.ListPending(c.Request.Context(), limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": items, "count": len(items)})
}

func (s *Server) replyMessage(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		abortWithError(c, errs.NewValidation("invalid message id", err))
		return
	}

	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errs.NewValidation("text required", err))
		return
	}

	res, err := s.deps.Inbox.Reply(c.Request.Context(), id, req.Text)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "message_id": res.MessageID, "status": res.Status})
}
