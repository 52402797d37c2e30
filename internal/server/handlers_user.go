package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/ambassador/internal/leaderboard"
	"github.com/MarcoPoloResearchLab/ambassador/internal/submissions"
	"github.com/MarcoPoloResearchLab/ambassador/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultLeaderboardLimit = 10
	maxProofBytes           = 10 << 20
)

type profileResponsePayload struct {
	users.Profile
	DisplayRank int64 `json:"display_rank"`
}

func (h *httpHandler) handleGetMe(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	profile, err := h.profiles.GetProfile(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	displayRank := profile.Rank
	top, err := h.leaderboard.Top(c.Request.Context(), leaderboard.PatchWindow)
	if err != nil {
		h.logger.Warn("leaderboard snapshot unavailable for rank patch", zap.String("user_id", userID), zap.Error(err))
	} else {
		displayRank, _ = leaderboard.PatchRank(top, userID, profile.Rank)
	}

	c.JSON(http.StatusOK, profileResponsePayload{Profile: profile, DisplayRank: displayRank})
}

func (h *httpHandler) handleUpdateContact(c *gin.Context) {
	var request users.ContactUpdate
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	profile, err := h.profiles.UpdateContact(c.Request.Context(), c.GetString(userIDContextKey), request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *httpHandler) handleListTasks(c *gin.Context) {
	active, err := h.tasks.ListActive(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": active})
}

func (h *httpHandler) handleGetTask(c *gin.Context) {
	task, err := h.tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

type submitRequestPayload struct {
	TaskID string `json:"task_id" form:"task_id"`
	Note   string `json:"note" form:"note"`
}

func (h *httpHandler) handleSubmit(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	request := submissions.SubmitRequest{UserID: userID}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxProofBytes)
		var payload submitRequestPayload
		if err := c.ShouldBind(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		request.TaskID = payload.TaskID
		request.Note = payload.Note

		header, err := c.FormFile("proof")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		default:
			file, err := header.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
				return
			}
			defer closeQuietly(file)
			request.Proof = file
		}
	} else {
		var payload submitRequestPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		request.TaskID = payload.TaskID
		request.Note = payload.Note
	}

	submission, err := h.submissions.Submit(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, submission)
}

func closeQuietly(file multipart.File) {
	_ = file.Close()
}

func (h *httpHandler) handleListSubmissions(c *gin.Context) {
	mine, err := h.submissions.ListForUser(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": mine})
}

func (h *httpHandler) handleLeaderboard(c *gin.Context) {
	limit := defaultLeaderboardLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		limit = parsed
	}
	standings, err := h.leaderboard.Top(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"standings": standings})
}

// handleEvents streams realtime events until the client disconnects.
func (h *httpHandler) handleEvents(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, userID)
	defer cleanup()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	c.SSEvent(realtimeEventConnected, gin.H{"user_id": userID})
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, message.payload())
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"timestamp_s": tick.Unix()})
			return true
		}
	})
}
