package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/ambassador/internal/auth"
	"github.com/MarcoPoloResearchLab/ambassador/internal/points"
	"github.com/MarcoPoloResearchLab/ambassador/internal/tasks"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type adminLoginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type adminLoginResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleAdminLogin(c *gin.Context) {
	var request adminLoginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" || request.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	subject, err := h.adminAuth.Authenticate(request.Email, request.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidAdminCredentials) {
			h.logger.Info("admin login rejected", zap.String("client_ip", c.ClientIP()))
		} else {
			h.logger.Error("admin authentication failed", zap.Error(err))
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	token, expiresIn, err := h.adminTokens.IssueAdminToken(subject)
	if err != nil {
		h.logger.Error("failed to issue admin token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	h.logger.Info("admin logged in", zap.String("admin", subject))

	c.JSON(http.StatusOK, adminLoginResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) handleCreateTask(c *gin.Context) {
	var request tasks.CreateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	request.CreatedBy = c.GetString(adminSubjectContextKey)
	task, err := h.tasks.Create(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *httpHandler) handleListPending(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		limit = parsed
	}
	pending, err := h.submissions.ListPending(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": pending})
}

type awardRequestPayload struct {
	UserID string `json:"user_id"`
	Points *int64 `json:"points"`
}

func (h *httpHandler) handleAward(c *gin.Context) {
	var request awardRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Points == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	result, err := h.points.Award(c.Request.Context(), points.AwardRequest{
		SubmissionID: c.Param("id"),
		UserID:       request.UserID,
		Points:       *request.Points,
		ReviewerID:   c.GetString(adminSubjectContextKey),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleMaterialize(c *gin.Context) {
	result, err := h.materializer.Run(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleAudit(c *gin.Context) {
	drifts, err := h.points.Audit(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if drifts == nil {
		drifts = []points.Drift{}
	}
	c.JSON(http.StatusOK, gin.H{"drifts": drifts})
}
