package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/ambassador/internal/apperrors"
	"github.com/MarcoPoloResearchLab/ambassador/internal/blobstore"
	"github.com/MarcoPoloResearchLab/ambassador/internal/leaderboard"
	"github.com/MarcoPoloResearchLab/ambassador/internal/points"
	"github.com/MarcoPoloResearchLab/ambassador/internal/submissions"
	"github.com/MarcoPoloResearchLab/ambassador/internal/tasks"
	"github.com/MarcoPoloResearchLab/ambassador/internal/users"
	"github.com/MarcoPoloResearchLab/ambassador/internal/validation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorMapping struct {
	target error
	status int
	kind   string
}

var errorMappings = []errorMapping{
	{target: validation.ErrInvalid, status: http.StatusBadRequest, kind: "invalid_request"},
	{target: leaderboard.ErrInvalidLimit, status: http.StatusBadRequest, kind: "invalid_request"},
	{target: points.ErrPointsOutOfRange, status: http.StatusBadRequest, kind: "points_out_of_range"},
	{target: blobstore.ErrUploadsDisabled, status: http.StatusBadRequest, kind: "uploads_disabled"},
	{target: users.ErrProfileNotFound, status: http.StatusNotFound, kind: "not_found"},
	{target: tasks.ErrTaskNotFound, status: http.StatusNotFound, kind: "not_found"},
	{target: submissions.ErrSubmissionNotFound, status: http.StatusNotFound, kind: "not_found"},
	{target: submissions.ErrTaskClosed, status: http.StatusConflict, kind: "task_closed"},
	{target: points.ErrSubmissionUserMismatch, status: http.StatusConflict, kind: "submission_user_mismatch"},
	{target: points.ErrNegativeTotal, status: http.StatusConflict, kind: "negative_total"},
}

// respondError writes the JSON error body for a service failure. Store failures
// are logged here; client errors only reach the request log.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	for _, mapping := range errorMappings {
		if !errors.Is(err, mapping.target) {
			continue
		}
		body := gin.H{"error": mapping.kind, "code": code}
		var fieldErrors validation.FieldErrors
		if errors.As(err, &fieldErrors) {
			body["fields"] = fieldErrors
		}
		c.JSON(mapping.status, body)
		return
	}
	h.logger.Error("request failed", zap.String("code", code), zap.String("path", c.FullPath()), zap.Error(err))
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "code": code})
}
