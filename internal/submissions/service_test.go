package submissions

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/ambassador/internal/apperrors"
	"github.com/MarcoPoloResearchLab/ambassador/internal/blobstore"
	"github.com/MarcoPoloResearchLab/ambassador/internal/ids"
	"github.com/MarcoPoloResearchLab/ambassador/internal/tasks"
	"github.com/MarcoPoloResearchLab/ambassador/internal/validation"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type stubTasks map[string]tasks.Task

func (s stubTasks) Get(_ context.Context, taskID string) (tasks.Task, error) {
	task, ok := s[taskID]
	if !ok {
		return tasks.Task{}, tasks.ErrTaskNotFound
	}
	return task, nil
}

type recordingBlobs struct {
	paths    []string
	contents []string
	err      error
}

func (r *recordingBlobs) Upload(_ context.Context, path string, body io.Reader) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	r.paths = append(r.paths, path)
	r.contents = append(r.contents, string(data))
	return "https://cdn.example.com/" + path, nil
}

var fixedNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, blobs blobstore.Store, submissionIDs ...string) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "submissions.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Submission{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	deadline := fixedNow.Add(-time.Hour)
	lookup := stubTasks{
		"open":    {TaskID: "open", Title: "Open", MaxPoints: 10, Active: true},
		"expired": {TaskID: "expired", Title: "Expired", MaxPoints: 10, Active: true, Deadline: &deadline},
		"retired": {TaskID: "retired", Title: "Retired", MaxPoints: 10, Active: false},
	}
	tick := fixedNow
	service, err := NewService(ServiceConfig{
		Database:   db,
		Tasks:      lookup,
		Blobs:      blobs,
		IDProvider: ids.NewSequence(submissionIDs...),
		Clock: func() time.Time {
			tick = tick.Add(time.Second)
			return tick
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func TestSubmitStoresUnreviewedSubmission(t *testing.T) {
	service, _ := newTestService(t, nil, "sub-1")
	submission, err := service.Submit(context.Background(), SubmitRequest{UserID: "user-1", TaskID: "open", Note: "shared the flyer"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if submission.Reviewed || submission.AwardedPoints != nil {
		t.Fatalf("expected unreviewed submission, got %#v", submission)
	}
	loaded, err := service.Get(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if loaded.UserID != "user-1" || loaded.TaskID != "open" || loaded.Note != "shared the flyer" {
		t.Fatalf("unexpected stored submission %#v", loaded)
	}
	if loaded.PreviousAward() != 0 {
		t.Fatalf("expected previous award 0, got %d", loaded.PreviousAward())
	}
}

func TestSubmitUploadsProof(t *testing.T) {
	blobs := &recordingBlobs{}
	service, _ := newTestService(t, blobs, "sub-1")
	submission, err := service.Submit(context.Background(), SubmitRequest{
		UserID: "user-1",
		TaskID: "open",
		Proof:  strings.NewReader("image-bytes"),
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if len(blobs.paths) != 1 || blobs.paths[0] != "submissions/user-1/sub-1" {
		t.Fatalf("unexpected upload paths %v", blobs.paths)
	}
	if blobs.contents[0] != "image-bytes" {
		t.Fatalf("unexpected upload content %q", blobs.contents[0])
	}
	if submission.ProofURL != "https://cdn.example.com/submissions/user-1/sub-1" {
		t.Fatalf("unexpected proof url %q", submission.ProofURL)
	}
}

func TestSubmitWithProofFailsWhenUploadsDisabled(t *testing.T) {
	service, db := newTestService(t, nil, "sub-1")
	_, err := service.Submit(context.Background(), SubmitRequest{UserID: "user-1", TaskID: "open", Proof: strings.NewReader("x")})
	if !errors.Is(err, blobstore.ErrUploadsDisabled) {
		t.Fatalf("expected uploads disabled, got %v", err)
	}
	if code := apperrors.CodeOf(err); code != "submissions.submit.uploads_disabled" {
		t.Fatalf("unexpected code %q", code)
	}
	var count int64
	db.Model(&Submission{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no stored submission, got %d", count)
	}
}

func TestSubmitUploadFailureStoresNothing(t *testing.T) {
	service, db := newTestService(t, &recordingBlobs{err: errors.New("cdn down")}, "sub-1")
	if _, err := service.Submit(context.Background(), SubmitRequest{UserID: "user-1", TaskID: "open", Proof: strings.NewReader("x")}); err == nil {
		t.Fatalf("expected upload failure")
	}
	var count int64
	db.Model(&Submission{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no stored submission, got %d", count)
	}
}

func TestSubmitRejectsClosedTasks(t *testing.T) {
	service, _ := newTestService(t, nil, "sub-1", "sub-2")
	for _, taskID := range []string{"expired", "retired"} {
		_, err := service.Submit(context.Background(), SubmitRequest{UserID: "user-1", TaskID: taskID})
		if !errors.Is(err, ErrTaskClosed) {
			t.Fatalf("expected task closed for %s, got %v", taskID, err)
		}
	}
}

func TestSubmitRejectsUnknownTaskAndInvalidInput(t *testing.T) {
	service, _ := newTestService(t, nil, "sub-1")
	if _, err := service.Submit(context.Background(), SubmitRequest{UserID: "user-1", TaskID: "missing"}); !errors.Is(err, tasks.ErrTaskNotFound) {
		t.Fatalf("expected task not found, got %v", err)
	}
	if _, err := service.Submit(context.Background(), SubmitRequest{UserID: " ", TaskID: "open"}); !errors.Is(err, validation.ErrInvalid) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDuplicateSubmissionsAreAllowed(t *testing.T) {
	service, _ := newTestService(t, nil, "sub-1", "sub-2")
	for range 2 {
		if _, err := service.Submit(context.Background(), SubmitRequest{UserID: "user-1", TaskID: "open"}); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}
	mine, err := service.ListForUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(mine) != 2 || mine[0].SubmissionID != "sub-2" {
		t.Fatalf("expected newest first, got %#v", mine)
	}
}

func TestListPendingOldestFirstAndSkipsReviewed(t *testing.T) {
	service, db := newTestService(t, nil, "sub-1", "sub-2", "sub-3")
	ctx := context.Background()
	for _, userID := range []string{"user-1", "user-2", "user-3"} {
		if _, err := service.Submit(ctx, SubmitRequest{UserID: userID, TaskID: "open"}); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}
	awarded := int64(4)
	if err := db.Model(&Submission{}).Where("submission_id = ?", "sub-2").
		Updates(map[string]any{"reviewed": true, "awarded_points": awarded}).Error; err != nil {
		t.Fatalf("failed to mark reviewed: %v", err)
	}

	pending, err := service.ListPending(ctx, 0)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 2 || pending[0].SubmissionID != "sub-1" || pending[1].SubmissionID != "sub-3" {
		t.Fatalf("unexpected pending queue %#v", pending)
	}
}

func TestGetUnknownSubmission(t *testing.T) {
	service, _ := newTestService(t, nil)
	_, err := service.Get(context.Background(), "missing")
	if !errors.Is(err, ErrSubmissionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if code := apperrors.CodeOf(err); code != "submissions.get.not_found" {
		t.Fatalf("unexpected code %q", code)
	}
}
