package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/ambassador/internal/auth"
	"github.com/MarcoPoloResearchLab/ambassador/internal/leaderboard"
	"github.com/MarcoPoloResearchLab/ambassador/internal/logging"
	"github.com/MarcoPoloResearchLab/ambassador/internal/points"
	"github.com/MarcoPoloResearchLab/ambassador/internal/ratelimit"
	"github.com/MarcoPoloResearchLab/ambassador/internal/submissions"
	"github.com/MarcoPoloResearchLab/ambassador/internal/tasks"
	"github.com/MarcoPoloResearchLab/ambassador/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	userIDContextKey       = "ambassador_user_id"
	adminSubjectContextKey = "ambassador_admin_subject"

	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingAdminAuth        = errors.New("admin authenticator dependency required")
	errMissingAdminTokens      = errors.New("admin token manager dependency required")
	errMissingServices         = errors.New("domain service dependencies required")
	errInvalidAuthorization    = errors.New("authorization header missing or invalid")
)

type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

type AdminAuthenticator interface {
	Authenticate(email, password string) (string, error)
}

type AdminTokenManager interface {
	IssueAdminToken(subject string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

type ProfileService interface {
	EnsureProfile(ctx context.Context, claims auth.SessionClaims) (string, error)
	GetProfile(ctx context.Context, userID string) (users.Profile, error)
	UpdateContact(ctx context.Context, userID string, update users.ContactUpdate) (users.Profile, error)
}

type TaskService interface {
	Create(ctx context.Context, request tasks.CreateRequest) (tasks.Task, error)
	Get(ctx context.Context, taskID string) (tasks.Task, error)
	ListActive(ctx context.Context) ([]tasks.Task, error)
}

type SubmissionService interface {
	Submit(ctx context.Context, request submissions.SubmitRequest) (submissions.Submission, error)
	ListForUser(ctx context.Context, userID string) ([]submissions.Submission, error)
	ListPending(ctx context.Context, limit int) ([]submissions.Submission, error)
}

type PointsService interface {
	Award(ctx context.Context, request points.AwardRequest) (points.AwardResult, error)
	Audit(ctx context.Context) ([]points.Drift, error)
}

type LeaderboardReader interface {
	Top(ctx context.Context, limit int) ([]leaderboard.Standing, error)
}

type RankMaterializer interface {
	Run(ctx context.Context) (leaderboard.MaterializeResult, error)
}

type Dependencies struct {
	Sessions          SessionValidator
	AdminAuth         AdminAuthenticator
	AdminTokens       AdminTokenManager
	Profiles          ProfileService
	Tasks             TaskService
	Submissions       SubmissionService
	Points            PointsService
	Leaderboard       LeaderboardReader
	Materializer      RankMaterializer
	Realtime          *RealtimeDispatcher
	SubmissionLimiter *ratelimit.KeyedLimiter
	LoginLimiter      *ratelimit.KeyedLimiter
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionValidator
	}
	if deps.AdminAuth == nil {
		return nil, errMissingAdminAuth
	}
	if deps.AdminTokens == nil {
		return nil, errMissingAdminTokens
	}
	if deps.Profiles == nil || deps.Tasks == nil || deps.Submissions == nil ||
		deps.Points == nil || deps.Leaderboard == nil || deps.Materializer == nil {
		return nil, errMissingServices
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.RequestLogger(logger))
	router.Use(corsMiddleware())

	handler := &httpHandler{
		sessions:          deps.Sessions,
		adminAuth:         deps.AdminAuth,
		adminTokens:       deps.AdminTokens,
		profiles:          deps.Profiles,
		tasks:             deps.Tasks,
		submissions:       deps.Submissions,
		points:            deps.Points,
		leaderboard:       deps.Leaderboard,
		materializer:      deps.Materializer,
		realtime:          realtime,
		heartbeatInterval: heartbeat,
		logger:            logger,
	}

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/")
	protected.Use(handler.authorizeSession)
	protected.GET("/me", handler.handleGetMe)
	protected.PUT("/me/contact", handler.handleUpdateContact)
	protected.GET("/tasks", handler.handleListTasks)
	protected.GET("/tasks/:id", handler.handleGetTask)
	protected.POST("/submissions", limitBy(deps.SubmissionLimiter, sessionUserKey), handler.handleSubmit)
	protected.GET("/submissions", handler.handleListSubmissions)
	protected.GET("/leaderboard", handler.handleLeaderboard)
	protected.GET("/events", handler.handleEvents)

	router.POST("/admin/login", limitBy(deps.LoginLimiter, clientIPKey), handler.handleAdminLogin)

	admin := router.Group("/admin")
	admin.Use(handler.authorizeAdmin)
	admin.POST("/tasks", handler.handleCreateTask)
	admin.GET("/submissions/pending", handler.handleListPending)
	admin.POST("/submissions/:id/award", handler.handleAward)
	admin.POST("/ranks/materialize", handler.handleMaterialize)
	admin.GET("/points/audit", handler.handleAudit)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Cache-Control", "Last-Event-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func limitBy(limiter *ratelimit.KeyedLimiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	if limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return ratelimit.Middleware(limiter, keyFunc)
}

func sessionUserKey(c *gin.Context) string {
	return c.GetString(userIDContextKey)
}

func clientIPKey(c *gin.Context) string {
	return c.ClientIP()
}

type httpHandler struct {
	sessions          SessionValidator
	adminAuth         AdminAuthenticator
	adminTokens       AdminTokenManager
	profiles          ProfileService
	tasks             TaskService
	submissions       SubmissionService
	points            PointsService
	leaderboard       LeaderboardReader
	materializer      RankMaterializer
	realtime          *RealtimeDispatcher
	heartbeatInterval time.Duration
	logger            *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) authorizeSession(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrMissingSessionToken) || errors.Is(err, auth.ErrExpiredSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, err := h.profiles.EnsureProfile(c.Request.Context(), claims)
	if err != nil {
		if errors.Is(err, users.ErrInvalidIdentity) {
			h.logger.Warn("session carried no usable identity", zap.String("subject", claims.Subject))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		h.respondError(c, err)
		c.Abort()
		return
	}
	c.Set(userIDContextKey, userID)
	c.Next()
}

func (h *httpHandler) authorizeAdmin(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.adminTokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("admin token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("admin token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(adminSubjectContextKey, subject)
	c.Next()
}
