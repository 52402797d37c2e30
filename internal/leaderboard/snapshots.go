package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/ambassador/internal/apperrors"
	"github.com/MarcoPoloResearchLab/ambassador/internal/cache"
	"github.com/MarcoPoloResearchLab/ambassador/internal/users"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// MaxSnapshotSize bounds the number of standings served in one snapshot.
	MaxSnapshotSize = 100
	// PatchWindow is the snapshot size used for display-rank patching.
	PatchWindow = 10

	snapshotKeyPrefix = "leaderboard:"
	topKeyPrefix      = snapshotKeyPrefix + "top:"
	generationKey     = snapshotKeyPrefix + "generation"
	initialGeneration = "0"
	defaultCacheTTL   = 60 * time.Second
	generationTTL     = 24 * time.Hour
	opTop             = "leaderboard.top"
	opInvalidate      = "leaderboard.invalidate"
)

// ErrInvalidLimit is returned for snapshot sizes outside 1..MaxSnapshotSize.
var ErrInvalidLimit = errors.New("leaderboard: limit out of range")

// SnapshotsConfig describes the dependencies of the snapshot reader.
type SnapshotsConfig struct {
	Database *gorm.DB
	Cache    cache.Store
	TTL      time.Duration
	Logger   *zap.Logger
}

// Snapshots serves top-N leaderboards straight from live totals, cached briefly.
type Snapshots struct {
	db     *gorm.DB
	cache  cache.Store
	ttl    time.Duration
	logger *zap.Logger
}

// NewSnapshots constructs a snapshot reader. A nil cache disables caching.
func NewSnapshots(cfg SnapshotsConfig) (*Snapshots, error) {
	if cfg.Database == nil {
		return nil, apperrors.New("leaderboard.snapshots.new", "missing_database", errMissingDatabase)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Snapshots{db: cfg.Database, cache: cfg.Cache, ttl: ttl, logger: logger}, nil
}

// Top returns the highest-scoring users with competition ranks. Cache failures
// fall back to the database and are only logged.
//
// Snapshot keys embed the cache generation read before the query. A snapshot
// built from rows read before an Invalidate lands under the old generation,
// which no later reader looks up.
func (s *Snapshots) Top(ctx context.Context, limit int) ([]Standing, error) {
	if limit < 1 || limit > MaxSnapshotSize {
		return nil, apperrors.New(opTop, "invalid_limit", ErrInvalidLimit)
	}
	generation, cacheable := s.generation(ctx)
	key := fmt.Sprintf("%s%s:%d", topKeyPrefix, generation, limit)

	if cacheable {
		payload, found, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			s.logError(opTop, "cache_get_failed", err, zap.String("key", key))
		case found:
			var cached []Standing
			if err := json.Unmarshal(payload, &cached); err != nil {
				s.logError(opTop, "cache_decode_failed", err, zap.String("key", key))
				break
			}
			return cached, nil
		}
	}

	var profiles []users.Profile
	if err := s.db.WithContext(ctx).
		Order("points DESC").
		Order("created_at ASC").
		Order("user_id ASC").
		Limit(limit).
		Find(&profiles).Error; err != nil {
		s.logError(opTop, "query_failed", err)
		return nil, apperrors.New(opTop, "query_failed", err)
	}
	ordered := make([]Standing, len(profiles))
	for index, profile := range profiles {
		ordered[index] = Standing{
			UserID:      profile.UserID,
			DisplayName: profile.DisplayName,
			AvatarURL:   profile.AvatarURL,
			Points:      profile.Points,
		}
	}
	standings := AssignCompetitionRanks(ordered)

	if cacheable {
		payload, err := json.Marshal(standings)
		if err == nil {
			err = s.cache.Set(ctx, key, payload, s.ttl)
		}
		if err != nil {
			s.logError(opTop, "cache_set_failed", err, zap.String("key", key))
		}
	}
	return standings, nil
}

// Invalidate moves readers to a new cache generation and drops the cached snapshots.
func (s *Snapshots) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Set(ctx, generationKey, []byte(uuid.NewString()), generationTTL); err != nil {
		return apperrors.New(opInvalidate, "cache_generation_failed", err)
	}
	if err := s.cache.DeletePrefix(ctx, topKeyPrefix); err != nil {
		return apperrors.New(opInvalidate, "cache_delete_failed", err)
	}
	return nil
}

// generation reports the current snapshot generation and whether the cache is usable.
func (s *Snapshots) generation(ctx context.Context) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	payload, found, err := s.cache.Get(ctx, generationKey)
	if err != nil {
		s.logError(opTop, "cache_get_failed", err, zap.String("key", generationKey))
		return "", false
	}
	if !found || len(payload) == 0 {
		return initialGeneration, true
	}
	return string(payload), true
}

func (s *Snapshots) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("leaderboard snapshot error", attrs...)
}
