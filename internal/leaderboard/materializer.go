package leaderboard

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/ambassador/internal/apperrors"
	"github.com/MarcoPoloResearchLab/ambassador/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const opMaterialize = "leaderboard.materialize"

var errMissingDatabase = errors.New("leaderboard: database handle is required")

// Invalidator drops cached snapshots after ranks or totals change.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Publisher announces a completed rank materialization.
type Publisher interface {
	RanksUpdated(updated int)
}

// MaterializerConfig describes the dependencies of the rank materializer.
type MaterializerConfig struct {
	Database  *gorm.DB
	Snapshots Invalidator
	Publisher Publisher
	Logger    *zap.Logger
}

// Materializer rewrites every profile's stored rank from current totals.
type Materializer struct {
	db        *gorm.DB
	snapshots Invalidator
	publisher Publisher
	logger    *zap.Logger
}

// MaterializeResult summarises one run.
type MaterializeResult struct {
	Users    int           `json:"users"`
	Updated  int           `json:"updated"`
	Duration time.Duration `json:"duration_ns"`
}

type rankRow struct {
	UserID string `gorm:"column:user_id"`
	Points int64  `gorm:"column:points"`
	Rank   int64  `gorm:"column:cached_rank"`
}

// NewMaterializer constructs a Materializer.
func NewMaterializer(cfg MaterializerConfig) (*Materializer, error) {
	if cfg.Database == nil {
		return nil, apperrors.New("leaderboard.materializer.new", "missing_database", errMissingDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Materializer{
		db:        cfg.Database,
		snapshots: cfg.Snapshots,
		publisher: cfg.Publisher,
		logger:    logger,
	}, nil
}

// Run assigns competition ranks to all users, zero-point users included, and
// writes the ranks that changed in one transaction. Running it again on
// unchanged totals updates nothing.
func (m *Materializer) Run(ctx context.Context) (MaterializeResult, error) {
	started := time.Now()
	var result MaterializeResult
	txErr := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []rankRow
		if err := tx.Model(&users.Profile{}).
			Select("user_id", "points", "cached_rank").
			Order("points DESC").
			Order("created_at ASC").
			Order("user_id ASC").
			Find(&rows).Error; err != nil {
			m.logError("select_failed", err)
			return apperrors.New(opMaterialize, "select_failed", err)
		}

		ordered := make([]Standing, len(rows))
		for index, row := range rows {
			ordered[index] = Standing{UserID: row.UserID, Points: row.Points}
		}
		ranked := AssignCompetitionRanks(ordered)

		result.Users = len(rows)
		for index, standing := range ranked {
			if rows[index].Rank == standing.Rank {
				continue
			}
			if err := tx.Model(&users.Profile{}).
				Where("user_id = ?", standing.UserID).
				UpdateColumn("cached_rank", standing.Rank).Error; err != nil {
				m.logError("update_failed", err, zap.String("user_id", standing.UserID))
				return apperrors.New(opMaterialize, "update_failed", err)
			}
			result.Updated++
		}
		return nil
	})
	if txErr != nil {
		return MaterializeResult{}, txErr
	}
	result.Duration = time.Since(started)

	if m.snapshots != nil {
		if err := m.snapshots.Invalidate(ctx); err != nil {
			m.logError("snapshot_invalidate_failed", err)
		}
	}
	if m.publisher != nil && result.Updated > 0 {
		m.publisher.RanksUpdated(result.Updated)
	}
	m.logger.Info("ranks materialized",
		zap.Int("users", result.Users),
		zap.Int("updated", result.Updated),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (m *Materializer) logError(reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", opMaterialize),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	m.logger.Error("leaderboard materializer error", attrs...)
}
