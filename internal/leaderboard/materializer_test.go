package leaderboard

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/ambassador/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

type recordingPublisher struct {
	updates []int
}

func (r *recordingPublisher) RanksUpdated(updated int) {
	r.updates = append(r.updates, updated)
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "leaderboard.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&users.Profile{}))
	return db
}

func seedProfiles(t *testing.T, db *gorm.DB, points map[string]int64, order []string) {
	t.Helper()
	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	for index, userID := range order {
		profile := users.Profile{
			UserID:      userID,
			DisplayName: userID,
			Points:      points[userID],
			CreatedAt:   base.Add(time.Duration(index) * time.Minute),
		}
		require.NoError(t, db.Create(&profile).Error)
	}
}

func storedRanks(t *testing.T, db *gorm.DB) map[string]int64 {
	t.Helper()
	var profiles []users.Profile
	require.NoError(t, db.Find(&profiles).Error)
	ranks := make(map[string]int64, len(profiles))
	for _, profile := range profiles {
		ranks[profile.UserID] = profile.Rank
	}
	return ranks
}

func TestMaterializerAssignsCompetitionRanksIdempotently(t *testing.T) {
	db := openTestDatabase(t)
	seedProfiles(t, db,
		map[string]int64{"ana": 50, "ben": 50, "cho": 30, "dev": 0},
		[]string{"ana", "ben", "cho", "dev"})
	invalidator := &countingInvalidator{}
	publisher := &recordingPublisher{}
	materializer, err := NewMaterializer(MaterializerConfig{Database: db, Snapshots: invalidator, Publisher: publisher})
	require.NoError(t, err)
	ctx := context.Background()

	first, err := materializer.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, first.Users)
	require.Equal(t, 4, first.Updated)
	require.Equal(t, map[string]int64{"ana": 1, "ben": 1, "cho": 3, "dev": 4}, storedRanks(t, db))

	second, err := materializer.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, second.Updated)
	require.Equal(t, map[string]int64{"ana": 1, "ben": 1, "cho": 3, "dev": 4}, storedRanks(t, db))

	require.NoError(t, db.Model(&users.Profile{}).Where("user_id = ?", "dev").Update("points", 60).Error)
	third, err := materializer.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, third.Updated)
	require.Equal(t, map[string]int64{"dev": 1, "ana": 2, "ben": 2, "cho": 4}, storedRanks(t, db))

	require.Equal(t, 3, invalidator.calls)
	require.Equal(t, []int{4, 4}, publisher.updates)
}

func TestMaterializerRanksAllZeroUsers(t *testing.T) {
	db := openTestDatabase(t)
	seedProfiles(t, db, map[string]int64{}, []string{"ana", "ben"})
	materializer, err := NewMaterializer(MaterializerConfig{Database: db})
	require.NoError(t, err)

	result, err := materializer.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Updated)
	require.Equal(t, map[string]int64{"ana": 1, "ben": 1}, storedRanks(t, db))
}

func TestMaterializerLeavesPointsUntouched(t *testing.T) {
	db := openTestDatabase(t)
	seedProfiles(t, db, map[string]int64{"ana": 12, "ben": 7}, []string{"ana", "ben"})
	materializer, err := NewMaterializer(MaterializerConfig{Database: db})
	require.NoError(t, err)
	_, err = materializer.Run(context.Background())
	require.NoError(t, err)

	var profiles []users.Profile
	require.NoError(t, db.Order("user_id").Find(&profiles).Error)
	require.Equal(t, int64(12), profiles[0].Points)
	require.Equal(t, int64(7), profiles[1].Points)
}
