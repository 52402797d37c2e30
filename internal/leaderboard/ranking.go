package leaderboard

// Standing is one user's position on the leaderboard.
type Standing struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Points      int64  `json:"points"`
	Rank        int64  `json:"rank"`
}

// AssignCompetitionRanks ranks standings already ordered by points descending.
// Equal points share a rank and the next distinct value skips ahead (1, 1, 3).
func AssignCompetitionRanks(ordered []Standing) []Standing {
	ranked := make([]Standing, len(ordered))
	copy(ranked, ordered)
	for index := range ranked {
		if index > 0 && ranked[index].Points == ranked[index-1].Points {
			ranked[index].Rank = ranked[index-1].Rank
			continue
		}
		ranked[index].Rank = int64(index + 1)
	}
	return ranked
}

// PatchRank recomputes a user's rank against a top-N snapshot for display.
// When the user appears in the snapshot the result is one more than the number
// of entries with strictly greater points; otherwise cachedRank is returned
// unchanged and the second value is false. The result is never persisted.
func PatchRank(snapshot []Standing, userID string, cachedRank int64) (int64, bool) {
	var (
		userPoints int64
		found      bool
	)
	for _, standing := range snapshot {
		if standing.UserID == userID {
			userPoints = standing.Points
			found = true
			break
		}
	}
	if !found {
		return cachedRank, false
	}
	var greater int64
	for _, standing := range snapshot {
		if standing.Points > userPoints {
			greater++
		}
	}
	return greater + 1, true
}
