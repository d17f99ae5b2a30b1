package domain

import (
	"context"
	"errors"
	"time"
)

type Submission struct {
	SubmissionID  string
	UserID        int64
	ChallengeID   int64
	SubmittedHash string
	IsCorrect     bool
	FirstBlood    bool
	PointsAwarded int
	UsedHintIDs   []int64
	SubmittedAt   time.Time
}

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrFirstBloodTaken signals that a concurrent submission won the
	// first-blood unique key; the caller retries without the flag.
	ErrFirstBloodTaken = errors.New("first blood already claimed")
)

// LeaderboardEntry is one aggregated row of awarded points.
type LeaderboardEntry struct {
	UserID       int64
	Username     string
	Score        int
	LastSolvedAt time.Time
	Rank         int
}

type SubmissionRepository interface {
	Create(ctx context.Context, submission *Submission) error
	// CountCorrectByChallenge counts correct submissions recorded for a
	// challenge, used as the solve count for decay scoring.
	CountCorrectByChallenge(ctx context.Context, challengeID int64) (int, error)
	HasCorrectByUserAndChallenge(ctx context.Context, userID, challengeID int64) (bool, error)
	HasCorrectByChallenge(ctx context.Context, challengeID int64) (bool, error)
	Leaderboard(ctx context.Context, limit int) ([]*LeaderboardEntry, error)
}
