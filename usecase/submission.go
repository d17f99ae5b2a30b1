package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kavos113/dynctf/domain"
	"github.com/kavos113/dynctf/lib/flaghash"
)

// SubmissionResult is what a flag submission comes back with.
type SubmissionResult struct {
	Correct    bool
	FirstBlood bool
	Score      int
	Message    string
}

type SubmissionService struct {
	challengeRepo  domain.ChallengeRepository
	submissionRepo domain.SubmissionRepository
	hintRepo       domain.HintRepository
	log            *slog.Logger
}

func NewSubmissionService(
	challengeRepo domain.ChallengeRepository,
	submissionRepo domain.SubmissionRepository,
	hintRepo domain.HintRepository,
	log *slog.Logger,
) *SubmissionService {
	return &SubmissionService{
		challengeRepo:  challengeRepo,
		submissionRepo: submissionRepo,
		hintRepo:       hintRepo,
		log:            log,
	}
}

// dynamicPoints applies linear decay: start from the base, subtract decay per
// prior solve, clamp to the minimum.
func dynamicPoints(base, minPoints, decay, priorSolves int) int {
	points := base - decay*priorSolves
	if points < minPoints {
		return minPoints
	}
	return points
}

// applyHintPenalty subtracts the declared hint penalties, floored at zero.
func applyHintPenalty(points int, penalties []int) int {
	for _, penalty := range penalties {
		points -= penalty
	}
	if points < 0 {
		return 0
	}
	return points
}

// SubmitFlag records one submission and returns the outcome. The solve count
// and the first-blood check both read the store before the insert; the
// first-blood unique key resolves the tie when two first solves race.
func (s *SubmissionService) SubmitFlag(ctx context.Context, userID, challengeID int64, submittedFlag string, usedHintIDs []int64) (*SubmissionResult, error) {
	challenge, err := s.challengeRepo.FindByID(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	if !challenge.IsActive || challenge.IsPrivate {
		return nil, &NotAllowedError{Reason: "challenge is not active"}
	}
	if !challenge.VisibleAt(time.Now().UTC()) {
		return nil, &NotAllowedError{Reason: "challenge is outside its visibility window"}
	}

	alreadySolved, err := s.submissionRepo.HasCorrectByUserAndChallenge(ctx, userID, challengeID)
	if err != nil {
		return nil, err
	}
	if alreadySolved {
		return &SubmissionResult{Correct: false, Message: "You already solved this challenge."}, nil
	}

	isCorrect := flaghash.Verify(submittedFlag, challenge.Flag)

	score := 0
	firstBlood := false
	if isCorrect {
		priorSolves, err := s.submissionRepo.CountCorrectByChallenge(ctx, challengeID)
		if err != nil {
			return nil, err
		}

		solved, err := s.submissionRepo.HasCorrectByChallenge(ctx, challengeID)
		if err != nil {
			return nil, err
		}
		firstBlood = !solved

		penalties, err := s.hintPenalties(ctx, challengeID, usedHintIDs)
		if err != nil {
			return nil, err
		}

		base := challenge.Points
		if base == 0 {
			base = 100
		}
		score = applyHintPenalty(dynamicPoints(base, challenge.MinPoints, challenge.DecayPerSolve, priorSolves), penalties)
	}

	submission := &domain.Submission{
		SubmissionID:  uuid.New().String(),
		UserID:        userID,
		ChallengeID:   challengeID,
		SubmittedHash: hashForStorage(submittedFlag, isCorrect, challenge.Flag),
		IsCorrect:     isCorrect,
		FirstBlood:    firstBlood,
		PointsAwarded: score,
		UsedHintIDs:   usedHintIDs,
		SubmittedAt:   time.Now().UTC(),
	}

	if err := s.submissionRepo.Create(ctx, submission); err != nil {
		if errors.Is(err, domain.ErrFirstBloodTaken) {
			// A concurrent solve won the unique key; keep the solve, drop the flag.
			submission.FirstBlood = false
			submission.SubmissionID = uuid.New().String()
			if err := s.submissionRepo.Create(ctx, submission); err != nil {
				return nil, fmt.Errorf("failed to save submission: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to save submission: %w", err)
		}
	}

	result := &SubmissionResult{
		Correct:    isCorrect,
		FirstBlood: submission.FirstBlood,
		Score:      score,
		Message:    "Incorrect flag.",
	}
	if isCorrect {
		result.Message = "Correct!"
	}

	s.log.Info("flag submitted",
		slog.Int64("user_id", userID),
		slog.Int64("challenge_id", challengeID),
		slog.Bool("correct", isCorrect),
		slog.Bool("first_blood", submission.FirstBlood),
		slog.Int("score", score))

	return result, nil
}

func (s *SubmissionService) Leaderboard(ctx context.Context, limit int) ([]*domain.LeaderboardEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.submissionRepo.Leaderboard(ctx, limit)
}

// hintPenalties resolves the declared hint ids, counting only hints that
// belong to the challenge being solved.
func (s *SubmissionService) hintPenalties(ctx context.Context, challengeID int64, usedHintIDs []int64) ([]int, error) {
	if len(usedHintIDs) == 0 {
		return nil, nil
	}

	hints, err := s.hintRepo.FindByIDs(ctx, usedHintIDs)
	if err != nil {
		return nil, err
	}

	var penalties []int
	for _, hint := range hints {
		if hint.ChallengeID != challengeID {
			continue
		}
		penalties = append(penalties, hint.Penalty)
	}
	return penalties, nil
}

// hashForStorage keeps the stored hash comparable to the challenge's: correct
// submissions store the challenge hash itself, incorrect ones a fresh hash of
// what was typed. Plaintext flags are never persisted.
func hashForStorage(submittedFlag string, isCorrect bool, challengeHash string) string {
	if isCorrect {
		return challengeHash
	}
	hashed, err := flaghash.Hash(submittedFlag)
	if err != nil {
		return ""
	}
	return hashed
}
