package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/kavos113/dynctf/domain"
)

type MySQLSubmissionRepository struct {
	db *sql.DB
}

func NewMySQLSubmissionRepository(db *sql.DB) *MySQLSubmissionRepository {
	return &MySQLSubmissionRepository{db: db}
}

func (r *MySQLSubmissionRepository) Create(ctx context.Context, submission *domain.Submission) error {
	query := `
		INSERT INTO submissions (id, user_id, challenge_id, submitted_hash, is_correct, first_blood, points_awarded, used_hint_ids, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		submission.SubmissionID,
		submission.UserID,
		submission.ChallengeID,
		submission.SubmittedHash,
		submission.IsCorrect,
		submission.FirstBlood,
		submission.PointsAwarded,
		joinHintIDs(submission.UsedHintIDs),
		submission.SubmittedAt.UTC(),
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry && submission.FirstBlood {
			// Another correct submission claimed the first-blood key first.
			return domain.ErrFirstBloodTaken
		}
		return fmt.Errorf("failed to insert submission: %w", err)
	}
	return nil
}

func (r *MySQLSubmissionRepository) CountCorrectByChallenge(ctx context.Context, challengeID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM submissions
		WHERE challenge_id = ? AND is_correct = TRUE
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, challengeID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *MySQLSubmissionRepository) HasCorrectByUserAndChallenge(ctx context.Context, userID, challengeID int64) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM submissions
			WHERE user_id = ? AND challenge_id = ? AND is_correct = TRUE
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, challengeID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *MySQLSubmissionRepository) HasCorrectByChallenge(ctx context.Context, challengeID int64) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM submissions
			WHERE challenge_id = ? AND is_correct = TRUE
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, challengeID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *MySQLSubmissionRepository) Leaderboard(ctx context.Context, limit int) ([]*domain.LeaderboardEntry, error) {
	query := `
		SELECT s.user_id, u.username, SUM(s.points_awarded) AS score, MAX(s.submitted_at) AS last_solved_at
		FROM submissions s
		JOIN users u ON u.id = s.user_id
		WHERE s.is_correct = TRUE
		GROUP BY s.user_id, u.username
		ORDER BY score DESC, last_solved_at ASC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.LeaderboardEntry
	for rows.Next() {
		entry := &domain.LeaderboardEntry{}
		if err := rows.Scan(&entry.UserID, &entry.Username, &entry.Score, &entry.LastSolvedAt); err != nil {
			return nil, err
		}
		entry.Rank = len(entries) + 1
		if len(entries) > 0 {
			prev := entries[len(entries)-1]
			if prev.Score == entry.Score && prev.LastSolvedAt.Equal(entry.LastSolvedAt) {
				entry.Rank = prev.Rank
			}
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func joinHintIDs(ids []int64) sql.NullString {
	if len(ids) == 0 {
		return sql.NullString{}
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return sql.NullString{String: strings.Join(parts, ","), Valid: true}
}
