package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/kavos113/dynctf/domain"
)

type MySQLHintRepository struct {
	db *sql.DB
}

func NewMySQLHintRepository(db *sql.DB) *MySQLHintRepository {
	return &MySQLHintRepository{db: db}
}

func (r *MySQLHintRepository) FindByIDs(ctx context.Context, hintIDs []int64) ([]*domain.Hint, error) {
	if len(hintIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(hintIDs)), ",")
	query := `
		SELECT id, challenge_id, content, penalty, order_index
		FROM hints
		WHERE id IN (` + placeholders + `)
	`
	args := make([]any, len(hintIDs))
	for i, id := range hintIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hints []*domain.Hint
	for rows.Next() {
		hint := &domain.Hint{}
		if err := rows.Scan(&hint.HintID, &hint.ChallengeID, &hint.Content, &hint.Penalty, &hint.OrderIndex); err != nil {
			return nil, err
		}
		hints = append(hints, hint)
	}

	return hints, rows.Err()
}
