package repository

import (
	"context"
	"database/sql"

	"github.com/kavos113/dynctf/domain"
)

type MySQLChallengeRepository struct {
	db *sql.DB
}

func NewMySQLChallengeRepository(db *sql.DB) *MySQLChallengeRepository {
	return &MySQLChallengeRepository{db: db}
}

const challengeColumns = `id, title, description, category_id, flag, points, min_points, decay_per_solve, difficulty, deployment_type, docker_image, service_port, service_url_path, is_active, is_private, always_on, visible_from, visible_to, created_at, updated_at`

func (r *MySQLChallengeRepository) FindByID(ctx context.Context, challengeID int64) (*domain.Challenge, error) {
	query := `
		SELECT ` + challengeColumns + `
		FROM challenges
		WHERE id = ?
	`
	return scanChallenge(r.db.QueryRowContext(ctx, query, challengeID))
}

func (r *MySQLChallengeRepository) FindAll(ctx context.Context) ([]*domain.Challenge, error) {
	query := `
		SELECT ` + challengeColumns + `
		FROM challenges
		WHERE is_active = TRUE
		ORDER BY id
	`
	return r.queryChallenges(ctx, query)
}

func (r *MySQLChallengeRepository) FindAlwaysOn(ctx context.Context) ([]*domain.Challenge, error) {
	query := `
		SELECT ` + challengeColumns + `
		FROM challenges
		WHERE is_active = TRUE AND deployment_type = 'static_container' AND always_on = TRUE
		ORDER BY id
	`
	return r.queryChallenges(ctx, query)
}

func (r *MySQLChallengeRepository) queryChallenges(ctx context.Context, query string, args ...any) ([]*domain.Challenge, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var challenges []*domain.Challenge
	for rows.Next() {
		challenge, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		challenges = append(challenges, challenge)
	}

	return challenges, rows.Err()
}

func scanChallenge(row rowScanner) (*domain.Challenge, error) {
	challenge := &domain.Challenge{}
	var (
		description sql.NullString
		categoryID  sql.NullInt64
		flag        sql.NullString
		minPoints   sql.NullInt64
		decay       sql.NullInt64
		difficulty  sql.NullString
		image       sql.NullString
		servicePort sql.NullInt64
		servicePath sql.NullString
		visibleFrom sql.NullTime
		visibleTo   sql.NullTime
	)

	err := row.Scan(
		&challenge.ChallengeID,
		&challenge.Title,
		&description,
		&categoryID,
		&flag,
		&challenge.Points,
		&minPoints,
		&decay,
		&difficulty,
		&challenge.DeploymentType,
		&image,
		&servicePort,
		&servicePath,
		&challenge.IsActive,
		&challenge.IsPrivate,
		&challenge.AlwaysOn,
		&visibleFrom,
		&visibleTo,
		&challenge.CreatedAt,
		&challenge.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrChallengeNotFound
	}
	if err != nil {
		return nil, err
	}

	challenge.Description = description.String
	challenge.CategoryID = categoryID.Int64
	challenge.Flag = flag.String
	challenge.MinPoints = int(minPoints.Int64)
	challenge.DecayPerSolve = int(decay.Int64)
	challenge.Difficulty = difficulty.String
	challenge.DockerImage = image.String
	challenge.ServicePort = int(servicePort.Int64)
	challenge.ServiceURLPath = servicePath.String
	if visibleFrom.Valid {
		t := visibleFrom.Time
		challenge.VisibleFrom = &t
	}
	if visibleTo.Valid {
		t := visibleTo.Time
		challenge.VisibleTo = &t
	}

	return challenge, nil
}
