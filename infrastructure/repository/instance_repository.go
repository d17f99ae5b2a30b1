package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/kavos113/dynctf/domain"
)

const mysqlErrDuplicateEntry = 1062

type MySQLInstanceRepository struct {
	db *sql.DB
}

func NewMySQLInstanceRepository(db *sql.DB) *MySQLInstanceRepository {
	return &MySQLInstanceRepository{db: db}
}

const instanceColumns = `id, challenge_id, user_id, status, container_id, connection_info, error_message, started_at, expires_at, created_at, updated_at`

func (r *MySQLInstanceRepository) Create(ctx context.Context, instance *domain.Instance) error {
	connJSON, err := marshalConnection(instance.Connection)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO challenge_instances (challenge_id, user_id, status, container_id, connection_info, error_message, started_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		instance.ChallengeID,
		nullInt64(instance.UserID),
		instance.Status,
		nullString(instance.ContainerID),
		connJSON,
		nullString(instance.ErrorMessage),
		nullTime(instance.StartedAt),
		nullTime(instance.ExpiresAt),
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
			// The unique active-scope key lost a race against a concurrent
			// start for the same (challenge, user).
			return domain.ErrInstanceAlreadyExists
		}
		return fmt.Errorf("failed to insert instance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read instance id: %w", err)
	}
	instance.InstanceID = id
	return nil
}

func (r *MySQLInstanceRepository) FindByID(ctx context.Context, instanceID int64) (*domain.Instance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM challenge_instances
		WHERE id = ?
	`
	return scanInstance(r.db.QueryRowContext(ctx, query, instanceID))
}

func (r *MySQLInstanceRepository) FindLatestActive(ctx context.Context, challengeID, userID int64) (*domain.Instance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM challenge_instances
		WHERE challenge_id = ? AND user_id = ? AND status IN ('starting', 'running')
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	return scanInstance(r.db.QueryRowContext(ctx, query, challengeID, userID))
}

func (r *MySQLInstanceRepository) FindLatestActiveShared(ctx context.Context, challengeID int64) (*domain.Instance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM challenge_instances
		WHERE challenge_id = ? AND user_id IS NULL AND status IN ('starting', 'running')
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	return scanInstance(r.db.QueryRowContext(ctx, query, challengeID))
}

func (r *MySQLInstanceRepository) FindExpired(ctx context.Context, now time.Time) ([]*domain.Instance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM challenge_instances
		WHERE status IN ('starting', 'running') AND expires_at IS NOT NULL AND expires_at < ?
	`
	rows, err := r.db.QueryContext(ctx, query, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*domain.Instance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}

	return instances, rows.Err()
}

func (r *MySQLInstanceRepository) Update(ctx context.Context, instance *domain.Instance) error {
	connJSON, err := marshalConnection(instance.Connection)
	if err != nil {
		return err
	}

	query := `
		UPDATE challenge_instances
		SET status = ?, container_id = ?, connection_info = ?, error_message = ?, started_at = ?, expires_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		instance.Status,
		nullString(instance.ContainerID),
		connJSON,
		nullString(instance.ErrorMessage),
		nullTime(instance.StartedAt),
		nullTime(instance.ExpiresAt),
		instance.InstanceID,
	)
	if err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrInstanceNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (*domain.Instance, error) {
	instance := &domain.Instance{}
	var (
		userID       sql.NullInt64
		containerID  sql.NullString
		connJSON     sql.NullString
		errorMessage sql.NullString
		startedAt    sql.NullTime
		expiresAt    sql.NullTime
	)

	err := row.Scan(
		&instance.InstanceID,
		&instance.ChallengeID,
		&userID,
		&instance.Status,
		&containerID,
		&connJSON,
		&errorMessage,
		&startedAt,
		&expiresAt,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrInstanceNotFound
	}
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		instance.UserID = &userID.Int64
	}
	instance.ContainerID = containerID.String
	instance.ErrorMessage = errorMessage.String
	if startedAt.Valid {
		t := startedAt.Time
		instance.StartedAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		instance.ExpiresAt = &t
	}
	if connJSON.Valid && connJSON.String != "" {
		conn := &domain.ConnectionInfo{}
		if err := json.Unmarshal([]byte(connJSON.String), conn); err != nil {
			return nil, fmt.Errorf("failed to decode connection info: %w", err)
		}
		instance.Connection = conn
	}

	return instance, nil
}

func marshalConnection(conn *domain.ConnectionInfo) (sql.NullString, error) {
	if conn == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(conn)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode connection info: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}
}
