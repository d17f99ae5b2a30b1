package domain

import (
	"context"
	"errors"
	"time"
)

// User carries only what this service needs; account management lives in the
// auth layer in front of it.
type User struct {
	UserID    int64
	Username  string
	CreatedAt time.Time
}

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	FindByID(ctx context.Context, userID int64) (*User, error)
}
