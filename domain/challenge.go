package domain

import (
	"context"
	"errors"
	"time"
)

type DeploymentType string

const (
	DeploymentStaticAttachment DeploymentType = "static_attachment"
	DeploymentStaticContainer  DeploymentType = "static_container"
	DeploymentDynamicContainer DeploymentType = "dynamic_container"
)

type Challenge struct {
	ChallengeID    int64
	Title          string
	Description    string
	CategoryID     int64
	Flag           string // hash, never the plaintext
	Points         int
	MinPoints      int
	DecayPerSolve  int
	Difficulty     string
	DeploymentType DeploymentType
	DockerImage    string
	ServicePort    int
	ServiceURLPath string
	IsActive       bool
	IsPrivate      bool
	AlwaysOn       bool
	VisibleFrom    *time.Time
	VisibleTo      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

var (
	ErrChallengeNotFound      = errors.New("challenge not found")
	ErrChallengeAlreadyExists = errors.New("challenge already exists")
	ErrHintNotFound           = errors.New("hint not found")
)

// VisibleAt reports whether the challenge's visibility window contains t.
// Window bounds come out of the store as UTC (parseTime + loc=UTC), so the
// comparison is always between timezone-aware values.
func (c *Challenge) VisibleAt(t time.Time) bool {
	if c.VisibleFrom != nil && t.Before(*c.VisibleFrom) {
		return false
	}
	if c.VisibleTo != nil && t.After(*c.VisibleTo) {
		return false
	}
	return true
}

func (c *Challenge) IsContainerBacked() bool {
	return c.DeploymentType == DeploymentStaticContainer || c.DeploymentType == DeploymentDynamicContainer
}

type Hint struct {
	HintID      int64
	ChallengeID int64
	Content     string
	Penalty     int
	OrderIndex  int
}

type ChallengeRepository interface {
	FindByID(ctx context.Context, challengeID int64) (*Challenge, error)
	FindAll(ctx context.Context) ([]*Challenge, error)
	FindAlwaysOn(ctx context.Context) ([]*Challenge, error)
}

type HintRepository interface {
	FindByIDs(ctx context.Context, hintIDs []int64) ([]*Hint, error)
}
