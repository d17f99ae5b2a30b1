package domain

import (
	"context"
	"errors"
	"time"
)

type InstanceStatus string

const (
	InstanceStatusStarting InstanceStatus = "starting"
	InstanceStatusRunning  InstanceStatus = "running"
	InstanceStatusError    InstanceStatus = "error"
	InstanceStatusStopped  InstanceStatus = "stopped"
)

// ActiveStatuses are the statuses in which an instance counts against the
// one-active-instance-per-scope rule.
var ActiveStatuses = []InstanceStatus{InstanceStatusStarting, InstanceStatusRunning}

func (s InstanceStatus) IsActive() bool {
	return s == InstanceStatusStarting || s == InstanceStatusRunning
}

// PortBinding is one published port of a running container.
type PortBinding struct {
	ContainerPort string `json:"container_port"`
	Host          string `json:"host"`
	HostPort      string `json:"host_port"`
}

// ConnectionInfo is persisted as JSON alongside the instance. Absent fields
// mean "unknown", not an error.
type ConnectionInfo struct {
	Host    string        `json:"host"`
	Ports   []PortBinding `json:"ports"`
	Path    string        `json:"path,omitempty"`
	Network string        `json:"network,omitempty"`
}

// Instance is one attempt to run a challenge's backing container. UserID is
// nil for shared (static_container) instances. Terminal rows are kept as
// history; a fresh start request always creates a new row.
type Instance struct {
	InstanceID   int64
	ChallengeID  int64
	UserID       *int64
	Status       InstanceStatus
	ContainerID  string
	Connection   *ConnectionInfo
	ErrorMessage string
	StartedAt    *time.Time
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

var (
	ErrInstanceNotFound      = errors.New("instance not found")
	ErrInstanceAlreadyExists = errors.New("active instance already exists")
)

// IsExpired is a derived predicate: there is no stored "expired" status.
func (i *Instance) IsExpired() bool {
	if i.ExpiresAt == nil {
		return false
	}
	return i.ExpiresAt.Before(time.Now().UTC())
}

// MarkRunning records a successful launch. This is the only place the
// container id is set; later transitions leave it untouched.
func (i *Instance) MarkRunning(containerID string, conn *ConnectionInfo, startedAt time.Time, expiresAt *time.Time) {
	i.Status = InstanceStatusRunning
	i.ContainerID = containerID
	i.Connection = conn
	i.StartedAt = &startedAt
	i.ExpiresAt = expiresAt
	i.ErrorMessage = ""
}

func (i *Instance) MarkError(message string) {
	i.Status = InstanceStatusError
	i.ErrorMessage = message
	i.ExpiresAt = nil
}

func (i *Instance) MarkStopped() {
	i.Status = InstanceStatusStopped
	i.ExpiresAt = nil
}

type InstanceRepository interface {
	// Create persists a new row and fills in InstanceID. It returns
	// ErrInstanceAlreadyExists when another active row holds the same
	// (challenge, user) scope.
	Create(ctx context.Context, instance *Instance) error
	FindByID(ctx context.Context, instanceID int64) (*Instance, error)
	// FindLatestActive returns the most recently created active instance for
	// a (challenge, user) pair, or ErrInstanceNotFound.
	FindLatestActive(ctx context.Context, challengeID, userID int64) (*Instance, error)
	// FindLatestActiveShared is FindLatestActive for the shared scope
	// (user_id IS NULL).
	FindLatestActiveShared(ctx context.Context, challengeID int64) (*Instance, error)
	// FindExpired returns active instances whose expires_at is set and past.
	FindExpired(ctx context.Context, now time.Time) ([]*Instance, error)
	Update(ctx context.Context, instance *Instance) error
}
