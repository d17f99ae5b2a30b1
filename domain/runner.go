package domain

import (
	"context"
	"errors"
)

// LaunchSpec describes one container to start. PortHint of 0 means the
// backend should discover the exposed port from image metadata.
type LaunchSpec struct {
	Image       string
	Labels      map[string]string
	Name        string
	NetworkHint string
	PortHint    int
}

type LaunchResult struct {
	ContainerID string
	Connection  *ConnectionInfo
}

type RunnerHealth struct {
	OK     bool
	Detail string
}

var ErrRunnerUnsupported = errors.New("runner mode not supported")

// Runner abstracts the container engine behind the instance lifecycle.
// Stop is idempotent: stopping an unknown or already removed container id is
// success, since the desired end state already holds.
type Runner interface {
	Launch(ctx context.Context, spec LaunchSpec) (*LaunchResult, error)
	Stop(ctx context.Context, containerID string) error
	HealthCheck(ctx context.Context) RunnerHealth
}
