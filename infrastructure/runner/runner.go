// Package runner provides the container engine backends behind the instance
// lifecycle: a local Docker socket, a TLS-secured remote Docker endpoint, and
// a reserved kubernetes mode.
package runner

import (
	"fmt"
	"log/slog"

	"github.com/kavos113/dynctf/domain"
)

// New selects a backend once at startup from the configured mode.
func New(cfg *Config, log *slog.Logger) (domain.Runner, error) {
	switch cfg.Mode {
	case ModeLocal:
		return NewLocalDockerRunner(cfg, log)
	case ModeRemoteDocker:
		return NewRemoteDockerRunner(cfg, log)
	case ModeKubernetes:
		return NewKubernetesRunner(), nil
	default:
		return nil, fmt.Errorf("unknown runner mode %q", cfg.Mode)
	}
}
