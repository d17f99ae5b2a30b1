package runner

import (
	"context"
	"fmt"

	"github.com/kavos113/dynctf/domain"
)

// KubernetesRunner is a reserved mode. Every operation fails fast so a
// misconfigured deployment is caught immediately instead of silently
// no-opping.
type KubernetesRunner struct{}

func NewKubernetesRunner() *KubernetesRunner {
	return &KubernetesRunner{}
}

func (r *KubernetesRunner) Launch(ctx context.Context, spec domain.LaunchSpec) (*domain.LaunchResult, error) {
	return nil, fmt.Errorf("kubernetes runner: %w", domain.ErrRunnerUnsupported)
}

func (r *KubernetesRunner) Stop(ctx context.Context, containerID string) error {
	return fmt.Errorf("kubernetes runner: %w", domain.ErrRunnerUnsupported)
}

func (r *KubernetesRunner) HealthCheck(ctx context.Context) domain.RunnerHealth {
	return domain.RunnerHealth{OK: false, Detail: "kubernetes runner is not implemented"}
}
