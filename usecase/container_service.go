package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kavos113/dynctf/domain"
)

// NotAllowedError is a policy rejection: the challenge cannot launch an
// instance at all. It is never retried.
type NotAllowedError struct {
	Reason string
}

func (e *NotAllowedError) Error() string {
	return e.Reason
}

// LaunchError wraps a runner failure during provisioning. The instance row is
// left behind in the error state as a diagnostic record; the caller may issue
// a new start request, which creates a fresh row.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch instance: %v", e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

type InstanceConfig struct {
	TTLSeconds     int
	ReaperInterval time.Duration
	BaseURL        string
	Network        string
}

func NewInstanceConfigFromEnv() *InstanceConfig {
	ttl, err := strconv.Atoi(os.Getenv("CHALLENGE_INSTANCE_TIMEOUT"))
	if err != nil {
		ttl = 3600
	}
	interval, err := strconv.Atoi(os.Getenv("CHALLENGE_INSTANCE_CLEANUP_INTERVAL"))
	if err != nil {
		interval = 60
	}

	return &InstanceConfig{
		TTLSeconds:     ttl,
		ReaperInterval: time.Duration(interval) * time.Second,
		BaseURL:        strings.TrimRight(os.Getenv("CHALLENGE_ACCESS_BASE_URL"), "/"),
		Network:        os.Getenv("CHALLENGE_CONTAINER_NETWORK"),
	}
}

// ContainerService owns the challenge instance lifecycle: it decides whether
// an instance may run, which row satisfies a request, and when rows are
// reaped. The store's unique active-scope key is the backstop against
// concurrent starts; there is no in-process lock.
type ContainerService struct {
	challengeRepo domain.ChallengeRepository
	instanceRepo  domain.InstanceRepository
	runner        domain.Runner
	cfg           *InstanceConfig
	log           *slog.Logger

	baseScheme string
	baseHost   string
	basePort   string

	reaperCancel context.CancelFunc
	reaperDone   chan struct{}
}

func NewContainerService(
	challengeRepo domain.ChallengeRepository,
	instanceRepo domain.InstanceRepository,
	runner domain.Runner,
	cfg *InstanceConfig,
	log *slog.Logger,
) *ContainerService {
	s := &ContainerService{
		challengeRepo: challengeRepo,
		instanceRepo:  instanceRepo,
		runner:        runner,
		cfg:           cfg,
		log:           log,
		baseScheme:    "http",
	}

	if cfg.BaseURL != "" {
		if parsed, err := url.Parse(cfg.BaseURL); err == nil {
			if parsed.Scheme != "" {
				s.baseScheme = parsed.Scheme
			}
			s.baseHost = parsed.Hostname()
			s.basePort = parsed.Port()
		}
	}

	return s
}

// createRetries bounds how often a start request loops over the
// read-then-create sequence when it keeps colliding with concurrent requests.
const createRetries = 3

// StartInstance starts (or reuses) the caller's active instance of a
// dynamic_container challenge.
func (s *ContainerService) StartInstance(ctx context.Context, challenge *domain.Challenge, user *domain.User) (*domain.Instance, error) {
	if err := s.ensureLaunchable(challenge); err != nil {
		return nil, err
	}

	userID := user.UserID
	for attempt := 0; attempt < createRetries; attempt++ {
		existing, err := s.GetLatestActiveInstance(ctx, challenge.ChallengeID, user.UserID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}

		instance := &domain.Instance{
			ChallengeID: challenge.ChallengeID,
			UserID:      &userID,
			Status:      domain.InstanceStatusStarting,
		}

		err = s.instanceRepo.Create(ctx, instance)
		if errors.Is(err, domain.ErrInstanceAlreadyExists) {
			// Lost the create race. The next pass reads the winner's row; if
			// the winner already reached a terminal state, the scope key is
			// free again and the create is retried.
			continue
		}
		if err != nil {
			return nil, err
		}

		return s.provision(ctx, challenge, instance, s.ttlExpiry())
	}

	return nil, fmt.Errorf("failed to start instance for challenge %d: too many conflicting requests", challenge.ChallengeID)
}

// EnsureStaticInstance returns the single shared instance of a
// static_container challenge, provisioning it on first use. Shared instances
// have no owning user and no expiry.
func (s *ContainerService) EnsureStaticInstance(ctx context.Context, challenge *domain.Challenge) (*domain.Instance, error) {
	if err := s.ensureLaunchable(challenge); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < createRetries; attempt++ {
		existing, err := s.GetSharedInstance(ctx, challenge.ChallengeID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}

		instance := &domain.Instance{
			ChallengeID: challenge.ChallengeID,
			Status:      domain.InstanceStatusStarting,
		}

		err = s.instanceRepo.Create(ctx, instance)
		if errors.Is(err, domain.ErrInstanceAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, err
		}

		return s.provision(ctx, challenge, instance, nil)
	}

	return nil, fmt.Errorf("failed to start shared instance for challenge %d: too many conflicting requests", challenge.ChallengeID)
}

func (s *ContainerService) provision(ctx context.Context, challenge *domain.Challenge, instance *domain.Instance, expiresAt *time.Time) (*domain.Instance, error) {
	spec := domain.LaunchSpec{
		Image:       challenge.DockerImage,
		Labels:      s.instanceLabels(challenge, instance),
		Name:        instanceName(challenge, instance),
		NetworkHint: s.cfg.Network,
		PortHint:    challenge.ServicePort,
	}

	result, err := s.runner.Launch(ctx, spec)
	if err != nil {
		instance.MarkError(err.Error())
		if updateErr := s.instanceRepo.Update(ctx, instance); updateErr != nil {
			s.log.Error("failed to record launch error",
				slog.Int64("instance_id", instance.InstanceID),
				slog.String("error", updateErr.Error()))
		}
		return nil, &LaunchError{Err: err}
	}

	connection := result.Connection
	if connection != nil && challenge.ServiceURLPath != "" {
		connection.Path = challenge.ServiceURLPath
	}

	startedAt := time.Now().UTC()
	instance.MarkRunning(result.ContainerID, connection, startedAt, expiresAt)
	if err := s.instanceRepo.Update(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to save instance: %w", err)
	}

	s.log.Info("instance running",
		slog.Int64("instance_id", instance.InstanceID),
		slog.Int64("challenge_id", challenge.ChallengeID),
		slog.String("container_id", result.ContainerID))

	return instance, nil
}

// StopInstance is idempotent. The runner stop is best effort: the caller's
// intent is recorded even when the engine is unreachable.
func (s *ContainerService) StopInstance(ctx context.Context, instance *domain.Instance) (*domain.Instance, error) {
	if instance.Status == domain.InstanceStatusStopped {
		return instance, nil
	}

	if instance.ContainerID != "" {
		if err := s.runner.Stop(ctx, instance.ContainerID); err != nil {
			s.log.Warn("failed stopping container",
				slog.String("container_id", instance.ContainerID),
				slog.String("error", err.Error()))
		}
	}

	instance.MarkStopped()
	if err := s.instanceRepo.Update(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to save instance: %w", err)
	}
	return instance, nil
}

// GetLatestActiveInstance returns the live instance for a (challenge, user)
// pair, or nil. An expired row is lazily stopped on the way: a get can write.
func (s *ContainerService) GetLatestActiveInstance(ctx context.Context, challengeID, userID int64) (*domain.Instance, error) {
	instance, err := s.instanceRepo.FindLatestActive(ctx, challengeID, userID)
	if errors.Is(err, domain.ErrInstanceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.filterExpired(ctx, instance)
}

// GetSharedInstance is GetLatestActiveInstance for the shared scope.
func (s *ContainerService) GetSharedInstance(ctx context.Context, challengeID int64) (*domain.Instance, error) {
	instance, err := s.instanceRepo.FindLatestActiveShared(ctx, challengeID)
	if errors.Is(err, domain.ErrInstanceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.filterExpired(ctx, instance)
}

func (s *ContainerService) filterExpired(ctx context.Context, instance *domain.Instance) (*domain.Instance, error) {
	if !instance.IsExpired() {
		return instance, nil
	}
	if _, err := s.StopInstance(ctx, instance); err != nil {
		return nil, err
	}
	return nil, nil
}

// BuildAccessURL composes the externally reachable URL for an instance. It is
// pure: no I/O, nothing persisted. An empty result means no URL is known.
func (s *ContainerService) BuildAccessURL(challenge *domain.Challenge, instance *domain.Instance) string {
	if path := challenge.ServiceURLPath; path != "" {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		if s.cfg.BaseURL != "" {
			return s.cfg.BaseURL + path
		}
		return path
	}

	if instance == nil || instance.Connection == nil || len(instance.Connection.Ports) == 0 {
		return ""
	}

	binding := instance.Connection.Ports[0]
	host := binding.Host
	if host == "" || host == "0.0.0.0" {
		host = instance.Connection.Host
	}
	if host == "" || host == "localhost" {
		if s.baseHost != "" {
			host = s.baseHost
		} else if host == "" {
			host = "localhost"
		}
	}

	u := url.URL{Scheme: s.baseScheme, Host: host, Path: "/"}
	if binding.HostPort != "" {
		u.Host = host + ":" + binding.HostPort
	} else if s.basePort != "" && host == s.baseHost {
		u.Host = host + ":" + s.basePort
	}
	return u.String()
}

// ReapExpired stops every active instance whose expiry has passed. A failure
// on one instance never aborts the pass for the others.
func (s *ContainerService) ReapExpired(ctx context.Context) (int, error) {
	expired, err := s.instanceRepo.FindExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	count := 0
	for _, instance := range expired {
		if _, err := s.StopInstance(ctx, instance); err != nil {
			s.log.Error("failed to reap instance",
				slog.Int64("instance_id", instance.InstanceID),
				slog.String("error", err.Error()))
			continue
		}
		count++
	}
	return count, nil
}

// StartReaper launches the background cleanup loop. It survives every backend
// error; only StopReaper ends it.
func (s *ContainerService) StartReaper() {
	if s.cfg.ReaperInterval <= 0 || s.reaperDone != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.reaperCancel = cancel
	s.reaperDone = make(chan struct{})

	go func() {
		defer close(s.reaperDone)

		ticker := time.NewTicker(s.cfg.ReaperInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				count, err := s.ReapExpired(ctx)
				if err != nil {
					s.log.Error("instance cleanup pass failed", slog.String("error", err.Error()))
					continue
				}
				if count > 0 {
					s.log.Info("reaped expired instances", slog.Int("count", count))
				}
			}
		}
	}()
}

// StopReaper cancels the cleanup loop and waits for it to finish.
func (s *ContainerService) StopReaper() {
	if s.reaperDone == nil {
		return
	}
	s.reaperCancel()
	<-s.reaperDone
	s.reaperCancel = nil
	s.reaperDone = nil
}

// EnsureAlwaysOn provisions the shared instance of every always-on
// static_container challenge. Called once at startup; failures are logged and
// skipped so one bad image cannot block the rest.
func (s *ContainerService) EnsureAlwaysOn(ctx context.Context) int {
	challenges, err := s.challengeRepo.FindAlwaysOn(ctx)
	if err != nil {
		s.log.Error("failed to list always-on challenges", slog.String("error", err.Error()))
		return 0
	}

	count := 0
	for _, challenge := range challenges {
		if _, err := s.EnsureStaticInstance(ctx, challenge); err != nil {
			s.log.Warn("failed to warm up always-on challenge",
				slog.Int64("challenge_id", challenge.ChallengeID),
				slog.String("error", err.Error()))
			continue
		}
		count++
	}
	return count
}

// RunnerHealth reports whether the configured backend is reachable.
func (s *ContainerService) RunnerHealth(ctx context.Context) domain.RunnerHealth {
	return s.runner.HealthCheck(ctx)
}

func (s *ContainerService) ensureLaunchable(challenge *domain.Challenge) error {
	if !challenge.IsActive || challenge.IsPrivate {
		return &NotAllowedError{Reason: "challenge is not active"}
	}
	if challenge.DeploymentType == domain.DeploymentStaticAttachment {
		return &NotAllowedError{Reason: "challenge does not launch instances"}
	}
	if challenge.DockerImage == "" {
		return &NotAllowedError{Reason: "challenge does not have a docker image configured"}
	}

	now := time.Now().UTC()
	if challenge.VisibleFrom != nil && now.Before(*challenge.VisibleFrom) {
		return &NotAllowedError{Reason: "challenge is not yet visible"}
	}
	if challenge.VisibleTo != nil && now.After(*challenge.VisibleTo) {
		return &NotAllowedError{Reason: "challenge is no longer visible"}
	}
	return nil
}

func (s *ContainerService) ttlExpiry() *time.Time {
	if s.cfg.TTLSeconds <= 0 {
		return nil
	}
	expires := time.Now().UTC().Add(time.Duration(s.cfg.TTLSeconds) * time.Second)
	return &expires
}

func (s *ContainerService) instanceLabels(challenge *domain.Challenge, instance *domain.Instance) map[string]string {
	labels := map[string]string{
		"ctf.challenge_id": strconv.FormatInt(challenge.ChallengeID, 10),
		"ctf.instance_id":  strconv.FormatInt(instance.InstanceID, 10),
	}
	if instance.UserID != nil {
		labels["ctf.user_id"] = strconv.FormatInt(*instance.UserID, 10)
	}
	return labels
}

func instanceName(challenge *domain.Challenge, instance *domain.Instance) string {
	if instance.UserID == nil {
		return fmt.Sprintf("ctf_%d_shared_%d", challenge.ChallengeID, instance.InstanceID)
	}
	return fmt.Sprintf("ctf_%d_%d_%d", challenge.ChallengeID, *instance.UserID, instance.InstanceID)
}
