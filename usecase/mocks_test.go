package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kavos113/dynctf/domain"
)

type MockChallengeRepository struct {
	challenges map[int64]*domain.Challenge
}

func NewMockChallengeRepository() *MockChallengeRepository {
	return &MockChallengeRepository{
		challenges: make(map[int64]*domain.Challenge),
	}
}

func (m *MockChallengeRepository) Add(challenge *domain.Challenge) {
	m.challenges[challenge.ChallengeID] = challenge
}

func (m *MockChallengeRepository) FindByID(ctx context.Context, challengeID int64) (*domain.Challenge, error) {
	challenge, exists := m.challenges[challengeID]
	if !exists {
		return nil, domain.ErrChallengeNotFound
	}
	return challenge, nil
}

func (m *MockChallengeRepository) FindAll(ctx context.Context) ([]*domain.Challenge, error) {
	result := make([]*domain.Challenge, 0, len(m.challenges))
	for _, c := range m.challenges {
		result = append(result, c)
	}
	return result, nil
}

func (m *MockChallengeRepository) FindAlwaysOn(ctx context.Context) ([]*domain.Challenge, error) {
	result := make([]*domain.Challenge, 0)
	for _, c := range m.challenges {
		if c.IsActive && c.DeploymentType == domain.DeploymentStaticContainer && c.AlwaysOn {
			result = append(result, c)
		}
	}
	return result, nil
}

// MockInstanceRepository enforces the same one-active-row-per-scope rule the
// real store's unique key does.
type MockInstanceRepository struct {
	mu        sync.Mutex
	instances map[int64]*domain.Instance
	nextID    int64
	onCreate  func(instance *domain.Instance) error
}

func NewMockInstanceRepository() *MockInstanceRepository {
	return &MockInstanceRepository{
		instances: make(map[int64]*domain.Instance),
	}
}

func (m *MockInstanceRepository) Insert(instance *domain.Instance) *domain.Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	instance.InstanceID = m.nextID
	instance.CreatedAt = time.Now().UTC()
	instance.UpdatedAt = instance.CreatedAt
	m.instances[instance.InstanceID] = instance
	return instance
}

func sameScope(a, b *domain.Instance) bool {
	if a.ChallengeID != b.ChallengeID {
		return false
	}
	if a.UserID == nil || b.UserID == nil {
		return a.UserID == nil && b.UserID == nil
	}
	return *a.UserID == *b.UserID
}

func (m *MockInstanceRepository) Create(ctx context.Context, instance *domain.Instance) error {
	if m.onCreate != nil {
		if err := m.onCreate(instance); err != nil {
			return err
		}
	}

	m.mu.Lock()
	for _, existing := range m.instances {
		if existing.Status.IsActive() && sameScope(existing, instance) {
			m.mu.Unlock()
			return domain.ErrInstanceAlreadyExists
		}
	}
	m.mu.Unlock()

	m.Insert(instance)
	return nil
}

func (m *MockInstanceRepository) FindByID(ctx context.Context, instanceID int64) (*domain.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	instance, exists := m.instances[instanceID]
	if !exists {
		return nil, domain.ErrInstanceNotFound
	}
	return instance, nil
}

func (m *MockInstanceRepository) FindLatestActive(ctx context.Context, challengeID, userID int64) (*domain.Instance, error) {
	return m.findLatest(func(i *domain.Instance) bool {
		return i.ChallengeID == challengeID && i.UserID != nil && *i.UserID == userID
	})
}

func (m *MockInstanceRepository) FindLatestActiveShared(ctx context.Context, challengeID int64) (*domain.Instance, error) {
	return m.findLatest(func(i *domain.Instance) bool {
		return i.ChallengeID == challengeID && i.UserID == nil
	})
}

func (m *MockInstanceRepository) findLatest(match func(*domain.Instance) bool) (*domain.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *domain.Instance
	for _, instance := range m.instances {
		if !instance.Status.IsActive() || !match(instance) {
			continue
		}
		if latest == nil || instance.InstanceID > latest.InstanceID {
			latest = instance
		}
	}
	if latest == nil {
		return nil, domain.ErrInstanceNotFound
	}
	return latest, nil
}

func (m *MockInstanceRepository) FindExpired(ctx context.Context, now time.Time) ([]*domain.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired := make([]*domain.Instance, 0)
	for _, instance := range m.instances {
		if instance.Status.IsActive() && instance.ExpiresAt != nil && instance.ExpiresAt.Before(now) {
			expired = append(expired, instance)
		}
	}
	return expired, nil
}

func (m *MockInstanceRepository) Update(ctx context.Context, instance *domain.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.instances[instance.InstanceID]; !exists {
		return domain.ErrInstanceNotFound
	}
	instance.UpdatedAt = time.Now().UTC()
	m.instances[instance.InstanceID] = instance
	return nil
}

func (m *MockInstanceRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.instances)
}

type MockSubmissionRepository struct {
	submissions map[string]*domain.Submission
	onCreate    func(submission *domain.Submission) error
}

func NewMockSubmissionRepository() *MockSubmissionRepository {
	return &MockSubmissionRepository{
		submissions: make(map[string]*domain.Submission),
	}
}

func (m *MockSubmissionRepository) Create(ctx context.Context, submission *domain.Submission) error {
	if m.onCreate != nil {
		if err := m.onCreate(submission); err != nil {
			return err
		}
	}

	if submission.FirstBlood {
		for _, existing := range m.submissions {
			if existing.ChallengeID == submission.ChallengeID && existing.IsCorrect && existing.FirstBlood {
				return domain.ErrFirstBloodTaken
			}
		}
	}
	m.submissions[submission.SubmissionID] = submission
	return nil
}

func (m *MockSubmissionRepository) CountCorrectByChallenge(ctx context.Context, challengeID int64) (int, error) {
	count := 0
	for _, s := range m.submissions {
		if s.ChallengeID == challengeID && s.IsCorrect {
			count++
		}
	}
	return count, nil
}

func (m *MockSubmissionRepository) HasCorrectByUserAndChallenge(ctx context.Context, userID, challengeID int64) (bool, error) {
	for _, s := range m.submissions {
		if s.UserID == userID && s.ChallengeID == challengeID && s.IsCorrect {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockSubmissionRepository) HasCorrectByChallenge(ctx context.Context, challengeID int64) (bool, error) {
	for _, s := range m.submissions {
		if s.ChallengeID == challengeID && s.IsCorrect {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockSubmissionRepository) Leaderboard(ctx context.Context, limit int) ([]*domain.LeaderboardEntry, error) {
	scores := make(map[int64]*domain.LeaderboardEntry)
	for _, s := range m.submissions {
		if !s.IsCorrect {
			continue
		}
		entry, ok := scores[s.UserID]
		if !ok {
			entry = &domain.LeaderboardEntry{UserID: s.UserID, Username: fmt.Sprintf("user%d", s.UserID)}
			scores[s.UserID] = entry
		}
		entry.Score += s.PointsAwarded
		if s.SubmittedAt.After(entry.LastSolvedAt) {
			entry.LastSolvedAt = s.SubmittedAt
		}
	}

	entries := make([]*domain.LeaderboardEntry, 0, len(scores))
	for _, entry := range scores {
		entries = append(entries, entry)
	}
	return entries, nil
}

type MockHintRepository struct {
	hints map[int64]*domain.Hint
}

func NewMockHintRepository() *MockHintRepository {
	return &MockHintRepository{
		hints: make(map[int64]*domain.Hint),
	}
}

func (m *MockHintRepository) Add(hint *domain.Hint) {
	m.hints[hint.HintID] = hint
}

func (m *MockHintRepository) FindByIDs(ctx context.Context, hintIDs []int64) ([]*domain.Hint, error) {
	result := make([]*domain.Hint, 0)
	for _, id := range hintIDs {
		if hint, ok := m.hints[id]; ok {
			result = append(result, hint)
		}
	}
	return result, nil
}

// FakeRunner records launches and stops instead of talking to an engine.
type FakeRunner struct {
	mu        sync.Mutex
	launchErr error
	stopErr   error
	launched  []domain.LaunchSpec
	stopped   []string
	nextID    int
}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{}
}

func (r *FakeRunner) Launch(ctx context.Context, spec domain.LaunchSpec) (*domain.LaunchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.launchErr != nil {
		return nil, r.launchErr
	}

	r.launched = append(r.launched, spec)
	r.nextID++
	return &domain.LaunchResult{
		ContainerID: fmt.Sprintf("container-%d", r.nextID),
		Connection: &domain.ConnectionInfo{
			Host: "localhost",
			Ports: []domain.PortBinding{
				{ContainerPort: "80/tcp", Host: "localhost", HostPort: fmt.Sprintf("%d", 32767+r.nextID)},
			},
		},
	}, nil
}

func (r *FakeRunner) Stop(ctx context.Context, containerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopErr != nil {
		return r.stopErr
	}
	r.stopped = append(r.stopped, containerID)
	return nil
}

func (r *FakeRunner) HealthCheck(ctx context.Context) domain.RunnerHealth {
	return domain.RunnerHealth{OK: true, Detail: "fake runner"}
}

func (r *FakeRunner) LaunchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.launched)
}

func (r *FakeRunner) Stopped() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stopped...)
}
