package domain

import (
	"testing"
	"time"
)

func TestInstanceStatusIsActive(t *testing.T) {
	tests := []struct {
		status InstanceStatus
		want   bool
	}{
		{InstanceStatusStarting, true},
		{InstanceStatusRunning, true},
		{InstanceStatusError, false},
		{InstanceStatusStopped, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsActive(); got != tt.want {
				t.Errorf("IsActive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInstanceIsExpired(t *testing.T) {
	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Minute)

	tests := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{"no expiry", nil, false},
		{"expiry in the future", &future, false},
		{"expiry in the past", &past, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instance := &Instance{Status: InstanceStatusRunning, ExpiresAt: tt.expiresAt}
			if got := instance.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInstanceMarkRunning(t *testing.T) {
	startedAt := time.Now().UTC()
	expiresAt := startedAt.Add(time.Hour)
	conn := &ConnectionInfo{
		Host:  "localhost",
		Ports: []PortBinding{{ContainerPort: "80/tcp", Host: "0.0.0.0", HostPort: "32768"}},
	}

	instance := &Instance{Status: InstanceStatusStarting, ErrorMessage: "stale"}
	instance.MarkRunning("abc123", conn, startedAt, &expiresAt)

	if instance.Status != InstanceStatusRunning {
		t.Errorf("Status = %s, want running", instance.Status)
	}
	if instance.ContainerID != "abc123" {
		t.Errorf("ContainerID = %s, want abc123", instance.ContainerID)
	}
	if instance.Connection != conn {
		t.Errorf("Connection not recorded")
	}
	if instance.StartedAt == nil || !instance.StartedAt.Equal(startedAt) {
		t.Errorf("StartedAt = %v, want %v", instance.StartedAt, startedAt)
	}
	if instance.ExpiresAt == nil || !instance.ExpiresAt.Equal(expiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", instance.ExpiresAt, expiresAt)
	}
	if instance.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want cleared", instance.ErrorMessage)
	}
}

func TestInstanceMarkError(t *testing.T) {
	expiresAt := time.Now().UTC().Add(time.Hour)
	instance := &Instance{Status: InstanceStatusStarting, ExpiresAt: &expiresAt}

	instance.MarkError("image pull failed")

	if instance.Status != InstanceStatusError {
		t.Errorf("Status = %s, want error", instance.Status)
	}
	if instance.ErrorMessage != "image pull failed" {
		t.Errorf("ErrorMessage = %q", instance.ErrorMessage)
	}
	if instance.ExpiresAt != nil {
		t.Errorf("ExpiresAt = %v, want nil on a terminal row", instance.ExpiresAt)
	}
}

func TestInstanceMarkStopped(t *testing.T) {
	expiresAt := time.Now().UTC().Add(time.Hour)
	instance := &Instance{
		Status:      InstanceStatusRunning,
		ContainerID: "abc123",
		ExpiresAt:   &expiresAt,
	}

	instance.MarkStopped()

	if instance.Status != InstanceStatusStopped {
		t.Errorf("Status = %s, want stopped", instance.Status)
	}
	if instance.ExpiresAt != nil {
		t.Errorf("ExpiresAt = %v, want nil", instance.ExpiresAt)
	}
	// The container id stays for auditing which container served the row.
	if instance.ContainerID != "abc123" {
		t.Errorf("ContainerID = %s, want preserved", instance.ContainerID)
	}
}
