package runner

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/docker/go-connections/nat"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestLowestExposedPort(t *testing.T) {
	tests := []struct {
		name    string
		exposed nat.PortSet
		want    nat.Port
		wantOK  bool
	}{
		{
			name:    "empty set",
			exposed: nat.PortSet{},
			wantOK:  false,
		},
		{
			name:    "single port",
			exposed: nat.PortSet{"8080/tcp": struct{}{}},
			want:    "8080/tcp",
			wantOK:  true,
		},
		{
			name: "multiple ports picks lowest",
			exposed: nat.PortSet{
				"9000/tcp": struct{}{},
				"80/tcp":   struct{}{},
				"443/tcp":  struct{}{},
			},
			want:   "80/tcp",
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := lowestExposedPort(tt.exposed)
			if ok != tt.wantOK {
				t.Fatalf("lowestExposedPort() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("lowestExposedPort() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCollectPortBindings(t *testing.T) {
	ports := nat.PortMap{
		"80/tcp": []nat.PortBinding{
			{HostIP: "0.0.0.0", HostPort: "32768"},
		},
		"443/tcp": []nat.PortBinding{
			{HostIP: "10.0.0.5", HostPort: "32769"},
		},
		"9000/tcp": nil,
	}

	bindings := collectPortBindings(ports, "ctf.example.com")

	if len(bindings) != 2 {
		t.Fatalf("collectPortBindings() returned %d bindings, want 2", len(bindings))
	}

	if bindings[0].HostPort != "32768" {
		t.Errorf("bindings[0].HostPort = %s, want 32768", bindings[0].HostPort)
	}
	if bindings[0].Host != "ctf.example.com" {
		t.Errorf("0.0.0.0 binding host = %s, want fallback host", bindings[0].Host)
	}
	if bindings[1].Host != "10.0.0.5" {
		t.Errorf("explicit binding host = %s, want 10.0.0.5", bindings[1].Host)
	}
}

func TestResolveNetwork(t *testing.T) {
	tests := []struct {
		name     string
		hint     string
		cfg      string
		existing map[string]bool
		want     string
	}{
		{
			name:     "hint exists",
			hint:     "event_net",
			cfg:      "cfg_net",
			existing: map[string]bool{"event_net": true, "cfg_net": true},
			want:     "event_net",
		},
		{
			name:     "falls back to configured network",
			hint:     "missing",
			cfg:      "cfg_net",
			existing: map[string]bool{"cfg_net": true},
			want:     "cfg_net",
		},
		{
			name:     "falls back to default network",
			existing: map[string]bool{defaultNetwork: true},
			want:     defaultNetwork,
		},
		{
			name:     "no network exists",
			cfg:      "cfg_net",
			existing: map[string]bool{},
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &DockerRunner{
				cfg: &Config{Network: tt.cfg},
				log: testLogger(),
			}
			r.netLookup = func(ctx context.Context, name string) error {
				if tt.existing[name] {
					return nil
				}
				return errors.New("network not found")
			}

			got := r.resolveNetwork(context.Background(), tt.hint)
			if got != tt.want {
				t.Errorf("resolveNetwork() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveNetworkCheckedOnce(t *testing.T) {
	calls := 0
	r := &DockerRunner{
		cfg: &Config{Network: "cfg_net"},
		log: testLogger(),
	}
	r.netLookup = func(ctx context.Context, name string) error {
		calls++
		return nil
	}

	r.resolveNetwork(context.Background(), "")
	r.resolveNetwork(context.Background(), "")

	if calls != 1 {
		t.Errorf("network lookup ran %d times, want 1", calls)
	}
}
