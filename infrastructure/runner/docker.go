package runner

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
	"github.com/docker/go-connections/tlsconfig"

	"github.com/kavos113/dynctf/domain"
)

// defaultNetwork is attached when no network is configured and it exists on
// the host.
const defaultNetwork = "ctf_net"

const defaultContainerPort = 80

const stopTimeoutSeconds = 10

// DockerRunner drives a Docker engine, either over the local socket or a
// TLS-secured remote endpoint.
type DockerRunner struct {
	cli       *client.Client
	cfg       *Config
	log       *slog.Logger
	netOnce   sync.Once
	netName   string
	netLookup func(ctx context.Context, name string) error
}

func NewLocalDockerRunner(cfg *Config, log *slog.Logger) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newDockerRunner(cli, cfg, log), nil
}

func NewRemoteDockerRunner(cfg *Config, log *slog.Logger) (*DockerRunner, error) {
	if cfg.RemoteHost == "" {
		return nil, fmt.Errorf("remote docker runner requires DOCKER_REMOTE_HOST")
	}

	tlsOptions := tlsconfig.Options{
		CAFile:             cfg.RemoteCACert,
		CertFile:           cfg.RemoteClientCert,
		KeyFile:            cfg.RemoteClientKey,
		InsecureSkipVerify: !cfg.RemoteTLSVerify,
	}
	tlsConfig, err := tlsconfig.Client(tlsOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to build TLS config: %w", err)
	}

	httpClient := &http.Client{
		Transport:     &http.Transport{TLSClientConfig: tlsConfig},
		CheckRedirect: client.CheckRedirect,
	}

	cli, err := client.NewClientWithOpts(
		client.WithHost(cfg.RemoteHost),
		client.WithHTTPClient(httpClient),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote docker client: %w", err)
	}
	return newDockerRunner(cli, cfg, log), nil
}

func newDockerRunner(cli *client.Client, cfg *Config, log *slog.Logger) *DockerRunner {
	r := &DockerRunner{cli: cli, cfg: cfg, log: log}
	r.netLookup = func(ctx context.Context, name string) error {
		_, err := cli.NetworkInspect(ctx, name, network.InspectOptions{})
		return err
	}
	return r
}

func (r *DockerRunner) Launch(ctx context.Context, spec domain.LaunchSpec) (*domain.LaunchResult, error) {
	port := r.resolvePort(ctx, spec)

	containerConfig := &container.Config{
		Image:  spec.Image,
		Labels: spec.Labels,
		ExposedPorts: nat.PortSet{
			port: struct{}{},
		},
	}
	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{
				{HostIP: "0.0.0.0", HostPort: ""},
			},
		},
		AutoRemove: false,
	}

	networkingConfig := &network.NetworkingConfig{}
	if name := r.resolveNetwork(ctx, spec.NetworkHint); name != "" {
		networkingConfig.EndpointsConfig = map[string]*network.EndpointSettings{
			name: {},
		}
	}

	created, err := r.cli.ContainerCreate(ctx, containerConfig, hostConfig, networkingConfig, nil, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := r.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	connection := &domain.ConnectionInfo{
		Host:    r.cfg.HostLabel,
		Ports:   []domain.PortBinding{},
		Network: r.netName,
	}

	inspected, err := r.cli.ContainerInspect(ctx, created.ID)
	if err != nil {
		// The container is up; missing port data only degrades the access URL.
		r.log.Warn("failed to inspect container after start",
			slog.String("container_id", created.ID),
			slog.String("error", err.Error()))
		return &domain.LaunchResult{ContainerID: created.ID, Connection: connection}, nil
	}

	if inspected.NetworkSettings != nil {
		connection.Ports = collectPortBindings(inspected.NetworkSettings.Ports, r.cfg.HostLabel)
	}

	r.log.Info("container started",
		slog.String("container_id", created.ID),
		slog.String("image", spec.Image),
		slog.Int("port_count", len(connection.Ports)))

	return &domain.LaunchResult{ContainerID: created.ID, Connection: connection}, nil
}

func (r *DockerRunner) Stop(ctx context.Context, containerID string) error {
	if containerID == "" {
		return nil
	}

	timeout := stopTimeoutSeconds
	if err := r.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		if errdefs.IsNotFound(err) {
			// Already gone: the desired end state holds.
			r.log.Warn("container not found on stop", slog.String("container_id", containerID))
			return nil
		}
		return fmt.Errorf("failed to stop container %s: %w", containerID, err)
	}

	if err := r.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", containerID, err)
	}
	return nil
}

func (r *DockerRunner) HealthCheck(ctx context.Context) domain.RunnerHealth {
	ping, err := r.cli.Ping(ctx)
	if err != nil {
		return domain.RunnerHealth{OK: false, Detail: fmt.Sprintf("docker engine unreachable: %v", err)}
	}
	return domain.RunnerHealth{OK: true, Detail: fmt.Sprintf("docker API %s", ping.APIVersion)}
}

func (r *DockerRunner) Close() error {
	return r.cli.Close()
}

// resolvePort picks the container port to publish: the explicit hint first,
// then the image's exposed ports, then a default. A lookup failure never
// aborts the launch.
func (r *DockerRunner) resolvePort(ctx context.Context, spec domain.LaunchSpec) nat.Port {
	if spec.PortHint > 0 {
		return nat.Port(fmt.Sprintf("%d/tcp", spec.PortHint))
	}

	info, _, err := r.cli.ImageInspectWithRaw(ctx, spec.Image)
	if err != nil {
		r.log.Warn("failed to inspect image for exposed ports",
			slog.String("image", spec.Image),
			slog.String("error", err.Error()))
		return nat.Port(fmt.Sprintf("%d/tcp", defaultContainerPort))
	}

	if info.Config != nil {
		if port, ok := lowestExposedPort(info.Config.ExposedPorts); ok {
			return port
		}
	}
	return nat.Port(fmt.Sprintf("%d/tcp", defaultContainerPort))
}

// resolveNetwork returns the first configured network that exists on the
// host, checked once per runner. No match means no explicit attachment.
func (r *DockerRunner) resolveNetwork(ctx context.Context, hint string) string {
	r.netOnce.Do(func() {
		candidates := []string{hint, r.cfg.Network, defaultNetwork}
		for _, candidate := range candidates {
			if candidate == "" {
				continue
			}
			if err := r.netLookup(ctx, candidate); err != nil {
				continue
			}
			r.netName = candidate
			return
		}
		r.log.Warn("no configured container network exists, launching without explicit network")
	})
	return r.netName
}

func lowestExposedPort(exposed nat.PortSet) (nat.Port, bool) {
	if len(exposed) == 0 {
		return "", false
	}

	ports := make([]nat.Port, 0, len(exposed))
	for p := range exposed {
		ports = append(ports, p)
	}
	sort.Slice(ports, func(i, j int) bool {
		return ports[i].Int() < ports[j].Int()
	})
	return ports[0], true
}

func collectPortBindings(ports nat.PortMap, fallbackHost string) []domain.PortBinding {
	bindings := make([]domain.PortBinding, 0, len(ports))
	for containerPort, hostBindings := range ports {
		for _, b := range hostBindings {
			host := b.HostIP
			if host == "" || host == "0.0.0.0" {
				host = fallbackHost
			}
			bindings = append(bindings, domain.PortBinding{
				ContainerPort: string(containerPort),
				Host:          host,
				HostPort:      b.HostPort,
			})
		}
	}

	sort.Slice(bindings, func(i, j int) bool {
		pi, _ := strconv.Atoi(bindings[i].HostPort)
		pj, _ := strconv.Atoi(bindings[j].HostPort)
		return pi < pj
	})
	return bindings
}
