package runner

import (
	"os"
	"strconv"
)

const (
	ModeLocal        = "local"
	ModeRemoteDocker = "remote-docker"
	ModeKubernetes   = "kubernetes"
)

type Config struct {
	Mode             string
	Network          string
	HostLabel        string
	RemoteHost       string
	RemoteCACert     string
	RemoteClientCert string
	RemoteClientKey  string
	RemoteTLSVerify  bool
}

func NewConfigFromEnv() *Config {
	verify, err := strconv.ParseBool(getEnv("DOCKER_REMOTE_TLS_VERIFY", "true"))
	if err != nil {
		verify = true
	}

	return &Config{
		Mode:             getEnv("CHALLENGE_RUNNER_MODE", ModeLocal),
		Network:          getEnv("CHALLENGE_CONTAINER_NETWORK", ""),
		HostLabel:        getEnv("CHALLENGE_CONTAINER_HOST", "localhost"),
		RemoteHost:       getEnv("DOCKER_REMOTE_HOST", ""),
		RemoteCACert:     getEnv("DOCKER_REMOTE_CA_CERT", ""),
		RemoteClientCert: getEnv("DOCKER_REMOTE_CLIENT_CERT", ""),
		RemoteClientKey:  getEnv("DOCKER_REMOTE_CLIENT_KEY", ""),
		RemoteTLSVerify:  verify,
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
