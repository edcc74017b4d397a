// Package testutil holds small fixtures shared across package tests.
package testutil

import (
	"time"

	"github.com/codexec/codexec/internal/config"
	"github.com/codexec/codexec/internal/store"
)

// TestConfig returns a Config with sensible test defaults.
func TestConfig() *config.Config {
	return &config.Config{
		RedisHost:            "127.0.0.1",
		RedisPort:            6379,
		RedisDB:              0,
		BrokerURL:            "redis://127.0.0.1:6379/0",
		WorkerConcurrency:    2,
		DockerSocket:         "/var/run/docker.sock",
		DockerImagePrefix:    "code-executor",
		ContainerMemoryLimit: "256m",
		ContainerCPULimit:    0.5,
		ContainerPidsLimit:   50,
		ExecutionTimeout:     30,
		SessionTTL:           3600,
		NetworkDisabled:      true,
		NoNewPrivileges:      true,
		TmpfsSize:            "64m",
		APIHost:              "127.0.0.1",
		APIPort:              0,
		LogLevel:             "error",
	}
}

// TestSession returns a ready session holding a container.
func TestSession(id string) *store.Session {
	return &store.Session{
		ID:          id,
		Environment: "python",
		Status:      store.StatusReady,
		ContainerID: "ctr-" + id,
		CreatedAt:   time.Now().UTC(),
	}
}
