//go:build integration

// Package dbtest starts throwaway Postgres and Redis containers for
// integration tests.
package dbtest

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MigrationsDir locates the repository's migrations directory relative to
// this file.
func MigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	// internal/platform/db/dbtest -> module root
	return filepath.Join(filepath.Dir(filename), "..", "..", "..", "..", "migrations")
}

func start(ctx context.Context, req testcontainers.ContainerRequest, port nat.Port) (testcontainers.Container, string, error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("start %s container: %w", req.Image, err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, "", fmt.Errorf("container host: %w", err)
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, "", fmt.Errorf("container port: %w", err)
	}
	return c, fmt.Sprintf("%s:%s", host, mapped.Port()), nil
}

// StartPostgres runs postgres:16-alpine and returns its connection string
// and a function that removes the container.
func StartPostgres(ctx context.Context) (string, func(), error) {
	c, addr, err := start(ctx, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "docbook",
			"POSTGRES_PASSWORD": "docbook",
			"POSTGRES_DB":       "docbook_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432/tcp")
	if err != nil {
		return "", nil, err
	}

	connStr := fmt.Sprintf("postgres://docbook:docbook@%s/docbook_test?sslmode=disable", addr)
	return connStr, func() { _ = c.Terminate(context.Background()) }, nil
}

// StartRedis runs redis:7-alpine and returns a redis:// URL for it.
func StartRedis(ctx context.Context) (string, func(), error) {
	c, addr, err := start(ctx, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}, "6379/tcp")
	if err != nil {
		return "", nil, err
	}
	return "redis://" + addr + "/0", func() { _ = c.Terminate(context.Background()) }, nil
}
