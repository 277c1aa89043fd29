// Package docker starts throwaway PostgreSQL containers for integration
// tests of the postgres catalog source. It drives the docker CLI, so tests
// using it should skip when Available reports false.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const readyTimeout = 30 * time.Second

// Container is a running postgres server reachable on Host:Port.
type Container struct {
	ID       string
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

// ConnectionString returns the URL of the container's default database.
func (c *Container) ConnectionString() string {
	return c.DatabaseURL(c.Database)
}

// DatabaseURL returns the URL of another database on the same server.
func (c *Container) DatabaseURL(database string) string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		c.User, c.Password, net.JoinHostPort(c.Host, c.Port), database)
}

type PostgresConfig struct {
	Version  string
	User     string
	Password string
	Database string
}

func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Version:  "16",
		User:     "snowreport",
		Password: "snowreport",
		Database: "snowreport",
	}
}

// Available reports whether a docker daemon can be reached.
func Available(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	_, err := run(ctx, nil, "info")
	return err == nil
}

// StartPostgres runs a detached, self-removing postgres container on a free
// local port and waits until it accepts TCP connections.
func StartPostgres(ctx context.Context, cfg PostgresConfig) (*Container, error) {
	port, err := findFreePort()
	if err != nil {
		return nil, fmt.Errorf("failed to find free port: %w", err)
	}

	out, err := run(ctx, nil, "run", "-d", "--rm",
		"-e", "POSTGRES_USER="+cfg.User,
		"-e", "POSTGRES_PASSWORD="+cfg.Password,
		"-e", "POSTGRES_DB="+cfg.Database,
		"-p", port+":5432",
		"postgres:"+cfg.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	c := &Container{
		ID:       strings.TrimSpace(out),
		Host:     "localhost",
		Port:     port,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Database,
	}
	if err := waitReady(ctx, c); err != nil {
		_ = StopContainer(context.Background(), c.ID)
		return nil, err
	}
	return c, nil
}

func StopContainer(ctx context.Context, containerID string) error {
	if _, err := run(ctx, nil, "stop", containerID); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

// waitReady polls pg_isready over TCP, so the unix-socket server the image
// runs during initdb is not mistaken for the final one.
func waitReady(ctx context.Context, c *Container) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		_, err := run(ctx, nil, "exec", c.ID,
			"pg_isready", "-h", "127.0.0.1", "-U", c.User, "-d", c.Database)
		if err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres in container %s not ready: %w", c.ID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// ExecuteSQL runs sql with psql against the container's default database.
func ExecuteSQL(ctx context.Context, c *Container, sql string) error {
	return ExecuteSQLIn(ctx, c, c.Database, sql)
}

// ExecuteSQLIn runs sql with psql against database, stopping at the first
// failing statement.
func ExecuteSQLIn(ctx context.Context, c *Container, database, sql string) error {
	if _, err := run(ctx, strings.NewReader(sql), psqlArgs(c, database)...); err != nil {
		return fmt.Errorf("failed to execute SQL in %s: %w", database, err)
	}
	return nil
}

// CreateDatabase creates database and runs each setup script inside it.
func CreateDatabase(ctx context.Context, c *Container, database string, setup ...string) error {
	if err := ExecuteSQL(ctx, c, "CREATE DATABASE "+pgx.Identifier{database}.Sanitize()+";"); err != nil {
		return fmt.Errorf("failed to create database %s: %w", database, err)
	}
	for _, sql := range setup {
		if err := ExecuteSQLIn(ctx, c, database, sql); err != nil {
			return err
		}
	}
	return nil
}

func psqlArgs(c *Container, database string) []string {
	return []string{"exec", "-i", c.ID,
		"psql", "-U", c.User, "-d", database, "-v", "ON_ERROR_STOP=1", "-q"}
}

// run executes the docker CLI and returns its stdout. A failing command's
// stderr becomes the error text.
func run(ctx context.Context, stdin io.Reader, args ...string) (string, error) {
	var stderr strings.Builder
	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Stdin = stdin
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && stderr.Len() > 0 {
			return "", fmt.Errorf("docker %s: %s", args[0], strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("docker %s: %w", args[0], err)
	}
	return string(out), nil
}

func findFreePort() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer func() { _ = l.Close() }()
	return strconv.Itoa(l.Addr().(*net.TCPAddr).Port), nil
}
