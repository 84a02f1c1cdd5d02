// Package testutil provides shared fixtures for integration tests that need
// a real PostgreSQL instance.
//
// By default each test binary boots a throwaway container:
//
//	func TestMain(m *testing.M) {
//	    tc := testutil.MustStartPostgres()
//	    testDB, _ = tc.NewTestDB(context.Background(), testutil.TestLogger())
//	    code := m.Run()
//	    testDB.Close()
//	    tc.Terminate()
//	    os.Exit(code)
//	}
//
// Setting FSVC_TEST_DATABASE_URL points the fixture at an already-running
// server instead; a scratch database is created there so repeated runs never
// see each other's rows.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Amankrah/fsvc-sub000/internal/storage"
	"github.com/Amankrah/fsvc-sub000/migrations"
)

const (
	pgImage    = "postgres:16-alpine"
	pgUser     = "fsvc"
	pgPassword = "fsvc"
	pgDatabase = "fsvc"
)

// TestContainer is a running database fixture. Container is nil when the
// fixture points at an external server via FSVC_TEST_DATABASE_URL.
type TestContainer struct {
	Container testcontainers.Container
	DSN       string

	adminDSN string // external fixtures only
	scratch  string
}

// MustStartPostgres returns a ready-to-use PostgreSQL fixture, starting a
// container unless FSVC_TEST_DATABASE_URL is set. Calls os.Exit(1) on failure
// (suitable for TestMain).
func MustStartPostgres() *TestContainer {
	if dsn := os.Getenv("FSVC_TEST_DATABASE_URL"); dsn != "" {
		return externalFixture(dsn)
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        pgImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     pgUser,
				"POSTGRES_PASSWORD": pgPassword,
				"POSTGRES_DB":       pgDatabase,
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		fatalf("start container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		fatalf("resolve container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		fatalf("resolve container port: %v", err)
	}

	return &TestContainer{
		Container: container,
		DSN: fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
			pgUser, pgPassword, net.JoinHostPort(host, port.Port()), pgDatabase),
	}
}

// externalFixture creates a uniquely named scratch database on an existing
// server and returns a fixture pointing at it.
func externalFixture(adminDSN string) *TestContainer {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, adminDSN)
	if err != nil {
		fatalf("connect to FSVC_TEST_DATABASE_URL: %v", err)
	}
	name := fmt.Sprintf("fsvc_test_%x", time.Now().UnixNano())
	if _, err := conn.Exec(ctx, "CREATE DATABASE "+name); err != nil {
		fatalf("create scratch database: %v", err)
	}
	_ = conn.Close(ctx)

	u, err := url.Parse(adminDSN)
	if err != nil {
		fatalf("parse FSVC_TEST_DATABASE_URL: %v", err)
	}
	u.Path = "/" + name
	return &TestContainer{DSN: u.String(), adminDSN: adminDSN, scratch: name}
}

// NewTestDB connects a storage.DB to the fixture and applies all migrations.
func (tc *TestContainer) NewTestDB(ctx context.Context, logger *slog.Logger) (*storage.DB, error) {
	db, err := storage.New(ctx, tc.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("testutil: create DB: %w", err)
	}
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("testutil: run migrations: %w", err)
	}
	return db, nil
}

// Terminate releases the fixture: it removes the container, or drops the
// scratch database when running against an external server. Callers must
// close their pools first or the drop will fail on live connections.
func (tc *TestContainer) Terminate() {
	ctx := context.Background()
	if tc.Container != nil {
		_ = tc.Container.Terminate(ctx)
		return
	}
	if tc.scratch == "" {
		return
	}
	if conn, err := pgx.Connect(ctx, tc.adminDSN); err == nil {
		_, _ = conn.Exec(ctx, "DROP DATABASE IF EXISTS "+tc.scratch)
		_ = conn.Close(ctx)
	}
}

// TestLogger returns a logger configured for test output (warns only).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "testutil: "+format+"\n", args...)
	os.Exit(1)
}
