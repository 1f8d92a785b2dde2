// Package testsupport starts the backing services used by adapter, service and
// integration tests.
package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/robertarktes/event-bookings-and-payouts/internal/adapters/crdb"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func start(t *testing.T, req testcontainers.ContainerRequest) testcontainers.Container {
	t.Helper()
	if testing.Short() {
		t.Skip("container tests are skipped in -short mode")
	}
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })
	return c
}

func endpoint(t *testing.T, c testcontainers.Container, port string) string {
	t.Helper()
	ctx := context.Background()
	host, err := c.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	if err != nil {
		t.Fatal(err)
	}
	return host + ":" + mapped.Port()
}

// CockroachDSN starts a single insecure node and returns its DSN.
func CockroachDSN(t *testing.T) string {
	c := start(t, testcontainers.ContainerRequest{
		Image:        "cockroachdb/cockroach:v24.1.1",
		Cmd:          []string{"start-single-node", "--insecure"},
		ExposedPorts: []string{"26257/tcp", "8080/tcp"},
		WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080").WithStartupTimeout(2 * time.Minute),
	})
	return fmt.Sprintf("postgresql://root@%s/defaultdb?sslmode=disable", endpoint(t, c, "26257"))
}

// Store starts CockroachDB and returns a store with the schema applied.
func Store(t *testing.T) *crdb.Store {
	t.Helper()
	ctx := context.Background()
	pool, err := crdb.NewPool(ctx, CockroachDSN(t), 10)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	store := crdb.NewStore(pool, crdb.Config{TxTimeout: 10 * time.Second, TxRetries: 3})
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}
	return store
}

func MongoURI(t *testing.T) string {
	c := start(t, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp"),
	})
	return "mongodb://" + endpoint(t, c, "27017")
}

func RedisAddr(t *testing.T) string {
	c := start(t, testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
	})
	return endpoint(t, c, "6379")
}

func RabbitURL(t *testing.T) string {
	c := start(t, testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.13-management",
		ExposedPorts: []string{"5672/tcp", "15672/tcp"},
		WaitingFor:   wait.ForHTTP("/api/health/checks/alarms").WithPort("15672").WithBasicAuth("guest", "guest").WithStartupTimeout(2 * time.Minute),
	})
	return "amqp://guest:guest@" + endpoint(t, c, "5672") + "/"
}
