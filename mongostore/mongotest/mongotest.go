// Package mongotest provides the shared ephemeral-MongoDB test fixture used
// by the mongostore/* package tests, grounded on the teacher's
// registry/store/mongo test helper: a single testcontainers-go "mongo:7"
// container for the whole test binary, skipped outright when Docker is
// unavailable rather than failing the run.
package mongotest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var (
	once      sync.Once
	client    *mongo.Client
	container testcontainers.Container
	skip      bool
)

func setup() {
	ctx := context.Background()
	defer func() {
		if r := recover(); r != nil {
			skip = true
		}
	}()

	req := testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections"),
		Tmpfs:        map[string]string{"/data/db": "rw"},
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		skip = true
		return
	}
	container = c

	host, err := container.Host(ctx)
	if err != nil {
		skip = true
		return
	}
	port, err := container.MappedPort(ctx, "27017")
	if err != nil {
		skip = true
		return
	}
	uri := fmt.Sprintf("mongodb://%s:%s", host, port.Port())
	cl, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		skip = true
		return
	}
	if err := cl.Ping(ctx, nil); err != nil {
		skip = true
		return
	}
	client = cl
}

// Client returns a shared connected *mongo.Client, skipping the calling
// test if Docker is unavailable.
func Client(t *testing.T) *mongo.Client {
	t.Helper()
	once.Do(setup)
	if skip {
		t.Skip("docker not available, skipping MongoDB test")
	}
	return client
}

// Database returns a fresh, dropped database named after the test for
// isolation between test functions.
func Database(t *testing.T) *mongo.Database {
	t.Helper()
	cl := Client(t)
	db := cl.Database("turnengine_test_" + t.Name())
	if err := db.Drop(context.Background()); err != nil {
		t.Fatalf("drop database: %v", err)
	}
	return db
}
