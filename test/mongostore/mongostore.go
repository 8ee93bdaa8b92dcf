// Package mongostore provides test utilities for spinning up a MongoDB
// backend shared by integration tests.
package mongostore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/homelead/askdb/pkg/session"
)

var (
	// Shared connection string for all tests in local dev
	sharedURI     string
	containerOnce sync.Once
	containerErr  error
)

// NewTestSession connects to a MongoDB instance and returns a session bound
// to a database unique to this test. Both CI and local dev get per-test
// database isolation:
// - CI: connects to an external MongoDB service via CI_MONGO_URL
// - Local: uses a shared testcontainer (started once per package)
// The database is dropped and the session closed when the test ends.
func NewTestSession(t *testing.T) *session.Session {
	ctx := context.Background()

	uri := getOrCreateSharedMongo(t)
	dbName := GenerateDatabaseName(t)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)

	sess := session.NewWithClient(client, dbName)

	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sess.DB().Drop(cleanupCtx); err != nil {
			t.Logf("Warning: failed to drop database %s: %v", dbName, err)
		}
		_ = sess.Close(cleanupCtx)
	})

	return sess
}

// Seed inserts documents into a collection of the test database.
func Seed(t *testing.T, sess *session.Session, collection string, docs ...bson.M) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payload := make([]any, len(docs))
	for i, doc := range docs {
		payload[i] = doc
	}
	_, err := sess.Collection(collection).InsertMany(ctx, payload)
	require.NoError(t, err)
}

// getOrCreateSharedMongo returns a URI to the shared MongoDB instance.
// In CI, uses CI_MONGO_URL. In local dev, creates a shared testcontainer once.
func getOrCreateSharedMongo(t *testing.T) string {
	if ciMongoURL := os.Getenv("CI_MONGO_URL"); ciMongoURL != "" {
		t.Log("Using external MongoDB from CI_MONGO_URL")
		return ciMongoURL
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		t.Log("Starting shared MongoDB testcontainer for all tests")

		container, err := mongodb.Run(ctx,
			"mongo:7",
			testcontainers.WithWaitStrategy(
				wait.ForLog("Waiting for connections").
					WithStartupTimeout(60*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("failed to start mongodb container: %w", err)
			return
		}

		uri, err := container.ConnectionString(ctx)
		if err != nil {
			containerErr = fmt.Errorf("failed to get connection string: %w", err)
			return
		}

		sharedURI = uri
		t.Logf("Shared container ready: %s", sharedURI)
	})

	require.NoError(t, containerErr, "Failed to setup shared test container")
	return sharedURI
}

// GenerateDatabaseName creates a unique, MongoDB-safe database name for the
// test. Format: test_<sanitized_test_name>_<random_hex>
func GenerateDatabaseName(t *testing.T) string {
	testName := strings.ToLower(t.Name())
	testName = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, testName)

	// MongoDB caps database names at 63 bytes
	if len(testName) > 40 {
		testName = testName[:40]
	}

	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		t.Fatalf("failed to generate random bytes for database name: %v", err)
	}

	return fmt.Sprintf("test_%s_%s", testName, hex.EncodeToString(randomBytes))
}
