// Package session owns the MongoDB client and the per-request tenant scope.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/homelead/askdb/pkg/config"
)

// ErrInvalidTenantID is returned when a tenant identifier is not a
// 24-character hex ObjectId. It is user-visible.
var ErrInvalidTenantID = errors.New("invalid tenant id: must be a 24-character hex ObjectId")

const connectTimeout = 10 * time.Second

// Session holds the shared MongoDB client, the default database and the
// mutable tenant of the request being served. The client is safe for
// concurrent use; the tenant field is guarded because the HTTP and RPC
// surfaces share one session.
type Session struct {
	client *mongo.Client
	dbName string

	mu        sync.RWMutex
	tenant    primitive.ObjectID
	hasTenant bool
}

// Connect creates a session against the configured MongoDB target. The
// driver dials lazily; call Ping to force a round-trip.
func Connect(ctx context.Context, cfg config.MongoConfig) (*Session, error) {
	pref := readpref.SecondaryPreferred()
	if cfg.ReadPreference == config.ReadPreferencePrimary {
		pref = readpref.Primary()
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetReadPreference(pref).
		SetConnectTimeout(connectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	slog.Info("MongoDB session created",
		"database", cfg.Database,
		"read_preference", cfg.ReadPreference)

	return &Session{client: client, dbName: cfg.Database}, nil
}

// NewWithClient wraps an existing client. Used by tests and the
// integration harness.
func NewWithClient(client *mongo.Client, dbName string) *Session {
	return &Session{client: client, dbName: dbName}
}

// Ping verifies the deployment is reachable.
func (s *Session) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// DB returns the default database handle.
func (s *Session) DB() *mongo.Database {
	return s.client.Database(s.dbName)
}

// Database returns a handle for an explicitly named database.
func (s *Session) Database(name string) *mongo.Database {
	return s.client.Database(name)
}

// Collection returns a collection handle in the default database.
func (s *Session) Collection(name string) *mongo.Collection {
	return s.DB().Collection(name)
}

// DatabaseName returns the default database name.
func (s *Session) DatabaseName() string {
	return s.dbName
}

// SetTenant validates and installs the tenant for the current request.
func (s *Session) SetTenant(hexID string) error {
	oid, err := primitive.ObjectIDFromHex(hexID)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTenantID, hexID)
	}

	s.mu.Lock()
	s.tenant = oid
	s.hasTenant = true
	s.mu.Unlock()
	return nil
}

// Tenant returns the current tenant, if one is set.
func (s *Session) Tenant() (primitive.ObjectID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tenant, s.hasTenant
}

// ClearTenant removes the tenant scope.
func (s *Session) ClearTenant() {
	s.mu.Lock()
	s.tenant = primitive.ObjectID{}
	s.hasTenant = false
	s.mu.Unlock()
}

// Close disconnects the underlying client.
func (s *Session) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
