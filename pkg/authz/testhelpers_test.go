package authz

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

const testSchema = `
	CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE profiles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		level INTEGER NOT NULL DEFAULT 100,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE profile_assignments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		profile_id INTEGER NOT NULL REFERENCES profiles(id) ON DELETE RESTRICT,
		active BOOLEAN NOT NULL DEFAULT 1,
		assigned_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, profile_id)
	);

	CREATE TABLE resources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE operations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE resource_permissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		profile_id INTEGER NOT NULL,
		resource_id INTEGER NOT NULL,
		operation_id INTEGER NOT NULL,
		granted BOOLEAN NOT NULL DEFAULT 1,
		UNIQUE(profile_id, resource_id, operation_id)
	);

	CREATE TABLE field_permissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		profile_id INTEGER NOT NULL,
		resource_id INTEGER NOT NULL,
		field_name TEXT NOT NULL,
		permission_type TEXT NOT NULL CHECK (permission_type IN ('EDIT', 'READ', 'HIDDEN')),
		UNIQUE(profile_id, resource_id, field_name)
	);
`

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// every connection to :memory: gets its own database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}
	if _, err := db.Exec(testSchema); err != nil {
		t.Fatalf("Failed to create test tables: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// fixture is a small catalog shared by the resolver, ledger and catalog tests
type fixture struct {
	store   *Store
	catalog *Catalog
	ledger  *Ledger
	bumper  *recordingBumper

	admin   *Profile
	manager *Profile
	user    *Profile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := NewStore(setupTestDB(t))
	bumper := &recordingBumper{}
	f := &fixture{
		store:   store,
		bumper:  bumper,
		catalog: NewCatalog(store, bumper, nil, nil),
		ledger:  NewLedger(store, LedgerOptions{Versions: bumper}),
	}

	for _, code := range []string{"TASK", "QUOTE", "DELIVERY"} {
		_, err := f.catalog.CreateResource(ctx, code, "", "")
		require.NoError(t, err)
	}
	for _, code := range []string{"CREATE", "READ", "UPDATE", "DELETE"} {
		_, err := f.catalog.CreateOperation(ctx, code, "", "")
		require.NoError(t, err)
	}

	for _, id := range []int64{1, 7, userU} {
		f.createUser(t, id)
	}

	f.admin = f.createProfile(t, "ADMIN", 1)
	f.manager = f.createProfile(t, "MANAGER", 10)
	f.user = f.createProfile(t, "USER", 100)
	return f
}

func (f *fixture) createUser(t *testing.T, id int64) {
	t.Helper()
	_, err := f.store.DB().Exec(`INSERT INTO users (id, username) VALUES (?, ?)`, id, fmt.Sprintf("user%d", id))
	require.NoError(t, err)
}

func (f *fixture) createProfile(t *testing.T, code string, level int) *Profile {
	t.Helper()
	p, err := f.catalog.CreateProfile(context.Background(), ProfileInput{Code: code, Name: code, Level: level})
	require.NoError(t, err)
	return p
}

func (f *fixture) grant(t *testing.T, profile *Profile, resource, operation string, granted bool) {
	t.Helper()
	require.NoError(t, f.catalog.SetResourcePermission(context.Background(), profile.ID, resource, operation, granted))
}

func (f *fixture) field(t *testing.T, profile *Profile, resource, field string, access FieldAccess) {
	t.Helper()
	require.NoError(t, f.catalog.SetFieldPermission(context.Background(), profile.ID, resource, field, access))
}

func (f *fixture) assign(t *testing.T, userID int64, profile *Profile, active bool) {
	t.Helper()
	_, err := f.ledger.AssignProfileToUser(context.Background(), userID, profile.ID, active)
	require.NoError(t, err)
}

type recordingBumper struct {
	bumps []int64
	err   error
}

func (b *recordingBumper) Bump(_ context.Context, userID int64) (int64, error) {
	if b.err != nil {
		return 0, b.err
	}
	b.bumps = append(b.bumps, userID)
	return int64(len(b.bumps)), nil
}

func (b *recordingBumper) reset() {
	b.bumps = nil
}
