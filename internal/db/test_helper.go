package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
)

// TestDatabaseEnv names the variable holding the DSN of a disposable
// postgres database. Tests that need postgres skip when it is unset.
const TestDatabaseEnv = "TEST_DATABASE_URL"

// SetupTestDB connects to the test database and applies the schema
func SetupTestDB(t testing.TB) *sql.DB {
	t.Helper()

	dsn := os.Getenv(TestDatabaseEnv)
	if dsn == "" {
		t.Skipf("%s not set, skipping postgres test", TestDatabaseEnv)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err = db.Ping(); err != nil {
		t.Fatalf("Failed to ping test database: %v", err)
	}

	if err = Migrate(context.Background(), db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	CleanupTestDB(t, db)
	return db
}

// CleanupTestDB removes all rows written by a test
func CleanupTestDB(t testing.TB, db *sql.DB) {
	t.Helper()

	tables := []string{"transactions", "portfolios", "wallets", "watchlists"}
	for _, table := range tables {
		if _, err := db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			t.Logf("Warning: Failed to cleanup table %s: %v", table, err)
		}
	}
}

// CreateTestWallet inserts a wallet and returns the user id
func CreateTestWallet(t testing.TB, db *sql.DB, userID string, cash float64) string {
	t.Helper()

	_, err := db.Exec(
		"INSERT INTO wallets (user_id, cash) VALUES ($1, $2)",
		userID, cash,
	)
	if err != nil {
		t.Fatalf("Failed to create test wallet: %v", err)
	}
	return userID
}
