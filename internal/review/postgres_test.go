package review

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getTestDB returns a database connection for testing.
// Skip test if TEST_DATABASE_URL is not set.
func getTestDB(t *testing.T) *sql.DB {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL tests")
	}

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS reviews (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			reviewer_id TEXT NOT NULL,
			suggested_condition TEXT NOT NULL,
			reviewed_condition TEXT NOT NULL,
			agreed BOOLEAN NOT NULL DEFAULT FALSE,
			consensus_summary TEXT DEFAULT '',
			notes TEXT DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			CONSTRAINT reviews_session_reviewer_unique UNIQUE (session_id, reviewer_id)
		)
	`)
	require.NoError(t, err)

	// Clean up before test
	_, err = db.Exec("DELETE FROM reviews")
	require.NoError(t, err)

	return db
}

func TestPostgresStore_Save(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	ctx := context.Background()
	rv := sampleReview()

	err = store.Save(ctx, rv)
	require.NoError(t, err)
	assert.NotZero(t, rv.ID)
	assert.NotZero(t, rv.CreatedAt)
	assert.NotZero(t, rv.UpdatedAt)
}

func TestPostgresStore_SaveUpdate(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	ctx := context.Background()
	rv := sampleReview()
	require.NoError(t, store.Save(ctx, rv))
	originalID := rv.ID

	rv.ReviewedCondition = "Atypical pneumonia"
	rv.Agreed = false
	require.NoError(t, store.Save(ctx, rv))
	assert.Equal(t, originalID, rv.ID, "upsert should keep the original row")

	retrieved, err := store.Get(ctx, rv.SessionID, rv.ReviewerID)
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.Equal(t, "Atypical pneumonia", retrieved.ReviewedCondition)
}

func TestPostgresStore_GetMissingWithMock(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM reviews").
		WithArgs("missing-session", "dr-nguyen").
		WillReturnError(sql.ErrNoRows)

	rv, err := store.Get(context.Background(), "missing-session", "dr-nguyen")
	require.NoError(t, err)
	assert.Nil(t, rv)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountWithMock(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM reviews").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
