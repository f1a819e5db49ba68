package feedback

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symptom-likelihood-server/internal/domain"
)

func setupMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	return store, mock
}

func feedbackRow() []string {
	return []string{
		"id", "selection", "selection_key", "category",
		"suggested_condition", "confirmed_condition", "user_agreed",
		"top_score", "dataset_version", "notes", "created_at", "updated_at",
	}
}

func TestNewPostgresStore_RequiresDB(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_SaveUpserts(t *testing.T) {
	store, mock := setupMockStore(t)
	defer store.Close()

	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO feedback (.+) ON CONFLICT \\(selection_key, category\\) DO UPDATE").
		WithArgs(`["wheeze_localised","cough_productive"]`, "cough_productive,wheeze_localised", "respiratory",
			"Bronchitis", "Bronchitis", true, 60.0, "v1", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(7, created))

	fb := &Feedback{
		Selection:          []string{"wheeze_localised", "cough_productive", "wheeze_localised"},
		Category:           "respiratory",
		SuggestedCondition: "Bronchitis",
		UserAgreed:         true,
		TopScore:           60,
		DatasetVersion:     "v1",
	}
	require.NoError(t, store.Save(context.Background(), fb))

	assert.Equal(t, int64(7), fb.ID)
	assert.Equal(t, created, fb.CreatedAt)
	assert.False(t, fb.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRejectsInvalid(t *testing.T) {
	store, mock := setupMockStore(t)
	defer store.Close()

	err := store.Save(context.Background(), &Feedback{SuggestedCondition: "Bronchitis"})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet(), "no query should run")
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := setupMockStore(t)
	defer store.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM feedback WHERE selection_key = \\$1 AND category = \\$2").
		WithArgs("heartburn,regurgitation", "digestive").
		WillReturnRows(sqlmock.NewRows(feedbackRow()).AddRow(
			3, []byte(`["regurgitation","heartburn"]`), "heartburn,regurgitation", "digestive",
			"Acid Reflux", "Acid Reflux", true, 80.0, "v1", "", now, now))

	fb, err := store.Get(context.Background(), []string{"heartburn", "regurgitation"}, "digestive")
	require.NoError(t, err)
	require.NotNil(t, fb)
	assert.Equal(t, int64(3), fb.ID)
	assert.Equal(t, []string{"regurgitation", "heartburn"}, fb.Selection)
	assert.True(t, fb.UserAgreed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	store, mock := setupMockStore(t)
	defer store.Close()

	mock.ExpectQuery("SELECT (.+) FROM feedback").
		WillReturnRows(sqlmock.NewRows(feedbackRow()))

	fb, err := store.Get(context.Background(), []string{"nothing"}, "")
	require.NoError(t, err)
	assert.Nil(t, fb)
}

func TestPostgresStore_ListAndCount(t *testing.T) {
	store, mock := setupMockStore(t)
	defer store.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM feedback ORDER BY created_at DESC").
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows(feedbackRow()).
			AddRow(2, []byte(`["b"]`), "b", "", "X", "Y", false, 40.0, "v1", "", now, now).
			AddRow(1, []byte(`["a"]`), "a", "", "X", "X", true, 70.0, "v1", "", now, now))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	list, err := store.List(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Y", list[0].ConfirmedCondition)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Delete(t *testing.T) {
	store, mock := setupMockStore(t)
	defer store.Close()

	mock.ExpectExec("DELETE FROM feedback WHERE id = \\$1").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM feedback WHERE id = \\$1").
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Delete(context.Background(), 5))
	assert.ErrorIs(t, store.Delete(context.Background(), 9), domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// getTestDB returns a live PostgreSQL connection, or skips when
// TEST_DATABASE_URL is not set.
func getTestDB(t *testing.T) *sql.DB {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL tests")
	}

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS feedback (
			id BIGSERIAL PRIMARY KEY,
			selection JSONB NOT NULL,
			selection_key TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			suggested_condition TEXT NOT NULL,
			confirmed_condition TEXT NOT NULL,
			user_agreed BOOLEAN NOT NULL DEFAULT FALSE,
			top_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			dataset_version TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			CONSTRAINT feedback_selection_category_unique UNIQUE (selection_key, category)
		)
	`)
	require.NoError(t, err)

	_, err = db.Exec("DELETE FROM feedback")
	require.NoError(t, err)

	return db
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	db := getTestDB(t)

	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	fb := &Feedback{
		Selection:          []string{"chest_pain_exertional", "sob_exertion"},
		Category:           "cardiovascular",
		SuggestedCondition: "Heart Failure",
		ConfirmedCondition: "Hypertension",
	}
	require.NoError(t, store.Save(ctx, fb))
	originalID := fb.ID

	fb.ConfirmedCondition = "Heart Failure"
	fb.UserAgreed = true
	require.NoError(t, store.Save(ctx, fb))
	assert.Equal(t, originalID, fb.ID)

	retrieved, err := store.Get(ctx, []string{"sob_exertion", "chest_pain_exertional"}, "cardiovascular")
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.True(t, retrieved.UserAgreed)

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(ctx, &buf))
	imported, skipped, err := store.ImportJSON(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 0, imported)
	assert.Equal(t, 1, skipped)
}
