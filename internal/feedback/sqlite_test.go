package feedback

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symptom-likelihood-server/internal/domain"
)

func TestNewSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)

	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
	assert.Equal(t, dbPath, store.Path())
}

func TestSQLiteStore_Save(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	fb := &Feedback{
		Selection:          []string{"wheeze_localised", "cough_productive"},
		Category:           "respiratory",
		SuggestedCondition: "Bronchitis",
		ConfirmedCondition: "Asthma",
		TopScore:           60,
		DatasetVersion:     "2025.1+abc",
		Notes:              "Nocturnal symptoms reported later",
	}

	err := store.Save(ctx, fb)

	require.NoError(t, err)
	assert.NotZero(t, fb.ID, "ID should be assigned")
	assert.Equal(t, "cough_productive,wheeze_localised", fb.SelectionKey)
	assert.False(t, fb.CreatedAt.IsZero(), "CreatedAt should be set")
	assert.False(t, fb.UpdatedAt.IsZero(), "UpdatedAt should be set")
}

func TestSQLiteStore_Save_Validation(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	tests := []struct {
		name  string
		fb    Feedback
		field string
	}{
		{"empty selection", Feedback{SuggestedCondition: "Bronchitis", UserAgreed: true}, "selection"},
		{"blank ids only", Feedback{Selection: []string{" ", ""}, SuggestedCondition: "Bronchitis", UserAgreed: true}, "selection"},
		{"no suggestion", Feedback{Selection: []string{"a"}, UserAgreed: true}, "suggested_condition"},
		{"disagreed without confirmation", Feedback{Selection: []string{"a"}, SuggestedCondition: "Bronchitis"}, "confirmed_condition"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := tt.fb
			err := store.Save(context.Background(), &fb)

			var validationErr *domain.ValidationError
			require.True(t, errors.As(err, &validationErr))
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}

func TestSQLiteStore_Save_AgreementConfirmsSuggestion(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	fb := &Feedback{Selection: []string{"heartburn"}, SuggestedCondition: "Acid Reflux", UserAgreed: true}
	require.NoError(t, store.Save(context.Background(), fb))
	assert.Equal(t, "Acid Reflux", fb.ConfirmedCondition)
}

func TestSQLiteStore_Save_Update(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	fb := &Feedback{
		Selection:          []string{"wheeze_localised", "cough_productive"},
		Category:           "respiratory",
		SuggestedCondition: "Bronchitis",
		UserAgreed:         true,
	}
	require.NoError(t, store.Save(ctx, fb))
	originalID := fb.ID

	// Same selection in another order is the same entry.
	update := &Feedback{
		Selection:          []string{"cough_productive", "wheeze_localised"},
		Category:           "respiratory",
		SuggestedCondition: "Bronchitis",
		ConfirmedCondition: "Pneumonia",
		Notes:              "Updated after imaging",
	}
	require.NoError(t, store.Save(ctx, update))

	assert.Equal(t, originalID, update.ID, "Should update existing record")

	retrieved, err := store.Get(ctx, []string{"wheeze_localised", "cough_productive"}, "respiratory")
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.Equal(t, "Pneumonia", retrieved.ConfirmedCondition)
	assert.False(t, retrieved.UserAgreed)
	assert.Equal(t, "Updated after imaging", retrieved.Notes)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLiteStore_Get(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	fb := &Feedback{
		Selection:          []string{"throbbing_headache", "photophobia"},
		SuggestedCondition: "Migraine",
		UserAgreed:         true,
		TopScore:           72.5,
	}
	require.NoError(t, store.Save(ctx, fb))

	retrieved, err := store.Get(ctx, []string{"photophobia", "throbbing_headache"}, "")

	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.Equal(t, fb.ID, retrieved.ID)
	assert.Equal(t, []string{"throbbing_headache", "photophobia"}, retrieved.Selection)
	assert.Equal(t, "Migraine", retrieved.ConfirmedCondition)
	assert.InDelta(t, 72.5, retrieved.TopScore, 1e-9)
	assert.True(t, retrieved.UserAgreed)
}

func TestSQLiteStore_Get_WithCategory(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	selection := []string{"cough_nocturnal"}

	require.NoError(t, store.Save(ctx, &Feedback{
		Selection: selection, Category: "respiratory", SuggestedCondition: "Asthma", UserAgreed: true,
	}))
	require.NoError(t, store.Save(ctx, &Feedback{
		Selection: selection, Category: "digestive", SuggestedCondition: "Acid Reflux", UserAgreed: true,
	}))

	respiratory, err := store.Get(ctx, selection, "respiratory")
	require.NoError(t, err)
	assert.Equal(t, "Asthma", respiratory.ConfirmedCondition)

	digestive, err := store.Get(ctx, selection, "digestive")
	require.NoError(t, err)
	assert.Equal(t, "Acid Reflux", digestive.ConfirmedCondition)
}

func TestSQLiteStore_Get_NotFound(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	retrieved, err := store.Get(context.Background(), []string{"nothing"}, "")

	require.NoError(t, err)
	assert.Nil(t, retrieved)
}

func TestSQLiteStore_List_Pagination(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, store.Save(ctx, &Feedback{
			Selection: []string{id}, SuggestedCondition: "Common Cold", UserAgreed: true,
		}))
	}

	page1, err := store.List(ctx, 2, 0)
	require.NoError(t, err)
	page2, err := store.List(ctx, 2, 2)
	require.NoError(t, err)
	page3, err := store.List(ctx, 2, 4)
	require.NoError(t, err)

	assert.Len(t, page1, 2)
	assert.Len(t, page2, 2)
	assert.Len(t, page3, 1)
	assert.Equal(t, []string{"e"}, page1[0].Selection, "newest first")

	empty, err := store.List(ctx, 10, 100)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	fb := &Feedback{Selection: []string{"nausea"}, SuggestedCondition: "Gastroenteritis", UserAgreed: true}
	require.NoError(t, store.Save(ctx, fb))

	require.NoError(t, store.Delete(ctx, fb.ID))

	retrieved, err := store.Get(ctx, fb.Selection, "")
	require.NoError(t, err)
	assert.Nil(t, retrieved)

	err = store.Delete(ctx, fb.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStore_ExportImportJSON(t *testing.T) {
	source := createTestStore(t)
	defer source.Close()

	ctx := context.Background()
	require.NoError(t, source.Save(ctx, &Feedback{
		Selection: []string{"nausea", "diarrhoea"}, Category: "digestive",
		SuggestedCondition: "Gastroenteritis", UserAgreed: true,
	}))
	require.NoError(t, source.Save(ctx, &Feedback{
		Selection: []string{"heartburn"}, Category: "digestive",
		SuggestedCondition: "Acid Reflux", ConfirmedCondition: "Gastroenteritis",
	}))

	var buf bytes.Buffer
	require.NoError(t, source.ExportJSON(ctx, &buf))
	assert.Contains(t, buf.String(), `"version": "1.0"`)
	assert.Contains(t, buf.String(), `"count": 2`)

	target := createTestStore(t)
	defer target.Close()

	// Pre-existing entry is skipped rather than overwritten.
	require.NoError(t, target.Save(ctx, &Feedback{
		Selection: []string{"heartburn"}, Category: "digestive",
		SuggestedCondition: "Acid Reflux", UserAgreed: true,
	}))

	imported, skipped, err := target.ImportJSON(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 1, skipped)

	kept, err := target.Get(ctx, []string{"heartburn"}, "digestive")
	require.NoError(t, err)
	assert.Equal(t, "Acid Reflux", kept.ConfirmedCondition)

	count, err := target.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSQLiteStore_ImportJSON_Invalid(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	_, _, err := store.ImportJSON(context.Background(), bytes.NewReader([]byte("not json")))
	assert.ErrorContains(t, err, "failed to decode JSON")
}

func TestSQLiteStore_ImportJSON_SkipsMalformedEntries(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	doc := `{"version":"1.0","feedback":[
		{"selection":[],"suggested_condition":"Gastroenteritis","user_agreed":true},
		{"selection":["nausea"],"suggested_condition":"Gastroenteritis","user_agreed":true}
	]}`
	imported, skipped, err := store.ImportJSON(context.Background(), bytes.NewReader([]byte(doc)))
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 1, skipped)
}

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "feedback.db"))
	require.NoError(t, err)
	return store
}
