package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cityscope-ingest/internal/meeting"
)

func newStore(t *testing.T) *MeetingStore {
	t.Helper()
	store, err := Open(context.Background(), Config{DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func record(id string) meeting.Record {
	return meeting.Record{
		DocumentID:   id,
		MeetingTitle: "Council Meeting",
		MeetingDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Summary:      "Intro. • Approved the budget.",
		OriginalURL:  "https://portal.example.com/FileStream.ashx?DocumentId=" + id,
		CreatedAt:    time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC),
	}
}

func TestSaveAndGet(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, record("10")))
	got, err := store.Get(ctx, "10")
	require.NoError(t, err)
	assert.Equal(t, record("10"), got)
}

func TestSaveDuplicateIsConflict(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, record("10")))
	dup := record("10")
	dup.MeetingTitle = "Different title"
	err := store.Save(ctx, dup)
	require.ErrorIs(t, err, meeting.ErrConflict)

	got, err := store.Get(ctx, "10")
	require.NoError(t, err)
	assert.Equal(t, "Council Meeting", got.MeetingTitle, "existing record must not be updated")
}

func TestExistingIDsIsSoundAndExhaustive(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	ctx := context.Background()

	for _, id := range []string{"1", "3", "5"} {
		require.NoError(t, store.Save(ctx, record(id)))
	}

	existing, err := store.ExistingIDs(ctx, []string{"1", "2", "3", "4", "5", "6"})
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"1": {}, "3": {}, "5": {}}, existing)

	none, err := store.ExistingIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestExistingIDsWithoutSchemaFailsClosed(t *testing.T) {
	t.Parallel()
	store, err := Open(context.Background(), Config{DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(store.Close)

	_, err = store.ExistingIDs(context.Background(), []string{"1"})
	require.ErrorIs(t, err, meeting.ErrOracleUnavailable)
}

func TestSaveWithoutSchemaIsPersistError(t *testing.T) {
	t.Parallel()
	store, err := Open(context.Background(), Config{DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(store.Close)

	err = store.Save(context.Background(), record("1"))
	var persistErr *meeting.PersistError
	require.ErrorAs(t, err, &persistErr)
}

func TestEnsureSchemaIsIdempotentOnDisk(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "meetings.db")
	ctx := context.Background()

	store, err := Open(ctx, Config{DSN: path, Table: "minutes"})
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.Save(ctx, record("7")))
	store.Close()

	reopened, err := Open(ctx, Config{DSN: path, Table: "minutes"})
	require.NoError(t, err)
	t.Cleanup(reopened.Close)
	require.NoError(t, reopened.EnsureSchema(ctx))

	existing, err := reopened.ExistingIDs(ctx, []string{"7"})
	require.NoError(t, err)
	assert.Contains(t, existing, "7")
}

func TestOpenValidation(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{})
	require.Error(t, err)
	_, err = Open(context.Background(), Config{DSN: ":memory:", Table: "drop table"})
	require.Error(t, err)
}
