package persistence

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aura/pkg/state"
)

// createTestDB opens a fresh database with a controllable clock.
func createTestDB(t *testing.T) (*DatabaseOperations, *time.Time) {
	t.Helper()
	db, err := InitializeDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ops := NewDatabaseOperations(db)
	ops.now = func() time.Time { return clock }
	return ops, &clock
}

func TestInitializeDatabaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aura.db")
	db, err := InitializeDatabase(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = InitializeDatabase(path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestMigrationFromVersion1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v1.db")
	db, err := InitializeDatabase(path)
	require.NoError(t, err)
	// Roll the file back to the pre-audit layout.
	_, err = db.Exec("DROP TABLE audit_entries")
	require.NoError(t, err)
	_, err = db.Exec("DELETE FROM schema_version")
	require.NoError(t, err)
	require.NoError(t, setSchemaVersion(db, 1))
	require.NoError(t, db.Close())

	db, err = InitializeDatabase(path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE name = 'audit_entries'").Scan(&n))
	assert.Equal(t, 1, n)
	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestThreadLifecycle(t *testing.T) {
	ops, _ := createTestDB(t)
	ctx := context.Background()

	thread, err := ops.CreateThread(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultThreadTitle, thread.Title)
	assert.Len(t, thread.ID, 36)

	got, err := ops.GetThread(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, thread.ID, got.ID)
	assert.Empty(t, got.Messages)
	assert.True(t, got.CreatedAt.Equal(thread.CreatedAt))

	require.NoError(t, ops.DeleteThread(ctx, thread.ID))
	_, err = ops.GetThread(ctx, thread.ID)
	require.ErrorIs(t, err, ErrThreadNotFound)
	require.ErrorIs(t, ops.DeleteThread(ctx, thread.ID), ErrThreadNotFound)
}

func TestAppendMessagesRoundTripsToolTurns(t *testing.T) {
	ops, _ := createTestDB(t)
	ctx := context.Background()
	thread, err := ops.CreateThread(ctx, "Calendar")
	require.NoError(t, err)

	msgs := []state.Message{
		state.UserMessage("Book lunch tomorrow"),
		{
			Role: state.RoleAssistant,
			Name: "Timekeeper",
			ToolCalls: []state.ToolCall{{
				ID:   "call-1",
				Name: "create_event",
				Args: map[string]any{"summary": "Lunch", "start_time": "2026-03-02T12:00:00Z"},
			}},
		},
		state.ToolResultMessage("call-1", "create_event", "Event created successfully! Link: https://cal/1"),
		state.AssistantMessage("Timekeeper", "Lunch is booked."),
	}
	require.NoError(t, ops.AppendMessages(ctx, thread.ID, msgs))

	history, err := ops.History(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, msgs, history)
}

func TestAppendMessagesUnknownThread(t *testing.T) {
	ops, _ := createTestDB(t)
	err := ops.AppendMessages(context.Background(), "missing", []state.Message{state.UserMessage("hi")})
	require.ErrorIs(t, err, ErrThreadNotFound)

	var n int
	require.NoError(t, ops.db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&n))
	assert.Zero(t, n, "failed append must not leave partial rows")
}

func TestListThreadsOrdersByActivity(t *testing.T) {
	ops, clock := createTestDB(t)
	ctx := context.Background()

	first, err := ops.CreateThread(ctx, "first")
	require.NoError(t, err)
	*clock = clock.Add(time.Minute)
	second, err := ops.CreateThread(ctx, "second")
	require.NoError(t, err)

	threads, err := ops.ListThreads(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, second.ID, threads[0].ID)

	// Writing to the older thread moves it to the top.
	*clock = clock.Add(time.Minute)
	require.NoError(t, ops.AppendMessages(ctx, first.ID, []state.Message{state.UserMessage("again")}))

	threads, err = ops.ListThreads(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, first.ID, threads[0].ID)

	threads, err = ops.ListThreads(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, second.ID, threads[0].ID)
}

func TestAuditEntries(t *testing.T) {
	ops, _ := createTestDB(t)
	ctx := context.Background()
	thread, err := ops.CreateThread(ctx, "audit")
	require.NoError(t, err)

	entries := []state.AuditEntry{
		state.NewAuditEntry("Supervisor", "Route", state.StatusSuccess, map[string]any{"next": "Guardian"}),
		state.NewAuditEntry("Guardian", "Health Check", state.StatusVetoed, nil),
	}
	require.NoError(t, ops.AppendAudit(ctx, thread.ID, "run-1", entries))

	records, err := ops.ListAudit(ctx, thread.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "run-1", records[0].RunID)
	assert.Equal(t, "Guardian", records[0].Detail["next"])
	assert.Equal(t, state.StatusVetoed, records[1].Status)
	assert.Nil(t, records[1].Detail)

	require.NoError(t, ops.DeleteThread(ctx, thread.ID))
	records, err = ops.ListAudit(ctx, thread.ID)
	require.NoError(t, err)
	assert.Empty(t, records, "audit rows cascade with the thread")
}

func TestUsers(t *testing.T) {
	ops, _ := createTestDB(t)
	ctx := context.Background()

	_, err := ops.GetUserByEmail(ctx, "ada@example.com")
	require.ErrorIs(t, err, ErrUserNotFound)

	expiry := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, ops.UpsertUser(ctx, &User{
		Email:              "ada@example.com",
		FullName:           "Ada",
		GoogleAccessToken:  "access-1",
		GoogleRefreshToken: "refresh-1",
		GoogleTokenExpiry:  &expiry,
	}))

	u, err := ops.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.FullName)
	assert.Equal(t, "refresh-1", u.GoogleRefreshToken)
	require.NotNil(t, u.GoogleTokenExpiry)
	assert.True(t, expiry.Equal(*u.GoogleTokenExpiry))

	// A refresh without a new refresh token keeps the stored one.
	require.NoError(t, ops.UpdateGoogleToken(ctx, "ada@example.com", "access-2", "", expiry.Add(time.Hour)))
	u, err = ops.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "access-2", u.GoogleAccessToken)
	assert.Equal(t, "refresh-1", u.GoogleRefreshToken)

	require.ErrorIs(t, ops.UpdateGoogleToken(ctx, "nobody@example.com", "x", "", time.Time{}), ErrUserNotFound)
}

func TestThreadTitle(t *testing.T) {
	assert.Equal(t, DefaultThreadTitle, ThreadTitle(""))
	assert.Equal(t, "short", ThreadTitle("short"))

	long := strings.Repeat("é", 60)
	title := ThreadTitle(long)
	assert.Equal(t, strings.Repeat("é", 50)+"...", title)
}

func TestNullString(t *testing.T) {
	assert.Equal(t, sql.NullString{}, nullString(""))
	assert.Equal(t, sql.NullString{String: "x", Valid: true}, nullString("x"))
}
