package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"aura/pkg/state"
)

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultListLimit caps ListThreads when no limit is given.
const DefaultListLimit = 50

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

// DatabaseOperations provides methods for database operations.
// It is safe for concurrent use; SQLite serializes writers.
type DatabaseOperations struct {
	db  *sql.DB
	now func() time.Time
}

// NewDatabaseOperations creates a new DatabaseOperations instance.
func NewDatabaseOperations(db *sql.DB) *DatabaseOperations {
	return &DatabaseOperations{db: db, now: time.Now}
}

// Close closes the underlying database.
func (ops *DatabaseOperations) Close() error {
	return ops.db.Close()
}

// CreateThread inserts a thread with a new UUID.
func (ops *DatabaseOperations) CreateThread(ctx context.Context, title string) (*Thread, error) {
	if title == "" {
		title = DefaultThreadTitle
	}
	now := ops.now().UTC()
	thread := &Thread{ID: uuid.NewString(), Title: title, CreatedAt: now, UpdatedAt: now}

	_, err := ops.db.ExecContext(ctx,
		"INSERT INTO threads (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)",
		thread.ID, thread.Title, formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}
	return thread, nil
}

// GetThread returns the thread with its messages in order.
func (ops *DatabaseOperations) GetThread(ctx context.Context, id string) (*Thread, error) {
	thread, err := scanThread(ops.db.QueryRowContext(ctx,
		"SELECT id, title, created_at, updated_at FROM threads WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread %s: %w", id, err)
	}

	thread.Messages, err = ops.messages(ctx, id)
	if err != nil {
		return nil, err
	}
	return thread, nil
}

// ListThreads returns threads most recently updated first, without messages.
func (ops *DatabaseOperations) ListThreads(ctx context.Context, skip, limit int) ([]*Thread, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if skip < 0 {
		skip = 0
	}
	rows, err := ops.db.QueryContext(ctx,
		"SELECT id, title, created_at, updated_at FROM threads ORDER BY updated_at DESC, id LIMIT ? OFFSET ?",
		limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var threads []*Thread
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, thread)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	return threads, nil
}

// DeleteThread removes a thread with its messages and audit entries.
func (ops *DatabaseOperations) DeleteThread(ctx context.Context, id string) error {
	res, err := ops.db.ExecContext(ctx, "DELETE FROM threads WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete thread %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete thread %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, id)
	}
	return nil
}

// AppendMessages stores msgs at the end of the thread and bumps its updated_at,
// atomically.
func (ops *DatabaseOperations) AppendMessages(ctx context.Context, threadID string, msgs []state.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	now := formatTime(ops.now())

	return ops.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE threads SET updated_at = ? WHERE id = ?", now, threadID)
		if err != nil {
			return fmt.Errorf("failed to touch thread: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO messages
			(thread_id, role, content, name, tool_call_id, tool_calls, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare message insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for i := range msgs {
			m := &msgs[i]
			var calls sql.NullString
			if len(m.ToolCalls) > 0 {
				data, err := json.Marshal(m.ToolCalls)
				if err != nil {
					return fmt.Errorf("failed to encode tool calls: %w", err)
				}
				calls = sql.NullString{String: string(data), Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, threadID, string(m.Role), m.Content,
				nullString(m.Name), nullString(m.ToolCallID), calls, now); err != nil {
				return fmt.Errorf("failed to insert message: %w", err)
			}
		}
		return nil
	})
}

// History returns the thread's messages as conversation history.
func (ops *DatabaseOperations) History(ctx context.Context, threadID string) ([]state.Message, error) {
	msgs, err := ops.messages(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return ToState(msgs), nil
}

func (ops *DatabaseOperations) messages(ctx context.Context, threadID string) ([]*Message, error) {
	rows, err := ops.db.QueryContext(ctx, `SELECT id, thread_id, role, content, name, tool_call_id, tool_calls, created_at
		FROM messages WHERE thread_id = ? ORDER BY id`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Message
	for rows.Next() {
		var (
			m                   Message
			name, callID, calls sql.NullString
			createdAt           string
		)
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Content, &name, &callID, &calls, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Name = name.String
		m.ToolCallID = callID.String
		if calls.Valid && calls.String != "" {
			if err := json.Unmarshal([]byte(calls.String), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("failed to decode tool calls of message %d: %w", m.ID, err)
			}
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	return out, nil
}

// AppendAudit stores the audit entries of one run on a thread.
func (ops *DatabaseOperations) AppendAudit(ctx context.Context, threadID, runID string, entries []state.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return ops.inTx(ctx, func(tx *sql.Tx) error {
		for i := range entries {
			e := &entries[i]
			var detail sql.NullString
			if len(e.Detail) > 0 {
				data, err := json.Marshal(e.Detail)
				if err != nil {
					return fmt.Errorf("failed to encode audit detail: %w", err)
				}
				detail = sql.NullString{String: string(data), Valid: true}
			}
			ts := e.Timestamp
			if ts.IsZero() {
				ts = ops.now()
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO audit_entries
				(thread_id, run_id, role, action, status, detail, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				threadID, runID, e.Role, e.Action, e.Status, detail, formatTime(ts)); err != nil {
				return fmt.Errorf("failed to insert audit entry: %w", err)
			}
		}
		return nil
	})
}

// ListAudit returns a thread's audit entries in insertion order.
func (ops *DatabaseOperations) ListAudit(ctx context.Context, threadID string) ([]*AuditRecord, error) {
	rows, err := ops.db.QueryContext(ctx, `SELECT id, thread_id, run_id, role, action, status, detail, created_at
		FROM audit_entries WHERE thread_id = ? ORDER BY id`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*AuditRecord
	for rows.Next() {
		var (
			r         AuditRecord
			detail    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.ThreadID, &r.RunID, &r.Role, &r.Action, &r.Status, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if detail.Valid && detail.String != "" {
			if err := json.Unmarshal([]byte(detail.String), &r.Detail); err != nil {
				return nil, fmt.Errorf("failed to decode audit detail %d: %w", r.ID, err)
			}
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	return out, nil
}

// UpsertUser inserts a user or updates the name and tokens of an existing one by email.
func (ops *DatabaseOperations) UpsertUser(ctx context.Context, u *User) error {
	var expiry sql.NullString
	if u.GoogleTokenExpiry != nil {
		expiry = sql.NullString{String: formatTime(*u.GoogleTokenExpiry), Valid: true}
	}
	_, err := ops.db.ExecContext(ctx, `INSERT INTO users (email, full_name, google_access_token, google_refresh_token, google_token_expiry)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			full_name = excluded.full_name,
			google_access_token = excluded.google_access_token,
			google_refresh_token = excluded.google_refresh_token,
			google_token_expiry = excluded.google_token_expiry`,
		u.Email, nullString(u.FullName), nullString(u.GoogleAccessToken), nullString(u.GoogleRefreshToken), expiry)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", u.Email, err)
	}
	return nil
}

// GetUserByEmail returns the user with the given email.
func (ops *DatabaseOperations) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var (
		u                             User
		name, access, refresh, expiry sql.NullString
	)
	err := ops.db.QueryRowContext(ctx, `SELECT id, email, full_name, google_access_token, google_refresh_token, google_token_expiry
		FROM users WHERE email = ?`, email).Scan(&u.ID, &u.Email, &name, &access, &refresh, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", email, err)
	}
	u.FullName = name.String
	u.GoogleAccessToken = access.String
	u.GoogleRefreshToken = refresh.String
	if expiry.Valid && expiry.String != "" {
		t, err := parseTime(expiry.String)
		if err != nil {
			return nil, err
		}
		u.GoogleTokenExpiry = &t
	}
	return &u, nil
}

// UpdateGoogleToken stores a refreshed access token. An empty refreshToken keeps the stored one.
func (ops *DatabaseOperations) UpdateGoogleToken(ctx context.Context, email, accessToken, refreshToken string, expiry time.Time) error {
	var exp sql.NullString
	if !expiry.IsZero() {
		exp = sql.NullString{String: formatTime(expiry), Valid: true}
	}
	res, err := ops.db.ExecContext(ctx, `UPDATE users SET
			google_access_token = ?,
			google_refresh_token = COALESCE(?, google_refresh_token),
			google_token_expiry = ?
		WHERE email = ?`, accessToken, nullString(refreshToken), exp, email)
	if err != nil {
		return fmt.Errorf("failed to update token for %s: %w", email, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	return nil
}

func (ops *DatabaseOperations) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := ops.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThread(row rowScanner) (*Thread, error) {
	var (
		t                    Thread
		title                sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&t.ID, &title, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.Title = title.String
	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
