package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repo is the SQLite store of client-side state: the ETag recorded for every
// entity read or written, and the journal of writes.
type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

func (r Repo) now() string {
	if r.Now != nil {
		return r.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// Token is a recorded ETag.
type Token struct {
	Family    string
	EntityID  string
	ETag      string
	UpdatedAt string
}

// Get returns the ETag recorded for family/id.
func (r Repo) Get(ctx context.Context, family, id string) (string, bool, error) {
	var etag string
	err := r.DB.QueryRowContext(ctx, `SELECT etag FROM etag_tokens WHERE family=? AND entity_id=?`, family, id).Scan(&etag)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return etag, true, nil
}

// Put records etag for family/id, replacing any previous one.
func (r Repo) Put(ctx context.Context, family, id, etag string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO etag_tokens(family,entity_id,etag,updated_at) VALUES (?,?,?,?)
ON CONFLICT(family,entity_id) DO UPDATE SET etag=excluded.etag, updated_at=excluded.updated_at`,
		family, id, etag, r.now())
	return err
}

// Delete drops the ETag of family/id. Dropping a missing token is not an error.
func (r Repo) Delete(ctx context.Context, family, id string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM etag_tokens WHERE family=? AND entity_id=?`, family, id)
	return err
}

// ListTokens returns the recorded ETags, optionally of one family.
func (r Repo) ListTokens(ctx context.Context, family string) ([]Token, error) {
	query := `SELECT family,entity_id,etag,updated_at FROM etag_tokens`
	var args []any
	if family != "" {
		query += ` WHERE family=?`
		args = append(args, family)
	}
	query += ` ORDER BY family,entity_id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Token
	for rows.Next() {
		var t Token
		if err := rows.Scan(&t.Family, &t.EntityID, &t.ETag, &t.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// JournalEntry is one write recorded by the client.
type JournalEntry struct {
	ID       int64  `json:"id"`
	EventID  string `json:"event_id"`
	TS       string `json:"ts"`
	Family   string `json:"family"`
	EntityID string `json:"entity_id,omitempty"`
	Method   string `json:"method"`
	Path     string `json:"path"`
	Status   int    `json:"status"`
	ETag     string `json:"etag,omitempty"`
}

type JournalFilter struct {
	Family   string
	EntityID string
	Method   string
	// Cursor returns entries older than this id when positive.
	Cursor int64
	Limit  int
}

// ListJournal returns journal entries newest first.
func (r Repo) ListJournal(ctx context.Context, f JournalFilter) ([]JournalEntry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if f.Family != "" {
		clauses = append(clauses, "family=?")
		args = append(args, f.Family)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Method != "" {
		clauses = append(clauses, "method=?")
		args = append(args, strings.ToUpper(f.Method))
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,event_id,ts,family,COALESCE(entity_id,''),method,path,status,COALESCE(etag,'') FROM journal %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.scanJournal(ctx, query, args...)
}

// JournalAfter returns entries with ids greater than cursor, oldest first.
func (r Repo) JournalAfter(ctx context.Context, cursor int64, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.scanJournal(ctx, `SELECT id,event_id,ts,family,COALESCE(entity_id,''),method,path,status,COALESCE(etag,'') FROM journal WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
}

// LatestJournalID returns the id of the newest journal entry, or 0.
func (r Repo) LatestJournalID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM journal`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r Repo) scanJournal(ctx context.Context, query string, args ...any) ([]JournalEntry, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.EventID, &e.TS, &e.Family, &e.EntityID, &e.Method, &e.Path, &e.Status, &e.ETag); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
