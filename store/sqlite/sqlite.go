/*
Package sqlite provides a SQLite-backed ledger Persister and AuditLog.

PURPOSE:
  An alternative to the whole-file JSON backend for larger communities:
  each checkpoint writes only the rows the mutation touched, inside one
  SQL transaction.

INTERFACES IMPLEMENTED:
  ledger.Persister: balance rows
  ledger.AuditLog:  administrative audit trail

KEY TABLES:
  balances:  one row per (community_id, member_id)
  audit_log: append-only, newest-first queries by community

CONCURRENCY:
  Checkpoints are serialized by the ledger store's lock and again by the
  mutex here. Audit writes rely on SQLite's own locking.

WAL MODE:
  Opened with WAL for crash recovery and non-blocking readers.

USAGE:
  p, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  st := store.NewPersistent(p)
  defer st.Close()

SEE ALSO:
  - ledger/store.go: interface definitions
  - store/jsonfile: default backend
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/clanpoints/ledger"
)

// tsLayout is fixed-width so audit timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements ledger.Persister and ledger.AuditLog on SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

var (
	_ ledger.Persister = (*Store)(nil)
	_ ledger.AuditLog  = (*Store)(nil)
)

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL"
	if dbPath == ":memory:" {
		dsn = dbPath
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would otherwise open its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS balances (
		community_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
		lifetime_earned INTEGER NOT NULL DEFAULT 0,
		last_claimed TEXT,
		streak INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (community_id, member_id)
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		ts TEXT NOT NULL,
		community_id TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		member_id TEXT,
		amount INTEGER NOT NULL DEFAULT 0,
		reason TEXT,
		affected INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_audit_community_ts
		ON audit_log(community_id, ts DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PERSISTER
// =============================================================================

// Restore reads every balance row.
func (s *Store) Restore(ctx context.Context) (ledger.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT community_id, member_id, balance, lifetime_earned, last_claimed, streak
		FROM balances`)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	doc := make(ledger.Document)
	for rows.Next() {
		var (
			community, member string
			rec               ledger.BalanceRecord
			lastClaimed       sql.NullString
		)
		if err := rows.Scan(&community, &member, &rec.Balance, &rec.LifetimeEarned, &lastClaimed, &rec.Streak); err != nil {
			return nil, &ledger.CorruptStoreError{Source: "sqlite balances", Err: err}
		}
		if lastClaimed.Valid && lastClaimed.String != "" {
			d, err := ledger.ParseDate(lastClaimed.String)
			if err != nil {
				return nil, &ledger.CorruptStoreError{Source: "sqlite balances", Err: err}
			}
			rec.LastClaimed = &d
		}
		c := ledger.CommunityID(community)
		if doc[c] == nil {
			doc[c] = make(map[ledger.MemberID]ledger.BalanceRecord)
		}
		doc[c][ledger.MemberID(member)] = rec
	}
	return doc, rows.Err()
}

// Persist upserts the updated rows and deletes the deleted ones in one
// transaction. A full checkpoint rewrites the table.
func (s *Store) Persist(ctx context.Context, cp ledger.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkpoint: %w", err)
	}
	defer tx.Rollback()

	updated := cp.Updated
	if cp.Full {
		if _, err := tx.ExecContext(ctx, `DELETE FROM balances`); err != nil {
			return fmt.Errorf("clear balances: %w", err)
		}
		updated = allKeys(cp.Ledger)
	}

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO balances (community_id, member_id, balance, lifetime_earned, last_claimed, streak, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(community_id, member_id) DO UPDATE SET
			balance = excluded.balance,
			lifetime_earned = excluded.lifetime_earned,
			last_claimed = excluded.last_claimed,
			streak = excluded.streak,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer upsert.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, k := range updated {
		rec, ok := cp.Ledger.Lookup(k)
		if !ok {
			continue
		}
		var lastClaimed any
		if rec.LastClaimed != nil {
			lastClaimed = rec.LastClaimed.String()
		}
		if _, err := upsert.ExecContext(ctx, string(k.Community), string(k.Member),
			rec.Balance, rec.LifetimeEarned, lastClaimed, rec.Streak, now); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", k.Community, k.Member, err)
		}
	}

	for _, k := range cp.Deleted {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM balances WHERE community_id = ? AND member_id = ?`,
			string(k.Community), string(k.Member)); err != nil {
			return fmt.Errorf("delete %s/%s: %w", k.Community, k.Member, err)
		}
	}

	return tx.Commit()
}

func allKeys(doc ledger.Document) []ledger.Key {
	var keys []ledger.Key
	for c, members := range doc {
		for m := range members {
			keys = append(keys, ledger.Key{Community: c, Member: m})
		}
	}
	return keys
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// Append records an audit entry.
func (s *Store) Append(ctx context.Context, e ledger.AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, ts, community_id, actor_id, action, member_id, amount, reason, affected)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UTC().Format(tsLayout), string(e.Community), string(e.Actor),
		string(e.Action), string(e.Member), e.Amount, e.Reason, e.Affected)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Query returns matching entries, newest first.
func (s *Store) Query(ctx context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.Community != "" {
		where = append(where, "community_id = ?")
		args = append(args, string(f.Community))
	}
	if f.Member != nil {
		where = append(where, "member_id = ?")
		args = append(args, string(*f.Member))
	}
	if len(f.Actions) > 0 {
		marks := make([]string, len(f.Actions))
		for i, a := range f.Actions {
			marks[i] = "?"
			args = append(args, string(a))
		}
		where = append(where, "action IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT id, ts, community_id, actor_id, action, member_id, amount, reason, affected FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []ledger.AuditEntry
	for rows.Next() {
		var (
			e                     ledger.AuditEntry
			ts, community, action string
			actor, member, reason sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &community, &actor, &action, &member, &e.Amount, &reason, &e.Affected); err != nil {
			return nil, err
		}
		e.Timestamp, _ = time.Parse(tsLayout, ts)
		e.Community = ledger.CommunityID(community)
		e.Actor = ledger.MemberID(actor.String)
		e.Action = ledger.AuditAction(action)
		e.Member = ledger.MemberID(member.String)
		e.Reason = reason.String
		out = append(out, e)
	}
	return out, rows.Err()
}
