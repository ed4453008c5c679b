// Package badger persists the ledger in a BadgerDB key-value store.
//
// Keys are "bal/{community}/{member}", values the JSON-encoded record.
// Each checkpoint applies only the touched keys through one write batch.
// On-disk databases are opened with synchronous writes.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/warp/clanpoints/ledger"
)

const keyPrefix = "bal/"

// Config controls how the database is opened.
type Config struct {
	Path     string
	InMemory bool // tests only
}

// Persister implements ledger.Persister on BadgerDB.
type Persister struct {
	db *badgerdb.DB
}

var _ ledger.Persister = (*Persister)(nil)

// Open opens (creating if needed) the database.
func Open(cfg Config) (*Persister, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badgerdb.Options
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badgerdb.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Persister{db: db}, nil
}

// Restore iterates every balance key.
func (p *Persister) Restore(_ context.Context) (ledger.Document, error) {
	doc := make(ledger.Document)
	err := p.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			k, err := parseKey(string(item.Key()))
			if err != nil {
				return &ledger.CorruptStoreError{Source: "badger", Err: err}
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var rec ledger.BalanceRecord
			if err := json.Unmarshal(val, &rec); err != nil {
				return &ledger.CorruptStoreError{Source: "badger " + string(item.Key()), Err: err}
			}
			if doc[k.Community] == nil {
				doc[k.Community] = make(map[ledger.MemberID]ledger.BalanceRecord)
			}
			doc[k.Community][k.Member] = rec
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Persist writes the touched keys. A full checkpoint writes every record
// and then deletes the keys the ledger no longer holds, so a crash midway
// leaves old and new records side by side rather than no records at all.
func (p *Persister) Persist(_ context.Context, cp ledger.Checkpoint) error {
	if cp.Full {
		stale, err := p.staleKeys(cp.Ledger)
		if err != nil {
			return err
		}
		return p.write(cp.Ledger, allKeys(cp.Ledger), stale)
	}
	return p.write(cp.Ledger, cp.Updated, cp.Deleted)
}

// staleKeys lists stored balance keys that doc does not contain.
func (p *Persister) staleKeys(doc ledger.Document) ([]ledger.Key, error) {
	var stale []ledger.Key
	err := p.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			k, err := parseKey(string(it.Item().Key()))
			if err != nil {
				return &ledger.CorruptStoreError{Source: "badger", Err: err}
			}
			if _, ok := doc.Lookup(k); !ok {
				stale = append(stale, k)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	return stale, nil
}

func (p *Persister) write(doc ledger.Document, updated, deleted []ledger.Key) error {
	wb := p.db.NewWriteBatch()
	defer wb.Cancel()

	for _, k := range updated {
		rec, ok := doc.Lookup(k)
		if !ok {
			continue
		}
		val, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", k.Community, k.Member, err)
		}
		if err := wb.Set(encodeKey(k), val); err != nil {
			return fmt.Errorf("set %s/%s: %w", k.Community, k.Member, err)
		}
	}
	for _, k := range deleted {
		if err := wb.Delete(encodeKey(k)); err != nil {
			return fmt.Errorf("delete %s/%s: %w", k.Community, k.Member, err)
		}
	}
	return wb.Flush()
}

func (p *Persister) Close() error { return p.db.Close() }

// Community and member IDs are chat snowflakes; '/' never appears in them.
func encodeKey(k ledger.Key) []byte {
	return []byte(keyPrefix + string(k.Community) + "/" + string(k.Member))
}

func parseKey(raw string) (ledger.Key, error) {
	rest := strings.TrimPrefix(raw, keyPrefix)
	community, member, ok := strings.Cut(rest, "/")
	if !ok || community == "" || member == "" {
		return ledger.Key{}, fmt.Errorf("malformed key %q", raw)
	}
	return ledger.Key{Community: ledger.CommunityID(community), Member: ledger.MemberID(member)}, nil
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
