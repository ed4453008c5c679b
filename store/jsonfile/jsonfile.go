/*
Package jsonfile persists the ledger as a single JSON document.

PURPOSE:
  The default durability backend. Every checkpoint rewrites the whole file
  (temp file + fsync + rename), so a crash leaves either the old or the new
  ledger on disk, never a torn one.

FILE FORMAT (version 2):
  {
    "version": 2,
    "communities": {
      "123": {
        "42": {"balance": 30, "lifetime_earned": 50, "last_claimed": "2025-03-10", "streak": 3}
      }
    }
  }

LEGACY FORMAT (version 1, no "version" key):
  {"123": {"42": {"points": 30, "last_claimed": "2025-03-10", "streak": 3}}}

  - "points" (or the later "gc") becomes balance
  - "" for last_claimed means never claimed
  - a missing "streak" is 0
  - lifetime comes from the optional separate lifetime file
    ({"123": {"42": 50}}); without one it starts at the balance

  Legacy files are migrated in memory on Restore and written back in the
  current format by the next checkpoint.

CORRUPT FILES:
  A file that cannot be decoded is renamed to <path>.corrupt-<UTC time>
  before Restore reports it, so the next checkpoint of the (now empty)
  ledger never overwrites the only copy of the old balances.

SEE ALSO:
  - ledger/store.go: Persister contract
  - store/sqlite, store/badger: delta-writing backends
*/
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/warp/clanpoints/ledger"
)

// SchemaVersion is the version written by Persist.
const SchemaVersion = 2

// Persister writes the ledger to Path.
type Persister struct {
	Path string

	// Now stamps the name of a quarantined corrupt file (default time.Now).
	Now func() time.Time

	// LegacyLifetimePath optionally names the separate lifetime-totals file
	// of the legacy layout. Only read while migrating a version-1 ledger.
	LegacyLifetimePath string

	mu sync.Mutex
}

var _ ledger.Persister = (*Persister)(nil)

// New creates a Persister for path.
func New(path string) *Persister {
	return &Persister{Path: path}
}

type document struct {
	Version     int             `json:"version"`
	Communities ledger.Document `json:"communities"`
}

// Restore reads and, if needed, migrates the ledger file.
func (p *Persister) Restore(_ context.Context) (ledger.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(p.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return ledger.Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return ledger.Document{}, nil
	}

	doc, err := decode(data)
	if err != nil {
		return nil, p.quarantine(p.Path, err)
	}
	if doc.version < SchemaVersion {
		lifetimes, err := p.legacyLifetimes()
		if err != nil {
			// The ledger file itself is fine but would be overwritten
			// without the lifetimes, so it is moved aside as well.
			return nil, p.quarantine(p.LegacyLifetimePath, err)
		}
		applyLifetimes(doc.ledger, lifetimes)
	}
	return doc.ledger, nil
}

// quarantine moves the ledger file aside and returns the corrupt error for
// source. If the file cannot be moved the error is not a CorruptStoreError,
// so the caller refuses to start on an empty ledger.
func (p *Persister) quarantine(source string, decodeErr error) error {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	aside := p.Path + ".corrupt-" + now().UTC().Format("20060102T150405Z")
	if err := os.Rename(p.Path, aside); err != nil {
		return fmt.Errorf("ledger %s is corrupt (%v) and could not be moved aside: %w", source, decodeErr, err)
	}
	return &ledger.CorruptStoreError{Source: source + " (moved to " + aside + ")", Err: decodeErr}
}

// Persist rewrites the whole file. Deltas are ignored.
func (p *Persister) Persist(_ context.Context, cp ledger.Checkpoint) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := Encode(cp.Ledger)
	if err != nil {
		return err
	}
	return writeAtomic(p.Path, data)
}

func (p *Persister) Close() error { return nil }

// =============================================================================
// ENCODING
// =============================================================================

// Encode renders the ledger in the current schema.
func Encode(doc ledger.Document) ([]byte, error) {
	if doc == nil {
		doc = ledger.Document{}
	}
	data, err := json.MarshalIndent(document{Version: SchemaVersion, Communities: doc}, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encode ledger: %w", err)
	}
	return append(data, '\n'), nil
}

type decoded struct {
	version int
	ledger  ledger.Document
}

// decode parses either schema version.
func decode(data []byte) (decoded, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return decoded{}, err
	}

	if raw, ok := fields["version"]; ok {
		var version int
		if err := json.Unmarshal(raw, &version); err != nil {
			return decoded{}, fmt.Errorf("version: %w", err)
		}
		if version > SchemaVersion {
			return decoded{}, fmt.Errorf("unsupported schema version %d", version)
		}
		var doc document
		if err := json.Unmarshal(data, &doc); err != nil {
			return decoded{}, err
		}
		if doc.Communities == nil {
			doc.Communities = ledger.Document{}
		}
		if err := validate(doc.Communities); err != nil {
			return decoded{}, err
		}
		return decoded{version: version, ledger: doc.Communities}, nil
	}

	out, err := decodeLegacy(fields)
	if err != nil {
		return decoded{}, err
	}
	return decoded{version: 1, ledger: out}, nil
}

// legacyRecord is the version-1 record shape.
type legacyRecord struct {
	Points      *int64 `json:"points"`
	GC          *int64 `json:"gc"`
	LastClaimed string `json:"last_claimed"`
	Streak      int    `json:"streak"`
}

func decodeLegacy(fields map[string]json.RawMessage) (ledger.Document, error) {
	out := make(ledger.Document, len(fields))
	for community, raw := range fields {
		var members map[string]legacyRecord
		if err := json.Unmarshal(raw, &members); err != nil {
			return nil, fmt.Errorf("community %s: %w", community, err)
		}
		recs := make(map[ledger.MemberID]ledger.BalanceRecord, len(members))
		for member, lr := range members {
			var rec ledger.BalanceRecord
			switch {
			case lr.Points != nil:
				rec.Balance = *lr.Points
			case lr.GC != nil:
				rec.Balance = *lr.GC
			}
			rec.LifetimeEarned = rec.Balance
			rec.Streak = lr.Streak
			if lr.LastClaimed != "" {
				d, err := ledger.ParseDate(lr.LastClaimed)
				if err != nil {
					return nil, fmt.Errorf("community %s member %s: %w", community, member, err)
				}
				rec.LastClaimed = &d
			}
			recs[ledger.MemberID(member)] = rec
		}
		if err := validateMembers(recs); err != nil {
			return nil, fmt.Errorf("community %s: %w", community, err)
		}
		out[ledger.CommunityID(community)] = recs
	}
	return out, nil
}

func (p *Persister) legacyLifetimes() (map[string]map[string]int64, error) {
	if p.LegacyLifetimePath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(p.LegacyLifetimePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var lifetimes map[string]map[string]int64
	if err := json.Unmarshal(data, &lifetimes); err != nil {
		return nil, err
	}
	return lifetimes, nil
}

func applyLifetimes(doc ledger.Document, lifetimes map[string]map[string]int64) {
	for community, members := range lifetimes {
		recs, ok := doc[ledger.CommunityID(community)]
		if !ok {
			recs = make(map[ledger.MemberID]ledger.BalanceRecord)
			doc[ledger.CommunityID(community)] = recs
		}
		for member, total := range members {
			rec := recs[ledger.MemberID(member)]
			if total > rec.LifetimeEarned {
				rec.LifetimeEarned = total
			}
			recs[ledger.MemberID(member)] = rec
		}
	}
}

func validate(doc ledger.Document) error {
	for c, members := range doc {
		if err := validateMembers(members); err != nil {
			return fmt.Errorf("community %s: %w", c, err)
		}
	}
	return nil
}

func validateMembers(members map[ledger.MemberID]ledger.BalanceRecord) error {
	for m, rec := range members {
		if rec.Balance < 0 {
			return fmt.Errorf("member %s: negative balance %d", m, rec.Balance)
		}
		if rec.Streak < 0 {
			return fmt.Errorf("member %s: negative streak %d", m, rec.Streak)
		}
	}
	return nil
}

// =============================================================================
// FILE I/O
// =============================================================================

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
