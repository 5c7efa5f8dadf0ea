package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// cacheTTL is the staleness window for pilot and entity rows. Killmails
// are immutable and never expire.
const cacheTTL = 7 * 24 * time.Hour

// Cache is the persistent local store for resolved pilots, entity names
// and authoritative killmail records. Writes are durable before the call
// returns; sqlite serializes concurrent access, so the cache is safe to
// share across a chunk's goroutines.
type Cache struct {
	db *sql.DB
}

func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS pilots (
		char_id     INTEGER PRIMARY KEY,
		char_name   TEXT NOT NULL,
		corp_id     INTEGER NOT NULL DEFAULT 0,
		alliance_id INTEGER NOT NULL DEFAULT 0,
		last_update DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pilots_name ON pilots(char_name);

	CREATE TABLE IF NOT EXISTS entities (
		entity_id   INTEGER PRIMARY KEY,
		entity_name TEXT NOT NULL,
		last_update DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS killmails (
		killmail_id INTEGER PRIMARY KEY,
		body        TEXT NOT NULL,
		fetched_at  DATETIME NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// GetPilotByName returns the cached identity for a display name, or
// ok=false on a miss. A stale row is erased and reported as a miss so
// the caller re-resolves it.
func (c *Cache) GetPilotByName(name string) (Identity, bool, error) {
	var id Identity
	var lastUpdate time.Time
	err := c.db.QueryRow(
		`SELECT char_id, char_name, corp_id, alliance_id, last_update
		 FROM pilots WHERE char_name = ?`,
		name,
	).Scan(&id.ID, &id.Name, &id.CorpID, &id.AllianceID, &lastUpdate)
	if err == sql.ErrNoRows {
		return Identity{}, false, nil
	}
	if err != nil {
		return Identity{}, false, fmt.Errorf("cache read pilot %q: %w", name, err)
	}
	if time.Since(lastUpdate) > cacheTTL {
		if _, err := c.db.Exec(`DELETE FROM pilots WHERE char_name = ?`, name); err != nil {
			return Identity{}, false, fmt.Errorf("cache evict pilot %q: %w", name, err)
		}
		return Identity{}, false, nil
	}
	return id, true, nil
}

// PutPilot stores or replaces a resolved identity. Used both for the
// name-to-ID write-back (group fields zero) and for affiliation updates.
func (c *Cache) PutPilot(id Identity) error {
	_, err := c.db.Exec(
		`INSERT INTO pilots (char_id, char_name, corp_id, alliance_id, last_update)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(char_id) DO UPDATE SET
		   char_name = excluded.char_name,
		   corp_id = excluded.corp_id,
		   alliance_id = excluded.alliance_id,
		   last_update = excluded.last_update`,
		id.ID, id.Name, id.CorpID, id.AllianceID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("cache write pilot %d: %w", id.ID, err)
	}
	return nil
}

// GetPilotsByIDs returns the cached, fresh identities among ids. Stale
// rows are erased. Identities whose affiliation was never resolved
// (corp_id = 0) are returned too; callers check Affiliated.
func (c *Cache) GetPilotsByIDs(ids []int64) (map[int64]Identity, error) {
	if len(ids) == 0 {
		return map[int64]Identity{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := c.db.Query(
		`SELECT char_id, char_name, corp_id, alliance_id, last_update
		 FROM pilots WHERE char_id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("cache read pilots: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]Identity)
	var stale []int64
	for rows.Next() {
		var id Identity
		var lastUpdate time.Time
		if err := rows.Scan(&id.ID, &id.Name, &id.CorpID, &id.AllianceID, &lastUpdate); err != nil {
			return nil, fmt.Errorf("cache read pilots: %w", err)
		}
		if time.Since(lastUpdate) > cacheTTL {
			stale = append(stale, id.ID)
			continue
		}
		out[id.ID] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache read pilots: %w", err)
	}
	for _, id := range stale {
		if _, err := c.db.Exec(`DELETE FROM pilots WHERE char_id = ?`, id); err != nil {
			return nil, fmt.Errorf("cache evict pilot %d: %w", id, err)
		}
	}
	return out, nil
}

// GetEntityNames returns the cached, fresh names among the given corp or
// alliance IDs.
func (c *Cache) GetEntityNames(ids []int64) (map[int64]string, error) {
	if len(ids) == 0 {
		return map[int64]string{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := c.db.Query(
		`SELECT entity_id, entity_name, last_update
		 FROM entities WHERE entity_id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("cache read entities: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]string)
	var stale []int64
	for rows.Next() {
		var id int64
		var name string
		var lastUpdate time.Time
		if err := rows.Scan(&id, &name, &lastUpdate); err != nil {
			return nil, fmt.Errorf("cache read entities: %w", err)
		}
		if time.Since(lastUpdate) > cacheTTL {
			stale = append(stale, id)
			continue
		}
		out[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache read entities: %w", err)
	}
	for _, id := range stale {
		if _, err := c.db.Exec(`DELETE FROM entities WHERE entity_id = ?`, id); err != nil {
			return nil, fmt.Errorf("cache evict entity %d: %w", id, err)
		}
	}
	return out, nil
}

func (c *Cache) PutEntity(id int64, name string) error {
	_, err := c.db.Exec(
		`INSERT INTO entities (entity_id, entity_name, last_update)
		 VALUES (?, ?, ?)
		 ON CONFLICT(entity_id) DO UPDATE SET
		   entity_name = excluded.entity_name,
		   last_update = excluded.last_update`,
		id, name, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("cache write entity %d: %w", id, err)
	}
	return nil
}

// GetKillmail returns the cached authoritative record for an event, or
// ok=false on a miss. Killmail rows never expire.
func (c *Cache) GetKillmail(id int64) (EventRecord, bool, error) {
	var body string
	err := c.db.QueryRow(`SELECT body FROM killmails WHERE killmail_id = ?`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return EventRecord{}, false, nil
	}
	if err != nil {
		return EventRecord{}, false, fmt.Errorf("cache read killmail %d: %w", id, err)
	}
	var record EventRecord
	if err := json.Unmarshal([]byte(body), &record); err != nil {
		return EventRecord{}, false, fmt.Errorf("cache decode killmail %d: %w", id, err)
	}
	return record, true, nil
}

// PutKillmail stores an authoritative record. Same-key races across
// goroutines resolve last-write-wins; the record is immutable upstream
// so either write is correct.
func (c *Cache) PutKillmail(id int64, record EventRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("cache encode killmail %d: %w", id, err)
	}
	_, err = c.db.Exec(
		`INSERT INTO killmails (killmail_id, body, fetched_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(killmail_id) DO UPDATE SET
		   body = excluded.body,
		   fetched_at = excluded.fetched_at`,
		id, string(body), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("cache write killmail %d: %w", id, err)
	}
	return nil
}

// ClearPilotCache erases all resolved pilots and entity names. Cached
// killmails are kept: they are immutable and expensive to refetch.
func (c *Cache) ClearPilotCache() error {
	if _, err := c.db.Exec(`DELETE FROM pilots`); err != nil {
		return fmt.Errorf("cache clear pilots: %w", err)
	}
	if _, err := c.db.Exec(`DELETE FROM entities`); err != nil {
		return fmt.Errorf("cache clear entities: %w", err)
	}
	return nil
}
