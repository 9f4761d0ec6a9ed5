// Package persist keeps the small amount of state that survives restarts:
// the device id, the cached profile, onboarding progress and drafts.
package persist

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Keys allowed in the store. Anything else is rejected so transient state
// never leaks into disk.
const (
	KeyDeviceID       = "device_id"
	KeyProfile        = "profile"
	KeyOnboardingStep = "onboarding_step"
	KeyAuth           = "auth"
	DraftPrefix       = "draft:"
)

var (
	ErrKeyNotAllowed = errors.New("key not persisted")
	ErrNotFound      = errors.New("key not found")
)

var allowedKeys = map[string]bool{
	KeyDeviceID:       true,
	KeyProfile:        true,
	KeyOnboardingStep: true,
	KeyAuth:           true,
}

// Allowed reports whether key may be persisted.
func Allowed(key string) bool {
	if allowedKeys[key] {
		return true
	}
	return strings.HasPrefix(key, DraftPrefix) && len(key) > len(DraftPrefix)
}

type Store struct {
	db *sql.DB

	// deviceMu serialises DeviceID so two callers never mint two ids.
	deviceMu sync.Mutex
}

// Open opens (or creates) the sqlite database at path. ":memory:" works for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serialises writes
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(key string) (string, error) {
	if !Allowed(key) {
		return "", fmt.Errorf("%w: %s", ErrKeyNotAllowed, key)
	}
	var v string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) Set(key, value string) error {
	if !Allowed(key) {
		return fmt.Errorf("%w: %s", ErrKeyNotAllowed, key)
	}
	_, err := s.db.Exec(`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(key string) error {
	if !Allowed(key) {
		return fmt.Errorf("%w: %s", ErrKeyNotAllowed, key)
	}
	if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) GetJSON(key string, v any) error {
	raw, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) SetJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(key, string(raw))
}

// DeviceID returns the stored device id, generating and storing one on
// first use.
func (s *Store) DeviceID() (string, error) {
	s.deviceMu.Lock()
	defer s.deviceMu.Unlock()

	id, err := s.Get(KeyDeviceID)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}

	id = uuid.NewString()
	if err := s.Set(KeyDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}

// Drafts returns every stored draft keyed by draft id.
func (s *Store) Drafts() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM kv WHERE key LIKE ? ORDER BY key", DraftPrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	drafts := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		drafts[strings.TrimPrefix(k, DraftPrefix)] = v
	}
	return drafts, rows.Err()
}

func (s *Store) SaveDraft(id, body string) error {
	return s.Set(DraftPrefix+id, body)
}

func (s *Store) DeleteDraft(id string) error {
	return s.Delete(DraftPrefix + id)
}
