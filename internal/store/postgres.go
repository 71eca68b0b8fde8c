package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"notehub/pkg/logger"
)

const (
	documentsSnapshot = "documents"
	userSnapshot      = "user"
)

// PostgresStore keeps each logical record (document set, identity) as a single
// JSON snapshot row, so mutation stays read-entire-set, write-entire-set just
// like the file backend.
type PostgresStore struct {
	db *sql.DB

	mu   sync.Mutex
	user *User
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the snapshots table when it is missing.
func (s *PostgresStore) EnsureSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		name TEXT PRIMARY KEY,
		data JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("create snapshots table: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadUser() (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user != nil {
		return *s.user, nil
	}

	var u User
	raw, err := s.loadSnapshot(userSnapshot)
	if err != nil {
		return User{}, err
	}
	if raw != nil && json.Unmarshal(raw, &u) == nil && u.ID != "" {
		s.user = &u
		return u, nil
	}

	u = NewRandomUser()
	if err := s.saveSnapshot(userSnapshot, u); err != nil {
		return User{}, fmt.Errorf("persist user: %w", err)
	}
	s.user = &u
	return u, nil
}

func (s *PostgresStore) LoadDocuments() ([]Document, error) {
	raw, err := s.loadSnapshot(documentsSnapshot)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return []Document{}, nil
	}

	var docs []Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		logger.Sugar.Warnf("Document snapshot is unparsable, treating as empty: %v", err)
		return []Document{}, nil
	}
	return docs, nil
}

func (s *PostgresStore) SaveDocuments(docs []Document) error {
	if docs == nil {
		docs = []Document{}
	}
	return s.saveSnapshot(documentsSnapshot, docs)
}

func (s *PostgresStore) loadSnapshot(name string) ([]byte, error) {
	var raw []byte
	err := s.db.QueryRow("SELECT data FROM snapshots WHERE name = $1", name).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to load snapshot %s: %v", name, err)
		return nil, fmt.Errorf("load snapshot %s: %w", name, err)
	}
	return raw, nil
}

func (s *PostgresStore) saveSnapshot(name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", name, err)
	}
	// lib/pq wants JSONB as a string, not []byte.
	_, err = s.db.Exec(`INSERT INTO snapshots (name, data, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET data = $2, updated_at = NOW()`, name, string(raw))
	if err != nil {
		logger.Sugar.Errorf("Failed to save snapshot %s: %v", name, err)
		return fmt.Errorf("save snapshot %s: %w", name, err)
	}
	return nil
}
