package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"notehub/pkg/logger"
)

const (
	documentsFile = "documents.json"
	userFile      = "user.json"
)

// FileStore persists the document set and the local identity as JSON files
// under a data directory. Writes replace the whole file via a rename.
type FileStore struct {
	dir string

	mu   sync.Mutex
	user *User
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) LoadUser() (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user != nil {
		return *s.user, nil
	}

	var u User
	raw, err := os.ReadFile(filepath.Join(s.dir, userFile))
	if err == nil && json.Unmarshal(raw, &u) == nil && u.ID != "" {
		s.user = &u
		return u, nil
	}

	// Missing or corrupt identity: mint a new one and persist it.
	u = NewRandomUser()
	if err := s.writeFile(userFile, u); err != nil {
		return User{}, fmt.Errorf("persist user: %w", err)
	}
	s.user = &u
	return u, nil
}

func (s *FileStore) LoadDocuments() ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(filepath.Join(s.dir, documentsFile))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Sugar.Warnf("Failed to read document set, treating as empty: %v", err)
		}
		return []Document{}, nil
	}

	var docs []Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		// Corrupt data counts as no data.
		logger.Sugar.Warnf("Document set is unparsable, treating as empty: %v", err)
		return []Document{}, nil
	}
	return docs, nil
}

func (s *FileStore) SaveDocuments(docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if docs == nil {
		docs = []Document{}
	}
	return s.writeFile(documentsFile, docs)
}

// writeFile marshals v and swaps it into place atomically so readers never see
// a half-written set.
func (s *FileStore) writeFile(name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
