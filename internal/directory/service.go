// Package directory is the CRUD surface over the document set. Every mutation
// reads the full set from the store, rewrites it in full, and announces the
// change on the bus. Last writer wins across concurrent instances.
package directory

import (
	"time"

	"github.com/google/uuid"

	"notehub/internal/bus"
	"notehub/internal/store"
	"notehub/pkg/logger"
)

// Patch carries the fields a save may change. Nil fields are left as they are.
// ClientTs, when set, stamps the broadcast content message so the editing
// session can recognize its own echo; zero means "stamp with now". UserID
// attributes the broadcast to the acting user when a save is made on someone
// else's behalf; empty means the instance's own identity.
type Patch struct {
	Title    *string
	Content  *string
	ClientTs int64
	UserID   string
}

type Service struct {
	store store.Store
	bus   bus.Bus
	user  store.User
	now   func() int64
}

func NewService(st store.Store, b bus.Bus, user store.User) *Service {
	return &Service{
		store: st,
		bus:   b,
		user:  user,
		now:   func() int64 { return time.Now().UnixMilli() },
	}
}

// Create adds a fresh private untitled document owned by ownerID.
func (s *Service) Create(ownerID string) (store.Document, error) {
	docs := s.load()
	doc := store.Document{
		ID:        uuid.NewString(),
		Title:     "Untitled",
		Content:   "",
		IsPublic:  false,
		OwnerID:   ownerID,
		UpdatedAt: s.now(),
	}
	docs = append(docs, doc)
	if err := s.store.SaveDocuments(docs); err != nil {
		return store.Document{}, err
	}
	s.publishIndexChanged()
	return doc, nil
}

// Rename updates the title. Open sessions refresh their title display from the
// content channel without waiting for an index refetch.
func (s *Service) Rename(id, title string) error {
	docs := s.load()
	idx := indexOf(docs, id)
	if idx < 0 {
		return nil // stale reference, silent no-op
	}
	docs[idx].Title = title
	docs[idx].UpdatedAt = s.now()
	if err := s.store.SaveDocuments(docs); err != nil {
		return err
	}
	s.publishIndexChanged()
	s.publishContent(docs[idx], 0, "")
	return nil
}

// Remove deletes the document and tells open sessions it is gone.
func (s *Service) Remove(id string) error {
	docs := s.load()
	next := docs[:0]
	found := false
	for _, d := range docs {
		if d.ID == id {
			found = true
			continue
		}
		next = append(next, d)
	}
	if err := s.store.SaveDocuments(next); err != nil {
		return err
	}
	s.publishIndexChanged()
	if found {
		if err := s.bus.Publish(bus.DocChannel(id), bus.NewDeletedMessage(id)); err != nil {
			logger.Sugar.Warnf("Failed to announce deletion of %s: %v", id, err)
		}
	}
	return nil
}

// TogglePublic flips the visibility flag.
func (s *Service) TogglePublic(id string) error {
	docs := s.load()
	idx := indexOf(docs, id)
	if idx < 0 {
		return nil
	}
	docs[idx].IsPublic = !docs[idx].IsPublic
	docs[idx].UpdatedAt = s.now()
	if err := s.store.SaveDocuments(docs); err != nil {
		return err
	}
	s.publishIndexChanged()
	return nil
}

// Save merges the patch into the document, persists, and broadcasts the merged
// title and content snapshot.
func (s *Service) Save(id string, patch Patch) error {
	docs := s.load()
	idx := indexOf(docs, id)
	if idx < 0 {
		return nil
	}
	if patch.Title != nil {
		docs[idx].Title = *patch.Title
	}
	if patch.Content != nil {
		docs[idx].Content = *patch.Content
	}
	docs[idx].UpdatedAt = s.now()
	if err := s.store.SaveDocuments(docs); err != nil {
		return err
	}
	s.publishIndexChanged()
	s.publishContent(docs[idx], patch.ClientTs, patch.UserID)
	return nil
}

func (s *Service) GetByID(id string) (store.Document, bool) {
	docs := s.load()
	idx := indexOf(docs, id)
	if idx < 0 {
		return store.Document{}, false
	}
	return docs[idx], true
}

func (s *Service) List() []store.Document {
	return s.load()
}

// User is the identity this instance stamps on its broadcasts.
func (s *Service) User() store.User {
	return s.user
}

// EnsureSeed writes the starter documents when the set is empty, so a first
// run has something to open.
func (s *Service) EnsureSeed(ownerID string) error {
	if len(s.load()) > 0 {
		return nil
	}
	now := s.now()
	seed := []store.Document{
		{
			ID:        uuid.NewString(),
			Title:     "Welcome to Collaborative Notes",
			Content:   "<p>This is a minimal, Notion-inspired editor.</p><ul><li>Type to edit</li><li>Open another view to collaborate</li><li>Use the sidebar to manage docs</li></ul>",
			IsPublic:  true,
			OwnerID:   ownerID,
			UpdatedAt: now,
		},
		{
			ID:        uuid.NewString(),
			Title:     "My Private Draft",
			Content:   "<p>This document is private to you.</p>",
			IsPublic:  false,
			OwnerID:   ownerID,
			UpdatedAt: now,
		},
	}
	if err := s.store.SaveDocuments(seed); err != nil {
		return err
	}
	s.publishIndexChanged()
	return nil
}

// load never fails: storage corruption or absence reads as an empty set.
func (s *Service) load() []store.Document {
	docs, err := s.store.LoadDocuments()
	if err != nil {
		logger.Sugar.Warnf("Failed to load documents, treating as empty: %v", err)
		return []store.Document{}
	}
	return docs
}

func (s *Service) publishIndexChanged() {
	if err := s.bus.Publish(bus.DocsIndexChannel, bus.NewDocsUpdatedMessage()); err != nil {
		logger.Sugar.Warnf("Failed to publish index change: %v", err)
	}
}

func (s *Service) publishContent(doc store.Document, clientTs int64, userID string) {
	if clientTs == 0 {
		clientTs = s.now()
	}
	if userID == "" {
		userID = s.user.ID
	}
	msg := bus.NewContentMessage(doc.Title, doc.Content, doc.UpdatedAt, clientTs, userID)
	if err := s.bus.Publish(bus.DocChannel(doc.ID), msg); err != nil {
		logger.Sugar.Warnf("Failed to publish content change for %s: %v", doc.ID, err)
	}
}

func indexOf(docs []store.Document, id string) int {
	for i, d := range docs {
		if d.ID == id {
			return i
		}
	}
	return -1
}
