package store

// Document is a single note. Content is an opaque rich-text markup blob; the
// sync layer never looks inside it. UpdatedAt is a millisecond epoch timestamp
// and is non-decreasing per document.
type Document struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	IsPublic  bool   `json:"isPublic"`
	OwnerID   string `json:"ownerId"`
	UpdatedAt int64  `json:"updatedAt"`
}

// User is the local installation identity, generated once and persisted.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Store is the durable backing for the document set and the local identity.
// The document set is the sole source of truth and is always loaded and
// rewritten in full; there is no field-level persistence.
type Store interface {
	// LoadUser returns the persisted identity, creating and persisting a new
	// one if none exists. Repeated calls within a process return the same user.
	LoadUser() (User, error)
	// LoadDocuments returns the full current set. Absent or unparsable data is
	// treated as an empty set, never as an error.
	LoadDocuments() ([]Document, error)
	// SaveDocuments replaces the entire persisted set.
	SaveDocuments(docs []Document) error
}
