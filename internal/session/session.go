// Package session keeps one open document's displayed state in step with
// remote edits arriving over the bus, while making sure an instance never
// clobbers itself with the echo of its own edits.
package session

import (
	"errors"
	"sync"
	"time"

	"notehub/internal/bus"
	"notehub/internal/directory"
	"notehub/internal/store"
	"notehub/pkg/logger"
)

// ErrNotFound is returned by Open when the document id matches nothing;
// callers fall back to another document.
var ErrNotFound = errors.New("document not found")

// Field identifies which part of the view currently holds input focus.
// A focused field is left untouched when a remote update is applied, so
// active typing is never disrupted.
type Field int

const (
	FieldNone Field = iota
	FieldTitle
	FieldBody
)

// View is the locally displayed state of the open document.
type View struct {
	Title     string
	Content   string
	UpdatedAt int64
}

// Callbacks notify the rendering layer. Both are optional and are invoked
// outside the session lock.
type Callbacks struct {
	// OnRemoteUpdate fires after a remote content change has been applied.
	OnRemoteUpdate func(View)
	// OnDeleted fires when the document is removed elsewhere. The session is
	// closed by the time it runs.
	OnDeleted func()
}

// recentMarkerLimit bounds how many outgoing edit timestamps are remembered
// for echo matching. The original kept a single marker, which let the echo of
// a second rapid edit slip through; a short history closes that gap.
const recentMarkerLimit = 8

type Session struct {
	dir   *directory.Service
	docID string
	user  store.User
	cb    Callbacks
	now   func() int64

	mu      sync.Mutex
	view    View
	markers []int64
	focus   Field
	closed  bool
	deleted bool

	unsub func()
}

// Open loads the document and starts listening on its content channel.
func Open(dir *directory.Service, b bus.Bus, docID string, cb Callbacks) (*Session, error) {
	doc, ok := dir.GetByID(docID)
	if !ok {
		return nil, ErrNotFound
	}

	s := &Session{
		dir:   dir,
		docID: docID,
		user:  dir.User(),
		cb:    cb,
		now:   func() int64 { return time.Now().UnixMilli() },
		view:  View{Title: doc.Title, Content: doc.Content, UpdatedAt: doc.UpdatedAt},
	}

	unsub, err := b.Subscribe(bus.DocChannel(docID), s.handle)
	if err != nil {
		return nil, err
	}
	s.unsub = unsub
	return s, nil
}

// EditTitle applies a local title edit: the view updates immediately, the edit
// timestamp is remembered for echo matching, and the change is persisted and
// broadcast through the directory.
func (s *Session) EditTitle(title string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.view.Title = title
	ts := s.now()
	s.remember(ts)
	s.mu.Unlock()

	return s.dir.Save(s.docID, directory.Patch{Title: &title, ClientTs: ts})
}

// EditContent is the body counterpart of EditTitle.
func (s *Session) EditContent(content string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.view.Content = content
	ts := s.now()
	s.remember(ts)
	s.mu.Unlock()

	return s.dir.Save(s.docID, directory.Patch{Content: &content, ClientTs: ts})
}

// SetFocus records which field is being typed in.
func (s *Session) SetFocus(f Field) {
	s.mu.Lock()
	s.focus = f
	s.mu.Unlock()
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

func (s *Session) Deleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted
}

// Close releases the channel listener. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.unsub()
}

func (s *Session) handle(raw []byte) {
	switch bus.Kind(raw) {
	case bus.TypeContent:
		m, err := bus.DecodeContent(raw)
		if err != nil {
			logger.Sugar.Warnf("Dropping malformed content message for %s: %v", s.docID, err)
			return
		}
		s.applyContent(m)
	case bus.TypeDeleted:
		if _, err := bus.DecodeDeleted(raw); err != nil {
			logger.Sugar.Warnf("Dropping malformed deleted message for %s: %v", s.docID, err)
			return
		}
		s.applyDeleted()
	}
}

// applyContent merges a remote snapshot, whole-field last-writer-wins. Echoes
// of this instance's own edits are discarded: either the message carries the
// local user's id, or its clientTs matches a recently recorded local marker.
func (s *Session) applyContent(m bus.ContentMessage) {
	s.mu.Lock()
	if s.closed || m.UserID == s.user.ID || s.isRecentMarker(m.ClientTs) {
		s.mu.Unlock()
		return
	}
	if s.focus != FieldTitle {
		s.view.Title = m.Title
	}
	if s.focus != FieldBody {
		s.view.Content = m.Content
	}
	s.view.UpdatedAt = m.UpdatedAt
	view := s.view
	cb := s.cb.OnRemoteUpdate
	s.mu.Unlock()

	if cb != nil {
		cb(view)
	}
}

func (s *Session) applyDeleted() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.deleted = true
	cb := s.cb.OnDeleted
	s.mu.Unlock()

	s.unsub()
	if cb != nil {
		cb()
	}
}

func (s *Session) remember(ts int64) {
	s.markers = append(s.markers, ts)
	if len(s.markers) > recentMarkerLimit {
		s.markers = s.markers[len(s.markers)-recentMarkerLimit:]
	}
}

func (s *Session) isRecentMarker(ts int64) bool {
	for _, m := range s.markers {
		if m == ts {
			return true
		}
	}
	return false
}
