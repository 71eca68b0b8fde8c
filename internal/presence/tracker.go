// Package presence tracks which users are actively viewing a document.
// State is rebuilt entirely from heartbeats and lives only in process memory.
package presence

import (
	"sync"
	"time"

	"notehub/internal/bus"
	"notehub/internal/store"
	"notehub/pkg/logger"
)

// Default knobs. They are independent settings, not derived from each other;
// the heartbeat interval must stay below the expiry window or entries flap.
const (
	DefaultHeartbeatInterval = 4 * time.Second
	DefaultExpiryWindow      = 10 * time.Second
	DefaultSweepInterval     = 3 * time.Second
)

// Entry is one user's last-known viewing activity on a document.
type Entry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	LastSeen int64  `json:"lastSeen"`
}

// Config overrides the default intervals; zero values keep the defaults.
type Config struct {
	HeartbeatInterval time.Duration
	ExpiryWindow      time.Duration
	SweepInterval     time.Duration
}

type Tracker struct {
	bus       bus.Bus
	heartbeat time.Duration
	expiry    time.Duration
	sweep     time.Duration
	now       func() int64

	mu   sync.Mutex
	docs map[string]map[string]Entry
	subs map[string]int
}

func NewTracker(b bus.Bus, cfg Config) *Tracker {
	t := &Tracker{
		bus:       b,
		heartbeat: cfg.HeartbeatInterval,
		expiry:    cfg.ExpiryWindow,
		sweep:     cfg.SweepInterval,
		now:       func() int64 { return time.Now().UnixMilli() },
		docs:      make(map[string]map[string]Entry),
		subs:      make(map[string]int),
	}
	if t.heartbeat <= 0 {
		t.heartbeat = DefaultHeartbeatInterval
	}
	if t.expiry <= 0 {
		t.expiry = DefaultExpiryWindow
	}
	if t.sweep <= 0 {
		t.sweep = DefaultSweepInterval
	}
	return t
}

// SendHeartbeat announces that user is viewing docID right now.
func (t *Tracker) SendHeartbeat(docID string, u store.User) error {
	return t.bus.Publish(bus.PresenceChannel(docID), bus.NewPresenceMessage(u))
}

// StartHeartbeat sends one heartbeat immediately and then keeps sending on the
// heartbeat interval until the returned stop func is called. Stop is
// idempotent.
func (t *Tracker) StartHeartbeat(docID string, u store.User) func() {
	if err := t.SendHeartbeat(docID, u); err != nil {
		logger.Sugar.Warnf("Failed to send heartbeat for %s: %v", docID, err)
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(t.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := t.SendHeartbeat(docID, u); err != nil {
					logger.Sugar.Warnf("Failed to send heartbeat for %s: %v", docID, err)
				}
			case <-done:
				return
			}
		}
	}()

	var off sync.Once
	return func() { off.Do(func() { close(done) }) }
}

// Subscribe delivers the current userID → Entry mapping whenever it changes:
// on every heartbeat received and after an expiry sweep that removed someone.
// The callback gets its own copy and receives the current state shortly after
// Subscribe returns. Every invocation happens off the subscriber's goroutine,
// so a subscriber may hold its own locks while subscribing. Teardown stops the
// sweep timer and the channel listener; when the last subscriber for a
// document leaves, its roster is released.
func (t *Tracker) Subscribe(docID string, cb func(map[string]Entry)) (func(), error) {
	t.mu.Lock()
	if t.docs[docID] == nil {
		t.docs[docID] = make(map[string]Entry)
	}
	t.subs[docID]++
	t.mu.Unlock()

	unsub, err := t.bus.Subscribe(bus.PresenceChannel(docID), func(raw []byte) {
		m, err := bus.DecodePresence(raw)
		if err != nil {
			logger.Sugar.Warnf("Dropping malformed presence message for %s: %v", docID, err)
			return
		}
		t.mu.Lock()
		entries, ok := t.docs[docID]
		if !ok {
			// Straggler delivery after the last subscriber left.
			t.mu.Unlock()
			return
		}
		entries[m.User.ID] = Entry{ID: m.User.ID, Name: m.User.Name, LastSeen: t.now()}
		snap := t.snapshotLocked(docID)
		t.mu.Unlock()
		cb(snap)
	})
	if err != nil {
		t.releaseDoc(docID)
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(t.sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if snap, changed := t.sweepOnce(docID); changed {
					cb(snap)
				}
			case <-done:
				return
			}
		}
	}()

	t.mu.Lock()
	initial := t.snapshotLocked(docID)
	t.mu.Unlock()
	go func() {
		select {
		case <-done:
		default:
			cb(initial)
		}
	}()

	var off sync.Once
	return func() {
		off.Do(func() {
			close(done)
			unsub()
			t.releaseDoc(docID)
		})
	}, nil
}

// releaseDoc drops one subscriber reference and frees the document's roster
// when nobody is left watching it.
func (t *Tracker) releaseDoc(docID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs[docID]--
	if t.subs[docID] <= 0 {
		delete(t.subs, docID)
		delete(t.docs, docID)
	}
}

// sweepOnce drops every entry whose age exceeds the expiry window and reports
// whether anything changed.
func (t *Tracker) sweepOnce(docID string) (map[string]Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.docs[docID]
	now := t.now()
	changed := false
	for id, e := range entries {
		if now-e.LastSeen > t.expiry.Milliseconds() {
			delete(entries, id)
			changed = true
		}
	}
	if !changed {
		return nil, false
	}
	return t.snapshotLocked(docID), true
}

func (t *Tracker) snapshotLocked(docID string) map[string]Entry {
	snap := make(map[string]Entry, len(t.docs[docID]))
	for id, e := range t.docs[docID] {
		snap[id] = e
	}
	return snap
}
