package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notehub/internal/bus"
	"notehub/internal/directory"
	"notehub/internal/store"
)

// fixture wires two viewer instances (A and B) over one exchange and one
// shared store, the way separate open views share a durable store.
type fixture struct {
	exch *bus.Exchange
	busA bus.Bus
	svcA *directory.Service
	svcB *directory.Service
	doc  store.Document
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	exch := bus.NewExchange()
	busA := exch.Connect()
	svcA := directory.NewService(st, busA, store.User{ID: "user-a", Name: "Calm Otter"})
	svcB := directory.NewService(st, exch.Connect(), store.User{ID: "user-b", Name: "Brisk Lynx"})

	doc, err := svcA.Create("user-a")
	require.NoError(t, err)

	return &fixture{exch: exch, busA: busA, svcA: svcA, svcB: svcB, doc: doc}
}

func TestOpenUnknownDocument(t *testing.T) {
	f := newFixture(t)
	_, err := Open(f.svcA, f.busA, "missing", Callbacks{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoteEditOverwritesView(t *testing.T) {
	f := newFixture(t)

	updates := make(chan View, 4)
	s, err := Open(f.svcA, f.busA, f.doc.ID, Callbacks{OnRemoteUpdate: func(v View) { updates <- v }})
	require.NoError(t, err)
	defer s.Close()

	title, content := "Plan", "<p>agenda</p>"
	require.NoError(t, f.svcB.Save(f.doc.ID, directory.Patch{Title: &title, Content: &content}))

	select {
	case v := <-updates:
		assert.Equal(t, "Plan", v.Title)
		assert.Equal(t, "<p>agenda</p>", v.Content)
	case <-time.After(time.Second):
		t.Fatal("expected a remote update")
	}
	assert.Equal(t, "Plan", s.View().Title)
}

func TestOwnSaveNeverEchoesThroughSharedBus(t *testing.T) {
	f := newFixture(t)

	updates := make(chan View, 4)
	s, err := Open(f.svcA, f.busA, f.doc.ID, Callbacks{OnRemoteUpdate: func(v View) { updates <- v }})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.EditTitle("typing..."))

	select {
	case <-updates:
		t.Fatal("a session must not see its own instance's broadcast")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, "typing...", s.View().Title)
}

func TestSelfEchoSuppressedByUserID(t *testing.T) {
	f := newFixture(t)
	s, err := Open(f.svcA, f.busA, f.doc.ID, Callbacks{})
	require.NoError(t, err)
	defer s.Close()

	before := s.View()
	// Same user id, e.g. the same person's broadcast relayed from another view.
	s.applyContent(bus.NewContentMessage("clobber", "clobber", 999, 999, "user-a"))
	assert.Equal(t, before, s.View())
}

func TestSelfEchoSuppressedByClientTs(t *testing.T) {
	f := newFixture(t)
	s, err := Open(f.svcA, f.busA, f.doc.ID, Callbacks{})
	require.NoError(t, err)
	defer s.Close()

	var ts int64 = 5000
	s.now = func() int64 { ts++; return ts }

	require.NoError(t, s.EditTitle("draft"))
	marker := ts

	// An echo round-trip carries the marker even if the user id was lost.
	s.applyContent(bus.NewContentMessage("stale", "stale", marker, marker, "someone-else"))
	assert.Equal(t, "draft", s.View().Title, "marker match must suppress the echo")

	// A genuinely fresh remote edit still lands.
	s.applyContent(bus.NewContentMessage("fresh", "fresh", marker+100, marker+100, "someone-else"))
	assert.Equal(t, "fresh", s.View().Title)
}

func TestRapidEditsAllLeaveMarkers(t *testing.T) {
	f := newFixture(t)
	s, err := Open(f.svcA, f.busA, f.doc.ID, Callbacks{})
	require.NoError(t, err)
	defer s.Close()

	var ts int64 = 7000
	s.now = func() int64 { ts++; return ts }

	require.NoError(t, s.EditTitle("one"))
	first := ts
	require.NoError(t, s.EditTitle("two"))
	second := ts

	s.applyContent(bus.NewContentMessage("echo1", "x", first, first, "relay"))
	s.applyContent(bus.NewContentMessage("echo2", "x", second, second, "relay"))
	assert.Equal(t, "two", s.View().Title, "echoes of both rapid edits must be suppressed")
}

func TestFocusedFieldIsLeftAlone(t *testing.T) {
	f := newFixture(t)
	s, err := Open(f.svcA, f.busA, f.doc.ID, Callbacks{})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.EditContent("<p>mine</p>"))
	s.SetFocus(FieldBody)

	s.applyContent(bus.NewContentMessage("Their Title", "<p>theirs</p>", 42, 42, "user-b"))

	v := s.View()
	assert.Equal(t, "Their Title", v.Title, "unfocused field is fully replaced")
	assert.Equal(t, "<p>mine</p>", v.Content, "focused field must not be disrupted")
	assert.Equal(t, int64(42), v.UpdatedAt)
}

func TestDeletionClosesSession(t *testing.T) {
	f := newFixture(t)

	deleted := make(chan struct{}, 1)
	s, err := Open(f.svcA, f.busA, f.doc.ID, Callbacks{OnDeleted: func() { deleted <- struct{}{} }})
	require.NoError(t, err)

	require.NoError(t, f.svcB.Remove(f.doc.ID))

	select {
	case <-deleted:
	case <-time.After(time.Second):
		t.Fatal("expected the deletion callback")
	}
	assert.True(t, s.Deleted())

	// The session is closed: further edits are dropped.
	require.NoError(t, s.EditTitle("too late"))
	assert.NotEqual(t, "too late", s.View().Title)
}

func TestCloseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	s, err := Open(f.svcA, f.busA, f.doc.ID, Callbacks{})
	require.NoError(t, err)

	s.Close()
	s.Close()
}
