// Package socket bridges remote viewers onto the change bus over websockets.
// Each connected client joins a per-document room; edits flow through the
// directory service and come back to every other viewer via the bus.
package socket

import (
	"encoding/json"
	"sync"
	"time"

	"notehub/internal/bus"
	"notehub/internal/directory"
	"notehub/internal/presence"
	"notehub/internal/store"
	"notehub/pkg/avatar"
	"notehub/pkg/logger"
)

const (
	ContentType       = "content"        // full title/content snapshot
	DeletedType       = "deleted"        // document removed
	PresenceStateType = "presence_state" // merged viewer mapping for a room
	DocsUpdatedType   = "docs-updated"   // index changed, re-fetch the list
	HeartbeatType     = "heartbeat"      // client-driven presence refresh
)

type WSMessage struct {
	Type    string          `json:"type"`
	DocID   string          `json:"document_id"`
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
}

// ViewerEntry is one viewer in a presence_state payload, with the avatar
// fields the client renders.
type ViewerEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	LastSeen int64  `json:"lastSeen"`
	Color    string `json:"color"`
	Initials string `json:"initials"`
}

// EditPayload is what a client sends with a content edit.
type EditPayload struct {
	Title    *string `json:"title,omitempty"`
	Content  *string `json:"content,omitempty"`
	ClientTs int64   `json:"clientTs,omitempty"`
}

type room struct {
	clients   map[*Client]bool
	teardowns []func()
	// remote holds presence entries learned from the bus; local users are the
	// room's own websocket clients, merged in at emit time.
	remote map[string]presence.Entry
}

type Hub struct {
	dir     *directory.Service
	bus     bus.Bus
	tracker *presence.Tracker

	Broadcast  chan WSMessage
	Register   chan *Client
	Unregister chan *Client

	mu    sync.Mutex
	rooms map[string]*room

	offIndex  func()
	closeOnce sync.Once
}

// NewHub wires the hub onto its own bus connection, distinct from the
// directory's, so directory broadcasts reach the hub's subscriptions.
func NewHub(dir *directory.Service, b bus.Bus, tracker *presence.Tracker) *Hub {
	h := &Hub{
		dir:        dir,
		bus:        b,
		tracker:    tracker,
		Broadcast:  make(chan WSMessage),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		rooms:      make(map[string]*room),
	}
	if off, err := b.Subscribe(bus.DocsIndexChannel, h.onDocsUpdated); err != nil {
		logger.Sugar.Warnf("Index channel unavailable, list refreshes degrade to polling: %v", err)
	} else {
		h.offIndex = off
	}
	return h
}

// Close releases every bus subscription the hub holds. Connected clients keep
// their sockets; they just stop receiving bus traffic. Safe to call more than
// once.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		if h.offIndex != nil {
			h.offIndex()
		}
		h.mu.Lock()
		for _, rm := range h.rooms {
			for _, off := range rm.teardowns {
				off()
			}
			rm.teardowns = nil
		}
		h.mu.Unlock()
	})
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			rm := h.rooms[client.DocID]
			if rm == nil {
				rm = &room{clients: make(map[*Client]bool), remote: make(map[string]presence.Entry)}
				h.rooms[client.DocID] = rm
				h.openRoomLocked(client.DocID, rm)
			}
			rm.clients[client] = true
			h.mu.Unlock()

			// Keep other instances aware of this viewer for as long as the
			// connection lives.
			client.stopHeartbeat = h.tracker.StartHeartbeat(client.DocID, client.User)

			// The new client gets the current document state right away.
			if doc, ok := h.dir.GetByID(client.DocID); ok {
				snapshot, _ := json.Marshal(bus.NewContentMessage(doc.Title, doc.Content, doc.UpdatedAt, 0, ""))
				h.sendTo(client, WSMessage{Type: ContentType, DocID: client.DocID, Payload: snapshot})
			}
			h.broadcastPresence(client.DocID)

		case client := <-h.Unregister:
			h.mu.Lock()
			rm := h.rooms[client.DocID]
			stillOpen := false
			if rm != nil && rm.clients[client] {
				delete(rm.clients, client)
				close(client.done)
				if len(rm.clients) == 0 {
					for _, off := range rm.teardowns {
						off()
					}
					delete(h.rooms, client.DocID)
					logger.Sugar.Infof("Closed empty room: %s", client.DocID)
				} else {
					stillOpen = true
				}
			}
			h.mu.Unlock()

			if client.stopHeartbeat != nil {
				client.stopHeartbeat()
			}
			if stillOpen {
				h.broadcastPresence(client.DocID)
			}

		case msg := <-h.Broadcast:
			switch msg.Type {
			case ContentType:
				var edit EditPayload
				if err := json.Unmarshal(msg.Payload, &edit); err != nil {
					logger.Sugar.Warnf("Dropping malformed edit from %s: %v", msg.UserID, err)
					continue
				}
				patch := directory.Patch{Title: edit.Title, Content: edit.Content, ClientTs: edit.ClientTs, UserID: msg.UserID}
				if err := h.dir.Save(msg.DocID, patch); err != nil {
					logger.Sugar.Errorf("Failed to save edit on %s: %v", msg.DocID, err)
				}
				// Fan-out to the other clients happens when the directory's
				// broadcast comes back over the bus.
			case HeartbeatType:
				u := h.roomUser(msg.DocID, msg.UserID)
				if err := h.tracker.SendHeartbeat(msg.DocID, u); err != nil {
					logger.Sugar.Warnf("Failed to relay heartbeat for %s: %v", msg.DocID, err)
				}
			}
		}
	}
}

// openRoomLocked attaches the room to the document's bus channels. Called with
// h.mu held when the first client joins.
func (h *Hub) openRoomLocked(docID string, rm *room) {
	offDoc, err := h.bus.Subscribe(bus.DocChannel(docID), func(raw []byte) { h.onDocMessage(docID, raw) })
	if err != nil {
		logger.Sugar.Warnf("Content channel for %s unavailable, room is local-only: %v", docID, err)
	} else {
		rm.teardowns = append(rm.teardowns, offDoc)
	}

	offPresence, err := h.tracker.Subscribe(docID, func(entries map[string]presence.Entry) {
		h.onRemotePresence(docID, entries)
	})
	if err != nil {
		logger.Sugar.Warnf("Presence channel for %s unavailable: %v", docID, err)
	} else {
		rm.teardowns = append(rm.teardowns, offPresence)
	}
}

func (h *Hub) onDocMessage(docID string, raw []byte) {
	switch bus.Kind(raw) {
	case bus.TypeContent:
		m, err := bus.DecodeContent(raw)
		if err != nil {
			logger.Sugar.Warnf("Dropping malformed content message for %s: %v", docID, err)
			return
		}
		// The editing user's own clients skip the echo, same as a session.
		h.sendToRoom(docID, m.UserID, WSMessage{Type: ContentType, DocID: docID, UserID: m.UserID, Payload: raw})
	case bus.TypeDeleted:
		h.sendToRoom(docID, "", WSMessage{Type: DeletedType, DocID: docID, Payload: raw})
	}
}

func (h *Hub) onRemotePresence(docID string, entries map[string]presence.Entry) {
	h.mu.Lock()
	if rm := h.rooms[docID]; rm != nil {
		rm.remote = entries
	}
	h.mu.Unlock()
	h.broadcastPresence(docID)
}

func (h *Hub) onDocsUpdated(raw []byte) {
	if bus.Kind(raw) != bus.TypeDocsUpdated {
		return
	}
	msg := WSMessage{Type: DocsUpdatedType, Payload: raw}
	h.mu.Lock()
	var clients []*Client
	for _, rm := range h.rooms {
		for c := range rm.clients {
			clients = append(clients, c)
		}
	}
	h.mu.Unlock()
	h.deliver(clients, msg)
}

// broadcastPresence sends the merged mapping for a room: entries heard over
// the bus plus this hub's own connected viewers.
func (h *Hub) broadcastPresence(docID string) {
	h.mu.Lock()
	rm := h.rooms[docID]
	if rm == nil {
		h.mu.Unlock()
		return
	}
	merged := make(map[string]ViewerEntry, len(rm.remote)+len(rm.clients))
	for id, e := range rm.remote {
		merged[id] = viewerEntry(e)
	}
	now := time.Now().UnixMilli()
	for c := range rm.clients {
		merged[c.User.ID] = viewerEntry(presence.Entry{ID: c.User.ID, Name: c.User.Name, LastSeen: now})
	}
	clients := make([]*Client, 0, len(rm.clients))
	for c := range rm.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	payload, err := json.Marshal(merged)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling presence state: %v", err)
		return
	}
	h.deliver(clients, WSMessage{Type: PresenceStateType, DocID: docID, Payload: payload})
}

func (h *Hub) sendToRoom(docID, excludeUserID string, msg WSMessage) {
	h.mu.Lock()
	rm := h.rooms[docID]
	if rm == nil {
		h.mu.Unlock()
		return
	}
	clients := make([]*Client, 0, len(rm.clients))
	for c := range rm.clients {
		if excludeUserID != "" && c.User.ID == excludeUserID {
			continue
		}
		clients = append(clients, c)
	}
	h.mu.Unlock()
	h.deliver(clients, msg)
}

func (h *Hub) sendTo(client *Client, msg WSMessage) {
	h.deliver([]*Client{client}, msg)
}

func (h *Hub) deliver(clients []*Client, msg WSMessage) {
	raw, err := json.Marshal(msg)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling websocket message: %v", err)
		return
	}
	for _, c := range clients {
		select {
		case <-c.done:
			// The client left after the snapshot was taken.
		case c.Send <- raw:
		default:
			logger.Sugar.Warnf("Client %s's send buffer is full, dropping message", c.User.ID)
		}
	}
}

func viewerEntry(e presence.Entry) ViewerEntry {
	return ViewerEntry{
		ID:       e.ID,
		Name:     e.Name,
		LastSeen: e.LastSeen,
		Color:    avatar.ColorForID(e.ID),
		Initials: avatar.Initials(e.Name),
	}
}

func (h *Hub) roomUser(docID, userID string) store.User {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rm := h.rooms[docID]; rm != nil {
		for c := range rm.clients {
			if c.User.ID == userID {
				return c.User
			}
		}
	}
	return store.User{ID: userID, Name: userID}
}
