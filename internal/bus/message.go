package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"notehub/internal/store"
)

// Message kinds carried on the bus. Every message is a flat JSON object with a
// "type" discriminator and a fixed field set per kind.
const (
	TypeContent     = "content"      // full title/content snapshot of a document
	TypeDeleted     = "deleted"      // document removed from the set
	TypePresence    = "presence"     // viewer heartbeat
	TypeDocsUpdated = "docs-updated" // index changed, re-fetch the list
)

// Channel names. One content channel and one presence channel per document,
// plus a single global index channel.
const DocsIndexChannel = "docs-index"

func DocChannel(id string) string      { return "doc-" + id }
func PresenceChannel(id string) string { return "presence-" + id }

type ContentMessage struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	UpdatedAt int64  `json:"updatedAt"`
	ClientTs  int64  `json:"clientTs"`
	UserID    string `json:"userId"`
}

type DeletedMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type PresenceMessage struct {
	Type string     `json:"type"`
	User store.User `json:"user"`
}

type DocsUpdatedMessage struct {
	Type string `json:"type"`
	Ts   int64  `json:"ts"`
}

func NewContentMessage(title, content string, updatedAt, clientTs int64, userID string) ContentMessage {
	return ContentMessage{Type: TypeContent, Title: title, Content: content, UpdatedAt: updatedAt, ClientTs: clientTs, UserID: userID}
}

func NewDeletedMessage(id string) DeletedMessage {
	return DeletedMessage{Type: TypeDeleted, ID: id}
}

func NewPresenceMessage(u store.User) PresenceMessage {
	return PresenceMessage{Type: TypePresence, User: store.User{ID: u.ID, Name: u.Name}}
}

func NewDocsUpdatedMessage() DocsUpdatedMessage {
	return DocsUpdatedMessage{Type: TypeDocsUpdated, Ts: time.Now().UnixMilli()}
}

// Kind peeks at the type discriminator without decoding the full message.
// Unparsable data yields an empty kind; receivers drop it.
func Kind(raw []byte) string {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.Type
}

func decodeAs(raw []byte, want string, v any) error {
	if got := Kind(raw); got != want {
		return fmt.Errorf("unexpected message type %q, want %q", got, want)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s message: %w", want, err)
	}
	return nil
}

func DecodeContent(raw []byte) (ContentMessage, error) {
	var m ContentMessage
	err := decodeAs(raw, TypeContent, &m)
	return m, err
}

func DecodeDeleted(raw []byte) (DeletedMessage, error) {
	var m DeletedMessage
	err := decodeAs(raw, TypeDeleted, &m)
	return m, err
}

func DecodePresence(raw []byte) (PresenceMessage, error) {
	var m PresenceMessage
	err := decodeAs(raw, TypePresence, &m)
	return m, err
}

func DecodeDocsUpdated(raw []byte) (DocsUpdatedMessage, error) {
	var m DocsUpdatedMessage
	err := decodeAs(raw, TypeDocsUpdated, &m)
	return m, err
}
