package socket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"notehub/internal/store"
	"notehub/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Client struct {
	Hub   *Hub
	Conn  *websocket.Conn
	DocID string
	User  store.User
	Send  chan []byte

	// done is closed by the hub on unregister. The Send channel itself is
	// never closed: the hub may still be flushing a broadcast snapshot taken
	// before the client left, and a send on a closed channel would panic.
	done chan struct{}

	stopHeartbeat func()
}

func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, user store.User) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	docID := r.URL.Query().Get("docId")
	if docID == "" {
		logger.Sugar.Error("Missing docId")
		conn.Close()
		return
	}
	if _, ok := hub.dir.GetByID(docID); !ok {
		logger.Sugar.Warnf("Connection rejected: document %s not found", docID)
		conn.Close()
		return
	}

	client := &Client{
		Hub:   hub,
		Conn:  conn,
		DocID: docID,
		User:  user,
		Send:  make(chan []byte, 256),
		done:  make(chan struct{}),
	}
	client.Hub.Register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	for {
		_, rawMessage, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(rawMessage, &msg); err != nil {
			logger.Sugar.Errorf("Error unmarshalling message: %v", err)
			continue
		}

		// Server-authoritative fields so a client cannot edit or impersonate
		// outside its own connection.
		msg.DocID = c.DocID
		msg.UserID = c.User.ID

		c.Hub.Broadcast <- msg
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case message := <-c.Send:
			c.Conn.WriteMessage(websocket.TextMessage, message)
		case <-c.done:
			return // hub unregistered the client
		case <-ticker.C:
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return // connection is dead
			}
		}
	}
}
