package socket

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 64
)

// Conn is the subset of *websocket.Conn the hub uses.
type Conn interface {
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
	Close() error
}

// ChatAccess answers whether a user may join a chat room.
type ChatAccess interface {
	UserHasChatAccess(ctx context.Context, userID, chatID string) (bool, error)
}

// Envelope is the wire format for server-to-client events.
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// clientCommand is what clients send: {"action":"join","room":"chat:<id>"}.
type clientCommand struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

// Client is one connected socket. Writes go through the send channel so a
// slow client never blocks the hub.
type Client struct {
	conn      Conn
	userID    string
	companyID string
	send      chan Envelope
	closeOnce sync.Once
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// Hub tracks room membership and fans events out to members.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	access ChatAccess
}

func NewHub(access ChatAccess) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		access: access,
	}
}

// Register adds the client and auto-joins its identity rooms.
func (h *Hub) Register(c *Client) {
	if c.userID != "" {
		h.join(c, "user:"+c.userID)
	}
	if c.companyID != "" {
		h.join(c, "company:"+c.companyID)
	}
	log.Printf("[SOCKET] Client connected (user=%s, company=%s)", c.userID, c.companyID)
}

// Unregister removes the client from every room.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	for room, members := range h.rooms {
		if _, ok := members[c]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	h.mu.Unlock()
	c.close()
	log.Printf("[SOCKET] Client disconnected (user=%s)", c.userID)
}

func (h *Hub) join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Emit sends an event to everyone in the room. Returns how many clients
// received it. Clients whose buffer is full are skipped, not blocked on.
func (h *Hub) Emit(room, event string, payload interface{}) int {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	delivered := 0
	env := Envelope{Event: event, Data: payload}
	for _, c := range members {
		select {
		case c.send <- env:
			delivered++
		default:
			log.Printf("[SOCKET] Dropping event %s for slow client (user=%s)", event, c.userID)
		}
	}
	return delivered
}

// HandleCommand applies a join/leave request from a client. Chat rooms are
// gated by the access check; identity rooms can't be joined by hand.
func (h *Hub) HandleCommand(ctx context.Context, c *Client, cmd clientCommand) {
	switch cmd.Action {
	case "join":
		if !strings.HasPrefix(cmd.Room, "chat:") {
			log.Printf("[SOCKET] Rejected join to room %q (user=%s)", cmd.Room, c.userID)
			return
		}
		chatID := strings.TrimPrefix(cmd.Room, "chat:")
		allowed, err := h.access.UserHasChatAccess(ctx, c.userID, chatID)
		if err != nil {
			log.Printf("[SOCKET] Chat access check failed for user %s on chat %s: %v", c.userID, chatID, err)
			return
		}
		if !allowed {
			log.Printf("[SOCKET] Denied join to chat %s for user %s", chatID, c.userID)
			return
		}
		h.join(c, cmd.Room)
	case "leave":
		h.leave(c, cmd.Room)
	default:
		log.Printf("[SOCKET] Unknown action %q from user %s", cmd.Action, c.userID)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin policy is enforced by the CORS layer in front of us.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the connection and runs the read/write pumps. Identity
// comes from query params; session auth lives at the gateway in front.
func (h *Hub) ServeWS(c *gin.Context) {
	userID := c.Query("userId")
	companyID := c.Query("companyId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[SOCKET] Upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn:      ws,
		userID:    userID,
		companyID: companyID,
		send:      make(chan Envelope, sendBufferSize),
	}
	h.Register(client)

	go h.writePump(client, ws)
	go h.readPump(client)
}

func (h *Hub) writePump(c *Client, ws *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()
	for {
		select {
		case env, ok := <-c.send:
			if !ok {
				ws.SetWriteDeadline(time.Now().Add(writeWait))
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(c *Client) {
	defer h.Unregister(c)
	for {
		var cmd clientCommand
		if err := c.conn.ReadJSON(&cmd); err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		h.HandleCommand(ctx, c, cmd)
		cancel()
	}
}
