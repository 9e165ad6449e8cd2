// Package websocket fans live collection snapshots out to connected clients
// and accepts optimistic mutations back from them.
package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"talad/identity"
	"talad/livesync"
	"talad/middleware"
	"talad/shake"
)

// Backend is the document store surface the hub needs: live reads, optimistic
// writes, and notification inserts.
type Backend interface {
	livesync.Store
	livesync.Remote
	Create(ctx context.Context, collection string, doc livesync.Document) (string, error)
}

// The collections every client is fed.
const (
	CollectionPosts         = "posts"
	CollectionNotifications = "notifications"
)

type Hub struct {
	backend  Backend
	resolver *identity.Resolver

	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	viewMu   sync.Mutex
	views    map[string]*livesync.Subscription
	mutators map[string]*livesync.Mutator
}

type Client struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
	hub    *Hub
	shaker *shake.Detector
}

func NewHub(backend Backend, resolver *identity.Resolver) *Hub {
	return &Hub{
		backend:    backend,
		resolver:   resolver,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		views:      make(map[string]*livesync.Subscription),
		mutators:   make(map[string]*livesync.Mutator),
	}
}

func (h *Hub) Start() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client registered. Total clients: %d", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client unregistered. Total clients: %d", total)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// StartSync opens the live views and begins broadcasting their snapshots.
// Posts and notifications are both ordered newest first.
func (h *Hub) StartSync(ctx context.Context) error {
	order := livesync.OrderSpec{Field: "createdAt", Descending: true}
	for _, collection := range []string{CollectionPosts, CollectionNotifications} {
		view, err := livesync.Subscribe(ctx, h.backend, collection, order, nil)
		if err != nil {
			return err
		}
		h.viewMu.Lock()
		h.views[collection] = view
		h.mutators[collection] = livesync.NewMutator(view, h.backend)
		h.viewMu.Unlock()
		go h.forward(collection, view)
	}
	return nil
}

// forward relays one view's snapshot stream to every client. A terminal
// stream error becomes a sync_error event; clients keep their last snapshot
// and may ask for a resync.
func (h *Hub) forward(collection string, view *livesync.Subscription) {
	for snap := range view.C {
		if snap.Err != nil {
			h.send("sync_error", map[string]interface{}{
				"collection": collection,
				"error":      snap.Err.Error(),
			})
			continue
		}
		h.send("snapshot", map[string]interface{}{
			"collection": collection,
			"docs":       snap.Docs,
		})
	}
}

func (h *Hub) send(msgType string, payload interface{}) {
	msg, err := json.Marshal(map[string]interface{}{
		"type":    msgType,
		"payload": payload,
	})
	if err != nil {
		log.Printf("Error marshaling WebSocket message: %v", err)
		return
	}
	h.broadcast <- msg
}

func (h *Hub) view(collection string) (*livesync.Subscription, *livesync.Mutator) {
	h.viewMu.Lock()
	defer h.viewMu.Unlock()
	return h.views[collection], h.mutators[collection]
}

// Resync reloads one view, re-establishing its watch if it had failed.
func (h *Hub) Resync(ctx context.Context, collection string) error {
	view, _ := h.view(collection)
	if view == nil {
		return livesync.ErrUnsubscribed
	}
	return view.Resync(ctx)
}

// Shutdown releases the live views. In-flight optimistic mutations complete
// independently.
func (h *Hub) Shutdown() {
	h.viewMu.Lock()
	views := make([]*livesync.Subscription, 0, len(h.views))
	for _, v := range h.views {
		views = append(views, v)
	}
	mutators := make([]*livesync.Mutator, 0, len(h.mutators))
	for _, m := range h.mutators {
		mutators = append(mutators, m)
	}
	h.viewMu.Unlock()

	for _, v := range views {
		v.Unsubscribe()
	}
	for _, m := range mutators {
		m.Wait()
	}
}

func (h *Hub) GetConnectedUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func Handler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "Token required", http.StatusUnauthorized)
			return
		}

		claims, err := middleware.ParseToken(token)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}

		client := &Client{
			conn:   conn,
			userID: claims.UserID,
			send:   make(chan []byte, 256),
			hub:    hub,
			shaker: shake.NewDefault(shake.MetricDeltaSum),
		}

		hub.register <- client

		welcome, _ := json.Marshal(map[string]interface{}{
			"type": "connected",
			"payload": map[string]interface{}{
				"userId": claims.UserID,
				"time":   time.Now().Unix(),
			},
		})
		client.send <- welcome

		go client.writePump()
		go client.readPump()
	}
}

type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("WebSocket message unmarshal error: %v", err)
			continue
		}

		switch msg.Type {
		case "subscribe":
			c.handleSubscribe(msg.Payload)
		case "resync":
			c.handleResync(msg.Payload)
		case "toggle_like":
			c.handleToggleLike(msg.Payload)
		case "add_comment":
			c.handleAddComment(msg.Payload)
		case "accel":
			c.handleAccel(msg.Payload)
		case "ping":
			c.reply("pong", map[string]interface{}{"time": time.Now().Unix()})
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) reply(msgType string, payload interface{}) {
	msg, err := json.Marshal(map[string]interface{}{
		"type":    msgType,
		"payload": payload,
	})
	if err != nil {
		log.Printf("Error marshaling reply: %v", err)
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// handleSubscribe acknowledges and immediately sends the current snapshot so
// a fresh client renders without waiting for the next change.
func (c *Client) handleSubscribe(raw json.RawMessage) {
	var payload struct {
		Collection string `json:"collection"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}

	view, _ := c.hub.view(payload.Collection)
	if view == nil {
		c.reply("sync_error", map[string]interface{}{
			"collection": payload.Collection,
			"error":      "unknown collection",
		})
		return
	}

	c.reply("subscribed", map[string]interface{}{
		"collection": payload.Collection,
		"userId":     c.userID,
	})
	c.reply("snapshot", map[string]interface{}{
		"collection": payload.Collection,
		"docs":       view.Latest(),
	})
}

func (c *Client) handleResync(raw json.RawMessage) {
	var payload struct {
		Collection string `json:"collection"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.hub.Resync(ctx, payload.Collection); err != nil {
		c.reply("sync_error", map[string]interface{}{
			"collection": payload.Collection,
			"error":      err.Error(),
		})
	}
}

// handleToggleLike runs the optimistic like toggle: the local snapshot is
// updated (and broadcast) immediately, the $addToSet/$pull write follows in
// the background, and a failure rolls back and reports.
func (c *Client) handleToggleLike(raw json.RawMessage) {
	var payload struct {
		PostID string `json:"postId"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.PostID == "" {
		return
	}

	view, mutator := c.hub.view(CollectionPosts)
	if view == nil {
		return
	}

	post, ok := view.Get(payload.PostID)
	if !ok {
		c.reply("mutation_error", map[string]interface{}{
			"action": "toggle_like",
			"error":  "post not found",
		})
		return
	}

	member := containsMember(post["likedBy"], c.userID)
	liking := !member
	ownerID, _ := post["userId"].(string)
	title, _ := post["title"].(string)
	postImage := firstString(post["mediaUrls"])

	mutator.ToggleMembership(payload.PostID, "likedBy", c.userID, member, func(err error) {
		if err != nil {
			c.reply("mutation_error", map[string]interface{}{
				"action": "toggle_like",
				"postId": payload.PostID,
				"error":  err.Error(),
			})
			return
		}
		if liking && ownerID != c.userID {
			c.hub.addNotification(c.userID, "liked your item: "+title, "new like", postImage, payload.PostID)
		}
	})
}

// handleAddComment appends a comment optimistically. Blank text is rejected
// locally: nothing is written and no notification is produced.
func (c *Client) handleAddComment(raw json.RawMessage) {
	var payload struct {
		PostID string `json:"postId"`
		Text   string `json:"text"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.PostID == "" {
		return
	}

	text := strings.TrimSpace(payload.Text)
	if text == "" {
		c.reply("mutation_error", map[string]interface{}{
			"action": "add_comment",
			"postId": payload.PostID,
			"error":  "comment text is required",
		})
		return
	}

	view, mutator := c.hub.view(CollectionPosts)
	if view == nil {
		return
	}

	post, ok := view.Get(payload.PostID)
	if !ok {
		c.reply("mutation_error", map[string]interface{}{
			"action": "add_comment",
			"error":  "post not found",
		})
		return
	}

	username := c.hub.displayName(c.userID)
	comment := map[string]interface{}{
		"username":  username,
		"text":      text,
		"timestamp": time.Now().Unix(),
	}

	ownerID, _ := post["userId"].(string)
	postImage := firstString(post["mediaUrls"])

	mutator.AppendItem(payload.PostID, "comments", comment, func(err error) {
		if err != nil {
			c.reply("mutation_error", map[string]interface{}{
				"action": "add_comment",
				"postId": payload.PostID,
				"error":  err.Error(),
			})
			return
		}
		if ownerID != c.userID {
			c.hub.addNotification(c.userID, text, "new comment", postImage, payload.PostID)
		}
	})
}

// handleAccel feeds one accelerometer sample into the client's shake
// detector and reports a shake event when it triggers.
func (c *Client) handleAccel(raw json.RawMessage) {
	var payload struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		Z float64 `json:"z"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}

	if c.shaker.Sample(payload.X, payload.Y, payload.Z, time.Now()) {
		c.reply("shake", map[string]interface{}{
			"time": time.Now().Unix(),
		})
	}
}

// addNotification inserts a feed entry; log-only on failure, the primary
// action already succeeded.
func (h *Hub) addNotification(actorID, message, status, postImage, postID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	actorName := h.displayName(actorID)
	actorImage := identity.FallbackAvatar
	if h.resolver != nil {
		if profile, err := h.resolver.Resolve(ctx, actorID); err == nil && profile.Avatar != "" {
			actorImage = profile.Avatar
		}
	}

	doc := livesync.Document{
		"actorImage": actorImage,
		"actorName":  actorName,
		"message":    message,
		"status":     status,
		"postImage":  postImage,
		"postId":     postID,
		"createdAt":  time.Now().Unix(),
	}
	if _, err := h.backend.Create(ctx, CollectionNotifications, doc); err != nil {
		log.Printf("notification write failed (%s): %v", status, err)
	}
}

func (h *Hub) displayName(userID string) string {
	if h.resolver == nil {
		return "Someone"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	profile, err := h.resolver.Resolve(ctx, userID)
	if err != nil || profile.Username == "" {
		return "Someone"
	}
	return profile.Username
}

func containsMember(set interface{}, member string) bool {
	list, _ := set.([]interface{})
	for _, item := range list {
		if s, ok := item.(string); ok && s == member {
			return true
		}
	}
	return false
}

func firstString(v interface{}) string {
	list, _ := v.([]interface{})
	if len(list) == 0 {
		return ""
	}
	s, _ := list[0].(string)
	return s
}
