package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talad/identity"
	"talad/livesync"
	"talad/middleware"
	"talad/store"
)

const testSecret = "hub-test-secret"

func signToken(t *testing.T, userID string) string {
	t.Helper()
	claims := middleware.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

type event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// readUntil reads events off the connection until one matches msgType.
func readUntil(t *testing.T, conn *gorilla.Conn, msgType string) event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var ev event
		require.NoError(t, conn.ReadJSON(&ev), "waiting for %q", msgType)
		if ev.Type == msgType {
			return ev
		}
	}
}

func writeJSON(t *testing.T, conn *gorilla.Conn, msgType string, payload any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"type": msgType, "payload": payload}))
}

func newTestHub(t *testing.T) (*Hub, *store.Memory, *httptest.Server) {
	t.Helper()
	t.Setenv("JWT_SECRET", testSecret)

	mem := store.NewMemory()
	resolver := identity.NewResolver(func(ctx context.Context, id string) (identity.Profile, error) {
		return identity.Profile{ID: id, Username: "user-" + id, Avatar: identity.FallbackAvatar}, nil
	})

	hub := NewHub(mem, resolver)
	go hub.Start()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, hub.StartSync(ctx))
	t.Cleanup(func() {
		hub.Shutdown()
		cancel()
	})

	srv := httptest.NewServer(http.HandlerFunc(Handler(hub)))
	t.Cleanup(srv.Close)
	return hub, mem, srv
}

func dial(t *testing.T, srv *httptest.Server, userID string) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + signToken(t, userID)
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHandlerRejectsBadToken(t *testing.T) {
	_, _, srv := newTestHub(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = gorilla.DefaultDialer.Dial(url+"?token=not-a-jwt", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSubscribeDeliversCurrentSnapshot(t *testing.T) {
	_, mem, srv := newTestHub(t)
	_, err := mem.Create(context.Background(), CollectionPosts,
		livesync.Document{"_id": "p1", "title": "sneakers", "createdAt": int64(100)})
	require.NoError(t, err)

	conn := dial(t, srv, "u1")
	readUntil(t, conn, "connected")

	writeJSON(t, conn, "subscribe", map[string]any{"collection": CollectionPosts})

	ev := readUntil(t, conn, "snapshot")
	var payload struct {
		Collection string              `json:"collection"`
		Docs       []livesync.Document `json:"docs"`
	}
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, CollectionPosts, payload.Collection)
	require.Len(t, payload.Docs, 1)
	assert.Equal(t, "p1", payload.Docs[0].ID())
}

func TestStoreChangeIsBroadcast(t *testing.T) {
	_, mem, srv := newTestHub(t)

	conn := dial(t, srv, "u1")
	readUntil(t, conn, "connected")

	_, err := mem.Create(context.Background(), CollectionPosts,
		livesync.Document{"_id": "p1", "title": "leather bag", "createdAt": int64(100)})
	require.NoError(t, err)

	ev := readUntil(t, conn, "snapshot")
	var payload struct {
		Collection string              `json:"collection"`
		Docs       []livesync.Document `json:"docs"`
	}
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, CollectionPosts, payload.Collection)
	require.Len(t, payload.Docs, 1)
}

func TestToggleLikeWritesThroughAndNotifies(t *testing.T) {
	_, mem, srv := newTestHub(t)
	_, err := mem.Create(context.Background(), CollectionPosts, livesync.Document{
		"_id": "p1", "userId": "owner", "title": "sneakers",
		"likedBy": []any{}, "createdAt": int64(100),
	})
	require.NoError(t, err)

	conn := dial(t, srv, "liker")
	readUntil(t, conn, "connected")

	writeJSON(t, conn, "toggle_like", map[string]any{"postId": "p1"})

	// The optimistic apply broadcasts a snapshot with the like in place.
	require.Eventually(t, func() bool {
		doc, ok := mem.Get(CollectionPosts, "p1")
		if !ok {
			return false
		}
		list, _ := doc["likedBy"].([]any)
		return len(list) == 1 && list[0] == "liker"
	}, 2*time.Second, 20*time.Millisecond)

	// A like on someone else's post produces a notification document.
	require.Eventually(t, func() bool {
		docs, err := mem.Load(context.Background(), CollectionNotifications)
		return err == nil && len(docs) == 1
	}, 2*time.Second, 20*time.Millisecond)

	docs, err := mem.Load(context.Background(), CollectionNotifications)
	require.NoError(t, err)
	assert.Equal(t, "new like", docs[0]["status"])
	assert.Equal(t, "user-liker", docs[0]["actorName"])
}

func TestToggleLikeUnknownPostReportsError(t *testing.T) {
	_, _, srv := newTestHub(t)

	conn := dial(t, srv, "u1")
	readUntil(t, conn, "connected")

	writeJSON(t, conn, "toggle_like", map[string]any{"postId": "missing"})

	ev := readUntil(t, conn, "mutation_error")
	var payload struct {
		Action string `json:"action"`
	}
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, "toggle_like", payload.Action)
}

func TestAddCommentRejectsBlankText(t *testing.T) {
	_, mem, srv := newTestHub(t)
	_, err := mem.Create(context.Background(), CollectionPosts, livesync.Document{
		"_id": "p1", "userId": "owner", "comments": []any{}, "createdAt": int64(100),
	})
	require.NoError(t, err)

	conn := dial(t, srv, "u1")
	readUntil(t, conn, "connected")

	writeJSON(t, conn, "add_comment", map[string]any{"postId": "p1", "text": "   "})

	ev := readUntil(t, conn, "mutation_error")
	var payload struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, "comment text is required", payload.Error)

	// Nothing was written.
	doc, _ := mem.Get(CollectionPosts, "p1")
	comments, _ := doc["comments"].([]any)
	assert.Empty(t, comments)
}

func TestAddCommentWritesThrough(t *testing.T) {
	_, mem, srv := newTestHub(t)
	_, err := mem.Create(context.Background(), CollectionPosts, livesync.Document{
		"_id": "p1", "userId": "owner", "title": "sneakers",
		"comments": []any{}, "createdAt": int64(100),
	})
	require.NoError(t, err)

	conn := dial(t, srv, "buyer")
	readUntil(t, conn, "connected")

	writeJSON(t, conn, "add_comment", map[string]any{"postId": "p1", "text": "  still available?  "})

	require.Eventually(t, func() bool {
		doc, ok := mem.Get(CollectionPosts, "p1")
		if !ok {
			return false
		}
		comments, _ := doc["comments"].([]any)
		return len(comments) == 1
	}, 2*time.Second, 20*time.Millisecond)

	doc, _ := mem.Get(CollectionPosts, "p1")
	comments, _ := doc["comments"].([]any)
	comment, ok := comments[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "still available?", comment["text"])
	assert.Equal(t, "user-buyer", comment["username"])
}

func TestAccelTriggersShakeEvent(t *testing.T) {
	_, _, srv := newTestHub(t)

	conn := dial(t, srv, "u1")
	readUntil(t, conn, "connected")

	// First sample establishes the baseline, the second is a violent delta.
	writeJSON(t, conn, "accel", map[string]any{"x": 0.0, "y": 0.0, "z": 9.8})
	writeJSON(t, conn, "accel", map[string]any{"x": 4.0, "y": 4.0, "z": 9.8})

	readUntil(t, conn, "shake")
}

func TestPingPong(t *testing.T) {
	_, _, srv := newTestHub(t)

	conn := dial(t, srv, "u1")
	readUntil(t, conn, "connected")

	writeJSON(t, conn, "ping", map[string]any{})
	readUntil(t, conn, "pong")
}

func TestResyncUnknownCollection(t *testing.T) {
	hub, _, _ := newTestHub(t)
	err := hub.Resync(context.Background(), "unknown")
	assert.Error(t, err)
}
