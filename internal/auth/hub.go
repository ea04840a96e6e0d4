package auth

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
)

const (
	EventSignedIn       = "SIGNED_IN"
	EventSignedOut      = "SIGNED_OUT"
	EventTokenRefreshed = "TOKEN_REFRESHED"
	EventUserUpdated    = "USER_UPDATED"
)

// SessionEvent is pushed to every open events stream of a user.
type SessionEvent struct {
	Type string   `json:"event"`
	User *Profile `json:"user,omitempty"`
	At   int64    `json:"at"`
}

const (
	subscriberBuffer = 8
	writeWait        = 10 * time.Second
	pingPeriod       = 30 * time.Second
	pongWait         = 2 * pingPeriod
)

// Hub fans session changes out to subscribers keyed by user id.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan SessionEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[chan SessionEvent]struct{}{}}
}

// Subscribe registers a buffered channel for userID. The returned func
// unregisters and closes it.
func (h *Hub) Subscribe(userID string) (<-chan SessionEvent, func()) {
	ch := make(chan SessionEvent, subscriberBuffer)
	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = map[chan SessionEvent]struct{}{}
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish never blocks; a subscriber with a full buffer misses the event.
func (h *Hub) Publish(userID string, ev SessionEvent) {
	if ev.At == 0 {
		ev.At = time.Now().Unix()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[userID] {
		select {
		case ch <- ev:
		default:
			log.Printf("hub: dropping %s for %s (slow subscriber)", ev.Type, userID)
		}
	}
}

func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origins are enforced by the CORS layer and the token
	CheckOrigin: func(r *http.Request) bool { return true },
}

// EventsHandler upgrades to a websocket and streams the caller's session
// events. The stream ends after SIGNED_OUT.
func EventsHandler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := authmw.SubjectFromContext(r.Context())
		if sub == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("events: upgrade: %v", err)
			return
		}
		events, cancel := h.Subscribe(sub)
		defer cancel()
		defer conn.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			conn.SetReadLimit(512)
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(pongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()
		for {
			select {
			case <-done:
				return
			case ev := <-events:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
				if ev.Type == EventSignedOut {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "signed out"),
						time.Now().Add(writeWait))
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}
}
