package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
)

func TestHubPublishSubscribe(t *testing.T) {
	h := NewHub()
	a, cancelA := h.Subscribe("u1")
	b, cancelB := h.Subscribe("u1")
	other, cancelOther := h.Subscribe("u2")
	defer cancelOther()

	h.Publish("u1", SessionEvent{Type: EventSignedIn})
	for _, ch := range []<-chan SessionEvent{a, b} {
		select {
		case ev := <-ch:
			if ev.Type != EventSignedIn || ev.At == 0 {
				t.Fatalf("event = %+v", ev)
			}
		default:
			t.Fatalf("subscriber missed event")
		}
	}
	select {
	case ev := <-other:
		t.Fatalf("u2 got %+v", ev)
	default:
	}

	cancelA()
	cancelA()
	if n := h.Subscribers("u1"); n != 1 {
		t.Fatalf("subscribers = %d", n)
	}
	if _, ok := <-a; ok {
		t.Fatalf("cancelled channel still open")
	}
	cancelB()
	if n := h.Subscribers("u1"); n != 0 {
		t.Fatalf("subscribers after cancel = %d", n)
	}
	// publishing with nobody listening is fine
	h.Publish("u1", SessionEvent{Type: EventSignedOut})
}

func TestHubDropsWhenFull(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("u1")
	defer cancel()
	for i := 0; i < subscriberBuffer+3; i++ {
		h.Publish("u1", SessionEvent{Type: EventUserUpdated})
	}
	if len(ch) != subscriberBuffer {
		t.Fatalf("buffered = %d", len(ch))
	}
}

func TestEventsHandlerStreams(t *testing.T) {
	tokens := authmw.NewAuthService("test-secret", time.Hour, nil)
	hub := NewHub()
	srv := httptest.NewServer(authmw.JWTMiddleware(tokens)(EventsHandler(hub)))
	defer srv.Close()

	tok, _, _ := tokens.IssueJWT("u1", "student", "u1@example.com")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?access_token=" + tok
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	waitFor(t, func() bool { return hub.Subscribers("u1") == 1 })
	hub.Publish("u1", SessionEvent{Type: EventTokenRefreshed})
	hub.Publish("u1", SessionEvent{Type: EventSignedOut})

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev SessionEvent
	if err := conn.ReadJSON(&ev); err != nil || ev.Type != EventTokenRefreshed {
		t.Fatalf("first event = %+v (%v)", ev, err)
	}
	if err := conn.ReadJSON(&ev); err != nil || ev.Type != EventSignedOut {
		t.Fatalf("second event = %+v (%v)", ev, err)
	}
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
	waitFor(t, func() bool { return hub.Subscribers("u1") == 0 })
}

func TestEventsHandlerRejectsAnonymous(t *testing.T) {
	tokens := authmw.NewAuthService("test-secret", time.Hour, nil)
	srv := httptest.NewServer(authmw.JWTMiddleware(tokens)(EventsHandler(NewHub())))
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err == nil {
		t.Fatalf("anonymous dial succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("resp = %+v", resp)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
