package broker_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tradedesk/broker-engine/internal/broker"
)

func wsDial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func wsRead(t *testing.T, conn *websocket.Conn) broker.WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg broker.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return msg
}

func TestWSHub_Broadcast(t *testing.T) {
	hub := broker.NewWSHub()
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	c1 := wsDial(t, url)
	defer c1.Close()
	c2 := wsDial(t, url)
	defer c2.Close()

	// Registration runs on the hub goroutine after the upgrade.
	time.Sleep(50 * time.Millisecond)

	hub.Broadcast(broker.WSMessage{Type: "quote", Symbol: "AAPL", Price: "190.50"})

	for _, conn := range []*websocket.Conn{c1, c2} {
		msg := wsRead(t, conn)
		if msg.Type != "quote" || msg.Symbol != "AAPL" || msg.Price != "190.50" {
			t.Errorf("unexpected message: %+v", msg)
		}
	}
}

func TestWSHub_DeadClientRemoved(t *testing.T) {
	hub := broker.NewWSHub()
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	alive := wsDial(t, url)
	defer alive.Close()
	dead := wsDial(t, url)

	time.Sleep(50 * time.Millisecond)
	dead.Close()

	// The surviving client keeps receiving while the closed one is dropped.
	for i := 0; i < 5; i++ {
		hub.Broadcast(broker.WSMessage{Type: "quote", Symbol: "AAPL", Price: strconv.Itoa(i)})
	}
	for i := 0; i < 5; i++ {
		msg := wsRead(t, alive)
		if msg.Symbol != "AAPL" {
			t.Fatalf("message %d: unexpected %+v", i, msg)
		}
	}
}
