package trade

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

func TestWSHub_BroadcastReachesClient(t *testing.T) {
	hub := NewWSHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	update := PoolUpdate{
		Type:      "trade_executed",
		PoolID:    "p1",
		Action:    "open_long",
		SpotPrice: decimal.NewNullDecimal(decimal.RequireFromString("0.95")),
	}

	// Registration races the dial returning, so resend until one arrives.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				hub.Broadcast(update)
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got PoolUpdate
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.PoolID != "p1" || !got.SpotPrice.Valid || !got.SpotPrice.Decimal.Equal(decimal.RequireFromString("0.95")) {
		t.Fatalf("expected the pool update, got %+v", got)
	}
	if got.APR.Valid {
		t.Errorf("expected null apr, got %s", got.APR.Decimal)
	}
}

func TestWSHub_StopsWithContext(t *testing.T) {
	hub := NewWSHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	// Broadcasting after shutdown must not block.
	hub.Broadcast(PoolUpdate{PoolID: "p1"})
}
