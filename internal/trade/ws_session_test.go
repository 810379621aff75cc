package trade_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/RutamBhagat/project-1-probo-v0/internal/trade"
)

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, req trade.WSRequest) map[string]any {
	t.Helper()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var reply map[string]any
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	if reply["id"] != req.ID {
		t.Fatalf("expected reply to %q, got %v", req.ID, reply["id"])
	}
	return reply
}

func TestWebSocket_OrderEntry(t *testing.T) {
	router := newTestEnv(t, false)
	seed(t, router)
	srv := httptest.NewServer(router)
	defer srv.Close()

	conn := dialWS(t, srv)

	reply := roundTrip(t, conn, trade.WSRequest{
		ID:      "1",
		Action:  "mint",
		Payload: []byte(`{"userId":"alice","stockSymbol":"` + sym + `","quantity":10,"price":1000}`),
	})
	if reply["ok"] != true {
		t.Fatalf("mint failed: %v", reply)
	}

	reply = roundTrip(t, conn, trade.WSRequest{
		ID:      "2",
		Action:  "sell",
		Payload: []byte(`{"userId":"alice","stockSymbol":"` + sym + `","quantity":10,"price":1100,"stockType":"yes"}`),
	})
	if reply["ok"] != true {
		t.Fatalf("sell failed: %v", reply)
	}

	reply = roundTrip(t, conn, trade.WSRequest{
		ID:      "3",
		Action:  "buy",
		Payload: []byte(`{"userId":"bob","stockSymbol":"` + sym + `","quantity":10,"price":1100,"stockType":"yes"}`),
	})
	data, ok := reply["data"].(map[string]any)
	if reply["ok"] != true || !ok {
		t.Fatalf("buy failed: %v", reply)
	}
	if data["status"] != "FILLED" {
		t.Errorf("expected FILLED, got %v", data["status"])
	}

	reply = roundTrip(t, conn, trade.WSRequest{ID: "4", Action: "orderbook"})
	if reply["ok"] != true {
		t.Errorf("orderbook failed: %v", reply)
	}
}

func TestWebSocket_Errors(t *testing.T) {
	router := newTestEnv(t, false)
	seed(t, router)
	srv := httptest.NewServer(router)
	defer srv.Close()

	conn := dialWS(t, srv)

	tests := []struct {
		name string
		req  trade.WSRequest
		want float64
	}{
		{"unknown action", trade.WSRequest{ID: "a", Action: "teleport"}, http.StatusBadRequest},
		{"missing payload", trade.WSRequest{ID: "b", Action: "buy"}, http.StatusBadRequest},
		{"insufficient stock", trade.WSRequest{
			ID:      "c",
			Action:  "sell",
			Payload: []byte(`{"userId":"bob","stockSymbol":"` + sym + `","quantity":1,"price":100,"stockType":"no"}`),
		}, http.StatusUnprocessableEntity},
		{"unknown user", trade.WSRequest{
			ID:      "d",
			Action:  "onramp",
			Payload: []byte(`{"userId":"ghost","amount":10}`),
		}, http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reply := roundTrip(t, conn, tc.req)
			if reply["ok"] != false {
				t.Errorf("expected failure, got %v", reply)
			}
			if reply["status"] != tc.want {
				t.Errorf("expected status %v, got %v", tc.want, reply["status"])
			}
			if reply["error"] == "" || reply["error"] == nil {
				t.Errorf("expected error message, got %v", reply)
			}
		})
	}

	// The session survives failed requests.
	reply := roundTrip(t, conn, trade.WSRequest{ID: "e", Action: "balances"})
	if reply["ok"] != true {
		t.Errorf("balances failed: %v", reply)
	}
}

func TestWebSocket_OriginPolicy(t *testing.T) {
	router := newTestEnv(t, false)
	srv := httptest.NewServer(router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{"allowed origin", allowedOrigin, true},
		{"foreign origin", "https://evil.example", false},
		{"no origin header", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			header := http.Header{}
			if tc.origin != "" {
				header.Set("Origin", tc.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(url, header)
			if tc.ok {
				if err != nil {
					t.Fatalf("expected upgrade, got %v", err)
				}
				conn.Close()
				return
			}
			if err == nil {
				conn.Close()
				t.Fatal("expected the upgrade to be refused")
			}
			if resp == nil || resp.StatusCode != http.StatusForbidden {
				t.Errorf("expected 403, got %v", resp)
			}
		})
	}
}
