package trade

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/RutamBhagat/project-1-probo-v0/internal/metrics"
	"github.com/RutamBhagat/project-1-probo-v0/internal/model"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsMaxMessage   = 64 << 10
)

// WSRequest is one command sent by an order-entry client. ID is echoed back
// in the reply so clients can pipeline requests.
type WSRequest struct {
	ID      string          `json:"id"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSReply answers exactly one WSRequest.
type WSReply struct {
	ID     string `json:"id"`
	OK     bool   `json:"ok"`
	Status int    `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// OriginPolicy reports whether a request's Origin may open a session.
// *cors.Cors satisfies it, so the HTTP and WebSocket surfaces share one
// allow-list.
type OriginPolicy interface {
	OriginAllowed(r *http.Request) bool
}

// checkOrigin gates the upgrade. CORS headers do not stop a browser from
// opening a WebSocket, so the allow-list is enforced here. Requests without
// an Origin header come from non-browser clients.
func (s *Service) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if s.origins != nil {
		return s.origins.OriginAllowed(r)
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws. Each text
// frame carries a WSRequest; requests are executed in arrival order and each
// gets one WSReply.
func (s *Service) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "origin", r.Header.Get("Origin"), "err", err)
		return
	}
	metrics.WebSocketSessions.Inc()
	slog.Info("ws session opened", "remote", r.RemoteAddr)

	done := make(chan struct{})
	defer func() {
		close(done)
		conn.Close()
		metrics.WebSocketSessions.Dec()
		slog.Info("ws session closed", "remote", r.RemoteAddr)
	}()

	// Ping ticker to keep connection alive through proxies. WriteControl is
	// safe to call concurrently with the reply writer below.
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(wsMaxMessage)
	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	ctx := r.Context()
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("ws read failed", "err", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		reply := s.dispatch(ctx, data)
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(reply); err != nil {
			slog.Warn("ws write failed", "err", err)
			return
		}
	}
}

// dispatch decodes and executes one request frame.
func (s *Service) dispatch(ctx context.Context, frame []byte) WSReply {
	var req WSRequest
	if err := json.Unmarshal(frame, &req); err != nil {
		return failure("", fmt.Errorf("%w: invalid frame: %v", ErrBadRequest, err))
	}

	data, err := s.execute(ctx, req)
	if err != nil {
		return failure(req.ID, err)
	}
	return WSReply{ID: req.ID, OK: true, Status: http.StatusOK, Data: data}
}

func (s *Service) execute(ctx context.Context, req WSRequest) (any, error) {
	switch req.Action {
	case "onramp":
		return withPayload(ctx, req.Payload, s.onramp)
	case "mint":
		return withPayload(ctx, req.Payload, s.mint)
	case "buy":
		return withPayload(ctx, req.Payload, s.buy)
	case "sell":
		return withPayload(ctx, req.Payload, s.sell)
	case "cancel":
		return withPayload(ctx, req.Payload, s.cancel)
	case "orderbook":
		return s.engine.OrderBook(ctx)
	case "depth":
		var q struct {
			SymbolID string `json:"stockSymbol"`
			Side     string `json:"stockType"`
		}
		if err := unmarshalPayload(req.Payload, &q); err != nil {
			return nil, err
		}
		side, err := model.ParseSide(q.Side)
		if err != nil {
			return nil, err
		}
		return s.engine.Depth(ctx, q.SymbolID, side)
	case "balances":
		return s.engine.Balances(ctx)
	}
	return nil, fmt.Errorf("%w: unknown action %q", ErrBadRequest, req.Action)
}

func withPayload[Req, Resp any](ctx context.Context, raw json.RawMessage, op func(context.Context, Req) (Resp, error)) (any, error) {
	var req Req
	if err := unmarshalPayload(raw, &req); err != nil {
		return nil, err
	}
	return op(ctx, req)
}

func unmarshalPayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: payload is required", ErrBadRequest)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: invalid payload: %v", ErrBadRequest, err)
	}
	return nil
}

func failure(id string, err error) WSReply {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("ws request failed", "id", id, "err", err)
		msg = "internal error"
	}
	return WSReply{ID: id, Status: status, Error: msg}
}
