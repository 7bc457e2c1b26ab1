package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Wyydra/parley/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/parley/internal/core/domain"
	"github.com/Wyydra/parley/internal/metrics"
	"github.com/Wyydra/parley/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

var errClientClosed = errors.New("client closed")

// WSClient implements ws.Client. Writes go through a bounded queue drained by
// writePump; Send never blocks.
type WSClient struct {
	id      domain.ConnectionID
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	log     zerolog.Logger
}

func (c *WSClient) ID() domain.ConnectionID {
	return c.id
}

func (c *WSClient) Send(evt domain.Event) error {
	data, err := protocol.Encode(evt)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ws.ErrSendBufferFull
	}
}

func (c *WSClient) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug().Err(err).Msg("Write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(h.opts.AllowedOrigins) == 0 {
				return true
			}
			return lo.Contains(h.opts.AllowedOrigins, r.Header.Get("Origin"))
		},
	}
}

// HTTP handler
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	id := domain.NewConnectionID()
	client := &WSClient{
		id:      id,
		conn:    conn,
		send:    make(chan []byte, h.opts.SendBufferSize),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(h.opts.EventRate, h.opts.EventBurst),
		log:     log.With().Str("conn_id", id.String()).Logger(),
	}
	client.log.Info().Str("remote_addr", r.RemoteAddr).Msg("New client connected")

	h.Hub.Register(client)
	go client.writePump()

	// mutations started by this connection finish even if it drops
	ctx := context.WithoutCancel(r.Context())

	defer func() {
		client.log.Info().Msg("Client disconnected")
		h.Presence.Unregister(ctx, id)
		h.Rooms.Leave(ctx, id)
		h.Hub.Unregister(client)
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				client.log.Error().Err(err).Msg("Unexpected close error")
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			h.reject(ctx, client, "", fmt.Errorf("%w: malformed envelope", domain.ErrValidation))
			continue
		}

		if !client.limiter.Allow() {
			metrics.RateLimited.Inc()
			h.reject(ctx, client, env.Event, errRateLimited)
			continue
		}

		if err := h.dispatch(ctx, client, env); err != nil {
			h.reject(ctx, client, env.Event, err)
			continue
		}
		metrics.EventsReceived.WithLabelValues(env.Event, "ok").Inc()
	}
}
