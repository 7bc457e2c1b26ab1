package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/Wyydra/parley/internal/core/domain"
	"github.com/Wyydra/parley/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Hub implements port.Gateway over the set of live connections.
type Hub struct {
	mu      sync.RWMutex
	clients map[domain.ConnectionID]Client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[domain.ConnectionID]Client),
	}
}

func (h *Hub) Register(c Client) {
	h.mu.Lock()
	_, exists := h.clients[c.ID()]
	h.clients[c.ID()] = c
	h.mu.Unlock()
	if !exists {
		metrics.Connections.Inc()
	}
	log.Info().Str("conn_id", c.ID().String()).Msg("Client registered")
}

func (h *Hub) Unregister(c Client) {
	h.mu.Lock()
	current, ok := h.clients[c.ID()]
	if ok && current == c {
		delete(h.clients, c.ID())
	}
	h.mu.Unlock()
	if !ok || current != c {
		return
	}
	metrics.Connections.Dec()
	if err := c.Close(); err != nil {
		log.Debug().Err(err).Str("conn_id", c.ID().String()).Msg("Error closing client")
	}
	log.Info().Str("conn_id", c.ID().String()).Msg("Client unregistered")
}

func (h *Hub) Send(ctx context.Context, to domain.ConnectionID, evt domain.Event) {
	h.mu.RLock()
	c, ok := h.clients[to]
	h.mu.RUnlock()
	if !ok {
		metrics.EventsDropped.WithLabelValues("offline").Inc()
		return
	}
	h.deliver(c, evt)
}

func (h *Hub) Broadcast(ctx context.Context, evt domain.Event, except domain.ConnectionID) {
	h.mu.RLock()
	targets := lo.Filter(lo.Values(h.clients), func(c Client, _ int) bool { return c.ID() != except })
	h.mu.RUnlock()
	for _, c := range targets {
		h.deliver(c, evt)
	}
}

func (h *Hub) Alive(id domain.ConnectionID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[id]
	return ok
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop closes every connection.
func (h *Hub) Stop() {
	h.mu.Lock()
	clients := lo.Values(h.clients)
	h.clients = make(map[domain.ConnectionID]Client)
	h.mu.Unlock()
	for _, c := range clients {
		metrics.Connections.Dec()
		if err := c.Close(); err != nil {
			log.Error().Err(err).Str("conn_id", c.ID().String()).Msg("Error closing client connection")
		}
	}
}

func (h *Hub) deliver(c Client, evt domain.Event) {
	if err := c.Send(evt); err != nil {
		reason := "closed"
		if errors.Is(err, ErrSendBufferFull) {
			reason = "buffer_full"
		}
		metrics.EventsDropped.WithLabelValues(reason).Inc()
		log.Warn().Err(err).Str("conn_id", c.ID().String()).Str("event", string(evt.Name)).Msg("Event dropped")
		return
	}
	metrics.EventsSent.WithLabelValues(string(evt.Name)).Inc()
}
