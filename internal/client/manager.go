// Package client keeps one logical relay connection alive across transport
// drops. Every reconnect dials a fresh websocket; handlers registered with On
// survive and serve each new transport.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ErrTransport wraps dial and write failures.
var ErrTransport = errors.New("transport error")

const DefaultMaxAttempts = 5

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	// StateDisconnected is terminal until the next explicit Connect.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Dialer is satisfied by *websocket.Dialer.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

type Handler func(data json.RawMessage)

type Options struct {
	MaxAttempts int
	Dialer      Dialer
	Header      http.Header
	// Wait blocks for the backoff delay. Defaults to a timer on the wall clock.
	Wait func(ctx context.Context, d time.Duration) error
	// OnState is called on every state change, from the goroutine making it.
	OnState func(State)
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Manager struct {
	url  string
	opts Options

	mu       sync.Mutex
	handlers map[string][]Handler
	conn     *websocket.Conn
	state    State
	attempts int
	ctx      context.Context
	cancel   context.CancelFunc

	writeMu sync.Mutex
}

func New(url string, opts Options) *Manager {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Wait == nil {
		clk := clock.New()
		opts.Wait = func(ctx context.Context, d time.Duration) error {
			select {
			case <-clk.After(d):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return &Manager{
		url:      url,
		opts:     opts,
		handlers: make(map[string][]Handler),
	}
}

// Backoff is the delay before reconnect attempt n (1-based): 2^n seconds.
func Backoff(n int) time.Duration {
	return time.Duration(math.Pow(2, float64(n))) * time.Second
}

// On registers a handler for a server event. Handlers are kept across reconnects.
func (m *Manager) On(event string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], h)
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the number of reconnect attempts since the last successful connect.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Connect dials the relay. A failed initial dial is returned, not retried.
// An existing transport is closed first and does not trigger a reconnect.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.ctx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))
	life := m.ctx
	old := m.conn
	m.conn = nil
	m.mu.Unlock()

	if old != nil {
		m.writeMu.Lock()
		_ = old.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		m.writeMu.Unlock()
		_ = old.Close()
	}

	m.setState(StateConnecting)
	if err := m.dial(ctx, life); err != nil {
		m.setState(StateDisconnected)
		return err
	}
	return nil
}

// Emit sends one event on the current transport.
func (m *Manager) Emit(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: not connected", ErrTransport)
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.WriteJSON(envelope{Event: event, Data: raw}); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// Close is an explicit local disconnect. It never triggers a reconnect.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	m.setState(StateDisconnected)
	if conn == nil {
		return nil
	}
	m.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	m.writeMu.Unlock()
	return conn.Close()
}

func (m *Manager) dial(ctx, life context.Context) error {
	conn, _, err := m.opts.Dialer.DialContext(ctx, m.url, m.opts.Header)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrTransport, m.url, err)
	}
	m.mu.Lock()
	if life.Err() != nil {
		m.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("%w: closed while dialing", ErrTransport)
	}
	m.conn = conn
	m.attempts = 0
	m.mu.Unlock()

	m.setState(StateConnected)
	go m.readLoop(life, conn)
	return nil
}

func (m *Manager) readLoop(life context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Msg("Dropping malformed frame")
			continue
		}
		m.mu.Lock()
		handlers := append([]Handler{}, m.handlers[env.Event]...)
		m.mu.Unlock()
		for _, h := range handlers {
			h(env.Data)
		}
	}

	m.mu.Lock()
	current := m.conn == conn
	if current {
		m.conn = nil
	}
	m.mu.Unlock()
	_ = conn.Close()

	if life.Err() != nil || !current {
		return
	}
	log.Warn().Str("url", m.url).Msg("Connection lost, reconnecting")
	m.reconnect(life)
}

func (m *Manager) reconnect(life context.Context) {
	for {
		m.mu.Lock()
		if m.attempts >= m.opts.MaxAttempts {
			m.mu.Unlock()
			break
		}
		m.attempts++
		n := m.attempts
		m.mu.Unlock()

		m.setState(StateReconnecting)
		delay := Backoff(n)
		log.Info().Int("attempt", n).Dur("delay", delay).Msg("Scheduling reconnect")
		if err := m.opts.Wait(life, delay); err != nil {
			return
		}
		err := m.dial(life, life)
		if err == nil {
			log.Info().Int("attempt", n).Msg("Reconnected")
			return
		}
		if life.Err() != nil {
			return
		}
		log.Warn().Err(err).Int("attempt", n).Msg("Reconnect failed")
	}
	log.Error().Int("attempts", m.opts.MaxAttempts).Msg("Giving up reconnecting")
	m.setState(StateDisconnected)
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	m.mu.Unlock()
	if changed && m.opts.OnState != nil {
		m.opts.OnState(s)
	}
}
