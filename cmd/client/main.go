// Command client is a line-oriented relay client for manual testing.
//
//	/to <user>            choose the conversation peer
//	/history              fetch the conversation
//	/call <meeting>       join a call room
//	/ring <user>          offer a call to a user
//	/hangup               end the calls in progress
//	/quit
//
// Any other line is sent as a message to the current peer.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/Wyydra/parley/internal/client"
	"github.com/Wyydra/parley/internal/core/domain"
	"github.com/Wyydra/parley/internal/protocol"
	"github.com/benbjohnson/clock"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	URL         string        `envconfig:"PARLEY_URL" default:"ws://localhost:8080/ws"`
	UserID      string        `envconfig:"PARLEY_USER" required:"true"`
	DisplayName string        `envconfig:"PARLEY_NAME"`
	MaxAttempts int           `envconfig:"PARLEY_MAX_ATTEMPTS" default:"5"`
	RingTimeout time.Duration `envconfig:"PARLEY_RING_TIMEOUT" default:"30s"`
	// PARLEY_COLOURS enables colorized output
	Colours bool `envconfig:"PARLEY_COLOURS" default:"true"`
	Debug   bool `envconfig:"PARLEY_DEBUG" default:"false"`
}

type printer struct {
	colours bool
}

func (p printer) print(style color.Style, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if p.colours {
		line = style.Render(line)
	}
	fmt.Println(line)
}

var (
	styleInfo  = color.New(color.FgCyan)
	styleIn    = color.New(color.FgGreen)
	styleOut   = color.New(color.FgWhite)
	styleError = color.New(color.FgRed, color.OpBold)
	styleState = color.New(color.BgBlack, color.FgYellow)
)

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	level := zerolog.WarnLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	out := printer{colours: cfg.Colours}
	me := domain.UserID(cfg.UserID)
	var peer domain.UserID

	var m *client.Manager
	m = client.New(cfg.URL, client.Options{
		MaxAttempts: cfg.MaxAttempts,
		OnState: func(s client.State) {
			out.print(styleState, " %s ", s)
			if s == client.StateConnected {
				// a fresh transport has no session yet
				_ = m.Emit(protocol.Join, protocol.JoinPayload{UserID: me, DisplayName: cfg.DisplayName})
			}
		},
	})
	calls := client.NewCalls(m, clock.New(), cfg.RingTimeout)
	registerHandlers(m, calls, out, me)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := m.Connect(ctx); err != nil {
		out.print(styleError, "%v", err)
		os.Exit(1)
	}
	defer m.Close()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := handleLine(m, calls, out, me, &peer, strings.TrimSpace(line)); err != nil {
				if errors.Is(err, errQuit) {
					return
				}
				out.print(styleError, "%v", err)
			}
		}
	}
}

var errQuit = errors.New("quit")

// sdp stands in for a real session description; the relay forwards it untouched.
func sdp(kind string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"type":%q,"sdp":"v=0"}`, kind))
}

func handleLine(m *client.Manager, calls *client.Calls, out printer, me domain.UserID, peer *domain.UserID, line string) error {
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "":
		return nil
	case "/quit":
		return errQuit
	case "/to":
		if arg == "" {
			return fmt.Errorf("usage: /to <user>")
		}
		*peer = domain.UserID(arg)
		return m.Emit(protocol.ReadMark, protocol.ReadPayload{PeerID: *peer})
	case "/history":
		if *peer == "" {
			return fmt.Errorf("no peer, use /to first")
		}
		return m.Emit(protocol.HistoryRequest, protocol.HistoryPayload{TargetUserID: *peer})
	case "/call":
		if arg == "" {
			return fmt.Errorf("usage: /call <meeting>")
		}
		return m.Emit(protocol.RoomJoin, protocol.RoomJoinPayload{MeetingID: arg})
	case "/ring":
		if arg == "" {
			return fmt.Errorf("usage: /ring <user>")
		}
		call, err := calls.Ring(domain.UserID(arg), sdp("offer"))
		if err != nil {
			return err
		}
		out.print(styleInfo, "* ringing %s (%s)", arg, call.ID)
		return nil
	case "/hangup":
		for _, id := range calls.Active() {
			if err := calls.Hangup(id); err != nil {
				return err
			}
			out.print(styleInfo, "* call %s ended", id)
		}
		return nil
	default:
		if *peer == "" {
			return fmt.Errorf("no peer, use /to first")
		}
		return m.Emit(protocol.MessageSend, protocol.SendPayload{SenderID: me, ReceiverID: *peer, Text: line})
	}
}

func registerHandlers(m *client.Manager, calls *client.Calls, out printer, me domain.UserID) {
	m.On(string(domain.EventPresenceOnline), func(data json.RawMessage) {
		var p domain.PresencePayload
		if json.Unmarshal(data, &p) == nil {
			out.print(styleInfo, "* %s is online", p.UserID)
		}
	})
	m.On(string(domain.EventPresenceOffline), func(data json.RawMessage) {
		var p domain.PresencePayload
		if json.Unmarshal(data, &p) == nil {
			out.print(styleInfo, "* %s went offline", p.UserID)
		}
	})
	m.On(string(domain.EventPresenceSnapshot), func(data json.RawMessage) {
		var p domain.PresenceSnapshotPayload
		if json.Unmarshal(data, &p) == nil {
			names := make([]string, 0, len(p.Users))
			for _, u := range p.Users {
				names = append(names, u.UserID.String())
			}
			out.print(styleInfo, "* online: %s", strings.Join(names, ", "))
		}
	})
	m.On(string(domain.EventMessageReceive), func(data json.RawMessage) {
		var msg domain.Message
		if json.Unmarshal(data, &msg) == nil {
			out.print(styleIn, "%s> %s", msg.SenderID, msg.Text)
			_ = m.Emit(protocol.ReadMark, protocol.ReadPayload{PeerID: msg.SenderID})
		}
	})
	m.On(string(domain.EventMessageSent), func(data json.RawMessage) {
		var msg domain.Message
		if json.Unmarshal(data, &msg) == nil {
			out.print(styleOut, "%s> %s", me, msg.Text)
		}
	})
	m.On(string(domain.EventHistoryResult), func(data json.RawMessage) {
		var h domain.HistoryResult
		if json.Unmarshal(data, &h) != nil {
			return
		}
		for _, e := range h.Messages {
			style := styleIn
			if e.SenderID == me {
				style = styleOut
			}
			out.print(style, "[%s] %s> %s", e.CreatedAt.Format("15:04"), e.SenderID, e.Text)
		}
	})
	m.On(string(domain.EventReadReceipt), func(data json.RawMessage) {
		var r domain.ReadReceiptPayload
		if json.Unmarshal(data, &r) == nil {
			out.print(styleInfo, "* %s read %d message(s)", r.ReaderID, len(r.MessageIDs))
		}
	})
	m.On(string(domain.EventRoomRole), func(data json.RawMessage) {
		var a domain.RoleAssignment
		if json.Unmarshal(data, &a) != nil {
			return
		}
		if a.Peer != nil {
			out.print(styleInfo, "* joined as %s, calling %s", a.Role, a.Peer.DisplayName)
			return
		}
		out.print(styleInfo, "* joined as %s, waiting for a peer", a.Role)
	})
	m.On(string(domain.EventPeerIncoming), func(data json.RawMessage) {
		var p domain.RoomMember
		if json.Unmarshal(data, &p) == nil {
			out.print(styleInfo, "* %s joined the room", p.DisplayName)
		}
	})
	m.On(string(domain.EventSignalOffer), func(data json.RawMessage) {
		var p domain.SignalPayload
		if json.Unmarshal(data, &p) != nil {
			return
		}
		if _, err := calls.Accept(p, sdp("answer")); err != nil {
			out.print(styleError, "! %v", err)
			return
		}
		out.print(styleInfo, "* %s is calling, answered (%s)", p.FromUserID, p.CallID)
	})
	m.On(string(domain.EventSignalAnswer), func(data json.RawMessage) {
		var p domain.SignalPayload
		if json.Unmarshal(data, &p) != nil {
			return
		}
		call, err := calls.Answered(p)
		if err != nil {
			out.print(styleError, "! %v", err)
			return
		}
		out.print(styleInfo, "* call %s %s", call.ID, call.State())
	})
	m.On(string(domain.EventSignalEnd), func(data json.RawMessage) {
		var p domain.SignalPayload
		if json.Unmarshal(data, &p) != nil {
			return
		}
		if call, ok := calls.Ended(p.CallID); ok {
			out.print(styleInfo, "* call %s ended by peer", call.ID)
		}
	})
	m.On(string(domain.EventError), func(data json.RawMessage) {
		var e domain.ErrorPayload
		if json.Unmarshal(data, &e) == nil {
			out.print(styleError, "! %s", e.Message)
		}
	})
}
