package actions

import (
	"context"
	"errors"
	"net/http"
	"time"

	"hokm_server/internal/lobby"
	"hokm_server/internal/protocol"
	"hokm_server/internal/realtime"

	"github.com/gobuffalo/buffalo"
	"github.com/gobuffalo/envy"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// tighten per-domain once clients are deployed behind a fixed origin
		return true
	},
}

// Client-facing texts for the recoverable lobby errors.
const (
	msgRoomNotFound = "Room does not exist. Please check the room code."
	msgRoomFull     = "Room is already full. Do you want to create a new room? (y/n)"
	msgInvalid      = "Invalid action."
	msgUnavailable  = "Service temporarily unavailable. Please try again."
)

// LobbyWebSocketHandler upgrades the connection and runs the per-session
// dispatch loop. States: Connected until the first successful action, then
// InRoom or Queued, then Closed when the transport drops. Every lobby error
// is converted to an outbound message here; nothing propagates past the
// handler.
func LobbyWebSocketHandler(manager *lobby.Manager, registry *realtime.Registry) buffalo.Handler {
	idleTimeout := idleTimeoutFromEnv()

	return func(c buffalo.Context) error {
		conn, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}

		client := registry.Register(conn)
		sess := &lobby.Session{ID: client.SessionID}
		ctx := context.Background()

		log.Info().Str("session", sess.ID).Msg("Client connected.")

		for {
			// A connection that never acts should not linger forever; once
			// the session is in a room or queue the deadline comes off.
			if !sess.Started() && idleTimeout > 0 {
				_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
			} else {
				_ = conn.SetReadDeadline(time.Time{})
			}

			_, data, err := conn.ReadMessage()
			if err != nil {
				log.Info().Str("session", sess.ID).Str("username", sess.Username).Msg("Client disconnected.")
				manager.Disconnect(ctx, sess)
				return nil
			}

			msg, err := protocol.Decode(data)
			if err != nil {
				log.Warn().Err(err).Str("session", sess.ID).Msg("Rejected inbound frame.")
				_ = client.Send(protocol.NewError(msgInvalid))
				continue
			}

			switch m := msg.(type) {
			case protocol.Keepalive:
				// accepted in any state, no response

			case protocol.CreateRoom:
				if err := manager.Create(ctx, sess, m.Username); err != nil {
					sendLobbyError(client, err)
				}

			case protocol.JoinRoom:
				if err := manager.Join(ctx, sess, m.Username, m.RoomCode); err != nil {
					sendLobbyError(client, err)
				}

			case protocol.JoinQueue:
				if err := manager.Enqueue(ctx, sess, m.GameType); err != nil {
					sendLobbyError(client, err)
				}

			case protocol.StatusRequest:
				code := m.RoomID
				if code == "" {
					code = sess.Room
				}
				if code == "" {
					_ = client.Send(protocol.NewError(msgInvalid))
					continue
				}
				if err := manager.BroadcastStatus(ctx, code); err != nil {
					sendLobbyError(client, err)
				}
			}
		}
	}
}

// sendLobbyError maps the lobby error taxonomy onto outbound messages. Send
// failures are ignored: a dead transport surfaces in the read loop.
func sendLobbyError(client *realtime.Client, err error) {
	switch {
	case errors.Is(err, lobby.ErrRoomNotFound):
		_ = client.Send(protocol.NewError(msgRoomNotFound))
	case errors.Is(err, lobby.ErrRoomFull):
		_ = client.Send(protocol.NewRoomFull(msgRoomFull))
	case errors.Is(err, lobby.ErrStoreUnavailable):
		log.Error().Err(err).Msg("Room store unavailable.")
		_ = client.Send(protocol.NewError(msgUnavailable))
	default:
		log.Error().Err(err).Msg("Lobby action failed.")
		_ = client.Send(protocol.NewError(msgUnavailable))
	}
}

func idleTimeoutFromEnv() time.Duration {
	raw := envy.Get("LOBBY_IDLE_TIMEOUT", "60s")
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Warn().Str("value", raw).Msg("Invalid LOBBY_IDLE_TIMEOUT, using 60s.")
		return 60 * time.Second
	}
	return d
}
