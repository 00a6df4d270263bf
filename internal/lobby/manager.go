package lobby

import (
	"context"

	"github.com/rs/zerolog/log"

	"hokm_server/internal/protocol"
)

// Sender delivers outbound messages to live sessions. The connection registry
// implements it; tests substitute a fake.
type Sender interface {
	Send(sessionID string, v any) error
	Unregister(sessionID string)
}

// Manager owns room lifecycle and the matchmaking path. All membership
// mutation goes through atomic RoomStore calls; the Manager turns their
// results into the outbound notification fan-out.
type Manager struct {
	store  RoomStore
	sender Sender
}

func NewManager(store RoomStore, sender Sender) *Manager {
	return &Manager{store: store, sender: sender}
}

// Create makes a fresh room and joins the session as player 1.
func (m *Manager) Create(ctx context.Context, sess *Session, username string) error {
	code, err := m.store.CreateRoom(ctx)
	if err != nil {
		return err
	}

	log.Info().Str("room", code).Msg("New room created.")
	return m.Join(ctx, sess, username, code)
}

// Join seats the session in the room, acks the joiner, broadcasts the new
// snapshot, and fires game_start iff this join filled the room. A session
// already seated elsewhere leaves that room first; re-sending join_room for
// the current room keeps the single seat and just re-acks it.
func (m *Manager) Join(ctx context.Context, sess *Session, username, code string) error {
	if len(code) != 4 {
		return ErrRoomNotFound
	}
	if sess.Room != "" && sess.Room != code {
		if err := m.Leave(ctx, sess); err != nil {
			return err
		}
	}

	result, err := m.store.JoinRoom(ctx, code, Member{SessionID: sess.ID, Username: username})
	if err != nil {
		return err
	}

	sess.Username = username
	sess.Room = code

	log.Info().
		Int("playerNumber", result.PlayerNumber).
		Str("username", username).
		Str("room", code).
		Msg("Player entered room.")

	m.broadcastStatus(ctx, code, result.Members)

	_ = m.sender.Send(sess.ID, protocol.NewRoomJoined(code, result.PlayerNumber, len(result.Members)))

	if result.BecameFull {
		log.Info().Str("room", code).Msg("Room is full, ready to play.")
		m.broadcastGameStart(ctx, code, code, result.Members)
	}
	return nil
}

// Leave removes the session from its current room, deleting the room when it
// empties and rebroadcasting the shrunk snapshot otherwise.
func (m *Manager) Leave(ctx context.Context, sess *Session) error {
	if sess.Room == "" {
		return nil
	}

	code := sess.Room
	sess.Room = ""

	result, err := m.store.LeaveRoom(ctx, code, sess.ID)
	if err != nil {
		return err
	}

	if result.Deleted {
		log.Info().Str("room", code).Msg("Room emptied and deleted.")
		return nil
	}
	if result.Removed {
		m.broadcastStatus(ctx, code, result.Members)
	}
	return nil
}

// Enqueue puts the session on the game type's matchmaking queue. When the
// enqueue completes a batch, a game is recorded and every formed member gets
// game_start.
func (m *Manager) Enqueue(ctx context.Context, sess *Session, gameType string) error {
	if sess.Room != "" {
		if err := m.Leave(ctx, sess); err != nil {
			return err
		}
	}
	// One queue slot per session: switching game types vacates the old queue
	// first, and the store ignores a repeat enqueue for the same type.
	if sess.QueuedGame != "" && sess.QueuedGame != gameType {
		if err := m.store.DequeueSession(ctx, sess.QueuedGame, sess.ID); err != nil {
			return err
		}
		sess.QueuedGame = ""
	}

	username := sess.Username
	if username == "" {
		username = protocol.DefaultUsername
	}

	batch, err := m.store.Enqueue(ctx, gameType, Member{SessionID: sess.ID, Username: username}, Threshold(gameType))
	if err != nil {
		return err
	}

	sess.Username = username

	if batch == nil {
		sess.QueuedGame = gameType
		return nil
	}

	// This enqueue went straight into a game, so the session is no longer
	// waiting anywhere.
	sess.QueuedGame = ""

	gameID, err := m.store.CreateGame(ctx, batch)
	if err != nil {
		return err
	}

	log.Info().Str("game", gameID).Str("gameType", gameType).Msg("Matchmade game formed.")
	m.broadcastGameStart(ctx, "", gameID, batch)
	return nil
}

// Disconnect runs the cleanup path for a closed connection: the transport
// entry goes first, then any queue slot, then room membership.
func (m *Manager) Disconnect(ctx context.Context, sess *Session) {
	m.sender.Unregister(sess.ID)

	if sess.QueuedGame != "" {
		if err := m.store.DequeueSession(ctx, sess.QueuedGame, sess.ID); err != nil {
			log.Error().Err(err).Str("session", sess.ID).Msg("Failed to dequeue disconnected session.")
		}
		sess.QueuedGame = ""
	}

	if err := m.Leave(ctx, sess); err != nil {
		log.Error().Err(err).Str("session", sess.ID).Msg("Failed to remove disconnected session from room.")
	}
}

// BroadcastStatus re-reads the room and fans the snapshot out. Used for
// client-requested refreshes.
func (m *Manager) BroadcastStatus(ctx context.Context, code string) error {
	members, err := m.store.Members(ctx, code)
	if err != nil {
		return err
	}
	m.broadcastStatus(ctx, code, members)
	return nil
}

// broadcastStatus sends every member the same snapshot, personalized only by
// player number. A failed send never aborts the rest of the round; the dead
// session is reaped afterwards, which rebroadcasts to the survivors.
func (m *Manager) broadcastStatus(ctx context.Context, code string, members []Member) {
	names := Usernames(members)

	var failed []Member
	for i, member := range members {
		msg := protocol.NewRoomStatus(code, i+1, len(members), names)
		if err := m.sender.Send(member.SessionID, msg); err != nil {
			failed = append(failed, member)
		}
	}

	for _, member := range failed {
		m.reap(ctx, code, member)
	}
}

func (m *Manager) broadcastGameStart(ctx context.Context, roomCode, gameID string, members []Member) {
	players := Usernames(members)

	var failed []Member
	for _, member := range members {
		if err := m.sender.Send(member.SessionID, protocol.NewGameStart(gameID, players)); err != nil {
			failed = append(failed, member)
		}
	}

	for _, member := range failed {
		if roomCode != "" {
			m.reap(ctx, roomCode, member)
		} else {
			m.sender.Unregister(member.SessionID)
		}
	}
}

// reap cleans up a member whose transport turned out to be dead mid-broadcast.
// Its own read loop will also run Disconnect eventually; LeaveRoom is
// idempotent, so the two paths can race safely.
func (m *Manager) reap(ctx context.Context, code string, member Member) {
	log.Info().Str("session", member.SessionID).Str("room", code).Msg("Dropping unreachable member.")
	m.sender.Unregister(member.SessionID)

	result, err := m.store.LeaveRoom(ctx, code, member.SessionID)
	if err != nil {
		log.Error().Err(err).Str("room", code).Msg("Failed to reap unreachable member.")
		return
	}
	if result.Removed && !result.Deleted {
		m.broadcastStatus(ctx, code, result.Members)
	}
}
