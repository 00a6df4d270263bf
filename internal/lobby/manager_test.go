package lobby

import (
	"context"
	"errors"
	"sync"
	"testing"

	"hokm_server/internal/protocol"
)

// fakeSender records outbound traffic per session and can simulate dead
// transports.
type fakeSender struct {
	mu           sync.Mutex
	sent         map[string][]any
	dead         map[string]bool
	unregistered map[string]bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		sent:         make(map[string][]any),
		dead:         make(map[string]bool),
		unregistered: make(map[string]bool),
	}
}

func (f *fakeSender) Send(sessionID string, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dead[sessionID] {
		return errors.New("connection closed")
	}
	f.sent[sessionID] = append(f.sent[sessionID], v)
	return nil
}

func (f *fakeSender) Unregister(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unregistered[sessionID] = true
}

func (f *fakeSender) messages(sessionID string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]any, len(f.sent[sessionID]))
	copy(out, f.sent[sessionID])
	return out
}

func (f *fakeSender) lastStatus(t *testing.T, sessionID string) protocol.RoomStatus {
	t.Helper()
	var status protocol.RoomStatus
	found := false
	for _, msg := range f.messages(sessionID) {
		if s, ok := msg.(protocol.RoomStatus); ok {
			status = s
			found = true
		}
	}
	if !found {
		t.Fatalf("session %s received no room_status", sessionID)
	}
	return status
}

func (f *fakeSender) gameStarts(sessionID string) []protocol.GameStart {
	var starts []protocol.GameStart
	for _, msg := range f.messages(sessionID) {
		if s, ok := msg.(protocol.GameStart); ok {
			starts = append(starts, s)
		}
	}
	return starts
}

func newTestManager() (*Manager, *fakeSender) {
	sender := newFakeSender()
	return NewManager(NewMemoryStore(), sender), sender
}

func session(id string) *Session {
	return &Session{ID: id}
}

func TestCreateAndJoinFlow(t *testing.T) {
	manager, sender := newTestManager()
	ctx := context.Background()

	alice := session("alice-id")
	if err := manager.Create(ctx, alice, "alice"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if alice.Room == "" {
		t.Fatal("creator has no room")
	}

	bob := session("bob-id")
	if err := manager.Join(ctx, bob, "bob", alice.Room); err != nil {
		t.Fatalf("Join: %v", err)
	}

	// Both members see one consistent snapshot: same names, same total,
	// positions by join order.
	aliceStatus := sender.lastStatus(t, "alice-id")
	bobStatus := sender.lastStatus(t, "bob-id")

	if aliceStatus.TotalPlayers != 2 || bobStatus.TotalPlayers != 2 {
		t.Errorf("totals = %d/%d, want 2/2", aliceStatus.TotalPlayers, bobStatus.TotalPlayers)
	}
	if aliceStatus.PlayerNumber != 1 || bobStatus.PlayerNumber != 2 {
		t.Errorf("positions = %d/%d, want 1/2", aliceStatus.PlayerNumber, bobStatus.PlayerNumber)
	}
	wantNames := []string{"alice", "bob"}
	for _, status := range []protocol.RoomStatus{aliceStatus, bobStatus} {
		if len(status.Usernames) != 2 || status.Usernames[0] != wantNames[0] || status.Usernames[1] != wantNames[1] {
			t.Errorf("usernames = %v, want %v", status.Usernames, wantNames)
		}
	}

	// The joiner also got its ack.
	var joined *protocol.RoomJoined
	for _, msg := range sender.messages("bob-id") {
		if j, ok := msg.(protocol.RoomJoined); ok {
			joined = &j
		}
	}
	if joined == nil {
		t.Fatal("bob received no room_joined")
	}
	if joined.PlayerNumber != 2 || joined.TotalPlayers != 2 || joined.RoomID != alice.Room {
		t.Errorf("room_joined = %+v", joined)
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	manager, _ := newTestManager()

	err := manager.Join(context.Background(), session("s"), "alice", "0000")
	if !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("err = %v, want ErrRoomNotFound", err)
	}
	if err := manager.Join(context.Background(), session("s"), "alice", "12345"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("bad-length code err = %v, want ErrRoomNotFound", err)
	}
}

func TestGameStartExactlyOnce(t *testing.T) {
	manager, sender := newTestManager()
	ctx := context.Background()

	host := session("p1")
	if err := manager.Create(ctx, host, "p1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, id := range []string{"p2", "p3", "p4"} {
		if err := manager.Join(ctx, session(id), id, host.Room); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}

	wantPlayers := []string{"p1", "p2", "p3", "p4"}
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		starts := sender.gameStarts(id)
		if len(starts) != 1 {
			t.Fatalf("%s received %d game_start messages, want 1", id, len(starts))
		}
		if starts[0].RoomID != host.Room {
			t.Errorf("%s game_start room = %s, want %s", id, starts[0].RoomID, host.Room)
		}
		for i, name := range wantPlayers {
			if starts[0].Players[i] != name {
				t.Errorf("%s players[%d] = %s, want %s", id, i, starts[0].Players[i], name)
			}
		}
	}
}

func TestFullRoomRejectsFifth(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()

	host := session("p1")
	if err := manager.Create(ctx, host, "p1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, id := range []string{"p2", "p3", "p4"} {
		if err := manager.Join(ctx, session(id), id, host.Room); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}

	late := session("p5")
	if err := manager.Join(ctx, late, "p5", host.Room); !errors.Is(err, ErrRoomFull) {
		t.Errorf("5th join err = %v, want ErrRoomFull", err)
	}
	if late.Room != "" {
		t.Errorf("rejected joiner has Room = %q", late.Room)
	}
}

func TestLeaveRebroadcastsShiftedPositions(t *testing.T) {
	manager, sender := newTestManager()
	ctx := context.Background()

	host := session("p1")
	if err := manager.Create(ctx, host, "p1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	second := session("p2")
	third := session("p3")
	if err := manager.Join(ctx, second, "p2", host.Room); err != nil {
		t.Fatalf("join p2: %v", err)
	}
	if err := manager.Join(ctx, third, "p3", host.Room); err != nil {
		t.Fatalf("join p3: %v", err)
	}

	if err := manager.Leave(ctx, second); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if second.Room != "" {
		t.Errorf("left session still references room %q", second.Room)
	}

	hostStatus := sender.lastStatus(t, "p1")
	thirdStatus := sender.lastStatus(t, "p3")
	if hostStatus.TotalPlayers != 2 || thirdStatus.TotalPlayers != 2 {
		t.Errorf("totals = %d/%d, want 2/2", hostStatus.TotalPlayers, thirdStatus.TotalPlayers)
	}
	// p3 slid down into the vacated slot.
	if hostStatus.PlayerNumber != 1 || thirdStatus.PlayerNumber != 2 {
		t.Errorf("positions = %d/%d, want 1/2", hostStatus.PlayerNumber, thirdStatus.PlayerNumber)
	}
}

func TestDisconnectLastMemberDeletesRoom(t *testing.T) {
	manager, sender := newTestManager()
	ctx := context.Background()

	solo := session("solo")
	if err := manager.Create(ctx, solo, "solo"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	code := solo.Room

	manager.Disconnect(ctx, solo)

	if !sender.unregistered["solo"] {
		t.Error("disconnected session not unregistered")
	}
	if _, err := manager.store.Members(ctx, code); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("room still open after last member disconnected: %v", err)
	}
}

func TestBroadcastFailureIsolatedAndReaped(t *testing.T) {
	manager, sender := newTestManager()
	ctx := context.Background()

	host := session("p1")
	if err := manager.Create(ctx, host, "p1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, id := range []string{"p2", "p3"} {
		if err := manager.Join(ctx, session(id), id, host.Room); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}

	// p2's transport dies silently; the next broadcast must still reach the
	// others and must purge p2 from the room.
	sender.mu.Lock()
	sender.dead["p2"] = true
	sender.mu.Unlock()

	if err := manager.BroadcastStatus(ctx, host.Room); err != nil {
		t.Fatalf("BroadcastStatus: %v", err)
	}

	if !sender.unregistered["p2"] {
		t.Error("dead session not unregistered")
	}

	members, err := manager.store.Members(ctx, host.Room)
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("membership after reap = %d, want 2", len(members))
	}

	// Survivors got a follow-up snapshot without the dead member.
	for _, id := range []string{"p1", "p3"} {
		status := sender.lastStatus(t, id)
		if status.TotalPlayers != 2 {
			t.Errorf("%s final TotalPlayers = %d, want 2", id, status.TotalPlayers)
		}
		for _, name := range status.Usernames {
			if name == "p2" {
				t.Errorf("%s snapshot still lists reaped member", id)
			}
		}
	}
}

func TestEnqueueFormsGame(t *testing.T) {
	manager, sender := newTestManager()
	ctx := context.Background()

	sessions := []*Session{session("q1"), session("q2"), session("q3"), session("q4")}
	for i, sess := range sessions {
		sess.Username = sess.ID
		if err := manager.Enqueue(ctx, sess, "4p"); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	var gameID string
	for _, sess := range sessions {
		starts := sender.gameStarts(sess.ID)
		if len(starts) != 1 {
			t.Fatalf("%s received %d game_start messages, want 1", sess.ID, len(starts))
		}
		if gameID == "" {
			gameID = starts[0].RoomID
		} else if starts[0].RoomID != gameID {
			t.Errorf("%s formed into game %s, others into %s", sess.ID, starts[0].RoomID, gameID)
		}
		wantPlayers := []string{"q1", "q2", "q3", "q4"}
		for i, name := range wantPlayers {
			if starts[0].Players[i] != name {
				t.Errorf("players[%d] = %s, want %s", i, starts[0].Players[i], name)
			}
		}
	}
	if len(gameID) != 8 {
		t.Errorf("game id %q length = %d, want 8", gameID, len(gameID))
	}

	// The formed game is recorded in the store.
	if _, err := manager.store.Game(ctx, gameID); err != nil {
		t.Errorf("Game(%s): %v", gameID, err)
	}
}

func TestTwoPlayerQueueThreshold(t *testing.T) {
	manager, sender := newTestManager()
	ctx := context.Background()

	first := session("a")
	if err := manager.Enqueue(ctx, first, "2p"); err != nil {
		t.Fatalf("enqueue a: %v", err)
	}
	if starts := sender.gameStarts("a"); len(starts) != 0 {
		t.Fatalf("game formed with one queued session")
	}

	if err := manager.Enqueue(ctx, session("b"), "2p"); err != nil {
		t.Fatalf("enqueue b: %v", err)
	}
	if starts := sender.gameStarts("a"); len(starts) != 1 {
		t.Errorf("first queued session got %d game_start messages, want 1", len(starts))
	}
}

func TestDisconnectWhileQueued(t *testing.T) {
	manager, sender := newTestManager()
	ctx := context.Background()

	ghost := session("ghost")
	if err := manager.Enqueue(ctx, ghost, "4p"); err != nil {
		t.Fatalf("enqueue ghost: %v", err)
	}
	manager.Disconnect(ctx, ghost)

	// Four live sessions must form the game without the ghost.
	for _, id := range []string{"q1", "q2", "q3"} {
		if err := manager.Enqueue(ctx, session(id), "4p"); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
		if starts := sender.gameStarts(id); len(starts) != 0 {
			t.Fatalf("game formed early after %s", id)
		}
	}
	if err := manager.Enqueue(ctx, session("q4"), "4p"); err != nil {
		t.Fatalf("enqueue q4: %v", err)
	}

	starts := sender.gameStarts("q1")
	if len(starts) != 1 {
		t.Fatalf("q1 received %d game_start messages, want 1", len(starts))
	}
	if len(sender.gameStarts("ghost")) != 0 {
		t.Error("disconnected session was formed into a game")
	}
}

func TestJoinWhileInRoomLeavesFirst(t *testing.T) {
	manager, sender := newTestManager()
	ctx := context.Background()

	host := session("p1")
	if err := manager.Create(ctx, host, "p1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	buddy := session("p2")
	if err := manager.Join(ctx, buddy, "p2", host.Room); err != nil {
		t.Fatalf("join: %v", err)
	}
	firstRoom := host.Room

	// The host opens a new room; the old one must shrink to one member.
	if err := manager.Create(ctx, host, "p1"); err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if host.Room == firstRoom {
		t.Fatal("second create reused the occupied room")
	}

	members, err := manager.store.Members(ctx, firstRoom)
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 1 || members[0].SessionID != "p2" {
		t.Errorf("old room members = %+v, want just p2", members)
	}
	if status := sender.lastStatus(t, "p2"); status.TotalPlayers != 1 {
		t.Errorf("p2 final TotalPlayers = %d, want 1", status.TotalPlayers)
	}
}

func TestRejoinOwnRoomKeepsSingleSeat(t *testing.T) {
	manager, sender := newTestManager()
	ctx := context.Background()

	host := session("p1")
	if err := manager.Create(ctx, host, "p1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	buddy := session("p2")
	if err := manager.Join(ctx, buddy, "p2", host.Room); err != nil {
		t.Fatalf("join: %v", err)
	}

	// Re-sending join_room for the current room re-acks the same seat and
	// never grows the member list.
	for i := 0; i < 3; i++ {
		if err := manager.Join(ctx, buddy, "p2", host.Room); err != nil {
			t.Fatalf("re-join %d: %v", i, err)
		}
	}

	members, err := manager.store.Members(ctx, host.Room)
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("membership after self re-join = %d, want 2", len(members))
	}

	status := sender.lastStatus(t, "p2")
	if status.PlayerNumber != 2 || status.TotalPlayers != 2 {
		t.Errorf("re-join status = %d of %d, want 2 of 2", status.PlayerNumber, status.TotalPlayers)
	}

	// Filling the remaining seats still fires exactly one game_start even
	// after the re-joins, and a full-room member can still re-ack its seat.
	for _, id := range []string{"p3", "p4"} {
		if err := manager.Join(ctx, session(id), id, host.Room); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}
	if err := manager.Join(ctx, buddy, "p2", host.Room); err != nil {
		t.Fatalf("re-join full room: %v", err)
	}
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		if starts := sender.gameStarts(id); len(starts) != 1 {
			t.Errorf("%s received %d game_start messages, want 1", id, len(starts))
		}
	}
}

func TestRepeatJoinQueueHoldsOneSlot(t *testing.T) {
	manager, sender := newTestManager()
	ctx := context.Background()

	eager := session("q1")
	for i := 0; i < 3; i++ {
		if err := manager.Enqueue(ctx, eager, "4p"); err != nil {
			t.Fatalf("enqueue attempt %d: %v", i, err)
		}
	}

	// Three distinct sessions are not enough, however often q1 re-sent.
	for _, id := range []string{"q2", "q3"} {
		if err := manager.Enqueue(ctx, session(id), "4p"); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	if starts := sender.gameStarts("q1"); len(starts) != 0 {
		t.Fatalf("game formed with only 3 distinct sessions")
	}

	if err := manager.Enqueue(ctx, session("q4"), "4p"); err != nil {
		t.Fatalf("enqueue q4: %v", err)
	}
	for _, id := range []string{"q1", "q2", "q3", "q4"} {
		if starts := sender.gameStarts(id); len(starts) != 1 {
			t.Errorf("%s received %d game_start messages, want 1", id, len(starts))
		}
	}
}

func TestSwitchQueueVacatesOldSlot(t *testing.T) {
	manager, sender := newTestManager()
	ctx := context.Background()

	switcher := session("x")
	if err := manager.Enqueue(ctx, switcher, "2p"); err != nil {
		t.Fatalf("enqueue 2p: %v", err)
	}
	if err := manager.Enqueue(ctx, switcher, "3p"); err != nil {
		t.Fatalf("enqueue 3p: %v", err)
	}
	if switcher.QueuedGame != "3p" {
		t.Errorf("QueuedGame = %q, want 3p", switcher.QueuedGame)
	}

	// The 2p slot was vacated by the switch, so y waits alone.
	if err := manager.Enqueue(ctx, session("y"), "2p"); err != nil {
		t.Fatalf("enqueue y: %v", err)
	}
	if starts := sender.gameStarts("x"); len(starts) != 0 {
		t.Fatalf("vacated queue still formed a game with x")
	}

	if err := manager.Enqueue(ctx, session("z"), "3p"); err != nil {
		t.Fatalf("enqueue z: %v", err)
	}
	if starts := sender.gameStarts("x"); len(starts) != 1 {
		t.Errorf("x received %d game_start messages, want 1", len(starts))
	}
	if starts := sender.gameStarts("z"); len(starts) != 1 {
		t.Errorf("z received %d game_start messages, want 1", len(starts))
	}
}

func TestFormedSessionNoLongerQueued(t *testing.T) {
	manager, sender := newTestManager()
	ctx := context.Background()

	first := session("a")
	if err := manager.Enqueue(ctx, first, "2p"); err != nil {
		t.Fatalf("enqueue a: %v", err)
	}
	if first.QueuedGame != "2p" {
		t.Errorf("waiting QueuedGame = %q, want 2p", first.QueuedGame)
	}

	second := session("b")
	if err := manager.Enqueue(ctx, second, "2p"); err != nil {
		t.Fatalf("enqueue b: %v", err)
	}
	if second.QueuedGame != "" {
		t.Errorf("forming member QueuedGame = %q, want empty", second.QueuedGame)
	}

	// A later disconnect of the forming member must not touch the queue; a
	// fresh pair still forms on its own.
	manager.Disconnect(ctx, second)
	if err := manager.Enqueue(ctx, session("c"), "2p"); err != nil {
		t.Fatalf("enqueue c: %v", err)
	}
	if starts := sender.gameStarts("c"); len(starts) != 0 {
		t.Fatalf("game formed with one queued session")
	}
	if err := manager.Enqueue(ctx, session("d"), "2p"); err != nil {
		t.Fatalf("enqueue d: %v", err)
	}
	if starts := sender.gameStarts("c"); len(starts) != 1 {
		t.Errorf("c received %d game_start messages, want 1", len(starts))
	}
}
