// Package lobby holds the room/session coordination core: the shared room
// store, the room manager, and the matchmaking queue.
package lobby

import (
	"context"
	"math/rand"
	"strconv"
)

// RoomCapacity is the fixed number of seats per room.
const RoomCapacity = 4

// Member is the unit stored in room member lists and matchmaking queues.
// Lists are kept in join order; a member's player number is its 1-based list
// position and shifts when earlier members leave.
type Member struct {
	SessionID string `json:"sessionId"`
	Username  string `json:"username"`
}

// JoinResult is the outcome of one atomic join. BecameFull is true only for
// the join that moved the room from capacity-1 to capacity, so the caller can
// fire the ready-to-play cycle exactly once.
type JoinResult struct {
	PlayerNumber int
	Members      []Member
	BecameFull   bool
}

// LeaveResult is the outcome of one atomic leave. Removed is false when the
// session was not a member (leaving twice is a no-op). Deleted is true when
// the room emptied and was dropped; Members is the post-leave snapshot
// otherwise.
type LeaveResult struct {
	Members []Member
	Removed bool
	Deleted bool
}

// RoomStore is the shared keyed storage behind the lobby. Every method is
// atomic with respect to its room code or queue key: capacity checks, player
// number assignment, and the queue threshold check all happen inside the
// store call, never as a separate read-then-write in the caller.
type RoomStore interface {
	// CreateRoom reserves a 4-digit code unused by any currently open room
	// and creates an empty Waiting room under it. Codes of deleted rooms may
	// be handed out again.
	CreateRoom(ctx context.Context) (string, error)

	// JoinRoom appends member to the room. Returns ErrRoomNotFound for an
	// unknown or closed code and ErrRoomFull at capacity. A session already
	// seated in the room is not appended again: the join is idempotent and
	// returns the existing seat with BecameFull false.
	JoinRoom(ctx context.Context, code string, member Member) (JoinResult, error)

	// LeaveRoom removes the session from the room, deleting the room when it
	// empties. Unknown codes and non-member sessions are no-ops.
	LeaveRoom(ctx context.Context, code, sessionID string) (LeaveResult, error)

	// Members returns the current member list in join order.
	Members(ctx context.Context, code string) ([]Member, error)

	// Enqueue appends member to the game type's FIFO queue and, in the same
	// atomic step, pops the earliest threshold members iff the queue reached
	// threshold. Returns the popped batch, or nil while the queue is short.
	// A session already waiting in the queue is not appended again, so one
	// session can never hold two slots of the same queue.
	Enqueue(ctx context.Context, gameType string, member Member, threshold int) ([]Member, error)

	// DequeueSession drops a queued session so it can never be formed into a
	// game after its connection is gone. Absent sessions are a no-op.
	DequeueSession(ctx context.Context, gameType, sessionID string) error

	// CreateGame records a formed game and returns its id.
	CreateGame(ctx context.Context, members []Member) (string, error)

	// Game returns a formed game's member list.
	Game(ctx context.Context, gameID string) ([]Member, error)
}

// Threshold returns how many queued sessions form a game of the given type.
func Threshold(gameType string) int {
	if gameType == "4p" {
		return RoomCapacity
	}
	return 2
}

// maxCodeAttempts bounds the create-room retry loop. The code space holds
// 9000 values, so hitting the bound means it is effectively exhausted and the
// create fails instead of spinning.
const maxCodeAttempts = 1000

// randomRoomCode draws a 4-digit code in "1000".."9999". Uniqueness against
// open rooms is the store's job, not this function's.
func randomRoomCode() string {
	return strconv.Itoa(1000 + rand.Intn(9000))
}

func containsSession(members []Member, sessionID string) bool {
	for _, m := range members {
		if m.SessionID == sessionID {
			return true
		}
	}
	return false
}

// formBatch appends member to the queue and, when that reaches threshold,
// pops the batch strictly from the head. The new member only makes the batch
// as its final seat; if stale state left the queue longer than threshold-1,
// the earliest entries still go first and member waits in remaining.
func formBatch(queued []Member, member Member, threshold int) (remaining, batch []Member) {
	combined := make([]Member, 0, len(queued)+1)
	combined = append(combined, queued...)
	combined = append(combined, member)

	if len(combined) < threshold {
		return combined, nil
	}
	return combined[threshold:], combined[:threshold]
}

// Usernames projects a member list to display names, preserving join order.
func Usernames(members []Member) []string {
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Username)
	}
	return names
}
