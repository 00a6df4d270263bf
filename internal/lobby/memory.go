package lobby

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps all lobby state in process memory behind one mutex. It
// serves single-instance deployments and tests; the mutex is the serialization
// point that makes every RoomStore method atomic.
type MemoryStore struct {
	mu     sync.Mutex
	rooms  map[string][]Member
	queues map[string][]Member
	games  map[string][]Member
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:  make(map[string][]Member),
		queues: make(map[string][]Member),
		games:  make(map[string][]Member),
	}
}

func (s *MemoryStore) CreateRoom(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := randomRoomCode()
		if _, open := s.rooms[code]; open {
			continue
		}
		s.rooms[code] = []Member{}
		return code, nil
	}
	return "", fmt.Errorf("%w: no free room codes", ErrStoreUnavailable)
}

func (s *MemoryStore) JoinRoom(ctx context.Context, code string, member Member) (JoinResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, open := s.rooms[code]
	if !open {
		return JoinResult{}, ErrRoomNotFound
	}
	// A session re-joining its own room keeps its single seat.
	for i, m := range members {
		if m.SessionID == member.SessionID {
			return JoinResult{PlayerNumber: i + 1, Members: snapshot(members)}, nil
		}
	}
	if len(members) >= RoomCapacity {
		return JoinResult{}, ErrRoomFull
	}

	members = append(members, member)
	s.rooms[code] = members

	return JoinResult{
		PlayerNumber: len(members),
		Members:      snapshot(members),
		BecameFull:   len(members) == RoomCapacity,
	}, nil
}

func (s *MemoryStore) LeaveRoom(ctx context.Context, code, sessionID string) (LeaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, open := s.rooms[code]
	if !open {
		return LeaveResult{}, nil
	}

	remaining, removed := withoutSession(members, sessionID)
	if !removed {
		return LeaveResult{Members: snapshot(members)}, nil
	}

	if len(remaining) == 0 {
		delete(s.rooms, code)
		return LeaveResult{Removed: true, Deleted: true}, nil
	}

	s.rooms[code] = remaining
	return LeaveResult{Members: snapshot(remaining), Removed: true}, nil
}

func (s *MemoryStore) Members(ctx context.Context, code string) ([]Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, open := s.rooms[code]
	if !open {
		return nil, ErrRoomNotFound
	}
	return snapshot(members), nil
}

func (s *MemoryStore) Enqueue(ctx context.Context, gameType string, member Member, threshold int) ([]Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue := s.queues[gameType]
	if containsSession(queue, member.SessionID) {
		return nil, nil
	}

	remaining, batch := formBatch(queue, member, threshold)
	if len(remaining) == 0 {
		delete(s.queues, gameType)
	} else {
		s.queues[gameType] = remaining
	}
	return batch, nil
}

func (s *MemoryStore) DequeueSession(ctx context.Context, gameType, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, ok := s.queues[gameType]
	if !ok {
		return nil
	}

	remaining, removed := withoutSession(queue, sessionID)
	if !removed {
		return nil
	}
	if len(remaining) == 0 {
		delete(s.queues, gameType)
	} else {
		s.queues[gameType] = remaining
	}
	return nil
}

func (s *MemoryStore) CreateGame(ctx context.Context, members []Member) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gameID := newGameID()
	s.games[gameID] = snapshot(members)
	return gameID, nil
}

func (s *MemoryStore) Game(ctx context.Context, gameID string) ([]Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.games[gameID]
	if !ok {
		return nil, ErrGameNotFound
	}
	return snapshot(members), nil
}

// newGameID returns the short uuid prefix used to name matchmade games.
func newGameID() string {
	return uuid.NewString()[:8]
}

func snapshot(members []Member) []Member {
	out := make([]Member, len(members))
	copy(out, members)
	return out
}

func withoutSession(members []Member, sessionID string) ([]Member, bool) {
	remaining := make([]Member, 0, len(members))
	removed := false
	for _, m := range members {
		if m.SessionID == sessionID {
			removed = true
			continue
		}
		remaining = append(remaining, m)
	}
	return remaining, removed
}
