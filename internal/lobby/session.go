package lobby

// Session is the lobby-side view of one connected client. It lives for one
// transport connection and is owned by that connection's handler goroutine;
// it is never shared, so it needs no locking.
//
// Room and QueuedGame are non-owning references: the RoomStore owns room and
// queue state, a Session only remembers where it is.
type Session struct {
	ID         string
	Username   string
	Room       string
	QueuedGame string
}

// Started reports whether the session has performed its first lobby action.
func (s *Session) Started() bool {
	return s.Room != "" || s.QueuedGame != ""
}
