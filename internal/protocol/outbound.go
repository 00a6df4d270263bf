package protocol

const (
	TypeRoomJoined = "room_joined"
	TypeRoomStatus = "room_status"
	TypeGameStart  = "game_start"
	TypeRoomFull   = "room_full"
	TypeError      = "error"
)

// RoomJoined acknowledges a successful join to the joiner only.
type RoomJoined struct {
	Type         string `json:"type"`
	RoomID       string `json:"room_id"`
	PlayerNumber int    `json:"player_number"`
	TotalPlayers int    `json:"total_players"`
}

// RoomStatus is the membership snapshot fanned out to every member. All
// members of one broadcast round see the same Usernames and TotalPlayers;
// only PlayerNumber differs.
type RoomStatus struct {
	Type         string   `json:"type"`
	RoomID       string   `json:"room_id"`
	PlayerNumber int      `json:"player_number"`
	TotalPlayers int      `json:"total_players"`
	Usernames    []string `json:"usernames"`
}

// GameStart announces that a room reached capacity, or that a matchmade game
// was formed. Players are display names in join order.
type GameStart struct {
	Type    string   `json:"type"`
	RoomID  string   `json:"room_id"`
	Players []string `json:"players"`
}

type RoomFull struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewRoomJoined(roomID string, playerNumber, totalPlayers int) RoomJoined {
	return RoomJoined{Type: TypeRoomJoined, RoomID: roomID, PlayerNumber: playerNumber, TotalPlayers: totalPlayers}
}

func NewRoomStatus(roomID string, playerNumber, totalPlayers int, usernames []string) RoomStatus {
	return RoomStatus{Type: TypeRoomStatus, RoomID: roomID, PlayerNumber: playerNumber, TotalPlayers: totalPlayers, Usernames: usernames}
}

func NewGameStart(roomID string, players []string) GameStart {
	return GameStart{Type: TypeGameStart, RoomID: roomID, Players: players}
}

func NewRoomFull(message string) RoomFull {
	return RoomFull{Type: TypeRoomFull, Message: message}
}

func NewError(message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: message}
}
