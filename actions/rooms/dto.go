package rooms

import "hokm_server/internal/lobby"

type RoomStatusDTO struct {
	RoomID       string   `json:"room_id"`
	TotalPlayers int      `json:"total_players"`
	Usernames    []string `json:"usernames"`
}

func NewRoomStatusDTO(code string, members []lobby.Member) RoomStatusDTO {
	return RoomStatusDTO{
		RoomID:       code,
		TotalPlayers: len(members),
		Usernames:    lobby.Usernames(members),
	}
}

type GameDTO struct {
	GameID  string   `json:"game_id"`
	Players []string `json:"players"`
}

func NewGameDTO(gameID string, members []lobby.Member) GameDTO {
	return GameDTO{
		GameID:  gameID,
		Players: lobby.Usernames(members),
	}
}
