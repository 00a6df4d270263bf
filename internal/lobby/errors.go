package lobby

import "errors"

var (
	ErrRoomNotFound     = errors.New("room_not_found")
	ErrRoomFull         = errors.New("room_full")
	ErrGameNotFound     = errors.New("game_not_found")
	ErrStoreUnavailable = errors.New("store_unavailable")
)
