package rooms

import (
	"errors"

	"hokm_server/internal/lobby"

	"github.com/gobuffalo/buffalo"
	"github.com/gobuffalo/buffalo/render"
	"github.com/rs/zerolog/log"
)

var renderer = render.New(render.Options{})

// RoomsController exposes read-only snapshots of rooms and formed games.
// Mutation happens over the websocket only, so an out-of-band create can
// never leave a zero-member room behind.
type RoomsController struct {
	Store lobby.RoomStore
}

func NewRoomsController(store lobby.RoomStore) *RoomsController {
	return &RoomsController{Store: store}
}

func (controller *RoomsController) ShowRoom(ctx buffalo.Context) error {
	code := ctx.Param("code")

	members, err := controller.Store.Members(ctx.Request().Context(), code)
	if errors.Is(err, lobby.ErrRoomNotFound) {
		return ctx.Render(404, renderer.JSON(map[string]any{
			"error": "room_not_found",
		}))
	}
	if err != nil {
		log.Error().Err(err).Str("room", code).Msg("Failed to read room.")
		return ctx.Render(500, renderer.JSON(map[string]any{
			"error": err.Error(),
		}))
	}

	return ctx.Render(200, renderer.JSON(NewRoomStatusDTO(code, members)))
}

func (controller *RoomsController) ShowGame(ctx buffalo.Context) error {
	gameID := ctx.Param("gameID")

	members, err := controller.Store.Game(ctx.Request().Context(), gameID)
	if errors.Is(err, lobby.ErrGameNotFound) {
		return ctx.Render(404, renderer.JSON(map[string]any{
			"error": "game_not_found",
		}))
	}
	if err != nil {
		log.Error().Err(err).Str("game", gameID).Msg("Failed to read game.")
		return ctx.Render(500, renderer.JSON(map[string]any{
			"error": err.Error(),
		}))
	}

	return ctx.Render(200, renderer.JSON(NewGameDTO(gameID, members)))
}
