package rooms

import "github.com/gobuffalo/buffalo"

func Register(app *buffalo.App, controller *RoomsController) {
	app.GET("/rooms/{code}", controller.ShowRoom)
	app.GET("/games/{gameID}", controller.ShowGame)
}
