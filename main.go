package main

import (
	"hokm_server/actions"
	"hokm_server/internal/logger"

	"github.com/rs/zerolog/log"
)

func main() {
	logger.Init()

	app := actions.App()
	if err := app.Serve(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start lobby server.")
	}
}
