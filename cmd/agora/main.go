package main

import (
	"os"

	"github.com/odosui/agora/cmd/agora/cmds"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := cmds.NewRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("agora failed")
		os.Exit(1)
	}
}
