// Pubserver serves the Aozora Bunko catalog and book content over HTTP.
package main

import (
	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"

	"github.com/aozorahack/pubserver2/pkg/config"
	"github.com/aozorahack/pubserver2/pkg/logging"
)

var version = "dev"

type cli struct {
	config.Globals

	Version kong.VersionFlag `help:"Print version and exit."`

	Serve  serveCmd  `cmd:"" default:"1" help:"Serve the catalog API (default)."`
	Import importCmd `cmd:"" help:"Load JSON-lines files into the catalog."`
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("pubserver"),
		kong.Description("Aozora Bunko catalog API server."),
		kong.Vars{"version": version},
	)

	logging.Setup(c.Logging())

	if err := ctx.Run(&c.Globals); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}
