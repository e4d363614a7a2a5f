package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/travigo/catchtrain/pkg/api"
	"github.com/travigo/catchtrain/pkg/arrivals"
	"github.com/travigo/catchtrain/pkg/locationfeed"
	"github.com/travigo/catchtrain/pkg/simulate"
	"github.com/urfave/cli/v2"

	_ "time/tzdata"
)

func main() {
	// Arrival predictions are shown in London time
	if loc, err := time.LoadLocation("Europe/London"); err == nil {
		time.Local = loc
	}

	if os.Getenv("CATCHTRAIN_LOG_FORMAT") != "JSON" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	if os.Getenv("CATCHTRAIN_DEBUG") == "YES" {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	app := &cli.App{
		Name:        "catchtrain",
		Description: "Tells you whether you can still catch the next train, and how fast to walk",

		Commands: []*cli.Command{
			api.RegisterCLI(),
			arrivals.RegisterCLI(),
			simulate.RegisterCLI(),
			locationfeed.RegisterCLI(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
}
