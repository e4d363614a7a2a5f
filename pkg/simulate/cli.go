package simulate

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "Replay a journey plan through the progress tracker",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "plan",
				Usage:    "YAML journey plan to replay",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			file, err := os.Open(c.String("plan"))
			if err != nil {
				return err
			}
			defer file.Close()

			scenario, err := LoadScenario(file)
			if err != nil {
				return err
			}

			result, err := New(scenario).Run(c.Context)
			if err != nil {
				return err
			}

			log.Info().
				Str("status", result.Final.Status.String()).
				Dur("delta", result.Final.Delta).
				Int("updates", result.Updates).
				Msg("Simulation finished")

			return nil
		},
	}
}
