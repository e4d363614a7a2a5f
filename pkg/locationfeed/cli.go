package locationfeed

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/catchtrain/pkg/redis_client"
	"github.com/travigo/catchtrain/pkg/session"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "location-feed",
		Usage: "Location samples queue for live sessions",
		Subcommands: []*cli.Command{
			{
				Name:  "publish",
				Usage: "publish a single location sample for a session",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "session",
						Usage:    "session identifier",
						Required: true,
					},
					&cli.Float64Flag{
						Name:     "latitude",
						Required: true,
					},
					&cli.Float64Flag{
						Name:     "longitude",
						Required: true,
					},
					&cli.Float64Flag{
						Name:  "speed",
						Usage: "observed walking speed in metres per second",
					},
				},
				Action: func(c *cli.Context) error {
					if err := redis_client.Connect(); err != nil {
						return err
					}

					queue, err := redis_client.QueueConnection.OpenQueue(QueueName)
					if err != nil {
						return err
					}

					sample := session.LocationSample{
						Session:   c.String("session"),
						Latitude:  c.Float64("latitude"),
						Longitude: c.Float64("longitude"),
						Speed:     c.Float64("speed"),
						Timestamp: time.Now().Format(time.RFC3339Nano),
					}

					if err := Publish(queue, sample); err != nil {
						return err
					}

					log.Info().Str("session", sample.Session).Msg("Published location sample")

					return nil
				},
			},
		},
	}
}
