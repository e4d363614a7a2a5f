package api

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/catchtrain/pkg/app"
	"github.com/travigo/catchtrain/pkg/consumer"
	"github.com/travigo/catchtrain/pkg/locationfeed"
	"github.com/travigo/catchtrain/pkg/redis_client"
	"github.com/travigo/catchtrain/pkg/util"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "web-api",
		Usage: "Provides the catch a train web API",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run web api server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Value: ":8080",
						Usage: "listen target for the web server",
					},
				},
				Action: func(c *cli.Context) error {
					services, err := app.Build(c.Context, app.ConfigFromEnvironment(util.GetEnvironmentVariables()))
					if err != nil {
						return err
					}

					deps := Dependencies{
						Resolver: services.Resolver,
						Catalog:  NewFilterableCatalog(services.Catalog),
						Planner:  services.Planner,
						Manager:  services.Manager,
						Metrics:  services.Metrics,
					}

					// Sessions live in this process so location samples from the queue are consumed here
					if services.Config.UseRedis {
						redisConsumer := consumer.RedisConsumer{
							QueueName:       locationfeed.QueueName,
							NumberConsumers: 2,
							BatchSize:       50,
							Timeout:         500 * time.Millisecond,
							Consumer:        locationfeed.NewBatchConsumer(services.Manager, services.Metrics),
						}
						if _, err := redisConsumer.Setup(redis_client.QueueConnection); err != nil {
							return err
						}
						deps.Queues = redis_client.QueueConnection
					}

					webApp := NewApp(deps)

					signals := make(chan os.Signal, 1)
					signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
					defer signal.Stop(signals)

					go func() {
						<-signals
						log.Info().Msg("Shutting down web api")

						if err := webApp.Shutdown(); err != nil {
							log.Error().Err(err).Msg("Failed to shut down web server")
						}
					}()

					log.Info().Str("listen", c.String("listen")).Msg("Starting web api")
					serveErr := webApp.Listen(c.String("listen"))

					if deps.Queues != nil {
						<-deps.Queues.StopAllConsuming()
					}

					ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					services.Close(ctx)

					return serveErr
				},
			},
		},
	}
}
