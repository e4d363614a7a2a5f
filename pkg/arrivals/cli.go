package arrivals

import (
	"fmt"

	"github.com/kr/pretty"
	"github.com/travigo/catchtrain/pkg/stations"
	"github.com/travigo/catchtrain/pkg/tfl"
	"github.com/travigo/catchtrain/pkg/util"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "arrivals",
		Usage: "Print the upcoming arrivals at a station",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "station",
				Usage:    "station name, in any of its usual spellings",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "line",
				Usage: "only include these lines",
			},
			&cli.StringFlag{
				Name:  "filter",
				Usage: "expression every arrival must match, eg. 'TimeToStation > 120'",
			},
		},
		Action: func(c *cli.Context) error {
			env := util.GetEnvironmentVariables()

			clientOptions := []tfl.Option{}
			if env["CATCHTRAIN_TFL_BASE_URL"] != "" {
				clientOptions = append(clientOptions, tfl.WithBaseURL(env["CATCHTRAIN_TFL_BASE_URL"]))
			}
			client := tfl.NewClient(env["CATCHTRAIN_TFL_API_KEY"], clientOptions...)

			station, err := stations.NewResolver(client).Resolve(c.Context, c.String("station"))
			if err != nil {
				return err
			}

			var catalogOptions []Option
			if c.String("filter") != "" {
				program, err := CompileFilter(c.String("filter"))
				if err != nil {
					return err
				}
				catalogOptions = append(catalogOptions, WithFilter(program))
			}

			stationArrivals := NewCatalog(client, catalogOptions...).FetchArrivals(c.Context, station.StopID, c.StringSlice("line"))
			SortByExpected(stationArrivals)

			fmt.Printf("%s (%s)\n", station.Name, station.StopID)
			pretty.Println(stationArrivals)

			return nil
		},
	}
}
