package routes

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/liip/sheriff"
	"github.com/travigo/catchtrain/pkg/stations"
)

type StationResolver interface {
	Resolve(ctx context.Context, name string) (stations.Station, error)
}

func StationsRouter(router fiber.Router, resolver StationResolver) {
	router.Get("/resolve", func(c *fiber.Ctx) error {
		return resolveStation(c, resolver)
	})
}

func resolveStation(c *fiber.Ctx, resolver StationResolver) error {
	name := c.Query("name")
	if name == "" {
		return sendError(c, fiber.StatusBadRequest, "Parameter name is required")
	}

	station, err := resolver.Resolve(c.UserContext(), name)
	if errors.Is(err, stations.ErrNotFound) {
		return sendError(c, fiber.StatusNotFound, "Could not find a station matching name")
	} else if err != nil {
		return sendError(c, fiber.StatusBadGateway, err.Error())
	}

	stationReduced, err := sheriff.Marshal(&sheriff.Options{
		Groups: []string{"basic"},
	}, station)
	if err != nil {
		return sendError(c, fiber.StatusInternalServerError, "Sherrif could not reduce Station")
	}

	return c.JSON(stationReduced)
}
