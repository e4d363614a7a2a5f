package routes

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/travigo/catchtrain/pkg/session"
	"github.com/travigo/catchtrain/pkg/stations"
)

type CandidatePlanner interface {
	Candidates(ctx context.Context, request session.Request) (*session.Candidates, error)
}

func CandidatesRouter(router fiber.Router, planner CandidatePlanner) {
	router.Post("/", func(c *fiber.Ctx) error {
		return postCandidates(c, planner)
	})
}

func postCandidates(c *fiber.Ctx, planner CandidatePlanner) error {
	var body planRequest
	if err := c.BodyParser(&body); err != nil {
		return sendError(c, fiber.StatusBadRequest, "Request body should be a JSON journey plan")
	}

	request, err := body.toRequest()
	if err != nil {
		return sendError(c, fiber.StatusBadRequest, err.Error())
	}

	candidates, err := planner.Candidates(c.UserContext(), request)
	if err != nil {
		return sendPlanningError(c, err)
	}

	return c.JSON(newCandidatesView(candidates))
}

func sendPlanningError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, session.ErrStationRequired):
		return sendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, stations.ErrNotFound):
		return sendError(c, fiber.StatusNotFound, "Could not find a station matching name")
	case errors.Is(err, session.ErrArrivalNotFound), errors.Is(err, session.ErrNoCatchableTrain):
		return sendError(c, fiber.StatusUnprocessableEntity, err.Error())
	default:
		return sendError(c, fiber.StatusInternalServerError, err.Error())
	}
}
