package routes

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/travigo/catchtrain/pkg/session"
)

func SessionsRouter(router fiber.Router, manager *session.Manager) {
	router.Post("/", func(c *fiber.Ctx) error {
		return createSession(c, manager)
	})
	router.Get("/:id", func(c *fiber.Ctx) error {
		return getSession(c, manager)
	})
	router.Post("/:id/location", func(c *fiber.Ctx) error {
		return postSessionLocation(c, manager)
	})
	router.Post("/:id/platform", func(c *fiber.Ctx) error {
		return postSessionPlatform(c, manager)
	})
	router.Delete("/:id", func(c *fiber.Ctx) error {
		return deleteSession(c, manager)
	})
}

func createSession(c *fiber.Ctx, manager *session.Manager) error {
	var body planRequest
	if err := c.BodyParser(&body); err != nil {
		return sendError(c, fiber.StatusBadRequest, "Request body should be a JSON journey plan")
	}

	request, err := body.toRequest()
	if err != nil {
		return sendError(c, fiber.StatusBadRequest, err.Error())
	}

	started, err := manager.Start(c.UserContext(), session.StartRequest{Request: request, ArrivalID: body.ArrivalID})
	if err != nil {
		return sendPlanningError(c, err)
	}

	c.Status(fiber.StatusCreated)
	return c.JSON(newSessionView(started.Snapshot(), false))
}

func getSession(c *fiber.Ctx, manager *session.Manager) error {
	found, err := manager.Get(c.Params("id"))
	if err != nil {
		return sendError(c, fiber.StatusNotFound, "Could not find Session matching identifier")
	}

	return c.JSON(newSessionView(found.Snapshot(), c.QueryBool("detailed")))
}

func postSessionLocation(c *fiber.Ctx, manager *session.Manager) error {
	var sample session.LocationSample
	if err := c.BodyParser(&sample); err != nil {
		return sendError(c, fiber.StatusBadRequest, "Request body should be a JSON location sample")
	}
	sample.Session = c.Params("id")

	evaluation, err := manager.UpdateLocation(sample)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return sendError(c, fiber.StatusNotFound, "Could not find Session matching identifier")
	case errors.Is(err, session.ErrSessionEnded):
		return sendError(c, fiber.StatusConflict, err.Error())
	case err != nil:
		return sendError(c, fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(newEvaluationView(evaluation))
}

func postSessionPlatform(c *fiber.Ctx, manager *session.Manager) error {
	found, err := manager.Get(c.Params("id"))
	if err != nil {
		return sendError(c, fiber.StatusNotFound, "Could not find Session matching identifier")
	}

	duration, err := found.ReachedPlatform()
	if err != nil {
		return sendError(c, fiber.StatusConflict, err.Error())
	}

	return c.JSON(fiber.Map{
		"stationtoplatform": formatDuration(duration),
	})
}

func deleteSession(c *fiber.Ctx, manager *session.Manager) error {
	summary, err := manager.End(c.Params("id"))
	if err != nil {
		return sendError(c, fiber.StatusNotFound, "Could not find Session matching identifier")
	}

	return c.JSON(summaryView{
		ID:          summary.ID,
		FinalStatus: summary.FinalStatus,
		FinalPhase:  summary.FinalPhase,
		Fraction:    summary.Fraction,
	})
}
