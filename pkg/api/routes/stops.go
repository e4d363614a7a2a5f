package routes

import (
	"context"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/liip/sheriff"
	"github.com/travigo/catchtrain/pkg/arrivals"
)

type ArrivalCatalog interface {
	FetchArrivals(ctx context.Context, stopID string, lineFilter []string) []arrivals.Arrival
}

// FilterableCatalog is a catalog that can apply a per request expression filter.
type FilterableCatalog interface {
	ArrivalCatalog
	FilteredBy(expression string) (ArrivalCatalog, error)
}

func StopsRouter(router fiber.Router, catalog FilterableCatalog) {
	router.Get("/:identifier/arrivals", func(c *fiber.Ctx) error {
		return getStopArrivals(c, catalog)
	})
}

func getStopArrivals(c *fiber.Ctx, catalog FilterableCatalog) error {
	stopIdentifier := c.Params("identifier")

	count, err := strconv.Atoi(c.Query("count", "25"))
	if err != nil || count < 1 {
		return sendError(c, fiber.StatusBadRequest, "Parameter count should be a positive integer")
	}

	var source ArrivalCatalog = catalog
	if filter := c.Query("filter"); filter != "" {
		source, err = catalog.FilteredBy(filter)
		if err != nil {
			return sendError(c, fiber.StatusBadRequest, err.Error())
		}
	}

	stopArrivals := source.FetchArrivals(c.UserContext(), stopIdentifier, splitList(c.Query("lines")))
	arrivals.SortByExpected(stopArrivals)

	if len(stopArrivals) > count {
		stopArrivals = stopArrivals[:count]
	}
	if len(stopArrivals) == 0 {
		return c.JSON([]any{})
	}

	groups := []string{"basic"}
	if c.QueryBool("detailed") {
		groups = append(groups, "detailed")
	}

	arrivalsReduced, err := sheriff.Marshal(&sheriff.Options{
		Groups: groups,
	}, stopArrivals)
	if err != nil {
		return sendError(c, fiber.StatusInternalServerError, "Sherrif could not reduce Arrivals")
	}

	return c.JSON(arrivalsReduced)
}

func splitList(value string) []string {
	var list []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
