package httpapi

import (
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/air-quality-features/internal/common"
	"github.com/i474232898/air-quality-features/internal/features"
	"github.com/i474232898/air-quality-features/internal/store"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app. cities is the
// default list used when a run request names none.
func RegisterRoutes(app *fiber.App, service *features.Service, featureGroup string, cities []string) {
	v1 := app.Group("/api/v1")

	v1.Post("/runs", func(c *fiber.Ctx) error {
		req := runRequest{Cities: cities}
		if q := common.SplitAndTrim(c.Query("cities")); len(q) > 0 {
			req.Cities = q
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		summary, err := service.Collect(c.UserContext(), featureGroup, req.Cities)
		if err != nil {
			log.Printf("ERROR: api: run not started: %v", err)
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		return c.JSON(fiber.Map{
			"message":   "Feature pipeline execution completed",
			"timestamp": summary.FinishedAt,
			"results":   summary.Statuses(),
		})
	})

	v1.Get("/runs/latest", func(c *fiber.Ctx) error {
		summary, err := service.LatestRun()
		if err != nil {
			if errors.Is(err, features.ErrNoRuns) {
				return fiber.NewError(fiber.StatusNotFound, "no pipeline runs recorded")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read run history")
		}
		return c.JSON(summary)
	})

	v1.Get("/runs", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		runs, err := service.RunsBetween(req.From, req.To)
		if err != nil {
			if errors.Is(err, features.ErrNoRuns) {
				return fiber.NewError(fiber.StatusNotFound, "no pipeline runs for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read run history")
		}

		return c.JSON(fiber.Map{
			"from": req.From,
			"to":   req.To,
			"runs": runs,
		})
	})

	v1.Get("/records", func(c *fiber.Ctx) error {
		req := recordsQuery{Limit: 10}
		if l := c.Query("limit"); l != "" {
			n, err := strconv.ParseInt(l, 10, 64)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "limit must be an integer")
			}
			req.Limit = n
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		ids, err := service.RecentRecordIDs(c.UserContext(), featureGroup, req.Limit)
		if err != nil {
			return storeError(err)
		}
		return c.JSON(fiber.Map{
			"featureGroup": featureGroup,
			"recordIds":    ids,
		})
	})

	v1.Get("/records/:id", func(c *fiber.Ctx) error {
		id := c.Params("id")
		record, err := service.GetRecord(c.UserContext(), featureGroup, id)
		if err != nil {
			return storeError(err)
		}
		return c.JSON(fiber.Map{
			"featureGroup": featureGroup,
			"recordId":     id,
			"record":       record,
		})
	})
}

func storeError(err error) error {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrFeatureGroupNotFound) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	log.Printf("ERROR: api: feature store read failed: %v", err)
	return fiber.NewError(fiber.StatusInternalServerError, "failed to read feature store")
}

// runRequest holds the cities of an on-demand run.
type runRequest struct {
	Cities []string `validate:"min=1,max=50,dive,required,max=100"`
}

// recordsQuery holds query parameters for the record listing endpoint.
type recordsQuery struct {
	Limit int64 `validate:"min=1,max=100"`
}

// historyQuery holds query parameters for the run history endpoint.
type historyQuery struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
