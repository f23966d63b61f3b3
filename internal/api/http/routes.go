package httpapi

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/forecastlab/weather-compare/internal/forecast"
	"github.com/forecastlab/weather-compare/internal/geo"
)

var validate = validator.New()

// Deps are the injected collaborators for the HTTP layer.
type Deps struct {
	Service  *forecast.Service
	Resolver *geo.Resolver
	DemoMode bool
	Version  string
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	app.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"demoMode": deps.DemoMode,
			"version":  deps.Version,
		})
	})

	app.Post("/cache/clear", func(c *fiber.Ctx) error {
		n := deps.Service.ClearCache()
		return c.JSON(fiber.Map{
			"success": true,
			"message": fmt.Sprintf("cache cleared (%d entries dropped)", n),
		})
	})

	app.Get("/weather/:locationKey/all", func(c *fiber.Ctx) error {
		loc, err := resolveParam(c, deps.Resolver)
		if err != nil {
			return err
		}
		return c.JSON(deps.Service.GetAll(c.UserContext(), loc))
	})

	app.Get("/weather/:locationKey/compare", func(c *fiber.Ctx) error {
		loc, err := resolveParam(c, deps.Resolver)
		if err != nil {
			return err
		}
		series := deps.Service.GetAll(c.UserContext(), loc)
		return c.JSON(buildComparison(loc, series))
	})

	app.Get("/weather/:locationKey", func(c *fiber.Ctx) error {
		var q sourceQuery
		q.Source = c.Query("source")
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "source query parameter is required")
		}

		loc, err := resolveParam(c, deps.Resolver)
		if err != nil {
			return err
		}

		series, err := deps.Service.Get(c.UserContext(), loc, q.Source)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.JSON(series)
	})
}

// sourceQuery holds the query parameters for the single-source endpoint.
type sourceQuery struct {
	Source string `validate:"required"`
}

func resolveParam(c *fiber.Ctx, resolver *geo.Resolver) (forecast.Location, error) {
	key := c.Params("locationKey")
	loc, err := resolver.Resolve(c.UserContext(), key)
	if err != nil {
		return forecast.Location{}, fiber.NewError(fiber.StatusNotFound, "could not resolve location")
	}
	return loc, nil
}

// comparison is the metric payload the UI consumes: per-property agreement,
// per-source precipitation classification, and dry-day flags.
type comparison struct {
	Location forecast.Location          `json:"location"`
	Current  []forecast.AgreementResult `json:"current"`
	Hourly   []hourlyAgreement          `json:"hourly"`
	Precip   []sourcePrecip             `json:"precipitation"`
	DryDays  []dryDay                   `json:"dryDays"`
}

type hourlyAgreement struct {
	Slot    int                        `json:"slot"`
	Results []forecast.AgreementResult `json:"results"`
}

type sourcePrecip struct {
	Source         string                `json:"source"`
	Bucket         forecast.PrecipBucket `json:"bucket"`
	Classification string                `json:"classification"`
}

type dryDay struct {
	Date     string `json:"date"`
	IsDryDay bool   `json:"isDryDay"`
}

const comparedHourlySlots = 24

func buildComparison(loc forecast.Location, series []forecast.ForecastSeries) comparison {
	props := []forecast.Property{forecast.PropTemperature, forecast.PropFeelsLike, forecast.PropPrecipProb}

	out := comparison{Location: loc}

	for _, prop := range props {
		out.Current = append(out.Current, forecast.CompareCurrent(series, prop))
	}

	for slot := 0; slot < comparedHourlySlots; slot++ {
		ha := hourlyAgreement{Slot: slot}
		for _, prop := range props {
			ha.Results = append(ha.Results, forecast.CompareAt(series, prop, slot))
		}
		out.Hourly = append(out.Hourly, ha)
	}

	for _, s := range series {
		if s.Current == nil {
			continue
		}
		bucket := forecast.BucketForAmount(s.Current.Precipitation.Amount)
		out.Precip = append(out.Precip, sourcePrecip{
			Source:         s.Source,
			Bucket:         bucket,
			Classification: forecast.DisplayClassification(bucket),
		})
	}

	today := time.Now().UTC()
	for i := 0; i < 7; i++ {
		day := today.AddDate(0, 0, i)
		out.DryDays = append(out.DryDays, dryDay{
			Date:     day.Format("2006-01-02"),
			IsDryDay: forecast.IsDryDay(series, day),
		})
	}

	return out
}
