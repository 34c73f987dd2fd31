package httpapi

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/parkpulse/parking-pricing/internal/parking"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *parking.Service) {
	// Query surface. The price endpoint keeps its historical path.
	app.Get("/api/parking-prices", func(c *fiber.Ctx) error {
		quotes, err := service.QuotePrices(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to compute prices")
		}
		return c.JSON(quotes)
	})

	v1 := app.Group("/api/v1")

	v1.Post("/readings", func(c *fiber.Ctx) error {
		var payload readingBatch
		if err := c.BodyParser(&payload); err != nil {
			// Malformed payload rejects the whole batch, no partial acceptance.
			return fiber.NewError(fiber.StatusBadRequest, "malformed readings payload")
		}
		if err := validate.Struct(payload); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		events := payload.toEvents()
		stored, err := service.IngestBatch(c.Context(), events)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to process readings")
		}

		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"received": len(events),
			"stored":   stored,
		})
	})

	v1.Get("/groups", func(c *fiber.Ctx) error {
		groups, err := service.ListGroups(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list groups")
		}
		return c.JSON(groups)
	})
}

// readingBatch is the decoded sensor payload: a batch timestamp plus one
// entry per spot. s == 1 means free; any other value means occupied.
type readingBatch struct {
	Timestamp     int64         `json:"timestamp" validate:"required"`
	ParkingStatus []spotReading `json:"parking_status" validate:"required,min=1,dive"`
}

type spotReading struct {
	ID  string  `json:"id" validate:"required"`
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
	S   int     `json:"s"`
}

func (b readingBatch) toEvents() []parking.ParkingEvent {
	ts := time.Unix(b.Timestamp, 0).UTC()

	events := make([]parking.ParkingEvent, 0, len(b.ParkingStatus))
	for _, r := range b.ParkingStatus {
		status := parking.StatusOccupied
		if r.S == 1 {
			status = parking.StatusFree
		}
		events = append(events, parking.ParkingEvent{
			SpotID:    r.ID,
			Latitude:  r.Lat,
			Longitude: r.Lon,
			Status:    status,
			Timestamp: ts,
		})
	}
	return events
}
