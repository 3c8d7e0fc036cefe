package location

import (
	"errors"
	"time"

	"backend-caravan/internal/retreat"
	"backend-caravan/internal/validate"

	"github.com/gofiber/fiber/v2"
)

// nextUpdateSeconds tells clients how long to wait before the next sample.
const nextUpdateSeconds = 30

type recordRequest struct {
	Lat          float64  `json:"lat" validate:"gte=-90,lte=90"`
	Lng          float64  `json:"lng" validate:"gte=-180,lte=180"`
	AccuracyM    *float64 `json:"accuracy_m" validate:"omitempty,gte=0"`
	SpeedMps     *float64 `json:"speed_mps" validate:"omitempty,gte=0"`
	Heading      *float64 `json:"heading" validate:"omitempty,gte=0,lt=360"`
	AltitudeM    *float64 `json:"altitude_m"`
	RecordedAtMs *int64   `json:"recorded_at_ms" validate:"omitempty,gt=0"`
}

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/location", authMiddleware, func(c *fiber.Ctx) error {
		var req recordRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		if errs := validate.Struct(req); errs != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":  "Validation failed",
				"errors": errs,
			})
		}

		point := Point{
			Lat:       req.Lat,
			Lng:       req.Lng,
			AccuracyM: req.AccuracyM,
			SpeedMps:  req.SpeedMps,
			Heading:   req.Heading,
			AltitudeM: req.AltitudeM,
		}
		if req.RecordedAtMs != nil {
			point.RecordedAt = time.UnixMilli(*req.RecordedAtMs).UTC()
		}

		participant := retreat.ParticipantFrom(c)
		if _, err := svc.Record(c.Context(), participant, point); err != nil {
			if errors.Is(err, ErrSharingDisabled) {
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{
					"error": "Location sharing is disabled",
				})
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		return c.JSON(fiber.Map{"data": fiber.Map{
			"recorded":       true,
			"next_update_in": nextUpdateSeconds,
		}})
	})

	r.Get("/locations", authMiddleware, func(c *fiber.Ctx) error {
		participant := retreat.ParticipantFrom(c)
		ret := retreat.RetreatFrom(c)

		roster, err := svc.RosterFor(c.Context(), ret.ID, participant.ID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		entries := roster.Entries
		if entries == nil {
			entries = []RosterEntry{}
		}
		return c.JSON(fiber.Map{
			"data": entries,
			"meta": fiber.Map{
				"total_participants": roster.ParticipantCount,
				"online_count":       roster.OnlineCount,
				"server_time":        roster.ServerTime.UTC(),
			},
		})
	})
}
